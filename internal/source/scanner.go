package source

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/theirongolddev/smriti/internal/model"
)

// Claude reads Claude Code transcripts: one JSONL file per session under
// <root>/<encoded-project>/, with subagent sidechains under
// <root>/<encoded-project>/<session>/subagents/agent-<id>.jsonl.
type Claude struct {
	IncludeSubagents bool
}

// Agent implements Adapter.
func (*Claude) Agent() model.Agent { return model.AgentClaude }

// DefaultRoot implements Adapter.
func (*Claude) DefaultRoot(home string) string {
	return filepath.Join(home, ".claude", "projects")
}

// Discover walks the Claude projects directory and returns every session
// file, main sessions and (optionally) subagent sessions.
func (c *Claude) Discover(root string) ([]DiscoveredFile, error) {
	ok, err := rootExists(root)
	if err != nil || !ok {
		return nil, err
	}

	var files []DiscoveredFile

	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // intentionally skip unreadable entries
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if filepath.Ext(name) != ".jsonl" {
			return nil
		}

		rel, _ := filepath.Rel(root, path)
		parts := strings.Split(rel, string(filepath.Separator))
		if len(parts) < 2 {
			return nil
		}

		df := DiscoveredFile{
			Agent:      model.AgentClaude,
			Path:       path,
			ProjectDir: parts[0],
		}

		// Pattern: <project>/<session-uuid>/subagents/agent-<id>.jsonl
		if len(parts) >= 4 && parts[2] == "subagents" {
			if !c.IncludeSubagents {
				return nil
			}
			df.IsSubagent = true
			df.ParentSession = parts[1]
			// Use parent+agent to avoid collisions across sessions
			df.SessionID = parts[1] + "/" + strings.TrimSuffix(name, ".jsonl")
		} else if len(parts) == 2 {
			// Main session: <project>/<session-uuid>.jsonl
			df.SessionID = strings.TrimSuffix(name, ".jsonl")
		} else {
			return nil
		}

		files = append(files, df)
		return nil
	})

	sortFiles(files)
	return files, err
}
