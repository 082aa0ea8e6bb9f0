package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/theirongolddev/smriti/internal/model"
)

// DiscoveredFile is one session transcript found under an agent's log root.
type DiscoveredFile struct {
	Agent     model.Agent
	Path      string
	SessionID string

	// ProjectDir is the agent's encoded project folder name, when the
	// agent groups sessions that way (Claude Code).
	ProjectDir string
	// ProjectPath is the real project path, when the agent records it
	// outside the transcript (Copilot's workspace.json).
	ProjectPath string

	IsSubagent    bool
	ParentSession string // for subagents: parent session id
}

// ReadStats summarizes one pass over a transcript.
type ReadStats struct {
	Entries     int
	ParseErrors int
}

// EmitFunc receives decoded entries in source order.
type EmitFunc func(model.Entry)

// Adapter discovers and decodes one agent's on-disk transcripts into
// canonical entries. Implementations are stateless and safe for concurrent
// use; all per-file state lives inside Read.
type Adapter interface {
	Agent() model.Agent
	// DefaultRoot returns the log root used when none is configured.
	DefaultRoot(home string) string
	// Discover lists session files under root. A missing root is not an
	// error: it yields no files.
	Discover(root string) ([]DiscoveredFile, error)
	// Read decodes df, calling emit for every entry. Malformed records are
	// counted in ReadStats.ParseErrors and skipped; the returned error is
	// reserved for failures that make the whole file unreadable.
	Read(df DiscoveredFile, emit EmitFunc) (ReadStats, error)
}

// Options tunes adapter construction.
type Options struct {
	IncludeSubagents bool
}

// ErrUnknownAgent is returned by New for agents without an adapter.
var ErrUnknownAgent = errors.New("unknown agent")

// New returns the adapter for agent.
func New(agent model.Agent, opts Options) (Adapter, error) {
	switch agent {
	case model.AgentClaude:
		return &Claude{IncludeSubagents: opts.IncludeSubagents}, nil
	case model.AgentCodex:
		return Codex{}, nil
	case model.AgentCline:
		return Cline{}, nil
	case model.AgentCopilot:
		return Copilot{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAgent, agent)
}

// Agents lists every agent with an adapter, in a stable order.
func Agents() []model.Agent {
	return []model.Agent{model.AgentClaude, model.AgentCodex, model.AgentCline, model.AgentCopilot}
}

// rootExists mirrors the scanner's tolerance for absent log roots.
func rootExists(root string) (bool, error) {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

// sortFiles orders discovery output so runs are reproducible.
func sortFiles(files []DiscoveredFile) {
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
}

// CountProjects returns the number of distinct project folders in files.
func CountProjects(files []DiscoveredFile) int {
	seen := make(map[string]struct{})
	for _, f := range files {
		key := f.ProjectDir
		if key == "" {
			key = f.ProjectPath
		}
		if key == "" {
			key = filepath.Dir(f.Path)
		}
		seen[key] = struct{}{}
	}
	return len(seen)
}
