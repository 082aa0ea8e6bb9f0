// Package projectpath reverses the lossy directory-name encoding agents use
// for per-project log folders and derives short project identifiers.
//
// Claude Code stores a session for /home/u/my-app under a folder named
// "-home-u-my-app": every "/" (and ".") became "-", so the hyphen inside
// "my-app" is indistinguishable from a separator. Resolve recovers the
// original path by probing which candidate directories exist.
package projectpath

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Unknown is returned by DeriveProjectID when no name can be derived.
const Unknown = "unknown"

// ExistsFunc reports whether a candidate absolute path exists.
type ExistsFunc func(path string) bool

// DirExists is the filesystem-backed ExistsFunc.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Encode applies the agent's folder-name encoding to an absolute path.
func Encode(path string) string {
	return strings.NewReplacer("/", "-", ".", "-").Replace(path)
}

// Resolve reconstructs the absolute path behind an encoded folder name.
//
// Tokens are consumed left to right. At each position the longest run of
// tokens whose hyphen-joined (or dot-joined) form exists under the path
// built so far becomes the next segment; if none exists the single token is
// used as-is. An empty token marks a dot-prefixed segment such as ".config".
// Resolve never fails: unresolvable input yields a best-effort path.
func Resolve(encoded string, exists ExistsFunc) string {
	if exists == nil {
		exists = DirExists
	}
	tokens := strings.Split(strings.TrimPrefix(encoded, "-"), "-")
	if encoded == "" || (len(tokens) == 1 && tokens[0] == "") {
		return "/"
	}

	var segments []string
	for i := 0; i < len(tokens); {
		prefix := "/" + strings.Join(segments, "/")
		seg, next := longestMatch(tokens, i, prefix, exists)
		if seg != "" {
			segments = append(segments, seg)
		}
		i = next
	}
	return "/" + strings.Join(segments, "/")
}

// longestMatch picks the segment starting at tokens[i] and returns it with
// the index of the first unconsumed token.
func longestMatch(tokens []string, i int, prefix string, exists ExistsFunc) (string, int) {
	for j := len(tokens); j > i; j-- {
		for _, cand := range candidates(tokens[i:j]) {
			if exists(filepath.Join(prefix, cand)) {
				return cand, j
			}
		}
	}

	if tokens[i] == "" {
		if i+1 < len(tokens) && tokens[i+1] != "" {
			return "." + tokens[i+1], i + 2
		}
		return "", i + 1
	}
	return tokens[i], i + 1
}

// candidates lists the spellings a run of tokens may stand for, most
// literal first.
func candidates(run []string) []string {
	if len(run) == 1 {
		if run[0] == "" {
			return nil
		}
		return run
	}
	hyphen := strings.Join(run, "-")
	out := []string{hyphen}
	if run[0] == "" {
		out = append(out, "."+strings.Join(run[1:], "-"))
	}
	if dotted := strings.Join(run, "."); dotted != hyphen && !strings.Contains(dotted, "..") {
		out = append(out, dotted)
	}
	// "." would join back onto the prefix itself.
	return slices.DeleteFunc(out, func(c string) bool { return c == "." })
}

// DeriveProjectID names a project relative to the configured projects
// root: the root's own base name when the path is the root, the remainder
// when the path is nested under it, and the path's base name otherwise.
func DeriveProjectID(realPath, projectsRoot string) string {
	if realPath == "" {
		return Unknown
	}
	p := filepath.Clean(realPath)

	if projectsRoot != "" {
		root := filepath.Clean(projectsRoot)
		if p == root {
			return baseOrUnknown(root)
		}
		if rel, ok := strings.CutPrefix(p, root+string(filepath.Separator)); ok && rel != "" {
			return filepath.ToSlash(rel)
		}
	}
	return baseOrUnknown(p)
}

func baseOrUnknown(p string) string {
	b := filepath.Base(p)
	if b == "" || b == "." || b == string(filepath.Separator) {
		return Unknown
	}
	return b
}
