package source

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/theirongolddev/smriti/internal/model"
)

// writeFile creates path (and parents) under dir with the given content.
func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

// writeSession creates a temp JSONL file and returns a DiscoveredFile for it.
func writeSession(t *testing.T, lines ...string) DiscoveredFile {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.jsonl")
	writeFile(t, path, strings.Join(lines, "\n")+"\n")
	return DiscoveredFile{
		Agent:     model.AgentClaude,
		Path:      path,
		SessionID: "test-session",
	}
}

// collect runs an adapter over df and gathers what it emits.
func collect(t *testing.T, a Adapter, df DiscoveredFile) ([]model.Entry, ReadStats) {
	t.Helper()
	var entries []model.Entry
	stats, err := a.Read(df, func(e model.Entry) { entries = append(entries, e) })
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	return entries, stats
}

func TestExtractTopLevelType(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"user", `{"type":"user","foo":"bar"}`, "user"},
		{"assistant", `{"type":"assistant","message":{}}`, "assistant"},
		{"system", `{"type": "system","subtype":"turn_duration"}`, "system"},
		{"nested type ignored", `{"data":{"type":"progress"},"type":"user"}`, "user"},
		{"type as value", `{"kind":"type","type":"summary"}`, "summary"},
		{"other type", `{"type":"progress","data":{}}`, "progress"},
		{"no type field", `{"message":"hello"}`, ""},
		{"empty", `{}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractTopLevelType([]byte(tt.input))
			if got != tt.want {
				t.Errorf("extractTopLevelType(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// FuzzClaudeType tests that the byte-level type scan never panics on
// arbitrary input, which is important since it processes untrusted files.
func FuzzClaudeType(f *testing.F) {
	f.Add([]byte(`{"type":"user","timestamp":"2025-06-01T10:00:00Z"}`))
	f.Add([]byte(`{"type":"assistant","message":{"id":"x","usage":{}}}`))
	f.Add([]byte(`{"type":"system","subtype":"turn_duration","durationMs":5000}`))
	f.Add([]byte(`{"data":{"type":"nested"},"type":"user"}`))
	f.Add([]byte(`not json`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`{"type":null}`))
	f.Add([]byte(`{"type":123}`))
	f.Add([]byte(``))
	f.Add([]byte(`{"type":"user`)) // unterminated string

	f.Fuzz(func(t *testing.T, data []byte) {
		switch result := claudeType(data); result {
		case "", "user", "assistant", "system", "summary", "pr-link":
		default:
			t.Errorf("unexpected type %q from input %q", result, data)
		}
	})
}

func TestScanLines_SkipsBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.jsonl")
	writeFile(t, path, "a\n\n  \nb\n")

	var got []int
	if err := scanLines(path, func(n int, _ []byte) { got = append(got, n) }); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 4 {
		t.Errorf("line numbers = %v, want [1 4]", got)
	}
}

func TestStripTagged(t *testing.T) {
	in := "keep <environment_details>drop\nme</environment_details> this"
	if got := stripTagged(in, "environment_details"); got != "keep  this" {
		t.Errorf("stripTagged = %q", got)
	}
	if got := stripTagged("a <x>unterminated", "x"); got != "a " {
		t.Errorf("unterminated = %q", got)
	}
}

func TestNew(t *testing.T) {
	for _, agent := range Agents() {
		a, err := New(agent, Options{})
		if err != nil {
			t.Fatalf("New(%q): %v", agent, err)
		}
		if a.Agent() != agent {
			t.Errorf("adapter for %q reports %q", agent, a.Agent())
		}
		if a.DefaultRoot("/home/u") == "" {
			t.Errorf("no default root for %q", agent)
		}
	}
	if _, err := New("aider", Options{}); err == nil {
		t.Error("expected error for unknown agent")
	}
}

func TestDiscover_MissingRoot(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")
	for _, agent := range Agents() {
		a, _ := New(agent, Options{})
		files, err := a.Discover(missing)
		if err != nil || len(files) != 0 {
			t.Errorf("%s: Discover(missing) = %v, %v", agent, files, err)
		}
	}
}
