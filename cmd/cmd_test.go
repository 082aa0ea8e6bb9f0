package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zapcore"

	"github.com/theirongolddev/smriti/internal/config"
	"github.com/theirongolddev/smriti/internal/model"
	"github.com/theirongolddev/smriti/internal/source"
	"github.com/theirongolddev/smriti/internal/store"
)

func TestNewLogger(t *testing.T) {
	if _, err := newLogger(config.LoggingConfig{Level: "warn", Format: "json"}, false); err != nil {
		t.Fatalf("json logger: %v", err)
	}
	l, err := newLogger(config.LoggingConfig{Level: "error"}, true)
	if err != nil {
		t.Fatal(err)
	}
	if !l.Core().Enabled(zapcore.DebugLevel) {
		t.Error("--verbose should enable debug logging")
	}
	if _, err := newLogger(config.LoggingConfig{Level: "loud"}, false); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestSelectAgents(t *testing.T) {
	cfg = config.DefaultConfig()
	cfg.Agents["cline"] = config.AgentConfig{Enabled: false}

	got, err := selectAgents(nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []model.Agent{model.AgentClaude, model.AgentCodex, model.AgentCopilot}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("default agents (-want +got):\n%s", diff)
	}

	got, err = selectAgents([]string{"Codex"})
	if err != nil || len(got) != 1 || got[0] != model.AgentCodex {
		t.Errorf("selectAgents(Codex) = %v, %v", got, err)
	}

	if _, err := selectAgents([]string{"cursor"}); !errors.Is(err, source.ErrUnknownAgent) {
		t.Errorf("selectAgents(cursor) err = %v", err)
	}
}

func TestIngestOptions(t *testing.T) {
	cfg = config.DefaultConfig()
	cfg.General.Workers = 3
	cfg.General.ProjectsRoot = "/work"
	cfg.Agents["codex"] = config.AgentConfig{Enabled: true, LogRoot: "/logs/codex"}
	flagWorkers, flagNoSubagents = 0, true
	t.Cleanup(func() { flagWorkers, flagNoSubagents = 0, false })

	opts := ingestOptions([]model.Agent{model.AgentCodex})
	if opts.Workers != 3 || opts.ProjectsRoot != "/work" || opts.IncludeSubagents {
		t.Errorf("opts = %+v", opts)
	}
	if opts.Roots[model.AgentCodex] != "/logs/codex" {
		t.Errorf("roots = %v", opts.Roots)
	}

	flagWorkers = 8
	if got := ingestOptions(nil).Workers; got != 8 {
		t.Errorf("--workers ignored: %d", got)
	}
}

func TestIngestCommand(t *testing.T) {
	logs := t.TempDir()
	project := filepath.Join(logs, "-work-api")
	if err := os.MkdirAll(project, 0o755); err != nil {
		t.Fatal(err)
	}
	transcript := `{"type":"user","uuid":"u1","sessionId":"s1","timestamp":"2025-06-01T10:00:00Z","message":{"role":"user","content":"add a health check"}}
{"type":"assistant","uuid":"a1","requestId":"r1","sessionId":"s1","timestamp":"2025-06-01T10:00:05Z","message":{"role":"assistant","model":"claude-sonnet-4","content":[{"type":"text","text":"Done."}],"usage":{"input_tokens":10,"output_tokens":4}}}
`
	if err := os.WriteFile(filepath.Join(project, "s1.jsonl"), []byte(transcript), 0o600); err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	c := config.DefaultConfig()
	c.Agents["claude"] = config.AgentConfig{Enabled: true, LogRoot: logs}
	if err := config.SaveTo(cfgPath, c); err != nil {
		t.Fatal(err)
	}
	dbPath := filepath.Join(dir, "smriti.db")

	rootCmd.SetArgs([]string{"ingest", "claude", "--config", cfgPath, "--db", dbPath, "--quiet"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	db, err := store.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	sessions, err := db.ListSessions(context.Background(), store.SessionFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 || sessions[0].SessionID != "s1" || sessions[0].MessageCount != 2 {
		t.Fatalf("sessions = %+v", sessions)
	}
	if sessions[0].Title != "add a health check" {
		t.Errorf("title = %q", sessions[0].Title)
	}
	if sessions[0].Cost.InputTokens != 10 || sessions[0].Cost.Model == "" {
		t.Errorf("cost = %+v", sessions[0].Cost)
	}
}

func TestWatchState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch.pid")
	if err := ensureNotRunning(path); err != nil {
		t.Fatalf("no pid file: %v", err)
	}

	if err := writeState(path, watchState{PID: os.Getpid(), Addr: "127.0.0.1:0"}); err != nil {
		t.Fatal(err)
	}
	st, err := readState(path)
	if err != nil || st.PID != os.Getpid() || st.Addr != "127.0.0.1:0" {
		t.Fatalf("readState = %+v, %v", st, err)
	}
	if err := ensureNotRunning(path); err == nil {
		t.Error("expected error while this process owns the pid file")
	}

	if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := ensureNotRunning(path); err != nil {
		t.Errorf("invalid pid file should be cleared: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("invalid pid file not removed")
	}
}
