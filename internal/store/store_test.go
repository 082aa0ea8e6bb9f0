package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/theirongolddev/smriti/internal/model"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sub", "smriti.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAddMessage_Idempotent(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	opts := model.MessageOptions{
		Agent:     model.AgentClaude,
		Sequence:  0,
		Timestamp: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		Metadata:  model.Metadata{Cwd: "/home/u/app", Model: "claude-sonnet-4"},
		Blocks: model.Blocks{
			model.TextBlock{Text: "hello"},
			model.FileOperationBlock{Operation: model.FileRead, Path: "/a.go"},
		},
	}

	first, err := s.AddMessage(ctx, "s1", model.RoleAssistant, "hello", opts)
	if err != nil {
		t.Fatal(err)
	}
	if !first.Created || first.ID != MessageHash("s1", 0, model.RoleAssistant, "hello") {
		t.Errorf("first = %+v", first)
	}

	again, err := s.AddMessage(ctx, "s1", model.RoleAssistant, "hello", opts)
	if err != nil {
		t.Fatal(err)
	}
	if again.Created || again.ID != first.ID {
		t.Errorf("again = %+v, want same id and Created=false", again)
	}

	msgs, err := s.Messages(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	if diff := cmp.Diff(opts.Blocks, msgs[0].Blocks); diff != "" {
		t.Errorf("blocks round trip (-want +got):\n%s", diff)
	}
	if msgs[0].Metadata.Cwd != "/home/u/app" || !msgs[0].Timestamp.Equal(opts.Timestamp) {
		t.Errorf("message = %+v", msgs[0])
	}
}

func TestMessageHash_Position(t *testing.T) {
	a := MessageHash("s1", 0, model.RoleUser, "ok")
	if a == MessageHash("s1", 1, model.RoleUser, "ok") {
		t.Error("different sequence should change the hash")
	}
	if a == MessageHash("s2", 0, model.RoleUser, "ok") {
		t.Error("different session should change the hash")
	}
	if a == MessageHash("s1", 0, model.RoleAssistant, "ok") {
		t.Error("different role should change the hash")
	}
}

func TestSessions_RegisterAndList(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	for _, r := range []model.SessionRecord{
		{SessionID: "a", Agent: model.AgentClaude, ProjectID: "web", FilePath: "/x/a.jsonl", StartTime: start, MessageCount: 3},
		{SessionID: "b", Agent: model.AgentCodex, ProjectID: "cli", FilePath: "/x/b.jsonl", StartTime: start.Add(time.Hour), MessageCount: 5},
		{SessionID: "c", Agent: model.AgentClaude, ProjectID: "web", FilePath: "/x/c.jsonl", StartTime: start.Add(2 * time.Hour), IsSubagent: true, ParentSession: "a"},
	} {
		if err := s.RegisterSession(ctx, r, model.SessionCost{}); err != nil {
			t.Fatal(err)
		}
	}

	ids, err := s.ExistingSessionIDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 3 {
		t.Errorf("ids = %v", ids)
	}

	claude, err := s.ListSessions(ctx, SessionFilter{Agent: model.AgentClaude})
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, ss := range claude {
		got = append(got, ss.SessionID)
	}
	if diff := cmp.Diff([]string{"c", "a"}, got); diff != "" {
		t.Errorf("claude sessions (-want +got):\n%s", diff)
	}
	if !claude[0].IsSubagent || claude[0].ParentSession != "a" {
		t.Errorf("subagent = %+v", claude[0])
	}

	limited, err := s.ListSessions(ctx, SessionFilter{Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 || limited[0].SessionID != "c" {
		t.Errorf("limited = %+v", limited)
	}

	counts, err := s.CountByAgent(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []AgentCount{
		{Agent: model.AgentClaude, Sessions: 2, Messages: 3},
		{Agent: model.AgentCodex, Sessions: 1, Messages: 5},
	}
	if diff := cmp.Diff(want, counts); diff != "" {
		t.Errorf("counts (-want +got):\n%s", diff)
	}
}

func TestUpsertSessionCost_Accumulates(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	if err := s.UpsertSessionCost(ctx, model.SessionCost{SessionID: "s1", Model: "claude-sonnet-4", InputTokens: 100, OutputTokens: 50, EstimatedCostUSD: 0.5}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertSessionCost(ctx, model.SessionCost{SessionID: "s1", InputTokens: 200, OutputTokens: 80, DurationMs: 1200, EstimatedCostUSD: 0.25}); err != nil {
		t.Fatal(err)
	}

	got, err := s.SessionCost(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	want := model.SessionCost{
		SessionID:        "s1",
		Model:            "claude-sonnet-4",
		InputTokens:      300,
		OutputTokens:     130,
		DurationMs:       1200,
		EstimatedCostUSD: 0.75,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("cost (-want +got):\n%s", diff)
	}

	none, err := s.SessionCost(ctx, "missing")
	if err != nil || !none.IsZero() {
		t.Errorf("missing session cost = %+v, %v", none, err)
	}
}

func TestRegisterSession_CostCommitsWithRegistration(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	rec := model.SessionRecord{SessionID: "s1", Agent: model.AgentClaude, ProjectID: "p", FilePath: "/f"}
	cost := model.SessionCost{SessionID: "s1", Model: "claude-sonnet-4", InputTokens: 100, OutputTokens: 50}

	if _, err := s.db.ExecContext(ctx, `CREATE TRIGGER reject_sessions BEFORE INSERT ON sessions
		BEGIN SELECT RAISE(ABORT, 'rejected'); END`); err != nil {
		t.Fatal(err)
	}
	if err := s.RegisterSession(ctx, rec, cost); err == nil {
		t.Fatal("expected registration to fail")
	}
	if got, _ := s.SessionCost(ctx, "s1"); !got.IsZero() {
		t.Fatalf("cost written by failed registration: %+v", got)
	}

	if _, err := s.db.ExecContext(ctx, `DROP TRIGGER reject_sessions`); err != nil {
		t.Fatal(err)
	}
	if err := s.RegisterSession(ctx, rec, cost); err != nil {
		t.Fatal(err)
	}
	got, err := s.SessionCost(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(cost, got); diff != "" {
		t.Errorf("cost after retry (-want +got):\n%s", diff)
	}
	ids, _ := s.ExistingSessionIDs(ctx)
	if _, ok := ids["s1"]; !ok {
		t.Error("session not registered on retry")
	}
}

func TestFacts_DedupByBlock(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	ref, err := s.AddMessage(ctx, "s1", model.RoleAssistant, "[edit] /a.go", model.MessageOptions{})
	if err != nil {
		t.Fatal(err)
	}
	key := model.FactKey{MessageID: ref.ID, SessionID: "s1", BlockIndex: 1}
	op := model.FileOperationFact{FactKey: key, Operation: model.FileEdit, Path: "/a.go", Project: "app"}

	for i := 0; i < 2; i++ {
		if err := s.InsertFileOperation(ctx, op); err != nil {
			t.Fatal(err)
		}
	}
	ok := true
	if err := s.InsertToolUsage(ctx, model.ToolUsage{FactKey: key, ToolName: "Edit", Success: &ok}); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertCommand(ctx, model.CommandFact{FactKey: key, Command: "git status", IsGit: true}); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertGitOperation(ctx, model.GitOperationFact{FactKey: key, Operation: model.GitStatus}); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertError(ctx, model.ErrorFact{FactKey: key, ErrorType: "tool_error", Message: "boom"}); err != nil {
		t.Fatal(err)
	}

	ops, err := s.FileOperations(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]model.FileOperationFact{op}, ops); diff != "" {
		t.Errorf("file operations (-want +got):\n%s", diff)
	}
}

func TestDeleteSession(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	if _, err := s.AddMessage(ctx, "s1", model.RoleUser, "hi", model.MessageOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := s.RegisterSession(ctx, model.SessionRecord{SessionID: "s1", Agent: model.AgentClaude, ProjectID: "p", FilePath: "/f"}, model.SessionCost{}); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteSession(ctx, "s1"); err != nil {
		t.Fatal(err)
	}

	ids, _ := s.ExistingSessionIDs(ctx)
	msgs, _ := s.Messages(ctx, "s1")
	if len(ids) != 0 || len(msgs) != 0 {
		t.Errorf("after delete: ids=%v messages=%d", ids, len(msgs))
	}
}
