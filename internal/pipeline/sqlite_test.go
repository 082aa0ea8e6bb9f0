package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/theirongolddev/smriti/internal/model"
	"github.com/theirongolddev/smriti/internal/store"
)

func TestIngest_SQLiteStore(t *testing.T) {
	root := t.TempDir()
	writeClaude(t, root, "-work-auth-service", "s1", userFix, assistRead,
		`{"type":"system","subtype":"turn_duration","durationMs":5000,"uuid":"e1","timestamp":"2025-06-01T10:00:06Z"}`)

	db, err := store.Open(filepath.Join(t.TempDir(), "smriti.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	in := NewIngester(db, db)
	res, err := in.Ingest(ctx, model.AgentClaude, claudeOpts(root))
	if err != nil {
		t.Fatal(err)
	}
	if res.SessionsIngested != 1 || res.MessagesIngested != 3 {
		t.Fatalf("result = %+v", res)
	}

	ops, err := db.FileOperations(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 1 || ops[0].Path != "/src/auth.ts" || ops[0].Project != "auth-service" {
		t.Errorf("file operations = %+v", ops)
	}

	msgs, err := db.Messages(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 || msgs[2].Role != model.RoleSystem {
		t.Fatalf("messages = %+v", msgs)
	}
	if ev, ok := msgs[2].Blocks[0].(model.SystemEventBlock); !ok || ev.DurationMs != 5000 {
		t.Errorf("system event = %#v", msgs[2].Blocks[0])
	}

	cost, err := db.SessionCost(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if cost.InputTokens != 100 || cost.OutputTokens != 50 || cost.DurationMs != 5000 {
		t.Errorf("cost = %+v", cost)
	}

	again, err := in.Ingest(ctx, model.AgentClaude, claudeOpts(root))
	if err != nil {
		t.Fatal(err)
	}
	if again.Skipped != 1 || again.MessagesIngested != 0 {
		t.Errorf("second run = %+v", again)
	}
	if cost2, _ := db.SessionCost(ctx, "s1"); cost2 != cost {
		t.Errorf("cost changed on re-run: %+v -> %+v", cost, cost2)
	}
}
