package classify

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/theirongolddev/smriti/internal/model"
)

func toolUse(name string, input map[string]any) model.Fragment {
	return model.Fragment{Kind: model.FragToolUse, ToolID: "toolu_1", ToolName: name, Input: input}
}

func kinds(blocks []model.Block) []model.BlockKind {
	out := make([]model.BlockKind, len(blocks))
	for i, b := range blocks {
		out[i] = b.Kind()
	}
	return out
}

func TestClassify_ToolMapping(t *testing.T) {
	c := New(nil)

	tests := []struct {
		name  string
		frag  model.Fragment
		kinds []model.BlockKind
	}{
		{"read", toolUse("Read", map[string]any{"file_path": "/src/auth.ts"}),
			[]model.BlockKind{model.KindToolCall, model.KindFileOperation}},
		{"write", toolUse("Write", map[string]any{"file_path": "/a.go", "content": "package a"}),
			[]model.BlockKind{model.KindToolCall, model.KindFileOperation}},
		{"edit", toolUse("Edit", map[string]any{"file_path": "/a.go", "old_string": "x", "new_string": "y"}),
			[]model.BlockKind{model.KindToolCall, model.KindFileOperation}},
		{"glob", toolUse("Glob", map[string]any{"pattern": "**/*.go"}),
			[]model.BlockKind{model.KindToolCall, model.KindFileOperation, model.KindSearch}},
		{"grep", toolUse("Grep", map[string]any{"pattern": "TODO", "path": "/src"}),
			[]model.BlockKind{model.KindToolCall, model.KindSearch}},
		{"bash", toolUse("Bash", map[string]any{"command": "go test ./..."}),
			[]model.BlockKind{model.KindToolCall, model.KindCommand}},
		{"bash git", toolUse("Bash", map[string]any{"command": `git commit -m "x"`}),
			[]model.BlockKind{model.KindToolCall, model.KindCommand, model.KindGit}},
		{"web fetch", toolUse("WebFetch", map[string]any{"url": "https://go.dev"}),
			[]model.BlockKind{model.KindToolCall, model.KindSearch}},
		{"web search", toolUse("WebSearch", map[string]any{"query": "zap logger"}),
			[]model.BlockKind{model.KindToolCall, model.KindSearch}},
		{"enter plan", toolUse("EnterPlanMode", nil),
			[]model.BlockKind{model.KindToolCall, model.KindConversationControl}},
		{"exit plan", toolUse("ExitPlanMode", map[string]any{"plan": "do it"}),
			[]model.BlockKind{model.KindToolCall, model.KindConversationControl}},
		{"skill", toolUse("Skill", map[string]any{"skill": "commit"}),
			[]model.BlockKind{model.KindToolCall, model.KindConversationControl}},
		{"unrecognized tool", toolUse("TodoWrite", map[string]any{"todos": []any{"a"}}),
			[]model.BlockKind{model.KindToolCall}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := kinds(c.Classify(tt.frag))
			if diff := cmp.Diff(tt.kinds, got); diff != "" {
				t.Errorf("block kinds mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClassify_ReadProducesPath(t *testing.T) {
	c := New(nil)
	blocks := c.Classify(toolUse("Read", map[string]any{"file_path": "/src/auth.ts"}))

	call := blocks[0].(model.ToolCallBlock)
	if call.ToolName != "Read" || call.ToolID != "toolu_1" {
		t.Errorf("ToolCall = %+v", call)
	}
	op := blocks[1].(model.FileOperationBlock)
	if op.Operation != model.FileRead || op.Path != "/src/auth.ts" {
		t.Errorf("FileOperation = %+v", op)
	}
}

func TestClassify_DeleteProducesFileOperation(t *testing.T) {
	c := New(nil)
	blocks := c.Classify(toolUse("Delete", map[string]any{"file_path": "old.go", "patch": "*** Delete File: old.go"}))
	if len(blocks) != 2 {
		t.Fatalf("blocks = %d, want 2", len(blocks))
	}
	want := model.FileOperationBlock{Operation: model.FileDelete, Path: "old.go"}
	if diff := cmp.Diff(want, blocks[1]); diff != "" {
		t.Errorf("FileOperation mismatch (-want +got):\n%s", diff)
	}
}

func TestClassify_EditDiff(t *testing.T) {
	c := New(nil)
	blocks := c.Classify(toolUse("Edit", map[string]any{
		"file_path": "/a.go", "old_string": "return nil", "new_string": "return err",
	}))
	op := blocks[1].(model.FileOperationBlock)
	if op.Diff != "- return nil\n+ return err" {
		t.Errorf("Diff = %q", op.Diff)
	}
}

func TestClassify_BashFields(t *testing.T) {
	c := New(nil)
	blocks := c.Classify(toolUse("Bash", map[string]any{
		"command":           "npm run dev",
		"description":       "Start dev server",
		"run_in_background": true,
	}))
	cmd := blocks[1].(model.CommandBlock)
	want := model.CommandBlock{Command: "npm run dev", Description: "Start dev server", Background: true}
	if diff := cmp.Diff(want, cmd); diff != "" {
		t.Errorf("CommandBlock mismatch (-want +got):\n%s", diff)
	}
	if d := blocks[0].(model.ToolCallBlock).Description; d != "Start dev server" {
		t.Errorf("ToolCall description = %q", d)
	}
}

func TestClassify_ToolInputStringified(t *testing.T) {
	c := New(nil)
	blocks := c.Classify(toolUse("Grep", map[string]any{
		"pattern": "x", "-n": true, "head_limit": float64(20), "glob": nil,
		"paths": []any{"a", "b"},
	}))
	in := blocks[0].(model.ToolCallBlock).Input
	want := map[string]string{"pattern": "x", "-n": "true", "head_limit": "20", "paths": `["a","b"]`}
	if diff := cmp.Diff(want, in); diff != "" {
		t.Errorf("Input mismatch (-want +got):\n%s", diff)
	}
}

func TestClassify_ToolResult(t *testing.T) {
	c := New(nil)

	ok := c.Classify(model.Fragment{Kind: model.FragToolResult, ToolID: "t1", Output: "fine"})
	if diff := cmp.Diff([]model.Block{model.ToolResultBlock{ToolID: "t1", Success: true, Output: "fine"}}, ok); diff != "" {
		t.Errorf("success result mismatch (-want +got):\n%s", diff)
	}

	failed := c.Classify(model.Fragment{Kind: model.FragToolResult, ToolID: "t2", Output: "no such file", IsError: true})
	want := []model.Block{
		model.ToolResultBlock{ToolID: "t2", Success: false, Error: "no such file"},
		model.ErrorBlock{ErrorType: "tool_error", Message: "no such file", ToolID: "t2"},
	}
	if diff := cmp.Diff(want, failed); diff != "" {
		t.Errorf("error result mismatch (-want +got):\n%s", diff)
	}
}

func TestClassify_Limits(t *testing.T) {
	c := New(nil)

	res := c.Classify(model.Fragment{Kind: model.FragToolResult, Output: strings.Repeat("x", 3000)})
	out := res[0].(model.ToolResultBlock).Output
	if len(out) != model.LimitOutput+len(model.TruncationMarker) {
		t.Errorf("tool output len = %d", len(out))
	}

	th := c.Classify(model.Fragment{Kind: model.FragThinking, Text: strings.Repeat("t", model.LimitThinking+1)})
	if got := th[0].(model.ThinkingBlock).Thinking; !strings.HasSuffix(got, model.TruncationMarker) {
		t.Error("thinking not truncated")
	}

	w := c.Classify(toolUse("Write", map[string]any{"file_path": "/a", "content": strings.Repeat("c", model.LimitFileContent+5)}))
	if got := w[1].(model.FileOperationBlock).Content; len(got) != model.LimitFileContent+len(model.TruncationMarker) {
		t.Errorf("write content len = %d", len(got))
	}
}

func TestClassify_TextAndFallbacks(t *testing.T) {
	c := New(nil)

	if got := c.Classify(model.Fragment{Kind: model.FragText}); got != nil {
		t.Errorf("empty text = %v, want nil", got)
	}
	blank := c.Classify(model.Fragment{Kind: model.FragText, Text: "  \n"})
	if diff := cmp.Diff([]model.Block{model.TextBlock{Text: "  \n"}}, blank); diff != "" {
		t.Errorf("whitespace text mismatch (-want +got):\n%s", diff)
	}

	got := c.Classify(model.Fragment{Kind: model.FragUnknown, Raw: json.RawMessage(`{"type":"widget","v":1}`)})
	want := []model.Block{model.TextBlock{Text: `{"type":"widget","v":1}`}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unknown fallback mismatch (-want +got):\n%s", diff)
	}

	code := c.Classify(model.Fragment{Kind: model.FragCode, Language: "go", Text: "package main"})
	if diff := cmp.Diff([]model.Block{model.CodeBlock{Language: "go", Code: "package main"}}, code); diff != "" {
		t.Errorf("code mismatch (-want +got):\n%s", diff)
	}
}

func TestClassify_ImageFingerprint(t *testing.T) {
	c := New(nil)
	a := c.Classify(model.Fragment{Kind: model.FragImage, MediaType: "image/png", Data: "aGVsbG8="})
	b := c.Classify(model.Fragment{Kind: model.FragImage, MediaType: "image/png", Data: "aGVsbG8="})
	other := c.Classify(model.Fragment{Kind: model.FragImage, MediaType: "image/png", Data: "d29ybGQ="})

	ia, ib, io := a[0].(model.ImageBlock), b[0].(model.ImageBlock), other[0].(model.ImageBlock)
	if ia.Fingerprint != ib.Fingerprint {
		t.Error("same data produced different fingerprints")
	}
	if ia.Fingerprint == io.Fingerprint {
		t.Error("different data produced the same fingerprint")
	}
	if ia.SizeBytes != 8 || ia.MediaType != "image/png" {
		t.Errorf("ImageBlock = %+v", ia)
	}
}

func TestIsKnown(t *testing.T) {
	if !IsKnown(model.FragToolUse) {
		t.Error("tool_use should be known")
	}
	if IsKnown(model.FragUnknown) {
		t.Error("unknown should not be known")
	}
}
