package source

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/theirongolddev/smriti/internal/model"
)

func writeClineTask(t *testing.T, root, task string, msgs []map[string]any) DiscoveredFile {
	t.Helper()
	data, err := json.Marshal(msgs)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(root, task, clineHistoryFile)
	writeFile(t, path, string(data))
	return DiscoveredFile{Agent: model.AgentCline, Path: path, SessionID: task}
}

func TestClineDiscover(t *testing.T) {
	root := t.TempDir()
	writeClineTask(t, root, "1718000000000", nil)
	writeFile(t, filepath.Join(root, "1718000000001", "ui_messages.json"), "[]")

	files, err := Cline{}.Discover(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].SessionID != "1718000000000" {
		t.Errorf("files = %+v", files)
	}
}

func TestClineRead_XMLTools(t *testing.T) {
	df := writeClineTask(t, t.TempDir(), "task1", []map[string]any{
		{"role": "user", "ts": 1718000000000, "content": []map[string]any{
			{"type": "text", "text": "<task>\nFix the login bug\n</task>"},
			{"type": "text", "text": "<environment_details>\n# Current Working Directory (/home/u/web) Files\nsrc/\n</environment_details>"},
		}},
		{"role": "assistant", "content": []map[string]any{
			{"type": "text", "text": "Let me read the file.\n\n<read_file>\n<path>src/login.ts</path>\n</read_file>"},
		}},
		{"role": "user", "content": []map[string]any{
			{"type": "text", "text": "[read_file for 'src/login.ts'] Result:\nexport const x = 1"},
		}},
		{"role": "assistant", "content": []map[string]any{
			{"type": "text", "text": "<execute_command>\n<command>npm test</command>\n<requires_approval>false</requires_approval>\n</execute_command>"},
		}},
		{"role": "user", "content": []map[string]any{
			{"type": "text", "text": "[execute_command for 'npm test'] Result:\nThe tool execution failed with the following error: exit 1"},
		}},
		{"role": "assistant", "content": []map[string]any{
			{"type": "text", "text": "<attempt_completion>\n<result>Fixed the login check.</result>\n</attempt_completion>"},
		}},
	})

	entries, stats := collect(t, Cline{}, df)
	if stats.ParseErrors != 0 || len(entries) != 6 {
		t.Fatalf("entries = %d, parse errors = %d", len(entries), stats.ParseErrors)
	}

	first := entries[0]
	if diff := cmp.Diff([]model.Fragment{{Kind: model.FragText, Text: "Fix the login bug"}}, first.Fragments); diff != "" {
		t.Errorf("task text (-want +got):\n%s", diff)
	}
	if first.Meta.Cwd != "/home/u/web" {
		t.Errorf("Cwd = %q", first.Meta.Cwd)
	}
	if first.Timestamp.UnixMilli() != 1718000000000 {
		t.Errorf("Timestamp = %v", first.Timestamp)
	}

	read := entries[1].Fragments
	want := []model.Fragment{
		{Kind: model.FragText, Text: "Let me read the file."},
		{Kind: model.FragToolUse, ToolID: "task1-call-1", ToolName: "Read", Input: map[string]any{"file_path": "src/login.ts"}},
	}
	if diff := cmp.Diff(want, read); diff != "" {
		t.Errorf("read call (-want +got):\n%s", diff)
	}

	res := entries[2].Fragments[0]
	if res.Kind != model.FragToolResult || res.ToolID != "task1-call-1" || res.IsError || res.Output != "export const x = 1" {
		t.Errorf("read result = %+v", res)
	}

	cmd := entries[3].Fragments[0]
	if cmd.ToolName != "Bash" || cmd.Input["command"] != "npm test" {
		t.Errorf("command = %+v", cmd)
	}
	if res := entries[4].Fragments[0]; !res.IsError || res.ToolID != "task1-call-2" {
		t.Errorf("failed result = %+v", res)
	}

	if diff := cmp.Diff([]model.Fragment{{Kind: model.FragText, Text: "Fixed the login check."}}, entries[5].Fragments); diff != "" {
		t.Errorf("completion (-want +got):\n%s", diff)
	}
}

func TestClineRead_NativeToolUse(t *testing.T) {
	df := writeClineTask(t, t.TempDir(), "task2", []map[string]any{
		{"role": "assistant", "content": []map[string]any{
			{"type": "tool_use", "id": "toolu_9", "name": "search_files", "input": map[string]any{"path": "src", "regex": "TODO"}},
		}},
	})
	entries, _ := collect(t, Cline{}, df)
	f := entries[0].Fragments[0]
	if f.ToolName != "Grep" || f.Input["pattern"] != "TODO" || f.Input["path"] != "src" {
		t.Errorf("fragment = %+v", f)
	}
}

func TestClineRead_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t", clineHistoryFile)
	writeFile(t, path, "{not an array")
	_, err := Cline{}.Read(DiscoveredFile{Path: path, SessionID: "t"}, func(model.Entry) {})
	if err == nil {
		t.Error("expected error for undecodable history")
	}
}

func TestXMLParams(t *testing.T) {
	got := xmlParams("\n<path>a.go</path>\n<diff>\n<<<<<<< SEARCH\nx\n</diff>\n")
	want := map[string]any{"path": "a.go", "diff": "<<<<<<< SEARCH\nx"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("xmlParams (-want +got):\n%s", diff)
	}
}
