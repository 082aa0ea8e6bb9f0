package source

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/theirongolddev/smriti/internal/model"
)

const clineHistoryFile = "api_conversation_history.json"

// Cline reads the Cline VS Code extension's task histories:
// <root>/<task-id>/api_conversation_history.json, one JSON array of
// Anthropic-style messages per task.
type Cline struct{}

// Agent implements Adapter.
func (Cline) Agent() model.Agent { return model.AgentCline }

// DefaultRoot implements Adapter.
func (Cline) DefaultRoot(home string) string {
	return filepath.Join(home, ".config", "Code", "User", "globalStorage", "saoudrizwan.claude-dev", "tasks")
}

// Discover implements Adapter.
func (Cline) Discover(root string) ([]DiscoveredFile, error) {
	ok, err := rootExists(root)
	if err != nil || !ok {
		return nil, err
	}
	dirs, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var files []DiscoveredFile
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		path := filepath.Join(root, d.Name(), clineHistoryFile)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		files = append(files, DiscoveredFile{
			Agent:     model.AgentCline,
			Path:      path,
			SessionID: d.Name(),
		})
	}
	sortFiles(files)
	return files, nil
}

type clineMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
	TS      int64           `json:"ts,omitempty"`
}

// clineTool describes how a Cline tool maps onto the canonical vocabulary.
type clineTool struct {
	canonical string
	rename    map[string]string
}

var clineTools = map[string]clineTool{
	"read_file":                  {"Read", map[string]string{"path": "file_path"}},
	"write_to_file":              {"Write", map[string]string{"path": "file_path"}},
	"replace_in_file":            {"Edit", map[string]string{"path": "file_path"}},
	"execute_command":            {"Bash", nil},
	"search_files":               {"Grep", map[string]string{"regex": "pattern"}},
	"list_files":                 {"Glob", nil},
	"web_fetch":                  {"WebFetch", nil},
	"use_mcp_tool":               {"use_mcp_tool", nil},
	"access_mcp_resource":        {"access_mcp_resource", nil},
	"list_code_definition_names": {"list_code_definition_names", nil},
	"browser_action":             {"browser_action", nil},
	"new_task":                   {"new_task", nil},
}

// clineReplies are tools whose parameter is the assistant's actual reply.
var clineReplies = map[string]string{
	"attempt_completion":    "result",
	"ask_followup_question": "question",
	"plan_mode_respond":     "response",
}

var clineCwd = regexp.MustCompile(`# Current Working Directory \(([^)]+)\)`)

// clineState tracks pending XML tool calls so the next user turn's
// "[tool] Result:" text pairs with them.
type clineState struct {
	session string
	cwd     string
	calls   int
	pending []string
}

// Read implements Adapter.
func (Cline) Read(df DiscoveredFile, emit EmitFunc) (ReadStats, error) {
	var stats ReadStats

	data, err := os.ReadFile(df.Path)
	if err != nil {
		return stats, err
	}
	var msgs []json.RawMessage
	if err := json.Unmarshal(data, &msgs); err != nil {
		return stats, fmt.Errorf("decoding %s: %w", df.Path, err)
	}

	fallback := fileTime(df.Path)
	st := &clineState{session: df.SessionID}

	for i, raw := range msgs {
		var m clineMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			stats.ParseErrors++
			continue
		}
		frags, ok := decodeContent(m.Content)
		if !ok {
			stats.ParseErrors++
			continue
		}

		e := model.Entry{
			Kind:       model.EntryMessage,
			Agent:      model.AgentCline,
			SessionID:  df.SessionID,
			Timestamp:  millisTime(m.TS),
			SourceLine: i + 1,
		}
		if e.Timestamp.IsZero() {
			e.Timestamp = fallback
		}

		switch m.Role {
		case "user":
			e.Role = model.RoleUser
			e.Fragments = st.userFragments(frags)
		case "assistant":
			e.Role = model.RoleAssistant
			e.Fragments = st.assistantFragments(frags)
		default:
			e.Kind = model.EntryIgnored
		}
		e.Meta.Cwd = st.cwd

		stats.Entries++
		emit(e)
	}
	return stats, nil
}

func (st *clineState) userFragments(in []model.Fragment) []model.Fragment {
	var out []model.Fragment
	for _, f := range in {
		if f.Kind != model.FragText {
			out = append(out, f)
			continue
		}
		if m := clineCwd.FindStringSubmatch(f.Text); m != nil {
			st.cwd = strings.TrimSpace(m[1])
		}
		text := stripTagged(f.Text, "environment_details")
		text = strings.NewReplacer("<task>", "", "</task>", "", "<feedback>", "", "</feedback>", "").Replace(text)
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		if header, body, ok := clineResult(text); ok {
			id := st.popCall()
			out = append(out, model.Fragment{
				Kind:    model.FragToolResult,
				ToolID:  id,
				Output:  body,
				IsError: strings.Contains(header, "ERROR") || strings.HasPrefix(body, "The tool execution failed"),
			})
			continue
		}
		out = append(out, model.Fragment{Kind: model.FragText, Text: text})
	}
	return out
}

// clineResult splits "[read_file for 'a.go'] Result:\n<body>".
func clineResult(text string) (header, body string, ok bool) {
	if !strings.HasPrefix(text, "[") {
		return "", "", false
	}
	end := strings.Index(text, "] Result:")
	if end < 0 || strings.Contains(text[:end], "\n") {
		return "", "", false
	}
	return text[1:end], strings.TrimSpace(text[end+len("] Result:"):]), true
}

func (st *clineState) assistantFragments(in []model.Fragment) []model.Fragment {
	var out []model.Fragment
	for _, f := range in {
		switch f.Kind {
		case model.FragText:
			out = append(out, st.splitXMLTools(f.Text)...)
		case model.FragToolUse:
			f.ToolName, f.Input = mapClineTool(f.ToolName, f.Input)
			out = append(out, f)
		default:
			out = append(out, f)
		}
	}
	return out
}

// splitXMLTools separates prose from the XML tool invocations Cline's
// prompt format embeds in assistant text.
func (st *clineState) splitXMLTools(text string) []model.Fragment {
	var out []model.Fragment
	addText := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, model.Fragment{Kind: model.FragText, Text: s})
		}
	}

	for {
		name, start := nextXMLTool(text)
		if start < 0 {
			addText(text)
			return out
		}
		closing := "</" + name + ">"
		bodyStart := start + len(name) + 2
		end := strings.Index(text[bodyStart:], closing)
		if end < 0 {
			addText(text)
			return out
		}
		addText(text[:start])
		params := xmlParams(text[bodyStart : bodyStart+end])
		text = text[bodyStart+end+len(closing):]

		if key, ok := clineReplies[name]; ok {
			if s, _ := params[key].(string); s != "" {
				addText(s)
			}
			continue
		}
		st.calls++
		id := st.session + "-call-" + strconv.Itoa(st.calls)
		st.pending = append(st.pending, id)
		tool, input := mapClineTool(name, params)
		out = append(out, model.Fragment{Kind: model.FragToolUse, ToolID: id, ToolName: tool, Input: input})
	}
}

func (st *clineState) popCall() string {
	if len(st.pending) == 0 {
		return ""
	}
	id := st.pending[0]
	st.pending = st.pending[1:]
	return id
}

// nextXMLTool finds the earliest opening tag of a known tool.
func nextXMLTool(text string) (string, int) {
	best, at := "", -1
	check := func(name string) {
		if i := strings.Index(text, "<"+name+">"); i >= 0 && (at < 0 || i < at) {
			best, at = name, i
		}
	}
	for name := range clineTools {
		check(name)
	}
	for name := range clineReplies {
		check(name)
	}
	return best, at
}

// xmlParams reads <key>value</key> pairs from a tool body.
func xmlParams(body string) map[string]any {
	params := map[string]any{}
	for {
		open := strings.IndexByte(body, '<')
		if open < 0 {
			return params
		}
		gt := strings.IndexByte(body[open:], '>')
		if gt < 0 {
			return params
		}
		key := body[open+1 : open+gt]
		if key == "" || strings.ContainsAny(key, " /") {
			body = body[open+gt+1:]
			continue
		}
		rest := body[open+gt+1:]
		end := strings.Index(rest, "</"+key+">")
		if end < 0 {
			return params
		}
		params[key] = strings.Trim(rest[:end], "\n")
		body = rest[end+len(key)+3:]
	}
}

func mapClineTool(name string, input map[string]any) (string, map[string]any) {
	t, ok := clineTools[name]
	if !ok {
		return name, input
	}
	if input == nil {
		input = map[string]any{}
	}
	for from, to := range t.rename {
		renameKey(input, from, to)
	}
	return t.canonical, input
}
