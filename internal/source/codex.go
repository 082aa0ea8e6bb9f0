package source

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/theirongolddev/smriti/internal/model"
)

// Codex reads OpenAI Codex CLI rollouts:
// <root>/YYYY/MM/DD/rollout-<timestamp>-<session-uuid>.jsonl.
type Codex struct{}

// Agent implements Adapter.
func (Codex) Agent() model.Agent { return model.AgentCodex }

// DefaultRoot implements Adapter.
func (Codex) DefaultRoot(home string) string {
	return filepath.Join(home, ".codex", "sessions")
}

// Discover implements Adapter.
func (Codex) Discover(root string) ([]DiscoveredFile, error) {
	ok, err := rootExists(root)
	if err != nil || !ok {
		return nil, err
	}

	var files []DiscoveredFile
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // intentionally skip unreadable entries
		}
		name := d.Name()
		if d.IsDir() || filepath.Ext(name) != ".jsonl" || !strings.HasPrefix(name, "rollout-") {
			return nil
		}
		files = append(files, DiscoveredFile{
			Agent:     model.AgentCodex,
			Path:      path,
			SessionID: codexSessionID(name),
		})
		return nil
	})

	sortFiles(files)
	return files, err
}

// codexSessionID pulls the trailing session UUID out of a rollout file
// name, falling back to the bare name.
func codexSessionID(name string) string {
	base := strings.TrimSuffix(name, ".jsonl")
	if len(base) >= 36 {
		if id, err := uuid.Parse(base[len(base)-36:]); err == nil {
			return id.String()
		}
	}
	return strings.TrimPrefix(base, "rollout-")
}

type codexLine struct {
	Timestamp string          `json:"timestamp"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}

type codexSessionMeta struct {
	ID         string `json:"id"`
	Cwd        string `json:"cwd"`
	CLIVersion string `json:"cli_version"`
	Git        *struct {
		Branch string `json:"branch"`
	} `json:"git,omitempty"`
}

type codexTurnContext struct {
	Cwd   string `json:"cwd"`
	Model string `json:"model"`
}

type codexItem struct {
	Type    string `json:"type"`
	Role    string `json:"role,omitempty"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content,omitempty"`
	Summary []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"summary,omitempty"`
	Name      string          `json:"name,omitempty"`
	Arguments string          `json:"arguments,omitempty"`
	Input     string          `json:"input,omitempty"`
	CallID    string          `json:"call_id,omitempty"`
	Output    json.RawMessage `json:"output,omitempty"`
	Action    *struct {
		Type  string `json:"type"`
		Query string `json:"query"`
		URL   string `json:"url"`
	} `json:"action,omitempty"`
}

type codexEvent struct {
	Type string `json:"type"`
	Info *struct {
		Total codexTokens `json:"total_token_usage"`
		Last  codexTokens `json:"last_token_usage"`
	} `json:"info,omitempty"`
}

type codexTokens struct {
	InputTokens       int64 `json:"input_tokens"`
	CachedInputTokens int64 `json:"cached_input_tokens"`
	OutputTokens      int64 `json:"output_tokens"`
	ReasoningTokens   int64 `json:"reasoning_output_tokens"`
	TotalTokens       int64 `json:"total_tokens"`
}

// codexState carries rollout-level context forward across lines.
type codexState struct {
	meta  model.Metadata
	model string
}

// Read implements Adapter. session_meta and turn_context lines update the
// running context; response_item lines become messages; token_count
// events become usage-only entries that feed session cost.
func (Codex) Read(df DiscoveredFile, emit EmitFunc) (ReadStats, error) {
	var (
		stats ReadStats
		st    codexState
	)
	err := scanLines(df.Path, func(lineNo int, line []byte) {
		var l codexLine
		if err := json.Unmarshal(line, &l); err != nil {
			stats.ParseErrors++
			return
		}
		e, ok, err := st.decode(l, df)
		if err != nil {
			stats.ParseErrors++
			return
		}
		if !ok {
			return
		}
		e.SourceLine = lineNo
		stats.Entries++
		emit(e)
	})
	return stats, err
}

func (st *codexState) decode(l codexLine, df DiscoveredFile) (model.Entry, bool, error) {
	e := model.Entry{
		Kind:      model.EntryMessage,
		Agent:     model.AgentCodex,
		SessionID: df.SessionID,
		Timestamp: parseTime(l.Timestamp),
		Meta:      st.meta,
	}

	switch l.Type {
	case "session_meta":
		var m codexSessionMeta
		if err := json.Unmarshal(l.Payload, &m); err != nil {
			return e, false, err
		}
		st.meta.Cwd = m.Cwd
		st.meta.AgentVersion = m.CLIVersion
		if m.Git != nil {
			st.meta.GitBranch = m.Git.Branch
		}
		return e, false, nil

	case "turn_context":
		var tc codexTurnContext
		if err := json.Unmarshal(l.Payload, &tc); err != nil {
			return e, false, err
		}
		if tc.Cwd != "" {
			st.meta.Cwd = tc.Cwd
		}
		st.model = tc.Model
		return e, false, nil

	case "event_msg":
		var ev codexEvent
		if err := json.Unmarshal(l.Payload, &ev); err != nil {
			return e, false, err
		}
		if ev.Type != "token_count" || ev.Info == nil {
			return e, false, nil
		}
		// The CLI repeats token_count events; the running total
		// identifies the turn so duplicates collapse downstream.
		e.Kind = model.EntryIgnored
		e.Role = model.RoleAssistant
		e.Meta.Model = st.model
		e.Meta.RequestID = fmt.Sprintf("codex-total-%d", ev.Info.Total.TotalTokens)
		last := ev.Info.Last
		e.Meta.TokenUsage = &model.TokenUsage{
			Input:     last.InputTokens - last.CachedInputTokens,
			Output:    last.OutputTokens + last.ReasoningTokens,
			CacheRead: last.CachedInputTokens,
		}
		return e, true, nil

	case "response_item":
		var it codexItem
		if err := json.Unmarshal(l.Payload, &it); err != nil {
			return e, false, err
		}
		return st.item(e, it)
	}
	return e, false, nil
}

func (st *codexState) item(e model.Entry, it codexItem) (model.Entry, bool, error) {
	switch it.Type {
	case "message":
		switch it.Role {
		case "user":
			e.Role = model.RoleUser
		case "assistant":
			e.Role = model.RoleAssistant
			e.Meta.Model = st.model
		default:
			// developer/system prompts are configuration, not conversation.
			e.Kind = model.EntryIgnored
			return e, true, nil
		}
		for _, c := range it.Content {
			if c.Text == "" {
				continue
			}
			e.Fragments = append(e.Fragments, model.Fragment{Kind: model.FragText, Text: c.Text})
			if e.Role == model.RoleUser && isCodexContext(c.Text) {
				e.IsMeta = true
			}
		}
		return e, true, nil

	case "reasoning":
		e.Role = model.RoleAssistant
		e.Meta.Model = st.model
		for _, s := range it.Summary {
			if s.Text != "" {
				e.Fragments = append(e.Fragments, model.Fragment{Kind: model.FragThinking, Text: s.Text})
			}
		}
		return e, true, nil

	case "function_call", "custom_tool_call":
		e.Role = model.RoleAssistant
		e.Meta.Model = st.model
		name, input := codexTool(it)
		e.Fragments = []model.Fragment{{Kind: model.FragToolUse, ToolID: it.CallID, ToolName: name, Input: input}}
		return e, true, nil

	case "web_search_call":
		e.Role = model.RoleAssistant
		input := map[string]any{}
		name := "WebSearch"
		if it.Action != nil {
			input["query"] = it.Action.Query
			if it.Action.URL != "" {
				name = "WebFetch"
				input["url"] = it.Action.URL
			}
		}
		e.Fragments = []model.Fragment{{Kind: model.FragToolUse, ToolID: it.CallID, ToolName: name, Input: input}}
		return e, true, nil

	case "function_call_output", "custom_tool_call_output":
		e.Role = model.RoleUser
		out, isErr := codexOutput(it.Output)
		e.Fragments = []model.Fragment{{Kind: model.FragToolResult, ToolID: it.CallID, Output: out, IsError: isErr}}
		return e, true, nil
	}

	e.Kind = model.EntryIgnored
	return e, true, nil
}

// isCodexContext reports the CLI's injected environment and instruction
// preambles.
func isCodexContext(text string) bool {
	t := strings.TrimSpace(text)
	return strings.HasPrefix(t, "<environment_context>") ||
		strings.HasPrefix(t, "<user_instructions>") ||
		strings.HasPrefix(t, "# AGENTS.md instructions")
}

// codexTool maps a Codex tool call onto the canonical tool vocabulary.
func codexTool(it codexItem) (string, map[string]any) {
	args := map[string]any{}
	if it.Arguments != "" {
		if err := json.Unmarshal([]byte(it.Arguments), &args); err != nil {
			args = map[string]any{"arguments": it.Arguments}
		}
	}
	// "null" arguments decode to a nil map.
	if args == nil {
		args = map[string]any{}
	}
	if it.Input != "" {
		args["input"] = it.Input
	}

	switch it.Name {
	case "shell", "container.exec", "local_shell", "shell_command", "exec_command":
		in := map[string]any{"command": shellCommand(args["command"])}
		if wd, ok := args["workdir"].(string); ok {
			in["cwd"] = wd
		}
		if j, ok := args["justification"].(string); ok {
			in["description"] = j
		}
		return "Bash", in

	case "apply_patch":
		patch, _ := args["input"].(string)
		if patch == "" {
			patch, _ = args["patch"].(string)
		}
		path, op := patchTarget(patch)
		in := map[string]any{"file_path": path, "patch": patch}
		switch op {
		case "add":
			return "Write", in
		case "delete":
			return "Delete", in
		}
		return "Edit", in

	case "read_file", "view_image":
		return "Read", renameKey(args, "path", "file_path")
	}
	return it.Name, args
}

// shellCommand renders Codex's argv form. ["bash", "-lc", "<script>"]
// becomes just the script.
func shellCommand(v any) string {
	switch c := v.(type) {
	case string:
		return c
	case []any:
		argv := make([]string, 0, len(c))
		for _, a := range c {
			if s, ok := a.(string); ok {
				argv = append(argv, s)
			}
		}
		if len(argv) == 3 && (argv[1] == "-lc" || argv[1] == "-c") {
			switch filepath.Base(argv[0]) {
			case "bash", "sh", "zsh":
				return argv[2]
			}
		}
		return strings.Join(argv, " ")
	}
	return ""
}

var patchMarkers = []struct{ prefix, op string }{
	{"*** Add File: ", "add"},
	{"*** Update File: ", "update"},
	{"*** Delete File: ", "delete"},
}

// patchTarget finds the first file named in an apply_patch envelope.
func patchTarget(patch string) (path, op string) {
	for _, line := range strings.Split(patch, "\n") {
		for _, m := range patchMarkers {
			if p, ok := strings.CutPrefix(line, m.prefix); ok {
				return strings.TrimSpace(p), m.op
			}
		}
	}
	return "", ""
}

// codexOutput decodes a tool output: either a plain string or a JSON
// string wrapping {"output": ..., "metadata": {"exit_code": n}}.
func codexOutput(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return string(raw), false
	}
	var wrapped struct {
		Output   string `json:"output"`
		Metadata struct {
			ExitCode *int `json:"exit_code"`
		} `json:"metadata"`
	}
	if strings.HasPrefix(strings.TrimSpace(s), "{") && json.Unmarshal([]byte(s), &wrapped) == nil {
		isErr := wrapped.Metadata.ExitCode != nil && *wrapped.Metadata.ExitCode != 0
		return wrapped.Output, isErr
	}
	return s, false
}

func renameKey(m map[string]any, from, to string) map[string]any {
	if v, ok := m[from]; ok {
		if _, exists := m[to]; !exists {
			m[to] = v
			delete(m, from)
		}
	}
	return m
}
