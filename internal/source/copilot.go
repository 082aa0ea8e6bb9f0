package source

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/theirongolddev/smriti/internal/model"
)

// Copilot reads GitHub Copilot Chat sessions stored by VS Code:
// <root>/<workspace-hash>/chatSessions/<session-id>.json, with the
// workspace folder recorded in <root>/<workspace-hash>/workspace.json.
type Copilot struct{}

// Agent implements Adapter.
func (Copilot) Agent() model.Agent { return model.AgentCopilot }

// DefaultRoot implements Adapter.
func (Copilot) DefaultRoot(home string) string {
	return filepath.Join(home, ".config", "Code", "User", "workspaceStorage")
}

// Discover implements Adapter.
func (Copilot) Discover(root string) ([]DiscoveredFile, error) {
	ok, err := rootExists(root)
	if err != nil || !ok {
		return nil, err
	}
	workspaces, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var files []DiscoveredFile
	for _, ws := range workspaces {
		if !ws.IsDir() {
			continue
		}
		dir := filepath.Join(root, ws.Name())
		sessions, err := os.ReadDir(filepath.Join(dir, "chatSessions"))
		if err != nil {
			continue
		}
		folder := workspaceFolder(filepath.Join(dir, "workspace.json"))
		for _, s := range sessions {
			if s.IsDir() || filepath.Ext(s.Name()) != ".json" {
				continue
			}
			files = append(files, DiscoveredFile{
				Agent:       model.AgentCopilot,
				Path:        filepath.Join(dir, "chatSessions", s.Name()),
				SessionID:   strings.TrimSuffix(s.Name(), ".json"),
				ProjectPath: folder,
			})
		}
	}
	sortFiles(files)
	return files, nil
}

// workspaceFolder reads the folder URI VS Code records per workspace.
func workspaceFolder(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var ws struct {
		Folder string `json:"folder"`
	}
	if err := json.Unmarshal(data, &ws); err != nil || ws.Folder == "" {
		return ""
	}
	u, err := url.Parse(ws.Folder)
	if err != nil || u.Scheme != "file" {
		return ""
	}
	return u.Path
}

type copilotSession struct {
	SessionID    string           `json:"sessionId"`
	CreationDate int64            `json:"creationDate"`
	CustomTitle  string           `json:"customTitle,omitempty"`
	Requests     []copilotRequest `json:"requests"`
}

type copilotRequest struct {
	RequestID string `json:"requestId"`
	Message   struct {
		Text string `json:"text"`
	} `json:"message"`
	Response  []json.RawMessage `json:"response"`
	Result    *copilotResult    `json:"result,omitempty"`
	Timestamp int64             `json:"timestamp,omitempty"`
	ModelID   string            `json:"modelId,omitempty"`
	AgentInfo *struct {
		ExtensionVersion string `json:"extensionVersion"`
	} `json:"agent,omitempty"`
}

type copilotResult struct {
	Timings *struct {
		TotalElapsed int64 `json:"totalElapsed"`
	} `json:"timings,omitempty"`
	ErrorDetails *struct {
		Message string `json:"message"`
	} `json:"errorDetails,omitempty"`
}

type copilotPart struct {
	Kind              string          `json:"kind,omitempty"`
	Value             json.RawMessage `json:"value,omitempty"`
	ToolID            string          `json:"toolId,omitempty"`
	ToolCallID        string          `json:"toolCallId,omitempty"`
	InvocationMessage json.RawMessage `json:"invocationMessage,omitempty"`
	IsConfirmed       *bool           `json:"isConfirmed,omitempty"`
	IsComplete        bool            `json:"isComplete,omitempty"`
	ResultDetails     json.RawMessage `json:"resultDetails,omitempty"`
	ToolSpecificData  json.RawMessage `json:"toolSpecificData,omitempty"`
}

// copilotToolNames maps Copilot tool ids onto the canonical vocabulary.
var copilotToolNames = map[string]string{
	"copilot_readFile":             "Read",
	"copilot_createFile":           "Write",
	"copilot_insertEdit":           "Edit",
	"copilot_replaceString":        "Edit",
	"copilot_applyPatch":           "Edit",
	"copilot_findTextInFiles":      "Grep",
	"copilot_findFiles":            "Glob",
	"copilot_fetchWebPage":         "WebFetch",
	"run_in_terminal":              "Bash",
	"copilot_runInTerminal":        "Bash",
	"vscode_fetchWebPage_internal": "WebFetch",
}

// Read implements Adapter. Each request becomes a user entry followed by
// an assistant entry; elapsed timings become turn_duration events.
func (Copilot) Read(df DiscoveredFile, emit EmitFunc) (ReadStats, error) {
	var stats ReadStats

	data, err := os.ReadFile(df.Path)
	if err != nil {
		return stats, err
	}
	var s copilotSession
	if err := json.Unmarshal(data, &s); err != nil {
		return stats, fmt.Errorf("decoding %s: %w", df.Path, err)
	}

	out := func(e model.Entry) {
		stats.Entries++
		emit(e)
	}

	base := model.Entry{
		Agent:     model.AgentCopilot,
		SessionID: df.SessionID,
		Meta:      model.Metadata{Cwd: df.ProjectPath},
	}

	if s.CustomTitle != "" {
		e := base
		e.Kind = model.EntryIgnored
		e.Summary = s.CustomTitle
		e.Timestamp = millisTime(s.CreationDate)
		out(e)
	}

	for i, r := range s.Requests {
		ts := millisTime(r.Timestamp)
		if ts.IsZero() {
			ts = millisTime(s.CreationDate)
		}

		user := base
		user.Kind = model.EntryMessage
		user.UUID = r.RequestID + ":request"
		user.Role = model.RoleUser
		user.Timestamp = ts
		user.SourceLine = i + 1
		if r.Message.Text != "" {
			user.Fragments = []model.Fragment{{Kind: model.FragText, Text: r.Message.Text}}
		}
		out(user)

		asst := base
		asst.Kind = model.EntryMessage
		asst.UUID = r.RequestID + ":response"
		asst.Role = model.RoleAssistant
		asst.Timestamp = ts
		asst.SourceLine = i + 1
		asst.Meta.Model = strings.TrimPrefix(r.ModelID, "copilot/")
		asst.Meta.RequestID = r.RequestID
		if r.AgentInfo != nil {
			asst.Meta.AgentVersion = r.AgentInfo.ExtensionVersion
		}
		frags, bad := copilotFragments(r.Response)
		stats.ParseErrors += bad
		asst.Fragments = frags
		if r.Result != nil && r.Result.ErrorDetails != nil {
			asst.APIError = r.Result.ErrorDetails.Message
		}
		out(asst)

		if r.Result != nil && r.Result.Timings != nil && r.Result.Timings.TotalElapsed > 0 {
			ev := base
			ev.Kind = model.EntrySystemEvent
			ev.UUID = r.RequestID + ":timing"
			ev.Timestamp = ts
			ev.SourceLine = i + 1
			ev.Event = &model.SystemEvent{Type: model.EventTurnDuration, DurationMs: r.Result.Timings.TotalElapsed}
			out(ev)
		}
	}
	return stats, nil
}

// copilotFragments converts response parts, merging consecutive markdown
// chunks into one text fragment. It returns the number of undecodable parts.
func copilotFragments(parts []json.RawMessage) ([]model.Fragment, int) {
	var (
		frags []model.Fragment
		text  strings.Builder
		bad   int
	)
	flush := func() {
		if text.Len() > 0 {
			frags = append(frags, model.Fragment{Kind: model.FragText, Text: text.String()})
			text.Reset()
		}
	}

	for _, raw := range parts {
		var p copilotPart
		if err := json.Unmarshal(raw, &p); err != nil {
			bad++
			continue
		}
		switch p.Kind {
		case "", "markdownContent":
			text.WriteString(markdownValue(p.Value))
		case "toolInvocationSerialized", "toolInvocation":
			flush()
			name := p.ToolID
			if canonical, ok := copilotToolNames[p.ToolID]; ok {
				name = canonical
			}
			input := map[string]any{}
			if msg := markdownValue(p.InvocationMessage); msg != "" {
				input["description"] = msg
			}
			mergeToolData(input, p.ToolSpecificData)
			frags = append(frags, model.Fragment{Kind: model.FragToolUse, ToolID: p.ToolCallID, ToolName: name, Input: input})
		case "inlineReference", "codeblockUri", "textEditGroup", "undoStop", "prepareToolInvocation", "progressTaskSerialized":
			// presentation-only parts
		default:
			flush()
			frags = append(frags, model.Fragment{Kind: model.FragUnknown, Raw: raw})
		}
	}
	flush()
	return frags, bad
}

// markdownValue accepts either a bare string or a {"value": "..."} object.
func markdownValue(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Value
	}
	return ""
}

// mergeToolData lifts the terminal command out of toolSpecificData.
func mergeToolData(input map[string]any, raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}
	var d struct {
		Kind        string `json:"kind"`
		CommandLine *struct {
			Original string `json:"original"`
		} `json:"commandLine,omitempty"`
		Command string `json:"command,omitempty"`
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return
	}
	switch {
	case d.CommandLine != nil && d.CommandLine.Original != "":
		input["command"] = d.CommandLine.Original
	case d.Command != "":
		input["command"] = d.Command
	}
}
