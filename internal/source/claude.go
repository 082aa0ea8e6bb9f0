package source

import (
	"encoding/json"
	"strings"

	"github.com/theirongolddev/smriti/internal/model"
)

// claudeEntry represents a single line in a Claude Code JSONL session file.
type claudeEntry struct {
	Type           string         `json:"type"`
	Subtype        string         `json:"subtype,omitempty"`
	UUID           string         `json:"uuid,omitempty"`
	ParentUUID     string         `json:"parentUuid,omitempty"`
	Timestamp      string         `json:"timestamp,omitempty"`
	SessionID      string         `json:"sessionId,omitempty"`
	Cwd            string         `json:"cwd,omitempty"`
	GitBranch      string         `json:"gitBranch,omitempty"`
	Version        string         `json:"version,omitempty"`
	IsMeta         bool           `json:"isMeta,omitempty"`
	IsSidechain    bool           `json:"isSidechain,omitempty"`
	PermissionMode string         `json:"permissionMode,omitempty"`
	Slug           string         `json:"slug,omitempty"`
	RequestID      string         `json:"requestId,omitempty"`
	Message        *claudeMessage `json:"message,omitempty"`

	// isApiErrorMessage marks synthetic assistant turns reporting an API failure.
	IsAPIErrorMessage bool `json:"isApiErrorMessage,omitempty"`

	// summary records
	Summary string `json:"summary,omitempty"`

	// system records
	Content         string           `json:"content,omitempty"`
	DurationMs      int64            `json:"durationMs,omitempty"`
	CompactMetadata *compactMetadata `json:"compactMetadata,omitempty"`

	// pr-link records
	PRURL        string `json:"prUrl,omitempty"`
	PRNumber     int    `json:"prNumber,omitempty"`
	PRRepository string `json:"prRepository,omitempty"`
}

type compactMetadata struct {
	Trigger   string `json:"trigger"`
	PreTokens int64  `json:"preTokens"`
}

// claudeMessage is the Anthropic message envelope inside user and
// assistant records.
type claudeMessage struct {
	ID         string          `json:"id"`
	Role       string          `json:"role"`
	Model      string          `json:"model"`
	StopReason string          `json:"stop_reason,omitempty"`
	Content    json.RawMessage `json:"content"`
	Usage      *rawUsage       `json:"usage,omitempty"`
}

// rawUsage holds token counts from the API response.
type rawUsage struct {
	InputTokens              int64          `json:"input_tokens"`
	OutputTokens             int64          `json:"output_tokens"`
	CacheCreationInputTokens int64          `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int64          `json:"cache_read_input_tokens"`
	CacheCreation            *cacheCreation `json:"cache_creation,omitempty"`
}

// cacheCreation holds the breakdown of cache write tokens by TTL bucket.
type cacheCreation struct {
	Ephemeral5mInputTokens int64 `json:"ephemeral_5m_input_tokens"`
	Ephemeral1hInputTokens int64 `json:"ephemeral_1h_input_tokens"`
}

func (u *rawUsage) tokenUsage() *model.TokenUsage {
	if u == nil {
		return nil
	}
	create := u.CacheCreationInputTokens
	if u.CacheCreation != nil {
		if sum := u.CacheCreation.Ephemeral5mInputTokens + u.CacheCreation.Ephemeral1hInputTokens; sum > 0 {
			create = sum
		}
	}
	return &model.TokenUsage{
		Input:       u.InputTokens,
		Output:      u.OutputTokens,
		CacheCreate: create,
		CacheRead:   u.CacheReadInputTokens,
	}
}

// contentBlock is one element of an Anthropic content array. Claude Code
// and Cline share this shape.
type contentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     map[string]any  `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
	Source    *imageSource    `json:"source,omitempty"`
	Language  string          `json:"language,omitempty"`
	Code      string          `json:"code,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
	URL       string `json:"url"`
}

// claudeType filters the top-level record types worth decoding.
func claudeType(line []byte) string {
	switch t := extractTopLevelType(line); t {
	case "user", "assistant", "system", "summary", "pr-link":
		return t
	}
	return ""
}

// Read implements Adapter.
//
// Entry routing by top-level "type" field:
//   - "user", "assistant" → message entries with content fragments
//   - "system"            → turn_duration, compact_boundary and pr_link events
//   - "pr-link"           → pr_link event
//   - "summary"           → session title hint
//   - everything else     → dropped without a full decode
func (c *Claude) Read(df DiscoveredFile, emit EmitFunc) (ReadStats, error) {
	var stats ReadStats
	err := scanLines(df.Path, func(lineNo int, line []byte) {
		typ := claudeType(line)
		if typ == "" {
			if !json.Valid(line) {
				stats.ParseErrors++
			}
			return
		}

		var raw claudeEntry
		if err := json.Unmarshal(line, &raw); err != nil {
			stats.ParseErrors++
			return
		}
		e, ok := decodeClaude(raw, df)
		if !ok {
			stats.ParseErrors++
			return
		}
		e.SourceLine = lineNo
		stats.Entries++
		emit(e)
	})
	return stats, err
}

func decodeClaude(raw claudeEntry, df DiscoveredFile) (model.Entry, bool) {
	e := model.Entry{
		Kind:      model.EntryMessage,
		Agent:     model.AgentClaude,
		UUID:      raw.UUID,
		SessionID: df.SessionID,
		Timestamp: parseTime(raw.Timestamp),
		IsMeta:    raw.IsMeta,
		Meta: model.Metadata{
			Cwd:            raw.Cwd,
			GitBranch:      raw.GitBranch,
			AgentVersion:   raw.Version,
			ParentID:       raw.ParentUUID,
			IsSidechain:    raw.IsSidechain || df.IsSubagent,
			PermissionMode: raw.PermissionMode,
			Slug:           raw.Slug,
			RequestID:      raw.RequestID,
		},
	}

	switch raw.Type {
	case "summary":
		e.Kind = model.EntryIgnored
		e.Summary = raw.Summary
		return e, true

	case "pr-link":
		e.Kind = model.EntrySystemEvent
		e.Event = &model.SystemEvent{Type: model.EventPRLink, PRURL: raw.PRURL, PRNumber: raw.PRNumber, PRRepo: raw.PRRepository}
		return e, true

	case "system":
		e.Kind = model.EntrySystemEvent
		switch raw.Subtype {
		case "turn_duration":
			e.Event = &model.SystemEvent{Type: model.EventTurnDuration, DurationMs: raw.DurationMs}
		case "compact_boundary":
			ev := &model.SystemEvent{Type: model.EventCompactBoundary, Detail: raw.Content}
			if raw.CompactMetadata != nil && raw.CompactMetadata.Trigger != "" {
				ev.Detail = raw.CompactMetadata.Trigger
			}
			e.Event = ev
		case "pr_link":
			e.Event = &model.SystemEvent{Type: model.EventPRLink, PRURL: raw.PRURL, PRNumber: raw.PRNumber, PRRepo: raw.PRRepository}
		default:
			e.Kind = model.EntryIgnored
		}
		return e, true
	}

	if raw.Message == nil {
		return e, false
	}
	msg := raw.Message
	e.Role = model.Role(raw.Type)

	if raw.Type == "assistant" {
		e.Meta.Model = msg.Model
		e.Meta.StopReason = msg.StopReason
		e.Meta.TokenUsage = msg.Usage.tokenUsage()
		if e.Meta.RequestID == "" {
			e.Meta.RequestID = msg.ID
		}
	}

	frags, ok := decodeContent(msg.Content)
	if !ok {
		return e, false
	}

	if raw.IsAPIErrorMessage {
		e.APIError = joinText(frags)
		return e, true
	}
	e.Fragments = frags
	return e, true
}

// decodeContent turns an Anthropic content value (a bare string or an
// array of blocks) into fragments.
func decodeContent(content json.RawMessage) ([]model.Fragment, bool) {
	if len(content) == 0 || string(content) == "null" {
		return nil, true
	}
	if content[0] == '"' {
		var s string
		if err := json.Unmarshal(content, &s); err != nil {
			return nil, false
		}
		return []model.Fragment{{Kind: model.FragText, Text: s}}, true
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(content, &raws); err != nil {
		return nil, false
	}
	frags := make([]model.Fragment, 0, len(raws))
	for _, r := range raws {
		var b contentBlock
		if err := json.Unmarshal(r, &b); err != nil {
			frags = append(frags, model.Fragment{Kind: model.FragUnknown, Raw: r})
			continue
		}
		frags = append(frags, blockFragment(b, r))
	}
	return frags, true
}

func blockFragment(b contentBlock, raw json.RawMessage) model.Fragment {
	switch b.Type {
	case "text":
		return model.Fragment{Kind: model.FragText, Text: b.Text}
	case "thinking":
		return model.Fragment{Kind: model.FragThinking, Text: b.Thinking}
	case "redacted_thinking":
		return model.Fragment{Kind: model.FragThinking}
	case "tool_use", "server_tool_use":
		return model.Fragment{Kind: model.FragToolUse, ToolID: b.ID, ToolName: b.Name, Input: b.Input}
	case "tool_result":
		return model.Fragment{Kind: model.FragToolResult, ToolID: b.ToolUseID, Output: resultText(b.Content), IsError: b.IsError}
	case "image":
		f := model.Fragment{Kind: model.FragImage}
		if b.Source != nil {
			f.MediaType = b.Source.MediaType
			f.Data = b.Source.Data
			if f.Data == "" {
				f.Data = b.Source.URL
			}
		}
		return f
	case "code":
		return model.Fragment{Kind: model.FragCode, Language: b.Language, Text: firstNonEmptyString(b.Code, b.Text)}
	}
	return model.Fragment{Kind: model.FragUnknown, Text: b.Text, Raw: raw}
}

// resultText flattens a tool_result content value: a string, or an array
// of text blocks (non-text parts are noted by type).
func resultText(content json.RawMessage) string {
	if len(content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(content, &s); err == nil {
		return s
	}
	var parts []contentBlock
	if err := json.Unmarshal(content, &parts); err != nil {
		return string(content)
	}
	var b strings.Builder
	for _, p := range parts {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		if p.Type == "text" {
			b.WriteString(p.Text)
		} else {
			b.WriteString("[" + p.Type + "]")
		}
	}
	return b.String()
}

func joinText(frags []model.Fragment) string {
	var parts []string
	for _, f := range frags {
		if f.Kind == model.FragText && f.Text != "" {
			parts = append(parts, f.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func firstNonEmptyString(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
