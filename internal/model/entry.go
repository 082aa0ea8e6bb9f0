package model

import (
	"encoding/json"
	"time"
)

// EntryKind routes a decoded raw entry through the assembler's skip rules.
type EntryKind int

const (
	// EntryMessage carries conversational fragments.
	EntryMessage EntryKind = iota
	// EntrySystemEvent is a recognized runtime event (see SystemEvent).
	EntrySystemEvent
	// EntryIgnored is a known non-message record (snapshots, progress, ...).
	EntryIgnored
)

// FragmentKind is the shape of one raw content fragment.
type FragmentKind string

const (
	FragText       FragmentKind = "text"
	FragThinking   FragmentKind = "thinking"
	FragToolUse    FragmentKind = "tool_use"
	FragToolResult FragmentKind = "tool_result"
	FragImage      FragmentKind = "image"
	FragCode       FragmentKind = "code"
	FragUnknown    FragmentKind = "unknown"
)

// Fragment is one raw piece of content as produced by an agent adapter.
// Only the fields relevant to Kind are populated.
type Fragment struct {
	Kind FragmentKind

	Text string // text, thinking, code

	ToolID   string         // tool_use, tool_result
	ToolName string         // tool_use; canonical name after adapter mapping
	Input    map[string]any // tool_use

	Output  string // tool_result
	IsError bool   // tool_result

	MediaType string // image
	Data      string // image payload (usually base64)

	Language string // code

	Raw json.RawMessage // unknown
}

// SystemEvent carries the payload of an EntrySystemEvent.
type SystemEvent struct {
	Type       SystemEventType
	DurationMs int64
	PRURL      string
	PRNumber   int
	PRRepo     string
	Detail     string
}

// Entry is the canonical intermediate form of one raw log record. Each
// agent adapter decodes its own on-disk shape into Entries so that the
// classifier and assembler never special-case agent identity.
type Entry struct {
	Kind       EntryKind
	Agent      Agent
	UUID       string
	SessionID  string
	Role       Role
	Timestamp  time.Time
	Fragments  []Fragment
	Meta       Metadata
	IsMeta     bool
	Event      *SystemEvent
	Summary    string // session title hint from summary records
	APIError   string // agent-reported API failure for this turn
	SourceLine int
}
