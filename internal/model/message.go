// Package model defines the canonical transcript types shared by every
// agent adapter: message blocks, structured messages and derived facts.
package model

import "time"

// Role is who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Agent identifies the coding agent that wrote a transcript.
type Agent string

const (
	AgentClaude  Agent = "claude"
	AgentCodex   Agent = "codex"
	AgentCline   Agent = "cline"
	AgentCopilot Agent = "copilot"
)

// TokenUsage holds token counts reported for one assistant turn.
type TokenUsage struct {
	Input       int64 `json:"input"`
	Output      int64 `json:"output"`
	CacheCreate int64 `json:"cacheCreate,omitempty"`
	CacheRead   int64 `json:"cacheRead,omitempty"`
}

// IsZero reports whether no tokens were recorded.
func (u TokenUsage) IsZero() bool {
	return u.Input == 0 && u.Output == 0 && u.CacheCreate == 0 && u.CacheRead == 0
}

// Metadata is optional per-message context. Missing fields are simply empty.
type Metadata struct {
	Cwd            string      `json:"cwd,omitempty"`
	GitBranch      string      `json:"gitBranch,omitempty"`
	Model          string      `json:"model,omitempty"`
	RequestID      string      `json:"requestId,omitempty"`
	StopReason     string      `json:"stopReason,omitempty"`
	TokenUsage     *TokenUsage `json:"tokenUsage,omitempty"`
	AgentVersion   string      `json:"agentVersion,omitempty"`
	ParentID       string      `json:"parentId,omitempty"` // back-reference only
	IsSidechain    bool        `json:"isSidechain,omitempty"`
	PermissionMode string      `json:"permissionMode,omitempty"`
	Slug           string      `json:"slug,omitempty"`
}

// StructuredMessage is the canonical, agent-independent form of one
// transcript entry.
type StructuredMessage struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Sequence  int       `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	Role      Role      `json:"role"`
	Agent     Agent     `json:"agent"`
	Blocks    Blocks    `json:"blocks"`
	Metadata  Metadata  `json:"metadata"`

	// PlainText is the lossy search projection of Blocks (see Flatten).
	// It is not a serialization of the message.
	PlainText string `json:"plainText"`
}
