package model

import "time"

// FactKey identifies the block a derived fact was extracted from.
type FactKey struct {
	MessageID  string
	SessionID  string
	BlockIndex int
}

// ToolUsage is one tool invocation, optionally completed by its result.
type ToolUsage struct {
	FactKey
	ToolID        string
	ToolName      string
	InputSummary  string
	Success       *bool // nil until a result is paired
	ResultPreview string
	Timestamp     time.Time
}

// FileOperationFact records a file touched in a session.
type FileOperationFact struct {
	FactKey
	Operation FileOp
	Path      string
	Project   string
	Timestamp time.Time
}

// CommandFact records a shell command.
type CommandFact struct {
	FactKey
	Command     string
	Description string
	Cwd         string
	IsGit       bool
	Success     *bool
	Timestamp   time.Time
}

// GitOperationFact records a git or PR operation.
type GitOperationFact struct {
	FactKey
	Operation GitOp
	Branch    string
	Message   string
	PRURL     string
	PRNumber  int
	Timestamp time.Time
}

// ErrorFact records an error surfaced in the transcript.
type ErrorFact struct {
	FactKey
	ErrorType string
	Message   string
	Timestamp time.Time
}

// SessionCost is a contribution to (or the total of) a session's usage.
// Stores accumulate repeated writes for the same session.
type SessionCost struct {
	SessionID        string
	Model            string
	InputTokens      int64
	OutputTokens     int64
	CacheTokens      int64
	DurationMs       int64
	EstimatedCostUSD float64
}

// Add accumulates other into c. A non-empty model in other replaces c's.
func (c *SessionCost) Add(other SessionCost) {
	c.InputTokens += other.InputTokens
	c.OutputTokens += other.OutputTokens
	c.CacheTokens += other.CacheTokens
	c.DurationMs += other.DurationMs
	c.EstimatedCostUSD += other.EstimatedCostUSD
	if other.Model != "" {
		c.Model = other.Model
	}
}

// IsZero reports whether c carries no usage at all.
func (c SessionCost) IsZero() bool {
	return c.InputTokens == 0 && c.OutputTokens == 0 && c.CacheTokens == 0 &&
		c.DurationMs == 0 && c.EstimatedCostUSD == 0
}
