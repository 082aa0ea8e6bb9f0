package model

import "time"

// SessionRecord links an ingested session to its agent and project. A
// session is "known" once its record is registered.
type SessionRecord struct {
	SessionID     string
	Agent         Agent
	ProjectID     string
	ProjectPath   string
	Title         string
	FilePath      string
	IsSubagent    bool
	ParentSession string
	StartTime     time.Time
	EndTime       time.Time
	MessageCount  int
	IngestedAt    time.Time
}

// SessionSummary is a registered session joined with its accumulated cost.
type SessionSummary struct {
	SessionRecord
	Cost SessionCost
}

// MessageOptions carries the optional parts of a message write.
type MessageOptions struct {
	Title     string
	Agent     Agent
	SourceID  string // the agent's own entry id, or a derived one
	Sequence  int
	Timestamp time.Time
	Metadata  Metadata
	Blocks    Blocks
}

// MessageRef identifies a stored message. Created is false when identical
// content was already present.
type MessageRef struct {
	ID      string
	Created bool
}
