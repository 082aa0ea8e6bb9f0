package model

// BlockKind names one member of the closed MessageBlock taxonomy.
type BlockKind string

const (
	KindText                BlockKind = "text"
	KindThinking            BlockKind = "thinking"
	KindToolCall            BlockKind = "tool_call"
	KindToolResult          BlockKind = "tool_result"
	KindFileOperation       BlockKind = "file_operation"
	KindCommand             BlockKind = "command"
	KindSearch              BlockKind = "search"
	KindGit                 BlockKind = "git"
	KindError               BlockKind = "error"
	KindImage               BlockKind = "image"
	KindCode                BlockKind = "code"
	KindSystemEvent         BlockKind = "system_event"
	KindConversationControl BlockKind = "conversation_control"
)

// AllKinds lists every BlockKind. Adding a variant means adding it here and
// to decodeBlock; the block tests walk this list.
var AllKinds = []BlockKind{
	KindText, KindThinking, KindToolCall, KindToolResult, KindFileOperation,
	KindCommand, KindSearch, KindGit, KindError, KindImage, KindCode,
	KindSystemEvent, KindConversationControl,
}

// Block is one typed fragment of a StructuredMessage. The set of
// implementations is closed: only types in this package satisfy it.
type Block interface {
	Kind() BlockKind
	isBlock()
}

// FileOp enumerates file operation kinds.
type FileOp string

const (
	FileRead   FileOp = "read"
	FileWrite  FileOp = "write"
	FileEdit   FileOp = "edit"
	FileCreate FileOp = "create"
	FileDelete FileOp = "delete"
	FileGlob   FileOp = "glob"
)

// SearchType enumerates search block kinds.
type SearchType string

const (
	SearchGrep      SearchType = "grep"
	SearchGlob      SearchType = "glob"
	SearchWebFetch  SearchType = "web_fetch"
	SearchWebSearch SearchType = "web_search"
)

// GitOp enumerates recognized git operations.
type GitOp string

const (
	GitCommit   GitOp = "commit"
	GitPush     GitOp = "push"
	GitPull     GitOp = "pull"
	GitBranch   GitOp = "branch"
	GitCheckout GitOp = "checkout"
	GitDiff     GitOp = "diff"
	GitMerge    GitOp = "merge"
	GitRebase   GitOp = "rebase"
	GitStatus   GitOp = "status"
	GitPRCreate GitOp = "pr_create"
	GitOther    GitOp = "other"
)

// SystemEventType enumerates synthetic system events.
type SystemEventType string

const (
	EventTurnDuration    SystemEventType = "turn_duration"
	EventPRLink          SystemEventType = "pr_link"
	EventCompactBoundary SystemEventType = "compact_boundary"
)

// ControlType enumerates conversation control actions.
type ControlType string

const (
	ControlPlanEnter    ControlType = "plan_enter"
	ControlPlanExit     ControlType = "plan_exit"
	ControlSlashCommand ControlType = "slash_command"
)

// TextBlock is free conversational text.
type TextBlock struct {
	Text string `json:"text"`
}

// ThinkingBlock is model reasoning. Never indexed.
type ThinkingBlock struct {
	Thinking string `json:"thinking"`
}

// ToolCallBlock is the generic record of any tool invocation.
type ToolCallBlock struct {
	ToolID      string            `json:"toolId,omitempty"`
	ToolName    string            `json:"toolName"`
	Input       map[string]string `json:"input,omitempty"`
	Description string            `json:"description,omitempty"`
}

// ToolResultBlock is the output of a tool invocation.
type ToolResultBlock struct {
	ToolID  string `json:"toolId,omitempty"`
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// FileOperationBlock records a file touched by a tool.
type FileOperationBlock struct {
	Operation FileOp `json:"operation"`
	Path      string `json:"path"`
	Pattern   string `json:"pattern,omitempty"`
	Diff      string `json:"diff,omitempty"`
	Content   string `json:"content,omitempty"`
}

// CommandBlock is a shell command invocation.
type CommandBlock struct {
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
	Cwd         string `json:"cwd,omitempty"`
	Background  bool   `json:"background,omitempty"`
}

// SearchBlock is a content, file-name or web search.
type SearchBlock struct {
	SearchType SearchType `json:"searchType"`
	Pattern    string     `json:"pattern"`
	Path       string     `json:"path,omitempty"`
	URL        string     `json:"url,omitempty"`
}

// GitBlock is a recognized git (or PR) operation.
type GitBlock struct {
	Operation GitOp  `json:"operation"`
	Branch    string `json:"branch,omitempty"`
	Message   string `json:"message,omitempty"`
	PRTitle   string `json:"prTitle,omitempty"`
	PRURL     string `json:"prUrl,omitempty"`
	PRNumber  int    `json:"prNumber,omitempty"`
}

// ErrorBlock is an error surfaced in the transcript.
type ErrorBlock struct {
	ErrorType string `json:"errorType"`
	Message   string `json:"message"`
	ToolID    string `json:"toolId,omitempty"`
}

// ImageBlock references an inline image by fingerprint.
type ImageBlock struct {
	MediaType   string `json:"mediaType,omitempty"`
	Fingerprint string `json:"fingerprint"`
	SizeBytes   int    `json:"sizeBytes"`
}

// CodeBlock is an explicitly typed code fragment.
type CodeBlock struct {
	Language string `json:"language,omitempty"`
	Code     string `json:"code"`
}

// SystemEventBlock is a synthetic event emitted by the agent runtime.
type SystemEventBlock struct {
	EventType  SystemEventType `json:"eventType"`
	DurationMs int64           `json:"durationMs,omitempty"`
	Detail     string          `json:"detail,omitempty"`
}

// ConversationControlBlock marks a mode switch or slash command.
type ConversationControlBlock struct {
	ControlType ControlType `json:"controlType"`
	Name        string      `json:"name,omitempty"`
	Args        string      `json:"args,omitempty"`
}

func (TextBlock) Kind() BlockKind                { return KindText }
func (ThinkingBlock) Kind() BlockKind            { return KindThinking }
func (ToolCallBlock) Kind() BlockKind            { return KindToolCall }
func (ToolResultBlock) Kind() BlockKind          { return KindToolResult }
func (FileOperationBlock) Kind() BlockKind       { return KindFileOperation }
func (CommandBlock) Kind() BlockKind             { return KindCommand }
func (SearchBlock) Kind() BlockKind              { return KindSearch }
func (GitBlock) Kind() BlockKind                 { return KindGit }
func (ErrorBlock) Kind() BlockKind               { return KindError }
func (ImageBlock) Kind() BlockKind               { return KindImage }
func (CodeBlock) Kind() BlockKind                { return KindCode }
func (SystemEventBlock) Kind() BlockKind         { return KindSystemEvent }
func (ConversationControlBlock) Kind() BlockKind { return KindConversationControl }

func (TextBlock) isBlock()                {}
func (ThinkingBlock) isBlock()            {}
func (ToolCallBlock) isBlock()            {}
func (ToolResultBlock) isBlock()          {}
func (FileOperationBlock) isBlock()       {}
func (CommandBlock) isBlock()             {}
func (SearchBlock) isBlock()              {}
func (GitBlock) isBlock()                 {}
func (ErrorBlock) isBlock()               {}
func (ImageBlock) isBlock()               {}
func (CodeBlock) isBlock()                {}
func (SystemEventBlock) isBlock()         {}
func (ConversationControlBlock) isBlock() {}
