// Package assemble turns canonical log entries into StructuredMessages,
// applying the skip rules, system-event conversion and metadata policy.
package assemble

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/theirongolddev/smriti/internal/classify"
	"github.com/theirongolddev/smriti/internal/model"
)

// Outcome classifies what happened to one entry.
type Outcome int

const (
	// OK means a message was produced from a fully recognized entry.
	OK Outcome = iota
	// Skipped means the entry carried no durable content and was dropped.
	Skipped
	// Degraded means a message was produced but some raw shape fell back
	// to a generic block.
	Degraded
)

func (o Outcome) String() string {
	switch o {
	case OK:
		return "ok"
	case Skipped:
		return "skipped"
	case Degraded:
		return "degraded"
	}
	return "outcome(" + strconv.Itoa(int(o)) + ")"
}

// Skip reasons.
const (
	ReasonNonMessage   = "non-message entry"
	ReasonUnknownEvent = "unrecognized system event"
	ReasonMeta         = "meta entry"
	ReasonCommandEcho  = "command echo"
	ReasonEmpty        = "no content"
	ReasonNoRole       = "missing role"
)

// Result is the outcome of assembling one entry. Message is nil exactly
// when Outcome is Skipped.
type Result struct {
	Message *model.StructuredMessage
	Outcome Outcome
	Reason  string
}

// messageNamespace seeds the name-based ids given to entries that arrive
// without one.
var messageNamespace = uuid.MustParse("5d1f0c3e-8f0a-4b7e-9a61-2c3b4d5e6f70")

// Assembler builds StructuredMessages. It holds no per-session state and is
// safe for concurrent use.
type Assembler struct {
	classifier *classify.Classifier
}

// New returns an Assembler using c to classify fragments.
func New(c *classify.Classifier) *Assembler {
	if c == nil {
		c = classify.New(nil)
	}
	return &Assembler{classifier: c}
}

// Assemble converts e into a message at the given sequence position, or
// reports why it was skipped. Rules apply in order: non-message kinds are
// converted (system events) or dropped, meta entries are dropped, bare
// command echoes are dropped, and entries that classify to nothing are
// dropped.
func (a *Assembler) Assemble(e model.Entry, seq int) Result {
	switch e.Kind {
	case model.EntryIgnored:
		return skip(ReasonNonMessage)
	case model.EntrySystemEvent:
		return a.systemEvent(e, seq)
	}

	if e.IsMeta {
		return skip(ReasonMeta)
	}
	if e.Role == "" {
		return skip(ReasonNoRole)
	}

	var (
		blocks   []model.Block
		degraded bool
	)
	for _, f := range e.Fragments {
		if !classify.IsKnown(f.Kind) {
			degraded = true
		}
		blocks = append(blocks, a.classifier.Classify(f)...)
	}
	if e.APIError != "" {
		blocks = append(blocks, model.ErrorBlock{
			ErrorType: "api_error",
			Message:   model.Truncate(e.APIError, model.LimitOutput),
		})
	}

	if len(blocks) == 1 {
		if t, ok := blocks[0].(model.TextBlock); ok && a.classifier.Rules().IsCommandEcho(t.Text) {
			return skip(ReasonCommandEcho)
		}
	}
	if len(blocks) == 0 {
		return skip(ReasonEmpty)
	}

	role := e.Role
	if role == model.RoleUser && onlyToolResults(blocks) {
		role = model.RoleTool
	}

	meta := e.Meta
	if role != model.RoleAssistant {
		meta.Model = ""
		meta.StopReason = ""
		meta.TokenUsage = nil
	} else if meta.TokenUsage != nil && meta.TokenUsage.IsZero() {
		meta.TokenUsage = nil
	}

	msg := a.build(e, seq, role, blocks, meta)
	if degraded {
		return Result{Message: msg, Outcome: Degraded, Reason: "unrecognized fragment"}
	}
	return Result{Message: msg, Outcome: OK}
}

func (a *Assembler) systemEvent(e model.Entry, seq int) Result {
	if e.Event == nil {
		return skip(ReasonUnknownEvent)
	}
	ev := e.Event

	var blocks []model.Block
	switch ev.Type {
	case model.EventTurnDuration:
		blocks = []model.Block{model.SystemEventBlock{
			EventType:  model.EventTurnDuration,
			DurationMs: ev.DurationMs,
			Detail:     ev.Detail,
		}}
	case model.EventPRLink:
		detail := ev.PRURL
		if ev.PRRepo != "" {
			detail = ev.PRRepo + " " + ev.PRURL
		}
		blocks = []model.Block{
			model.SystemEventBlock{EventType: model.EventPRLink, Detail: detail},
			model.GitBlock{Operation: model.GitPRCreate, PRURL: ev.PRURL, PRNumber: ev.PRNumber},
		}
	case model.EventCompactBoundary:
		blocks = []model.Block{model.SystemEventBlock{
			EventType: model.EventCompactBoundary,
			Detail:    ev.Detail,
		}}
	default:
		return skip(ReasonUnknownEvent)
	}

	meta := e.Meta
	meta.Model, meta.StopReason, meta.TokenUsage = "", "", nil
	return Result{Message: a.build(e, seq, model.RoleSystem, blocks, meta), Outcome: OK}
}

func (a *Assembler) build(e model.Entry, seq int, role model.Role, blocks []model.Block, meta model.Metadata) *model.StructuredMessage {
	id := e.UUID
	if id == "" {
		id = uuid.NewSHA1(messageNamespace, []byte(fmt.Sprintf("%s\x00%s\x00%d", e.Agent, e.SessionID, seq))).String()
	}
	return &model.StructuredMessage{
		ID:        id,
		SessionID: e.SessionID,
		Sequence:  seq,
		Timestamp: e.Timestamp,
		Role:      role,
		Agent:     e.Agent,
		Blocks:    blocks,
		Metadata:  meta,
		PlainText: model.Flatten(blocks),
	}
}

func onlyToolResults(blocks []model.Block) bool {
	sawResult := false
	for _, b := range blocks {
		switch b.(type) {
		case model.ToolResultBlock:
			sawResult = true
		case model.ErrorBlock:
		default:
			return false
		}
	}
	return sawResult
}

func skip(reason string) Result {
	return Result{Outcome: Skipped, Reason: reason}
}

// Session assigns sequence numbers to one session's entries in source
// order. The counter advances only when a message is emitted, so sequences
// are dense and strictly increasing regardless of skipped lines.
type Session struct {
	asm  *Assembler
	next int
}

// NewSession starts a session whose first message gets sequence 0.
func (a *Assembler) NewSession() *Session {
	return &Session{asm: a}
}

// Add assembles e at the session's next position.
func (s *Session) Add(e model.Entry) Result {
	r := s.asm.Assemble(e, s.next)
	if r.Message != nil {
		s.next++
	}
	return r
}

// Len returns the number of messages emitted so far.
func (s *Session) Len() int { return s.next }
