package pipeline

import (
	"context"
	"sort"
	"strings"

	"github.com/theirongolddev/smriti/internal/model"
)

const inputSummaryLimit = 200

// Tools whose results are search output get a longer preview.
var searchTools = map[string]bool{
	"Grep":      true,
	"Glob":      true,
	"WebSearch": true,
	"WebFetch":  true,
}

// pendingCall is a tool call whose result has not been seen yet. Its
// ToolUsage (and CommandFact, for shell tools) is written once the result
// arrives or the session ends.
type pendingCall struct {
	usage   model.ToolUsage
	command *model.CommandFact
}

// factWriter turns one session's blocks into fact rows. Tool calls are
// paired with the next result carrying the same tool id.
type factWriter struct {
	store   FactStore
	project string
	pending map[string]*pendingCall
	order   []string
}

func newFactWriter(store FactStore, project string) *factWriter {
	return &factWriter{store: store, project: project, pending: make(map[string]*pendingCall)}
}

func (w *factWriter) write(ctx context.Context, messageID string, m *model.StructuredMessage) error {
	var current *pendingCall // the tool call the following blocks belong to

	for i, b := range m.Blocks {
		key := model.FactKey{MessageID: messageID, SessionID: m.SessionID, BlockIndex: i}
		ts := m.Timestamp

		switch b := b.(type) {
		case model.ToolCallBlock:
			current = &pendingCall{usage: model.ToolUsage{
				FactKey:      key,
				ToolID:       b.ToolID,
				ToolName:     b.ToolName,
				InputSummary: inputSummary(b),
				Timestamp:    ts,
			}}
			if b.ToolID == "" {
				if err := w.emit(ctx, current); err != nil {
					return err
				}
				continue
			}
			if _, dup := w.pending[b.ToolID]; !dup {
				w.order = append(w.order, b.ToolID)
			}
			w.pending[b.ToolID] = current

		case model.CommandBlock:
			cwd := b.Cwd
			if cwd == "" {
				cwd = m.Metadata.Cwd
			}
			cmd := &model.CommandFact{
				FactKey:     key,
				Command:     b.Command,
				Description: b.Description,
				Cwd:         cwd,
				IsGit:       i+1 < len(m.Blocks) && m.Blocks[i+1].Kind() == model.KindGit,
				Timestamp:   ts,
			}
			if current != nil && current.usage.ToolID != "" && current.command == nil {
				current.command = cmd
				continue
			}
			if err := w.store.InsertCommand(ctx, *cmd); err != nil {
				return err
			}

		case model.FileOperationBlock:
			path := b.Path
			if path == "" {
				path = b.Pattern
			}
			err := w.store.InsertFileOperation(ctx, model.FileOperationFact{
				FactKey:   key,
				Operation: b.Operation,
				Path:      path,
				Project:   w.project,
				Timestamp: ts,
			})
			if err != nil {
				return err
			}

		case model.GitBlock:
			err := w.store.InsertGitOperation(ctx, model.GitOperationFact{
				FactKey:   key,
				Operation: b.Operation,
				Branch:    b.Branch,
				Message:   b.Message,
				PRURL:     b.PRURL,
				PRNumber:  b.PRNumber,
				Timestamp: ts,
			})
			if err != nil {
				return err
			}

		case model.ErrorBlock:
			err := w.store.InsertError(ctx, model.ErrorFact{
				FactKey:   key,
				ErrorType: b.ErrorType,
				Message:   b.Message,
				Timestamp: ts,
			})
			if err != nil {
				return err
			}

		case model.ToolResultBlock:
			if err := w.complete(ctx, b); err != nil {
				return err
			}
		}
	}
	return nil
}

// complete pairs a result with its pending call and writes the call's facts.
func (w *factWriter) complete(ctx context.Context, r model.ToolResultBlock) error {
	call, ok := w.pending[r.ToolID]
	if !ok {
		return nil
	}
	delete(w.pending, r.ToolID)

	success := r.Success
	limit := model.LimitOutput
	if searchTools[call.usage.ToolName] {
		limit = model.LimitSearchResult
	}
	preview := r.Output
	if !success && r.Error != "" {
		preview = r.Error
	}
	call.usage.Success = &success
	call.usage.ResultPreview = model.Truncate(preview, limit)
	if call.command != nil {
		call.command.Success = &success
	}
	return w.emit(ctx, call)
}

// flush writes calls that never received a result, in call order.
func (w *factWriter) flush(ctx context.Context) error {
	for _, id := range w.order {
		call, ok := w.pending[id]
		if !ok {
			continue
		}
		delete(w.pending, id)
		if err := w.emit(ctx, call); err != nil {
			return err
		}
	}
	w.order = w.order[:0]
	return nil
}

func (w *factWriter) emit(ctx context.Context, call *pendingCall) error {
	if err := w.store.InsertToolUsage(ctx, call.usage); err != nil {
		return err
	}
	if call.command != nil {
		return w.store.InsertCommand(ctx, *call.command)
	}
	return nil
}

// inputSummary is a short human-readable digest of a tool call's input.
func inputSummary(b model.ToolCallBlock) string {
	if b.Description != "" {
		return model.Truncate(b.Description, inputSummaryLimit)
	}
	for _, k := range []string{"command", "file_path", "path", "pattern", "url", "query", "prompt"} {
		if v := b.Input[k]; v != "" {
			return model.Truncate(v, inputSummaryLimit)
		}
	}
	keys := make([]string, 0, len(b.Input))
	for k := range b.Input {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+b.Input[k])
	}
	return model.Truncate(strings.Join(parts, " "), inputSummaryLimit)
}
