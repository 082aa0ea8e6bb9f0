package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/theirongolddev/smriti/internal/assemble"
	"github.com/theirongolddev/smriti/internal/model"
	"github.com/theirongolddev/smriti/internal/projectpath"
	"github.com/theirongolddev/smriti/internal/source"
)

const titleLimit = 80

type sessionOutcome struct {
	created     int
	degraded    int
	parseErrors int
	empty       bool
}

// ingestSession processes one transcript in source order. The session is
// registered, together with its cost, only after every message and fact is
// written.
func (in *Ingester) ingestSession(ctx context.Context, adapter source.Adapter, df source.DiscoveredFile, projectsRoot string, exists projectpath.ExistsFunc) (sessionOutcome, error) {
	var (
		out     sessionOutcome
		entries []model.Entry
	)
	stats, err := adapter.Read(df, func(e model.Entry) { entries = append(entries, e) })
	out.parseErrors = stats.ParseErrors
	if err != nil {
		return out, fmt.Errorf("reading %s: %w", df.Path, err)
	}

	sess := in.assembler.NewSession()
	var msgs []*model.StructuredMessage
	for _, e := range entries {
		r := sess.Add(e)
		if r.Message == nil {
			continue
		}
		if r.Outcome == assemble.Degraded {
			out.degraded++
		}
		msgs = append(msgs, r.Message)
	}
	if len(msgs) == 0 {
		out.empty = true
		return out, nil
	}

	projectPath := resolveProject(df, entries, exists)
	projectID := projectpath.DeriveProjectID(projectPath, projectsRoot)
	title := sessionTitle(entries, msgs)

	facts := newFactWriter(in.facts, projectID)
	for _, m := range msgs {
		ref, err := in.content.AddMessage(ctx, df.SessionID, m.Role, m.PlainText, model.MessageOptions{
			Title:     title,
			Agent:     df.Agent,
			SourceID:  m.ID,
			Sequence:  m.Sequence,
			Timestamp: m.Timestamp,
			Metadata:  m.Metadata,
			Blocks:    m.Blocks,
		})
		if err != nil {
			return out, fmt.Errorf("storing message %d: %w", m.Sequence, err)
		}
		if ref.Created {
			out.created++
		}
		if err := facts.write(ctx, ref.ID, m); err != nil {
			return out, fmt.Errorf("storing facts of message %d: %w", m.Sequence, err)
		}
	}
	if err := facts.flush(ctx); err != nil {
		return out, fmt.Errorf("storing tool usage: %w", err)
	}

	cost := sessionCost(df.SessionID, entries, in.pricer)
	start, end := timeSpan(msgs)
	err = in.content.RegisterSession(ctx, model.SessionRecord{
		SessionID:     df.SessionID,
		Agent:         df.Agent,
		ProjectID:     projectID,
		ProjectPath:   projectPath,
		Title:         title,
		FilePath:      df.Path,
		IsSubagent:    df.IsSubagent,
		ParentSession: df.ParentSession,
		StartTime:     start,
		EndTime:       end,
		MessageCount:  len(msgs),
	}, cost)
	if err != nil {
		return out, err
	}
	return out, nil
}

// resolveProject picks the session's real project path: an explicit path
// from discovery, then the agent's encoded project folder, then the first
// working directory recorded in the transcript.
func resolveProject(df source.DiscoveredFile, entries []model.Entry, exists projectpath.ExistsFunc) string {
	if df.ProjectPath != "" {
		return df.ProjectPath
	}
	if df.ProjectDir != "" {
		return projectpath.Resolve(df.ProjectDir, exists)
	}
	for _, e := range entries {
		if e.Meta.Cwd != "" {
			return e.Meta.Cwd
		}
	}
	return ""
}

// sessionTitle prefers the agent's own summary, falling back to the first
// user text.
func sessionTitle(entries []model.Entry, msgs []*model.StructuredMessage) string {
	for _, e := range entries {
		if s := strings.TrimSpace(e.Summary); s != "" {
			return clip(s, titleLimit)
		}
	}
	for _, m := range msgs {
		if m.Role != model.RoleUser {
			continue
		}
		for _, b := range m.Blocks {
			if t, ok := b.(model.TextBlock); ok && strings.TrimSpace(t.Text) != "" {
				return clip(t.Text, titleLimit)
			}
		}
	}
	return ""
}

// clip collapses whitespace and cuts s to at most n runes.
func clip(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n-3])) + "..."
}

func timeSpan(msgs []*model.StructuredMessage) (start, end time.Time) {
	for _, m := range msgs {
		if m.Timestamp.IsZero() {
			continue
		}
		if start.IsZero() || m.Timestamp.Before(start) {
			start = m.Timestamp
		}
		if m.Timestamp.After(end) {
			end = m.Timestamp
		}
	}
	return start, end
}
