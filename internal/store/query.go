package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/theirongolddev/smriti/internal/model"
)

// SessionFilter narrows ListSessions.
type SessionFilter struct {
	Agent model.Agent
	Limit int
}

// ListSessions returns registered sessions joined with their costs, newest
// first.
func (s *Store) ListSessions(ctx context.Context, f SessionFilter) ([]model.SessionSummary, error) {
	var (
		where []string
		args  []any
	)
	if f.Agent != "" {
		where = append(where, "s.agent = ?")
		args = append(args, string(f.Agent))
	}

	query := `SELECT s.session_id, s.agent, s.project_id, s.project_path, s.title,
		s.file_path, s.is_subagent, s.parent_session, s.start_time, s.end_time,
		s.message_count, s.ingested_at,
		c.model, COALESCE(c.input_tokens, 0), COALESCE(c.output_tokens, 0),
		COALESCE(c.cache_tokens, 0), COALESCE(c.duration_ms, 0),
		COALESCE(c.estimated_cost_usd, 0)
		FROM sessions s LEFT JOIN session_costs c ON c.session_id = s.session_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY s.start_time DESC, s.session_id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []model.SessionSummary
	for rows.Next() {
		var (
			ss                                    model.SessionSummary
			agent                                 string
			projectPath, title, parent, costModel sql.NullString
			startTime, endTime, ingestedAt        sql.NullString
			isSub                                 int
		)
		if err := rows.Scan(
			&ss.SessionID, &agent, &ss.ProjectID, &projectPath, &title,
			&ss.FilePath, &isSub, &parent, &startTime, &endTime,
			&ss.MessageCount, &ingestedAt,
			&costModel, &ss.Cost.InputTokens, &ss.Cost.OutputTokens,
			&ss.Cost.CacheTokens, &ss.Cost.DurationMs, &ss.Cost.EstimatedCostUSD,
		); err != nil {
			return nil, err
		}
		ss.Agent = model.Agent(agent)
		ss.ProjectPath = projectPath.String
		ss.Title = title.String
		ss.ParentSession = parent.String
		ss.IsSubagent = isSub != 0
		ss.StartTime = parseTime(startTime)
		ss.EndTime = parseTime(endTime)
		ss.IngestedAt = parseTime(ingestedAt)
		ss.Cost.SessionID = ss.SessionID
		ss.Cost.Model = costModel.String
		result = append(result, ss)
	}
	return result, rows.Err()
}

// SessionCost returns the accumulated cost of one session. A session with
// no recorded cost yields a zero value and no error.
func (s *Store) SessionCost(ctx context.Context, sessionID string) (model.SessionCost, error) {
	c := model.SessionCost{SessionID: sessionID}
	var m sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT model, input_tokens, output_tokens,
		cache_tokens, duration_ms, estimated_cost_usd
		FROM session_costs WHERE session_id = ?`, sessionID,
	).Scan(&m, &c.InputTokens, &c.OutputTokens, &c.CacheTokens, &c.DurationMs, &c.EstimatedCostUSD)
	if errors.Is(err, sql.ErrNoRows) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("reading session cost: %w", err)
	}
	c.Model = m.String
	return c, nil
}

// Messages returns a session's stored messages in sequence order.
func (s *Store) Messages(ctx context.Context, sessionID string) ([]model.StructuredMessage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, agent, role, sequence, timestamp,
		plain_text, metadata_json, blocks_json
		FROM messages WHERE session_id = ? ORDER BY sequence`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("reading messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []model.StructuredMessage
	for rows.Next() {
		var (
			m                   model.StructuredMessage
			agent, role         sql.NullString
			ts                  sql.NullString
			metaJSON, blockJSON string
		)
		if err := rows.Scan(&m.ID, &agent, &role, &m.Sequence, &ts, &m.PlainText, &metaJSON, &blockJSON); err != nil {
			return nil, err
		}
		m.SessionID = sessionID
		m.Agent = model.Agent(agent.String)
		m.Role = model.Role(role.String)
		m.Timestamp = parseTime(ts)
		if err := json.Unmarshal([]byte(metaJSON), &m.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata of %s: %w", m.ID, err)
		}
		if err := json.Unmarshal([]byte(blockJSON), &m.Blocks); err != nil {
			return nil, fmt.Errorf("decoding blocks of %s: %w", m.ID, err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// FileOperations returns the file facts of a session in block order.
func (s *Store) FileOperations(ctx context.Context, sessionID string) ([]model.FileOperationFact, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT f.message_id, f.block_index, f.operation,
		f.path, f.project, f.timestamp
		FROM file_operations f JOIN messages m ON m.id = f.message_id
		WHERE f.session_id = ? ORDER BY m.sequence, f.block_index`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("reading file operations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []model.FileOperationFact
	for rows.Next() {
		var (
			f             model.FileOperationFact
			op            string
			path, project sql.NullString
			ts            sql.NullString
		)
		if err := rows.Scan(&f.MessageID, &f.BlockIndex, &op, &path, &project, &ts); err != nil {
			return nil, err
		}
		f.SessionID = sessionID
		f.Operation = model.FileOp(op)
		f.Path = path.String
		f.Project = project.String
		f.Timestamp = parseTime(ts)
		result = append(result, f)
	}
	return result, rows.Err()
}

// AgentCount is the number of sessions and messages stored for an agent.
type AgentCount struct {
	Agent    model.Agent
	Sessions int
	Messages int
}

// CountByAgent summarizes stored sessions per agent.
func (s *Store) CountByAgent(ctx context.Context) ([]AgentCount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT agent, COUNT(*), COALESCE(SUM(message_count), 0)
		FROM sessions GROUP BY agent ORDER BY agent`)
	if err != nil {
		return nil, fmt.Errorf("counting sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []AgentCount
	for rows.Next() {
		var (
			c     AgentCount
			agent string
		)
		if err := rows.Scan(&agent, &c.Sessions, &c.Messages); err != nil {
			return nil, err
		}
		c.Agent = model.Agent(agent)
		result = append(result, c)
	}
	return result, rows.Err()
}
