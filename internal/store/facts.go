package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/theirongolddev/smriti/internal/model"
)

// Fact rows are keyed by (message_id, block_index); re-inserting the same
// block is ignored.

func (s *Store) InsertToolUsage(ctx context.Context, f model.ToolUsage) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO tool_usage
		(message_id, block_index, session_id, tool_id, tool_name, input_summary,
		 success, result_preview, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.MessageID, f.BlockIndex, f.SessionID, f.ToolID, f.ToolName, f.InputSummary,
		nullBool(f.Success), f.ResultPreview, formatTime(f.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("inserting tool usage: %w", err)
	}
	return nil
}

func (s *Store) InsertFileOperation(ctx context.Context, f model.FileOperationFact) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO file_operations
		(message_id, block_index, session_id, operation, path, project, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.MessageID, f.BlockIndex, f.SessionID, string(f.Operation), f.Path, f.Project,
		formatTime(f.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("inserting file operation: %w", err)
	}
	return nil
}

func (s *Store) InsertCommand(ctx context.Context, f model.CommandFact) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO commands
		(message_id, block_index, session_id, command, description, cwd, is_git,
		 success, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.MessageID, f.BlockIndex, f.SessionID, f.Command, f.Description, f.Cwd,
		boolInt(f.IsGit), nullBool(f.Success), formatTime(f.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("inserting command: %w", err)
	}
	return nil
}

func (s *Store) InsertGitOperation(ctx context.Context, f model.GitOperationFact) error {
	var prNumber sql.NullInt64
	if f.PRNumber > 0 {
		prNumber = sql.NullInt64{Int64: int64(f.PRNumber), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO git_operations
		(message_id, block_index, session_id, operation, branch, message, pr_url,
		 pr_number, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.MessageID, f.BlockIndex, f.SessionID, string(f.Operation), f.Branch, f.Message,
		f.PRURL, prNumber, formatTime(f.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("inserting git operation: %w", err)
	}
	return nil
}

func (s *Store) InsertError(ctx context.Context, f model.ErrorFact) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO errors
		(message_id, block_index, session_id, error_type, message, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		f.MessageID, f.BlockIndex, f.SessionID, f.ErrorType, f.Message, formatTime(f.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("inserting error: %w", err)
	}
	return nil
}

// UpsertSessionCost adds c to the session's stored totals. An empty model
// keeps the stored one.
func (s *Store) UpsertSessionCost(ctx context.Context, c model.SessionCost) error {
	return s.upsertCost(ctx, s.db, c)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) upsertCost(ctx context.Context, ex execer, c model.SessionCost) error {
	_, err := ex.ExecContext(ctx, `INSERT INTO session_costs
		(session_id, model, input_tokens, output_tokens, cache_tokens, duration_ms,
		 estimated_cost_usd, updated_at)
		VALUES (?, NULLIF(?, ''), ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			model              = COALESCE(excluded.model, session_costs.model),
			input_tokens       = session_costs.input_tokens + excluded.input_tokens,
			output_tokens      = session_costs.output_tokens + excluded.output_tokens,
			cache_tokens       = session_costs.cache_tokens + excluded.cache_tokens,
			duration_ms        = session_costs.duration_ms + excluded.duration_ms,
			estimated_cost_usd = session_costs.estimated_cost_usd + excluded.estimated_cost_usd,
			updated_at         = excluded.updated_at`,
		c.SessionID, c.Model, c.InputTokens, c.OutputTokens, c.CacheTokens, c.DurationMs,
		c.EstimatedCostUSD, formatTime(s.now()),
	)
	if err != nil {
		return fmt.Errorf("upserting session cost: %w", err)
	}
	return nil
}
