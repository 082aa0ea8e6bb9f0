// Package store provides the SQLite-backed content store and derived fact
// store for ingested transcripts.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/theirongolddev/smriti/internal/model"

	_ "modernc.org/sqlite" // register sqlite driver
)

// Store is a SQLite database holding messages, sessions and derived facts.
// It is safe for concurrent use; writers are serialized on one connection.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at the given path. ":memory:" opens a
// private in-memory database.
func Open(dbPath string) (*Store, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating store dir: %w", err)
		}
		dsn += "?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(10000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening store db: %w", err)
	}
	// One connection serializes writers and keeps :memory: databases whole.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// MessageHash is the content address of a message: identical text at the
// same position of the same session maps to the same row.
func MessageHash(sessionID string, sequence int, role model.Role, plainText string) string {
	h := sha256.New()
	h.Write([]byte(sessionID))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(sequence)))
	h.Write([]byte{0})
	h.Write([]byte(role))
	h.Write([]byte{0})
	h.Write([]byte(plainText))
	return hex.EncodeToString(h.Sum(nil))
}

// AddMessage stores a message, returning its content-addressed id. Writing
// identical content again is a no-op reported by Created=false.
func (s *Store) AddMessage(ctx context.Context, sessionID string, role model.Role, plainText string, opts model.MessageOptions) (model.MessageRef, error) {
	id := MessageHash(sessionID, opts.Sequence, role, plainText)

	meta, err := json.Marshal(opts.Metadata)
	if err != nil {
		return model.MessageRef{}, fmt.Errorf("encoding metadata: %w", err)
	}
	blocks := opts.Blocks
	if blocks == nil {
		blocks = model.Blocks{}
	}
	blocksJSON, err := json.Marshal(blocks)
	if err != nil {
		return model.MessageRef{}, fmt.Errorf("encoding blocks: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO messages
		(id, session_id, source_id, agent, role, sequence, timestamp, title,
		 plain_text, metadata_json, blocks_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, sessionID, opts.SourceID, string(opts.Agent), string(role), opts.Sequence,
		formatTime(opts.Timestamp), opts.Title, plainText, string(meta), string(blocksJSON),
		formatTime(s.now()),
	)
	if err != nil {
		return model.MessageRef{}, fmt.Errorf("inserting message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.MessageRef{}, err
	}
	return model.MessageRef{ID: id, Created: n > 0}, nil
}

// ExistingSessionIDs returns every registered session id.
func (s *Store) ExistingSessionIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT session_id FROM sessions")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result[id] = struct{}{}
	}
	return result, rows.Err()
}

// RegisterSession records a session as fully ingested. A non-zero cost is
// added to the session's totals in the same transaction, so a failed
// registration never leaves a cost behind to be counted again on retry.
func (s *Store) RegisterSession(ctx context.Context, r model.SessionRecord, cost model.SessionCost) error {
	ingested := r.IngestedAt
	if ingested.IsZero() {
		ingested = s.now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if !cost.IsZero() {
		if cost.SessionID == "" {
			cost.SessionID = r.SessionID
		}
		if err := s.upsertCost(ctx, tx, cost); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO sessions
		(session_id, agent, project_id, project_path, title, file_path, is_subagent,
		 parent_session, start_time, end_time, message_count, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, string(r.Agent), r.ProjectID, r.ProjectPath, r.Title, r.FilePath,
		boolInt(r.IsSubagent), r.ParentSession, formatTime(r.StartTime), formatTime(r.EndTime),
		r.MessageCount, formatTime(ingested),
	)
	if err != nil {
		return fmt.Errorf("registering session %s: %w", r.SessionID, err)
	}
	return tx.Commit()
}

// DeleteSession removes a session registration and everything stored for
// it, making it eligible for re-ingestion.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{
		"sessions", "messages", "tool_usage", "file_operations",
		"commands", "git_operations", "errors", "session_costs",
	} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE session_id = ?", sessionID); err != nil {
			return fmt.Errorf("deleting from %s: %w", table, err)
		}
	}
	return tx.Commit()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s.String)
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}
