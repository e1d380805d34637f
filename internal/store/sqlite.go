package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/livedeck/responsync/internal/schema"
)

// schemaVersion is recorded in PRAGMA user_version. Payloads are opaque,
// so a version mismatch drops and recreates both tables instead of
// migrating: stale cross-version data is discarded rather than risking
// corrupt reads.
const schemaVersion = 1

// SQLite is the durable Store backed by an embedded SQLite database in
// WAL mode. Opening is deliberately lazy: callers must not construct one
// until a participant actually joins a session.
type SQLite struct {
	conn *sql.DB
	path string
}

// Open creates (or reopens) the database at path and brings the schema to
// the current version.
//
// Opening is fallible: the underlying file may be unwritable or the
// directory denied. Callers are expected to degrade to the in-memory
// fallback on error rather than treating it as fatal.
//
// The caller MUST call Close() when done.
func Open(path string) (*SQLite, error) {
	if path == "" {
		// "file:" with no path is a private temporary database that
		// vanishes on close; never let that pass for durable storage.
		return nil, fmt.Errorf("store path is required")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping store: %w", err)
	}

	s := &SQLite{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to configure store: %w", err)
		}
	}

	if err := s.initSchema(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection after checkpointing the WAL.
func (s *SQLite) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}

	s.conn = nil
	return nil
}

// initSchema creates the collections, destroying them first when the
// recorded version does not match schemaVersion.
func (s *SQLite) initSchema(ctx context.Context) error {
	var version int
	if err := s.conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer tx.Rollback()

	if version != 0 && version != schemaVersion {
		// Destructive upgrade: drop both collections.
		for _, stmt := range []string{
			"DROP TABLE IF EXISTS responses",
			"DROP TABLE IF EXISTS sessions",
		} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to drop stale schema: %w", err)
			}
		}
	}

	ddl := `
	CREATE TABLE IF NOT EXISTS responses (
		id TEXT PRIMARY KEY,
		participant_id TEXT NOT NULL,
		slide_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at TEXT NOT NULL,
		synced INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		participant_id TEXT NOT NULL,
		joined_at TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_responses_pending
	    ON responses(participant_id, synced);
	CREATE INDEX IF NOT EXISTS idx_sessions_active
	    ON sessions(is_active);
	`

	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema: %w", err)
	}

	return nil
}

// PutResponse implements Store.PutResponse.
func (s *SQLite) PutResponse(ctx context.Context, rec *schema.ResponseRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid response record: %w", err)
	}

	query := `
	INSERT INTO responses (id, participant_id, slide_id, payload, created_at, synced)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		participant_id = excluded.participant_id,
		slide_id = excluded.slide_id,
		payload = excluded.payload,
		created_at = excluded.created_at,
		synced = excluded.synced
	`

	_, err := s.conn.ExecContext(ctx, query,
		rec.ID,
		rec.ParticipantID,
		rec.SlideID,
		string(rec.Payload),
		rec.CreatedAt.Format(time.RFC3339Nano),
		boolToInt(rec.Synced),
	)
	if err != nil {
		return fmt.Errorf("failed to put response %s: %w", rec.ID, err)
	}

	return nil
}

// GetResponse implements Store.GetResponse.
func (s *SQLite) GetResponse(ctx context.Context, id string) (*schema.ResponseRecord, error) {
	query := `
	SELECT id, participant_id, slide_id, payload, created_at, synced
	FROM responses
	WHERE id = ?
	`

	rec, err := scanResponse(s.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get response %s: %w", id, err)
	}

	return rec, nil
}

// DeleteResponse implements Store.DeleteResponse.
func (s *SQLite) DeleteResponse(ctx context.Context, id string) error {
	if _, err := s.conn.ExecContext(ctx, "DELETE FROM responses WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete response %s: %w", id, err)
	}
	return nil
}

// ListUnsynced implements Store.ListUnsynced.
func (s *SQLite) ListUnsynced(ctx context.Context, participantID string) ([]*schema.ResponseRecord, error) {
	query := `
	SELECT id, participant_id, slide_id, payload, created_at, synced
	FROM responses
	WHERE participant_id = ? AND synced = 0
	ORDER BY created_at ASC
	`

	rows, err := s.conn.QueryContext(ctx, query, participantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unsynced responses: %w", err)
	}
	defer rows.Close()

	var recs []*schema.ResponseRecord
	for rows.Next() {
		rec, err := scanResponse(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan response: %w", err)
		}
		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating responses: %w", err)
	}

	return recs, nil
}

// DeleteResponsesFor implements Store.DeleteResponsesFor.
func (s *SQLite) DeleteResponsesFor(ctx context.Context, participantID string) (int, error) {
	res, err := s.conn.ExecContext(ctx, "DELETE FROM responses WHERE participant_id = ?", participantID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete responses for %s: %w", participantID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted responses: %w", err)
	}

	return int(n), nil
}

// ActivateSession implements Store.ActivateSession. The upsert and the
// deactivation of every other session run in one transaction, enforcing
// the single-active-session invariant at write time.
func (s *SQLite) ActivateSession(ctx context.Context, rec *schema.SessionRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid session record: %w", err)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"UPDATE sessions SET is_active = 0 WHERE session_id != ?", rec.SessionID); err != nil {
		return fmt.Errorf("failed to deactivate other sessions: %w", err)
	}

	query := `
	INSERT INTO sessions (session_id, participant_id, joined_at, is_active)
	VALUES (?, ?, ?, 1)
	ON CONFLICT(session_id) DO UPDATE SET
		participant_id = excluded.participant_id,
		joined_at = excluded.joined_at,
		is_active = 1
	`

	if _, err := tx.ExecContext(ctx, query,
		rec.SessionID,
		rec.ParticipantID,
		rec.JoinedAt.Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("failed to activate session %s: %w", rec.SessionID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session activation: %w", err)
	}

	return nil
}

// DeactivateSession implements Store.DeactivateSession.
func (s *SQLite) DeactivateSession(ctx context.Context, sessionID string) error {
	if _, err := s.conn.ExecContext(ctx,
		"UPDATE sessions SET is_active = 0 WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to deactivate session %s: %w", sessionID, err)
	}
	return nil
}

// ListSessions implements Store.ListSessions.
func (s *SQLite) ListSessions(ctx context.Context) ([]*schema.SessionRecord, error) {
	query := `
	SELECT session_id, participant_id, joined_at, is_active
	FROM sessions
	ORDER BY joined_at DESC
	`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var recs []*schema.SessionRecord
	for rows.Next() {
		var rec schema.SessionRecord
		var joinedAt string
		var active int

		if err := rows.Scan(&rec.SessionID, &rec.ParticipantID, &joinedAt, &active); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}

		if t, err := time.Parse(time.RFC3339Nano, joinedAt); err == nil {
			rec.JoinedAt = t
		}
		rec.IsActive = active != 0

		recs = append(recs, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return recs, nil
}

// rowScanner abstracts sql.Row and sql.Rows for scanResponse.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanResponse(row rowScanner) (*schema.ResponseRecord, error) {
	var rec schema.ResponseRecord
	var payload, createdAt string
	var synced int

	err := row.Scan(
		&rec.ID,
		&rec.ParticipantID,
		&rec.SlideID,
		&payload,
		&createdAt,
		&synced,
	)
	if err != nil {
		return nil, err
	}

	rec.Payload = []byte(payload)
	rec.Synced = synced != 0

	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		rec.CreatedAt = t
	}

	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
