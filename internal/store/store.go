// Package store persists the scrobble queue and the known-registered
// track cache in SQLite.
//
// The queue survives restarts so a qualifying play is never lost to a
// gateway outage; the registration cache lets the pipeline skip
// registry lookups for tracks it has already registered.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Scrobble is a queued listening record.
type Scrobble struct {
	ID         int64
	Artist     string
	Title      string
	Album      string
	MBID       string
	IPID       string
	DurationMs int64
	PlayedAt   time.Time
	Submitted  bool
	UserOpHash string
	Error      string
}

// Open creates or opens the store at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection keeps in-memory databases consistent and is
	// plenty for this workload.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA journal_mode = WAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS scrobbles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			artist TEXT NOT NULL,
			title TEXT NOT NULL,
			album TEXT,
			mbid TEXT,
			ip_id TEXT,
			duration_ms INTEGER NOT NULL,
			played_at INTEGER NOT NULL,
			submitted BOOLEAN DEFAULT 0,
			user_op_hash TEXT,
			error TEXT,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);

		CREATE INDEX IF NOT EXISTS idx_submitted ON scrobbles(submitted, played_at);

		CREATE TABLE IF NOT EXISTS registered_tracks (
			track_id TEXT PRIMARY KEY,
			registered_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Add queues a new scrobble and returns its id.
func (s *Store) Add(ctx context.Context, sc Scrobble) (int64, error) {
	query := `
		INSERT INTO scrobbles (artist, title, album, mbid, ip_id, duration_ms, played_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		sc.Artist, sc.Title, sc.Album, sc.MBID, sc.IPID,
		sc.DurationMs, sc.PlayedAt.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert scrobble: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get insert id: %w", err)
	}
	return id, nil
}

// GetPending retrieves unsubmitted scrobbles ordered by play time.
// limit <= 0 means no limit.
func (s *Store) GetPending(ctx context.Context, limit int) ([]Scrobble, error) {
	query := `
		SELECT id, artist, title, album, mbid, ip_id, duration_ms, played_at,
		       submitted, COALESCE(user_op_hash, ''), COALESCE(error, '')
		FROM scrobbles
		WHERE submitted = 0
		ORDER BY played_at ASC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending scrobbles: %w", err)
	}
	defer rows.Close()

	return scanScrobbles(rows)
}

// MarkSubmitted marks a batch as submitted under one UserOperation
// hash, clearing any previous error.
func (s *Store) MarkSubmitted(ctx context.Context, ids []int64, userOpHash string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, "UPDATE scrobbles SET submitted = 1, user_op_hash = ?, error = NULL WHERE id = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, userOpHash, id); err != nil {
			return fmt.Errorf("failed to mark scrobble %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// MarkError records a failed submission attempt. The scrobble stays
// pending and will be retried.
func (s *Store) MarkError(ctx context.Context, id int64, errMsg string) error {
	result, err := s.db.ExecContext(ctx, "UPDATE scrobbles SET error = ? WHERE id = ?", errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to mark scrobble error: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("scrobble with id %d not found", id)
	}
	return nil
}

// MarkRegistered records track ids as registered on-chain.
func (s *Store) MarkRegistered(ctx context.Context, trackIDs ...string) error {
	if len(trackIDs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO registered_tracks (track_id) VALUES (?)")
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, id := range trackIDs {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("failed to mark track %s registered: %w", id, err)
		}
	}

	return tx.Commit()
}

// IsRegistered reports whether a track id is in the local
// registration cache. A miss only means the chain must be consulted.
func (s *Store) IsRegistered(ctx context.Context, trackID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM registered_tracks WHERE track_id = ?", trackID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query registered track: %w", err)
	}
	return true, nil
}

// Count returns the number of scrobbles. If includeSubmitted is false,
// only pending scrobbles are counted.
func (s *Store) Count(ctx context.Context, includeSubmitted bool) (int, error) {
	query := "SELECT COUNT(*) FROM scrobbles"
	if !includeSubmitted {
		query += " WHERE submitted = 0"
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count scrobbles: %w", err)
	}
	return count, nil
}

// GetAll retrieves every scrobble, newest first.
func (s *Store) GetAll(ctx context.Context) ([]Scrobble, error) {
	query := `
		SELECT id, artist, title, album, mbid, ip_id, duration_ms, played_at,
		       submitted, COALESCE(user_op_hash, ''), COALESCE(error, '')
		FROM scrobbles
		ORDER BY played_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query scrobbles: %w", err)
	}
	defer rows.Close()

	return scanScrobbles(rows)
}

// Cleanup removes submitted records older than maxAge. Pending
// scrobbles are always kept.
func (s *Store) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).Unix()

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM scrobbles WHERE submitted = 1 AND played_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old scrobbles: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

func scanScrobbles(rows *sql.Rows) ([]Scrobble, error) {
	var scrobbles []Scrobble
	for rows.Next() {
		var sc Scrobble
		var playedAt int64

		err := rows.Scan(
			&sc.ID, &sc.Artist, &sc.Title, &sc.Album, &sc.MBID, &sc.IPID,
			&sc.DurationMs, &playedAt, &sc.Submitted, &sc.UserOpHash, &sc.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scrobble: %w", err)
		}

		sc.PlayedAt = time.Unix(playedAt, 0)
		scrobbles = append(scrobbles, sc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scrobbles: %w", err)
	}
	return scrobbles, nil
}
