// Package journal keeps a SQLite record of flush activity for debugging
// coalescing behavior. It records what was already forwarded - buffered
// text itself is never persisted.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/HyphaGroup/demitasse/internal/acp"
	"github.com/HyphaGroup/demitasse/internal/logger"
)

// Entry is one recorded flush
type Entry struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Cause     string    `json:"cause"`
	Bytes     int       `json:"bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// Journal persists flush records
type Journal struct {
	db *sql.DB
}

// Open creates or opens the journal database at path
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate journal database: %w", err)
	}

	return j, nil
}

func (j *Journal) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS flushes (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		cause TEXT NOT NULL,
		bytes INTEGER NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_flushes_created_at ON flushes(created_at);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Close closes the database connection
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record implements debounce.FlushLog. Journal failures are logged, not
// propagated - a broken journal must not take down forwarding.
func (j *Journal) Record(session acp.SessionID, trigger string, bytes int) {
	_, err := j.db.Exec(
		`INSERT INTO flushes (id, session_id, cause, bytes, created_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), string(session), trigger, bytes, time.Now().UTC(),
	)
	if err != nil {
		logger.Error("failed to record flush", "session_id", session, "error", err)
	}
}

// Recent returns the most recent flushes, newest first
func (j *Journal) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := j.db.Query(
		`SELECT id, session_id, cause, bytes, created_at FROM flushes ORDER BY created_at DESC, id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query flushes: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Cause, &e.Bytes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan flush row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes flush records older than the retention window and returns
// how many were removed
func (j *Journal) Prune(retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	res, err := j.db.Exec(`DELETE FROM flushes WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune flushes: %w", err)
	}
	return res.RowsAffected()
}
