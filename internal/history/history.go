// Package history keeps a persistent ledger of completed downloads. It
// records finished artifacts only; live job state stays in memory and is
// lost on restart by design.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // sqlite driver
)

// Record is one completed download.
type Record struct {
	JobID     string    `json:"job_id"`
	Platform  string    `json:"platform"`
	MediaKind string    `json:"media_kind"`
	Filename  string    `json:"filename"`
	FileSize  int64     `json:"file_size"`
	SourceURL string    `json:"source_url"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists download records in sqlite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the history database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	s := &Store{db: db}
	if err := s.initTable(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS downloads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL,
		platform TEXT NOT NULL,
		media_kind TEXT NOT NULL,
		filename TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		source_url TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_downloads_created_at ON downloads(created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("init history table: %w", err)
	}
	return nil
}

// Add inserts one completed download.
func (s *Store) Add(ctx context.Context, rec Record) error {
	query := `INSERT INTO downloads (job_id, platform, media_kind, filename, file_size, source_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		rec.JobID, rec.Platform, rec.MediaKind, rec.Filename, rec.FileSize, rec.SourceURL, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert history record: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	query := `SELECT job_id, platform, media_kind, filename, file_size, source_url, created_at
		FROM downloads ORDER BY created_at DESC, id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.JobID, &rec.Platform, &rec.MediaKind,
			&rec.Filename, &rec.FileSize, &rec.SourceURL, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return records, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close history db: %w", err)
	}
	return nil
}
