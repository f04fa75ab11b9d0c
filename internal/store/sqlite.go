package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite is a Ledger in a local database file.
type SQLite struct {
	db   *sql.DB
	path string
}

// NewSQLite opens (or creates) the database at path and applies the schema.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Workers report through one goroutine; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &SQLite{db: db, path: path}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}
	return s, nil
}

func (s *SQLite) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS video_metadata (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			indexed_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS clips (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			video_id TEXT REFERENCES video_metadata(id),
			file TEXT NOT NULL,
			segment_index INTEGER NOT NULL,
			track_id INTEGER NOT NULL,
			start_time REAL NOT NULL,
			end_time REAL NOT NULL,
			output_path TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS clips_run_id_idx ON clips (run_id);
	`)
	return err
}

// Path returns the database file.
func (s *SQLite) Path() string { return s.path }

func (s *SQLite) EnsureVideoMetadata(ctx context.Context, videoID, path string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO video_metadata (id, path, indexed_at)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET indexed_at = excluded.indexed_at, path = excluded.path
	`, videoID, path, time.Now().Unix())
	return err
}

func (s *SQLite) RecordClip(ctx context.Context, c Clip) error {
	var videoID any
	if c.VideoID != "" {
		videoID = c.VideoID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clips (run_id, video_id, file, segment_index, track_id, start_time, end_time, output_path, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (output_path) DO UPDATE SET
			run_id = excluded.run_id, video_id = excluded.video_id, file = excluded.file,
			segment_index = excluded.segment_index, track_id = excluded.track_id,
			start_time = excluded.start_time, end_time = excluded.end_time,
			status = excluded.status, error = excluded.error, created_at = excluded.created_at
	`, c.RunID, videoID, c.File, c.SegmentIndex, c.TrackID, c.Start, c.End, c.OutputPath, c.Status, c.Error, time.Now().UnixNano())
	return err
}

func (s *SQLite) ListClips(ctx context.Context, f Filter) ([]Clip, error) {
	where, args := filterClause(f, func(int) string { return "?" })
	query := `SELECT id, run_id, COALESCE(video_id, ''), file, segment_index, track_id, start_time, end_time,
		output_path, status, error, created_at FROM clips` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clips []Clip
	for rows.Next() {
		var c Clip
		var created int64
		if err := rows.Scan(&c.ID, &c.RunID, &c.VideoID, &c.File, &c.SegmentIndex, &c.TrackID, &c.Start, &c.End,
			&c.OutputPath, &c.Status, &c.Error, &created); err != nil {
			return nil, err
		}
		c.CreatedAt = time.Unix(0, created)
		clips = append(clips, c)
	}
	return clips, rows.Err()
}

func (s *SQLite) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		DROP TABLE IF EXISTS clips;
		DROP TABLE IF EXISTS video_metadata;
	`)
	return err
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// filterClause builds the WHERE clause of f using the backend's placeholder style.
func filterClause(f Filter, placeholder func(n int) string) (string, []any) {
	var conds []string
	var args []any
	add := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		conds = append(conds, col+" = "+placeholder(len(args)))
	}
	add("run_id", f.RunID)
	add("file", f.File)
	add("status", f.Status)
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
