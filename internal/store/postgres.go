package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is a Ledger on a PostgreSQL server, shared by several machines.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres establishes a connection pool and ensures the schema is initialized.
func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initPostgresSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func initPostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE TABLE IF NOT EXISTS video_metadata (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			indexed_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS clips (
			id BIGSERIAL PRIMARY KEY,
			run_id TEXT NOT NULL,
			video_id TEXT REFERENCES video_metadata(id),
			file TEXT NOT NULL,
			segment_index INT NOT NULL,
			track_id INT NOT NULL,
			start_time DOUBLE PRECISION NOT NULL,
			end_time DOUBLE PRECISION NOT NULL,
			output_path TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
		);
		CREATE INDEX IF NOT EXISTS clips_run_id_idx ON clips (run_id);
	`
	_, err := pool.Exec(ctx, query)
	return err
}

func (p *Postgres) EnsureVideoMetadata(ctx context.Context, videoID, path string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO video_metadata (id, path, indexed_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET indexed_at = NOW(), path = EXCLUDED.path
	`, videoID, path)
	return err
}

func (p *Postgres) RecordClip(ctx context.Context, c Clip) error {
	var videoID *string
	if c.VideoID != "" {
		videoID = &c.VideoID
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO clips (run_id, video_id, file, segment_index, track_id, start_time, end_time, output_path, status, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (output_path) DO UPDATE SET
			run_id = EXCLUDED.run_id, video_id = EXCLUDED.video_id, file = EXCLUDED.file,
			segment_index = EXCLUDED.segment_index, track_id = EXCLUDED.track_id,
			start_time = EXCLUDED.start_time, end_time = EXCLUDED.end_time,
			status = EXCLUDED.status, error = EXCLUDED.error, created_at = clock_timestamp()
	`, c.RunID, videoID, c.File, c.SegmentIndex, c.TrackID, c.Start, c.End, c.OutputPath, c.Status, c.Error)
	return err
}

func (p *Postgres) ListClips(ctx context.Context, f Filter) ([]Clip, error) {
	where, args := filterClause(f, func(n int) string { return "$" + strconv.Itoa(n) })
	query := `SELECT id, run_id, COALESCE(video_id, ''), file, segment_index, track_id, start_time, end_time,
		output_path, status, error, created_at FROM clips` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Clip, error) {
		var c Clip
		err := row.Scan(&c.ID, &c.RunID, &c.VideoID, &c.File, &c.SegmentIndex, &c.TrackID, &c.Start, &c.End,
			&c.OutputPath, &c.Status, &c.Error, &c.CreatedAt)
		return c, err
	})
}

// Reset drops all application tables to clear the database state.
func (p *Postgres) Reset(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		DROP TABLE IF EXISTS clips CASCADE;
		DROP TABLE IF EXISTS video_metadata CASCADE;
	`)
	return err
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
