// Package store keeps a ledger of processed videos and every clip outcome.
// SQLite is the local default; a postgres:// DSN selects PostgreSQL.
package store

import (
	"context"
	"strings"
	"time"
)

// Clip statuses.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Clip is one segment outcome.
type Clip struct {
	ID           int64
	RunID        string
	VideoID      string
	File         string
	SegmentIndex int
	TrackID      int
	Start        float64
	End          float64
	OutputPath   string
	Status       string
	Error        string
	CreatedAt    time.Time
}

// Filter narrows ListClips. Zero values match everything.
type Filter struct {
	RunID  string
	File   string
	Status string
	Limit  int
}

// Ledger is the persistence used by the CLI.
type Ledger interface {
	// EnsureVideoMetadata registers a source video, refreshing its path and timestamp.
	EnsureVideoMetadata(ctx context.Context, videoID, path string) error
	// RecordClip stores a clip outcome. A second record for the same output path replaces the first.
	RecordClip(ctx context.Context, c Clip) error
	// ListClips returns clips newest first.
	ListClips(ctx context.Context, f Filter) ([]Clip, error)
	// Reset drops every table. The next Open recreates them.
	Reset(ctx context.Context) error
	Close() error
}

// Open picks the backend from dsn.
func Open(ctx context.Context, dsn string) (Ledger, error) {
	if IsPostgres(dsn) {
		return NewPostgres(ctx, dsn)
	}
	return NewSQLite(ctx, dsn)
}

// IsPostgres reports whether dsn is a PostgreSQL URL.
func IsPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}
