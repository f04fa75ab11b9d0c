package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// exerciseLedger runs the same scenario against any backend.
func exerciseLedger(t *testing.T, ctx context.Context, l Ledger) {
	t.Helper()

	if err := l.EnsureVideoMetadata(ctx, "vid_123", "/tmp/video.mp4"); err != nil {
		t.Fatalf("EnsureVideoMetadata failed: %v", err)
	}
	// Second call refreshes rather than failing.
	if err := l.EnsureVideoMetadata(ctx, "vid_123", "/data/video.mp4"); err != nil {
		t.Fatalf("EnsureVideoMetadata (again) failed: %v", err)
	}

	clips := []Clip{
		{RunID: "run-a", VideoID: "vid_123", File: "talk", SegmentIndex: 1, TrackID: 0, Start: 1, End: 3, OutputPath: "/out/talk/00001.mp4", Status: StatusOK},
		{RunID: "run-a", VideoID: "vid_123", File: "talk", SegmentIndex: 2, TrackID: 4, Start: 5, End: 6, OutputPath: "/out/talk/00002.mp4", Status: StatusFailed, Error: "degenerate crop"},
		{RunID: "run-a", File: "other", SegmentIndex: 9, OutputPath: "/out/other/00009.mp4", Status: StatusSkipped},
	}
	for _, c := range clips {
		if err := l.RecordClip(ctx, c); err != nil {
			t.Fatalf("RecordClip failed: %v", err)
		}
	}

	all, err := l.ListClips(ctx, Filter{})
	if err != nil {
		t.Fatalf("ListClips failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 clips, got %d", len(all))
	}
	if all[0].OutputPath != "/out/other/00009.mp4" {
		t.Errorf("Expected newest clip first, got %s", all[0].OutputPath)
	}

	failed, err := l.ListClips(ctx, Filter{RunID: "run-a", Status: StatusFailed})
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 1 || failed[0].Error != "degenerate crop" || failed[0].TrackID != 4 {
		t.Errorf("Unexpected failed clips %+v", failed)
	}

	// Re-running a segment replaces its row.
	retry := clips[1]
	retry.RunID, retry.Status, retry.Error = "run-b", StatusOK, ""
	if err := l.RecordClip(ctx, retry); err != nil {
		t.Fatal(err)
	}
	all, err = l.ListClips(ctx, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 clips after retry, got %d", len(all))
	}
	runB, err := l.ListClips(ctx, Filter{RunID: "run-b", Limit: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(runB) != 1 || runB[0].Status != StatusOK || runB[0].Start != 5 {
		t.Errorf("Unexpected run-b clips %+v", runB)
	}

	limited, err := l.ListClips(ctx, Filter{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("Expected 2 clips with limit, got %d", len(limited))
	}
}

func TestSQLiteLedger(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "ledger.db")

	l, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	exerciseLedger(t, ctx, l)

	if err := l.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	// Reopening recreates the schema on an empty database.
	l, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer l.Close()
	clips, err := l.ListClips(ctx, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(clips) != 0 {
		t.Errorf("Expected empty ledger after reset, got %d clips", len(clips))
	}
}

func TestIsPostgres(t *testing.T) {
	tests := map[string]bool{
		"postgres://user:pw@localhost/voxclip": true,
		"postgresql://localhost/voxclip":       true,
		"/var/lib/voxclip/ledger.db":           false,
		"ledger.db":                            false,
	}
	for dsn, want := range tests {
		if got := IsPostgres(dsn); got != want {
			t.Errorf("IsPostgres(%q) = %v, want %v", dsn, got, want)
		}
	}
}

// TestPostgresIntegration runs the ledger scenario against a real Postgres container.
// It requires Docker to be running.
func TestPostgresIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// We wrap this in a function to recover from panics inside testcontainers (e.g. socket not found)
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		cli, err := testcontainers.NewDockerClientWithOpts(ctx)
		if err != nil {
			return err
		}
		defer cli.Close()
		_, err = cli.Ping(ctx)
		return err
	}()
	if err != nil {
		t.Skipf("Docker not available: %v", err)
	}

	pgContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("voxclip_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("Failed to terminate container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	l, err := Open(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to connect to store: %v", err)
	}
	defer l.Close()
	if _, ok := l.(*Postgres); !ok {
		t.Fatalf("Open(%q) returned %T", connStr, l)
	}

	exerciseLedger(t, ctx, l)
	if err := l.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
}
