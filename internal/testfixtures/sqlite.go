package testfixtures

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/bengol30/bandgo/internal/persistence/sqlite"
)

// SQLiteHarness provides a migrated SQLite snapshot store backed by a
// temporary database file.
type SQLiteHarness struct {
	Pool      *sqlite.ConnectionPool
	Snapshots *sqlite.SnapshotStore
	Path      string

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness opens and migrates a database under tb.TempDir. Close is
// registered with tb, so calling it explicitly is optional.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "bandgo.db")
	pool, err := sqlite.NewConnectionPool(context.Background(), sqlite.DefaultConfig(path))
	if err != nil {
		tb.Fatalf("failed to open sqlite: %v", err)
	}
	if err := pool.Migrate(); err != nil {
		_ = pool.Close()
		tb.Fatalf("failed to migrate sqlite: %v", err)
	}

	retry := sqlite.RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffFactor: 2}
	harness := &SQLiteHarness{
		Pool:      pool,
		Snapshots: sqlite.NewSnapshotStore(pool, "", retry),
		Path:      path,
		cleanup: func() {
			_ = pool.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}
