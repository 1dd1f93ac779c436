package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bengol30/bandgo/internal/config"
	"github.com/bengol30/bandgo/internal/domain"
	"github.com/bengol30/bandgo/internal/persistence/filestore"
	"github.com/bengol30/bandgo/internal/persistence/sqlite"
	"github.com/bengol30/bandgo/internal/testfixtures"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenBackend(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("file", func(t *testing.T) {
		t.Parallel()
		b, err := openBackend(ctx, config.Config{SnapshotBackend: config.BackendFile, SnapshotPath: filepath.Join(t.TempDir(), "s.json")}, nil)
		require.NoError(t, err)
		assert.IsType(t, &filestore.Store{}, b.store)
		assert.Nil(t, b.health)
		assert.NoError(t, b.close())
	})

	t.Run("sqlite migrates and pings", func(t *testing.T) {
		t.Parallel()
		b, err := openBackend(ctx, config.Config{SnapshotBackend: config.BackendSQLite, SQLiteDSN: filepath.Join(t.TempDir(), "bandgo.db")}, nil)
		require.NoError(t, err)
		defer b.close()
		assert.IsType(t, &sqlite.SnapshotStore{}, b.store)
		assert.NoError(t, b.health(ctx))
	})

	t.Run("redis requires a client", func(t *testing.T) {
		t.Parallel()
		_, err := openBackend(ctx, config.Config{SnapshotBackend: config.BackendRedis}, nil)
		assert.Error(t, err)
	})

	t.Run("none", func(t *testing.T) {
		t.Parallel()
		b, err := openBackend(ctx, config.Config{SnapshotBackend: config.BackendNone}, nil)
		require.NoError(t, err)
		assert.Nil(t, b.store)
	})
}

func TestRestore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("missing snapshot starts empty", func(t *testing.T) {
		t.Parallel()
		h := testfixtures.NewHarness(t)
		store := filestore.New(filepath.Join(t.TempDir(), "absent.json"))
		assert.NoError(t, restore(ctx, h.Platform, store, discardLogger()))
	})

	t.Run("loads the saved state", func(t *testing.T) {
		t.Parallel()
		source := testfixtures.NewHarness(t)
		user := source.SeedUser(t)
		snapshot, err := source.Platform.Snapshot(ctx)
		require.NoError(t, err)
		store := filestore.New(filepath.Join(t.TempDir(), "snapshot.json"))
		require.NoError(t, store.SaveSnapshot(ctx, snapshot))

		target := testfixtures.NewHarness(t)
		require.NoError(t, restore(ctx, target.Platform, store, discardLogger()))
		got, err := target.Platform.Auth.GetUser(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, user.Email, got.Email)
	})
}

func TestRun_SavesFinalSnapshot(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "snapshot.json")
	cfg := config.Config{
		SnapshotBackend: config.BackendFile,
		SnapshotPath:    path,
		OpsAddr:         "127.0.0.1:0",
		Settings:        domain.DefaultSettings(),
	}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	require.NoError(t, run(ctx, cfg, discardLogger()))

	snapshot, err := filestore.New(path).LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snapshot.Users)
}
