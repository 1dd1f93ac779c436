package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bengol30/bandgo/internal/domain"
	"github.com/bengol30/bandgo/internal/persistence"
	"github.com/bengol30/bandgo/internal/persistence/sqlite"
)

func fastRetry() sqlite.RetryConfig {
	return sqlite.RetryConfig{
		MaxRetries:    2,
		InitialDelay:  time.Millisecond,
		MaxDelay:      2 * time.Millisecond,
		BackoffFactor: 2,
	}
}

func openMemoryPool(t *testing.T) *sqlite.ConnectionPool {
	t.Helper()
	ctx := context.Background()
	pool, err := sqlite.NewConnectionPool(ctx, sqlite.DefaultConfig(":memory:"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	require.NoError(t, pool.Migrate())
	return pool
}

func TestSnapshotStoreOnSQLite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("reports ErrNotFound for an empty database", func(t *testing.T) {
		t.Parallel()

		store := sqlite.NewSnapshotStore(openMemoryPool(t), "", fastRetry())
		_, err := store.LoadSnapshot(ctx)
		require.ErrorIs(t, err, persistence.ErrNotFound)
	})

	t.Run("saves, overwrites and reloads the blob", func(t *testing.T) {
		t.Parallel()

		pool := openMemoryPool(t)
		store := sqlite.NewSnapshotStore(pool, "platform", fastRetry())
		at := time.Date(2024, 2, 10, 12, 0, 0, 0, time.UTC)

		first := persistence.Snapshot{SavedAt: at, Bands: []domain.Band{{ID: "band-1", Name: "First"}}}
		require.NoError(t, store.SaveSnapshot(ctx, first))

		second := persistence.Snapshot{
			SavedAt: at.Add(time.Minute),
			Bands:   []domain.Band{{ID: "band-1", Name: "Second", CreatedAt: at}},
		}
		require.NoError(t, store.SaveSnapshot(ctx, second))

		loaded, err := store.LoadSnapshot(ctx)
		require.NoError(t, err)
		require.Len(t, loaded.Bands, 1)
		assert.Equal(t, "Second", loaded.Bands[0].Name)
		assert.True(t, loaded.Bands[0].CreatedAt.Equal(at))

		var rows int
		require.NoError(t, pool.DB().GetContext(ctx, &rows, `SELECT COUNT(*) FROM snapshots`))
		assert.Equal(t, 1, rows)
	})

	t.Run("migrations are idempotent", func(t *testing.T) {
		t.Parallel()

		pool := openMemoryPool(t)
		require.NoError(t, pool.Migrate())
	})

	t.Run("keys are independent", func(t *testing.T) {
		t.Parallel()

		pool := openMemoryPool(t)
		a := sqlite.NewSnapshotStore(pool, "a", fastRetry())
		b := sqlite.NewSnapshotStore(pool, "b", fastRetry())
		require.NoError(t, a.SaveSnapshot(ctx, persistence.Snapshot{Users: []domain.User{{ID: "u-a"}}}))

		_, err := b.LoadSnapshot(ctx)
		require.ErrorIs(t, err, persistence.ErrNotFound)
	})
}

func TestSnapshotStoreRetries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("retries a locked database and then succeeds", func(t *testing.T) {
		t.Parallel()

		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO snapshots").
			WithArgs("platform", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnError(errors.New("database is locked (5) (SQLITE_BUSY)"))
		mock.ExpectRollback()
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO snapshots").
			WithArgs("platform", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		store := sqlite.NewSnapshotStore(sqlite.NewConnectionPoolFromDB(db, "sqlmock"), "platform", fastRetry())
		require.NoError(t, store.SaveSnapshot(ctx, persistence.Snapshot{}))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("gives up after the configured retries", func(t *testing.T) {
		t.Parallel()

		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		for range 3 {
			mock.ExpectBegin()
			mock.ExpectExec("INSERT INTO snapshots").WillReturnError(errors.New("database is locked"))
			mock.ExpectRollback()
		}

		store := sqlite.NewSnapshotStore(sqlite.NewConnectionPoolFromDB(db, "sqlmock"), "platform", fastRetry())
		err = store.SaveSnapshot(ctx, persistence.Snapshot{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "after 2 retries")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("does not retry other failures", func(t *testing.T) {
		t.Parallel()

		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("SELECT payload FROM snapshots").
			WithArgs("platform").
			WillReturnError(errors.New("disk I/O error"))

		store := sqlite.NewSnapshotStore(sqlite.NewConnectionPoolFromDB(db, "sqlmock"), "platform", fastRetry())
		_, err = store.LoadSnapshot(ctx)
		require.Error(t, err)
		assert.NotErrorIs(t, err, persistence.ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("decodes a stored payload", func(t *testing.T) {
		t.Parallel()

		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		payload, err := persistence.Snapshot{Events: []domain.Event{{ID: "event-1", Capacity: 3}}}.Encode()
		require.NoError(t, err)
		mock.ExpectQuery("SELECT payload FROM snapshots").
			WithArgs("platform").
			WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(payload))

		store := sqlite.NewSnapshotStore(sqlite.NewConnectionPoolFromDB(db, "sqlmock"), "platform", fastRetry())
		loaded, err := store.LoadSnapshot(ctx)
		require.NoError(t, err)
		require.Len(t, loaded.Events, 1)
		assert.Equal(t, 3, loaded.Events[0].Capacity)
	})
}

func TestErrorMapper(t *testing.T) {
	t.Parallel()

	mapper := sqlite.NewErrorMapper()
	assert.NoError(t, mapper.MapError(nil))
	assert.ErrorIs(t, mapper.MapError(errors.New("UNIQUE constraint failed: snapshots.key")), persistence.ErrDuplicate)

	other := errors.New("syntax error")
	assert.Equal(t, other, mapper.MapError(other))
}
