package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/bengol30/bandgo/internal/persistence"
)

// DefaultSnapshotKey names the row holding the platform state.
const DefaultSnapshotKey = "platform"

// SnapshotStore keeps the snapshot blob in the snapshots table.
type SnapshotStore struct {
	pool  *ConnectionPool
	key   string
	retry *RetryHelper
}

var _ persistence.SnapshotStore = (*SnapshotStore)(nil)

// NewSnapshotStore returns a store writing under key. The schema must already be migrated.
func NewSnapshotStore(pool *ConnectionPool, key string, retry RetryConfig) *SnapshotStore {
	if key == "" {
		key = DefaultSnapshotKey
	}
	return &SnapshotStore{
		pool:  pool,
		key:   key,
		retry: NewRetryHelper(retry),
	}
}

// LoadSnapshot reads the blob stored under the configured key.
func (s *SnapshotStore) LoadSnapshot(ctx context.Context) (persistence.Snapshot, error) {
	var payload []byte
	err := s.retry.WithRetry(ctx, func() error {
		return s.pool.DB().GetContext(ctx, &payload, `SELECT payload FROM snapshots WHERE key = ?`, s.key)
	})
	if err != nil {
		return persistence.Snapshot{}, err
	}
	return persistence.DecodeSnapshot(payload)
}

// SaveSnapshot upserts the blob in a single transaction.
func (s *SnapshotStore) SaveSnapshot(ctx context.Context, snapshot persistence.Snapshot) error {
	payload, err := snapshot.Encode()
	if err != nil {
		return err
	}
	savedAt := snapshot.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}
	version := snapshot.Version
	if version == 0 {
		version = persistence.SnapshotVersion
	}

	err = s.retry.WithRetry(ctx, func() error {
		return s.pool.WithTransaction(ctx, func(tx *sqlx.Tx) error {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO snapshots (key, version, saved_at, payload)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(key) DO UPDATE SET
					version = excluded.version,
					saved_at = excluded.saved_at,
					payload = excluded.payload`,
				s.key, version, savedAt.UTC().Format(time.RFC3339Nano), payload)
			return err
		})
	})
	if err != nil {
		return fmt.Errorf("sqlite: save snapshot %q: %w", s.key, err)
	}
	return nil
}
