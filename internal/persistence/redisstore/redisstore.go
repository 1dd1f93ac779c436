// Package redisstore keeps the snapshot blob under a single Redis key.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/bengol30/bandgo/internal/persistence"
)

// DefaultKey is used when no key is configured.
const DefaultKey = "bandgo:snapshot"

// Client is the subset of *redis.Client the store needs.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Store implements persistence.SnapshotStore on Redis.
type Store struct {
	client Client
	key    string
}

var _ persistence.SnapshotStore = (*Store)(nil)

// New returns a store writing under key.
func New(client Client, key string) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{client: client, key: key}
}

// LoadSnapshot reads and decodes the blob.
func (s *Store) LoadSnapshot(ctx context.Context) (persistence.Snapshot, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return persistence.Snapshot{}, persistence.ErrNotFound
	}
	if err != nil {
		return persistence.Snapshot{}, fmt.Errorf("redisstore: get %s: %w", s.key, err)
	}
	return persistence.DecodeSnapshot(data)
}

// SaveSnapshot replaces the blob. Redis SET is atomic, so readers see either
// the previous or the new snapshot.
func (s *Store) SaveSnapshot(ctx context.Context, snapshot persistence.Snapshot) error {
	data, err := snapshot.Encode()
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redisstore: set %s: %w", s.key, err)
	}
	return nil
}
