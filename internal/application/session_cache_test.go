package application

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bengol30/bandgo/internal/domain"
)

func TestSessionCacheStoresAndExpires(t *testing.T) {
	current := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	cache := newSessionCache(time.Second, 4, func() time.Time { return current })

	cache.Store("token", Principal{UserID: "user-1", Role: domain.RoleUser}, time.Time{})
	got, ok := cache.Get("token")
	require.True(t, ok)
	assert.Equal(t, "user-1", got.UserID)

	current = current.Add(2 * time.Second)
	_, ok = cache.Get("token")
	assert.False(t, ok, "entry should expire after ttl")
}

func TestSessionCacheHonoursSessionExpiry(t *testing.T) {
	current := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	cache := newSessionCache(time.Hour, 4, func() time.Time { return current })

	cache.Store("token", Principal{UserID: "user-1"}, current.Add(time.Minute))
	current = current.Add(2 * time.Minute)

	_, ok := cache.Get("token")
	assert.False(t, ok)
}

func TestSessionCacheForget(t *testing.T) {
	cache := newSessionCache(time.Minute, 8, time.Now)
	cache.Store("a", Principal{UserID: "user-1"}, time.Time{})
	cache.Store("b", Principal{UserID: "user-1"}, time.Time{})
	cache.Store("c", Principal{UserID: "user-2"}, time.Time{})

	cache.Forget("c")
	_, ok := cache.Get("c")
	assert.False(t, ok)

	cache.ForgetUser("user-1")
	assert.Equal(t, 0, cache.Len())
}

func TestSessionCacheEvictsWhenFull(t *testing.T) {
	cache := newSessionCache(time.Minute, 2, time.Now)
	cache.Store("a", Principal{UserID: "1"}, time.Time{})
	cache.Store("b", Principal{UserID: "2"}, time.Time{})
	cache.Store("c", Principal{UserID: "3"}, time.Time{})

	assert.Equal(t, 2, cache.Len())
	_, ok := cache.Get("c")
	assert.True(t, ok)

	cache.Invalidate()
	assert.Equal(t, 0, cache.Len())
}
