package application

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedLocks(t *testing.T) {
	t.Parallel()

	t.Run("serialises holders of the same key", func(t *testing.T) {
		t.Parallel()
		locks := newKeyedLocks()
		counter := 0
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock := locks.lock(bandKey("b"), eventKey("e"))
				defer unlock()
				counter++
			}()
		}
		wg.Wait()
		assert.Equal(t, 50, counter)
		assert.Zero(t, locks.size())
	})

	t.Run("duplicate keys do not deadlock", func(t *testing.T) {
		t.Parallel()
		locks := newKeyedLocks()
		unlock := locks.lock(bandKey("b"), bandKey("b"))
		assert.Equal(t, 1, locks.size())
		unlock()
		assert.Zero(t, locks.size())
	})

	t.Run("nil table is a no-op", func(t *testing.T) {
		t.Parallel()
		var locks *keyedLocks
		locks.lock("x")()
	})
}
