package testfixtures

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClock(t *testing.T) {
	t.Parallel()

	t.Run("defaults to the reference time", func(t *testing.T) {
		t.Parallel()
		assert.True(t, NewClock(time.Time{}).Now().Equal(ReferenceTime()))
	})

	t.Run("advance and set", func(t *testing.T) {
		t.Parallel()
		start := time.Date(2024, time.March, 14, 9, 26, 0, 0, time.UTC)
		clock := NewClock(start)

		assert.True(t, clock.Advance(90*time.Minute).Equal(start.Add(90*time.Minute)))
		clock.Set(start.Add(2 * time.Hour))
		assert.True(t, clock.Now().Equal(start.Add(2*time.Hour)))
	})

	t.Run("pass moves beyond a deadline only once", func(t *testing.T) {
		t.Parallel()
		clock := NewClock(time.Time{})
		deadline := ReferenceTime().Add(48 * time.Hour)

		passed := clock.Pass(deadline)
		assert.True(t, passed.After(deadline))
		assert.True(t, clock.Pass(deadline).Equal(passed))
	})

	t.Run("now func follows the clock", func(t *testing.T) {
		t.Parallel()
		clock := NewClock(time.Time{})
		now := clock.NowFunc()
		clock.Advance(time.Minute)
		assert.True(t, now().Equal(clock.Now()))

		var unset *Clock
		assert.WithinDuration(t, time.Now(), unset.NowFunc()(), time.Second)
	})
}
