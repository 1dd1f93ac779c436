package events_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bengol30/bandgo/internal/events"
)

type countingObserver struct {
	mu        sync.Mutex
	published map[string]int
	failed    int
}

func (o *countingObserver) EventPublished(channel string, delivered int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.published == nil {
		o.published = map[string]int{}
	}
	o.published[channel] += delivered
}

func (o *countingObserver) ListenerFailed(string) {
	o.mu.Lock()
	o.failed++
	o.mu.Unlock()
}

func TestBusChannels(t *testing.T) {
	t.Parallel()

	t.Run("delivers only to listeners of the published channel", func(t *testing.T) {
		t.Parallel()

		bus := events.New()
		var received []events.Event
		bus.Subscribe(events.BandChannel("band-1"), func(e events.Event) {
			received = append(received, e)
		})

		bus.Publish(events.BandChannel("band-2"), events.Event{Kind: events.KindRefresh, Payload: "other"})
		assert.Empty(t, received)

		bus.Publish(events.BandChannel("band-1"), events.Event{Kind: events.KindRefresh, Payload: "mine"})
		require.Len(t, received, 1)
		assert.Equal(t, "mine", received[0].Payload)
		assert.Equal(t, "band:band-1", received[0].Channel)
		assert.False(t, received[0].At.IsZero())
	})

	t.Run("unsubscribe removes exactly one listener and releases empty channels", func(t *testing.T) {
		t.Parallel()

		bus := events.New()
		var first, second int
		unsubFirst := bus.Subscribe("band:x", func(events.Event) { first++ })
		unsubSecond := bus.Subscribe("band:x", func(events.Event) { second++ })
		assert.Equal(t, 2, bus.ListenerCount("band:x"))

		unsubFirst()
		unsubFirst()
		bus.Publish("band:x", events.Event{})
		assert.Equal(t, 0, first)
		assert.Equal(t, 1, second)

		unsubSecond()
		assert.Equal(t, 0, bus.ListenerCount("band:x"))
		assert.Equal(t, 0, bus.ChannelCount())
	})

	t.Run("a panicking listener does not stop the others", func(t *testing.T) {
		t.Parallel()

		observer := &countingObserver{}
		bus := events.New(events.WithObserver(observer))
		var called int
		bus.Subscribe(events.GlobalChannel, func(events.Event) { panic("boom") })
		bus.Subscribe(events.GlobalChannel, func(events.Event) { called++ })

		bus.Publish(events.GlobalChannel, events.Event{})
		assert.Equal(t, 1, called)
		assert.Equal(t, 1, observer.failed)
	})

	t.Run("listeners may subscribe while being invoked", func(t *testing.T) {
		t.Parallel()

		bus := events.New()
		bus.Subscribe("global", func(events.Event) {
			bus.Subscribe("global", func(events.Event) {})
		})
		bus.Publish("global", events.Event{})
		assert.Equal(t, 2, bus.ListenerCount("global"))
	})

	t.Run("emit helpers publish to the specific and the global channel", func(t *testing.T) {
		t.Parallel()

		at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		bus := events.New(events.WithClock(func() time.Time { return at }))
		var band, conversation, user, global []events.Event
		bus.SubscribeToBandChat("b1", func(e events.Event) { band = append(band, e) })
		bus.SubscribeToDirectChat("c1", func(e events.Event) { conversation = append(conversation, e) })
		bus.SubscribeToUser("u1", func(e events.Event) { user = append(user, e) })
		bus.SubscribeToGlobalUpdates(func(e events.Event) { global = append(global, e) })

		bus.EmitBandChatMessage("b1", "hello band")
		bus.EmitDirectMessage("c1", "hello you")
		bus.EmitNotification("u1", "ping")

		require.Len(t, band, 1)
		assert.Equal(t, events.KindBandMessage, band[0].Kind)
		require.Len(t, conversation, 1)
		assert.Equal(t, events.KindDirectMessage, conversation[0].Kind)
		require.Len(t, user, 1)
		assert.Equal(t, events.KindNotification, user[0].Kind)
		require.Len(t, global, 3)
		assert.Equal(t, "hello band", global[0].Payload)
		assert.True(t, global[0].At.Equal(at))
	})

	t.Run("hooks see local publishes but not relayed ones", func(t *testing.T) {
		t.Parallel()

		bus := events.New()
		var hooked, delivered int
		bus.AddHook(func(events.Event) { hooked++ })
		bus.Subscribe("band:b", func(events.Event) { delivered++ })

		bus.Publish("band:b", events.Event{})
		bus.PublishLocal(events.Event{Channel: "band:b"})
		assert.Equal(t, 1, hooked)
		assert.Equal(t, 2, delivered)
	})

	t.Run("destroy clears listeners and is idempotent", func(t *testing.T) {
		t.Parallel()

		bus := events.New()
		var called int
		bus.Subscribe("global", func(events.Event) { called++ })
		bus.Destroy()
		bus.Destroy()

		bus.Publish("global", events.Event{})
		assert.Equal(t, 0, called)

		bus.Subscribe("global", func(events.Event) { called++ })
		assert.Equal(t, 0, bus.ListenerCount("global"))
	})
}

func TestChannelKind(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "band", events.ChannelKind(events.BandChannel("1")))
	assert.Equal(t, "conversation", events.ChannelKind(events.ConversationChannel("dm:a:b")))
	assert.Equal(t, "user", events.ChannelKind(events.UserChannel("u")))
	assert.Equal(t, "global", events.ChannelKind(events.GlobalChannel))
}

func TestPolling(t *testing.T) {
	t.Parallel()

	t.Run("runs until stopped", func(t *testing.T) {
		t.Parallel()

		bus := events.New()
		var ticks atomic.Int32
		stop := bus.StartPolling("feed", func() { ticks.Add(1) }, 5*time.Millisecond)

		require.Eventually(t, func() bool { return ticks.Load() >= 2 }, time.Second, time.Millisecond)
		stop()
		assert.Equal(t, 0, bus.ActivePolls())

		after := ticks.Load()
		time.Sleep(30 * time.Millisecond)
		assert.LessOrEqual(t, ticks.Load(), after+1)
	})

	t.Run("restarting a key cancels the previous poll", func(t *testing.T) {
		t.Parallel()

		bus := events.New()
		var first, second atomic.Int32
		stopFirst := bus.StartPolling("chat", func() { first.Add(1) }, 5*time.Millisecond)
		stopSecond := bus.StartPolling("chat", func() { second.Add(1) }, 5*time.Millisecond)
		defer stopSecond()
		assert.Equal(t, 1, bus.ActivePolls())

		require.Eventually(t, func() bool { return second.Load() >= 2 }, time.Second, time.Millisecond)
		frozen := first.Load()
		time.Sleep(30 * time.Millisecond)
		assert.LessOrEqual(t, first.Load(), frozen+1)

		// The stale stop must not cancel the replacement.
		stopFirst()
		assert.Equal(t, 1, bus.ActivePolls())
	})

	t.Run("destroy cancels every poll", func(t *testing.T) {
		t.Parallel()

		bus := events.New()
		var ticks atomic.Int32
		bus.StartPolling("a", func() { ticks.Add(1) }, 5*time.Millisecond)
		bus.StartPolling("b", func() { ticks.Add(1) }, 5*time.Millisecond)
		require.Eventually(t, func() bool { return ticks.Load() >= 2 }, time.Second, time.Millisecond)

		bus.Destroy()
		assert.Equal(t, 0, bus.ActivePolls())
		after := ticks.Load()
		time.Sleep(30 * time.Millisecond)
		assert.LessOrEqual(t, ticks.Load(), after+2)

		stop := bus.StartPolling("c", func() { ticks.Add(1) }, time.Millisecond)
		stop()
		assert.Equal(t, 0, bus.ActivePolls())
	})

	t.Run("a panicking callback keeps polling", func(t *testing.T) {
		t.Parallel()

		bus := events.New()
		var ticks atomic.Int32
		stop := bus.StartPolling("p", func() {
			ticks.Add(1)
			panic("boom")
		}, 5*time.Millisecond)
		defer stop()

		require.Eventually(t, func() bool { return ticks.Load() >= 2 }, time.Second, time.Millisecond)
	})
}
