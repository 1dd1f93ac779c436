// Package events is the in-process notification and chat bus. Listeners are
// grouped by channel; publishing is synchronous and never crosses channels.
package events

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

// GlobalChannel receives a copy of every chat message and notification.
const GlobalChannel = "global"

// BandChannel is the channel of a band chat.
func BandChannel(bandID string) string { return "band:" + bandID }

// ConversationChannel is the channel of a direct-message conversation.
func ConversationChannel(conversationID string) string { return "conversation:" + conversationID }

// UserChannel carries the notifications of one user.
func UserChannel(userID string) string { return "user:" + userID }

// ChannelKind returns the prefix of a channel name ("band", "user", "global", ...).
func ChannelKind(channel string) string {
	if kind, _, ok := strings.Cut(channel, ":"); ok {
		return kind
	}
	return channel
}

// Kind tags what an event carries.
type Kind string

const (
	KindBandMessage   Kind = "band_message"
	KindDirectMessage Kind = "direct_message"
	KindNotification  Kind = "notification"
	KindRefresh       Kind = "refresh"
)

// Event is what listeners receive.
type Event struct {
	Channel string    `json:"channel"`
	Kind    Kind      `json:"kind"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// Listener handles events of one channel.
type Listener func(Event)

// Hook observes every event published locally, after the listeners ran.
type Hook func(Event)

// Observer receives delivery statistics.
type Observer interface {
	EventPublished(channel string, delivered int)
	ListenerFailed(channel string)
}

type noopObserver struct{}

func (noopObserver) EventPublished(string, int) {}
func (noopObserver) ListenerFailed(string)      {}

type subscriber struct {
	id       uint64
	listener Listener
}

// Bus is a channel-keyed listener registry plus a keyed registry of polls.
type Bus struct {
	mu        sync.Mutex
	channels  map[string][]subscriber
	nextID    uint64
	hooks     []Hook
	polls     map[string]*poll
	destroyed bool

	logger   *slog.Logger
	observer Observer
	now      func() time.Time
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used to report listener panics.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithObserver attaches delivery statistics, typically metrics.
func WithObserver(observer Observer) Option {
	return func(b *Bus) {
		if observer != nil {
			b.observer = observer
		}
	}
}

// WithClock overrides the time stamped on events.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) {
		if now != nil {
			b.now = now
		}
	}
}

// New returns an empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		channels: make(map[string][]subscriber),
		polls:    make(map[string]*poll),
		logger:   slog.Default(),
		observer: noopObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers listener on channel. The returned function removes
// exactly that registration; calling it more than once is harmless.
func (b *Bus) Subscribe(channel string, listener Listener) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed || listener == nil {
		return func() {}
	}

	b.nextID++
	id := b.nextID
	b.channels[channel] = append(b.channels[channel], subscriber{id: id, listener: listener})

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(channel, id) })
	}
}

func (b *Bus) remove(channel string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.channels[channel]
	for i, sub := range subs {
		if sub.id != id {
			continue
		}
		if len(subs) == 1 {
			delete(b.channels, channel)
			return
		}
		next := make([]subscriber, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		b.channels[channel] = next
		return
	}
}

// ListenerCount reports how many listeners channel has.
func (b *Bus) ListenerCount(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.channels[channel])
}

// ChannelCount reports how many channels hold at least one listener.
func (b *Bus) ChannelCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.channels)
}

// AddHook registers fn to observe every locally published event.
func (b *Bus) AddHook(fn Hook) {
	if fn == nil {
		return
	}
	b.mu.Lock()
	b.hooks = append(b.hooks, fn)
	b.mu.Unlock()
}

// Publish delivers event to the listeners of channel, then to the hooks.
func (b *Bus) Publish(channel string, event Event) {
	event = b.stamp(channel, event)
	b.deliver(event)

	b.mu.Lock()
	hooks := b.hooks
	b.mu.Unlock()
	for _, hook := range hooks {
		b.safely(channel, "hook", func() { hook(event) })
	}
}

// PublishLocal delivers event to local listeners only. Bridges use it for
// events that arrived from another process.
func (b *Bus) PublishLocal(event Event) {
	b.deliver(b.stamp(event.Channel, event))
}

func (b *Bus) stamp(channel string, event Event) Event {
	event.Channel = channel
	if event.At.IsZero() {
		event.At = b.now()
	}
	return event
}

// deliver runs listeners outside the lock so they may subscribe or publish.
func (b *Bus) deliver(event Event) {
	b.mu.Lock()
	subs := b.channels[event.Channel]
	b.mu.Unlock()

	for _, sub := range subs {
		b.safely(event.Channel, "listener", func() { sub.listener(event) })
	}
	b.observer.EventPublished(event.Channel, len(subs))
}

func (b *Bus) safely(channel, what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.observer.ListenerFailed(channel)
			b.logger.Error("event "+what+" panicked", "channel", channel, "panic", r)
		}
	}()
	fn()
}

// SubscribeToBandChat listens to the chat of one band.
func (b *Bus) SubscribeToBandChat(bandID string, listener Listener) func() {
	return b.Subscribe(BandChannel(bandID), listener)
}

// SubscribeToDirectChat listens to one conversation.
func (b *Bus) SubscribeToDirectChat(conversationID string, listener Listener) func() {
	return b.Subscribe(ConversationChannel(conversationID), listener)
}

// SubscribeToUser listens to the notifications of one user.
func (b *Bus) SubscribeToUser(userID string, listener Listener) func() {
	return b.Subscribe(UserChannel(userID), listener)
}

// SubscribeToGlobalUpdates listens to the global channel.
func (b *Bus) SubscribeToGlobalUpdates(listener Listener) func() {
	return b.Subscribe(GlobalChannel, listener)
}

// EmitBandChatMessage publishes message to the band channel and to the global channel.
func (b *Bus) EmitBandChatMessage(bandID string, message any) {
	b.emitTwice(BandChannel(bandID), KindBandMessage, message)
}

// EmitDirectMessage publishes message to the conversation channel and to the global channel.
func (b *Bus) EmitDirectMessage(conversationID string, message any) {
	b.emitTwice(ConversationChannel(conversationID), KindDirectMessage, message)
}

// EmitNotification publishes notification to the user channel and to the global channel.
func (b *Bus) EmitNotification(userID string, notification any) {
	b.emitTwice(UserChannel(userID), KindNotification, notification)
}

func (b *Bus) emitTwice(channel string, kind Kind, payload any) {
	at := b.now()
	b.Publish(channel, Event{Kind: kind, Payload: payload, At: at})
	b.Publish(GlobalChannel, Event{Kind: kind, Payload: payload, At: at})
}

// Destroy cancels every poll and drops every listener. A destroyed bus
// ignores new subscriptions and polls. Calling Destroy again does nothing.
func (b *Bus) Destroy() {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return
	}
	b.destroyed = true
	polls := b.polls
	b.polls = make(map[string]*poll)
	b.channels = make(map[string][]subscriber)
	b.hooks = nil
	b.mu.Unlock()

	for _, p := range polls {
		p.cancel()
	}
}
