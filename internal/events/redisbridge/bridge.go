// Package redisbridge mirrors a local events.Bus across processes through
// Redis pub/sub. Listeners keep subscribing to the local bus.
package redisbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/bengol30/bandgo/internal/events"
)

// DefaultTopic is the Redis channel used when none is configured.
const DefaultTopic = "bandgo:events"

// DefaultQueueSize bounds the events waiting to be forwarded.
const DefaultQueueSize = 256

// Client is the subset of *redis.Client the bridge needs.
type Client interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

type envelope struct {
	Origin  string          `json:"origin"`
	Channel string          `json:"channel"`
	Kind    events.Kind     `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
	At      time.Time       `json:"at"`
}

// Bridge forwards local publishes to Redis and relays remote ones locally.
// Local publishes only enqueue; Forward does the network calls, and events
// arriving while the queue is full are dropped.
type Bridge struct {
	bus     *events.Bus
	client  Client
	topic   string
	origin  string
	timeout time.Duration
	logger  *slog.Logger
	queue   chan []byte
	dropped atomic.Int64
}

// New builds a bridge; call Attach to start forwarding and Run to start relaying.
func New(bus *events.Bus, client Client, topic string, logger *slog.Logger) *Bridge {
	if topic == "" {
		topic = DefaultTopic
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		bus:     bus,
		client:  client,
		topic:   topic,
		origin:  uuid.NewString(),
		timeout: 2 * time.Second,
		logger:  logger.With("component", "redisbridge", "topic", topic),
		queue:   make(chan []byte, DefaultQueueSize),
	}
}

// Origin identifies this process in forwarded messages.
func (b *Bridge) Origin() string {
	return b.origin
}

// Dropped reports how many events were discarded because the queue was full.
func (b *Bridge) Dropped() int64 {
	return b.dropped.Load()
}

// Attach hooks the bridge into the bus so local publishes are queued for
// forwarding. Nothing is sent until Run or Forward is running.
func (b *Bridge) Attach() {
	b.bus.AddHook(b.enqueue)
}

func (b *Bridge) enqueue(event events.Event) {
	data, err := b.encode(event)
	if err != nil {
		b.logger.Error("failed to encode event", "channel", event.Channel, "error", err)
		return
	}

	select {
	case b.queue <- data:
	default:
		b.dropped.Add(1)
		b.logger.Warn("dropping event, forward queue full", "channel", event.Channel, "kind", event.Kind)
	}
}

// Forward publishes queued events to Redis until ctx is cancelled.
func (b *Bridge) Forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-b.queue:
			b.publish(ctx, data)
		}
	}
}

func (b *Bridge) publish(ctx context.Context, data []byte) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	if err := b.client.Publish(ctx, b.topic, data).Err(); err != nil {
		b.logger.Error("failed to forward event", "error", err)
	}
}

func (b *Bridge) encode(event events.Event) ([]byte, error) {
	env := envelope{Origin: b.origin, Channel: event.Channel, Kind: event.Kind, At: event.At}
	if event.Payload != nil {
		payload, err := json.Marshal(event.Payload)
		if err != nil {
			return nil, err
		}
		env.Payload = payload
	}
	return json.Marshal(env)
}

// HandleMessage relays one Redis message to local listeners. Messages sent by
// this process are skipped; their listeners already ran.
func (b *Bridge) HandleMessage(payload string) error {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return fmt.Errorf("redisbridge: decode message: %w", err)
	}
	if env.Origin == b.origin {
		return nil
	}
	if env.Channel == "" {
		return fmt.Errorf("redisbridge: message without channel")
	}

	event := events.Event{Channel: env.Channel, Kind: env.Kind, At: env.At}
	if len(env.Payload) > 0 {
		event.Payload = env.Payload
	}
	b.bus.PublishLocal(event)
	return nil
}

// Run forwards queued events and relays remote messages until ctx is
// cancelled. The forwarder stops when Run returns.
func (b *Bridge) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	forwarding := make(chan struct{})
	go func() {
		defer close(forwarding)
		b.Forward(ctx)
	}()
	defer func() {
		cancel()
		<-forwarding
	}()

	sub := b.client.Subscribe(ctx, b.topic)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redisbridge: subscribe %s: %w", b.topic, err)
	}
	b.logger.Info("relaying remote events")

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if err := b.HandleMessage(msg.Payload); err != nil {
				b.logger.Warn("dropping remote event", "error", err)
			}
		}
	}
}
