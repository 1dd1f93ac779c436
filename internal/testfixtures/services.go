package testfixtures

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bengol30/bandgo/internal/application"
	"github.com/bengol30/bandgo/internal/domain"
	"github.com/bengol30/bandgo/internal/events"
	"github.com/bengol30/bandgo/internal/persistence"
	"github.com/bengol30/bandgo/internal/persistence/memory"
)

// FastHasher keeps password hashing cheap in tests.
var FastHasher = application.NewPasswordHasher(application.Argon2idParams{
	Memory:      64,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  8,
	KeyLength:   16,
})

// Harness assembles a Platform over an in-memory store with a deterministic
// clock and id sequence. Every event published on the global channel is recorded.
type Harness struct {
	Platform *application.Platform
	Store    *memory.Store
	Bus      *events.Bus
	Clock    *Clock
	IDs      *IDGenerator

	mu        sync.Mutex
	published []events.Event
}

type harnessConfig struct {
	clock    *Clock
	ids      *IDGenerator
	settings domain.SystemSettings
	logger   *slog.Logger
	observer application.Observer
}

// HarnessOption configures NewHarness.
type HarnessOption func(*harnessConfig)

// WithClock overrides the clock used by the harness.
func WithClock(clock *Clock) HarnessOption {
	return func(cfg *harnessConfig) {
		cfg.clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the harness.
func WithIDGenerator(generator *IDGenerator) HarnessOption {
	return func(cfg *harnessConfig) {
		cfg.ids = generator
	}
}

// WithSettings seeds the system settings.
func WithSettings(settings domain.SystemSettings) HarnessOption {
	return func(cfg *harnessConfig) {
		cfg.settings = settings
	}
}

// WithLogger routes service logs to logger instead of discarding them.
func WithLogger(logger *slog.Logger) HarnessOption {
	return func(cfg *harnessConfig) {
		cfg.logger = logger
	}
}

// WithObserver attaches an operation observer.
func WithObserver(observer application.Observer) HarnessOption {
	return func(cfg *harnessConfig) {
		cfg.observer = observer
	}
}

// NewHarness builds a Platform for tb and destroys its bus on cleanup.
func NewHarness(tb testing.TB, opts ...HarnessOption) *Harness {
	tb.Helper()

	cfg := harnessConfig{
		settings: domain.DefaultSettings(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.clock == nil {
		cfg.clock = NewClock(ReferenceTime())
	}
	if cfg.ids == nil {
		cfg.ids = NewIDGenerator("id")
	}

	store := memory.NewWithClock(cfg.clock.NowFunc())
	bus := events.New(events.WithLogger(cfg.logger), events.WithClock(cfg.clock.NowFunc()))
	platform := application.NewPlatform(application.Deps{
		Store:       store,
		Bus:         bus,
		Observer:    cfg.observer,
		IDGenerator: cfg.ids.NextFunc(),
		Now:         cfg.clock.NowFunc(),
		Logger:      cfg.logger,
	}, application.PlatformConfig{
		Auth:     application.AuthConfig{Hasher: FastHasher},
		Settings: cfg.settings,
	})

	h := &Harness{
		Platform: platform,
		Store:    store,
		Bus:      bus,
		Clock:    cfg.clock,
		IDs:      cfg.ids,
	}
	bus.SubscribeToGlobalUpdates(func(event events.Event) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.published = append(h.published, event)
	})
	tb.Cleanup(bus.Destroy)
	return h
}

// Published returns the global events recorded so far, optionally filtered by kind.
func (h *Harness) Published(kinds ...events.Kind) []events.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]events.Event, 0, len(h.published))
	for _, event := range h.published {
		if len(kinds) == 0 || containsKind(kinds, event.Kind) {
			out = append(out, event)
		}
	}
	return out
}

func containsKind(kinds []events.Kind, kind events.Kind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Seed runs fn in one transaction and fails tb on error.
func (h *Harness) Seed(tb testing.TB, fn func(tx persistence.Tx) error) {
	tb.Helper()
	if err := h.Store.RunInTransaction(context.Background(), fn); err != nil {
		tb.Fatalf("seed: %v", err)
	}
}

// SeedUser inserts a user record directly and returns its fixture.
func (h *Harness) SeedUser(tb testing.TB, opts ...UserOption) UserFixture {
	tb.Helper()
	fixture := NewUserFixture(opts...)
	h.Seed(tb, func(tx persistence.Tx) error {
		return tx.Users().Insert(fixture.Domain())
	})
	return fixture
}

// SeedBand inserts band as is, plus one approved rehearsal per counted
// approval so recounts agree with the seeded progress.
func (h *Harness) SeedBand(tb testing.TB, band domain.Band) domain.Band {
	tb.Helper()
	h.Seed(tb, func(tx persistence.Tx) error {
		if err := tx.Bands().Insert(band); err != nil {
			return err
		}
		for i := range band.ApprovedRehearsalsCount {
			at := band.CreatedAt.Add(time.Duration(i+1) * 24 * time.Hour)
			if err := tx.Rehearsals().Insert(domain.Rehearsal{
				ID:              fmt.Sprintf("%s-approved-%d", band.ID, i+1),
				BandID:          band.ID,
				DateTime:        at,
				DurationMinutes: 90,
				Location:        "Studio A",
				Status:          domain.RehearsalApproved,
				CreatedAt:       at,
				UpdatedAt:       at,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return band
}

// SeedBandRequest inserts request as is.
func (h *Harness) SeedBandRequest(tb testing.TB, request domain.BandRequest) domain.BandRequest {
	tb.Helper()
	h.Seed(tb, func(tx persistence.Tx) error {
		return tx.BandRequests().Insert(request)
	})
	return request
}

// SeedEvent inserts event as is.
func (h *Harness) SeedEvent(tb testing.TB, event domain.Event) domain.Event {
	tb.Helper()
	h.Seed(tb, func(tx persistence.Tx) error {
		return tx.Events().Insert(event)
	})
	return event
}

// Notifications returns every stored notification addressed to userID.
func (h *Harness) Notifications(tb testing.TB, userID string) []domain.Notification {
	tb.Helper()
	var out []domain.Notification
	if err := h.Store.View(context.Background(), func(tx persistence.Tx) error {
		out = tx.Notifications().Find(func(n domain.Notification) bool { return n.UserID == userID })
		return nil
	}); err != nil {
		tb.Fatalf("read notifications: %v", err)
	}
	return out
}
