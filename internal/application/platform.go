package application

import (
	"context"
	"errors"

	"github.com/bengol30/bandgo/internal/domain"
	"github.com/bengol30/bandgo/internal/events"
	"github.com/bengol30/bandgo/internal/persistence"
)

// PlatformConfig tunes the services assembled by NewPlatform.
type PlatformConfig struct {
	Auth AuthConfig
	// Settings seeds SystemSettings until an admin saves them.
	Settings domain.SystemSettings
}

// Platform groups every service over one store and one bus. It is the
// repository contract consumed by transports and background jobs.
type Platform struct {
	Auth          *AuthService
	Settings      *SettingsService
	Bands         *BandService
	Content       *ContentService
	Rehearsals    *RehearsalService
	Events        *EventService
	Feed          *FeedService
	Chat          *ChatService
	Notifications *NotificationService
	Moderation    *ModerationService
	Bus           *events.Bus

	store persistence.Store
}

// NewPlatform wires the services. Services touching the same bands and events
// share one keyed lock table.
func NewPlatform(deps Deps, cfg PlatformConfig) *Platform {
	if deps.Bus == nil {
		deps.Bus = events.New(events.WithLogger(deps.Logger))
	}
	locks := newKeyedLocks()

	settings := NewSettingsService(deps, cfg.Settings)
	auth := NewAuthService(deps, cfg.Auth)
	bands := NewBandService(deps, settings, locks)
	eventsSvc := NewEventService(deps, settings, locks)

	return &Platform{
		Auth:          auth,
		Settings:      settings,
		Bands:         bands,
		Content:       NewContentService(deps, locks),
		Rehearsals:    NewRehearsalService(deps, settings, locks),
		Events:        eventsSvc,
		Feed:          NewFeedService(deps, settings),
		Chat:          NewChatService(deps),
		Notifications: NewNotificationService(deps),
		Moderation:    NewModerationService(deps, locks, auth, bands, eventsSvc),
		Bus:           deps.Bus,
		store:         deps.Store,
	}
}

// Snapshot exports every collection as one blob.
func (p *Platform) Snapshot(ctx context.Context) (persistence.Snapshot, error) {
	if p.store == nil {
		return persistence.Snapshot{}, errors.New("store not configured")
	}
	return p.store.Export(ctx)
}

// Restore replaces the whole state with snapshot and drops cached sessions.
func (p *Platform) Restore(ctx context.Context, snapshot persistence.Snapshot) error {
	if p.store == nil {
		return errors.New("store not configured")
	}
	if err := p.store.Import(ctx, snapshot); err != nil {
		return mapStoreError(err)
	}
	p.Auth.cache.Invalidate()
	p.Bus.Publish(events.GlobalChannel, events.Event{Kind: events.KindRefresh, Payload: map[string]string{"reason": "restored"}})
	return nil
}
