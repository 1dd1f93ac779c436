package application

import (
	"context"

	"github.com/bengol30/bandgo/internal/domain"
	"github.com/bengol30/bandgo/internal/persistence"
)

// SettingsPatch updates the provided SystemSettings fields.
type SettingsPatch struct {
	RehearsalGoal       *int
	PollDurationHours   *int
	AutoFinalizePoll    *bool
	CalendarSyncEnabled *bool
	AutoPromoteWaitlist *bool
	MaxPostLength       *int
}

// SettingsService owns the SystemSettings singleton.
type SettingsService struct {
	service
	defaults domain.SystemSettings
}

// NewSettingsService returns a SettingsService that falls back to defaults
// until an admin saves settings. A zero defaults value selects domain.DefaultSettings.
func NewSettingsService(deps Deps, defaults domain.SystemSettings) *SettingsService {
	if defaults == (domain.SystemSettings{}) {
		defaults = domain.DefaultSettings()
	}
	return &SettingsService{service: newService("SettingsService", deps, nil), defaults: defaults}
}

// current resolves the settings seen by a transaction.
func (s *SettingsService) current(tx persistence.Tx) domain.SystemSettings {
	if stored, ok := tx.Settings(); ok {
		return stored
	}
	return s.defaults
}

// GetSettings returns the singleton, persisting the defaults on first access.
func (s *SettingsService) GetSettings(ctx context.Context) (settings domain.SystemSettings, err error) {
	_, done := s.begin(ctx, "GetSettings")
	defer func() { done(err, "settings loaded") }()

	err = s.read(ctx, func(tx persistence.Tx) error {
		var ok bool
		settings, ok = tx.Settings()
		if !ok {
			settings = s.defaults
		}
		return nil
	})
	if err != nil {
		return
	}
	if settings.UpdatedAt.IsZero() {
		err = s.write(ctx, func(u *unit) error {
			if stored, ok := u.tx.Settings(); ok {
				settings = stored
				return nil
			}
			settings = s.defaults
			settings.UpdatedAt = s.now()
			u.tx.SetSettings(settings)
			return nil
		})
	}
	return
}

// GetSystemSettings is an alias of GetSettings.
func (s *SettingsService) GetSystemSettings(ctx context.Context) (domain.SystemSettings, error) {
	return s.GetSettings(ctx)
}

// UpdateSettings applies patch. Admin only.
func (s *SettingsService) UpdateSettings(ctx context.Context, principal Principal, patch SettingsPatch) (settings domain.SystemSettings, err error) {
	_, done := s.begin(ctx, "UpdateSettings", "actor_id", principal.UserID)
	defer func() {
		done(err, "settings updated",
			"rehearsal_goal", settings.RehearsalGoal,
			"auto_finalize_poll", settings.AutoFinalizePoll,
		)
	}()

	if err = requireAdmin(principal); err != nil {
		return
	}
	if err = validateSettingsPatch(patch); err != nil {
		return
	}

	err = s.write(ctx, func(u *unit) error {
		settings = s.current(u.tx)
		applySettingsPatch(&settings, patch)
		settings.UpdatedBy = principal.UserID
		settings.UpdatedAt = s.now()
		u.tx.SetSettings(settings)
		return nil
	})
	return
}

// UpdateSystemSettings is an alias of UpdateSettings.
func (s *SettingsService) UpdateSystemSettings(ctx context.Context, principal Principal, patch SettingsPatch) (domain.SystemSettings, error) {
	return s.UpdateSettings(ctx, principal, patch)
}

func validateSettingsPatch(patch SettingsPatch) error {
	v := &ValidationError{}
	if patch.RehearsalGoal != nil && *patch.RehearsalGoal < 1 {
		v.add("rehearsalGoal", "must be at least 1")
	}
	if patch.PollDurationHours != nil && *patch.PollDurationHours < 1 {
		v.add("pollDurationHours", "must be at least 1")
	}
	if patch.MaxPostLength != nil && *patch.MaxPostLength < 1 {
		v.add("maxPostLength", "must be at least 1")
	}
	return v.errOrNil()
}

func applySettingsPatch(settings *domain.SystemSettings, patch SettingsPatch) {
	if patch.RehearsalGoal != nil {
		settings.RehearsalGoal = *patch.RehearsalGoal
	}
	if patch.PollDurationHours != nil {
		settings.PollDurationHours = *patch.PollDurationHours
	}
	if patch.AutoFinalizePoll != nil {
		settings.AutoFinalizePoll = *patch.AutoFinalizePoll
	}
	if patch.CalendarSyncEnabled != nil {
		settings.CalendarSyncEnabled = *patch.CalendarSyncEnabled
	}
	if patch.AutoPromoteWaitlist != nil {
		settings.AutoPromoteWaitlist = *patch.AutoPromoteWaitlist
	}
	if patch.MaxPostLength != nil {
		settings.MaxPostLength = *patch.MaxPostLength
	}
}
