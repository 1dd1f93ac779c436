package domain

import "time"

// SystemSettings is the process-wide configuration singleton.
type SystemSettings struct {
	RehearsalGoal       int       `json:"rehearsalGoal" yaml:"rehearsal_goal"`
	PollDurationHours   int       `json:"pollDurationHours" yaml:"poll_duration_hours"`
	AutoFinalizePoll    bool      `json:"autoFinalizePoll" yaml:"auto_finalize_poll"`
	CalendarSyncEnabled bool      `json:"calendarSyncEnabled" yaml:"calendar_sync_enabled"`
	AutoPromoteWaitlist bool      `json:"autoPromoteWaitlist" yaml:"auto_promote_waitlist"`
	MaxPostLength       int       `json:"maxPostLength" yaml:"max_post_length"`
	UpdatedBy           string    `json:"updatedBy,omitempty" yaml:"-"`
	UpdatedAt           time.Time `json:"updatedAt" yaml:"-"`
}

// DefaultSettings returns the settings used when nothing has been saved yet.
func DefaultSettings() SystemSettings {
	return SystemSettings{
		RehearsalGoal:     3,
		PollDurationHours: 48,
		AutoFinalizePoll:  false,
		MaxPostLength:     2000,
	}
}
