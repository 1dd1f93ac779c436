// Package domain holds the plain records shared by the persistence adapters and the
// application services. Records are replaced wholesale on update; nothing here mutates state.
package domain

import (
	"slices"
	"time"
)

// Role is the platform-wide permission level of a user.
type Role string

const (
	RoleUser      Role = "user"
	RoleAdmin     Role = "admin"
	RoleStaff     Role = "staff"
	RoleModerator Role = "moderator"
	RoleBanned    Role = "banned"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleStaff, RoleModerator, RoleBanned:
		return true
	}
	return false
}

// CanModerate reports whether the role may run moderation flows.
func (r Role) CanModerate() bool {
	return r == RoleAdmin || r == RoleStaff || r == RoleModerator
}

// SkillLevel grades how well a user plays an instrument.
type SkillLevel string

const (
	SkillBeginner     SkillLevel = "beginner"
	SkillIntermediate SkillLevel = "intermediate"
	SkillAdvanced     SkillLevel = "advanced"
	SkillProfessional SkillLevel = "professional"
)

// InstrumentSkill pairs an instrument with the user's level on it.
type InstrumentSkill struct {
	InstrumentID string     `json:"instrumentId"`
	Level        SkillLevel `json:"level"`
}

// ContactInfo is optional public contact data on a profile.
type ContactInfo struct {
	Phone     string `json:"phone,omitempty"`
	Instagram string `json:"instagram,omitempty"`
	Website   string `json:"website,omitempty"`
}

// SearchStatus advertises whether a musician is looking for a band.
type SearchStatus string

const (
	SearchLooking    SearchStatus = "looking"
	SearchOpen       SearchStatus = "open"
	SearchNotLooking SearchStatus = "not_looking"
)

// User is a registered musician or staff member.
type User struct {
	ID           string            `json:"id"`
	DisplayName  string            `json:"displayName"`
	Email        string            `json:"email"`
	Role         Role              `json:"role"`
	Instruments  []InstrumentSkill `json:"instruments"`
	Genres       []string          `json:"genres"`
	Bio          string            `json:"bio"`
	City         string            `json:"city"`
	Contact      ContactInfo       `json:"contact"`
	SearchStatus SearchStatus      `json:"searchStatus"`
	AvatarURL    string            `json:"avatarUrl,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

func (u User) EntityID() string { return u.ID }

func (u User) Clone() User {
	u.Instruments = slices.Clone(u.Instruments)
	u.Genres = slices.Clone(u.Genres)
	return u
}

// Credential stores the password hash of a user, kept apart from the public profile.
type Credential struct {
	UserID       string    `json:"userId"`
	PasswordHash string    `json:"passwordHash"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (c Credential) EntityID() string  { return c.UserID }
func (c Credential) Clone() Credential { return c }

// Session is an opaque sign-in token issued to a user.
type Session struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

func (s Session) EntityID() string { return s.ID }

func (s Session) Clone() Session {
	if s.RevokedAt != nil {
		revoked := *s.RevokedAt
		s.RevokedAt = &revoked
	}
	return s
}

// Active reports whether the session can still authenticate at the given instant.
func (s Session) Active(at time.Time) bool {
	return s.RevokedAt == nil && at.Before(s.ExpiresAt)
}
