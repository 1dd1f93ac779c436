package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bengol30/bandgo/internal/application"
	"github.com/bengol30/bandgo/internal/domain"
)

var (
	userCounter    uint64
	requestCounter uint64
	bandCounter    uint64
	eventCounter   uint64
)

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- User fixtures -----------------------------

// UserFixture represents a deterministic user record.
type UserFixture struct {
	ID          string
	Email       string
	DisplayName string
	Role        domain.Role
	City        string
	CreatedAt   time.Time
}

// UserOption configures the generated user fixture.
type UserOption func(*UserFixture)

// NewUserFixture returns a deterministic user fixture with optional overrides.
func NewUserFixture(opts ...UserOption) UserFixture {
	idx := atomic.AddUint64(&userCounter, 1)
	id := fmt.Sprintf("user-%03d", idx)
	fixture := UserFixture{
		ID:          id,
		Email:       fmt.Sprintf("%s@example.com", id),
		DisplayName: fmt.Sprintf("Musician %03d", idx),
		Role:        domain.RoleUser,
		City:        "Tel Aviv",
		CreatedAt:   referenceTime.Add(time.Duration(idx) * time.Minute),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithUserID overrides the generated user ID.
func WithUserID(id string) UserOption {
	return func(f *UserFixture) {
		f.ID = id
	}
}

// WithUserEmail overrides the generated email address.
func WithUserEmail(email string) UserOption {
	return func(f *UserFixture) {
		f.Email = email
	}
}

// WithUserRole sets the platform role.
func WithUserRole(role domain.Role) UserOption {
	return func(f *UserFixture) {
		f.Role = role
	}
}

// WithUserDisplayName overrides the generated display name.
func WithUserDisplayName(name string) UserOption {
	return func(f *UserFixture) {
		f.DisplayName = name
	}
}

// Domain returns the fixture as a stored user record.
func (f UserFixture) Domain() domain.User {
	return domain.User{
		ID:           f.ID,
		DisplayName:  f.DisplayName,
		Email:        f.Email,
		Role:         f.Role,
		City:         f.City,
		SearchStatus: domain.SearchOpen,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.CreatedAt,
	}
}

// Principal returns the acting principal for the fixture.
func (f UserFixture) Principal() application.Principal {
	return application.Principal{UserID: f.ID, Role: f.Role}
}

// ------------------------- Band request fixtures -------------------------

// BandRequestOption configures the generated band request.
type BandRequestOption func(*domain.BandRequest)

// NewBandRequestFixture returns an open request by creatorID recruiting two
// guitars and one drummer. The creator is already counted as a member.
func NewBandRequestFixture(creatorID string, opts ...BandRequestOption) domain.BandRequest {
	idx := atomic.AddUint64(&requestCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Hour)
	request := domain.BandRequest{
		ID:          fmt.Sprintf("br-%03d", idx),
		CreatorID:   creatorID,
		Title:       fmt.Sprintf("Looking for musicians %03d", idx),
		Description: "Weekly rehearsals, original material",
		Type:        domain.BandRequestOpen,
		Status:      domain.RequestStatusOpen,
		Genres:      []string{"rock"},
		Region:      "Tel Aviv",
		RadiusKm:    25,
		Slots: []domain.InstrumentSlot{
			{InstrumentID: "guitar", Quantity: 2, FilledBy: []string{}},
			{InstrumentID: "drums", Quantity: 1, FilledBy: []string{}},
		},
		CurrentMembers: []string{creatorID},
		CreatedAt:      created,
		UpdatedAt:      created,
	}
	for _, opt := range opts {
		opt(&request)
	}
	return request
}

// WithBandRequestID overrides the generated ID.
func WithBandRequestID(id string) BandRequestOption {
	return func(r *domain.BandRequest) {
		r.ID = id
	}
}

// WithBandRequestTargets turns the request into an invitation-only one.
func WithBandRequestTargets(userIDs ...string) BandRequestOption {
	return func(r *domain.BandRequest) {
		r.Type = domain.BandRequestTargeted
		r.TargetUserIDs = userIDs
	}
}

// WithBandRequestStatus overrides the status.
func WithBandRequestStatus(status domain.BandRequestStatus) BandRequestOption {
	return func(r *domain.BandRequest) {
		r.Status = status
	}
}

// ----------------------------- Band fixtures -----------------------------

// BandOption configures the generated band.
type BandOption func(*domain.Band)

// NewBandFixture returns a band led by leaderID with the other members in order.
func NewBandFixture(leaderID string, memberIDs []string, opts ...BandOption) domain.Band {
	idx := atomic.AddUint64(&bandCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Hour)
	band := domain.Band{
		ID:        fmt.Sprintf("band-%03d", idx),
		Name:      fmt.Sprintf("Band %03d", idx),
		City:      "Tel Aviv",
		Genres:    []string{"rock"},
		CreatedAt: created,
		UpdatedAt: created,
	}
	band.Members = append(band.Members, domain.BandMember{UserID: leaderID, InstrumentID: "vocals", IsLeader: true, JoinedAt: created})
	for i, id := range memberIDs {
		band.Members = append(band.Members, domain.BandMember{
			UserID:       id,
			InstrumentID: "guitar",
			JoinedAt:     created.Add(time.Duration(i+1) * time.Minute),
		})
	}
	for _, opt := range opts {
		opt(&band)
	}
	return band
}

// WithBandID overrides the generated ID.
func WithBandID(id string) BandOption {
	return func(b *domain.Band) {
		b.ID = id
	}
}

// WithBandProgress sets the approved rehearsal count and the per-band goal.
func WithBandProgress(approved, goal int) BandOption {
	return func(b *domain.Band) {
		b.ApprovedRehearsalsCount = approved
		b.RehearsalGoal = goal
	}
}

// ----------------------------- Event fixtures ----------------------------

// NewEventFixture returns a jam session with the given capacity (0 is unlimited).
func NewEventFixture(organizerID string, capacity int) domain.Event {
	idx := atomic.AddUint64(&eventCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Hour)
	return domain.Event{
		ID:              fmt.Sprintf("event-%03d", idx),
		Title:           fmt.Sprintf("Jam night %03d", idx),
		Type:            domain.EventJam,
		DateTime:        created.Add(7 * 24 * time.Hour),
		DurationMinutes: 180,
		Capacity:        capacity,
		Location:        "Studio A",
		OrganizerID:     organizerID,
		CreatedAt:       created,
		UpdatedAt:       created,
	}
}
