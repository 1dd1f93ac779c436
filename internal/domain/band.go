package domain

import (
	"slices"
	"time"
)

// BandRequestType distinguishes public recruiting posts from invitation-only ones.
type BandRequestType string

const (
	BandRequestOpen     BandRequestType = "open"
	BandRequestTargeted BandRequestType = "targeted"
)

// BandRequestStatus is the recruiting state of a band request.
type BandRequestStatus string

const (
	RequestStatusOpen   BandRequestStatus = "open"
	RequestStatusClosed BandRequestStatus = "closed"
	RequestStatusFormed BandRequestStatus = "formed"
)

// InstrumentSlot is a recruiting position. len(FilledBy) never exceeds Quantity.
type InstrumentSlot struct {
	InstrumentID string   `json:"instrumentId"`
	Quantity     int      `json:"quantity"`
	FilledBy     []string `json:"filledBy"`
}

// Open reports how many positions of the slot are still free.
func (s InstrumentSlot) Open() int {
	return s.Quantity - len(s.FilledBy)
}

// BandRequest is a recruiting post for a band that does not exist yet.
type BandRequest struct {
	ID             string            `json:"id"`
	CreatorID      string            `json:"creatorId"`
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	Type           BandRequestType   `json:"type"`
	Status         BandRequestStatus `json:"status"`
	Genres         []string          `json:"genres"`
	Region         string            `json:"region"`
	RadiusKm       int               `json:"radiusKm"`
	Slots          []InstrumentSlot  `json:"slots"`
	CurrentMembers []string          `json:"currentMembers"`
	TargetUserIDs  []string          `json:"targetUserIds,omitempty"`
	FormedBandID   string            `json:"formedBandId,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

func (r BandRequest) EntityID() string { return r.ID }

func (r BandRequest) Clone() BandRequest {
	r.Genres = slices.Clone(r.Genres)
	r.CurrentMembers = slices.Clone(r.CurrentMembers)
	r.TargetUserIDs = slices.Clone(r.TargetUserIDs)
	slots := make([]InstrumentSlot, len(r.Slots))
	for i, slot := range r.Slots {
		slot.FilledBy = slices.Clone(slot.FilledBy)
		slots[i] = slot
	}
	r.Slots = slots
	return r
}

// InstrumentOf returns the slot instrument filled by userID, if any.
func (r BandRequest) InstrumentOf(userID string) string {
	for _, slot := range r.Slots {
		if slices.Contains(slot.FilledBy, userID) {
			return slot.InstrumentID
		}
	}
	return ""
}

// ApplicationStatus is the review state of an application.
type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationApproved ApplicationStatus = "approved"
	ApplicationRejected ApplicationStatus = "rejected"
)

// Application is a musician's request to fill a slot of a band request.
type Application struct {
	ID            string            `json:"id"`
	BandRequestID string            `json:"bandRequestId"`
	ApplicantID   string            `json:"applicantId"`
	InstrumentID  string            `json:"instrumentId"`
	Message       string            `json:"message"`
	Status        ApplicationStatus `json:"status"`
	ReviewNote    string            `json:"reviewNote,omitempty"`
	ReviewedAt    *time.Time        `json:"reviewedAt,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

func (a Application) EntityID() string { return a.ID }

func (a Application) Clone() Application {
	if a.ReviewedAt != nil {
		reviewed := *a.ReviewedAt
		a.ReviewedAt = &reviewed
	}
	return a
}

// BandMember is one seat in a band.
type BandMember struct {
	UserID       string    `json:"userId"`
	InstrumentID string    `json:"instrumentId"`
	IsLeader     bool      `json:"isLeader"`
	JoinedAt     time.Time `json:"joinedAt"`
}

// Band is a formed group. While it exists it has members and exactly one leader.
type Band struct {
	ID                      string       `json:"id"`
	Name                    string       `json:"name"`
	Description             string       `json:"description"`
	City                    string       `json:"city"`
	Members                 []BandMember `json:"members"`
	Genres                  []string     `json:"genres"`
	OriginalBandRequestID   string       `json:"originalBandRequestId,omitempty"`
	ApprovedRehearsalsCount int          `json:"approvedRehearsalsCount"`
	RehearsalGoal           int          `json:"rehearsalGoal"`
	PerformanceRequestID    string       `json:"performanceRequestId,omitempty"`
	LiveSessionRequestID    string       `json:"liveSessionRequestId,omitempty"`
	CreatedAt               time.Time    `json:"createdAt"`
	UpdatedAt               time.Time    `json:"updatedAt"`
}

func (b Band) EntityID() string { return b.ID }

func (b Band) Clone() Band {
	b.Members = slices.Clone(b.Members)
	b.Genres = slices.Clone(b.Genres)
	return b
}

// Member returns the seat held by userID.
func (b Band) Member(userID string) (BandMember, bool) {
	for _, m := range b.Members {
		if m.UserID == userID {
			return m, true
		}
	}
	return BandMember{}, false
}

// IsMember reports whether userID holds a seat in the band.
func (b Band) IsMember(userID string) bool {
	_, ok := b.Member(userID)
	return ok
}

// Leader returns the member flagged as leader.
func (b Band) Leader() (BandMember, bool) {
	for _, m := range b.Members {
		if m.IsLeader {
			return m, true
		}
	}
	return BandMember{}, false
}

// IsLeader reports whether userID is the band leader.
func (b Band) IsLeader(userID string) bool {
	leader, ok := b.Leader()
	return ok && leader.UserID == userID
}

// Song is a band-scoped repertoire entry.
type Song struct {
	ID              string    `json:"id"`
	BandID          string    `json:"bandId"`
	Title           string    `json:"title"`
	Artist          string    `json:"artist"`
	Key             string    `json:"key,omitempty"`
	BPM             int       `json:"bpm,omitempty"`
	DurationSeconds int       `json:"durationSeconds,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	CreatedBy       string    `json:"createdBy"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func (s Song) EntityID() string { return s.ID }
func (s Song) Clone() Song      { return s }

// TaskStatus is the completion state of a band task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCompleted TaskStatus = "completed"
)

// Task is a band-scoped to-do item.
type Task struct {
	ID          string     `json:"id"`
	BandID      string     `json:"bandId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status"`
	AssigneeID  string     `json:"assigneeId,omitempty"`
	DueAt       *time.Time `json:"dueAt,omitempty"`
	CreatedBy   string     `json:"createdBy"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (t Task) EntityID() string { return t.ID }

func (t Task) Clone() Task {
	if t.DueAt != nil {
		due := *t.DueAt
		t.DueAt = &due
	}
	return t
}

// PerformanceKind names what an eligible band may ask for.
type PerformanceKind string

const (
	PerformanceStage       PerformanceKind = "performance"
	PerformanceLiveSession PerformanceKind = "live_session"
)

// PerformanceRequestStatus is the review state of a performance request.
type PerformanceRequestStatus string

const (
	PerformancePending  PerformanceRequestStatus = "pending"
	PerformanceApproved PerformanceRequestStatus = "approved"
	PerformanceRejected PerformanceRequestStatus = "rejected"
)

// PerformanceRequest is a band's ask for a performance slot or a recorded live session.
type PerformanceRequest struct {
	ID          string                   `json:"id"`
	BandID      string                   `json:"bandId"`
	Kind        PerformanceKind          `json:"kind"`
	Status      PerformanceRequestStatus `json:"status"`
	RequestedBy string                   `json:"requestedBy"`
	Message     string                   `json:"message,omitempty"`
	ReviewNote  string                   `json:"reviewNote,omitempty"`
	CreatedAt   time.Time                `json:"createdAt"`
	UpdatedAt   time.Time                `json:"updatedAt"`
}

func (p PerformanceRequest) EntityID() string          { return p.ID }
func (p PerformanceRequest) Clone() PerformanceRequest { return p }
