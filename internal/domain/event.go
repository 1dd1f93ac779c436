package domain

import "time"

// EventType classifies an event on the platform calendar.
type EventType string

const (
	EventJam         EventType = "jam"
	EventConcert     EventType = "concert"
	EventWorkshop    EventType = "workshop"
	EventOpenMic     EventType = "open_mic"
	EventLiveSession EventType = "live_session"
	EventMeetup      EventType = "meetup"
)

// Event is a scheduled happening users can register for. Capacity 0 means unlimited.
type Event struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Type            EventType `json:"type"`
	DateTime        time.Time `json:"dateTime"`
	DurationMinutes int       `json:"durationMinutes"`
	Capacity        int       `json:"capacity"`
	Price           float64   `json:"price"`
	Location        string    `json:"location"`
	OrganizerID     string    `json:"organizerId"`
	TicketURL       string    `json:"ticketUrl,omitempty"`
	TicketProvider  string    `json:"ticketProvider,omitempty"`
	CoverImageURL   string    `json:"coverImageUrl,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func (e Event) EntityID() string { return e.ID }
func (e Event) Clone() Event      { return e }

// RegistrationStatus is the seat state of an event registration.
type RegistrationStatus string

const (
	RegistrationRegistered RegistrationStatus = "registered"
	RegistrationWaitlist   RegistrationStatus = "waitlist"
	RegistrationCancelled  RegistrationStatus = "cancelled"
)

// EventRegistration links a user to an event.
type EventRegistration struct {
	ID        string             `json:"id"`
	EventID   string             `json:"eventId"`
	UserID    string             `json:"userId"`
	Status    RegistrationStatus `json:"status"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

func (r EventRegistration) EntityID() string         { return r.ID }
func (r EventRegistration) Clone() EventRegistration { return r }

// SubmissionStatus is the moderation state of an event submission.
type SubmissionStatus string

const (
	SubmissionPending      SubmissionStatus = "pending"
	SubmissionApproved     SubmissionStatus = "approved"
	SubmissionNeedsChanges SubmissionStatus = "needs_changes"
	SubmissionRejected     SubmissionStatus = "rejected"
)

// EventSubmission is an event proposed by a regular user, awaiting review.
type EventSubmission struct {
	ID              string           `json:"id"`
	SubmitterID     string           `json:"submitterId"`
	Title           string           `json:"title"`
	Description     string           `json:"description"`
	Type            EventType        `json:"type"`
	DateTime        time.Time        `json:"dateTime"`
	DurationMinutes int              `json:"durationMinutes"`
	Capacity        int              `json:"capacity"`
	Price           float64          `json:"price"`
	Location        string           `json:"location"`
	TicketURL       string           `json:"ticketUrl,omitempty"`
	Status          SubmissionStatus `json:"status"`
	ReviewerID      string           `json:"reviewerId,omitempty"`
	ReviewNote      string           `json:"reviewNote,omitempty"`
	ApprovedEventID string           `json:"approvedEventId,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

func (s EventSubmission) EntityID() string       { return s.ID }
func (s EventSubmission) Clone() EventSubmission { return s }
