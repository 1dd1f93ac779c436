package application

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/bengol30/bandgo/internal/domain"
	"github.com/bengol30/bandgo/internal/persistence"
)

// EventParams carries the editable fields of an event or an event submission.
type EventParams struct {
	Title           string
	Description     string
	Type            domain.EventType
	DateTime        time.Time
	DurationMinutes int
	Capacity        int
	Price           float64
	Location        string
	// OrganizerID defaults to the acting principal. Ignored for submissions.
	OrganizerID    string
	TicketURL      string
	TicketProvider string
	CoverImageURL  string
}

// EventService manages events, capacity-aware registration and the submission workflow.
type EventService struct {
	service
	settings *SettingsService
}

// NewEventService constructs an EventService.
func NewEventService(deps Deps, settings *SettingsService, locks *keyedLocks) *EventService {
	return &EventService{service: newService("EventService", deps, locks), settings: settings}
}

func validEventType(t domain.EventType) bool {
	switch t {
	case domain.EventJam, domain.EventConcert, domain.EventWorkshop, domain.EventOpenMic, domain.EventLiveSession, domain.EventMeetup:
		return true
	}
	return false
}

func validateEventParams(params EventParams) error {
	v := &ValidationError{}
	if strings.TrimSpace(params.Title) == "" {
		v.add("title", "is required")
	}
	if !validEventType(params.Type) {
		v.add("type", "unknown event type")
	}
	if params.DateTime.IsZero() {
		v.add("dateTime", "is required")
	}
	if params.DurationMinutes <= 0 {
		v.add("durationMinutes", "must be positive")
	}
	if strings.TrimSpace(params.Location) == "" {
		v.add("location", "is required")
	}
	if params.Capacity < 0 {
		v.add("capacity", "cannot be negative")
	}
	if params.Price < 0 {
		v.add("price", "cannot be negative")
	}
	return v.errOrNil()
}

func (s *EventService) canEdit(principal Principal, event domain.Event) bool {
	return principal.IsStaff() || event.OrganizerID == principal.UserID
}

// CreateEvent publishes an event. Staff only; organizer defaults to the principal.
func (s *EventService) CreateEvent(ctx context.Context, principal Principal, params EventParams) (event domain.Event, err error) {
	_, done := s.begin(ctx, "CreateEvent", "actor_id", principal.UserID)
	defer func() { done(err, "event created", "event_id", event.ID) }()

	if err = requireStaff(principal); err != nil {
		return
	}
	if err = validateEventParams(params); err != nil {
		return
	}
	if params.OrganizerID == "" {
		params.OrganizerID = principal.UserID
	}
	err = s.write(ctx, func(u *unit) error {
		if params.OrganizerID != principal.UserID {
			if _, err := get(u.tx.Users(), "user", params.OrganizerID); err != nil {
				return err
			}
		}
		event = s.newEvent(params)
		return u.tx.Events().Insert(event)
	})
	return
}

func (s *EventService) newEvent(params EventParams) domain.Event {
	now := s.now()
	event := domain.Event{ID: s.idGenerator(), CreatedAt: now}
	applyEventParams(&event, params)
	event.UpdatedAt = now
	return event
}

func applyEventParams(event *domain.Event, params EventParams) {
	event.Title = strings.TrimSpace(params.Title)
	event.Description = params.Description
	event.Type = params.Type
	event.DateTime = params.DateTime
	event.DurationMinutes = params.DurationMinutes
	event.Capacity = params.Capacity
	event.Price = params.Price
	event.Location = strings.TrimSpace(params.Location)
	if params.OrganizerID != "" {
		event.OrganizerID = params.OrganizerID
	}
	event.TicketURL = params.TicketURL
	event.TicketProvider = params.TicketProvider
	event.CoverImageURL = params.CoverImageURL
}

// UpdateEvent replaces the event fields. Raising capacity promotes waitlisted
// registrants when auto promotion is enabled; lowering it never demotes anyone.
func (s *EventService) UpdateEvent(ctx context.Context, principal Principal, eventID string, params EventParams) (event domain.Event, err error) {
	_, done := s.begin(ctx, "UpdateEvent", "actor_id", principal.UserID, "event_id", eventID)
	defer func() { done(err, "event updated") }()

	if err = requireActive(principal); err != nil {
		return
	}
	if err = validateEventParams(params); err != nil {
		return
	}

	unlock := s.locks.lock(eventKey(eventID))
	defer unlock()

	err = s.write(ctx, func(u *unit) error {
		var err error
		if event, err = get(u.tx.Events(), "event", eventID); err != nil {
			return err
		}
		if !s.canEdit(principal, event) {
			return denied("only staff or the organizer can edit an event")
		}
		if params.OrganizerID != "" && params.OrganizerID != event.OrganizerID && !principal.IsStaff() {
			return denied("only staff can reassign the organizer")
		}
		raised := event.Capacity > 0 && (params.Capacity == 0 || params.Capacity > event.Capacity)
		applyEventParams(&event, params)
		event.UpdatedAt = s.now()
		if err := u.tx.Events().Update(event); err != nil {
			return err
		}
		if raised && s.settings.current(u.tx).AutoPromoteWaitlist {
			return s.promoteWaitlist(u, event)
		}
		return nil
	})
	return
}

// DeleteEvent removes an event with its registrations.
func (s *EventService) DeleteEvent(ctx context.Context, principal Principal, eventID string) (err error) {
	_, done := s.begin(ctx, "DeleteEvent", "actor_id", principal.UserID, "event_id", eventID)
	defer func() { done(err, "event deleted") }()

	if err = requireActive(principal); err != nil {
		return
	}

	unlock := s.locks.lock(eventKey(eventID))
	defer unlock()

	return s.write(ctx, func(u *unit) error {
		event, err := get(u.tx.Events(), "event", eventID)
		if err != nil {
			return err
		}
		if !s.canEdit(principal, event) {
			return denied("only staff or the organizer can delete an event")
		}
		if err := deleteWhere(u.tx.Registrations(), func(r domain.EventRegistration) bool {
			return r.EventID == event.ID
		}); err != nil {
			return err
		}
		return u.tx.Events().Delete(event.ID)
	})
}

// GetEvent returns one event.
func (s *EventService) GetEvent(ctx context.Context, eventID string) (event domain.Event, err error) {
	err = s.read(ctx, func(tx persistence.Tx) error {
		var err error
		event, err = get(tx.Events(), "event", eventID)
		return err
	})
	return
}

// ListEvents returns every event ordered by start time.
func (s *EventService) ListEvents(ctx context.Context) (events []domain.Event, err error) {
	err = s.read(ctx, func(tx persistence.Tx) error {
		events = tx.Events().List()
		return nil
	})
	slices.SortStableFunc(events, func(a, b domain.Event) int {
		return a.DateTime.Compare(b.DateTime)
	})
	return
}

// ListRegistrations returns the registrations of an event in arrival order.
func (s *EventService) ListRegistrations(ctx context.Context, eventID string) (registrations []domain.EventRegistration, err error) {
	err = s.read(ctx, func(tx persistence.Tx) error {
		if _, err := get(tx.Events(), "event", eventID); err != nil {
			return err
		}
		registrations = tx.Registrations().Find(func(r domain.EventRegistration) bool {
			return r.EventID == eventID
		})
		return nil
	})
	return
}

func registeredCount(tx persistence.Tx, eventID string) int {
	return len(tx.Registrations().Find(func(r domain.EventRegistration) bool {
		return r.EventID == eventID && r.Status == domain.RegistrationRegistered
	}))
}

func hasSeat(event domain.Event, registered int) bool {
	return event.Capacity == 0 || registered < event.Capacity
}

// RegisterForEvent seats the principal, or waitlists them once the event is full.
// The capacity check and insert run under the event lock inside one transaction.
func (s *EventService) RegisterForEvent(ctx context.Context, principal Principal, eventID string) (registration domain.EventRegistration, err error) {
	_, done := s.begin(ctx, "RegisterForEvent", "actor_id", principal.UserID, "event_id", eventID)
	defer func() { done(err, "registration recorded", "status", registration.Status) }()

	if err = requireActive(principal); err != nil {
		return
	}

	unlock := s.locks.lock(eventKey(eventID))
	defer unlock()

	err = s.write(ctx, func(u *unit) error {
		event, err := get(u.tx.Events(), "event", eventID)
		if err != nil {
			return err
		}
		active := u.tx.Registrations().Find(func(r domain.EventRegistration) bool {
			return r.EventID == event.ID && r.UserID == principal.UserID && r.Status != domain.RegistrationCancelled
		})
		if len(active) > 0 {
			return fmt.Errorf("registration %s is %s: %w", active[0].ID, active[0].Status, ErrAlreadyExists)
		}
		status := domain.RegistrationWaitlist
		if hasSeat(event, registeredCount(u.tx, event.ID)) {
			status = domain.RegistrationRegistered
		}
		now := s.now()
		registration = domain.EventRegistration{
			ID:        s.idGenerator(),
			EventID:   event.ID,
			UserID:    principal.UserID,
			Status:    status,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return u.tx.Registrations().Insert(registration)
	})
	if err == nil {
		s.observer.RegistrationRecorded(string(registration.Status))
	}
	return
}

// CancelRegistration cancels the principal's active registration. When auto
// promotion is enabled a freed seat goes to the earliest waitlisted registrant.
func (s *EventService) CancelRegistration(ctx context.Context, principal Principal, eventID string) (registration domain.EventRegistration, err error) {
	_, done := s.begin(ctx, "CancelRegistration", "actor_id", principal.UserID, "event_id", eventID)
	defer func() { done(err, "registration cancelled", "registration_id", registration.ID) }()

	if err = requireActive(principal); err != nil {
		return
	}

	unlock := s.locks.lock(eventKey(eventID))
	defer unlock()

	err = s.write(ctx, func(u *unit) error {
		event, err := get(u.tx.Events(), "event", eventID)
		if err != nil {
			return err
		}
		active := u.tx.Registrations().Find(func(r domain.EventRegistration) bool {
			return r.EventID == event.ID && r.UserID == principal.UserID && r.Status != domain.RegistrationCancelled
		})
		if len(active) == 0 {
			return notFound("registration", event.ID+"/"+principal.UserID)
		}
		registration = active[0]
		freed := registration.Status == domain.RegistrationRegistered
		registration.Status = domain.RegistrationCancelled
		registration.UpdatedAt = s.now()
		if err := u.tx.Registrations().Update(registration); err != nil {
			return err
		}
		if freed && s.settings.current(u.tx).AutoPromoteWaitlist {
			return s.promoteWaitlist(u, event)
		}
		return nil
	})
	if err == nil {
		s.observer.RegistrationRecorded(string(registration.Status))
	}
	return
}

// promoteWaitlist fills free seats from the waitlist in arrival order.
func (s *EventService) promoteWaitlist(u *unit, event domain.Event) error {
	waiting := u.tx.Registrations().Find(func(r domain.EventRegistration) bool {
		return r.EventID == event.ID && r.Status == domain.RegistrationWaitlist
	})
	registered := registeredCount(u.tx, event.ID)
	for _, r := range waiting {
		if !hasSeat(event, registered) {
			break
		}
		r.Status = domain.RegistrationRegistered
		r.UpdatedAt = s.now()
		if err := u.tx.Registrations().Update(r); err != nil {
			return err
		}
		registered++
		if err := u.notify(r.UserID, domain.NotifyWaitlistPromoted,
			"You're in", fmt.Sprintf("A seat opened up for %q", event.Title),
			map[string]string{"eventId": event.ID, "registrationId": r.ID}); err != nil {
			return err
		}
	}
	return nil
}

// CreateEventSubmission proposes an event for moderator review.
func (s *EventService) CreateEventSubmission(ctx context.Context, principal Principal, params EventParams) (submission domain.EventSubmission, err error) {
	_, done := s.begin(ctx, "CreateEventSubmission", "actor_id", principal.UserID)
	defer func() { done(err, "event submission created", "submission_id", submission.ID) }()

	if err = requireActive(principal); err != nil {
		return
	}
	if err = validateEventParams(params); err != nil {
		return
	}
	now := s.now()
	submission = domain.EventSubmission{
		ID:          s.idGenerator(),
		SubmitterID: principal.UserID,
		Status:      domain.SubmissionPending,
		CreatedAt:   now,
	}
	applySubmissionParams(&submission, params, now)
	err = s.write(ctx, func(u *unit) error {
		return u.tx.Submissions().Insert(submission)
	})
	return
}

func applySubmissionParams(submission *domain.EventSubmission, params EventParams, now time.Time) {
	submission.Title = strings.TrimSpace(params.Title)
	submission.Description = params.Description
	submission.Type = params.Type
	submission.DateTime = params.DateTime
	submission.DurationMinutes = params.DurationMinutes
	submission.Capacity = params.Capacity
	submission.Price = params.Price
	submission.Location = strings.TrimSpace(params.Location)
	submission.TicketURL = params.TicketURL
	submission.UpdatedAt = now
}

// ListSubmissions returns submissions in status, or all when empty. Moderators
// see every submission; other users only their own.
func (s *EventService) ListSubmissions(ctx context.Context, principal Principal, status domain.SubmissionStatus) (submissions []domain.EventSubmission, err error) {
	if err = requireActive(principal); err != nil {
		return
	}
	err = s.read(ctx, func(tx persistence.Tx) error {
		submissions = tx.Submissions().Find(func(sub domain.EventSubmission) bool {
			if !principal.CanModerate() && sub.SubmitterID != principal.UserID {
				return false
			}
			return status == "" || sub.Status == status
		})
		return nil
	})
	return
}

// reviewSubmission is the compare-and-set step shared by every review decision.
func (s *EventService) reviewSubmission(ctx context.Context, principal Principal, operation, submissionID string, to domain.SubmissionStatus, note string, apply func(u *unit, sub *domain.EventSubmission) error) (submission domain.EventSubmission, err error) {
	_, done := s.begin(ctx, operation, "actor_id", principal.UserID, "submission_id", submissionID)
	defer func() { done(err, "event submission reviewed", "status", to) }()

	if err = requireModerator(principal); err != nil {
		return
	}
	err = s.write(ctx, func(u *unit) error {
		var err error
		if submission, err = get(u.tx.Submissions(), "event submission", submissionID); err != nil {
			return err
		}
		if submission.Status != domain.SubmissionPending {
			return invalidState("event submission", submission.ID, submission.Status, to)
		}
		submission.Status = to
		submission.ReviewerID = principal.UserID
		submission.ReviewNote = note
		submission.UpdatedAt = s.now()
		if apply != nil {
			if err := apply(u, &submission); err != nil {
				return err
			}
		}
		if err := u.tx.Submissions().Update(submission); err != nil {
			return err
		}
		return u.notify(submission.SubmitterID, domain.NotifySubmissionReviewed,
			"Event submission "+strings.ReplaceAll(string(to), "_", " "), note,
			map[string]string{"submissionId": submission.ID, "status": string(to), "eventId": submission.ApprovedEventID})
	})
	return
}

// ApproveEventSubmission materializes the submission as an event organized by the submitter.
func (s *EventService) ApproveEventSubmission(ctx context.Context, principal Principal, submissionID string) (domain.EventSubmission, error) {
	return s.reviewSubmission(ctx, principal, "ApproveEventSubmission", submissionID, domain.SubmissionApproved, "",
		func(u *unit, sub *domain.EventSubmission) error {
			event := s.newEvent(EventParams{
				Title:           sub.Title,
				Description:     sub.Description,
				Type:            sub.Type,
				DateTime:        sub.DateTime,
				DurationMinutes: sub.DurationMinutes,
				Capacity:        sub.Capacity,
				Price:           sub.Price,
				Location:        sub.Location,
				OrganizerID:     sub.SubmitterID,
				TicketURL:       sub.TicketURL,
			})
			if err := u.tx.Events().Insert(event); err != nil {
				return err
			}
			sub.ApprovedEventID = event.ID
			return nil
		})
}

// RejectEventSubmission declines a pending submission, keeping the reason.
func (s *EventService) RejectEventSubmission(ctx context.Context, principal Principal, submissionID, reason string) (domain.EventSubmission, error) {
	return s.reviewSubmission(ctx, principal, "RejectEventSubmission", submissionID, domain.SubmissionRejected, reason, nil)
}

// RequestChangesOnSubmission sends a pending submission back to its submitter.
func (s *EventService) RequestChangesOnSubmission(ctx context.Context, principal Principal, submissionID, note string) (domain.EventSubmission, error) {
	return s.reviewSubmission(ctx, principal, "RequestChangesOnSubmission", submissionID, domain.SubmissionNeedsChanges, note, nil)
}

// ResubmitEventSubmission updates a submission that needs changes and puts it back in review.
func (s *EventService) ResubmitEventSubmission(ctx context.Context, principal Principal, submissionID string, params EventParams) (submission domain.EventSubmission, err error) {
	_, done := s.begin(ctx, "ResubmitEventSubmission", "actor_id", principal.UserID, "submission_id", submissionID)
	defer func() { done(err, "event submission resubmitted") }()

	if err = requireActive(principal); err != nil {
		return
	}
	if err = validateEventParams(params); err != nil {
		return
	}
	err = s.write(ctx, func(u *unit) error {
		var err error
		if submission, err = get(u.tx.Submissions(), "event submission", submissionID); err != nil {
			return err
		}
		if submission.SubmitterID != principal.UserID {
			return denied("only the submitter can resubmit")
		}
		if submission.Status != domain.SubmissionNeedsChanges {
			return invalidState("event submission", submission.ID, submission.Status, domain.SubmissionPending)
		}
		applySubmissionParams(&submission, params, s.now())
		submission.Status = domain.SubmissionPending
		return u.tx.Submissions().Update(submission)
	})
	return
}
