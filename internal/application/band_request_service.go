package application

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/bengol30/bandgo/internal/domain"
	"github.com/bengol30/bandgo/internal/persistence"
)

// SlotParams describes one recruiting slot of a new band request.
type SlotParams struct {
	InstrumentID string
	Quantity     int
}

// CreateBandRequestParams carries the data of a new recruiting post.
type CreateBandRequestParams struct {
	Title         string
	Description   string
	Type          domain.BandRequestType
	Genres        []string
	Region        string
	RadiusKm      int
	Slots         []SlotParams
	TargetUserIDs []string
	// CreatorInstrumentID optionally seats the creator in one of the slots.
	CreatorInstrumentID string
}

// CreateApplicationParams carries an application to a band request.
type CreateApplicationParams struct {
	BandRequestID string
	InstrumentID  string
	Message       string
}

func validateBandRequest(params CreateBandRequestParams) error {
	v := &ValidationError{}
	if strings.TrimSpace(params.Title) == "" {
		v.add("title", "is required")
	}
	switch params.Type {
	case domain.BandRequestOpen:
	case domain.BandRequestTargeted:
		if len(params.TargetUserIDs) == 0 {
			v.add("targetUserIds", "targeted requests need at least one target")
		}
	default:
		v.add("type", "must be open or targeted")
	}
	if params.RadiusKm < 0 {
		v.add("radiusKm", "cannot be negative")
	}
	if len(params.Slots) == 0 {
		v.add("slots", "at least one instrument slot is required")
	}
	seen := make(map[string]bool, len(params.Slots))
	for i, slot := range params.Slots {
		field := fmt.Sprintf("slots[%d]", i)
		switch {
		case strings.TrimSpace(slot.InstrumentID) == "":
			v.add(field, "instrumentId is required")
		case slot.Quantity < 1:
			v.add(field, "quantity must be at least 1")
		case seen[slot.InstrumentID]:
			v.add(field, "duplicate instrument")
		}
		seen[slot.InstrumentID] = true
	}
	if params.CreatorInstrumentID != "" && !seen[params.CreatorInstrumentID] {
		v.add("creatorInstrumentId", "must match one of the slots")
	}
	return v.errOrNil()
}

// CreateBandRequest publishes a recruiting post owned by the principal.
func (s *BandService) CreateBandRequest(ctx context.Context, principal Principal, params CreateBandRequestParams) (request domain.BandRequest, err error) {
	_, done := s.begin(ctx, "CreateBandRequest", "actor_id", principal.UserID)
	defer func() { done(err, "band request created", "band_request_id", request.ID) }()

	if err = requireActive(principal); err != nil {
		return
	}
	if err = validateBandRequest(params); err != nil {
		return
	}

	now := s.now()
	request = domain.BandRequest{
		ID:             s.idGenerator(),
		CreatorID:      principal.UserID,
		Title:          strings.TrimSpace(params.Title),
		Description:    params.Description,
		Type:           params.Type,
		Status:         domain.RequestStatusOpen,
		Genres:         slices.Clone(params.Genres),
		Region:         params.Region,
		RadiusKm:       params.RadiusKm,
		CurrentMembers: []string{principal.UserID},
		TargetUserIDs:  slices.Clone(params.TargetUserIDs),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, slot := range params.Slots {
		filled := []string{}
		if slot.InstrumentID == params.CreatorInstrumentID {
			filled = append(filled, principal.UserID)
		}
		request.Slots = append(request.Slots, domain.InstrumentSlot{
			InstrumentID: slot.InstrumentID,
			Quantity:     slot.Quantity,
			FilledBy:     filled,
		})
	}

	err = s.write(ctx, func(u *unit) error {
		return u.tx.BandRequests().Insert(request)
	})
	return
}

// GetBandRequest returns one band request.
func (s *BandService) GetBandRequest(ctx context.Context, requestID string) (request domain.BandRequest, err error) {
	err = s.read(ctx, func(tx persistence.Tx) error {
		var err error
		request, err = get(tx.BandRequests(), "band request", requestID)
		return err
	})
	return
}

// ListBandRequests returns requests with the given status, or all when status is empty.
func (s *BandService) ListBandRequests(ctx context.Context, status domain.BandRequestStatus) (requests []domain.BandRequest, err error) {
	err = s.read(ctx, func(tx persistence.Tx) error {
		requests = tx.BandRequests().Find(func(r domain.BandRequest) bool {
			return status == "" || r.Status == status
		})
		return nil
	})
	return
}

// CloseBandRequest stops recruiting without forming a band.
func (s *BandService) CloseBandRequest(ctx context.Context, principal Principal, requestID string) (request domain.BandRequest, err error) {
	_, done := s.begin(ctx, "CloseBandRequest", "actor_id", principal.UserID, "band_request_id", requestID)
	defer func() { done(err, "band request closed") }()

	if err = requireActive(principal); err != nil {
		return
	}

	unlock := s.locks.lock(requestKey(requestID))
	defer unlock()

	err = s.write(ctx, func(u *unit) error {
		var err error
		if request, err = get(u.tx.BandRequests(), "band request", requestID); err != nil {
			return err
		}
		if request.CreatorID != principal.UserID && !principal.CanModerate() {
			return denied("only the creator can close a band request")
		}
		if request.Status != domain.RequestStatusOpen {
			return invalidState("band request", request.ID, request.Status, domain.RequestStatusClosed)
		}
		request.Status = domain.RequestStatusClosed
		request.UpdatedAt = s.now()
		return u.tx.BandRequests().Update(request)
	})
	return
}

// CreateApplication applies the principal to a slot of an open request.
// A user holds at most one pending or approved application per request.
func (s *BandService) CreateApplication(ctx context.Context, principal Principal, params CreateApplicationParams) (application domain.Application, err error) {
	_, done := s.begin(ctx, "CreateApplication", "actor_id", principal.UserID, "band_request_id", params.BandRequestID)
	defer func() { done(err, "application created", "application_id", application.ID) }()

	if err = requireActive(principal); err != nil {
		return
	}
	if strings.TrimSpace(params.InstrumentID) == "" {
		err = invalidField("instrumentId", "is required")
		return
	}

	unlock := s.locks.lock(requestKey(params.BandRequestID))
	defer unlock()

	err = s.write(ctx, func(u *unit) error {
		request, err := get(u.tx.BandRequests(), "band request", params.BandRequestID)
		if err != nil {
			return err
		}
		if request.Status != domain.RequestStatusOpen {
			return fmt.Errorf("band request %s is %s: %w", request.ID, request.Status, ErrInvalidState)
		}
		if request.CreatorID == principal.UserID || slices.Contains(request.CurrentMembers, principal.UserID) {
			return fmt.Errorf("already a member of band request %s: %w", request.ID, ErrAlreadyExists)
		}
		if request.Type == domain.BandRequestTargeted && !slices.Contains(request.TargetUserIDs, principal.UserID) {
			return denied("this band request is invitation only")
		}
		if !slices.ContainsFunc(request.Slots, func(slot domain.InstrumentSlot) bool {
			return slot.InstrumentID == params.InstrumentID
		}) {
			return invalidField("instrumentId", "not recruited by this request")
		}
		active := u.tx.Applications().Find(func(a domain.Application) bool {
			return a.BandRequestID == request.ID && a.ApplicantID == principal.UserID && a.Status != domain.ApplicationRejected
		})
		if len(active) > 0 {
			return fmt.Errorf("application %s already open: %w", active[0].ID, ErrAlreadyExists)
		}

		now := s.now()
		application = domain.Application{
			ID:            s.idGenerator(),
			BandRequestID: request.ID,
			ApplicantID:   principal.UserID,
			InstrumentID:  params.InstrumentID,
			Message:       params.Message,
			Status:        domain.ApplicationPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := u.tx.Applications().Insert(application); err != nil {
			return err
		}
		return u.notify(request.CreatorID, domain.NotifyApplicationReceived,
			"New application", fmt.Sprintf("Someone applied to %q", request.Title),
			map[string]string{"bandRequestId": request.ID, "applicationId": application.ID})
	})
	return
}

// ListApplications returns the applications of one band request.
func (s *BandService) ListApplications(ctx context.Context, requestID string) (applications []domain.Application, err error) {
	err = s.read(ctx, func(tx persistence.Tx) error {
		if _, err := get(tx.BandRequests(), "band request", requestID); err != nil {
			return err
		}
		applications = tx.Applications().Find(func(a domain.Application) bool {
			return a.BandRequestID == requestID
		})
		return nil
	})
	return
}

// ReviewApplication decides a pending application. Approval does not seat the
// applicant; JoinBandRequest does that as a separate step.
func (s *BandService) ReviewApplication(ctx context.Context, principal Principal, applicationID string, status domain.ApplicationStatus, note string) (application domain.Application, err error) {
	_, done := s.begin(ctx, "ReviewApplication", "actor_id", principal.UserID, "application_id", applicationID, "status", status)
	defer func() { done(err, "application reviewed") }()

	if err = requireActive(principal); err != nil {
		return
	}
	if status != domain.ApplicationApproved && status != domain.ApplicationRejected {
		err = invalidField("status", "must be approved or rejected")
		return
	}

	err = s.write(ctx, func(u *unit) error {
		var err error
		if application, err = get(u.tx.Applications(), "application", applicationID); err != nil {
			return err
		}
		request, err := get(u.tx.BandRequests(), "band request", application.BandRequestID)
		if err != nil {
			return err
		}
		if request.CreatorID != principal.UserID && !principal.CanModerate() {
			return denied("only the request creator can review applications")
		}
		if application.Status != domain.ApplicationPending {
			return invalidState("application", application.ID, application.Status, status)
		}
		now := s.now()
		application.Status = status
		application.ReviewNote = note
		application.ReviewedAt = &now
		application.UpdatedAt = now
		if err := u.tx.Applications().Update(application); err != nil {
			return err
		}
		return u.notify(application.ApplicantID, domain.NotifyApplicationReviewed,
			"Application "+string(status), fmt.Sprintf("Your application to %q was %s", request.Title, status),
			map[string]string{"bandRequestId": request.ID, "applicationId": application.ID, "status": string(status)})
	})
	return
}

// JoinBandRequest seats userID in the slot for instrumentID. Users join open
// requests themselves; targeted users and approved applicants may also self-join.
// The creator or a moderator may seat an approved applicant.
func (s *BandService) JoinBandRequest(ctx context.Context, principal Principal, requestID, userID, instrumentID string) (request domain.BandRequest, err error) {
	_, done := s.begin(ctx, "JoinBandRequest", "actor_id", principal.UserID, "band_request_id", requestID, "user_id", userID)
	defer func() { done(err, "band request slot filled", "instrument_id", instrumentID) }()

	if err = requireActive(principal); err != nil {
		return
	}

	unlock := s.locks.lock(requestKey(requestID))
	defer unlock()

	err = s.write(ctx, func(u *unit) error {
		var err error
		if request, err = get(u.tx.BandRequests(), "band request", requestID); err != nil {
			return err
		}
		if request.Status != domain.RequestStatusOpen {
			return fmt.Errorf("band request %s is %s: %w", request.ID, request.Status, ErrInvalidState)
		}
		if _, err := get(u.tx.Users(), "user", userID); err != nil {
			return err
		}

		approved := len(u.tx.Applications().Find(func(a domain.Application) bool {
			return a.BandRequestID == request.ID && a.ApplicantID == userID && a.Status == domain.ApplicationApproved
		})) > 0
		self := principal.UserID == userID
		switch {
		case self && (request.Type == domain.BandRequestOpen || slices.Contains(request.TargetUserIDs, userID) || approved):
		case !self && (request.CreatorID == principal.UserID || principal.CanModerate()) && approved:
		case !self && (request.CreatorID == principal.UserID || principal.CanModerate()):
			return denied("only approved applicants can be seated")
		default:
			return denied("not allowed to join this band request")
		}

		if slices.Contains(request.CurrentMembers, userID) {
			return fmt.Errorf("user %s already in band request %s: %w", userID, request.ID, ErrAlreadyExists)
		}
		idx := slices.IndexFunc(request.Slots, func(slot domain.InstrumentSlot) bool {
			return slot.InstrumentID == instrumentID
		})
		if idx < 0 {
			return invalidField("instrumentId", "not recruited by this request")
		}
		if request.Slots[idx].Open() <= 0 {
			return fmt.Errorf("slot %s is full: %w", instrumentID, ErrCapacityExceeded)
		}

		request.Slots[idx].FilledBy = append(request.Slots[idx].FilledBy, userID)
		request.CurrentMembers = append(request.CurrentMembers, userID)
		request.UpdatedAt = s.now()
		if err := u.tx.BandRequests().Update(request); err != nil {
			return err
		}
		return u.notify(request.CreatorID, domain.NotifyBandMemberJoined,
			"New member", fmt.Sprintf("A musician joined %q", request.Title),
			map[string]string{"bandRequestId": request.ID, "userId": userID})
	})
	return
}

// FormBand turns a band request into a band. The creator becomes leader and
// every seated member joins; the request moves to formed for good.
func (s *BandService) FormBand(ctx context.Context, principal Principal, requestID, name string) (band domain.Band, err error) {
	_, done := s.begin(ctx, "FormBand", "actor_id", principal.UserID, "band_request_id", requestID)
	defer func() { done(err, "band formed", "band_id", band.ID, "members", len(band.Members)) }()

	if err = requireActive(principal); err != nil {
		return
	}
	name = strings.TrimSpace(name)
	if name == "" {
		err = invalidField("name", "is required")
		return
	}

	unlock := s.locks.lock(requestKey(requestID))
	defer unlock()

	err = s.write(ctx, func(u *unit) error {
		request, err := get(u.tx.BandRequests(), "band request", requestID)
		if err != nil {
			return err
		}
		if request.CreatorID != principal.UserID && !principal.CanModerate() {
			return denied("only the creator can form the band")
		}
		if request.Status == domain.RequestStatusFormed {
			return invalidState("band request", request.ID, request.Status, domain.RequestStatusFormed)
		}

		now := s.now()
		band = domain.Band{
			ID:                    s.idGenerator(),
			Name:                  name,
			Description:           request.Description,
			City:                  request.Region,
			Genres:                slices.Clone(request.Genres),
			OriginalBandRequestID: request.ID,
			CreatedAt:             now,
			UpdatedAt:             now,
		}
		seat := func(userID string) {
			if userID == "" || band.IsMember(userID) {
				return
			}
			band.Members = append(band.Members, domain.BandMember{
				UserID:       userID,
				InstrumentID: request.InstrumentOf(userID),
				IsLeader:     userID == request.CreatorID,
				JoinedAt:     now,
			})
		}
		seat(request.CreatorID)
		for _, id := range request.CurrentMembers {
			seat(id)
		}
		for _, slot := range request.Slots {
			for _, id := range slot.FilledBy {
				seat(id)
			}
		}

		if err := u.tx.Bands().Insert(band); err != nil {
			return err
		}
		request.Status = domain.RequestStatusFormed
		request.FormedBandID = band.ID
		request.UpdatedAt = now
		if err := u.tx.BandRequests().Update(request); err != nil {
			return err
		}
		return u.notifyAll(memberIDs(band), principal.UserID, domain.NotifyBandFormed,
			"Band formed", fmt.Sprintf("%q is now a band", band.Name),
			map[string]string{"bandId": band.ID})
	})
	return
}
