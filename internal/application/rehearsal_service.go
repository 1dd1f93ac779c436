package application

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bengol30/bandgo/internal/domain"
	"github.com/bengol30/bandgo/internal/persistence"
)

// PollOptionParams proposes one time slot.
type PollOptionParams struct {
	DateTime        time.Time
	DurationMinutes int
}

// CreatePollParams carries a new scheduling poll. A zero Deadline defaults to
// now plus the configured poll duration.
type CreatePollParams struct {
	Location string
	Deadline time.Time
	Options  []PollOptionParams
}

// CreateRehearsalParams carries a directly scheduled rehearsal. Tentative
// rehearsals start in polling and may be linked to the poll deciding their slot.
type CreateRehearsalParams struct {
	DateTime        time.Time
	DurationMinutes int
	Location        string
	Tentative       bool
	PollID          string
}

// AutoFinalizeResult summarises one auto-finalization sweep.
type AutoFinalizeResult struct {
	Finalized int
	Closed    int
}

// RehearsalService runs scheduling polls and the rehearsal approval workflow.
type RehearsalService struct {
	service
	settings *SettingsService
}

// NewRehearsalService constructs a RehearsalService.
func NewRehearsalService(deps Deps, settings *SettingsService, locks *keyedLocks) *RehearsalService {
	return &RehearsalService{service: newService("RehearsalService", deps, locks), settings: settings}
}

// CreateRehearsalPoll opens a poll with at least two options for band members to vote on.
func (s *RehearsalService) CreateRehearsalPoll(ctx context.Context, principal Principal, bandID string, params CreatePollParams) (poll domain.RehearsalPoll, err error) {
	_, done := s.begin(ctx, "CreateRehearsalPoll", "actor_id", principal.UserID, "band_id", bandID)
	defer func() { done(err, "rehearsal poll created", "poll_id", poll.ID, "options", len(poll.Options)) }()

	if err = requireActive(principal); err != nil {
		return
	}
	v := &ValidationError{}
	if len(params.Options) < 2 {
		v.add("options", "at least two options are required")
	}
	for i, opt := range params.Options {
		field := fmt.Sprintf("options[%d]", i)
		if opt.DateTime.IsZero() {
			v.add(field, "dateTime is required")
		} else if opt.DurationMinutes <= 0 {
			v.add(field, "durationMinutes must be positive")
		}
	}
	if err = v.errOrNil(); err != nil {
		return
	}

	err = s.write(ctx, func(u *unit) error {
		band, err := get(u.tx.Bands(), "band", bandID)
		if err != nil {
			return err
		}
		if !band.IsMember(principal.UserID) {
			return denied("band members only")
		}
		now := s.now()
		deadline := params.Deadline
		if deadline.IsZero() {
			deadline = now.Add(time.Duration(s.settings.current(u.tx).PollDurationHours) * time.Hour)
		}
		if !deadline.After(now) {
			return invalidField("deadline", "must be in the future")
		}
		poll = domain.RehearsalPoll{
			ID:        s.idGenerator(),
			BandID:    band.ID,
			CreatorID: principal.UserID,
			Location:  params.Location,
			Deadline:  deadline,
			CreatedAt: now,
			UpdatedAt: now,
		}
		for i, opt := range params.Options {
			poll.Options = append(poll.Options, domain.PollOption{
				ID:              poll.ID + "-" + strconv.Itoa(i+1),
				DateTime:        opt.DateTime,
				DurationMinutes: opt.DurationMinutes,
				Votes:           map[string]bool{},
			})
		}
		if err := u.tx.Polls().Insert(poll); err != nil {
			return err
		}
		return u.notifyAll(memberIDs(band), principal.UserID, domain.NotifyPollCreated,
			"New rehearsal poll", "Vote for the next rehearsal of "+band.Name,
			map[string]string{"bandId": band.ID, "pollId": poll.ID})
	})
	return
}

// GetPoll returns one open poll.
func (s *RehearsalService) GetPoll(ctx context.Context, pollID string) (poll domain.RehearsalPoll, err error) {
	err = s.read(ctx, func(tx persistence.Tx) error {
		var err error
		poll, err = get(tx.Polls(), "rehearsal poll", pollID)
		return err
	})
	return
}

// ListPolls returns the open polls of a band.
func (s *RehearsalService) ListPolls(ctx context.Context, bandID string) (polls []domain.RehearsalPoll, err error) {
	err = s.read(ctx, func(tx persistence.Tx) error {
		polls = tx.Polls().Find(func(p domain.RehearsalPoll) bool { return p.BandID == bandID })
		return nil
	})
	return
}

// VoteOnPoll records the principal's answer for one option, replacing any
// earlier answer on that option. Options are voted on independently.
func (s *RehearsalService) VoteOnPoll(ctx context.Context, principal Principal, pollID, optionID string, canAttend bool) (poll domain.RehearsalPoll, err error) {
	_, done := s.begin(ctx, "VoteOnPoll", "actor_id", principal.UserID, "poll_id", pollID, "option_id", optionID)
	defer func() { done(err, "vote recorded", "can_attend", canAttend) }()

	if err = requireActive(principal); err != nil {
		return
	}
	err = s.write(ctx, func(u *unit) error {
		var err error
		if poll, err = get(u.tx.Polls(), "rehearsal poll", pollID); err != nil {
			return err
		}
		band, err := get(u.tx.Bands(), "band", poll.BandID)
		if err != nil {
			return err
		}
		if !band.IsMember(principal.UserID) {
			return denied("band members only")
		}
		now := s.now()
		if now.After(poll.Deadline) {
			return fmt.Errorf("rehearsal poll %s closed at %s: %w", poll.ID, poll.Deadline.Format(time.RFC3339), ErrInvalidState)
		}
		_, idx, ok := poll.Option(optionID)
		if !ok {
			return notFound("poll option", optionID)
		}
		poll.Options[idx].Votes[principal.UserID] = canAttend
		poll.UpdatedAt = now
		return u.tx.Polls().Update(poll)
	})
	return
}

// FinalizePoll schedules the rehearsal for optionID and removes the poll. Leader only.
func (s *RehearsalService) FinalizePoll(ctx context.Context, principal Principal, pollID, optionID string) (rehearsal domain.Rehearsal, err error) {
	_, done := s.begin(ctx, "FinalizePoll", "actor_id", principal.UserID, "poll_id", pollID, "option_id", optionID)
	defer func() { done(err, "poll finalized", "rehearsal_id", rehearsal.ID) }()

	if err = requireActive(principal); err != nil {
		return
	}
	err = s.write(ctx, func(u *unit) error {
		poll, err := get(u.tx.Polls(), "rehearsal poll", pollID)
		if err != nil {
			return err
		}
		band, err := get(u.tx.Bands(), "band", poll.BandID)
		if err != nil {
			return err
		}
		if !band.IsLeader(principal.UserID) {
			return denied("only the band leader can finalize a poll")
		}
		rehearsal, err = s.finalize(u, band, poll, optionID)
		return err
	})
	return
}

func (s *RehearsalService) finalize(u *unit, band domain.Band, poll domain.RehearsalPoll, optionID string) (domain.Rehearsal, error) {
	option, _, ok := poll.Option(optionID)
	if !ok {
		return domain.Rehearsal{}, notFound("poll option", optionID)
	}
	now := s.now()

	var rehearsal domain.Rehearsal
	linked := u.tx.Rehearsals().Find(func(r domain.Rehearsal) bool {
		return r.PollID == poll.ID && r.Status == domain.RehearsalPolling
	})
	if len(linked) > 0 {
		rehearsal = linked[0]
		rehearsal.DateTime = option.DateTime
		rehearsal.DurationMinutes = option.DurationMinutes
		if poll.Location != "" {
			rehearsal.Location = poll.Location
		}
		rehearsal.Status = domain.RehearsalScheduled
		rehearsal.UpdatedAt = now
		if err := u.tx.Rehearsals().Update(rehearsal); err != nil {
			return rehearsal, err
		}
	} else {
		rehearsal = domain.Rehearsal{
			ID:              s.idGenerator(),
			BandID:          band.ID,
			PollID:          poll.ID,
			DateTime:        option.DateTime,
			DurationMinutes: option.DurationMinutes,
			Location:        poll.Location,
			Status:          domain.RehearsalScheduled,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := u.tx.Rehearsals().Insert(rehearsal); err != nil {
			return rehearsal, err
		}
	}
	if err := u.tx.Polls().Delete(poll.ID); err != nil {
		return rehearsal, err
	}
	return rehearsal, u.notifyAll(memberIDs(band), "", domain.NotifyRehearsalScheduled,
		"Rehearsal scheduled", fmt.Sprintf("%s rehearses on %s", band.Name, rehearsal.DateTime.Format(time.RFC1123)),
		map[string]string{"bandId": band.ID, "rehearsalId": rehearsal.ID})
}

// ClosePoll discards a poll without scheduling anything. Leader or moderator.
func (s *RehearsalService) ClosePoll(ctx context.Context, principal Principal, pollID string) (err error) {
	_, done := s.begin(ctx, "ClosePoll", "actor_id", principal.UserID, "poll_id", pollID)
	defer func() { done(err, "poll closed") }()

	if err = requireActive(principal); err != nil {
		return
	}
	return s.write(ctx, func(u *unit) error {
		poll, err := get(u.tx.Polls(), "rehearsal poll", pollID)
		if err != nil {
			return err
		}
		band, err := get(u.tx.Bands(), "band", poll.BandID)
		if err != nil {
			return err
		}
		if !band.IsLeader(principal.UserID) && !principal.CanModerate() {
			return denied("only the band leader can close a poll")
		}
		return s.closePoll(u, poll)
	})
}

func (s *RehearsalService) closePoll(u *unit, poll domain.RehearsalPoll) error {
	now := s.now()
	for _, r := range u.tx.Rehearsals().Find(func(r domain.Rehearsal) bool {
		return r.PollID == poll.ID && r.Status == domain.RehearsalPolling
	}) {
		r.Status = domain.RehearsalCancelled
		r.UpdatedAt = now
		if err := u.tx.Rehearsals().Update(r); err != nil {
			return err
		}
	}
	return u.tx.Polls().Delete(poll.ID)
}

// winningOption picks the option with most yes votes, ties going to the earliest slot.
func winningOption(poll domain.RehearsalPoll) (domain.PollOption, bool) {
	var best domain.PollOption
	found := false
	for _, opt := range poll.Options {
		yes := opt.YesVotes()
		if yes == 0 {
			continue
		}
		if !found || yes > best.YesVotes() || (yes == best.YesVotes() && opt.DateTime.Before(best.DateTime)) {
			best = opt
			found = true
		}
	}
	return best, found
}

// AutoFinalizeExpiredPolls settles every poll past its deadline when the
// platform enables automatic finalization. Polls without a yes vote are closed.
func (s *RehearsalService) AutoFinalizeExpiredPolls(ctx context.Context) (result AutoFinalizeResult, err error) {
	_, done := s.begin(ctx, "AutoFinalizeExpiredPolls")
	defer func() { done(err, "expired polls settled", "finalized", result.Finalized, "closed", result.Closed) }()

	var expired []domain.RehearsalPoll
	err = s.read(ctx, func(tx persistence.Tx) error {
		if !s.settings.current(tx).AutoFinalizePoll {
			return nil
		}
		now := s.now()
		expired = tx.Polls().Find(func(p domain.RehearsalPoll) bool { return now.After(p.Deadline) })
		return nil
	})
	if err != nil {
		return
	}

	for _, candidate := range expired {
		unlock := s.locks.lock(bandKey(candidate.BandID))
		err = s.write(ctx, func(u *unit) error {
			poll, err := u.tx.Polls().Get(candidate.ID)
			if err != nil {
				// settled concurrently
				return nil
			}
			option, ok := winningOption(poll)
			band, err := u.tx.Bands().Get(poll.BandID)
			if !ok || err != nil {
				result.Closed++
				return s.closePoll(u, poll)
			}
			result.Finalized++
			_, err = s.finalize(u, band, poll, option.ID)
			return err
		})
		unlock()
		if err != nil {
			return
		}
	}
	return
}

// CreateRehearsal schedules a rehearsal directly, or in polling when tentative.
func (s *RehearsalService) CreateRehearsal(ctx context.Context, principal Principal, bandID string, params CreateRehearsalParams) (rehearsal domain.Rehearsal, err error) {
	_, done := s.begin(ctx, "CreateRehearsal", "actor_id", principal.UserID, "band_id", bandID)
	defer func() { done(err, "rehearsal created", "rehearsal_id", rehearsal.ID, "status", rehearsal.Status) }()

	if err = requireActive(principal); err != nil {
		return
	}
	v := &ValidationError{}
	if params.DateTime.IsZero() && !params.Tentative {
		v.add("dateTime", "is required")
	}
	if params.DurationMinutes < 0 || (!params.Tentative && params.DurationMinutes == 0) {
		v.add("durationMinutes", "must be positive")
	}
	if strings.TrimSpace(params.PollID) != "" && !params.Tentative {
		v.add("pollId", "only tentative rehearsals follow a poll")
	}
	if err = v.errOrNil(); err != nil {
		return
	}

	err = s.write(ctx, func(u *unit) error {
		band, err := get(u.tx.Bands(), "band", bandID)
		if err != nil {
			return err
		}
		if !band.IsMember(principal.UserID) {
			return denied("band members only")
		}
		if params.PollID != "" {
			poll, err := get(u.tx.Polls(), "rehearsal poll", params.PollID)
			if err != nil {
				return err
			}
			if poll.BandID != band.ID {
				return invalidField("pollId", "belongs to another band")
			}
		}
		status := domain.RehearsalScheduled
		if params.Tentative {
			status = domain.RehearsalPolling
		}
		now := s.now()
		rehearsal = domain.Rehearsal{
			ID:              s.idGenerator(),
			BandID:          band.ID,
			PollID:          params.PollID,
			DateTime:        params.DateTime,
			DurationMinutes: params.DurationMinutes,
			Location:        params.Location,
			Status:          status,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := u.tx.Rehearsals().Insert(rehearsal); err != nil {
			return err
		}
		if status != domain.RehearsalScheduled {
			return nil
		}
		return u.notifyAll(memberIDs(band), principal.UserID, domain.NotifyRehearsalScheduled,
			"Rehearsal scheduled", fmt.Sprintf("%s rehearses on %s", band.Name, rehearsal.DateTime.Format(time.RFC1123)),
			map[string]string{"bandId": band.ID, "rehearsalId": rehearsal.ID})
	})
	return
}

// GetRehearsal returns one rehearsal.
func (s *RehearsalService) GetRehearsal(ctx context.Context, rehearsalID string) (rehearsal domain.Rehearsal, err error) {
	err = s.read(ctx, func(tx persistence.Tx) error {
		var err error
		rehearsal, err = get(tx.Rehearsals(), "rehearsal", rehearsalID)
		return err
	})
	return
}

// ListRehearsals returns the rehearsals of a band.
func (s *RehearsalService) ListRehearsals(ctx context.Context, bandID string) (rehearsals []domain.Rehearsal, err error) {
	err = s.read(ctx, func(tx persistence.Tx) error {
		rehearsals = tx.Rehearsals().Find(func(r domain.Rehearsal) bool { return r.BandID == bandID })
		return nil
	})
	return
}

// GetPendingApprovals lists rehearsals awaiting staff review. Staff only.
func (s *RehearsalService) GetPendingApprovals(ctx context.Context, principal Principal) (rehearsals []domain.Rehearsal, err error) {
	if err = requireStaff(principal); err != nil {
		return
	}
	err = s.read(ctx, func(tx persistence.Tx) error {
		rehearsals = tx.Rehearsals().Find(func(r domain.Rehearsal) bool {
			return r.Status == domain.RehearsalCompletionSubmitted
		})
		return nil
	})
	return
}

// transition is one compare-and-set step of the rehearsal state machine.
type transition struct {
	operation string
	from      []domain.RehearsalStatus
	to        domain.RehearsalStatus
	// authorize runs against the owning band before the state check.
	authorize func(band domain.Band) error
	// apply runs after the status changed and before the rehearsal is saved.
	apply func(u *unit, band *domain.Band, rehearsal *domain.Rehearsal) error
	success string
}

func (s *RehearsalService) transition(ctx context.Context, principal Principal, rehearsalID string, t transition) (rehearsal domain.Rehearsal, err error) {
	_, done := s.begin(ctx, t.operation, "actor_id", principal.UserID, "rehearsal_id", rehearsalID)
	defer func() { done(err, t.success, "status", rehearsal.Status) }()

	if err = requireActive(principal); err != nil {
		return
	}

	var bandID string
	if err = s.read(ctx, func(tx persistence.Tx) error {
		current, err := get(tx.Rehearsals(), "rehearsal", rehearsalID)
		bandID = current.BandID
		return err
	}); err != nil {
		return
	}
	unlock := s.locks.lock(bandKey(bandID))
	defer unlock()

	err = s.write(ctx, func(u *unit) error {
		var err error
		if rehearsal, err = get(u.tx.Rehearsals(), "rehearsal", rehearsalID); err != nil {
			return err
		}
		band, err := get(u.tx.Bands(), "band", rehearsal.BandID)
		if err != nil {
			return err
		}
		if t.authorize != nil {
			if err := t.authorize(band); err != nil {
				return err
			}
		}
		if !slices.Contains(t.from, rehearsal.Status) {
			return invalidState("rehearsal", rehearsal.ID, rehearsal.Status, t.to)
		}
		rehearsal.Status = t.to
		rehearsal.UpdatedAt = s.now()
		if t.apply != nil {
			if err := t.apply(u, &band, &rehearsal); err != nil {
				return err
			}
		}
		return u.tx.Rehearsals().Update(rehearsal)
	})
	return
}

// ConfirmRehearsal moves a tentative rehearsal to scheduled. Leader only.
func (s *RehearsalService) ConfirmRehearsal(ctx context.Context, principal Principal, rehearsalID string) (domain.Rehearsal, error) {
	return s.transition(ctx, principal, rehearsalID, transition{
		operation: "ConfirmRehearsal",
		from:      []domain.RehearsalStatus{domain.RehearsalPolling},
		to:        domain.RehearsalScheduled,
		authorize: func(band domain.Band) error {
			if !band.IsLeader(principal.UserID) {
				return denied("only the band leader can confirm a rehearsal")
			}
			return nil
		},
		apply: func(_ *unit, _ *domain.Band, r *domain.Rehearsal) error {
			if r.DateTime.IsZero() || r.DurationMinutes <= 0 {
				return invalidField("dateTime", "a confirmed rehearsal needs a date and duration")
			}
			return nil
		},
		success: "rehearsal confirmed",
	})
}

// SubmitRehearsalCompletion reports that a scheduled rehearsal took place. Members only.
func (s *RehearsalService) SubmitRehearsalCompletion(ctx context.Context, principal Principal, rehearsalID string) (domain.Rehearsal, error) {
	return s.transition(ctx, principal, rehearsalID, transition{
		operation: "SubmitRehearsalCompletion",
		from:      []domain.RehearsalStatus{domain.RehearsalScheduled},
		to:        domain.RehearsalCompletionSubmitted,
		authorize: func(band domain.Band) error {
			if !band.IsMember(principal.UserID) {
				return denied("band members only")
			}
			return nil
		},
		apply: func(_ *unit, _ *domain.Band, r *domain.Rehearsal) error {
			r.CompletionSubmittedBy = principal.UserID
			return nil
		},
		success: "rehearsal completion submitted",
	})
}

// ApproveRehearsal accepts a submitted rehearsal and recounts the band's
// approved rehearsals in the same transaction. Staff only.
func (s *RehearsalService) ApproveRehearsal(ctx context.Context, principal Principal, rehearsalID, note string) (domain.Rehearsal, error) {
	return s.transition(ctx, principal, rehearsalID, transition{
		operation: "ApproveRehearsal",
		authorize: func(domain.Band) error { return requireStaff(principal) },
		from:      []domain.RehearsalStatus{domain.RehearsalCompletionSubmitted},
		to:        domain.RehearsalApproved,
		apply: func(u *unit, band *domain.Band, r *domain.Rehearsal) error {
			r.ReviewedBy = principal.UserID
			r.AdminNote = note
			recountApproved(u.tx, band, *r)
			band.UpdatedAt = r.UpdatedAt
			if err := u.tx.Bands().Update(*band); err != nil {
				return err
			}
			return u.notifyAll(memberIDs(*band), "", domain.NotifyRehearsalReviewed,
				"Rehearsal approved",
				fmt.Sprintf("%d of %d rehearsals approved", band.ApprovedRehearsalsCount, rehearsalGoal(*band, s.settings.current(u.tx))),
				map[string]string{"bandId": band.ID, "rehearsalId": r.ID, "status": string(r.Status)})
		},
		success: "rehearsal approved",
	})
}

// recountApproved derives the band's approved counter from its rehearsals,
// taking pending's in-flight status over the stored row.
func recountApproved(tx persistence.Tx, band *domain.Band, pending domain.Rehearsal) {
	count := 0
	for _, r := range tx.Rehearsals().Find(func(r domain.Rehearsal) bool { return r.BandID == band.ID }) {
		if r.ID == pending.ID {
			r = pending
		}
		if r.Status == domain.RehearsalApproved {
			count++
		}
	}
	band.ApprovedRehearsalsCount = count
}

// RejectRehearsal declines a submitted rehearsal with a note. Staff only.
func (s *RehearsalService) RejectRehearsal(ctx context.Context, principal Principal, rehearsalID, note string) (domain.Rehearsal, error) {
	return s.transition(ctx, principal, rehearsalID, transition{
		operation: "RejectRehearsal",
		authorize: func(domain.Band) error { return requireStaff(principal) },
		from:      []domain.RehearsalStatus{domain.RehearsalCompletionSubmitted},
		to:        domain.RehearsalRejected,
		apply: func(u *unit, band *domain.Band, r *domain.Rehearsal) error {
			r.ReviewedBy = principal.UserID
			r.AdminNote = note
			return u.notifyAll(memberIDs(*band), "", domain.NotifyRehearsalReviewed,
				"Rehearsal rejected", note,
				map[string]string{"bandId": band.ID, "rehearsalId": r.ID, "status": string(r.Status)})
		},
		success: "rehearsal rejected",
	})
}

// CancelRehearsal cancels a rehearsal that has not taken place. Leader or moderator.
func (s *RehearsalService) CancelRehearsal(ctx context.Context, principal Principal, rehearsalID string) (domain.Rehearsal, error) {
	return s.transition(ctx, principal, rehearsalID, transition{
		operation: "CancelRehearsal",
		from:      []domain.RehearsalStatus{domain.RehearsalPolling, domain.RehearsalScheduled},
		to:        domain.RehearsalCancelled,
		authorize: func(band domain.Band) error {
			if !band.IsLeader(principal.UserID) && !principal.CanModerate() {
				return denied("only the band leader can cancel a rehearsal")
			}
			return nil
		},
		success: "rehearsal cancelled",
	})
}
