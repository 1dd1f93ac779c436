package application

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/bengol30/bandgo/internal/domain"
	"github.com/bengol30/bandgo/internal/persistence"
)

// BandPatch updates the provided band fields. Members replaces the whole member list.
type BandPatch struct {
	Name          *string
	Description   *string
	City          *string
	Genres        *[]string
	Members       *[]domain.BandMember
	RehearsalGoal *int
}

// LeaveResult reports whether leaving emptied and removed the band.
type LeaveResult struct {
	Deleted     bool
	NewLeaderID string
}

// BandProgress is the derived rehearsal progress of a band.
type BandProgress struct {
	IsFormed              bool
	ApprovedRehearsals    int
	RehearsalGoal         int
	CanRequestPerformance bool
}

// BandService owns band requests, applications, formation and membership.
type BandService struct {
	service
	settings *SettingsService
}

// NewBandService constructs a BandService.
func NewBandService(deps Deps, settings *SettingsService, locks *keyedLocks) *BandService {
	return &BandService{service: newService("BandService", deps, locks), settings: settings}
}

func (s *BandService) canManage(principal Principal, band domain.Band) bool {
	return band.IsLeader(principal.UserID) || principal.CanModerate()
}

// GetBand returns one band.
func (s *BandService) GetBand(ctx context.Context, bandID string) (band domain.Band, err error) {
	err = s.read(ctx, func(tx persistence.Tx) error {
		var err error
		band, err = get(tx.Bands(), "band", bandID)
		return err
	})
	return
}

// ListBands returns every band, or only those userID belongs to when userID is set.
func (s *BandService) ListBands(ctx context.Context, userID string) (bands []domain.Band, err error) {
	err = s.read(ctx, func(tx persistence.Tx) error {
		bands = tx.Bands().Find(func(b domain.Band) bool {
			return userID == "" || b.IsMember(userID)
		})
		return nil
	})
	return
}

func validateMembers(members []domain.BandMember) error {
	v := &ValidationError{}
	if len(members) == 0 {
		v.add("members", "a band needs at least one member")
		return v
	}
	seen := make(map[string]bool, len(members))
	leaders := 0
	for _, m := range members {
		if strings.TrimSpace(m.UserID) == "" {
			v.add("members", "every member needs a userId")
		}
		if seen[m.UserID] {
			v.add("members", fmt.Sprintf("duplicate member %s", m.UserID))
		}
		seen[m.UserID] = true
		if m.IsLeader {
			leaders++
		}
	}
	if leaders != 1 {
		v.add("members", "exactly one member must be leader")
	}
	return v.errOrNil()
}

// UpdateBand applies patch. Leader or moderator; changing the rehearsal goal is reserved to staff.
func (s *BandService) UpdateBand(ctx context.Context, principal Principal, bandID string, patch BandPatch) (band domain.Band, err error) {
	_, done := s.begin(ctx, "UpdateBand", "actor_id", principal.UserID, "band_id", bandID)
	defer func() { done(err, "band updated") }()

	if err = requireActive(principal); err != nil {
		return
	}
	v := &ValidationError{}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		v.add("name", "cannot be empty")
	}
	if patch.RehearsalGoal != nil && *patch.RehearsalGoal < 0 {
		v.add("rehearsalGoal", "cannot be negative")
	}
	if patch.Members != nil {
		if mErr, ok := validateMembers(*patch.Members).(*ValidationError); ok {
			v.merge(mErr)
		}
	}
	if err = v.errOrNil(); err != nil {
		return
	}
	if patch.RehearsalGoal != nil && !principal.IsStaff() {
		err = denied("only staff can override the rehearsal goal")
		return
	}

	unlock := s.locks.lock(bandKey(bandID))
	defer unlock()

	err = s.write(ctx, func(u *unit) error {
		var err error
		if band, err = get(u.tx.Bands(), "band", bandID); err != nil {
			return err
		}
		if !s.canManage(principal, band) {
			return denied("only the band leader can edit the band")
		}
		now := s.now()
		if patch.Name != nil {
			band.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Description != nil {
			band.Description = *patch.Description
		}
		if patch.City != nil {
			band.City = *patch.City
		}
		if patch.Genres != nil {
			band.Genres = slices.Clone(*patch.Genres)
		}
		if patch.RehearsalGoal != nil {
			band.RehearsalGoal = *patch.RehearsalGoal
		}
		if patch.Members != nil {
			members := slices.Clone(*patch.Members)
			for i, m := range members {
				if _, err := get(u.tx.Users(), "user", m.UserID); err != nil {
					return err
				}
				if prev, ok := band.Member(m.UserID); ok && m.JoinedAt.IsZero() {
					members[i].JoinedAt = prev.JoinedAt
				} else if m.JoinedAt.IsZero() {
					members[i].JoinedAt = now
				}
			}
			band.Members = members
		}
		band.UpdatedAt = now
		return u.tx.Bands().Update(band)
	})
	return
}

// removeMember drops userID and keeps the leader invariant: the first remaining
// member is promoted when the leader leaves, and an emptied band is deleted.
func (s *BandService) removeMember(u *unit, band domain.Band, userID string) (LeaveResult, error) {
	member, ok := band.Member(userID)
	if !ok {
		return LeaveResult{}, fmt.Errorf("band member %q: %w", userID, ErrNotFound)
	}
	band.Members = slices.DeleteFunc(band.Members, func(m domain.BandMember) bool {
		return m.UserID == userID
	})
	if len(band.Members) == 0 {
		return LeaveResult{Deleted: true}, deleteBandCascade(u.tx, band.ID)
	}

	var result LeaveResult
	if member.IsLeader {
		band.Members[0].IsLeader = true
		result.NewLeaderID = band.Members[0].UserID
	}
	band.UpdatedAt = s.now()
	if err := u.tx.Bands().Update(band); err != nil {
		return result, err
	}
	data := map[string]string{"bandId": band.ID, "userId": userID}
	if err := u.notifyAll(memberIDs(band), "", domain.NotifyBandMemberLeft,
		"Member left", fmt.Sprintf("A member left %q", band.Name), data); err != nil {
		return result, err
	}
	if result.NewLeaderID != "" {
		return result, u.notify(result.NewLeaderID, domain.NotifyBandLeadership,
			"You lead the band now", fmt.Sprintf("You are the new leader of %q", band.Name),
			map[string]string{"bandId": band.ID})
	}
	return result, nil
}

// LeaveBand removes userID from the band. Members leave themselves; moderators may remove anyone.
func (s *BandService) LeaveBand(ctx context.Context, principal Principal, bandID, userID string) (result LeaveResult, err error) {
	_, done := s.begin(ctx, "LeaveBand", "actor_id", principal.UserID, "band_id", bandID, "user_id", userID)
	defer func() { done(err, "band left", "deleted", result.Deleted, "new_leader_id", result.NewLeaderID) }()

	if err = requireActive(principal); err != nil {
		return
	}
	if principal.UserID != userID && !principal.CanModerate() {
		err = denied("members can only leave on their own behalf")
		return
	}

	unlock := s.locks.lock(bandKey(bandID))
	defer unlock()

	err = s.write(ctx, func(u *unit) error {
		band, err := get(u.tx.Bands(), "band", bandID)
		if err != nil {
			return err
		}
		result, err = s.removeMember(u, band, userID)
		return err
	})
	return
}

// DeleteBand removes the band and its content. Leader only.
func (s *BandService) DeleteBand(ctx context.Context, principal Principal, bandID string) (err error) {
	_, done := s.begin(ctx, "DeleteBand", "actor_id", principal.UserID, "band_id", bandID)
	defer func() { done(err, "band deleted") }()

	if err = requireActive(principal); err != nil {
		return
	}
	return s.deleteBand(ctx, principal, bandID, func(band domain.Band) error {
		if !band.IsLeader(principal.UserID) {
			return denied("only the band leader can delete the band")
		}
		return nil
	})
}

// ForceDeleteBand removes any band regardless of leadership. Admin only.
func (s *BandService) ForceDeleteBand(ctx context.Context, principal Principal, bandID string) (err error) {
	_, done := s.begin(ctx, "ForceDeleteBand", "actor_id", principal.UserID, "band_id", bandID)
	defer func() { done(err, "band force deleted") }()

	if err = requireAdmin(principal); err != nil {
		return
	}
	return s.deleteBand(ctx, principal, bandID, nil)
}

func (s *BandService) deleteBand(ctx context.Context, principal Principal, bandID string, check func(domain.Band) error) error {
	unlock := s.locks.lock(bandKey(bandID))
	defer unlock()

	return s.write(ctx, func(u *unit) error {
		band, err := get(u.tx.Bands(), "band", bandID)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(band); err != nil {
				return err
			}
		}
		if err := deleteBandCascade(u.tx, band.ID); err != nil {
			return err
		}
		return u.notifyAll(memberIDs(band), principal.UserID, domain.NotifyBandDeleted,
			"Band deleted", fmt.Sprintf("%q was deleted", band.Name),
			map[string]string{"bandId": band.ID})
	})
}

// deleteBandCascade removes a band with every band-scoped record.
// Posts outlive the band and only lose the reference.
func deleteBandCascade(tx persistence.Tx, bandID string) error {
	if err := deleteWhere(tx.Songs(), func(r domain.Song) bool { return r.BandID == bandID }); err != nil {
		return err
	}
	if err := deleteWhere(tx.Tasks(), func(r domain.Task) bool { return r.BandID == bandID }); err != nil {
		return err
	}
	if err := deleteWhere(tx.Polls(), func(r domain.RehearsalPoll) bool { return r.BandID == bandID }); err != nil {
		return err
	}
	if err := deleteWhere(tx.Rehearsals(), func(r domain.Rehearsal) bool { return r.BandID == bandID }); err != nil {
		return err
	}
	if err := deleteWhere(tx.Messages(), func(r domain.ChatMessage) bool { return r.BandID == bandID }); err != nil {
		return err
	}
	if err := deleteWhere(tx.PerformanceRequests(), func(r domain.PerformanceRequest) bool { return r.BandID == bandID }); err != nil {
		return err
	}
	for _, post := range tx.Posts().Find(func(p domain.Post) bool { return p.BandID == bandID }) {
		post.BandID = ""
		if err := tx.Posts().Update(post); err != nil {
			return err
		}
	}
	return tx.Bands().Delete(bandID)
}

func deleteWhere[T persistence.Entity[T]](table persistence.Table[T], match func(T) bool) error {
	for _, record := range table.Find(match) {
		if err := table.Delete(record.EntityID()); err != nil {
			return err
		}
	}
	return nil
}

// AddBandMember seats userID in the band. Leader or moderator.
func (s *BandService) AddBandMember(ctx context.Context, principal Principal, bandID, userID, instrumentID string) (band domain.Band, err error) {
	_, done := s.begin(ctx, "AddBandMember", "actor_id", principal.UserID, "band_id", bandID, "user_id", userID)
	defer func() { done(err, "band member added") }()

	if err = requireActive(principal); err != nil {
		return
	}

	unlock := s.locks.lock(bandKey(bandID))
	defer unlock()

	err = s.write(ctx, func(u *unit) error {
		var err error
		if band, err = get(u.tx.Bands(), "band", bandID); err != nil {
			return err
		}
		if !s.canManage(principal, band) {
			return denied("only the band leader can add members")
		}
		if _, err := get(u.tx.Users(), "user", userID); err != nil {
			return err
		}
		if band.IsMember(userID) {
			return fmt.Errorf("user %s already in band %s: %w", userID, band.ID, ErrAlreadyExists)
		}
		now := s.now()
		band.Members = append(band.Members, domain.BandMember{UserID: userID, InstrumentID: instrumentID, JoinedAt: now})
		band.UpdatedAt = now
		if err := u.tx.Bands().Update(band); err != nil {
			return err
		}
		return u.notifyAll(memberIDs(band), principal.UserID, domain.NotifyBandMemberJoined,
			"New member", fmt.Sprintf("A musician joined %q", band.Name),
			map[string]string{"bandId": band.ID, "userId": userID})
	})
	return
}

// RemoveBandMember removes another member. Leader or moderator; leaving yourself goes through LeaveBand.
func (s *BandService) RemoveBandMember(ctx context.Context, principal Principal, bandID, userID string) (result LeaveResult, err error) {
	_, done := s.begin(ctx, "RemoveBandMember", "actor_id", principal.UserID, "band_id", bandID, "user_id", userID)
	defer func() { done(err, "band member removed", "deleted", result.Deleted) }()

	if err = requireActive(principal); err != nil {
		return
	}
	if principal.UserID == userID {
		err = invalidField("userId", "use LeaveBand to leave a band")
		return
	}

	unlock := s.locks.lock(bandKey(bandID))
	defer unlock()

	err = s.write(ctx, func(u *unit) error {
		band, err := get(u.tx.Bands(), "band", bandID)
		if err != nil {
			return err
		}
		if !s.canManage(principal, band) {
			return denied("only the band leader can remove members")
		}
		result, err = s.removeMember(u, band, userID)
		return err
	})
	return
}

// TransferLeadership hands the leader flag to another member.
func (s *BandService) TransferLeadership(ctx context.Context, principal Principal, bandID, newLeaderID string) (band domain.Band, err error) {
	_, done := s.begin(ctx, "TransferLeadership", "actor_id", principal.UserID, "band_id", bandID, "new_leader_id", newLeaderID)
	defer func() { done(err, "leadership transferred") }()

	if err = requireActive(principal); err != nil {
		return
	}

	unlock := s.locks.lock(bandKey(bandID))
	defer unlock()

	err = s.write(ctx, func(u *unit) error {
		var err error
		if band, err = get(u.tx.Bands(), "band", bandID); err != nil {
			return err
		}
		if !s.canManage(principal, band) {
			return denied("only the band leader can transfer leadership")
		}
		if !band.IsMember(newLeaderID) {
			return fmt.Errorf("band member %q: %w", newLeaderID, ErrNotFound)
		}
		for i := range band.Members {
			band.Members[i].IsLeader = band.Members[i].UserID == newLeaderID
		}
		band.UpdatedAt = s.now()
		if err := u.tx.Bands().Update(band); err != nil {
			return err
		}
		return u.notify(newLeaderID, domain.NotifyBandLeadership,
			"You lead the band now", fmt.Sprintf("You are the new leader of %q", band.Name),
			map[string]string{"bandId": band.ID})
	})
	return
}

func (s *BandService) goal(tx persistence.Tx, band domain.Band) int {
	return rehearsalGoal(band, s.settings.current(tx))
}

// rehearsalGoal returns the band override, falling back to the platform default.
func rehearsalGoal(band domain.Band, settings domain.SystemSettings) int {
	if band.RehearsalGoal > 0 {
		return band.RehearsalGoal
	}
	return settings.RehearsalGoal
}

// GetBandProgress derives the band's progress toward performance eligibility.
func (s *BandService) GetBandProgress(ctx context.Context, bandID string) (progress BandProgress, err error) {
	err = s.read(ctx, func(tx persistence.Tx) error {
		band, err := get(tx.Bands(), "band", bandID)
		if err != nil {
			return err
		}
		progress = BandProgress{
			IsFormed:           true,
			ApprovedRehearsals: band.ApprovedRehearsalsCount,
			RehearsalGoal:      s.goal(tx, band),
		}
		progress.CanRequestPerformance = progress.ApprovedRehearsals >= progress.RehearsalGoal
		return nil
	})
	return
}

// RequestPerformance asks staff for a performance slot once the band is eligible.
func (s *BandService) RequestPerformance(ctx context.Context, principal Principal, bandID, message string) (domain.PerformanceRequest, error) {
	return s.requestPerformance(ctx, principal, bandID, domain.PerformanceStage, message)
}

// RequestLiveSession asks staff for a recorded live session once the band is eligible.
func (s *BandService) RequestLiveSession(ctx context.Context, principal Principal, bandID, message string) (domain.PerformanceRequest, error) {
	return s.requestPerformance(ctx, principal, bandID, domain.PerformanceLiveSession, message)
}

func (s *BandService) requestPerformance(ctx context.Context, principal Principal, bandID string, kind domain.PerformanceKind, message string) (request domain.PerformanceRequest, err error) {
	_, done := s.begin(ctx, "RequestPerformance", "actor_id", principal.UserID, "band_id", bandID, "kind", kind)
	defer func() { done(err, "performance requested", "performance_request_id", request.ID) }()

	if err = requireActive(principal); err != nil {
		return
	}

	unlock := s.locks.lock(bandKey(bandID))
	defer unlock()

	err = s.write(ctx, func(u *unit) error {
		band, err := get(u.tx.Bands(), "band", bandID)
		if err != nil {
			return err
		}
		if !band.IsLeader(principal.UserID) {
			return denied("only the band leader can request a performance")
		}
		goal := s.goal(u.tx, band)
		if band.ApprovedRehearsalsCount < goal {
			return fmt.Errorf("band %s has %d of %d approved rehearsals: %w", band.ID, band.ApprovedRehearsalsCount, goal, ErrNotEligible)
		}
		open := u.tx.PerformanceRequests().Find(func(r domain.PerformanceRequest) bool {
			return r.BandID == band.ID && r.Kind == kind && r.Status != domain.PerformanceRejected
		})
		if len(open) > 0 {
			return fmt.Errorf("%s request %s already exists: %w", kind, open[0].ID, ErrAlreadyExists)
		}

		now := s.now()
		request = domain.PerformanceRequest{
			ID:          s.idGenerator(),
			BandID:      band.ID,
			Kind:        kind,
			Status:      domain.PerformancePending,
			RequestedBy: principal.UserID,
			Message:     message,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := u.tx.PerformanceRequests().Insert(request); err != nil {
			return err
		}
		if kind == domain.PerformanceLiveSession {
			band.LiveSessionRequestID = request.ID
		} else {
			band.PerformanceRequestID = request.ID
		}
		band.UpdatedAt = now
		return u.tx.Bands().Update(band)
	})
	return
}

// ListPerformanceRequests returns requests in the given status, or all when empty. Staff only.
func (s *BandService) ListPerformanceRequests(ctx context.Context, principal Principal, status domain.PerformanceRequestStatus) (requests []domain.PerformanceRequest, err error) {
	if err = requireStaff(principal); err != nil {
		return
	}
	err = s.read(ctx, func(tx persistence.Tx) error {
		requests = tx.PerformanceRequests().Find(func(r domain.PerformanceRequest) bool {
			return status == "" || r.Status == status
		})
		return nil
	})
	return
}

// ReviewPerformanceRequest approves or rejects a pending request. Staff only.
func (s *BandService) ReviewPerformanceRequest(ctx context.Context, principal Principal, requestID string, approve bool, note string) (request domain.PerformanceRequest, err error) {
	_, done := s.begin(ctx, "ReviewPerformanceRequest", "actor_id", principal.UserID, "performance_request_id", requestID, "approve", approve)
	defer func() { done(err, "performance request reviewed") }()

	if err = requireStaff(principal); err != nil {
		return
	}
	target := domain.PerformanceRejected
	if approve {
		target = domain.PerformanceApproved
	}

	err = s.write(ctx, func(u *unit) error {
		var err error
		if request, err = get(u.tx.PerformanceRequests(), "performance request", requestID); err != nil {
			return err
		}
		if request.Status != domain.PerformancePending {
			return invalidState("performance request", request.ID, request.Status, target)
		}
		request.Status = target
		request.ReviewNote = note
		request.UpdatedAt = s.now()
		if err := u.tx.PerformanceRequests().Update(request); err != nil {
			return err
		}
		band, err := get(u.tx.Bands(), "band", request.BandID)
		if err != nil {
			return err
		}
		return u.notifyAll(memberIDs(band), "", domain.NotifyPerformanceReviewed,
			"Performance request "+string(target), note,
			map[string]string{"bandId": band.ID, "performanceRequestId": request.ID, "status": string(target)})
	})
	return
}
