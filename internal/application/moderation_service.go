package application

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/bengol30/bandgo/internal/domain"
	"github.com/bengol30/bandgo/internal/events"
	"github.com/bengol30/bandgo/internal/persistence"
)

var reportTargets = []string{"user", "band", "band_request", "post", "comment", "event", "message"}

// ModerationService runs privileged cross-cutting mutations.
type ModerationService struct {
	service
	auth   *AuthService
	bands  *BandService
	events *EventService
}

// NewModerationService constructs a ModerationService.
func NewModerationService(deps Deps, locks *keyedLocks, auth *AuthService, bands *BandService, eventsSvc *EventService) *ModerationService {
	return &ModerationService{
		service: newService("ModerationService", deps, locks),
		auth:    auth,
		bands:   bands,
		events:  eventsSvc,
	}
}

func refresh(u *unit, reason, id string) {
	u.afterCommit(func(bus *events.Bus) {
		bus.Publish(events.GlobalChannel, events.Event{
			Kind:    events.KindRefresh,
			Payload: map[string]string{"reason": reason, "id": id},
		})
	})
}

// CreateReport files a moderation report about some entity.
func (s *ModerationService) CreateReport(ctx context.Context, principal Principal, targetType, targetID, reason string) (report domain.Report, err error) {
	_, done := s.begin(ctx, "CreateReport", "actor_id", principal.UserID, "target_type", targetType, "target_id", targetID)
	defer func() { done(err, "report filed", "report_id", report.ID) }()

	if err = requireActive(principal); err != nil {
		return
	}
	v := &ValidationError{}
	if !slices.Contains(reportTargets, targetType) {
		v.add("targetType", "unknown target type")
	}
	if strings.TrimSpace(targetID) == "" {
		v.add("targetId", "is required")
	}
	if strings.TrimSpace(reason) == "" {
		v.add("reason", "is required")
	}
	if err = v.errOrNil(); err != nil {
		return
	}
	now := s.now()
	report = domain.Report{
		ID:         s.idGenerator(),
		ReporterID: principal.UserID,
		TargetType: targetType,
		TargetID:   targetID,
		Reason:     strings.TrimSpace(reason),
		Status:     domain.ReportPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err = s.write(ctx, func(u *unit) error {
		return u.tx.Reports().Insert(report)
	})
	return
}

// ListReports returns reports in status, or all when empty. Moderators only.
func (s *ModerationService) ListReports(ctx context.Context, principal Principal, status domain.ReportStatus) (reports []domain.Report, err error) {
	if err = requireModerator(principal); err != nil {
		return
	}
	err = s.read(ctx, func(tx persistence.Tx) error {
		reports = tx.Reports().Find(func(r domain.Report) bool { return status == "" || r.Status == status })
		return nil
	})
	return
}

// ResolveReport closes a pending report as reviewed or dismissed. Moderators only.
func (s *ModerationService) ResolveReport(ctx context.Context, principal Principal, reportID string, status domain.ReportStatus, resolution string) (report domain.Report, err error) {
	_, done := s.begin(ctx, "ResolveReport", "actor_id", principal.UserID, "report_id", reportID, "status", status)
	defer func() { done(err, "report resolved") }()

	if err = requireModerator(principal); err != nil {
		return
	}
	if status != domain.ReportReviewed && status != domain.ReportDismissed {
		err = invalidField("status", "must be reviewed or dismissed")
		return
	}
	err = s.write(ctx, func(u *unit) error {
		var err error
		if report, err = get(u.tx.Reports(), "report", reportID); err != nil {
			return err
		}
		if report.Status != domain.ReportPending {
			return invalidState("report", report.ID, report.Status, status)
		}
		report.Status = status
		report.ResolvedBy = principal.UserID
		report.Resolution = resolution
		report.UpdatedAt = s.now()
		return u.tx.Reports().Update(report)
	})
	return
}

// UpdateUserRole changes the platform role of another user. Admin only.
func (s *ModerationService) UpdateUserRole(ctx context.Context, principal Principal, userID string, role domain.Role) (user domain.User, err error) {
	_, done := s.begin(ctx, "UpdateUserRole", "actor_id", principal.UserID, "user_id", userID, "role", role)
	defer func() { done(err, "user role updated") }()

	if err = requireAdmin(principal); err != nil {
		return
	}
	if !role.Valid() {
		err = invalidField("role", "unknown role")
		return
	}
	if userID == principal.UserID {
		err = denied("admins cannot change their own role")
		return
	}
	err = s.write(ctx, func(u *unit) error {
		var err error
		if user, err = get(u.tx.Users(), "user", userID); err != nil {
			return err
		}
		if user.Role == role {
			return nil
		}
		user.Role = role
		user.UpdatedAt = s.now()
		if err := u.tx.Users().Update(user); err != nil {
			return err
		}
		refresh(u, "role_changed", user.ID)
		return u.notify(user.ID, domain.NotifyRoleChanged, "Role updated", "Your role is now "+string(role),
			map[string]string{"role": string(role)})
	})
	if err == nil {
		s.auth.forgetUser(userID)
	}
	return
}

// DeleteUser removes an account and every reference to it. Leadership passes
// on in each band the user led, and bands left empty are deleted. Admin only.
func (s *ModerationService) DeleteUser(ctx context.Context, principal Principal, userID string) (err error) {
	_, done := s.begin(ctx, "DeleteUser", "actor_id", principal.UserID, "user_id", userID)
	defer func() { done(err, "user deleted") }()

	if err = requireAdmin(principal); err != nil {
		return
	}
	if userID == principal.UserID {
		return denied("admins cannot delete themselves")
	}

	var keys []string
	if err = s.read(ctx, func(tx persistence.Tx) error {
		if _, err := get(tx.Users(), "user", userID); err != nil {
			return err
		}
		for _, band := range tx.Bands().Find(func(b domain.Band) bool { return b.IsMember(userID) }) {
			keys = append(keys, bandKey(band.ID))
		}
		for _, r := range tx.Registrations().Find(func(r domain.EventRegistration) bool { return r.UserID == userID }) {
			keys = append(keys, eventKey(r.EventID))
		}
		return nil
	}); err != nil {
		return
	}
	unlock := s.locks.lock(keys...)
	defer unlock()

	err = s.write(ctx, func(u *unit) error {
		if _, err := get(u.tx.Users(), "user", userID); err != nil {
			return err
		}
		steps := []func(*unit, string) error{
			s.leaveBands,
			purgeBandRequests,
			s.purgeRegistrations,
			purgeFeed,
			purgeChat,
			purgeAccount,
		}
		for _, step := range steps {
			if err := step(u, userID); err != nil {
				return err
			}
		}
		refresh(u, "user_deleted", userID)
		return u.tx.Users().Delete(userID)
	})
	if err == nil {
		s.auth.forgetUser(userID)
	}
	return
}

func (s *ModerationService) leaveBands(u *unit, userID string) error {
	for _, band := range u.tx.Bands().Find(func(b domain.Band) bool { return b.IsMember(userID) }) {
		if _, err := s.bands.removeMember(u, band, userID); err != nil {
			return err
		}
	}
	now := s.now()
	for _, poll := range u.tx.Polls().List() {
		changed := false
		for _, opt := range poll.Options {
			if _, voted := opt.Votes[userID]; voted {
				delete(opt.Votes, userID)
				changed = true
			}
		}
		if changed {
			poll.UpdatedAt = now
			if err := u.tx.Polls().Update(poll); err != nil {
				return err
			}
		}
	}
	for _, task := range u.tx.Tasks().Find(func(t domain.Task) bool { return t.AssigneeID == userID }) {
		task.AssigneeID = ""
		task.UpdatedAt = now
		if err := u.tx.Tasks().Update(task); err != nil {
			return err
		}
	}
	return nil
}

func purgeBandRequests(u *unit, userID string) error {
	for _, request := range u.tx.BandRequests().Find(func(r domain.BandRequest) bool { return r.CreatorID == userID }) {
		if err := deleteWhere(u.tx.Applications(), func(a domain.Application) bool { return a.BandRequestID == request.ID }); err != nil {
			return err
		}
		if err := u.tx.BandRequests().Delete(request.ID); err != nil {
			return err
		}
	}
	if err := deleteWhere(u.tx.Applications(), func(a domain.Application) bool { return a.ApplicantID == userID }); err != nil {
		return err
	}
	for _, request := range u.tx.BandRequests().Find(func(r domain.BandRequest) bool {
		return slices.Contains(r.CurrentMembers, userID) || slices.Contains(r.TargetUserIDs, userID)
	}) {
		drop := func(id string) bool { return id == userID }
		request.CurrentMembers = slices.DeleteFunc(request.CurrentMembers, drop)
		request.TargetUserIDs = slices.DeleteFunc(request.TargetUserIDs, drop)
		for i := range request.Slots {
			request.Slots[i].FilledBy = slices.DeleteFunc(request.Slots[i].FilledBy, drop)
		}
		request.UpdatedAt = u.svc.now()
		if err := u.tx.BandRequests().Update(request); err != nil {
			return err
		}
	}
	return nil
}

func (s *ModerationService) purgeRegistrations(u *unit, userID string) error {
	registrations := u.tx.Registrations().Find(func(r domain.EventRegistration) bool { return r.UserID == userID })
	autoPromote := s.events.settings.current(u.tx).AutoPromoteWaitlist
	for _, r := range registrations {
		if err := u.tx.Registrations().Delete(r.ID); err != nil {
			return err
		}
		if r.Status != domain.RegistrationRegistered || !autoPromote {
			continue
		}
		event, err := u.tx.Events().Get(r.EventID)
		if err != nil {
			continue
		}
		if err := s.events.promoteWaitlist(u, event); err != nil {
			return err
		}
	}
	return deleteWhere(u.tx.Submissions(), func(sub domain.EventSubmission) bool { return sub.SubmitterID == userID })
}

func purgeFeed(u *unit, userID string) error {
	for _, post := range u.tx.Posts().Find(func(p domain.Post) bool { return p.AuthorID == userID }) {
		if err := deletePostCascade(u.tx, post.ID); err != nil {
			return err
		}
	}
	touched := map[string]bool{}
	for _, c := range u.tx.Comments().Find(func(c domain.Comment) bool { return c.AuthorID == userID }) {
		touched[c.PostID] = true
		if err := u.tx.Comments().Delete(c.ID); err != nil {
			return err
		}
	}
	for _, l := range u.tx.Likes().Find(func(l domain.PostLike) bool { return l.UserID == userID }) {
		touched[l.PostID] = true
		if err := u.tx.Likes().Delete(l.ID); err != nil {
			return err
		}
	}
	for postID := range touched {
		post, err := u.tx.Posts().Get(postID)
		if err != nil {
			continue
		}
		recount(u.tx, &post)
		post.UpdatedAt = u.svc.now()
		if err := u.tx.Posts().Update(post); err != nil {
			return err
		}
	}
	return nil
}

func purgeChat(u *unit, userID string) error {
	for _, c := range u.tx.Conversations().Find(func(c domain.Conversation) bool {
		return slices.Contains(c.ParticipantIDs, userID)
	}) {
		if err := deleteWhere(u.tx.Messages(), func(m domain.ChatMessage) bool { return m.ConversationID == c.ID }); err != nil {
			return err
		}
		if err := u.tx.Conversations().Delete(c.ID); err != nil {
			return err
		}
	}
	return deleteWhere(u.tx.Messages(), func(m domain.ChatMessage) bool { return m.SenderID == userID })
}

func purgeAccount(u *unit, userID string) error {
	if err := deleteWhere(u.tx.Sessions(), func(s domain.Session) bool { return s.UserID == userID }); err != nil {
		return err
	}
	if err := deleteWhere(u.tx.Notifications(), func(n domain.Notification) bool { return n.UserID == userID }); err != nil {
		return err
	}
	if err := deleteWhere(u.tx.Reports(), func(r domain.Report) bool { return r.ReporterID == userID }); err != nil {
		return err
	}
	if _, err := u.tx.Credentials().Get(userID); err == nil {
		if err := u.tx.Credentials().Delete(userID); err != nil {
			return fmt.Errorf("delete credential: %w", err)
		}
	}
	return nil
}
