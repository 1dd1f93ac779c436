package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bengol30/bandgo/internal/application"
	"github.com/bengol30/bandgo/internal/domain"
	"github.com/bengol30/bandgo/internal/events"
	"github.com/bengol30/bandgo/internal/persistence"
	"github.com/bengol30/bandgo/internal/testfixtures"
)

func TestModerationService_Reports(t *testing.T) {
	t.Parallel()

	h := testfixtures.NewHarness(t)
	ctx := context.Background()
	reporter := h.SeedUser(t)
	moderator := h.SeedUser(t, testfixtures.WithUserRole(domain.RoleModerator))

	_, err := h.Platform.Moderation.CreateReport(ctx, reporter.Principal(), "planet", "x", "spam")
	var vErr *application.ValidationError
	assert.ErrorAs(t, err, &vErr)

	report, err := h.Platform.Moderation.CreateReport(ctx, reporter.Principal(), "post", "post-1", "spam")
	require.NoError(t, err)
	assert.Equal(t, domain.ReportPending, report.Status)

	_, err = h.Platform.Moderation.ListReports(ctx, reporter.Principal(), "")
	assert.ErrorIs(t, err, application.ErrPermissionDenied)
	pending, err := h.Platform.Moderation.ListReports(ctx, moderator.Principal(), domain.ReportPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	resolved, err := h.Platform.Moderation.ResolveReport(ctx, moderator.Principal(), report.ID, domain.ReportDismissed, "not spam")
	require.NoError(t, err)
	assert.Equal(t, moderator.ID, resolved.ResolvedBy)
	_, err = h.Platform.Moderation.ResolveReport(ctx, moderator.Principal(), report.ID, domain.ReportReviewed, "")
	assert.ErrorIs(t, err, application.ErrInvalidState)
}

func TestModerationService_UpdateUserRole(t *testing.T) {
	t.Parallel()

	h := testfixtures.NewHarness(t)
	ctx := context.Background()
	admin := h.SeedUser(t, testfixtures.WithUserRole(domain.RoleAdmin))
	staff := h.SeedUser(t, testfixtures.WithUserRole(domain.RoleStaff))
	user := h.SeedUser(t)

	_, err := h.Platform.Moderation.UpdateUserRole(ctx, staff.Principal(), user.ID, domain.RoleModerator)
	assert.ErrorIs(t, err, application.ErrPermissionDenied)
	_, err = h.Platform.Moderation.UpdateUserRole(ctx, admin.Principal(), admin.ID, domain.RoleUser)
	assert.ErrorIs(t, err, application.ErrPermissionDenied)
	_, err = h.Platform.Moderation.UpdateUserRole(ctx, admin.Principal(), user.ID, domain.Role("overlord"))
	var vErr *application.ValidationError
	assert.ErrorAs(t, err, &vErr)

	updated, err := h.Platform.Moderation.UpdateUserRole(ctx, admin.Principal(), user.ID, domain.RoleModerator)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleModerator, updated.Role)

	notifications := h.Notifications(t, user.ID)
	require.Len(t, notifications, 1)
	assert.Equal(t, domain.NotifyRoleChanged, notifications[0].Type)
	assert.Len(t, h.Published(events.KindRefresh), 1)
}

func TestModerationService_DeleteUser(t *testing.T) {
	t.Parallel()

	settings := domain.DefaultSettings()
	settings.AutoPromoteWaitlist = true
	h := testfixtures.NewHarness(t, testfixtures.WithSettings(settings))
	ctx := context.Background()
	admin := h.SeedUser(t, testfixtures.WithUserRole(domain.RoleAdmin))
	target := h.SeedUser(t)
	member := h.SeedUser(t)
	waiting := h.SeedUser(t)

	led := h.SeedBand(t, testfixtures.NewBandFixture(target.ID, []string{member.ID}))
	solo := h.SeedBand(t, testfixtures.NewBandFixture(target.ID, nil))
	request := h.SeedBandRequest(t, testfixtures.NewBandRequestFixture(target.ID))
	event := h.SeedEvent(t, testfixtures.NewEventFixture(admin.ID, 1))

	_, err := h.Platform.Events.RegisterForEvent(ctx, target.Principal(), event.ID)
	require.NoError(t, err)
	_, err = h.Platform.Events.RegisterForEvent(ctx, waiting.Principal(), event.ID)
	require.NoError(t, err)

	task, err := h.Platform.Content.CreateTask(ctx, member.Principal(), led.ID, application.TaskParams{Title: "Print flyers", AssigneeID: target.ID})
	require.NoError(t, err)
	poll, err := h.Platform.Rehearsals.CreateRehearsalPoll(ctx, target.Principal(), led.ID, application.CreatePollParams{
		Options: []application.PollOptionParams{
			{DateTime: h.Clock.Now().Add(24 * time.Hour), DurationMinutes: 60},
			{DateTime: h.Clock.Now().Add(48 * time.Hour), DurationMinutes: 60},
		},
	})
	require.NoError(t, err)
	_, err = h.Platform.Rehearsals.VoteOnPoll(ctx, target.Principal(), poll.ID, poll.Options[0].ID, true)
	require.NoError(t, err)

	memberPost, err := h.Platform.Feed.CreatePost(ctx, member.Principal(), application.PostParams{Content: "new riff"})
	require.NoError(t, err)
	_, err = h.Platform.Feed.LikePost(ctx, target.Principal(), memberPost.ID)
	require.NoError(t, err)
	_, err = h.Platform.Feed.CreateComment(ctx, target.Principal(), memberPost.ID, "sick")
	require.NoError(t, err)
	_, err = h.Platform.Feed.CreatePost(ctx, target.Principal(), application.PostParams{Content: "bye"})
	require.NoError(t, err)
	_, err = h.Platform.Chat.SendDirectMessage(ctx, target.Principal(), member.ID, "hey")
	require.NoError(t, err)

	assert.ErrorIs(t, h.Platform.Moderation.DeleteUser(ctx, admin.Principal(), admin.ID), application.ErrPermissionDenied)
	assert.ErrorIs(t, h.Platform.Moderation.DeleteUser(ctx, member.Principal(), target.ID), application.ErrPermissionDenied)
	require.NoError(t, h.Platform.Moderation.DeleteUser(ctx, admin.Principal(), target.ID))

	_, err = h.Platform.Auth.GetUser(ctx, target.ID)
	assert.ErrorIs(t, err, application.ErrNotFound)

	band, err := h.Platform.Bands.GetBand(ctx, led.ID)
	require.NoError(t, err)
	require.Len(t, band.Members, 1)
	assert.True(t, band.IsLeader(member.ID))
	_, err = h.Platform.Bands.GetBand(ctx, solo.ID)
	assert.ErrorIs(t, err, application.ErrNotFound)
	_, err = h.Platform.Bands.GetBandRequest(ctx, request.ID)
	assert.ErrorIs(t, err, application.ErrNotFound)

	byStatus := registrationsByStatus(t, h, event.ID)
	assert.Equal(t, []string{waiting.ID}, byStatus[domain.RegistrationRegistered])

	post, err := h.Platform.Feed.GetPost(ctx, memberPost.ID)
	require.NoError(t, err)
	assert.Zero(t, post.LikesCount)
	assert.Zero(t, post.CommentsCount)
	posts, err := h.Platform.Feed.GetPosts(ctx, "")
	require.NoError(t, err)
	assert.Len(t, posts, 1)

	conversations, err := h.Platform.Chat.ListConversations(ctx, member.Principal())
	require.NoError(t, err)
	assert.Empty(t, conversations)

	require.NoError(t, h.Store.View(ctx, func(tx persistence.Tx) error {
		got, err := tx.Tasks().Get(task.ID)
		require.NoError(t, err)
		assert.Empty(t, got.AssigneeID)
		p, err := tx.Polls().Get(poll.ID)
		require.NoError(t, err)
		assert.NotContains(t, p.Options[0].Votes, target.ID)
		assert.Empty(t, tx.Notifications().Find(func(n domain.Notification) bool { return n.UserID == target.ID }))
		return nil
	}))
}

func TestPlatformSnapshotRestore(t *testing.T) {
	t.Parallel()

	source := testfixtures.NewHarness(t)
	ctx := context.Background()
	user := source.SeedUser(t)
	source.SeedBand(t, testfixtures.NewBandFixture(user.ID, nil))

	snapshot, err := source.Platform.Snapshot(ctx)
	require.NoError(t, err)

	target := testfixtures.NewHarness(t)
	require.NoError(t, target.Platform.Restore(ctx, snapshot))

	bands, err := target.Platform.Bands.ListBands(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, bands, 1)
	assert.Len(t, target.Published(events.KindRefresh), 1)
}
