package application_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bengol30/bandgo/internal/application"
	"github.com/bengol30/bandgo/internal/domain"
	"github.com/bengol30/bandgo/internal/testfixtures"
)

func TestBandService_Applications(t *testing.T) {
	t.Parallel()

	t.Run("creator reviews and seats an applicant", func(t *testing.T) {
		t.Parallel()
		h := testfixtures.NewHarness(t)
		ctx := context.Background()
		creator := h.SeedUser(t)
		applicant := h.SeedUser(t)
		request := h.SeedBandRequest(t, testfixtures.NewBandRequestFixture(creator.ID))

		app, err := h.Platform.Bands.CreateApplication(ctx, applicant.Principal(), applicationParams(request.ID, "drums"))
		require.NoError(t, err)
		assert.Equal(t, domain.ApplicationPending, app.Status)
		assert.Len(t, h.Notifications(t, creator.ID), 1)

		_, err = h.Platform.Bands.CreateApplication(ctx, applicant.Principal(), applicationParams(request.ID, "guitar"))
		assert.ErrorIs(t, err, application.ErrAlreadyExists)

		reviewed, err := h.Platform.Bands.ReviewApplication(ctx, creator.Principal(), app.ID, domain.ApplicationApproved, "welcome")
		require.NoError(t, err)
		assert.Equal(t, domain.ApplicationApproved, reviewed.Status)

		_, err = h.Platform.Bands.ReviewApplication(ctx, creator.Principal(), app.ID, domain.ApplicationRejected, "")
		assert.ErrorIs(t, err, application.ErrInvalidState)

		updated, err := h.Platform.Bands.JoinBandRequest(ctx, creator.Principal(), request.ID, applicant.ID, "drums")
		require.NoError(t, err)
		assert.Contains(t, updated.CurrentMembers, applicant.ID)
	})

	t.Run("targeted requests only accept targets", func(t *testing.T) {
		t.Parallel()
		h := testfixtures.NewHarness(t)
		ctx := context.Background()
		creator := h.SeedUser(t)
		invited := h.SeedUser(t)
		stranger := h.SeedUser(t)
		request := h.SeedBandRequest(t, testfixtures.NewBandRequestFixture(creator.ID, testfixtures.WithBandRequestTargets(invited.ID)))

		_, err := h.Platform.Bands.CreateApplication(ctx, stranger.Principal(), applicationParams(request.ID, "drums"))
		assert.ErrorIs(t, err, application.ErrPermissionDenied)

		_, err = h.Platform.Bands.JoinBandRequest(ctx, stranger.Principal(), request.ID, stranger.ID, "drums")
		assert.ErrorIs(t, err, application.ErrPermissionDenied)

		_, err = h.Platform.Bands.JoinBandRequest(ctx, invited.Principal(), request.ID, invited.ID, "drums")
		assert.NoError(t, err)
	})

	t.Run("closed requests refuse applications", func(t *testing.T) {
		t.Parallel()
		h := testfixtures.NewHarness(t)
		ctx := context.Background()
		creator := h.SeedUser(t)
		applicant := h.SeedUser(t)
		request := h.SeedBandRequest(t, testfixtures.NewBandRequestFixture(creator.ID))

		_, err := h.Platform.Bands.CloseBandRequest(ctx, creator.Principal(), request.ID)
		require.NoError(t, err)

		_, err = h.Platform.Bands.CreateApplication(ctx, applicant.Principal(), applicationParams(request.ID, "drums"))
		assert.ErrorIs(t, err, application.ErrInvalidState)
	})

	t.Run("full slots reject joins", func(t *testing.T) {
		t.Parallel()
		h := testfixtures.NewHarness(t)
		ctx := context.Background()
		creator := h.SeedUser(t)
		first := h.SeedUser(t)
		second := h.SeedUser(t)
		request := h.SeedBandRequest(t, testfixtures.NewBandRequestFixture(creator.ID))

		_, err := h.Platform.Bands.JoinBandRequest(ctx, first.Principal(), request.ID, first.ID, "drums")
		require.NoError(t, err)
		_, err = h.Platform.Bands.JoinBandRequest(ctx, second.Principal(), request.ID, second.ID, "drums")
		assert.ErrorIs(t, err, application.ErrCapacityExceeded)
	})
}

func applicationParams(requestID, instrument string) application.CreateApplicationParams {
	return application.CreateApplicationParams{BandRequestID: requestID, InstrumentID: instrument, Message: "hi"}
}

func TestBandService_FormBand(t *testing.T) {
	t.Parallel()

	h := testfixtures.NewHarness(t)
	ctx := context.Background()
	creator := h.SeedUser(t)
	guitarist := h.SeedUser(t)
	drummer := h.SeedUser(t)

	request, err := h.Platform.Bands.CreateBandRequest(ctx, creator.Principal(), application.CreateBandRequestParams{
		Title:               "Indie four-piece",
		Type:                domain.BandRequestOpen,
		Region:              "Jaffa",
		Genres:              []string{"indie"},
		Slots:               []application.SlotParams{{InstrumentID: "guitar", Quantity: 2}, {InstrumentID: "drums", Quantity: 1}},
		CreatorInstrumentID: "guitar",
	})
	require.NoError(t, err)
	_, err = h.Platform.Bands.JoinBandRequest(ctx, guitarist.Principal(), request.ID, guitarist.ID, "guitar")
	require.NoError(t, err)
	_, err = h.Platform.Bands.JoinBandRequest(ctx, drummer.Principal(), request.ID, drummer.ID, "drums")
	require.NoError(t, err)

	_, err = h.Platform.Bands.FormBand(ctx, guitarist.Principal(), request.ID, "The Lines")
	assert.ErrorIs(t, err, application.ErrPermissionDenied)

	band, err := h.Platform.Bands.FormBand(ctx, creator.Principal(), request.ID, "The Lines")
	require.NoError(t, err)

	require.Len(t, band.Members, 3)
	assert.Equal(t, creator.ID, band.Members[0].UserID)
	assert.True(t, band.Members[0].IsLeader)
	assert.Equal(t, "guitar", band.Members[0].InstrumentID)
	assert.Equal(t, "drums", band.Members[2].InstrumentID)
	assert.Equal(t, "Jaffa", band.City)
	assert.Equal(t, request.ID, band.OriginalBandRequestID)

	formed, err := h.Platform.Bands.GetBandRequest(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusFormed, formed.Status)
	assert.Equal(t, band.ID, formed.FormedBandID)

	_, err = h.Platform.Bands.FormBand(ctx, creator.Principal(), request.ID, "Again")
	assert.ErrorIs(t, err, application.ErrInvalidState)

	assert.Len(t, h.Notifications(t, drummer.ID), 1)
	for _, n := range h.Notifications(t, creator.ID) {
		assert.NotEqual(t, domain.NotifyBandFormed, n.Type)
	}
}

func TestBandService_Leave(t *testing.T) {
	t.Parallel()

	t.Run("leader leaving promotes the earliest member", func(t *testing.T) {
		t.Parallel()
		h := testfixtures.NewHarness(t)
		ctx := context.Background()
		leader := h.SeedUser(t)
		second := h.SeedUser(t)
		third := h.SeedUser(t)
		band := h.SeedBand(t, testfixtures.NewBandFixture(leader.ID, []string{second.ID, third.ID}))

		result, err := h.Platform.Bands.LeaveBand(ctx, leader.Principal(), band.ID, leader.ID)
		require.NoError(t, err)
		assert.False(t, result.Deleted)
		assert.Equal(t, second.ID, result.NewLeaderID)

		updated, err := h.Platform.Bands.GetBand(ctx, band.ID)
		require.NoError(t, err)
		leaders := 0
		for _, m := range updated.Members {
			if m.IsLeader {
				leaders++
			}
		}
		assert.Equal(t, 1, leaders)
		assert.True(t, updated.IsLeader(second.ID))
	})

	t.Run("last member leaving deletes the band and its content", func(t *testing.T) {
		t.Parallel()
		h := testfixtures.NewHarness(t)
		ctx := context.Background()
		leader := h.SeedUser(t)
		band := h.SeedBand(t, testfixtures.NewBandFixture(leader.ID, nil))
		_, err := h.Platform.Content.CreateSong(ctx, leader.Principal(), band.ID, application.SongParams{Title: "Opener"})
		require.NoError(t, err)

		result, err := h.Platform.Bands.LeaveBand(ctx, leader.Principal(), band.ID, leader.ID)
		require.NoError(t, err)
		assert.True(t, result.Deleted)

		_, err = h.Platform.Bands.GetBand(ctx, band.ID)
		assert.ErrorIs(t, err, application.ErrNotFound)
		_, err = h.Platform.Content.ListSongs(ctx, leader.Principal(), band.ID)
		assert.ErrorIs(t, err, application.ErrNotFound)
	})

	t.Run("members cannot remove others", func(t *testing.T) {
		t.Parallel()
		h := testfixtures.NewHarness(t)
		leader := h.SeedUser(t)
		member := h.SeedUser(t)
		band := h.SeedBand(t, testfixtures.NewBandFixture(leader.ID, []string{member.ID}))

		_, err := h.Platform.Bands.LeaveBand(context.Background(), member.Principal(), band.ID, leader.ID)
		assert.ErrorIs(t, err, application.ErrPermissionDenied)
	})

	t.Run("concurrent leaves keep exactly one leader", func(t *testing.T) {
		t.Parallel()
		h := testfixtures.NewHarness(t)
		ctx := context.Background()
		leader := h.SeedUser(t)
		var ids []string
		var principals []application.Principal
		for i := 0; i < 6; i++ {
			u := h.SeedUser(t)
			ids = append(ids, u.ID)
			principals = append(principals, u.Principal())
		}
		band := h.SeedBand(t, testfixtures.NewBandFixture(leader.ID, ids))

		var wg sync.WaitGroup
		leaving := append([]application.Principal{leader.Principal()}, principals[:4]...)
		for _, p := range leaving {
			wg.Add(1)
			go func(p application.Principal) {
				defer wg.Done()
				_, err := h.Platform.Bands.LeaveBand(ctx, p, band.ID, p.UserID)
				assert.NoError(t, err)
			}(p)
		}
		wg.Wait()

		updated, err := h.Platform.Bands.GetBand(ctx, band.ID)
		require.NoError(t, err)
		require.Len(t, updated.Members, 2)
		leaders := 0
		for _, m := range updated.Members {
			if m.IsLeader {
				leaders++
			}
		}
		assert.Equal(t, 1, leaders)
	})
}

func TestBandService_DeleteBand(t *testing.T) {
	t.Parallel()

	h := testfixtures.NewHarness(t)
	ctx := context.Background()
	leader := h.SeedUser(t)
	member := h.SeedUser(t)
	moderator := h.SeedUser(t, testfixtures.WithUserRole(domain.RoleModerator))
	admin := h.SeedUser(t, testfixtures.WithUserRole(domain.RoleAdmin))
	band := h.SeedBand(t, testfixtures.NewBandFixture(leader.ID, []string{member.ID}))
	post, err := h.Platform.Feed.CreatePost(ctx, member.Principal(), application.PostParams{Content: "gig tonight", BandID: band.ID})
	require.NoError(t, err)

	assert.ErrorIs(t, h.Platform.Bands.DeleteBand(ctx, member.Principal(), band.ID), application.ErrPermissionDenied)
	assert.ErrorIs(t, h.Platform.Bands.ForceDeleteBand(ctx, moderator.Principal(), band.ID), application.ErrPermissionDenied)
	require.NoError(t, h.Platform.Bands.ForceDeleteBand(ctx, admin.Principal(), band.ID))

	kept, err := h.Platform.Feed.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Empty(t, kept.BandID)

	other := h.SeedBand(t, testfixtures.NewBandFixture(leader.ID, []string{member.ID}))
	require.NoError(t, h.Platform.Bands.DeleteBand(ctx, leader.Principal(), other.ID))
	bands, err := h.Platform.Bands.ListBands(ctx, member.ID)
	require.NoError(t, err)
	assert.Empty(t, bands)
}

func TestBandService_Membership(t *testing.T) {
	t.Parallel()

	h := testfixtures.NewHarness(t)
	ctx := context.Background()
	leader := h.SeedUser(t)
	member := h.SeedUser(t)
	newcomer := h.SeedUser(t)
	band := h.SeedBand(t, testfixtures.NewBandFixture(leader.ID, []string{member.ID}))

	_, err := h.Platform.Bands.AddBandMember(ctx, member.Principal(), band.ID, newcomer.ID, "keys")
	assert.ErrorIs(t, err, application.ErrPermissionDenied)

	updated, err := h.Platform.Bands.AddBandMember(ctx, leader.Principal(), band.ID, newcomer.ID, "keys")
	require.NoError(t, err)
	assert.True(t, updated.IsMember(newcomer.ID))

	updated, err = h.Platform.Bands.TransferLeadership(ctx, leader.Principal(), band.ID, newcomer.ID)
	require.NoError(t, err)
	assert.True(t, updated.IsLeader(newcomer.ID))
	assert.False(t, updated.IsLeader(leader.ID))

	_, err = h.Platform.Bands.RemoveBandMember(ctx, newcomer.Principal(), band.ID, newcomer.ID)
	var vErr *application.ValidationError
	assert.ErrorAs(t, err, &vErr)

	_, err = h.Platform.Bands.RemoveBandMember(ctx, newcomer.Principal(), band.ID, member.ID)
	require.NoError(t, err)
	final, err := h.Platform.Bands.GetBand(ctx, band.ID)
	require.NoError(t, err)
	assert.Len(t, final.Members, 2)
}

func TestBandService_PerformanceEligibility(t *testing.T) {
	t.Parallel()

	h := testfixtures.NewHarness(t)
	ctx := context.Background()
	leader := h.SeedUser(t)
	member := h.SeedUser(t)
	staff := h.SeedUser(t, testfixtures.WithUserRole(domain.RoleStaff))
	band := h.SeedBand(t, testfixtures.NewBandFixture(leader.ID, []string{member.ID}, testfixtures.WithBandProgress(1, 2)))

	progress, err := h.Platform.Bands.GetBandProgress(ctx, band.ID)
	require.NoError(t, err)
	assert.Equal(t, application.BandProgress{IsFormed: true, ApprovedRehearsals: 1, RehearsalGoal: 2}, progress)

	_, err = h.Platform.Bands.RequestPerformance(ctx, leader.Principal(), band.ID, "ready")
	assert.ErrorIs(t, err, application.ErrNotEligible)

	rehearsal, err := h.Platform.Rehearsals.CreateRehearsal(ctx, leader.Principal(), band.ID, application.CreateRehearsalParams{
		DateTime: h.Clock.Now().Add(-2 * time.Hour), DurationMinutes: 90,
	})
	require.NoError(t, err)
	_, err = h.Platform.Rehearsals.SubmitRehearsalCompletion(ctx, member.Principal(), rehearsal.ID)
	require.NoError(t, err)
	_, err = h.Platform.Rehearsals.ApproveRehearsal(ctx, staff.Principal(), rehearsal.ID, "nice")
	require.NoError(t, err)

	progress, err = h.Platform.Bands.GetBandProgress(ctx, band.ID)
	require.NoError(t, err)
	assert.True(t, progress.CanRequestPerformance)

	_, err = h.Platform.Bands.RequestPerformance(ctx, member.Principal(), band.ID, "ready")
	assert.ErrorIs(t, err, application.ErrPermissionDenied)

	request, err := h.Platform.Bands.RequestPerformance(ctx, leader.Principal(), band.ID, "ready")
	require.NoError(t, err)
	_, err = h.Platform.Bands.RequestPerformance(ctx, leader.Principal(), band.ID, "again")
	assert.ErrorIs(t, err, application.ErrAlreadyExists)

	live, err := h.Platform.Bands.RequestLiveSession(ctx, leader.Principal(), band.ID, "record us")
	require.NoError(t, err)

	updated, err := h.Platform.Bands.GetBand(ctx, band.ID)
	require.NoError(t, err)
	assert.Equal(t, request.ID, updated.PerformanceRequestID)
	assert.Equal(t, live.ID, updated.LiveSessionRequestID)

	pending, err := h.Platform.Bands.ListPerformanceRequests(ctx, staff.Principal(), domain.PerformancePending)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	reviewed, err := h.Platform.Bands.ReviewPerformanceRequest(ctx, staff.Principal(), request.ID, true, "see you friday")
	require.NoError(t, err)
	assert.Equal(t, domain.PerformanceApproved, reviewed.Status)
	_, err = h.Platform.Bands.ReviewPerformanceRequest(ctx, staff.Principal(), request.ID, false, "")
	assert.ErrorIs(t, err, application.ErrInvalidState)
}

func TestBandService_UpdateBand(t *testing.T) {
	t.Parallel()

	ptr := func(s string) *string { return &s }

	t.Run("leader edits fields and replaces members", func(t *testing.T) {
		t.Parallel()
		h := testfixtures.NewHarness(t)
		ctx := context.Background()
		leader := h.SeedUser(t)
		member := h.SeedUser(t)
		newcomer := h.SeedUser(t)
		band := h.SeedBand(t, testfixtures.NewBandFixture(leader.ID, []string{member.ID}))
		original, _ := band.Member(leader.ID)

		members := []domain.BandMember{
			{UserID: leader.ID, InstrumentID: "vocals", IsLeader: true},
			{UserID: newcomer.ID, InstrumentID: "bass"},
		}
		updated, err := h.Platform.Bands.UpdateBand(ctx, leader.Principal(), band.ID, application.BandPatch{
			Name:    ptr("  The Sundays  "),
			City:    ptr("Haifa"),
			Members: &members,
		})
		require.NoError(t, err)
		assert.Equal(t, "The Sundays", updated.Name)
		assert.Equal(t, "Haifa", updated.City)
		assert.True(t, updated.IsMember(newcomer.ID))
		assert.False(t, updated.IsMember(member.ID))
		kept, _ := updated.Member(leader.ID)
		assert.True(t, kept.JoinedAt.Equal(original.JoinedAt))
		added, _ := updated.Member(newcomer.ID)
		assert.True(t, added.JoinedAt.Equal(h.Clock.Now()))
	})

	t.Run("member lists need exactly one leader", func(t *testing.T) {
		t.Parallel()
		h := testfixtures.NewHarness(t)
		leader := h.SeedUser(t)
		band := h.SeedBand(t, testfixtures.NewBandFixture(leader.ID, nil))

		members := []domain.BandMember{{UserID: leader.ID, InstrumentID: "vocals"}}
		_, err := h.Platform.Bands.UpdateBand(context.Background(), leader.Principal(), band.ID, application.BandPatch{Members: &members})
		var vErr *application.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.FieldErrors, "members")
	})

	t.Run("members and plain users are refused", func(t *testing.T) {
		t.Parallel()
		h := testfixtures.NewHarness(t)
		leader := h.SeedUser(t)
		member := h.SeedUser(t)
		band := h.SeedBand(t, testfixtures.NewBandFixture(leader.ID, []string{member.ID}))

		_, err := h.Platform.Bands.UpdateBand(context.Background(), member.Principal(), band.ID, application.BandPatch{Name: ptr("Mine")})
		assert.ErrorIs(t, err, application.ErrPermissionDenied)

		goal := 1
		_, err = h.Platform.Bands.UpdateBand(context.Background(), leader.Principal(), band.ID, application.BandPatch{RehearsalGoal: &goal})
		assert.ErrorIs(t, err, application.ErrPermissionDenied)
	})
}
