package testfixtures

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bengol30/bandgo/internal/application"
	"github.com/bengol30/bandgo/internal/domain"
	"github.com/bengol30/bandgo/internal/events"
)

func TestHarnessUsesDeterministicCollaborators(t *testing.T) {
	h := NewHarness(t)

	user, err := h.Platform.Auth.SignUp(context.Background(), application.SignUpParams{
		Email:       "Drummer@Example.com",
		Password:    "correct horse",
		DisplayName: "Drummer",
	})
	require.NoError(t, err)

	assert.Equal(t, "id-1", user.ID)
	assert.Equal(t, "drummer@example.com", user.Email)
	assert.True(t, user.CreatedAt.Equal(h.Clock.Now()))
}

func TestHarnessSeedsAndRecordsEvents(t *testing.T) {
	h := NewHarness(t)

	leader := h.SeedUser(t)
	member := h.SeedUser(t)
	band := h.SeedBand(t, NewBandFixture(leader.ID, []string{member.ID}))

	_, err := h.Platform.Chat.SendBandMessage(context.Background(), member.Principal(), band.ID, "hello")
	require.NoError(t, err)

	published := h.Published(events.KindBandMessage)
	require.Len(t, published, 1)
	assert.Equal(t, events.GlobalChannel, published[0].Channel)
}

func TestHarnessWithSettings(t *testing.T) {
	settings := domain.DefaultSettings()
	settings.MaxPostLength = 5
	h := NewHarness(t, WithSettings(settings))

	got, err := h.Platform.Settings.GetSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, got.MaxPostLength)
}

func TestSQLiteHarnessRoundTrip(t *testing.T) {
	harness := NewSQLiteHarness(t)
	h := NewHarness(t)
	h.SeedUser(t)

	snapshot, err := h.Platform.Snapshot(context.Background())
	require.NoError(t, err)
	require.NoError(t, harness.Snapshots.SaveSnapshot(context.Background(), snapshot))

	loaded, err := harness.Snapshots.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, loaded.Users, 1)
}
