package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bengol30/bandgo/internal/application"
	"github.com/bengol30/bandgo/internal/domain"
	"github.com/bengol30/bandgo/internal/metrics"
	"github.com/bengol30/bandgo/internal/persistence"
	"github.com/bengol30/bandgo/internal/testfixtures"
)

func signedIn(t *testing.T, h *testfixtures.Harness) (domain.User, string) {
	t.Helper()
	ctx := context.Background()
	user, err := h.Platform.Auth.SignUp(ctx, application.SignUpParams{Email: "noa@example.com", Password: "correct horse", DisplayName: "Noa"})
	require.NoError(t, err)
	result, err := h.Platform.Auth.SignIn(ctx, "noa@example.com", "correct horse")
	require.NoError(t, err)
	return user, result.Session.Token
}

func TestRouter(t *testing.T) {
	t.Parallel()

	t.Run("healthz reports failing checks", func(t *testing.T) {
		t.Parallel()

		healthy := NewRouter(RouterConfig{Health: []HealthCheck{{Name: "store"}}})
		rec := httptest.NewRecorder()
		healthy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

		failing := NewRouter(RouterConfig{Health: []HealthCheck{{Name: "snapshot", Check: func(context.Context) error {
			return errors.New("unreachable")
		}}}})
		rec = httptest.NewRecorder()
		failing.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.JSONEq(t, `{"status":"unavailable","failing":"snapshot"}`, rec.Body.String())

		rec = httptest.NewRecorder()
		healthy.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("metrics endpoint and instrumentation", func(t *testing.T) {
		t.Parallel()

		recorder := metrics.New()
		router := NewRouter(RouterConfig{
			Metrics:    recorder.Handler(),
			Middleware: []func(http.Handler) http.Handler{recorder.InstrumentHandler},
		})
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "bandgo_ops_requests_total")
	})

	t.Run("me returns the session holder", func(t *testing.T) {
		t.Parallel()

		h := testfixtures.NewHarness(t)
		user, token := signedIn(t, h)
		router := NewRouter(RouterConfig{Profiles: h.Platform.Auth, Inbox: h.Platform.Notifications})

		req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var got domain.User
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, user.ID, got.ID)
		assert.Equal(t, "noa@example.com", got.Email)

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/me", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("notifications filter unread", func(t *testing.T) {
		t.Parallel()

		h := testfixtures.NewHarness(t)
		user, token := signedIn(t, h)
		h.Seed(t, func(tx persistence.Tx) error {
			now := h.Clock.Now()
			for i, read := range []bool{true, false} {
				if err := tx.Notifications().Insert(domain.Notification{
					ID:        []string{"n-1", "n-2"}[i],
					UserID:    user.ID,
					Type:      domain.NotifyPostLike,
					Title:     "New like",
					Read:      read,
					CreatedAt: now,
					UpdatedAt: now,
				}); err != nil {
					return err
				}
			}
			return nil
		})
		router := NewRouter(RouterConfig{Profiles: h.Platform.Auth, Inbox: h.Platform.Notifications})

		req := httptest.NewRequest(http.MethodGet, "/v1/notifications?unread=true", nil)
		req.AddCookie(&http.Cookie{Name: "session_token", Value: token})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var got []domain.Notification
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		require.Len(t, got, 1)
		assert.Equal(t, "n-2", got[0].ID)
	})
}
