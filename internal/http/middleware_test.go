package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bengol30/bandgo/internal/application"
	"github.com/bengol30/bandgo/internal/domain"
	"github.com/bengol30/bandgo/internal/logging"
)

type fakeSessionValidator struct {
	tokens map[string]application.Principal
	err    error
}

func (f fakeSessionValidator) Authenticate(_ context.Context, token string) (application.Principal, error) {
	if f.err != nil {
		return application.Principal{}, f.err
	}
	principal, ok := f.tokens[token]
	if !ok {
		return application.Principal{}, application.ErrUnauthenticated
	}
	return principal, nil
}

func TestSessionMiddleware(t *testing.T) {
	t.Parallel()

	validator := fakeSessionValidator{tokens: map[string]application.Principal{
		"valid-token": {UserID: "user-123", Role: domain.RoleAdmin},
	}}

	t.Run("rejects requests without valid session tokens", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name           string
			cookieToken    *http.Cookie
			headerToken    string
			validator      fakeSessionValidator
			expectedStatus int
			expectedCode   string
		}{
			{
				name:           "missing credentials",
				validator:      validator,
				expectedStatus: http.StatusUnauthorized,
			},
			{
				name:           "non bearer header",
				headerToken:    "Basic abc",
				validator:      validator,
				expectedStatus: http.StatusUnauthorized,
			},
			{
				name:           "revoked session",
				cookieToken:    &http.Cookie{Name: "session_token", Value: "revoked-token"},
				validator:      validator,
				expectedStatus: http.StatusUnauthorized,
				expectedCode:   "unauthenticated",
			},
			{
				name:           "banned account",
				headerToken:    "Bearer valid-token",
				validator:      fakeSessionValidator{err: application.ErrAccountDisabled},
				expectedStatus: http.StatusForbidden,
				expectedCode:   "account_disabled",
			},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				t.Parallel()

				req := httptest.NewRequest(http.MethodGet, "/protected", nil)
				if tc.cookieToken != nil {
					req.AddCookie(tc.cookieToken)
				}
				if tc.headerToken != "" {
					req.Header.Set("Authorization", tc.headerToken)
				}
				recorder := httptest.NewRecorder()

				handler := RequireSession(tc.validator, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					t.Error("next handler should not be called when authentication fails")
				}))
				handler.ServeHTTP(recorder, req)

				assert.Equal(t, tc.expectedStatus, recorder.Code)
				var body errorResponse
				require.NoError(t, json.NewDecoder(recorder.Body).Decode(&body))
				assert.Equal(t, tc.expectedCode, body.ErrorCode)
				assert.NotEmpty(t, body.Message)
			})
		}
	})

	t.Run("attaches authenticated principal to request context", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.AddCookie(&http.Cookie{Name: "session_token", Value: "valid-token"})
		recorder := httptest.NewRecorder()

		var captured application.Principal
		var token string
		handler := RequireSession(validator, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			require.True(t, ok)
			captured = p
			token = tokenFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		}))
		handler.ServeHTTP(recorder, req)

		assert.Equal(t, http.StatusOK, recorder.Code)
		assert.Equal(t, "user-123", captured.UserID)
		assert.Equal(t, "valid-token", token)
	})
}

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	var fromContext *slog.Logger
	handler := RequestLogger(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromContext = logging.FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.NotNil(t, fromContext)
	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "request completed", record["msg"])
	assert.Equal(t, "/healthz", record["path"])
	assert.EqualValues(t, 1, record["request_id"])
}

func TestStatusForKind(t *testing.T) {
	t.Parallel()

	cases := map[string]int{
		"not_found":         http.StatusNotFound,
		"permission_denied": http.StatusForbidden,
		"unauthenticated":   http.StatusUnauthorized,
		"invalid_state":     http.StatusConflict,
		"capacity_exceeded": http.StatusConflict,
		"validation":        http.StatusUnprocessableEntity,
		"internal":          http.StatusInternalServerError,
	}
	for kind, status := range cases {
		assert.Equal(t, status, statusForKind(kind), kind)
	}
}
