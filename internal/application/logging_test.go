package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bengol30/bandgo/internal/logging"
)

func TestLogOutcome(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	assert.Equal(t, "", logOutcome(context.Background(), logger, nil, "band formed", "band_id", "b-1"))
	assert.Contains(t, buf.String(), "level=INFO msg=\"band formed\" band_id=b-1")

	buf.Reset()
	assert.Equal(t, "not_found", logOutcome(context.Background(), logger, notFound("band", "b-2"), "band formed"))
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "error_kind=not_found")
	assert.NotContains(t, buf.String(), "band formed")
}

func TestScopedLoggerFallsBackToDefault(t *testing.T) {
	t.Parallel()
	assert.NotNil(t, scopedLogger(context.Background(), nil, "FeedService", "LikePost"))
}

func TestScopedLoggerPrefersContextLogger(t *testing.T) {
	t.Parallel()

	var base, scoped bytes.Buffer
	baseLogger := slog.New(slog.NewTextHandler(&base, nil))
	ctx := logging.ContextWithLogger(context.Background(), slog.New(slog.NewTextHandler(&scoped, nil)))

	scopedLogger(ctx, baseLogger, "BandService", "LeaveBand", "band_id", "b-1").Info("done")

	assert.Empty(t, base.String())
	assert.Contains(t, scoped.String(), "service=BandService")
	assert.Contains(t, scoped.String(), "operation=LeaveBand")
	assert.Contains(t, scoped.String(), "band_id=b-1")
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	cases := map[string]error{
		"":                    nil,
		"not_found":           notFound("band", "x"),
		"permission_denied":   denied("nope"),
		"invalid_state":       invalidState("poll", "p", "open", "closed"),
		"already_exists":      fmt.Errorf("wrap: %w", ErrAlreadyExists),
		"capacity_exceeded":   ErrCapacityExceeded,
		"invalid_credentials": ErrInvalidCredentials,
		"account_disabled":    ErrAccountDisabled,
		"unauthenticated":     ErrUnauthenticated,
		"not_eligible":        ErrNotEligible,
		"cancelled":           context.Canceled,
		"validation":          invalidField("title", "is required"),
		"unexpected":          errors.New("boom"),
	}
	for want, err := range cases {
		assert.Equal(t, want, ErrorKind(err), "error %v", err)
	}
}
