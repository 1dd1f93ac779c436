package application

import (
	"cmp"
	"context"
	"errors"
	"log/slog"

	"github.com/bengol30/bandgo/internal/logging"
)

// scopedLogger prefers the request logger carried by ctx over base and tags
// it with the service and operation.
func scopedLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := cmp.Or(logging.FromContext(ctx), base, slog.Default())
	return logger.With(append([]any{"service", serviceName, "operation", operation}, attrs...)...)
}

// logOutcome writes the one line an operation logs when it returns and
// reports the error kind.
func logOutcome(ctx context.Context, logger *slog.Logger, err error, success string, attrs ...any) string {
	kind := ErrorKind(err)
	if err != nil {
		logger.ErrorContext(ctx, "operation failed", "error", err, "error_kind", kind)
		return kind
	}
	logger.InfoContext(ctx, success, attrs...)
	return kind
}

// ErrorKind maps sentinel and validation errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrAccountDisabled):
		return "account_disabled"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrNotEligible):
		return "not_eligible"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}

	return "unexpected"
}
