package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bengol30/bandgo/internal/application"
	"github.com/bengol30/bandgo/internal/domain"
)

// Profiles resolves the user behind a session token.
type Profiles interface {
	SessionValidator
	CurrentUser(ctx context.Context, token string) (domain.User, error)
}

// Inbox lists notifications.
type Inbox interface {
	ListNotifications(ctx context.Context, principal application.Principal, unreadOnly bool) ([]domain.Notification, error)
}

// HealthCheck is probed by /healthz. A nil Check always passes.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type RouterConfig struct {
	Profiles   Profiles
	Inbox      Inbox
	Metrics    http.Handler
	Health     []HealthCheck
	Logger     *slog.Logger
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	responder := newResponder(cfg.Logger)

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		for _, check := range cfg.Health {
			if check.Check == nil {
				continue
			}
			if err := check.Check(ctx); err != nil {
				handlerLogger(ctx, cfg.Logger, "health", "check", check.Name).WarnContext(ctx, "health check failed", "error", err)
				responder.writeJSON(ctx, w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Failing: check.Name})
				return
			}
		}
		responder.writeJSON(ctx, w, http.StatusOK, healthResponse{Status: "ok"})
	})

	if cfg.Metrics != nil {
		mux.Handle("/metrics", cfg.Metrics)
	}

	if cfg.Profiles != nil {
		protect := RequireSession(cfg.Profiles, cfg.Logger)

		mux.Handle("/v1/me", protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			user, err := cfg.Profiles.CurrentUser(r.Context(), tokenFromContext(r.Context()))
			if err != nil {
				responder.handleServiceError(r.Context(), w, err)
				return
			}
			responder.writeJSON(r.Context(), w, http.StatusOK, user)
		})))

		if cfg.Inbox != nil {
			mux.Handle("/v1/notifications", protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet {
					methodNotAllowed(w, http.MethodGet)
					return
				}
				unread, _ := strconv.ParseBool(r.URL.Query().Get("unread"))
				principal, _ := PrincipalFromContext(r.Context())
				notifications, err := cfg.Inbox.ListNotifications(r.Context(), principal, unread)
				if err != nil {
					responder.handleServiceError(r.Context(), w, err)
					return
				}
				if notifications == nil {
					notifications = []domain.Notification{}
				}
				responder.writeJSON(r.Context(), w, http.StatusOK, notifications)
			})))
		}
	}

	var handler http.Handler = mux
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		handler = cfg.Middleware[i](handler)
	}
	return handler
}

type healthResponse struct {
	Status  string `json:"status"`
	Failing string `json:"failing,omitempty"`
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
