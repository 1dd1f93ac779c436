package application

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bengol30/bandgo/internal/domain"
	"github.com/bengol30/bandgo/internal/events"
	"github.com/bengol30/bandgo/internal/persistence"
)

// Observer receives per-operation statistics, typically Prometheus metrics.
type Observer interface {
	OperationCompleted(service, operation, errorKind string, elapsed time.Duration)
	RegistrationRecorded(status string)
}

type noopObserver struct{}

func (noopObserver) OperationCompleted(string, string, string, time.Duration) {}
func (noopObserver) RegistrationRecorded(string)                            {}

// Deps bundles the collaborators shared by every service.
type Deps struct {
	Store       persistence.Store
	Bus         *events.Bus
	Observer    Observer
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// service is embedded by every concrete service.
type service struct {
	name        string
	store       persistence.Store
	bus         *events.Bus
	observer    Observer
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
	locks       *keyedLocks
}

func newService(name string, deps Deps, locks *keyedLocks) service {
	idGenerator := deps.IDGenerator
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	var observer Observer = noopObserver{}
	if deps.Observer != nil {
		observer = deps.Observer
	}
	if locks == nil {
		locks = newKeyedLocks()
	}
	return service{
		name:        name,
		store:       deps.Store,
		bus:         deps.Bus,
		observer:    observer,
		idGenerator: idGenerator,
		now:         now,
		logger:      cmp.Or(deps.Logger, slog.Default()),
		locks:       locks,
	}
}

func (s *service) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return scopedLogger(ctx, s.logger, s.name, operation, attrs...)
}

// begin returns the operation logger and a completion func that records the
// outcome exactly once: an error log with its kind, or an info log.
func (s *service) begin(ctx context.Context, operation string, attrs ...any) (*slog.Logger, func(err error, success string, attrs ...any)) {
	logger := s.loggerWith(ctx, operation, attrs...)
	started := time.Now()
	return logger, func(err error, success string, attrs ...any) {
		kind := logOutcome(ctx, logger, err, success, attrs...)
		s.observer.OperationCompleted(s.name, operation, kind, time.Since(started))
	}
}

// unit is one transaction plus the side effects to publish once it commits.
type unit struct {
	tx   persistence.Tx
	svc  *service
	sent []func(bus *events.Bus)
}

// write runs fn in a transaction and publishes its side effects after commit.
func (s *service) write(ctx context.Context, fn func(u *unit) error) error {
	if s.store == nil {
		return errors.New("store not configured")
	}
	var committed *unit
	err := s.store.RunInTransaction(ctx, func(tx persistence.Tx) error {
		u := &unit{tx: tx, svc: s}
		if err := fn(u); err != nil {
			return err
		}
		committed = u
		return nil
	})
	if err != nil {
		return mapStoreError(err)
	}
	if s.bus != nil {
		for _, send := range committed.sent {
			send(s.bus)
		}
	}
	return nil
}

// read runs fn against the last committed state.
func (s *service) read(ctx context.Context, fn func(tx persistence.Tx) error) error {
	if s.store == nil {
		return errors.New("store not configured")
	}
	return mapStoreError(s.store.View(ctx, fn))
}

// afterCommit queues a bus publication.
func (u *unit) afterCommit(send func(bus *events.Bus)) {
	u.sent = append(u.sent, send)
}

// notify stores a notification and publishes it once the transaction commits.
func (u *unit) notify(userID string, kind domain.NotificationType, title, body string, data map[string]string) error {
	if userID == "" {
		return nil
	}
	now := u.svc.now()
	n := domain.Notification{
		ID:        u.svc.idGenerator(),
		UserID:    userID,
		Type:      kind,
		Title:     title,
		Body:      body,
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := u.tx.Notifications().Insert(n); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	u.afterCommit(func(bus *events.Bus) { bus.EmitNotification(userID, n) })
	return nil
}

// notifyAll notifies every user in userIDs except skip.
func (u *unit) notifyAll(userIDs []string, skip string, kind domain.NotificationType, title, body string, data map[string]string) error {
	for _, id := range userIDs {
		if id == skip {
			continue
		}
		if err := u.notify(id, kind, title, body, data); err != nil {
			return err
		}
	}
	return nil
}

// get loads a record and turns a miss into an application NotFound naming the entity.
func get[T persistence.Entity[T]](table persistence.Table[T], entity, id string) (T, error) {
	record, err := table.Get(id)
	if errors.Is(err, persistence.ErrNotFound) {
		return record, notFound(entity, id)
	}
	return record, err
}

func mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAlreadyExists):
		return err
	case errors.Is(err, persistence.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, persistence.ErrDuplicate):
		return fmt.Errorf("%w: %v", ErrAlreadyExists, err)
	case errors.Is(err, persistence.ErrConflict):
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	return err
}

func memberIDs(band domain.Band) []string {
	ids := make([]string, 0, len(band.Members))
	for _, m := range band.Members {
		ids = append(ids, m.UserID)
	}
	return ids
}
