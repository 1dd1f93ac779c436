package persistence

import (
	"context"

	"github.com/bengol30/bandgo/internal/domain"
)

// Entity is implemented by every record kept in a Table.
type Entity[T any] interface {
	EntityID() string
	Clone() T
}

// Table exposes keyed access to one entity collection inside a transaction.
// Records handed in or out are copies; mutating them never touches stored state.
type Table[T Entity[T]] interface {
	Get(id string) (T, error)
	Insert(record T) error
	Update(record T) error
	Delete(id string) error
	// List returns every record in insertion order.
	List() []T
	// Find returns the records matching keep, in insertion order.
	Find(keep func(T) bool) []T
	Len() int
}

// Tx is the unit of work handed to RunInTransaction and View callbacks.
type Tx interface {
	Users() Table[domain.User]
	Credentials() Table[domain.Credential]
	Sessions() Table[domain.Session]
	BandRequests() Table[domain.BandRequest]
	Applications() Table[domain.Application]
	Bands() Table[domain.Band]
	Songs() Table[domain.Song]
	Tasks() Table[domain.Task]
	Polls() Table[domain.RehearsalPoll]
	Rehearsals() Table[domain.Rehearsal]
	PerformanceRequests() Table[domain.PerformanceRequest]
	Events() Table[domain.Event]
	Registrations() Table[domain.EventRegistration]
	Submissions() Table[domain.EventSubmission]
	Posts() Table[domain.Post]
	Likes() Table[domain.PostLike]
	Comments() Table[domain.Comment]
	Notifications() Table[domain.Notification]
	Conversations() Table[domain.Conversation]
	Messages() Table[domain.ChatMessage]
	Reports() Table[domain.Report]

	// Settings returns the stored settings singleton, if one was saved.
	Settings() (domain.SystemSettings, bool)
	SetSettings(settings domain.SystemSettings)
}

// Store is the storage contract every adapter satisfies. Writes made inside
// RunInTransaction become visible only when fn returns nil.
type Store interface {
	RunInTransaction(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
	Export(ctx context.Context) (Snapshot, error)
	Import(ctx context.Context, snapshot Snapshot) error
}

// SnapshotStore persists the single keyed blob holding every collection.
type SnapshotStore interface {
	// LoadSnapshot returns ErrNotFound when nothing has been saved yet.
	LoadSnapshot(ctx context.Context) (Snapshot, error)
	SaveSnapshot(ctx context.Context, snapshot Snapshot) error
}
