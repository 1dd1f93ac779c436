// Package memory implements the reference in-process adapter for persistence.Store.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/bengol30/bandgo/internal/domain"
	"github.com/bengol30/bandgo/internal/persistence"
)

// state is one committed version of every collection.
type state struct {
	users               *table[domain.User]
	credentials         *table[domain.Credential]
	sessions            *table[domain.Session]
	bandRequests        *table[domain.BandRequest]
	applications        *table[domain.Application]
	bands               *table[domain.Band]
	songs               *table[domain.Song]
	tasks               *table[domain.Task]
	polls               *table[domain.RehearsalPoll]
	rehearsals          *table[domain.Rehearsal]
	performanceRequests *table[domain.PerformanceRequest]
	events              *table[domain.Event]
	registrations       *table[domain.EventRegistration]
	submissions         *table[domain.EventSubmission]
	posts               *table[domain.Post]
	likes               *table[domain.PostLike]
	comments            *table[domain.Comment]
	notifications       *table[domain.Notification]
	conversations       *table[domain.Conversation]
	messages            *table[domain.ChatMessage]
	reports             *table[domain.Report]
	settings            *domain.SystemSettings
}

func emptyState() *state {
	return &state{
		users:               newTable[domain.User](),
		credentials:         newTable[domain.Credential](),
		sessions:            newTable[domain.Session](),
		bandRequests:        newTable[domain.BandRequest](),
		applications:        newTable[domain.Application](),
		bands:               newTable[domain.Band](),
		songs:               newTable[domain.Song](),
		tasks:               newTable[domain.Task](),
		polls:               newTable[domain.RehearsalPoll](),
		rehearsals:          newTable[domain.Rehearsal](),
		performanceRequests: newTable[domain.PerformanceRequest](),
		events:              newTable[domain.Event](),
		registrations:       newTable[domain.EventRegistration](),
		submissions:         newTable[domain.EventSubmission](),
		posts:               newTable[domain.Post](),
		likes:               newTable[domain.PostLike](),
		comments:            newTable[domain.Comment](),
		notifications:       newTable[domain.Notification](),
		conversations:       newTable[domain.Conversation](),
		messages:            newTable[domain.ChatMessage](),
		reports:             newTable[domain.Report](),
	}
}

// Store keeps all collections in memory. Writers are serialised; readers see
// the last committed version without blocking writers.
type Store struct {
	writeMu sync.Mutex
	mu      sync.RWMutex
	current *state
	now     func() time.Time
}

var _ persistence.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return NewWithClock(nil)
}

// NewWithClock returns an empty store that stamps exported snapshots with now.
func NewWithClock(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{current: emptyState(), now: now}
}

func (s *Store) load() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// RunInTransaction executes fn against a private view of the store and
// publishes its writes only when fn returns nil.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx persistence.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	t := newTx(s.load(), false)
	if err := fn(t); err != nil {
		return err
	}

	next := t.commit()
	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	return nil
}

// View executes fn against the last committed version. Writes fail.
func (s *Store) View(ctx context.Context, fn func(tx persistence.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(newTx(s.load(), true))
}

// Export copies every collection into a snapshot.
func (s *Store) Export(ctx context.Context) (persistence.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return persistence.Snapshot{}, err
	}
	st := s.load()
	snapshot := persistence.Snapshot{
		Version:             persistence.SnapshotVersion,
		SavedAt:             s.now(),
		Users:               st.users.list(),
		Credentials:         st.credentials.list(),
		Sessions:            st.sessions.list(),
		BandRequests:        st.bandRequests.list(),
		Applications:        st.applications.list(),
		Bands:               st.bands.list(),
		Songs:               st.songs.list(),
		Tasks:               st.tasks.list(),
		Polls:               st.polls.list(),
		Rehearsals:          st.rehearsals.list(),
		PerformanceRequests: st.performanceRequests.list(),
		Events:              st.events.list(),
		Registrations:       st.registrations.list(),
		Submissions:         st.submissions.list(),
		Posts:               st.posts.list(),
		Likes:               st.likes.list(),
		Comments:            st.comments.list(),
		Notifications:       st.notifications.list(),
		Conversations:       st.conversations.list(),
		Messages:            st.messages.list(),
		Reports:             st.reports.list(),
	}
	if st.settings != nil {
		settings := *st.settings
		snapshot.Settings = &settings
	}
	return snapshot, nil
}

// Import replaces the whole store content with the snapshot.
func (s *Store) Import(ctx context.Context, snapshot persistence.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	next, err := stateFrom(snapshot)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	return nil
}

func stateFrom(snapshot persistence.Snapshot) (*state, error) {
	st := &state{}
	var err error
	if st.users, err = tableFrom(snapshot.Users); err != nil {
		return nil, err
	}
	if st.credentials, err = tableFrom(snapshot.Credentials); err != nil {
		return nil, err
	}
	if st.sessions, err = tableFrom(snapshot.Sessions); err != nil {
		return nil, err
	}
	if st.bandRequests, err = tableFrom(snapshot.BandRequests); err != nil {
		return nil, err
	}
	if st.applications, err = tableFrom(snapshot.Applications); err != nil {
		return nil, err
	}
	if st.bands, err = tableFrom(snapshot.Bands); err != nil {
		return nil, err
	}
	if st.songs, err = tableFrom(snapshot.Songs); err != nil {
		return nil, err
	}
	if st.tasks, err = tableFrom(snapshot.Tasks); err != nil {
		return nil, err
	}
	if st.polls, err = tableFrom(snapshot.Polls); err != nil {
		return nil, err
	}
	if st.rehearsals, err = tableFrom(snapshot.Rehearsals); err != nil {
		return nil, err
	}
	if st.performanceRequests, err = tableFrom(snapshot.PerformanceRequests); err != nil {
		return nil, err
	}
	if st.events, err = tableFrom(snapshot.Events); err != nil {
		return nil, err
	}
	if st.registrations, err = tableFrom(snapshot.Registrations); err != nil {
		return nil, err
	}
	if st.submissions, err = tableFrom(snapshot.Submissions); err != nil {
		return nil, err
	}
	if st.posts, err = tableFrom(snapshot.Posts); err != nil {
		return nil, err
	}
	if st.likes, err = tableFrom(snapshot.Likes); err != nil {
		return nil, err
	}
	if st.comments, err = tableFrom(snapshot.Comments); err != nil {
		return nil, err
	}
	if st.notifications, err = tableFrom(snapshot.Notifications); err != nil {
		return nil, err
	}
	if st.conversations, err = tableFrom(snapshot.Conversations); err != nil {
		return nil, err
	}
	if st.messages, err = tableFrom(snapshot.Messages); err != nil {
		return nil, err
	}
	if st.reports, err = tableFrom(snapshot.Reports); err != nil {
		return nil, err
	}
	if snapshot.Settings != nil {
		settings := *snapshot.Settings
		st.settings = &settings
	}
	return st, nil
}
