package memory

import (
	"github.com/bengol30/bandgo/internal/domain"
	"github.com/bengol30/bandgo/internal/persistence"
)

type tx struct {
	readOnly bool

	users               *txTable[domain.User]
	credentials         *txTable[domain.Credential]
	sessions            *txTable[domain.Session]
	bandRequests        *txTable[domain.BandRequest]
	applications        *txTable[domain.Application]
	bands               *txTable[domain.Band]
	songs               *txTable[domain.Song]
	tasks               *txTable[domain.Task]
	polls               *txTable[domain.RehearsalPoll]
	rehearsals          *txTable[domain.Rehearsal]
	performanceRequests *txTable[domain.PerformanceRequest]
	events              *txTable[domain.Event]
	registrations       *txTable[domain.EventRegistration]
	submissions         *txTable[domain.EventSubmission]
	posts               *txTable[domain.Post]
	likes               *txTable[domain.PostLike]
	comments            *txTable[domain.Comment]
	notifications       *txTable[domain.Notification]
	conversations       *txTable[domain.Conversation]
	messages            *txTable[domain.ChatMessage]
	reports             *txTable[domain.Report]

	settings *domain.SystemSettings
}

func view[T persistence.Entity[T]](base *table[T], readOnly bool) *txTable[T] {
	return &txTable[T]{base: base, readOnly: readOnly}
}

func newTx(st *state, readOnly bool) *tx {
	return &tx{
		readOnly:            readOnly,
		users:               view(st.users, readOnly),
		credentials:         view(st.credentials, readOnly),
		sessions:            view(st.sessions, readOnly),
		bandRequests:        view(st.bandRequests, readOnly),
		applications:        view(st.applications, readOnly),
		bands:               view(st.bands, readOnly),
		songs:               view(st.songs, readOnly),
		tasks:               view(st.tasks, readOnly),
		polls:               view(st.polls, readOnly),
		rehearsals:          view(st.rehearsals, readOnly),
		performanceRequests: view(st.performanceRequests, readOnly),
		events:              view(st.events, readOnly),
		registrations:       view(st.registrations, readOnly),
		submissions:         view(st.submissions, readOnly),
		posts:               view(st.posts, readOnly),
		likes:               view(st.likes, readOnly),
		comments:            view(st.comments, readOnly),
		notifications:       view(st.notifications, readOnly),
		conversations:       view(st.conversations, readOnly),
		messages:            view(st.messages, readOnly),
		reports:             view(st.reports, readOnly),
		settings:            st.settings,
	}
}

func (t *tx) commit() *state {
	return &state{
		users:               t.users.committed(),
		credentials:         t.credentials.committed(),
		sessions:            t.sessions.committed(),
		bandRequests:        t.bandRequests.committed(),
		applications:        t.applications.committed(),
		bands:               t.bands.committed(),
		songs:               t.songs.committed(),
		tasks:               t.tasks.committed(),
		polls:               t.polls.committed(),
		rehearsals:          t.rehearsals.committed(),
		performanceRequests: t.performanceRequests.committed(),
		events:              t.events.committed(),
		registrations:       t.registrations.committed(),
		submissions:         t.submissions.committed(),
		posts:               t.posts.committed(),
		likes:               t.likes.committed(),
		comments:            t.comments.committed(),
		notifications:       t.notifications.committed(),
		conversations:       t.conversations.committed(),
		messages:            t.messages.committed(),
		reports:             t.reports.committed(),
		settings:            t.settings,
	}
}

func (t *tx) Users() persistence.Table[domain.User]             { return t.users }
func (t *tx) Credentials() persistence.Table[domain.Credential] { return t.credentials }
func (t *tx) Sessions() persistence.Table[domain.Session]       { return t.sessions }
func (t *tx) BandRequests() persistence.Table[domain.BandRequest] {
	return t.bandRequests
}
func (t *tx) Applications() persistence.Table[domain.Application] {
	return t.applications
}
func (t *tx) Bands() persistence.Table[domain.Band]               { return t.bands }
func (t *tx) Songs() persistence.Table[domain.Song]               { return t.songs }
func (t *tx) Tasks() persistence.Table[domain.Task]               { return t.tasks }
func (t *tx) Polls() persistence.Table[domain.RehearsalPoll]      { return t.polls }
func (t *tx) Rehearsals() persistence.Table[domain.Rehearsal]     { return t.rehearsals }
func (t *tx) PerformanceRequests() persistence.Table[domain.PerformanceRequest] {
	return t.performanceRequests
}
func (t *tx) Events() persistence.Table[domain.Event] { return t.events }
func (t *tx) Registrations() persistence.Table[domain.EventRegistration] {
	return t.registrations
}
func (t *tx) Submissions() persistence.Table[domain.EventSubmission] {
	return t.submissions
}
func (t *tx) Posts() persistence.Table[domain.Post]       { return t.posts }
func (t *tx) Likes() persistence.Table[domain.PostLike]   { return t.likes }
func (t *tx) Comments() persistence.Table[domain.Comment] { return t.comments }
func (t *tx) Notifications() persistence.Table[domain.Notification] {
	return t.notifications
}
func (t *tx) Conversations() persistence.Table[domain.Conversation] {
	return t.conversations
}
func (t *tx) Messages() persistence.Table[domain.ChatMessage] { return t.messages }
func (t *tx) Reports() persistence.Table[domain.Report]       { return t.reports }

func (t *tx) Settings() (domain.SystemSettings, bool) {
	if t.settings == nil {
		return domain.SystemSettings{}, false
	}
	return *t.settings, true
}

// SetSettings is ignored in a read-only transaction; callers only reach it
// through RunInTransaction.
func (t *tx) SetSettings(settings domain.SystemSettings) {
	if t.readOnly {
		return
	}
	t.settings = &settings
}
