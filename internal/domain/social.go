package domain

import (
	"maps"
	"slices"
	"time"
)

// Post is a feed entry. LikesCount and CommentsCount mirror the PostLike and
// Comment rows and are only written together with them.
type Post struct {
	ID            string    `json:"id"`
	AuthorID      string    `json:"authorId"`
	BandID        string    `json:"bandId,omitempty"`
	Content       string    `json:"content"`
	MediaURLs     []string  `json:"mediaUrls,omitempty"`
	IsPinned      bool      `json:"isPinned"`
	LikesCount    int       `json:"likesCount"`
	CommentsCount int       `json:"commentsCount"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (p Post) EntityID() string { return p.ID }

func (p Post) Clone() Post {
	p.MediaURLs = slices.Clone(p.MediaURLs)
	return p
}

// PostLike is one member of a post's liker set.
type PostLike struct {
	ID        string    `json:"id"`
	PostID    string    `json:"postId"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

func (l PostLike) EntityID() string { return l.ID }
func (l PostLike) Clone() PostLike  { return l }

// PostLikeID derives the key that makes a like unique per (post, user).
func PostLikeID(postID, userID string) string {
	return postID + "/" + userID
}

// Comment is a reply on a post.
type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"postId"`
	AuthorID  string    `json:"authorId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (c Comment) EntityID() string { return c.ID }
func (c Comment) Clone() Comment   { return c }

// NotificationType tags the cause of a notification.
type NotificationType string

const (
	NotifyApplicationReceived NotificationType = "application_received"
	NotifyApplicationReviewed NotificationType = "application_reviewed"
	NotifyBandFormed          NotificationType = "band_formed"
	NotifyBandMemberJoined    NotificationType = "band_member_joined"
	NotifyBandMemberLeft      NotificationType = "band_member_left"
	NotifyBandLeadership      NotificationType = "band_leadership"
	NotifyBandDeleted         NotificationType = "band_deleted"
	NotifyPollCreated         NotificationType = "poll_created"
	NotifyRehearsalScheduled  NotificationType = "rehearsal_scheduled"
	NotifyRehearsalReviewed   NotificationType = "rehearsal_reviewed"
	NotifyPerformanceReviewed NotificationType = "performance_reviewed"
	NotifyWaitlistPromoted    NotificationType = "waitlist_promoted"
	NotifySubmissionReviewed  NotificationType = "submission_reviewed"
	NotifyPostComment         NotificationType = "post_comment"
	NotifyPostLike            NotificationType = "post_like"
	NotifyRoleChanged         NotificationType = "role_changed"
)

// Notification is a per-user inbox item.
type Notification struct {
	ID        string            `json:"id"`
	UserID    string            `json:"userId"`
	Type      NotificationType  `json:"type"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data,omitempty"`
	Read      bool              `json:"read"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

func (n Notification) EntityID() string { return n.ID }

func (n Notification) Clone() Notification {
	n.Data = maps.Clone(n.Data)
	return n
}

// Conversation is a direct-message thread between two users.
type Conversation struct {
	ID             string    `json:"id"`
	ParticipantIDs []string  `json:"participantIds"`
	LastMessageAt  time.Time `json:"lastMessageAt"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (c Conversation) EntityID() string { return c.ID }

func (c Conversation) Clone() Conversation {
	c.ParticipantIDs = slices.Clone(c.ParticipantIDs)
	return c
}

// ConversationID derives the deterministic id of the thread between two users.
func ConversationID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "dm:" + a + ":" + b
}

// ChatMessage belongs either to a band chat or to a conversation.
type ChatMessage struct {
	ID             string    `json:"id"`
	BandID         string    `json:"bandId,omitempty"`
	ConversationID string    `json:"conversationId,omitempty"`
	SenderID       string    `json:"senderId"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (m ChatMessage) EntityID() string    { return m.ID }
func (m ChatMessage) Clone() ChatMessage { return m }

// ReportStatus is the moderation state of a report.
type ReportStatus string

const (
	ReportPending   ReportStatus = "pending"
	ReportReviewed  ReportStatus = "reviewed"
	ReportDismissed ReportStatus = "dismissed"
)

// Report is a moderation queue entry about some target entity.
type Report struct {
	ID         string       `json:"id"`
	ReporterID string       `json:"reporterId"`
	TargetType string       `json:"targetType"`
	TargetID   string       `json:"targetId"`
	Reason     string       `json:"reason"`
	Status     ReportStatus `json:"status"`
	ResolvedBy string       `json:"resolvedBy,omitempty"`
	Resolution string       `json:"resolution,omitempty"`
	CreatedAt  time.Time    `json:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

func (r Report) EntityID() string { return r.ID }
func (r Report) Clone() Report    { return r }
