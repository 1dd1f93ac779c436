package application

import (
	"context"
	"slices"
	"strings"

	"github.com/bengol30/bandgo/internal/domain"
	"github.com/bengol30/bandgo/internal/events"
	"github.com/bengol30/bandgo/internal/persistence"
)

// ChatService stores band chat and direct messages and relays them on the bus.
type ChatService struct {
	service
}

// NewChatService constructs a ChatService.
func NewChatService(deps Deps) *ChatService {
	return &ChatService{service: newService("ChatService", deps, nil)}
}

// SendBandMessage posts to the band chat. Members only.
func (s *ChatService) SendBandMessage(ctx context.Context, principal Principal, bandID, content string) (message domain.ChatMessage, err error) {
	_, done := s.begin(ctx, "SendBandMessage", "actor_id", principal.UserID, "band_id", bandID)
	defer func() { done(err, "band message sent", "message_id", message.ID) }()

	if err = requireActive(principal); err != nil {
		return
	}
	if strings.TrimSpace(content) == "" {
		err = invalidField("content", "is required")
		return
	}
	err = s.write(ctx, func(u *unit) error {
		band, err := get(u.tx.Bands(), "band", bandID)
		if err != nil {
			return err
		}
		if !band.IsMember(principal.UserID) {
			return denied("band members only")
		}
		message = domain.ChatMessage{
			ID:        s.idGenerator(),
			BandID:    band.ID,
			SenderID:  principal.UserID,
			Content:   content,
			CreatedAt: s.now(),
		}
		if err := u.tx.Messages().Insert(message); err != nil {
			return err
		}
		sent := message
		u.afterCommit(func(bus *events.Bus) { bus.EmitBandChatMessage(sent.BandID, sent) })
		return nil
	})
	return
}

// SendDirectMessage messages another user, opening the conversation on first contact.
func (s *ChatService) SendDirectMessage(ctx context.Context, principal Principal, recipientID, content string) (message domain.ChatMessage, err error) {
	_, done := s.begin(ctx, "SendDirectMessage", "actor_id", principal.UserID, "recipient_id", recipientID)
	defer func() { done(err, "direct message sent", "conversation_id", message.ConversationID) }()

	if err = requireActive(principal); err != nil {
		return
	}
	v := &ValidationError{}
	if strings.TrimSpace(content) == "" {
		v.add("content", "is required")
	}
	if recipientID == principal.UserID {
		v.add("recipientId", "cannot message yourself")
	}
	if err = v.errOrNil(); err != nil {
		return
	}

	err = s.write(ctx, func(u *unit) error {
		if _, err := get(u.tx.Users(), "user", recipientID); err != nil {
			return err
		}
		now := s.now()
		id := domain.ConversationID(principal.UserID, recipientID)
		conversation, err := u.tx.Conversations().Get(id)
		if err != nil {
			participants := []string{principal.UserID, recipientID}
			slices.Sort(participants)
			conversation = domain.Conversation{ID: id, ParticipantIDs: participants, CreatedAt: now}
			if err := u.tx.Conversations().Insert(conversation); err != nil {
				return err
			}
		}
		conversation.LastMessageAt = now
		conversation.UpdatedAt = now
		if err := u.tx.Conversations().Update(conversation); err != nil {
			return err
		}
		message = domain.ChatMessage{
			ID:             s.idGenerator(),
			ConversationID: conversation.ID,
			SenderID:       principal.UserID,
			Content:        content,
			CreatedAt:      now,
		}
		if err := u.tx.Messages().Insert(message); err != nil {
			return err
		}
		sent := message
		u.afterCommit(func(bus *events.Bus) { bus.EmitDirectMessage(sent.ConversationID, sent) })
		return nil
	})
	return
}

// ListBandMessages returns the band chat history, oldest first.
func (s *ChatService) ListBandMessages(ctx context.Context, principal Principal, bandID string) (messages []domain.ChatMessage, err error) {
	err = s.read(ctx, func(tx persistence.Tx) error {
		band, err := get(tx.Bands(), "band", bandID)
		if err != nil {
			return err
		}
		if !band.IsMember(principal.UserID) && !principal.CanModerate() {
			return denied("band members only")
		}
		messages = tx.Messages().Find(func(m domain.ChatMessage) bool { return m.BandID == bandID })
		return nil
	})
	return
}

// ListConversationMessages returns one conversation, oldest first. Participants only.
func (s *ChatService) ListConversationMessages(ctx context.Context, principal Principal, conversationID string) (messages []domain.ChatMessage, err error) {
	err = s.read(ctx, func(tx persistence.Tx) error {
		conversation, err := get(tx.Conversations(), "conversation", conversationID)
		if err != nil {
			return err
		}
		if !slices.Contains(conversation.ParticipantIDs, principal.UserID) {
			return denied("participants only")
		}
		messages = tx.Messages().Find(func(m domain.ChatMessage) bool { return m.ConversationID == conversationID })
		return nil
	})
	return
}

// ListConversations returns the principal's conversations, most recent first.
func (s *ChatService) ListConversations(ctx context.Context, principal Principal) (conversations []domain.Conversation, err error) {
	err = s.read(ctx, func(tx persistence.Tx) error {
		conversations = tx.Conversations().Find(func(c domain.Conversation) bool {
			return slices.Contains(c.ParticipantIDs, principal.UserID)
		})
		return nil
	})
	slices.SortStableFunc(conversations, func(a, b domain.Conversation) int {
		return b.LastMessageAt.Compare(a.LastMessageAt)
	})
	return
}
