// Package service holds the network-agnostic core components: the message
// pipeline, the delivery-status tracker, the reaction manager and the
// notification dispatcher. None of them push to connections; fan-out is the
// realtime router's job, which keeps each component independently testable.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/chatrelay/internal/model"
	"github.com/chatrelay/internal/store"
)

// ErrNotParticipant is a business-rule failure: the sender does not belong to
// the chat. It is not a transport-level 401/403.
var ErrNotParticipant = errors.New("not a participant")

type MessagePipeline struct {
	chats    store.ChatStore
	messages store.MessageStore
}

func NewMessagePipeline(chats store.ChatStore, messages store.MessageStore) *MessagePipeline {
	return &MessagePipeline{chats: chats, messages: messages}
}

// Send validates the chat and the sender's membership, persists the message
// and returns it together with the fan-out audience: {sender, recipient} for
// private chats, all current participants for group chats.
func (p *MessagePipeline) Send(ctx context.Context, chatID, senderID, recipientID, text string, hasAttachments bool) (*model.Message, []string, error) {
	chat, err := p.chats.GetChat(ctx, chatID)
	if err != nil {
		return nil, nil, err
	}
	isMember, err := p.chats.IsParticipant(ctx, chatID, senderID)
	if err != nil {
		return nil, nil, err
	}
	if !isMember {
		return nil, nil, ErrNotParticipant
	}

	m := &model.Message{
		ID:             uuid.New().String(),
		ChatID:         chatID,
		SenderID:       senderID,
		Text:           text,
		HasAttachments: hasAttachments,
		CreatedAt:      time.Now().UTC(),
	}
	if chat.ChatType == model.ChatTypePrivate {
		m.RecipientID = recipientID
	}
	if err := p.messages.CreateMessage(ctx, m); err != nil {
		return nil, nil, err
	}

	audience, err := p.audience(ctx, chat, m)
	if err != nil {
		return nil, nil, err
	}
	return m, audience, nil
}

// Update edits the message text and attachment flag. The sender-only rule is
// the caller's responsibility; here only the (message, chat) pairing is
// verified and mismatches surface as not-found.
func (p *MessagePipeline) Update(ctx context.Context, messageID, chatID, text string, hasAttachments bool) (*model.Message, error) {
	m, err := p.messages.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if m.ChatID != chatID {
		return nil, store.ErrNotFound
	}
	now := time.Now().UTC()
	if err := p.messages.UpdateMessage(ctx, messageID, text, hasAttachments, now); err != nil {
		return nil, err
	}
	m.Text = text
	m.HasAttachments = hasAttachments
	m.EditedAt = &now
	return m, nil
}

// Delete hard-deletes the message; statuses and reactions cascade at the
// storage layer. Deleting an absent message is a no-op.
func (p *MessagePipeline) Delete(ctx context.Context, messageID string) error {
	err := p.messages.DeleteMessage(ctx, messageID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// Message loads a single message.
func (p *MessagePipeline) Message(ctx context.Context, messageID string) (*model.Message, error) {
	return p.messages.GetMessage(ctx, messageID)
}

// ChatMessages lists a chat's messages, newest first.
func (p *MessagePipeline) ChatMessages(ctx context.Context, chatID string, limit, offset int) ([]model.Message, error) {
	return p.messages.ChatMessages(ctx, chatID, limit, offset)
}

// IsParticipant reports whether the user belongs to the chat.
func (p *MessagePipeline) IsParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	return p.chats.IsParticipant(ctx, chatID, userID)
}

// Audience recomputes the fan-out target set for an existing message.
func (p *MessagePipeline) Audience(ctx context.Context, m *model.Message) ([]string, error) {
	chat, err := p.chats.GetChat(ctx, m.ChatID)
	if err != nil {
		return nil, err
	}
	return p.audience(ctx, chat, m)
}

func (p *MessagePipeline) audience(ctx context.Context, chat *model.Chat, m *model.Message) ([]string, error) {
	if chat.ChatType == model.ChatTypePrivate && m.RecipientID != "" {
		if m.RecipientID == m.SenderID {
			return []string{m.SenderID}, nil
		}
		return []string{m.SenderID, m.RecipientID}, nil
	}
	return p.chats.ParticipantIDs(ctx, chat.ID)
}
