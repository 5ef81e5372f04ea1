// Package store defines the persistence gateway: typed CRUD operations per
// entity, implemented by postgres (production), memory (-dev and tests) and
// redis (presence records).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/chatrelay/internal/model"
)

var (
	// ErrNotFound is returned when a referenced chat/message/row is absent.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned on uniqueness violations (e.g. duplicate participant).
	ErrConflict = errors.New("conflict")
	// ErrTransient marks storage timeouts and cancellations; callers may retry.
	ErrTransient = errors.New("storage unavailable")
)

type ChatStore interface {
	CreateChat(ctx context.Context, c *model.Chat) error
	GetChat(ctx context.Context, id string) (*model.Chat, error)
	// DeleteChat removes the chat and cascades to participants and messages.
	DeleteChat(ctx context.Context, id string) error
	AddParticipant(ctx context.Context, p *model.Participant) error
	RemoveParticipant(ctx context.Context, chatID, userID string) error
	ParticipantIDs(ctx context.Context, chatID string) ([]string, error)
	IsParticipant(ctx context.Context, chatID, userID string) (bool, error)
}

type MessageStore interface {
	CreateMessage(ctx context.Context, m *model.Message) error
	GetMessage(ctx context.Context, id string) (*model.Message, error)
	ChatMessages(ctx context.Context, chatID string, limit, offset int) ([]model.Message, error)
	UpdateMessage(ctx context.Context, id, text string, hasAttachments bool, editedAt time.Time) error
	// DeleteMessage hard-deletes the message and cascades to its statuses and
	// reactions. Deleting an absent message is a no-op.
	DeleteMessage(ctx context.Context, id string) error
}

type StatusStore interface {
	// UpsertStatus inserts the row or overwrites it only when the new state
	// ranks strictly higher than the stored one. Regressions are silent no-ops.
	UpsertStatus(ctx context.Context, s *model.MessageStatus) error
	MessageStatuses(ctx context.Context, messageID string) ([]model.MessageStatus, error)
}

type ReactionStore interface {
	// PutReaction inserts the user's reaction, replacing any previous reaction
	// by the same user on the same message.
	PutReaction(ctx context.Context, r *model.Reaction) error
	MessageReactions(ctx context.Context, messageID string) ([]model.Reaction, error)
	DeleteReaction(ctx context.Context, messageID, userID string) error
}

type NotificationStore interface {
	CreateNotification(ctx context.Context, n *model.Notification) error
	UserNotifications(ctx context.Context, userID string) ([]model.Notification, error)
}

type PresenceStore interface {
	SetPresence(ctx context.Context, rec *model.PresenceRecord) error
	GetPresence(ctx context.Context, userID string) (*model.PresenceRecord, error)
	// TouchPresence updates last-activity without changing the online flag.
	// Touching an unknown user is a no-op.
	TouchPresence(ctx context.Context, userID string, at time.Time) error
	// ResetPresence marks every known record offline (boot-time cleanup).
	ResetPresence(ctx context.Context) error
}
