package ws

import (
	"time"

	"github.com/chatrelay/internal/model"
)

type EventType string

// Inbound event types (client -> server).
const (
	EventSendMessage      EventType = "send_message"
	EventEditMessage      EventType = "edit_message"
	EventDeleteMessage    EventType = "delete_message"
	EventUpdateStatus     EventType = "update_status"
	EventAddReaction      EventType = "add_reaction"
	EventRemoveReaction   EventType = "remove_reaction"
	EventJoinChat         EventType = "join_chat"
	EventLeaveChat        EventType = "leave_chat"
	EventSendNotification EventType = "send_notification"
	EventTyping           EventType = "typing"
	EventTouch            EventType = "touch"
)

// Outbound event types (server -> client).
const (
	EventNewMessage     EventType = "new_message"
	EventMessageEdited  EventType = "message_edited"
	EventMessageDeleted EventType = "message_deleted"
	EventStatusUpdated  EventType = "status_updated"
	EventReactionAdded  EventType = "reaction_added"
	EventReactionGone   EventType = "reaction_removed"
	EventUserOnline     EventType = "user_online"
	EventUserOffline    EventType = "user_offline"
	EventNotification   EventType = "notification"
	EventError          EventType = "error"
)

// IncomingEvent is what a client sends to the server.
type IncomingEvent struct {
	Type EventType `json:"type"`

	ChatID         string `json:"chat_id,omitempty"`
	Text           string `json:"text,omitempty"`
	RecipientID    string `json:"recipient_id,omitempty"`
	HasAttachments bool   `json:"has_attachments,omitempty"`

	// For edit/delete/status/reaction
	MessageID string              `json:"message_id,omitempty"`
	State     model.DeliveryState `json:"state,omitempty"`
	Reaction  string              `json:"reaction,omitempty"`

	// For notifications
	UserID string `json:"user_id,omitempty"`
}

// OutgoingEvent is what the server pushes to subscribers.
// Payload uses typed structs to avoid heap-heavy map[string]any.
type OutgoingEvent struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// MessageEditedPayload is pushed when a message is edited.
type MessageEditedPayload struct {
	MessageID      string    `json:"message_id"`
	ChatID         string    `json:"chat_id"`
	Text           string    `json:"text"`
	HasAttachments bool      `json:"has_attachments"`
	EditedAt       time.Time `json:"edited_at"`
}

// MessageDeletedPayload is pushed when a message is deleted.
type MessageDeletedPayload struct {
	MessageID string `json:"message_id"`
	ChatID    string `json:"chat_id"`
}

// StatusPayload is pushed to the message sender when a recipient's delivery
// state advances.
type StatusPayload struct {
	MessageID string              `json:"message_id"`
	ChatID    string              `json:"chat_id"`
	UserID    string              `json:"user_id"`
	State     model.DeliveryState `json:"state"`
}

// ReactionPayload is pushed to the chat room when a reaction changes.
type ReactionPayload struct {
	MessageID string `json:"message_id"`
	ChatID    string `json:"chat_id"`
	UserID    string `json:"user_id"`
	Reaction  string `json:"reaction,omitempty"`
}

// TypingPayload is pushed to the chat room while a user is typing.
type TypingPayload struct {
	ChatID string `json:"chat_id"`
	UserID string `json:"user_id"`
}

// PresencePayload is broadcast on online/offline transitions.
type PresencePayload struct {
	UserID       string    `json:"user_id"`
	Online       bool      `json:"online"`
	LastActivity time.Time `json:"last_activity"`
}
