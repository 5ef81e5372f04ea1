package model

import "time"

type Message struct {
	ID             string     `json:"id"`
	ChatID         string     `json:"chat_id"`
	SenderID       string     `json:"sender_id"`
	RecipientID    string     `json:"recipient_id,omitempty"`
	Text           string     `json:"text"`
	HasAttachments bool       `json:"has_attachments"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// DeliveryState is the per-recipient delivery state of a message.
// States are ordered: sent < delivered < read. Read is terminal.
type DeliveryState string

const (
	StateSent      DeliveryState = "sent"
	StateDelivered DeliveryState = "delivered"
	StateRead      DeliveryState = "read"
)

// Rank returns the position of the state in the delivery order.
// Unknown states rank below sent so they never overwrite anything.
func (s DeliveryState) Rank() int {
	switch s {
	case StateSent:
		return 1
	case StateDelivered:
		return 2
	case StateRead:
		return 3
	}
	return 0
}

// Valid reports whether s is one of the known delivery states.
func (s DeliveryState) Valid() bool { return s.Rank() > 0 }

// MessageStatus is one delivery-state row per (message, user) pair.
type MessageStatus struct {
	MessageID string        `json:"message_id"`
	UserID    string        `json:"user_id"`
	State     DeliveryState `json:"state"`
	UpdatedAt time.Time     `json:"updated_at"`
}

type Reaction struct {
	ID        string    `json:"id"`
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	Reaction  string    `json:"reaction"`
	CreatedAt time.Time `json:"created_at"`
}
