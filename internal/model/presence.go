package model

import "time"

// PresenceRecord is one online/last-activity row per user, last-writer-wins.
type PresenceRecord struct {
	UserID       string    `json:"user_id"`
	Online       bool      `json:"online"`
	LastActivity time.Time `json:"last_activity"`
}
