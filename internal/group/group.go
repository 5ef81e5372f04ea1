// Package group builds canonical routing-group names. The naming convention
// (user:{id}, chat:{id}, notifications:{id}) is part of the external contract
// and must not change: it determines how events are routed to subscribers.
package group

import "strings"

const (
	userPrefix          = "user:"
	chatPrefix          = "chat:"
	notificationsPrefix = "notifications:"
)

// User is the per-user inbox group.
func User(userID string) string { return userPrefix + userID }

// Chat is the per-chat room group.
func Chat(chatID string) string { return chatPrefix + chatID }

// Notifications is the per-user notification channel group.
func Notifications(userID string) string { return notificationsPrefix + userID }

// Valid reports whether name uses one of the known prefixes with a non-empty id.
func Valid(name string) bool {
	for _, p := range []string{userPrefix, chatPrefix, notificationsPrefix} {
		if strings.HasPrefix(name, p) && len(name) > len(p) {
			return true
		}
	}
	return false
}
