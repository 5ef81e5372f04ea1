// Package memory is an in-process persistence gateway for -dev runs and tests.
// It mirrors the postgres implementation's semantics: cascade deletes,
// monotonic status upserts and one reaction per (message, user).
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/chatrelay/internal/model"
	"github.com/chatrelay/internal/store"
)

type Client struct {
	mu            sync.RWMutex
	chats         map[string]model.Chat
	participants  map[string]map[string]model.Participant // chat id -> user id
	messages      map[string]model.Message
	statuses      map[string]map[string]model.MessageStatus // message id -> user id
	reactions     map[string]map[string]model.Reaction      // message id -> user id
	notifications map[string][]model.Notification           // user id
	presence      map[string]model.PresenceRecord
}

func New() *Client {
	return &Client{
		chats:         make(map[string]model.Chat),
		participants:  make(map[string]map[string]model.Participant),
		messages:      make(map[string]model.Message),
		statuses:      make(map[string]map[string]model.MessageStatus),
		reactions:     make(map[string]map[string]model.Reaction),
		notifications: make(map[string][]model.Notification),
		presence:      make(map[string]model.PresenceRecord),
	}
}

// ctxErr maps context expiry to ErrTransient before any write happens, so a
// cancelled call leaves state as if it had never started.
func ctxErr(op string, ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, store.ErrTransient)
	}
	return nil
}

func (c *Client) CreateChat(ctx context.Context, ch *model.Chat) error {
	if err := ctxErr("memory.CreateChat", ctx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.chats[ch.ID]; ok {
		return store.ErrConflict
	}
	c.chats[ch.ID] = *ch
	return nil
}

func (c *Client) GetChat(ctx context.Context, id string) (*model.Chat, error) {
	if err := ctxErr("memory.GetChat", ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.chats[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &ch, nil
}

func (c *Client) DeleteChat(ctx context.Context, id string) error {
	if err := ctxErr("memory.DeleteChat", ctx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.chats, id)
	delete(c.participants, id)
	for msgID, m := range c.messages {
		if m.ChatID == id {
			delete(c.messages, msgID)
			delete(c.statuses, msgID)
			delete(c.reactions, msgID)
		}
	}
	return nil
}

func (c *Client) AddParticipant(ctx context.Context, p *model.Participant) error {
	if err := ctxErr("memory.AddParticipant", ctx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.chats[p.ChatID]; !ok {
		return store.ErrNotFound
	}
	members, ok := c.participants[p.ChatID]
	if !ok {
		members = make(map[string]model.Participant)
		c.participants[p.ChatID] = members
	}
	if _, exists := members[p.UserID]; exists {
		return store.ErrConflict
	}
	members[p.UserID] = *p
	return nil
}

func (c *Client) RemoveParticipant(ctx context.Context, chatID, userID string) error {
	if err := ctxErr("memory.RemoveParticipant", ctx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if members, ok := c.participants[chatID]; ok {
		delete(members, userID)
	}
	return nil
}

func (c *Client) ParticipantIDs(ctx context.Context, chatID string) ([]string, error) {
	if err := ctxErr("memory.ParticipantIDs", ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	members := c.participants[chatID]
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (c *Client) IsParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	if err := ctxErr("memory.IsParticipant", ctx); err != nil {
		return false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	members, ok := c.participants[chatID]
	if !ok {
		return false, nil
	}
	_, exists := members[userID]
	return exists, nil
}

func (c *Client) CreateMessage(ctx context.Context, m *model.Message) error {
	if err := ctxErr("memory.CreateMessage", ctx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.chats[m.ChatID]; !ok {
		return store.ErrNotFound
	}
	c.messages[m.ID] = *m
	return nil
}

func (c *Client) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	if err := ctxErr("memory.GetMessage", ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &m, nil
}

func (c *Client) ChatMessages(ctx context.Context, chatID string, limit, offset int) ([]model.Message, error) {
	if err := ctxErr("memory.ChatMessages", ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	all := make([]model.Message, 0, 16)
	for _, m := range c.messages {
		if m.ChatID == chatID {
			all = append(all, m)
		}
	}
	// Newest first, matching the postgres ORDER BY created_at DESC.
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= len(all) {
		return []model.Message{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (c *Client) UpdateMessage(ctx context.Context, id, text string, hasAttachments bool, editedAt time.Time) error {
	if err := ctxErr("memory.UpdateMessage", ctx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.messages[id]
	if !ok {
		return store.ErrNotFound
	}
	m.Text = text
	m.HasAttachments = hasAttachments
	t := editedAt
	m.EditedAt = &t
	c.messages[id] = m
	return nil
}

func (c *Client) DeleteMessage(ctx context.Context, id string) error {
	if err := ctxErr("memory.DeleteMessage", ctx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.messages, id)
	delete(c.statuses, id)
	delete(c.reactions, id)
	return nil
}

func (c *Client) UpsertStatus(ctx context.Context, s *model.MessageStatus) error {
	if err := ctxErr("memory.UpsertStatus", ctx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rows, ok := c.statuses[s.MessageID]
	if !ok {
		rows = make(map[string]model.MessageStatus)
		c.statuses[s.MessageID] = rows
	}
	if cur, exists := rows[s.UserID]; exists && s.State.Rank() <= cur.State.Rank() {
		return nil
	}
	rows[s.UserID] = *s
	return nil
}

func (c *Client) MessageStatuses(ctx context.Context, messageID string) ([]model.MessageStatus, error) {
	if err := ctxErr("memory.MessageStatuses", ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	rows := c.statuses[messageID]
	out := make([]model.MessageStatus, 0, len(rows))
	for _, s := range rows {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (c *Client) PutReaction(ctx context.Context, r *model.Reaction) error {
	if err := ctxErr("memory.PutReaction", ctx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rows, ok := c.reactions[r.MessageID]
	if !ok {
		rows = make(map[string]model.Reaction)
		c.reactions[r.MessageID] = rows
	}
	rows[r.UserID] = *r
	return nil
}

func (c *Client) MessageReactions(ctx context.Context, messageID string) ([]model.Reaction, error) {
	if err := ctxErr("memory.MessageReactions", ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	rows := c.reactions[messageID]
	out := make([]model.Reaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (c *Client) DeleteReaction(ctx context.Context, messageID, userID string) error {
	if err := ctxErr("memory.DeleteReaction", ctx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if rows, ok := c.reactions[messageID]; ok {
		delete(rows, userID)
	}
	return nil
}

func (c *Client) CreateNotification(ctx context.Context, n *model.Notification) error {
	if err := ctxErr("memory.CreateNotification", ctx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifications[n.UserID] = append(c.notifications[n.UserID], *n)
	return nil
}

func (c *Client) UserNotifications(ctx context.Context, userID string) ([]model.Notification, error) {
	if err := ctxErr("memory.UserNotifications", ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Notification, len(c.notifications[userID]))
	copy(out, c.notifications[userID])
	return out, nil
}

func (c *Client) SetPresence(ctx context.Context, rec *model.PresenceRecord) error {
	if err := ctxErr("memory.SetPresence", ctx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.presence[rec.UserID] = *rec
	return nil
}

func (c *Client) GetPresence(ctx context.Context, userID string) (*model.PresenceRecord, error) {
	if err := ctxErr("memory.GetPresence", ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.presence[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &rec, nil
}

func (c *Client) ResetPresence(ctx context.Context) error {
	if err := ctxErr("memory.ResetPresence", ctx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, rec := range c.presence {
		rec.Online = false
		c.presence[id] = rec
	}
	return nil
}

func (c *Client) TouchPresence(ctx context.Context, userID string, at time.Time) error {
	if err := ctxErr("memory.TouchPresence", ctx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.presence[userID]
	if !ok {
		return nil
	}
	rec.LastActivity = at
	c.presence[userID] = rec
	return nil
}
