package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chatrelay/internal/group"
	"github.com/chatrelay/internal/logger"
	"github.com/chatrelay/internal/metrics"
	"github.com/chatrelay/internal/presence"
	"github.com/chatrelay/internal/service"
	"github.com/chatrelay/internal/store"
)

// Hub is the realtime router: it bridges live connections to the core
// components and fans resulting events out to the presence tracker's
// subscriber sets. Pushes are best-effort; persistence success never depends
// on delivery success.
type Hub struct {
	mu       sync.RWMutex
	conns    map[string]*Client // connection id -> client
	total    int
	maxConns int

	tracker   *presence.Tracker
	pipeline  *service.MessagePipeline
	statuses  *service.StatusTracker
	reactions *service.ReactionManager
	notifier  *service.NotificationDispatcher

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(
	tracker *presence.Tracker,
	pipeline *service.MessagePipeline,
	statuses *service.StatusTracker,
	reactions *service.ReactionManager,
	notifier *service.NotificationDispatcher,
	maxConns int,
) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &Hub{
		conns:      make(map[string]*Client),
		maxConns:   maxConns,
		tracker:    tracker,
		pipeline:   pipeline,
		statuses:   statuses,
		reactions:  reactions,
		notifier:   notifier,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			// Close done first so Register/Unregister stop blocking, then
			// drain and wait for the pumps.
			close(h.done)
			h.shutdown()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) shutdown() {
	// Collect all clients under the lock, do NOT perform I/O under mutex.
	h.mu.Lock()
	allClients := make([]*Client, 0, h.total)
	for _, c := range h.conns {
		allClients = append(allClients, c)
	}
	h.conns = make(map[string]*Client)
	h.total = 0
	h.mu.Unlock()

	// Close connections outside the lock (network I/O).
	for _, c := range allClients {
		c.Close()
	}
	for _, c := range allClients {
		c.Wait()
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if h.total >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.maxConns, c.userID)
		c.Close()
		return
	}
	h.conns[c.id] = c
	h.total++
	h.mu.Unlock()
	metrics.ConnectionsActive.Inc()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rec, err := h.tracker.Connect(ctx, c.id, c.userID)
	if err != nil {
		logger.Errorf("ws presence connect user=%s: %v", c.userID, err)
	}
	// Every connection also listens on its user's notification channel.
	h.tracker.JoinGroup(c.id, group.Notifications(c.userID))

	if rec != nil {
		h.broadcastAll(OutgoingEvent{Type: EventUserOnline, Payload: PresencePayload{
			UserID:       rec.UserID,
			Online:       true,
			LastActivity: rec.LastActivity,
		}})
	}
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.conns[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, c.id)
	h.total--
	h.mu.Unlock()
	metrics.ConnectionsActive.Dec()

	// Network I/O outside the lock.
	c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rec, err := h.tracker.Disconnect(ctx, c.id, c.userID)
	if err != nil {
		logger.Errorf("ws presence disconnect user=%s: %v", c.userID, err)
	}
	if rec != nil && !rec.Online {
		h.broadcastAll(OutgoingEvent{Type: EventUserOffline, Payload: PresencePayload{
			UserID:       rec.UserID,
			Online:       false,
			LastActivity: rec.LastActivity,
		}})
	}
}

// HandleEvent dispatches an inbound event from a connection.
func (h *Hub) HandleEvent(ctx context.Context, c *Client, ev IncomingEvent) {
	metrics.EventsInbound.WithLabelValues(string(ev.Type)).Inc()
	switch ev.Type {
	case EventSendMessage:
		h.handleSendMessage(ctx, c, ev)
	case EventEditMessage:
		h.handleEditMessage(ctx, c, ev)
	case EventDeleteMessage:
		h.handleDeleteMessage(ctx, c, ev)
	case EventUpdateStatus:
		h.handleUpdateStatus(ctx, c, ev)
	case EventAddReaction:
		h.handleAddReaction(ctx, c, ev)
	case EventRemoveReaction:
		h.handleRemoveReaction(ctx, c, ev)
	case EventJoinChat:
		h.handleJoinChat(ctx, c, ev)
	case EventLeaveChat:
		h.handleLeaveChat(c, ev)
	case EventSendNotification:
		h.handleSendNotification(ctx, c, ev)
	case EventTyping:
		h.handleTyping(c, ev)
	case EventTouch:
		h.handleTouch(ctx, c)
	default:
		h.sendToClient(c, OutgoingEvent{Type: EventError, Payload: "unknown event type"})
	}
}

func (h *Hub) handleSendMessage(ctx context.Context, c *Client, ev IncomingEvent) {
	defer logger.DeferLogDuration("ws.handleSendMessage", time.Now())()
	if ev.ChatID == "" || (ev.Text == "" && !ev.HasAttachments) {
		h.sendError(c, "chat_id and text required")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	m, audience, err := h.pipeline.Send(ctx, ev.ChatID, c.userID, ev.RecipientID, ev.Text, ev.HasAttachments)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotParticipant):
			h.sendError(c, "not a participant")
		case errors.Is(err, store.ErrNotFound):
			h.sendError(c, "chat not found")
		default:
			logger.Errorf("ws send message chat=%s user=%s: %v", ev.ChatID, c.userID, err)
			h.sendError(c, "failed to send message")
		}
		return
	}

	out := OutgoingEvent{Type: EventNewMessage, Payload: m}
	for _, uid := range audience {
		h.pushToGroup(group.User(uid), out)
	}
}

func (h *Hub) handleEditMessage(ctx context.Context, c *Client, ev IncomingEvent) {
	defer logger.DeferLogDuration("ws.handleEditMessage", time.Now())()
	if ev.MessageID == "" || ev.ChatID == "" || ev.Text == "" {
		h.sendError(c, "message_id, chat_id and text required")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	original, err := h.pipeline.Message(ctx, ev.MessageID)
	if err != nil {
		h.sendError(c, "message not found")
		return
	}
	if original.SenderID != c.userID {
		h.sendError(c, "can only edit own messages")
		return
	}

	m, err := h.pipeline.Update(ctx, ev.MessageID, ev.ChatID, ev.Text, ev.HasAttachments)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.sendError(c, "message not found")
			return
		}
		logger.Errorf("ws edit message %s: %v", ev.MessageID, err)
		h.sendError(c, "failed to edit")
		return
	}

	audience, err := h.pipeline.Audience(ctx, m)
	if err != nil {
		logger.Errorf("ws audience for edit %s: %v", ev.MessageID, err)
		return
	}
	out := OutgoingEvent{Type: EventMessageEdited, Payload: MessageEditedPayload{
		MessageID:      m.ID,
		ChatID:         m.ChatID,
		Text:           m.Text,
		HasAttachments: m.HasAttachments,
		EditedAt:       *m.EditedAt,
	}}
	for _, uid := range audience {
		h.pushToGroup(group.User(uid), out)
	}
}

func (h *Hub) handleDeleteMessage(ctx context.Context, c *Client, ev IncomingEvent) {
	defer logger.DeferLogDuration("ws.handleDeleteMessage", time.Now())()
	if ev.MessageID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	original, err := h.pipeline.Message(ctx, ev.MessageID)
	if err != nil {
		// Already gone: idempotent delete, nothing to push.
		if errors.Is(err, store.ErrNotFound) {
			return
		}
		logger.Errorf("ws delete lookup %s: %v", ev.MessageID, err)
		return
	}
	if original.SenderID != c.userID {
		h.sendError(c, "can only delete own messages")
		return
	}

	audience, err := h.pipeline.Audience(ctx, original)
	if err != nil {
		logger.Errorf("ws audience for delete %s: %v", ev.MessageID, err)
		audience = nil
	}
	if err := h.pipeline.Delete(ctx, ev.MessageID); err != nil {
		logger.Errorf("ws delete message %s: %v", ev.MessageID, err)
		return
	}

	out := OutgoingEvent{Type: EventMessageDeleted, Payload: MessageDeletedPayload{
		MessageID: original.ID,
		ChatID:    original.ChatID,
	}}
	for _, uid := range audience {
		h.pushToGroup(group.User(uid), out)
	}
}

func (h *Hub) handleUpdateStatus(ctx context.Context, c *Client, ev IncomingEvent) {
	if ev.MessageID == "" || !ev.State.Valid() {
		h.sendError(c, "message_id and a valid state required")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	original, err := h.pipeline.Message(ctx, ev.MessageID)
	if err != nil {
		h.sendError(c, "message not found")
		return
	}

	if err := h.statuses.AddOrUpdate(ctx, ev.MessageID, c.userID, ev.State); err != nil {
		logger.Errorf("ws update status msg=%s user=%s: %v", ev.MessageID, c.userID, err)
		h.sendError(c, "failed to update status")
		return
	}

	// The original sender is the one watching the read receipts.
	h.pushToGroup(group.User(original.SenderID), OutgoingEvent{Type: EventStatusUpdated, Payload: StatusPayload{
		MessageID: original.ID,
		ChatID:    original.ChatID,
		UserID:    c.userID,
		State:     ev.State,
	}})
}

func (h *Hub) handleAddReaction(ctx context.Context, c *Client, ev IncomingEvent) {
	if ev.MessageID == "" || ev.Reaction == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	original, err := h.pipeline.Message(ctx, ev.MessageID)
	if err != nil {
		return
	}

	if _, err := h.reactions.Add(ctx, ev.MessageID, c.userID, ev.Reaction); err != nil {
		logger.Errorf("ws add reaction %s: %v", ev.MessageID, err)
		return
	}

	h.pushToGroup(group.Chat(original.ChatID), OutgoingEvent{Type: EventReactionAdded, Payload: ReactionPayload{
		MessageID: original.ID,
		ChatID:    original.ChatID,
		UserID:    c.userID,
		Reaction:  ev.Reaction,
	}})
}

func (h *Hub) handleRemoveReaction(ctx context.Context, c *Client, ev IncomingEvent) {
	if ev.MessageID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	original, err := h.pipeline.Message(ctx, ev.MessageID)
	if err != nil {
		return
	}

	if err := h.reactions.Remove(ctx, ev.MessageID, c.userID); err != nil {
		logger.Errorf("ws remove reaction %s: %v", ev.MessageID, err)
		return
	}

	h.pushToGroup(group.Chat(original.ChatID), OutgoingEvent{Type: EventReactionGone, Payload: ReactionPayload{
		MessageID: original.ID,
		ChatID:    original.ChatID,
		UserID:    c.userID,
	}})
}

func (h *Hub) handleJoinChat(ctx context.Context, c *Client, ev IncomingEvent) {
	if ev.ChatID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	isMember, err := h.pipeline.IsParticipant(ctx, ev.ChatID, c.userID)
	if err != nil {
		logger.Errorf("ws join chat=%s user=%s: %v", ev.ChatID, c.userID, err)
		h.sendError(c, "internal error")
		return
	}
	if !isMember {
		h.sendError(c, "not a participant")
		return
	}
	h.tracker.JoinGroup(c.id, group.Chat(ev.ChatID))
}

func (h *Hub) handleLeaveChat(c *Client, ev IncomingEvent) {
	if ev.ChatID == "" {
		return
	}
	h.tracker.LeaveGroup(c.id, group.Chat(ev.ChatID))
}

func (h *Hub) handleSendNotification(ctx context.Context, c *Client, ev IncomingEvent) {
	if ev.UserID == "" || ev.Text == "" {
		h.sendError(c, "user_id and text required")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	n, err := h.notifier.Create(ctx, ev.UserID, ev.Text)
	if err != nil {
		logger.Errorf("ws notification for user=%s: %v", ev.UserID, err)
		h.sendError(c, "failed to create notification")
		return
	}

	h.pushToGroup(group.Notifications(n.UserID), OutgoingEvent{Type: EventNotification, Payload: n})
}

func (h *Hub) handleTyping(c *Client, ev IncomingEvent) {
	if ev.ChatID == "" {
		return
	}
	h.pushToGroupExcept(group.Chat(ev.ChatID), c.userID, OutgoingEvent{
		Type:    EventTyping,
		Payload: TypingPayload{ChatID: ev.ChatID, UserID: c.userID},
	})
}

func (h *Hub) handleTouch(ctx context.Context, c *Client) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := h.tracker.Touch(ctx, c.userID); err != nil {
		logger.Errorf("ws touch user=%s: %v", c.userID, err)
	}
}

// pushToGroup delivers the event to every live subscriber of the group.
func (h *Hub) pushToGroup(groupName string, ev OutgoingEvent) {
	h.pushToGroupExcept(groupName, "", ev)
}

// pushToGroupExcept delivers to every subscriber except connections owned by
// skipUserID (used for typing indicators).
func (h *Hub) pushToGroupExcept(groupName, skipUserID string, ev OutgoingEvent) {
	connIDs := h.tracker.Subscribers(groupName)
	if len(connIDs) == 0 {
		return
	}
	h.mu.RLock()
	targets := make([]*Client, 0, len(connIDs))
	for _, id := range connIDs {
		c, ok := h.conns[id]
		if !ok {
			continue
		}
		if skipUserID != "" && c.userID == skipUserID {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.sendToClient(c, ev)
	}
}

// broadcastAll pushes a presence event to every live connection.
func (h *Hub) broadcastAll(ev OutgoingEvent) {
	h.mu.RLock()
	targets := make([]*Client, 0, h.total)
	for _, c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.sendToClient(c, ev)
	}
}

func (h *Hub) sendToClient(c *Client, ev OutgoingEvent) {
	select {
	case c.send <- ev:
		metrics.PushesDelivered.Inc()
	case <-c.done:
	default:
		// Backpressure: send buffer full, close slow client.
		metrics.PushesDropped.Inc()
		logger.Errorf("ws send buffer full, closing slow client user=%s", c.userID)
		c.Close()
	}
}

func (h *Hub) sendError(c *Client, msg string) {
	h.sendToClient(c, OutgoingEvent{Type: EventError, Payload: msg})
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
