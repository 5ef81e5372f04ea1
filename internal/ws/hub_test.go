package ws

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatrelay/internal/model"
	"github.com/chatrelay/internal/presence"
	"github.com/chatrelay/internal/service"
	"github.com/chatrelay/internal/store/memory"
)

// testEnv wires a hub over the in-process gateway. Clients have no real
// socket; events land in their send buffers where tests can read them.
type testEnv struct {
	hub *Hub
	gw  *memory.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gw := memory.New()
	tracker := presence.NewTracker(gw)
	pipeline := service.NewMessagePipeline(gw, gw)
	statuses := service.NewStatusTracker(gw)
	reactions := service.NewReactionManager(gw)
	notifier := service.NewNotificationDispatcher(gw)
	hub := NewHub(tracker, pipeline, statuses, reactions, notifier, 100)
	return &testEnv{hub: hub, gw: gw}
}

func (e *testEnv) connect(t *testing.T, connID, userID string) *Client {
	t.Helper()
	c := NewClient(e.hub, nil, connID, userID)
	e.hub.addClient(c)
	return c
}

func (e *testEnv) seedChat(t *testing.T, chatType model.ChatType, members ...string) *model.Chat {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	chat := &model.Chat{ID: "chat1", ChatType: chatType, CreatedBy: members[0], CreatedAt: now}
	require.NoError(t, e.gw.CreateChat(ctx, chat))
	for _, uid := range members {
		require.NoError(t, e.gw.AddParticipant(ctx, &model.Participant{
			ChatID: chat.ID, UserID: uid, Role: model.RoleParticipant, JoinedAt: now,
		}))
	}
	return chat
}

func drain(c *Client) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

func recv(t *testing.T, c *Client) OutgoingEvent {
	t.Helper()
	select {
	case ev := <-c.send:
		return ev
	default:
		t.Fatal("expected an event in the send buffer")
		return OutgoingEvent{}
	}
}

func assertEmpty(t *testing.T, c *Client) {
	t.Helper()
	select {
	case ev := <-c.send:
		t.Fatalf("unexpected event %q in send buffer", ev.Type)
	default:
	}
}

func TestConnectBroadcastsOnlinePresence(t *testing.T) {
	env := newTestEnv(t)

	alice := env.connect(t, "c1", "alice")
	drain(alice)

	env.connect(t, "c2", "bob")
	ev := recv(t, alice)
	assert.Equal(t, EventUserOnline, ev.Type)
	payload, ok := ev.Payload.(PresencePayload)
	require.True(t, ok)
	assert.Equal(t, "bob", payload.UserID)
	assert.True(t, payload.Online)
}

func TestDisconnectBroadcastsOfflineOnlyWhenLastConnectionCloses(t *testing.T) {
	env := newTestEnv(t)

	alice := env.connect(t, "c1", "alice")
	bob1 := env.connect(t, "c2", "bob")
	bob2 := env.connect(t, "c3", "bob")
	drain(alice)

	env.hub.removeClient(bob1)
	assertEmpty(t, alice)

	env.hub.removeClient(bob2)
	ev := recv(t, alice)
	assert.Equal(t, EventUserOffline, ev.Type)
	payload := ev.Payload.(PresencePayload)
	assert.Equal(t, "bob", payload.UserID)
	assert.False(t, payload.Online)
}

func TestSendMessageFansOutToAudience(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	chat := env.seedChat(t, model.ChatTypePrivate, "alice", "bob")

	alice := env.connect(t, "c1", "alice")
	bob := env.connect(t, "c2", "bob")
	mallory := env.connect(t, "c3", "mallory")
	drain(alice)
	drain(bob)
	drain(mallory)

	env.hub.HandleEvent(ctx, alice, IncomingEvent{
		Type: EventSendMessage, ChatID: chat.ID, RecipientID: "bob", Text: "hi",
	})

	for _, c := range []*Client{alice, bob} {
		ev := recv(t, c)
		assert.Equal(t, EventNewMessage, ev.Type)
		m, ok := ev.Payload.(*model.Message)
		require.True(t, ok)
		assert.Equal(t, "hi", m.Text)
		assert.Equal(t, "alice", m.SenderID)
	}
	assertEmpty(t, mallory)
}

func TestSendMessageErrors(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	chat := env.seedChat(t, model.ChatTypePrivate, "alice", "bob")

	mallory := env.connect(t, "c1", "mallory")
	drain(mallory)

	t.Run("NotParticipant", func(t *testing.T) {
		env.hub.HandleEvent(ctx, mallory, IncomingEvent{
			Type: EventSendMessage, ChatID: chat.ID, Text: "hi",
		})
		ev := recv(t, mallory)
		assert.Equal(t, EventError, ev.Type)
		assert.Equal(t, "not a participant", ev.Payload)
	})

	t.Run("UnknownChat", func(t *testing.T) {
		env.hub.HandleEvent(ctx, mallory, IncomingEvent{
			Type: EventSendMessage, ChatID: "nope", Text: "hi",
		})
		ev := recv(t, mallory)
		assert.Equal(t, EventError, ev.Type)
		assert.Equal(t, "chat not found", ev.Payload)
	})

	t.Run("MissingFields", func(t *testing.T) {
		env.hub.HandleEvent(ctx, mallory, IncomingEvent{Type: EventSendMessage})
		ev := recv(t, mallory)
		assert.Equal(t, EventError, ev.Type)
	})
}

func TestStatusUpdateGoesToSender(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	chat := env.seedChat(t, model.ChatTypePrivate, "alice", "bob")

	alice := env.connect(t, "c1", "alice")
	bob := env.connect(t, "c2", "bob")
	drain(alice)
	drain(bob)

	env.hub.HandleEvent(ctx, alice, IncomingEvent{
		Type: EventSendMessage, ChatID: chat.ID, RecipientID: "bob", Text: "hi",
	})
	newMsg := recv(t, alice)
	m := newMsg.Payload.(*model.Message)
	drain(bob)

	env.hub.HandleEvent(ctx, bob, IncomingEvent{
		Type: EventUpdateStatus, MessageID: m.ID, State: model.StateRead,
	})

	ev := recv(t, alice)
	assert.Equal(t, EventStatusUpdated, ev.Type)
	payload := ev.Payload.(StatusPayload)
	assert.Equal(t, m.ID, payload.MessageID)
	assert.Equal(t, "bob", payload.UserID)
	assert.Equal(t, model.StateRead, payload.State)

	// The reader gets no echo of their own acknowledgement.
	assertEmpty(t, bob)
}

func TestReactionFanOutToChatGroupSubscribers(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	chat := env.seedChat(t, model.ChatTypeGroup, "alice", "bob", "carol")

	alice := env.connect(t, "c1", "alice")
	bob := env.connect(t, "c2", "bob")
	carol := env.connect(t, "c3", "carol")

	// Only alice and bob have the chat open.
	env.hub.HandleEvent(ctx, alice, IncomingEvent{Type: EventJoinChat, ChatID: chat.ID})
	env.hub.HandleEvent(ctx, bob, IncomingEvent{Type: EventJoinChat, ChatID: chat.ID})
	drain(alice)
	drain(bob)
	drain(carol)

	env.hub.HandleEvent(ctx, alice, IncomingEvent{
		Type: EventSendMessage, ChatID: chat.ID, Text: "react to this",
	})
	ev := recv(t, alice)
	require.Equal(t, EventNewMessage, ev.Type)
	m := ev.Payload.(*model.Message)
	drain(bob)
	drain(carol)

	env.hub.HandleEvent(ctx, bob, IncomingEvent{
		Type: EventAddReaction, MessageID: m.ID, Reaction: "👍",
	})

	for _, c := range []*Client{alice, bob} {
		ev := recv(t, c)
		assert.Equal(t, EventReactionAdded, ev.Type)
		payload := ev.Payload.(ReactionPayload)
		assert.Equal(t, "👍", payload.Reaction)
		assert.Equal(t, "bob", payload.UserID)
	}
	assertEmpty(t, carol)

	env.hub.HandleEvent(ctx, bob, IncomingEvent{
		Type: EventRemoveReaction, MessageID: m.ID,
	})
	for _, c := range []*Client{alice, bob} {
		ev := recv(t, c)
		assert.Equal(t, EventReactionGone, ev.Type)
	}
	assertEmpty(t, carol)
}

func TestJoinChatRequiresMembership(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	chat := env.seedChat(t, model.ChatTypeGroup, "alice", "bob")

	mallory := env.connect(t, "c1", "mallory")
	drain(mallory)

	env.hub.HandleEvent(ctx, mallory, IncomingEvent{Type: EventJoinChat, ChatID: chat.ID})
	ev := recv(t, mallory)
	assert.Equal(t, EventError, ev.Type)
	assert.Equal(t, "not a participant", ev.Payload)
}

func TestEditAndDeletePropagation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	chat := env.seedChat(t, model.ChatTypePrivate, "alice", "bob")

	alice := env.connect(t, "c1", "alice")
	bob := env.connect(t, "c2", "bob")
	drain(alice)
	drain(bob)

	env.hub.HandleEvent(ctx, alice, IncomingEvent{
		Type: EventSendMessage, ChatID: chat.ID, RecipientID: "bob", Text: "original",
	})
	m := recv(t, alice).Payload.(*model.Message)
	drain(bob)

	t.Run("EditBySomeoneElseRejected", func(t *testing.T) {
		env.hub.HandleEvent(ctx, bob, IncomingEvent{
			Type: EventEditMessage, MessageID: m.ID, ChatID: chat.ID, Text: "hijacked",
		})
		ev := recv(t, bob)
		assert.Equal(t, EventError, ev.Type)
		assertEmpty(t, alice)
	})

	t.Run("EditBySender", func(t *testing.T) {
		env.hub.HandleEvent(ctx, alice, IncomingEvent{
			Type: EventEditMessage, MessageID: m.ID, ChatID: chat.ID, Text: "fixed",
		})
		for _, c := range []*Client{alice, bob} {
			ev := recv(t, c)
			assert.Equal(t, EventMessageEdited, ev.Type)
			payload := ev.Payload.(MessageEditedPayload)
			assert.Equal(t, "fixed", payload.Text)
		}
	})

	t.Run("DeleteBySender", func(t *testing.T) {
		env.hub.HandleEvent(ctx, alice, IncomingEvent{
			Type: EventDeleteMessage, MessageID: m.ID,
		})
		for _, c := range []*Client{alice, bob} {
			ev := recv(t, c)
			assert.Equal(t, EventMessageDeleted, ev.Type)
			payload := ev.Payload.(MessageDeletedPayload)
			assert.Equal(t, m.ID, payload.MessageID)
		}
	})

	t.Run("DeleteAgainIsSilent", func(t *testing.T) {
		env.hub.HandleEvent(ctx, alice, IncomingEvent{
			Type: EventDeleteMessage, MessageID: m.ID,
		})
		assertEmpty(t, alice)
		assertEmpty(t, bob)
	})
}

func TestNotificationDeliveredToRecipientChannel(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	alice := env.connect(t, "c1", "alice")
	bob := env.connect(t, "c2", "bob")
	drain(alice)
	drain(bob)

	env.hub.HandleEvent(ctx, alice, IncomingEvent{
		Type: EventSendNotification, UserID: "bob", Text: "meeting in 5",
	})

	ev := recv(t, bob)
	assert.Equal(t, EventNotification, ev.Type)
	n, ok := ev.Payload.(*model.Notification)
	require.True(t, ok)
	assert.Equal(t, "bob", n.UserID)
	assert.Equal(t, "meeting in 5", n.Text)
	assertEmpty(t, alice)

	// Offline recipients still get the notification persisted.
	env.hub.HandleEvent(ctx, alice, IncomingEvent{
		Type: EventSendNotification, UserID: "offline-user", Text: "ping",
	})
	list, err := env.gw.UserNotifications(ctx, "offline-user")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestTypingSkipsAuthor(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	chat := env.seedChat(t, model.ChatTypeGroup, "alice", "bob")

	alice := env.connect(t, "c1", "alice")
	bob := env.connect(t, "c2", "bob")
	env.hub.HandleEvent(ctx, alice, IncomingEvent{Type: EventJoinChat, ChatID: chat.ID})
	env.hub.HandleEvent(ctx, bob, IncomingEvent{Type: EventJoinChat, ChatID: chat.ID})
	drain(alice)
	drain(bob)

	env.hub.HandleEvent(ctx, alice, IncomingEvent{Type: EventTyping, ChatID: chat.ID})

	ev := recv(t, bob)
	assert.Equal(t, EventTyping, ev.Type)
	payload := ev.Payload.(TypingPayload)
	assert.Equal(t, "alice", payload.UserID)
	assertEmpty(t, alice)
}

func TestUnknownEventType(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.connect(t, "c1", "alice")
	drain(alice)

	env.hub.HandleEvent(ctx, alice, IncomingEvent{Type: "rocket_launch"})
	ev := recv(t, alice)
	assert.Equal(t, EventError, ev.Type)
}
