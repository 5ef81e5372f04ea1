package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatrelay/internal/model"
	"github.com/chatrelay/internal/store"
	"github.com/chatrelay/internal/store/memory"
)

func seedChat(t *testing.T, gw *memory.Client, chatType model.ChatType, members ...string) *model.Chat {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	chat := &model.Chat{
		ID:        "chat-" + string(chatType),
		ChatType:  chatType,
		CreatedBy: members[0],
		CreatedAt: now,
	}
	require.NoError(t, gw.CreateChat(ctx, chat))
	for i, uid := range members {
		role := model.RoleParticipant
		if i == 0 {
			role = model.RoleOwner
		}
		require.NoError(t, gw.AddParticipant(ctx, &model.Participant{
			ChatID: chat.ID, UserID: uid, Role: role, JoinedAt: now,
		}))
	}
	return chat
}

func TestSendPrivateChat(t *testing.T) {
	ctx := context.Background()
	gw := memory.New()
	chat := seedChat(t, gw, model.ChatTypePrivate, "alice", "bob")
	p := NewMessagePipeline(gw, gw)

	m, audience, err := p.Send(ctx, chat.ID, "alice", "bob", "hi", false)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, chat.ID, m.ChatID)
	assert.Equal(t, "alice", m.SenderID)
	assert.Equal(t, "bob", m.RecipientID)
	assert.ElementsMatch(t, []string{"alice", "bob"}, audience)

	stored, err := p.Message(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "hi", stored.Text)
	assert.Nil(t, stored.EditedAt)
}

func TestSendGroupChatAudienceIsAllParticipants(t *testing.T) {
	ctx := context.Background()
	gw := memory.New()
	chat := seedChat(t, gw, model.ChatTypeGroup, "alice", "bob", "carol")
	p := NewMessagePipeline(gw, gw)

	m, audience, err := p.Send(ctx, chat.ID, "bob", "", "hello all", false)
	require.NoError(t, err)
	assert.Empty(t, m.RecipientID)
	assert.ElementsMatch(t, []string{"alice", "bob", "carol"}, audience)
}

func TestSendToSelf(t *testing.T) {
	ctx := context.Background()
	gw := memory.New()
	chat := seedChat(t, gw, model.ChatTypePrivate, "alice", "bob")
	p := NewMessagePipeline(gw, gw)

	// Recipient equal to sender must not produce a duplicate in the audience.
	_, audience, err := p.Send(ctx, chat.ID, "alice", "alice", "note to self", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, audience)
}

func TestSendErrors(t *testing.T) {
	ctx := context.Background()
	gw := memory.New()
	chat := seedChat(t, gw, model.ChatTypePrivate, "alice", "bob")
	p := NewMessagePipeline(gw, gw)

	t.Run("UnknownChat", func(t *testing.T) {
		_, _, err := p.Send(ctx, "no-such-chat", "alice", "bob", "hi", false)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("Outsider", func(t *testing.T) {
		_, _, err := p.Send(ctx, chat.ID, "mallory", "bob", "hi", false)
		assert.ErrorIs(t, err, ErrNotParticipant)
	})
}

func TestUpdateMessage(t *testing.T) {
	ctx := context.Background()
	gw := memory.New()
	chat := seedChat(t, gw, model.ChatTypePrivate, "alice", "bob")
	p := NewMessagePipeline(gw, gw)

	m, _, err := p.Send(ctx, chat.ID, "alice", "bob", "hi", false)
	require.NoError(t, err)

	edited, err := p.Update(ctx, m.ID, chat.ID, "hi, edited", true)
	require.NoError(t, err)
	assert.Equal(t, "hi, edited", edited.Text)
	assert.True(t, edited.HasAttachments)
	require.NotNil(t, edited.EditedAt)

	stored, err := p.Message(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "hi, edited", stored.Text)
	require.NotNil(t, stored.EditedAt)

	t.Run("ChatMismatch", func(t *testing.T) {
		_, err := p.Update(ctx, m.ID, "another-chat", "x", false)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("UnknownMessage", func(t *testing.T) {
		_, err := p.Update(ctx, "no-such-message", chat.ID, "x", false)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestDeleteMessageIdempotent(t *testing.T) {
	ctx := context.Background()
	gw := memory.New()
	chat := seedChat(t, gw, model.ChatTypePrivate, "alice", "bob")
	p := NewMessagePipeline(gw, gw)

	m, _, err := p.Send(ctx, chat.ID, "alice", "bob", "hi", false)
	require.NoError(t, err)

	require.NoError(t, p.Delete(ctx, m.ID))
	_, err = p.Message(ctx, m.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Second delete is a no-op, not an error.
	assert.NoError(t, p.Delete(ctx, m.ID))
}

func TestChatMessagesNewestFirst(t *testing.T) {
	ctx := context.Background()
	gw := memory.New()
	chat := seedChat(t, gw, model.ChatTypeGroup, "alice", "bob")
	p := NewMessagePipeline(gw, gw)

	for _, text := range []string{"one", "two", "three"} {
		_, _, err := p.Send(ctx, chat.ID, "alice", "", text, false)
		require.NoError(t, err)
	}

	msgs, err := p.ChatMessages(ctx, chat.ID, 2, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "three", msgs[0].Text)
	assert.Equal(t, "two", msgs[1].Text)

	rest, err := p.ChatMessages(ctx, chat.ID, 10, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "one", rest[0].Text)
}
