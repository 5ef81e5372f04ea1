package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/chatrelay/internal/model"
	"github.com/chatrelay/internal/store"
)

// ReactionManager enforces the reaction policy at the component boundary:
// one active reaction per user per message. Adding a second reaction replaces
// the first.
type ReactionManager struct {
	reactions store.ReactionStore
}

func NewReactionManager(reactions store.ReactionStore) *ReactionManager {
	return &ReactionManager{reactions: reactions}
}

func (m *ReactionManager) Add(ctx context.Context, messageID, userID, reaction string) (*model.Reaction, error) {
	r := &model.Reaction{
		ID:        uuid.New().String(),
		MessageID: messageID,
		UserID:    userID,
		Reaction:  reaction,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.reactions.PutReaction(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (m *ReactionManager) Get(ctx context.Context, messageID string) ([]model.Reaction, error) {
	return m.reactions.MessageReactions(ctx, messageID)
}

// Remove deletes the caller's reaction on the message. Removing a reaction
// that does not exist is a no-op.
func (m *ReactionManager) Remove(ctx context.Context, messageID, userID string) error {
	err := m.reactions.DeleteReaction(ctx, messageID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}
