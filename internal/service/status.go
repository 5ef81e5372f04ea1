package service

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/chatrelay/internal/model"
	"github.com/chatrelay/internal/store"
)

const statusLockStripes = 64

// StatusTracker drives the per-(message, user) delivery state machine
// sent -> delivered -> read. Writes for the same pair are serialized through a
// striped lock so racing acknowledgements apply in order; the store's upsert
// additionally refuses regressions, so out-of-order confirmations converge on
// the highest state reached.
type StatusTracker struct {
	statuses store.StatusStore
	locks    [statusLockStripes]sync.Mutex
}

func NewStatusTracker(statuses store.StatusStore) *StatusTracker {
	return &StatusTracker{statuses: statuses}
}

// AddOrUpdate inserts or advances the delivery state for (messageID, userID).
// A regression attempt is accepted as a no-op, not an error: a stale
// "delivered" arriving after "read" is a benign race.
func (t *StatusTracker) AddOrUpdate(ctx context.Context, messageID, userID string, state model.DeliveryState) error {
	if !state.Valid() {
		return fmt.Errorf("status: unknown delivery state %q", state)
	}
	mu := t.lockFor(messageID, userID)
	mu.Lock()
	defer mu.Unlock()

	s := &model.MessageStatus{
		MessageID: messageID,
		UserID:    userID,
		State:     state,
		UpdatedAt: time.Now().UTC(),
	}
	return t.statuses.UpsertStatus(ctx, s)
}

// Get lists all per-user statuses of a message (read-receipt view).
func (t *StatusTracker) Get(ctx context.Context, messageID string) ([]model.MessageStatus, error) {
	return t.statuses.MessageStatuses(ctx, messageID)
}

func (t *StatusTracker) lockFor(messageID, userID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(messageID))
	h.Write([]byte{0})
	h.Write([]byte(userID))
	return &t.locks[h.Sum32()%statusLockStripes]
}
