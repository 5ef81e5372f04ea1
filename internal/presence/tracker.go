// Package presence owns the ephemeral session bindings (which connection is
// subscribed to which groups) and the durable per-user presence record. It is
// the only component that touches the binding maps; everything else goes
// through its methods.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/chatrelay/internal/group"
	"github.com/chatrelay/internal/model"
	"github.com/chatrelay/internal/store"
)

// session is the binding for one live connection.
type session struct {
	userID string
	groups map[string]struct{}
}

// Tracker maps connections to groups and counts live connections per user.
// A user is online iff their connection count is at least one, so a second
// tab's disconnect never flips a still-connected user offline.
type Tracker struct {
	mu     sync.RWMutex
	conns  map[string]*session            // connection id -> session
	groups map[string]map[string]struct{} // group name -> set of connection ids
	counts map[string]int                 // user id -> live connection count

	records store.PresenceStore
}

func NewTracker(records store.PresenceStore) *Tracker {
	return &Tracker{
		conns:   make(map[string]*session),
		groups:  make(map[string]map[string]struct{}),
		counts:  make(map[string]int),
		records: records,
	}
}

// Connect registers the connection under user:{userID}, bumps the user's
// connection count and persists the presence record as online. Connecting an
// already-known connection id is a no-op on the bindings.
func (t *Tracker) Connect(ctx context.Context, connID, userID string) (*model.PresenceRecord, error) {
	t.mu.Lock()
	if _, known := t.conns[connID]; !known {
		s := &session{userID: userID, groups: make(map[string]struct{})}
		t.conns[connID] = s
		t.joinLocked(connID, s, group.User(userID))
		t.counts[userID]++
	}
	t.mu.Unlock()

	rec := &model.PresenceRecord{UserID: userID, Online: true, LastActivity: time.Now().UTC()}
	if err := t.records.SetPresence(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Disconnect drops the connection's group memberships and decrements the
// user's connection count. The returned record reflects whether the user is
// still online through other connections. Unknown connection ids are no-ops.
func (t *Tracker) Disconnect(ctx context.Context, connID, userID string) (*model.PresenceRecord, error) {
	t.mu.Lock()
	s, known := t.conns[connID]
	if !known {
		t.mu.Unlock()
		return nil, nil
	}
	// The session's own user id wins over the caller's argument.
	userID = s.userID
	for g := range s.groups {
		t.leaveLocked(connID, g)
	}
	delete(t.conns, connID)
	t.counts[userID]--
	stillOnline := t.counts[userID] > 0
	if !stillOnline {
		delete(t.counts, userID)
	}
	t.mu.Unlock()

	rec := &model.PresenceRecord{UserID: userID, Online: stillOnline, LastActivity: time.Now().UTC()}
	if err := t.records.SetPresence(ctx, rec); err != nil {
		return rec, err
	}
	return rec, nil
}

// JoinGroup subscribes the connection to a group. Bindings only, no
// persistence. Unknown connection ids are no-ops.
func (t *Tracker) JoinGroup(connID, groupName string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, known := t.conns[connID]
	if !known {
		return
	}
	t.joinLocked(connID, s, groupName)
}

// LeaveGroup unsubscribes the connection from a group. Unknown connection ids
// and non-member connections are no-ops.
func (t *Tracker) LeaveGroup(connID, groupName string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, known := t.conns[connID]
	if !known {
		return
	}
	if _, member := s.groups[groupName]; !member {
		return
	}
	delete(s.groups, groupName)
	t.leaveLocked(connID, groupName)
}

// Subscribers returns the connection ids currently subscribed to the group.
func (t *Tracker) Subscribers(groupName string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	members := t.groups[groupName]
	if len(members) == 0 {
		return nil
	}
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids
}

// Online reports whether the user has at least one live connection.
func (t *Tracker) Online(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.counts[userID] > 0
}

// Touch updates the user's last-activity timestamp without changing the
// online flag (heartbeat).
func (t *Tracker) Touch(ctx context.Context, userID string) error {
	return t.records.TouchPresence(ctx, userID, time.Now().UTC())
}

func (t *Tracker) joinLocked(connID string, s *session, groupName string) {
	s.groups[groupName] = struct{}{}
	members, ok := t.groups[groupName]
	if !ok {
		members = make(map[string]struct{})
		t.groups[groupName] = members
	}
	members[connID] = struct{}{}
}

func (t *Tracker) leaveLocked(connID, groupName string) {
	members, ok := t.groups[groupName]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(t.groups, groupName)
	}
}
