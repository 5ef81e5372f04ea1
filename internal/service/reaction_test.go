package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatrelay/internal/store/memory"
)

func TestReactionAddAndList(t *testing.T) {
	ctx := context.Background()
	m := NewReactionManager(memory.New())

	r, err := m.Add(ctx, "m1", "bob", "👍")
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, "👍", r.Reaction)

	_, err = m.Add(ctx, "m1", "carol", "❤️")
	require.NoError(t, err)

	list, err := m.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestReactionReplacesPrevious(t *testing.T) {
	ctx := context.Background()
	m := NewReactionManager(memory.New())

	_, err := m.Add(ctx, "m1", "bob", "👍")
	require.NoError(t, err)
	_, err = m.Add(ctx, "m1", "bob", "❤️")
	require.NoError(t, err)

	list, err := m.Get(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "❤️", list[0].Reaction)
}

func TestReactionRemoveIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewReactionManager(memory.New())

	_, err := m.Add(ctx, "m1", "bob", "👍")
	require.NoError(t, err)

	require.NoError(t, m.Remove(ctx, "m1", "bob"))
	list, err := m.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Empty(t, list)

	// Removing again, or removing something never added, is a no-op.
	assert.NoError(t, m.Remove(ctx, "m1", "bob"))
	assert.NoError(t, m.Remove(ctx, "m2", "carol"))
}
