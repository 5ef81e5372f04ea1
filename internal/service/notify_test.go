package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatrelay/internal/store/memory"
)

func TestNotificationCreateAndList(t *testing.T) {
	ctx := context.Background()
	d := NewNotificationDispatcher(memory.New())

	n, err := d.Create(ctx, "bob", "you were mentioned")
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, "bob", n.UserID)
	assert.False(t, n.Read)

	_, err = d.Create(ctx, "bob", "second")
	require.NoError(t, err)
	_, err = d.Create(ctx, "carol", "other user")
	require.NoError(t, err)

	list, err := d.ListFor(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	other, err := d.ListFor(ctx, "carol")
	require.NoError(t, err)
	assert.Len(t, other, 1)

	empty, err := d.ListFor(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
