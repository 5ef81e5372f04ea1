package group

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructors(t *testing.T) {
	assert.Equal(t, "user:42", User("42"))
	assert.Equal(t, "chat:abc", Chat("abc"))
	assert.Equal(t, "notifications:42", Notifications("42"))
}

func TestValid(t *testing.T) {
	t.Run("WellFormed", func(t *testing.T) {
		assert.True(t, Valid(User("42")))
		assert.True(t, Valid(Chat("room-1")))
		assert.True(t, Valid(Notifications("u9")))
	})

	t.Run("Malformed", func(t *testing.T) {
		assert.False(t, Valid(""))
		assert.False(t, Valid("user:"))
		assert.False(t, Valid("42"))
		assert.False(t, Valid("session:42"))
	})
}
