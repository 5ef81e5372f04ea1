package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeliveryStateRank(t *testing.T) {
	assert.Equal(t, 1, StateSent.Rank())
	assert.Equal(t, 2, StateDelivered.Rank())
	assert.Equal(t, 3, StateRead.Rank())
	assert.Equal(t, 0, DeliveryState("seen").Rank())
	assert.Equal(t, 0, DeliveryState("").Rank())
}

func TestDeliveryStateValid(t *testing.T) {
	for _, s := range []DeliveryState{StateSent, StateDelivered, StateRead} {
		assert.True(t, s.Valid(), string(s))
	}
	assert.False(t, DeliveryState("seen").Valid())
	assert.False(t, DeliveryState("").Valid())
}
