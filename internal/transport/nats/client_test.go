package nats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubject(t *testing.T) {
	t.Run("Room events go to a per-room subject", func(t *testing.T) {
		assert.Equal(t, "tictactoe.events.ABC123", Subject("tictactoe.events", "ABC123"))
	})

	t.Run("Events without a room use the prefix", func(t *testing.T) {
		assert.Equal(t, "tictactoe.events", Subject("tictactoe.events", ""))
	})
}
