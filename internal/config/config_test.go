package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad(t *testing.T) {
	t.Run("Defaults fill what the file omits", func(t *testing.T) {
		// Given: a file with only the log level
		path := writeConfig(t, "log-level: debug\n")

		// When: it is loaded
		config, err := Load(path)

		// Then: every other value has its default
		require.NoError(t, err)
		assert.Equal(t, "debug", config.LogLevel)
		assert.Equal(t, "9090", config.HTTPPort)
		assert.Equal(t, "7000", config.SocketPort)
		assert.Equal(t, 30*time.Second, config.Room.DisconnectGrace)
		assert.Equal(t, 5*time.Minute, config.Room.EmptyGrace)
		assert.Equal(t, time.Hour, config.Room.InactivityCeiling)
		assert.Equal(t, 24*time.Hour, config.Room.MaxAge)
		assert.Equal(t, 10*time.Minute, config.Room.SweepInterval)
		assert.Equal(t, 50, config.Room.ChatHistory)
		assert.Equal(t, EventsDriverNone, config.Events.Driver)
		assert.Equal(t, "localhost:6379", config.Redis.GetRedisAddr())
	})

	t.Run("File values override defaults", func(t *testing.T) {
		path := writeConfig(t, `
room:
  disconnect-grace: 10s
  sweep-interval: 1m
events:
  driver: nats
nats:
  subject: relay.rooms
`)

		config, err := Load(path)

		require.NoError(t, err)
		assert.Equal(t, 10*time.Second, config.Room.DisconnectGrace)
		assert.Equal(t, time.Minute, config.Room.SweepInterval)
		assert.Equal(t, EventsDriverNATS, config.Events.Driver)
		assert.Equal(t, "relay.rooms", config.NATS.Subject)
	})

	t.Run("Error on unknown events driver", func(t *testing.T) {
		path := writeConfig(t, "events:\n  driver: kafka\n")

		_, err := Load(path)

		assert.ErrorContains(t, err, "unknown events driver")
	})

	t.Run("Error on chat history above the room cap", func(t *testing.T) {
		path := writeConfig(t, "room:\n  chat-history: 500\n")

		_, err := Load(path)

		assert.ErrorContains(t, err, "room chat history")
	})

	t.Run("Error on missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))

		assert.Error(t, err)
	})

	t.Run("MustLoad panics on a bad file", func(t *testing.T) {
		path := writeConfig(t, "events:\n  driver: kafka\n")

		assert.Panics(t, func() {
			MustLoad(path)
		})
	})
}
