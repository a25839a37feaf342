package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/rocketscienceinc/tictactoe-relay/internal/entity"
)

type Publisher struct {
	conn    *nats.Conn
	subject string
}

func New(logger *slog.Logger, url, subject string) (*Publisher, error) {
	log := logger.With("component", "nats_publisher")

	conn, err := nats.Connect(url,
		nats.Name("tictactoe-relay"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("disconnected from NATS", "error", err)
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			log.Info("reconnected to NATS", "url", conn.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Publisher{
		conn:    conn,
		subject: subject,
	}, nil
}

// Publish - sends the event as JSON on the subject of its room,
// "<subject>.<roomID>".
func (that *Publisher) Publish(_ context.Context, event entity.RoomEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal room event: %w", err)
	}

	if err = that.conn.Publish(Subject(that.subject, event.RoomID), data); err != nil {
		return fmt.Errorf("failed to publish room event to NATS: %w", err)
	}

	return nil
}

func (that *Publisher) Close() error {
	if err := that.conn.Drain(); err != nil {
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}

	return nil
}

func Subject(prefix, roomID string) string {
	if roomID == "" {
		return prefix
	}

	return prefix + "." + roomID
}
