package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rocketscienceinc/tictactoe-relay/internal/entity"
)

const (
	defaultBufferSize = 256
	publishTimeout    = 5 * time.Second
)

type publisher interface {
	Publish(ctx context.Context, event entity.RoomEvent) error
	Close() error
}

// Notifier hands room events to a publisher from a single worker so that
// callers never wait on the network.
type Notifier struct {
	logger    *slog.Logger
	publisher publisher

	events chan entity.RoomEvent

	mu     sync.RWMutex
	closed bool

	done chan struct{}
}

// NewNotifier returns a notifier. A nil publisher discards every event.
func NewNotifier(logger *slog.Logger, publisher publisher, bufferSize int) *Notifier {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}

	return &Notifier{
		logger:    logger.With("component", "notifier"),
		publisher: publisher,
		events:    make(chan entity.RoomEvent, bufferSize),
		done:      make(chan struct{}),
	}
}

// Notify enqueues event without blocking. The event is dropped when the
// queue is full or the notifier is closed.
func (that *Notifier) Notify(event entity.RoomEvent) {
	if that.publisher == nil {
		return
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	that.mu.RLock()
	defer that.mu.RUnlock()

	if that.closed {
		return
	}

	select {
	case that.events <- event:
	default:
		that.logger.Warn("event queue full, dropping event", "type", event.Type, "roomID", event.RoomID)
	}
}

// Run publishes queued events until Close is called, then drains the queue.
func (that *Notifier) Run(ctx context.Context) {
	defer close(that.done)

	log := that.logger.With("method", "Run")

	if that.publisher == nil {
		log.Info("no event publisher configured")
		return
	}

	for event := range that.events {
		that.publish(ctx, event)
	}

	log.Info("notifier stopped")
}

// Close stops accepting events, waits for the worker to drain the queue and
// closes the publisher.
func (that *Notifier) Close() error {
	that.mu.Lock()
	if that.closed {
		that.mu.Unlock()
		return nil
	}
	that.closed = true
	close(that.events)
	that.mu.Unlock()

	if that.publisher == nil {
		return nil
	}

	<-that.done

	return that.publisher.Close()
}

func (that *Notifier) publish(ctx context.Context, event entity.RoomEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := that.publisher.Publish(ctx, event); err != nil {
		that.logger.Error("failed to publish event", "type", event.Type, "roomID", event.RoomID, "error", err)
	}
}
