package websocket

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

var (
	ErrSendBufferFull = errors.New("send buffer full")
	ErrClientClosed   = errors.New("client closed")
)

// client is one upgraded connection. The read pump feeds the gateway; the
// write pump is the only goroutine writing to the socket.
type client struct {
	id     string
	conn   *websocket.Conn
	logger *slog.Logger

	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func newClient(id string, conn *websocket.Conn, logger *slog.Logger) *client {
	return &client{
		id:     id,
		conn:   conn,
		logger: logger.With("connID", id),
		send:   make(chan []byte, sendBufferSize),
	}
}

func (that *client) ID() string {
	return that.id
}

// Send queues data for the write pump without blocking.
func (that *client) Send(data []byte) error {
	that.mu.RLock()
	defer that.mu.RUnlock()

	if that.closed {
		return ErrClientClosed
	}

	select {
	case that.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close stops the write pump, which then closes the socket.
func (that *client) Close() error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if !that.closed {
		that.closed = true
		close(that.send)
	}

	return nil
}

func (that *client) readPump(ctx context.Context, gateway gateway) {
	log := that.logger.With("method", "readPump")

	defer func() {
		gateway.Unregister(that.id)
		_ = that.Close()
		_ = that.conn.Close()
	}()

	that.conn.SetReadLimit(maxMessageSize)

	if err := that.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Error("failed to set read deadline", "error", err)
		return
	}

	that.conn.SetPongHandler(func(string) error {
		return that.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := that.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("unexpected close", "error", err)
			}
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}

		if err = gateway.Handle(ctx, that.id, data); err != nil {
			log.Error("error processing message", "error", err)
		}
	}
}

func (that *client) writePump() {
	log := that.logger.With("method", "writePump")

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = that.conn.Close()
	}()

	for {
		select {
		case message, ok := <-that.send:
			if err := that.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error("failed to set write deadline", "error", err)
				return
			}

			if !ok {
				_ = that.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := that.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn("failed to write message", "error", err)
				return
			}
		case <-ticker.C:
			if err := that.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error("failed to set write deadline", "error", err)
				return
			}

			if err := that.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
