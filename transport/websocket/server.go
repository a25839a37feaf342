package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/tictactoe-relay/internal/usecase"
)

const shutdownTimeout = 5 * time.Second

type gateway interface {
	Register(conn usecase.Connection)
	Unregister(connID string)
	Handle(ctx context.Context, connID string, data []byte) error
}

type Server struct {
	logger   *slog.Logger
	gateway  gateway
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*client
}

func New(logger *slog.Logger, gateway gateway) *Server {
	return &Server{
		logger:  logger.With("component", "websocket"),
		gateway: gateway,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
		clients: make(map[string]*client),
	}
}

// Start - serves /ws on port until ctx is cancelled.
func (that *Server) Start(ctx context.Context, port string) error {
	log := that.logger.With("method", "Start")

	mux := http.NewServeMux()
	mux.Handle("/ws", that.Handler(ctx))

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		that.closeClients()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to shut down WebSocket server", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Handler upgrades requests and runs a client per connection. ctx is passed
// to every message the client handles.
func (that *Server) Handler(ctx context.Context) http.HandlerFunc {
	return func(writer http.ResponseWriter, req *http.Request) {
		that.upgradeToWebSocket(ctx, writer, req)
	}
}

func (that *Server) upgradeToWebSocket(ctx context.Context, writer http.ResponseWriter, req *http.Request) {
	log := that.logger.With("method", "upgradeToWebSocket")

	conn, err := that.upgrader.Upgrade(writer, req, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}

	c := newClient(uuid.New().String(), conn, that.logger)

	that.track(c)

	go c.writePump()

	that.gateway.Register(c)

	log.Info("WebSocket connection established", "connID", c.ID(), "remote", req.RemoteAddr)

	go func() {
		defer that.untrack(c.ID())
		c.readPump(ctx, that.gateway)
	}()
}

func (that *Server) track(c *client) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.clients[c.ID()] = c
}

func (that *Server) untrack(id string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	delete(that.clients, id)
}

func (that *Server) closeClients() {
	that.mu.Lock()
	defer that.mu.Unlock()

	for _, c := range that.clients {
		_ = c.Close()
	}
}
