package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/rocketscienceinc/tictactoe-relay/internal/entity"
)

const shutdownTimeout = 5 * time.Second

type roomRegistry interface {
	GetRoom(id string) (*entity.Room, error)
	List() []entity.RoomInfo
	Stats() (int, int)
}

type connectionCounter interface {
	ConnectionCount() int
}

// Server is the diagnostic HTTP surface of the relay.
type Server struct {
	logger      *slog.Logger
	rooms       roomRegistry
	connections connectionCounter
	clock       func() time.Time

	router *mux.Router
}

func New(logger *slog.Logger, rooms roomRegistry, connections connectionCounter) *Server {
	server := &Server{
		logger:      logger.With("component", "rest"),
		rooms:       rooms,
		connections: connections,
		clock:       time.Now,
		router:      mux.NewRouter(),
	}

	server.setupRoutes()

	return server
}

func (that *Server) setupRoutes() {
	that.router.HandleFunc("/ping", that.handlePing).Methods(http.MethodGet)
	that.router.HandleFunc("/health", that.handleHealth).Methods(http.MethodGet)
	that.router.HandleFunc("/test", that.handleSelfTest).Methods(http.MethodGet)
	that.router.HandleFunc("/rooms", that.handleListRooms).Methods(http.MethodGet)
	that.router.HandleFunc("/rooms/{id}", that.handleGetRoom).Methods(http.MethodGet)
}

func (that *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	that.router.ServeHTTP(w, r)
}

// Start - serves the routes on port until ctx is cancelled.
func (that *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      that,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			that.logger.Error("failed to shut down HTTP server", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

func (that *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		that.logger.Error("failed to encode response", "error", err)
	}
}

func (that *Server) respondError(w http.ResponseWriter, status int, message string) {
	that.respondJSON(w, status, map[string]string{"error": message})
}
