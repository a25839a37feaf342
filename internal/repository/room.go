package repository

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rocketscienceinc/tictactoe-relay/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-relay/internal/entity"
	"github.com/rocketscienceinc/tictactoe-relay/internal/pkg"
)

const maxIDAttempts = 10

// EvictionPolicy holds the thresholds of the stale-room sweep.
type EvictionPolicy struct {
	EmptyGrace        time.Duration
	InactivityCeiling time.Duration
	MaxAge            time.Duration
	SweepInterval     time.Duration
}

type RegistryOption func(*RoomRegistry)

func WithIDGenerator(generate func() (string, error)) RegistryOption {
	return func(registry *RoomRegistry) {
		registry.generateID = generate
	}
}

func WithRegistryClock(clock func() time.Time) RegistryOption {
	return func(registry *RoomRegistry) {
		registry.clock = clock
	}
}

// WithRoomOptions sets the options every new room is created with.
func WithRoomOptions(opts ...entity.RoomOption) RegistryOption {
	return func(registry *RoomRegistry) {
		registry.roomOpts = append(registry.roomOpts, opts...)
	}
}

// RoomRegistry is the only owner of the room map: it creates, looks up and
// evicts rooms.
type RoomRegistry struct {
	logger *slog.Logger
	policy EvictionPolicy

	mu    sync.RWMutex
	rooms map[string]*entity.Room

	generateID func() (string, error)
	clock      func() time.Time
	roomOpts   []entity.RoomOption

	hookMu  sync.RWMutex
	onEvict func(room *entity.Room)
}

func NewRoomRegistry(logger *slog.Logger, policy EvictionPolicy, opts ...RegistryOption) *RoomRegistry {
	registry := &RoomRegistry{
		logger:     logger.With("component", "room_registry"),
		policy:     policy,
		rooms:      make(map[string]*entity.Room),
		generateID: pkg.GenerateRoomID,
		clock:      time.Now,
	}

	for _, opt := range opts {
		opt(registry)
	}

	return registry
}

// OnEvict registers a callback invoked for every room removed by a sweep.
// The room is already unreachable through GetRoom when fn runs.
func (that *RoomRegistry) OnEvict(fn func(room *entity.Room)) {
	that.hookMu.Lock()
	defer that.hookMu.Unlock()

	that.onEvict = fn
}

// CreateRoom allocates a fresh room id, seats host and registers the room.
func (that *RoomRegistry) CreateRoom(host entity.Player) (*entity.Room, entity.Player, error) {
	log := that.logger.With("method", "CreateRoom")

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := that.generateID()
		if err != nil {
			return nil, entity.Player{}, fmt.Errorf("failed to generate room id: %w", err)
		}

		room := entity.NewRoom(id, that.roomOpts...)

		seated, _, err := room.AddPlayer(host)
		if err != nil {
			return nil, entity.Player{}, fmt.Errorf("failed to seat host: %w", err)
		}

		that.mu.Lock()
		if _, taken := that.rooms[id]; taken {
			that.mu.Unlock()
			log.Warn("room id collision, regenerating", "roomID", id, "attempt", attempt+1)
			continue
		}
		that.rooms[id] = room
		that.mu.Unlock()

		log.Info("room created", "roomID", id, "host", seated.Name)

		return room, seated, nil
	}

	return nil, entity.Player{}, apperror.ErrRoomIDExhausted
}

func (that *RoomRegistry) GetRoom(id string) (*entity.Room, error) {
	that.mu.RLock()
	room, ok := that.rooms[normalizeID(id)]
	that.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", apperror.ErrRoomNotFound, id)
	}

	return room, nil
}

// List returns the debug view of every room, oldest first.
func (that *RoomRegistry) List() []entity.RoomInfo {
	rooms := that.snapshot()

	infos := make([]entity.RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		infos = append(infos, room.Info())
	}

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})

	return infos
}

// Stats returns the number of rooms and seated players.
func (that *RoomRegistry) Stats() (int, int) {
	rooms := that.snapshot()

	players := 0
	for _, room := range rooms {
		players += room.PlayerCount()
	}

	return len(rooms), players
}

// Sweep evicts every stale room and returns the evicted ids.
func (that *RoomRegistry) Sweep(now time.Time) []string {
	log := that.logger.With("method", "Sweep")

	var stale []*entity.Room

	that.mu.Lock()
	for id, room := range that.rooms {
		if room.IsStale(now, that.policy.EmptyGrace, that.policy.InactivityCeiling, that.policy.MaxAge) {
			delete(that.rooms, id)
			stale = append(stale, room)
		}
	}
	remaining := len(that.rooms)
	that.mu.Unlock()

	sort.Slice(stale, func(i, j int) bool {
		return stale[i].ID < stale[j].ID
	})

	that.hookMu.RLock()
	onEvict := that.onEvict
	that.hookMu.RUnlock()

	evicted := make([]string, 0, len(stale))
	for _, room := range stale {
		log.Info("room evicted", "roomID", room.ID)

		if onEvict != nil {
			onEvict(room)
		}

		evicted = append(evicted, room.ID)
	}

	log.Debug("sweep finished", "evicted", len(evicted), "remaining", remaining)

	return evicted
}

// Run sweeps on every policy interval until ctx is cancelled.
func (that *RoomRegistry) Run(ctx context.Context) {
	log := that.logger.With("method", "Run")

	ticker := time.NewTicker(that.policy.SweepInterval)
	defer ticker.Stop()

	log.Info("room sweep started", "interval", that.policy.SweepInterval)

	for {
		select {
		case <-ctx.Done():
			log.Info("room sweep stopped")
			return
		case <-ticker.C:
			that.Sweep(that.clock())
		}
	}
}

func (that *RoomRegistry) snapshot() []*entity.Room {
	that.mu.RLock()
	defer that.mu.RUnlock()

	rooms := make([]*entity.Room, 0, len(that.rooms))
	for _, room := range that.rooms {
		rooms = append(rooms, room)
	}

	return rooms
}

func normalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
