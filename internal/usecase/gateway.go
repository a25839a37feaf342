package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rocketscienceinc/tictactoe-relay/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-relay/internal/entity"
	"github.com/rocketscienceinc/tictactoe-relay/internal/protocol"
)

const DefaultDisconnectGrace = 30 * time.Second

var ErrUnknownConnection = errors.New("unknown connection")

// Connection is a live client link. Send must not block: implementations
// queue the frame and report an error when the queue is full or closed.
type Connection interface {
	ID() string
	Send(data []byte) error
	Close() error
}

type roomRegistry interface {
	CreateRoom(host entity.Player) (*entity.Room, entity.Player, error)
	GetRoom(id string) (*entity.Room, error)
}

type notifier interface {
	Notify(event entity.RoomEvent)
}

type handlerFunc func(ctx context.Context, connID string, message *protocol.Message) error

// session is the gateway's view of one connection. An empty roomID means the
// connection is not bound to any room.
type session struct {
	conn   Connection
	roomID string
	name   string
}

type graceKey struct {
	roomID string
	name   string
}

type graceTimer struct {
	timer  *time.Timer
	connID string
}

type GatewayOption func(*Gateway)

func WithDisconnectGrace(grace time.Duration) GatewayOption {
	return func(gateway *Gateway) {
		gateway.grace = grace
	}
}

func WithNotifier(notifier notifier) GatewayOption {
	return func(gateway *Gateway) {
		gateway.notifier = notifier
	}
}

func WithGatewayClock(clock func() time.Time) GatewayOption {
	return func(gateway *Gateway) {
		gateway.clock = clock
	}
}

// Gateway maps connections to rooms and players, turns inbound messages into
// room operations and fans the results out to the room.
type Gateway struct {
	logger   *slog.Logger
	rooms    roomRegistry
	notifier notifier
	grace    time.Duration
	clock    func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session

	timersMu sync.Mutex
	timers   map[graceKey]*graceTimer

	handlers map[string]handlerFunc
}

func NewGateway(logger *slog.Logger, rooms roomRegistry, opts ...GatewayOption) *Gateway {
	gateway := &Gateway{
		logger:   logger.With("component", "gateway"),
		rooms:    rooms,
		grace:    DefaultDisconnectGrace,
		clock:    time.Now,
		sessions: make(map[string]*session),
		timers:   make(map[graceKey]*graceTimer),
	}

	for _, opt := range opts {
		opt(gateway)
	}

	gateway.handlers = map[string]handlerFunc{
		protocol.ActionCreateRoom: gateway.handleCreateRoom,
		protocol.ActionJoinRoom:   gateway.handleJoinRoom,
		protocol.ActionRejoinRoom: gateway.handleRejoinRoom,
		protocol.ActionLeaveRoom:  gateway.handleLeaveRoom,
		protocol.ActionMove:       gateway.handleMove,
		protocol.ActionRestart:    gateway.handleRestart,
		protocol.ActionChat:       gateway.handleChat,
		protocol.ActionHeartbeat:  gateway.handleHeartbeat,
	}

	return gateway
}

// Register tracks a new unbound connection and greets it.
func (that *Gateway) Register(conn Connection) {
	log := that.logger.With("method", "Register", "connID", conn.ID())

	that.mu.Lock()
	that.sessions[conn.ID()] = &session{conn: conn}
	that.mu.Unlock()

	that.send(conn.ID(), protocol.ActionConnected, protocol.ConnectedPayload{
		ConnectionID: conn.ID(),
		Timestamp:    that.clock(),
	})

	log.Info("connection registered")
}

// Unregister forgets a closed connection. A connection bound to a room keeps
// its seat for the disconnect grace; the seat is released when the timer
// fires and nobody has reclaimed it.
func (that *Gateway) Unregister(connID string) {
	log := that.logger.With("method", "Unregister", "connID", connID)

	that.mu.Lock()
	sess, ok := that.sessions[connID]
	delete(that.sessions, connID)
	that.mu.Unlock()

	if !ok {
		return
	}

	if sess.roomID == "" {
		log.Info("connection closed")
		return
	}

	that.startGrace(sess.roomID, sess.name, connID)

	log.Info("connection closed, seat held", "roomID", sess.roomID, "player", sess.name, "grace", that.grace)
}

// Handle decodes one inbound frame and dispatches it by action.
func (that *Gateway) Handle(ctx context.Context, connID string, data []byte) error {
	log := that.logger.With("method", "Handle", "connID", connID)

	if !that.isRegistered(connID) {
		return fmt.Errorf("%w: %s", ErrUnknownConnection, connID)
	}

	message, err := protocol.Decode(data)
	if err != nil {
		log.Warn("malformed message", "error", err)
		that.sendReason(connID, protocol.ActionError, protocol.ReasonInvalidPayload)
		return nil
	}

	handler, ok := that.handlers[message.Action]
	if !ok {
		log.Warn("unknown action", "action", message.Action)
		that.sendReason(connID, protocol.ActionError, protocol.ReasonUnknownAction)
		return nil
	}

	if err = handler(ctx, connID, message); err != nil {
		return fmt.Errorf("failed to handle %s: %w", message.Action, err)
	}

	return nil
}

// RoomEvicted unbinds every connection still attached to an evicted room.
func (that *Gateway) RoomEvicted(room *entity.Room) {
	log := that.logger.With("method", "RoomEvicted", "roomID", room.ID)

	room.Sequence(func() {
		var orphaned []string

		that.mu.Lock()
		for connID, sess := range that.sessions {
			if sess.roomID == room.ID {
				sess.roomID, sess.name = "", ""
				orphaned = append(orphaned, connID)
			}
		}
		that.mu.Unlock()

		that.timersMu.Lock()
		for key, pending := range that.timers {
			if key.roomID == room.ID {
				pending.timer.Stop()
				delete(that.timers, key)
			}
		}
		that.timersMu.Unlock()

		for _, connID := range orphaned {
			that.sendReason(connID, protocol.ActionRoomError, protocol.ReasonRoomNotFound)
		}

		that.notify(entity.RoomEvent{Type: entity.EventRoomEvicted, RoomID: room.ID})

		log.Info("room evicted", "unbound", len(orphaned))
	})
}

func (that *Gateway) ConnectionCount() int {
	that.mu.RLock()
	defer that.mu.RUnlock()

	return len(that.sessions)
}

// Close stops every pending grace timer.
func (that *Gateway) Close() {
	that.timersMu.Lock()
	defer that.timersMu.Unlock()

	for key, pending := range that.timers {
		pending.timer.Stop()
		delete(that.timers, key)
	}
}

func (that *Gateway) startGrace(roomID, name, connID string) {
	key := graceKey{roomID: roomID, name: name}
	pending := &graceTimer{connID: connID}

	that.timersMu.Lock()
	if previous, ok := that.timers[key]; ok {
		previous.timer.Stop()
	}
	pending.timer = time.AfterFunc(that.grace, func() {
		that.expireGrace(key, pending)
	})
	that.timers[key] = pending
	that.timersMu.Unlock()
}

// cancelGrace stops the pending removal of name in roomID, if any.
func (that *Gateway) cancelGrace(roomID, name string) bool {
	key := graceKey{roomID: roomID, name: name}

	that.timersMu.Lock()
	defer that.timersMu.Unlock()

	pending, ok := that.timers[key]
	if !ok {
		return false
	}

	pending.timer.Stop()
	delete(that.timers, key)

	return true
}

func (that *Gateway) expireGrace(key graceKey, pending *graceTimer) {
	log := that.logger.With("method", "expireGrace", "roomID", key.roomID, "player", key.name)

	that.timersMu.Lock()
	if that.timers[key] != pending {
		that.timersMu.Unlock()
		return
	}
	delete(that.timers, key)
	that.timersMu.Unlock()

	room, err := that.rooms.GetRoom(key.roomID)
	if err != nil {
		log.Info("room gone before grace expired")
		return
	}

	room.Sequence(func() {
		player, removed := room.RemovePlayerIfBound(key.name, pending.connID)
		if !removed {
			return
		}

		that.broadcastPlayerLeft(room, player)
		that.notify(entity.RoomEvent{Type: entity.EventPlayerLeft, RoomID: room.ID, PlayerName: player.Name})

		log.Info("seat released after grace")
	})
}

// broadcast sends one message to every seated player of room whose
// connection is live, except exclude.
func (that *Gateway) broadcast(room *entity.Room, action string, payload any, exclude string) {
	log := that.logger.With("method", "broadcast", "roomID", room.ID, "action", action)

	data, err := protocol.Encode(action, payload)
	if err != nil {
		log.Error("failed to encode broadcast", "error", err)
		return
	}

	for _, player := range room.Players() {
		if player.ConnectionID == exclude {
			continue
		}

		conn, ok := that.boundConnection(player.ConnectionID, room.ID)
		if !ok {
			continue
		}

		if err = conn.Send(data); err != nil {
			log.Warn("dropped message", "connID", player.ConnectionID, "error", err)
		}
	}
}

func (that *Gateway) broadcastState(room *entity.Room, gameEnd *protocol.GameEnd) {
	state := protocol.NewState(room.ID, room.Snapshot(), room.Players())
	state.GameEnd = gameEnd

	that.broadcast(room, protocol.ActionStateUpdate, state, "")

	if player, ok := room.PlayerOnTurn(); ok {
		that.send(player.ConnectionID, protocol.ActionTurnNotice, protocol.TurnNoticePayload{
			RoomID: room.ID,
			Mark:   player.Mark,
		})
	}
}

func (that *Gateway) broadcastPlayerLeft(room *entity.Room, player entity.Player) {
	that.broadcast(room, protocol.ActionPlayerLeft, protocol.PlayerLeftPayload{
		Player:  player,
		Players: room.Players(),
	}, player.ConnectionID)
}

func (that *Gateway) send(connID, action string, payload any) {
	log := that.logger.With("method", "send", "connID", connID, "action", action)

	that.mu.RLock()
	sess, ok := that.sessions[connID]
	that.mu.RUnlock()

	if !ok {
		return
	}

	data, err := protocol.Encode(action, payload)
	if err != nil {
		log.Error("failed to encode message", "error", err)
		return
	}

	if err = sess.conn.Send(data); err != nil {
		log.Warn("dropped message", "error", err)
	}
}

func (that *Gateway) sendReason(connID, action, reason string) {
	that.send(connID, action, protocol.ReasonPayload{Reason: reason})
}

func (that *Gateway) notify(event entity.RoomEvent) {
	if that.notifier == nil {
		return
	}

	event.OccurredAt = that.clock()
	that.notifier.Notify(event)
}

func (that *Gateway) isRegistered(connID string) bool {
	that.mu.RLock()
	defer that.mu.RUnlock()

	_, ok := that.sessions[connID]

	return ok
}

// binding returns the room and player name connID is bound to.
func (that *Gateway) binding(connID string) (string, string) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	sess, ok := that.sessions[connID]
	if !ok {
		return "", ""
	}

	return sess.roomID, sess.name
}

// bind attaches connID to the seat name in roomID. Any other connection
// still bound to the same seat is detached.
func (that *Gateway) bind(connID, roomID, name string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	for id, sess := range that.sessions {
		if id != connID && sess.roomID == roomID && sess.name == name {
			sess.roomID, sess.name = "", ""
		}
	}

	if sess, ok := that.sessions[connID]; ok {
		sess.roomID, sess.name = roomID, name
	}
}

// unbind detaches connID if it is still bound to roomID.
func (that *Gateway) unbind(connID, roomID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if sess, ok := that.sessions[connID]; ok && sess.roomID == roomID {
		sess.roomID, sess.name = "", ""
	}
}

func (that *Gateway) boundConnection(connID, roomID string) (Connection, bool) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	sess, ok := that.sessions[connID]
	if !ok || sess.roomID != roomID {
		return nil, false
	}

	return sess.conn, true
}

// reasonFor maps a domain error onto its wire reason.
func reasonFor(err error) string {
	switch {
	case errors.Is(err, apperror.ErrRoomNotFound):
		return protocol.ReasonRoomNotFound
	case errors.Is(err, apperror.ErrRoomFull):
		return protocol.ReasonRoomFull
	case errors.Is(err, apperror.ErrEmptyName):
		return protocol.ReasonInvalidName
	case errors.Is(err, apperror.ErrInvalidCell):
		return protocol.ReasonInvalidCell
	case errors.Is(err, apperror.ErrCellOccupied):
		return protocol.ReasonCellOccupied
	case errors.Is(err, apperror.ErrNotYourTurn):
		return protocol.ReasonNotYourTurn
	case errors.Is(err, apperror.ErrGameInactive):
		return protocol.ReasonGameInactive
	case errors.Is(err, apperror.ErrPlayerNotFound):
		return protocol.ReasonPlayerNotFound
	case errors.Is(err, apperror.ErrEmptyMessage):
		return protocol.ReasonEmptyMessage
	default:
		return protocol.ReasonInternal
	}
}
