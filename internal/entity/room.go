package entity

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rocketscienceinc/tictactoe-relay/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-relay/internal/tictactoe"
)

const (
	MaxPlayers       = 2
	ChatHistoryLimit = 50
	MaxChatLength    = 500
)

// State is the part of a room every client renders.
type State struct {
	Board  tictactoe.Board `json:"board"`
	Turn   tictactoe.Mark  `json:"turn"`
	Active bool            `json:"active"`
	Scores map[string]int  `json:"scores"`
}

// MoveResult describes an accepted move.
type MoveResult struct {
	Cell    int
	Player  Player
	Outcome tictactoe.Outcome
	Turn    tictactoe.Mark
}

// RoomInfo is the debug view of a room.
type RoomInfo struct {
	ID             string          `json:"id"`
	Players        int             `json:"players"`
	PlayerNames    []string        `json:"playerNames"`
	Active         bool            `json:"active"`
	Board          tictactoe.Board `json:"board"`
	Turn           tictactoe.Mark  `json:"currentPlayer"`
	CreatedAt      time.Time       `json:"created"`
	LastActivityAt time.Time       `json:"lastActivity"`
}

type RoomOption func(*Room)

func WithClock(clock func() time.Time) RoomOption {
	return func(room *Room) {
		room.clock = clock
	}
}

// WithChatLimit lowers the chat history kept per room. Values outside
// 1..ChatHistoryLimit leave the default.
func WithChatLimit(limit int) RoomOption {
	return func(room *Room) {
		if limit > 0 && limit <= ChatHistoryLimit {
			room.chatLimit = limit
		}
	}
}

// Room is the authoritative state of one game session. Every method takes
// the room lock for the duration of the call only.
type Room struct {
	ID string

	mu sync.Mutex
	// seq orders state changes together with the broadcasts they produce.
	seq sync.Mutex

	players []*Player
	board   tictactoe.Board
	turn    tictactoe.Mark
	active  bool
	scores  map[string]int

	chatLog   []ChatMessage
	chatSeq   int64
	chatLimit int

	createdAt      time.Time
	lastActivityAt time.Time

	clock func() time.Time
}

func NewRoom(id string, opts ...RoomOption) *Room {
	room := &Room{
		ID:        id,
		turn:      tictactoe.X,
		active:    true,
		scores:    make(map[string]int),
		chatLimit: ChatHistoryLimit,
		clock:     time.Now,
	}

	for _, opt := range opts {
		opt(room)
	}

	now := room.clock()
	room.createdAt = now
	room.lastActivityAt = now

	return room
}

// Sequence runs fn while holding the room's ordering lock. Callers use it to
// keep a mutation and the fan-out of its result in acceptance order.
func (that *Room) Sequence(fn func()) {
	that.seq.Lock()
	defer that.seq.Unlock()

	fn()
}

// AddPlayer seats a player. A player whose name is already seated is treated
// as a reconnect: the seat is rebound to the new connection and rejoined is
// true.
func (that *Room) AddPlayer(player Player) (Player, bool, error) {
	if strings.TrimSpace(player.Name) == "" {
		return Player{}, false, apperror.ErrEmptyName
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	if existing := that.findByName(player.Name); existing != nil {
		existing.ConnectionID = player.ConnectionID
		if player.AvatarRef != "" {
			existing.AvatarRef = player.AvatarRef
		}

		that.touch()

		return *existing, true, nil
	}

	if len(that.players) >= MaxPlayers {
		return Player{}, false, fmt.Errorf("%w: room %s", apperror.ErrRoomFull, that.ID)
	}

	seat := &Player{
		Name:         player.Name,
		ConnectionID: player.ConnectionID,
		AvatarRef:    player.AvatarRef,
		Role:         RoleGuest,
	}

	if len(that.players) == 0 {
		seat.Role = RoleHost
		seat.Mark = seat.Role.Mark()
	} else {
		seat.Mark = that.players[0].Mark.Opponent()
	}

	that.players = append(that.players, seat)

	if _, ok := that.scores[seat.Name]; !ok {
		that.scores[seat.Name] = 0
	}

	that.touch()

	return *seat, false, nil
}

// RemovePlayer removes the player bound to connectionID. When the host
// leaves, the remaining player becomes host; its mark changes on the next
// reset.
func (that *Room) RemovePlayer(connectionID string) (Player, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	for i, player := range that.players {
		if player.ConnectionID == connectionID {
			return that.removeAt(i), true
		}
	}

	return Player{}, false
}

// RemovePlayerIfBound removes the named player only if its seat is still
// bound to connectionID. A seat reclaimed by a newer connection is kept.
func (that *Room) RemovePlayerIfBound(name, connectionID string) (Player, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	for i, player := range that.players {
		if player.Name == name && player.ConnectionID == connectionID {
			return that.removeAt(i), true
		}
	}

	return Player{}, false
}

func (that *Room) removeAt(i int) Player {
	removed := that.players[i]
	that.players = append(that.players[:i], that.players[i+1:]...)

	if removed.IsHost() && len(that.players) > 0 {
		that.players[0].Role = RoleHost
	}

	that.touch()

	return *removed
}

// ApplyMove validates and applies a move by the player bound to
// connectionID. The mover's mark must equal the current turn.
func (that *Room) ApplyMove(cell int, connectionID string) (MoveResult, error) {
	if cell < 0 || cell >= tictactoe.BoardSize {
		return MoveResult{}, fmt.Errorf("%w: cell %d", apperror.ErrInvalidCell, cell)
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	player := that.findByConnection(connectionID)
	if player == nil {
		return MoveResult{}, apperror.ErrPlayerNotFound
	}

	if !that.active {
		return MoveResult{}, apperror.ErrGameInactive
	}

	if player.Mark != that.turn {
		return MoveResult{}, apperror.ErrNotYourTurn
	}

	board, outcome, err := tictactoe.ApplyMove(that.board, cell, player.Mark)
	if err != nil {
		return MoveResult{}, fmt.Errorf("failed to apply move: %w", err)
	}

	that.board = board
	that.touch()

	switch outcome.Result {
	case tictactoe.ResultWin:
		that.active = false
		that.scores[player.Name]++
	case tictactoe.ResultDraw:
		that.active = false
	default:
		that.turn = that.turn.Opponent()
	}

	return MoveResult{
		Cell:    cell,
		Player:  *player,
		Outcome: outcome,
		Turn:    that.turn,
	}, nil
}

// Reset starts a new game. Scores and chat history are kept.
func (that *Room) Reset() {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.board = tictactoe.Board{}
	that.turn = tictactoe.X
	that.active = true

	for _, player := range that.players {
		player.Mark = player.Role.Mark()
	}

	that.touch()
}

// AddChatMessage appends a message from the player bound to
// senderConnectionID, dropping the oldest entries beyond the chat limit.
func (that *Room) AddChatMessage(text, senderConnectionID string) (ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ChatMessage{}, apperror.ErrEmptyMessage
	}

	if utf8.RuneCountInString(text) > MaxChatLength {
		text = string([]rune(text)[:MaxChatLength])
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	sender := that.findByConnection(senderConnectionID)
	if sender == nil {
		return ChatMessage{}, apperror.ErrPlayerNotFound
	}

	that.chatSeq++
	message := ChatMessage{
		ID:         that.chatSeq,
		Text:       text,
		SenderName: sender.Name,
		Timestamp:  that.clock(),
	}

	that.chatLog = append(that.chatLog, message)
	if overflow := len(that.chatLog) - that.chatLimit; overflow > 0 {
		that.chatLog = append([]ChatMessage(nil), that.chatLog[overflow:]...)
	}

	that.touch()

	return message, nil
}

// IsStale reports whether the room should be evicted: empty and idle past
// emptyGrace, idle past inactivityCeiling, or older than maxAge.
func (that *Room) IsStale(now time.Time, emptyGrace, inactivityCeiling, maxAge time.Duration) bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	idle := now.Sub(that.lastActivityAt)

	return (len(that.players) == 0 && idle > emptyGrace) ||
		idle > inactivityCeiling ||
		now.Sub(that.createdAt) > maxAge
}

func (that *Room) Touch() {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.touch()
}

func (that *Room) Snapshot() State {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.snapshot()
}

func (that *Room) Players() []Player {
	that.mu.Lock()
	defer that.mu.Unlock()

	players := make([]Player, 0, len(that.players))
	for _, player := range that.players {
		players = append(players, *player)
	}

	return players
}

func (that *Room) PlayerByConnection(connectionID string) (Player, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if player := that.findByConnection(connectionID); player != nil {
		return *player, true
	}

	return Player{}, false
}

// Opponent returns the other seated player.
func (that *Room) Opponent(name string) (Player, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	for _, player := range that.players {
		if player.Name != name {
			return *player, true
		}
	}

	return Player{}, false
}

// PlayerOnTurn returns the seated player whose mark matches the turn while a
// game is active.
func (that *Room) PlayerOnTurn() (Player, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if !that.active {
		return Player{}, false
	}

	for _, player := range that.players {
		if player.Mark == that.turn {
			return *player, true
		}
	}

	return Player{}, false
}

func (that *Room) ChatLog() []ChatMessage {
	that.mu.Lock()
	defer that.mu.Unlock()

	return append([]ChatMessage(nil), that.chatLog...)
}

func (that *Room) PlayerCount() int {
	that.mu.Lock()
	defer that.mu.Unlock()

	return len(that.players)
}

func (that *Room) Info() RoomInfo {
	that.mu.Lock()
	defer that.mu.Unlock()

	names := make([]string, 0, len(that.players))
	for _, player := range that.players {
		names = append(names, player.Name)
	}

	return RoomInfo{
		ID:             that.ID,
		Players:        len(that.players),
		PlayerNames:    names,
		Active:         that.active,
		Board:          that.board,
		Turn:           that.turn,
		CreatedAt:      that.createdAt,
		LastActivityAt: that.lastActivityAt,
	}
}

func (that *Room) snapshot() State {
	scores := make(map[string]int, len(that.scores))
	for name, score := range that.scores {
		scores[name] = score
	}

	return State{
		Board:  that.board,
		Turn:   that.turn,
		Active: that.active,
		Scores: scores,
	}
}

func (that *Room) findByName(name string) *Player {
	for _, player := range that.players {
		if player.Name == name {
			return player
		}
	}

	return nil
}

func (that *Room) findByConnection(connectionID string) *Player {
	for _, player := range that.players {
		if player.ConnectionID == connectionID {
			return player
		}
	}

	return nil
}

func (that *Room) touch() {
	that.lastActivityAt = that.clock()
}
