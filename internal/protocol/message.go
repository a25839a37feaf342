package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rocketscienceinc/tictactoe-relay/internal/entity"
	"github.com/rocketscienceinc/tictactoe-relay/internal/tictactoe"
)

// Inbound actions.
const (
	ActionCreateRoom = "create_room"
	ActionJoinRoom   = "join_room"
	ActionRejoinRoom = "rejoin_room"
	ActionLeaveRoom  = "leave_room"
	ActionMove       = "move"
	ActionRestart    = "restart"
	ActionChat       = "chat"
	ActionHeartbeat  = "heartbeat"
)

// Outbound actions.
const (
	ActionConnected    = "connected"
	ActionRoomCreated  = "room_created"
	ActionRoomJoined   = "room_joined"
	ActionRoomError    = "room_error"
	ActionMoveRejected = "move_rejected"
	ActionStateUpdate  = "state_update"
	ActionPlayerJoined = "player_joined"
	ActionPlayerLeft   = "player_left"
	ActionTurnNotice   = "turn_notice"
	ActionChatMessage  = "chat_message"
	ActionHeartbeatAck = "heartbeat_ack"
	ActionError        = "error"
)

// Rejection reasons carried by room_error, move_rejected and error.
const (
	ReasonRoomNotFound   = "RoomNotFound"
	ReasonRoomFull       = "RoomFull"
	ReasonInvalidName    = "InvalidName"
	ReasonNotInRoom      = "NotInRoom"
	ReasonCellOccupied   = "CellOccupied"
	ReasonNotYourTurn    = "NotYourTurn"
	ReasonGameInactive   = "GameInactive"
	ReasonPlayerNotFound = "PlayerNotFound"
	ReasonInvalidCell    = "InvalidCell"
	ReasonEmptyMessage   = "EmptyMessage"
	ReasonInvalidPayload = "InvalidPayload"
	ReasonUnknownAction  = "UnknownAction"
	ReasonInternal       = "Internal"
)

// Message represents a WebSocket message with an action type and a payload.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode wraps payload into an envelope.
func Encode(action string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", action, err)
	}

	data, err := json.Marshal(Message{Action: action, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s message: %w", action, err)
	}

	return data, nil
}

// Decode parses an envelope without touching its payload.
func Decode(data []byte) (*Message, error) {
	var message Message
	if err := json.Unmarshal(data, &message); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	return &message, nil
}

type CreateRoomRequest struct {
	DisplayName string `json:"displayName"`
	AvatarRef   string `json:"avatarRef,omitempty"`
}

type JoinRoomRequest struct {
	RoomID      string `json:"roomId"`
	DisplayName string `json:"displayName"`
	AvatarRef   string `json:"avatarRef,omitempty"`
}

type RoomRequest struct {
	RoomID string `json:"roomId"`
}

type MoveRequest struct {
	RoomID    string `json:"roomId"`
	CellIndex *int   `json:"cellIndex"`
}

type ChatRequest struct {
	RoomID string `json:"roomId"`
	Text   string `json:"text"`
}

type ConnectedPayload struct {
	ConnectionID string    `json:"connectionId"`
	Timestamp    time.Time `json:"timestamp"`
}

type RoomCreatedPayload struct {
	RoomID string        `json:"roomId"`
	Player entity.Player `json:"player"`
}

type RoomJoinedPayload struct {
	RoomID   string               `json:"roomId"`
	Player   entity.Player        `json:"player"`
	Opponent *entity.Player       `json:"opponent,omitempty"`
	State    StatePayload         `json:"state"`
	ChatLog  []entity.ChatMessage `json:"chatLog"`
}

type ReasonPayload struct {
	Reason string `json:"reason"`
}

// GameEnd is attached to the state_update that concludes a game.
type GameEnd struct {
	Outcome     tictactoe.Result `json:"outcome"`
	WinnerName  string           `json:"winnerName,omitempty"`
	Mark        tictactoe.Mark   `json:"mark,omitempty"`
	WinningLine []int            `json:"winningLine,omitempty"`
}

type StatePayload struct {
	RoomID  string          `json:"roomId"`
	Board   tictactoe.Board `json:"board"`
	Turn    tictactoe.Mark  `json:"turn"`
	Active  bool            `json:"active"`
	Scores  map[string]int  `json:"scores"`
	Players []entity.Player `json:"players"`
	GameEnd *GameEnd        `json:"gameEnd,omitempty"`
}

type PlayerJoinedPayload struct {
	Player entity.Player `json:"player"`
	State  StatePayload  `json:"state"`
}

type PlayerLeftPayload struct {
	Player  entity.Player   `json:"player"`
	Players []entity.Player `json:"players"`
}

type TurnNoticePayload struct {
	RoomID string         `json:"roomId"`
	Mark   tictactoe.Mark `json:"mark"`
}

type HeartbeatAckPayload struct {
	Timestamp time.Time `json:"timestamp"`
}

// NewState builds the wire view of a room.
func NewState(roomID string, state entity.State, players []entity.Player) StatePayload {
	return StatePayload{
		RoomID:  roomID,
		Board:   state.Board,
		Turn:    state.Turn,
		Active:  state.Active,
		Scores:  state.Scores,
		Players: players,
	}
}

// NewGameEnd returns nil while the game is still going.
func NewGameEnd(outcome tictactoe.Outcome, winner string) *GameEnd {
	switch outcome.Result {
	case tictactoe.ResultWin:
		return &GameEnd{
			Outcome:     outcome.Result,
			WinnerName:  winner,
			Mark:        outcome.Winner,
			WinningLine: outcome.Line[:],
		}
	case tictactoe.ResultDraw:
		return &GameEnd{Outcome: outcome.Result}
	default:
		return nil
	}
}
