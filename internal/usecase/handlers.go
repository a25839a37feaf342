package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/rocketscienceinc/tictactoe-relay/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-relay/internal/entity"
	"github.com/rocketscienceinc/tictactoe-relay/internal/protocol"
	"github.com/rocketscienceinc/tictactoe-relay/internal/tictactoe"
)

func (that *Gateway) handleCreateRoom(_ context.Context, connID string, message *protocol.Message) error {
	log := that.logger.With("method", "handleCreateRoom", "connID", connID)

	var request protocol.CreateRoomRequest
	if !that.decodePayload(connID, message, &request) {
		return nil
	}

	name := strings.TrimSpace(request.DisplayName)
	if name == "" {
		that.sendReason(connID, protocol.ActionRoomError, protocol.ReasonInvalidName)
		return nil
	}

	that.leaveCurrentRoom(connID)

	room, host, err := that.rooms.CreateRoom(entity.Player{
		Name:         name,
		ConnectionID: connID,
		AvatarRef:    request.AvatarRef,
	})
	if err != nil {
		log.Error("failed to create room", "error", err)
		that.sendReason(connID, protocol.ActionRoomError, reasonFor(err))
		return nil
	}

	that.bind(connID, room.ID, host.Name)

	that.send(connID, protocol.ActionRoomCreated, protocol.RoomCreatedPayload{
		RoomID: room.ID,
		Player: host,
	})

	that.notify(entity.RoomEvent{Type: entity.EventRoomCreated, RoomID: room.ID, PlayerName: host.Name})

	log.Info("room created", "roomID", room.ID, "player", host.Name)

	return nil
}

func (that *Gateway) handleJoinRoom(ctx context.Context, connID string, message *protocol.Message) error {
	var request protocol.JoinRoomRequest
	if !that.decodePayload(connID, message, &request) {
		return nil
	}

	that.enterRoom(ctx, connID, request, false)

	return nil
}

func (that *Gateway) handleRejoinRoom(ctx context.Context, connID string, message *protocol.Message) error {
	var request protocol.JoinRoomRequest
	if !that.decodePayload(connID, message, &request) {
		return nil
	}

	that.enterRoom(ctx, connID, request, true)

	return nil
}

// enterRoom seats connID in the requested room. A name that already holds a
// seat reclaims it; otherwise a free seat is taken. Only a fresh seat is
// announced to the opponent.
func (that *Gateway) enterRoom(_ context.Context, connID string, request protocol.JoinRoomRequest, rejoin bool) {
	log := that.logger.With("method", "enterRoom", "connID", connID, "roomID", request.RoomID, "rejoin", rejoin)

	name := strings.TrimSpace(request.DisplayName)
	if name == "" {
		that.sendReason(connID, protocol.ActionRoomError, protocol.ReasonInvalidName)
		return
	}

	room, err := that.rooms.GetRoom(request.RoomID)
	if err != nil {
		log.Info("room not found")
		that.sendReason(connID, protocol.ActionRoomError, protocol.ReasonRoomNotFound)
		return
	}

	if roomID, boundName := that.binding(connID); roomID != "" && (roomID != room.ID || boundName != name) {
		that.leaveCurrentRoom(connID)
	}

	room.Sequence(func() {
		if current, err := that.rooms.GetRoom(room.ID); err != nil || current != room {
			log.Info("room evicted before the seat was taken")
			that.sendReason(connID, protocol.ActionRoomError, protocol.ReasonRoomNotFound)
			return
		}

		player, rejoined, err := room.AddPlayer(entity.Player{
			Name:         name,
			ConnectionID: connID,
			AvatarRef:    request.AvatarRef,
		})
		if err != nil {
			log.Info("failed to seat player", "error", err)
			that.sendReason(connID, protocol.ActionRoomError, reasonFor(err))
			return
		}

		that.cancelGrace(room.ID, name)
		that.bind(connID, room.ID, name)

		var opponent *entity.Player
		if other, ok := room.Opponent(name); ok {
			opponent = &other
		}

		state := protocol.NewState(room.ID, room.Snapshot(), room.Players())

		that.send(connID, protocol.ActionRoomJoined, protocol.RoomJoinedPayload{
			RoomID:   room.ID,
			Player:   player,
			Opponent: opponent,
			State:    state,
			ChatLog:  room.ChatLog(),
		})

		if rejoin {
			that.send(connID, protocol.ActionStateUpdate, state)
		}

		if rejoined {
			that.notify(entity.RoomEvent{Type: entity.EventPlayerRejoined, RoomID: room.ID, PlayerName: name})
			log.Info("seat reclaimed", "player", name)
			return
		}

		that.broadcast(room, protocol.ActionPlayerJoined, protocol.PlayerJoinedPayload{
			Player: player,
			State:  state,
		}, connID)

		if onTurn, ok := room.PlayerOnTurn(); ok {
			that.send(onTurn.ConnectionID, protocol.ActionTurnNotice, protocol.TurnNoticePayload{
				RoomID: room.ID,
				Mark:   onTurn.Mark,
			})
		}

		that.notify(entity.RoomEvent{Type: entity.EventPlayerJoined, RoomID: room.ID, PlayerName: name})
		log.Info("player joined", "player", name, "mark", player.Mark)
	})
}

func (that *Gateway) handleLeaveRoom(_ context.Context, connID string, message *protocol.Message) error {
	var request protocol.RoomRequest
	if !that.decodePayload(connID, message, &request) {
		return nil
	}

	room, ok := that.resolveRoom(connID, request.RoomID)
	if !ok {
		return nil
	}

	if !that.leaveRoom(connID, room) {
		that.sendReason(connID, protocol.ActionRoomError, protocol.ReasonPlayerNotFound)
	}

	return nil
}

func (that *Gateway) handleMove(_ context.Context, connID string, message *protocol.Message) error {
	log := that.logger.With("method", "handleMove", "connID", connID)

	var request protocol.MoveRequest
	if !that.decodePayload(connID, message, &request) {
		return nil
	}

	if request.CellIndex == nil {
		that.sendReason(connID, protocol.ActionError, protocol.ReasonInvalidPayload)
		return nil
	}

	room, ok := that.resolveRoom(connID, request.RoomID)
	if !ok {
		return nil
	}

	room.Sequence(func() {
		result, err := room.ApplyMove(*request.CellIndex, connID)
		if err != nil {
			log.Info("move rejected", "roomID", room.ID, "cell", *request.CellIndex, "error", err)
			that.sendReason(connID, protocol.ActionMoveRejected, reasonFor(err))
			return
		}

		gameEnd := protocol.NewGameEnd(result.Outcome, result.Player.Name)
		that.broadcastState(room, gameEnd)

		if !result.Outcome.IsOver() {
			return
		}

		event := entity.RoomEvent{
			Type:   entity.EventGameEnded,
			RoomID: room.ID,
			Result: string(result.Outcome.Result),
			Scores: room.Snapshot().Scores,
		}
		if result.Outcome.Result == tictactoe.ResultWin {
			event.Winner = result.Player.Name
		}
		that.notify(event)

		log.Info("game ended", "roomID", room.ID, "result", result.Outcome.Result, "winner", event.Winner)
	})

	return nil
}

func (that *Gateway) handleRestart(_ context.Context, connID string, message *protocol.Message) error {
	log := that.logger.With("method", "handleRestart", "connID", connID)

	var request protocol.RoomRequest
	if !that.decodePayload(connID, message, &request) {
		return nil
	}

	room, ok := that.resolveRoom(connID, request.RoomID)
	if !ok {
		return nil
	}

	room.Sequence(func() {
		if _, seated := room.PlayerByConnection(connID); !seated {
			that.sendReason(connID, protocol.ActionRoomError, protocol.ReasonPlayerNotFound)
			return
		}

		room.Reset()
		that.broadcastState(room, nil)
		that.notify(entity.RoomEvent{Type: entity.EventGameRestarted, RoomID: room.ID})

		log.Info("game restarted", "roomID", room.ID)
	})

	return nil
}

func (that *Gateway) handleChat(_ context.Context, connID string, message *protocol.Message) error {
	var request protocol.ChatRequest
	if !that.decodePayload(connID, message, &request) {
		return nil
	}

	room, ok := that.resolveRoom(connID, request.RoomID)
	if !ok {
		return nil
	}

	room.Sequence(func() {
		chatMessage, err := room.AddChatMessage(request.Text, connID)
		if err != nil {
			that.sendReason(connID, protocol.ActionRoomError, reasonFor(err))
			return
		}

		that.broadcast(room, protocol.ActionChatMessage, chatMessage, connID)
	})

	return nil
}

func (that *Gateway) handleHeartbeat(_ context.Context, connID string, _ *protocol.Message) error {
	if roomID, _ := that.binding(connID); roomID != "" {
		if room, err := that.rooms.GetRoom(roomID); err == nil {
			room.Touch()
		}
	}

	that.send(connID, protocol.ActionHeartbeatAck, protocol.HeartbeatAckPayload{Timestamp: that.clock()})

	return nil
}

// leaveRoom removes the seat held by connID in room and tells the rest of
// the room. It reports whether a seat was removed.
func (that *Gateway) leaveRoom(connID string, room *entity.Room) bool {
	removed := false

	room.Sequence(func() {
		player, ok := room.RemovePlayer(connID)
		if !ok {
			return
		}

		removed = true

		that.unbind(connID, room.ID)
		that.broadcastPlayerLeft(room, player)
		that.notify(entity.RoomEvent{Type: entity.EventPlayerLeft, RoomID: room.ID, PlayerName: player.Name})

		that.logger.Info("player left", "method", "leaveRoom", "roomID", room.ID, "player", player.Name)
	})

	return removed
}

func (that *Gateway) leaveCurrentRoom(connID string) {
	roomID, _ := that.binding(connID)
	if roomID == "" {
		return
	}

	room, err := that.rooms.GetRoom(roomID)
	if err != nil {
		that.unbind(connID, roomID)
		return
	}

	if !that.leaveRoom(connID, room) {
		that.unbind(connID, roomID)
	}
}

// resolveRoom finds the room a request targets: the explicit id when given,
// the bound room otherwise. The requester gets a room_error when none exists.
func (that *Gateway) resolveRoom(connID, roomID string) (*entity.Room, bool) {
	if roomID == "" {
		roomID, _ = that.binding(connID)
	}

	if roomID == "" {
		that.sendReason(connID, protocol.ActionRoomError, protocol.ReasonNotInRoom)
		return nil, false
	}

	room, err := that.rooms.GetRoom(roomID)
	if err != nil {
		if !errors.Is(err, apperror.ErrRoomNotFound) {
			that.logger.Error("failed to get room", "method", "resolveRoom", "roomID", roomID, "error", err)
		}

		that.sendReason(connID, protocol.ActionRoomError, reasonFor(err))
		return nil, false
	}

	return room, true
}

// decodePayload reports false, after answering with an InvalidPayload error,
// when the payload does not fit target.
func (that *Gateway) decodePayload(connID string, message *protocol.Message, target any) bool {
	payload := message.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	if err := json.Unmarshal(payload, target); err != nil {
		that.logger.Warn("invalid payload", "method", "decodePayload", "connID", connID, "action", message.Action, "error", err)
		that.sendReason(connID, protocol.ActionError, protocol.ReasonInvalidPayload)
		return false
	}

	return true
}
