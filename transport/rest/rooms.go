package rest

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/rocketscienceinc/tictactoe-relay/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-relay/internal/entity"
)

type healthResponse struct {
	Status            string    `json:"status"`
	ActiveRooms       int       `json:"activeRooms"`
	ActivePlayers     int       `json:"activePlayers"`
	ActiveConnections int       `json:"activeConnections"`
	Timestamp         time.Time `json:"timestamp"`
}

type selfTestResponse struct {
	Message       string    `json:"message"`
	Time          time.Time `json:"time"`
	ActiveRooms   int       `json:"activeRooms"`
	ActivePlayers int       `json:"activePlayers"`
}

type roomsResponse struct {
	Total int               `json:"total"`
	Rooms []entity.RoomInfo `json:"rooms"`
}

func (that *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	rooms, players := that.rooms.Stats()

	that.respondJSON(w, http.StatusOK, healthResponse{
		Status:            "ok",
		ActiveRooms:       rooms,
		ActivePlayers:     players,
		ActiveConnections: that.connections.ConnectionCount(),
		Timestamp:         that.clock(),
	})
}

func (that *Server) handleSelfTest(w http.ResponseWriter, _ *http.Request) {
	rooms, players := that.rooms.Stats()

	that.respondJSON(w, http.StatusOK, selfTestResponse{
		Message:       "Server is working!",
		Time:          that.clock(),
		ActiveRooms:   rooms,
		ActivePlayers: players,
	})
}

func (that *Server) handleListRooms(w http.ResponseWriter, _ *http.Request) {
	rooms := that.rooms.List()

	that.respondJSON(w, http.StatusOK, roomsResponse{
		Total: len(rooms),
		Rooms: rooms,
	})
}

func (that *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	room, err := that.rooms.GetRoom(id)
	if errors.Is(err, apperror.ErrRoomNotFound) {
		that.respondError(w, http.StatusNotFound, "room not found")
		return
	}

	if err != nil {
		that.logger.Error("failed to get room", "method", "handleGetRoom", "roomID", id, "error", err)
		that.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	that.respondJSON(w, http.StatusOK, room.Info())
}
