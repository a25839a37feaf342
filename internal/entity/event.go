package entity

import "time"

type EventType string

const (
	EventRoomCreated    EventType = "room_created"
	EventPlayerJoined   EventType = "player_joined"
	EventPlayerRejoined EventType = "player_rejoined"
	EventPlayerLeft     EventType = "player_left"
	EventGameEnded      EventType = "game_ended"
	EventGameRestarted  EventType = "game_restarted"
	EventRoomEvicted    EventType = "room_evicted"
)

// RoomEvent is an accepted room change published to other processes.
type RoomEvent struct {
	Type       EventType      `json:"type"`
	RoomID     string         `json:"roomId"`
	PlayerName string         `json:"playerName,omitempty"`
	Result     string         `json:"result,omitempty"`
	Winner     string         `json:"winner,omitempty"`
	Scores     map[string]int `json:"scores,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}
