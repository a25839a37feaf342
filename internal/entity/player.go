package entity

import "github.com/rocketscienceinc/tictactoe-relay/internal/tictactoe"

type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// Mark returns the mark a role plays with after a reset.
func (that Role) Mark() tictactoe.Mark {
	if that == RoleHost {
		return tictactoe.X
	}

	return tictactoe.O
}

// Player is a seat in a room. Name is the stable identity, ConnectionID is
// rebound every time the player reconnects.
type Player struct {
	Name         string         `json:"name"`
	ConnectionID string         `json:"-"`
	Role         Role           `json:"role"`
	Mark         tictactoe.Mark `json:"mark"`
	AvatarRef    string         `json:"avatarRef,omitempty"`
}

func (that *Player) IsHost() bool {
	return that.Role == RoleHost
}
