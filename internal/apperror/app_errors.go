package apperror

import "errors"

var (
	ErrCellOccupied   = errors.New("cell is already occupied")
	ErrInvalidCell    = errors.New("invalid cell index")
	ErrNotYourTurn    = errors.New("it's not your turn")
	ErrGameInactive   = errors.New("game is not active")
	ErrPlayerNotFound = errors.New("player not found")

	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomFull        = errors.New("room is full")
	ErrRoomIDExhausted = errors.New("could not allocate a free room id")

	ErrEmptyMessage = errors.New("message is empty")
	ErrEmptyName    = errors.New("display name is empty")
)
