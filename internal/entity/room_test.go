package entity

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-relay/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-relay/internal/tictactoe"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (that *fakeClock) Now() time.Time {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.now
}

func (that *fakeClock) Advance(d time.Duration) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.now = that.now.Add(d)
}

func newTwoPlayerRoom(t *testing.T) *Room {
	t.Helper()

	room := NewRoom("ABC123")

	_, _, err := room.AddPlayer(Player{Name: "Alice", ConnectionID: "conn-a"})
	require.NoError(t, err)

	_, _, err = room.AddPlayer(Player{Name: "Bob", ConnectionID: "conn-b"})
	require.NoError(t, err)

	return room
}

func TestNewRoom(t *testing.T) {
	// When: a room is created
	room := NewRoom("ABC123")

	// Then: the board is empty, X is on turn and the game is active
	state := room.Snapshot()
	assert.Equal(t, tictactoe.Board{}, state.Board)
	assert.Equal(t, tictactoe.X, state.Turn)
	assert.True(t, state.Active)
	assert.Empty(t, state.Scores)
}

func TestRoom_AddPlayer(t *testing.T) {
	t.Run("First player is host with X, second is guest with O", func(t *testing.T) {
		room := newTwoPlayerRoom(t)

		players := room.Players()
		require.Len(t, players, 2)
		assert.Equal(t, Player{Name: "Alice", ConnectionID: "conn-a", Role: RoleHost, Mark: tictactoe.X}, players[0])
		assert.Equal(t, Player{Name: "Bob", ConnectionID: "conn-b", Role: RoleGuest, Mark: tictactoe.O}, players[1])
		assert.Equal(t, map[string]int{"Alice": 0, "Bob": 0}, room.Snapshot().Scores)
	})

	t.Run("Same name rebinds the connection instead of taking a seat", func(t *testing.T) {
		// Given: Alice is seated on conn-a
		room := NewRoom("ABC123")
		_, rejoined, err := room.AddPlayer(Player{Name: "Alice", ConnectionID: "conn-a"})
		require.NoError(t, err)
		require.False(t, rejoined)

		// When: Alice comes back on conn-a2
		player, rejoined, err := room.AddPlayer(Player{Name: "Alice", ConnectionID: "conn-a2"})

		// Then: the same seat is rebound
		require.NoError(t, err)
		assert.True(t, rejoined)
		assert.Equal(t, "conn-a2", player.ConnectionID)
		assert.Equal(t, 1, room.PlayerCount())

		_, found := room.PlayerByConnection("conn-a")
		assert.False(t, found)
	})

	t.Run("Reconnect into a full room keeps the seat", func(t *testing.T) {
		room := newTwoPlayerRoom(t)

		player, rejoined, err := room.AddPlayer(Player{Name: "Bob", ConnectionID: "conn-b2"})

		require.NoError(t, err)
		assert.True(t, rejoined)
		assert.Equal(t, RoleGuest, player.Role)
		assert.Equal(t, 2, room.PlayerCount())
	})

	t.Run("Third distinct name is rejected with ErrRoomFull", func(t *testing.T) {
		room := newTwoPlayerRoom(t)

		_, _, err := room.AddPlayer(Player{Name: "Carol", ConnectionID: "conn-c"})

		require.ErrorIs(t, err, apperror.ErrRoomFull)
		assert.Equal(t, 2, room.PlayerCount())
	})

	t.Run("Empty name is rejected", func(t *testing.T) {
		room := NewRoom("ABC123")

		_, _, err := room.AddPlayer(Player{Name: "  ", ConnectionID: "conn-a"})

		require.ErrorIs(t, err, apperror.ErrEmptyName)
	})
}

func TestRoom_RemovePlayer(t *testing.T) {
	t.Run("Removing the host promotes the guest", func(t *testing.T) {
		room := newTwoPlayerRoom(t)

		removed, ok := room.RemovePlayer("conn-a")

		require.True(t, ok)
		assert.Equal(t, "Alice", removed.Name)

		players := room.Players()
		require.Len(t, players, 1)
		assert.Equal(t, RoleHost, players[0].Role)
		// the mark in play is kept until the next reset
		assert.Equal(t, tictactoe.O, players[0].Mark)

		room.Reset()
		assert.Equal(t, tictactoe.X, room.Players()[0].Mark)
	})

	t.Run("Removing the last player leaves the room empty", func(t *testing.T) {
		room := NewRoom("ABC123")
		_, _, err := room.AddPlayer(Player{Name: "Alice", ConnectionID: "conn-a"})
		require.NoError(t, err)

		_, ok := room.RemovePlayer("conn-a")

		require.True(t, ok)
		assert.Zero(t, room.PlayerCount())
	})

	t.Run("Unknown connection is a no-op", func(t *testing.T) {
		room := newTwoPlayerRoom(t)

		_, ok := room.RemovePlayer("nope")

		assert.False(t, ok)
		assert.Equal(t, 2, room.PlayerCount())
	})

	t.Run("Scores survive removal", func(t *testing.T) {
		room := newTwoPlayerRoom(t)
		room.RemovePlayer("conn-b")

		assert.Equal(t, map[string]int{"Alice": 0, "Bob": 0}, room.Snapshot().Scores)
	})

	t.Run("Newcomer after promotion gets the free mark", func(t *testing.T) {
		// Given: Alice left mid-game and Bob was promoted while holding O
		room := newTwoPlayerRoom(t)
		room.RemovePlayer("conn-a")

		// When: Carol joins
		carol, _, err := room.AddPlayer(Player{Name: "Carol", ConnectionID: "conn-c"})

		// Then: Carol is guest and plays X until the next reset
		require.NoError(t, err)
		assert.Equal(t, RoleGuest, carol.Role)
		assert.Equal(t, tictactoe.X, carol.Mark)
	})
}

func TestRoom_RemovePlayerIfBound(t *testing.T) {
	t.Run("Removes a seat still bound to the connection", func(t *testing.T) {
		room := newTwoPlayerRoom(t)

		_, ok := room.RemovePlayerIfBound("Alice", "conn-a")

		assert.True(t, ok)
		assert.Equal(t, 1, room.PlayerCount())
	})

	t.Run("Keeps a seat reclaimed by a newer connection", func(t *testing.T) {
		room := newTwoPlayerRoom(t)
		_, _, err := room.AddPlayer(Player{Name: "Alice", ConnectionID: "conn-a2"})
		require.NoError(t, err)

		_, ok := room.RemovePlayerIfBound("Alice", "conn-a")

		assert.False(t, ok)
		assert.Equal(t, 2, room.PlayerCount())
	})
}

func TestRoom_ApplyMove(t *testing.T) {
	t.Run("Accepted move alternates the turn", func(t *testing.T) {
		room := newTwoPlayerRoom(t)

		result, err := room.ApplyMove(4, "conn-a")

		require.NoError(t, err)
		assert.Equal(t, tictactoe.ResultOngoing, result.Outcome.Result)
		assert.Equal(t, tictactoe.O, result.Turn)
		assert.Equal(t, "Alice", result.Player.Name)

		state := room.Snapshot()
		assert.Equal(t, tictactoe.X, state.Board[4])
		assert.Equal(t, tictactoe.O, state.Turn)
		assert.True(t, state.Active)
	})

	t.Run("Off-turn move is rejected with ErrNotYourTurn", func(t *testing.T) {
		room := newTwoPlayerRoom(t)

		_, err := room.ApplyMove(0, "conn-b")

		require.ErrorIs(t, err, apperror.ErrNotYourTurn)
		assert.Equal(t, tictactoe.Board{}, room.Snapshot().Board)
	})

	t.Run("Same player cannot move twice in a row", func(t *testing.T) {
		room := newTwoPlayerRoom(t)
		_, err := room.ApplyMove(0, "conn-a")
		require.NoError(t, err)

		_, err = room.ApplyMove(1, "conn-a")

		require.ErrorIs(t, err, apperror.ErrNotYourTurn)
		assert.Equal(t, tictactoe.Board{0: tictactoe.X}, room.Snapshot().Board)
	})

	t.Run("Occupied cell is rejected and the board is unchanged", func(t *testing.T) {
		room := newTwoPlayerRoom(t)
		_, err := room.ApplyMove(0, "conn-a")
		require.NoError(t, err)

		_, err = room.ApplyMove(0, "conn-b")

		require.ErrorIs(t, err, apperror.ErrCellOccupied)
		state := room.Snapshot()
		assert.Equal(t, tictactoe.Board{0: tictactoe.X}, state.Board)
		assert.Equal(t, tictactoe.O, state.Turn)
	})

	t.Run("Unknown connection is rejected with ErrPlayerNotFound", func(t *testing.T) {
		room := newTwoPlayerRoom(t)

		_, err := room.ApplyMove(0, "conn-x")

		require.ErrorIs(t, err, apperror.ErrPlayerNotFound)
	})

	t.Run("Out of range cell is rejected with ErrInvalidCell", func(t *testing.T) {
		room := newTwoPlayerRoom(t)

		_, err := room.ApplyMove(9, "conn-a")

		require.ErrorIs(t, err, apperror.ErrInvalidCell)
	})

	t.Run("Win ends the game and scores the winner", func(t *testing.T) {
		// Given: Alice and Bob alternate so Alice completes the top row
		room := newTwoPlayerRoom(t)
		moves := []struct {
			cell int
			conn string
		}{
			{0, "conn-a"}, {3, "conn-b"}, {1, "conn-a"}, {4, "conn-b"},
		}
		for _, move := range moves {
			_, err := room.ApplyMove(move.cell, move.conn)
			require.NoError(t, err)
		}

		// When: Alice plays the last cell of the row
		result, err := room.ApplyMove(2, "conn-a")

		// Then: the game is over with the top row
		require.NoError(t, err)
		assert.Equal(t, tictactoe.ResultWin, result.Outcome.Result)
		assert.Equal(t, [3]int{0, 1, 2}, result.Outcome.Line)

		state := room.Snapshot()
		assert.False(t, state.Active)
		assert.Equal(t, 1, state.Scores["Alice"])
		assert.Equal(t, 0, state.Scores["Bob"])

		// And: further moves are rejected
		_, err = room.ApplyMove(5, "conn-b")
		require.ErrorIs(t, err, apperror.ErrGameInactive)
	})

	t.Run("Draw ends the game without scoring", func(t *testing.T) {
		room := newTwoPlayerRoom(t)
		// X O X / X O O / O X X
		cells := []int{0, 1, 2, 4, 3, 5, 7, 6, 8}
		conns := []string{"conn-a", "conn-b"}

		var result MoveResult
		for i, cell := range cells {
			var err error
			result, err = room.ApplyMove(cell, conns[i%2])
			require.NoError(t, err, "move %d", i)
		}

		assert.Equal(t, tictactoe.ResultDraw, result.Outcome.Result)
		state := room.Snapshot()
		assert.False(t, state.Active)
		assert.Equal(t, map[string]int{"Alice": 0, "Bob": 0}, state.Scores)
	})
}

func TestRoom_Reset(t *testing.T) {
	// Given: a finished game
	room := newTwoPlayerRoom(t)
	for i, cell := range []int{0, 3, 1, 4, 2} {
		_, err := room.ApplyMove(cell, []string{"conn-a", "conn-b"}[i%2])
		require.NoError(t, err)
	}
	_, err := room.AddChatMessage("gg", "conn-b")
	require.NoError(t, err)

	// When: the room is reset
	room.Reset()

	// Then: the board is fresh but scores and chat remain
	state := room.Snapshot()
	assert.Equal(t, tictactoe.Board{}, state.Board)
	assert.Equal(t, tictactoe.X, state.Turn)
	assert.True(t, state.Active)
	assert.Equal(t, 1, state.Scores["Alice"])
	assert.Len(t, room.ChatLog(), 1)
}

func TestRoom_AddChatMessage(t *testing.T) {
	t.Run("Log is capped and evicts the oldest first", func(t *testing.T) {
		room := newTwoPlayerRoom(t)

		for i := 0; i < ChatHistoryLimit+10; i++ {
			_, err := room.AddChatMessage(fmt.Sprintf("msg-%d", i), "conn-a")
			require.NoError(t, err)
		}

		log := room.ChatLog()
		require.Len(t, log, ChatHistoryLimit)
		assert.Equal(t, "msg-10", log[0].Text)
		assert.Equal(t, fmt.Sprintf("msg-%d", ChatHistoryLimit+9), log[len(log)-1].Text)
		assert.Equal(t, "Alice", log[0].SenderName)
	})

	t.Run("Chat limit can be lowered but never raised", func(t *testing.T) {
		for _, tc := range []struct {
			limit int
			want  int
		}{
			{limit: 5, want: 5},
			{limit: ChatHistoryLimit * 2, want: ChatHistoryLimit},
			{limit: 0, want: ChatHistoryLimit},
		} {
			// Given: a room built with the requested limit
			room := NewRoom("ABC123", WithChatLimit(tc.limit))
			_, _, err := room.AddPlayer(Player{Name: "Alice", ConnectionID: "conn-a"})
			require.NoError(t, err)

			// When: more messages than any limit are sent
			for i := 0; i < ChatHistoryLimit*3; i++ {
				_, err = room.AddChatMessage(fmt.Sprintf("msg-%d", i), "conn-a")
				require.NoError(t, err)
			}

			// Then: the log never exceeds the room cap
			assert.Len(t, room.ChatLog(), tc.want, "limit %d", tc.limit)
		}
	})

	t.Run("Unseated sender is rejected", func(t *testing.T) {
		room := newTwoPlayerRoom(t)

		_, err := room.AddChatMessage("hi", "conn-x")

		require.ErrorIs(t, err, apperror.ErrPlayerNotFound)
	})

	t.Run("Blank text is rejected", func(t *testing.T) {
		room := newTwoPlayerRoom(t)

		_, err := room.AddChatMessage("   ", "conn-a")

		require.ErrorIs(t, err, apperror.ErrEmptyMessage)
	})

	t.Run("Long text is truncated", func(t *testing.T) {
		room := newTwoPlayerRoom(t)
		long := make([]rune, MaxChatLength+20)
		for i := range long {
			long[i] = 'ж'
		}

		message, err := room.AddChatMessage(string(long), "conn-a")

		require.NoError(t, err)
		assert.Equal(t, MaxChatLength, len([]rune(message.Text)))
	})
}

func TestRoom_IsStale(t *testing.T) {
	const (
		emptyGrace = 5 * time.Minute
		ceiling    = time.Hour
		maxAge     = 24 * time.Hour
	)

	t.Run("Empty room is kept until the empty grace elapses", func(t *testing.T) {
		clock := newFakeClock()
		room := NewRoom("ABC123", WithClock(clock.Now))

		clock.Advance(emptyGrace - time.Second)
		assert.False(t, room.IsStale(clock.Now(), emptyGrace, ceiling, maxAge))

		clock.Advance(2 * time.Second)
		assert.True(t, room.IsStale(clock.Now(), emptyGrace, ceiling, maxAge))
	})

	t.Run("Occupied room survives the empty grace", func(t *testing.T) {
		clock := newFakeClock()
		room := NewRoom("ABC123", WithClock(clock.Now))
		_, _, err := room.AddPlayer(Player{Name: "Alice", ConnectionID: "conn-a"})
		require.NoError(t, err)

		clock.Advance(30 * time.Minute)

		assert.False(t, room.IsStale(clock.Now(), emptyGrace, ceiling, maxAge))
	})

	t.Run("Occupied room past the inactivity ceiling is stale", func(t *testing.T) {
		clock := newFakeClock()
		room := NewRoom("ABC123", WithClock(clock.Now))
		_, _, err := room.AddPlayer(Player{Name: "Alice", ConnectionID: "conn-a"})
		require.NoError(t, err)

		clock.Advance(ceiling + time.Second)

		assert.True(t, room.IsStale(clock.Now(), emptyGrace, ceiling, maxAge))
	})

	t.Run("Active room past max age is stale", func(t *testing.T) {
		clock := newFakeClock()
		room := NewRoom("ABC123", WithClock(clock.Now))
		_, _, err := room.AddPlayer(Player{Name: "Alice", ConnectionID: "conn-a"})
		require.NoError(t, err)

		for elapsed := time.Duration(0); elapsed <= maxAge; elapsed += 30 * time.Minute {
			clock.Advance(30 * time.Minute)
			room.Touch()
		}

		assert.True(t, room.IsStale(clock.Now(), emptyGrace, ceiling, maxAge))
	})
}

func TestRoom_PlayerOnTurn(t *testing.T) {
	room := newTwoPlayerRoom(t)

	player, ok := room.PlayerOnTurn()
	require.True(t, ok)
	assert.Equal(t, "Alice", player.Name)

	_, err := room.ApplyMove(0, "conn-a")
	require.NoError(t, err)

	player, ok = room.PlayerOnTurn()
	require.True(t, ok)
	assert.Equal(t, "Bob", player.Name)
}
