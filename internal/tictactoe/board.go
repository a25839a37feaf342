// Package tictactoe holds the pure board rules: applying a move to a
// 9-cell board and evaluating it for a win or a draw. Nothing here does I/O
// or keeps state between calls.
package tictactoe

import (
	"errors"
	"fmt"

	"github.com/rocketscienceinc/tictactoe-relay/internal/apperror"
)

type Mark string

const (
	Empty Mark = ""
	X     Mark = "X"
	O     Mark = "O"
)

type Result string

const (
	ResultOngoing Result = "ongoing"
	ResultWin     Result = "win"
	ResultDraw    Result = "draw"
)

const BoardSize = 9

var ErrInvalidMark = errors.New("invalid mark")

// WinCombos lists rows, then columns, then diagonals.
var WinCombos = [8][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

type Board [BoardSize]Mark

// Outcome is the evaluation of a board. Winner and Line are only set for
// ResultWin.
type Outcome struct {
	Result Result
	Winner Mark
	Line   [3]int
}

func (that Outcome) IsOver() bool {
	return that.Result != ResultOngoing
}

func (that Mark) Opponent() Mark {
	switch that {
	case X:
		return O
	case O:
		return X
	default:
		return Empty
	}
}

func (that Mark) IsValid() bool {
	return that == X || that == O
}

// ApplyMove places mark at cell on a copy of board and evaluates the result.
// The input board is never modified.
func ApplyMove(board Board, cell int, mark Mark) (Board, Outcome, error) {
	if !mark.IsValid() {
		return board, Outcome{}, fmt.Errorf("%w: %q", ErrInvalidMark, mark)
	}

	if cell < 0 || cell >= BoardSize {
		return board, Outcome{}, fmt.Errorf("%w: cell %d", apperror.ErrInvalidCell, cell)
	}

	if board[cell] != Empty {
		return board, Outcome{}, apperror.ErrCellOccupied
	}

	board[cell] = mark

	return board, Evaluate(board), nil
}

// Evaluate reports the first completed line in WinCombos order, a draw when
// all cells are filled without a line, and ongoing otherwise.
func Evaluate(board Board) Outcome {
	for _, combo := range WinCombos {
		a, b, c := board[combo[0]], board[combo[1]], board[combo[2]]
		if a != Empty && a == b && b == c {
			return Outcome{Result: ResultWin, Winner: a, Line: combo}
		}
	}

	if board.IsFull() {
		return Outcome{Result: ResultDraw}
	}

	return Outcome{Result: ResultOngoing}
}

func (that Board) IsFull() bool {
	for _, cell := range that {
		if cell == Empty {
			return false
		}
	}

	return true
}

func (that Board) Count(mark Mark) int {
	n := 0
	for _, cell := range that {
		if cell == mark {
			n++
		}
	}

	return n
}
