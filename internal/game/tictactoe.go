package game

import (
	"fmt"
	"strings"
)

const gridSize = 3

// TicTacToe is the reference Environment implementation: a 3x3 board, X moves
// first, rewards reported from the mover's perspective. Draws pay +0.5 so
// values learned against a strong opponent prefer a draw over a loss.
type TicTacToe struct {
	board   [gridSize * gridSize]Player
	current Player
}

// NewTicTacToe returns a fresh environment with X to move.
func NewTicTacToe() *TicTacToe {
	t := &TicTacToe{}
	t.Reset()
	return t
}

// Reset clears the board and returns the initial state.
func (t *TicTacToe) Reset() State {
	t.board = [gridSize * gridSize]Player{}
	t.current = PlayerX
	return t.State()
}

// State encodes the board and the side to move as a compact hashable key.
func (t *TicTacToe) State() State {
	var sb strings.Builder
	sb.Grow(gridSize*gridSize + 1)
	for _, cell := range t.board {
		sb.WriteByte(cellByte(cell))
	}
	sb.WriteByte(cellByte(t.current))
	return State(sb.String())
}

func cellByte(p Player) byte {
	switch p {
	case PlayerX:
		return 'X'
	case PlayerO:
		return 'O'
	default:
		return '.'
	}
}

// LegalActions returns the indices of empty cells in the given state. The
// state may be any position previously produced by this environment, not
// just the current one.
func (t *TicTacToe) LegalActions(state State) []Action {
	actions := make([]Action, 0, gridSize*gridSize)
	for i := 0; i < gridSize*gridSize && i < len(state); i++ {
		if state[i] == '.' {
			actions = append(actions, Action(i))
		}
	}
	return actions
}

// ApplyAction plays a move for the side to act. The reward is from the
// mover's perspective: +1.0 win, +0.5 draw, 0.0 ongoing.
func (t *TicTacToe) ApplyAction(action Action) (State, float64, bool, error) {
	idx := int(action)
	if idx < 0 || idx >= gridSize*gridSize || t.board[idx] != PlayerNone {
		return t.State(), 0, false, fmt.Errorf("%w: action %d in state %q", ErrIllegalAction, action, t.State())
	}

	mover := t.current
	t.board[idx] = mover

	winner := t.winner()
	done := winner != PlayerNone || t.movesLeft() == 0

	var reward float64
	switch {
	case winner == mover:
		reward = 1.0
	case winner != PlayerNone:
		reward = -1.0
	case done:
		reward = 0.5
	}

	if !done {
		t.current = t.current.Opponent()
	}

	return t.State(), reward, done, nil
}

// Winner returns the winning player, or PlayerNone for a draw or an
// unfinished game.
func (t *TicTacToe) Winner() Player {
	return t.winner()
}

// IsTerminal reports whether the current position ends the game.
func (t *TicTacToe) IsTerminal() bool {
	return t.winner() != PlayerNone || t.movesLeft() == 0
}

// CurrentPlayer returns the side to move.
func (t *TicTacToe) CurrentPlayer() Player {
	return t.current
}

func (t *TicTacToe) movesLeft() int {
	n := 0
	for _, cell := range t.board {
		if cell == PlayerNone {
			n++
		}
	}
	return n
}

var lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8}, // rows
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8}, // columns
	{0, 4, 8}, {2, 4, 6}, // diagonals
}

func (t *TicTacToe) winner() Player {
	for _, line := range lines {
		p := t.board[line[0]]
		if p != PlayerNone && t.board[line[1]] == p && t.board[line[2]] == p {
			return p
		}
	}
	return PlayerNone
}

// Render returns an ASCII view of the board for debugging.
func (t *TicTacToe) Render() string {
	var sb strings.Builder
	for row := 0; row < gridSize; row++ {
		for col := 0; col < gridSize; col++ {
			sb.WriteByte(cellByte(t.board[row*gridSize+col]))
			if col < gridSize-1 {
				sb.WriteByte('|')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
