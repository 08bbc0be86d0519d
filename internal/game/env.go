package game

import "errors"

// ErrIllegalAction is returned when an action is applied to a position where
// it is not legal. It indicates a caller bug, not a recoverable condition.
var ErrIllegalAction = errors.New("illegal action")

// Player identifies one side of a two-player game. PlayerNone is used when a
// game has no winner (draw or still in progress).
type Player int8

const (
	PlayerNone Player = 0
	PlayerX    Player = 1
	PlayerO    Player = -1
)

func (p Player) String() string {
	switch p {
	case PlayerX:
		return "X"
	case PlayerO:
		return "O"
	default:
		return "none"
	}
}

// Opponent returns the other side.
func (p Player) Opponent() Player {
	return -p
}

// State is an opaque, hashable snapshot of a game position. The RL core
// never interprets it; it is only used as a map key.
type State string

// Action identifies one legal move as a small integer.
type Action int

// Environment is the turn-based game contract the RL pipeline consumes.
// Rewards returned by ApplyAction are always from the perspective of the
// player who just moved: +1.0 win, +0.5 draw, 0.0 ongoing.
type Environment interface {
	// Reset starts a new game and returns the initial state.
	Reset() State

	// LegalActions returns the moves available in the given state. An empty
	// slice in a non-terminal position is an environment contract violation.
	LegalActions(state State) []Action

	// ApplyAction plays a move for the side to act and returns the resulting
	// state, the mover's reward and whether the game is over.
	ApplyAction(action Action) (State, float64, bool, error)

	// Winner returns the winning player, or PlayerNone for a draw or an
	// unfinished game.
	Winner() Player
}
