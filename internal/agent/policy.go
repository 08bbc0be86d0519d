package agent

import (
	"math/rand"

	"github.com/arenalab/qarena/internal/game"
)

// Policy selects a move for a state. Implementations return
// ErrNoLegalActions if legal is empty.
type Policy interface {
	ChooseAction(state game.State, legal []game.Action, epsilon float64) (game.Action, error)
}

// RandomPolicy plays uniformly random legal moves. It is the fixed baseline
// opponent during training and evaluation.
type RandomPolicy struct {
	rng *rand.Rand
}

// NewRandomPolicy creates a random policy driven by rng.
func NewRandomPolicy(rng *rand.Rand) *RandomPolicy {
	return &RandomPolicy{rng: rng}
}

// ChooseAction returns a uniformly random legal action. The epsilon argument
// is ignored; a random policy always explores.
func (p *RandomPolicy) ChooseAction(_ game.State, legal []game.Action, _ float64) (game.Action, error) {
	if len(legal) == 0 {
		return 0, ErrNoLegalActions
	}
	return legal[p.rng.Intn(len(legal))], nil
}

// SetRand swaps the random source, used to reseed between evaluation runs.
func (p *RandomPolicy) SetRand(rng *rand.Rand) { p.rng = rng }
