package agent

import (
	"fmt"
	"sort"

	"github.com/arenalab/qarena/internal/game"
)

// ActionValue pairs an action with its learned value.
type ActionValue struct {
	Action game.Action `json:"action"`
	Q      float64     `json:"q_value"`
}

// Confidence describes how clearly one action dominates the alternatives.
type Confidence string

const (
	ConfidenceCertain   Confidence = "certain"    // only one legal move
	ConfidenceVeryHigh  Confidence = "very high"  // gap > 0.5
	ConfidenceHigh      Confidence = "high"       // gap > 0.2
	ConfidenceModerate  Confidence = "moderate"   // gap > 0.05
	ConfidenceLow       Confidence = "low"        // gap > 0
	ConfidenceUncertain Confidence = "uncertain"  // exact tie
)

// Coach exposes an agent's value function for explanation and hinting. It
// only reads the Q-table, so it never inflates the learned-state count.
type Coach struct {
	agent *Agent
}

// NewCoach wraps an agent for read-only inspection.
func NewCoach(a *Agent) *Coach {
	return &Coach{agent: a}
}

// RankedQValues returns (action, value) pairs for the legal actions, sorted
// by value descending. Ties keep ascending action order so output is stable.
func (c *Coach) RankedQValues(state game.State, legal []game.Action) []ActionValue {
	ranked := make([]ActionValue, 0, len(legal))
	for _, action := range legal {
		ranked = append(ranked, ActionValue{Action: action, Q: c.agent.QValue(state, action)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Q != ranked[j].Q {
			return ranked[i].Q > ranked[j].Q
		}
		return ranked[i].Action < ranked[j].Action
	})
	return ranked
}

// BestWithConfidence returns the top action, its value and a confidence label
// derived from the gap to the second-best action.
func (c *Coach) BestWithConfidence(state game.State, legal []game.Action) (game.Action, float64, Confidence, error) {
	if len(legal) == 0 {
		return 0, 0, "", ErrNoLegalActions
	}

	ranked := c.RankedQValues(state, legal)
	best := ranked[0]
	if len(ranked) == 1 {
		return best.Action, best.Q, ConfidenceCertain, nil
	}

	gap := best.Q - ranked[1].Q
	var conf Confidence
	switch {
	case gap > 0.5:
		conf = ConfidenceVeryHigh
	case gap > 0.2:
		conf = ConfidenceHigh
	case gap > 0.05:
		conf = ConfidenceModerate
	case gap > 0:
		conf = ConfidenceLow
	default:
		conf = ConfidenceUncertain
	}
	return best.Action, best.Q, conf, nil
}

// Hint describes one suggested action.
type Hint struct {
	Rank   int         `json:"rank"`
	Action game.Action `json:"action"`
	Q      float64     `json:"q_value"`
	IsBest bool        `json:"is_best"`
}

// Hints returns up to n ranked suggestions for the given position.
func (c *Coach) Hints(state game.State, legal []game.Action, n int) []Hint {
	ranked := c.RankedQValues(state, legal)
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	hints := make([]Hint, len(ranked))
	for i, av := range ranked {
		hints[i] = Hint{Rank: i + 1, Action: av.Action, Q: av.Q, IsBest: i == 0}
	}
	return hints
}

// CompareActions describes the value difference between two actions.
func (c *Coach) CompareActions(state game.State, first, second game.Action) string {
	q1 := c.agent.QValue(state, first)
	q2 := c.agent.QValue(state, second)

	if q1 == q2 {
		return fmt.Sprintf("actions %d and %d are equivalent (Q=%.3f)", first, second, q1)
	}

	better, worse := first, second
	hi, lo := q1, q2
	if q2 > q1 {
		better, worse = second, first
		hi, lo = q2, q1
	}

	var degree string
	switch gap := hi - lo; {
	case gap > 0.5:
		degree = "much better than"
	case gap > 0.2:
		degree = "better than"
	default:
		degree = "slightly better than"
	}
	return fmt.Sprintf("action %d is %s action %d (%.3f vs %.3f)", better, degree, worse, hi, lo)
}
