// Package agent implements a tabular Q-learning agent with an epsilon-greedy
// policy, plus the random baseline opponent it trains against.
package agent

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/arenalab/qarena/internal/game"
)

// ErrNoLegalActions is returned when a decision is requested for a position
// with no legal moves. The caller must guarantee at least one legal action;
// hitting this mid-episode means the environment broke its contract.
var ErrNoLegalActions = errors.New("no legal actions available")

// QTable maps state -> action -> estimated long-term value. Entries exist
// only for (state, action) pairs that have been written by Update; reads of
// unseen pairs return 0.0 without inserting anything, so the table size
// counts learned states, not merely queried ones.
type QTable map[game.State]map[game.Action]float64

// Clone returns a deep copy of the table.
func (q QTable) Clone() QTable {
	out := make(QTable, len(q))
	for state, actions := range q {
		row := make(map[game.Action]float64, len(actions))
		for action, value := range actions {
			row[action] = value
		}
		out[state] = row
	}
	return out
}

// Config holds the Q-learning hyperparameters.
type Config struct {
	Alpha        float64 // learning rate, (0, 1]
	Gamma        float64 // discount factor, [0, 1]
	Epsilon      float64 // initial exploration rate, [EpsilonMin, 1]
	EpsilonMin   float64 // exploration floor
	EpsilonDecay float64 // multiplicative decay per episode, (0, 1]
}

// DefaultConfig returns the hyperparameters used for standard training runs.
func DefaultConfig() Config {
	return Config{
		Alpha:        0.2,
		Gamma:        0.99,
		Epsilon:      1.0,
		EpsilonMin:   0.01,
		EpsilonDecay: 0.9995,
	}
}

// Validate checks the hyperparameter ranges.
func (c Config) Validate() error {
	if c.Alpha <= 0 || c.Alpha > 1 {
		return fmt.Errorf("alpha must be in (0, 1], got %v", c.Alpha)
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("gamma must be in [0, 1], got %v", c.Gamma)
	}
	if c.EpsilonDecay <= 0 || c.EpsilonDecay > 1 {
		return fmt.Errorf("epsilon_decay must be in (0, 1], got %v", c.EpsilonDecay)
	}
	if c.EpsilonMin < 0 || c.EpsilonMin > 1 {
		return fmt.Errorf("epsilon_min must be in [0, 1], got %v", c.EpsilonMin)
	}
	if c.Epsilon < c.EpsilonMin || c.Epsilon > 1 {
		return fmt.Errorf("epsilon must be in [epsilon_min, 1], got %v", c.Epsilon)
	}
	return nil
}

// Agent is a tabular Q-learning agent. It is not safe for concurrent
// mutation; one training run owns one Agent.
type Agent struct {
	alpha        float64
	gamma        float64
	epsilon      float64
	epsilonStart float64
	epsilonMin   float64
	epsilonDecay float64

	qtable QTable
	rng    *rand.Rand
	logger zerolog.Logger
}

// New creates an agent with the given hyperparameters. The rng drives
// exploration and tie-breaking and must not be nil.
func New(cfg Config, rng *rand.Rand, logger zerolog.Logger) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid agent config: %w", err)
	}
	return &Agent{
		alpha:        cfg.Alpha,
		gamma:        cfg.Gamma,
		epsilon:      cfg.Epsilon,
		epsilonStart: cfg.Epsilon,
		epsilonMin:   cfg.EpsilonMin,
		epsilonDecay: cfg.EpsilonDecay,
		qtable:       make(QTable),
		rng:          rng,
		logger:       logger.With().Str("component", "agent").Logger(),
	}, nil
}

// QValue returns the stored value for (state, action), or 0.0 if the pair
// has never been updated. Reading never creates a table entry.
func (a *Agent) QValue(state game.State, action game.Action) float64 {
	if actions, ok := a.qtable[state]; ok {
		return actions[action]
	}
	return 0.0
}

// maxQValue returns the highest Q-value among the legal actions, or 0.0 when
// there are none (terminal successor state).
func (a *Agent) maxQValue(state game.State, legal []game.Action) float64 {
	if len(legal) == 0 {
		return 0.0
	}
	best := a.QValue(state, legal[0])
	for _, action := range legal[1:] {
		if v := a.QValue(state, action); v > best {
			best = v
		}
	}
	return best
}

// BestAction returns the legal action with the highest Q-value, choosing
// uniformly at random among exact ties.
func (a *Agent) BestAction(state game.State, legal []game.Action) (game.Action, error) {
	if len(legal) == 0 {
		return 0, ErrNoLegalActions
	}

	bestQ := math.Inf(-1)
	var best []game.Action
	for _, action := range legal {
		q := a.QValue(state, action)
		switch {
		case q > bestQ:
			bestQ = q
			best = best[:0]
			best = append(best, action)
		case q == bestQ:
			best = append(best, action)
		}
	}
	return best[a.rng.Intn(len(best))], nil
}

// ChooseAction follows the epsilon-greedy policy with an explicit epsilon:
// with probability epsilon a uniformly random legal action, otherwise the
// best known action.
func (a *Agent) ChooseAction(state game.State, legal []game.Action, epsilon float64) (game.Action, error) {
	if len(legal) == 0 {
		return 0, ErrNoLegalActions
	}
	if a.rng.Float64() < epsilon {
		return legal[a.rng.Intn(len(legal))], nil
	}
	return a.BestAction(state, legal)
}

// Act is ChooseAction at the agent's current exploration rate.
func (a *Agent) Act(state game.State, legal []game.Action) (game.Action, error) {
	return a.ChooseAction(state, legal, a.epsilon)
}

// Update applies the tabular Q-learning rule:
//
//	Q[s,a] += alpha * (target - Q[s,a])
//
// where target is the raw reward for terminal transitions and
// reward + gamma * max_a' Q(s', a') otherwise. This is the only operation
// that inserts table entries.
func (a *Agent) Update(state game.State, action game.Action, reward float64,
	nextState game.State, nextLegal []game.Action, done bool) {

	current := a.QValue(state, action)

	target := reward
	if !done {
		target = reward + a.gamma*a.maxQValue(nextState, nextLegal)
	}

	actions, ok := a.qtable[state]
	if !ok {
		actions = make(map[game.Action]float64)
		a.qtable[state] = actions
	}
	actions[action] = current + a.alpha*(target-current)
}

// DecayEpsilon lowers the exploration rate by one decay step, clamped at the
// configured floor. Iterating it never produces a value below EpsilonMin.
func (a *Agent) DecayEpsilon() {
	a.epsilon = math.Max(a.epsilonMin, a.epsilon*a.epsilonDecay)
}

// Epsilon returns the current exploration rate.
func (a *Agent) Epsilon() float64 { return a.epsilon }

// SetEpsilon overrides the exploration rate, clamped to [0, 1]. Evaluation
// uses this to pin epsilon at 0 and restore the original value afterwards.
func (a *Agent) SetEpsilon(epsilon float64) {
	a.epsilon = math.Max(0.0, math.Min(1.0, epsilon))
}

// ResetEpsilon restores the exploration rate to its starting value.
func (a *Agent) ResetEpsilon() { a.epsilon = a.epsilonStart }

// SetRand swaps the random source. The trainer reseeds the agent for
// deterministic multi-seed evaluation.
func (a *Agent) SetRand(rng *rand.Rand) { a.rng = rng }

// Hyperparameter accessors.
func (a *Agent) Alpha() float64        { return a.alpha }
func (a *Agent) Gamma() float64        { return a.gamma }
func (a *Agent) EpsilonStart() float64 { return a.epsilonStart }
func (a *Agent) EpsilonMin() float64   { return a.epsilonMin }
func (a *Agent) EpsilonDecay() float64 { return a.epsilonDecay }

// StatesLearned returns the number of states with at least one updated
// action value.
func (a *Agent) StatesLearned() int { return len(a.qtable) }

// SnapshotQTable returns a deep copy of the Q-table for persistence or
// read-only analysis.
func (a *Agent) SnapshotQTable() QTable { return a.qtable.Clone() }

// LoadQTable replaces the agent's Q-table with a copy of the given one.
func (a *Agent) LoadQTable(q QTable) {
	a.qtable = q.Clone()
	a.logger.Debug().Int("states", len(a.qtable)).Msg("Loaded Q-table")
}

// RestoreHyperparameters overwrites the agent's hyperparameters from a saved
// snapshot. Values are trusted; snapshots were validated when created.
func (a *Agent) RestoreHyperparameters(alpha, gamma, epsilon, epsilonStart, epsilonMin, epsilonDecay float64) {
	a.alpha = alpha
	a.gamma = gamma
	a.epsilon = epsilon
	a.epsilonStart = epsilonStart
	a.epsilonMin = epsilonMin
	a.epsilonDecay = epsilonDecay
}

// Stats summarizes the learned value function.
type Stats struct {
	TotalStates       int     `json:"total_states"`
	TotalStateActions int     `json:"total_state_actions"`
	AvgQValue         float64 `json:"avg_q_value"`
	MaxQValue         float64 `json:"max_q_value"`
	MinQValue         float64 `json:"min_q_value"`
	StdQValue         float64 `json:"std_q_value"`
	Epsilon           float64 `json:"epsilon"`
	Alpha             float64 `json:"alpha"`
	Gamma             float64 `json:"gamma"`
}

// Stats computes summary statistics over the Q-table.
func (a *Agent) Stats() Stats {
	s := Stats{
		TotalStates: len(a.qtable),
		Epsilon:     a.epsilon,
		Alpha:       a.alpha,
		Gamma:       a.gamma,
	}

	var sum, sumSq float64
	minQ, maxQ := math.Inf(1), math.Inf(-1)
	for _, actions := range a.qtable {
		s.TotalStateActions += len(actions)
		for _, q := range actions {
			sum += q
			sumSq += q * q
			if q < minQ {
				minQ = q
			}
			if q > maxQ {
				maxQ = q
			}
		}
	}

	if s.TotalStateActions > 0 {
		n := float64(s.TotalStateActions)
		mean := sum / n
		s.AvgQValue = mean
		s.MaxQValue = maxQ
		s.MinQValue = minQ
		s.StdQValue = math.Sqrt(math.Max(0, sumSq/n-mean*mean))
	}
	return s
}
