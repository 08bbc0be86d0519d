// Package trainer drives self-play training runs and the deterministic
// multi-seed evaluation protocol that produces a model's reported numbers.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/arenalab/qarena/internal/agent"
	"github.com/arenalab/qarena/internal/game"
	"github.com/arenalab/qarena/internal/model"
)

// Phase names the stage a run is in. Published with every progress snapshot.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseTraining
	PhaseEvaluating
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseTraining:
		return "training"
	case PhaseEvaluating:
		return "evaluating"
	case PhaseDone:
		return "done"
	default:
		return "idle"
	}
}

// MarshalText renders the phase name in JSON progress snapshots.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

var (
	// ErrRunInProgress is returned when Train or Evaluate is invoked while
	// another run already owns the agent.
	ErrRunInProgress = errors.New("training run already in progress")

	// ErrNoEpisodes is returned for a run request with a non-positive
	// episode or game count.
	ErrNoEpisodes = errors.New("episode count must be positive")
)

const (
	// recentWindow bounds the per-episode reward and length history kept for
	// rolling averages and the return-variance metric.
	recentWindow = 1000

	logInterval = 1000
)

// Options configures one training run.
type Options struct {
	NumEpisodes  int
	EvalGames    int
	EvalSeeds    int
	EvalBaseSeed int64
	SaveName     string
	Versioned    bool
}

// Result summarizes a completed training run. Training-time rates are
// exploration-contaminated; the evaluation block carries the trustworthy
// numbers.
type Result struct {
	Episodes      int                `json:"episodes"`
	Wins          int                `json:"wins"`
	Draws         int                `json:"draws"`
	Losses        int                `json:"losses"`
	WinRate       float64            `json:"win_rate"`
	DrawRate      float64            `json:"draw_rate"`
	LossRate      float64            `json:"loss_rate"`
	AvgReward     float64            `json:"avg_reward"`
	AvgMoves      float64            `json:"avg_moves"`
	FinalEpsilon  float64            `json:"final_epsilon"`
	StatesLearned int                `json:"states_learned"`
	Evaluation    *EvaluationResult  `json:"evaluation,omitempty"`
	Saved         *model.Record      `json:"saved,omitempty"`
	RewardHistory []float64          `json:"-"`
}

// EvaluationResult aggregates frozen-policy play across deterministic seeds.
type EvaluationResult struct {
	Games       int                `json:"games_per_seed"`
	Seeds       []model.SeedResult `json:"seeds"`
	WinRateMean float64            `json:"win_rate_mean"`
	WinRateStd  float64            `json:"win_rate_std"`
	WinRateMin  float64            `json:"win_rate_min"`
	WinRateMax  float64            `json:"win_rate_max"`
	DrawRate    float64            `json:"draw_rate"`
	LossRate    float64            `json:"loss_rate"`
	AvgReward   float64            `json:"avg_reward"`
	AvgMoves    float64            `json:"avg_moves"`
}

// Trainer owns one agent, one environment and a fixed random baseline
// opponent. A Trainer is the single logical owner of its agent's Q-table:
// only one Train or Evaluate call may run at a time.
type Trainer struct {
	agent    *agent.Agent
	env      game.Environment
	opponent *agent.RandomPolicy
	store    *model.Store
	rng      *rand.Rand
	logger   zerolog.Logger

	running atomic.Bool
	board   progressBoard

	wins, draws, losses int
	rewards             *Window
	lengths             *Window
	sumReward           float64
	sumMoves            float64
	episodes            int
}

// New creates a trainer. The store may be nil when snapshots are not wanted,
// e.g. inside hyperparameter sweeps.
func New(a *agent.Agent, env game.Environment, store *model.Store, rng *rand.Rand, logger zerolog.Logger) *Trainer {
	return &Trainer{
		agent:    a,
		env:      env,
		opponent: agent.NewRandomPolicy(rng),
		store:    store,
		rng:      rng,
		logger:   logger.With().Str("component", "trainer").Logger(),
		rewards:  NewWindow(recentWindow),
		lengths:  NewWindow(recentWindow),
	}
}

// Progress returns the latest published run snapshot. Safe to call from any
// goroutine while a run is in flight.
func (t *Trainer) Progress() Progress {
	return t.board.snapshot()
}

// PlayEpisode runs one full game between the agent and the baseline
// opponent and returns the winner and the move count. When updateAgent is
// set, Q-table updates are applied as the episode unfolds.
//
// The environment reports rewards from the mover's perspective only, so the
// outcome of the opponent's reply has to be translated before it can credit
// or blame the agent's previous move: an opponent win costs the agent -1.0,
// a draw on the opponent's move yields +0.5, an ongoing game 0.0.
func (t *Trainer) PlayEpisode(agentStarts, updateAgent bool) (game.Player, int, error) {
	state := t.env.Reset()
	moves := 0

	if !agentStarts {
		legal := t.env.LegalActions(state)
		action, err := t.opponent.ChooseAction(state, legal, 0)
		if err != nil {
			return game.PlayerNone, moves, fmt.Errorf("environment contract violated: %w", err)
		}
		next, _, done, err := t.env.ApplyAction(action)
		if err != nil {
			return game.PlayerNone, moves, err
		}
		state = next
		moves++
		if done {
			return t.env.Winner(), moves, nil
		}
	}

	for {
		// Agent's turn.
		legal := t.env.LegalActions(state)
		action, err := t.agent.Act(state, legal)
		if err != nil {
			return game.PlayerNone, moves, fmt.Errorf("environment contract violated: %w", err)
		}
		next, reward, done, err := t.env.ApplyAction(action)
		if err != nil {
			return game.PlayerNone, moves, err
		}
		moves++

		if done {
			if updateAgent {
				t.agent.Update(state, action, reward, next, t.env.LegalActions(next), true)
			}
			break
		}

		prevState, prevAction := state, action
		state = next

		// Opponent's turn.
		legal = t.env.LegalActions(state)
		oppAction, err := t.opponent.ChooseAction(state, legal, 0)
		if err != nil {
			return game.PlayerNone, moves, fmt.Errorf("environment contract violated: %w", err)
		}
		next, oppReward, oppDone, err := t.env.ApplyAction(oppAction)
		if err != nil {
			return game.PlayerNone, moves, err
		}
		state = next
		moves++

		if updateAgent {
			// Draw must be recognized before the win check: the draw reward
			// (+0.5) is also positive from the opponent's perspective.
			var final float64
			switch {
			case oppDone && oppReward == 0.5:
				final = 0.5
			case oppDone && oppReward > 0:
				final = -1.0
			}
			t.agent.Update(prevState, prevAction, final, state, t.env.LegalActions(state), oppDone)
		}

		if oppDone {
			break
		}
	}

	return t.env.Winner(), moves, nil
}

// Train runs the full sequence: self-play training, deterministic multi-seed
// evaluation and, when a store is configured, a snapshot save. Cancellation
// is checked between episodes; a cancelled run returns ctx.Err with counters
// reflecting the episodes completed so far.
func (t *Trainer) Train(ctx context.Context, opts Options) (*Result, error) {
	if opts.NumEpisodes <= 0 {
		return nil, ErrNoEpisodes
	}
	if !t.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer t.running.Store(false)

	t.resetStats()

	t.logger.Info().
		Int("episodes", opts.NumEpisodes).
		Float64("alpha", t.agent.Alpha()).
		Float64("gamma", t.agent.Gamma()).
		Float64("epsilon", t.agent.Epsilon()).
		Float64("epsilon_min", t.agent.EpsilonMin()).
		Float64("epsilon_decay", t.agent.EpsilonDecay()).
		Msg("Starting training run")

	for episode := 1; episode <= opts.NumEpisodes; episode++ {
		if err := ctx.Err(); err != nil {
			t.board.publish(t.progressAt(PhaseIdle, episode-1, opts.NumEpisodes))
			return nil, err
		}

		agentStarts := episode%2 == 1
		winner, moveCount, err := t.PlayEpisode(agentStarts, true)
		if err != nil {
			return nil, err
		}
		t.recordOutcome(agentStarts, winner, moveCount)
		t.agent.DecayEpsilon()

		t.board.publish(t.progressAt(PhaseTraining, episode, opts.NumEpisodes))
		if episode%logInterval == 0 {
			t.logProgress(episode, opts.NumEpisodes)
		}
	}

	result := t.buildResult(opts.NumEpisodes)

	t.board.publish(t.progressAt(PhaseEvaluating, opts.NumEpisodes, opts.NumEpisodes))
	if opts.EvalGames > 0 {
		eval, err := t.evaluateLocked(ctx, opts.EvalGames, 0.0, opts.EvalSeeds, opts.EvalBaseSeed)
		if err != nil {
			return nil, err
		}
		result.Evaluation = eval
	}

	if t.store != nil {
		rec, err := t.store.Save(t.agent, opts.SaveName, opts.Versioned, t.buildMetadata(opts, result))
		if err != nil {
			return nil, err
		}
		result.Saved = rec
	}

	t.board.publish(t.progressAt(PhaseDone, opts.NumEpisodes, opts.NumEpisodes))
	t.logger.Info().
		Float64("train_win_rate", result.WinRate).
		Int("states_learned", result.StatesLearned).
		Float64("final_epsilon", result.FinalEpsilon).
		Msg("Training run complete")

	return result, nil
}

// Evaluate plays numGames frozen-policy games per seed against the baseline
// opponent. Each seed reseeds both sides deterministically from
// baseSeed+seedIndex, so repeated runs reproduce identical per-seed results.
// The agent's exploration state and random source are restored afterwards.
func (t *Trainer) Evaluate(ctx context.Context, numGames int, epsilon float64, numSeeds int, baseSeed int64) (*EvaluationResult, error) {
	if !t.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer t.running.Store(false)
	return t.evaluateLocked(ctx, numGames, epsilon, numSeeds, baseSeed)
}

func (t *Trainer) evaluateLocked(ctx context.Context, numGames int, epsilon float64, numSeeds int, baseSeed int64) (*EvaluationResult, error) {
	if numGames <= 0 {
		return nil, ErrNoEpisodes
	}
	if numSeeds <= 0 {
		numSeeds = 1
	}

	originalEpsilon := t.agent.Epsilon()
	t.agent.SetEpsilon(epsilon)
	defer func() {
		t.agent.SetEpsilon(originalEpsilon)
		t.agent.SetRand(t.rng)
		t.opponent.SetRand(t.rng)
	}()

	res := &EvaluationResult{
		Games:      numGames,
		Seeds:      make([]model.SeedResult, 0, numSeeds),
		WinRateMin: math.MaxFloat64,
	}

	var totalReward, totalMoves float64
	var totalDraws, totalLosses, totalGames int

	for i := 0; i < numSeeds; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rng := rand.New(rand.NewSource(baseSeed + int64(i)))
		t.agent.SetRand(rng)
		t.opponent.SetRand(rng)

		var wins, draws, losses int
		for g := 1; g <= numGames; g++ {
			agentStarts := g%2 == 1
			winner, moveCount, err := t.PlayEpisode(agentStarts, false)
			if err != nil {
				return nil, err
			}
			switch winner {
			case agentSide(agentStarts):
				wins++
				totalReward += 1.0
			case game.PlayerNone:
				draws++
			default:
				losses++
				totalReward -= 1.0
			}
			totalMoves += float64(moveCount)
		}

		seed := model.SeedResult{
			Seed:     baseSeed + int64(i),
			NumGames: numGames,
			Wins:     wins,
			Draws:    draws,
			Losses:   losses,
			WinRate:  rate(wins, numGames),
			DrawRate: rate(draws, numGames),
			LossRate: rate(losses, numGames),
		}
		res.Seeds = append(res.Seeds, seed)

		totalDraws += draws
		totalLosses += losses
		totalGames += numGames
		res.WinRateMin = math.Min(res.WinRateMin, seed.WinRate)
		res.WinRateMax = math.Max(res.WinRateMax, seed.WinRate)

		t.logger.Debug().
			Int64("seed", seed.Seed).
			Float64("win_rate", seed.WinRate).
			Float64("draw_rate", seed.DrawRate).
			Msg("Evaluation seed complete")
	}

	var sum, sumSq float64
	for _, s := range res.Seeds {
		sum += s.WinRate
		sumSq += s.WinRate * s.WinRate
	}
	n := float64(len(res.Seeds))
	res.WinRateMean = sum / n
	res.WinRateStd = math.Sqrt(math.Max(0, sumSq/n-res.WinRateMean*res.WinRateMean))
	res.DrawRate = rate(totalDraws, totalGames)
	res.LossRate = rate(totalLosses, totalGames)
	res.AvgReward = totalReward / float64(totalGames)
	res.AvgMoves = totalMoves / float64(totalGames)

	t.logger.Info().
		Int("seeds", numSeeds).
		Int("games_per_seed", numGames).
		Float64("win_rate_mean", res.WinRateMean).
		Float64("win_rate_std", res.WinRateStd).
		Msg("Evaluation complete")

	return res, nil
}

func (t *Trainer) recordOutcome(agentStarts bool, winner game.Player, moveCount int) {
	var reward float64
	switch winner {
	case agentSide(agentStarts):
		t.wins++
		reward = 1.0
	case game.PlayerNone:
		t.draws++
		reward = 0.0
	default:
		t.losses++
		reward = -1.0
	}
	t.rewards.Append(reward)
	t.lengths.Append(float64(moveCount))
	t.sumReward += reward
	t.sumMoves += float64(moveCount)
	t.episodes++
}

func (t *Trainer) resetStats() {
	t.wins, t.draws, t.losses = 0, 0, 0
	t.episodes = 0
	t.sumReward, t.sumMoves = 0, 0
	t.rewards.Reset()
	t.lengths.Reset()
}

func (t *Trainer) buildResult(numEpisodes int) *Result {
	return &Result{
		Episodes:      numEpisodes,
		Wins:          t.wins,
		Draws:         t.draws,
		Losses:        t.losses,
		WinRate:       rate(t.wins, numEpisodes),
		DrawRate:      rate(t.draws, numEpisodes),
		LossRate:      rate(t.losses, numEpisodes),
		AvgReward:     t.sumReward / float64(numEpisodes),
		AvgMoves:      t.sumMoves / float64(numEpisodes),
		FinalEpsilon:  t.agent.Epsilon(),
		StatesLearned: t.agent.StatesLearned(),
		RewardHistory: t.rewards.Values(),
	}
}

func (t *Trainer) buildMetadata(opts Options, result *Result) model.Metadata {
	meta := model.Metadata{
		TotalEpisodes: result.Episodes,
		AvgReward:     result.AvgReward,
		AvgMoves:      result.AvgMoves,
		TrainingStats: &model.TrainingStats{
			TrainWinRate:  result.WinRate,
			TrainDrawRate: result.DrawRate,
			TrainLossRate: result.LossRate,
		},
	}
	if eval := result.Evaluation; eval != nil {
		win, draw, loss := eval.WinRateMean, eval.DrawRate, eval.LossRate
		meta.FinalWinRate = &win
		meta.FinalDrawRate = &draw
		meta.FinalLossRate = &loss
		meta.EvalGames = eval.Games
		meta.EvalSeeds = len(eval.Seeds)
		meta.Robustness = &model.Robustness{
			WinRateStd:  eval.WinRateStd,
			WinRateMin:  eval.WinRateMin,
			WinRateMax:  eval.WinRateMax,
			SeedResults: eval.Seeds,
		}
	}
	return meta
}

func (t *Trainer) progressAt(phase Phase, episode, total int) Progress {
	return Progress{
		Phase:          phase,
		Episode:        episode,
		TotalEpisodes:  total,
		Epsilon:        t.agent.Epsilon(),
		StatesLearned:  t.agent.StatesLearned(),
		RecentWinRate:  rate(t.wins, t.episodes),
		RecentDrawRate: rate(t.draws, t.episodes),
		RecentReward:   t.rewards.Mean(),
	}
}

func (t *Trainer) logProgress(episode, total int) {
	t.logger.Debug().
		Int("episode", episode).
		Int("total", total).
		Float64("epsilon", t.agent.Epsilon()).
		Int("states_learned", t.agent.StatesLearned()).
		Float64("win_rate", rate(t.wins, t.episodes)).
		Float64("recent_avg_reward", t.rewards.Mean()).
		Float64("recent_avg_moves", t.lengths.Mean()).
		Msg("Training progress")
}

// agentSide returns the symbol the agent plays in an episode: X when it
// starts, O otherwise.
func agentSide(agentStarts bool) game.Player {
	if agentStarts {
		return game.PlayerX
	}
	return game.PlayerO
}

func rate(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(count) / float64(total) * 100
}
