// Package automl searches the Q-learning hyperparameter space with grid and
// random strategies, training one agent per configuration and ranking the
// results by composite score.
package automl

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/arenalab/qarena/internal/agent"
	"github.com/arenalab/qarena/internal/game"
	"github.com/arenalab/qarena/internal/metrics"
	"github.com/arenalab/qarena/internal/model"
	"github.com/arenalab/qarena/internal/trainer"
)

// ErrEmptyGrid is returned when a search has no configurations to try.
var ErrEmptyGrid = errors.New("no hyperparameter configurations to search")

// Grid lists the candidate values per hyperparameter. Nil slices fall back
// to the respective default value.
type Grid struct {
	Alpha        []float64
	Gamma        []float64
	Epsilon      []float64
	EpsilonMin   []float64
	EpsilonDecay []float64
}

// DefaultGrid covers the ranges that matter most for tabular Q-learning on
// small games.
func DefaultGrid() Grid {
	return Grid{
		Alpha:        []float64{0.1, 0.15, 0.2, 0.25, 0.3},
		Gamma:        []float64{0.90, 0.92, 0.95, 0.97, 0.99},
		EpsilonDecay: []float64{0.990, 0.995, 0.997, 0.999},
	}
}

// Range bounds one hyperparameter for random search.
type Range struct {
	Min, Max float64
}

func (r Range) sample(rng *rand.Rand) float64 {
	return r.Min + rng.Float64()*(r.Max-r.Min)
}

// Distributions bounds each hyperparameter for random search. A zero Range
// keeps the default value.
type Distributions struct {
	Alpha        Range
	Gamma        Range
	Epsilon      Range
	EpsilonMin   Range
	EpsilonDecay Range
}

// DefaultDistributions spans the usable region of each hyperparameter.
func DefaultDistributions() Distributions {
	return Distributions{
		Alpha:        Range{0.05, 0.5},
		Gamma:        Range{0.85, 0.99},
		EpsilonDecay: Range{0.98, 0.9999},
		EpsilonMin:   Range{0.001, 0.1},
	}
}

// Trial is the outcome of training one configuration.
type Trial struct {
	ID             int          `json:"config_id"`
	Timestamp      time.Time    `json:"timestamp"`
	Config         agent.Config `json:"config"`
	TrainWinRate   float64      `json:"train_win_rate"`
	EvalWinRate    float64      `json:"eval_win_rate"`
	EvalDrawRate   float64      `json:"eval_draw_rate"`
	EvalLossRate   float64      `json:"eval_loss_rate"`
	StatesLearned  int          `json:"states_learned"`
	FinalEpsilon   float64      `json:"final_epsilon"`
	CompositeScore float64      `json:"composite_score"`
	Performance    float64      `json:"performance_score"`
	Efficiency     float64      `json:"efficiency_score"`
	Robustness     float64      `json:"robustness_score"`
	LearningSpeed  float64      `json:"learning_speed"`
}

// SweepResult collects every trial of one search, best first.
type SweepResult struct {
	Best     Trial         `json:"best"`
	Trials   []Trial       `json:"trials"`
	Duration time.Duration `json:"duration"`
}

// SweepProgress is an immutable snapshot of a sweep in flight.
type SweepProgress struct {
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	BestScore float64 `json:"best_score"`
	BestID    int     `json:"best_config_id"`
}

// Options configures one sweep.
type Options struct {
	Episodes   int
	EvalGames  int
	EvalSeeds  int
	MaxConfigs int
	Seed       int64
	Workers    int
}

func (o *Options) normalize() {
	if o.Episodes <= 0 {
		o.Episodes = 10000
	}
	if o.EvalGames <= 0 {
		o.EvalGames = 100
	}
	if o.EvalSeeds <= 0 {
		o.EvalSeeds = 3
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
}

// Tuner runs hyperparameter sweeps. Configurations are independent, so
// trials run on a bounded worker pool; each worker owns its own agent,
// environment and trainer, and nothing is shared between trials except the
// progress board.
type Tuner struct {
	newEnv      func() game.Environment
	resultsPath string
	logger      zerolog.Logger

	completed atomic.Int64
	progress  atomic.Pointer[SweepProgress]

	mu        sync.Mutex
	bestScore float64
	bestID    int
}

// NewTuner creates a tuner. newEnv must return a fresh environment per call;
// resultsPath may be empty to skip the CSV export.
func NewTuner(newEnv func() game.Environment, resultsPath string, logger zerolog.Logger) *Tuner {
	return &Tuner{
		newEnv:      newEnv,
		resultsPath: resultsPath,
		logger:      logger.With().Str("component", "automl").Logger(),
	}
}

// Progress returns the latest published sweep snapshot. Safe to poll from
// any goroutine.
func (t *Tuner) Progress() SweepProgress {
	if p := t.progress.Load(); p != nil {
		return *p
	}
	return SweepProgress{}
}

// GridSearch trains every combination of the grid's values, capped at
// opts.MaxConfigs when set, and returns the trials ranked by composite
// score.
func (t *Tuner) GridSearch(ctx context.Context, grid Grid, opts Options) (*SweepResult, error) {
	configs := enumerate(grid)
	if opts.MaxConfigs > 0 && len(configs) > opts.MaxConfigs {
		configs = configs[:opts.MaxConfigs]
	}
	t.logger.Info().Int("configs", len(configs)).Msg("Starting grid search")
	return t.run(ctx, configs, opts)
}

// RandomSearch samples nIter configurations uniformly from the given ranges.
// The samples are drawn up front from opts.Seed, so a sweep is reproducible
// regardless of worker scheduling.
func (t *Tuner) RandomSearch(ctx context.Context, dist Distributions, nIter int, opts Options) (*SweepResult, error) {
	if nIter <= 0 {
		return nil, ErrEmptyGrid
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	configs := make([]agent.Config, nIter)
	for i := range configs {
		cfg := agent.DefaultConfig()
		if dist.Alpha != (Range{}) {
			cfg.Alpha = dist.Alpha.sample(rng)
		}
		if dist.Gamma != (Range{}) {
			cfg.Gamma = dist.Gamma.sample(rng)
		}
		if dist.Epsilon != (Range{}) {
			cfg.Epsilon = dist.Epsilon.sample(rng)
		}
		if dist.EpsilonMin != (Range{}) {
			cfg.EpsilonMin = dist.EpsilonMin.sample(rng)
		}
		if dist.EpsilonDecay != (Range{}) {
			cfg.EpsilonDecay = dist.EpsilonDecay.sample(rng)
		}
		configs[i] = cfg
	}

	t.logger.Info().Int("configs", len(configs)).Msg("Starting random search")
	return t.run(ctx, configs, opts)
}

func (t *Tuner) run(ctx context.Context, configs []agent.Config, opts Options) (*SweepResult, error) {
	if len(configs) == 0 {
		return nil, ErrEmptyGrid
	}
	opts.normalize()

	t.completed.Store(0)
	t.mu.Lock()
	t.bestScore, t.bestID = 0, -1
	t.mu.Unlock()
	t.publish(len(configs))

	start := time.Now()
	trials := make([]Trial, len(configs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, cfg := range configs {
		i, cfg := i, cfg
		g.Go(func() error {
			trial, err := t.runTrial(ctx, i, cfg, opts)
			if err != nil {
				return err
			}
			trials[i] = *trial

			t.completed.Add(1)
			t.mu.Lock()
			if trial.CompositeScore > t.bestScore || t.bestID < 0 {
				t.bestScore = trial.CompositeScore
				t.bestID = trial.ID
			}
			t.mu.Unlock()
			t.publish(len(configs))

			t.logger.Debug().
				Int("config_id", trial.ID).
				Float64("composite_score", trial.CompositeScore).
				Float64("eval_win_rate", trial.EvalWinRate).
				Msg("Trial complete")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(trials, func(i, j int) bool {
		return trials[i].CompositeScore > trials[j].CompositeScore
	})
	result := &SweepResult{
		Best:     trials[0],
		Trials:   trials,
		Duration: time.Since(start),
	}

	if t.resultsPath != "" {
		if err := t.exportCSV(trials); err != nil {
			t.logger.Warn().Err(err).Msg("Failed to export sweep results")
		}
	}

	t.logger.Info().
		Int("config_id", result.Best.ID).
		Float64("composite_score", result.Best.CompositeScore).
		Dur("duration", result.Duration).
		Msg("Sweep complete")
	return result, nil
}

func (t *Tuner) runTrial(ctx context.Context, id int, cfg agent.Config, opts Options) (*Trial, error) {
	rng := rand.New(rand.NewSource(opts.Seed + int64(id)))
	a, err := agent.New(cfg, rng, zerolog.Nop())
	if err != nil {
		return nil, fmt.Errorf("config %d: %w", id, err)
	}

	tr := trainer.New(a, t.newEnv(), nil, rng, zerolog.Nop())
	res, err := tr.Train(ctx, trainer.Options{
		NumEpisodes:  opts.Episodes,
		EvalGames:    opts.EvalGames,
		EvalSeeds:    opts.EvalSeeds,
		EvalBaseSeed: opts.Seed + int64(id),
	})
	if err != nil {
		return nil, fmt.Errorf("config %d: %w", id, err)
	}
	eval := res.Evaluation

	rec := model.Record{Meta: trialMetadata(cfg, res)}
	report, _ := metrics.ComputeAll(rec, a.SnapshotQTable(), res.RewardHistory)

	return &Trial{
		ID:             id,
		Timestamp:      time.Now(),
		Config:         cfg,
		TrainWinRate:   res.WinRate,
		EvalWinRate:    eval.WinRateMean,
		EvalDrawRate:   eval.DrawRate,
		EvalLossRate:   eval.LossRate,
		StatesLearned:  res.StatesLearned,
		FinalEpsilon:   res.FinalEpsilon,
		CompositeScore: report.CompositeScore,
		Performance:    report.PerformanceScore,
		Efficiency:     report.EfficiencyScore,
		Robustness:     report.RobustnessScore,
		LearningSpeed:  report.LearningSpeed,
	}, nil
}

func trialMetadata(cfg agent.Config, res *trainer.Result) model.Metadata {
	eval := res.Evaluation
	win, draw, loss := eval.WinRateMean, eval.DrawRate, eval.LossRate
	return model.Metadata{
		FinalWinRate:  &win,
		FinalDrawRate: &draw,
		FinalLossRate: &loss,
		TotalEpisodes: res.Episodes,
		StatesLearned: res.StatesLearned,
		AvgReward:     res.AvgReward,
		AvgMoves:      res.AvgMoves,
		Hyperparams: model.Hyperparameters{
			Alpha:        cfg.Alpha,
			Gamma:        cfg.Gamma,
			EpsilonStart: cfg.Epsilon,
			EpsilonFinal: res.FinalEpsilon,
			EpsilonMin:   cfg.EpsilonMin,
			EpsilonDecay: cfg.EpsilonDecay,
		},
	}
}

func (t *Tuner) publish(total int) {
	t.mu.Lock()
	p := SweepProgress{
		Completed: int(t.completed.Load()),
		Total:     total,
		BestScore: t.bestScore,
		BestID:    t.bestID,
	}
	t.mu.Unlock()
	t.progress.Store(&p)
}

func (t *Tuner) exportCSV(trials []Trial) error {
	if dir := filepath.Dir(t.resultsPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(t.resultsPath)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"config_id", "alpha", "gamma", "epsilon", "epsilon_min",
		"epsilon_decay", "train_win_rate", "eval_win_rate", "eval_draw_rate",
		"eval_loss_rate", "states_learned", "final_epsilon",
		"composite_score", "performance_score", "efficiency_score",
		"robustness_score", "learning_speed",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, trial := range trials {
		row := []string{
			fmt.Sprintf("%d", trial.ID),
			fmt.Sprintf("%.4f", trial.Config.Alpha),
			fmt.Sprintf("%.4f", trial.Config.Gamma),
			fmt.Sprintf("%.4f", trial.Config.Epsilon),
			fmt.Sprintf("%.4f", trial.Config.EpsilonMin),
			fmt.Sprintf("%.6f", trial.Config.EpsilonDecay),
			fmt.Sprintf("%.2f", trial.TrainWinRate),
			fmt.Sprintf("%.2f", trial.EvalWinRate),
			fmt.Sprintf("%.2f", trial.EvalDrawRate),
			fmt.Sprintf("%.2f", trial.EvalLossRate),
			fmt.Sprintf("%d", trial.StatesLearned),
			fmt.Sprintf("%.6f", trial.FinalEpsilon),
			fmt.Sprintf("%.2f", trial.CompositeScore),
			fmt.Sprintf("%.2f", trial.Performance),
			fmt.Sprintf("%.2f", trial.Efficiency),
			fmt.Sprintf("%.2f", trial.Robustness),
			fmt.Sprintf("%.2f", trial.LearningSpeed),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// enumerate expands a grid into the cross product of its value lists.
// Missing axes use the default configuration's value.
func enumerate(grid Grid) []agent.Config {
	def := agent.DefaultConfig()
	alphas := orDefault(grid.Alpha, def.Alpha)
	gammas := orDefault(grid.Gamma, def.Gamma)
	epsilons := orDefault(grid.Epsilon, def.Epsilon)
	mins := orDefault(grid.EpsilonMin, def.EpsilonMin)
	decays := orDefault(grid.EpsilonDecay, def.EpsilonDecay)

	var configs []agent.Config
	for _, alpha := range alphas {
		for _, gamma := range gammas {
			for _, epsilon := range epsilons {
				for _, min := range mins {
					for _, decay := range decays {
						configs = append(configs, agent.Config{
							Alpha:        alpha,
							Gamma:        gamma,
							Epsilon:      epsilon,
							EpsilonMin:   min,
							EpsilonDecay: decay,
						})
					}
				}
			}
		}
	}
	return configs
}

func orDefault(values []float64, def float64) []float64 {
	if len(values) == 0 {
		return []float64{def}
	}
	return values
}
