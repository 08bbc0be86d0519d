package trainer

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arenalab/qarena/internal/agent"
	"github.com/arenalab/qarena/internal/game"
	"github.com/arenalab/qarena/internal/testutil"
)

func newTestTrainer(t *testing.T, seed int64) (*Trainer, *agent.Agent) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	a, err := agent.New(agent.DefaultConfig(), rng, testutil.NopLogger())
	require.NoError(t, err)
	return New(a, game.NewTicTacToe(), nil, rng, testutil.NopLogger()), a
}

func TestPlayEpisodeAlwaysTerminates(t *testing.T) {
	tr, _ := newTestTrainer(t, 1)
	for i := 0; i < 200; i++ {
		winner, moves, err := tr.PlayEpisode(i%2 == 0, true)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, moves, 5)
		assert.LessOrEqual(t, moves, 9)
		assert.Contains(t, []game.Player{game.PlayerX, game.PlayerO, game.PlayerNone}, winner)
	}
}

// suddenEnv ends the game on the very first move, won by whoever opened.
// Tic-tac-toe can never do that; other environments can.
type suddenEnv struct {
	winner game.Player
}

func (e *suddenEnv) Reset() game.State {
	e.winner = game.PlayerNone
	return "open"
}

func (e *suddenEnv) LegalActions(game.State) []game.Action {
	if e.winner != game.PlayerNone {
		return nil
	}
	return []game.Action{0}
}

func (e *suddenEnv) ApplyAction(game.Action) (game.State, float64, bool, error) {
	e.winner = game.PlayerX
	return "won", 1.0, true, nil
}

func (e *suddenEnv) Winner() game.Player { return e.winner }

func TestPlayEpisodeOpponentOpeningCanEndGame(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	a, err := agent.New(agent.DefaultConfig(), rng, testutil.NopLogger())
	require.NoError(t, err)
	tr := New(a, &suddenEnv{}, nil, rng, testutil.NopLogger())

	winner, moves, err := tr.PlayEpisode(false, true)
	require.NoError(t, err)
	assert.Equal(t, game.PlayerX, winner)
	assert.Equal(t, 1, moves)

	// The agent never acted, so nothing was learned.
	assert.Zero(t, a.StatesLearned())
}

func TestPlayEpisodeWithoutUpdatesLeavesTableUntouched(t *testing.T) {
	tr, a := newTestTrainer(t, 2)
	for i := 0; i < 20; i++ {
		_, _, err := tr.PlayEpisode(i%2 == 0, false)
		require.NoError(t, err)
	}
	assert.Zero(t, a.StatesLearned())
}

func TestTrainOutcomeCountsSumToEpisodes(t *testing.T) {
	tr, a := newTestTrainer(t, 3)
	res, err := tr.Train(context.Background(), Options{NumEpisodes: 200})
	require.NoError(t, err)

	assert.Equal(t, 200, res.Episodes)
	assert.Equal(t, 200, res.Wins+res.Draws+res.Losses)
	assert.InDelta(t, 100.0, res.WinRate+res.DrawRate+res.LossRate, 1e-9)
	assert.Greater(t, res.StatesLearned, 0)
	assert.Equal(t, a.StatesLearned(), res.StatesLearned)
	assert.Less(t, res.FinalEpsilon, a.EpsilonStart())
	assert.Nil(t, res.Evaluation)
	assert.Nil(t, res.Saved)
}

func TestTrainRejectsNonPositiveEpisodes(t *testing.T) {
	tr, _ := newTestTrainer(t, 4)
	_, err := tr.Train(context.Background(), Options{NumEpisodes: 0})
	assert.True(t, errors.Is(err, ErrNoEpisodes))
}

func TestTrainRespectsCancellation(t *testing.T) {
	tr, _ := newTestTrainer(t, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.Train(ctx, Options{NumEpisodes: 1000})
	assert.True(t, errors.Is(err, context.Canceled))

	// The run slot must be released so a fresh run can start.
	_, err = tr.Train(context.Background(), Options{NumEpisodes: 10})
	assert.NoError(t, err)
}

func TestTrainRunsEvaluationWhenRequested(t *testing.T) {
	tr, _ := newTestTrainer(t, 6)
	res, err := tr.Train(context.Background(), Options{
		NumEpisodes:  500,
		EvalGames:    20,
		EvalSeeds:    3,
		EvalBaseSeed: 42,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Evaluation)

	eval := res.Evaluation
	assert.Equal(t, 20, eval.Games)
	require.Len(t, eval.Seeds, 3)
	for i, s := range eval.Seeds {
		assert.Equal(t, int64(42+i), s.Seed)
		assert.Equal(t, 20, s.Wins+s.Draws+s.Losses)
	}
	assert.GreaterOrEqual(t, eval.WinRateMax, eval.WinRateMean)
	assert.LessOrEqual(t, eval.WinRateMin, eval.WinRateMean)
	assert.GreaterOrEqual(t, eval.WinRateStd, 0.0)
}

func TestEvaluateIsSeedReproducible(t *testing.T) {
	tr, _ := newTestTrainer(t, 7)
	_, err := tr.Train(context.Background(), Options{NumEpisodes: 500})
	require.NoError(t, err)

	first, err := tr.Evaluate(context.Background(), 30, 0.0, 4, 99)
	require.NoError(t, err)
	second, err := tr.Evaluate(context.Background(), 30, 0.0, 4, 99)
	require.NoError(t, err)

	assert.Equal(t, first.Seeds, second.Seeds)
	assert.Equal(t, first.WinRateMean, second.WinRateMean)
	assert.Equal(t, first.WinRateStd, second.WinRateStd)
}

func TestEvaluateRestoresEpsilon(t *testing.T) {
	tr, a := newTestTrainer(t, 8)
	a.SetEpsilon(0.37)

	_, err := tr.Evaluate(context.Background(), 10, 0.0, 2, 1)
	require.NoError(t, err)
	assert.InDelta(t, 0.37, a.Epsilon(), 1e-12)
}

func TestEvaluateRejectsNonPositiveGames(t *testing.T) {
	tr, _ := newTestTrainer(t, 9)
	_, err := tr.Evaluate(context.Background(), 0, 0.0, 1, 1)
	assert.True(t, errors.Is(err, ErrNoEpisodes))
}

func TestBuildMetadataCarriesEvaluation(t *testing.T) {
	tr, _ := newTestTrainer(t, 10)
	res, err := tr.Train(context.Background(), Options{
		NumEpisodes:  300,
		EvalGames:    10,
		EvalSeeds:    2,
		EvalBaseSeed: 7,
	})
	require.NoError(t, err)

	meta := tr.buildMetadata(Options{}, res)
	require.NotNil(t, meta.FinalWinRate)
	assert.InDelta(t, res.Evaluation.WinRateMean, *meta.FinalWinRate, 1e-12)
	assert.Equal(t, 10, meta.EvalGames)
	assert.Equal(t, 2, meta.EvalSeeds)
	require.NotNil(t, meta.Robustness)
	assert.Len(t, meta.Robustness.SeedResults, 2)
	require.NotNil(t, meta.TrainingStats)
	assert.InDelta(t, res.WinRate, meta.TrainingStats.TrainWinRate, 1e-12)
}

func TestProgressReportsPhaseAndCounts(t *testing.T) {
	tr, _ := newTestTrainer(t, 11)
	assert.Equal(t, PhaseIdle, tr.Progress().Phase)

	_, err := tr.Train(context.Background(), Options{NumEpisodes: 50})
	require.NoError(t, err)

	p := tr.Progress()
	assert.Equal(t, PhaseDone, p.Phase)
	assert.Equal(t, 50, p.Episode)
	assert.Equal(t, 50, p.TotalEpisodes)
	assert.Greater(t, p.StatesLearned, 0)
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "idle", PhaseIdle.String())
	assert.Equal(t, "training", PhaseTraining.String())
	assert.Equal(t, "evaluating", PhaseEvaluating.String())
	assert.Equal(t, "done", PhaseDone.String())
}
