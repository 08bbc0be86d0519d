package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arenalab/qarena/internal/agent"
	"github.com/arenalab/qarena/internal/model"
)

func floatPtr(v float64) *float64 { return &v }

func TestPerformanceScore(t *testing.T) {
	assert.InDelta(t, 85.0, PerformanceScore(80, 10), 1e-12)
	assert.InDelta(t, 50.0, PerformanceScore(0, 100), 1e-12)
}

func TestEfficiencyScore(t *testing.T) {
	// log10(990+10) = 3
	assert.InDelta(t, 80.0/3.0, EfficiencyScore(80, 990), 1e-12)
	assert.Zero(t, EfficiencyScore(80, 0))
}

func TestRobustnessScore(t *testing.T) {
	assert.InDelta(t, 1.6, RobustnessScore(0.8, 5), 1e-12)
	// Move counts below one do not amplify the score.
	assert.InDelta(t, 5.0, RobustnessScore(0.5, 0.2), 1e-12)
	assert.Zero(t, RobustnessScore(0.8, 0))
}

func TestLearningSpeedAndSampleEfficiency(t *testing.T) {
	assert.InDelta(t, 80.0/3.0, LearningSpeed(80, 990), 1e-12)
	assert.Zero(t, LearningSpeed(80, 0))
	assert.InDelta(t, 80.0/0.99, SampleEfficiency(80, 990), 1e-9)
	assert.Zero(t, SampleEfficiency(80, 0))
}

func TestConvergenceScore(t *testing.T) {
	assert.InDelta(t, 100.0, ConvergenceScore(0.01, 0.01), 1e-12)
	assert.InDelta(t, 0.0, ConvergenceScore(1.0, 0.01), 1e-12)
	// Halfway between floor and 1.0 scores 50.
	assert.InDelta(t, 50.0, ConvergenceScore(0.505, 0.01), 1e-9)
	// Degenerate floor at or above 1 counts as converged.
	assert.InDelta(t, 100.0, ConvergenceScore(0.5, 1.0), 1e-12)
}

func TestCompositeHandComputed(t *testing.T) {
	r := Report{
		PerformanceScore: 85,
		EfficiencyScore:  80.0 / 3.0,
		RobustnessScore:  1.6,
		LearningSpeed:    80.0 / 3.0,
		SampleEfficiency: 80.0 / 0.99,
		Convergence:      100,
		ReturnVariance:   0.3,
		PolicyEntropy:    0.5,
	}
	// 25.5 + 3.2 + 0.24 + 3.2 + 8.0808 + 8.0 + 5.6 + 3.75
	assert.InDelta(t, 57.5708, Composite(r), 1e-3)
}

func TestCompositeInvertsVarianceAndEntropy(t *testing.T) {
	low := Composite(Report{ReturnVariance: 0.0, PolicyEntropy: 0.0})
	high := Composite(Report{ReturnVariance: 1.0, PolicyEntropy: 2.0})
	assert.Greater(t, low, high)
	assert.Zero(t, high)
	// Raw values beyond the cap are clamped, never negative.
	assert.Zero(t, Composite(Report{ReturnVariance: 5.0, PolicyEntropy: 9.0}))
}

func TestComputeAllSkipsRecordsWithoutRates(t *testing.T) {
	rec := model.Record{Meta: model.Metadata{TotalEpisodes: 100}}
	_, ok := ComputeAll(rec, nil, nil)
	assert.False(t, ok)
}

func TestComputeAllUsesDefaultsWithoutTableOrHistory(t *testing.T) {
	rec := model.Record{Meta: model.Metadata{
		FinalWinRate:  floatPtr(80),
		FinalDrawRate: floatPtr(10),
		FinalLossRate: floatPtr(10),
		StatesLearned: 990,
		TotalEpisodes: 990,
		AvgReward:     0.8,
		AvgMoves:      5,
		Hyperparams:   model.Hyperparameters{EpsilonFinal: 0.01, EpsilonMin: 0.01, Gamma: 0.99},
	}}

	r, ok := ComputeAll(rec, nil, nil)
	require.True(t, ok)
	assert.InDelta(t, 0.3, r.ReturnVariance, 1e-12)
	assert.InDelta(t, 0.5, r.PolicyEntropy, 1e-12)
	assert.Nil(t, r.QTableQuality)
	assert.InDelta(t, 57.5708, r.CompositeScore, 1e-3)
}

func TestComputeAllWithTableAndHistory(t *testing.T) {
	rec := model.Record{Meta: model.Metadata{
		FinalWinRate: floatPtr(50),
		Hyperparams:  model.Hyperparameters{Gamma: 0.9},
	}}
	q := agent.QTable{
		"s": {0: 1.0, 1: 1.0},
	}
	rewards := []float64{1, -1, 1, -1}

	r, ok := ComputeAll(rec, q, rewards)
	require.True(t, ok)
	require.NotNil(t, r.QTableQuality)
	assert.InDelta(t, 1.0, r.QTableQuality.Mean, 1e-12)
	assert.InDelta(t, 1.0, r.ReturnVariance, 1e-12)
	// Two equally valued actions form a uniform softmax.
	assert.InDelta(t, math.Log(2), r.PolicyEntropy, 1e-9)
	assert.InDelta(t, 0.1, r.BellmanError, 1e-12)
}

func TestQTableQuality(t *testing.T) {
	q := agent.QTable{
		"a": {0: 2, 1: 4},
		"b": {0: 4, 1: 6},
	}
	quality := ComputeQTableQuality(q)
	assert.InDelta(t, 4.0, quality.Mean, 1e-12)
	assert.InDelta(t, 2.0, quality.Variance, 1e-12)
	assert.InDelta(t, math.Sqrt(2.0), quality.Std, 1e-12)
	assert.InDelta(t, 2.0, quality.Min, 1e-12)
	assert.InDelta(t, 6.0, quality.Max, 1e-12)
	assert.InDelta(t, 4.0, quality.Range, 1e-12)

	assert.Equal(t, QTableQuality{}, ComputeQTableQuality(agent.QTable{}))
}

func TestBellmanError(t *testing.T) {
	// With gamma 1 and a flat state, every entry self-consistent.
	flat := agent.QTable{"s": {0: 0.7, 1: 0.7}}
	assert.Zero(t, BellmanError(flat, 1.0))

	single := agent.QTable{"s": {0: 1.0}}
	assert.InDelta(t, 0.1, BellmanError(single, 0.9), 1e-12)

	assert.Zero(t, BellmanError(agent.QTable{}, 0.9))
}

func TestPolicyEntropyUniformIsLogN(t *testing.T) {
	q := agent.QTable{"s": {0: 0.3, 1: 0.3, 2: 0.3, 3: 0.3}}
	assert.InDelta(t, math.Log(4), PolicyEntropy(q, 1.0), 1e-9)
}

func TestPolicyEntropyDominantActionNearZero(t *testing.T) {
	q := agent.QTable{"s": {0: 100, 1: 0}}
	assert.InDelta(t, 0.0, PolicyEntropy(q, 1.0), 1e-6)
	// Non-positive temperature falls back to 1.
	assert.Equal(t, PolicyEntropy(q, 1.0), PolicyEntropy(q, 0))
	assert.Zero(t, PolicyEntropy(agent.QTable{}, 1.0))
}

func TestReturnVariance(t *testing.T) {
	assert.Zero(t, ReturnVariance(nil))
	assert.Zero(t, ReturnVariance([]float64{1}))
	assert.InDelta(t, 1.0, ReturnVariance([]float64{1, -1, 1, -1}), 1e-12)
}
