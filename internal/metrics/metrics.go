// Package metrics turns raw model statistics and a learned Q-table into
// comparable sub-scores and one weighted composite score per model.
package metrics

import (
	"math"

	"github.com/arenalab/qarena/internal/agent"
	"github.com/arenalab/qarena/internal/model"
)

// Composite score weights. They sum to 1.0; return variance and policy
// entropy are inverted before weighting (smaller raw values score higher).
const (
	weightPerformance      = 0.30
	weightEfficiency       = 0.12
	weightRobustness       = 0.15
	weightLearningSpeed    = 0.12
	weightConvergence      = 0.08
	weightSampleEfficiency = 0.10
	weightReturnVariance   = 0.08
	weightPolicyEntropy    = 0.05
)

// Fallbacks used when a snapshot carries no Q-table or reward history, so
// the composite score stays comparable across old and new snapshots.
const (
	defaultReturnVariance = 0.3
	defaultPolicyEntropy  = 0.5
)

const defaultSoftmaxTemperature = 1.0

// Report holds every sub-score computed for one model. Rates are
// percentages in [0, 100].
type Report struct {
	WinRate       float64 `json:"win_rate"`
	DrawRate      float64 `json:"draw_rate"`
	LossRate      float64 `json:"loss_rate"`
	StatesLearned int     `json:"states_learned"`
	TotalEpisodes int     `json:"total_episodes"`
	AvgReward     float64 `json:"avg_reward"`
	AvgMoves      float64 `json:"avg_moves"`
	Epsilon       float64 `json:"epsilon"`
	EpsilonMin    float64 `json:"epsilon_min"`

	PerformanceScore float64 `json:"performance_score"`
	EfficiencyScore  float64 `json:"efficiency_score"`
	RobustnessScore  float64 `json:"robustness_score"`
	LearningSpeed    float64 `json:"learning_speed"`
	SampleEfficiency float64 `json:"sample_efficiency"`
	Convergence      float64 `json:"convergence"`
	ReturnVariance   float64 `json:"return_variance"`
	PolicyEntropy    float64 `json:"policy_entropy"`
	BellmanError     float64 `json:"bellman_error"`

	QTableQuality *QTableQuality `json:"q_table_quality,omitempty"`

	CompositeScore float64 `json:"composite_score"`
}

// PerformanceScore weights wins fully and draws at half.
func PerformanceScore(winRate, drawRate float64) float64 {
	return winRate + 0.5*drawRate
}

// EfficiencyScore is performance per state learned: a high win rate reached
// with a small table scores higher.
func EfficiencyScore(winRate float64, statesLearned int) float64 {
	if statesLearned == 0 {
		return 0
	}
	return winRate / math.Log10(float64(statesLearned)+10)
}

// RobustnessScore rewards high average reward earned in short games.
func RobustnessScore(avgReward, avgMoves float64) float64 {
	if avgMoves == 0 {
		return 0
	}
	return avgReward * (10.0 / math.Max(avgMoves, 1.0))
}

// LearningSpeed is performance per training episode on a log scale.
func LearningSpeed(winRate float64, totalEpisodes int) float64 {
	if totalEpisodes == 0 {
		return 0
	}
	return winRate / math.Log10(float64(totalEpisodes)+10)
}

// SampleEfficiency is the win rate per thousand training episodes.
func SampleEfficiency(winRate float64, totalEpisodes int) float64 {
	if totalEpisodes == 0 {
		return 0
	}
	return winRate / (float64(totalEpisodes) / 1000.0)
}

// ConvergenceScore maps how close epsilon has decayed toward its floor into
// [0, 100]: fully decayed scores 100.
func ConvergenceScore(epsilon, epsilonMin float64) float64 {
	if epsilonMin >= 1 {
		return 100
	}
	return (1 - (epsilon-epsilonMin)/(1-epsilonMin)) * 100
}

// Composite folds the sub-scores of a report into one 0-100 number using the
// fixed weight table. Return variance and policy entropy are inverted first.
func Composite(r Report) float64 {
	returnVarScore := math.Max(0, (1-math.Min(r.ReturnVariance, 1.0))*100)
	entropyScore := math.Max(0, (1-math.Min(r.PolicyEntropy/2.0, 1.0))*100)

	return r.PerformanceScore*weightPerformance +
		r.EfficiencyScore*weightEfficiency +
		r.RobustnessScore*weightRobustness +
		r.LearningSpeed*weightLearningSpeed +
		r.Convergence*weightConvergence +
		r.SampleEfficiency*weightSampleEfficiency +
		returnVarScore*weightReturnVariance +
		entropyScore*weightPolicyEntropy
}

// ComputeAll builds the full report for one persisted model. The Q-table and
// reward history are optional; when absent, the table-derived and
// history-derived sub-scores fall back to documented defaults.
//
// Old-format records without a recorded final win rate return ok=false so a
// batch ranking can skip them; a fabricated zero would read as a real low
// score.
func ComputeAll(rec model.Record, q agent.QTable, rewards []float64) (Report, bool) {
	meta := rec.Meta
	if meta.FinalWinRate == nil {
		return Report{}, false
	}

	r := Report{
		WinRate:       *meta.FinalWinRate,
		StatesLearned: meta.StatesLearned,
		TotalEpisodes: meta.TotalEpisodes,
		AvgReward:     meta.AvgReward,
		AvgMoves:      meta.AvgMoves,
		Epsilon:       meta.Hyperparams.EpsilonFinal,
		EpsilonMin:    meta.Hyperparams.EpsilonMin,
	}
	if meta.FinalDrawRate != nil {
		r.DrawRate = *meta.FinalDrawRate
	}
	if meta.FinalLossRate != nil {
		r.LossRate = *meta.FinalLossRate
	}

	r.PerformanceScore = PerformanceScore(r.WinRate, r.DrawRate)
	r.EfficiencyScore = EfficiencyScore(r.WinRate, r.StatesLearned)
	r.RobustnessScore = RobustnessScore(r.AvgReward, r.AvgMoves)
	r.LearningSpeed = LearningSpeed(r.WinRate, r.TotalEpisodes)
	r.SampleEfficiency = SampleEfficiency(r.WinRate, r.TotalEpisodes)
	r.Convergence = ConvergenceScore(r.Epsilon, r.EpsilonMin)

	if len(q) > 0 {
		quality := ComputeQTableQuality(q)
		r.QTableQuality = &quality
		r.BellmanError = BellmanError(q, meta.Hyperparams.Gamma)
		r.PolicyEntropy = PolicyEntropy(q, defaultSoftmaxTemperature)
	} else {
		r.PolicyEntropy = defaultPolicyEntropy
	}

	if len(rewards) > 0 {
		r.ReturnVariance = ReturnVariance(rewards)
	} else {
		r.ReturnVariance = defaultReturnVariance
	}

	r.CompositeScore = Composite(r)
	return r, true
}
