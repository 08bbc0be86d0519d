package metrics

import (
	"math"

	"github.com/arenalab/qarena/internal/agent"
)

// QTableQuality summarizes the distribution of all stored Q-values.
type QTableQuality struct {
	Mean     float64 `json:"mean"`
	Std      float64 `json:"std"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Range    float64 `json:"range"`
	Variance float64 `json:"variance"`
}

// ComputeQTableQuality returns distribution statistics over every stored
// Q-value. An empty table yields the zero value.
func ComputeQTableQuality(q agent.QTable) QTableQuality {
	var values []float64
	for _, actions := range q {
		for _, v := range actions {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return QTableQuality{}
	}

	min, max := values[0], values[0]
	for _, v := range values {
		min = math.Min(min, v)
		max = math.Max(max, v)
	}
	m := mean(values)
	variance := populationVariance(values, m)
	return QTableQuality{
		Mean:     m,
		Std:      math.Sqrt(variance),
		Min:      min,
		Max:      max,
		Range:    max - min,
		Variance: variance,
	}
}

// BellmanError estimates the self-consistency of a Q-table: for every
// (state, action) value it measures |Q(s,a) - gamma*max_a' Q(s,a')| and
// averages over all entries. Without a transition log there is no access to
// the reward and next state that produced each entry, so this is a heuristic
// proxy for the true temporal-difference error, not the error itself.
func BellmanError(q agent.QTable, gamma float64) float64 {
	var sum float64
	var count int
	for _, actions := range q {
		if len(actions) == 0 {
			continue
		}
		maxQ := math.Inf(-1)
		for _, v := range actions {
			maxQ = math.Max(maxQ, v)
		}
		for _, v := range actions {
			sum += math.Abs(v - gamma*maxQ)
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// PolicyEntropy converts each state's Q-values to a softmax distribution at
// the given temperature and averages the Shannon entropy across states.
// Near 0 means a near-deterministic policy; higher means more uncertain.
func PolicyEntropy(q agent.QTable, temperature float64) float64 {
	if temperature <= 0 {
		temperature = 1.0
	}

	var sum float64
	var states int
	for _, actions := range q {
		if len(actions) == 0 {
			continue
		}

		// Shift by the max before exponentiating to avoid overflow.
		maxQ := math.Inf(-1)
		for _, v := range actions {
			maxQ = math.Max(maxQ, v)
		}
		var z float64
		exps := make([]float64, 0, len(actions))
		for _, v := range actions {
			e := math.Exp((v - maxQ) / temperature)
			exps = append(exps, e)
			z += e
		}

		var entropy float64
		for _, e := range exps {
			p := math.Max(e/z, 1e-10)
			entropy -= p * math.Log(p)
		}
		sum += entropy
		states++
	}
	if states == 0 {
		return 0
	}
	return sum / float64(states)
}

// ReturnVariance is the population variance of per-episode rewards. A low
// value indicates a stable, consistent policy. Fewer than two samples yield
// 0.
func ReturnVariance(rewards []float64) float64 {
	if len(rewards) < 2 {
		return 0
	}
	return populationVariance(rewards, mean(rewards))
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func populationVariance(values []float64, mean float64) float64 {
	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return sumSq / float64(len(values))
}
