package metrics

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"

	"github.com/rs/zerolog"

	"github.com/arenalab/qarena/internal/model"
)

// Criterion selects which sub-score a ranking sorts by.
type Criterion string

const (
	ByComposite   Criterion = "composite_score"
	ByWinRate     Criterion = "win_rate"
	ByPerformance Criterion = "performance_score"
	ByEfficiency  Criterion = "efficiency_score"
	ByRobustness  Criterion = "robustness_score"
)

// Ranked pairs a stored model with its computed report.
type Ranked struct {
	Record model.Record `json:"record"`
	Report Report       `json:"report"`
}

func (r Ranked) value(c Criterion) float64 {
	switch c {
	case ByWinRate:
		return r.Report.WinRate
	case ByPerformance:
		return r.Report.PerformanceScore
	case ByEfficiency:
		return r.Report.EfficiencyScore
	case ByRobustness:
		return r.Report.RobustnessScore
	default:
		return r.Report.CompositeScore
	}
}

// Comparator ranks every model in a store. Models whose snapshots cannot be
// read or whose metadata predates the recorded-rate format are skipped with
// a warning, never fatal, so one bad file does not sink a batch comparison.
type Comparator struct {
	store  *model.Store
	logger zerolog.Logger

	// includeQTable additionally loads each snapshot's Q-table for the
	// table-derived metrics. Slower but more complete.
	includeQTable bool
}

// NewComparator creates a comparator over the given store.
func NewComparator(store *model.Store, includeQTable bool, logger zerolog.Logger) *Comparator {
	return &Comparator{
		store:         store,
		includeQTable: includeQTable,
		logger:        logger.With().Str("component", "comparator").Logger(),
	}
}

// ComputeAll builds reports for every stored model, skipping unreadable or
// old-format ones.
func (c *Comparator) ComputeAll() []Ranked {
	records := c.store.List()
	ranked := make([]Ranked, 0, len(records))

	for _, rec := range records {
		var report Report
		var ok bool

		if c.includeQTable {
			snap, loaded := c.store.LoadSnapshot(rec.Path)
			if !loaded {
				c.logger.Warn().Str("path", rec.Path).Msg("Skipping unreadable model")
				continue
			}
			report, ok = ComputeAll(rec, snap.QTable, nil)
		} else {
			report, ok = ComputeAll(rec, nil, nil)
		}
		if !ok {
			c.logger.Warn().Str("path", rec.Path).Msg("Skipping model without recorded rates")
			continue
		}
		ranked = append(ranked, Ranked{Record: rec, Report: report})
	}
	return ranked
}

// Rank sorts all comparable models descending by the given criterion,
// truncated to topN when topN > 0.
func (c *Comparator) Rank(criterion Criterion, topN int) []Ranked {
	ranked := c.ComputeAll()
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].value(criterion) > ranked[j].value(criterion)
	})
	if topN > 0 && topN < len(ranked) {
		ranked = ranked[:topN]
	}
	return ranked
}

// Best returns the top model by the criterion, or false when no model is
// comparable.
func (c *Comparator) Best(criterion Criterion) (Ranked, bool) {
	ranked := c.Rank(criterion, 1)
	if len(ranked) == 0 {
		return Ranked{}, false
	}
	return ranked[0], true
}

// ExportCSV writes every comparable model's metrics to a CSV file sorted by
// composite score.
func (c *Comparator) ExportCSV(path string) error {
	ranked := c.Rank(ByComposite, 0)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create metrics export: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"name", "composite_score", "win_rate", "draw_rate", "loss_rate",
		"performance_score", "efficiency_score", "robustness_score",
		"learning_speed", "sample_efficiency", "states_learned",
		"total_episodes", "avg_reward", "avg_moves", "epsilon",
		"alpha", "gamma", "epsilon_decay", "timestamp",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, m := range ranked {
		hp := m.Record.Meta.Hyperparams
		row := []string{
			m.Record.Name,
			formatFloat(m.Report.CompositeScore),
			formatFloat(m.Report.WinRate),
			formatFloat(m.Report.DrawRate),
			formatFloat(m.Report.LossRate),
			formatFloat(m.Report.PerformanceScore),
			formatFloat(m.Report.EfficiencyScore),
			formatFloat(m.Report.RobustnessScore),
			formatFloat(m.Report.LearningSpeed),
			formatFloat(m.Report.SampleEfficiency),
			fmt.Sprintf("%d", m.Report.StatesLearned),
			fmt.Sprintf("%d", m.Report.TotalEpisodes),
			formatFloat(m.Report.AvgReward),
			formatFloat(m.Report.AvgMoves),
			formatFloat(m.Report.Epsilon),
			formatFloat(hp.Alpha),
			formatFloat(hp.Gamma),
			formatFloat(hp.EpsilonDecay),
			m.Record.SavedAt.Format("2006-01-02 15:04:05"),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write metrics export: %w", err)
	}

	c.logger.Info().Str("path", path).Int("models", len(ranked)).Msg("Exported model metrics")
	return nil
}

func formatFloat(v float64) string {
	return fmt.Sprintf("%.4f", v)
}
