// Package model persists trained agent snapshots and their metadata.
package model

import (
	"time"

	"github.com/arenalab/qarena/internal/agent"
)

// Hyperparameters mirrors the agent configuration at save time. The JSON
// field names are a cross-tool contract and must not change.
type Hyperparameters struct {
	Alpha        float64 `json:"alpha"`
	Gamma        float64 `json:"gamma"`
	EpsilonStart float64 `json:"epsilon_start"`
	EpsilonFinal float64 `json:"epsilon_final"`
	EpsilonMin   float64 `json:"epsilon_min"`
	EpsilonDecay float64 `json:"epsilon_decay"`
}

// SeedResult holds one evaluation seed's outcome.
type SeedResult struct {
	Seed     int64   `json:"seed"`
	NumGames int     `json:"num_games"`
	Wins     int     `json:"wins"`
	Draws    int     `json:"draws"`
	Losses   int     `json:"losses"`
	WinRate  float64 `json:"win_rate"`
	DrawRate float64 `json:"draw_rate"`
	LossRate float64 `json:"loss_rate"`
}

// Robustness aggregates win rates across evaluation seeds.
type Robustness struct {
	WinRateStd  float64      `json:"win_rate_std"`
	WinRateMin  float64      `json:"win_rate_min"`
	WinRateMax  float64      `json:"win_rate_max"`
	SeedResults []SeedResult `json:"seed_results,omitempty"`
}

// TrainingStats records the exploration-contaminated training-time rates,
// kept for reference next to the evaluation-based final rates.
type TrainingStats struct {
	TrainWinRate  float64 `json:"train_win_rate"`
	TrainDrawRate float64 `json:"train_draw_rate"`
	TrainLossRate float64 `json:"train_loss_rate"`
}

// Metadata is the free-form model description saved with each snapshot.
// Rate fields are pointers so that snapshots written by older tools, which
// lack them, stay distinguishable from a genuine 0% rate.
type Metadata struct {
	FinalWinRate  *float64        `json:"final_win_rate,omitempty"`
	FinalDrawRate *float64        `json:"final_draw_rate,omitempty"`
	FinalLossRate *float64        `json:"final_loss_rate,omitempty"`
	TotalEpisodes int             `json:"total_episodes"`
	StatesLearned int             `json:"states_learned"`
	EvalGames     int             `json:"eval_games,omitempty"`
	EvalSeeds     int             `json:"eval_seeds,omitempty"`
	AvgReward     float64         `json:"avg_reward,omitempty"`
	AvgMoves      float64         `json:"avg_moves,omitempty"`
	Robustness    *Robustness     `json:"eval_robustness,omitempty"`
	TrainingStats *TrainingStats  `json:"training_stats,omitempty"`
	Hyperparams   Hyperparameters `json:"hyperparameters"`
}

// Record identifies one persisted model. The ID is stable across renames;
// Name is the human-facing label used in tournaments and Elo ratings and
// matches the snapshot's filename stem, unique per versioned save.
type Record struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	SavedAt time.Time `json:"timestamp"`
	Meta    Metadata  `json:"metadata"`
}

// Snapshot is the full on-disk representation of a saved model.
type Snapshot struct {
	Record
	QTable agent.QTable `json:"q_table"`
	Stats  agent.Stats  `json:"stats"`
}
