package trainer

import "sync/atomic"

// Progress is an immutable snapshot of a run in flight. Readers on other
// goroutines always see a complete, consistent snapshot.
type Progress struct {
	Phase          Phase   `json:"phase"`
	Episode        int     `json:"episode"`
	TotalEpisodes  int     `json:"total_episodes"`
	Epsilon        float64 `json:"epsilon"`
	StatesLearned  int     `json:"states_learned"`
	RecentWinRate  float64 `json:"recent_win_rate"`
	RecentDrawRate float64 `json:"recent_draw_rate"`
	RecentReward   float64 `json:"recent_avg_reward"`
}

// progressBoard publishes Progress snapshots atomically. The trainer writes
// whole snapshots; concurrent readers never observe a half-updated one.
type progressBoard struct {
	current atomic.Pointer[Progress]
}

func (b *progressBoard) publish(p Progress) {
	b.current.Store(&p)
}

func (b *progressBoard) snapshot() Progress {
	if p := b.current.Load(); p != nil {
		return *p
	}
	return Progress{}
}
