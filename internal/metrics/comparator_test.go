package metrics

import (
	"encoding/csv"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arenalab/qarena/internal/agent"
	"github.com/arenalab/qarena/internal/model"
	"github.com/arenalab/qarena/internal/testutil"
)

func saveModel(t *testing.T, s *model.Store, name string, winRate float64) *model.Record {
	t.Helper()
	a, err := agent.New(agent.DefaultConfig(), rand.New(rand.NewSource(1)), testutil.NopLogger())
	require.NoError(t, err)
	a.Update("s", 0, 1.0, "t", nil, true)

	rec, err := s.Save(a, name, false, model.Metadata{
		FinalWinRate:  floatPtr(winRate),
		FinalDrawRate: floatPtr(10),
		FinalLossRate: floatPtr(100 - winRate - 10),
		TotalEpisodes: 1000,
		AvgReward:     winRate / 100,
		AvgMoves:      6,
	})
	require.NoError(t, err)
	return rec
}

func newRankedStore(t *testing.T) *model.Store {
	t.Helper()
	s, err := model.NewStore(t.TempDir(), testutil.NopLogger())
	require.NoError(t, err)
	saveModel(t, s, "weak", 30)
	time.Sleep(5 * time.Millisecond)
	saveModel(t, s, "strong", 90)
	return s
}

func TestRankOrdersByCriterion(t *testing.T) {
	s := newRankedStore(t)
	c := NewComparator(s, false, testutil.NopLogger())

	ranked := c.Rank(ByComposite, 0)
	require.Len(t, ranked, 2)
	assert.Equal(t, "strong", ranked[0].Record.Name)
	assert.Equal(t, "weak", ranked[1].Record.Name)
	assert.Greater(t, ranked[0].Report.CompositeScore, ranked[1].Report.CompositeScore)

	ranked = c.Rank(ByWinRate, 1)
	require.Len(t, ranked, 1)
	assert.Equal(t, "strong", ranked[0].Record.Name)
}

func TestBest(t *testing.T) {
	s := newRankedStore(t)
	c := NewComparator(s, true, testutil.NopLogger())

	best, ok := c.Best(ByComposite)
	require.True(t, ok)
	assert.Equal(t, "strong", best.Record.Name)
	assert.NotNil(t, best.Report.QTableQuality)
}

func TestBestOnEmptyStore(t *testing.T) {
	s, err := model.NewStore(t.TempDir(), testutil.NopLogger())
	require.NoError(t, err)
	c := NewComparator(s, false, testutil.NopLogger())

	_, ok := c.Best(ByComposite)
	assert.False(t, ok)
}

func TestComputeAllSkipsOldFormatRecords(t *testing.T) {
	s, err := model.NewStore(t.TempDir(), testutil.NopLogger())
	require.NoError(t, err)
	saveModel(t, s, "good", 60)

	a, err := agent.New(agent.DefaultConfig(), rand.New(rand.NewSource(2)), testutil.NopLogger())
	require.NoError(t, err)
	_, err = s.Save(a, "legacy", false, model.Metadata{TotalEpisodes: 42})
	require.NoError(t, err)

	c := NewComparator(s, false, testutil.NopLogger())
	ranked := c.ComputeAll()
	require.Len(t, ranked, 1)
	assert.Equal(t, "good", ranked[0].Record.Name)
}

func TestComputeAllSkipsUnreadableSnapshots(t *testing.T) {
	s, err := model.NewStore(t.TempDir(), testutil.NopLogger())
	require.NoError(t, err)
	saveModel(t, s, "good", 60)
	broken := saveModel(t, s, "broken", 70)
	require.NoError(t, os.Remove(broken.Path))

	c := NewComparator(s, true, testutil.NopLogger())
	ranked := c.ComputeAll()
	require.Len(t, ranked, 1)
	assert.Equal(t, "good", ranked[0].Record.Name)
}

func TestExportCSV(t *testing.T) {
	s := newRankedStore(t)
	c := NewComparator(s, false, testutil.NopLogger())

	path := filepath.Join(t.TempDir(), "metrics.csv")
	require.NoError(t, c.ExportCSV(path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "name", rows[0][0])
	assert.Equal(t, "composite_score", rows[0][1])
	assert.Equal(t, "strong", rows[1][0])
	assert.Equal(t, "weak", rows[2][0])
}
