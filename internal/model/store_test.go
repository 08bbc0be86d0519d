package model

import (
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arenalab/qarena/internal/agent"
	"github.com/arenalab/qarena/internal/testutil"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), testutil.NopLogger())
	require.NoError(t, err)
	return s
}

func newTrainedAgent(t *testing.T) *agent.Agent {
	t.Helper()
	cfg := agent.DefaultConfig()
	cfg.Alpha = 0.5
	cfg.Gamma = 0.9
	a, err := agent.New(cfg, rand.New(rand.NewSource(1)), testutil.NopLogger())
	require.NoError(t, err)
	a.Update("s1", 0, 1.0, "s2", nil, true)
	a.Update("s1", 1, -1.0, "s2", nil, true)
	a.Update("s2", 4, 0.5, "s3", nil, true)
	a.SetEpsilon(0.42)
	return a
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	a := newTrainedAgent(t)

	rec, err := s.Save(a, "champ", false, Metadata{TotalEpisodes: 100})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "champ", rec.Name)
	assert.Equal(t, filepath.Join(s.Dir(), "champ.json"), rec.Path)
	assert.True(t, s.Exists(rec.Path))

	fresh, err := agent.New(agent.DefaultConfig(), rand.New(rand.NewSource(2)), testutil.NopLogger())
	require.NoError(t, err)
	require.True(t, s.Load(fresh, rec.Path))

	assert.Equal(t, a.StatesLearned(), fresh.StatesLearned())
	assert.InDelta(t, 0.5, fresh.QValue("s1", 0), 1e-12)
	assert.InDelta(t, -0.5, fresh.QValue("s1", 1), 1e-12)
	assert.InDelta(t, 0.5, fresh.Alpha(), 1e-12)
	assert.InDelta(t, 0.9, fresh.Gamma(), 1e-12)
	assert.InDelta(t, 0.42, fresh.Epsilon(), 1e-12)
}

func TestSaveFillsHyperparametersAndStates(t *testing.T) {
	s := newTestStore(t)
	a := newTrainedAgent(t)

	rec, err := s.Save(a, "", false, Metadata{})
	require.NoError(t, err)

	assert.Equal(t, DefaultModelName, rec.Name)
	assert.Equal(t, 2, rec.Meta.StatesLearned)
	assert.InDelta(t, 0.5, rec.Meta.Hyperparams.Alpha, 1e-12)
	assert.InDelta(t, 0.42, rec.Meta.Hyperparams.EpsilonFinal, 1e-12)
}

func TestVersionedSaveAppendsTimestamp(t *testing.T) {
	s := newTestStore(t)
	a := newTrainedAgent(t)

	rec, err := s.Save(a, "run", true, Metadata{})
	require.NoError(t, err)

	base := filepath.Base(rec.Path)
	assert.True(t, strings.HasPrefix(base, "run_"))
	assert.True(t, strings.HasSuffix(base, ".json"))
	assert.NotEqual(t, "run.json", base)
	// The record name matches the filename stem, not the bare base name.
	assert.Equal(t, strings.TrimSuffix(base, ".json"), rec.Name)
}

func TestVersionedSavesKeepDistinctNames(t *testing.T) {
	s := newTestStore(t)
	a := newTrainedAgent(t)

	first, err := s.Save(a, "q_table", true, Metadata{})
	require.NoError(t, err)
	second, err := s.Save(a, "q_table", true, Metadata{})
	require.NoError(t, err)

	assert.NotEqual(t, first.Path, second.Path)
	assert.NotEqual(t, first.Name, second.Name)

	// A field keyed by name, the way tournaments load models, keeps every
	// snapshot as its own participant.
	byName := make(map[string]Record)
	for _, rec := range s.List() {
		byName[rec.Name] = rec
	}
	assert.Len(t, byName, 2)
}

func TestLoadMissingOrCorruptReturnsFalse(t *testing.T) {
	s := newTestStore(t)
	a := newTrainedAgent(t)

	assert.False(t, s.Load(a, filepath.Join(s.Dir(), "nope.json")))

	bad := filepath.Join(s.Dir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))
	assert.False(t, s.Load(a, bad))
}

func TestLoadSnapshotDefaultsToStandardName(t *testing.T) {
	s := newTestStore(t)
	a := newTrainedAgent(t)

	_, err := s.Save(a, DefaultModelName, false, Metadata{})
	require.NoError(t, err)

	snap, ok := s.LoadSnapshot("")
	require.True(t, ok)
	assert.Equal(t, DefaultModelName, snap.Record.Name)
	assert.Len(t, snap.QTable, 2)
}

func TestListReturnsMostRecentFirst(t *testing.T) {
	s := newTestStore(t)
	a := newTrainedAgent(t)

	_, err := s.Save(a, "first", false, Metadata{})
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	_, err = s.Save(a, "second", false, Metadata{})
	require.NoError(t, err)

	records := s.List()
	require.Len(t, records, 2)
	assert.Equal(t, "second", records[0].Name)
	assert.Equal(t, "first", records[1].Name)
}

func TestIndexSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, testutil.NopLogger())
	require.NoError(t, err)
	a := newTrainedAgent(t)
	rec, err := s.Save(a, "kept", false, Metadata{TotalEpisodes: 7})
	require.NoError(t, err)

	reopened, err := NewStore(dir, testutil.NopLogger())
	require.NoError(t, err)
	records := reopened.List()
	require.Len(t, records, 1)
	assert.Equal(t, rec.ID, records[0].ID)
	assert.Equal(t, 7, records[0].Meta.TotalEpisodes)
}

func TestDeleteRemovesFileAndIndexEntry(t *testing.T) {
	s := newTestStore(t)
	a := newTrainedAgent(t)
	rec, err := s.Save(a, "gone", false, Metadata{})
	require.NoError(t, err)

	assert.True(t, s.Delete(rec.Path))
	assert.False(t, s.Exists(rec.Path))
	assert.Empty(t, s.List())

	assert.False(t, s.Delete(rec.Path))
}
