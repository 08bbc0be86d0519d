package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/arenalab/qarena/internal/agent"
)

const (
	// DefaultModelName is the snapshot written at the end of every run.
	DefaultModelName = "q_table"

	indexFileName = "models_metadata.json"
)

// Store persists agent snapshots as JSON files under a single directory and
// keeps a metadata index for cheap listing. Load failures are reported, never
// raised, so batch comparisons can skip a bad model and continue.
type Store struct {
	mu     sync.Mutex
	dir    string
	index  map[string]Record // keyed by snapshot path
	logger zerolog.Logger
}

// NewStore opens (or creates) a model directory.
func NewStore(dir string, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create models directory: %w", err)
	}
	s := &Store{
		dir:    dir,
		index:  make(map[string]Record),
		logger: logger.With().Str("component", "model_store").Logger(),
	}
	s.loadIndex()
	return s, nil
}

// Save writes a snapshot of the agent under the given name. A versioned save
// appends a timestamp plus a short unique suffix so repeated runs keep their
// history, and the record's Name carries the full filename stem: versioned
// snapshots stay distinct participants in tournaments and Elo ratings. It
// returns the record describing the persisted model.
func (s *Store) Save(a *agent.Agent, name string, versioned bool, meta Metadata) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name == "" {
		name = DefaultModelName
	}
	id := uuid.NewString()
	if versioned {
		name = fmt.Sprintf("%s_%s_%s", name, time.Now().Format("20060102_150405"), id[:8])
	}
	filename := name + ".json"
	path := filepath.Join(s.dir, filename)

	meta.Hyperparams = Hyperparameters{
		Alpha:        a.Alpha(),
		Gamma:        a.Gamma(),
		EpsilonStart: a.EpsilonStart(),
		EpsilonFinal: a.Epsilon(),
		EpsilonMin:   a.EpsilonMin(),
		EpsilonDecay: a.EpsilonDecay(),
	}
	meta.StatesLearned = a.StatesLearned()

	snap := Snapshot{
		Record: Record{
			ID:      id,
			Name:    name,
			Path:    path,
			SavedAt: time.Now(),
			Meta:    meta,
		},
		QTable: a.SnapshotQTable(),
		Stats:  a.Stats(),
	}

	data, err := json.MarshalIndent(&snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write snapshot: %w", err)
	}

	s.index[path] = snap.Record
	s.saveIndex()

	s.logger.Info().
		Str("path", path).
		Int("states", snap.Record.Meta.StatesLearned).
		Float64("epsilon", snap.Stats.Epsilon).
		Msg("Saved model snapshot")

	return &snap.Record, nil
}

// Load restores a snapshot into the agent: Q-table plus hyperparameters.
// It returns false (with a logged warning) when the file is missing or
// corrupt, so callers iterating many models can skip and continue.
func (s *Store) Load(a *agent.Agent, path string) bool {
	snap, ok := s.LoadSnapshot(path)
	if !ok {
		return false
	}

	a.LoadQTable(snap.QTable)
	hp := snap.Record.Meta.Hyperparams
	a.RestoreHyperparameters(hp.Alpha, hp.Gamma, hp.EpsilonFinal, hp.EpsilonStart, hp.EpsilonMin, hp.EpsilonDecay)

	s.logger.Info().
		Str("path", path).
		Int("states", a.StatesLearned()).
		Msg("Loaded model snapshot")
	return true
}

// LoadSnapshot reads a snapshot file without touching any agent.
func (s *Store) LoadSnapshot(path string) (*Snapshot, bool) {
	if path == "" {
		path = filepath.Join(s.dir, DefaultModelName+".json")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("Failed to read model snapshot")
		return nil, false
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("Failed to decode model snapshot")
		return nil, false
	}
	return &snap, true
}

// Exists reports whether a snapshot file is present.
func (s *Store) Exists(path string) bool {
	if path == "" {
		path = filepath.Join(s.dir, DefaultModelName+".json")
	}
	_, err := os.Stat(path)
	return err == nil
}

// List returns the records of all indexed models, most recent first.
func (s *Store) List() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]Record, 0, len(s.index))
	for _, rec := range s.index {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].SavedAt.After(records[j].SavedAt)
	})
	return records
}

// Delete removes a snapshot file and its index entry. Missing files report
// false rather than erroring.
func (s *Store) Delete(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("Failed to delete model snapshot")
		return false
	}
	delete(s.index, path)
	s.saveIndex()
	return true
}

// Dir returns the store's base directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) indexPath() string {
	return filepath.Join(s.dir, indexFileName)
}

func (s *Store) loadIndex() {
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Msg("Failed to read model index")
		}
		return
	}
	if err := json.Unmarshal(data, &s.index); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to decode model index, starting empty")
		s.index = make(map[string]Record)
	}
}

func (s *Store) saveIndex() {
	data, err := json.MarshalIndent(s.index, "", "  ")
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to marshal model index")
		return
	}
	if err := os.WriteFile(s.indexPath(), data, 0o644); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to write model index")
	}
}
