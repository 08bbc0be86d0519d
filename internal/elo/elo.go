// Package elo maintains a persistent pairwise skill rating across models,
// updated after each head-to-head match.
package elo

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultKFactor controls rating sensitivity per match.
	DefaultKFactor = 32.0

	// DefaultInitialRating is assigned to models never rated before.
	DefaultInitialRating = 1500.0
)

// Entry is one leaderboard row.
type Entry struct {
	Name   string  `json:"name"`
	Rating float64 `json:"rating"`
}

// MatchRecord captures one rating update for audit.
type MatchRecord struct {
	Timestamp     time.Time `json:"timestamp"`
	ModelA        string    `json:"model_a"`
	ModelB        string    `json:"model_b"`
	ScoreA        float64   `json:"score_a"`
	ScoreB        float64   `json:"score_b"`
	RatingABefore float64   `json:"rating_a_before"`
	RatingBBefore float64   `json:"rating_b_before"`
	RatingAAfter  float64   `json:"rating_a_after"`
	RatingBAfter  float64   `json:"rating_b_after"`
}

// Stats summarizes the rating pool.
type Stats struct {
	TotalModels int     `json:"total_models"`
	AvgRating   float64 `json:"avg_rating"`
	MaxRating   float64 `json:"max_rating"`
	MinRating   float64 `json:"min_rating"`
	TopModel    string  `json:"top_model,omitempty"`
}

type ratingsFile struct {
	Ratings       map[string]float64 `json:"ratings"`
	LastUpdated   time.Time          `json:"last_updated"`
	KFactor       float64            `json:"k_factor"`
	InitialRating float64            `json:"initial_rating"`
}

// System holds the rating table. Ratings are keyed by model name and
// persisted to disk after every update, so they survive process restarts.
// All methods are safe for concurrent use; tournament workers running in
// parallel funnel their updates through the single internal lock.
type System struct {
	mu            sync.Mutex
	ratings       map[string]float64
	history       []MatchRecord
	kFactor       float64
	initialRating float64
	path          string
	logger        zerolog.Logger
}

// New opens (or creates) a rating system persisted at path. Zero kFactor or
// initialRating fall back to the defaults.
func New(path string, kFactor, initialRating float64, logger zerolog.Logger) (*System, error) {
	if kFactor <= 0 {
		kFactor = DefaultKFactor
	}
	if initialRating <= 0 {
		initialRating = DefaultInitialRating
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create ratings directory: %w", err)
		}
	}

	s := &System{
		ratings:       make(map[string]float64),
		kFactor:       kFactor,
		initialRating: initialRating,
		path:          path,
		logger:        logger.With().Str("component", "elo").Logger(),
	}
	s.load()
	return s, nil
}

// Rating returns a model's current rating, or the initial rating for a name
// never rated before. Looking up an unseen name does not insert it.
func (s *System) Rating(name string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ratingLocked(name)
}

func (s *System) ratingLocked(name string) float64 {
	if r, ok := s.ratings[name]; ok {
		return r
	}
	return s.initialRating
}

// ExpectedScore returns the probability that a player rated ra beats one
// rated rb.
func ExpectedScore(ra, rb float64) float64 {
	return 1 / (1 + math.Pow(10, (rb-ra)/400))
}

// UpdateRatings applies one match outcome. scoreA and scoreB are fractional
// aggregates over the whole match, (wins + 0.5*draws)/games. Both updates
// are computed from the same pre-update ratings, which keeps the exchange
// zero-sum: A gains exactly what B loses. The new ratings are persisted
// before returning.
func (s *System) UpdateRatings(nameA, nameB string, scoreA, scoreB float64) (float64, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ra := s.ratingLocked(nameA)
	rb := s.ratingLocked(nameB)

	newA := ra + s.kFactor*(scoreA-ExpectedScore(ra, rb))
	newB := rb + s.kFactor*(scoreB-ExpectedScore(rb, ra))

	s.ratings[nameA] = newA
	s.ratings[nameB] = newB
	s.history = append(s.history, MatchRecord{
		Timestamp:     time.Now(),
		ModelA:        nameA,
		ModelB:        nameB,
		ScoreA:        scoreA,
		ScoreB:        scoreB,
		RatingABefore: ra,
		RatingBBefore: rb,
		RatingAAfter:  newA,
		RatingBAfter:  newB,
	})
	s.save()

	s.logger.Debug().
		Str("model_a", nameA).
		Str("model_b", nameB).
		Float64("rating_a", newA).
		Float64("rating_b", newB).
		Msg("Updated ratings")

	return newA, newB
}

// Leaderboard returns all rated models sorted by rating descending,
// truncated to topN when topN > 0. Equal ratings order by name so the
// result is stable.
func (s *System) Leaderboard(topN int) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Entry, 0, len(s.ratings))
	for name, rating := range s.ratings {
		entries = append(entries, Entry{Name: name, Rating: rating})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Rating != entries[j].Rating {
			return entries[i].Rating > entries[j].Rating
		}
		return entries[i].Name < entries[j].Name
	})
	if topN > 0 && topN < len(entries) {
		entries = entries[:topN]
	}
	return entries
}

// History returns a copy of the rating updates applied this session.
func (s *System) History() []MatchRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MatchRecord, len(s.history))
	copy(out, s.history)
	return out
}

// ResetRating puts a known model back at the initial rating.
func (s *System) ResetRating(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ratings[name]; ok {
		s.ratings[name] = s.initialRating
		s.save()
	}
}

// RemoveModel deletes a model from the rating pool.
func (s *System) RemoveModel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ratings[name]; ok {
		delete(s.ratings, name)
		s.save()
	}
}

// Stats summarizes the current rating pool.
func (s *System) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.ratings) == 0 {
		return Stats{}
	}

	st := Stats{
		TotalModels: len(s.ratings),
		MaxRating:   math.Inf(-1),
		MinRating:   math.Inf(1),
	}
	var sum float64
	for name, r := range s.ratings {
		sum += r
		if r > st.MaxRating {
			st.MaxRating = r
			st.TopModel = name
		}
		st.MinRating = math.Min(st.MinRating, r)
	}
	st.AvgRating = sum / float64(len(s.ratings))
	return st
}

func (s *System) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("path", s.path).Msg("Failed to read ratings file")
		}
		return
	}
	var file ratingsFile
	if err := json.Unmarshal(data, &file); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("Failed to decode ratings file, starting empty")
		return
	}
	if file.Ratings != nil {
		s.ratings = file.Ratings
	}
}

func (s *System) save() {
	file := ratingsFile{
		Ratings:       s.ratings,
		LastUpdated:   time.Now(),
		KFactor:       s.kFactor,
		InitialRating: s.initialRating,
	}
	data, err := json.MarshalIndent(&file, "", "  ")
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to marshal ratings")
		return
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("Failed to write ratings file")
	}
}
