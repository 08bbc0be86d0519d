// Package tournament orchestrates round-robin and single-elimination
// competitions between trained policies, feeding match outcomes into the
// Elo rating pool.
package tournament

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/arenalab/qarena/internal/agent"
	"github.com/arenalab/qarena/internal/elo"
	"github.com/arenalab/qarena/internal/game"
)

// ErrNotEnoughParticipants is returned for a competition with fewer than two
// entrants.
var ErrNotEnoughParticipants = errors.New("tournament needs at least two participants")

// MatchResult tallies one head-to-head match from A's perspective. ScoreA
// and ScoreB are the fractional outcomes fed to the Elo update,
// (wins + 0.5*draws) / games.
type MatchResult struct {
	NameA    string  `json:"agent_a"`
	NameB    string  `json:"agent_b"`
	Games    int     `json:"num_games"`
	WinsA    int     `json:"wins_a"`
	WinsB    int     `json:"wins_b"`
	Draws    int     `json:"draws"`
	WinRateA float64 `json:"win_rate_a"`
	WinRateB float64 `json:"win_rate_b"`
	DrawRate float64 `json:"draw_rate"`
	ScoreA   float64 `json:"score_a"`
	ScoreB   float64 `json:"score_b"`
}

// Standing is one row of a round-robin table.
type Standing struct {
	Name   string `json:"name"`
	Wins   int    `json:"wins"`
	Draws  int    `json:"draws"`
	Losses int    `json:"losses"`
	Points int    `json:"points"`
}

// RoundRobinResult is the full outcome of a round-robin competition, with
// the complete match list retained for audit.
type RoundRobinResult struct {
	Type          string        `json:"type"`
	Timestamp     time.Time     `json:"timestamp"`
	Participants  []string      `json:"participants"`
	GamesPerMatch int           `json:"games_per_match"`
	TotalMatches  int           `json:"total_matches"`
	Standings     []Standing    `json:"standings"`
	Matches       []MatchResult `json:"matches"`
	Champion      string        `json:"champion"`
}

// Round is one elimination round: its matches plus any players who advanced
// without an opponent.
type Round struct {
	Number  int           `json:"round"`
	Matches []MatchResult `json:"matches"`
	Byes    []string      `json:"byes,omitempty"`
}

// BracketResult is the full outcome of a single-elimination competition.
type BracketResult struct {
	Type          string        `json:"type"`
	Timestamp     time.Time     `json:"timestamp"`
	Participants  []string      `json:"participants"`
	GamesPerMatch int           `json:"games_per_match"`
	Rounds        []Round       `json:"rounds"`
	Matches       []MatchResult `json:"matches"`
	Champion      string        `json:"champion"`
}

// Tournament runs competitions on one environment. Both players act with
// epsilon pinned to 0: matches measure best play, nothing learns.
type Tournament struct {
	env         game.Environment
	elo         *elo.System
	historyPath string
	logger      zerolog.Logger
}

// New creates a tournament runner. historyPath may be empty to skip result
// persistence; the Elo system may be nil when ratings are not wanted.
func New(env game.Environment, eloSystem *elo.System, historyPath string, logger zerolog.Logger) *Tournament {
	return &Tournament{
		env:         env,
		elo:         eloSystem,
		historyPath: historyPath,
		logger:      logger.With().Str("component", "tournament").Logger(),
	}
}

// PlayMatch plays numGames between two policies, alternating who starts each
// game to cancel positional bias.
func (t *Tournament) PlayMatch(a, b agent.Policy, numGames int, nameA, nameB string) (*MatchResult, error) {
	if numGames <= 0 {
		return nil, fmt.Errorf("match needs at least one game")
	}

	var winsA, winsB, draws int
	for g := 0; g < numGames; g++ {
		aStarts := g%2 == 0
		winner, err := t.playGame(a, b, aStarts)
		if err != nil {
			return nil, err
		}

		aSide := game.PlayerO
		if aStarts {
			aSide = game.PlayerX
		}
		switch winner {
		case aSide:
			winsA++
		case game.PlayerNone:
			draws++
		default:
			winsB++
		}
	}

	total := float64(numGames)
	return &MatchResult{
		NameA:    nameA,
		NameB:    nameB,
		Games:    numGames,
		WinsA:    winsA,
		WinsB:    winsB,
		Draws:    draws,
		WinRateA: float64(winsA) / total * 100,
		WinRateB: float64(winsB) / total * 100,
		DrawRate: float64(draws) / total * 100,
		ScoreA:   (float64(winsA) + 0.5*float64(draws)) / total,
		ScoreB:   (float64(winsB) + 0.5*float64(draws)) / total,
	}, nil
}

func (t *Tournament) playGame(a, b agent.Policy, aStarts bool) (game.Player, error) {
	state := t.env.Reset()
	current, other := a, b
	if !aStarts {
		current, other = b, a
	}

	for {
		legal := t.env.LegalActions(state)
		action, err := current.ChooseAction(state, legal, 0)
		if err != nil {
			return game.PlayerNone, fmt.Errorf("environment contract violated: %w", err)
		}
		next, _, done, err := t.env.ApplyAction(action)
		if err != nil {
			return game.PlayerNone, err
		}
		if done {
			return t.env.Winner(), nil
		}
		state = next
		current, other = other, current
	}
}

// RoundRobin plays every unordered pair exactly once. Match wins earn 3
// points, drawn matches 1 each; the final table sorts by points, then match
// wins. When updateElo is set, each match's aggregate fractional scores feed
// one rating update.
func (t *Tournament) RoundRobin(ctx context.Context, agents map[string]agent.Policy, gamesPerMatch int, updateElo bool) (*RoundRobinResult, error) {
	names := sortedNames(agents)
	if len(names) < 2 {
		return nil, ErrNotEnoughParticipants
	}

	t.logger.Info().
		Int("participants", len(names)).
		Int("games_per_match", gamesPerMatch).
		Msg("Starting round-robin")

	standings := make(map[string]*Standing, len(names))
	for _, name := range names {
		standings[name] = &Standing{Name: name}
	}

	var matches []MatchResult
	for i, nameA := range names {
		for _, nameB := range names[i+1:] {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			result, err := t.PlayMatch(agents[nameA], agents[nameB], gamesPerMatch, nameA, nameB)
			if err != nil {
				return nil, err
			}
			matches = append(matches, *result)

			switch {
			case result.WinsA > result.WinsB:
				standings[nameA].Wins++
				standings[nameA].Points += 3
				standings[nameB].Losses++
			case result.WinsB > result.WinsA:
				standings[nameB].Wins++
				standings[nameB].Points += 3
				standings[nameA].Losses++
			default:
				standings[nameA].Draws++
				standings[nameB].Draws++
				standings[nameA].Points++
				standings[nameB].Points++
			}

			if updateElo && t.elo != nil {
				ra, rb := t.elo.UpdateRatings(nameA, nameB, result.ScoreA, result.ScoreB)
				t.logger.Debug().
					Str("match", nameA+" vs "+nameB).
					Float64("rating_a", ra).
					Float64("rating_b", rb).
					Msg("Match complete")
			}
		}
	}

	table := make([]Standing, 0, len(standings))
	for _, s := range standings {
		table = append(table, *s)
	}
	sort.Slice(table, func(i, j int) bool {
		if table[i].Points != table[j].Points {
			return table[i].Points > table[j].Points
		}
		if table[i].Wins != table[j].Wins {
			return table[i].Wins > table[j].Wins
		}
		return table[i].Name < table[j].Name
	})

	result := &RoundRobinResult{
		Type:          "round_robin",
		Timestamp:     time.Now(),
		Participants:  names,
		GamesPerMatch: gamesPerMatch,
		TotalMatches:  len(matches),
		Standings:     table,
		Matches:       matches,
		Champion:      table[0].Name,
	}
	t.saveResult(result)

	t.logger.Info().
		Str("champion", result.Champion).
		Int("matches", result.TotalMatches).
		Msg("Round-robin complete")
	return result, nil
}

// Bracket runs single elimination: each round pairs the remaining players in
// order, an unpaired player advances on a bye, and losers drop out until one
// champion remains. A match tied on wins is decided by a single sudden-death
// game; if even that game is drawn, the second seed advances.
func (t *Tournament) Bracket(ctx context.Context, agents map[string]agent.Policy, gamesPerMatch int) (*BracketResult, error) {
	names := sortedNames(agents)
	if len(names) < 2 {
		return nil, ErrNotEnoughParticipants
	}

	t.logger.Info().
		Int("participants", len(names)).
		Int("games_per_match", gamesPerMatch).
		Msg("Starting elimination bracket")

	remaining := append([]string(nil), names...)
	var rounds []Round
	var allMatches []MatchResult

	for len(remaining) > 1 {
		round := Round{Number: len(rounds) + 1}
		var next []string

		for i := 0; i < len(remaining); i += 2 {
			if i+1 >= len(remaining) {
				round.Byes = append(round.Byes, remaining[i])
				next = append(next, remaining[i])
				continue
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			nameA, nameB := remaining[i], remaining[i+1]
			result, err := t.PlayMatch(agents[nameA], agents[nameB], gamesPerMatch, nameA, nameB)
			if err != nil {
				return nil, err
			}
			round.Matches = append(round.Matches, *result)
			allMatches = append(allMatches, *result)

			winner := nameB
			switch {
			case result.WinsA > result.WinsB:
				winner = nameA
			case result.WinsB > result.WinsA:
				winner = nameB
			default:
				decider, err := t.PlayMatch(agents[nameA], agents[nameB], 1, nameA, nameB)
				if err != nil {
					return nil, err
				}
				round.Matches = append(round.Matches, *decider)
				allMatches = append(allMatches, *decider)
				if decider.WinsA > 0 {
					winner = nameA
				}
			}
			next = append(next, winner)

			t.logger.Debug().
				Int("round", round.Number).
				Str("match", nameA+" vs "+nameB).
				Str("winner", winner).
				Msg("Bracket match complete")
		}

		rounds = append(rounds, round)
		remaining = next
	}

	result := &BracketResult{
		Type:          "elimination_bracket",
		Timestamp:     time.Now(),
		Participants:  names,
		GamesPerMatch: gamesPerMatch,
		Rounds:        rounds,
		Matches:       allMatches,
		Champion:      remaining[0],
	}
	t.saveResult(result)

	t.logger.Info().
		Str("champion", result.Champion).
		Int("rounds", len(rounds)).
		Msg("Elimination bracket complete")
	return result, nil
}

// History returns the most recent persisted tournament results, newest
// first.
func (t *Tournament) History(limit int) []json.RawMessage {
	history := t.loadHistory()
	if limit > 0 && limit < len(history) {
		history = history[len(history)-limit:]
	}
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}
	return history
}

func (t *Tournament) saveResult(result any) {
	if t.historyPath == "" {
		return
	}

	entry, err := json.Marshal(result)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Failed to marshal tournament result")
		return
	}
	history := append(t.loadHistory(), entry)

	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		t.logger.Warn().Err(err).Msg("Failed to marshal tournament history")
		return
	}
	if dir := filepath.Dir(t.historyPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.logger.Warn().Err(err).Msg("Failed to create tournament history directory")
			return
		}
	}
	if err := os.WriteFile(t.historyPath, data, 0o644); err != nil {
		t.logger.Warn().Err(err).Str("path", t.historyPath).Msg("Failed to write tournament history")
	}
}

func (t *Tournament) loadHistory() []json.RawMessage {
	if t.historyPath == "" {
		return nil
	}
	data, err := os.ReadFile(t.historyPath)
	if err != nil {
		return nil
	}
	var history []json.RawMessage
	if err := json.Unmarshal(data, &history); err != nil {
		t.logger.Warn().Err(err).Msg("Failed to decode tournament history, starting fresh")
		return nil
	}
	return history
}

// sortedNames fixes the pairing order so a tournament over the same field is
// reproducible regardless of map iteration order.
func sortedNames(agents map[string]agent.Policy) []string {
	names := make([]string, 0, len(agents))
	for name := range agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
