package main

import (
	"context"
	"flag"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/arenalab/qarena/internal/agent"
	"github.com/arenalab/qarena/internal/config"
	"github.com/arenalab/qarena/internal/elo"
	"github.com/arenalab/qarena/internal/game"
	"github.com/arenalab/qarena/internal/model"
	"github.com/arenalab/qarena/internal/tournament"
)

func main() {
	// Command line flags
	configPath := flag.String("config", "", "Path to config file")
	format := flag.String("format", "round-robin", "Tournament format (round-robin or bracket)")
	gamesPerMatch := flag.Int("games", -1, "Games per match (-1 to use config default)")
	topN := flag.Int("top", 0, "Limit the field to the N most recent models (0 for all)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error) (empty to use config default)")
	flag.Parse()

	// Initialize configuration
	if err := config.Init(*configPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize config")
	}

	cfg := config.Get()

	if *gamesPerMatch == -1 {
		*gamesPerMatch = cfg.Tournament.GamesPerMatch
	}
	if *logLevel == "" {
		*logLevel = cfg.Logging.Level
	}

	setupLogging(*logLevel)

	store, err := model.NewStore(cfg.Models.Dir, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open model store")
	}

	ratings, err := elo.New(cfg.Elo.RatingsFile, cfg.Elo.KFactor, cfg.Elo.InitialRating, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open Elo ratings")
	}

	agents := loadField(store, *topN)
	if len(agents) < 2 {
		log.Fatal().Int("models", len(agents)).Msg("Need at least two loadable models")
	}

	env := game.NewTicTacToe()
	tourney := tournament.New(env, ratings, cfg.Tournament.HistoryFile, log.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("format", *format).
		Int("participants", len(agents)).
		Int("games_per_match", *gamesPerMatch).
		Msg("Starting tournament")

	switch *format {
	case "bracket":
		result, err := tourney.Bracket(ctx, agents, *gamesPerMatch)
		if err != nil {
			log.Fatal().Err(err).Msg("Tournament failed")
		}
		log.Info().
			Str("champion", result.Champion).
			Int("rounds", len(result.Rounds)).
			Msg("Tournament complete")
	default:
		result, err := tourney.RoundRobin(ctx, agents, *gamesPerMatch, cfg.Tournament.UpdateElo)
		if err != nil {
			log.Fatal().Err(err).Msg("Tournament failed")
		}
		for rank, s := range result.Standings {
			log.Info().
				Int("rank", rank+1).
				Str("model", s.Name).
				Int("points", s.Points).
				Int("wins", s.Wins).
				Int("draws", s.Draws).
				Int("losses", s.Losses).
				Float64("elo", ratings.Rating(s.Name)).
				Msg("Final standing")
		}
		log.Info().Str("champion", result.Champion).Msg("Tournament complete")
	}
}

// loadField loads every listed model into its own frozen agent, skipping the
// ones that fail to load.
func loadField(store *model.Store, topN int) map[string]agent.Policy {
	records := store.List()
	if topN > 0 && topN < len(records) {
		records = records[:topN]
	}

	agents := make(map[string]agent.Policy, len(records))
	for _, rec := range records {
		rng := rand.New(rand.NewSource(1))
		a, err := agent.New(agent.DefaultConfig(), rng, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid agent configuration")
		}
		if !store.Load(a, rec.Path) {
			log.Warn().Str("path", rec.Path).Msg("Skipping unloadable model")
			continue
		}
		agents[rec.Name] = a
	}
	return agents
}

func setupLogging(level string) {
	// Parse log level
	var logLevel zerolog.Level
	switch level {
	case "debug":
		logLevel = zerolog.DebugLevel
	case "info":
		logLevel = zerolog.InfoLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	default:
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)

	if os.Getenv("APP_ENV") == "production" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}
}
