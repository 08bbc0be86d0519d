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
	"github.com/arenalab/qarena/internal/game"
	"github.com/arenalab/qarena/internal/model"
	"github.com/arenalab/qarena/internal/trainer"
)

func main() {
	// Command line flags
	configPath := flag.String("config", "", "Path to config file")
	episodes := flag.Int("episodes", -1, "Training episodes (-1 to use config default)")
	evalGames := flag.Int("eval-games", -1, "Evaluation games per seed (-1 to use config default)")
	evalSeeds := flag.Int("eval-seeds", -1, "Evaluation seeds (-1 to use config default)")
	saveName := flag.String("name", "", "Model name to save under (empty to use config default)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error) (empty to use config default)")
	flag.Parse()

	// Initialize configuration
	if err := config.Init(*configPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize config")
	}

	cfg := config.Get()

	// Use config defaults if not overridden by flags
	if *episodes == -1 {
		*episodes = cfg.Training.Episodes
	}
	if *evalGames == -1 {
		*evalGames = cfg.Evaluation.Games
	}
	if *evalSeeds == -1 {
		*evalSeeds = cfg.Evaluation.Seeds
	}
	if *saveName == "" {
		*saveName = cfg.Models.SaveName
	}
	if *logLevel == "" {
		*logLevel = cfg.Logging.Level
	}

	setupLogging(*logLevel)

	log.Info().
		Int("episodes", *episodes).
		Int("eval_games", *evalGames).
		Int("eval_seeds", *evalSeeds).
		Str("model_name", *saveName).
		Msg("Starting training")

	rng := rand.New(rand.NewSource(cfg.Training.Seed))
	a, err := agent.New(agent.Config{
		Alpha:        cfg.Training.Alpha,
		Gamma:        cfg.Training.Gamma,
		Epsilon:      cfg.Training.Epsilon,
		EpsilonMin:   cfg.Training.EpsilonMin,
		EpsilonDecay: cfg.Training.EpsilonDecay,
	}, rng, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid agent configuration")
	}

	store, err := model.NewStore(cfg.Models.Dir, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open model store")
	}

	tr := trainer.New(a, game.NewTicTacToe(), store, rng, log.Logger)

	// Cancel the run on SIGINT/SIGTERM; the trainer checks between episodes
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := tr.Train(ctx, trainer.Options{
		NumEpisodes:  *episodes,
		EvalGames:    *evalGames,
		EvalSeeds:    *evalSeeds,
		EvalBaseSeed: cfg.Evaluation.BaseSeed,
		SaveName:     *saveName,
		Versioned:    cfg.Models.Versioned,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Training failed")
	}

	event := log.Info().
		Float64("train_win_rate", result.WinRate).
		Float64("train_draw_rate", result.DrawRate).
		Int("states_learned", result.StatesLearned).
		Float64("final_epsilon", result.FinalEpsilon)
	if eval := result.Evaluation; eval != nil {
		event = event.
			Float64("eval_win_rate", eval.WinRateMean).
			Float64("eval_win_rate_std", eval.WinRateStd)
	}
	if result.Saved != nil {
		event = event.Str("saved", result.Saved.Path)
	}
	event.Msg("Training complete")
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

	// Check if we're in production
	if os.Getenv("APP_ENV") == "production" {
		// JSON output for production
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		// Pretty console output for development
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}
}
