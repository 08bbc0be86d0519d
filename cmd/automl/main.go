package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/arenalab/qarena/internal/automl"
	"github.com/arenalab/qarena/internal/config"
	"github.com/arenalab/qarena/internal/game"
)

func main() {
	// Command line flags
	configPath := flag.String("config", "", "Path to config file")
	strategy := flag.String("strategy", "grid", "Search strategy (grid or random)")
	iterations := flag.Int("iterations", 20, "Random search iterations")
	episodes := flag.Int("episodes", -1, "Training episodes per configuration (-1 to use config default)")
	workers := flag.Int("workers", -1, "Parallel trial workers (-1 to use config default)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error) (empty to use config default)")
	flag.Parse()

	// Initialize configuration
	if err := config.Init(*configPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize config")
	}

	cfg := config.Get()

	if *episodes == -1 {
		*episodes = cfg.AutoML.Episodes
	}
	if *workers == -1 {
		*workers = cfg.AutoML.Workers
	}
	if *logLevel == "" {
		*logLevel = cfg.Logging.Level
	}

	setupLogging(*logLevel)

	tuner := automl.NewTuner(
		func() game.Environment { return game.NewTicTacToe() },
		cfg.AutoML.ResultsFile,
		log.Logger,
	)

	opts := automl.Options{
		Episodes:   *episodes,
		EvalGames:  cfg.AutoML.EvalGames,
		EvalSeeds:  cfg.AutoML.EvalSeeds,
		MaxConfigs: cfg.AutoML.MaxConfigs,
		Seed:       cfg.AutoML.Seed,
		Workers:    *workers,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Run the sweep in the background and report progress while it works.
	task := automl.Go(func() (*automl.SweepResult, error) {
		if *strategy == "random" {
			return tuner.RandomSearch(ctx, automl.DefaultDistributions(), *iterations, opts)
		}
		return tuner.GridSearch(ctx, automl.DefaultGrid(), opts)
	})

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for !task.Finished() {
		select {
		case <-ticker.C:
			p := tuner.Progress()
			log.Info().
				Int("completed", p.Completed).
				Int("total", p.Total).
				Float64("best_score", p.BestScore).
				Msg("Sweep progress")
		case <-task.Done():
		}
	}

	result, err := task.Wait(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Sweep failed")
	}

	best := result.Best
	log.Info().
		Int("configs", len(result.Trials)).
		Dur("duration", result.Duration).
		Float64("composite_score", best.CompositeScore).
		Float64("alpha", best.Config.Alpha).
		Float64("gamma", best.Config.Gamma).
		Float64("epsilon_decay", best.Config.EpsilonDecay).
		Float64("epsilon_min", best.Config.EpsilonMin).
		Float64("eval_win_rate", best.EvalWinRate).
		Msg("Sweep complete")
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
