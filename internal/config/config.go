// Package config loads and validates application configuration from YAML
// files and QARENA_* environment variables, with sane defaults for every
// key.
package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Training   TrainingConfig   `mapstructure:"training"`
	Evaluation EvaluationConfig `mapstructure:"evaluation"`
	Models     ModelsConfig     `mapstructure:"models"`
	Elo        EloConfig        `mapstructure:"elo"`
	Tournament TournamentConfig `mapstructure:"tournament"`
	AutoML     AutoMLConfig     `mapstructure:"automl"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// TrainingConfig holds the training loop and agent hyperparameter settings
type TrainingConfig struct {
	Episodes     int     `mapstructure:"episodes"`
	Alpha        float64 `mapstructure:"alpha"`
	Gamma        float64 `mapstructure:"gamma"`
	Epsilon      float64 `mapstructure:"epsilon"`
	EpsilonMin   float64 `mapstructure:"epsilon_min"`
	EpsilonDecay float64 `mapstructure:"epsilon_decay"`
	Seed         int64   `mapstructure:"seed"`
}

// EvaluationConfig holds the multi-seed evaluation protocol settings
type EvaluationConfig struct {
	Games    int   `mapstructure:"games"`
	Seeds    int   `mapstructure:"seeds"`
	BaseSeed int64 `mapstructure:"base_seed"`
}

// ModelsConfig holds model persistence settings
type ModelsConfig struct {
	Dir       string `mapstructure:"dir"`
	SaveName  string `mapstructure:"save_name"`
	Versioned bool   `mapstructure:"versioned"`
}

// EloConfig holds the rating system settings
type EloConfig struct {
	RatingsFile   string  `mapstructure:"ratings_file"`
	KFactor       float64 `mapstructure:"k_factor"`
	InitialRating float64 `mapstructure:"initial_rating"`
}

// TournamentConfig holds competition settings
type TournamentConfig struct {
	GamesPerMatch int    `mapstructure:"games_per_match"`
	HistoryFile   string `mapstructure:"history_file"`
	UpdateElo     bool   `mapstructure:"update_elo"`
}

// AutoMLConfig holds hyperparameter sweep settings
type AutoMLConfig struct {
	Episodes    int    `mapstructure:"episodes"`
	EvalGames   int    `mapstructure:"eval_games"`
	EvalSeeds   int    `mapstructure:"eval_seeds"`
	MaxConfigs  int    `mapstructure:"max_configs"`
	Workers     int    `mapstructure:"workers"`
	Seed        int64  `mapstructure:"seed"`
	ResultsFile string `mapstructure:"results_file"`
}

// LoggingConfig holds log output settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var (
	// Global config instance
	cfg *Config
	v   *viper.Viper
)

// setViperDefaults sets all default values using Viper's SetDefault
func setViperDefaults(v *viper.Viper) {
	// Training defaults
	v.SetDefault("training.episodes", 50000)
	v.SetDefault("training.alpha", 0.2)
	v.SetDefault("training.gamma", 0.99)
	v.SetDefault("training.epsilon", 1.0)
	v.SetDefault("training.epsilon_min", 0.01)
	v.SetDefault("training.epsilon_decay", 0.9995)
	v.SetDefault("training.seed", 1)

	// Evaluation defaults
	v.SetDefault("evaluation.games", 100)
	v.SetDefault("evaluation.seeds", 5)
	v.SetDefault("evaluation.base_seed", 42)

	// Model persistence defaults
	v.SetDefault("models.dir", "models")
	v.SetDefault("models.save_name", "q_table")
	v.SetDefault("models.versioned", true)

	// Elo defaults
	v.SetDefault("elo.ratings_file", "models/elo_ratings.json")
	v.SetDefault("elo.k_factor", 32.0)
	v.SetDefault("elo.initial_rating", 1500.0)

	// Tournament defaults
	v.SetDefault("tournament.games_per_match", 100)
	v.SetDefault("tournament.history_file", "models/tournament_history.json")
	v.SetDefault("tournament.update_elo", true)

	// AutoML defaults
	v.SetDefault("automl.episodes", 10000)
	v.SetDefault("automl.eval_games", 100)
	v.SetDefault("automl.eval_seeds", 3)
	v.SetDefault("automl.max_configs", 0)
	v.SetDefault("automl.workers", 4)
	v.SetDefault("automl.seed", 1)
	v.SetDefault("automl.results_file", "models/automl_results.csv")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Init initializes the configuration
func Init(configPath string) error {
	v = viper.New()

	// Set defaults before loading any config
	setViperDefaults(v)

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default config locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/qarena")
	}

	// Set environment variable prefix
	v.SetEnvPrefix("QARENA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		// If we have a specific config path and it doesn't exist, that's ok - use defaults
		if configPath != "" {
			// Specific file requested but not found - that's ok, use defaults
		} else if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// For default locations, only ignore ConfigFileNotFoundError
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults
	}

	// Unmarshal into config struct
	cfg = &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unable to decode config into struct: %w", err)
	}

	// Validate configuration
	if err := Validate(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	return nil
}

// Get returns the global config instance
func Get() *Config {
	if cfg == nil {
		// Initialize with defaults if not already initialized
		if err := Init(""); err != nil {
			panic("failed to initialize config with defaults: " + err.Error())
		}
	}
	return cfg
}

// GetViper returns the viper instance for advanced usage
func GetViper() *viper.Viper {
	if v == nil {
		panic("config not initialized - call Init() first")
	}
	return v
}

// Set allows runtime config updates
func Set(key string, value interface{}) {
	v.Set(key, value)
	// Re-unmarshal to update struct
	v.Unmarshal(cfg)
}

// GetString gets a string value from config
func GetString(key string) string {
	return v.GetString(key)
}

// GetInt gets an int value from config
func GetInt(key string) int {
	return v.GetInt(key)
}

// GetBool gets a bool value from config
func GetBool(key string) bool {
	return v.GetBool(key)
}

// GetFloat64 gets a float64 value from config
func GetFloat64(key string) float64 {
	return v.GetFloat64(key)
}

// ConfigFilePath returns the path of the loaded config file
func ConfigFilePath() string {
	return v.ConfigFileUsed()
}

// WatchConfig enables hot-reloading of config file
func WatchConfig(onChange func()) {
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		// Re-unmarshal on change
		v.Unmarshal(cfg)
		if onChange != nil {
			onChange()
		}
	})
}

// Validate validates the configuration values
func Validate(c *Config) error {
	// Validate agent hyperparameters
	if c.Training.Episodes <= 0 {
		return fmt.Errorf("training.episodes must be positive")
	}
	if c.Training.Alpha <= 0 || c.Training.Alpha > 1 {
		return fmt.Errorf("training.alpha must be in (0, 1]")
	}
	if c.Training.Gamma < 0 || c.Training.Gamma > 1 {
		return fmt.Errorf("training.gamma must be in [0, 1]")
	}
	if c.Training.Epsilon < 0 || c.Training.Epsilon > 1 {
		return fmt.Errorf("training.epsilon must be in [0, 1]")
	}
	if c.Training.EpsilonMin < 0 || c.Training.EpsilonMin > c.Training.Epsilon {
		return fmt.Errorf("training.epsilon_min must be in [0, epsilon]")
	}
	if c.Training.EpsilonDecay <= 0 || c.Training.EpsilonDecay > 1 {
		return fmt.Errorf("training.epsilon_decay must be in (0, 1]")
	}

	// Validate evaluation protocol
	if c.Evaluation.Games <= 0 {
		return fmt.Errorf("evaluation.games must be positive")
	}
	if c.Evaluation.Seeds <= 0 {
		return fmt.Errorf("evaluation.seeds must be positive")
	}

	// Validate model persistence
	if c.Models.Dir == "" {
		return fmt.Errorf("models.dir must not be empty")
	}

	// Validate rating system
	if c.Elo.KFactor <= 0 {
		return fmt.Errorf("elo.k_factor must be positive")
	}
	if c.Elo.InitialRating <= 0 {
		return fmt.Errorf("elo.initial_rating must be positive")
	}

	// Validate competitions
	if c.Tournament.GamesPerMatch <= 0 {
		return fmt.Errorf("tournament.games_per_match must be positive")
	}

	// Validate sweeps
	if c.AutoML.Episodes <= 0 {
		return fmt.Errorf("automl.episodes must be positive")
	}
	if c.AutoML.EvalGames <= 0 {
		return fmt.Errorf("automl.eval_games must be positive")
	}
	if c.AutoML.Workers <= 0 {
		return fmt.Errorf("automl.workers must be positive")
	}
	if c.AutoML.MaxConfigs < 0 {
		return fmt.Errorf("automl.max_configs must be non-negative")
	}

	return nil
}
