package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultsConfig(t *testing.T) *Config {
	t.Helper()
	// A path that does not exist falls back to defaults.
	require.NoError(t, Init(filepath.Join(t.TempDir(), "missing.yaml")))
	return Get()
}

func TestInitDefaults(t *testing.T) {
	c := defaultsConfig(t)

	assert.Equal(t, 50000, c.Training.Episodes)
	assert.InDelta(t, 0.2, c.Training.Alpha, 1e-12)
	assert.InDelta(t, 0.99, c.Training.Gamma, 1e-12)
	assert.InDelta(t, 1.0, c.Training.Epsilon, 1e-12)
	assert.InDelta(t, 0.01, c.Training.EpsilonMin, 1e-12)
	assert.InDelta(t, 0.9995, c.Training.EpsilonDecay, 1e-12)

	assert.Equal(t, 100, c.Evaluation.Games)
	assert.Equal(t, 5, c.Evaluation.Seeds)
	assert.Equal(t, int64(42), c.Evaluation.BaseSeed)

	assert.Equal(t, "models", c.Models.Dir)
	assert.Equal(t, "q_table", c.Models.SaveName)
	assert.True(t, c.Models.Versioned)

	assert.InDelta(t, 32.0, c.Elo.KFactor, 1e-12)
	assert.InDelta(t, 1500.0, c.Elo.InitialRating, 1e-12)

	assert.Equal(t, 100, c.Tournament.GamesPerMatch)
	assert.True(t, c.Tournament.UpdateElo)

	assert.Equal(t, 10000, c.AutoML.Episodes)
	assert.Equal(t, 4, c.AutoML.Workers)

	assert.Equal(t, "info", c.Logging.Level)
	assert.Equal(t, "console", c.Logging.Format)
}

func TestInitLoadsYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
training:
  episodes: 1234
  alpha: 0.35
logging:
  level: debug
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	require.NoError(t, Init(path))
	c := Get()

	assert.Equal(t, 1234, c.Training.Episodes)
	assert.InDelta(t, 0.35, c.Training.Alpha, 1e-12)
	assert.Equal(t, "debug", c.Logging.Level)
	// Untouched keys keep their defaults.
	assert.InDelta(t, 0.99, c.Training.Gamma, 1e-12)
	assert.Equal(t, path, ConfigFilePath())
}

func TestInitRejectsInvalidFileValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("training:\n  alpha: 5.0\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	assert.Error(t, Init(path))
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("QARENA_TRAINING_EPISODES", "777")
	defaultsConfig(t)

	assert.Equal(t, 777, GetInt("training.episodes"))
}

func TestSetUpdatesStruct(t *testing.T) {
	c := defaultsConfig(t)
	Set("tournament.games_per_match", 7)

	assert.Equal(t, 7, GetInt("tournament.games_per_match"))
	assert.Equal(t, 7, c.Tournament.GamesPerMatch)
}

func TestTypedGetters(t *testing.T) {
	defaultsConfig(t)

	assert.Equal(t, "q_table", GetString("models.save_name"))
	assert.Equal(t, 5, GetInt("evaluation.seeds"))
	assert.True(t, GetBool("tournament.update_elo"))
	assert.InDelta(t, 0.9995, GetFloat64("training.epsilon_decay"), 1e-12)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"zero episodes", func(c *Config) { c.Training.Episodes = 0 }, true},
		{"alpha above one", func(c *Config) { c.Training.Alpha = 1.5 }, true},
		{"negative gamma", func(c *Config) { c.Training.Gamma = -0.1 }, true},
		{"epsilon above one", func(c *Config) { c.Training.Epsilon = 1.2 }, true},
		{"floor above epsilon", func(c *Config) { c.Training.Epsilon = 0.1; c.Training.EpsilonMin = 0.5 }, true},
		{"zero decay", func(c *Config) { c.Training.EpsilonDecay = 0 }, true},
		{"zero eval games", func(c *Config) { c.Evaluation.Games = 0 }, true},
		{"zero eval seeds", func(c *Config) { c.Evaluation.Seeds = 0 }, true},
		{"empty models dir", func(c *Config) { c.Models.Dir = "" }, true},
		{"zero k factor", func(c *Config) { c.Elo.KFactor = 0 }, true},
		{"zero initial rating", func(c *Config) { c.Elo.InitialRating = 0 }, true},
		{"zero games per match", func(c *Config) { c.Tournament.GamesPerMatch = 0 }, true},
		{"zero automl episodes", func(c *Config) { c.AutoML.Episodes = 0 }, true},
		{"zero automl workers", func(c *Config) { c.AutoML.Workers = 0 }, true},
		{"negative max configs", func(c *Config) { c.AutoML.MaxConfigs = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := defaultsConfig(t)
			cp := *c
			tt.mutate(&cp)
			err := Validate(&cp)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
