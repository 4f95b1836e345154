package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 20.0, cfg.TimeScale)
	assert.Equal(t, 1000, cfg.MaxEpisodes)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"editor with worker id", func(c *Config) { c.WorkerID = 1 }},
		{"zero timeout", func(c *Config) { c.TimeoutWait = 0 }},
		{"zero areas", func(c *Config) { c.NumAreas = 0 }},
		{"zero time scale", func(c *Config) { c.TimeScale = 0 }},
		{"width without height", func(c *Config) { c.Width = 80 }},
		{"negative episodes", func(c *Config) { c.MaxEpisodes = -1 }},
		{"negative steps", func(c *Config) { c.MaxSteps = -5 }},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }},
		{"bad env param", func(c *Config) { c.EnvParams = []string{"gravity"} }},
		{"non numeric env param", func(c *Config) { c.EnvParams = []string{"gravity=heavy"} }},
		{"seed above int32", func(c *Config) { c.Seed = math.MaxInt32 + 1 }},
		{"seed below int32", func(c *Config) { c.Seed = math.MinInt32 - 1 }},
		{"frame rate above int32", func(c *Config) { c.TargetFrameRate = math.MaxInt32 + 1 }},
		{"nats without subject", func(c *Config) { c.NatsURL = "nats://localhost:4222"; c.NatsSubject = " " }},
		{"port overflow", func(c *Config) { c.FileName = "Player"; c.BasePort = 65535; c.WorkerID = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_SeedBounds(t *testing.T) {
	cfg := Default()
	cfg.Seed = math.MaxInt32
	assert.NoError(t, cfg.Validate())
	cfg.Seed = math.MinInt32
	assert.NoError(t, cfg.Validate())
}

func TestEnvironmentParameters(t *testing.T) {
	cfg := Default()
	cfg.EnvParams = []string{"gravity=-9.81", " lesson = 2 "}

	params, err := cfg.EnvironmentParameters()
	require.NoError(t, err)
	assert.Equal(t, map[string]float32{"gravity": -9.81, "lesson": 2}, params)
}

func newFlags(t *testing.T) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, Default())
	fs.String("config", "", "")
	return fs
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "actor.yaml")
	require.NoError(t, os.WriteFile(file, []byte(
		"max_episodes: 5\ntime_scale: 4\nmax_steps: 100\nenv_params:\n  - gravity=1\n"), 0o600))

	t.Setenv("UNITY_ACTOR_MAX_STEPS", "50")
	t.Setenv("UNITY_ACTOR_TIMEOUT_WAIT", "2m")
	t.Setenv("UNITY_ACTOR_NATS_URL", "nats://broker:4222")

	fs := newFlags(t)
	require.NoError(t, fs.Parse([]string{"--time-scale", "8", "--file-name", "Build/Roller"}))

	cfg, err := Load(viper.New(), fs, file)
	require.NoError(t, err)

	assert.Equal(t, 8.0, cfg.TimeScale, "flag beats file")
	assert.Equal(t, 50, cfg.MaxSteps, "env beats file")
	assert.Equal(t, 5, cfg.MaxEpisodes, "file beats default")
	assert.Equal(t, 2*time.Minute, cfg.TimeoutWait)
	assert.Equal(t, "Build/Roller", cfg.FileName)
	assert.Equal(t, []string{"gravity=1"}, cfg.EnvParams)
	assert.Equal(t, -1, cfg.QualityLevel)
	assert.Equal(t, "nats://broker:4222", cfg.NatsURL)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(viper.New(), newFlags(t), "")
	require.NoError(t, err)

	want := Default()
	assert.Equal(t, want.TimeoutWait, cfg.TimeoutWait)
	assert.Equal(t, want.TimeScale, cfg.TimeScale)
	assert.Equal(t, want.PolicySeed, cfg.PolicySeed)
	assert.Equal(t, want.LogFormat, cfg.LogFormat)
	assert.Equal(t, "unity_actor", cfg.NatsSubject)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Empty(t, cfg.EnvParams)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(viper.New(), newFlags(t), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
