package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Config holds all actor configuration
type Config struct {
	// Unity environment
	FileName       string        `mapstructure:"file_name"`
	WorkerID       int           `mapstructure:"worker_id"`
	BasePort       int           `mapstructure:"base_port"`
	Seed           int           `mapstructure:"seed"`
	NoGraphics     bool          `mapstructure:"no_graphics"`
	TimeoutWait    time.Duration `mapstructure:"timeout_wait"`
	NumAreas       int           `mapstructure:"num_areas"`
	LogFolder      string        `mapstructure:"log_folder"`
	AdditionalArgs []string      `mapstructure:"additional_args"`

	// Engine configuration side channel
	TimeScale        float64 `mapstructure:"time_scale"`
	Width            int     `mapstructure:"width"`
	Height           int     `mapstructure:"height"`
	QualityLevel     int     `mapstructure:"quality_level"`
	TargetFrameRate  int     `mapstructure:"target_frame_rate"`
	CaptureFrameRate int     `mapstructure:"capture_frame_rate"`

	// Environment parameters as key=value
	EnvParams []string `mapstructure:"env_params"`

	// Episode management
	BehaviorName string `mapstructure:"behavior_name"`
	MaxEpisodes  int    `mapstructure:"max_episodes"`
	MaxSteps     int    `mapstructure:"max_steps"`
	PolicySeed   int64  `mapstructure:"policy_seed"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`

	// Status server, disabled when empty
	StatusAddr  string `mapstructure:"status_addr"`
	HistorySize int    `mapstructure:"history_size"`

	// Episode history in Postgres instead of memory, disabled when empty
	DatabaseURL string `mapstructure:"database_url"`

	// Event fan-out, disabled when NatsURL is empty
	NatsURL     string `mapstructure:"nats_url"`
	NatsSubject string `mapstructure:"nats_subject"`
}

// Default returns a config with sensible defaults
func Default() *Config {
	return &Config{
		TimeoutWait:  60 * time.Second,
		NumAreas:     1,
		TimeScale:    20,
		QualityLevel: -1,
		MaxEpisodes:  1000,
		PolicySeed:   -1, // seeded from the clock
		LogLevel:     "info",
		LogFormat:    "console",
		HistorySize:  1000,
		NatsSubject:  "unity_actor",
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.FileName == "" && c.WorkerID != 0 {
		return fmt.Errorf("worker_id must be 0 when connecting to the Unity Editor")
	}
	if c.WorkerID < 0 {
		return fmt.Errorf("worker_id must not be negative")
	}
	if c.BasePort < 0 || c.BasePort+c.WorkerID > 65535 {
		return fmt.Errorf("base_port %d with worker_id %d is not a valid port", c.BasePort, c.WorkerID)
	}
	// Sent to Unity as int32.
	for _, f := range []struct {
		name  string
		value int
	}{
		{"seed", c.Seed},
		{"width", c.Width},
		{"height", c.Height},
		{"quality_level", c.QualityLevel},
		{"target_frame_rate", c.TargetFrameRate},
		{"capture_frame_rate", c.CaptureFrameRate},
	} {
		if f.value < math.MinInt32 || f.value > math.MaxInt32 {
			return fmt.Errorf("%s %d does not fit in 32 bits", f.name, f.value)
		}
	}
	if c.TimeoutWait <= 0 {
		return fmt.Errorf("timeout_wait must be positive")
	}
	if c.NumAreas <= 0 {
		return fmt.Errorf("num_areas must be positive")
	}
	if c.TimeScale <= 0 {
		return fmt.Errorf("time_scale must be positive")
	}
	if (c.Width == 0) != (c.Height == 0) || c.Width < 0 || c.Height < 0 {
		return fmt.Errorf("width and height must be set together")
	}
	if c.MaxEpisodes < 0 {
		return fmt.Errorf("max_episodes must not be negative")
	}
	if c.MaxSteps < 0 {
		return fmt.Errorf("max_steps must not be negative")
	}
	if c.HistorySize < 0 {
		return fmt.Errorf("history_size must not be negative")
	}
	if c.NatsURL != "" && strings.TrimSpace(c.NatsSubject) == "" {
		return fmt.Errorf("nats_subject is required when nats_url is set")
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log_format must be console or json, got %q", c.LogFormat)
	}
	if _, err := c.EnvironmentParameters(); err != nil {
		return err
	}
	return nil
}

// EnvironmentParameters parses EnvParams into float values.
func (c *Config) EnvironmentParameters() (map[string]float32, error) {
	params := make(map[string]float32, len(c.EnvParams))
	for _, kv := range c.EnvParams {
		key, raw, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("env_params entry %q must be key=value", kv)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 32)
		if err != nil {
			return nil, fmt.Errorf("env_params entry %q: %w", kv, err)
		}
		params[key] = float32(v)
	}
	return params, nil
}
