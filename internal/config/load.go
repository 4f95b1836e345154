package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment variables, e.g. UNITY_ACTOR_TIME_SCALE.
const EnvPrefix = "UNITY_ACTOR"

// RegisterFlags adds a flag for every setting, defaulting to cfg.
func RegisterFlags(fs *pflag.FlagSet, cfg *Config) {
	// Unity environment
	fs.StringVar(&cfg.FileName, "file-name", cfg.FileName, "Unity player to launch (empty connects to the Editor)")
	fs.IntVar(&cfg.WorkerID, "worker-id", cfg.WorkerID, "Offset added to the base port, one per concurrent environment")
	fs.IntVar(&cfg.BasePort, "base-port", cfg.BasePort, "Communicator port (0 picks 5004 for the Editor, 5005 for players)")
	fs.IntVar(&cfg.Seed, "seed", cfg.Seed, "Seed passed to the Unity environment")
	fs.BoolVar(&cfg.NoGraphics, "no-graphics", cfg.NoGraphics, "Run the player with -nographics -batchmode")
	fs.DurationVar(&cfg.TimeoutWait, "timeout-wait", cfg.TimeoutWait, "How long to wait for each message from Unity")
	fs.IntVar(&cfg.NumAreas, "num-areas", cfg.NumAreas, "Number of training areas to instantiate")
	fs.StringVar(&cfg.LogFolder, "log-folder", cfg.LogFolder, "Folder for the player log file")
	fs.StringSliceVar(&cfg.AdditionalArgs, "additional-args", cfg.AdditionalArgs, "Extra command line arguments for the player")

	// Engine
	fs.Float64Var(&cfg.TimeScale, "time-scale", cfg.TimeScale, "Simulation speed multiplier")
	fs.IntVar(&cfg.Width, "width", cfg.Width, "Player window width (0 keeps the player default)")
	fs.IntVar(&cfg.Height, "height", cfg.Height, "Player window height (0 keeps the player default)")
	fs.IntVar(&cfg.QualityLevel, "quality-level", cfg.QualityLevel, "Quality level (-1 keeps the player default)")
	fs.IntVar(&cfg.TargetFrameRate, "target-frame-rate", cfg.TargetFrameRate, "Target frame rate (0 keeps the player default)")
	fs.IntVar(&cfg.CaptureFrameRate, "capture-frame-rate", cfg.CaptureFrameRate, "Capture frame rate (0 keeps the player default)")
	fs.StringSliceVar(&cfg.EnvParams, "env-param", cfg.EnvParams, "Environment parameter as key=value (repeatable)")

	// Episodes
	fs.StringVar(&cfg.BehaviorName, "behavior-name", cfg.BehaviorName, "Behavior to drive (empty takes the first one)")
	fs.IntVar(&cfg.MaxEpisodes, "max-episodes", cfg.MaxEpisodes, "Episodes to run")
	fs.IntVar(&cfg.MaxSteps, "max-steps", cfg.MaxSteps, "Step limit per episode (0 for unlimited)")
	fs.Int64Var(&cfg.PolicySeed, "policy-seed", cfg.PolicySeed, "Seed for the random policy (-1 seeds from the clock)")

	// Logging
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (console, json)")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Also write JSON logs to this rotating file")

	// Status
	fs.StringVar(&cfg.StatusAddr, "status-addr", cfg.StatusAddr, "Serve the status API on this address (empty disables it)")
	fs.IntVar(&cfg.HistorySize, "history-size", cfg.HistorySize, "Episodes kept for the status API (0 keeps all)")
	fs.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "Postgres URL for the episode history (empty keeps it in memory)")

	// Events
	fs.StringVar(&cfg.NatsURL, "nats-url", cfg.NatsURL, "Publish episode and run events to this NATS server (empty disables it)")
	fs.StringVar(&cfg.NatsSubject, "nats-subject", cfg.NatsSubject, "Base NATS subject for events")
}

// Load resolves the configuration from, in order of precedence, changed
// flags, UNITY_ACTOR_* environment variables, the optional config file and
// flag defaults.
func Load(v *viper.Viper, fs *pflag.FlagSet, configFile string) (*Config, error) {
	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" || f.Name == "help" {
			return
		}
		if err := v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); err != nil && bindErr == nil {
			bindErr = err
		}
	})
	if bindErr != nil {
		return nil, fmt.Errorf("bind flags: %w", bindErr)
	}
	// env_param is registered as a singular flag but stored as env_params
	if f := fs.Lookup("env-param"); f != nil {
		if err := v.BindPFlag("env_params", f); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}
