package metrics

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/cartridge/unity-actor/internal/storage"
)

// Metrics collector for actor operations
type Collector struct {
	logger zerolog.Logger
}

func NewCollector(logger zerolog.Logger) *Collector {
	return &Collector{
		logger: logger,
	}
}

// Track finished episodes
func (c *Collector) EpisodeCompleted(record *storage.EpisodeRecord) {
	c.logger.Info().
		Str("metric", "episode_completed").
		Str("episode_id", record.ID).
		Int("episode", record.Number).
		Str("behavior", record.Behavior).
		Int("steps", record.Steps).
		Int("agents", record.Agents).
		Float64("total_reward", record.TotalReward).
		Float64("mean_reward", record.MeanReward).
		Bool("truncated", record.Truncated).
		Dur("duration", record.Duration).
		Msg("Episode metric")
}

// Track values the scene reported through the stats side channel
func (c *Collector) EnvironmentStats(episode int, stats map[string]float64) {
	if len(stats) == 0 {
		return
	}
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	dict := zerolog.Dict()
	for _, k := range keys {
		dict = dict.Float64(k, stats[k])
	}
	c.logger.Info().
		Str("metric", "environment_stats").
		Int("episode", episode).
		Dict("stats", dict).
		Msg("Environment stats metric")
}

// Track the end of a run
func (c *Collector) RunCompleted(episodes int, totalSteps int, duration time.Duration) {
	c.logger.Info().
		Str("metric", "run_completed").
		Int("episodes", episodes).
		Int("total_steps", totalSteps).
		Dur("duration", duration).
		Msg("Run metric")
}

// Track API request metrics
func (c *Collector) APIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	c.logger.Info().
		Str("metric", "api_request").
		Str("method", method).
		Str("endpoint", endpoint).
		Int("status_code", statusCode).
		Dur("duration", duration).
		Msg("API request metric")
}
