package events

import "context"

// Run states carried by RunStatusEvent.
const (
	RunStarted   = "started"
	RunCompleted = "completed"
	RunStopped   = "stopped"
	RunFailed    = "failed"
)

// Publisher is implemented by downstream fan-out mechanisms.
type Publisher interface {
	PublishEpisode(ctx context.Context, payload EpisodeEvent) error
	PublishRunStatus(ctx context.Context, payload RunStatusEvent) error
}

// EpisodeEvent is emitted after every finished episode.
type EpisodeEvent struct {
	RunID       string             `json:"run_id"`
	EpisodeID   string             `json:"episode_id"`
	Number      int                `json:"number"`
	Behavior    string             `json:"behavior"`
	Steps       int                `json:"steps"`
	TotalReward float64            `json:"total_reward"`
	MeanReward  float64            `json:"mean_reward"`
	Truncated   bool               `json:"truncated"`
	EnvStats    map[string]float64 `json:"env_stats,omitempty"`
}

// RunStatusEvent tracks the lifecycle of an actor run.
type RunStatusEvent struct {
	RunID             string `json:"run_id"`
	State             string `json:"state"`
	Behavior          string `json:"behavior,omitempty"`
	EpisodesCompleted int    `json:"episodes_completed"`
	TotalSteps        int    `json:"total_steps"`
	LastError         string `json:"last_error,omitempty"`
}

// NoopPublisher drops every event; useful for tests.
type NoopPublisher struct{}

// PublishEpisode satisfies Publisher.
func (NoopPublisher) PublishEpisode(context.Context, EpisodeEvent) error { return nil }

// PublishRunStatus satisfies Publisher.
func (NoopPublisher) PublishRunStatus(context.Context, RunStatusEvent) error { return nil }
