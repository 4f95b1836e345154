package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an episode record does not exist.
var ErrNotFound = errors.New("episode not found")

// ErrClosed is returned when writing to a closed backend.
var ErrClosed = errors.New("episode store closed")

// EpisodeRecord summarizes one finished episode
type EpisodeRecord struct {
	ID       string `json:"id"`
	Number   int    `json:"number"`
	Behavior string `json:"behavior"`
	Steps    int    `json:"steps"`
	// Agents is the number of distinct agents seen during the episode.
	Agents      int     `json:"agents"`
	TotalReward float64 `json:"total_reward"`
	MeanReward  float64 `json:"mean_reward"`
	// Truncated is set when the actor stopped the episode at its step limit.
	Truncated  bool               `json:"truncated"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Duration   time.Duration      `json:"duration_ns"`
	EnvStats   map[string]float64 `json:"env_stats,omitempty"`
}

// Stats aggregates the stored episode history
type Stats struct {
	TotalEpisodes      uint64            `json:"total_episodes"`
	TotalSteps         uint64            `json:"total_steps"`
	MeanReward         float64           `json:"mean_reward"`
	EpisodesByBehavior map[string]uint64 `json:"episodes_by_behavior"`
	Evicted            uint64            `json:"evicted"`
	OldestFinishedAt   *time.Time        `json:"oldest_finished_at,omitempty"`
	NewestFinishedAt   *time.Time        `json:"newest_finished_at,omitempty"`
}

// Backend defines the interface for episode history storage implementations
type Backend interface {
	// Store a finished episode
	Store(ctx context.Context, record *EpisodeRecord) error

	// Get one episode by ID
	Get(ctx context.Context, id string) (*EpisodeRecord, error)

	// List the most recent episodes, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]*EpisodeRecord, error)

	// Get history statistics
	GetStats(ctx context.Context) (*Stats, error)

	// Clear all but the newest keepLastN episodes
	Clear(ctx context.Context, keepLastN uint32) (uint64, error)

	// Close the backend and cleanup resources
	Close() error
}
