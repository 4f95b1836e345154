package actor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cartridge/unity-actor/internal/config"
	"github.com/cartridge/unity-actor/internal/events"
	"github.com/cartridge/unity-actor/internal/metrics"
	"github.com/cartridge/unity-actor/internal/mlagents"
	"github.com/cartridge/unity-actor/internal/policy"
	"github.com/cartridge/unity-actor/internal/sidechannel"
	"github.com/cartridge/unity-actor/internal/storage"
)

// Environment is the part of mlagents.Environment the actor drives.
type Environment interface {
	BehaviorNames() []string
	BehaviorSpec(name string) (mlagents.BehaviorSpec, error)
	Reset(ctx context.Context) error
	Step(ctx context.Context) error
	GetSteps(name string) (*mlagents.DecisionSteps, *mlagents.TerminalSteps, error)
	SetActions(name string, actions mlagents.ActionTuple) error
	Close() error
}

// Progress is a snapshot of the run for the status API.
type Progress struct {
	RunID             string    `json:"run_id"`
	Running           bool      `json:"running"`
	Behavior          string    `json:"behavior,omitempty"`
	CurrentEpisode    int       `json:"current_episode"`
	EpisodesCompleted int       `json:"episodes_completed"`
	MaxEpisodes       int       `json:"max_episodes"`
	TotalSteps        int       `json:"total_steps"`
	StartedAt         time.Time `json:"started_at"`
}

// Actor runs episodes against a single Unity environment
type Actor struct {
	cfg    *config.Config
	env    Environment
	logger zerolog.Logger

	policy    policy.Policy
	store     storage.Backend
	metrics   *metrics.Collector
	stats     *sidechannel.StatsChannel
	publisher events.Publisher

	closeOnce sync.Once
	closeErr  error

	mu       sync.RWMutex
	progress Progress
}

// Option customizes an Actor.
type Option func(*Actor)

// WithPolicy replaces the random policy.
func WithPolicy(p policy.Policy) Option {
	return func(a *Actor) { a.policy = p }
}

// WithStore records finished episodes in store.
func WithStore(store storage.Backend) Option {
	return func(a *Actor) { a.store = store }
}

func WithMetrics(c *metrics.Collector) Option {
	return func(a *Actor) { a.metrics = c }
}

// WithPublisher announces episodes and run status changes.
func WithPublisher(p events.Publisher) Option {
	return func(a *Actor) { a.publisher = p }
}

// WithStats drains stats after every episode.
func WithStats(ch *sidechannel.StatsChannel) Option {
	return func(a *Actor) { a.stats = ch }
}

// New connects to the Unity environment described by cfg and queues the
// engine configuration and environment parameters for the first reset.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts ...Option) (*Actor, error) {
	params, err := cfg.EnvironmentParameters()
	if err != nil {
		return nil, err
	}

	engine := sidechannel.NewEngineConfigurationChannel()
	envParams := sidechannel.NewEnvironmentParametersChannel()
	stats := sidechannel.NewStatsChannel()

	env, err := mlagents.New(ctx, mlagents.Options{
		FileName:       cfg.FileName,
		WorkerID:       cfg.WorkerID,
		BasePort:       cfg.BasePort,
		Seed:           int32(cfg.Seed),
		NoGraphics:     cfg.NoGraphics,
		TimeoutWait:    cfg.TimeoutWait,
		NumAreas:       cfg.NumAreas,
		LogFolder:      cfg.LogFolder,
		AdditionalArgs: cfg.AdditionalArgs,
		SideChannels:   []sidechannel.Channel{engine, envParams, stats},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Unity environment: %w", err)
	}

	configureEngine(engine, cfg)
	for key, value := range params {
		envParams.SetFloatParameter(key, value)
	}

	return NewWithEnvironment(cfg, env, logger, append([]Option{WithStats(stats)}, opts...)...), nil
}

// NewWithEnvironment builds an actor around an already connected environment.
// The actor owns env from here on.
func NewWithEnvironment(cfg *config.Config, env Environment, logger zerolog.Logger, opts ...Option) *Actor {
	a := &Actor{
		cfg:    cfg,
		env:    env,
		logger: logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.store == nil {
		a.store = storage.NewMemoryBackend(uint64(cfg.HistorySize))
	}
	if a.metrics == nil {
		a.metrics = metrics.NewCollector(logger)
	}
	if a.publisher == nil {
		a.publisher = events.NoopPublisher{}
	}
	a.progress.RunID = uuid.New().String()
	a.progress.MaxEpisodes = cfg.MaxEpisodes
	return a
}

func configureEngine(engine *sidechannel.EngineConfigurationChannel, cfg *config.Config) {
	engine.SetTimeScale(float32(cfg.TimeScale))
	if cfg.Width > 0 && cfg.Height > 0 {
		engine.SetResolution(int32(cfg.Width), int32(cfg.Height))
	}
	if cfg.QualityLevel >= 0 {
		engine.SetQualityLevel(int32(cfg.QualityLevel))
	}
	if cfg.TargetFrameRate != 0 {
		engine.SetTargetFrameRate(int32(cfg.TargetFrameRate))
	}
	if cfg.CaptureFrameRate != 0 {
		engine.SetCaptureFrameRate(int32(cfg.CaptureFrameRate))
	}
}

// Close releases the environment. Later calls return the first result.
func (a *Actor) Close() error {
	a.closeOnce.Do(func() {
		a.closeErr = a.env.Close()
		if a.closeErr != nil {
			a.logger.Error().Err(a.closeErr).Msg("Failed to close environment")
		}
	})
	return a.closeErr
}

// Store returns the episode history.
func (a *Actor) Store() storage.Backend {
	return a.store
}

// Progress implements the status API's view of the run.
func (a *Actor) Progress() Progress {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.progress
}

func (a *Actor) updateProgress(fn func(p *Progress)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(&a.progress)
}

// Run resets the environment, picks the behavior and plays the configured
// number of episodes. The environment is closed when Run returns.
func (a *Actor) Run(ctx context.Context) error {
	defer a.Close()

	a.updateProgress(func(p *Progress) {
		p.Running = true
		p.StartedAt = time.Now()
	})
	err := a.run(ctx)
	a.updateProgress(func(p *Progress) { p.Running = false })

	state := events.RunCompleted
	switch {
	case IsShutdown(err):
		state = events.RunStopped
	case err != nil:
		state = events.RunFailed
	}
	a.publishRunStatus(state, err)
	return err
}

func (a *Actor) run(ctx context.Context) error {
	start := time.Now()
	if err := a.env.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset environment: %w", err)
	}

	behavior, spec, err := a.selectBehavior()
	if err != nil {
		return err
	}
	a.updateProgress(func(p *Progress) { p.Behavior = behavior })
	a.logger.Info().
		Str("behavior", behavior).
		Int("continuous_actions", spec.ActionSpec.ContinuousSize).
		Ints("discrete_branches", spec.ActionSpec.DiscreteBranches).
		Int("observations", len(spec.ObservationSpecs)).
		Msg("Behavior selected")

	if a.policy == nil {
		random, err := policy.NewRandom(spec.ActionSpec, a.cfg.PolicySeed)
		if err != nil {
			return fmt.Errorf("failed to create policy: %w", err)
		}
		a.policy = random
	}
	a.publishRunStatus(events.RunStarted, nil)

	totalSteps := 0
	completed := 0
	for episode := 1; episode <= a.cfg.MaxEpisodes; episode++ {
		if err := ctx.Err(); err != nil {
			a.logger.Info().Int("completed", completed).Msg("Context cancelled, stopping actor")
			return err
		}
		a.updateProgress(func(p *Progress) { p.CurrentEpisode = episode })

		record, err := a.runEpisode(ctx, behavior, episode)
		if err != nil {
			return fmt.Errorf("episode %d: %w", episode, err)
		}
		completed++
		totalSteps += record.Steps

		if err := a.store.Store(ctx, record); err != nil {
			a.logger.Warn().Err(err).Int("episode", episode).Msg("Failed to record episode")
		}
		a.metrics.EpisodeCompleted(record)
		a.metrics.EnvironmentStats(episode, record.EnvStats)
		a.publishEpisode(ctx, record)
		a.updateProgress(func(p *Progress) {
			p.EpisodesCompleted = completed
			p.TotalSteps = totalSteps
		})
		a.logger.Info().Int("episode", episode).Msgf("Episode %d completed.", episode)
	}

	a.metrics.RunCompleted(completed, totalSteps, time.Since(start))
	return nil
}

// Publishing failures are logged and never stop the run.
func (a *Actor) publishEpisode(ctx context.Context, record *storage.EpisodeRecord) {
	err := a.publisher.PublishEpisode(ctx, events.EpisodeEvent{
		RunID:       a.Progress().RunID,
		EpisodeID:   record.ID,
		Number:      record.Number,
		Behavior:    record.Behavior,
		Steps:       record.Steps,
		TotalReward: record.TotalReward,
		MeanReward:  record.MeanReward,
		Truncated:   record.Truncated,
		EnvStats:    record.EnvStats,
	})
	if err != nil {
		a.logger.Warn().Err(err).Int("episode", record.Number).Msg("Failed to publish episode event")
	}
}

func (a *Actor) publishRunStatus(state string, runErr error) {
	p := a.Progress()
	event := events.RunStatusEvent{
		RunID:             p.RunID,
		State:             state,
		Behavior:          p.Behavior,
		EpisodesCompleted: p.EpisodesCompleted,
		TotalSteps:        p.TotalSteps,
	}
	if runErr != nil {
		event.LastError = runErr.Error()
	}
	// The run context may already be cancelled here.
	if err := a.publisher.PublishRunStatus(context.Background(), event); err != nil {
		a.logger.Warn().Err(err).Str("state", state).Msg("Failed to publish run status")
	}
}

func (a *Actor) selectBehavior() (string, mlagents.BehaviorSpec, error) {
	name := a.cfg.BehaviorName
	if name == "" {
		names := a.env.BehaviorNames()
		if len(names) == 0 {
			return "", mlagents.BehaviorSpec{}, mlagents.ErrNoBehaviors
		}
		name = names[0]
	}
	spec, err := a.env.BehaviorSpec(name)
	if err != nil {
		return "", mlagents.BehaviorSpec{}, err
	}
	return name, spec, nil
}

// runEpisode plays one episode until no agent is waiting for a decision.
func (a *Actor) runEpisode(ctx context.Context, behavior string, number int) (*storage.EpisodeRecord, error) {
	started := time.Now()
	if err := a.env.Reset(ctx); err != nil {
		return nil, fmt.Errorf("failed to reset environment: %w", err)
	}

	decision, terminal, err := a.env.GetSteps(behavior)
	if err != nil {
		return nil, err
	}

	rewards := newRewardTracker()
	rewards.add(decision, terminal)

	steps := 0
	truncated := false
	for decision.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if a.cfg.MaxSteps > 0 && steps >= a.cfg.MaxSteps {
			truncated = true
			break
		}

		actions, err := a.policy.SelectActions(decision)
		if err != nil {
			return nil, fmt.Errorf("failed to select actions: %w", err)
		}
		if err := a.env.SetActions(behavior, actions); err != nil {
			return nil, err
		}
		if err := a.env.Step(ctx); err != nil {
			return nil, fmt.Errorf("failed to step environment: %w", err)
		}
		steps++

		decision, terminal, err = a.env.GetSteps(behavior)
		if err != nil {
			return nil, err
		}
		rewards.add(decision, terminal)
	}

	finished := time.Now()
	record := &storage.EpisodeRecord{
		Number:      number,
		Behavior:    behavior,
		Steps:       steps,
		Agents:      rewards.agents(),
		TotalReward: rewards.total(),
		MeanReward:  rewards.mean(),
		Truncated:   truncated,
		StartedAt:   started,
		FinishedAt:  finished,
		Duration:    finished.Sub(started),
	}
	if a.stats != nil {
		record.EnvStats = sidechannel.Summarize(a.stats.GetAndReset())
	}

	a.logger.Debug().
		Int("episode", number).
		Int("steps", steps).
		Float64("total_reward", record.TotalReward).
		Bool("truncated", truncated).
		Msg("Episode finished")
	return record, nil
}

// rewardTracker sums rewards per agent across decision and terminal steps.
type rewardTracker struct {
	perAgent map[int32]float64
}

func newRewardTracker() *rewardTracker {
	return &rewardTracker{perAgent: make(map[int32]float64)}
}

func (r *rewardTracker) add(decision *mlagents.DecisionSteps, terminal *mlagents.TerminalSteps) {
	for i, id := range decision.AgentID {
		r.perAgent[id] += float64(decision.Reward[i])
	}
	for i, id := range terminal.AgentID {
		r.perAgent[id] += float64(terminal.Reward[i])
	}
}

func (r *rewardTracker) agents() int {
	return len(r.perAgent)
}

func (r *rewardTracker) total() float64 {
	var sum float64
	for _, v := range r.perAgent {
		sum += v
	}
	return sum
}

func (r *rewardTracker) mean() float64 {
	if len(r.perAgent) == 0 {
		return 0
	}
	return r.total() / float64(len(r.perAgent))
}

// IsShutdown reports whether err only reflects a requested stop.
func IsShutdown(err error) bool {
	return errors.Is(err, context.Canceled)
}
