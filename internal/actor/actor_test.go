package actor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartridge/unity-actor/internal/config"
	"github.com/cartridge/unity-actor/internal/events"
	"github.com/cartridge/unity-actor/internal/mlagents"
	"github.com/cartridge/unity-actor/internal/storage"
)

const behavior = "Roller?team=0"

// fakeEnv hands out episodes of a fixed length. Every agent asks for a
// decision until the episode ends, then all of them terminate at once.
type fakeEnv struct {
	spec          mlagents.BehaviorSpec
	agents        int
	episodeLength int
	// shrink drops one pending agent per step when set.
	shrink bool

	remaining int
	pending   int
	ended     bool

	resets    int
	stepCalls int
	closes    int
	shapes    [][2]int
	stepErrAt int
	resetErr  error
}

func newFakeEnv(agents, length, actionSize int) *fakeEnv {
	return &fakeEnv{
		spec: mlagents.BehaviorSpec{
			ObservationSpecs: []mlagents.ObservationSpec{{Shape: []int{1}}},
			ActionSpec:       mlagents.ActionSpec{ContinuousSize: actionSize},
		},
		agents:        agents,
		episodeLength: length,
	}
}

func (f *fakeEnv) BehaviorNames() []string { return []string{behavior} }

func (f *fakeEnv) BehaviorSpec(name string) (mlagents.BehaviorSpec, error) {
	if name != behavior {
		return mlagents.BehaviorSpec{}, mlagents.ErrUnknownBehavior
	}
	return f.spec, nil
}

func (f *fakeEnv) Reset(ctx context.Context) error {
	if f.resetErr != nil {
		return f.resetErr
	}
	f.resets++
	f.remaining = f.episodeLength
	f.pending = f.agents
	f.ended = false
	return nil
}

func (f *fakeEnv) Step(ctx context.Context) error {
	f.stepCalls++
	if f.stepErrAt > 0 && f.stepCalls == f.stepErrAt {
		return errors.New("unity went away")
	}
	f.remaining--
	if f.shrink && f.pending > 0 {
		f.pending--
	}
	if f.remaining <= 0 || f.pending == 0 {
		f.pending = 0
		f.ended = true
	}
	return nil
}

func batch(n int) ([]int32, []float32) {
	ids := make([]int32, n)
	rewards := make([]float32, n)
	for i := range ids {
		ids[i] = int32(i)
		rewards[i] = 1
	}
	return ids, rewards
}

func (f *fakeEnv) GetSteps(name string) (*mlagents.DecisionSteps, *mlagents.TerminalSteps, error) {
	if name != behavior {
		return nil, nil, mlagents.ErrUnknownBehavior
	}
	ids, rewards := batch(f.pending)
	decision := &mlagents.DecisionSteps{AgentID: ids, Reward: rewards}
	terminal := &mlagents.TerminalSteps{}
	if f.ended {
		ids, rewards := batch(f.agents)
		terminal = &mlagents.TerminalSteps{AgentID: ids, Reward: rewards, Interrupted: make([]bool, f.agents)}
	}
	return decision, terminal, nil
}

func (f *fakeEnv) SetActions(name string, actions mlagents.ActionTuple) error {
	width := 0
	if len(actions.Continuous) > 0 {
		width = len(actions.Continuous[0])
	}
	f.shapes = append(f.shapes, [2]int{len(actions.Continuous), width})
	return f.spec.ActionSpec.Validate(actions, f.pending, name)
}

func (f *fakeEnv) Close() error {
	f.closes++
	return nil
}

type recordingPublisher struct {
	episodes []events.EpisodeEvent
	statuses []events.RunStatusEvent
	err      error
}

func (r *recordingPublisher) PublishEpisode(_ context.Context, e events.EpisodeEvent) error {
	r.episodes = append(r.episodes, e)
	return r.err
}

func (r *recordingPublisher) PublishRunStatus(_ context.Context, e events.RunStatusEvent) error {
	r.statuses = append(r.statuses, e)
	return r.err
}

func (r *recordingPublisher) states() []string {
	out := make([]string, 0, len(r.statuses))
	for _, s := range r.statuses {
		out = append(out, s.State)
	}
	return out
}

func testConfig(episodes int) *config.Config {
	cfg := config.Default()
	cfg.MaxEpisodes = episodes
	cfg.PolicySeed = 1
	return cfg
}

func TestActor_RunsAllEpisodes(t *testing.T) {
	env := newFakeEnv(3, 4, 2)
	store := storage.NewMemoryBackend(0)
	a := NewWithEnvironment(testConfig(5), env, zerolog.New(io.Discard), WithStore(store))

	require.NoError(t, a.Run(context.Background()))

	// One reset to discover behaviors plus one per episode.
	assert.Equal(t, 6, env.resets)
	assert.Equal(t, 5*4, env.stepCalls)
	assert.Equal(t, 1, env.closes)

	progress := a.Progress()
	assert.False(t, progress.Running)
	assert.Equal(t, 5, progress.EpisodesCompleted)
	assert.Equal(t, 20, progress.TotalSteps)
	assert.Equal(t, behavior, progress.Behavior)

	records, err := store.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, 5, records[0].Number)
	assert.Equal(t, 4, records[0].Steps)
	assert.Equal(t, 3, records[0].Agents)
	// Each agent: 1 after reset, 1 per step while pending, 1 on termination.
	assert.InDelta(t, 3*(1+3+1), records[0].TotalReward, 1e-9)
	assert.False(t, records[0].Truncated)
}

func TestActor_ActionShapeTracksPendingAgents(t *testing.T) {
	env := newFakeEnv(4, 10, 3)
	env.shrink = true
	a := NewWithEnvironment(testConfig(2), env, zerolog.New(io.Discard))

	require.NoError(t, a.Run(context.Background()))

	// Pending agents go 4, 3, 2, 1 then the episode ends.
	want := [][2]int{{4, 3}, {3, 3}, {2, 3}, {1, 3}, {4, 3}, {3, 3}, {2, 3}, {1, 3}}
	assert.Equal(t, want, env.shapes)
}

func TestActor_EpisodeEndsWhenNoAgentPending(t *testing.T) {
	env := newFakeEnv(0, 10, 1)
	a := NewWithEnvironment(testConfig(3), env, zerolog.New(io.Discard))

	require.NoError(t, a.Run(context.Background()))
	assert.Zero(t, env.stepCalls, "an episode with no pending agents never steps")
	assert.Equal(t, 1, env.closes)
}

func TestActor_MaxStepsTruncates(t *testing.T) {
	env := newFakeEnv(1, 100, 1)
	cfg := testConfig(1)
	cfg.MaxSteps = 7
	store := storage.NewMemoryBackend(0)
	a := NewWithEnvironment(cfg, env, zerolog.New(io.Discard), WithStore(store))

	require.NoError(t, a.Run(context.Background()))
	assert.Equal(t, 7, env.stepCalls)

	records, err := store.List(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Truncated)
}

func TestActor_ClosesOnceOnError(t *testing.T) {
	env := newFakeEnv(2, 5, 1)
	env.stepErrAt = 3
	a := NewWithEnvironment(testConfig(10), env, zerolog.New(io.Discard))

	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "episode 1")
	assert.Equal(t, 1, env.closes)

	require.NoError(t, a.Close())
	assert.Equal(t, 1, env.closes)
}

func TestActor_ClosesOnResetFailure(t *testing.T) {
	env := newFakeEnv(1, 1, 1)
	env.resetErr = fmt.Errorf("reset: %w", mlagents.ErrClosed)
	a := NewWithEnvironment(testConfig(1), env, zerolog.New(io.Discard))

	err := a.Run(context.Background())
	assert.ErrorIs(t, err, mlagents.ErrClosed)
	assert.Equal(t, 1, env.closes)
}

func TestActor_Cancelled(t *testing.T) {
	env := newFakeEnv(1, 3, 1)
	a := NewWithEnvironment(testConfig(1000), env, zerolog.New(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := a.Run(ctx)
	assert.True(t, IsShutdown(err))
	assert.Equal(t, 1, env.closes)
}

func TestActor_UnknownBehavior(t *testing.T) {
	env := newFakeEnv(1, 1, 1)
	cfg := testConfig(1)
	cfg.BehaviorName = "Walker"
	a := NewWithEnvironment(cfg, env, zerolog.New(io.Discard))

	assert.ErrorIs(t, a.Run(context.Background()), mlagents.ErrUnknownBehavior)
	assert.Equal(t, 1, env.closes)
}

func TestActor_ZeroEpisodes(t *testing.T) {
	env := newFakeEnv(1, 1, 1)
	a := NewWithEnvironment(testConfig(0), env, zerolog.New(io.Discard))

	require.NoError(t, a.Run(context.Background()))
	assert.Equal(t, 1, env.resets)
	assert.Equal(t, 1, env.closes)
}

func TestActor_PublishesEvents(t *testing.T) {
	env := newFakeEnv(2, 3, 1)
	pub := &recordingPublisher{}
	a := NewWithEnvironment(testConfig(3), env, zerolog.New(io.Discard), WithPublisher(pub))

	require.NoError(t, a.Run(context.Background()))

	runID := a.Progress().RunID
	require.NotEmpty(t, runID)
	assert.Equal(t, []string{events.RunStarted, events.RunCompleted}, pub.states())
	assert.Equal(t, 3, pub.statuses[1].EpisodesCompleted)
	assert.Equal(t, 9, pub.statuses[1].TotalSteps)

	require.Len(t, pub.episodes, 3)
	for i, e := range pub.episodes {
		assert.Equal(t, runID, e.RunID)
		assert.Equal(t, i+1, e.Number)
		assert.Equal(t, behavior, e.Behavior)
		assert.NotEmpty(t, e.EpisodeID)
	}
}

func TestActor_PublishesFailure(t *testing.T) {
	env := newFakeEnv(1, 5, 1)
	env.stepErrAt = 2
	pub := &recordingPublisher{}
	a := NewWithEnvironment(testConfig(2), env, zerolog.New(io.Discard), WithPublisher(pub))

	require.Error(t, a.Run(context.Background()))
	assert.Equal(t, []string{events.RunStarted, events.RunFailed}, pub.states())
	assert.NotEmpty(t, pub.statuses[1].LastError)
	assert.Empty(t, pub.episodes)
}

func TestActor_PublishesStop(t *testing.T) {
	env := newFakeEnv(1, 3, 1)
	pub := &recordingPublisher{}
	a := NewWithEnvironment(testConfig(10), env, zerolog.New(io.Discard), WithPublisher(pub))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.True(t, IsShutdown(a.Run(ctx)))
	require.NotEmpty(t, pub.statuses)
	assert.Equal(t, events.RunStopped, pub.statuses[len(pub.statuses)-1].State)
}

func TestActor_PublishErrorsDoNotStopRun(t *testing.T) {
	env := newFakeEnv(1, 2, 1)
	pub := &recordingPublisher{err: errors.New("broker down")}
	a := NewWithEnvironment(testConfig(2), env, zerolog.New(io.Discard), WithPublisher(pub))

	require.NoError(t, a.Run(context.Background()))
	assert.Len(t, pub.episodes, 2)
	assert.Equal(t, 2, a.Progress().EpisodesCompleted)
}

func TestActor_LogsEachEpisode(t *testing.T) {
	env := newFakeEnv(1, 2, 1)
	var logs bytes.Buffer
	a := NewWithEnvironment(testConfig(2), env, zerolog.New(&logs))

	require.NoError(t, a.Run(context.Background()))
	assert.Contains(t, logs.String(), `"message":"Episode 1 completed."`)
	assert.Contains(t, logs.String(), `"message":"Episode 2 completed."`)
}
