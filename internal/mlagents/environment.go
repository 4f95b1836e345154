// Package mlagents drives a Unity ML-Agents environment: it performs the
// handshake, exposes behavior specs and per-step agent batches, and sends
// actions and commands back.
package mlagents

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/cartridge/unity-actor/internal/communicator"
	"github.com/cartridge/unity-actor/internal/sidechannel"
	communicatorv1 "github.com/cartridge/unity-actor/pkg/proto/communicator/v1"
)

const (
	DefaultEditorPort   = 5004
	BaseEnvironmentPort = 5005
	DefaultTimeoutWait  = 60 * time.Second
	defaultNumAreas     = 1
)

// Options configures an Environment.
type Options struct {
	// FileName is the Unity player to launch. Empty connects to the Editor.
	FileName string
	WorkerID int
	// BasePort defaults to 5004 for the Editor and 5005 for players.
	BasePort int
	// ListenAddr overrides the host:port derived from BasePort and WorkerID.
	ListenAddr     string
	Seed           int32
	NoGraphics     bool
	TimeoutWait    time.Duration
	NumAreas       int
	LogFolder      string
	AdditionalArgs []string
	SideChannels   []sidechannel.Channel
}

type stepBatch struct {
	decision *DecisionSteps
	terminal *TerminalSteps
}

// Environment is a connection to one Unity environment. It is not safe for
// concurrent use.
type Environment struct {
	comm         *communicator.Communicator
	process      *Process
	sideChannels *sidechannel.Manager
	logger       zerolog.Logger
	timeout      time.Duration

	specs   map[string]BehaviorSpec
	names   []string
	state   map[string]stepBatch
	actions map[string]ActionTuple

	academyName  string
	capabilities *communicatorv1.UnityRLCapabilities
	firstMessage bool
	loaded       bool
}

// New starts listening, launches the player when one is configured and
// completes the handshake. Everything opened is released on failure.
func New(ctx context.Context, opts Options, logger zerolog.Logger) (*Environment, error) {
	if opts.FileName == "" && opts.WorkerID != 0 {
		return nil, ErrEditorWorkerID
	}
	timeout := opts.TimeoutWait
	if timeout <= 0 {
		timeout = DefaultTimeoutWait
	}
	numAreas := opts.NumAreas
	if numAreas <= 0 {
		numAreas = defaultNumAreas
	}

	manager, err := sidechannel.NewManager(logger, opts.SideChannels...)
	if err != nil {
		return nil, err
	}

	port := opts.BasePort
	if port == 0 {
		port = BaseEnvironmentPort
		if opts.FileName == "" {
			port = DefaultEditorPort
		}
	}
	port += opts.WorkerID
	addr := opts.ListenAddr
	if addr == "" {
		addr = net.JoinHostPort("", strconv.Itoa(port))
	}

	comm, err := communicator.Listen(communicator.Options{Addr: addr, Timeout: timeout, Logger: logger})
	if err != nil {
		return nil, err
	}

	env := &Environment{
		comm:         comm,
		sideChannels: manager,
		logger:       logger,
		timeout:      timeout,
		specs:        make(map[string]BehaviorSpec),
		state:        make(map[string]stepBatch),
		actions:      make(map[string]ActionTuple),
		firstMessage: true,
		loaded:       true,
	}

	if opts.FileName != "" {
		path, err := resolveExecutable(opts.FileName)
		if err != nil {
			env.Close()
			return nil, err
		}
		proc, err := launchExecutable(path, playerArgs(port, opts), logger)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.process = proc
		comm.WatchProcess(proc)
	} else {
		logger.Info().Str("addr", comm.Addr()).Msg("listening; start the simulation by pressing Play in the Unity Editor")
	}

	if err := env.handshake(ctx, opts.Seed, int32(numAreas)); err != nil {
		env.Close()
		return nil, err
	}
	return env, nil
}

func (e *Environment) handshake(ctx context.Context, seed, numAreas int32) error {
	out, err := e.comm.Initialize(ctx, &communicatorv1.UnityInput{
		RLInitializationInput: &communicatorv1.UnityRLInitializationInput{
			Seed:                 seed,
			CommunicationVersion: CommunicationVersion,
			PackageVersion:       PackageVersion,
			Capabilities:         capabilities(),
			NumAreas:             numAreas,
		},
	})
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	initOut := out.RLInitializationOutput
	if initOut == nil {
		return fmt.Errorf("handshake: %w: no initialization output", communicator.ErrCommunicatorStopped)
	}
	if !compatibleVersions(initOut.CommunicationVersion, CommunicationVersion) {
		return &IncompatibleVersionError{
			UnityVersion:   initOut.CommunicationVersion,
			PackageVersion: initOut.PackageVersion,
			ActorVersion:   CommunicationVersion,
		}
	}
	e.logger.Info().
		Str("academy", initOut.Name).
		Str("package_version", initOut.PackageVersion).
		Str("communication_version", initOut.CommunicationVersion).
		Msg("connected to Unity environment")

	e.academyName = initOut.Name
	e.capabilities = initOut.Capabilities
	if e.capabilities == nil || !e.capabilities.BaseRLCapabilities {
		e.logger.Warn().Msg("Unity environment does not report base RL capabilities; upgrade its ML-Agents package")
	}
	e.updateBehaviorSpecs(out)
	return nil
}

func capabilities() *communicatorv1.UnityRLCapabilities {
	return &communicatorv1.UnityRLCapabilities{
		BaseRLCapabilities:          true,
		ConcatenatedPngObservations: true,
		CompressedChannelMapping:    true,
		HybridActions:               true,
		TrainingAnalytics:           true,
		VariableLengthObservation:   true,
		MultiAgentGroups:            true,
	}
}

// AcademyName is the name Unity reported during the handshake.
func (e *Environment) AcademyName() string {
	return e.academyName
}

// BehaviorNames lists connected behaviors in the order they appeared.
func (e *Environment) BehaviorNames() []string {
	return append([]string(nil), e.names...)
}

func (e *Environment) BehaviorSpec(name string) (BehaviorSpec, error) {
	spec, ok := e.specs[name]
	if !ok {
		return BehaviorSpec{}, fmt.Errorf("%w: %s", ErrUnknownBehavior, name)
	}
	return spec, nil
}

// Reset starts a new episode in every area.
func (e *Environment) Reset(ctx context.Context) error {
	if !e.loaded {
		return ErrClosed
	}
	out, err := e.exchange(ctx, &communicatorv1.UnityRLInput{Command: communicatorv1.CommandReset})
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	e.firstMessage = false
	clear(e.actions)
	return e.absorb(out)
}

// Step sends the pending actions and advances the simulation. Behaviors
// without actions get zero actions.
func (e *Environment) Step(ctx context.Context) error {
	if !e.loaded {
		return ErrClosed
	}
	if e.firstMessage {
		return e.Reset(ctx)
	}

	for _, name := range e.names {
		if _, ok := e.actions[name]; ok {
			continue
		}
		n := 0
		if batch, ok := e.state[name]; ok {
			n = batch.decision.Len()
		}
		e.actions[name] = e.specs[name].ActionSpec.EmptyAction(n)
	}

	out, err := e.exchange(ctx, e.stepInput())
	if err != nil {
		return fmt.Errorf("step: %w", err)
	}
	clear(e.actions)
	return e.absorb(out)
}

func (e *Environment) stepInput() *communicatorv1.UnityRLInput {
	in := &communicatorv1.UnityRLInput{
		Command:      communicatorv1.CommandStep,
		AgentActions: make(map[string][]*communicatorv1.AgentAction),
	}
	for name, actions := range e.actions {
		batch, ok := e.state[name]
		if !ok || batch.decision.Len() == 0 {
			continue
		}
		list := make([]*communicatorv1.AgentAction, batch.decision.Len())
		for i := range list {
			action := &communicatorv1.AgentAction{}
			if actions.Continuous != nil {
				action.ContinuousActions = actions.Continuous[i]
			}
			if actions.Discrete != nil {
				action.DiscreteActions = actions.Discrete[i]
			}
			list[i] = action
		}
		in.AgentActions[name] = list
	}
	return in
}

func (e *Environment) exchange(ctx context.Context, in *communicatorv1.UnityRLInput) (*communicatorv1.UnityOutput, error) {
	in.SideChannel = e.sideChannels.Generate()
	return e.comm.Exchange(ctx, &communicatorv1.UnityInput{RLInput: in})
}

func (e *Environment) absorb(out *communicatorv1.UnityOutput) error {
	e.updateBehaviorSpecs(out)
	return e.updateState(out.RLOutput)
}

func (e *Environment) updateBehaviorSpecs(out *communicatorv1.UnityOutput) {
	initOut := out.RLInitializationOutput
	if initOut == nil {
		return
	}
	for _, bp := range initOut.BrainParameters {
		var infos []*communicatorv1.AgentInfo
		if out.RLOutput != nil {
			infos = out.RLOutput.AgentInfos[bp.BrainName]
		}
		// Observation shapes come from an agent; wait until one shows up.
		if len(infos) == 0 {
			continue
		}
		if _, known := e.specs[bp.BrainName]; !known {
			e.names = append(e.names, bp.BrainName)
			e.logger.Info().Str("behavior", bp.BrainName).Msg("connected new brain")
		}
		e.specs[bp.BrainName] = behaviorSpecFromProto(bp, infos[0])
	}
}

func (e *Environment) updateState(out *communicatorv1.UnityRLOutput) error {
	var infos map[string][]*communicatorv1.AgentInfo
	var sideChannel []byte
	if out != nil {
		infos = out.AgentInfos
		sideChannel = out.SideChannel
	}

	for _, name := range e.names {
		spec := e.specs[name]
		agents, ok := infos[name]
		if !ok {
			d, t := emptySteps(spec)
			e.state[name] = stepBatch{decision: d, terminal: t}
			continue
		}
		d, t, err := stepsFromProto(agents, spec)
		if err != nil {
			return fmt.Errorf("behavior %s: %w", name, err)
		}
		e.state[name] = stepBatch{decision: d, terminal: t}
	}
	return e.sideChannels.Process(sideChannel)
}

// GetSteps returns the agents of a behavior that need a decision and those
// whose episode ended at the last step.
func (e *Environment) GetSteps(name string) (*DecisionSteps, *TerminalSteps, error) {
	spec, ok := e.specs[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownBehavior, name)
	}
	batch, ok := e.state[name]
	if !ok {
		d, t := emptySteps(spec)
		return d, t, nil
	}
	return batch.decision, batch.terminal, nil
}

// SetActions sets the actions of every agent that requested a decision.
func (e *Environment) SetActions(name string, actions ActionTuple) error {
	spec, ok := e.specs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBehavior, name)
	}
	batch, ok := e.state[name]
	if !ok {
		return nil
	}
	if err := spec.ActionSpec.Validate(actions, batch.decision.Len(), name); err != nil {
		return err
	}
	e.actions[name] = actions
	return nil
}

// SetActionForAgent sets the action of one agent; action holds a single row.
func (e *Environment) SetActionForAgent(name string, agentID int32, action ActionTuple) error {
	spec, ok := e.specs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBehavior, name)
	}
	batch, ok := e.state[name]
	if !ok {
		return nil
	}
	if err := spec.ActionSpec.Validate(action, 1, name); err != nil {
		return err
	}
	index, ok := batch.decision.AgentIndex(agentID)
	if !ok {
		return fmt.Errorf("%w: agent %d of behavior %s", ErrUnknownAgent, agentID, name)
	}

	actions, ok := e.actions[name]
	if !ok {
		actions = spec.ActionSpec.EmptyAction(batch.decision.Len())
	}
	if action.Continuous != nil {
		copy(actions.Continuous[index], action.Continuous[0])
	}
	if action.Discrete != nil {
		copy(actions.Discrete[index], action.Discrete[0])
	}
	e.actions[name] = actions
	return nil
}

// Close tells Unity to quit and releases the port and the player process.
// It is safe to call more than once.
func (e *Environment) Close() error {
	if !e.loaded {
		return nil
	}
	e.loaded = false

	err := e.comm.Close()
	if e.process != nil {
		if stopErr := e.process.Stop(e.timeout); stopErr != nil && err == nil {
			err = stopErr
		}
	}
	e.logger.Debug().Msg("environment closed")
	return err
}
