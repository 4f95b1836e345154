package mlagents

import (
	"fmt"
	"math"

	communicatorv1 "github.com/cartridge/unity-actor/pkg/proto/communicator/v1"
)

// ObservationBatch stacks one observation for every agent of a batch.
type ObservationBatch struct {
	// Shape of a single agent's observation.
	Shape []int
	Data  []float32
}

// Agent returns the values of the i-th agent.
func (b ObservationBatch) Agent(i int) []float32 {
	size := 1
	for _, d := range b.Shape {
		size *= d
	}
	return b.Data[i*size : (i+1)*size]
}

// DecisionSteps holds the agents that need an action at this step.
type DecisionSteps struct {
	Obs     []ObservationBatch
	Reward  []float32
	AgentID []int32
	// ActionMask is indexed [branch][agent][action]; true marks an action
	// the agent may not take. Nil for behaviors without discrete actions.
	ActionMask  [][][]bool
	GroupID     []int32
	GroupReward []float32

	index map[int32]int
}

// DecisionStep is the view of a single agent in DecisionSteps.
type DecisionStep struct {
	Obs         [][]float32
	Reward      float32
	AgentID     int32
	ActionMask  [][]bool
	GroupID     int32
	GroupReward float32
}

func (d *DecisionSteps) Len() int {
	return len(d.AgentID)
}

// AgentIndex returns the row of agentID in the batch.
func (d *DecisionSteps) AgentIndex(agentID int32) (int, bool) {
	if d.index == nil {
		d.index = indexAgents(d.AgentID)
	}
	i, ok := d.index[agentID]
	return i, ok
}

func (d *DecisionSteps) Get(agentID int32) (DecisionStep, bool) {
	i, ok := d.AgentIndex(agentID)
	if !ok {
		return DecisionStep{}, false
	}
	step := DecisionStep{
		Reward:      d.Reward[i],
		AgentID:     agentID,
		GroupID:     d.GroupID[i],
		GroupReward: d.GroupReward[i],
	}
	for _, obs := range d.Obs {
		step.Obs = append(step.Obs, obs.Agent(i))
	}
	for _, branch := range d.ActionMask {
		step.ActionMask = append(step.ActionMask, branch[i])
	}
	return step, true
}

// TerminalSteps holds the agents whose episode ended since the last step.
type TerminalSteps struct {
	Obs     []ObservationBatch
	Reward  []float32
	AgentID []int32
	// Interrupted is true when the episode ended by reaching the max step
	// rather than by the agent finishing.
	Interrupted []bool
	GroupID     []int32
	GroupReward []float32

	index map[int32]int
}

type TerminalStep struct {
	Obs         [][]float32
	Reward      float32
	AgentID     int32
	Interrupted bool
	GroupID     int32
	GroupReward float32
}

func (t *TerminalSteps) Len() int {
	return len(t.AgentID)
}

func (t *TerminalSteps) AgentIndex(agentID int32) (int, bool) {
	if t.index == nil {
		t.index = indexAgents(t.AgentID)
	}
	i, ok := t.index[agentID]
	return i, ok
}

func (t *TerminalSteps) Get(agentID int32) (TerminalStep, bool) {
	i, ok := t.AgentIndex(agentID)
	if !ok {
		return TerminalStep{}, false
	}
	step := TerminalStep{
		Reward:      t.Reward[i],
		AgentID:     agentID,
		Interrupted: t.Interrupted[i],
		GroupID:     t.GroupID[i],
		GroupReward: t.GroupReward[i],
	}
	for _, obs := range t.Obs {
		step.Obs = append(step.Obs, obs.Agent(i))
	}
	return step, true
}

func indexAgents(ids []int32) map[int32]int {
	index := make(map[int32]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}
	return index
}

func emptySteps(spec BehaviorSpec) (*DecisionSteps, *TerminalSteps) {
	d, t, _ := stepsFromProto(nil, spec)
	return d, t
}

// stepsFromProto splits agent infos into decision and terminal batches.
func stepsFromProto(infos []*communicatorv1.AgentInfo, spec BehaviorSpec) (*DecisionSteps, *TerminalSteps, error) {
	var decisionInfos, terminalInfos []*communicatorv1.AgentInfo
	for _, info := range infos {
		if info.Done {
			terminalInfos = append(terminalInfos, info)
		} else {
			decisionInfos = append(decisionInfos, info)
		}
	}

	d := &DecisionSteps{
		Reward:      make([]float32, 0, len(decisionInfos)),
		AgentID:     make([]int32, 0, len(decisionInfos)),
		GroupID:     make([]int32, 0, len(decisionInfos)),
		GroupReward: make([]float32, 0, len(decisionInfos)),
	}
	t := &TerminalSteps{
		Reward:      make([]float32, 0, len(terminalInfos)),
		AgentID:     make([]int32, 0, len(terminalInfos)),
		Interrupted: make([]bool, 0, len(terminalInfos)),
		GroupID:     make([]int32, 0, len(terminalInfos)),
		GroupReward: make([]float32, 0, len(terminalInfos)),
	}

	for i, obsSpec := range spec.ObservationSpecs {
		batch, err := observationBatch(i, obsSpec, decisionInfos)
		if err != nil {
			return nil, nil, err
		}
		d.Obs = append(d.Obs, batch)
		batch, err = observationBatch(i, obsSpec, terminalInfos)
		if err != nil {
			return nil, nil, err
		}
		t.Obs = append(t.Obs, batch)
	}

	for _, info := range decisionInfos {
		if err := checkReward(info); err != nil {
			return nil, nil, err
		}
		d.Reward = append(d.Reward, info.Reward)
		d.AgentID = append(d.AgentID, info.ID)
		d.GroupID = append(d.GroupID, info.GroupID)
		d.GroupReward = append(d.GroupReward, info.GroupReward)
	}
	for _, info := range terminalInfos {
		if err := checkReward(info); err != nil {
			return nil, nil, err
		}
		t.Reward = append(t.Reward, info.Reward)
		t.AgentID = append(t.AgentID, info.ID)
		t.Interrupted = append(t.Interrupted, info.MaxStepReached)
		t.GroupID = append(t.GroupID, info.GroupID)
		t.GroupReward = append(t.GroupReward, info.GroupReward)
	}

	if branches := spec.ActionSpec.DiscreteBranches; len(branches) > 0 {
		d.ActionMask = actionMasks(decisionInfos, branches)
	}
	return d, t, nil
}

func checkReward(info *communicatorv1.AgentInfo) error {
	for _, r := range []float32{info.Reward, info.GroupReward} {
		f := float64(r)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: agent %d", ErrNonFiniteReward, info.ID)
		}
	}
	return nil
}

// actionMasks splits each agent's flat mask by branch. Agents that send no
// mask, or one of the wrong length, may take every action.
func actionMasks(infos []*communicatorv1.AgentInfo, branches []int) [][][]bool {
	total := 0
	for _, b := range branches {
		total += b
	}
	masks := make([][][]bool, len(branches))
	for b, size := range branches {
		masks[b] = make([][]bool, len(infos))
		for a := range infos {
			masks[b][a] = make([]bool, size)
		}
	}
	for a, info := range infos {
		if len(info.ActionMask) != total {
			continue
		}
		offset := 0
		for b, size := range branches {
			copy(masks[b][a], info.ActionMask[offset:offset+size])
			offset += size
		}
	}
	return masks
}

func observationBatch(index int, spec ObservationSpec, infos []*communicatorv1.AgentInfo) (ObservationBatch, error) {
	size := spec.Size()
	batch := ObservationBatch{
		Shape: spec.Shape,
		Data:  make([]float32, 0, size*len(infos)),
	}
	for _, info := range infos {
		if index >= len(info.Observations) {
			return ObservationBatch{}, fmt.Errorf("%w: agent %d sent %d observations, expected at least %d",
				ErrObservation, info.ID, len(info.Observations), index+1)
		}
		obs := info.Observations[index]
		var values []float32
		if obs.CompressedData != nil {
			decoded, err := decodeCompressed(obs.CompressedData, spec.Shape, obs.CompressedChannelMapping)
			if err != nil {
				return ObservationBatch{}, fmt.Errorf("observation %d of agent %d: %w", index, info.ID, err)
			}
			values = decoded
		} else if obs.FloatData != nil {
			values = obs.FloatData.Data
		}
		if len(values) != size {
			return ObservationBatch{}, fmt.Errorf("%w: observation %d of agent %d has %d values, expected shape %v",
				ErrObservation, index, info.ID, len(values), spec.Shape)
		}
		batch.Data = append(batch.Data, values...)
	}
	return batch, nil
}
