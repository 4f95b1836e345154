package mlagents

import (
	"fmt"

	communicatorv1 "github.com/cartridge/unity-actor/pkg/proto/communicator/v1"
)

type DimensionProperty int32

const (
	DimensionUnspecified               DimensionProperty = 0
	DimensionNone                      DimensionProperty = 1
	DimensionTranslationalEquivariance DimensionProperty = 2
	DimensionVariableSize              DimensionProperty = 4
)

type ObservationType int32

const (
	ObservationDefault    ObservationType = 0
	ObservationGoalSignal ObservationType = 1
)

// ObservationSpec describes one observation of a single agent.
type ObservationSpec struct {
	Name                string
	Shape               []int
	DimensionProperties []DimensionProperty
	ObservationType     ObservationType
}

// Size is the number of values one agent contributes.
func (o ObservationSpec) Size() int {
	size := 1
	for _, d := range o.Shape {
		size *= d
	}
	return size
}

// ActionSpec is the hybrid action layout of a behavior.
type ActionSpec struct {
	ContinuousSize   int
	DiscreteBranches []int
}

func (a ActionSpec) DiscreteSize() int {
	return len(a.DiscreteBranches)
}

func (a ActionSpec) IsContinuous() bool {
	return a.ContinuousSize > 0 && len(a.DiscreteBranches) == 0
}

func (a ActionSpec) IsDiscrete() bool {
	return a.ContinuousSize == 0 && len(a.DiscreteBranches) > 0
}

// EmptyAction returns zeroed actions for n agents.
func (a ActionSpec) EmptyAction(n int) ActionTuple {
	var t ActionTuple
	if a.ContinuousSize > 0 {
		t.Continuous = make([][]float32, n)
		for i := range t.Continuous {
			t.Continuous[i] = make([]float32, a.ContinuousSize)
		}
	}
	if len(a.DiscreteBranches) > 0 {
		t.Discrete = make([][]int32, n)
		for i := range t.Discrete {
			t.Discrete[i] = make([]int32, len(a.DiscreteBranches))
		}
	}
	return t
}

// Validate checks that actions hold one row per agent of the right width.
func (a ActionSpec) Validate(actions ActionTuple, nAgents int, behavior string) error {
	if !rowsMatch(actions.Continuous, nAgents, a.ContinuousSize) {
		return fmt.Errorf("%w: behavior %s needs a continuous input of dimension (%d, %d) for "+
			"(<number of agents>, <action size>) but received %s",
			ErrActionShape, behavior, nAgents, a.ContinuousSize, shapeOf(actions.Continuous))
	}
	if !rowsMatch(actions.Discrete, nAgents, a.DiscreteSize()) {
		return fmt.Errorf("%w: behavior %s needs a discrete input of dimension (%d, %d) for "+
			"(<number of agents>, <action size>) but received %s",
			ErrActionShape, behavior, nAgents, a.DiscreteSize(), shapeOf(actions.Discrete))
	}
	for i, row := range actions.Discrete {
		for b, v := range row {
			if v < 0 || int(v) >= a.DiscreteBranches[b] {
				return fmt.Errorf("%w: behavior %s agent %d branch %d action %d outside [0, %d)",
					ErrActionShape, behavior, i, b, v, a.DiscreteBranches[b])
			}
		}
	}
	return nil
}

func rowsMatch[T any](rows [][]T, n, width int) bool {
	if width == 0 {
		for _, r := range rows {
			if len(r) != 0 {
				return false
			}
		}
		return len(rows) == 0 || len(rows) == n
	}
	if len(rows) != n {
		return false
	}
	for _, r := range rows {
		if len(r) != width {
			return false
		}
	}
	return true
}

func shapeOf[T any](rows [][]T) string {
	if len(rows) == 0 {
		return "(0, 0)"
	}
	return fmt.Sprintf("(%d, %d)", len(rows), len(rows[0]))
}

// ActionTuple holds one row of actions per agent.
type ActionTuple struct {
	Continuous [][]float32
	Discrete   [][]int32
}

// BehaviorSpec describes the observations and actions of one agent group.
type BehaviorSpec struct {
	ObservationSpecs []ObservationSpec
	ActionSpec       ActionSpec
}

func behaviorSpecFromProto(bp *communicatorv1.BrainParameters, agent *communicatorv1.AgentInfo) BehaviorSpec {
	obsSpecs := make([]ObservationSpec, 0, len(agent.Observations))
	for _, obs := range agent.Observations {
		dims := make([]DimensionProperty, 0, len(obs.Shape))
		if len(obs.DimensionProperties) > 0 {
			for _, d := range obs.DimensionProperties {
				dims = append(dims, DimensionProperty(d))
			}
		} else {
			for range obs.Shape {
				dims = append(dims, DimensionUnspecified)
			}
		}
		obsSpecs = append(obsSpecs, ObservationSpec{
			Name:                obs.Name,
			Shape:               toInts(obs.Shape),
			DimensionProperties: dims,
			ObservationType:     ObservationType(obs.ObservationType),
		})
	}

	var action ActionSpec
	proto := bp.ActionSpec
	switch {
	case proto != nil:
		action = ActionSpec{
			ContinuousSize:   int(proto.NumContinuousActions),
			DiscreteBranches: toInts(proto.DiscreteBranchSizes),
		}
	case bp.VectorActionSpaceTypeDeprecated == communicatorv1.SpaceTypeContinuous:
		if len(bp.VectorActionSizeDeprecated) > 0 {
			action.ContinuousSize = int(bp.VectorActionSizeDeprecated[0])
		}
	default:
		action.DiscreteBranches = toInts(bp.VectorActionSizeDeprecated)
	}

	return BehaviorSpec{ObservationSpecs: obsSpecs, ActionSpec: action}
}

func toInts(vs []int32) []int {
	out := make([]int, len(vs))
	for i, v := range vs {
		out[i] = int(v)
	}
	return out
}
