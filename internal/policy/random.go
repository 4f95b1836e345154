package policy

import (
	"fmt"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/cartridge/unity-actor/internal/mlagents"
)

// RandomPolicy samples continuous actions from a standard normal and
// discrete actions uniformly among the ones the mask allows.
type RandomPolicy struct {
	spec   mlagents.ActionSpec
	rng    *rand.Rand
	normal distuv.Normal
}

// NewRandom creates a random policy for the given action spec. A negative
// seed seeds from the clock.
func NewRandom(spec mlagents.ActionSpec, seed int64) (*RandomPolicy, error) {
	for i, n := range spec.DiscreteBranches {
		if n <= 0 {
			return nil, fmt.Errorf("discrete branch %d has size %d", i, n)
		}
	}
	if seed < 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))

	return &RandomPolicy{
		spec:   spec,
		rng:    rng,
		normal: distuv.Normal{Mu: 0, Sigma: 1, Src: rng},
	}, nil
}

// SelectActions implements Policy.
func (p *RandomPolicy) SelectActions(steps *mlagents.DecisionSteps) (mlagents.ActionTuple, error) {
	n := steps.Len()
	actions := p.spec.EmptyAction(n)

	for _, row := range actions.Continuous {
		for i := range row {
			row[i] = float32(p.normal.Rand())
		}
	}

	if len(actions.Discrete) > 0 && len(steps.ActionMask) != 0 && len(steps.ActionMask) != len(p.spec.DiscreteBranches) {
		return mlagents.ActionTuple{}, fmt.Errorf("action mask has %d branches, spec has %d",
			len(steps.ActionMask), len(p.spec.DiscreteBranches))
	}
	for agent, row := range actions.Discrete {
		for branch, size := range p.spec.DiscreteBranches {
			var mask []bool
			if steps.ActionMask != nil {
				mask = steps.ActionMask[branch][agent]
			}
			row[branch] = int32(p.sampleBranch(size, mask))
		}
	}
	return actions, nil
}

// sampleBranch picks uniformly among allowed actions. A fully masked branch
// falls back to every action.
func (p *RandomPolicy) sampleBranch(size int, mask []bool) int {
	if len(mask) != size {
		return p.rng.IntN(size)
	}
	allowed := make([]int, 0, size)
	for action, masked := range mask {
		if !masked {
			allowed = append(allowed, action)
		}
	}
	if len(allowed) == 0 {
		return p.rng.IntN(size)
	}
	return allowed[p.rng.IntN(len(allowed))]
}
