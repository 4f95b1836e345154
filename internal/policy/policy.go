// Package policy provides action selection strategies for the actor
package policy

import "github.com/cartridge/unity-actor/internal/mlagents"

// Policy chooses actions for every agent that requested a decision.
type Policy interface {
	// SelectActions returns one row per agent in steps, shaped by the
	// behavior's action spec.
	SelectActions(steps *mlagents.DecisionSteps) (mlagents.ActionTuple, error)
}
