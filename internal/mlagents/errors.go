package mlagents

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownBehavior     = errors.New("behavior does not correspond to an agent group in the environment")
	ErrUnknownAgent        = errors.New("agent did not request a decision at the previous step")
	ErrActionShape         = errors.New("action batch has the wrong shape")
	ErrObservation         = errors.New("observation does not match its spec")
	ErrNoBehaviors         = errors.New("no behaviors connected")
	ErrClosed              = errors.New("environment is closed")
	ErrEnvironmentNotFound = errors.New("environment executable not found")
	ErrEditorWorkerID      = errors.New("when connecting to the Editor the worker id must be 0")
	ErrNonFiniteReward     = errors.New("reward is NaN or Inf")
)

// IncompatibleVersionError reports a Unity package speaking an API this
// actor cannot talk to.
type IncompatibleVersionError struct {
	UnityVersion   string
	PackageVersion string
	ActorVersion   string
}

func (e *IncompatibleVersionError) Error() string {
	return fmt.Sprintf("the communication API version of the Unity environment (%s, package %s) "+
		"is incompatible with this actor (%s); install a compatible ML-Agents package in Unity",
		e.UnityVersion, e.PackageVersion, e.ActorVersion)
}
