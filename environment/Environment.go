// Package environment outlines the interfaces and sturcts needed to implement
// concrete environments
package environment

import (
	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/poleq/timestep"
)

// Ender determines when and how episodes end. Enders modify timesteps
// in-place, recording on the timestep how the episode ended.
type Ender interface {
	// End checks whether the current episode should end at the
	// argument timestep, modifying the timestep appropriately if so
	End(*timestep.TimeStep) bool
}

// Environment implements a simulated environment that an agent can
// act in.
//
// Environments step through time as actions are taken, returning a
// timestep.TimeStep on each transition. A returned timestep records
// the new state observation, the reward for the transition, and the
// discount to apply to future rewards from the new state. When an
// episode ends, the returned timestep also records whether the episode
// ended in an environmental terminal state or by running out of time.
type Environment interface {
	// Reset resets the environment between episodes, returning the
	// first timestep of the new episode
	Reset() (timestep.TimeStep, error)

	// Step takes one environmental step given an action, returning
	// the next timestep and whether the episode has ended
	Step(action *mat.VecDense) (timestep.TimeStep, bool, error)

	RewardSpec() Spec
	DiscountSpec() Spec
	ObservationSpec() Spec
	ActionSpec() Spec

	// Close performs resource cleanup once the environment is no
	// longer needed
	Close() error
}
