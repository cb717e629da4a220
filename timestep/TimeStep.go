// Package timestep implements timesteps of the agent-environment interaction
package timestep

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// StepType denotes the type of step that a TimeStep can be, either the
// first environmental step, a middle step, or a last step
type StepType int

const (
	First StepType = iota
	Mid
	Last
)

func (s StepType) String() string {
	switch s {
	case First:
		return "First"
	case Last:
		return "Last"
	default:
		return "Mid"
	}
}

// EndType denotes how an episode ended. An EndType is only meaningful
// on a Last TimeStep. TerminalStateReached means the environment
// transitioned into a true terminal state. Timeout means the episode
// was cut off at a step limit before any terminal state was reached.
type EndType int

const (
	// Nil indicates that the episode has not ended
	Nil EndType = iota
	TerminalStateReached
	Timeout
)

func (e EndType) String() string {
	switch e {
	case TerminalStateReached:
		return "TerminalStateReached"
	case Timeout:
		return "Timeout"
	default:
		return "Nil"
	}
}

// TimeStep packages together a single timestep in an environment
type TimeStep struct {
	stepType    StepType
	Reward      float64
	Discount    float64
	Observation mat.Vector
	Number      int
	endType     EndType
}

func New(t StepType, r, d float64, o mat.Vector, n int) TimeStep {
	return TimeStep{t, r, d, o, n, Nil}
}

// First returns whether a TimeStep is the first in an environment
func (t *TimeStep) First() bool {
	return t.stepType == First
}

// Mid returns whether a TimeStep is a middle step in an environment
func (t *TimeStep) Mid() bool {
	return t.stepType == Mid
}

// Last returns whether a TimeStep is the last step in an environment
func (t *TimeStep) Last() bool {
	return t.stepType == Last
}

// SetEnd marks a TimeStep as the last in its episode, recording how the
// episode ended
func (t *TimeStep) SetEnd(e EndType) {
	t.stepType = Last
	t.endType = e
}

// End returns how the episode ended, or Nil if the TimeStep is not the
// last in its episode
func (t *TimeStep) End() EndType {
	return t.endType
}

// Terminated returns whether the TimeStep ended its episode by reaching
// a terminal state
func (t *TimeStep) Terminated() bool {
	return t.stepType == Last && t.endType == TerminalStateReached
}

// Truncated returns whether the TimeStep ended its episode by reaching
// a step limit
func (t *TimeStep) Truncated() bool {
	return t.stepType == Last && t.endType == Timeout
}

func (t TimeStep) String() string {
	str := "TimeStep | Type: %v  |  Reward:  %.2f  |  Discount: %.2f  |  " +
		"Step Number:  %v"

	return fmt.Sprintf(str, t.stepType, t.Reward, t.Discount, t.Number)
}
