package timestep

import (
	"gonum.org/v1/gonum/mat"
)

// NextState is the successor state of a Transition. A successor is
// either terminal, in which case it holds no observation, or
// continuing, in which case it holds the observation the environment
// transitioned to. An explicit variant is used instead of a nil
// observation so that terminal bootstrapping cases cannot be confused
// with missing data.
type NextState struct {
	terminal bool
	obs      mat.Vector
}

// TerminalNextState returns the successor of a transition into a
// terminal state
func TerminalNextState() NextState {
	return NextState{terminal: true}
}

// ContinuingNextState returns a successor holding the observation obs
func ContinuingNextState(obs mat.Vector) NextState {
	return NextState{obs: obs}
}

// Terminal returns whether the successor state is terminal
func (n NextState) Terminal() bool {
	return n.terminal
}

// Observation returns the observation of a continuing successor state.
// Observation panics on a terminal successor, which has no observation
// to bootstrap from. Callers must check Terminal first.
func (n NextState) Observation() mat.Vector {
	if n.terminal {
		panic("observation: terminal successor state has no observation")
	}
	return n.obs
}

// Transition packages together a single environmental transition
// (s, a, r, s') for experience replay
type Transition struct {
	State     mat.Vector
	Action    int
	Reward    float64
	Discount  float64
	NextState NextState
}

// NewTransition creates the Transition resulting from taking action at
// TimeStep t, with the environment stepping to TimeStep next. A
// transition into a terminal state records a terminal successor and a
// discount of 0, so that bootstrapped value targets vanish at episode
// ends. A transition cut off by a step limit keeps its successor and
// its discount: a timeout is not a terminal state.
func NewTransition(t TimeStep, action int, next TimeStep) Transition {
	nextState := ContinuingNextState(next.Observation)
	discount := next.Discount
	if next.Terminated() {
		nextState = TerminalNextState()
		discount = 0.0
	}

	return Transition{
		State:     t.Observation,
		Action:    action,
		Reward:    next.Reward,
		Discount:  discount,
		NextState: nextState,
	}
}

// Features returns the number of features in the transition's state
// observation
func (t Transition) Features() int {
	return t.State.Len()
}
