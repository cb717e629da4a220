package policy

import (
	"fmt"
	"math"
)

// Schedule provides the exploration rate of an epsilon greedy policy
// at each timestep of training.
type Schedule interface {
	// Next returns the exploration rate for the current timestep and
	// then advances the schedule by one timestep
	Next() float64

	// Epsilon returns the exploration rate for the current timestep
	// without advancing the schedule
	Epsilon() float64

	// Steps returns the number of timesteps the schedule has been
	// advanced
	Steps() int
}

// ExpDecay implements a Schedule which decays the exploration rate
// exponentially from start towards end over the course of training:
//
//		ε(t) = end + (start - end) * exp(-t / decay)
//
// where t is the number of timesteps the schedule has been advanced.
// Larger values of decay cause the exploration rate to decay more
// slowly.
type ExpDecay struct {
	start float64
	end   float64
	decay float64
	steps int
}

// NewExpDecay creates and returns a new ExpDecay schedule which
// decays the exploration rate from start to end at rate decay.
func NewExpDecay(start, end, decay float64) (*ExpDecay, error) {
	if end < 0 {
		return nil, fmt.Errorf("expdecay: end must be non-negative "+
			"\n\thave(%v)", end)
	}
	if start < end {
		return nil, fmt.Errorf("expdecay: start cannot be below end "+
			"\n\twant(>=%v) \n\thave(%v)", end, start)
	}
	if decay <= 0 {
		return nil, fmt.Errorf("expdecay: decay must be positive "+
			"\n\thave(%v)", decay)
	}

	return &ExpDecay{start: start, end: end, decay: decay}, nil
}

// Next returns the exploration rate for the current timestep and then
// advances the schedule by one timestep
func (e *ExpDecay) Next() float64 {
	ε := e.Epsilon()
	e.steps++
	return ε
}

// Epsilon returns the exploration rate for the current timestep
func (e *ExpDecay) Epsilon() float64 {
	return e.end + (e.start-e.end)*math.Exp(-float64(e.steps)/e.decay)
}

// Steps returns the number of timesteps the schedule has been advanced
func (e *ExpDecay) Steps() int {
	return e.steps
}

// Constant implements a Schedule with a fixed exploration rate.
type Constant struct {
	epsilon float64
	steps   int
}

// NewConstant creates and returns a new Constant schedule with the
// fixed exploration rate epsilon.
func NewConstant(epsilon float64) (*Constant, error) {
	if epsilon < 0 || epsilon > 1 {
		return nil, fmt.Errorf("constant: epsilon must be in [0, 1] "+
			"\n\thave(%v)", epsilon)
	}

	return &Constant{epsilon: epsilon}, nil
}

// Next returns the exploration rate and advances the schedule by one
// timestep
func (c *Constant) Next() float64 {
	c.steps++
	return c.epsilon
}

// Epsilon returns the exploration rate
func (c *Constant) Epsilon() float64 {
	return c.epsilon
}

// Steps returns the number of timesteps the schedule has been advanced
func (c *Constant) Steps() int {
	return c.steps
}
