// Package wrappers provides environment wrappers which modify the
// behaviour of an embedded environment
package wrappers

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"

	"github.com/samuelfneumann/poleq/environment"
	"github.com/samuelfneumann/poleq/timestep"
	"github.com/samuelfneumann/poleq/utils/floatutils"
)

const (
	// Indices of the cart position and pole angle in a pole balancing
	// observation vector
	positionIndex int = 0
	angleIndex    int = 2

	// Cart positions are clipped to this magnitude before computing
	// the shaped reward so that the reward stays finite
	positionBound float64 = 0.99
)

// ShapedReward wraps a pole balancing environment and replaces the
// environmental reward with a shaped reward that increases as the cart
// approaches the centre of the track and decreases as the pole falls
// away from vertical. For a state with cart position x and pole angle
// θ, the shaped reward is:
//
//		r = 1/(1 - |x|) - |θ|
//
// where x is first clipped to (-1, 1). The constant reward of the
// underlying pole balancing task gives the agent no gradient to follow
// within an episode, while the shaped reward prefers states far from
// both episode failure conditions.
//
// ShapedReward itself implements the environment.Environment
// interface, and is therefore itself an Environment.
type ShapedReward struct {
	environment.Environment
}

// NewShapedReward creates and returns a new ShapedReward, wrapping the
// environment e. The environment e must produce observation vectors
// that hold the cart position at index 0 and the pole angle at index
// 2.
func NewShapedReward(e environment.Environment) (*ShapedReward, error) {
	if features := e.ObservationSpec().Shape.Len(); features <= angleIndex {
		return nil, fmt.Errorf("newshapedreward: invalid number of "+
			"observation features \n\twant(>%v) \n\thave(%v)", angleIndex,
			features)
	}

	return &ShapedReward{e}, nil
}

// Step takes one environmental step given action a and returns the
// next timestep with its reward replaced by the shaped reward, along
// with a bool indicating whether or not the episode has ended.
func (s *ShapedReward) Step(a *mat.VecDense) (timestep.TimeStep, bool,
	error) {
	step, last, err := s.Environment.Step(a)
	if err != nil {
		return step, last, fmt.Errorf("step: %v", err)
	}

	step.Reward = s.shape(step.Observation)
	return step, last, nil
}

// shape computes the shaped reward for a state observation
func (s *ShapedReward) shape(obs mat.Vector) float64 {
	position := floatutils.ClipInterval(
		obs.AtVec(positionIndex),
		r1.Interval{Min: -positionBound, Max: positionBound},
	)
	angle := obs.AtVec(angleIndex)

	return 1.0/(1.0-math.Abs(position)) - math.Abs(angle)
}

// RewardSpec returns the reward specification for the environment
func (s *ShapedReward) RewardSpec() environment.Spec {
	rewardSpec := s.Environment.RewardSpec()

	// The lowest shaped reward is given by a centred cart with the
	// pole at its largest observable angle
	maxAngle := math.Abs(s.Environment.ObservationSpec().UpperBound.AtVec(
		angleIndex))
	rewardSpec.LowerBound = mat.NewVecDense(1, []float64{1.0 - maxAngle})
	rewardSpec.UpperBound = mat.NewVecDense(1,
		[]float64{1.0 / (1.0 - positionBound)})

	rewardSpec.Type = environment.ShapedReward
	return rewardSpec
}
