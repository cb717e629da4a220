// Package gym provides access to use OpenAI's Gym environments.
//
// All environments in the Classic Control suite can be used.
// Environments run with their default tasks, but the episode cutoff
// is configurable. Episodes that reach the cutoff are recorded as
// ending in a timeout, and episodes that reach an environmental
// terminal state are recorded as ending in a termination, so that
// agents can distinguish the two when bootstrapping.
//
// This is made possible through the Go bindings for OpenAI Gym,
// found at https://github.com/samuelfneumann/GoGym.
package gym

import (
	"fmt"

	"github.com/samuelfneumann/gogym"
	"gonum.org/v1/gonum/mat"

	env "github.com/samuelfneumann/poleq/environment"
	ts "github.com/samuelfneumann/poleq/timestep"
)

// EnvironmentID names a Gym environment that this package can run
type EnvironmentID string

const (
	MountainCarV0           EnvironmentID = "MountainCar-v0"
	MountainCarContinuousV0 EnvironmentID = "MountainCarContinuous-v0"
	AcrobotV1               EnvironmentID = "Acrobot-v1"
	CartPoleV1              EnvironmentID = "CartPole-v1"
	PendulumV0              EnvironmentID = "Pendulum-v0"
)

// GymEnv implements access to an OpenAI Gym environment using GoGym
type GymEnv struct {
	gogym.Environment
	envId EnvironmentID

	ender       env.Ender
	currentStep ts.TimeStep
	discount    float64
}

// New returns a new GymEnv running the environment named by envId,
// along with the first timestep of the environment. The discount
// parameter is the discount the environment attaches to each
// non-terminal timestep. Episodes are cut off once they have taken
// cutoff steps.
func New(envId EnvironmentID, discount float64, cutoff int,
	seed uint64) (*GymEnv, ts.TimeStep, error) {
	goGymEnv, err := gogym.Make(string(envId))
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("new: could not create "+
			"environment: %v", err)
	}

	goGymEnv.Seed(int(seed))
	obs, err := goGymEnv.Reset()
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("new: could not reset "+
			"environment: %v", err)
	}

	gymEnv := &GymEnv{
		Environment: goGymEnv,
		envId:       envId,
		ender:       env.NewStepLimit(cutoff),
		discount:    discount,
	}

	t := ts.New(ts.First, 0, discount, obs, 0)
	gymEnv.currentStep = t

	return gymEnv, t, nil
}

// Step takes a single environmental step
func (g *GymEnv) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	obs, reward, done, err := g.Environment.Step(a)
	if err != nil {
		return ts.TimeStep{}, true, fmt.Errorf("step: could not step "+
			"GoGym environment: %v", err)
	}

	t := ts.New(ts.Mid, reward, g.discount, obs, g.currentStep.Number+1)
	if done {
		t.SetEnd(ts.TerminalStateReached)
	}

	// The step limit overrides environmental termination, since Gym
	// environments report episodes cut off at their internal time
	// limits as done
	g.ender.End(&t)

	g.currentStep = t
	return t, t.Last(), nil
}

// Reset resets the environment to some starting state
func (g *GymEnv) Reset() (ts.TimeStep, error) {
	obs, err := g.Environment.Reset()
	if err != nil {
		return ts.TimeStep{}, fmt.Errorf("reset: could not reset "+
			"environment: %v", err)
	}

	t := ts.New(ts.First, 0, g.discount, obs, 0)
	g.currentStep = t

	return t, nil
}

// CurrentTimeStep returns the current timestep in the environment
func (g *GymEnv) CurrentTimeStep() ts.TimeStep {
	return g.currentStep
}

// ObservationSpec returns the observation spec of the environment
func (g *GymEnv) ObservationSpec() env.Spec {
	space := g.ObservationSpace()

	var low, high, shape *mat.VecDense
	switch space.(type) {
	case *gogym.BoxSpace, *gogym.DiscreteSpace:
		low = space.Low()[0]
		high = space.High()[0]
		shape = mat.NewVecDense(low.Len(), nil)
	default:
		panic("observationspec: invalid space type, package gym supports " +
			"only GoGym's BoxSpace or DiscreteSpace")
	}

	return env.NewSpec(shape, env.Observation, low, high, env.Continuous)
}

// ActionSpec returns the action specification of the environment
func (g *GymEnv) ActionSpec() env.Spec {
	switch space := g.ActionSpace().(type) {
	case *gogym.DiscreteSpace:
		// Discrete actions are enumerated 0, 1, ..., N-1
		low := space.Low()[0]
		high := space.High()[0]
		shape := mat.NewVecDense(low.Len(), nil)
		return env.NewSpec(shape, env.Action, low, high, env.Discrete)

	case *gogym.BoxSpace:
		low := space.Low()[0]
		high := space.High()[0]
		shape := mat.NewVecDense(low.Len(), nil)
		return env.NewSpec(shape, env.Action, low, high, env.Continuous)

	default:
		panic("actionspec: invalid space type, package gym supports " +
			"only GoGym's BoxSpace or DiscreteSpace")
	}
}

// DiscountSpec returns the discount specification of the environment
func (g *GymEnv) DiscountSpec() env.Spec {
	shape := mat.NewVecDense(1, nil)
	bound := mat.NewVecDense(1, []float64{g.discount})

	return env.NewSpec(shape, env.Discount, bound, bound, env.Continuous)
}

// RewardSpec returns the reward specification of the environment
func (g *GymEnv) RewardSpec() env.Spec {
	shape := mat.NewVecDense(1, nil)
	lowerBound := mat.NewVecDense(1, []float64{g.minReward()})
	upperBound := mat.NewVecDense(1, []float64{g.maxReward()})

	return env.NewSpec(shape, env.Reward, lowerBound, upperBound,
		env.Continuous)
}

// minReward returns the minimum possible reward that the environment
// can give on any single timestep
func (g *GymEnv) minReward() float64 {
	switch g.envId {
	case MountainCarV0:
		return -1.0

	case MountainCarContinuousV0:
		return -0.144

	case PendulumV0:
		return -16.2736044

	case AcrobotV1:
		return -1.0

	case CartPoleV1:
		return 0.0
	}

	panic(fmt.Sprintf("minreward: no such environment %v", g.envId))
}

// maxReward returns the maximum possible reward that the environment
// can give on any single timestep
func (g *GymEnv) maxReward() float64 {
	switch g.envId {
	case MountainCarV0:
		return 1.0

	case MountainCarContinuousV0:
		return 100.0

	case PendulumV0:
		return 0.0

	case AcrobotV1:
		return 0.0

	case CartPoleV1:
		return 1.0
	}

	panic(fmt.Sprintf("maxreward: no such environment %v", g.envId))
}

// Close performs resource cleanup after the environment is no longer
// needed
func (g *GymEnv) Close() error {
	g.Environment.Close()
	return nil
}
