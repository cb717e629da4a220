package deepq

import (
	"fmt"

	"github.com/samuelfneumann/poleq/agent"
	"github.com/samuelfneumann/poleq/agent/policy"
	env "github.com/samuelfneumann/poleq/environment"
	"github.com/samuelfneumann/poleq/expreplay"
	"github.com/samuelfneumann/poleq/initwfn"
	"github.com/samuelfneumann/poleq/network"
	"github.com/samuelfneumann/poleq/solver"
)

// Config implements a configuration for a DeepQ agent
type Config struct {
	PolicyLayers []int                 // Layer sizes in neural net
	Biases       []bool                // Whether each layer should have a bias
	Activations  []*network.Activation // Activation of each layer
	Solver       *solver.Solver        // Solver for learning network weights

	// Initialization algorithm for network weights
	InitWFn *initwfn.InitWFn

	// Exploration schedule of the behaviour policy. The exploration
	// rate starts at EpsilonStart and decays exponentially towards
	// EpsilonEnd at rate EpsilonDecay, advancing once per action
	// selection.
	EpsilonStart float64
	EpsilonEnd   float64
	EpsilonDecay float64

	// Experience replay parameters
	ExpReplay expreplay.Config

	// Target network updates
	Tau                  float64 // Polyak averaging constant
	TargetUpdateInterval int     // Gradient steps between target updates
}

// BatchSize returns the batch size of the agent constructed using this
// Config
func (c Config) BatchSize() int {
	return c.ExpReplay.BatchSize
}

// Validate ensures that the Config is valid, returning an error
// describing why the Config is invalid otherwise
func (c Config) Validate() error {
	if len(c.PolicyLayers) != len(c.Biases) {
		msg := "config: invalid number of biases\n\twant(%v)\n\thave(%v)"
		return fmt.Errorf(msg, len(c.PolicyLayers), len(c.Biases))
	}
	if len(c.PolicyLayers) != len(c.Activations) {
		msg := "config: invalid number of activations\n\twant(%v)" +
			"\n\thave(%v)"
		return fmt.Errorf(msg, len(c.PolicyLayers), len(c.Activations))
	}

	if c.Solver == nil {
		return fmt.Errorf("config: no solver")
	}
	if c.InitWFn == nil {
		return fmt.Errorf("config: no weight initialization algorithm")
	}

	if _, err := policy.NewExpDecay(c.EpsilonStart, c.EpsilonEnd,
		c.EpsilonDecay); err != nil {
		return fmt.Errorf("config: invalid exploration schedule: %v", err)
	}

	if err := c.ExpReplay.Validate(); err != nil {
		return fmt.Errorf("config: invalid experience replay: %v", err)
	}

	if c.Tau <= 0.0 || c.Tau > 1.0 {
		return fmt.Errorf("config: tau must be in (0, 1] \n\thave(%v)", c.Tau)
	}
	if c.TargetUpdateInterval < 1 {
		err := fmt.Errorf("config: target networks must be updated at "+
			"positive gradient step intervals \n\twant(>0) \n\thave(%v)",
			c.TargetUpdateInterval)
		return err
	}

	return nil
}

// CreateAgent creates and returns the DeepQ agent described by the
// Config, acting in environment e
func (c Config) CreateAgent(e env.Environment, seed uint64) (agent.Agent,
	error) {
	return New(e, c, seed)
}
