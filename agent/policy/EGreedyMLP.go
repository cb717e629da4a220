// Package policy implements policies using function approximation using
// Gorgonia. Many of these policies use nonlinear function
// aprpoximation.
package policy

import (
	"fmt"
	"log"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"

	env "github.com/samuelfneumann/poleq/environment"
	"github.com/samuelfneumann/poleq/network"
	"github.com/samuelfneumann/poleq/utils/floatutils"
)

// EGreedyMLP implements an epsilon greedy policy using a feedforward
// neural network/MLP. Given an environment with N actions, the neural
// network will produce N outputs, each predicting the value of a
// distinct action. The exploration rate of the policy is provided by a
// Schedule, which is advanced by one timestep on each call to
// SelectAction().
//
// EGreedyMLP simply populates a gorgonia.ExprGraph with the neural
// network function approximator and selects actions based on the
// output of this neural network. The struct does not have a vm of its
// own. An external VM should be used to run the computational graph of
// the policy externally. The VM should always be run before selecting
// an action with the policy.
//
// For example, given an observation vector obs, we should first call
// the SetInput() function to set the input to the policy as this
// observation. Then, we can run the VM to get a prediction from the
// policy. The policy will predict N action values given N actions.
// At this point, the SelectAction() function can be called which
// will look through these action values and select one based on the
// policy. The way to get an action from the policy is summarized as:
//
//		Set up VM with policy's graph:	vm = NewVM(policy.Graph())
//		Get state observation vector:	obs
//		Set input to policy's network:	policy.SetInput(obs)
//		Predict the action values:		vm.RunAll()
//		Select an action:				action = policy.SelectAction()
type EGreedyMLP struct {
	network.NeuralNet
	schedule Schedule

	// Exploration draws are uniform on [0, 1)
	explore distuv.Uniform
	rng     *rand.Rand
	seed    uint64
}

// NewEGreedyMLP creates and returns a new EGreedyMLP with exploration
// rates given by schedule. The hiddenSizes parameter defines the
// number of nodes in each hidden layer. The biases parameter outlines
// which layers should include bias units. The activations parameter
// determines the activation function for each layer. The batch
// parameter determines the number of inputs in a batch.
//
// Note that this constructor will always add an additional layer
// (with a bias unit and no activation) such that the number of
// network outputs equals the number of actions in the environment.
// That is, regardless of the constructor arguments, an additional,
// final linear layer is added so that the output of the network
// equals the number of environmental actions.
//
// Because of this, it is easy to create a linear EGreedy policy by
// setting hiddenSizes to []int{}, biases to []bool{}, and activations
// to []*network.Activation{}.
func NewEGreedyMLP(schedule Schedule, e env.Environment, batch int,
	g *G.ExprGraph, hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*network.Activation, seed uint64) (*EGreedyMLP, error) {
	if schedule == nil {
		return nil, fmt.Errorf("newegreedymlp: no exploration schedule")
	}

	// Calculate the number of actions and state features
	numActions := int(e.ActionSpec().UpperBound.AtVec(0)) + 1
	features := e.ObservationSpec().Shape.Len()

	net, err := network.NewMultiHeadMLP(features, batch, numActions, g,
		hiddenSizes, biases, init, activations)
	if err != nil {
		return nil, fmt.Errorf("newegreedymlp: could not create policy "+
			"network: %v", err)
	}
	if predictions := len(net.Prediction()); predictions != 1 {
		msg := "newegreedymlp: egreedy policy expects function " +
			"approximator to output a single prediction node" +
			"\n\twant(1)\n\thave(%v)"
		return nil, fmt.Errorf(msg, predictions)
	}

	// Create RNG for sampling actions
	source := rand.NewSource(seed)

	return &EGreedyMLP{
		NeuralNet: net,
		schedule:  schedule,
		explore:   distuv.Uniform{Min: 0, Max: 1, Src: source},
		rng:       rand.New(source),
		seed:      seed,
	}, nil
}

// Epsilon returns the current value of the policy's exploration rate
func (e *EGreedyMLP) Epsilon() float64 {
	return e.schedule.Epsilon()
}

// Schedule returns the exploration schedule of the policy
func (e *EGreedyMLP) Schedule() Schedule {
	return e.schedule
}

// SelectAction selects an action according to the action values
// generated from the last run of the computational graph, advancing
// the exploration schedule by one timestep. This function returns the
// action selected as well as the approximated value of that action.
func (e *EGreedyMLP) SelectAction() (*mat.VecDense, float64) {
	if e.Output()[0] == nil {
		log.Fatal("selectaction: vm must be run before selecting an action")
	}

	// Get the action values from the last run of the computational
	// graph
	actionValues := e.Output()[0].Data().([]float64)

	ε := e.schedule.Next()

	// With probability epsilon return a random action
	if probability := e.explore.Rand(); probability < ε {
		action := e.rng.Intn(len(actionValues))
		return mat.NewVecDense(1, []float64{float64(action)}),
			actionValues[action]
	}

	return e.SelectGreedy()
}

// SelectGreedy selects the action of maximum value according to the
// action values generated from the last run of the computational
// graph. The exploration schedule is not advanced, so greedy
// evaluation rollouts do not affect the exploration rate used in
// training. Ties are broken in favour of the lowest action index.
func (e *EGreedyMLP) SelectGreedy() (*mat.VecDense, float64) {
	if e.Output()[0] == nil {
		log.Fatal("selectgreedy: vm must be run before selecting an action")
	}

	actionValues := e.Output()[0].Data().([]float64)
	action, value := floatutils.ArgMax(actionValues)

	return mat.NewVecDense(1, []float64{float64(action)}), value
}
