// Package deepq implements the deep Q-learning algorithm. In this
// package, Q-functions are approximated by multi-headed MLPs, with
// one output head per environmental action. Weights are adapted by
// minimizing the mean Huber TD error over mini-batches of transitions
// drawn from an experience replay buffer, and a separate target
// network provides the bootstrapped update targets.
package deepq

import (
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/poleq/agent/policy"
	env "github.com/samuelfneumann/poleq/environment"
	"github.com/samuelfneumann/poleq/expreplay"
	"github.com/samuelfneumann/poleq/network"
	ts "github.com/samuelfneumann/poleq/timestep"
	"github.com/samuelfneumann/poleq/utils/op"
)

// huberDelta is the threshold at which the TD error loss switches
// from quadratic to linear
const huberDelta float64 = 1.0

// DeepQ implements the deep Q-learning algorithm. This algorithm is
// conceptually similar to DQN, but uses the Huber loss and soft
// target network updates by default.
//
// A DeepQ agent holds three neural networks, each on its own
// computational graph. The behaviour policy is an ε-greedy policy
// over a network with a batch size of 1, used to select single
// actions in the environment. The train network predicts the action
// values of a batch of states and is the only network whose weights
// are learned. The target network predicts the action values of the
// batch of successor states, from which the update targets are
// computed. After each gradient step, the behaviour policy is set to
// use the newly learned weights, and at fixed intervals the target
// network weights are moved towards the train network weights.
type DeepQ struct {
	// Policy for selecting actions in the environment at the current
	// timestep
	behaviourPolicy   *policy.EGreedyMLP
	behaviourPolicyVM G.VM

	// Network whose weights are learned, taking batches of inputs
	trainNet   network.NeuralNet
	trainNetVM G.VM
	solver     G.Solver // Adapts the weights of trainNet

	// Network that provides the action values of the successor states
	// in a sampled batch. Note that this is a target network,
	// predicting action values for the update target. It is not the
	// network of a target policy.
	targetNet   network.NeuralNet
	targetNetVM G.VM

	// Variables to track target network updates
	tau                  float64 // Polyak averaging constant
	targetUpdateInterval int     // Gradient steps between target updates
	gradientSteps        int

	// selectedActions is the one-hot encoding of the actions that
	// were taken in the states of a sampled batch. Multiplying the
	// train network's predictions elementwise by selectedActions and
	// summing the rows leaves the action value of the single action
	// that was actually taken in each state.
	selectedActions *G.Node

	// nextStateActionValues is the input node in the graph of
	// trainNet that is given the action values of the next states,
	// as computed by targetNet. For the update:
	//
	// Q(s, a) <- Q(s, a) + α * (r + γ * max[Q(s', a')] - Q(s, a)) ∇Q(s, a)
	//
	// nextStateActionValues provides Q(s', a') for all a' in s'. The
	// values cross between graphs as constants, so no gradient flows
	// back to the target network.
	nextStateActionValues *G.Node
	rewards               *G.Node
	discounts             *G.Node

	replay expreplay.ExperienceReplayer

	// Keep track of the timestep the most recent action was taken at
	prevStep ts.TimeStep

	batchSize   int
	numActions  int
	numFeatures int

	eval bool // Whether or not in evaluation mode
}

// New creates and returns a new DeepQ agent acting in environment e
func New(e env.Environment, config Config, seed uint64) (*DeepQ, error) {
	// Ensure environment has discrete actions
	if e.ActionSpec().Cardinality != env.Discrete {
		return &DeepQ{}, fmt.Errorf("deepq: cannot use non-discrete actions")
	}
	// Ensure actions are one-dimensional
	if e.ActionSpec().LowerBound.Len() > 1 {
		return &DeepQ{}, fmt.Errorf("deepq: actions must be 1-dimensional")
	}
	// Ensure actions are enumerated from 0
	if e.ActionSpec().LowerBound.AtVec(0) != 0 {
		return &DeepQ{}, fmt.Errorf("deepq: actions must be enumerated " +
			"starting from 0")
	}

	// Ensure the configuration is valid
	if err := config.Validate(); err != nil {
		return &DeepQ{}, err
	}

	batchSize := config.BatchSize()
	numActions := int(e.ActionSpec().UpperBound.AtVec(0)) + 1
	numFeatures := e.ObservationSpec().Shape.Len()

	schedule, err := policy.NewExpDecay(config.EpsilonStart,
		config.EpsilonEnd, config.EpsilonDecay)
	if err != nil {
		return &DeepQ{}, fmt.Errorf("deepq: could not create exploration "+
			"schedule: %v", err)
	}

	// Behaviour policy for choosing actions in the environment. The
	// policy's network has a batch size of 1, predicting the action
	// values of single states.
	g := G.NewGraph()
	behaviourPolicy, err := policy.NewEGreedyMLP(
		schedule,
		e,
		1,
		g,
		config.PolicyLayers,
		config.Biases,
		config.InitWFn.InitWFn(),
		config.Activations,
		seed,
	)
	if err != nil {
		return &DeepQ{}, fmt.Errorf("deepq: could not create behaviour "+
			"policy: %v", err)
	}
	behaviourPolicyVM := G.NewTapeMachine(g)

	// Network whose weights are learned. Clones of the behaviour
	// policy's network share its initial weight values, so all three
	// networks start out identical.
	trainNet, err := behaviourPolicy.CloneWithBatch(batchSize)
	if err != nil {
		return &DeepQ{}, fmt.Errorf("deepq: could not create train "+
			"network: %v", err)
	}
	gTrain := trainNet.Graph()

	// Network that predicts the action values of successor states
	targetNet, err := behaviourPolicy.CloneWithBatch(batchSize)
	if err != nil {
		return &DeepQ{}, fmt.Errorf("deepq: could not create target "+
			"network: %v", err)
	}
	targetNetVM := G.NewTapeMachine(targetNet.Graph())

	// Create nodes to compute the update target: r + γ * max[Q(s', a')]
	nextStateActionValues := G.NewMatrix(gTrain, tensor.Float64,
		G.WithShape(batchSize, numActions), G.WithName("targetActionVals"))
	rewards := G.NewVector(gTrain, tensor.Float64, G.WithShape(batchSize),
		G.WithName("reward"))
	discounts := G.NewVector(gTrain, tensor.Float64, G.WithShape(batchSize),
		G.WithName("discount"))

	// Compute the update target
	updateTarget := G.Must(G.Max(nextStateActionValues, 1))
	updateTarget = G.Must(G.HadamardProd(updateTarget, discounts))
	updateTarget = G.Must(G.Add(updateTarget, rewards))

	// Actions selected in the batch of states. The train network
	// outputs one action value per environmental action, and only the
	// value of the selected action takes part in the loss.
	selectedActions := G.NewMatrix(
		gTrain,
		tensor.Float64,
		G.WithName("actionSelected"),
		G.WithShape(batchSize, numActions),
	)
	selectedActionsValue := G.Must(G.HadamardProd(trainNet.Prediction()[0],
		selectedActions))
	selectedActionsValue = G.Must(G.Sum(selectedActionsValue, 1))

	// Compute the mean Huber TD error over the batch
	tdErrors := G.Must(G.Sub(updateTarget, selectedActionsValue))
	losses, err := op.Huber(tdErrors, huberDelta)
	if err != nil {
		panic(fmt.Sprintf("deepq: could not compute Huber loss: %v", err))
	}
	cost := G.Must(G.Mean(losses))

	// Calculate the gradient of the cost with respect to the train
	// network's weights
	if _, err := G.Grad(cost, trainNet.Learnables()...); err != nil {
		panic(fmt.Sprintf("deepq: could not compute gradient: %v", err))
	}

	// The tape machine that runs the learning step needs the
	// gradients bound to the learnables so that the solver can read
	// them
	trainNetVM := G.NewTapeMachine(
		gTrain,
		G.BindDualValues(trainNet.Learnables()...),
	)

	replay, err := config.ExpReplay.Create(seed)
	if err != nil {
		return &DeepQ{}, fmt.Errorf("deepq: could not create experience "+
			"replay buffer: %v", err)
	}

	return &DeepQ{
		behaviourPolicy:   behaviourPolicy,
		behaviourPolicyVM: behaviourPolicyVM,

		trainNet:   trainNet,
		trainNetVM: trainNetVM,
		solver:     config.Solver,

		targetNet:   targetNet,
		targetNetVM: targetNetVM,

		tau:                  config.Tau,
		targetUpdateInterval: config.TargetUpdateInterval,

		selectedActions:       selectedActions,
		nextStateActionValues: nextStateActionValues,
		rewards:               rewards,
		discounts:             discounts,

		replay: replay,

		batchSize:   batchSize,
		numActions:  numActions,
		numFeatures: numFeatures,
	}, nil
}

// ObserveFirst observes and records the first episodic timestep
func (d *DeepQ) ObserveFirst(t ts.TimeStep) error {
	if !t.First() {
		fmt.Fprintf(os.Stderr, "Warning: ObserveFirst() should only be "+
			"called on the first timestep (current timestep = %d)\n", t.Number)
	}
	d.prevStep = t
	return nil
}

// Observe observes and records any timestep other than the first,
// storing the transition that produced it in the replay buffer
func (d *DeepQ) Observe(action mat.Vector, nextStep ts.TimeStep) error {
	if action.Len() != 1 {
		return fmt.Errorf("observe: value-based methods cannot use "+
			"multi-dimensional actions \n\twant(1) \n\thave(%v)", action.Len())
	}

	transition := ts.NewTransition(d.prevStep, int(action.AtVec(0)), nextStep)
	if err := d.replay.Add(transition); err != nil {
		return fmt.Errorf("observe: could not store transition: %v", err)
	}

	d.prevStep = nextStep
	return nil
}

// Step updates the weights of the agent's networks by taking one
// gradient step on the mean Huber TD error of a batch of transitions
// sampled from the replay buffer. Until the buffer has stored enough
// transitions to fill a batch, Step is a no-op.
func (d *DeepQ) Step() error {
	batch, err := d.replay.Sample()
	if expreplay.IsEmptyBuffer(err) || expreplay.IsInsufficientSamples(err) {
		// Not yet enough experience to learn from
		return nil
	}
	if err != nil {
		return fmt.Errorf("step: could not sample from replay buffer: %v",
			err)
	}

	states, actions, rewards, nextStates, discounts := partition(batch,
		d.numFeatures, d.numActions)

	// One-hot encodings of the actions taken in the batch of states
	err = G.Let(d.selectedActions, tensor.New(
		tensor.WithShape(d.batchSize, d.numActions),
		tensor.WithBacking(actions),
	))
	if err != nil {
		panic(fmt.Sprintf("step: could not set selected actions: %v", err))
	}

	// Predict the action values in the batch of states
	if err := d.trainNet.SetInput(states); err != nil {
		panic(fmt.Sprintf("step: could not set train network input: %v", err))
	}

	// Predict the action values in the batch of successor states
	if err := d.targetNet.SetInput(nextStates); err != nil {
		panic(fmt.Sprintf("step: could not set target network input: %v",
			err))
	}
	if err := d.targetNetVM.RunAll(); err != nil {
		return fmt.Errorf("step: could not predict next state-action "+
			"values: %v", err)
	}

	// Hand the target network's predictions to the train network's
	// graph so the update target can be computed
	err = G.Let(d.nextStateActionValues, d.targetNet.Output()[0])
	if err != nil {
		panic(fmt.Sprintf("step: could not set next state-action values: %v",
			err))
	}

	err = G.Let(d.rewards, tensor.New(tensor.WithBacking(rewards),
		tensor.WithShape(d.batchSize)))
	if err != nil {
		panic(fmt.Sprintf("step: could not set rewards: %v", err))
	}
	err = G.Let(d.discounts, tensor.New(tensor.WithBacking(discounts),
		tensor.WithShape(d.batchSize)))
	if err != nil {
		panic(fmt.Sprintf("step: could not set discounts: %v", err))
	}
	d.targetNetVM.Reset()

	// Run the learning step
	if err := d.trainNetVM.RunAll(); err != nil {
		return fmt.Errorf("step: could not run learning step: %v", err)
	}
	if err := d.solver.Step(d.trainNet.Model()); err != nil {
		return fmt.Errorf("step: could not update train network "+
			"weights: %v", err)
	}
	d.trainNetVM.Reset()
	d.gradientSteps++

	// Move the target network towards the newly learned weights
	if d.gradientSteps%d.targetUpdateInterval == 0 {
		if d.tau == 1.0 {
			err = d.targetNet.Set(d.trainNet)
		} else {
			err = d.targetNet.Polyak(d.trainNet, d.tau)
		}
		if err != nil {
			return fmt.Errorf("step: could not update target network: %v",
				err)
		}
	}

	// The behaviour policy always acts on the newest weights
	if err := d.behaviourPolicy.Set(d.trainNet); err != nil {
		return fmt.Errorf("step: could not update behaviour policy: %v", err)
	}

	return nil
}

// SelectAction runs the timestep's observation through the behaviour
// policy's network and selects an action from the predicted action
// values. In evaluation mode, the greedy action is always selected,
// and the exploration schedule is left untouched.
func (d *DeepQ) SelectAction(t ts.TimeStep) *mat.VecDense {
	obs := mat.Col(nil, 0, t.Observation)
	if err := d.behaviourPolicy.SetInput(obs); err != nil {
		panic(fmt.Sprintf("selectaction: could not set policy network "+
			"input: %v", err))
	}

	// Run the policy's computational graph
	if err := d.behaviourPolicyVM.RunAll(); err != nil {
		panic(fmt.Sprintf("selectaction: could not run policy network: %v",
			err))
	}

	var action *mat.VecDense
	if d.eval {
		action, _ = d.behaviourPolicy.SelectGreedy()
	} else {
		action, _ = d.behaviourPolicy.SelectAction()
	}

	d.behaviourPolicyVM.Reset()
	return action
}

// EndEpisode performs cleanup at the end of an episode
func (d *DeepQ) EndEpisode() {}

// Eval sets the agent into evaluation mode
func (d *DeepQ) Eval() { d.eval = true }

// Train sets the agent into training mode
func (d *DeepQ) Train() { d.eval = false }

// IsEval returns whether or not the agent is in evaluation mode
func (d *DeepQ) IsEval() bool { return d.eval }

// Close cleans up the resources allocated by the agent
func (d *DeepQ) Close() error {
	if err := d.behaviourPolicyVM.Close(); err != nil {
		return fmt.Errorf("close: could not close behaviour policy VM: %v",
			err)
	}
	if err := d.trainNetVM.Close(); err != nil {
		return fmt.Errorf("close: could not close train network VM: %v", err)
	}
	if err := d.targetNetVM.Close(); err != nil {
		return fmt.Errorf("close: could not close target network VM: %v",
			err)
	}
	return nil
}

// partition splits a batch of transitions into flat state, one-hot
// action, reward, successor state, and discount slices, laid out in
// row major order for the batch networks. Terminal transitions have
// no successor observation: their successor rows are left zero, and
// their discount of 0 removes the bootstrapped value from the update
// target.
func partition(batch []ts.Transition, numFeatures,
	numActions int) (states, actions, rewards, nextStates,
	discounts []float64) {
	states = make([]float64, len(batch)*numFeatures)
	actions = make([]float64, len(batch)*numActions)
	rewards = make([]float64, len(batch))
	nextStates = make([]float64, len(batch)*numFeatures)
	discounts = make([]float64, len(batch))

	for i, transition := range batch {
		for j := 0; j < numFeatures; j++ {
			states[i*numFeatures+j] = transition.State.AtVec(j)
		}
		if !transition.NextState.Terminal() {
			nextObs := transition.NextState.Observation()
			for j := 0; j < numFeatures; j++ {
				nextStates[i*numFeatures+j] = nextObs.AtVec(j)
			}
		}

		actions[i*numActions+transition.Action] = 1.0
		rewards[i] = transition.Reward
		discounts[i] = transition.Discount
	}

	return states, actions, rewards, nextStates, discounts
}
