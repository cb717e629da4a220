package deepq

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	env "github.com/samuelfneumann/poleq/environment"
	"github.com/samuelfneumann/poleq/expreplay"
	"github.com/samuelfneumann/poleq/initwfn"
	"github.com/samuelfneumann/poleq/network"
	"github.com/samuelfneumann/poleq/solver"
	ts "github.com/samuelfneumann/poleq/timestep"
)

// fixedEnv is a deterministic environment with a constant observation
// and a constant reward of 1.0 on every step, used to drive a DeepQ
// agent in tests. Episodes in a fixedEnv never end.
type fixedEnv struct {
	features   int
	actions    int
	discount   float64
	stepNumber int
}

func (f *fixedEnv) observation() *mat.VecDense {
	obs := make([]float64, f.features)
	for i := range obs {
		obs[i] = float64(i+1) / 2.0
	}
	return mat.NewVecDense(f.features, obs)
}

func (f *fixedEnv) Reset() (ts.TimeStep, error) {
	f.stepNumber = 0
	return ts.New(ts.First, 0, f.discount, f.observation(), 0), nil
}

func (f *fixedEnv) Step(*mat.VecDense) (ts.TimeStep, bool, error) {
	f.stepNumber++
	step := ts.New(ts.Mid, 1.0, f.discount, f.observation(), f.stepNumber)
	return step, false, nil
}

func (f *fixedEnv) ObservationSpec() env.Spec {
	shape := mat.NewVecDense(f.features, nil)
	bound := mat.NewVecDense(f.features, nil)
	return env.NewSpec(shape, env.Observation, bound, bound, env.Continuous)
}

func (f *fixedEnv) ActionSpec() env.Spec {
	shape := mat.NewVecDense(1, nil)
	low := mat.NewVecDense(1, nil)
	high := mat.NewVecDense(1, []float64{float64(f.actions - 1)})
	return env.NewSpec(shape, env.Action, low, high, env.Discrete)
}

func (f *fixedEnv) DiscountSpec() env.Spec {
	shape := mat.NewVecDense(1, nil)
	bound := mat.NewVecDense(1, []float64{f.discount})
	return env.NewSpec(shape, env.Discount, bound, bound, env.Continuous)
}

func (f *fixedEnv) RewardSpec() env.Spec {
	shape := mat.NewVecDense(1, nil)
	bound := mat.NewVecDense(1, []float64{1.0})
	return env.NewSpec(shape, env.Reward, bound, bound, env.Continuous)
}

func (f *fixedEnv) Close() error { return nil }

// continuousActionEnv is a fixedEnv with a continuous action space
type continuousActionEnv struct{ *fixedEnv }

func (c continuousActionEnv) ActionSpec() env.Spec {
	spec := c.fixedEnv.ActionSpec()
	spec.Cardinality = env.Continuous
	return spec
}

// testConfig returns a Config for a linear Q-function with weights
// initialized to 0 and a greedy behaviour policy
func testConfig(t *testing.T, batchSize int, tau float64) Config {
	t.Helper()

	adam, err := solver.NewDefaultAdam(0.01, batchSize)
	if err != nil {
		t.Fatalf("could not create solver: %v", err)
	}
	init, err := initwfn.NewZeroes()
	if err != nil {
		t.Fatalf("could not create weight initializer: %v", err)
	}

	return Config{
		PolicyLayers: []int{},
		Biases:       []bool{},
		Activations:  []*network.Activation{},
		Solver:       adam,
		InitWFn:      init,
		EpsilonStart: 0.0,
		EpsilonEnd:   0.0,
		EpsilonDecay: 1.0,
		ExpReplay: expreplay.Config{
			MinReplayCapacity: batchSize,
			MaxReplayCapacity: 2 * batchSize,
			BatchSize:         batchSize,
		},
		Tau:                  tau,
		TargetUpdateInterval: 1,
	}
}

func assertFloats(t *testing.T, name string, got, want []float64) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("%v: got %v values, want %v", name, len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("%v[%v]: got %v, want %v", name, i, got[i], want[i])
		}
	}
}

// assertNetsEqual ensures the learnable weights of two networks are
// elementwise equal
func assertNetsEqual(t *testing.T, name string, a, b network.NeuralNet) {
	t.Helper()

	aLearnables := a.Learnables()
	bLearnables := b.Learnables()
	if len(aLearnables) != len(bLearnables) {
		t.Fatalf("%v: got %v learnables, want %v", name, len(bLearnables),
			len(aLearnables))
	}

	for i := range aLearnables {
		aData := aLearnables[i].Value().Data().([]float64)
		bData := bLearnables[i].Value().Data().([]float64)
		for j := range aData {
			if aData[j] != bData[j] {
				t.Errorf("%v: learnable %v differs at %v: %v != %v", name,
					i, j, aData[j], bData[j])
			}
		}
	}
}

func TestPartition(t *testing.T) {
	discount := 0.8

	// A transition between two non-terminal states keeps its
	// successor observation and discount
	step1 := ts.New(ts.Mid, 0, discount, mat.NewVecDense(2,
		[]float64{1, 2}), 1)
	stepNext1 := ts.New(ts.Mid, 0.5, discount, mat.NewVecDense(2,
		[]float64{3, 4}), 2)
	continuing := ts.NewTransition(step1, 0, stepNext1)

	// A transition into a terminal state has no successor and a
	// discount of 0
	step2 := ts.New(ts.Mid, 0, discount, mat.NewVecDense(2,
		[]float64{5, 6}), 3)
	stepNext2 := ts.New(ts.Mid, -1, discount, mat.NewVecDense(2,
		[]float64{7, 8}), 4)
	stepNext2.SetEnd(ts.TerminalStateReached)
	terminal := ts.NewTransition(step2, 1, stepNext2)

	// A transition cut off by a step limit is not terminal, so it
	// keeps its successor observation and discount
	step3 := ts.New(ts.Mid, 0, discount, mat.NewVecDense(2,
		[]float64{9, 10}), 5)
	stepNext3 := ts.New(ts.Mid, 2, discount, mat.NewVecDense(2,
		[]float64{11, 12}), 6)
	stepNext3.SetEnd(ts.Timeout)
	truncated := ts.NewTransition(step3, 1, stepNext3)

	batch := []ts.Transition{continuing, terminal, truncated}
	states, actions, rewards, nextStates, discounts := partition(batch, 2, 2)

	assertFloats(t, "states", states, []float64{1, 2, 5, 6, 9, 10})
	assertFloats(t, "actions", actions, []float64{1, 0, 0, 1, 0, 1})
	assertFloats(t, "rewards", rewards, []float64{0.5, -1, 2})
	assertFloats(t, "nextStates", nextStates,
		[]float64{3, 4, 0, 0, 11, 12})
	assertFloats(t, "discounts", discounts, []float64{0.8, 0, 0.8})
}

func TestNewValidatesActionSpace(t *testing.T) {
	config := testConfig(t, 4, 1.0)

	e := continuousActionEnv{&fixedEnv{features: 2, actions: 2,
		discount: 0.9}}
	if _, err := New(e, config, 14); err == nil {
		t.Error("expected an error for continuous action environments")
	}
}

func TestDeepQLearningStep(t *testing.T) {
	batchSize := 4
	e := &fixedEnv{features: 2, actions: 2, discount: 0.9}
	agent, err := New(e, testConfig(t, batchSize, 1.0), 14)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	defer agent.Close()

	step, err := e.Reset()
	if err != nil {
		t.Fatalf("could not reset environment: %v", err)
	}
	if err := agent.ObserveFirst(step); err != nil {
		t.Fatalf("could not observe first timestep: %v", err)
	}

	// Learning steps are no-ops until the replay buffer can fill a
	// batch
	for i := 0; i < batchSize-1; i++ {
		action := agent.SelectAction(step)
		next, _, err := e.Step(action)
		if err != nil {
			t.Fatalf("could not step environment: %v", err)
		}
		if err := agent.Observe(action, next); err != nil {
			t.Fatalf("could not observe timestep: %v", err)
		}
		step = next

		if err := agent.Step(); err != nil {
			t.Fatalf("learning step failed: %v", err)
		}
	}
	if agent.gradientSteps != 0 {
		t.Fatalf("agent took %v gradient steps before the replay buffer "+
			"could fill a batch", agent.gradientSteps)
	}
	for _, learnable := range agent.trainNet.Learnables() {
		for _, weight := range learnable.Value().Data().([]float64) {
			if weight != 0 {
				t.Fatal("train network weights changed before the replay " +
					"buffer could fill a batch")
			}
		}
	}

	// One more transition fills a batch, after which the agent should
	// learn
	action := agent.SelectAction(step)
	next, _, err := e.Step(action)
	if err != nil {
		t.Fatalf("could not step environment: %v", err)
	}
	if err := agent.Observe(action, next); err != nil {
		t.Fatalf("could not observe timestep: %v", err)
	}
	if err := agent.Step(); err != nil {
		t.Fatalf("learning step failed: %v", err)
	}

	if agent.gradientSteps != 1 {
		t.Fatalf("got %v gradient steps, want 1", agent.gradientSteps)
	}
	changed := false
	for _, learnable := range agent.trainNet.Learnables() {
		for _, weight := range learnable.Value().Data().([]float64) {
			if weight != 0 {
				changed = true
			}
		}
	}
	if !changed {
		t.Error("learning step did not change the train network weights")
	}

	// With tau = 1 and an update interval of 1, each learning step
	// copies the train network into the target network, and the
	// behaviour policy always follows the train network
	assertNetsEqual(t, "target network", agent.trainNet, agent.targetNet)
	assertNetsEqual(t, "behaviour policy", agent.trainNet,
		agent.behaviourPolicy)
}

func TestDeepQPolyakTargetUpdates(t *testing.T) {
	batchSize := 4
	tau := 0.5
	e := &fixedEnv{features: 2, actions: 2, discount: 0.9}
	agent, err := New(e, testConfig(t, batchSize, tau), 14)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	defer agent.Close()

	step, err := e.Reset()
	if err != nil {
		t.Fatalf("could not reset environment: %v", err)
	}
	agent.ObserveFirst(step)

	for i := 0; i < batchSize; i++ {
		action := agent.SelectAction(step)
		next, _, err := e.Step(action)
		if err != nil {
			t.Fatalf("could not step environment: %v", err)
		}
		if err := agent.Observe(action, next); err != nil {
			t.Fatalf("could not observe timestep: %v", err)
		}
		step = next
	}
	if err := agent.Step(); err != nil {
		t.Fatalf("learning step failed: %v", err)
	}

	// All networks start with weights of 0, so after a single
	// learning step the target network should sit halfway between its
	// initial weights and the train network's weights
	trainLearnables := agent.trainNet.Learnables()
	targetLearnables := agent.targetNet.Learnables()
	for i := range trainLearnables {
		trainData := trainLearnables[i].Value().Data().([]float64)
		targetData := targetLearnables[i].Value().Data().([]float64)
		for j := range trainData {
			want := tau * trainData[j]
			if math.Abs(targetData[j]-want) > 1e-12 {
				t.Errorf("target learnable %v at %v: got %v, want %v", i, j,
					targetData[j], want)
			}
		}
	}
}

func TestDeepQEvalMode(t *testing.T) {
	e := &fixedEnv{features: 2, actions: 3, discount: 0.9}
	config := testConfig(t, 4, 1.0)

	// Always explore when training
	config.EpsilonStart = 1.0
	config.EpsilonEnd = 1.0

	agent, err := New(e, config, 14)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	defer agent.Close()

	step, err := e.Reset()
	if err != nil {
		t.Fatalf("could not reset environment: %v", err)
	}

	agent.Eval()
	if !agent.IsEval() {
		t.Error("agent should be in evaluation mode after Eval()")
	}

	// All action values are equal under zero weights, so the greedy
	// action is the lowest-indexed one
	for i := 0; i < 5; i++ {
		if action := agent.SelectAction(step); action.AtVec(0) != 0 {
			t.Errorf("evaluation mode should select greedily: got action "+
				"%v, want 0", action.AtVec(0))
		}
	}
	if steps := agent.behaviourPolicy.Schedule().Steps(); steps != 0 {
		t.Errorf("evaluation advanced the exploration schedule by %v steps",
			steps)
	}

	agent.Train()
	if agent.IsEval() {
		t.Error("agent should be in training mode after Train()")
	}
	agent.SelectAction(step)
	if steps := agent.behaviourPolicy.Schedule().Steps(); steps != 1 {
		t.Errorf("training mode should advance the exploration schedule: "+
			"got %v steps, want 1", steps)
	}
}
