package policy

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/poleq/environment"
	"github.com/samuelfneumann/poleq/network"
	"github.com/samuelfneumann/poleq/timestep"
)

// valueEnv is a stub environment with a fixed number of observation
// features and discrete actions.
type valueEnv struct {
	features int
	actions  int
}

func (v valueEnv) Reset() (timestep.TimeStep, error) {
	return timestep.TimeStep{}, nil
}

func (v valueEnv) Step(*mat.VecDense) (timestep.TimeStep, bool, error) {
	return timestep.TimeStep{}, false, nil
}

func (v valueEnv) ObservationSpec() environment.Spec {
	shape := mat.NewVecDense(v.features, nil)
	bound := mat.NewVecDense(v.features, nil)
	return environment.NewSpec(shape, environment.Observation, bound, bound,
		environment.Continuous)
}

func (v valueEnv) ActionSpec() environment.Spec {
	shape := mat.NewVecDense(1, nil)
	low := mat.NewVecDense(1, nil)
	high := mat.NewVecDense(1, []float64{float64(v.actions - 1)})
	return environment.NewSpec(shape, environment.Action, low, high,
		environment.Discrete)
}

func (v valueEnv) DiscountSpec() environment.Spec {
	shape := mat.NewVecDense(1, nil)
	bound := mat.NewVecDense(1, []float64{1.0})
	return environment.NewSpec(shape, environment.Discount, bound, bound,
		environment.Continuous)
}

func (v valueEnv) RewardSpec() environment.Spec {
	shape := mat.NewVecDense(1, nil)
	bound := mat.NewVecDense(1, []float64{1.0})
	return environment.NewSpec(shape, environment.Reward, bound, bound,
		environment.Continuous)
}

func (v valueEnv) Close() error { return nil }

// newLinearPolicy returns a linear policy over a single input feature
// whose action values are fixed at actionValues for a unit input,
// together with a VM that has already predicted those values. The
// caller closes the VM.
func newLinearPolicy(t *testing.T, schedule Schedule,
	actionValues []float64) (*EGreedyMLP, G.VM) {
	t.Helper()

	g := G.NewGraph()
	p, err := NewEGreedyMLP(schedule,
		valueEnv{features: 1, actions: len(actionValues)}, 1, g, []int{},
		[]bool{}, G.Zeroes(), []*network.Activation{}, 14)
	if err != nil {
		t.Fatalf("could not create policy: %v", err)
	}

	// The network is a single linear layer with a zero bias. Fixing
	// its weights fixes the action values for a unit input.
	weights := p.Learnables()[0]
	err = G.Let(weights, tensor.New(
		tensor.WithShape(1, len(actionValues)),
		tensor.WithBacking(actionValues),
	))
	if err != nil {
		t.Fatalf("could not set weights: %v", err)
	}

	vm := G.NewTapeMachine(p.Graph())
	if err := p.SetInput([]float64{1.0}); err != nil {
		t.Fatalf("could not set input: %v", err)
	}
	if err := vm.RunAll(); err != nil {
		t.Fatalf("could not run policy network: %v", err)
	}

	return p, vm
}

func TestEGreedyMLPSelectGreedy(t *testing.T) {
	// Even a fully exploratory schedule is ignored by greedy selection
	schedule, err := NewConstant(1.0)
	if err != nil {
		t.Fatalf("could not create schedule: %v", err)
	}

	p, vm := newLinearPolicy(t, schedule, []float64{1.0, 3.0, 2.0})
	defer vm.Close()

	action, value := p.SelectGreedy()
	if got := int(action.AtVec(0)); got != 1 {
		t.Errorf("got action %v, want 1", got)
	}
	if value != 3.0 {
		t.Errorf("got action value %v, want 3", value)
	}

	if steps := p.Schedule().Steps(); steps != 0 {
		t.Errorf("greedy selection advanced the schedule by %v steps", steps)
	}
}

func TestEGreedyMLPSelectGreedyBreaksTiesByLowestIndex(t *testing.T) {
	schedule, err := NewConstant(0.0)
	if err != nil {
		t.Fatalf("could not create schedule: %v", err)
	}

	p, vm := newLinearPolicy(t, schedule, []float64{3.0, 3.0, 1.0})
	defer vm.Close()

	for i := 0; i < 10; i++ {
		if action, _ := p.SelectGreedy(); int(action.AtVec(0)) != 0 {
			t.Fatalf("tie broken in favour of action %v, want 0",
				int(action.AtVec(0)))
		}
	}
}

func TestEGreedyMLPSelectActionGreedyWithoutExploration(t *testing.T) {
	schedule, err := NewConstant(0.0)
	if err != nil {
		t.Fatalf("could not create schedule: %v", err)
	}

	p, vm := newLinearPolicy(t, schedule, []float64{1.0, 3.0, 2.0})
	defer vm.Close()

	for i := 0; i < 10; i++ {
		action, value := p.SelectAction()
		if got := int(action.AtVec(0)); got != 1 {
			t.Errorf("got action %v on step %v, want 1", got, i)
		}
		if value != 3.0 {
			t.Errorf("got action value %v on step %v, want 3", value, i)
		}
	}

	if steps := p.Schedule().Steps(); steps != 10 {
		t.Errorf("schedule advanced by %v steps, want 10", steps)
	}
}

func TestEGreedyMLPSelectActionExplores(t *testing.T) {
	schedule, err := NewConstant(1.0)
	if err != nil {
		t.Fatalf("could not create schedule: %v", err)
	}

	p, vm := newLinearPolicy(t, schedule, []float64{1.0, 3.0, 2.0})
	defer vm.Close()

	counts := make(map[int]int)
	for i := 0; i < 60; i++ {
		action, _ := p.SelectAction()
		counts[int(action.AtVec(0))]++
	}

	for action := range counts {
		if action < 0 || action > 2 {
			t.Errorf("selected out-of-range action %v", action)
		}
	}
	if len(counts) < 2 {
		t.Errorf("got %v distinct actions under full exploration, want "+
			"at least 2", len(counts))
	}
}

func TestEGreedyMLPEpsilonDecays(t *testing.T) {
	schedule, err := NewExpDecay(0.9, 0.05, 100)
	if err != nil {
		t.Fatalf("could not create schedule: %v", err)
	}

	p, vm := newLinearPolicy(t, schedule, []float64{1.0, 3.0, 2.0})
	defer vm.Close()

	if ε := p.Epsilon(); math.Abs(ε-0.9) > tolerance {
		t.Errorf("got initial exploration rate %v, want 0.9", ε)
	}

	for i := 0; i < 10; i++ {
		p.SelectAction()
	}

	want := 0.05 + (0.9-0.05)*math.Exp(-0.1)
	if ε := p.Epsilon(); math.Abs(ε-want) > tolerance {
		t.Errorf("got exploration rate %v after 10 actions, want %v", ε,
			want)
	}
}
