package network

import (
	"math"
	"testing"

	G "gorgonia.org/gorgonia"
)

const tolerance float64 = 1e-10

// newTestMLP returns an MLP with 2 input features, a single hidden
// layer of 3 ReLU units with a bias, and 2 outputs.
func newTestMLP(t *testing.T, batch int, init G.InitWFn) NeuralNet {
	t.Helper()

	g := G.NewGraph()
	net, err := NewMultiHeadMLP(2, batch, 2, g, []int{3}, []bool{true},
		init, []*Activation{ReLU()})
	if err != nil {
		t.Fatalf("could not construct network: %v", err)
	}
	return net
}

// runForward runs the forward pass of net on input, returning the
// predictions of the run.
func runForward(t *testing.T, net NeuralNet, input []float64) []float64 {
	t.Helper()

	vm := G.NewTapeMachine(net.Graph())
	defer vm.Close()

	if err := net.SetInput(input); err != nil {
		t.Fatalf("could not set input: %v", err)
	}
	if err := vm.RunAll(); err != nil {
		t.Fatalf("could not run forward pass: %v", err)
	}

	// The output's backing may be overwritten by later runs
	out := net.Output()[0].Data().([]float64)
	predictions := make([]float64, len(out))
	copy(predictions, out)
	return predictions
}

// assertEqualLearnables ensures that two networks have elementwise
// equal weights.
func assertEqualLearnables(t *testing.T, got, want NeuralNet) {
	t.Helper()

	gotNodes := got.Learnables()
	wantNodes := want.Learnables()
	if len(gotNodes) != len(wantNodes) {
		t.Fatalf("got %v learnables, want %v", len(gotNodes), len(wantNodes))
	}

	for i := range gotNodes {
		gotData := gotNodes[i].Value().Data().([]float64)
		wantData := wantNodes[i].Value().Data().([]float64)
		if len(gotData) != len(wantData) {
			t.Fatalf("learnable %v: got %v weights, want %v",
				gotNodes[i].Name(), len(gotData), len(wantData))
		}
		for j := range gotData {
			if math.Abs(gotData[j]-wantData[j]) > tolerance {
				t.Errorf("learnable %v differs at index %v: got %v, want %v",
					gotNodes[i].Name(), j, gotData[j], wantData[j])
			}
		}
	}
}

// assertLearnableValues ensures that every weight of net equals
// wantWeights and every bias equals wantBiases.
func assertLearnableValues(t *testing.T, net NeuralNet, wantWeights,
	wantBiases float64) {
	t.Helper()

	for _, node := range net.Learnables() {
		want := wantWeights
		if len(node.Shape()) == 1 {
			want = wantBiases
		}
		for j, got := range node.Value().Data().([]float64) {
			if math.Abs(got-want) > tolerance {
				t.Errorf("learnable %v: index %v: got %v, want %v",
					node.Name(), j, got, want)
			}
		}
	}
}

func TestMultiHeadMLPForward(t *testing.T) {
	net := newTestMLP(t, 1, G.ValuesOf(1.0))

	// With unit weights and zero biases, each hidden unit computes
	// relu(1.0 + 0.5) = 1.5, and each output head sums the three
	// hidden units: 4.5
	predictions := runForward(t, net, []float64{1.0, 0.5})
	for i, want := range []float64{4.5, 4.5} {
		if math.Abs(predictions[i]-want) > tolerance {
			t.Errorf("output %v: got %v, want %v", i, predictions[i], want)
		}
	}

	// Negative pre-activations are zeroed by the ReLU
	predictions = runForward(t, net, []float64{-1.0, -0.5})
	for i, want := range []float64{0.0, 0.0} {
		if math.Abs(predictions[i]-want) > tolerance {
			t.Errorf("output %v: got %v, want %v", i, predictions[i], want)
		}
	}
}

func TestMultiHeadMLPStructure(t *testing.T) {
	net := newTestMLP(t, 1, G.GlorotU(1.0))

	if features := net.Features(); features != 2 {
		t.Errorf("got %v features, want 2", features)
	}
	if outputs := net.Outputs(); outputs != 2 {
		t.Errorf("got %v outputs, want 2", outputs)
	}
	if batchSize := net.BatchSize(); batchSize != 1 {
		t.Errorf("got batch size %v, want 1", batchSize)
	}

	// Hidden layer weights + bias and final layer weights + bias
	if learnables := len(net.Learnables()); learnables != 4 {
		t.Errorf("got %v learnables, want 4", learnables)
	}
	if predictions := len(net.Prediction()); predictions != 1 {
		t.Errorf("got %v prediction nodes, want 1", predictions)
	}
}

func TestNewMultiHeadMLPValidatesArguments(t *testing.T) {
	g := G.NewGraph()
	_, err := NewMultiHeadMLP(2, 1, 2, g, []int{3, 3}, []bool{true, true},
		G.GlorotU(1.0), []*Activation{ReLU()})
	if err == nil {
		t.Error("expected an error for mismatched activations")
	}

	g = G.NewGraph()
	_, err = NewMultiHeadMLP(2, 1, 2, g, []int{3, 3}, []bool{true},
		G.GlorotU(1.0), []*Activation{ReLU(), ReLU()})
	if err == nil {
		t.Error("expected an error for mismatched biases")
	}
}

func TestMultiHeadMLPSet(t *testing.T) {
	dest := newTestMLP(t, 1, G.ValuesOf(0.5))
	source := newTestMLP(t, 1, G.ValuesOf(1.0))

	if err := dest.Set(source); err != nil {
		t.Fatalf("could not set weights: %v", err)
	}

	assertEqualLearnables(t, dest, source)
}

func TestMultiHeadMLPPolyak(t *testing.T) {
	dest := newTestMLP(t, 1, G.Zeroes())
	source := newTestMLP(t, 1, G.ValuesOf(1.0))

	// Biases are initialized to zero in both networks, so they
	// remain zero under averaging
	if err := dest.Polyak(source, 0.25); err != nil {
		t.Fatalf("could not average weights: %v", err)
	}
	assertLearnableValues(t, dest, 0.25, 0.0)

	if err := dest.Polyak(source, 0.25); err != nil {
		t.Fatalf("could not average weights: %v", err)
	}
	assertLearnableValues(t, dest, 0.4375, 0.0)
}

func TestMultiHeadMLPPolyakFullTau(t *testing.T) {
	dest := newTestMLP(t, 1, G.Zeroes())
	source := newTestMLP(t, 1, G.ValuesOf(2.0))

	// With tau = 1, a polyak average is equivalent to Set()
	if err := dest.Polyak(source, 1.0); err != nil {
		t.Fatalf("could not average weights: %v", err)
	}

	assertEqualLearnables(t, dest, source)
}

func TestMultiHeadMLPCloneWithBatch(t *testing.T) {
	net := newTestMLP(t, 1, G.ValuesOf(0.5))

	cloned, err := net.CloneWithBatch(4)
	if err != nil {
		t.Fatalf("could not clone network: %v", err)
	}

	if batchSize := cloned.BatchSize(); batchSize != 4 {
		t.Errorf("got batch size %v, want 4", batchSize)
	}
	if batchSize := net.BatchSize(); batchSize != 1 {
		t.Errorf("original batch size changed: got %v, want 1", batchSize)
	}
	if features := cloned.Features(); features != net.Features() {
		t.Errorf("got %v features, want %v", features, net.Features())
	}
	if outputs := cloned.Outputs(); outputs != net.Outputs() {
		t.Errorf("got %v outputs, want %v", outputs, net.Outputs())
	}

	// Cloning copies weights to the new graph
	assertEqualLearnables(t, cloned, net)

	// A batch of identical rows should predict identical values to
	// the original network run on a single row
	single := runForward(t, net, []float64{1.0, 0.5})
	batched := runForward(t, cloned, []float64{
		1.0, 0.5,
		1.0, 0.5,
		1.0, 0.5,
		1.0, 0.5,
	})
	for i := range batched {
		if want := single[i%len(single)]; math.Abs(batched[i]-want) >
			tolerance {
			t.Errorf("output %v: got %v, want %v", i, batched[i], want)
		}
	}
}

func TestMultiHeadMLPSetInputPanicsOnInvalidLength(t *testing.T) {
	net := newTestMLP(t, 1, G.GlorotU(1.0))

	defer func() {
		if recover() == nil {
			t.Error("expected a panic for input of invalid length")
		}
	}()
	net.SetInput([]float64{1.0})
}
