package network

import (
	G "gorgonia.org/gorgonia"
)

// NeuralNet is a neural network function approximator implemented as a
// gorgonia computational graph. A NeuralNet does not own a virtual
// machine. An external VM should be used to run the network's graph
// after SetInput() has set the value of the network's input node. Once
// the VM has been run, Output() returns the values predicted by that
// run.
//
// Networks can be duplicated across computational graphs with Clone()
// and CloneWithBatch(), and the weights of one network can be copied
// or moved toward the weights of another with Set() and Polyak()
// respectively. Cloned networks share no nodes with the original, so
// running one network's VM never affects another.
type NeuralNet interface {
	Graph() *G.ExprGraph
	Clone() (NeuralNet, error)
	CloneWithBatch(int) (NeuralNet, error)
	BatchSize() int
	Features() int
	Outputs() int
	SetInput([]float64) error
	Set(NeuralNet) error
	Polyak(NeuralNet, float64) error
	Learnables() G.Nodes
	Model() []G.ValueGrad
	Output() []G.Value
	Prediction() []*G.Node
}
