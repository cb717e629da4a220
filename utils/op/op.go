// Package op provides extended Gorgonia graph operations.
package op

import (
	G "gorgonia.org/gorgonia"
)

// Huber computes the elementwise Huber loss of the residuals in diff:
//
//	0.5 * diff^2                     if |diff| < delta
//	delta * (|diff| - 0.5 * delta)   otherwise
//
// The loss is quadratic for small residuals and linear for large ones,
// with the two pieces meeting at |diff| = delta. The returned node has
// the same shape as diff.
func Huber(diff *G.Node, delta float64) (retVal *G.Node, err error) {
	// Construct the branch constants
	var deltaNode, offsetNode, halfNode *G.Node
	switch diff.Dtype() {
	case G.Float32:
		deltaNode = G.NewScalar(
			diff.Graph(),
			G.Float32,
			G.WithValue(float32(delta)),
			G.WithName("huber_delta"),
		)
		offsetNode = G.NewScalar(
			diff.Graph(),
			G.Float32,
			G.WithValue(float32(0.5*delta*delta)),
			G.WithName("huber_offset"),
		)
		halfNode = G.NewScalar(
			diff.Graph(),
			G.Float32,
			G.WithValue(float32(0.5)),
			G.WithName("huber_half"),
		)
	case G.Float64:
		deltaNode = G.NewScalar(
			diff.Graph(),
			G.Float64,
			G.WithValue(delta),
			G.WithName("huber_delta"),
		)
		offsetNode = G.NewScalar(
			diff.Graph(),
			G.Float64,
			G.WithValue(0.5*delta*delta),
			G.WithName("huber_offset"),
		)
		halfNode = G.NewScalar(
			diff.Graph(),
			G.Float64,
			G.WithValue(0.5),
			G.WithName("huber_half"),
		)
	}

	absDiff, err := G.Abs(diff)
	if err != nil {
		return nil, err
	}

	// Quadratic branch: 0.5 * diff^2
	square, err := G.Square(diff)
	if err != nil {
		return nil, err
	}
	quad, err := G.HadamardProd(halfNode, square)
	if err != nil {
		return nil, err
	}

	// Linear branch: delta * |diff| - 0.5 * delta^2
	lin, err := G.HadamardProd(deltaNode, absDiff)
	if err != nil {
		return nil, err
	}
	lin, err = G.Sub(lin, offsetNode)
	if err != nil {
		return nil, err
	}

	// Select the applicable branch elementwise
	quadMask, err := G.Lt(absDiff, deltaNode, true)
	if err != nil {
		return nil, err
	}
	quadVal, err := G.HadamardProd(quad, quadMask)
	if err != nil {
		return nil, err
	}

	linMask, err := G.Gte(absDiff, deltaNode, true)
	if err != nil {
		return nil, err
	}
	linVal, err := G.HadamardProd(lin, linMask)
	if err != nil {
		return nil, err
	}

	return G.Add(quadVal, linVal)
}
