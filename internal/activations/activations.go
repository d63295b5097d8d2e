// Package activations provides the element-wise nonlinearities applied by the layers.
package activations

import "math"

// Activation maps one pre-activation value to its output.
type Activation interface {
	Activate(x float64) float64
}

// ReLU clamps negatives to zero.
type ReLU struct{}

func (ReLU) Activate(x float64) float64 {
	return math.Max(x, 0)
}

// Sigmoid squashes into (0, 1); the output layer reads it as a probability.
type Sigmoid struct{}

func (Sigmoid) Activate(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// Linear passes values through.
type Linear struct{}

func (Linear) Activate(x float64) float64 {
	return x
}

// ApplyInPlace replaces every element of x with act(x).
func ApplyInPlace(act Activation, x []float64) {
	for i, v := range x {
		x[i] = act.Activate(v)
	}
}
