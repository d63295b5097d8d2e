package activations

import (
	"math"
	"testing"
)

func TestActivate(t *testing.T) {
	tests := []struct {
		name string
		act  Activation
		in   float64
		want float64
	}{
		{"ReLU negative", ReLU{}, -1, 0},
		{"ReLU zero", ReLU{}, 0, 0},
		{"ReLU positive", ReLU{}, 2.5, 2.5},
		{"Sigmoid zero", Sigmoid{}, 0, 0.5},
		{"Sigmoid large", Sigmoid{}, 40, 1},
		{"Linear", Linear{}, -3.5, -3.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.act.Activate(tt.in); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Activate(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSigmoidSymmetry(t *testing.T) {
	s := Sigmoid{}
	for _, x := range []float64{0.3, 1, 4} {
		if math.Abs(s.Activate(-x)-(1-s.Activate(x))) > 1e-12 {
			t.Errorf("sigmoid(-%v) != 1 - sigmoid(%v)", x, x)
		}
	}
}

func TestApplyInPlace(t *testing.T) {
	x := []float64{-2, -0.5, 0, 0.5, 2}
	ApplyInPlace(ReLU{}, x)

	want := []float64{0, 0, 0, 0.5, 2}
	for i := range x {
		if x[i] != want[i] {
			t.Errorf("x[%d] = %v, want %v", i, x[i], want[i])
		}
	}
}
