// Package loss provides the losses behind the output layer of the road-label models.
package loss

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// Loss scores predictions in (0, 1) against labels of the same length.
type Loss interface {
	Forward(yPred, yTrue []float64) float64
}

// Kind selects the loss of an output layer.
type Kind string

const (
	// CrossEntropy is plain binary cross entropy against the labels.
	CrossEntropy Kind = "crossentropy"
	// Bootstrapping mixes the labels with the model's own predictions
	// (soft bootstrapping), which tolerates noisy labels.
	Bootstrapping Kind = "bootstrapping"
	// BootstrappingConfident mixes the labels with the thresholded
	// predictions (hard bootstrapping).
	BootstrappingConfident Kind = "bootstrapping_confident"
)

const (
	softBeta = 0.95
	hardBeta = 0.8
	eps      = 1e-10
)

// ForKind returns the loss implementing k. The empty kind means CrossEntropy.
func ForKind(k Kind) (Loss, error) {
	switch k {
	case CrossEntropy, "":
		return BCELoss{}, nil
	case Bootstrapping:
		return BootstrapLoss{Beta: softBeta}, nil
	case BootstrappingConfident:
		return BootstrapLoss{Beta: hardBeta, Hard: true}, nil
	default:
		return nil, errors.Errorf("unknown loss %q", string(k))
	}
}

func clip(p float64) float64 {
	return math.Min(math.Max(p, eps), 1-eps)
}

// meanCrossEntropy averages -(t*log(p) + (1-t)*log(1-p)) where t is
// target(p, y) for each prediction and label.
func meanCrossEntropy(yPred, yTrue []float64, target func(p, y float64) float64) float64 {
	if len(yPred) != len(yTrue) {
		panic(fmt.Sprintf("loss: %d predictions for %d labels", len(yPred), len(yTrue)))
	}
	if len(yPred) == 0 {
		return 0
	}

	var sum float64
	for i, p := range yPred {
		t := target(p, yTrue[i])
		p = clip(p)
		sum -= t*math.Log(p) + (1-t)*math.Log(1-p)
	}
	return sum / float64(len(yPred))
}

// BCELoss is binary cross entropy against the labels.
type BCELoss struct{}

func (BCELoss) Forward(yPred, yTrue []float64) float64 {
	return meanCrossEntropy(yPred, yTrue, func(_, y float64) float64 { return y })
}

// BootstrapLoss is binary cross entropy against a target that blends the
// labels with the model's predictions: beta*y + (1-beta)*p. With Hard set,
// p is replaced by the prediction thresholded at 0.5.
type BootstrapLoss struct {
	Beta float64
	Hard bool
}

func (b BootstrapLoss) target(pred, label float64) float64 {
	if b.Hard {
		pred = threshold(pred)
	}
	return b.Beta*label + (1-b.Beta)*pred
}

func (b BootstrapLoss) Forward(yPred, yTrue []float64) float64 {
	return meanCrossEntropy(yPred, yTrue, b.target)
}

func threshold(p float64) float64 {
	if p > 0.5 {
		return 1
	}
	return 0
}

// ErrorRate returns the fraction of elements whose prediction, thresholded at
// 0.5, differs from the label.
func ErrorRate(yPred, yTrue []float64) float64 {
	if len(yPred) != len(yTrue) {
		panic(fmt.Sprintf("loss: %d predictions for %d labels", len(yPred), len(yTrue)))
	}
	if len(yPred) == 0 {
		return 0
	}

	wrong := 0
	for i, p := range yPred {
		if threshold(p) != math.Round(yTrue[i]) {
			wrong++
		}
	}
	return float64(wrong) / float64(len(yPred))
}
