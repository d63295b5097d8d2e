// Package layer provides the layer primitives the model builder assembles:
// fully connected hidden layers, convolution+pool stages and the output layer.
package layer

import (
	"math"
	"math/rand"

	"gorgonia.org/tensor"

	"github.com/FlavioCFOliveira/GoCurriculum/internal/errs"
)

// Kind tells the three primitives apart.
type Kind int

const (
	KindHidden Kind = iota
	KindConvPool
	KindOutput
)

func (k Kind) String() string {
	switch k {
	case KindHidden:
		return "Hidden"
	case KindConvPool:
		return "ConvPool"
	case KindOutput:
		return "Output"
	default:
		return "Unknown"
	}
}

// Layer is one node of a built model.
// Output holds the result of the most recent Forward call; constructors run
// Forward once on the input they are wired to.
type Layer interface {
	Kind() Kind
	Forward(x *tensor.Dense) (*tensor.Dense, error)
	Output() *tensor.Dense
	Weights() *tensor.Dense
	Bias() *tensor.Dense
	// Params returns the trainable tensors in [weights, bias] order.
	Params() []*tensor.Dense
	SetTraining(training bool)
}

// RNG is a seeded generator for weight initialization and dropout masks.
type RNG struct {
	r *rand.Rand
}

// NewRNG creates a deterministic generator.
func NewRNG(seed int64) *RNG {
	return &RNG{r: rand.New(rand.NewSource(seed))}
}

// RandFloat returns a value in [0, 1).
func (g *RNG) RandFloat() float64 {
	return g.r.Float64()
}

// Uniform returns a value in [lo, hi).
func (g *RNG) Uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*g.r.Float64()
}

// glorot fills a new tensor of the given shape with U(-b, b),
// b = sqrt(6 / (fanIn + fanOut)).
func glorot(rng *RNG, fanIn, fanOut float64, shape ...int) *tensor.Dense {
	t := NewTensor(shape...)
	bound := math.Sqrt(6.0 / (fanIn + fanOut))
	data := Float64s(t)
	for i := range data {
		data[i] = rng.Uniform(-bound, bound)
	}
	return t
}

// NewTensor allocates a zeroed float64 tensor.
func NewTensor(shape ...int) *tensor.Dense {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(make([]float64, n)))
}

// FromSlice wraps data in a tensor of the given shape without copying.
func FromSlice(data []float64, shape ...int) *tensor.Dense {
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
}

// Float64s returns the backing slice of a float64 tensor.
func Float64s(t *tensor.Dense) []float64 {
	return t.Data().([]float64)
}

// View reinterprets t with a new shape sharing the same backing data.
func View(t *tensor.Dense, shape ...int) *tensor.Dense {
	return FromSlice(Float64s(t), shape...)
}

// SameShape reports whether t has exactly the given dimensions.
func SameShape(t *tensor.Dense, shape ...int) bool {
	got := t.Shape()
	if len(got) != len(shape) {
		return false
	}
	for i := range shape {
		if got[i] != shape[i] {
			return false
		}
	}
	return true
}

// resolve returns the supplied tensor after checking its shape, or a fresh
// one from init when none was supplied.
func resolve(supplied *tensor.Dense, name string, init func() *tensor.Dense, shape ...int) (*tensor.Dense, error) {
	if supplied == nil {
		return init(), nil
	}
	if err := CheckDtype(supplied, "supplied "+name); err != nil {
		return nil, err
	}
	if !SameShape(supplied, shape...) {
		return nil, errs.Shapef("supplied %s has shape %v, want %v", name, []int(supplied.Shape()), shape)
	}
	return supplied, nil
}

// CheckDtype rejects anything but a float64 tensor, which is all the
// primitives compute on.
func CheckDtype(t *tensor.Dense, what string) error {
	if t.Dtype() != tensor.Float64 {
		return errs.Shapef("%s has dtype %v, want float64", what, t.Dtype())
	}
	return nil
}

// rows checks that x holds whole float64 samples of the given width and
// returns how many.
func rows(x *tensor.Dense, width int, layer string) (int, error) {
	if x == nil {
		return 0, errs.Shapef("%s: nil input", layer)
	}
	if err := CheckDtype(x, layer+" input"); err != nil {
		return 0, err
	}
	size := x.Size()
	if width <= 0 || size == 0 || size%width != 0 {
		return 0, errs.Shapef("%s: input of %d elements is not a batch of %d-wide samples", layer, size, width)
	}
	return size / width, nil
}

// dropout zeroes inputs with probability rate while training and rescales
// the survivors by 1/(1-rate). Inference passes values through.
type dropout struct {
	rate     float64
	mask     *RNG
	training bool
}

func newDropout(rate float64, mask *RNG) (*dropout, error) {
	if rate < 0 || rate >= 1 {
		return nil, errs.Shapef("dropout rate %v outside [0, 1)", rate)
	}
	if mask == nil {
		mask = NewRNG(1)
	}
	return &dropout{rate: rate, mask: mask}, nil
}

func (d *dropout) apply(x []float64) {
	if !d.training || d.rate == 0 {
		return
	}
	keep := 1 - d.rate
	for i := range x {
		if d.mask.RandFloat() < d.rate {
			x[i] = 0
		} else {
			x[i] /= keep
		}
	}
}
