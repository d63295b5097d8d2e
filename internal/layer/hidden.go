package layer

import (
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"

	"github.com/FlavioCFOliveira/GoCurriculum/internal/activations"
	"github.com/FlavioCFOliveira/GoCurriculum/internal/errs"
)

// HiddenConfig describes a fully connected layer.
// W is (NIn, NOut) and B is (NOut); nil means random initialization.
type HiddenConfig struct {
	NIn         int
	NOut        int
	Activation  activations.Activation
	W           *tensor.Dense
	B           *tensor.Dense
	DropoutRate float64
	// Mask drives the dropout draws. Defaults to a fixed seed.
	Mask *RNG
}

// Hidden is a fully connected layer: act(x·W + b) followed by dropout.
type Hidden struct {
	nIn  int
	nOut int
	act  activations.Activation

	w *tensor.Dense
	b *tensor.Dense

	drop   *dropout
	output *tensor.Dense
}

// NewHidden creates a hidden layer wired to x and computes its output.
func NewHidden(rng *RNG, x *tensor.Dense, cfg HiddenConfig) (*Hidden, error) {
	if cfg.NIn <= 0 || cfg.NOut <= 0 {
		return nil, errs.Shapef("hidden layer %dx%d", cfg.NIn, cfg.NOut)
	}
	act := cfg.Activation
	if act == nil {
		act = activations.Linear{}
	}

	w, err := resolve(cfg.W, "hidden weights", func() *tensor.Dense {
		return glorot(rng, float64(cfg.NIn), float64(cfg.NOut), cfg.NIn, cfg.NOut)
	}, cfg.NIn, cfg.NOut)
	if err != nil {
		return nil, err
	}
	b, err := resolve(cfg.B, "hidden bias", func() *tensor.Dense {
		return NewTensor(cfg.NOut)
	}, cfg.NOut)
	if err != nil {
		return nil, err
	}
	drop, err := newDropout(cfg.DropoutRate, cfg.Mask)
	if err != nil {
		return nil, err
	}

	h := &Hidden{
		nIn:  cfg.NIn,
		nOut: cfg.NOut,
		act:  act,
		w:    w,
		b:    b,
		drop: drop,
	}
	if _, err := h.Forward(x); err != nil {
		return nil, err
	}
	return h, nil
}

// Forward computes act(x·W + b) for a batch. x may have any shape whose
// size is a multiple of NIn; it is read as (size/NIn, NIn).
func (h *Hidden) Forward(x *tensor.Dense) (*tensor.Dense, error) {
	batch, err := rows(x, h.nIn, "hidden")
	if err != nil {
		return nil, err
	}

	out := affine(Float64s(x), Float64s(h.w), Float64s(h.b), batch, h.nIn, h.nOut)
	activations.ApplyInPlace(h.act, out)
	h.drop.apply(out)

	h.output = FromSlice(out, batch, h.nOut)
	return h.output, nil
}

// affine returns x·W + b for x (batch, nIn), W (nIn, nOut), b (nOut).
func affine(x, w, b []float64, batch, nIn, nOut int) []float64 {
	out := make([]float64, batch*nOut)
	om := mat.NewDense(batch, nOut, out)
	om.Mul(mat.NewDense(batch, nIn, x), mat.NewDense(nIn, nOut, w))
	for r := 0; r < batch; r++ {
		row := out[r*nOut : (r+1)*nOut]
		for j := range row {
			row[j] += b[j]
		}
	}
	return out
}

func (h *Hidden) Kind() Kind              { return KindHidden }
func (h *Hidden) Output() *tensor.Dense   { return h.output }
func (h *Hidden) Weights() *tensor.Dense  { return h.w }
func (h *Hidden) Bias() *tensor.Dense     { return h.b }
func (h *Hidden) Params() []*tensor.Dense { return []*tensor.Dense{h.w, h.b} }
func (h *Hidden) SetTraining(training bool) {
	h.drop.training = training
}

// InSize returns the input width of the layer.
func (h *Hidden) InSize() int {
	return h.nIn
}

// OutSize returns the output width of the layer.
func (h *Hidden) OutSize() int {
	return h.nOut
}

// Activation returns the activation function used by this layer.
func (h *Hidden) Activation() activations.Activation {
	return h.act
}
