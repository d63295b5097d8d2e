package layer

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/FlavioCFOliveira/GoCurriculum/internal/activations"
	"github.com/FlavioCFOliveira/GoCurriculum/internal/errs"
	"github.com/FlavioCFOliveira/GoCurriculum/internal/loss"
)

// OutputConfig describes the output layer.
type OutputConfig struct {
	NIn  int
	NOut int
	W    *tensor.Dense
	B    *tensor.Dense
	Loss loss.Kind
	// BatchSize, when positive, must match the rows of the input the layer
	// is built on.
	BatchSize int
}

// Output is a sigmoid layer producing one probability per label pixel.
type Output struct {
	nIn  int
	nOut int
	kind loss.Kind
	fn   loss.Loss

	w *tensor.Dense
	b *tensor.Dense

	output *tensor.Dense
}

// NewOutput creates the output layer wired to x and computes its output.
func NewOutput(rng *RNG, x *tensor.Dense, cfg OutputConfig) (*Output, error) {
	if cfg.NIn <= 0 || cfg.NOut <= 0 {
		return nil, errs.Shapef("output layer %dx%d", cfg.NIn, cfg.NOut)
	}
	fn, err := loss.ForKind(cfg.Loss)
	if err != nil {
		return nil, errors.Wrap(err, "output layer")
	}

	w, err := resolve(cfg.W, "output weights", func() *tensor.Dense {
		return glorot(rng, float64(cfg.NIn), float64(cfg.NOut), cfg.NIn, cfg.NOut)
	}, cfg.NIn, cfg.NOut)
	if err != nil {
		return nil, err
	}
	b, err := resolve(cfg.B, "output bias", func() *tensor.Dense {
		return NewTensor(cfg.NOut)
	}, cfg.NOut)
	if err != nil {
		return nil, err
	}

	o := &Output{
		nIn:  cfg.NIn,
		nOut: cfg.NOut,
		kind: cfg.Loss,
		fn:   fn,
		w:    w,
		b:    b,
	}
	out, err := o.Forward(x)
	if err != nil {
		return nil, err
	}
	if cfg.BatchSize > 0 && out.Shape()[0] != cfg.BatchSize {
		return nil, errs.Shapef("output layer input has %d rows, batch size is %d", out.Shape()[0], cfg.BatchSize)
	}
	return o, nil
}

// Forward computes sigmoid(x·W + b).
func (o *Output) Forward(x *tensor.Dense) (*tensor.Dense, error) {
	batch, err := rows(x, o.nIn, "output")
	if err != nil {
		return nil, err
	}

	out := affine(Float64s(x), Float64s(o.w), Float64s(o.b), batch, o.nIn, o.nOut)
	activations.ApplyInPlace(activations.Sigmoid{}, out)

	o.output = FromSlice(out, batch, o.nOut)
	return o.output, nil
}

func (o *Output) labels(y *tensor.Dense) ([]float64, error) {
	if y == nil || y.Size() != o.output.Size() {
		got := 0
		if y != nil {
			got = y.Size()
		}
		return nil, errs.Shapef("labels hold %d values, output has %d", got, o.output.Size())
	}
	return Float64s(y), nil
}

// NegativeLogLikelihood is the configured loss of the current output against
// y, averaged over every label and multiplied by factor.
func (o *Output) NegativeLogLikelihood(y *tensor.Dense, factor float64) (float64, error) {
	labels, err := o.labels(y)
	if err != nil {
		return 0, err
	}
	return o.fn.Forward(Float64s(o.output), labels) * factor, nil
}

// Errors is the fraction of label values the current output gets wrong.
func (o *Output) Errors(y *tensor.Dense) (float64, error) {
	labels, err := o.labels(y)
	if err != nil {
		return 0, err
	}
	return loss.ErrorRate(Float64s(o.output), labels), nil
}

func (o *Output) Kind() Kind              { return KindOutput }
func (o *Output) Output() *tensor.Dense   { return o.output }
func (o *Output) Weights() *tensor.Dense  { return o.w }
func (o *Output) Bias() *tensor.Dense     { return o.b }
func (o *Output) Params() []*tensor.Dense { return []*tensor.Dense{o.w, o.b} }

// SetTraining is a no-op: the output layer has no dropout.
func (o *Output) SetTraining(bool) {}

// LossKind returns the loss the layer was configured with.
func (o *Output) LossKind() loss.Kind {
	return o.kind
}
