// Package model assembles layer primitives into the two network variants used
// by the curriculum trainer: a shallow fully connected net and a stack of
// convolution+pool stages followed by a hidden and an output layer.
package model

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gorgonia.org/tensor"

	"github.com/FlavioCFOliveira/GoCurriculum/internal/config"
	"github.com/FlavioCFOliveira/GoCurriculum/internal/errs"
	"github.com/FlavioCFOliveira/GoCurriculum/internal/layer"
)

// Architecture names accepted by New.
const (
	ArchShallow = "shallow"
	ArchConv    = "conv"
)

// Params is a saved parameter list: every layer's [weights, bias] pair,
// walking the layers from the output backwards. An empty list means the
// same as nil.
type Params []*tensor.Dense

// Clone deep-copies every tensor in the list.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for i, t := range p {
		if t != nil {
			out[i] = t.Clone().(*tensor.Dense)
		}
	}
	return out
}

// Model is implemented by every builder variant.
type Model interface {
	// Build wires the layer stack to x. saved, when non-nil, supplies every
	// weight and bias; nil means fresh random initialization.
	Build(x *tensor.Dense, batchSize int, saved Params) error
	OutputLayer() (*layer.Output, error)
	Cost(y *tensor.Dense, factor float64) (float64, error)
	Errors(y *tensor.Dense) (float64, error)
	L2Penalty() (float64, error)
	Params() Params
	Layers() []layer.Layer
	Predict(x *tensor.Dense) (*tensor.Dense, error)
	SetTraining(training bool)
	Summary(w io.Writer)
}

// Option configures a builder.
type Option func(*base)

// WithLogger sets the logger used for build progress.
func WithLogger(l *slog.Logger) Option {
	return func(b *base) {
		if l != nil {
			b.log = l
		}
	}
}

// New returns the builder for the named architecture.
func New(arch string, cfg config.Model, opts ...Option) (Model, error) {
	switch arch {
	case ArchShallow:
		return NewShallow(cfg, opts...), nil
	case ArchConv:
		return NewConv(cfg, opts...), nil
	default:
		return nil, errors.Errorf("unknown architecture %q", arch)
	}
}

// WeightAt returns saved[idx], or nil when nothing was saved.
func WeightAt(saved Params, idx int) (*tensor.Dense, error) {
	if len(saved) == 0 {
		return nil, nil
	}
	if idx < 0 || idx >= len(saved) {
		return nil, errs.Shapef("saved parameter index %d out of range [0, %d)", idx, len(saved))
	}
	return saved[idx], nil
}

// pair looks up the weight and bias for a slot.
func pair(saved Params, s Slot) (w, b *tensor.Dense, err error) {
	if w, err = WeightAt(saved, s.Weight); err != nil {
		return nil, nil, err
	}
	if b, err = WeightAt(saved, s.Bias); err != nil {
		return nil, nil, err
	}
	return w, b, nil
}

// base holds what both variants share: the built sequence, the layers that
// take part in the L2 penalty and the exported parameter list.
type base struct {
	name string
	cfg  config.Model
	log  *slog.Logger

	layers   []layer.Layer
	l2       []layer.Layer
	params   Params
	training bool
}

func newBase(name string, cfg config.Model, opts []Option) base {
	b := base{
		name:     name,
		cfg:      cfg,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		training: true,
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// reset drops the previous sequence so a failed Build leaves nothing behind.
func (m *base) reset() {
	m.layers = nil
	m.l2 = nil
	m.params = nil
}

// commit installs a fully constructed sequence.
func (m *base) commit(layers, l2 []layer.Layer, params Params) {
	m.layers = layers
	m.l2 = l2
	m.params = params
	for _, l := range layers {
		l.SetTraining(m.training)
	}
}

func (m *base) built() error {
	if len(m.layers) == 0 {
		return errs.Preconditionf("%s model has not been built", m.name)
	}
	return nil
}

// Config returns the configuration the builder reads.
func (m *base) Config() config.Model {
	return m.cfg
}

// OutputLayer returns the last layer of the built sequence.
func (m *base) OutputLayer() (*layer.Output, error) {
	if err := m.built(); err != nil {
		return nil, err
	}
	out, ok := m.layers[len(m.layers)-1].(*layer.Output)
	if !ok {
		return nil, errs.Preconditionf("%s model does not end in an output layer", m.name)
	}
	return out, nil
}

// Cost is the output layer's negative log likelihood scaled by factor.
func (m *base) Cost(y *tensor.Dense, factor float64) (float64, error) {
	out, err := m.OutputLayer()
	if err != nil {
		return 0, err
	}
	return out.NegativeLogLikelihood(y, factor)
}

// Errors is the fraction of label values the output layer gets wrong.
func (m *base) Errors(y *tensor.Dense) (float64, error) {
	out, err := m.OutputLayer()
	if err != nil {
		return 0, err
	}
	return out.Errors(y)
}

// L2Penalty sums the squared weights of the layers in the L2 set.
func (m *base) L2Penalty() (float64, error) {
	if err := m.built(); err != nil {
		return 0, err
	}
	var sum float64
	for _, l := range m.l2 {
		w := layer.Float64s(l.Weights())
		sum += floats.Dot(w, w)
	}
	return sum, nil
}

// Params returns the trainable parameters of the built model, in the order a
// later Build expects them back. It is nil before Build.
func (m *base) Params() Params {
	return m.params
}

// Layers returns the built sequence in forward order.
func (m *base) Layers() []layer.Layer {
	return m.layers
}

// SetTraining switches dropout on or off in every layer.
func (m *base) SetTraining(training bool) {
	m.training = training
	for _, l := range m.layers {
		l.SetTraining(training)
	}
}

// Predict pushes a new batch through the built stack with dropout disabled
// and returns the output layer's activations. Each layer's Output is
// replaced by the result for x.
func (m *base) Predict(x *tensor.Dense) (*tensor.Dense, error) {
	if err := m.built(); err != nil {
		return nil, err
	}
	for _, l := range m.layers {
		l.SetTraining(false)
	}
	defer func() {
		for _, l := range m.layers {
			l.SetTraining(m.training)
		}
	}()

	out := x
	for i, l := range m.layers {
		var err error
		if out, err = l.Forward(out); err != nil {
			return nil, errors.Wrapf(err, "predict: layer %d (%s)", i, l.Kind())
		}
	}
	return out, nil
}

// Summary writes a table of the built layers.
func (m *base) Summary(w io.Writer) {
	rule := strings.Repeat("_", 65)
	fmt.Fprintf(w, "Model: %s\n", m.name)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "%-25s %-20s %-10s\n", "Layer (type)", "Output Shape", "Param #")
	fmt.Fprintln(w, strings.Repeat("=", 65))

	total := 0
	for i, l := range m.layers {
		params := 0
		for _, p := range l.Params() {
			params += p.Size()
		}
		total += params
		fmt.Fprintf(w, "%-25s %-20s %-10d\n", fmt.Sprintf("%s_%d", l.Kind(), i), shapeString(l.Output()), params)
	}
	fmt.Fprintln(w, strings.Repeat("=", 65))
	fmt.Fprintf(w, "Total params: %d\n", total)
	fmt.Fprintln(w, rule)
}

func shapeString(t *tensor.Dense) string {
	if t == nil {
		return "()"
	}
	dims := make([]string, len(t.Shape()))
	for i, d := range t.Shape() {
		dims[i] = fmt.Sprint(d)
	}
	return "(" + strings.Join(dims, ", ") + ")"
}

// input checks that x holds batchSize float64 samples of n elements each.
func input(x *tensor.Dense, batchSize, n int) error {
	if batchSize <= 0 {
		return errs.Shapef("batch size must be positive, got %d", batchSize)
	}
	if x == nil {
		return errs.Shapef("nil input")
	}
	if err := layer.CheckDtype(x, "input"); err != nil {
		return err
	}
	if x.Size() != batchSize*n {
		return errs.Shapef("input has %d elements, want %d samples of %d", x.Size(), batchSize, n)
	}
	return nil
}
