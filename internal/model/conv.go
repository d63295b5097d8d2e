package model

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/FlavioCFOliveira/GoCurriculum/internal/activations"
	"github.com/FlavioCFOliveira/GoCurriculum/internal/config"
	"github.com/FlavioCFOliveira/GoCurriculum/internal/errs"
	"github.com/FlavioCFOliveira/GoCurriculum/internal/layer"
	"github.com/FlavioCFOliveira/GoCurriculum/internal/shape"
)

// Conv is a stack of convolution+pool stages, a ReLU hidden layer over the
// flattened feature maps and a sigmoid output layer with one unit per label
// pixel.
type Conv struct {
	base
	final shape.Envelope
}

// NewConv creates an unbuilt convolutional model.
func NewConv(cfg config.Model, opts ...Option) *Conv {
	return &Conv{base: newBase("Conv", cfg, opts)}
}

// FinalEnvelope is the (batch, channels, width, height) of the last stage's
// output. It is the zero value before Build.
func (m *Conv) FinalEnvelope() shape.Envelope {
	return m.final
}

func (m *Conv) check(saved Params) error {
	cfg := m.cfg
	n := len(cfg.ConvLayers)
	if n == 0 {
		return &errs.ShapeError{Stage: -1, Op: "conv stage count", Value: 0}
	}
	if len(cfg.NrKernels) != n {
		return &errs.ShapeError{Stage: -1, Op: fmt.Sprintf("kernel counts for %d stages", n), Value: len(cfg.NrKernels)}
	}
	if need := cfg.DropoutSlots(); len(cfg.DropoutRates) < need {
		return &errs.ShapeError{Stage: -1, Op: fmt.Sprintf("dropout rates, need %d", need), Value: len(cfg.DropoutRates)}
	}
	if want := ConvSavedLen(n); len(saved) != 0 && len(saved) != want {
		return &errs.ShapeError{Stage: -1, Op: fmt.Sprintf("saved parameter count, want %d", want), Value: len(saved)}
	}
	return nil
}

// Build wires the stages, hidden and output layers to x, laid out as
// (batchSize, channels, width, height).
func (m *Conv) Build(x *tensor.Dense, batchSize int, saved Params) error {
	m.reset()
	m.final = shape.Envelope{}

	cfg := m.cfg
	if err := m.check(saved); err != nil {
		return err
	}
	if err := input(x, batchSize, cfg.InputSize()); err != nil {
		return err
	}

	rng := layer.NewRNG(cfg.RandomSeed)
	mask := layer.NewRNG(cfg.RandomSeed + 1)

	env := shape.Envelope{
		Batch:    batchSize,
		Channels: cfg.InputDataDim[0],
		Width:    cfg.InputDataDim[1],
		Height:   cfg.InputDataDim[2],
	}
	in := layer.View(x, env.Dims()...)
	window := shape.NewFilterWindow(env.Channels)
	layers := make([]layer.Layer, 0, len(cfg.ConvLayers)+2)

	for i, stage := range cfg.ConvLayers {
		filter := window.Next(cfg.NrKernels[i], stage.Filter)
		width, height, err := shape.StageOutput(i, env, stage.Filter, stage.Pool, stage.Stride)
		if err != nil {
			return err
		}
		w, b, err := pair(saved, StageSlot(len(saved), i))
		if err != nil {
			return errors.Wrapf(err, "stage %d", i)
		}

		conv, err := layer.NewConvPool(rng, in, layer.ConvPoolConfig{
			InputShape:  [4]int{env.Batch, env.Channels, env.Width, env.Height},
			FilterShape: filter,
			Strides:     stage.Stride,
			Pool:        stage.Pool,
			Activation:  activations.ReLU{},
			W:           w,
			B:           b,
			DropoutRate: cfg.DropoutRates[i],
			Mask:        mask,
		})
		if err != nil {
			return errors.Wrapf(err, "stage %d", i)
		}

		env = shape.Envelope{Batch: batchSize, Channels: cfg.NrKernels[i], Width: width, Height: height}
		m.log.Debug("conv stage", "stage", i, "filter", filter, "envelope", env.String())
		in = conv.Output()
		layers = append(layers, conv)
	}

	features := env.Features()
	w, b, err := pair(saved, hiddenSlot)
	if err != nil {
		return err
	}
	hidden, err := layer.NewHidden(rng, layer.View(in, batchSize, features), layer.HiddenConfig{
		NIn:         features,
		NOut:        cfg.HiddenLayer,
		Activation:  activations.ReLU{},
		W:           w,
		B:           b,
		DropoutRate: cfg.DropoutRates[len(cfg.DropoutRates)-2],
		Mask:        mask,
	})
	if err != nil {
		return errors.Wrap(err, "hidden layer")
	}

	if w, b, err = pair(saved, outputSlot); err != nil {
		return err
	}
	output, err := layer.NewOutput(rng, hidden.Output(), layer.OutputConfig{
		NIn:       cfg.HiddenLayer,
		NOut:      cfg.OutputSize(),
		W:         w,
		B:         b,
		Loss:      cfg.Loss,
		BatchSize: batchSize,
	})
	if err != nil {
		return errors.Wrap(err, "output layer")
	}
	layers = append(layers, hidden, output)

	params := make(Params, 0, ConvSavedLen(len(cfg.ConvLayers)))
	for i := len(layers) - 1; i >= 0; i-- {
		params = append(params, layers[i].Params()...)
	}

	m.commit(layers, []layer.Layer{hidden, output}, params)
	m.final = env
	m.log.Info("model created", "arch", ArchConv, "stages", len(cfg.ConvLayers), "features", features, "outputs", cfg.OutputSize())
	return nil
}
