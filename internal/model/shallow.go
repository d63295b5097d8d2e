package model

import (
	"gorgonia.org/tensor"

	"github.com/FlavioCFOliveira/GoCurriculum/internal/activations"
	"github.com/FlavioCFOliveira/GoCurriculum/internal/config"
	"github.com/FlavioCFOliveira/GoCurriculum/internal/errs"
	"github.com/FlavioCFOliveira/GoCurriculum/internal/layer"
)

// Fixed widths of the shallow network.
const (
	ShallowHidden = 2048
	ShallowOutput = 256
)

// Shallow is one ReLU hidden layer over the flattened input and a sigmoid
// output layer.
type Shallow struct {
	base
}

// NewShallow creates an unbuilt shallow model.
func NewShallow(cfg config.Model, opts ...Option) *Shallow {
	return &Shallow{base: newBase("Shallow", cfg, opts)}
}

// Build wires the network to x, read as (batchSize, channels·width·height).
func (m *Shallow) Build(x *tensor.Dense, batchSize int, saved Params) error {
	m.reset()

	nIn := m.cfg.InputSize()
	if err := input(x, batchSize, nIn); err != nil {
		return err
	}
	if len(saved) != 0 && len(saved) != ShallowSavedLen {
		return &errs.ShapeError{Stage: -1, Op: "saved parameter count, want 4", Value: len(saved)}
	}

	rng := layer.NewRNG(m.cfg.RandomSeed)
	in := layer.View(x, batchSize, nIn)

	w, b, err := pair(saved, hiddenSlot)
	if err != nil {
		return err
	}
	hidden, err := layer.NewHidden(rng, in, layer.HiddenConfig{
		NIn:        nIn,
		NOut:       ShallowHidden,
		Activation: activations.ReLU{},
		W:          w,
		B:          b,
	})
	if err != nil {
		return err
	}

	if w, b, err = pair(saved, outputSlot); err != nil {
		return err
	}
	output, err := layer.NewOutput(rng, hidden.Output(), layer.OutputConfig{
		NIn:       ShallowHidden,
		NOut:      ShallowOutput,
		W:         w,
		B:         b,
		BatchSize: batchSize,
	})
	if err != nil {
		return err
	}

	params := append(Params{}, output.Params()...)
	params = append(params, hidden.Params()...)
	m.commit([]layer.Layer{hidden, output}, []layer.Layer{hidden, output}, params)
	m.log.Info("model created", "arch", ArchShallow, "inputs", nIn, "hidden", ShallowHidden, "outputs", ShallowOutput)
	return nil
}
