// Package config loads and validates the model configuration.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/FlavioCFOliveira/GoCurriculum/internal/loss"
	"github.com/FlavioCFOliveira/GoCurriculum/internal/shape"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// ConvLayer is the geometry of one convolution+pool stage, each pair given
// as (width, height).
type ConvLayer struct {
	Filter [2]int `yaml:"filter"`
	Stride [2]int `yaml:"stride"`
	Pool   [2]int `yaml:"pool"`
}

// Model holds everything the builders read. It is loaded once and never mutated.
type Model struct {
	// InputDataDim is (channels, width, height).
	InputDataDim   [3]int      `yaml:"input_data_dim"`
	OutputLabelDim [2]int      `yaml:"output_label_dim"`
	HiddenLayer    int         `yaml:"hidden_layer"`
	RandomSeed     int64       `yaml:"random_seed"`
	NrKernels      []int       `yaml:"nr_kernels"`
	ConvLayers     []ConvLayer `yaml:"conv_layers"`
	DropoutRates   []float64   `yaml:"dropout_rates"`
	Loss           loss.Kind   `yaml:"loss"`
}

// Load reads and validates a YAML (or JSON) configuration file.
func Load(path string) (Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Model{}, errors.Wrap(err, "failed to read config")
	}
	return Parse(data)
}

// Parse decodes and validates a configuration document.
func Parse(data []byte) (Model, error) {
	var m Model
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Model{}, errors.Wrap(err, "failed to decode config")
	}
	if err := Validate(m); err != nil {
		return Model{}, err
	}
	return m, nil
}

// Validate checks that the configuration describes a buildable network. For a
// convolutional configuration it walks every stage and rejects geometry that
// would shrink a spatial axis to nothing.
func Validate(m Model) error {
	for i, d := range m.InputDataDim {
		if d <= 0 {
			return errors.Wrapf(ErrInvalid, "input_data_dim[%d] must be positive, got %d", i, d)
		}
	}
	for i, d := range m.OutputLabelDim {
		if d <= 0 {
			return errors.Wrapf(ErrInvalid, "output_label_dim[%d] must be positive, got %d", i, d)
		}
	}
	if m.HiddenLayer <= 0 {
		return errors.Wrapf(ErrInvalid, "hidden_layer must be positive, got %d", m.HiddenLayer)
	}
	if _, err := loss.ForKind(m.Loss); err != nil {
		return errors.Wrapf(ErrInvalid, "loss: %v", err)
	}
	for i, r := range m.DropoutRates {
		if r < 0 || r >= 1 {
			return errors.Wrapf(ErrInvalid, "dropout_rates[%d] must be in [0, 1), got %v", i, r)
		}
	}

	if len(m.ConvLayers) == 0 {
		return nil
	}
	if len(m.NrKernels) != len(m.ConvLayers) {
		return errors.Wrapf(ErrInvalid, "%d nr_kernels for %d conv_layers", len(m.NrKernels), len(m.ConvLayers))
	}
	if need := m.DropoutSlots(); len(m.DropoutRates) < need {
		return errors.Wrapf(ErrInvalid, "%d dropout_rates, need at least %d", len(m.DropoutRates), need)
	}

	env := shape.Envelope{Batch: 1, Channels: m.InputDataDim[0], Width: m.InputDataDim[1], Height: m.InputDataDim[2]}
	for i, stage := range m.ConvLayers {
		if m.NrKernels[i] <= 0 {
			return errors.Wrapf(ErrInvalid, "nr_kernels[%d] must be positive, got %d", i, m.NrKernels[i])
		}
		w, h, err := shape.StageOutput(i, env, stage.Filter, stage.Pool, stage.Stride)
		if err != nil {
			return errors.Wrapf(ErrInvalid, "conv_layers: %v", err)
		}
		env = shape.Envelope{Batch: 1, Channels: m.NrKernels[i], Width: w, Height: h}
	}
	return nil
}

// DropoutSlots is the minimum number of dropout rates a convolutional build
// reads: one per stage and the second-to-last entry for the hidden layer.
func (m Model) DropoutSlots() int {
	if n := len(m.ConvLayers); n > 2 {
		return n
	}
	return 2
}

// OutputSize is the number of label values the output layer predicts.
func (m Model) OutputSize() int {
	return m.OutputLabelDim[0] * m.OutputLabelDim[1]
}

// InputSize is the per-sample element count of the input.
func (m Model) InputSize() int {
	return m.InputDataDim[0] * m.InputDataDim[1] * m.InputDataDim[2]
}
