// Package curriculum re-exports the model builder for code outside this module.
package curriculum

import (
	"log/slog"

	"gorgonia.org/tensor"

	"github.com/FlavioCFOliveira/GoCurriculum/internal/activations"
	"github.com/FlavioCFOliveira/GoCurriculum/internal/config"
	"github.com/FlavioCFOliveira/GoCurriculum/internal/errs"
	"github.com/FlavioCFOliveira/GoCurriculum/internal/layer"
	"github.com/FlavioCFOliveira/GoCurriculum/internal/loss"
	"github.com/FlavioCFOliveira/GoCurriculum/internal/model"
	"github.com/FlavioCFOliveira/GoCurriculum/internal/shape"
	"github.com/FlavioCFOliveira/GoCurriculum/internal/storage"
)

// Re-export common types for easier access
type (
	Model        = model.Model
	Params       = model.Params
	Option       = model.Option
	Config       = config.Model
	ConvLayer    = config.ConvLayer
	Layer        = layer.Layer
	Checkpoint   = storage.Checkpoint
	Envelope     = shape.Envelope
	LossKind     = loss.Kind
	ShapeError   = errs.ShapeError
	StorageError = errs.StorageError
)

// Architectures
const (
	Shallow = model.ArchShallow
	Conv    = model.ArchConv
)

// Loss kinds
const (
	CrossEntropy           = loss.CrossEntropy
	Bootstrapping          = loss.Bootstrapping
	BootstrappingConfident = loss.BootstrappingConfident
)

// Errors
var (
	ErrPrecondition = errs.ErrPrecondition
	ErrInvalidShape = errs.ErrInvalidShape
	ErrStorage      = errs.ErrStorage
	ErrInvalid      = config.ErrInvalid
)

// Activations
var (
	ReLU    = activations.ReLU{}
	Sigmoid = activations.Sigmoid{}
	Linear  = activations.Linear{}
)

// Model creation
func New(arch string, cfg Config, opts ...Option) (Model, error) {
	return model.New(arch, cfg, opts...)
}

func NewShallow(cfg Config, opts ...Option) *model.Shallow {
	return model.NewShallow(cfg, opts...)
}

func NewConv(cfg Config, opts ...Option) *model.Conv {
	return model.NewConv(cfg, opts...)
}

func WithLogger(l *slog.Logger) Option {
	return model.WithLogger(l)
}

// Configuration
func LoadConfig(path string) (Config, error) {
	return config.Load(path)
}

func ParseConfig(data []byte) (Config, error) {
	return config.Parse(data)
}

// Shapes
func OutputLength(inputLength, filterSize, poolSize, stride int) (int, error) {
	return shape.OutputLength(inputLength, filterSize, poolSize, stride)
}

// Tensors
func NewTensor(shape ...int) *tensor.Dense {
	return layer.NewTensor(shape...)
}

func FromSlice(data []float64, shape ...int) *tensor.Dense {
	return layer.FromSlice(data, shape...)
}

// Checkpoints
func NewCheckpoint(arch string, params Params) *Checkpoint {
	return storage.New(arch, params)
}

func SaveCheckpoint(path string, c *Checkpoint) error {
	return storage.Save(path, c)
}

func LoadCheckpoint(path string) (*Checkpoint, error) {
	return storage.Load(path)
}
