package layer

import (
	"math"

	"gorgonia.org/tensor"

	"github.com/FlavioCFOliveira/GoCurriculum/internal/activations"
	"github.com/FlavioCFOliveira/GoCurriculum/internal/errs"
	"github.com/FlavioCFOliveira/GoCurriculum/internal/shape"
)

// ConvPoolConfig describes one convolution+pool stage.
//
// InputShape is (batch, channels, width, height) and FilterShape is
// (out channels, in channels, filter width, filter height). Strides and Pool
// are given per spatial axis in the same (width, height) order.
type ConvPoolConfig struct {
	InputShape  [4]int
	FilterShape [4]int
	Strides     [2]int
	Pool        [2]int
	Activation  activations.Activation
	W           *tensor.Dense
	B           *tensor.Dense
	DropoutRate float64
	Mask        *RNG
}

// ConvPool is a valid-mode strided convolution followed by non-overlapping
// max pooling (border ignored), bias, activation and dropout.
type ConvPool struct {
	in     shape.Envelope
	filter [4]int
	stride [2]int
	pool   [2]int
	act    activations.Activation

	// Spatial sizes after convolution and after pooling.
	convW, convH int
	outW, outH   int

	w *tensor.Dense
	b *tensor.Dense

	drop   *dropout
	output *tensor.Dense
}

// NewConvPool creates a stage wired to x and computes its output.
func NewConvPool(rng *RNG, x *tensor.Dense, cfg ConvPoolConfig) (*ConvPool, error) {
	in := shape.Envelope{
		Batch:    cfg.InputShape[0],
		Channels: cfg.InputShape[1],
		Width:    cfg.InputShape[2],
		Height:   cfg.InputShape[3],
	}
	f := cfg.FilterShape
	if f[0] <= 0 || in.Channels <= 0 {
		return nil, errs.Shapef("conv stage with %d kernels over %d channels", f[0], in.Channels)
	}
	if f[1] != in.Channels {
		return nil, errs.Shapef("filter expects %d input channels, input has %d", f[1], in.Channels)
	}

	outW, outH, err := shape.StageOutput(-1, in, [2]int{f[2], f[3]}, cfg.Pool, cfg.Strides)
	if err != nil {
		return nil, err
	}

	act := cfg.Activation
	if act == nil {
		act = activations.Linear{}
	}

	fanIn := float64(f[1] * f[2] * f[3])
	fanOut := float64(f[0]*f[2]*f[3]) / float64(cfg.Pool[0]*cfg.Pool[1])
	w, err := resolve(cfg.W, "conv weights", func() *tensor.Dense {
		return glorot(rng, fanIn, fanOut, f[0], f[1], f[2], f[3])
	}, f[0], f[1], f[2], f[3])
	if err != nil {
		return nil, err
	}
	b, err := resolve(cfg.B, "conv bias", func() *tensor.Dense {
		return NewTensor(f[0])
	}, f[0])
	if err != nil {
		return nil, err
	}
	drop, err := newDropout(cfg.DropoutRate, cfg.Mask)
	if err != nil {
		return nil, err
	}

	c := &ConvPool{
		in:     in,
		filter: f,
		stride: cfg.Strides,
		pool:   cfg.Pool,
		act:    act,
		convW:  (in.Width - f[2] + cfg.Strides[0]) / cfg.Strides[0],
		convH:  (in.Height - f[3] + cfg.Strides[1]) / cfg.Strides[1],
		outW:   outW,
		outH:   outH,
		w:      w,
		b:      b,
		drop:   drop,
	}
	if _, err := c.Forward(x); err != nil {
		return nil, err
	}
	return c, nil
}

// Forward runs the stage over a batch laid out as (batch, channels, width, height).
// The batch size is inferred from the element count.
func (c *ConvPool) Forward(x *tensor.Dense) (*tensor.Dense, error) {
	batch, err := rows(x, c.in.Features(), "conv stage")
	if err != nil {
		return nil, err
	}

	input := Float64s(x)
	weights := Float64s(c.w)
	biases := Float64s(c.b)

	outC, inC := c.filter[0], c.filter[1]
	fw, fh := c.filter[2], c.filter[3]
	inW, inH := c.in.Width, c.in.Height
	inPlane := inW * inH
	convPlane := c.convW * c.convH
	outPlane := c.outW * c.outH

	conv := make([]float64, outC*convPlane)
	out := make([]float64, batch*outC*outPlane)

	for n := 0; n < batch; n++ {
		sample := input[n*inC*inPlane : (n+1)*inC*inPlane]

		for i := range conv {
			conv[i] = 0
		}
		for oc := 0; oc < outC; oc++ {
			dst := conv[oc*convPlane : (oc+1)*convPlane]
			for ic := 0; ic < inC; ic++ {
				src := sample[ic*inPlane : (ic+1)*inPlane]
				kernel := weights[(oc*inC+ic)*fw*fh : (oc*inC+ic+1)*fw*fh]
				for cx := 0; cx < c.convW; cx++ {
					x0 := cx * c.stride[0]
					for cy := 0; cy < c.convH; cy++ {
						y0 := cy * c.stride[1]
						sum := 0.0
						for kx := 0; kx < fw; kx++ {
							row := src[(x0+kx)*inH+y0 : (x0+kx)*inH+y0+fh]
							krow := kernel[kx*fh : (kx+1)*fh]
							for ky, v := range row {
								sum += v * krow[ky]
							}
						}
						dst[cx*c.convH+cy] += sum
					}
				}
			}
		}

		// Max pool over non-overlapping windows; trailing rows/cols that do
		// not fill a window are dropped.
		for oc := 0; oc < outC; oc++ {
			src := conv[oc*convPlane : (oc+1)*convPlane]
			dst := out[(n*outC+oc)*outPlane : (n*outC+oc+1)*outPlane]
			for px := 0; px < c.outW; px++ {
				for py := 0; py < c.outH; py++ {
					best := math.Inf(-1)
					for dx := 0; dx < c.pool[0]; dx++ {
						for dy := 0; dy < c.pool[1]; dy++ {
							v := src[(px*c.pool[0]+dx)*c.convH+py*c.pool[1]+dy]
							if v > best {
								best = v
							}
						}
					}
					dst[px*c.outH+py] = c.act.Activate(best + biases[oc])
				}
			}
		}
	}
	c.drop.apply(out)

	c.output = FromSlice(out, batch, outC, c.outW, c.outH)
	return c.output, nil
}

func (c *ConvPool) Kind() Kind              { return KindConvPool }
func (c *ConvPool) Output() *tensor.Dense   { return c.output }
func (c *ConvPool) Weights() *tensor.Dense  { return c.w }
func (c *ConvPool) Bias() *tensor.Dense     { return c.b }
func (c *ConvPool) Params() []*tensor.Dense { return []*tensor.Dense{c.w, c.b} }
func (c *ConvPool) SetTraining(training bool) {
	c.drop.training = training
}

// OutputEnvelope is the shape of the stage's output for the configured batch.
func (c *ConvPool) OutputEnvelope() shape.Envelope {
	return shape.Envelope{Batch: c.in.Batch, Channels: c.filter[0], Width: c.outW, Height: c.outH}
}

// FilterShape returns (out channels, in channels, filter width, filter height).
func (c *ConvPool) FilterShape() [4]int {
	return c.filter
}
