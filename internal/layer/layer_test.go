// Package layer provides unit tests for the layer primitives.
package layer

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/FlavioCFOliveira/GoCurriculum/internal/activations"
	"github.com/FlavioCFOliveira/GoCurriculum/internal/errs"
	"github.com/FlavioCFOliveira/GoCurriculum/internal/loss"
)

func TestHiddenForward(t *testing.T) {
	x := FromSlice([]float64{1, -2, 3, 4}, 2, 2)
	w := FromSlice([]float64{1, 0, 0, 1}, 2, 2)
	b := FromSlice([]float64{0, 0.5}, 2)

	h, err := NewHidden(NewRNG(1), x, HiddenConfig{NIn: 2, NOut: 2, Activation: activations.ReLU{}, W: w, B: b})
	if err != nil {
		t.Fatalf("NewHidden() error = %v", err)
	}

	// Identity weights: relu(x + b)
	want := []float64{1, 0, 3, 4.5}
	got := Float64s(h.Output())
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("output[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if !SameShape(h.Output(), 2, 2) {
		t.Errorf("output shape = %v, want (2, 2)", h.Output().Shape())
	}
	if h.Weights() != w || h.Bias() != b {
		t.Error("supplied weights should be used as-is")
	}
	if len(h.Params()) != 2 || h.Params()[0] != w || h.Params()[1] != b {
		t.Error("Params() should be [W, b]")
	}
}

func TestHiddenFlattensInput(t *testing.T) {
	// A (1, 2, 2, 1) tensor is read as one 4-wide sample.
	x := FromSlice([]float64{1, 2, 3, 4}, 1, 2, 2, 1)
	h, err := NewHidden(NewRNG(1), x, HiddenConfig{NIn: 4, NOut: 3})
	if err != nil {
		t.Fatalf("NewHidden() error = %v", err)
	}
	if !SameShape(h.Output(), 1, 3) {
		t.Errorf("output shape = %v, want (1, 3)", h.Output().Shape())
	}
}

func TestHiddenRandomInit(t *testing.T) {
	x := NewTensor(1, 6)
	a, err := NewHidden(NewRNG(7), x, HiddenConfig{NIn: 6, NOut: 4})
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewHidden(NewRNG(7), x, HiddenConfig{NIn: 6, NOut: 4})
	if err != nil {
		t.Fatal(err)
	}

	bound := math.Sqrt(6.0 / 10.0)
	wa, wb := Float64s(a.Weights()), Float64s(b.Weights())
	for i := range wa {
		if wa[i] != wb[i] {
			t.Fatalf("weights differ at %d with the same seed", i)
		}
		if math.Abs(wa[i]) > bound {
			t.Errorf("weight %v outside glorot bound %v", wa[i], bound)
		}
	}
	for _, v := range Float64s(a.Bias()) {
		if v != 0 {
			t.Errorf("bias should start at zero, got %v", v)
		}
	}
}

func TestHiddenRejectsBadShapes(t *testing.T) {
	x := NewTensor(1, 2)

	tests := []struct {
		name string
		cfg  HiddenConfig
		x    int
	}{
		{"Wrong weight shape", HiddenConfig{NIn: 2, NOut: 2, W: NewTensor(3, 2)}, 2},
		{"Wrong bias shape", HiddenConfig{NIn: 2, NOut: 2, B: NewTensor(3)}, 2},
		{"Input not a multiple of NIn", HiddenConfig{NIn: 3, NOut: 2}, 2},
		{"Zero width", HiddenConfig{NIn: 2, NOut: 0}, 2},
		{"Dropout rate of one", HiddenConfig{NIn: 2, NOut: 2, DropoutRate: 1}, 2},
		{"Float32 weights", HiddenConfig{NIn: 2, NOut: 2, W: float32Tensor(2, 2)}, 2},
		{"Float32 bias", HiddenConfig{NIn: 2, NOut: 2, B: float32Tensor(2)}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewHidden(NewRNG(1), x, tt.cfg)
			if !errors.Is(err, errs.ErrInvalidShape) {
				t.Errorf("expected ErrInvalidShape, got %v", err)
			}
		})
	}
}

func TestHiddenDropout(t *testing.T) {
	w := FromSlice([]float64{1, 1, 1, 1}, 1, 4)
	h, err := NewHidden(NewRNG(1), FromSlice([]float64{2}, 1, 1), HiddenConfig{
		NIn: 1, NOut: 4, W: w, DropoutRate: 0.5, Mask: NewRNG(3),
	})
	if err != nil {
		t.Fatal(err)
	}

	// Inference passes values through.
	for _, v := range Float64s(h.Output()) {
		if v != 2 {
			t.Errorf("inference output = %v, want 2", v)
		}
	}

	// Training zeroes some and scales survivors by 1/(1-rate).
	h.SetTraining(true)
	out, err := h.Forward(FromSlice(filled(1000, 2), 1000, 1))
	if err != nil {
		t.Fatal(err)
	}
	zeros := 0
	for _, v := range Float64s(out) {
		switch v {
		case 0:
			zeros++
		case 4:
		default:
			t.Fatalf("training output %v is neither dropped nor rescaled", v)
		}
	}
	if zeros < 1700 || zeros > 2300 {
		t.Errorf("dropped %d of 4000, expected about half", zeros)
	}
}

func filled(n int, v float64) []float64 {
	data := make([]float64, n)
	for i := range data {
		data[i] = v
	}
	return data
}

// grid returns one 4x4 channel holding 0..15, indexed as x*4 + y.
func grid(samples int) []float64 {
	data := make([]float64, 0, samples*16)
	for n := 0; n < samples; n++ {
		for i := 0; i < 16; i++ {
			data = append(data, float64(i))
		}
	}
	return data
}

func onesFilter() []float64 {
	return []float64{1, 1, 1, 1}
}

func TestConvPoolForward(t *testing.T) {
	tests := []struct {
		name   string
		stride [2]int
		pool   [2]int
		outW   int
		outH   int
		want   []float64
	}{
		// 2x2 sums of the grid: 16x + 4y + 10
		{"No pooling", [2]int{1, 1}, [2]int{1, 1}, 3, 3, []float64{10, 14, 18, 26, 30, 34, 42, 46, 50}},
		{"Pool drops border", [2]int{1, 1}, [2]int{2, 2}, 1, 1, []float64{30}},
		{"Stride two", [2]int{2, 2}, [2]int{1, 1}, 2, 2, []float64{10, 18, 42, 50}},
		{"Uneven axes", [2]int{1, 2}, [2]int{3, 1}, 1, 2, []float64{42, 50}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := FromSlice(grid(1), 1, 1, 4, 4)
			c, err := NewConvPool(NewRNG(1), x, ConvPoolConfig{
				InputShape:  [4]int{1, 1, 4, 4},
				FilterShape: [4]int{1, 1, 2, 2},
				Strides:     tt.stride,
				Pool:        tt.pool,
				Activation:  activations.ReLU{},
				W:           FromSlice(onesFilter(), 1, 1, 2, 2),
			})
			if err != nil {
				t.Fatalf("NewConvPool() error = %v", err)
			}

			if !SameShape(c.Output(), 1, 1, tt.outW, tt.outH) {
				t.Fatalf("output shape = %v, want (1, 1, %d, %d)", c.Output().Shape(), tt.outW, tt.outH)
			}
			got := Float64s(c.Output())
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("output[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
			env := c.OutputEnvelope()
			if env.Width != tt.outW || env.Height != tt.outH || env.Channels != 1 {
				t.Errorf("OutputEnvelope() = %v", env)
			}
		})
	}
}

func TestConvPoolChannelsAndBias(t *testing.T) {
	// Two input channels, two kernels. Kernel 0 reads channel 0 only,
	// kernel 1 reads channel 1 with weight -1; the bias lifts kernel 1.
	data := append(grid(1), make([]float64, 16)...)
	for i := 16; i < 32; i++ {
		data[i] = 1
	}
	w := []float64{
		1, 0, 0, 0, // k0 c0: top-left tap
		0, 0, 0, 0, // k0 c1
		0, 0, 0, 0, // k1 c0
		-1, -1, -1, -1, // k1 c1
	}
	c, err := NewConvPool(NewRNG(1), FromSlice(data, 1, 2, 4, 4), ConvPoolConfig{
		InputShape:  [4]int{1, 2, 4, 4},
		FilterShape: [4]int{2, 2, 2, 2},
		Strides:     [2]int{1, 1},
		Pool:        [2]int{3, 3},
		Activation:  activations.ReLU{},
		W:           FromSlice(w, 2, 2, 2, 2),
		B:           FromSlice([]float64{0, 5}, 2),
	})
	if err != nil {
		t.Fatal(err)
	}

	got := Float64s(c.Output())
	// k0: max of grid over x,y < 3 = 2*4+2 = 10. k1: relu(-4 + 5) = 1.
	if got[0] != 10 || got[1] != 1 {
		t.Errorf("output = %v, want [10 1]", got)
	}
}

func TestConvPoolBatchInferred(t *testing.T) {
	c, err := NewConvPool(NewRNG(1), FromSlice(grid(1), 1, 1, 4, 4), ConvPoolConfig{
		InputShape:  [4]int{1, 1, 4, 4},
		FilterShape: [4]int{1, 1, 2, 2},
		Strides:     [2]int{1, 1},
		Pool:        [2]int{2, 2},
		W:           FromSlice(onesFilter(), 1, 1, 2, 2),
	})
	if err != nil {
		t.Fatal(err)
	}

	out, err := c.Forward(FromSlice(grid(3), 3, 16))
	if err != nil {
		t.Fatal(err)
	}
	if !SameShape(out, 3, 1, 1, 1) {
		t.Fatalf("output shape = %v, want (3, 1, 1, 1)", out.Shape())
	}
	for i, v := range Float64s(out) {
		if v != 30 {
			t.Errorf("sample %d = %v, want 30", i, v)
		}
	}
}

func TestConvPoolRejectsBadShapes(t *testing.T) {
	base := func() ConvPoolConfig {
		return ConvPoolConfig{
			InputShape:  [4]int{1, 1, 4, 4},
			FilterShape: [4]int{2, 1, 3, 3},
			Strides:     [2]int{1, 1},
			Pool:        [2]int{1, 1},
		}
	}

	tests := []struct {
		name   string
		mutate func(*ConvPoolConfig)
	}{
		{"Channel mismatch", func(c *ConvPoolConfig) { c.FilterShape[1] = 3 }},
		{"Filter larger than input", func(c *ConvPoolConfig) { c.FilterShape[2] = 5 }},
		{"Zero stride", func(c *ConvPoolConfig) { c.Strides[1] = 0 }},
		{"Zero pool", func(c *ConvPoolConfig) { c.Pool[0] = 0 }},
		{"Saved weight shape", func(c *ConvPoolConfig) { c.W = NewTensor(2, 1, 2, 2) }},
		{"Saved bias shape", func(c *ConvPoolConfig) { c.B = NewTensor(1) }},
		{"Float32 weights", func(c *ConvPoolConfig) { c.W = float32Tensor(2, 1, 3, 3) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			_, err := NewConvPool(NewRNG(1), FromSlice(grid(1), 1, 1, 4, 4), cfg)
			if !errors.Is(err, errs.ErrInvalidShape) {
				t.Errorf("expected ErrInvalidShape, got %v", err)
			}
		})
	}
}

func TestOutputLayer(t *testing.T) {
	x := FromSlice([]float64{3}, 1, 1)
	o, err := NewOutput(NewRNG(1), x, OutputConfig{
		NIn: 1, NOut: 2,
		W:         NewTensor(1, 2),
		B:         NewTensor(2),
		Loss:      loss.CrossEntropy,
		BatchSize: 1,
	})
	if err != nil {
		t.Fatalf("NewOutput() error = %v", err)
	}

	for _, v := range Float64s(o.Output()) {
		if v != 0.5 {
			t.Errorf("sigmoid(0) = %v, want 0.5", v)
		}
	}

	y := FromSlice([]float64{1, 0}, 1, 2)
	nll, err := o.NegativeLogLikelihood(y, 2)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(nll-2*math.Log(2)) > 1e-9 {
		t.Errorf("NegativeLogLikelihood() = %v, want %v", nll, 2*math.Log(2))
	}

	rate, err := o.Errors(y)
	if err != nil {
		t.Fatal(err)
	}
	if rate != 0.5 {
		t.Errorf("Errors() = %v, want 0.5", rate)
	}
	if o.LossKind() != loss.CrossEntropy {
		t.Errorf("LossKind() = %v", o.LossKind())
	}
}

func TestOutputLayerErrors(t *testing.T) {
	x := NewTensor(2, 3)

	if _, err := NewOutput(NewRNG(1), x, OutputConfig{NIn: 3, NOut: 2, BatchSize: 4}); !errors.Is(err, errs.ErrInvalidShape) {
		t.Errorf("batch mismatch: expected ErrInvalidShape, got %v", err)
	}
	if _, err := NewOutput(NewRNG(1), x, OutputConfig{NIn: 3, NOut: 2, Loss: "hinge"}); err == nil {
		t.Error("unknown loss should fail")
	}

	o, err := NewOutput(NewRNG(1), x, OutputConfig{NIn: 3, NOut: 2})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := o.NegativeLogLikelihood(NewTensor(3), 1); !errors.Is(err, errs.ErrInvalidShape) {
		t.Errorf("label mismatch: expected ErrInvalidShape, got %v", err)
	}
	if _, err := o.Errors(nil); !errors.Is(err, errs.ErrInvalidShape) {
		t.Errorf("nil labels: expected ErrInvalidShape, got %v", err)
	}
}

func TestKindString(t *testing.T) {
	if KindConvPool.String() != "ConvPool" || KindOutput.String() != "Output" || KindHidden.String() != "Hidden" {
		t.Error("unexpected Kind names")
	}
}

func TestForwardRejectsNonFloat64Input(t *testing.T) {
	rng := NewRNG(1)
	h, err := NewHidden(rng, NewTensor(1, 16), HiddenConfig{NIn: 16, NOut: 2})
	if err != nil {
		t.Fatalf("NewHidden: %v", err)
	}
	c, err := NewConvPool(rng, NewTensor(1, 1, 4, 4), ConvPoolConfig{
		InputShape:  [4]int{1, 1, 4, 4},
		FilterShape: [4]int{1, 1, 3, 3},
		Strides:     [2]int{1, 1},
		Pool:        [2]int{1, 1},
	})
	if err != nil {
		t.Fatalf("NewConvPool: %v", err)
	}
	o, err := NewOutput(rng, NewTensor(1, 16), OutputConfig{NIn: 16, NOut: 2})
	if err != nil {
		t.Fatalf("NewOutput: %v", err)
	}

	x := float32Tensor(1, 1, 4, 4)
	for _, l := range []Layer{h, c, o} {
		if _, err := l.Forward(x); !errors.Is(err, errs.ErrInvalidShape) {
			t.Errorf("%s: expected ErrInvalidShape for float32 input, got %v", l.Kind(), err)
		}
		if _, err := l.Forward(nil); !errors.Is(err, errs.ErrInvalidShape) {
			t.Errorf("%s: expected ErrInvalidShape for nil input, got %v", l.Kind(), err)
		}
	}

	if _, err := NewHidden(rng, x, HiddenConfig{NIn: 16, NOut: 2}); !errors.Is(err, errs.ErrInvalidShape) {
		t.Errorf("NewHidden on float32 input: got %v", err)
	}
}

func float32Tensor(shape ...int) *tensor.Dense {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(make([]float32, n)))
}
