// Package shape holds the spatial arithmetic of the convolutional stages.
package shape

import (
	"fmt"

	"github.com/FlavioCFOliveira/GoCurriculum/internal/errs"
)

// OutputLength returns the spatial size along one axis after a valid-mode
// convolution with the given stride followed by non-overlapping pooling that
// drops the border.
//
//	conv    = input - filter + 1
//	strided = ceil(conv / stride)
//	pooled  = floor(strided / pool)
func OutputLength(inputLength, filterSize, poolSize, stride int) (int, error) {
	if stride < 1 {
		return 0, &errs.ShapeError{Stage: -1, Op: "stride must be >= 1", Value: stride}
	}
	if poolSize < 1 {
		return 0, &errs.ShapeError{Stage: -1, Op: "pool size must be >= 1", Value: poolSize}
	}
	if filterSize < 1 {
		return 0, &errs.ShapeError{Stage: -1, Op: "filter size must be >= 1", Value: filterSize}
	}
	if filterSize > inputLength {
		return 0, &errs.ShapeError{Stage: -1, Op: fmt.Sprintf("filter %d larger than input", filterSize), Value: inputLength}
	}

	conv := inputLength - filterSize + 1
	strided := (conv + stride - 1) / stride
	pooled := strided / poolSize
	if pooled < 1 {
		return 0, &errs.ShapeError{Stage: -1, Op: fmt.Sprintf("pool %d larger than strided output", poolSize), Value: strided}
	}
	return pooled, nil
}

// StageOutput applies OutputLength to both spatial axes of a stage and tags
// any failure with the stage index and axis.
func StageOutput(stage int, in Envelope, filter, pool, stride [2]int) (width, height int, err error) {
	width, err = OutputLength(in.Width, filter[0], pool[0], stride[0])
	if err != nil {
		return 0, 0, tag(err, stage, "width")
	}
	height, err = OutputLength(in.Height, filter[1], pool[1], stride[1])
	if err != nil {
		return 0, 0, tag(err, stage, "height")
	}
	return width, height, nil
}

func tag(err error, stage int, axis string) error {
	if se, ok := err.(*errs.ShapeError); ok {
		se.Stage = stage
		se.Axis = axis
		return se
	}
	return err
}

// Envelope is the (batch, channels, width, height) input of a stage.
type Envelope struct {
	Batch    int
	Channels int
	Width    int
	Height   int
}

// Dims returns the envelope as a 4D shape.
func (e Envelope) Dims() []int {
	return []int{e.Batch, e.Channels, e.Width, e.Height}
}

// Features is the per-sample element count.
func (e Envelope) Features() int {
	return e.Channels * e.Width * e.Height
}

func (e Envelope) String() string {
	return fmt.Sprintf("(%d, %d, %d, %d)", e.Batch, e.Channels, e.Width, e.Height)
}

// FilterWindow tracks {output channels, input channels} across stages.
// Index 0 is the most recent kernel count, index 1 the one before it.
type FilterWindow [2]int

// NewFilterWindow seeds the window with the raw input channel count. The
// second slot is a placeholder that the first Next call shifts out.
func NewFilterWindow(inputChannels int) FilterWindow {
	return FilterWindow{inputChannels, -1}
}

// Next pushes the stage's kernel count to the front, drops the oldest entry
// and returns the full filter shape (out, in, filter_h, filter_w).
func (w *FilterWindow) Next(kernels int, filter [2]int) [4]int {
	w[1] = w[0]
	w[0] = kernels
	return [4]int{w[0], w[1], filter[0], filter[1]}
}
