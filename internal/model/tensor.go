// Package model evaluates the pretrained texture classifier.
//
// Models are small sequential convolutional networks exported as JSON. The
// engine evaluates them on channel-last tensors using gonum for the dense
// algebra.
package model

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Shape is a channel-last tensor shape (rows, cols, channels). Flattened
// vectors use Shape{1, 1, n}.
type Shape struct {
	Rows     int
	Cols     int
	Channels int
}

// Size returns the number of elements.
func (s Shape) Size() int { return s.Rows * s.Cols * s.Channels }

func (s Shape) valid() bool { return s.Rows > 0 && s.Cols > 0 && s.Channels > 0 }

func (s Shape) String() string {
	return fmt.Sprintf("(%d, %d, %d)", s.Rows, s.Cols, s.Channels)
}

// Tensor is a dense channel-last tensor. Element (r, c, ch) lives at
// Data[(r*Cols+c)*Channels+ch].
type Tensor struct {
	Shape Shape
	Data  []float64
}

// NewTensor allocates a zero tensor.
func NewTensor(shape Shape) *Tensor {
	return &Tensor{Shape: shape, Data: make([]float64, shape.Size())}
}

func (t *Tensor) index(r, c, ch int) int {
	return (r*t.Shape.Cols+c)*t.Shape.Channels + ch
}

// At returns element (r, c, ch).
func (t *Tensor) At(r, c, ch int) float64 { return t.Data[t.index(r, c, ch)] }

// Set stores v at (r, c, ch).
func (t *Tensor) Set(r, c, ch int, v float64) { t.Data[t.index(r, c, ch)] = v }

// FromGrid copies a matrix into a single-channel tensor of the same rows
// and columns.
func FromGrid(m mat.Matrix) *Tensor {
	rows, cols := m.Dims()
	t := NewTensor(Shape{Rows: rows, Cols: cols, Channels: 1})
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			t.Set(r, c, 0, m.At(r, c))
		}
	}
	return t
}

// Predictor returns the single scalar output of a model for one input.
type Predictor interface {
	PredictSingle(ctx context.Context, in *Tensor) (float64, error)
}

// PredictorFunc adapts a function to Predictor.
type PredictorFunc func(ctx context.Context, in *Tensor) (float64, error)

// PredictSingle calls f.
func (f PredictorFunc) PredictSingle(ctx context.Context, in *Tensor) (float64, error) {
	return f(ctx, in)
}
