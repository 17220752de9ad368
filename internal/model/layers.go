package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

type layer interface {
	kind() string
	outputShape(in Shape) (Shape, error)
	forward(in *Tensor) *Tensor
}

type activation func(data []float64, channels int)

var activations = map[string]activation{
	"":       nil,
	"linear": nil,
	"relu": func(d []float64, _ int) {
		for i, v := range d {
			if v < 0 {
				d[i] = 0
			}
		}
	},
	"sigmoid": func(d []float64, _ int) {
		for i, v := range d {
			d[i] = 1 / (1 + math.Exp(-v))
		}
	},
	"tanh": func(d []float64, _ int) {
		for i, v := range d {
			d[i] = math.Tanh(v)
		}
	},
	// softmax normalises over the channel axis at every position.
	"softmax": func(d []float64, channels int) {
		for start := 0; start < len(d); start += channels {
			px := d[start : start+channels]
			max := math.Inf(-1)
			for _, v := range px {
				max = math.Max(max, v)
			}
			sum := 0.0
			for i, v := range px {
				px[i] = math.Exp(v - max)
				sum += px[i]
			}
			for i := range px {
				px[i] /= sum
			}
		}
	},
}

func lookupActivation(name string) (activation, error) {
	fn, ok := activations[name]
	if !ok {
		return nil, fmt.Errorf("unsupported activation %q", name)
	}
	return fn, nil
}

// window computes the output length and leading pad of a sliding window
// the way Keras does for "valid" and "same" padding.
func window(in, k, stride int, padding string) (out, before int, err error) {
	switch padding {
	case "", "valid":
		if in < k {
			return 0, 0, fmt.Errorf("window %d larger than input %d", k, in)
		}
		return (in-k)/stride + 1, 0, nil
	case "same":
		out = (in + stride - 1) / stride
		total := (out-1)*stride + k - in
		if total < 0 {
			total = 0
		}
		return out, total / 2, nil
	}
	return 0, 0, fmt.Errorf("unsupported padding %q", padding)
}

type conv2D struct {
	filters        int
	kh, kw         int
	sh, sw         int
	padding        string
	kernel         []float64 // [kh][kw][cin][filters]
	bias           []float64
	act            activation
	inChannels     int
	padTop, padLft int
	out            Shape
}

func (l *conv2D) kind() string { return "conv2d" }

func (l *conv2D) outputShape(in Shape) (Shape, error) {
	if want := l.kh * l.kw * in.Channels * l.filters; len(l.kernel) != want {
		return Shape{}, fmt.Errorf("kernel has %d weights, want %d for input %s", len(l.kernel), want, in)
	}
	if len(l.bias) != l.filters {
		return Shape{}, fmt.Errorf("bias has %d values, want %d", len(l.bias), l.filters)
	}
	rows, top, err := window(in.Rows, l.kh, l.sh, l.padding)
	if err != nil {
		return Shape{}, err
	}
	cols, left, err := window(in.Cols, l.kw, l.sw, l.padding)
	if err != nil {
		return Shape{}, err
	}
	l.inChannels, l.padTop, l.padLft = in.Channels, top, left
	l.out = Shape{Rows: rows, Cols: cols, Channels: l.filters}
	return l.out, nil
}

func (l *conv2D) forward(in *Tensor) *Tensor {
	out := NewTensor(l.out)
	cin := l.inChannels
	for r := 0; r < l.out.Rows; r++ {
		for c := 0; c < l.out.Cols; c++ {
			for f := 0; f < l.filters; f++ {
				sum := l.bias[f]
				for i := 0; i < l.kh; i++ {
					y := r*l.sh + i - l.padTop
					if y < 0 || y >= in.Shape.Rows {
						continue
					}
					for j := 0; j < l.kw; j++ {
						x := c*l.sw + j - l.padLft
						if x < 0 || x >= in.Shape.Cols {
							continue
						}
						for ch := 0; ch < cin; ch++ {
							w := l.kernel[((i*l.kw+j)*cin+ch)*l.filters+f]
							sum += w * in.At(y, x, ch)
						}
					}
				}
				out.Set(r, c, f, sum)
			}
		}
	}
	if l.act != nil {
		l.act(out.Data, out.Shape.Channels)
	}
	return out
}

type maxPool2D struct {
	ph, pw         int
	sh, sw         int
	padding        string
	padTop, padLft int
	out            Shape
}

func (l *maxPool2D) kind() string { return "max_pooling2d" }

func (l *maxPool2D) outputShape(in Shape) (Shape, error) {
	rows, top, err := window(in.Rows, l.ph, l.sh, l.padding)
	if err != nil {
		return Shape{}, err
	}
	cols, left, err := window(in.Cols, l.pw, l.sw, l.padding)
	if err != nil {
		return Shape{}, err
	}
	l.padTop, l.padLft = top, left
	l.out = Shape{Rows: rows, Cols: cols, Channels: in.Channels}
	return l.out, nil
}

func (l *maxPool2D) forward(in *Tensor) *Tensor {
	out := NewTensor(l.out)
	for r := 0; r < l.out.Rows; r++ {
		for c := 0; c < l.out.Cols; c++ {
			for ch := 0; ch < l.out.Channels; ch++ {
				best := math.Inf(-1)
				for i := 0; i < l.ph; i++ {
					y := r*l.sh + i - l.padTop
					if y < 0 || y >= in.Shape.Rows {
						continue
					}
					for j := 0; j < l.pw; j++ {
						x := c*l.sw + j - l.padLft
						if x < 0 || x >= in.Shape.Cols {
							continue
						}
						best = math.Max(best, in.At(y, x, ch))
					}
				}
				out.Set(r, c, ch, best)
			}
		}
	}
	return out
}

type flatten struct{}

func (flatten) kind() string { return "flatten" }

func (flatten) outputShape(in Shape) (Shape, error) {
	return Shape{Rows: 1, Cols: 1, Channels: in.Size()}, nil
}

// forward relies on the channel-last layout already matching Keras'
// flatten order.
func (flatten) forward(in *Tensor) *Tensor {
	return &Tensor{
		Shape: Shape{Rows: 1, Cols: 1, Channels: len(in.Data)},
		Data:  append([]float64(nil), in.Data...),
	}
}

type dense struct {
	units   int
	weights *mat.Dense // inputs x units
	bias    *mat.VecDense
	act     activation
	rawW    []float64
	rawB    []float64
}

func (l *dense) kind() string { return "dense" }

func (l *dense) outputShape(in Shape) (Shape, error) {
	if in.Rows != 1 || in.Cols != 1 {
		return Shape{}, fmt.Errorf("dense expects a flattened input, got %s", in)
	}
	if want := in.Channels * l.units; len(l.rawW) != want {
		return Shape{}, fmt.Errorf("kernel has %d weights, want %d for input %s", len(l.rawW), want, in)
	}
	if len(l.rawB) != l.units {
		return Shape{}, fmt.Errorf("bias has %d values, want %d", len(l.rawB), l.units)
	}
	l.weights = mat.NewDense(in.Channels, l.units, l.rawW)
	l.bias = mat.NewVecDense(l.units, l.rawB)
	return Shape{Rows: 1, Cols: 1, Channels: l.units}, nil
}

func (l *dense) forward(in *Tensor) *Tensor {
	x := mat.NewVecDense(len(in.Data), in.Data)
	var y mat.VecDense
	y.MulVec(l.weights.T(), x)
	y.AddVec(&y, l.bias)

	out := &Tensor{Shape: Shape{Rows: 1, Cols: 1, Channels: l.units}, Data: make([]float64, l.units)}
	for i := range out.Data {
		out.Data[i] = y.AtVec(i)
	}
	if l.act != nil {
		l.act(out.Data, l.units)
	}
	return out
}

// dropout is the identity at inference time.
type dropout struct{}

func (dropout) kind() string                        { return "dropout" }
func (dropout) outputShape(in Shape) (Shape, error) { return in, nil }
func (dropout) forward(in *Tensor) *Tensor          { return in }

type activationLayer struct {
	name string
	act  activation
}

func (l *activationLayer) kind() string                        { return "activation" }
func (l *activationLayer) outputShape(in Shape) (Shape, error) { return in, nil }

func (l *activationLayer) forward(in *Tensor) *Tensor {
	out := &Tensor{Shape: in.Shape, Data: append([]float64(nil), in.Data...)}
	if l.act != nil {
		l.act(out.Data, out.Shape.Channels)
	}
	return out
}
