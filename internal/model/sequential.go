package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotSingleOutput is returned by PredictSingle when the network does
// not end in exactly one value.
var ErrNotSingleOutput = errors.New("model output is not a single value")

// File is the JSON artifact layout.
type File struct {
	Name       string      `json:"name"`
	InputShape []int       `json:"input_shape"`
	Layers     []LayerSpec `json:"layers"`
}

// LayerSpec describes one layer. Which fields are used depends on Type.
// Convolution kernels are stored [kh][kw][in][filters] and dense kernels
// [in][units], both flattened row-major as Keras exports them.
type LayerSpec struct {
	Type       string    `json:"type"`
	Name       string    `json:"name,omitempty"`
	Activation string    `json:"activation,omitempty"`
	Filters    int       `json:"filters,omitempty"`
	KernelSize []int     `json:"kernel_size,omitempty"`
	Strides    []int     `json:"strides,omitempty"`
	Padding    string    `json:"padding,omitempty"`
	PoolSize   []int     `json:"pool_size,omitempty"`
	Units      int       `json:"units,omitempty"`
	Rate       float64   `json:"rate,omitempty"`
	Kernel     []float64 `json:"kernel,omitempty"`
	Bias       []float64 `json:"bias,omitempty"`
}

// Sequential is a loaded, shape-checked network.
type Sequential struct {
	name   string
	input  Shape
	output Shape
	layers []layer
}

const maxModelSize = 64 * 1024 * 1024

// Load reads and builds the model artifact at path.
func Load(path string) (*Sequential, error) {
	cleanPath := filepath.Clean(path)
	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat model file: %w", err)
	}
	if info.Size() > maxModelSize {
		return nil, fmt.Errorf("model file too large: %d bytes (max %d)", info.Size(), maxModelSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse model JSON: %w", err)
	}

	m, err := Build(f)
	if err != nil {
		return nil, fmt.Errorf("invalid model %s: %w", cleanPath, err)
	}
	return m, nil
}

// Build constructs a Sequential from an in-memory description, propagating
// the input shape through every layer.
func Build(f File) (*Sequential, error) {
	if len(f.InputShape) != 3 {
		return nil, fmt.Errorf("input_shape must have 3 dimensions, got %v", f.InputShape)
	}
	in := Shape{Rows: f.InputShape[0], Cols: f.InputShape[1], Channels: f.InputShape[2]}
	if !in.valid() {
		return nil, fmt.Errorf("input_shape must be positive, got %v", f.InputShape)
	}
	if len(f.Layers) == 0 {
		return nil, fmt.Errorf("model has no layers")
	}

	m := &Sequential{name: f.Name, input: in}
	shape := in
	for i, spec := range f.Layers {
		l, err := newLayer(spec)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, spec.Type, err)
		}
		next, err := l.outputShape(shape)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, spec.Type, err)
		}
		m.layers = append(m.layers, l)
		shape = next
	}
	m.output = shape
	return m, nil
}

func pair(v []int, def [2]int, field string) ([2]int, error) {
	switch len(v) {
	case 0:
		return def, nil
	case 1:
		v = []int{v[0], v[0]}
	case 2:
	default:
		return def, fmt.Errorf("%s must have 1 or 2 values, got %v", field, v)
	}
	if v[0] <= 0 || v[1] <= 0 {
		return def, fmt.Errorf("%s must be positive, got %v", field, v)
	}
	return [2]int{v[0], v[1]}, nil
}

func newLayer(spec LayerSpec) (layer, error) {
	act, err := lookupActivation(spec.Activation)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(spec.Type) {
	case "conv2d":
		if spec.Filters <= 0 {
			return nil, fmt.Errorf("filters must be positive")
		}
		k, err := pair(spec.KernelSize, [2]int{}, "kernel_size")
		if err != nil {
			return nil, err
		}
		if k == [2]int{} {
			return nil, fmt.Errorf("kernel_size is required")
		}
		s, err := pair(spec.Strides, [2]int{1, 1}, "strides")
		if err != nil {
			return nil, err
		}
		return &conv2D{
			filters: spec.Filters,
			kh:      k[0], kw: k[1],
			sh: s[0], sw: s[1],
			padding: spec.Padding,
			kernel:  spec.Kernel,
			bias:    spec.Bias,
			act:     act,
		}, nil

	case "max_pooling2d":
		p, err := pair(spec.PoolSize, [2]int{2, 2}, "pool_size")
		if err != nil {
			return nil, err
		}
		s, err := pair(spec.Strides, p, "strides")
		if err != nil {
			return nil, err
		}
		return &maxPool2D{ph: p[0], pw: p[1], sh: s[0], sw: s[1], padding: spec.Padding}, nil

	case "flatten":
		return flatten{}, nil

	case "dense":
		if spec.Units <= 0 {
			return nil, fmt.Errorf("units must be positive")
		}
		return &dense{
			units: spec.Units,
			rawW:  spec.Kernel,
			rawB:  spec.Bias,
			act:   act,
		}, nil

	case "dropout":
		return dropout{}, nil

	case "activation":
		return &activationLayer{name: spec.Activation, act: act}, nil
	}
	return nil, fmt.Errorf("unsupported layer type %q", spec.Type)
}

// Name returns the model name recorded in the artifact.
func (m *Sequential) Name() string { return m.name }

// InputShape returns the expected input shape.
func (m *Sequential) InputShape() Shape { return m.input }

// OutputShape returns the shape produced by the last layer.
func (m *Sequential) OutputShape() Shape { return m.output }

// Summary lists the layers for startup logs.
func (m *Sequential) Summary() string {
	kinds := make([]string, len(m.layers))
	for i, l := range m.layers {
		kinds[i] = l.kind()
	}
	return fmt.Sprintf("%s %s -> [%s] -> %s", m.name, m.input, strings.Join(kinds, ", "), m.output)
}

// Predict runs the network on in.
func (m *Sequential) Predict(ctx context.Context, in *Tensor) (*Tensor, error) {
	if in == nil {
		return nil, fmt.Errorf("nil input tensor")
	}
	if in.Shape != m.input {
		return nil, fmt.Errorf("input shape %s does not match model input %s", in.Shape, m.input)
	}
	if len(in.Data) != in.Shape.Size() {
		return nil, fmt.Errorf("input has %d values for shape %s", len(in.Data), in.Shape)
	}

	t := in
	for _, l := range m.layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t = l.forward(t)
	}
	return t, nil
}

// PredictSingle runs the network and returns its only output value.
func (m *Sequential) PredictSingle(ctx context.Context, in *Tensor) (float64, error) {
	if m.output.Size() != 1 {
		return 0, fmt.Errorf("%w: output shape %s", ErrNotSingleOutput, m.output)
	}
	out, err := m.Predict(ctx, in)
	if err != nil {
		return 0, err
	}
	return out.Data[0], nil
}
