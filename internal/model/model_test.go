package model

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestFromGrid_ChannelLast(t *testing.T) {
	grid := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	tensor := FromGrid(grid)

	assert.Equal(t, Shape{Rows: 2, Cols: 3, Channels: 1}, tensor.Shape)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, tensor.Data)
	assert.Equal(t, 6.0, tensor.At(1, 2, 0))
}

func TestDense_SigmoidOutput(t *testing.T) {
	m, err := Build(File{
		Name:       "tiny",
		InputShape: []int{1, 2, 1},
		Layers: []LayerSpec{
			{Type: "flatten"},
			{Type: "dense", Units: 1, Activation: "sigmoid", Kernel: []float64{1, -2}, Bias: []float64{0.5}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, Shape{Rows: 1, Cols: 1, Channels: 1}, m.OutputShape())

	in := &Tensor{Shape: Shape{Rows: 1, Cols: 2, Channels: 1}, Data: []float64{0.2, 0.9}}
	got, err := m.PredictSingle(context.Background(), in)
	require.NoError(t, err)

	z := 0.2*1 + 0.9*-2 + 0.5
	assert.InDelta(t, 1/(1+math.Exp(-z)), got, 1e-12)
}

func TestDense_MultipleUnits(t *testing.T) {
	// kernel is [in][units]: inputs (1, 2), units (a, b, c)
	m, err := Build(File{
		InputShape: []int{1, 1, 2},
		Layers: []LayerSpec{{
			Type:   "dense",
			Units:  3,
			Kernel: []float64{1, 0, 2, 0, 1, 3},
			Bias:   []float64{0, 0, -1},
		}},
	})
	require.NoError(t, err)

	out, err := m.Predict(context.Background(), &Tensor{Shape: Shape{1, 1, 2}, Data: []float64{2, 5}})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 5, 2*2 + 5*3 - 1}, out.Data)

	_, err = m.PredictSingle(context.Background(), &Tensor{Shape: Shape{1, 1, 2}, Data: []float64{2, 5}})
	assert.ErrorIs(t, err, ErrNotSingleOutput)
}

func TestConv2D_Valid(t *testing.T) {
	// 3x3 input, 2x2 kernel of ones, one filter.
	m, err := Build(File{
		InputShape: []int{3, 3, 1},
		Layers: []LayerSpec{{
			Type:       "conv2d",
			Filters:    1,
			KernelSize: []int{2, 2},
			Kernel:     []float64{1, 1, 1, 1},
			Bias:       []float64{0.5},
		}},
	})
	require.NoError(t, err)
	require.Equal(t, Shape{2, 2, 1}, m.OutputShape())

	in := &Tensor{Shape: Shape{3, 3, 1}, Data: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}}
	out, err := m.Predict(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []float64{12.5, 16.5, 24.5, 28.5}, out.Data)
}

func TestConv2D_SamePaddingAndChannels(t *testing.T) {
	// 2x2 input with 2 channels; 3x3 kernel that only reads the centre tap,
	// channel 0 into filter 0 and channel 1 doubled into filter 1.
	kernel := make([]float64, 3*3*2*2)
	centre := (1*3 + 1) * 2 * 2
	kernel[centre+0*2+0] = 1
	kernel[centre+1*2+1] = 2

	m, err := Build(File{
		InputShape: []int{2, 2, 2},
		Layers: []LayerSpec{{
			Type:       "conv2d",
			Filters:    2,
			KernelSize: []int{3},
			Padding:    "same",
			Activation: "relu",
			Kernel:     kernel,
			Bias:       []float64{0, 0},
		}},
	})
	require.NoError(t, err)
	require.Equal(t, Shape{2, 2, 2}, m.OutputShape())

	in := NewTensor(Shape{2, 2, 2})
	in.Set(0, 0, 0, 1)
	in.Set(0, 1, 1, 3)
	in.Set(1, 1, 0, -4)
	out, err := m.Predict(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, 1.0, out.At(0, 0, 0))
	assert.Equal(t, 6.0, out.At(0, 1, 1))
	assert.Equal(t, 0.0, out.At(1, 1, 0), "relu clamps negatives")
}

func TestMaxPool2D(t *testing.T) {
	m, err := Build(File{
		InputShape: []int{2, 4, 1},
		Layers:     []LayerSpec{{Type: "max_pooling2d", PoolSize: []int{2, 2}}},
	})
	require.NoError(t, err)
	require.Equal(t, Shape{1, 2, 1}, m.OutputShape())

	in := &Tensor{Shape: Shape{2, 4, 1}, Data: []float64{1, 5, -2, -3, 4, 2, -1, -9}}
	out, err := m.Predict(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []float64{5, -1}, out.Data)
}

func TestActivations(t *testing.T) {
	for _, tt := range []struct {
		name string
		in   []float64
		want []float64
	}{
		{"linear", []float64{-1, 2}, []float64{-1, 2}},
		{"relu", []float64{-1, 2}, []float64{0, 2}},
		{"tanh", []float64{0, 0}, []float64{0, 0}},
		{"softmax", []float64{0, 0}, []float64{0.5, 0.5}},
		{"sigmoid", []float64{0, 0}, []float64{0.5, 0.5}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Build(File{
				InputShape: []int{1, 1, 2},
				Layers:     []LayerSpec{{Type: "activation", Activation: tt.name}, {Type: "dropout", Rate: 0.5}},
			})
			require.NoError(t, err)
			out, err := m.Predict(context.Background(), &Tensor{Shape: Shape{1, 1, 2}, Data: tt.in})
			require.NoError(t, err)
			assert.InDeltaSlice(t, tt.want, out.Data, 1e-12)
		})
	}
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name string
		file File
		want string
	}{
		{"bad input shape", File{InputShape: []int{9, 11}}, "3 dimensions"},
		{"zero input", File{InputShape: []int{0, 1, 1}, Layers: []LayerSpec{{Type: "flatten"}}}, "positive"},
		{"no layers", File{InputShape: []int{1, 1, 1}}, "no layers"},
		{"unknown layer", File{InputShape: []int{1, 1, 1}, Layers: []LayerSpec{{Type: "lstm"}}}, "unsupported layer"},
		{"unknown activation", File{InputShape: []int{1, 1, 1}, Layers: []LayerSpec{{Type: "activation", Activation: "gelu"}}}, "unsupported activation"},
		{"dense needs flatten", File{InputShape: []int{2, 2, 1}, Layers: []LayerSpec{{Type: "dense", Units: 1, Kernel: []float64{1}, Bias: []float64{0}}}}, "flattened"},
		{"dense kernel size", File{InputShape: []int{1, 1, 2}, Layers: []LayerSpec{{Type: "dense", Units: 1, Kernel: []float64{1}, Bias: []float64{0}}}}, "kernel has 1 weights"},
		{"dense bias size", File{InputShape: []int{1, 1, 1}, Layers: []LayerSpec{{Type: "dense", Units: 1, Kernel: []float64{1}}}}, "bias has 0 values"},
		{"conv kernel size", File{InputShape: []int{3, 3, 1}, Layers: []LayerSpec{{Type: "conv2d", Filters: 1, KernelSize: []int{2, 2}, Kernel: []float64{1}, Bias: []float64{0}}}}, "kernel has 1 weights"},
		{"conv missing kernel size", File{InputShape: []int{3, 3, 1}, Layers: []LayerSpec{{Type: "conv2d", Filters: 1}}}, "kernel_size is required"},
		{"conv window too big", File{InputShape: []int{1, 1, 1}, Layers: []LayerSpec{{Type: "conv2d", Filters: 1, KernelSize: []int{2}, Kernel: make([]float64, 4), Bias: []float64{0}}}}, "larger than input"},
		{"bad padding", File{InputShape: []int{2, 2, 1}, Layers: []LayerSpec{{Type: "max_pooling2d", Padding: "reflect"}}}, "unsupported padding"},
		{"bad strides", File{InputShape: []int{2, 2, 1}, Layers: []LayerSpec{{Type: "max_pooling2d", Strides: []int{0}}}}, "strides must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.file)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPredict_InputShapeMismatch(t *testing.T) {
	m, err := Build(File{InputShape: []int{1, 2, 1}, Layers: []LayerSpec{{Type: "flatten"}}})
	require.NoError(t, err)

	_, err = m.Predict(context.Background(), NewTensor(Shape{2, 1, 1}))
	assert.ErrorContains(t, err, "does not match")

	_, err = m.Predict(context.Background(), &Tensor{Shape: Shape{1, 2, 1}, Data: []float64{1}})
	assert.ErrorContains(t, err, "values for shape")

	_, err = m.Predict(context.Background(), nil)
	assert.Error(t, err)
}

func TestPredict_Cancelled(t *testing.T) {
	m, err := Build(File{InputShape: []int{1, 1, 1}, Layers: []LayerSpec{{Type: "flatten"}}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Predict(ctx, NewTensor(Shape{1, 1, 1}))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.json")

	data, err := json.Marshal(File{
		Name:       "roundtrip",
		InputShape: []int{1, 2, 1},
		Layers: []LayerSpec{
			{Type: "flatten"},
			{Type: "dense", Units: 1, Kernel: []float64{1, 1}, Bias: []float64{0}},
		},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "roundtrip", m.Name())
	assert.Equal(t, Shape{1, 2, 1}, m.InputShape())
	assert.Contains(t, m.Summary(), "flatten, dense")

	_, err = Load(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0644))
	_, err = Load(bad)
	assert.ErrorContains(t, err, "failed to parse model JSON")
}

func TestLoad_ShippedModel(t *testing.T) {
	m, err := Load(filepath.Join("..", "..", "model", "model_images_v0.json"))
	require.NoError(t, err)
	require.Equal(t, Shape{9, 11, 1}, m.InputShape())

	score, err := m.PredictSingle(context.Background(), NewTensor(m.InputShape()))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
}

func TestPredictorFunc(t *testing.T) {
	var p Predictor = PredictorFunc(func(context.Context, *Tensor) (float64, error) { return 0.42, nil })
	got, err := p.PredictSingle(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0.42, got)
}
