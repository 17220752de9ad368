package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMatrix(t *testing.T) {
	props, err := ParseString("m ((0 1 2) (3.9 4 5) (6 7 8 99))\n")
	require.NoError(t, err)

	dst := NewMatrix(3, 3)
	n, err := ParseMatrix(props, "m", dst)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	want := [][]int{{0, 1, 2}, {3, 4, 5}, {6, 7, 8}}
	if diff := cmp.Diff(want, dst); diff != "" {
		t.Errorf("ParseMatrix mismatch (-want +got):\n%s", diff)
	}
}

func TestParseMatrix_TruncatesTowardZero(t *testing.T) {
	props := fakeSource{"m": List(List(Number(2.99), Number(-1.7), Number(0.2)))}
	dst := NewMatrix(1, 3)
	_, err := ParseMatrix(props, "m", dst)
	require.NoError(t, err)
	assert.Equal(t, []int{2, -1, 0}, dst[0])
}

func TestParseMatrix_FewerRowsThanDestination(t *testing.T) {
	props := fakeSource{"m": List(List(Number(1), Number(2), Number(3)))}
	dst := NewMatrix(2, 3)
	n, err := ParseMatrix(props, "m", dst)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int{0, 0, 0}, dst[1])
}

func TestParseMatrix_Errors(t *testing.T) {
	row := func(vs ...float64) Value {
		out := make([]Value, len(vs))
		for i, v := range vs {
			out[i] = Number(v)
		}
		return List(out...)
	}

	tests := []struct {
		name    string
		value   Value
		wantErr error
		wantN   int
	}{
		{"missing key", Null, ErrKeyNotFound, 0},
		{"scalar value", Number(3), ErrNotList, 0},
		{"string value", String("abc"), ErrNotList, 0},
		{"row not list", List(row(0, 0, 0), Number(4)), ErrRowNotList, 1},
		{"row too short", List(row(0, 0, 0), row(1, 1)), ErrRowTooShort, 1},
		{"non numeric", List(List(Number(1), String("x"), Number(2))), ErrNotNumber, 0},
		{"too many rows", List(row(0, 0, 0), row(1, 1, 1), row(2, 2, 2)), ErrTooManyRows, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := fakeSource{}
			if !tt.value.IsNull() {
				src["m"] = tt.value
			}
			dst := NewMatrix(2, 3)
			n, err := ParseMatrix(src, "m", dst)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantN, n)
		})
	}
}

func TestParseMatrix_PartialWriteKept(t *testing.T) {
	src := fakeSource{"m": List(
		List(Number(7), Number(8), Number(9)),
		String("broken"),
	)}
	dst := NewMatrix(2, 3)
	_, err := ParseMatrix(src, "m", dst)
	require.ErrorIs(t, err, ErrRowNotList)
	assert.Equal(t, []int{7, 8, 9}, dst[0])
	assert.Equal(t, []int{0, 0, 0}, dst[1])
}

func TestNewMatrix_RowsDoNotOverlap(t *testing.T) {
	m := NewMatrix(2, 2)
	m[0] = append(m[0], 5)
	assert.Equal(t, []int{0, 0}, m[1])
}

type fakeSource map[string]Value

func (f fakeSource) Find(key string) Value { return f[key] }
