package config

import (
	"errors"
	"fmt"
)

var (
	// ErrKeyNotFound is returned when the key is absent from the source.
	ErrKeyNotFound = errors.New("key not found")
	// ErrNotList is returned when the value under the key is not a list.
	ErrNotList = errors.New("value is not a list")
	// ErrRowNotList is returned when an element of the outer list is not a list.
	ErrRowNotList = errors.New("row is not a list")
	// ErrTooManyRows is returned when the source has more rows than dst.
	ErrTooManyRows = errors.New("more rows than destination")
	// ErrRowTooShort is returned when a row has fewer elements than dst columns.
	ErrRowTooShort = errors.New("row has fewer elements than destination")
	// ErrNotNumber is returned when an element read into dst is not numeric.
	ErrNotNumber = errors.New("element is not a number")
)

// ParseMatrix reads the two-level list stored under key into dst, whose
// rows must already be sized. Elements are read as floats and truncated
// toward zero. Extra elements in a source row are ignored.
//
// ParseMatrix returns the number of rows written. On failure dst keeps
// whatever rows were written before the failing one.
func ParseMatrix(src Searchable, key string, dst [][]int) (int, error) {
	v := src.Find(key)
	if v.IsNull() {
		return 0, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	if !v.IsList() {
		return 0, fmt.Errorf("%w: %q is %s", ErrNotList, key, v)
	}

	rows := v.List()
	if len(rows) > len(dst) {
		return 0, fmt.Errorf("%w: %q has %d rows, destination holds %d", ErrTooManyRows, key, len(rows), len(dst))
	}

	for r, inner := range rows {
		if !inner.IsList() {
			return r, fmt.Errorf("%w: %q row %d is %s", ErrRowNotList, key, r, inner)
		}
		elems := inner.List()
		if len(elems) < len(dst[r]) {
			return r, fmt.Errorf("%w: %q row %d has %d elements, want %d", ErrRowTooShort, key, r, len(elems), len(dst[r]))
		}
		for c := range dst[r] {
			f, ok := elems[c].Float64()
			if !ok {
				return r, fmt.Errorf("%w: %q row %d column %d is %s", ErrNotNumber, key, r, c, elems[c])
			}
			dst[r][c] = int(f)
		}
	}
	return len(rows), nil
}

// NewMatrix allocates a rows x cols destination for ParseMatrix.
func NewMatrix(rows, cols int) [][]int {
	backing := make([]int, rows*cols)
	m := make([][]int, rows)
	for r := range m {
		m[r] = backing[r*cols : (r+1)*cols : (r+1)*cols]
	}
	return m
}
