// Package sensor provides the taxel sample sources read by the inference
// cycle.
package sensor

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
)

// ErrNoSample is returned by a Source that has not received any data yet.
var ErrNoSample = errors.New("no sample available")

// ErrTaxelCount is returned when a line or frame carries the wrong number
// of taxel values.
var ErrTaxelCount = errors.New("wrong taxel count")

// ErrNonFinite is returned when a taxel reading is NaN or infinite.
var ErrNonFinite = errors.New("non-finite taxel value")

// Source yields one raw taxel vector per call.
type Source interface {
	Sample(ctx context.Context) ([]float64, error)
}

// ParseLine parses a line of taxel readings separated by commas, spaces or
// tabs. Exactly n finite values are required.
func ParseLine(line string, n int) ([]float64, error) {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == ';'
	})
	if len(fields) != n {
		return nil, fmt.Errorf("%w: got %d values, want %d", ErrTaxelCount, len(fields), n)
	}
	out := make([]float64, n)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("value %d: %w: %s", i, ErrNonFinite, f)
		}
		out[i] = v
	}
	return out, nil
}

// DecodeFrame decodes a binary frame of n little-endian float32 values.
func DecodeFrame(frame []byte, n int) ([]float64, error) {
	if len(frame) != 4*n {
		return nil, fmt.Errorf("%w: frame has %d bytes, want %d", ErrTaxelCount, len(frame), 4*n)
	}
	out := make([]float64, n)
	for i := range out {
		bits := binary.LittleEndian.Uint32(frame[4*i:])
		v := float64(math.Float32frombits(bits))
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("value %d: %w", i, ErrNonFinite)
		}
		out[i] = v
	}
	return out, nil
}

// EncodeFrame is the inverse of DecodeFrame.
func EncodeFrame(sample []float64) []byte {
	frame := make([]byte, 4*len(sample))
	for i, v := range sample {
		binary.LittleEndian.PutUint32(frame[4*i:], math.Float32bits(float32(v)))
	}
	return frame
}

// Latest holds the most recent sample pushed by a streaming source.
type Latest struct {
	mu     sync.RWMutex
	sample []float64
	count  uint64
}

// Store replaces the held sample with a copy of s.
func (l *Latest) Store(s []float64) {
	c := append([]float64(nil), s...)
	l.mu.Lock()
	l.sample = c
	l.count++
	l.mu.Unlock()
}

// Sample returns a copy of the held sample, or ErrNoSample.
func (l *Latest) Sample(ctx context.Context) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.sample == nil {
		return nil, ErrNoSample
	}
	return append([]float64(nil), l.sample...), nil
}

// Count returns how many samples have been stored.
func (l *Latest) Count() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}
