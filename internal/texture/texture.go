// Package texture maps classifier scores onto surface labels.
package texture

import (
	"time"

	"gonum.org/v1/gonum/mat"
)

// Label is the binary surface texture.
type Label string

const (
	Plain Label = "plain"
	Rough Label = "rough"
)

// Threshold separates plain from rough. Scores at or above it are rough.
const Threshold = 0.5

// Classify returns Plain for scores below Threshold and Rough otherwise.
func Classify(score float64) Label {
	if score < Threshold {
		return Plain
	}
	return Rough
}

// Result is the outcome of one inference cycle.
type Result struct {
	RunID     string        `json:"run_id"`
	Seq       uint64        `json:"seq"`
	Timestamp time.Time     `json:"timestamp"`
	Score     float64       `json:"score"`
	Label     Label         `json:"label"`
	Inference time.Duration `json:"inference_ns"`
	Grid      *mat.Dense    `json:"-"`
}

// InferenceMicros returns the inference time in whole microseconds.
func (r Result) InferenceMicros() int64 {
	return r.Inference.Microseconds()
}
