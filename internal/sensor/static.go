package sensor

import "context"

// PalmSample is a recorded reading of the 48 palm taxels pressed against a
// plain surface.
var PalmSample = []float64{
	0.016324, 0.011052, 0.0, 0.0, 0.032045, 0.00948, 0.0, 0.041052,
	0.356333, 0.231177, 0.016335, 0.008576, 0.004727, 0.007105, 0.000235, 0.002808,
	0.0, 0.0, 0.005235, 0.039933, 0.0, 0.001473, 0.010042, 0.0,
	0.0, 0.0, 0.0, 0.000712, 0.001597, 0.0, 0.0, 0.0,
	0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0,
	0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0,
}

// Static returns the same vector on every call.
type Static struct {
	values []float64
}

// NewStatic copies values into a Static source. A nil slice selects
// PalmSample.
func NewStatic(values []float64) *Static {
	if values == nil {
		values = PalmSample
	}
	return &Static{values: append([]float64(nil), values...)}
}

func (s *Static) Sample(ctx context.Context) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]float64(nil), s.values...), nil
}
