package skin

import (
	"fmt"
	"io"

	"gonum.org/v1/gonum/mat"
)

// Assemble builds a fresh grid from one sample. Cells are zero unless a
// record targets them; when several records target one cell the last record
// in table order wins.
//
// The sample must hold exactly Layout().Taxels readings.
func (m *Mapping) Assemble(sample []float64) (*mat.Dense, error) {
	return assemble(m.layout, m.records, sample)
}

// assemble is the bounds-checked remap shared by Mapping and tests that
// exercise records a Mapping would reject.
func assemble(layout Layout, records []Record, sample []float64) (*mat.Dense, error) {
	if len(sample) != layout.Taxels {
		return nil, &RangeError{Index: -1, Field: "sample", Value: len(sample), Limit: layout.Taxels}
	}

	grid := mat.NewDense(layout.Rows, layout.Cols, nil)
	for i, r := range records {
		if err := checkRecord(layout, len(sample), i, r); err != nil {
			return nil, err
		}
		grid.Set(r.Row, r.Col, sample[r.Source])
	}
	return grid, nil
}

// WriteGrid dumps g as aligned rows, one grid row per line.
func WriteGrid(w io.Writer, g mat.Matrix) error {
	_, err := fmt.Fprintf(w, "%v\n", mat.Formatted(g, mat.Squeeze()))
	return err
}
