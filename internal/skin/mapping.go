// Package skin turns raw taxel readings into the spatial grid the texture
// model consumes.
package skin

import (
	"errors"
	"fmt"

	"github.com/banshee-data/texture.report/internal/config"
)

// Layout describes the grid geometry and the number of taxels feeding it.
type Layout struct {
	Rows   int
	Cols   int
	Taxels int
}

// PalmLayout is the 9x11 palm patch fed by 48 taxels.
var PalmLayout = Layout{Rows: 9, Cols: 11, Taxels: 48}

// Validate reports whether the layout dimensions are usable.
func (l Layout) Validate() error {
	if l.Rows <= 0 || l.Cols <= 0 || l.Taxels <= 0 {
		return fmt.Errorf("invalid layout %dx%d with %d taxels", l.Rows, l.Cols, l.Taxels)
	}
	return nil
}

// Record places one taxel reading at a grid cell.
type Record struct {
	Source int
	Row    int
	Col    int
}

func (r Record) String() string {
	return fmt.Sprintf("(%d %d %d)", r.Source, r.Row, r.Col)
}

var (
	// ErrOutOfRange is matched by every *RangeError: a source, row or column
	// outside the layout, or a sample of the wrong length.
	ErrOutOfRange = errors.New("index out of range")
	// ErrDuplicateSource is returned when two records read the same taxel.
	ErrDuplicateSource = errors.New("duplicate source index")
	// ErrRecordCount is returned when the table does not hold exactly one
	// record per taxel.
	ErrRecordCount = errors.New("wrong number of mapping records")
)

// RangeError reports a mapping record or sample that does not fit the
// layout.
type RangeError struct {
	Index int    // position of the offending record in the table, -1 for the sample itself
	Field string // "source", "row", "col" or "sample"
	Value int
	Limit int
}

func (e *RangeError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s length %d out of range: want %d", e.Field, e.Value, e.Limit)
	}
	return fmt.Sprintf("record %d: %s %d out of range [0, %d)", e.Index, e.Field, e.Value, e.Limit)
}

// Is makes errors.Is(err, ErrOutOfRange) match any RangeError.
func (e *RangeError) Is(target error) bool { return target == ErrOutOfRange }

// Mapping is an immutable, validated taxel-to-grid table.
type Mapping struct {
	layout  Layout
	records []Record
}

// NewMapping validates records against layout and returns a Mapping. The
// table must hold exactly layout.Taxels records with unique source indices;
// several records may target the same cell.
func NewMapping(layout Layout, records []Record) (*Mapping, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	if len(records) != layout.Taxels {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrRecordCount, len(records), layout.Taxels)
	}

	seen := make(map[int]int, len(records))
	for i, r := range records {
		if err := checkRecord(layout, layout.Taxels, i, r); err != nil {
			return nil, err
		}
		if prev, dup := seen[r.Source]; dup {
			return nil, fmt.Errorf("%w: %d used by records %d and %d", ErrDuplicateSource, r.Source, prev, i)
		}
		seen[r.Source] = i
	}

	return &Mapping{
		layout:  layout,
		records: append([]Record(nil), records...),
	}, nil
}

func checkRecord(layout Layout, sampleLen, i int, r Record) error {
	switch {
	case r.Source < 0 || r.Source >= sampleLen:
		return &RangeError{Index: i, Field: "source", Value: r.Source, Limit: sampleLen}
	case r.Row < 0 || r.Row >= layout.Rows:
		return &RangeError{Index: i, Field: "row", Value: r.Row, Limit: layout.Rows}
	case r.Col < 0 || r.Col >= layout.Cols:
		return &RangeError{Index: i, Field: "col", Value: r.Col, Limit: layout.Cols}
	}
	return nil
}

// LoadMapping reads the mapping table stored under key and validates it.
// Unlike a bare ParseMatrix call, it fails when the table is missing, has a
// bad shape, or holds fewer records than the layout has taxels.
func LoadMapping(src config.Searchable, key string, layout Layout) (*Mapping, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}

	dst := config.NewMatrix(layout.Taxels, 3)
	n, err := config.ParseMatrix(src, key, dst)
	if err != nil {
		return nil, fmt.Errorf("failed to parse mapping: %w", err)
	}
	if n != layout.Taxels {
		return nil, fmt.Errorf("%w: %q has %d records, want %d", ErrRecordCount, key, n, layout.Taxels)
	}

	records := make([]Record, n)
	for i, row := range dst {
		records[i] = Record{Source: row[0], Row: row[1], Col: row[2]}
	}

	m, err := NewMapping(layout, records)
	if err != nil {
		return nil, fmt.Errorf("invalid mapping %q: %w", key, err)
	}
	return m, nil
}

// Layout returns the layout the mapping was validated against.
func (m *Mapping) Layout() Layout { return m.layout }

// Len returns the number of records.
func (m *Mapping) Len() int { return len(m.records) }

// Records returns a copy of the table in order.
func (m *Mapping) Records() []Record {
	return append([]Record(nil), m.records...)
}
