package config

import (
	"fmt"
	"time"
)

// DefaultConfigPath is where the daemon looks for its properties file.
const DefaultConfigPath = "config.ini"

// MappingKey is the properties key holding the palm taxel mapping table.
const MappingKey = "palm_skin_mapping"

// DefaultModelPath is the model artifact location relative to the working
// directory of the daemon.
const DefaultModelPath = "../model/model_images_v0.json"

// Settings are the optional run parameters that may appear alongside the
// mapping table. Unset fields fall back to the defaults returned by the Get
// accessors.
type Settings struct {
	ModelPath  *string
	PeriodMs   *int
	GridRows   *int
	GridCols   *int
	TaxelCount *int
}

// LoadSettings extracts the run parameters from p and validates them.
func LoadSettings(p Searchable) (*Settings, error) {
	s := &Settings{}

	if v := p.Find("model_path"); !v.IsNull() {
		str, ok := v.Str()
		if !ok {
			return nil, fmt.Errorf("model_path must be a string, got %s", v)
		}
		s.ModelPath = &str
	}

	ints := []struct {
		key string
		dst **int
	}{
		{"period_ms", &s.PeriodMs},
		{"grid_rows", &s.GridRows},
		{"grid_cols", &s.GridCols},
		{"taxel_count", &s.TaxelCount},
	}
	for _, f := range ints {
		v := p.Find(f.key)
		if v.IsNull() {
			continue
		}
		n, ok := v.Float64()
		if !ok || n != float64(int(n)) {
			return nil, fmt.Errorf("%s must be an integer, got %s", f.key, v)
		}
		i := int(n)
		*f.dst = &i
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return s, nil
}

// Validate checks that any set fields are in range.
func (s *Settings) Validate() error {
	if s.ModelPath != nil && *s.ModelPath == "" {
		return fmt.Errorf("model_path must not be empty")
	}
	if s.PeriodMs != nil && *s.PeriodMs <= 0 {
		return fmt.Errorf("period_ms must be positive, got %d", *s.PeriodMs)
	}
	if s.GridRows != nil && *s.GridRows <= 0 {
		return fmt.Errorf("grid_rows must be positive, got %d", *s.GridRows)
	}
	if s.GridCols != nil && *s.GridCols <= 0 {
		return fmt.Errorf("grid_cols must be positive, got %d", *s.GridCols)
	}
	if s.TaxelCount != nil && *s.TaxelCount <= 0 {
		return fmt.Errorf("taxel_count must be positive, got %d", *s.TaxelCount)
	}
	return nil
}

// GetModelPath returns the model_path value or the default.
func (s *Settings) GetModelPath() string {
	if s.ModelPath == nil {
		return DefaultModelPath
	}
	return *s.ModelPath
}

// GetPeriod returns the cycle period or the default of one second.
func (s *Settings) GetPeriod() time.Duration {
	if s.PeriodMs == nil {
		return time.Second
	}
	return time.Duration(*s.PeriodMs) * time.Millisecond
}

// GetGridRows returns the grid_rows value or the palm default.
func (s *Settings) GetGridRows() int {
	if s.GridRows == nil {
		return 9
	}
	return *s.GridRows
}

// GetGridCols returns the grid_cols value or the palm default.
func (s *Settings) GetGridCols() int {
	if s.GridCols == nil {
		return 11
	}
	return *s.GridCols
}

// GetTaxelCount returns the taxel_count value or the palm default.
func (s *Settings) GetTaxelCount() int {
	if s.TaxelCount == nil {
		return 48
	}
	return *s.TaxelCount
}
