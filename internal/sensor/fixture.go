package sensor

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const maxFixtureSize = 16 * 1024 * 1024

// Fixture replays the samples of a text file, one per call, wrapping around
// at the end. Blank lines and lines starting with '#' are skipped.
type Fixture struct {
	mu      sync.Mutex
	samples [][]float64
	next    int
}

// LoadFixture reads every sample from path. Each line must hold exactly
// taxels values.
func LoadFixture(path string, taxels int) (*Fixture, error) {
	cleanPath := filepath.Clean(path)
	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat fixture: %w", err)
	}
	if info.Size() > maxFixtureSize {
		return nil, fmt.Errorf("fixture too large: %d bytes (max %d)", info.Size(), maxFixtureSize)
	}

	f, err := os.Open(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixture: %w", err)
	}
	defer f.Close()

	var samples [][]float64
	scan := bufio.NewScanner(f)
	lineNo := 0
	for scan.Scan() {
		lineNo++
		line := strings.TrimSpace(scan.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		s, err := ParseLine(line, taxels)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", cleanPath, lineNo, err)
		}
		samples = append(samples, s)
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("fixture %s has no samples", cleanPath)
	}
	return &Fixture{samples: samples}, nil
}

// Len returns the number of samples in the fixture.
func (f *Fixture) Len() int { return len(f.samples) }

func (f *Fixture) Sample(ctx context.Context) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.samples[f.next]
	f.next = (f.next + 1) % len(f.samples)
	return append([]float64(nil), s...), nil
}
