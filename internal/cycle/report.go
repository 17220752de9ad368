package cycle

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/banshee-data/texture.report/internal/monitoring"
	"github.com/banshee-data/texture.report/internal/skin"
	"github.com/banshee-data/texture.report/internal/texture"
)

// Reporter prints each result the way the console tool always has: the
// grid and the classification on Diag, the inference time on Timing.
type Reporter struct {
	Diag   io.Writer
	Timing io.Writer

	mu     sync.Mutex
	failed bool
}

// NewReporter returns a Reporter writing to diag and timing.
func NewReporter(diag, timing io.Writer) *Reporter {
	return &Reporter{Diag: diag, Timing: timing}
}

// Observe prints res. A write failure is logged on the diag stream once
// until a later report succeeds again.
func (p *Reporter) Observe(res texture.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if res.Grid != nil {
		if err := skin.WriteGrid(p.Diag, res.Grid); err != nil {
			errs = append(errs, fmt.Errorf("grid: %w", err))
		}
	}
	if _, err := fmt.Fprintf(p.Diag, "Rock: %s. Neural Network outcome: %.6g.\n", res.Label, res.Score); err != nil {
		errs = append(errs, fmt.Errorf("outcome: %w", err))
	}
	if _, err := fmt.Fprintf(p.Timing, "Time difference = %d[µs]\n", res.InferenceMicros()); err != nil {
		errs = append(errs, fmt.Errorf("timing: %w", err))
	}

	if len(errs) == 0 {
		p.failed = false
		return
	}
	if !p.failed {
		monitoring.Diagf("cycle %d: failed to write report: %v", res.Seq, errors.Join(errs...))
		p.failed = true
	}
}
