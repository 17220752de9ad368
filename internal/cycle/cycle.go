// Package cycle runs the periodic sample, assemble, infer and report loop.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/texture.report/internal/model"
	"github.com/banshee-data/texture.report/internal/monitoring"
	"github.com/banshee-data/texture.report/internal/sensor"
	"github.com/banshee-data/texture.report/internal/skin"
	"github.com/banshee-data/texture.report/internal/texture"
	"github.com/banshee-data/texture.report/internal/timeutil"
)

// DefaultInterval is the pause between cycles when none is configured.
const DefaultInterval = time.Second

// ErrNonFiniteScore is returned by Step when the predictor yields NaN or an
// infinity, which has no label.
var ErrNonFiniteScore = errors.New("non-finite model score")

// Observer receives the result of every successful cycle. Observe is
// called on the cycle goroutine and should not block for long.
type Observer interface {
	Observe(res texture.Result)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(res texture.Result)

func (f ObserverFunc) Observe(res texture.Result) { f(res) }

// Runner holds everything a cycle needs. Mapping and Predictor are loaded
// once at startup and shared read-only.
type Runner struct {
	Source    sensor.Source
	Mapping   *skin.Mapping
	Predictor model.Predictor
	Clock     timeutil.Clock
	Interval  time.Duration
	RunID     string
	Observers []Observer

	seq uint64
}

func (r *Runner) clock() timeutil.Clock {
	if r.Clock == nil {
		return timeutil.RealClock{}
	}
	return r.Clock
}

func (r *Runner) interval() time.Duration {
	if r.Interval <= 0 {
		return DefaultInterval
	}
	return r.Interval
}

// Step performs one cycle without notifying observers. The returned
// Inference duration covers only the predictor call.
func (r *Runner) Step(ctx context.Context) (texture.Result, error) {
	sample, err := r.Source.Sample(ctx)
	if err != nil {
		return texture.Result{}, fmt.Errorf("failed to read sample: %w", err)
	}
	for i, v := range sample {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return texture.Result{}, fmt.Errorf("sample value %d: %w", i, sensor.ErrNonFinite)
		}
	}

	grid, err := r.Mapping.Assemble(sample)
	if err != nil {
		return texture.Result{}, fmt.Errorf("failed to assemble grid: %w", err)
	}

	clock := r.clock()
	start := clock.Now()
	score, err := r.Predictor.PredictSingle(ctx, model.FromGrid(grid))
	elapsed := clock.Since(start)
	if err != nil {
		return texture.Result{}, fmt.Errorf("prediction failed: %w", err)
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return texture.Result{}, fmt.Errorf("prediction failed: %w: %v", ErrNonFiniteScore, score)
	}

	r.seq++
	return texture.Result{
		RunID:     r.RunID,
		Seq:       r.seq,
		Timestamp: start,
		Score:     score,
		Label:     texture.Classify(score),
		Inference: elapsed,
		Grid:      grid,
	}, nil
}

// Run executes a cycle immediately and then once per interval until ctx is
// cancelled, returning ctx.Err(). Failed cycles are logged and skipped.
func (r *Runner) Run(ctx context.Context) error {
	ticker := r.clock().NewTicker(r.interval())
	defer ticker.Stop()

	monitoring.Opsf("inference cycle started: run=%s interval=%v", r.RunID, r.interval())
	r.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			monitoring.Opsf("inference cycle stopping after %d results", r.seq)
			return ctx.Err()
		case <-ticker.C():
			r.cycle(ctx)
		}
	}
}

func (r *Runner) cycle(ctx context.Context) {
	res, err := r.Step(ctx)
	switch {
	case err == nil:
	case errors.Is(err, sensor.ErrNoSample):
		monitoring.Diagf("skipping cycle: %v", err)
		return
	case ctx.Err() != nil:
		return
	default:
		monitoring.Opsf("cycle error: %v", err)
		return
	}

	monitoring.Tracef("cycle %d: score=%v label=%s inference=%v", res.Seq, res.Score, res.Label, res.Inference)
	for _, o := range r.Observers {
		o.Observe(res)
	}
}
