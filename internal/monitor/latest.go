// Package monitor exposes cycle results over HTTP and plots score history.
package monitor

import (
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/texture.report/internal/texture"
)

// Latest holds the most recent cycle result. It is safe for concurrent use
// and can be registered as a cycle observer.
type Latest struct {
	mu  sync.RWMutex
	res texture.Result
	ok  bool
}

func (l *Latest) Observe(res texture.Result) {
	if res.Grid != nil {
		res.Grid = mat.DenseCopyOf(res.Grid)
	}
	l.mu.Lock()
	l.res, l.ok = res, true
	l.mu.Unlock()
}

// Get returns the held result and whether one has been observed. The grid
// is a copy the caller may modify.
func (l *Latest) Get() (texture.Result, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	res := l.res
	if res.Grid != nil {
		res.Grid = mat.DenseCopyOf(res.Grid)
	}
	return res, l.ok
}
