package sensor

import (
	"context"

	"github.com/banshee-data/texture.report/internal/monitoring"
	"github.com/banshee-data/texture.report/internal/serialmux"
)

// Serial keeps the latest valid sample read from a serial multiplexer.
type Serial struct {
	Latest
	mux    serialmux.SerialMuxInterface
	taxels int
}

// NewSerial returns a source fed by mux. Run must be started to consume
// lines.
func NewSerial(mux serialmux.SerialMuxInterface, taxels int) *Serial {
	return &Serial{mux: mux, taxels: taxels}
}

// Run subscribes to the multiplexer and parses lines until ctx is done or
// the subscription closes. Malformed lines are logged and dropped.
func (s *Serial) Run(ctx context.Context) error {
	id, lines := s.mux.Subscribe()
	defer s.mux.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			sample, err := ParseLine(line, s.taxels)
			if err != nil {
				monitoring.Diagf("serial: dropping line: %v", err)
				continue
			}
			s.Store(sample)
		}
	}
}
