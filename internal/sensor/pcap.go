package sensor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/texture.report/internal/monitoring"
	"github.com/banshee-data/texture.report/internal/timeutil"
)

// PCAP replays sample frames captured in a pcap file. UDP payloads sent to
// Port are decoded like UDP datagrams.
type PCAP struct {
	Latest
	Path   string
	Port   uint16
	Taxels int

	// Realtime paces the replay by the capture timestamps using Clock.
	Realtime bool
	Clock    timeutil.Clock
}

// Run replays the capture once. It returns nil at the end of the file.
func (p *PCAP) Run(ctx context.Context) error {
	f, err := os.Open(filepath.Clean(p.Path))
	if err != nil {
		return fmt.Errorf("failed to open PCAP file %s: %w", p.Path, err)
	}
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to read PCAP header: %w", err)
	}
	clock := p.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	var (
		packets, frames int
		prev            time.Time
	)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, ci, err := r.ReadPacketData()
		if errors.Is(err, io.EOF) {
			monitoring.Opsf("PCAP replay complete: %d packets, %d frames", packets, frames)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read PCAP packet %d: %w", packets+1, err)
		}
		packets++

		packet := gopacket.NewPacket(data, r.LinkType(), gopacket.NoCopy)
		udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok || uint16(udp.DstPort) != p.Port || len(udp.Payload) == 0 {
			continue
		}

		sample, err := DecodeFrame(udp.Payload, p.Taxels)
		if err != nil {
			monitoring.Diagf("pcap: packet %d: %v", packets, err)
			continue
		}

		if p.Realtime && !prev.IsZero() {
			if err := sleep(ctx, clock, ci.Timestamp.Sub(prev)); err != nil {
				return err
			}
		}
		prev = ci.Timestamp

		p.Store(sample)
		frames++
	}
}

func sleep(ctx context.Context, clock timeutil.Clock, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := clock.NewTicker(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C():
		return nil
	}
}
