package sensor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/banshee-data/texture.report/internal/monitoring"
)

// UDP keeps the latest frame received on a UDP socket. Each datagram is one
// sample encoded as little-endian float32 values.
type UDP struct {
	Latest
	taxels int
	conn   *net.UDPConn
}

// ListenUDP binds address and returns a source ready to Run.
func ListenUDP(address string, taxels int) (*UDP, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	return &UDP{taxels: taxels, conn: conn}, nil
}

// LocalAddr returns the bound address.
func (u *UDP) LocalAddr() net.Addr { return u.conn.LocalAddr() }

// Run reads datagrams until ctx is done, then closes the socket.
func (u *UDP) Run(ctx context.Context) error {
	defer u.conn.Close()
	monitoring.Opsf("UDP sample listener started on %s", u.conn.LocalAddr())

	buffer := make([]byte, 4*u.taxels+64)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		// the deadline lets the loop observe cancellation
		u.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

		n, from, err := u.conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("UDP read error: %w", err)
		}

		sample, err := DecodeFrame(buffer[:n], u.taxels)
		if err != nil {
			monitoring.Diagf("udp: dropping frame from %v: %v", from, err)
			continue
		}
		u.Store(sample)
	}
}
