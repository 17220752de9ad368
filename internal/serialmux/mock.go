package serialmux

import (
	"bytes"
	"io"
	"sync"
)

// MockSerialPort implements SerialPorter over an in-memory pipe. Lines
// passed to Feed are read back by Monitor; writes are captured for
// inspection.
type MockSerialPort struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu      sync.Mutex
	written bytes.Buffer
	closed  bool
}

// NewMockSerialPort returns an open mock port.
func NewMockSerialPort() *MockSerialPort {
	r, w := io.Pipe()
	return &MockSerialPort{r: r, w: w}
}

// NewMockSerialMux wraps a new mock port in a SerialMux.
func NewMockSerialMux() (*SerialMux[*MockSerialPort], *MockSerialPort) {
	port := NewMockSerialPort()
	return NewSerialMux(port), port
}

func (m *MockSerialPort) Read(p []byte) (int, error) { return m.r.Read(p) }

func (m *MockSerialPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, io.ErrClosedPipe
	}
	return m.written.Write(p)
}

// Feed makes line available to readers. It blocks until the line has been
// consumed.
func (m *MockSerialPort) Feed(line string) error {
	_, err := m.w.Write([]byte(line + "\n"))
	return err
}

// Hangup signals EOF to readers, as if the device was unplugged.
func (m *MockSerialPort) Hangup() error {
	return m.w.Close()
}

// Written returns everything written to the port so far.
func (m *MockSerialPort) Written() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written.String()
}

func (m *MockSerialPort) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.w.Close()
	return m.r.Close()
}
