package serialmux

import (
	"io"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/helm/internal/monitoring"
)

// MockSerialPort emits generated lines on a timer and records what is
// written to it. Dev mode uses it in place of the autopilot link.
type MockSerialPort struct {
	lines *io.PipeReader

	mu      sync.Mutex
	written strings.Builder

	done      chan struct{}
	closeOnce sync.Once
}

func (m *MockSerialPort) Read(p []byte) (int, error) { return m.lines.Read(p) }

func (m *MockSerialPort) Write(p []byte) (int, error) {
	monitoring.Logf("mock serial write: %q", p)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written.Write(p)
}

// Written returns everything written to the port so far.
func (m *MockSerialPort) Written() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written.String()
}

func (m *MockSerialPort) Close() error {
	m.closeOnce.Do(func() {
		close(m.done)
		m.lines.Close()
	})
	return nil
}

func (m *MockSerialPort) generate(out *io.PipeWriter, next func() string, period time.Duration) {
	defer out.Close()
	tick := time.NewTicker(period)
	defer tick.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-tick.C:
		}
		if _, err := out.Write([]byte(next() + "\n")); err != nil {
			return
		}
	}
}

// NewMockSerialMux returns a SerialMux whose port yields next() once per
// period until the mux is closed.
func NewMockSerialMux(next func() string, period time.Duration, opts Options) (*SerialMux[*MockSerialPort], *MockSerialPort) {
	pr, pw := io.Pipe()
	port := &MockSerialPort{lines: pr, done: make(chan struct{})}
	go port.generate(pw, next, period)
	return NewSerialMux(port, opts), port
}
