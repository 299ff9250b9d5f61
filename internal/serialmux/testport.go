package serialmux

import (
	"errors"
	"io"
	"sync"
)

var errPortClosed = errors.New("serial port closed")

// TestableSerialPort is a scripted SerialPorter: reads drain data queued with
// AddReadData and writes are captured for Written.
type TestableSerialPort struct {
	// ReadError and WriteError are returned once by the next call.
	ReadError  error
	WriteError error
	// ShortWrite makes Write accept one byte fewer than it was given.
	ShortWrite bool
	// BlockReads makes Read wait for data or Close instead of returning
	// io.EOF on an empty queue.
	BlockReads bool
	Closed     bool

	mu      sync.Mutex
	wake    *sync.Cond
	pending []byte
	written []byte
}

func NewTestableSerialPort() *TestableSerialPort {
	p := &TestableSerialPort{}
	p.wake = sync.NewCond(&p.mu)
	return p
}

func takeErr(e *error) error {
	err := *e
	*e = nil
	return err
}

func (p *TestableSerialPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ReadError != nil {
		return 0, takeErr(&p.ReadError)
	}
	for p.BlockReads && !p.Closed && len(p.pending) == 0 {
		p.wake.Wait()
	}
	if p.Closed {
		return 0, errPortClosed
	}
	if len(p.pending) == 0 {
		return 0, io.EOF
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *TestableSerialPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.Closed:
		return 0, errPortClosed
	case p.WriteError != nil:
		return 0, takeErr(&p.WriteError)
	}
	p.written = append(p.written, b...)
	if p.ShortWrite && len(b) > 0 {
		return len(b) - 1, nil
	}
	return len(b), nil
}

func (p *TestableSerialPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	p.wake.Broadcast()
	return nil
}

// AddReadData queues data for subsequent reads.
func (p *TestableSerialPort) AddReadData(data string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(p.pending, data...)
	p.wake.Broadcast()
}

// Written returns everything written to the port.
func (p *TestableSerialPort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.written)
}
