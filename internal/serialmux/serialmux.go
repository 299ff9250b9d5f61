// Package serialmux multiplexes a line-oriented serial link: many subscribers
// receive each line read from the port, and commands from any goroutine are
// written to the port one at a time.
package serialmux

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrWriteFailed is returned when the port accepts fewer bytes than a command.
var ErrWriteFailed = errors.New("short write to serial port")

// Options tune how a SerialMux frames lines.
type Options struct {
	// Name prefixes the admin routes so several muxes can share /debug/.
	Name string
	// Terminator is appended to commands that do not already end with it.
	// Defaults to "\n".
	Terminator string
	// Split frames the input. Defaults to bufio.ScanLines.
	Split bufio.SplitFunc
	// InitCommands are sent in order by Initialize.
	InitCommands []string
	// Buffer is the per-subscriber channel capacity.
	Buffer int
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = "serial"
	}
	if o.Terminator == "" {
		o.Terminator = "\n"
	}
	if o.Split == nil {
		o.Split = bufio.ScanLines
	}
	return o
}

// SerialMuxInterface is what the feed reader, the goal dispatcher and the
// SLCAN source need from a port. FeedPortManager and DisabledSerialMux
// implement it as well.
type SerialMuxInterface interface {
	// Subscribe returns an ID and a channel receiving every line read
	// after the call.
	Subscribe() (string, chan string)
	// Unsubscribe closes and forgets the channel for id.
	Unsubscribe(string)
	SendCommand(string) error
	// Monitor pumps lines to subscribers until ctx ends or the port fails.
	Monitor(context.Context) error
	Close() error
	// Initialize sends the configured init commands.
	Initialize() error
	// AttachAdminRoutes registers the /debug/ console for this port.
	AttachAdminRoutes(*http.ServeMux)
}

// SerialMux fans lines from one port out to any number of subscribers.
type SerialMux[T SerialPorter] struct {
	port T
	opts Options

	writeMu sync.Mutex

	mu     sync.Mutex
	subs   map[string]chan string
	closed bool
}

func NewSerialMux[T SerialPorter](port T, opts Options) *SerialMux[T] {
	return &SerialMux[T]{
		port: port,
		opts: opts.withDefaults(),
		subs: make(map[string]chan string),
	}
}

// ScanCRLF splits on carriage return or newline, dropping empty tokens. SLCAN
// adapters terminate replies with a bare carriage return.
func ScanCRLF(data []byte, atEOF bool) (advance int, token []byte, err error) {
	skip := len(data) - len(bytes.TrimLeft(data, "\r\n"))
	rest := data[skip:]
	if end := bytes.IndexAny(rest, "\r\n"); end >= 0 {
		return skip + end + 1, rest[:end], nil
	}
	if atEOF && len(rest) > 0 {
		return len(data), rest, nil
	}
	return skip, nil, nil
}

func (s *SerialMux[T]) Subscribe() (string, chan string) {
	id, ch := uuid.NewString(), make(chan string, s.opts.Buffer)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return id, ch
	}
	s.subs[id] = ch
	return id, ch
}

func (s *SerialMux[T]) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}

// SubscriberCount reports how many channels are currently subscribed.
func (s *SerialMux[T]) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *SerialMux[T]) Initialize() error {
	for i, cmd := range s.opts.InitCommands {
		if err := s.SendCommand(cmd); err != nil {
			return fmt.Errorf("init command %d (%q): %w", i, cmd, err)
		}
	}
	return nil
}

// SendCommand writes command to the port, adding the terminator if missing.
func (s *SerialMux[T]) SendCommand(command string) error {
	if !strings.HasSuffix(command, s.opts.Terminator) {
		command += s.opts.Terminator
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	n, err := s.port.Write([]byte(command))
	switch {
	case err != nil:
		return err
	case n < len(command):
		return fmt.Errorf("%w: %d of %d bytes", ErrWriteFailed, n, len(command))
	}
	return nil
}

// broadcast hands line to every subscriber that has room. It reports false
// once the mux is closed.
func (s *SerialMux[T]) broadcast(line string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	for _, ch := range s.subs {
		select {
		case ch <- line:
		default:
		}
	}
	return true
}

// Monitor reads lines and fans them out until ctx is cancelled, the mux is
// closed or the port fails. EOF ends the loop with a nil error.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)
		scan := bufio.NewScanner(s.port)
		scan.Split(s.opts.Split)
		for scan.Scan() {
			select {
			case lines <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scan.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return err
				default:
					return ctx.Err()
				}
			}
			if !s.broadcast(line) {
				return nil
			}
		}
	}
}

// Close closes every subscriber channel and then the port.
func (s *SerialMux[T]) Close() error {
	s.mu.Lock()
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.mu.Unlock()
	return s.port.Close()
}

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	AttachAdminRoutesForMux(mux, s.opts.Name, s)
}
