package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/helm/internal/j1939"
	"github.com/banshee-data/helm/internal/monitoring"
	"github.com/banshee-data/helm/internal/timeutil"
)

// DefaultFlushPeriod is how often buffered frames are written.
const DefaultFlushPeriod = 910 * time.Millisecond

// LoggingStatus describes the frame logger.
type LoggingStatus struct {
	Active  bool     `json:"active"`
	Session *Session `json:"session,omitempty"`
	Pending int      `json:"pending"`
}

// FrameLogger buffers frames while a session is active and writes them in
// one transaction per flush period. It is a canbus sink.
type FrameLogger struct {
	db     *DB
	clock  timeutil.Clock
	period time.Duration

	mu      sync.Mutex
	session *Session
	pending []j1939.Frame
	onFlush []func(n int)

	// flushMu orders batch writes against session changes.
	flushMu sync.Mutex
}

func NewFrameLogger(db *DB, clock timeutil.Clock, period time.Duration) *FrameLogger {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if period <= 0 {
		period = DefaultFlushPeriod
	}
	return &FrameLogger{db: db, clock: clock, period: period}
}

// OnFlush registers fn to receive the size of each committed batch.
func (l *FrameLogger) OnFlush(fn func(n int)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onFlush = append(l.onFlush, fn)
}

// HandleFrame buffers f when logging is active.
func (l *FrameLogger) HandleFrame(f j1939.Frame) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.session == nil {
		return
	}
	l.pending = append(l.pending, f)
}

// Start begins a new session unless one is already active, in which case
// the active session is returned.
func (l *FrameLogger) Start(label string) (Session, error) {
	l.flushMu.Lock()
	defer l.flushMu.Unlock()

	l.mu.Lock()
	if l.session != nil {
		s := *l.session
		l.mu.Unlock()
		return s, nil
	}
	l.mu.Unlock()

	s, err := l.db.CreateSession(label, l.clock.Now())
	if err != nil {
		return Session{}, err
	}
	l.mu.Lock()
	l.session = &s
	l.mu.Unlock()
	monitoring.Logf("logging: started session %s %q", s.ID, s.Label)
	return s, nil
}

// Stop flushes buffered frames and closes the active session. Stopping an
// idle logger is a no-op.
func (l *FrameLogger) Stop() (*Session, error) {
	l.flushMu.Lock()
	defer l.flushMu.Unlock()
	return l.stopLocked()
}

func (l *FrameLogger) stopLocked() (*Session, error) {
	if err := l.flushLocked(); err != nil {
		monitoring.Logf("logging: final flush failed: %v", err)
	}

	l.mu.Lock()
	s := l.session
	l.session = nil
	l.pending = nil
	l.mu.Unlock()
	if s == nil {
		return nil, nil
	}

	stoppedAt := l.clock.Now()
	if err := l.db.StopSession(s.ID, stoppedAt); err != nil {
		return s, err
	}
	t := fromUnixSeconds(unixSeconds(stoppedAt))
	s.StoppedAt = &t
	monitoring.Logf("logging: stopped session %s", s.ID)
	return s, nil
}

// Restart closes any active session and opens a new one labelled label.
func (l *FrameLogger) Restart(label string) (Session, error) {
	l.flushMu.Lock()
	defer l.flushMu.Unlock()

	if _, err := l.stopLocked(); err != nil {
		return Session{}, fmt.Errorf("failed to stop session: %w", err)
	}
	s, err := l.db.CreateSession(label, l.clock.Now())
	if err != nil {
		return Session{}, err
	}
	l.mu.Lock()
	l.session = &s
	l.mu.Unlock()
	monitoring.Logf("logging: restarted as session %s %q", s.ID, s.Label)
	return s, nil
}

// Status reports whether a session is active.
func (l *FrameLogger) Status() LoggingStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := LoggingStatus{Active: l.session != nil, Pending: len(l.pending)}
	if l.session != nil {
		s := *l.session
		st.Session = &s
	}
	return st
}

// Flush writes buffered frames now.
func (l *FrameLogger) Flush() error {
	l.flushMu.Lock()
	defer l.flushMu.Unlock()
	return l.flushLocked()
}

func (l *FrameLogger) flushLocked() error {
	l.mu.Lock()
	batch := l.pending
	l.pending = nil
	var id string
	if l.session != nil {
		id = l.session.ID
	}
	listeners := append([]func(int){}, l.onFlush...)
	l.mu.Unlock()

	if len(batch) == 0 || id == "" {
		return nil
	}
	if err := l.db.InsertFrames(id, batch); err != nil {
		return err
	}
	for _, fn := range listeners {
		fn(len(batch))
	}
	return nil
}

// Run flushes every period until ctx is cancelled, then flushes once more.
// A failed batch is logged and dropped.
func (l *FrameLogger) Run(ctx context.Context) error {
	ticker := l.clock.NewTicker(l.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := l.Flush(); err != nil {
				monitoring.Logf("logging: flush failed: %v", err)
			}
			return ctx.Err()
		case <-ticker.C():
			if err := l.Flush(); err != nil {
				monitoring.Logf("logging: flush failed: %v", err)
			}
		}
	}
}
