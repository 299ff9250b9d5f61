// Package feed turns lines from an autopilot serial link into dial snapshots
// and writes desired-goal changes back to the link.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/helm/internal/dial"
	"github.com/banshee-data/helm/internal/monitoring"
	"github.com/banshee-data/helm/internal/serialmux"
)

// NavEvent is the envelope name carrying instrument snapshots.
const NavEvent = "nav_update"

// ErrIgnored is returned by DecodeLine for well-formed envelopes that do not
// carry a snapshot.
var ErrIgnored = errors.New("not a nav update")

// Applier ingests snapshots. *dial.Owner satisfies it.
type Applier interface {
	Apply(ctx context.Context, snap dial.Snapshot) error
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// DecodeLine parses a nav line. Both {"event":"nav_update","data":{...}} and
// a bare snapshot object are accepted.
func DecodeLine(line string) (dial.Snapshot, error) {
	var env envelope
	if err := json.Unmarshal([]byte(line), &env); err != nil {
		return dial.Snapshot{}, fmt.Errorf("failed to decode line: %w", err)
	}
	if env.Event == "" {
		return dial.DecodeSnapshot([]byte(line))
	}
	if env.Event != NavEvent {
		return dial.Snapshot{}, fmt.Errorf("%w: event %q", ErrIgnored, env.Event)
	}
	if len(env.Data) == 0 {
		return dial.Snapshot{}, fmt.Errorf("%s event has no data", NavEvent)
	}
	return dial.DecodeSnapshot(env.Data)
}

// Stats counts lines by outcome.
type Stats struct {
	Lines        uint64 `json:"lines"`
	Applied      uint64 `json:"applied"`
	DecodeErrors uint64 `json:"decode_errors"`
	Rejected     uint64 `json:"rejected"`
	Ignored      uint64 `json:"ignored"`
}

// Feed reads lines from a serial mux and applies them to the dial.
type Feed struct {
	mux serialmux.SerialMuxInterface
	dst Applier

	lines        atomic.Uint64
	applied      atomic.Uint64
	decodeErrors atomic.Uint64
	rejected     atomic.Uint64
	ignored      atomic.Uint64

	mu     sync.Mutex
	config map[string]any
	acked  *float64
}

func New(mux serialmux.SerialMuxInterface, dst Applier) *Feed {
	return &Feed{mux: mux, dst: dst, config: make(map[string]any)}
}

// Run consumes lines until ctx is cancelled or the mux closes the
// subscription. Bad lines are logged and counted.
func (f *Feed) Run(ctx context.Context) error {
	id, lines := f.mux.Subscribe()
	defer f.mux.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := f.HandleLine(ctx, line); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				monitoring.Logf("feed: %v", err)
			}
		}
	}
}

// HandleLine routes one line by its coarse type.
func (f *Feed) HandleLine(ctx context.Context, line string) error {
	f.lines.Add(1)
	switch serialmux.ClassifyLine(line) {
	case serialmux.LineTypeNav:
		snap, err := DecodeLine(line)
		if err != nil {
			if errors.Is(err, ErrIgnored) {
				f.ignored.Add(1)
				return nil
			}
			f.decodeErrors.Add(1)
			return err
		}
		if err := f.dst.Apply(ctx, snap); err != nil {
			f.rejected.Add(1)
			return fmt.Errorf("failed to apply snapshot: %w", err)
		}
		f.applied.Add(1)
	case serialmux.LineTypeGoalAck:
		var ack struct {
			DesiredGoal *float64 `json:"desired_goal"`
		}
		if err := json.Unmarshal([]byte(line), &ack); err != nil || ack.DesiredGoal == nil {
			f.decodeErrors.Add(1)
			return fmt.Errorf("failed to decode goal ack %q", line)
		}
		f.mu.Lock()
		f.acked = ack.DesiredGoal
		f.mu.Unlock()
	case serialmux.LineTypeConfig:
		var values map[string]any
		if err := json.Unmarshal([]byte(line), &values); err != nil {
			f.decodeErrors.Add(1)
			return fmt.Errorf("failed to decode config line: %w", err)
		}
		f.mu.Lock()
		for k, v := range values {
			f.config[k] = v
		}
		f.mu.Unlock()
		monitoring.Logf("feed: config line: %s", line)
	default:
		f.ignored.Add(1)
	}
	return nil
}

// Stats returns the line counters.
func (f *Feed) Stats() Stats {
	return Stats{
		Lines:        f.lines.Load(),
		Applied:      f.applied.Load(),
		DecodeErrors: f.decodeErrors.Load(),
		Rejected:     f.rejected.Load(),
		Ignored:      f.ignored.Load(),
	}
}

// Config returns a copy of the key/value pairs reported by the link.
func (f *Feed) Config() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]any, len(f.config))
	for k, v := range f.config {
		out[k] = v
	}
	return out
}

// AckedGoal returns the last desired goal echoed by the autopilot.
func (f *Feed) AckedGoal() (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.acked == nil {
		return 0, false
	}
	return *f.acked, true
}
