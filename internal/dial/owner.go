package dial

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/helm/internal/monitoring"
	"github.com/banshee-data/helm/internal/timeutil"
)

// ErrOwnerStopped is returned for requests submitted after Run has returned.
var ErrOwnerStopped = errors.New("dial owner stopped")

// Recorder receives counters from the owner loop. A nil Recorder is allowed.
type Recorder interface {
	SnapshotApplied()
	SnapshotRejected(reason string)
	Gesture(kind string)
}

type request struct {
	fn    func(*Dial) bool
	reply chan struct{}
}

// Owner serialises every access to a Dial through a single goroutine. Pointer
// events, button presses, feed snapshots and layout changes are handled in the
// order they are submitted, and a fresh View is published to subscribers after
// each change and on every refresh tick.
type Owner struct {
	d       *Dial
	clock   timeutil.Clock
	refresh time.Duration
	rec     Recorder

	reqs chan request
	done chan struct{}

	mu        sync.Mutex
	subs      map[string]chan View
	listeners []func(GoalChange)

	latest  atomic.Pointer[View]
	version uint64
	feedAt  time.Time
}

// NewOwner wraps d. refresh is the republish period; zero uses one second.
func NewOwner(d *Dial, clock timeutil.Clock, refresh time.Duration, rec Recorder) *Owner {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if refresh <= 0 {
		refresh = time.Second
	}
	o := &Owner{
		d:       d,
		clock:   clock,
		refresh: refresh,
		rec:     rec,
		reqs:    make(chan request),
		done:    make(chan struct{}),
		subs:    make(map[string]chan View),
	}
	v := o.project()
	o.latest.Store(&v)
	return o
}

// OnGoalChange registers fn to be called, on the owner goroutine, whenever a
// gesture changes the desired goal. fn must not block.
func (o *Owner) OnGoalChange(fn func(GoalChange)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, fn)
}

// Run processes requests until ctx is cancelled. Subscriber channels are
// closed on return.
func (o *Owner) Run(ctx context.Context) error {
	defer o.closeSubscribers()
	defer close(o.done)

	ticker := o.clock.NewTicker(o.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-o.reqs:
			if req.fn(o.d) {
				o.version++
				o.publish()
			}
			close(req.reply)
		case <-ticker.C():
			o.publish()
		}
	}
}

func (o *Owner) do(ctx context.Context, fn func(*Dial) bool) error {
	req := request{fn: fn, reply: make(chan struct{})}
	select {
	case o.reqs <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-o.done:
		return ErrOwnerStopped
	}
	// once queued the request always completes, so wait without ctx to keep
	// the caller's result variables out of reach of the owner goroutine
	select {
	case <-req.reply:
		return nil
	case <-o.done:
		return ErrOwnerStopped
	}
}

func (o *Owner) project() View {
	v := Project(o.d)
	v.Version = o.version
	v.UpdatedAt = o.clock.Now()
	v.FeedAt = o.feedAt
	return v
}

func (o *Owner) publish() {
	v := o.project()
	o.latest.Store(&v)

	o.mu.Lock()
	defer o.mu.Unlock()
	for _, ch := range o.subs {
		select {
		case ch <- v:
		default:
			// slow subscriber: drop this frame, the next one supersedes it
		}
	}
}

func (o *Owner) notifyGoal(c GoalChange) {
	if o.rec != nil {
		o.rec.Gesture(string(c.Kind))
	}
	o.mu.Lock()
	listeners := append([]func(GoalChange){}, o.listeners...)
	o.mu.Unlock()
	for _, fn := range listeners {
		fn(c)
	}
}

// Latest returns the most recently published view without a round trip
// through the owner.
func (o *Owner) Latest() View {
	return *o.latest.Load()
}

// View returns a view projected on the owner goroutine.
func (o *Owner) View(ctx context.Context) (View, error) {
	var v View
	err := o.do(ctx, func(*Dial) bool {
		v = o.project()
		return false
	})
	return v, err
}

// Pointer feeds a host pointer event through the gesture state machine.
func (o *Owner) Pointer(ctx context.Context, ev PointerEvent) (GoalChange, bool, error) {
	var (
		c      GoalChange
		ok     bool
		hErr   error
		before bool
	)
	err := o.do(ctx, func(d *Dial) bool {
		before = d.Dragging()
		c, ok, hErr = d.Handle(ev)
		if ok {
			o.notifyGoal(c)
		}
		return ok || before != d.Dragging()
	})
	if err != nil {
		return GoalChange{}, false, err
	}
	return c, ok, hErr
}

func (o *Owner) button(ctx context.Context, press func(*Dial) GoalChange) (GoalChange, error) {
	var c GoalChange
	err := o.do(ctx, func(d *Dial) bool {
		c = press(d)
		o.notifyGoal(c)
		return true
	})
	return c, err
}

// Port applies the port button.
func (o *Owner) Port(ctx context.Context) (GoalChange, error) {
	return o.button(ctx, (*Dial).Port)
}

// Starboard applies the starboard button.
func (o *Owner) Starboard(ctx context.Context) (GoalChange, error) {
	return o.button(ctx, (*Dial).Starboard)
}

// Reset sets the desired goal to the current heading.
func (o *Owner) Reset(ctx context.Context) (GoalChange, error) {
	return o.button(ctx, (*Dial).ResetToHeading)
}

// Apply ingests a feed snapshot.
func (o *Owner) Apply(ctx context.Context, snap Snapshot) error {
	var applyErr error
	err := o.do(ctx, func(d *Dial) bool {
		applyErr = d.Apply(snap)
		if applyErr != nil {
			if o.rec != nil {
				reason := "invalid"
				if errors.Is(applyErr, ErrStaleSnapshot) {
					reason = "stale"
				}
				o.rec.SnapshotRejected(reason)
			}
			monitoring.Logf("dial: snapshot rejected: %v", applyErr)
			return false
		}
		o.feedAt = o.clock.Now()
		if o.rec != nil {
			o.rec.SnapshotApplied()
		}
		return true
	})
	if err != nil {
		return err
	}
	return applyErr
}

// SetLayout updates the instrument geometry after a resize.
func (o *Owner) SetLayout(ctx context.Context, l Layout) error {
	var layoutErr error
	err := o.do(ctx, func(d *Dial) bool {
		layoutErr = d.SetLayout(l)
		return layoutErr == nil
	})
	if err != nil {
		return err
	}
	return layoutErr
}

// Subscribe returns a channel receiving every published view. The channel is
// closed by Unsubscribe or when Run returns.
func (o *Owner) Subscribe() (string, <-chan View) {
	id := uuid.NewString()
	ch := make(chan View, 1)
	o.mu.Lock()
	defer o.mu.Unlock()
	select {
	case <-o.done:
		close(ch)
		return id, ch
	default:
	}
	o.subs[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscription.
func (o *Owner) Unsubscribe(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if ch, ok := o.subs[id]; ok {
		close(ch)
		delete(o.subs, id)
	}
}

// Subscribers returns the number of live subscriptions.
func (o *Owner) Subscribers() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.subs)
}

func (o *Owner) closeSubscribers() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for id, ch := range o.subs {
		close(ch)
		delete(o.subs, id)
	}
}
