package dial

import "fmt"

// State is the instrument state. Heading, Goal and DesiredGoal are always in
// [0, 360). Goal is only written by Apply; DesiredGoal only by gestures.
type State struct {
	Heading     float64 `json:"heading"`
	Rudder      float64 `json:"rudder"`
	Speed       float64 `json:"speed"`
	Goal        float64 `json:"goal"`
	DesiredGoal float64 `json:"desired_goal"`
	Steer       float64 `json:"steer"`
	SteerGoal   float64 `json:"steer_goal"`
}

// PlaceholderState is shown until the first feed snapshot arrives.
func PlaceholderState() State {
	return State{
		Heading:     Normalize(-3166),
		Rudder:      22,
		Speed:       5.3,
		Goal:        270,
		DesiredGoal: 270,
	}
}

// GestureKind names the operator action that changed the desired goal.
type GestureKind string

const (
	GestureDrag      GestureKind = "drag"
	GesturePort      GestureKind = "port"
	GestureStarboard GestureKind = "starboard"
	GestureReset     GestureKind = "reset"
)

// GoalChange describes a desired goal update produced by a gesture.
type GoalChange struct {
	Kind        GestureKind `json:"kind"`
	DesiredGoal float64     `json:"desired_goal"`
}

// Options configures a Dial.
type Options struct {
	HitTest HitTest
	// Step is the port/starboard adjustment in degrees.
	Step float64
	// DiscardStale drops snapshots whose Seq is not newer than the last
	// applied one. Snapshots without Seq are always applied.
	DiscardStale bool
	Layout       Layout
	Initial      *State
}

// DefaultOptions returns the approximate hit policy, a one degree step and no
// staleness checking.
func DefaultOptions() Options {
	return Options{
		HitTest: DefaultHitTest(),
		Step:    1,
		Layout:  DefaultLayout(),
	}
}

// Dial is the interaction model of one instrument. It is not safe for
// concurrent use; Owner serialises access to it.
type Dial struct {
	state    State
	dragging bool
	layout   Layout
	hit      HitTest
	step     float64

	discardStale bool
	lastSeq      uint64
	haveSeq      bool
}

// New creates a Dial from opts.
func New(opts Options) (*Dial, error) {
	if opts.HitTest.Policy == "" {
		opts.HitTest = DefaultHitTest()
	}
	if err := opts.HitTest.Validate(); err != nil {
		return nil, err
	}
	if opts.Step <= 0 {
		opts.Step = 1
	}
	if opts.Layout.Width == 0 && opts.Layout.Height == 0 {
		opts.Layout = DefaultLayout()
	}
	if err := opts.Layout.Validate(); err != nil {
		return nil, err
	}
	state := PlaceholderState()
	if opts.Initial != nil {
		state = *opts.Initial
		state.Heading = Normalize(state.Heading)
		state.Goal = Normalize(state.Goal)
		state.DesiredGoal = Normalize(state.DesiredGoal)
	}
	return &Dial{
		state:        state,
		layout:       opts.Layout.Normalized(),
		hit:          opts.HitTest,
		step:         opts.Step,
		discardStale: opts.DiscardStale,
	}, nil
}

// State returns a copy of the current state.
func (d *Dial) State() State { return d.state }

// Dragging reports whether a drag gesture is in progress.
func (d *Dial) Dragging() bool { return d.dragging }

// Layout returns the current layout.
func (d *Dial) Layout() Layout { return d.layout }

// SetLayout replaces the layout after a resize.
func (d *Dial) SetLayout(l Layout) error {
	if err := l.Validate(); err != nil {
		return err
	}
	d.layout = l.Normalized()
	return nil
}

// HitHandle applies the configured hit test at s.
func (d *Dial) HitHandle(s PointerSample) bool {
	return d.hit.Hit(s, d.layout, d.state.Heading, d.state.Goal)
}

// Down starts a drag if s hits the handle and immediately takes the desired
// goal from s.
func (d *Dial) Down(s PointerSample) (GoalChange, bool) {
	if !d.HitHandle(s) {
		return GoalChange{}, false
	}
	d.dragging = true
	return d.Move(s)
}

// Move recomputes the desired goal from s while dragging. The ring is drawn
// rotated by -heading so the pointer bearing is rotated back by +heading.
func (d *Dial) Move(s PointerSample) (GoalChange, bool) {
	if !d.dragging {
		return GoalChange{}, false
	}
	d.state.DesiredGoal = Normalize(screenAngle(s) + d.state.Heading)
	return GoalChange{Kind: GestureDrag, DesiredGoal: d.state.DesiredGoal}, true
}

// Up ends any drag.
func (d *Dial) Up() {
	d.dragging = false
}

// DoubleClick resets the desired goal to the current heading when s misses
// the handle. A double click on the handle does nothing.
func (d *Dial) DoubleClick(s PointerSample) (GoalChange, bool) {
	if d.HitHandle(s) {
		return GoalChange{}, false
	}
	return d.ResetToHeading(), true
}

// ResetToHeading sets the desired goal to the current heading.
func (d *Dial) ResetToHeading() GoalChange {
	d.state.DesiredGoal = d.state.Heading
	return GoalChange{Kind: GestureReset, DesiredGoal: d.state.DesiredGoal}
}

// Port sets the desired goal one step to port of the confirmed goal. The
// adjustment is anchored to Goal, so repeated presses without a feed update
// do not accumulate.
func (d *Dial) Port() GoalChange {
	d.state.DesiredGoal = Normalize(d.state.Goal - d.step)
	return GoalChange{Kind: GesturePort, DesiredGoal: d.state.DesiredGoal}
}

// Starboard sets the desired goal one step to starboard of the confirmed goal.
func (d *Dial) Starboard() GoalChange {
	d.state.DesiredGoal = Normalize(d.state.Goal + d.step)
	return GoalChange{Kind: GestureStarboard, DesiredGoal: d.state.DesiredGoal}
}

// Handle dispatches a host pointer event through the gesture state machine.
// Touch and mouse events share the same angle math; only the position
// extraction differs. A touchend with Detail 2 is also treated as a double
// tap after the drag ends.
func (d *Dial) Handle(ev PointerEvent) (GoalChange, bool, error) {
	switch ev.Kind {
	case PointerUp:
		d.Up()
		return GoalChange{}, false, nil
	case TouchEnd:
		d.Up()
		if ev.Detail != doubleTapDetail {
			return GoalChange{}, false, nil
		}
		s, err := MapEvent(ev, d.layout)
		if err != nil {
			return GoalChange{}, false, err
		}
		c, ok := d.DoubleClick(s)
		return c, ok, nil
	case PointerDown, TouchStart, PointerMove, TouchMove, DoubleClick:
	default:
		return GoalChange{}, false, fmt.Errorf("unknown pointer event kind %q", ev.Kind)
	}

	s, err := MapEvent(ev, d.layout)
	if err != nil {
		return GoalChange{}, false, err
	}
	var (
		c  GoalChange
		ok bool
	)
	switch ev.Kind {
	case PointerDown, TouchStart:
		c, ok = d.Down(s)
	case PointerMove, TouchMove:
		c, ok = d.Move(s)
	case DoubleClick:
		c, ok = d.DoubleClick(s)
	}
	return c, ok, nil
}

// Apply overwrites the feed-owned fields from snap. It never touches the
// desired goal or the drag state.
func (d *Dial) Apply(snap Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	if d.discardStale && snap.Seq != nil {
		if d.haveSeq && *snap.Seq <= d.lastSeq {
			return fmt.Errorf("%w: seq %d <= %d", ErrStaleSnapshot, *snap.Seq, d.lastSeq)
		}
		d.lastSeq = *snap.Seq
		d.haveSeq = true
	}
	d.state.Heading = Normalize(snap.Heading)
	d.state.Rudder = snap.Rudder
	d.state.Speed = snap.Speed
	d.state.Goal = Normalize(snap.HdgGoal)
	d.state.Steer = snap.Steer
	d.state.SteerGoal = snap.SteerGoal
	return nil
}
