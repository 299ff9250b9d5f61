package feed

import (
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/banshee-data/helm/internal/dial"
	"github.com/banshee-data/helm/internal/timeutil"
)

// Simulator produces nav_update lines for dev mode. The simulated vessel
// turns toward its goal at TurnRate with a rudder angle proportional to the
// remaining error, while speed oscillates gently around CruiseSpeed.
type Simulator struct {
	TurnRate    float64 // degrees per second
	CruiseSpeed float64 // knots

	clock timeutil.Clock

	mu      sync.Mutex
	heading float64
	goal    float64
	last    time.Time
	start   time.Time
	seq     uint64
}

func NewSimulator(clock timeutil.Clock, heading float64) *Simulator {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	now := clock.Now()
	h := dial.Normalize(heading)
	return &Simulator{
		TurnRate:    3,
		CruiseSpeed: 6,
		clock:       clock,
		heading:     h,
		goal:        h,
		last:        now,
		start:       now,
	}
}

// Observe steers the simulation toward a newly selected goal. It can be
// registered with dial.Owner.OnGoalChange.
func (s *Simulator) Observe(c dial.GoalChange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.goal = dial.Normalize(c.DesiredGoal)
}

// Step advances the simulation to the clock's current time and returns the
// resulting snapshot.
func (s *Simulator) Step() dial.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	dt := now.Sub(s.last).Seconds()
	s.last = now

	errDeg := dial.Wrap180(s.goal - s.heading)
	turn := math.Min(math.Abs(errDeg), s.TurnRate*dt)
	s.heading = dial.Normalize(s.heading + math.Copysign(turn, errDeg))

	rudder := math.Max(-35, math.Min(35, dial.Wrap180(s.goal-s.heading)))
	elapsed := now.Sub(s.start).Seconds()
	speed := s.CruiseSpeed + 0.5*math.Sin(elapsed/7)

	s.seq++
	seq := s.seq
	return dial.Snapshot{
		Heading:   round1(s.heading),
		Rudder:    round1(rudder),
		Speed:     round1(speed),
		HdgGoal:   s.goal,
		Steer:     round1(-rudder / 35),
		SteerGoal: 0,
		Seq:       &seq,
	}
}

// Next returns the next line in the nav_update envelope.
func (s *Simulator) Next() string {
	snap := s.Step()
	b, err := json.Marshal(struct {
		Event string        `json:"event"`
		Data  dial.Snapshot `json:"data"`
	}{NavEvent, snap})
	if err != nil {
		// Snapshot fields are finite so this cannot happen.
		panic(err)
	}
	return string(b)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
