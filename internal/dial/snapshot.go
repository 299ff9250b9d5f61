package dial

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrStaleSnapshot is returned by Apply when sequence checking is enabled and
// a snapshot is not newer than the last one applied.
var ErrStaleSnapshot = errors.New("stale snapshot")

// Snapshot is one inbound feed update. Heading and HdgGoal may arrive outside
// [0, 360) and are normalised on ingestion; the other fields pass through.
type Snapshot struct {
	Heading   float64 `json:"heading"`
	Rudder    float64 `json:"rudder"`
	Speed     float64 `json:"speed"`
	HdgGoal   float64 `json:"hdg_goal"`
	Steer     float64 `json:"steer"`
	SteerGoal float64 `json:"steer_goal"`
	// Seq is an optional monotonic sequence number set by the producer.
	Seq *uint64 `json:"seq,omitempty"`
}

type wireSnapshot struct {
	Heading   *float64 `json:"heading"`
	Rudder    *float64 `json:"rudder"`
	Speed     *float64 `json:"speed"`
	HdgGoal   *float64 `json:"hdg_goal"`
	Steer     *float64 `json:"steer"`
	SteerGoal *float64 `json:"steer_goal"`
	Seq       *uint64  `json:"seq"`
}

// DecodeSnapshot parses a JSON snapshot. Non-numeric values and missing
// heading, rudder, speed or hdg_goal fields are rejected; steer and steer_goal
// default to zero.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var w wireSnapshot
	if err := json.Unmarshal(data, &w); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	required := []struct {
		name string
		v    *float64
	}{
		{"heading", w.Heading},
		{"rudder", w.Rudder},
		{"speed", w.Speed},
		{"hdg_goal", w.HdgGoal},
	}
	for _, f := range required {
		if f.v == nil {
			return Snapshot{}, fmt.Errorf("snapshot missing %q", f.name)
		}
	}
	s := Snapshot{
		Heading: *w.Heading,
		Rudder:  *w.Rudder,
		Speed:   *w.Speed,
		HdgGoal: *w.HdgGoal,
		Seq:     w.Seq,
	}
	if w.Steer != nil {
		s.Steer = *w.Steer
	}
	if w.SteerGoal != nil {
		s.SteerGoal = *w.SteerGoal
	}
	return s, s.Validate()
}

// Validate rejects non-finite values, which JSON cannot carry but Go callers
// can construct.
func (s Snapshot) Validate() error {
	fields := []struct {
		name string
		v    float64
	}{
		{"heading", s.Heading},
		{"rudder", s.Rudder},
		{"speed", s.Speed},
		{"hdg_goal", s.HdgGoal},
		{"steer", s.Steer},
		{"steer_goal", s.SteerGoal},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("snapshot field %q is not finite", f.name)
		}
	}
	return nil
}
