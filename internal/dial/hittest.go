package dial

import (
	"fmt"
	"math"
)

// HitPolicy selects how pointer samples are tested against the goal handle.
type HitPolicy string

const (
	// HitApproximate treats the whole upper ring as the handle: the sample must
	// be far enough from the centre and above it. The handle's real position is
	// not consulted.
	HitApproximate HitPolicy = "approximate"
	// HitExact additionally requires the sample to fall inside the handle
	// circle drawn at the goal bearing on the rotated ring.
	HitExact HitPolicy = "exact"
)

const (
	DefaultHitFraction  = 0.8
	DefaultHandleRadius = 30.0
)

// HitTest holds the hit-test policy and its parameters.
type HitTest struct {
	Policy HitPolicy
	// Fraction of the dial radius the sample must exceed.
	Fraction float64
	// HandleRadius is the handle circle radius in CSS pixels (exact policy).
	HandleRadius float64
}

// DefaultHitTest returns the approximate policy with the stock parameters.
func DefaultHitTest() HitTest {
	return HitTest{
		Policy:       HitApproximate,
		Fraction:     DefaultHitFraction,
		HandleRadius: DefaultHandleRadius,
	}
}

// Validate checks the policy name and parameter ranges.
func (h HitTest) Validate() error {
	switch h.Policy {
	case HitApproximate, HitExact:
	default:
		return fmt.Errorf("unknown hit policy %q", h.Policy)
	}
	if h.Fraction <= 0 || h.Fraction >= 1 {
		return fmt.Errorf("hit fraction must be in (0, 1), got %v", h.Fraction)
	}
	if h.HandleRadius <= 0 {
		return fmt.Errorf("handle radius must be positive, got %v", h.HandleRadius)
	}
	return nil
}

// Hit reports whether s falls on the goal handle. heading and goal are only
// used by the exact policy.
func (h HitTest) Hit(s PointerSample, l Layout, heading, goal float64) bool {
	l = l.Normalized()
	fraction := h.Fraction
	if fraction <= 0 {
		fraction = DefaultHitFraction
	}
	r := l.Radius() * l.DPR
	if !(s.Distance() > fraction*r) || !(s.Y < 0) {
		return false
	}
	if h.Policy != HitExact {
		return true
	}
	hx, hy := HandlePosition(l, heading, goal)
	handleR := h.HandleRadius
	if handleR <= 0 {
		handleR = DefaultHandleRadius
	}
	return math.Hypot(s.X-hx*l.DPR, s.Y-hy*l.DPR) <= handleR*l.DPR
}

// HandlePosition returns the centre of the goal handle relative to the dial
// centre in CSS pixels. The ring is drawn rotated by -heading so the goal sits
// at screen bearing goal-heading.
func HandlePosition(l Layout, heading, goal float64) (x, y float64) {
	a := radians(Normalize(goal - heading))
	r := l.Radius()
	return r * math.Sin(a), -r * math.Cos(a)
}
