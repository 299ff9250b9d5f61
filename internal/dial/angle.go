// Package dial implements the helm instrument interaction model: the
// heading/rudder/speed/goal state, the drag and button gestures that select a
// desired goal, and a read-only projection of that state for rendering.
package dial

import "math"

// Normalize returns the equivalent of deg in [0, 360). It uses floor-modulo
// semantics so negative inputs wrap correctly. Non-finite input yields NaN.
func Normalize(deg float64) float64 {
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return math.NaN()
	}
	a := math.Mod(math.Mod(deg, 360)+360, 360)
	// math.Mod can return 360 for tiny negative inputs after the shift
	if a >= 360 {
		a -= 360
	}
	return a
}

// Wrap180 folds an angle difference into (-180, 180].
func Wrap180(deg float64) float64 {
	a := Normalize(deg)
	if a > 180 {
		a -= 360
	}
	return a
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }

// screenAngle is the pointer bearing with 0° pointing up and angles growing
// clockwise, in the range (-180, 180].
func screenAngle(s PointerSample) float64 {
	return degrees(math.Atan2(s.X, -s.Y))
}
