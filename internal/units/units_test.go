package units

import (
	"math"
	"testing"
)

func TestConvertSpeed(t *testing.T) {
	tests := []struct {
		knots float64
		unit  string
		want  float64
	}{
		{10, KN, 10},
		{10, MPS, 5.14444},
		{10, KMPH, 18.52},
		{10, KPH, 18.52},
		{10, MPH, 11.5078},
		{10, "furlongs", 10},
		{0, MPH, 0},
		{6.5, KMPH, 12.038},
		{-3, MPS, -1.54333},
	}
	for _, tt := range tests {
		if got := ConvertSpeed(tt.knots, tt.unit); math.Abs(got-tt.want) > 0.001 {
			t.Errorf("ConvertSpeed(%v, %q) = %v, want %v", tt.knots, tt.unit, got, tt.want)
		}
	}
}

func TestIsValid(t *testing.T) {
	for _, u := range ValidUnits {
		if !IsValid(u) {
			t.Errorf("IsValid(%q) = false", u)
		}
	}
	for _, u := range []string{"", "KN", "knots", "m/s"} {
		if IsValid(u) {
			t.Errorf("IsValid(%q) = true", u)
		}
	}
}

func TestGetValidUnitsString(t *testing.T) {
	if got := GetValidUnitsString(); got != "kn, mps, mph, kmph, kph" {
		t.Errorf("GetValidUnitsString() = %q", got)
	}
}

func TestLabel(t *testing.T) {
	for unit, want := range map[string]string{
		KN:   "kn",
		MPS:  "m/s",
		MPH:  "mph",
		KMPH: "km/h",
		KPH:  "km/h",
		"":   "kn",
	} {
		if got := Label(unit); got != want {
			t.Errorf("Label(%q) = %q, want %q", unit, got, want)
		}
	}
}
