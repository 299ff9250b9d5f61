// Package units converts boat speed between the autopilot's native knots and
// the display units the UI may ask for.
package units

import "strings"

const (
	KN   = "kn"
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// ValidUnits lists the accepted unit names in display order.
var ValidUnits = []string{KN, MPS, MPH, KMPH, KPH}

type speedUnit struct {
	perKnot float64
	label   string
}

// A knot is exactly 1852 m per hour and a statute mile is 1609.344 m.
var speedUnits = map[string]speedUnit{
	KN:   {1, "kn"},
	MPS:  {1852.0 / 3600.0, "m/s"},
	MPH:  {1852.0 / 1609.344, "mph"},
	KMPH: {1.852, "km/h"},
	KPH:  {1.852, "km/h"},
}

func IsValid(unit string) bool {
	_, ok := speedUnits[unit]
	return ok
}

// GetValidUnitsString is the list used in "invalid units" errors.
func GetValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// ConvertSpeed converts knots to unit. Unknown units leave the value in knots.
func ConvertSpeed(knots float64, unit string) float64 {
	if u, ok := speedUnits[unit]; ok {
		return knots * u.perKnot
	}
	return knots
}

// Label is the suffix shown next to a speed in unit.
func Label(unit string) string {
	if u, ok := speedUnits[unit]; ok {
		return u.label
	}
	return speedUnits[KN].label
}
