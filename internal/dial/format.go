package dial

import (
	"math"
	"strconv"
	"strings"
)

// Placeholder is shown in place of a value that cannot be formatted.
const Placeholder = "---"

// FormatDegrees renders v rounded to a whole degree, zero padded to digits and
// suffixed with a degree sign. Non-finite values render as Placeholder.
func FormatDegrees(v float64, digits int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Placeholder
	}
	r := math.Round(v)
	if r == 0 {
		r = 0 // drop the sign of -0
	}
	neg := r < 0
	s := strconv.FormatFloat(math.Abs(r), 'f', 0, 64)
	width := digits
	if neg {
		width--
	}
	if pad := width - len(s); pad > 0 {
		s = strings.Repeat("0", pad) + s
	}
	if neg {
		s = "-" + s
	}
	return s + "°"
}

// FormatSpeed renders v with one decimal place, left padded with spaces to
// digits. Non-finite values render as Placeholder.
func FormatSpeed(v float64, digits int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Placeholder
	}
	s := strconv.FormatFloat(v, 'f', 1, 64)
	if pad := digits - len(s); pad > 0 {
		s = strings.Repeat(" ", pad) + s
	}
	return s
}
