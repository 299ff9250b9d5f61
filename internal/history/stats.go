// Package history summarises recorded instrument and bus data and renders
// charts of it.
package history

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/helm/internal/db"
	"github.com/banshee-data/helm/internal/dial"
)

// HeadingStats describes heading and steering error over a window. Angles
// are degrees.
type HeadingStats struct {
	// Mean is the circular mean heading in [0, 360).
	Mean float64 `json:"mean"`
	// Spread is the circular standard deviation.
	Spread float64 `json:"spread"`
	// MeanError is the mean of heading minus goal, each wrapped to (-180, 180].
	MeanError    float64 `json:"mean_error"`
	MeanAbsError float64 `json:"mean_abs_error"`
	MaxAbsError  float64 `json:"max_abs_error"`
}

// SpreadStats is a linear distribution summary.
type SpreadStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	P50    float64 `json:"p50"`
	P90    float64 `json:"p90"`
	Max    float64 `json:"max"`
}

// Summary covers the samples and goal changes in a window.
type Summary struct {
	From        time.Time      `json:"from"`
	To          time.Time      `json:"to"`
	Samples     int            `json:"samples"`
	Heading     HeadingStats   `json:"heading"`
	Speed       SpreadStats    `json:"speed"`
	Rudder      SpreadStats    `json:"rudder"`
	GoalChanges map[string]int `json:"goal_changes"`
}

// Summarize computes statistics for samples, which must be in time order.
func Summarize(from, to time.Time, samples []db.NavSample, goals []db.GoalSelection) Summary {
	s := Summary{From: from, To: to, Samples: len(samples), GoalChanges: map[string]int{}}
	for _, g := range goals {
		s.GoalChanges[string(g.Kind)]++
	}
	if len(samples) == 0 {
		return s
	}

	headings := make([]float64, len(samples))
	errs := make([]float64, len(samples))
	absErrs := make([]float64, len(samples))
	speeds := make([]float64, len(samples))
	rudders := make([]float64, len(samples))
	for i, smp := range samples {
		headings[i] = smp.Heading
		errs[i] = dial.Wrap180(smp.Heading - smp.Goal)
		absErrs[i] = math.Abs(errs[i])
		speeds[i] = smp.Speed
		rudders[i] = smp.Rudder
	}

	mean, spread := CircularMeanSpread(headings)
	s.Heading = HeadingStats{
		Mean:         mean,
		Spread:       spread,
		MeanError:    stat.Mean(errs, nil),
		MeanAbsError: stat.Mean(absErrs, nil),
		MaxAbsError:  maxOf(absErrs),
	}
	s.Speed = Spread(speeds)
	s.Rudder = Spread(rudders)
	return s
}

const minResultant = 1e-12

// CircularMeanSpread returns the circular mean in [0, 360) and the circular
// standard deviation of angles in degrees.
func CircularMeanSpread(deg []float64) (mean, spread float64) {
	if len(deg) == 0 {
		return 0, 0
	}
	rad := make([]float64, len(deg))
	sins := make([]float64, len(deg))
	coss := make([]float64, len(deg))
	for i, d := range deg {
		rad[i] = d * math.Pi / 180
		sins[i] = math.Sin(rad[i])
		coss[i] = math.Cos(rad[i])
	}
	mean = dial.Normalize(stat.CircularMean(rad, nil) * 180 / math.Pi)

	r := math.Hypot(stat.Mean(sins, nil), stat.Mean(coss, nil))
	if r >= 1 {
		return mean, 0
	}
	// angles that cancel out have no defined spread
	r = math.Max(r, minResultant)
	return mean, math.Sqrt(-2*math.Log(r)) * 180 / math.Pi
}

// Spread summarises x. The zero value is returned for empty input.
func Spread(x []float64) SpreadStats {
	if len(x) == 0 {
		return SpreadStats{}
	}
	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)
	mean, std := stat.MeanStdDev(sorted, nil)
	if len(sorted) == 1 {
		std = 0
	}
	return SpreadStats{
		Mean:   mean,
		StdDev: std,
		P50:    stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P90:    stat.Quantile(0.9, stat.Empirical, sorted, nil),
		Max:    sorted[len(sorted)-1],
	}
}

func maxOf(x []float64) float64 {
	m := math.Inf(-1)
	for _, v := range x {
		m = math.Max(m, v)
	}
	return m
}
