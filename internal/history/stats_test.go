package history

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/helm/internal/db"
	"github.com/banshee-data/helm/internal/dial"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func sample(i int, heading, goal, speed, rudder float64) db.NavSample {
	return db.NavSample{
		Time:  epoch.Add(time.Duration(i) * time.Second),
		State: dial.State{Heading: heading, Goal: goal, Speed: speed, Rudder: rudder},
	}
}

func TestCircularMeanSpread(t *testing.T) {
	tests := []struct {
		name       string
		in         []float64
		wantMean   float64
		wantSpread float64
		spreadTol  float64
	}{
		{name: "across north", in: []float64{350, 10}, wantMean: 0, wantSpread: 10.03, spreadTol: 0.05},
		{name: "identical", in: []float64{90, 90, 90}, wantMean: 90, wantSpread: 0, spreadTol: 1e-6},
		{name: "empty", in: nil, wantMean: 0, wantSpread: 0, spreadTol: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mean, spread := CircularMeanSpread(tt.in)
			assert.InDelta(t, 0, dial.Wrap180(mean-tt.wantMean), 1e-9)
			assert.InDelta(t, tt.wantSpread, spread, tt.spreadTol)
		})
	}

	_, spread := CircularMeanSpread([]float64{0, 180})
	assert.False(t, math.IsInf(spread, 0) || math.IsNaN(spread), "opposed angles must give a finite spread")
}

func TestSpread(t *testing.T) {
	got := Spread([]float64{4, 1, 3, 2, 10})
	assert.InDelta(t, 4.0, got.Mean, 1e-9)
	assert.Equal(t, 3.0, got.P50)
	assert.Equal(t, 10.0, got.P90)
	assert.Equal(t, 10.0, got.Max)
	assert.InDelta(t, math.Sqrt(12.5), got.StdDev, 1e-9)

	assert.Equal(t, SpreadStats{Mean: 7, P50: 7, P90: 7, Max: 7}, Spread([]float64{7}))
	assert.Equal(t, SpreadStats{}, Spread(nil))
}

func TestSummarize(t *testing.T) {
	samples := []db.NavSample{
		sample(0, 358, 2, 5, -3),
		sample(1, 4, 2, 6, 1),
		sample(2, 0, 2, 7, 2),
	}
	goals := []db.GoalSelection{
		{Kind: dial.GesturePort},
		{Kind: dial.GesturePort},
		{Kind: dial.GestureDrag},
	}
	s := Summarize(epoch, epoch.Add(time.Minute), samples, goals)

	assert.Equal(t, 3, s.Samples)
	assert.InDelta(t, 0.67, dial.Wrap180(s.Heading.Mean), 0.01)
	assert.InDelta(t, -4.0/3, s.Heading.MeanError, 1e-9, "errors -4, 2, -2")
	assert.InDelta(t, 8.0/3, s.Heading.MeanAbsError, 1e-9)
	assert.Equal(t, 4.0, s.Heading.MaxAbsError)
	assert.InDelta(t, 6.0, s.Speed.Mean, 1e-9)
	assert.Equal(t, map[string]int{"port": 2, "drag": 1}, s.GoalChanges)

	empty := Summarize(epoch, epoch, nil, nil)
	assert.Zero(t, empty.Samples)
	assert.Equal(t, HeadingStats{}, empty.Heading)
}
