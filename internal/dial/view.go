package dial

import (
	"fmt"
	"io"
	"math"
	"time"
)

// Labels are the formatted readouts drawn on the instrument.
type Labels struct {
	Heading string `json:"heading"`
	Speed   string `json:"speed"`
	Rudder  string `json:"rudder"`
	Goal    string `json:"goal"`
	Desired string `json:"desired"`
}

// Point is a centre-relative position in CSS pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// View is a read-only projection of a Dial for rendering. Building a View
// never mutates the Dial.
type View struct {
	State
	Dragging bool `json:"dragging"`
	// RingRotation is the rotation applied to the compass ring, -Heading.
	RingRotation float64 `json:"ring_rotation"`
	// GoalBearing and DesiredBearing are screen bearings (0° up, clockwise).
	GoalBearing    float64   `json:"goal_bearing"`
	DesiredBearing float64   `json:"desired_bearing"`
	Handle         Point     `json:"handle"`
	Radius         float64   `json:"radius"`
	Labels         Labels    `json:"labels"`
	Version        uint64    `json:"version"`
	UpdatedAt      time.Time `json:"updated_at"`
	// FeedAt is the time of the last applied feed snapshot; zero until one
	// arrives. Presentations may use it to flag a silent feed.
	FeedAt time.Time `json:"feed_at"`
}

// Project builds the View of d.
func Project(d *Dial) View {
	st := d.State()
	l := d.Layout()
	hx, hy := HandlePosition(l, st.Heading, st.Goal)
	return View{
		State:          st,
		Dragging:       d.Dragging(),
		RingRotation:   -st.Heading,
		GoalBearing:    Normalize(st.Goal - st.Heading),
		DesiredBearing: Normalize(st.DesiredGoal - st.Heading),
		Handle:         Point{X: hx, Y: hy},
		Radius:         l.Radius(),
		Labels: Labels{
			Heading: FormatDegrees(st.Heading, 3),
			Speed:   FormatSpeed(st.Speed, 3),
			Rudder:  FormatDegrees(st.Rudder, 2),
			Goal:    FormatDegrees(st.Goal, 3),
			Desired: FormatDegrees(st.DesiredGoal, 3),
		},
	}
}

var cardinals = []struct {
	label   string
	bearing float64
}{{"N", 0}, {"E", 90}, {"S", 180}, {"W", 270}}

// RenderSVG writes v as a square SVG of the given side in pixels. The ring,
// ticks, goal line and handle rotate with the heading; the boat axis, rudder
// and readouts stay fixed.
func RenderSVG(w io.Writer, v View, side float64) error {
	if side <= 0 {
		side = 2 * v.Radius
	}
	if side <= 0 {
		side = 600
	}
	r := side / 2
	scale := r / math.Max(v.Radius, 1)
	ew := &errWriter{w: w}

	ew.printf(`<svg xmlns="http://www.w3.org/2000/svg" width="%.0f" height="%.0f" viewBox="%.1f %.1f %.1f %.1f">`+"\n",
		side, side, -r, -r, side, side)
	ew.printf(`<g transform="rotate(%.2f)">`+"\n", v.RingRotation)
	ew.printf(`<circle cx="0" cy="0" r="%.1f" fill="none" stroke="#444" stroke-width="6"/>`+"\n", r-10)
	for deg := 0; deg < 360; deg += 5 {
		length := 10.0
		switch {
		case deg%45 == 0:
			length = 35
		case deg%15 == 0:
			length = 20
		}
		a := radians(float64(deg))
		ew.printf(`<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="#444" stroke-width="2"/>`+"\n",
			(r-10)*math.Sin(a), -(r-10)*math.Cos(a),
			(r-10-length)*math.Sin(a), -(r-10-length)*math.Cos(a))
	}
	g := radians(v.Goal)
	gx, gy := r*math.Sin(g), -r*math.Cos(g)
	ew.printf(`<line x1="0" y1="0" x2="%.1f" y2="%.1f" stroke="rgb(9,237,89)" stroke-width="10"/>`+"\n", gx, gy)
	ew.printf(`<circle cx="%.1f" cy="%.1f" r="%.1f" fill="rgba(9,237,89,0.8)"/>`+"\n", gx, gy, DefaultHandleRadius*scale)
	dg := radians(v.DesiredGoal)
	ew.printf(`<line x1="0" y1="0" x2="%.1f" y2="%.1f" stroke="rgb(9,237,89)" stroke-width="3" stroke-dasharray="12 8"/>`+"\n",
		r*math.Sin(dg), -r*math.Cos(dg))
	for _, c := range cardinals {
		a := radians(c.bearing)
		x, y := (r-70)*math.Sin(a), -(r-70)*math.Cos(a)
		// counter-rotate so the letters stay upright
		ew.printf(`<text x="%.1f" y="%.1f" transform="rotate(%.2f %.1f %.1f)" font-family="sans-serif" font-size="48" text-anchor="middle" dominant-baseline="middle" fill="#222">%s</text>`+"\n",
			x, y, v.Heading, x, y, c.label)
	}
	ew.printf("</g>\n")

	ew.printf(`<line x1="0" y1="%.1f" x2="0" y2="%.1f" stroke="rgba(87,87,87,0.8)" stroke-width="3"/>`+"\n", r, -r)
	ew.printf(`<g transform="translate(0 %.1f) rotate(%.2f)"><polygon points="-12,0 12,0 0,%.1f" fill="rgba(230,85,85,0.8)"/></g>`+"\n",
		r*0.3, -v.Rudder, r*0.15)
	for _, t := range []struct {
		x, y   float64
		anchor string
		title  string
		value  string
	}{
		{r / 5, -r / 5, "start", "Heading", v.Labels.Heading},
		{r / 5, r / 5, "start", "Speed", v.Labels.Speed},
		{-r / 5, r / 5, "end", "Rudder", v.Labels.Rudder},
		{-r / 5, -r / 5, "end", "Goal", v.Labels.Goal},
	} {
		ew.printf(`<text x="%.1f" y="%.1f" font-family="monospace" font-size="%.0f" text-anchor="%s" fill="rgb(12,0,249)">%s</text>`+"\n",
			t.x, t.y, r/12, t.anchor, t.title)
		ew.printf(`<text x="%.1f" y="%.1f" font-family="monospace" font-size="%.0f" text-anchor="%s" dominant-baseline="hanging" fill="rgb(12,0,249)">%s</text>`+"\n",
			t.x, t.y, r/6, t.anchor, t.value)
	}
	ew.printf("</svg>\n")
	return ew.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
