package dial

import (
	"errors"
	"math"
)

// PointerKind identifies the host event a PointerEvent was extracted from.
type PointerKind string

const (
	PointerDown PointerKind = "down"
	PointerMove PointerKind = "move"
	PointerUp   PointerKind = "up"
	DoubleClick PointerKind = "dblclick"
	TouchStart  PointerKind = "touchstart"
	TouchMove   PointerKind = "touchmove"
	TouchEnd    PointerKind = "touchend"
)

// doubleTapDetail is the click count the host reports for a double tap.
const doubleTapDetail = 2

// ErrNoPointer is returned when an event carries no usable position, such as a
// touch event with an empty touch list.
var ErrNoPointer = errors.New("pointer event has no position")

// Touch is a single touch point in client (CSS pixel) coordinates.
type Touch struct {
	ClientX float64 `json:"client_x"`
	ClientY float64 `json:"client_y"`
}

// PointerEvent is the typed form of a mouse or touch event as delivered by the
// host view. Touch events carry their points in Touches (changed touches for
// touchend); only the first point is used.
type PointerEvent struct {
	Kind    PointerKind `json:"kind"`
	ClientX float64     `json:"client_x"`
	ClientY float64     `json:"client_y"`
	Touches []Touch     `json:"touches,omitempty"`
	// Detail is the host click count; a touchend with Detail 2 is a double tap.
	Detail int `json:"detail,omitempty"`
}

// IsTouch reports whether the event came from the touch path.
func (e PointerEvent) IsTouch() bool {
	switch e.Kind {
	case TouchStart, TouchMove, TouchEnd:
		return true
	}
	return false
}

// Client returns the client position of the event: the first touch point for
// touch events, the mouse position otherwise.
func (e PointerEvent) Client() (x, y float64, err error) {
	if e.IsTouch() {
		if len(e.Touches) == 0 {
			return 0, 0, ErrNoPointer
		}
		return e.Touches[0].ClientX, e.Touches[0].ClientY, nil
	}
	return e.ClientX, e.ClientY, nil
}

// PointerSample is a position relative to the instrument centre in device
// pixels, +x right and +y down.
type PointerSample struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the distance of the sample from the instrument centre.
func (s PointerSample) Distance() float64 {
	return math.Hypot(s.X, s.Y)
}

// Layout describes the on-screen geometry of the instrument. Left, Top, Width
// and Height are the CSS pixel bounding box; BufferWidth and BufferHeight are
// the backing buffer in device pixels and default to the box scaled by DPR.
type Layout struct {
	Left         float64 `json:"left"`
	Top          float64 `json:"top"`
	Width        float64 `json:"width"`
	Height       float64 `json:"height"`
	BufferWidth  float64 `json:"buffer_width,omitempty"`
	BufferHeight float64 `json:"buffer_height,omitempty"`
	DPR          float64 `json:"dpr,omitempty"`
}

// DefaultLayout is a 600 CSS pixel square at DPR 1, used until the host view
// reports its real geometry.
func DefaultLayout() Layout {
	return Layout{Width: 600, Height: 600, DPR: 1}.Normalized()
}

// Normalized fills in the device pixel ratio and buffer size when unset.
func (l Layout) Normalized() Layout {
	if l.DPR <= 0 || math.IsNaN(l.DPR) {
		l.DPR = 1
	}
	if l.BufferWidth <= 0 {
		l.BufferWidth = l.Width * l.DPR
	}
	if l.BufferHeight <= 0 {
		l.BufferHeight = l.Height * l.DPR
	}
	return l
}

// Validate rejects layouts that cannot map a pointer.
func (l Layout) Validate() error {
	if !(l.Width > 0) || !(l.Height > 0) {
		return errors.New("layout width and height must be positive")
	}
	return nil
}

// Radius is the dial radius in CSS pixels: half the largest square that fits
// the box.
func (l Layout) Radius() float64 {
	return math.Min(l.Width, l.Height) / 2
}

// MapPointer converts a client position into a centre-relative sample in
// device pixels. Horizontal and vertical scale factors are independent since
// the CSS box and the backing buffer may differ per axis.
func MapPointer(clientX, clientY float64, l Layout) PointerSample {
	l = l.Normalized()
	scaleX, scaleY := 1.0, 1.0
	if l.Width > 0 {
		scaleX = l.BufferWidth / l.Width
	}
	if l.Height > 0 {
		scaleY = l.BufferHeight / l.Height
	}
	cx := (clientX - l.Left) * scaleX
	cy := (clientY - l.Top) * scaleY
	return PointerSample{
		X: cx - l.BufferWidth/2,
		Y: cy - l.BufferHeight/2,
	}
}

// MapEvent maps the position of a pointer or touch event.
func MapEvent(ev PointerEvent, l Layout) (PointerSample, error) {
	x, y, err := ev.Client()
	if err != nil {
		return PointerSample{}, err
	}
	return MapPointer(x, y, l), nil
}
