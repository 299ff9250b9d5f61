package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/banshee-data/helm/internal/dial"
	"github.com/banshee-data/helm/internal/feed"
	"github.com/banshee-data/helm/internal/httputil"
	"github.com/banshee-data/helm/internal/units"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 * 1024

// NavResponse is a dial view with the speed converted to display units.
type NavResponse struct {
	dial.View
	SpeedDisplay float64 `json:"speed_display"`
	SpeedUnits   string  `json:"speed_units"`
}

func (s *Server) navResponse(v dial.View, unit string) NavResponse {
	return NavResponse{
		View:         v,
		SpeedDisplay: units.ConvertSpeed(v.Speed, unit),
		SpeedUnits:   units.Label(unit),
	}
}

// unitsParam returns the units query parameter, or the server default.
func (s *Server) unitsParam(r *http.Request) (string, error) {
	u := r.URL.Query().Get("units")
	if u == "" {
		return s.units, nil
	}
	if !units.IsValid(u) {
		return "", fmt.Errorf("invalid units %q: expected one of %s", u, units.GetValidUnitsString())
	}
	return u, nil
}

func decodeJSONBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func (s *Server) showNav(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	unit, err := s.unitsParam(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, s.navResponse(s.owner.Latest(), unit))
}

// streamNav pushes every published view as a Server-Sent Event named
// nav_update, starting with the current one.
func (s *Server) streamNav(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	unit, err := s.unitsParam(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	id, views := s.owner.Subscribe()
	defer s.owner.Unsubscribe(id)
	s.metrics.StreamOpened()
	defer s.metrics.StreamClosed()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	if err := writeEvent(w, feed.NavEvent, s.navResponse(s.owner.Latest(), unit)); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case v, ok := <-views:
			if !ok {
				return
			}
			if err := writeEvent(w, feed.NavEvent, s.navResponse(v, unit)); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, data interface{}) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b)
	return err
}

func (s *Server) renderDial(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	var side float64
	if v := r.URL.Query().Get("size"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed <= 0 || parsed > 4096 {
			httputil.BadRequest(w, "Invalid 'size' parameter")
			return
		}
		side = parsed
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-cache")
	if err := dial.RenderSVG(w, s.owner.Latest(), side); err != nil {
		log.Printf("failed to render dial: %v", err)
	}
}

// PointerResponse reports the outcome of a pointer event.
type PointerResponse struct {
	Changed bool             `json:"changed"`
	Change  *dial.GoalChange `json:"change,omitempty"`
	View    dial.View        `json:"view"`
}

func (s *Server) handlePointer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var ev dial.PointerEvent
	if err := decodeJSONBody(r, &ev); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	switch ev.Kind {
	case dial.PointerDown, dial.PointerMove, dial.PointerUp, dial.DoubleClick,
		dial.TouchStart, dial.TouchMove, dial.TouchEnd:
	default:
		httputil.BadRequest(w, fmt.Sprintf("unknown pointer kind %q", ev.Kind))
		return
	}

	c, changed, err := s.owner.Pointer(r.Context(), ev)
	if err != nil {
		if errors.Is(err, dial.ErrNoPointer) {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.InternalServerError(w, err.Error())
		return
	}
	resp := PointerResponse{Changed: changed, View: s.owner.Latest()}
	if changed {
		resp.Change = &c
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var l dial.Layout
	if err := decodeJSONBody(r, &l); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err := s.owner.SetLayout(r.Context(), l); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, s.owner.Latest())
}

// GoalResponse is the outbound goal together with what the autopilot last
// acknowledged, if anything.
type GoalResponse struct {
	DesiredGoal float64  `json:"desired_goal"`
	Goal        float64  `json:"goal"`
	AckedGoal   *float64 `json:"acked_goal,omitempty"`
}

func (s *Server) showGoal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	v := s.owner.Latest()
	resp := GoalResponse{DesiredGoal: v.DesiredGoal, Goal: v.Goal}
	if s.feed != nil {
		if acked, ok := s.feed.AckedGoal(); ok {
			resp.AckedGoal = &acked
		}
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) handleButton(kind dial.GestureKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		var (
			c   dial.GoalChange
			err error
		)
		switch kind {
		case dial.GesturePort:
			c, err = s.owner.Port(r.Context())
		case dial.GestureStarboard:
			c, err = s.owner.Starboard(r.Context())
		default:
			c, err = s.owner.Reset(r.Context())
		}
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, c)
	}
}
