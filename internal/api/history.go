package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/banshee-data/helm/internal/db"
	"github.com/banshee-data/helm/internal/history"
	"github.com/banshee-data/helm/internal/httputil"
)

const (
	defaultHistoryWindow = time.Hour
	maxHistoryWindow     = 7 * 24 * time.Hour
)

// historyWindow reads the window from either from/to (RFC 3339) or a
// trailing window duration such as "30m". The default is the last hour.
func (s *Server) historyWindow(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	to := s.clock.Now()
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid 'to' parameter: %w", err)
		}
		to = t
	}

	from := to.Add(-defaultHistoryWindow)
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid 'from' parameter: %w", err)
		}
		from = t
	} else if v := q.Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid 'window' parameter %q", v)
		}
		from = to.Add(-d)
	}

	if !from.Before(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("'from' must be before 'to'")
	}
	if to.Sub(from) > maxHistoryWindow {
		return time.Time{}, time.Time{}, fmt.Errorf("window longer than %s", maxHistoryWindow)
	}
	return from, to, nil
}

func (s *Server) loadHistory(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, []db.NavSample, bool) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return time.Time{}, time.Time{}, nil, false
	}
	if s.db == nil {
		httputil.Unavailable(w, "database")
		return time.Time{}, time.Time{}, nil, false
	}
	from, to, err := s.historyWindow(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return time.Time{}, time.Time{}, nil, false
	}
	samples, err := s.db.NavHistory(from, to)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve nav history: %v", err))
		return time.Time{}, time.Time{}, nil, false
	}
	return from, to, samples, true
}

func (s *Server) showHistoryStats(w http.ResponseWriter, r *http.Request) {
	from, to, samples, ok := s.loadHistory(w, r)
	if !ok {
		return
	}
	goals, err := s.db.GoalSelections(from, to)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve goal selections: %v", err))
		return
	}
	httputil.WriteJSONOK(w, history.Summarize(from, to, samples, goals))
}

func (s *Server) renderHistoryChart(w http.ResponseWriter, r *http.Request) {
	_, _, samples, ok := s.loadHistory(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := history.RenderChart(&buf, "Heading history", samples); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.Copy(w, &buf)
}

func (s *Server) renderHistoryPlot(w http.ResponseWriter, r *http.Request) {
	_, _, samples, ok := s.loadHistory(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := history.RenderPlot(&buf, "Heading and rudder", samples); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to render plot: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	io.Copy(w, &buf)
}
