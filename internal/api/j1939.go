package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/banshee-data/helm/internal/httputil"
	"github.com/banshee-data/helm/internal/j1939"
)

// SummaryEvent names the Server-Sent Event carrying bus summaries.
const SummaryEvent = "j1939_summary"

func (s *Server) showSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.summary == nil {
		httputil.Unavailable(w, "CAN summary")
		return
	}
	httputil.WriteJSONOK(w, s.summary.Snapshot())
}

// currentTabs rebuilds the tab set from the live summary and reapplies the
// operator's last selection. A source that has gone quiet falls back to the
// first tab.
func (s *Server) currentTabs() *j1939.Tabs {
	tabs := j1939.NewTabs(j1939.TreeFromSummary(s.summary.Snapshot()))
	s.tabsMu.Lock()
	defer s.tabsMu.Unlock()
	if s.selectedSource != "" {
		_ = tabs.SelectSource(s.selectedSource)
	}
	return tabs
}

func (s *Server) showTabs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.summary == nil {
		httputil.Unavailable(w, "CAN summary")
		return
	}
	httputil.WriteJSONOK(w, s.currentTabs())
}

func (s *Server) selectTab(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.summary == nil {
		httputil.Unavailable(w, "CAN summary")
		return
	}
	index, err := strconv.Atoi(r.FormValue("index"))
	if err != nil {
		httputil.BadRequest(w, "Invalid 'index' parameter")
		return
	}

	tabs := s.currentTabs()
	if err := tabs.Select(index); err != nil {
		if errors.Is(err, j1939.ErrNoTab) {
			httputil.NotFound(w, err.Error())
			return
		}
		httputil.InternalServerError(w, err.Error())
		return
	}

	s.tabsMu.Lock()
	s.selectedSource = tabs.Tabs[index].Source
	s.tabsMu.Unlock()

	httputil.WriteJSONOK(w, tabs)
}

// streamSummary pushes the bus summary every summary period.
func (s *Server) streamSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.summary == nil {
		httputil.Unavailable(w, "CAN summary")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	s.metrics.StreamOpened()
	defer s.metrics.StreamClosed()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ticker := s.clock.NewTicker(s.cfg.GetSummaryPeriod())
	defer ticker.Stop()

	for {
		if err := writeEvent(w, SummaryEvent, s.summary.Snapshot()); err != nil {
			return
		}
		flusher.Flush()

		select {
		case <-ticker.C():
		case <-r.Context().Done():
			return
		}
	}
}
