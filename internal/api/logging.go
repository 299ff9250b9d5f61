package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/banshee-data/helm/internal/db"
	"github.com/banshee-data/helm/internal/history"
	"github.com/banshee-data/helm/internal/httputil"
	"github.com/banshee-data/helm/internal/security"
)

func (s *Server) showLoggingStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.logger == nil {
		httputil.Unavailable(w, "frame logging")
		return
	}
	httputil.WriteJSONOK(w, s.logger.Status())
}

func (s *Server) startLogging(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.logger == nil {
		httputil.Unavailable(w, "frame logging")
		return
	}
	sess, err := s.logger.Start(strings.TrimSpace(r.FormValue("label")))
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to start logging: %v", err))
		return
	}
	httputil.WriteJSONOK(w, sess)
}

func (s *Server) stopLogging(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.logger == nil {
		httputil.Unavailable(w, "frame logging")
		return
	}
	sess, err := s.logger.Stop()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to stop logging: %v", err))
		return
	}
	if sess == nil {
		httputil.WriteJSONOK(w, map[string]string{"status": "idle"})
		return
	}
	httputil.WriteJSONOK(w, sess)
}

func (s *Server) restartLogging(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.logger == nil {
		httputil.Unavailable(w, "frame logging")
		return
	}
	sess, err := s.logger.Restart(strings.TrimSpace(r.FormValue("label")))
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to restart logging: %v", err))
		return
	}
	httputil.WriteJSONOK(w, sess)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.Unavailable(w, "database")
		return
	}
	sessions, err := s.db.Sessions()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve sessions: %v", err))
		return
	}
	httputil.WriteJSONOK(w, sessions)
}

// sessionRoutes dispatches /api/logging/sessions/{id}[/frames|/download|/stats].
func (s *Server) sessionRoutes(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		httputil.Unavailable(w, "database")
		return
	}
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/logging/sessions/"), "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		httputil.BadRequest(w, "Missing session ID")
		return
	}
	id := parts[0]

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			s.showSession(w, id)
		case http.MethodDelete:
			s.deleteSession(w, id)
		default:
			httputil.MethodNotAllowed(w)
		}
	case len(parts) == 2 && r.Method == http.MethodGet:
		switch parts[1] {
		case "frames":
			s.listFrames(w, r, id)
		case "download":
			s.downloadSession(w, id)
		case "stats":
			s.showSessionStats(w, id)
		default:
			httputil.NotFound(w, "unknown session resource")
		}
	case len(parts) == 2:
		httputil.MethodNotAllowed(w)
	default:
		httputil.NotFound(w, "unknown session resource")
	}
}

func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, db.ErrSessionNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, db.ErrInvalidCANID):
		httputil.BadRequest(w, err.Error())
	default:
		httputil.InternalServerError(w, err.Error())
	}
}

func (s *Server) showSession(w http.ResponseWriter, id string) {
	sess, err := s.db.GetSession(id)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	httputil.WriteJSONOK(w, sess)
}

func (s *Server) deleteSession(w http.ResponseWriter, id string) {
	if s.logger != nil {
		if st := s.logger.Status(); st.Session != nil && st.Session.ID == id {
			httputil.Conflict(w, "session is still logging; stop it first")
			return
		}
	}
	if err := s.db.DeleteSession(id); err != nil {
		s.writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listFrames accepts repeated or comma separated can_id parameters.
func (s *Server) listFrames(w http.ResponseWriter, r *http.Request, id string) {
	var canIDs []string
	for _, v := range r.URL.Query()["can_id"] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				canIDs = append(canIDs, part)
			}
		}
	}
	frames, err := s.db.Frames(id, canIDs)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	httputil.WriteJSONOK(w, frames)
}

func (s *Server) showSessionStats(w http.ResponseWriter, id string) {
	frames, err := s.db.Frames(id, nil)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	httputil.WriteJSONOK(w, history.FrameStats(frames))
}

func (s *Server) downloadSession(w http.ResponseWriter, id string) {
	sess, err := s.db.GetSession(id)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	name := sess.Label
	if name == "" {
		name = sess.ID
	}
	filename := security.SanitizeFilename(name) + ".csv"

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := s.db.ExportSessionCSV(w, id); err != nil {
		log.Printf("failed to export session %s: %v", id, err)
	}
}
