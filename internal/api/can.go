package api

import (
	"net/http"
	"strconv"

	"github.com/banshee-data/helm/internal/canbus"
	"github.com/banshee-data/helm/internal/httputil"
)

// CANStatsResponse is the link state plus the number of frames seen.
type CANStatsResponse struct {
	canbus.LinkStats
	Frames uint64 `json:"frames"`
}

func (s *Server) showCANStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.link == nil {
		httputil.Unavailable(w, "CAN link")
		return
	}
	st, err := s.link.Stats()
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	resp := CANStatsResponse{LinkStats: st}
	if s.summary != nil {
		resp.Frames = s.summary.Total()
	}
	httputil.WriteJSONOK(w, resp)
}

// startCAN brings the link up at the requested bitrate. Unsupported
// bitrates fall back to the default rather than failing.
func (s *Server) startCAN(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.link == nil {
		httputil.Unavailable(w, "CAN link")
		return
	}
	bitrate := s.cfg.GetCANBitrate()
	if v := r.FormValue("bitrate"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			httputil.BadRequest(w, "Invalid 'bitrate' parameter")
			return
		}
		bitrate = parsed
	}
	res, err := s.link.Start(bitrate)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, res)
		return
	}
	httputil.WriteJSONOK(w, res)
}

func (s *Server) stopCAN(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.link == nil {
		httputil.Unavailable(w, "CAN link")
		return
	}
	res, err := s.link.Stop()
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, res)
		return
	}
	httputil.WriteJSONOK(w, res)
}
