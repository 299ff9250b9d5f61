// Package api serves the helm JSON API: the dial view and gestures, the J1939
// bus browser, CAN link control, frame logging sessions and nav history.
package api

import (
	"log"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/helm/internal/canbus"
	"github.com/banshee-data/helm/internal/config"
	"github.com/banshee-data/helm/internal/db"
	"github.com/banshee-data/helm/internal/dial"
	"github.com/banshee-data/helm/internal/feed"
	"github.com/banshee-data/helm/internal/httputil"
	"github.com/banshee-data/helm/internal/j1939"
	"github.com/banshee-data/helm/internal/monitoring"
	"github.com/banshee-data/helm/internal/timeutil"
	"github.com/banshee-data/helm/internal/units"
	"github.com/banshee-data/helm/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Options carries the components the API serves. Only Owner is required;
// routes whose component is nil answer 503.
type Options struct {
	Owner    *dial.Owner
	DB       *db.DB
	Summary  *j1939.Summary
	Link     *canbus.Link
	Logger   *db.FrameLogger
	Feed     *feed.Feed
	FeedPort *FeedPortManager
	Metrics  *monitoring.Metrics
	Config   *config.HelmConfig
	Clock    timeutil.Clock
	Units    string
}

type Server struct {
	owner    *dial.Owner
	db       *db.DB
	summary  *j1939.Summary
	link     *canbus.Link
	logger   *db.FrameLogger
	feed     *feed.Feed
	feedPort *FeedPortManager
	metrics  *monitoring.Metrics
	cfg      *config.HelmConfig
	clock    timeutil.Clock
	units    string

	// interfaceAddrs is swapped in tests.
	interfaceAddrs func() ([]net.Addr, error)

	tabsMu         sync.Mutex
	selectedSource string
}

func NewServer(opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Config == nil {
		opts.Config = config.EmptyHelmConfig()
	}
	if !units.IsValid(opts.Units) {
		opts.Units = units.KN
	}
	return &Server{
		owner:          opts.Owner,
		db:             opts.DB,
		summary:        opts.Summary,
		link:           opts.Link,
		logger:         opts.Logger,
		feed:           opts.Feed,
		feedPort:       opts.FeedPort,
		metrics:        opts.Metrics,
		cfg:            opts.Config,
		clock:          opts.Clock,
		units:          opts.Units,
		interfaceAddrs: net.InterfaceAddrs,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400 && statusCode < 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// MetricsMiddleware counts requests and their latency by method and status.
func MetricsMiddleware(m *monitoring.Metrics, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		m.ObserveRequest(r.Method, lrw.statusCode, time.Since(start))
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/nav", s.showNav)
	mux.HandleFunc("/api/nav/stream", s.streamNav)
	mux.HandleFunc("/api/dial.svg", s.renderDial)
	mux.HandleFunc("/api/dial/pointer", s.handlePointer)
	mux.HandleFunc("/api/dial/layout", s.handleLayout)
	mux.HandleFunc("/api/goal", s.showGoal)
	mux.HandleFunc("/api/goal/port", s.handleButton(dial.GesturePort))
	mux.HandleFunc("/api/goal/starboard", s.handleButton(dial.GestureStarboard))
	mux.HandleFunc("/api/goal/reset", s.handleButton(dial.GestureReset))

	mux.HandleFunc("/api/j1939/summary", s.showSummary)
	mux.HandleFunc("/api/j1939/tabs", s.showTabs)
	mux.HandleFunc("/api/j1939/tabs/select", s.selectTab)
	mux.HandleFunc("/api/j1939/stream", s.streamSummary)

	mux.HandleFunc("/api/can/stats", s.showCANStats)
	mux.HandleFunc("/api/can/start", s.startCAN)
	mux.HandleFunc("/api/can/stop", s.stopCAN)

	mux.HandleFunc("/api/logging/status", s.showLoggingStatus)
	mux.HandleFunc("/api/logging/start", s.startLogging)
	mux.HandleFunc("/api/logging/stop", s.stopLogging)
	mux.HandleFunc("/api/logging/restart", s.restartLogging)
	mux.HandleFunc("/api/logging/sessions", s.listSessions)
	mux.HandleFunc("/api/logging/sessions/", s.sessionRoutes)

	mux.HandleFunc("/api/history/stats", s.showHistoryStats)
	mux.HandleFunc("/api/history/chart", s.renderHistoryChart)
	mux.HandleFunc("/api/history/plot.png", s.renderHistoryPlot)

	mux.HandleFunc("/api/feed", s.showFeed)
	mux.HandleFunc("/api/feed/port", s.handleFeedPort)

	mux.HandleFunc("/api/ip", s.showIP)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.Handle("/metrics", s.metrics.Handler())
	return mux
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"units":       s.units,
		"units_label": units.Label(s.units),
		"hit_policy":  s.cfg.GetHitPolicy(),
		"button_step": s.cfg.GetButtonStep(),
		"stale_guard": s.cfg.GetStaleGuard(),
		"version":     version.Version,
		"git_sha":     version.GitSHA,
		"build_time":  version.BuildTime,
	})
}

// showIP reports the first non-loopback IPv4 address so a second display
// can find this one.
func (s *Server) showIP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	addrs, err := s.interfaceAddrs()
	if err != nil {
		httputil.InternalServerError(w, "failed to list interfaces: "+err.Error())
		return
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil {
			httputil.WriteJSONOK(w, map[string]string{"ip": ip4.String()})
			return
		}
	}
	httputil.NotFound(w, "no non-loopback IPv4 address")
}
