package api

import (
	"bytes"
	"errors"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/helm/internal/config"
	"github.com/banshee-data/helm/internal/units"
)

func TestNewServerDefaults(t *testing.T) {
	s := NewServer(Options{Units: "furlongs"})
	assert.Equal(t, units.KN, s.units)
	assert.NotNil(t, s.clock)
	assert.NotNil(t, s.cfg)
}

func TestShowConfig(t *testing.T) {
	cfg := config.EmptyHelmConfig()
	step := 5.0
	cfg.ButtonStep = &step
	s := NewServer(Options{Units: units.MPH, Config: cfg})

	w := httptest.NewRecorder()
	s.ServeMux().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var got map[string]interface{}
	decode(t, w, &got)
	assert.Equal(t, "mph", got["units"])
	assert.Equal(t, "mph", got["units_label"])
	assert.Equal(t, "approximate", got["hit_policy"])
	assert.Equal(t, 5.0, got["button_step"])
	assert.Equal(t, false, got["stale_guard"])
	assert.Contains(t, got, "version")

	w = httptest.NewRecorder()
	s.ServeMux().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/config", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestShowIP(t *testing.T) {
	tests := []struct {
		name  string
		addrs []net.Addr
		err   error
		code  int
		want  string
	}{
		{
			name: "first non-loopback v4",
			addrs: []net.Addr{
				&net.IPNet{IP: net.ParseIP("127.0.0.1"), Mask: net.CIDRMask(8, 32)},
				&net.IPNet{IP: net.ParseIP("fe80::1"), Mask: net.CIDRMask(64, 128)},
				&net.IPNet{IP: net.ParseIP("192.168.1.20"), Mask: net.CIDRMask(24, 32)},
				&net.IPNet{IP: net.ParseIP("10.0.0.5"), Mask: net.CIDRMask(8, 32)},
			},
			code: http.StatusOK,
			want: `{"ip":"192.168.1.20"}`,
		},
		{
			name:  "loopback only",
			addrs: []net.Addr{&net.IPNet{IP: net.ParseIP("127.0.0.1"), Mask: net.CIDRMask(8, 32)}},
			code:  http.StatusNotFound,
		},
		{
			name: "lookup fails",
			err:  errors.New("netlink"),
			code: http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(Options{})
			s.interfaceAddrs = func() ([]net.Addr, error) { return tt.addrs, tt.err }
			w := httptest.NewRecorder()
			s.ServeMux().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ip", nil))
			assert.Equal(t, tt.code, w.Code)
			if tt.want != "" {
				assert.JSONEq(t, tt.want, w.Body.String())
			}
		})
	}
}

func TestUnavailableComponents(t *testing.T) {
	e := &testEnv{handler: NewServer(Options{}).ServeMux()}
	for _, path := range []string{"/api/logging/status", "/api/logging/sessions", "/api/logging/sessions/abc", "/api/feed", "/api/feed/port"} {
		w := e.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
		assert.Contains(t, w.Body.String(), "not available")
	}
}

func TestMetricsMiddleware(t *testing.T) {
	e := newTestEnv(t)
	h := MetricsMiddleware(e.metrics, e.handler)

	for _, path := range []string{"/api/nav", "/api/nav", "/api/nav?units=bogus"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(e.metrics.HTTPRequests.WithLabelValues("GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.HTTPRequests.WithLabelValues("GET", "400")))

	assert.Equal(t, e.handler, MetricsMiddleware(nil, e.handler), "nil metrics leaves the handler alone")
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.do(t, http.MethodPost, "/api/goal/starboard", nil)

	w := e.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `helm_gestures_total{kind="starboard"} 1`)
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(prev)

	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/nav?units=kn", nil))

	out := buf.String()
	assert.Contains(t, out, "418")
	assert.Contains(t, out, "/api/nav?units=kn")
	assert.True(t, strings.Contains(out, colorBoldRed), "client errors are red")
}

func TestStatusCodeColor(t *testing.T) {
	assert.Equal(t, colorBoldGreen+"200"+colorReset, statusCodeColor(200))
	assert.Equal(t, colorYellow+"304"+colorReset, statusCodeColor(304))
	assert.Equal(t, colorBoldRed+"404"+colorReset, statusCodeColor(404))
	assert.Equal(t, colorBoldRed+"503"+colorReset, statusCodeColor(503))
	assert.Equal(t, "101", statusCodeColor(101))
}

func TestLoggingResponseWriterFlush(t *testing.T) {
	rec := httptest.NewRecorder()
	lrw := &loggingResponseWriter{rec, http.StatusOK}
	lrw.Flush()
	assert.True(t, rec.Flushed)
}
