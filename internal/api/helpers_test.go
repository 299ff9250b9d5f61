package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/helm/internal/canbus"
	"github.com/banshee-data/helm/internal/config"
	"github.com/banshee-data/helm/internal/db"
	"github.com/banshee-data/helm/internal/dial"
	"github.com/banshee-data/helm/internal/feed"
	"github.com/banshee-data/helm/internal/j1939"
	"github.com/banshee-data/helm/internal/monitoring"
	"github.com/banshee-data/helm/internal/serialmux"
	"github.com/banshee-data/helm/internal/timeutil"
)

func init() {
	monitoring.SetLogger(nil)
}

var testEpoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	server  *Server
	handler http.Handler
	owner   *dial.Owner
	clock   *timeutil.MockClock
	db      *db.DB
	summary *j1939.Summary
	runner  *canbus.RecordingRunner
	logger  *db.FrameLogger
	feed    *feed.Feed
	port    *fakeMux
	opened  chan *fakeMux
	ports   *FeedPortManager
	metrics *monitoring.Metrics
	reg     *prometheus.Registry
}

// newTestEnv wires a server around a running owner, a temp database and mock
// CAN and serial plumbing. Everything is torn down by t.Cleanup.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := timeutil.NewMockClock(testEpoch)
	reg := prometheus.NewRegistry()
	metrics, err := monitoring.NewMetrics(reg)
	require.NoError(t, err)

	d, err := dial.New(dial.DefaultOptions())
	require.NoError(t, err)
	owner := dial.NewOwner(d, clock, time.Second, metrics)

	database, err := db.NewDB(filepath.Join(t.TempDir(), "helm.db"))
	require.NoError(t, err)

	runner := &canbus.RecordingRunner{}
	link := &canbus.Link{Interface: "can0", Sudo: true, Runner: runner}
	logger := db.NewFrameLogger(database, clock, time.Second)

	port := newFakeMux()
	opened := make(chan *fakeMux, 4)
	ports := NewFeedPortManager("autopilot", port, PortSnapshot{Source: "config"}, func(serialmux.PortOptions) (serialmux.SerialMuxInterface, error) {
		m := newFakeMux()
		opened <- m
		return m, nil
	})
	nav := feed.New(ports, owner)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		owner.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		ports.Close()
		database.Close()
	})

	summary := j1939.NewSummary()
	s := NewServer(Options{
		Owner:    owner,
		DB:       database,
		Summary:  summary,
		Link:     link,
		Logger:   logger,
		Feed:     nav,
		FeedPort: ports,
		Metrics:  metrics,
		Config:   config.EmptyHelmConfig(),
		Clock:    clock,
	})

	return &testEnv{
		server:  s,
		handler: s.ServeMux(),
		owner:   owner,
		clock:   clock,
		db:      database,
		summary: summary,
		runner:  runner,
		logger:  logger,
		feed:    nav,
		port:    port,
		opened:  opened,
		ports:   ports,
		metrics: metrics,
		reg:     reg,
	}
}

func (e *testEnv) do(t *testing.T, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) postJSON(t *testing.T, target string, v interface{}) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) postForm(t *testing.T, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

// addFrames feeds a small engine and transmission bus into the summary.
func (e *testEnv) addFrames() {
	e.summary.Add(j1939.NewFrame("can0", 0x18FEF100|j1939.EFFFlag, []byte{1, 2}, testEpoch))
	e.summary.Add(j1939.NewFrame("can0", 0x0CF00400|j1939.EFFFlag, []byte{3}, testEpoch.Add(50*time.Millisecond)))
	e.summary.Add(j1939.NewFrame("can0", 0x18F00503|j1939.EFFFlag, []byte{4}, testEpoch.Add(100*time.Millisecond)))
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), "body: %s", w.Body.String())
}

// fakeMux is a serial mux with one subscription channel that records
// commands.
type fakeMux struct {
	ch chan string

	mu     sync.Mutex
	sent   []string
	closed bool
}

func newFakeMux() *fakeMux {
	return &fakeMux{ch: make(chan string, 8)}
}

func (m *fakeMux) Subscribe() (string, chan string) { return "fake", m.ch }
func (m *fakeMux) Unsubscribe(string)               {}
func (m *fakeMux) Initialize() error                { return nil }
func (m *fakeMux) AttachAdminRoutes(*http.ServeMux) {}
func (m *fakeMux) Monitor(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (m *fakeMux) SendCommand(c string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, c)
	return nil
}

func (m *fakeMux) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.ch)
	}
	return nil
}

func (m *fakeMux) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *fakeMux) commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}
