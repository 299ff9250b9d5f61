package monitoring

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banshee-data/helm/internal/j1939"
)

// Metrics bundles the Prometheus collectors for the helm service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer
	reg      prometheus.Registerer

	Frames            *prometheus.CounterVec
	SnapshotsApplied  prometheus.Counter
	SnapshotsRejected *prometheus.CounterVec
	Gestures          *prometheus.CounterVec
	FlushBatch        prometheus.Histogram
	StreamSubscribers prometheus.Gauge
	HTTPRequests      *prometheus.CounterVec
	HTTPDurations     *prometheus.HistogramVec
}

// NewMetrics registers the collectors against reg, defaulting to the global
// registry when nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	frames, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "helm_can_frames_total",
		Help: "CAN frames received, labeled by interface.",
	}, []string{"interface"}), "helm_can_frames_total")
	if err != nil {
		return nil, err
	}

	applied, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "helm_snapshots_applied_total",
		Help: "Autopilot snapshots applied to the dial.",
	}), "helm_snapshots_applied_total")
	if err != nil {
		return nil, err
	}

	rejected, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "helm_snapshots_rejected_total",
		Help: "Autopilot snapshots rejected by the dial, labeled by reason.",
	}, []string{"reason"}), "helm_snapshots_rejected_total")
	if err != nil {
		return nil, err
	}

	gestures, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "helm_gestures_total",
		Help: "Goal-changing gestures, labeled by kind.",
	}, []string{"kind"}), "helm_gestures_total")
	if err != nil {
		return nil, err
	}

	flush, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "helm_logging_flush_frames",
		Help:    "Frames written per logging flush.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	}), "helm_logging_flush_frames")
	if err != nil {
		return nil, err
	}

	subs, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "helm_stream_subscribers",
		Help: "Open server-sent event streams.",
	}), "helm_stream_subscribers")
	if err != nil {
		return nil, err
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "helm_http_requests_total",
		Help: "Handled HTTP requests, labeled by method and status code.",
	}, []string{"method", "code"}), "helm_http_requests_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "helm_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
	}, []string{"method"}), "helm_http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		gatherer:          gatherer,
		reg:               reg,
		Frames:            frames,
		SnapshotsApplied:  applied,
		SnapshotsRejected: rejected,
		Gestures:          gestures,
		FlushBatch:        flush,
		StreamSubscribers: subs,
		HTTPRequests:      requests,
		HTTPDurations:     durations,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (m *Metrics) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if m != nil && m.gatherer != nil {
		gatherer = m.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// HandleFrame counts a received CAN frame. It satisfies canbus.Sink.
func (m *Metrics) HandleFrame(f j1939.Frame) {
	if m == nil {
		return
	}
	m.Frames.WithLabelValues(f.Interface).Inc()
}

// SnapshotApplied counts an applied feed snapshot.
func (m *Metrics) SnapshotApplied() {
	if m == nil {
		return
	}
	m.SnapshotsApplied.Inc()
}

// SnapshotRejected counts a rejected feed snapshot.
func (m *Metrics) SnapshotRejected(reason string) {
	if m == nil {
		return
	}
	m.SnapshotsRejected.WithLabelValues(reason).Inc()
}

// Gesture counts a goal-changing gesture.
func (m *Metrics) Gesture(kind string) {
	if m == nil {
		return
	}
	m.Gestures.WithLabelValues(kind).Inc()
}

// ObserveFlush records the size of one logging flush.
func (m *Metrics) ObserveFlush(n int) {
	if m == nil {
		return
	}
	m.FlushBatch.Observe(float64(n))
}

// StreamOpened and StreamClosed track live event streams.
func (m *Metrics) StreamOpened() {
	if m == nil {
		return
	}
	m.StreamSubscribers.Inc()
}

func (m *Metrics) StreamClosed() {
	if m == nil {
		return
	}
	m.StreamSubscribers.Dec()
}

// ObserveRequest records one handled HTTP request.
func (m *Metrics) ObserveRequest(method string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.HTTPDurations.WithLabelValues(method).Observe(d.Seconds())
}

// CounterFunc exposes a monotonically increasing value read from fn at
// scrape time, such as the feed line counters.
func (m *Metrics) CounterFunc(name, help string, fn func() float64) error {
	if m == nil {
		return nil
	}
	c := prometheus.NewCounterFunc(prometheus.CounterOpts{Name: name, Help: help}, fn)
	if err := m.reg.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return c, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
