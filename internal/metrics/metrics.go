// Package metrics exposes appliance counters in Prometheus format.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ayusman/agni/internal/dispatch"
)

// Result labels for notification and upload counters.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

// Metrics holds all application metrics
type Metrics struct {
	FramesRead    atomic.Uint64
	FramesSkipped atomic.Uint64
	ReadErrors    atomic.Uint64
	DetectErrors  atomic.Uint64

	// Hazard state: 0 = clear, 1 = detected
	HazardDetected atomic.Uint64
	EpisodeUploads atomic.Uint64

	detections    *prometheus.CounterVec
	publishes     *prometheus.CounterVec
	notifications *prometheus.CounterVec
	uploads       *prometheus.CounterVec
	inference     prometheus.Histogram

	queue atomic.Pointer[dispatch.Queue]

	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agni_detections_total",
			Help: "Detections above the confidence threshold by class",
		}, []string{"class"}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agni_state_publishes_total",
			Help: "Detect flag publishes by value and result",
		}, []string{"detected", "result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agni_notifications_total",
			Help: "Alert notifications by result",
		}, []string{"result"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agni_uploads_total",
			Help: "Capture uploads by result",
		}, []string{"result"}),
		inference: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "agni_inference_seconds",
			Help:    "Detector latency per evaluated frame",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
	}

	m.registry.MustRegister(m.detections, m.publishes, m.notifications, m.uploads, m.inference)
	m.registerGauges()

	return m
}

func (m *Metrics) registerGauges() {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "agni_frames_read_total",
			Help: "Total frames read from the source",
		},
		func() float64 { return float64(m.FramesRead.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "agni_frames_skipped_total",
			Help: "Frames that reused the previous verdict because nothing moved",
		},
		func() float64 { return float64(m.FramesSkipped.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "agni_read_errors_total",
			Help: "Total frame read errors",
		},
		func() float64 { return float64(m.ReadErrors.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "agni_detect_errors_total",
			Help: "Total detector errors",
		},
		func() float64 { return float64(m.DetectErrors.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "agni_hazard_detected",
			Help: "Mirrored detect flag (0=clear, 1=detected)",
		},
		func() float64 { return float64(m.HazardDetected.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "agni_episode_uploads",
			Help: "Uploads sent in the current episode",
		},
		func() float64 { return float64(m.EpisodeUploads.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "agni_dispatch_dropped_total",
			Help: "Background tasks dropped because the queue was full",
		},
		func() float64 { return float64(m.queueStats().Dropped) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "agni_dispatch_pending",
			Help: "Background tasks waiting for a worker",
		},
		func() float64 { return float64(m.queueStats().Pending) },
	))
}

// WatchQueue reports the queue's counters from now on.
func (m *Metrics) WatchQueue(q *dispatch.Queue) {
	m.queue.Store(q)
}

func (m *Metrics) queueStats() dispatch.Stats {
	if q := m.queue.Load(); q != nil {
		return q.Stats()
	}
	return dispatch.Stats{}
}

// ObserveDetections counts each detection by class.
func (m *Metrics) ObserveDetections(counts map[string]int) {
	for class, n := range counts {
		m.detections.WithLabelValues(class).Add(float64(n))
	}
}

// ObserveInference records one detector call.
func (m *Metrics) ObserveInference(seconds float64) {
	m.inference.Observe(seconds)
}

// ObservePublish counts a detect flag publish.
func (m *Metrics) ObservePublish(detected bool, err error) {
	v := "false"
	if detected {
		v = "true"
		m.HazardDetected.Store(1)
	} else {
		m.HazardDetected.Store(0)
	}
	m.publishes.WithLabelValues(v, result(err)).Inc()
}

// ObserveNotification counts an alert delivery attempt.
func (m *Metrics) ObserveNotification(res string) {
	m.notifications.WithLabelValues(res).Inc()
}

// ObserveUpload counts a capture upload attempt.
func (m *Metrics) ObserveUpload(res string) {
	m.uploads.WithLabelValues(res).Inc()
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
