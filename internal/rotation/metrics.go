package rotation

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes rotation counters and timings. Registration happens once
// per process; repeated NewMetrics calls share the same collectors.
type Metrics struct {
	rotationStarted   *prometheus.CounterVec
	rotationCompleted *prometheus.CounterVec
	rotationDuration  *prometheus.HistogramVec
	breachChecks      *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// NewMetrics returns the process-wide rotation metrics, registering them
// with the default registry on first use.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = &Metrics{
			rotationStarted: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "credkeeper_rotation_started_total",
				Help: "Rotation attempts started, by credential type.",
			}, []string{"type_id"}),
			rotationCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "credkeeper_rotation_completed_total",
				Help: "Rotation attempts finished, by credential type and outcome.",
			}, []string{"type_id", "outcome"}),
			rotationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "credkeeper_rotation_duration_seconds",
				Help:    "Wall time of rotation attempts.",
				Buckets: prometheus.DefBuckets,
			}, []string{"type_id"}),
			breachChecks: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "credkeeper_breach_check_total",
				Help: "Breach corpus lookups, by result.",
			}, []string{"result"}),
		}
	})
	return metrics
}

func (m *Metrics) rotationStart(typeID string) {
	m.rotationStarted.WithLabelValues(typeID).Inc()
}

func (m *Metrics) rotationDone(typeID string, outcome Outcome, seconds float64) {
	m.rotationCompleted.WithLabelValues(typeID, string(outcome)).Inc()
	m.rotationDuration.WithLabelValues(typeID).Observe(seconds)
}

func (m *Metrics) breachCheck(result string) {
	m.breachChecks.WithLabelValues(result).Inc()
}
