package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/danmuck/codetango/internal/coordinator"
)

var (
	registerOnce sync.Once

	barrierArrivals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codetango",
			Subsystem: "barrier",
			Name:      "arrivals_total",
			Help:      "Barrier submissions received per participant.",
		},
		[]string{"program_id"},
	)
	barrierCompletions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codetango",
			Subsystem: "barrier",
			Name:      "completions_total",
			Help:      "Barriers reached by both participants, by comparison result.",
		},
		[]string{"result"},
	)
	barrierDifferences = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "codetango",
			Subsystem: "barrier",
			Name:      "differences_total",
			Help:      "Variable differences found across all barrier comparisons.",
		},
	)
	malformedMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codetango",
			Subsystem: "session",
			Name:      "malformed_messages_total",
			Help:      "Messages rejected with an invalid-format verdict.",
		},
		[]string{"program_id"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codetango",
			Subsystem: "admin",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "codetango",
			Subsystem: "admin",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

const (
	ResultMatch  = "match"
	ResultDiffer = "differ"
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			barrierArrivals,
			barrierCompletions,
			barrierDifferences,
			malformedMessages,
			httpRequests,
			httpDuration,
		)
	})
}

func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, route, statusLabel).Inc()
	httpDuration.WithLabelValues(method, route, statusLabel).Observe(duration.Seconds())
}

// BarrierMetrics feeds coordinator events into the process-wide collectors.
type BarrierMetrics struct{}

var _ coordinator.Observer = BarrierMetrics{}

func NewBarrierMetrics() BarrierMetrics {
	RegisterMetrics()
	return BarrierMetrics{}
}

func (BarrierMetrics) Arrived(programID, _ string) {
	barrierArrivals.WithLabelValues(programID).Inc()
}

func (BarrierMetrics) Completed(_ string, differences int) {
	result := ResultMatch
	if differences > 0 {
		result = ResultDiffer
		barrierDifferences.Add(float64(differences))
	}
	barrierCompletions.WithLabelValues(result).Inc()
}

func (BarrierMetrics) Malformed(programID string) {
	malformedMessages.WithLabelValues(programID).Inc()
}
