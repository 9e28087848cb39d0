package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the queue bridge. All methods are
// nil-safe so components can run without metrics in tests.
type Metrics struct {
	// Inbound processing outcomes by queue and result
	// (processed, duplicate, deferred, dropped, failed).
	InboundOutcome *prometheus.CounterVec

	// Handler execution latency by queue.
	HandlerLatency *prometheus.HistogramVec

	// Validation request outcomes by terminal state.
	ValidationOutcome *prometheus.CounterVec

	// End-to-end wait duration for correlated responses.
	AwaitLatency prometheus.Histogram
}

// New creates a Metrics instance with all queue bridge metrics registered.
func New() *Metrics {
	return &Metrics{
		InboundOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "retinagate_inbound_messages_total",
			Help: "Inbound queue messages by queue and processing result",
		}, []string{"queue", "result"}),

		HandlerLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "retinagate_inbound_handler_duration_seconds",
			Help:    "Duration of inbound message handler execution by queue",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"queue"}),

		ValidationOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "retinagate_validation_outcomes_total",
			Help: "Validation requests by terminal outcome",
		}, []string{"outcome"}),

		AwaitLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "retinagate_validation_await_duration_seconds",
			Help:    "Time spent waiting for a correlated validation response",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

// IncrementInbound records one inbound message result.
func (m *Metrics) IncrementInbound(queue, result string) {
	if m != nil {
		m.InboundOutcome.WithLabelValues(queue, result).Inc()
	}
}

// ObserveHandlerLatency records one handler execution.
func (m *Metrics) ObserveHandlerLatency(queue string, d time.Duration) {
	if m != nil {
		m.HandlerLatency.WithLabelValues(queue).Observe(d.Seconds())
	}
}

// IncrementOutcome records a validation terminal state.
func (m *Metrics) IncrementOutcome(outcome string) {
	if m != nil {
		m.ValidationOutcome.WithLabelValues(outcome).Inc()
	}
}

// ObserveAwait records one completed wait, successful or not.
func (m *Metrics) ObserveAwait(d time.Duration) {
	if m != nil {
		m.AwaitLatency.Observe(d.Seconds())
	}
}
