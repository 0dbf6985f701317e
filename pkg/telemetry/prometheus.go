package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "echobase"

// PrometheusMeter is the Meter backed by client_golang collectors.
type PrometheusMeter struct {
	received      prometheus.Counter
	processed     prometheus.Counter
	failed        *prometheus.CounterVec
	receiveErrors prometheus.Counter
	breakerOpen   prometheus.Gauge
	submitted     *prometheus.CounterVec
}

// NewPrometheusMeter registers the pipeline collectors on reg.
func NewPrometheusMeter(reg prometheus.Registerer) *PrometheusMeter {
	f := promauto.With(reg)
	return &PrometheusMeter{
		received: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consumer_messages_received_total",
			Help:      "Messages returned by queue receive calls",
		}),
		processed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consumer_messages_processed_total",
			Help:      "Messages persisted and deleted",
		}),
		failed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consumer_messages_failed_total",
			Help:      "Messages left in the queue after a handling failure",
		}, []string{"reason"}),
		receiveErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consumer_receive_errors_total",
			Help:      "Failed queue receive calls",
		}),
		breakerOpen: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consumer_circuit_breaker_open",
			Help:      "1 while the consumer circuit breaker is open",
		}),
		submitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_submitted_total",
			Help:      "Order submissions by outcome",
		}, []string{"outcome"}),
	}
}

func (m *PrometheusMeter) MessagesReceived(n int) {
	if n > 0 {
		m.received.Add(float64(n))
	}
}

func (m *PrometheusMeter) MessageProcessed() { m.processed.Inc() }

func (m *PrometheusMeter) MessageFailed(reason string) { m.failed.WithLabelValues(reason).Inc() }

func (m *PrometheusMeter) ReceiveError() { m.receiveErrors.Inc() }

func (m *PrometheusMeter) BreakerOpen(open bool) {
	if open {
		m.breakerOpen.Set(1)
		return
	}
	m.breakerOpen.Set(0)
}

func (m *PrometheusMeter) OrderSubmitted(outcome string) { m.submitted.WithLabelValues(outcome).Inc() }

var _ Meter = (*PrometheusMeter)(nil)
