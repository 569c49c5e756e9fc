package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service's prometheus collectors. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	reqTotal           *prometheus.CounterVec
	reqLatency         *prometheus.HistogramVec
	errTotal           *prometheus.CounterVec
	idempotencyReplays prometheus.Counter
	idempotencyEvicted prometheus.Counter
	ticketConflicts    prometheus.Counter
	slaBreaches        prometheus.Counter
	eventsDropped      prometheus.Counter
}

// NewMetrics registers collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reqTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"route", "method", "status"},
		),
		reqLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		errTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_errors_total",
				Help: "HTTP error responses by stable error code.",
			},
			[]string{"route", "method", "code"},
		),
		idempotencyReplays: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "helpdesk_idempotency_replays_total",
			Help: "Ticket creations answered from the idempotency cache.",
		}),
		idempotencyEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "helpdesk_idempotency_evictions_total",
			Help: "Idempotency records evicted by the sweeper.",
		}),
		ticketConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "helpdesk_ticket_conflicts_total",
			Help: "Ticket updates rejected with a stale version.",
		}),
		slaBreaches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "helpdesk_sla_breaches_total",
			Help: "Tickets newly flagged as SLA breached.",
		}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "helpdesk_events_dropped_total",
			Help: "Domain events dropped because the broker relay queue was full.",
		}),
	}
	reg.MustRegister(
		m.reqTotal,
		m.reqLatency,
		m.errTotal,
		m.idempotencyReplays,
		m.idempotencyEvicted,
		m.ticketConflicts,
		m.slaBreaches,
		m.eventsDropped,
	)
	return m
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.reqTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.reqLatency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errTotal.WithLabelValues(route, method, code).Inc()
}

func (m *Metrics) IdempotencyReplayed() {
	if m == nil {
		return
	}
	m.idempotencyReplays.Inc()
}

func (m *Metrics) IdempotencyEvicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.idempotencyEvicted.Add(float64(n))
}

func (m *Metrics) TicketConflict() {
	if m == nil {
		return
	}
	m.ticketConflicts.Inc()
}

func (m *Metrics) SLABreached() {
	if m == nil {
		return
	}
	m.slaBreaches.Inc()
}

func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}
