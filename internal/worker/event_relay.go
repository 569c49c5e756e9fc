package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/helpdesk-labs/helpdesk-service/internal/events"
	"github.com/helpdesk-labs/helpdesk-service/internal/observability"
)

const defaultRelayQueueSize = 256

// EventRelay moves dispatched events onto a bounded queue and delivers them
// to a slow sink, such as the Kafka publisher, from a single goroutine.
// Publishing never waits on the sink; when the queue is full the event is
// dropped and counted.
type EventRelay struct {
	mu      sync.Mutex
	queue   chan events.Event
	sink    events.EventHandler
	logger  *zap.Logger
	metrics *observability.Metrics
	running bool
	closed  bool
	done    chan struct{}
}

// NewEventRelay buffers up to size events for sink.
func NewEventRelay(sink events.EventHandler, size int, logger *zap.Logger, metrics *observability.Metrics) *EventRelay {
	if size <= 0 {
		size = defaultRelayQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventRelay{
		queue:   make(chan events.Event, size),
		sink:    sink,
		logger:  logger,
		metrics: metrics,
		done:    make(chan struct{}),
	}
}

// Register subscribes the relay to every event type.
func (r *EventRelay) Register(dispatcher events.Dispatcher) {
	if dispatcher == nil {
		return
	}
	for _, eventType := range events.AllEventTypes {
		dispatcher.Subscribe(eventType, r.Enqueue)
	}
}

// Enqueue hands event to the relay without blocking.
func (r *EventRelay) Enqueue(_ context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.drop(event, "relay stopped")
		return nil
	}
	select {
	case r.queue <- event:
	default:
		r.drop(event, "relay queue full")
	}
	return nil
}

// Start launches the delivery goroutine.
func (r *EventRelay) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running || r.closed {
		return
	}
	r.running = true
	go r.run()
	r.logger.Info("event relay started", zap.Int("queue_size", cap(r.queue)))
}

// Stop refuses new events, delivers what is already queued and returns once
// the queue is empty or ctx ends.
func (r *EventRelay) Stop(ctx context.Context) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	running := r.running
	r.mu.Unlock()

	if !running {
		return
	}
	select {
	case <-r.done:
		r.logger.Info("event relay drained")
	case <-ctx.Done():
		r.logger.Warn("event relay stopped before drain",
			zap.Int("pending", len(r.queue)),
			zap.Error(ctx.Err()))
	}
}

// Pending reports how many events wait for delivery.
func (r *EventRelay) Pending() int {
	return len(r.queue)
}

func (r *EventRelay) run() {
	defer close(r.done)
	for event := range r.queue {
		// The sink applies its own write timeout.
		if err := r.sink(context.Background(), event); err != nil {
			r.logger.Debug("event relay delivery failed",
				zap.String("event_type", string(event.Type)),
				zap.String("ticket_id", event.TicketID),
				zap.Error(err))
		}
	}
}

func (r *EventRelay) drop(event events.Event, reason string) {
	r.metrics.EventDropped()
	r.logger.Warn("domain event dropped",
		zap.String("reason", reason),
		zap.String("event_type", string(event.Type)),
		zap.String("ticket_id", event.TicketID))
}
