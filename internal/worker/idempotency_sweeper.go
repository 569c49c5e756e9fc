package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/helpdesk-labs/helpdesk-service/internal/observability"
)

// Sweeper evicts expired records and reports how many it removed.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// IdempotencySweeper runs the idempotency eviction pass on a cron schedule,
// independent of request traffic.
type IdempotencySweeper struct {
	mu      sync.Mutex
	cron    *cron.Cron
	target  Sweeper
	logger  *zap.Logger
	metrics *observability.Metrics
	timeout time.Duration
	running bool
}

// NewIdempotencySweeper schedules target on schedule, e.g. "@every 1m".
func NewIdempotencySweeper(target Sweeper, schedule string, logger *zap.Logger, metrics *observability.Metrics) (*IdempotencySweeper, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &IdempotencySweeper{
		cron:    cron.New(),
		target:  target,
		logger:  logger,
		metrics: metrics,
		timeout: 30 * time.Second,
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("sweeper: invalid schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins the schedule in the background.
func (s *IdempotencySweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.logger.Info("idempotency sweeper started")
}

// Stop halts the schedule and waits for a running sweep to finish or ctx
// to end.
func (s *IdempotencySweeper) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	s.logger.Info("idempotency sweeper stopped")
}

// SweepNow runs one eviction pass synchronously.
func (s *IdempotencySweeper) SweepNow(ctx context.Context) (int, error) {
	evicted, err := s.target.Sweep(ctx)
	if err != nil {
		return 0, err
	}
	s.metrics.IdempotencyEvicted(evicted)
	if evicted > 0 {
		s.logger.Debug("idempotency records evicted", zap.Int("count", evicted))
	}
	return evicted, nil
}

func (s *IdempotencySweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.SweepNow(ctx); err != nil {
		s.logger.Warn("idempotency sweep failed", zap.Error(err))
	}
}
