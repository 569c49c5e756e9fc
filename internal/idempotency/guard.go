// Package idempotency suppresses duplicate ticket-creation requests that
// carry the same client-supplied key.
//
// Deduplication of in-flight requests is per process. Completed results are
// shared through the backing Store, so a shared Store (Redis) extends replay
// across instances but two instances racing on the same brand new key can
// still both execute.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/helpdesk-labs/helpdesk-service/internal/clock"
)

// DefaultRetention is how long a recorded result is replayed.
const DefaultRetention = 5 * time.Minute

// ErrKeyRequired is returned when a creation request carries no key.
var ErrKeyRequired = errors.New("idempotency key required")

// Record is a cached creation result.
type Record struct {
	Key        string    `json:"key"`
	Payload    []byte    `json:"payload"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Store persists records. Implementations must be safe for concurrent use.
type Store interface {
	// Get returns nil without error on a miss.
	Get(ctx context.Context, key string) (*Record, error)
	Put(ctx context.Context, record Record, ttl time.Duration) error
	// Sweep deletes records recorded before cutoff and reports how many.
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
}

// Guard executes a creation at most once per key within the retention window.
type Guard struct {
	store     Store
	clock     clock.Clock
	retention time.Duration
	logger    *zap.Logger
	flights   singleflight.Group
}

// NewGuard builds a guard over store.
func NewGuard(store Store, clk clock.Clock, retention time.Duration, logger *zap.Logger) *Guard {
	if clk == nil {
		clk = clock.Real()
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{store: store, clock: clk, retention: retention, logger: logger}
}

// Retention returns the replay window.
func (g *Guard) Retention() time.Duration {
	return g.retention
}

// Check returns the live record for key, treating expired records as a miss.
func (g *Guard) Check(ctx context.Context, key string) (*Record, bool, error) {
	record, err := g.store.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if record == nil || g.expired(record) {
		return nil, false, nil
	}
	return record, true, nil
}

// Store records payload as the result for key.
func (g *Guard) Store(ctx context.Context, key string, payload []byte) error {
	return g.store.Put(ctx, Record{
		Key:        key,
		Payload:    payload,
		RecordedAt: g.clock.Now(),
	}, g.retention)
}

// Do returns the cached payload for key, or runs create and caches its
// result. Concurrent calls with the same key share one execution. Failed
// creations are not cached.
//
// The shared execution is detached from the cancellation of whichever
// caller started it, so one caller giving up never fails the others. A
// caller whose ctx ends stops waiting and gets ctx.Err(); the creation still
// completes and is replayed on retry.
func (g *Guard) Do(ctx context.Context, key string, create func(ctx context.Context) ([]byte, error)) ([]byte, bool, error) {
	if strings.TrimSpace(key) == "" {
		return nil, false, ErrKeyRequired
	}

	type outcome struct {
		payload  []byte
		replayed bool
	}

	flightCtx := context.WithoutCancel(ctx)
	executed := false
	ch := g.flights.DoChan(key, func() (any, error) {
		executed = true
		record, ok, err := g.Check(flightCtx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			return outcome{payload: record.Payload, replayed: true}, nil
		}
		payload, err := create(flightCtx)
		if err != nil {
			return nil, err
		}
		if err := g.Store(flightCtx, key, payload); err != nil {
			g.logger.Warn("idempotency record not stored", zap.String("key", key), zap.Error(err))
		}
		return outcome{payload: payload}, nil
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		out := res.Val.(outcome)
		return out.payload, out.replayed || !executed, nil
	}
}

// Sweep evicts records older than the retention window.
func (g *Guard) Sweep(ctx context.Context) (int, error) {
	return g.store.Sweep(ctx, g.clock.Now().Add(-g.retention))
}

func (g *Guard) expired(record *Record) bool {
	return g.clock.Now().Sub(record.RecordedAt) > g.retention
}
