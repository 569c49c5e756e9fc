package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpdesk-labs/helpdesk-service/internal/clock"
	"github.com/helpdesk-labs/helpdesk-service/internal/idempotency"
	"github.com/helpdesk-labs/helpdesk-service/internal/observability"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() == name {
			return family.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not registered", name)
	return 0
}

type failingSweeper struct{ err error }

func (f failingSweeper) Sweep(context.Context) (int, error) { return 0, f.err }

func TestSweepNowEvictsExpiredKeys(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	store := idempotency.NewMemoryStore()
	guard := idempotency.NewGuard(store, clk, idempotency.DefaultRetention, nil)
	ctx := context.Background()

	require.NoError(t, guard.Store(ctx, "a", []byte("1")))
	require.NoError(t, guard.Store(ctx, "b", []byte("2")))
	clk.Advance(idempotency.DefaultRetention + time.Second)
	require.NoError(t, guard.Store(ctx, "c", []byte("3")))

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	sweeper, err := NewIdempotencySweeper(guard, "@every 1m", nil, metrics)
	require.NoError(t, err)

	evicted, err := sweeper.SweepNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, evicted)
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, float64(2), counterValue(t, reg, "helpdesk_idempotency_evictions_total"))
}

func TestSweepNowReportsFailure(t *testing.T) {
	boom := errors.New("redis unavailable")
	sweeper, err := NewIdempotencySweeper(failingSweeper{err: boom}, "@every 1m", nil, nil)
	require.NoError(t, err)

	_, err = sweeper.SweepNow(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestNewIdempotencySweeperRejectsBadSchedule(t *testing.T) {
	_, err := NewIdempotencySweeper(failingSweeper{}, "every minute", nil, nil)
	assert.Error(t, err)
}

func TestSweeperStartStop(t *testing.T) {
	sweeper, err := NewIdempotencySweeper(failingSweeper{}, "@every 1h", nil, nil)
	require.NoError(t, err)

	sweeper.Start()
	sweeper.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sweeper.Stop(ctx)
	sweeper.Stop(ctx)
}
