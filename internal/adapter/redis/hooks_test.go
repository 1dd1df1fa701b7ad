package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batalovmv/stream-alerts-sub001/internal/adapter/metrics"
)

func TestCircuitBreakerHook_StaysClosedOnSuccessAndNil(t *testing.T) {
	hook := NewCircuitBreakerHook(nil)
	ctx := context.Background()

	process := hook.ProcessHook(func(context.Context, goredis.Cmder) error { return goredis.Nil })
	for range 10 {
		err := process(ctx, goredis.NewStringCmd(ctx, "get", "key"))
		assert.ErrorIs(t, err, goredis.Nil)
	}
	assert.Equal(t, circuitbreaker.ClosedState, hook.State())
}

func TestCircuitBreakerHook_OpensAndFailsFast(t *testing.T) {
	m := metrics.NewRedisMetrics(prometheus.NewRegistry())
	hook := NewCircuitBreakerHook(m)
	ctx := context.Background()

	failing := hook.ProcessHook(func(context.Context, goredis.Cmder) error {
		return errors.New("connection refused")
	})
	for range 10 {
		_ = failing(ctx, goredis.NewStringCmd(ctx, "get", "key"))
	}
	require.Equal(t, circuitbreaker.OpenState, hook.State())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BreakerState))

	called := false
	guarded := hook.ProcessHook(func(context.Context, goredis.Cmder) error {
		called = true
		return nil
	})
	cmd := goredis.NewStringCmd(ctx, "get", "key")
	err := guarded(ctx, cmd)

	assert.False(t, called)
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.ErrorIs(t, cmd.Err(), circuitbreaker.ErrOpen)
}

func TestCircuitBreakerHook_PipelineFailsFastWhenOpen(t *testing.T) {
	hook := NewCircuitBreakerHook(nil)
	ctx := context.Background()

	failing := hook.ProcessHook(func(context.Context, goredis.Cmder) error {
		return errors.New("i/o timeout")
	})
	for range 10 {
		_ = failing(ctx, goredis.NewStatusCmd(ctx, "set", "k", "v"))
	}

	cmds := []goredis.Cmder{goredis.NewIntCmd(ctx, "llen", "a"), goredis.NewIntCmd(ctx, "llen", "b")}
	err := hook.ProcessPipelineHook(func(context.Context, []goredis.Cmder) error { return nil })(ctx, cmds)

	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	for _, cmd := range cmds {
		assert.ErrorIs(t, cmd.Err(), circuitbreaker.ErrOpen)
	}
}

func TestMetricsHook_CountsByStatus(t *testing.T) {
	m := metrics.NewRedisMetrics(prometheus.NewRegistry())
	hook := NewMetricsHook(m)
	ctx := context.Background()

	ok := hook.ProcessHook(func(context.Context, goredis.Cmder) error { return nil })
	miss := hook.ProcessHook(func(context.Context, goredis.Cmder) error { return goredis.Nil })
	fail := hook.ProcessHook(func(context.Context, goredis.Cmder) error { return errors.New("boom") })

	_ = ok(ctx, goredis.NewStringCmd(ctx, "get", "k"))
	_ = miss(ctx, goredis.NewStringCmd(ctx, "get", "k"))
	_ = fail(ctx, goredis.NewStringCmd(ctx, "get", "k"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OpsTotal.WithLabelValues("get", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OpsTotal.WithLabelValues("get", "error")))
}

func TestNewClient_ConnectsWithHooks(t *testing.T) {
	mr, _ := newTestRedis(t)
	m := metrics.NewRedisMetrics(prometheus.NewRegistry())

	client, err := NewClient(context.Background(), "redis://"+mr.Addr(), m)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OpsTotal.WithLabelValues("set", "success")))
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient(context.Background(), "://nope", nil)
	assert.Error(t, err)
}
