package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/flowcontrol/internal/core/infrastructure/clock"
)

func TestFactory_Defaults(t *testing.T) {
	f := NewFactory(FactoryConfig{})

	assert.NotNil(t, f.Clock())
	assert.False(t, f.HasRedis())
	assert.Equal(t, "flowcontrol:token:group0", f.TokenKey("group0"))
	assert.NoError(t, f.Close())

	l, err := f.Build(100)
	require.NoError(t, err)
	assert.IsType(t, &TokenBucketLimiter{}, l)
}

func TestFactory_Build_TimeWindowScalesCapacityByWindow(t *testing.T) {
	mc := clock.NewMockClock(time.Unix(0, 0))
	f := NewFactory(FactoryConfig{
		Clock:               mc,
		Type:                LimiterTimeWindow,
		Window:              3 * time.Second,
		AllowExceedCapacity: true,
	})

	l, err := f.Build(100)
	require.NoError(t, err)

	tw, ok := l.(*TimeWindowLimiter)
	require.True(t, ok)
	assert.Equal(t, int64(300), tw.Capacity())
	assert.Equal(t, 3*time.Second, tw.WindowDuration())
	assert.True(t, tw.AllowExceedCapacity())
}

func TestFactory_Build_UnknownType(t *testing.T) {
	f := NewFactory(FactoryConfig{Type: "leaky_bucket"})

	_, err := f.Build(10)

	assert.ErrorIs(t, err, ErrUnknownLimiterType)
}

func TestFactory_BuildTokenBucket_AppliesBurst(t *testing.T) {
	mc := clock.NewMockClock(time.Unix(0, 0))
	f := NewFactory(FactoryConfig{Clock: mc, BurstWindow: time.Second, MaxBurstPermits: 3})

	l := f.BuildTokenBucket(10)

	assert.Equal(t, int64(3), l.BurstRemaining())
	assert.True(t, l.TryAcquire(3), "空桶时由突发额度放行")
	assert.False(t, l.TryAcquire(1))
}

func TestFactory_BuildTokenBucket_StartFull(t *testing.T) {
	mc := clock.NewMockClock(time.Unix(0, 0))
	f := NewFactory(FactoryConfig{Clock: mc, StartFull: true})

	l := f.BuildTokenBucket(10)

	assert.Equal(t, int64(10), l.StoredPermits())
	assert.True(t, l.TryAcquire(10))
	assert.False(t, l.TryAcquire(1))
}

func TestFactory_BuildDistributed(t *testing.T) {
	// 未连接 Redis
	_, err := NewFactory(FactoryConfig{}).BuildDistributed("group0", 10)
	assert.ErrorIs(t, err, ErrRedisNotConfigured)

	// 已连接
	redis := newFakeRedis()
	f := newFactoryWithClient(FactoryConfig{
		Window:           3 * time.Second,
		KeyPrefix:        "test:",
		EnableLocalCache: true,
		CachePercent:     13,
	}, redis)

	l, err := f.BuildDistributed("group0", 2000)
	require.NoError(t, err)

	assert.Equal(t, "test:group0", l.Key())
	assert.Equal(t, int64(6000), l.Capacity())
	assert.Equal(t, 3*time.Second, l.Interval())
	assert.True(t, l.EnableLocalCache())
	assert.Equal(t, int64(13), l.LocalCachePercent())

	require.NoError(t, f.Close())
	assert.True(t, redis.closed)
}
