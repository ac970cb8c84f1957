package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis 内存版 redisClient，按脚本语义维护配额（不处理过期）
type fakeRedis struct {
	mu      sync.Mutex
	values  map[string]int64
	takes   []int64
	failErr error
	closed  bool

	// beforeTake 在扣减前调用（不持锁），用于在 Redis 往返期间插入并发请求
	beforeTake func(permits int64)
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: make(map[string]int64)}
}

func (f *fakeRedis) TakeTokens(_ context.Context, key string, capacity int64, _ time.Duration, permits int64) (bool, error) {
	f.mu.Lock()
	hook := f.beforeTake
	f.mu.Unlock()
	if hook != nil {
		hook(permits)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return false, f.failErr
	}
	f.takes = append(f.takes, permits)
	current, ok := f.values[key]
	if !ok {
		current = capacity
	}
	if current >= permits {
		f.values[key] = current - permits
		return true, nil
	}
	f.values[key] = current
	return false, nil
}

func (f *fakeRedis) ReturnTokens(_ context.Context, key string, capacity, permits int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	current, ok := f.values[key]
	if !ok {
		return nil
	}
	f.values[key] = minInt64(capacity, current+permits)
	return nil
}

func (f *fakeRedis) Ping(context.Context) error { return f.failErr }

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

// expire 模拟 key 过期，下一次请求重新按容量初始化
func (f *fakeRedis) expire(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, key)
}

func (f *fakeRedis) value(key string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[key]
}

func (f *fakeRedis) takeCalls() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.takes...)
}

func TestDistributed_SharedQuotaAcrossInstances(t *testing.T) {
	// Arrange：两个网关进程共享同一个 key
	redis := newFakeRedis()
	cfg := DistributedConfig{Key: "flowcontrol:token:group0", Capacity: 100, Interval: time.Second}
	a := newDistributedLimiter(redis, cfg)
	b := newDistributedLimiter(redis, cfg)

	// Act & Assert
	assert.True(t, a.TryAcquire(60))
	assert.False(t, b.TryAcquire(60), "剩余 40 不足 60")
	assert.True(t, b.TryAcquire(40))
	assert.False(t, a.TryAcquire(1))

	// 下一个周期 key 过期后重新初始化
	redis.expire(cfg.Key)
	assert.True(t, a.TryAcquire(100))
}

func TestDistributed_ExceedCapacity_FailsWithoutRedisCall(t *testing.T) {
	redis := newFakeRedis()
	l := newDistributedLimiter(redis, DistributedConfig{Key: "k", Capacity: 10})

	assert.False(t, l.TryAcquire(11))
	assert.Equal(t, int64(0), l.AcquireWithoutWait(11))
	assert.Empty(t, redis.takeCalls())
}

func TestDistributed_Rollback_ReturnsToRedis(t *testing.T) {
	redis := newFakeRedis()
	l := newDistributedLimiter(redis, DistributedConfig{Key: "k", Capacity: 10})

	require.True(t, l.TryAcquire(10))
	l.Rollback(4)
	assert.Equal(t, int64(4), redis.value("k"))

	l.Rollback(100)
	assert.Equal(t, int64(10), redis.value("k"), "归还不超过容量")
}

func TestDistributed_LocalCache_PrefetchesBatch(t *testing.T) {
	// Arrange：容量 1000，每次预取 20%
	redis := newFakeRedis()
	l := newDistributedLimiter(redis, DistributedConfig{
		Key:              "k",
		Capacity:         1000,
		EnableLocalCache: true,
		CachePercent:     20,
	})
	require.True(t, l.EnableLocalCache())
	require.Equal(t, int64(20), l.LocalCachePercent())

	// Act
	for i := 0; i < 4; i++ {
		require.True(t, l.TryAcquire(50))
	}

	// Assert：一次预取 200，本地消费 4 次
	assert.Equal(t, []int64{200}, redis.takeCalls())
	assert.Equal(t, int64(800), redis.value("k"))
	assert.Equal(t, int64(0), l.LocalCached())

	// 本地池耗尽后再次预取
	require.True(t, l.TryAcquire(50))
	assert.Equal(t, []int64{200, 200}, redis.takeCalls())
	assert.Equal(t, int64(150), l.LocalCached())
}

func TestDistributed_LocalCache_FallsBackToShortfall(t *testing.T) {
	redis := newFakeRedis()
	l := newDistributedLimiter(redis, DistributedConfig{
		Key:              "k",
		Capacity:         100,
		EnableLocalCache: true,
		CachePercent:     50,
	})
	// 其他进程已用掉 70
	other := newDistributedLimiter(redis, DistributedConfig{Key: "k", Capacity: 100})
	require.True(t, other.TryAcquire(70))

	// 批次 50 取不到，退回只取 30
	assert.True(t, l.TryAcquire(30))
	assert.Equal(t, []int64{70, 50, 30}, redis.takeCalls())
	assert.Equal(t, int64(0), l.LocalCached())
	assert.False(t, l.TryAcquire(1))
}

func TestDistributed_LocalCache_RollbackToLocalPool(t *testing.T) {
	redis := newFakeRedis()
	l := newDistributedLimiter(redis, DistributedConfig{
		Key:              "k",
		Capacity:         100,
		EnableLocalCache: true,
		CachePercent:     10,
	})

	require.True(t, l.TryAcquire(10))
	l.Rollback(6)

	assert.Equal(t, int64(6), l.LocalCached())
	assert.True(t, l.TryAcquire(6))
	assert.Len(t, redis.takeCalls(), 1, "归还的额度在本地消费")
}

func TestDistributed_LocalCache_ConcurrentDrainDuringFetch(t *testing.T) {
	// Arrange：共享配额 20，其他进程已用掉 7；本实例每次预取 10
	redis := newFakeRedis()
	cfg := DistributedConfig{Key: "k", Capacity: 20, EnableLocalCache: true, CachePercent: 50}
	l := newDistributedLimiter(redis, cfg)
	other := newDistributedLimiter(redis, DistributedConfig{Key: "k", Capacity: 20})
	require.True(t, other.TryAcquire(7))
	require.True(t, l.TryAcquire(5))
	require.Equal(t, int64(5), l.LocalCached())

	// 取差额 3 的 Redis 往返期间，另一个请求尝试消费本地池
	var inner []bool
	var once sync.Once
	redis.beforeTake = func(permits int64) {
		if permits == 3 {
			once.Do(func() { inner = append(inner, l.TryAcquire(5)) })
		}
	}

	// Act
	outer := l.TryAcquire(8)

	// Assert：放行总量不超过共享配额
	granted := int64(7 + 5)
	if outer {
		granted += 8
	}
	for _, ok := range inner {
		if ok {
			granted += 5
		}
	}
	assert.True(t, outer)
	assert.Equal(t, []bool{false}, inner)
	assert.LessOrEqual(t, granted, int64(20))
	assert.Equal(t, int64(0), redis.value("k"))
	assert.Equal(t, int64(0), l.LocalCached())
}

func TestDistributed_LocalCache_DeniedRequestKeepsReservedCredit(t *testing.T) {
	redis := newFakeRedis()
	l := newDistributedLimiter(redis, DistributedConfig{Key: "k", Capacity: 20, EnableLocalCache: true, CachePercent: 50})
	other := newDistributedLimiter(redis, DistributedConfig{Key: "k", Capacity: 20})
	require.True(t, other.TryAcquire(10))
	require.True(t, l.TryAcquire(5))

	assert.False(t, l.TryAcquire(8), "Redis 已无余量")
	assert.Equal(t, int64(5), l.LocalCached())
	assert.True(t, l.TryAcquire(5))
}

func TestDistributed_RedisError_FailsOpen(t *testing.T) {
	redis := newFakeRedis()
	redis.failErr = errors.New("connection refused")
	l := newDistributedLimiter(redis, DistributedConfig{Key: "k", Capacity: 10})

	assert.True(t, l.TryAcquire(5))
	assert.Equal(t, int64(5), l.AcquireWithoutWait(5))
	l.Rollback(5)

	assert.Equal(t, int64(3), l.RedisErrors())
}

func TestDistributed_RedisError_CancelledCallerIsDenied(t *testing.T) {
	redis := newFakeRedis()
	l := newDistributedLimiter(redis, DistributedConfig{Key: "k", Capacity: 10})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := l.AcquireContext(ctx, 1)

	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, redis.takeCalls())
}

func TestDistributed_NonPositiveCapacity_AlwaysAdmits(t *testing.T) {
	redis := newFakeRedis()
	l := newDistributedLimiter(redis, DistributedConfig{Key: "k", Capacity: 0})

	assert.True(t, l.TryAcquire(1<<20))
	assert.True(t, l.Acquire(1))
	assert.Equal(t, int64(0), l.AcquireWithoutWait(1))
	assert.Empty(t, redis.takeCalls())
}
