package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/weisyn/flowcontrol/pkg/interfaces/flowcontrol"
)

const (
	// defaultRedisCallTimeout 单次 Redis 调用的超时
	defaultRedisCallTimeout = 200 * time.Millisecond
)

// DistributedConfig 分布式限流器参数
type DistributedConfig struct {
	// Key Redis 中的配额 key，通常由 Factory.TokenKey 生成
	Key string
	// Capacity 每个 Interval 内所有进程共享的配额
	Capacity int64
	// Interval 配额周期，对应 key 的过期时间
	Interval time.Duration
	// EnableLocalCache 每次从 Redis 批量预取额度，在本地消费
	EnableLocalCache bool
	// CachePercent 每次预取的额度占容量的百分比
	CachePercent int64
	// CallTimeout 单次 Redis 调用超时
	CallTimeout time.Duration
}

// DistributedLimiter 基于 Redis 的分布式限流器
//
// 多个网关进程共享同一个 key 的配额：Lua 脚本在 key 不存在时按容量初始化并设置过期，
// 余量足够时原子扣除。
//
// 🔧 **本地缓存**
// 开启后每次向 Redis 预取 capacity * CachePercent / 100 的额度放入本地池，
// 请求优先从本地池扣除，减少 Redis 往返。Rollback 归还到本地池。
//
// ⚠️ **故障策略**
// Redis 不可用时放行（fail open），错误次数通过 RedisErrors 暴露。
// 这里的 Acquire 与 TryAcquire 相同，不会阻塞。
type DistributedLimiter struct {
	client redisClient
	cfg    DistributedConfig
	batch  int64

	mu         sync.Mutex
	localCache int64

	redisErrors atomic.Int64
}

func newDistributedLimiter(client redisClient, cfg DistributedConfig) *DistributedLimiter {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultRedisCallTimeout
	}
	l := &DistributedLimiter{client: client, cfg: cfg}
	if cfg.EnableLocalCache && cfg.Capacity > 0 {
		l.batch = cfg.Capacity * cfg.CachePercent / 100
	}
	return l
}

func (l *DistributedLimiter) Capacity() int64          { return l.cfg.Capacity }
func (l *DistributedLimiter) Key() string              { return l.cfg.Key }
func (l *DistributedLimiter) Interval() time.Duration  { return l.cfg.Interval }
func (l *DistributedLimiter) EnableLocalCache() bool   { return l.cfg.EnableLocalCache }
func (l *DistributedLimiter) LocalCachePercent() int64 { return l.cfg.CachePercent }
func (l *DistributedLimiter) RedisErrors() int64       { return l.redisErrors.Load() }

// LocalCached 本地池中剩余的预取额度
func (l *DistributedLimiter) LocalCached() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.localCache
}

func (l *DistributedLimiter) TryAcquire(permits int64) bool {
	ok, _ := l.AcquireContext(context.Background(), permits)
	return ok
}

func (l *DistributedLimiter) Acquire(permits int64) bool {
	ok, _ := l.AcquireContext(context.Background(), permits)
	return ok
}

// AcquireContext 获取额度；ctx 同时约束 Redis 调用
func (l *DistributedLimiter) AcquireContext(ctx context.Context, permits int64) (bool, error) {
	if l.cfg.Capacity <= 0 || permits <= 0 {
		return true, nil
	}
	if permits > l.cfg.Capacity {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if l.batch <= 0 {
		ok, err := l.take(ctx, permits)
		if err != nil {
			return l.failOpen(ctx)
		}
		return ok, nil
	}

	// 本地池不足时先把剩余额度整体预留出来，Redis 调用期间其他请求无法再消费它
	l.mu.Lock()
	if l.localCache >= permits {
		l.localCache -= permits
		l.mu.Unlock()
		return true, nil
	}
	reserved := l.localCache
	l.localCache = 0
	l.mu.Unlock()
	need := permits - reserved

	// 预取至少一个批次，批次取不到时退回到只取差额
	fetch := minInt64(max(need, l.batch), l.cfg.Capacity)
	for _, n := range []int64{fetch, need} {
		ok, err := l.take(ctx, n)
		if err != nil {
			admitted, ctxErr := l.failOpen(ctx)
			if !admitted {
				l.restoreLocal(reserved)
			}
			return admitted, ctxErr
		}
		if ok {
			l.restoreLocal(n - need)
			return true, nil
		}
		if fetch == need {
			break
		}
	}
	l.restoreLocal(reserved)
	return false, nil
}

// restoreLocal 把额度放回本地池，不超过容量
func (l *DistributedLimiter) restoreLocal(n int64) {
	if n <= 0 {
		return
	}
	l.mu.Lock()
	l.localCache = minInt64(l.cfg.Capacity, l.localCache+n)
	l.mu.Unlock()
}

// AcquireWithoutWait 配额足够时扣除并返回 permits，否则返回 0
func (l *DistributedLimiter) AcquireWithoutWait(permits int64) int64 {
	if l.cfg.Capacity <= 0 || permits <= 0 {
		return 0
	}
	if l.TryAcquire(permits) {
		return permits
	}
	return 0
}

func (l *DistributedLimiter) Rollback(permits int64) {
	if l.cfg.Capacity <= 0 || permits <= 0 {
		return
	}
	if l.batch > 0 {
		l.restoreLocal(permits)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.CallTimeout)
	defer cancel()
	if err := l.client.ReturnTokens(ctx, l.cfg.Key, l.cfg.Capacity, permits); err != nil {
		l.redisErrors.Add(1)
	}
}

// failOpen Redis 出错时放行，调用方自己的 ctx 已结束的除外
func (l *DistributedLimiter) failOpen(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return true, nil
}

// take 向 Redis 申请 n 个额度；出错时计数，由调用方放行
func (l *DistributedLimiter) take(ctx context.Context, n int64) (bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, l.cfg.CallTimeout)
	defer cancel()

	ok, err := l.client.TakeTokens(callCtx, l.cfg.Key, l.cfg.Capacity, l.cfg.Interval, n)
	if err != nil {
		l.redisErrors.Add(1)
		return false, err
	}
	return ok, nil
}

var _ flowcontrol.Limiter = (*DistributedLimiter)(nil)
