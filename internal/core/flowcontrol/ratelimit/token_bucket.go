package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/weisyn/flowcontrol/pkg/interfaces/flowcontrol"
	infraClock "github.com/weisyn/flowcontrol/pkg/interfaces/infrastructure/clock"
)

// TokenBucketLimiter 令牌桶限流器
//
// 🎯 **语义**
// - 容量 capacity 同时是每秒补充量：从空桶到满桶恰好 1 秒
// - 额度按 refillInterval = 1s / capacity 连续补充，补满后不再增长
// - 超过容量的请求永远失败，且不阻塞、不修改状态
// - capacity <= 0 时限流关闭，所有请求直接放行
//
// 🔧 **突发额度**
// 可选的 WithBurst 为每个突发窗口额外提供 maxBurstPermits 的额度，
// 只用于覆盖已存额度不足的部分，窗口在下一次请求时惰性重置。
//
// storedPermits 内部可以为负数，表示阻塞式 Acquire 预扣而尚未补回的欠额，
// 对外暴露的值始终截断到 [0, capacity]。
type TokenBucketLimiter struct {
	mu    sync.Mutex
	clock infraClock.Clock
	epoch time.Time

	capacity      int64
	storedPermits int64
	lastUpdate    int64 // 单调微秒

	burstWindow        int64 // 微秒
	maxBurstPermits    int64
	burstCountInWindow int64
	burstWindowResetAt int64 // 单调微秒
}

// NewTokenBucketLimiter 创建令牌桶，默认空桶起步
func NewTokenBucketLimiter(capacity int64, opts ...Option) *TokenBucketLimiter {
	o := newOptions(opts)
	l := &TokenBucketLimiter{
		clock:    o.clock,
		epoch:    o.clock.Now(),
		capacity: capacity,
	}
	if capacity <= 0 {
		return l
	}
	if o.hasInitialPermits {
		l.storedPermits = clamp(o.initialPermits, 0, capacity)
	}
	if o.maxBurstPermits > 0 {
		window := o.burstWindow
		if window <= 0 {
			window = defaultBurstWindow
		}
		l.burstWindow = window.Microseconds()
		if l.burstWindow <= 0 {
			l.burstWindow = 1
		}
		l.maxBurstPermits = o.maxBurstPermits
		l.burstWindowResetAt = l.burstWindow
	}
	return l
}

// Capacity 返回容量
func (l *TokenBucketLimiter) Capacity() int64 { return l.capacity }

// Disabled 容量 <= 0 时限流关闭
func (l *TokenBucketLimiter) Disabled() bool { return l.capacity <= 0 }

// RefillInterval 补充一个 permit 所需的时间
func (l *TokenBucketLimiter) RefillInterval() time.Duration {
	if l.capacity <= 0 {
		return 0
	}
	return time.Second / time.Duration(l.capacity)
}

// StoredPermits 返回当前可用额度（补充后，截断到 [0, capacity]）
func (l *TokenBucketLimiter) StoredPermits() int64 {
	if l.capacity <= 0 {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.nowMicros()
	l.refill(now)
	return clamp(l.storedPermits, 0, l.capacity)
}

// BurstRemaining 当前突发窗口内剩余的突发额度
func (l *TokenBucketLimiter) BurstRemaining() int64 {
	if l.maxBurstPermits <= 0 {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetBurstWindow(l.nowMicros())
	return l.maxBurstPermits - l.burstCountInWindow
}

// TryAcquire 非阻塞获取
func (l *TokenBucketLimiter) TryAcquire(permits int64) bool {
	if l.capacity <= 0 || permits <= 0 {
		return true
	}
	if permits > l.capacity {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowMicros()
	l.refill(now)
	l.resetBurstWindow(now)

	if l.storedPermits >= permits {
		l.storedPermits -= permits
		return true
	}

	shortfall := permits - l.storedPermits
	if l.maxBurstPermits > 0 && l.maxBurstPermits-l.burstCountInWindow >= shortfall {
		l.burstCountInWindow += shortfall
		l.storedPermits = 0
		return true
	}
	return false
}

// Acquire 阻塞获取，直到额度补足
func (l *TokenBucketLimiter) Acquire(permits int64) bool {
	ok, _ := l.AcquireContext(context.Background(), permits)
	return ok
}

// AcquireContext 可取消的阻塞获取
//
// 等待时间在锁内计算并立即预扣额度，睡眠在锁外进行。
// ctx 取消时返回 (false, ctx.Err())，已预扣的额度不会自动归还。
func (l *TokenBucketLimiter) AcquireContext(ctx context.Context, permits int64) (bool, error) {
	if l.capacity <= 0 || permits <= 0 {
		return true, nil
	}
	if permits > l.capacity {
		return false, nil
	}

	wait := l.reserve(permits)
	if wait > 0 {
		if err := l.clock.Sleep(ctx, wait); err != nil {
			return false, err
		}
	}
	return true, nil
}

// AcquireWithoutWait 直接扣除不等待，欠额由后续补充偿还
func (l *TokenBucketLimiter) AcquireWithoutWait(permits int64) int64 {
	if l.capacity <= 0 || permits <= 0 || permits > l.capacity {
		return 0
	}
	l.reserve(permits)
	return permits
}

// Rollback 归还额度，不超过容量
//
// 本窗口内用过突发额度时优先归还突发额度，保证 TryAcquire 后立即 Rollback 能恢复原状态。
func (l *TokenBucketLimiter) Rollback(permits int64) {
	if l.capacity <= 0 || permits <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.nowMicros()
	l.refill(now)
	l.resetBurstWindow(now)

	if l.burstCountInWindow > 0 {
		refund := minInt64(permits, l.burstCountInWindow)
		l.burstCountInWindow -= refund
		permits -= refund
	}
	l.storedPermits = minInt64(l.capacity, l.storedPermits+permits)
}

// reserve 扣除 permits 并返回需要等待的时长
func (l *TokenBucketLimiter) reserve(permits int64) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowMicros()
	l.refill(now)
	l.resetBurstWindow(now)

	shortfall := permits - l.storedPermits
	if shortfall > 0 && l.maxBurstPermits > 0 {
		use := minInt64(shortfall, l.maxBurstPermits-l.burstCountInWindow)
		if use > 0 {
			l.burstCountInWindow += use
			l.storedPermits += use
			shortfall -= use
		}
	}
	l.storedPermits -= permits

	if shortfall <= 0 {
		return 0
	}
	// 扣掉上次兑现之后已经累计、但不足一个 permit 的时间
	wait := mulDivCeil(shortfall, microsPerSecond, l.capacity) - (now - l.lastUpdate)
	if wait <= 0 {
		return 0
	}
	if wait > math.MaxInt64/int64(time.Microsecond) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(wait) * time.Microsecond
}

func (l *TokenBucketLimiter) nowMicros() int64 {
	return l.clock.Since(l.epoch).Microseconds()
}

// refill 按经过的时间补充额度
//
// lastUpdate 只推进到已兑现的 permit 对应的时间点，不足一个 permit 的时间留到下次累计。
func (l *TokenBucketLimiter) refill(now int64) {
	if now <= l.lastUpdate {
		return
	}
	if l.storedPermits >= l.capacity {
		l.lastUpdate = now
		return
	}

	elapsed := now - l.lastUpdate
	deficit := l.capacity - l.storedPermits
	if elapsed >= mulDivCeil(deficit, microsPerSecond, l.capacity) {
		l.storedPermits = l.capacity
		l.lastUpdate = now
		return
	}

	accrued := mulDiv(elapsed, l.capacity, microsPerSecond)
	if accrued <= 0 {
		return
	}
	l.storedPermits += accrued
	l.lastUpdate += mulDiv(accrued, microsPerSecond, l.capacity)
}

func (l *TokenBucketLimiter) resetBurstWindow(now int64) {
	if l.maxBurstPermits <= 0 || now < l.burstWindowResetAt {
		return
	}
	l.burstCountInWindow = 0
	l.burstWindowResetAt = now + l.burstWindow
}

var _ flowcontrol.Limiter = (*TokenBucketLimiter)(nil)
