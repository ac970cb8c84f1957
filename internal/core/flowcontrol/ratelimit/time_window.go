package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/weisyn/flowcontrol/pkg/interfaces/flowcontrol"
	infraClock "github.com/weisyn/flowcontrol/pkg/interfaces/infrastructure/clock"
)

// TimeWindowLimiter 固定时间窗口限流器
//
// 每个窗口提供 capacity 的配额，窗口边界到达后整体重置（惰性：在下一次调用时判断）。
// 该限流器不会在内部阻塞：Acquire 与 TryAcquire 计算相同，
// 失败时可通过 AcquireWithRetryAfter 取得距离下一个窗口的时间，由调用方决定是否等待重试。
//
// allowExceedCapacity 为 true 时，超过容量的请求在当前窗口仍有余量时放行，
// remaining 变为负数（透支），透支在下一个窗口重置时一并清零。
type TimeWindowLimiter struct {
	mu    sync.Mutex
	clock infraClock.Clock
	epoch time.Time

	capacity            int64
	windowDuration      int64 // 微秒
	allowExceedCapacity bool

	remaining       int64
	windowStartedAt int64 // 单调微秒
}

// NewTimeWindowLimiter 创建时间窗口限流器，window <= 0 时使用 1s
func NewTimeWindowLimiter(capacity int64, window time.Duration, opts ...Option) *TimeWindowLimiter {
	o := newOptions(opts)
	if window <= 0 {
		window = time.Second
	}
	windowMicros := window.Microseconds()
	if windowMicros <= 0 {
		windowMicros = 1
	}
	return &TimeWindowLimiter{
		clock:               o.clock,
		epoch:               o.clock.Now(),
		capacity:            capacity,
		windowDuration:      windowMicros,
		allowExceedCapacity: o.allowExceedCapacity,
		remaining:           capacity,
	}
}

func (l *TimeWindowLimiter) Capacity() int64 { return l.capacity }

func (l *TimeWindowLimiter) Disabled() bool { return l.capacity <= 0 }

func (l *TimeWindowLimiter) WindowDuration() time.Duration {
	return time.Duration(l.windowDuration) * time.Microsecond
}

func (l *TimeWindowLimiter) AllowExceedCapacity() bool { return l.allowExceedCapacity }

// Remaining 当前窗口剩余配额（透支时为 0）
func (l *TimeWindowLimiter) Remaining() int64 {
	if l.capacity <= 0 {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetWindow(l.nowMicros())
	return clamp(l.remaining, 0, l.capacity)
}

func (l *TimeWindowLimiter) TryAcquire(permits int64) bool {
	ok, _ := l.AcquireWithRetryAfter(permits)
	return ok
}

// Acquire 与 TryAcquire 相同，不阻塞
func (l *TimeWindowLimiter) Acquire(permits int64) bool {
	ok, _ := l.AcquireWithRetryAfter(permits)
	return ok
}

// AcquireContext 检查 ctx 后执行一次非阻塞获取
func (l *TimeWindowLimiter) AcquireContext(ctx context.Context, permits int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ok, _ := l.AcquireWithRetryAfter(permits)
	return ok, nil
}

// AcquireWithRetryAfter 非阻塞获取；失败时返回距离下一个窗口边界的时间
//
// 永远无法满足的请求（超过容量且不允许透支）返回 (false, 0)。
func (l *TimeWindowLimiter) AcquireWithRetryAfter(permits int64) (bool, time.Duration) {
	if l.capacity <= 0 || permits <= 0 {
		return true, 0
	}
	if permits > l.capacity && !l.allowExceedCapacity {
		return false, 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowMicros()
	l.resetWindow(now)

	if l.remaining >= permits {
		l.remaining -= permits
		return true, 0
	}
	if permits > l.capacity && l.remaining > 0 {
		l.remaining -= permits
		return true, 0
	}
	return false, l.untilNextWindow(now)
}

// AcquireWithoutWait 直接扣除当前窗口配额，不足部分记为透支
func (l *TimeWindowLimiter) AcquireWithoutWait(permits int64) int64 {
	if l.capacity <= 0 || permits <= 0 {
		return 0
	}
	if permits > l.capacity && !l.allowExceedCapacity {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetWindow(l.nowMicros())
	l.remaining -= permits
	return permits
}

func (l *TimeWindowLimiter) Rollback(permits int64) {
	if l.capacity <= 0 || permits <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetWindow(l.nowMicros())
	l.remaining = minInt64(l.capacity, l.remaining+permits)
}

func (l *TimeWindowLimiter) nowMicros() int64 {
	return l.clock.Since(l.epoch).Microseconds()
}

func (l *TimeWindowLimiter) resetWindow(now int64) {
	if now-l.windowStartedAt >= l.windowDuration {
		l.remaining = l.capacity
		l.windowStartedAt = now
	}
}

func (l *TimeWindowLimiter) untilNextWindow(now int64) time.Duration {
	left := l.windowStartedAt + l.windowDuration - now
	if left < 0 {
		left = 0
	}
	return time.Duration(left) * time.Microsecond
}

var _ flowcontrol.Limiter = (*TimeWindowLimiter)(nil)
