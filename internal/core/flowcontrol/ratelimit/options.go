// Package ratelimit 提供网关准入控制使用的限流器实现
//
// 包含三种策略，全部实现 flowcontrol.Limiter：
// - TokenBucketLimiter：令牌桶，额度按固定速率连续补充，支持突发额度与阻塞式获取
// - TimeWindowLimiter：固定时间窗口配额，窗口边界整体重置，只做建议式（不阻塞）获取
// - DistributedLimiter：基于 Redis 的多进程共享配额
//
// 所有限流器：
// - 只使用单调时间（Clock.Since），不受墙上时间调整影响
// - 每个实例一把互斥锁，临界区内只有算术运算
// - 热路径不打日志
package ratelimit

import (
	"math"
	"math/bits"
	"time"

	"github.com/weisyn/flowcontrol/internal/core/infrastructure/clock"
	infraClock "github.com/weisyn/flowcontrol/pkg/interfaces/infrastructure/clock"
)

const (
	// microsPerSecond 一秒的微秒数，容量按“从空到满恰好一秒”换算补充间隔
	microsPerSecond = int64(time.Second / time.Microsecond)

	// defaultBurstWindow 默认突发窗口
	defaultBurstWindow = time.Second
)

// Option 限流器构造选项
type Option func(*options)

type options struct {
	clock infraClock.Clock

	// 令牌桶
	initialPermits    int64
	hasInitialPermits bool
	burstWindow       time.Duration
	maxBurstPermits   int64

	// 时间窗口
	allowExceedCapacity bool
}

func newOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.clock == nil {
		o.clock = clock.NewSystemClock()
	}
	return o
}

// WithClock 指定时间源
func WithClock(c infraClock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithInitialPermits 令牌桶的初始额度（默认空桶），会被截断到 [0, capacity]
func WithInitialPermits(n int64) Option {
	return func(o *options) {
		o.initialPermits = n
		o.hasInitialPermits = true
	}
}

// WithBurst 令牌桶的突发额度：每个 window 内最多额外放行 maxPermits
// window <= 0 时使用默认 1s；maxPermits <= 0 关闭突发
func WithBurst(window time.Duration, maxPermits int64) Option {
	return func(o *options) {
		o.burstWindow = window
		o.maxBurstPermits = maxPermits
	}
}

// WithAllowExceedCapacity 时间窗口允许超过容量的请求透支当前窗口
func WithAllowExceedCapacity(allow bool) Option {
	return func(o *options) { o.allowExceedCapacity = allow }
}

// mulDiv 计算 a*b/c（向下取整），乘积按 128 位计算，结果超出 int64 时截断到 MaxInt64
//
// 字节速率类的容量可达 1e12 以上，与微秒数直接相乘会溢出。
func mulDiv(a, b, c int64) int64 {
	q, _ := mulDivRem(a, b, c)
	return q
}

// mulDivCeil 同 mulDiv，向上取整
func mulDivCeil(a, b, c int64) int64 {
	q, rem := mulDivRem(a, b, c)
	if rem != 0 && q < math.MaxInt64 {
		q++
	}
	return q
}

func mulDivRem(a, b, c int64) (int64, uint64) {
	if a <= 0 || b <= 0 || c <= 0 {
		return 0, 0
	}
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if hi >= uint64(c) {
		return math.MaxInt64, 0
	}
	q, rem := bits.Div64(hi, lo, uint64(c))
	if q > math.MaxInt64 {
		return math.MaxInt64, 0
	}
	return int64(q), rem
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
