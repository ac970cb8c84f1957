package ratelimit

import (
	"errors"
	"fmt"
	"time"

	"github.com/weisyn/flowcontrol/internal/core/infrastructure/clock"
	"github.com/weisyn/flowcontrol/pkg/interfaces/flowcontrol"
	infraClock "github.com/weisyn/flowcontrol/pkg/interfaces/infrastructure/clock"
)

// LimiterType 本地限流策略
type LimiterType string

const (
	LimiterTokenBucket LimiterType = "token_bucket"
	LimiterTimeWindow  LimiterType = "time_window"
)

// DefaultKeyPrefix 分布式配额 key 前缀
const DefaultKeyPrefix = "flowcontrol:token:"

var (
	// ErrRedisNotConfigured 未连接 Redis 时创建分布式限流器
	ErrRedisNotConfigured = errors.New("redis client not configured")
	// ErrUnknownLimiterType 未知的限流策略
	ErrUnknownLimiterType = errors.New("unknown limiter type")
)

// FactoryConfig 限流器工厂参数
type FactoryConfig struct {
	// Clock 所有本地限流器共享的时间源，nil 时使用系统时钟
	Clock infraClock.Clock
	// Type 本地限流策略，空值为令牌桶
	Type LimiterType
	// Window 时间窗口策略的窗口长度，也是分布式配额周期
	Window time.Duration
	// AllowExceedCapacity 时间窗口策略是否允许超过容量的请求透支
	AllowExceedCapacity bool
	// BurstWindow / MaxBurstPermits 令牌桶突发额度
	BurstWindow     time.Duration
	MaxBurstPermits int64
	// StartFull 令牌桶以满桶启动，否则从空桶开始按速率补充
	StartFull bool

	// KeyPrefix 分布式配额 key 前缀
	KeyPrefix string
	// EnableLocalCache / CachePercent 分布式限流器本地缓存
	EnableLocalCache bool
	CachePercent     int64
	// RedisCallTimeout 单次 Redis 调用超时
	RedisCallTimeout time.Duration
}

// Factory 按统一参数创建限流器
type Factory struct {
	cfg    FactoryConfig
	client redisClient
}

// NewFactory 创建工厂；分布式限流需要再调用 ConnectRedis
func NewFactory(cfg FactoryConfig) *Factory {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewSystemClock()
	}
	if cfg.Type == "" {
		cfg.Type = LimiterTokenBucket
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Second
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	return &Factory{cfg: cfg}
}

func newFactoryWithClient(cfg FactoryConfig, client redisClient) *Factory {
	f := NewFactory(cfg)
	f.client = client
	return f
}

// ConnectRedis 连接 Redis 并预加载脚本
func (f *Factory) ConnectRedis(cfg RedisConfig) error {
	client, err := newGoRedisClient(cfg)
	if err != nil {
		return err
	}
	f.client = client
	return nil
}

// HasRedis 是否已连接 Redis
func (f *Factory) HasRedis() bool { return f.client != nil }

// Close 关闭 Redis 连接
func (f *Factory) Close() error {
	if f.client == nil {
		return nil
	}
	return f.client.Close()
}

// Clock 工厂使用的时间源
func (f *Factory) Clock() infraClock.Clock { return f.cfg.Clock }

// TokenKey 分布式配额 key
func (f *Factory) TokenKey(name string) string { return f.cfg.KeyPrefix + name }

// BuildTokenBucket 创建令牌桶，带工厂配置的突发额度
func (f *Factory) BuildTokenBucket(capacity int64) *TokenBucketLimiter {
	opts := []Option{
		WithClock(f.cfg.Clock),
		WithBurst(f.cfg.BurstWindow, f.cfg.MaxBurstPermits),
	}
	if f.cfg.StartFull {
		opts = append(opts, WithInitialPermits(capacity))
	}
	return NewTokenBucketLimiter(capacity, opts...)
}

// BuildTimeWindow 创建时间窗口限流器
func (f *Factory) BuildTimeWindow(capacity int64, window time.Duration, allowExceed bool) *TimeWindowLimiter {
	if window <= 0 {
		window = f.cfg.Window
	}
	return NewTimeWindowLimiter(capacity, window,
		WithClock(f.cfg.Clock),
		WithAllowExceedCapacity(allowExceed),
	)
}

// BuildDistributed 创建共享 name 配额的分布式限流器，perSecond 按窗口长度换算为周期配额
func (f *Factory) BuildDistributed(name string, perSecond int64) (*DistributedLimiter, error) {
	if f.client == nil {
		return nil, ErrRedisNotConfigured
	}
	return newDistributedLimiter(f.client, DistributedConfig{
		Key:              f.TokenKey(name),
		Capacity:         f.WindowCapacity(perSecond),
		Interval:         f.cfg.Window,
		EnableLocalCache: f.cfg.EnableLocalCache,
		CachePercent:     f.cfg.CachePercent,
		CallTimeout:      f.cfg.RedisCallTimeout,
	}), nil
}

// Build 按工厂配置的策略创建本地限流器
//
// 时间窗口策略下容量按窗口长度换算：capacity 为每秒额度。
func (f *Factory) Build(capacity int64) (flowcontrol.Limiter, error) {
	switch f.cfg.Type {
	case LimiterTokenBucket:
		return f.BuildTokenBucket(capacity), nil
	case LimiterTimeWindow:
		return f.BuildTimeWindow(f.WindowCapacity(capacity), f.cfg.Window, f.cfg.AllowExceedCapacity), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownLimiterType, f.cfg.Type)
	}
}

// WindowCapacity 每秒额度换算为一个窗口内的额度
func (f *Factory) WindowCapacity(perSecond int64) int64 {
	if perSecond <= 0 {
		return perSecond
	}
	seconds := int64(f.cfg.Window / time.Second)
	if seconds <= 1 {
		return perSecond
	}
	return perSecond * seconds
}
