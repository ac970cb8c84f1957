package gateway

import (
	fcconfig "github.com/weisyn/flowcontrol/internal/config/flowcontrol"
	"github.com/weisyn/flowcontrol/internal/core/flowcontrol/ratelimit"
	infraClock "github.com/weisyn/flowcontrol/pkg/interfaces/infrastructure/clock"
)

// FactoryConfig 由流量控制配置得到限流器工厂参数
func FactoryConfig(opts *fcconfig.FlowControlOptions, clk infraClock.Clock) ratelimit.FactoryConfig {
	return ratelimit.FactoryConfig{
		Clock:               clk,
		Type:                ratelimit.LimiterType(opts.LimiterType),
		Window:              opts.TimeWindow,
		AllowExceedCapacity: opts.OutgoingAllowExceedMaxPermit,
		BurstWindow:         opts.BurstWindow,
		MaxBurstPermits:     opts.MaxBurstPermits,
		// 网关启动时即按满额放行
		StartFull:        true,
		KeyPrefix:        opts.Redis.KeyPrefix,
		EnableLocalCache: opts.EnableDistributedRatelimitCache,
		CachePercent:     opts.DistributedRatelimitCachePercent,
		RedisCallTimeout: opts.Redis.CallTimeout,
	}
}

// RedisConfig 由流量控制配置得到 Redis 连接参数
func RedisConfig(opts *fcconfig.FlowControlOptions) ratelimit.RedisConfig {
	r := opts.Redis
	return ratelimit.RedisConfig{
		Addr:         r.Addr,
		Password:     r.Password,
		DB:           r.DB,
		PoolSize:     r.PoolSize,
		DialTimeout:  r.DialTimeout,
		ReadTimeout:  r.ReadTimeout,
		WriteTimeout: r.WriteTimeout,
	}
}

// NewFactory 创建限流器工厂，开启分布式限流时连接 Redis
func NewFactory(opts *fcconfig.FlowControlOptions, clk infraClock.Clock) (*ratelimit.Factory, error) {
	factory := ratelimit.NewFactory(FactoryConfig(opts, clk))
	if opts.Enable && opts.EnableDistributedRatelimit {
		if err := factory.ConnectRedis(RedisConfig(opts)); err != nil {
			return nil, err
		}
	}
	return factory, nil
}
