package ratelimit

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

//go:embed take_tokens.lua
var takeTokensSource string

//go:embed return_tokens.lua
var returnTokensSource string

var (
	takeTokensScript   = redis.NewScript(takeTokensSource)
	returnTokensScript = redis.NewScript(returnTokensSource)
)

// redisClient 分布式限流使用的最小 Redis 操作集（用于依赖注入和测试）
//
// ⚠️ **可见性**：包内私有接口，生产实现为 goRedisClient，测试使用内存实现。
type redisClient interface {
	// TakeTokens 原子地从 key 扣除 permits；key 不存在时按 capacity 初始化并设置 interval 过期
	TakeTokens(ctx context.Context, key string, capacity int64, interval time.Duration, permits int64) (bool, error)
	// ReturnTokens 归还 permits，不超过 capacity；key 已过期时忽略
	ReturnTokens(ctx context.Context, key string, capacity, permits int64) error
	Ping(ctx context.Context) error
	Close() error
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	// Redis 服务器地址（如 "127.0.0.1:6379"）
	Addr     string
	Password string
	DB       int
	PoolSize int
	// 连接超时与读写超时
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// goRedisClient go-redis 实现
//
// go-redis 客户端本身并发安全；脚本通过 EVALSHA 执行，缓存未命中时自动回退到 EVAL。
type goRedisClient struct {
	client *redis.Client
}

var _ redisClient = (*goRedisClient)(nil)

func newGoRedisClient(cfg RedisConfig) (redisClient, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	// 预加载脚本，之后走 EVALSHA
	if err := takeTokensScript.Load(ctx, client).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to load token script: %w", err)
	}

	return &goRedisClient{client: client}, nil
}

func (c *goRedisClient) TakeTokens(ctx context.Context, key string, capacity int64, interval time.Duration, permits int64) (bool, error) {
	ttl := int64(interval / time.Second)
	if ttl <= 0 {
		ttl = 1
	}
	n, err := takeTokensScript.Run(ctx, c.client, []string{key}, capacity, ttl, permits).Int64()
	if err != nil {
		return false, fmt.Errorf("take tokens %s: %w", key, err)
	}
	return n == 1, nil
}

func (c *goRedisClient) ReturnTokens(ctx context.Context, key string, capacity, permits int64) error {
	if err := returnTokensScript.Run(ctx, c.client, []string{key}, permits, capacity).Err(); err != nil {
		return fmt.Errorf("return tokens %s: %w", key, err)
	}
	return nil
}

func (c *goRedisClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *goRedisClient) Close() error {
	return c.client.Close()
}
