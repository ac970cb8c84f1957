// Package flowcontrol 网关流量控制配置
package flowcontrol

import (
	"errors"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	configtypes "github.com/weisyn/flowcontrol/pkg/types"
)

// 本地限流策略
const (
	LimiterTypeTokenBucket = "token_bucket"
	LimiterTypeTimeWindow  = "time_window"
)

// Disabled 带宽或 QPS 不限制
const Disabled int64 = -1

// FlowControlOptions 流量控制配置选项
//
// 带宽已换算为字节/秒，Disabled 表示不限制。
type FlowControlOptions struct {
	// === 基础配置 ===
	Enable      bool          `json:"enable"`
	LimiterType string        `json:"limiter_type"`
	TimeWindow  time.Duration `json:"time_window"`

	// === 统计上报 ===
	StatReporterInterval   time.Duration `json:"stat_reporter_interval"` // 0 表示不上报
	EnableConnectDebugInfo bool          `json:"enable_connect_debug_info"`

	// === 分布式限流 ===
	EnableDistributedRatelimit       bool         `json:"enable_distributed_ratelimit"`
	EnableDistributedRatelimitCache  bool         `json:"enable_distributed_ratelimit_cache"`
	DistributedRatelimitCachePercent int64        `json:"distributed_ratelimit_cache_percent"`
	Redis                            RedisOptions `json:"redis"`

	// === 出站带宽（字节/秒） ===
	ModulesWithoutBwLimit        []uint16         `json:"modules_without_bw_limit"`
	OutgoingAllowExceedMaxPermit bool             `json:"outgoing_allow_exceed_max_permit"`
	TotalOutgoingBwLimit         int64            `json:"total_outgoing_bw_limit"`
	ConnOutgoingBwLimit          int64            `json:"conn_outgoing_bw_limit"`
	ConnOutgoingBwLimitByIP      map[string]int64 `json:"conn_outgoing_bw_limit_by_ip"`
	GroupOutgoingBwLimit         int64            `json:"group_outgoing_bw_limit"`
	GroupOutgoingBwLimitByGroup  map[string]int64 `json:"group_outgoing_bw_limit_by_group"`

	// === 入站 QPS ===
	P2PBasicMsgTypes        []uint16         `json:"p2p_basic_msg_types"`
	P2PBasicMsgTypeQPSLimit int64            `json:"p2p_basic_msg_type_qps_limit"`
	ModuleMsgTypeQPSLimit   int64            `json:"module_msg_type_qps_limit"`
	ModuleQPSLimit          map[uint16]int64 `json:"module_qps_limit"`

	// === 令牌桶突发额度 ===
	BurstWindow     time.Duration `json:"burst_window"`
	MaxBurstPermits int64         `json:"max_burst_permits"`
}

// RedisOptions 分布式限流 Redis 配置
type RedisOptions struct {
	Addr         string        `json:"addr"`
	Password     string        `json:"-"`
	DB           int           `json:"db"`
	PoolSize     int           `json:"pool_size"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	CallTimeout  time.Duration `json:"call_timeout"`
	KeyPrefix    string        `json:"key_prefix"`
}

// Config 流量控制配置实现
type Config struct {
	options *FlowControlOptions
	// 合并用户配置时遇到的解析错误，由 Validate 统一返回
	parseErrs []error
}

// New 创建流量控制配置实现
func New(userConfig *configtypes.UserFlowControlConfig) *Config {
	c := &Config{options: createDefaultOptions()}
	c.options.ModulesWithoutBwLimit = c.parseModules("modules_without_bw_limit", defaultModulesWithoutBwLimit)

	if userConfig != nil {
		c.applyUserConfig(userConfig)
	}
	return c
}

// createDefaultOptions 创建默认配置
func createDefaultOptions() *FlowControlOptions {
	return &FlowControlOptions{
		Enable:      defaultEnable,
		LimiterType: defaultLimiterType,
		TimeWindow:  defaultTimeWindowSec * time.Second,

		StatReporterInterval:   defaultStatReporterIntervalMs * time.Millisecond,
		EnableConnectDebugInfo: defaultEnableConnectDebugInfo,

		EnableDistributedRatelimit:       defaultEnableDistributedRatelimit,
		EnableDistributedRatelimitCache:  defaultEnableDistributedRatelimitCache,
		DistributedRatelimitCachePercent: defaultDistributedRatelimitCachePercent,
		Redis: RedisOptions{
			PoolSize:     defaultRedisPoolSize,
			DialTimeout:  defaultRedisDialTimeoutMs * time.Millisecond,
			ReadTimeout:  defaultRedisReadTimeoutMs * time.Millisecond,
			WriteTimeout: defaultRedisWriteTimeoutMs * time.Millisecond,
			CallTimeout:  defaultRedisCallTimeoutMs * time.Millisecond,
			KeyPrefix:    defaultRedisKeyPrefix,
		},

		OutgoingAllowExceedMaxPermit: defaultOutgoingAllowExceedMaxPermit,
		TotalOutgoingBwLimit:         MbToBytes(defaultBwLimitMb),
		ConnOutgoingBwLimit:          MbToBytes(defaultBwLimitMb),
		ConnOutgoingBwLimitByIP:      map[string]int64{},
		GroupOutgoingBwLimit:         MbToBytes(defaultBwLimitMb),
		GroupOutgoingBwLimitByGroup:  map[string]int64{},

		P2PBasicMsgTypeQPSLimit: defaultQPSLimit,
		ModuleMsgTypeQPSLimit:   defaultQPSLimit,
		ModuleQPSLimit:          map[uint16]int64{},

		BurstWindow:     defaultBurstTimeIntervalMs * time.Millisecond,
		MaxBurstPermits: defaultMaxBurstReqNum,
	}
}

// applyUserConfig 应用用户配置覆盖默认值
func (c *Config) applyUserConfig(u *configtypes.UserFlowControlConfig) {
	o := c.options

	if u.Enable != nil {
		o.Enable = *u.Enable
	}
	if u.LimiterType != nil {
		o.LimiterType = strings.ToLower(strings.TrimSpace(*u.LimiterType))
	}
	if u.TimeWindowSec != nil {
		if *u.TimeWindowSec < 1 {
			c.fail(invalid("time_window_sec", "must be >= 1, got %d", *u.TimeWindowSec))
		} else {
			o.TimeWindow = time.Duration(*u.TimeWindowSec) * time.Second
		}
	}

	if u.StatReporterInterval != nil {
		if *u.StatReporterInterval < 0 {
			c.fail(invalid("stat_reporter_interval", "must be >= 0, got %d", *u.StatReporterInterval))
		} else {
			o.StatReporterInterval = time.Duration(*u.StatReporterInterval) * time.Millisecond
		}
	}
	if u.EnableConnectDebugInfo != nil {
		o.EnableConnectDebugInfo = *u.EnableConnectDebugInfo
	}

	if u.EnableDistributedRatelimit != nil {
		o.EnableDistributedRatelimit = *u.EnableDistributedRatelimit
	}
	if u.EnableDistributedRatelimitCache != nil {
		o.EnableDistributedRatelimitCache = *u.EnableDistributedRatelimitCache
	}
	if u.DistributedRatelimitCachePercent != nil {
		o.DistributedRatelimitCachePercent = *u.DistributedRatelimitCachePercent
	}
	if u.Redis != nil {
		applyUserRedisConfig(&o.Redis, u.Redis)
	}

	if u.ModulesWithoutBwLimit != nil {
		o.ModulesWithoutBwLimit = c.parseModules("modules_without_bw_limit", *u.ModulesWithoutBwLimit)
	}
	if u.OutgoingAllowExceedMaxPermit != nil {
		o.OutgoingAllowExceedMaxPermit = *u.OutgoingAllowExceedMaxPermit
	}
	if u.TotalOutgoingBwLimit != nil {
		o.TotalOutgoingBwLimit = MbToBytes(*u.TotalOutgoingBwLimit)
	}
	if u.ConnOutgoingBwLimit != nil {
		o.ConnOutgoingBwLimit = MbToBytes(*u.ConnOutgoingBwLimit)
	}
	for ip, mb := range u.ConnOutgoingBwLimitByIP {
		ip = strings.TrimSpace(ip)
		if net.ParseIP(ip) == nil {
			c.fail(invalid("conn_outgoing_bw_limit_by_ip", "invalid ip %q", ip))
			continue
		}
		// 只有正值生效
		if mb > 0 {
			o.ConnOutgoingBwLimitByIP[ip] = MbToBytes(mb)
		}
	}
	if u.GroupOutgoingBwLimit != nil {
		o.GroupOutgoingBwLimit = MbToBytes(*u.GroupOutgoingBwLimit)
	}
	for group, mb := range u.GroupOutgoingBwLimitByGroup {
		group = strings.TrimSpace(group)
		if group == "" {
			c.fail(invalid("group_outgoing_bw_limit_by_group", "empty group id"))
			continue
		}
		if mb > 0 {
			o.GroupOutgoingBwLimitByGroup[group] = MbToBytes(mb)
		}
	}

	if u.IncomingP2PBasicMsgTypeList != nil {
		o.P2PBasicMsgTypes = c.parseMsgTypes(*u.IncomingP2PBasicMsgTypeList)
	}
	if u.IncomingP2PBasicMsgTypeQPSLimit != nil {
		o.P2PBasicMsgTypeQPSLimit = *u.IncomingP2PBasicMsgTypeQPSLimit
	}
	if u.IncomingModuleMsgTypeQPSLimit != nil {
		o.ModuleMsgTypeQPSLimit = *u.IncomingModuleMsgTypeQPSLimit
	}
	for name, qps := range u.IncomingModuleQPSLimit {
		id, ok := configtypes.ParseModuleID(name)
		if !ok {
			c.fail(invalid("incoming_module_qps_limit", "unknown module %q, expect one of %s or a numeric id", name, configtypes.ModuleNames))
			continue
		}
		if qps <= 0 {
			c.fail(invalid("incoming_module_qps_limit", "qps of module %q must be > 0, got %d", name, qps))
			continue
		}
		o.ModuleQPSLimit[id] = qps
	}

	if u.BurstTimeIntervalMs != nil {
		o.BurstWindow = time.Duration(*u.BurstTimeIntervalMs) * time.Millisecond
	}
	if u.MaxBurstReqNum != nil {
		o.MaxBurstPermits = *u.MaxBurstReqNum
	}
}

// applyUserRedisConfig 应用用户 Redis 配置
func applyUserRedisConfig(o *RedisOptions, u *configtypes.UserRedisConfig) {
	if u.Addr != nil {
		o.Addr = strings.TrimSpace(*u.Addr)
	}
	if u.Password != nil {
		o.Password = *u.Password
	}
	if u.DB != nil {
		o.DB = *u.DB
	}
	if u.PoolSize != nil {
		o.PoolSize = *u.PoolSize
	}
	if u.DialTimeoutMs != nil {
		o.DialTimeout = time.Duration(*u.DialTimeoutMs) * time.Millisecond
	}
	if u.ReadTimeoutMs != nil {
		o.ReadTimeout = time.Duration(*u.ReadTimeoutMs) * time.Millisecond
	}
	if u.WriteTimeoutMs != nil {
		o.WriteTimeout = time.Duration(*u.WriteTimeoutMs) * time.Millisecond
	}
	if u.CallTimeoutMs != nil {
		o.CallTimeout = time.Duration(*u.CallTimeoutMs) * time.Millisecond
	}
	if u.KeyPrefix != nil {
		o.KeyPrefix = *u.KeyPrefix
	}
}

// parseModules 解析逗号分隔的模块列表，支持模块名和数字 ID
func (c *Config) parseModules(field, list string) []uint16 {
	seen := make(map[uint16]struct{})
	modules := make([]uint16, 0)
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		id, ok := configtypes.ParseModuleID(item)
		if !ok {
			c.fail(invalid(field, "unknown module %q, expect one of %s or a numeric id", item, configtypes.ModuleNames))
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		modules = append(modules, id)
	}
	sort.Slice(modules, func(i, j int) bool { return modules[i] < modules[j] })
	return modules
}

// parseMsgTypes 解析逗号分隔的 P2P 基础消息类型
func (c *Config) parseMsgTypes(list string) []uint16 {
	types := make([]uint16, 0)
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		n, err := strconv.ParseUint(item, 10, 16)
		if err != nil {
			c.fail(invalid("incoming_p2p_basic_msg_type_list", "invalid message type %q", item))
			continue
		}
		types = append(types, uint16(n))
	}
	return types
}

func (c *Config) fail(err error) {
	c.parseErrs = append(c.parseErrs, err)
}

// GetOptions 获取完整的流量控制配置选项
func (c *Config) GetOptions() *FlowControlOptions {
	return c.options
}

// Validate 校验配置，返回所有错误（均可用 errors.Is(err, ErrInvalidConfig) 判断）
func (c *Config) Validate() error {
	errs := append([]error(nil), c.parseErrs...)
	o := c.options

	if o.LimiterType != LimiterTypeTokenBucket && o.LimiterType != LimiterTypeTimeWindow {
		errs = append(errs, invalid("limiter_type", "unknown limiter type %q, expect %s or %s",
			o.LimiterType, LimiterTypeTokenBucket, LimiterTypeTimeWindow))
	}
	if o.P2PBasicMsgTypeQPSLimit < Disabled {
		errs = append(errs, invalid("incoming_p2p_basic_msg_type_qps_limit", "must be >= -1, got %d", o.P2PBasicMsgTypeQPSLimit))
	}
	if o.ModuleMsgTypeQPSLimit < Disabled {
		errs = append(errs, invalid("incoming_module_msg_type_qps_limit", "must be >= -1, got %d", o.ModuleMsgTypeQPSLimit))
	}
	if o.BurstWindow < 0 {
		errs = append(errs, invalid("burst_time_interval_ms", "must be >= 0, got %d", o.BurstWindow.Milliseconds()))
	}
	if o.MaxBurstPermits < 0 {
		errs = append(errs, invalid("max_burst_req_num", "must be >= 0, got %d", o.MaxBurstPermits))
	}

	if o.EnableDistributedRatelimit {
		if o.Redis.Addr == "" {
			errs = append(errs, invalid("redis.addr", "required when enable_distributed_ratelimit is true"))
		}
		if o.EnableDistributedRatelimitCache &&
			(o.DistributedRatelimitCachePercent <= 0 || o.DistributedRatelimitCachePercent > 100) {
			errs = append(errs, invalid("distributed_ratelimit_cache_percent", "must be in (0, 100], got %d", o.DistributedRatelimitCachePercent))
		}
		if o.Redis.PoolSize <= 0 {
			errs = append(errs, invalid("redis.pool_size", "must be > 0, got %d", o.Redis.PoolSize))
		}
	}

	return errors.Join(errs...)
}

// MbToBytes 把 Mbit/s 换算为字节/秒；非正值表示不限制
func MbToBytes(mb float64) int64 {
	if mb <= 0 {
		return Disabled
	}
	return int64(mb * 1024 * 1024 / 8)
}
