package types

// AppConfig 用户配置文件（JSON）
//
// 只包含配置文件中实际出现的字段，全部使用指针：nil 表示未配置，由各配置模块套用默认值。
type AppConfig struct {
	// 日志配置 - 对应配置文件中的 log 字段
	Log *UserLogConfig `json:"log,omitempty"`

	// 流量控制配置 - 对应配置文件中的 flow_control 字段
	FlowControl *UserFlowControlConfig `json:"flow_control,omitempty"`

	// 指标配置 - 对应配置文件中的 metrics 字段
	Metrics *UserMetricsConfig `json:"metrics,omitempty"`
}

// UserLogConfig 用户日志配置
type UserLogConfig struct {
	Level     *string `json:"level,omitempty"`      // 日志级别：debug, info, warn, error, fatal
	FilePath  *string `json:"file_path,omitempty"`  // 日志文件路径
	ToConsole *bool   `json:"to_console,omitempty"` // 是否输出到控制台
}

// UserMetricsConfig 用户指标配置
type UserMetricsConfig struct {
	Enabled *bool   `json:"enabled,omitempty"` // 是否暴露 /metrics
	Addr    *string `json:"addr,omitempty"`    // 监听地址，如 "127.0.0.1:9100"
	Path    *string `json:"path,omitempty"`    // 抓取路径
}

// UserFlowControlConfig 用户流量控制配置
//
// 带宽单位为 Mbit/s，QPS 为 -1 表示不限制。
type UserFlowControlConfig struct {
	Enable *bool `json:"enable,omitempty"`

	// 本地限流策略：token_bucket | time_window
	LimiterType *string `json:"limiter_type,omitempty"`
	// 时间窗口长度（秒），同时是分布式配额周期
	TimeWindowSec *int64 `json:"time_window_sec,omitempty"`

	// 统计上报周期（毫秒），0 表示不上报
	StatReporterInterval *int64 `json:"stat_reporter_interval,omitempty"`
	// 是否输出连接维度的统计
	EnableConnectDebugInfo *bool `json:"enable_connect_debug_info,omitempty"`

	// 分布式限流
	EnableDistributedRatelimit       *bool            `json:"enable_distributed_ratelimit,omitempty"`
	EnableDistributedRatelimitCache  *bool            `json:"enable_distributed_ratelimit_cache,omitempty"`
	DistributedRatelimitCachePercent *int64           `json:"distributed_ratelimit_cache_percent,omitempty"`
	Redis                            *UserRedisConfig `json:"redis,omitempty"`

	// 出站带宽
	// 不限流的模块，逗号分隔，支持模块名或数字 ID，如 "raft,pbft,cons_txs_sync,txs_sync"
	ModulesWithoutBwLimit        *string            `json:"modules_without_bw_limit,omitempty"`
	OutgoingAllowExceedMaxPermit *bool              `json:"outgoing_allow_exceed_max_permit,omitempty"`
	TotalOutgoingBwLimit         *float64           `json:"total_outgoing_bw_limit,omitempty"`
	ConnOutgoingBwLimit          *float64           `json:"conn_outgoing_bw_limit,omitempty"`
	ConnOutgoingBwLimitByIP      map[string]float64 `json:"conn_outgoing_bw_limit_by_ip,omitempty"`
	GroupOutgoingBwLimit         *float64           `json:"group_outgoing_bw_limit,omitempty"`
	GroupOutgoingBwLimitByGroup  map[string]float64 `json:"group_outgoing_bw_limit_by_group,omitempty"`

	// 入站 QPS
	// P2P 基础消息类型列表，逗号分隔，如 "1,2,3"
	IncomingP2PBasicMsgTypeList     *string          `json:"incoming_p2p_basic_msg_type_list,omitempty"`
	IncomingP2PBasicMsgTypeQPSLimit *int64           `json:"incoming_p2p_basic_msg_type_qps_limit,omitempty"`
	IncomingModuleMsgTypeQPSLimit   *int64           `json:"incoming_module_msg_type_qps_limit,omitempty"`
	IncomingModuleQPSLimit          map[string]int64 `json:"incoming_module_qps_limit,omitempty"` // 模块 ID → QPS

	// 令牌桶突发额度
	BurstTimeIntervalMs *int64 `json:"burst_time_interval_ms,omitempty"`
	MaxBurstReqNum      *int64 `json:"max_burst_req_num,omitempty"`
}

// UserRedisConfig 分布式限流使用的 Redis 配置
type UserRedisConfig struct {
	Addr           *string `json:"addr,omitempty"`
	Password       *string `json:"password,omitempty"`
	DB             *int    `json:"db,omitempty"`
	PoolSize       *int    `json:"pool_size,omitempty"`
	DialTimeoutMs  *int64  `json:"dial_timeout_ms,omitempty"`
	ReadTimeoutMs  *int64  `json:"read_timeout_ms,omitempty"`
	WriteTimeoutMs *int64  `json:"write_timeout_ms,omitempty"`
	CallTimeoutMs  *int64  `json:"call_timeout_ms,omitempty"`
	KeyPrefix      *string `json:"key_prefix,omitempty"`
}
