package flowcontrol

// 流量控制配置默认值
const (
	// === 总开关 ===

	// defaultEnable 默认关闭流量控制
	// 原因：限流阈值与部署带宽强相关，没有统一合理的默认值，需由运维显式开启
	defaultEnable = false

	// defaultLimiterType 默认使用令牌桶
	// 原因：令牌桶允许消息排队等待补充，比时间窗口的整窗拒绝更平滑
	defaultLimiterType = LimiterTypeTokenBucket

	// defaultTimeWindowSec 时间窗口默认1秒
	// 原因：与每秒速率的配置单位一致，窗口容量等于配置值本身
	defaultTimeWindowSec = 1

	// === 统计上报 ===

	// defaultStatReporterIntervalMs 统计上报周期默认60秒
	// 原因：一分钟粒度足以观察流量趋势，不会让统计日志淹没业务日志
	defaultStatReporterIntervalMs = 60000

	// defaultEnableConnectDebugInfo 默认不输出连接维度统计
	// 原因：连接数多时每个周期会产生大量日志
	defaultEnableConnectDebugInfo = false

	// === 分布式限流 ===

	// defaultEnableDistributedRatelimit 默认不启用分布式限流
	// 原因：依赖外部 Redis，单机部署无需引入
	defaultEnableDistributedRatelimit = false

	// defaultEnableDistributedRatelimitCache 启用分布式限流时默认开启本地缓存
	// 原因：每条消息访问一次 Redis 的延迟不可接受，批量预取可以摊薄往返开销
	defaultEnableDistributedRatelimitCache = true

	// defaultDistributedRatelimitCachePercent 本地缓存默认预取容量的20%
	// 原因：比例过大会让单个节点占用其他节点的配额，过小又起不到摊薄作用
	defaultDistributedRatelimitCachePercent = 20

	// === Redis ===

	// defaultRedisPoolSize Redis 连接池默认大小
	// 原因：限流脚本执行很快，少量连接即可支撑高并发
	defaultRedisPoolSize = 16

	// defaultRedisDialTimeoutMs 建连超时默认3秒
	// 原因：只在启动和重连时发生，可以宽松一些
	defaultRedisDialTimeoutMs = 3000

	// defaultRedisReadTimeoutMs / defaultRedisWriteTimeoutMs 读写超时默认200毫秒
	// 原因：限流在消息收发的关键路径上，Redis 慢时宁可放行也不能卡住网关
	defaultRedisReadTimeoutMs  = 200
	defaultRedisWriteTimeoutMs = 200

	// defaultRedisCallTimeoutMs 单次配额请求超时默认200毫秒
	// 原因：同上，超时后按放行处理
	defaultRedisCallTimeoutMs = 200

	// defaultRedisKeyPrefix 配额 key 前缀
	// 原因：与同一 Redis 上的其他业务数据隔离
	defaultRedisKeyPrefix = "flowcontrol:token:"

	// === 出站带宽 ===

	// defaultModulesWithoutBwLimit 默认不限流的模块
	// 原因：共识和交易同步消息被延迟会直接影响出块，不应受带宽限制
	defaultModulesWithoutBwLimit = "raft,pbft,cons_txs_sync,txs_sync"

	// defaultOutgoingAllowExceedMaxPermit 默认不允许单条消息超过容量
	// 原因：超过容量的消息意味着配置的带宽不足以承载，应当暴露出来
	defaultOutgoingAllowExceedMaxPermit = false

	// defaultBwLimitMb 带宽默认不限制
	// 原因：-1 表示关闭，由运维按实际带宽配置
	defaultBwLimitMb = -1.0

	// === 入站 QPS ===

	// defaultQPSLimit 默认不限制
	defaultQPSLimit = -1

	// === 令牌桶突发额度 ===

	// defaultBurstTimeIntervalMs 突发额度周期默认1秒
	// 原因：与令牌桶补充速率的单位一致
	defaultBurstTimeIntervalMs = 1000

	// defaultMaxBurstReqNum 默认不提供突发额度
	// 原因：突发额度会让实际速率短时超过配置值，需要显式开启
	defaultMaxBurstReqNum = 0
)
