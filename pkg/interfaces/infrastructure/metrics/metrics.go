// Package metrics 定义模块自报状态的接口
//
// 模块实现 StatsReporter 后以 fx group "stats_reporters" 提供，
// 由 internal/core/infrastructure/metrics 在每次抓取时收集并导出为 Prometheus 指标。
package metrics

// StatsReporterGroup 提供 StatsReporter 时使用的 fx group 名
const StatsReporterGroup = "stats_reporters"

// ModuleStats 模块"自己认账"的状态
//
// 不追求绝对精确，关键是能反映趋势，例如懒创建的限流器是否随连接数无限增长。
type ModuleStats struct {
	Module     string `json:"module"`      // 模块名称：flowcontrol.gateway ...
	Objects    int64  `json:"objects"`     // 主要对象数：限流器数量 ...
	CacheItems int64  `json:"cache_items"` // 缓存条目：统计项数量 ...
}

// StatsReporter 模块状态上报接口
type StatsReporter interface {
	// ModuleName 返回模块名称
	ModuleName() string

	// CollectStats 收集当前模块的状态，需并发安全
	CollectStats() ModuleStats
}
