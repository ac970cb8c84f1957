package gateway

import (
	metricsInterface "github.com/weisyn/flowcontrol/pkg/interfaces/infrastructure/metrics"
)

// moduleName 上报模块状态时使用的名称
const moduleName = "flowcontrol.gateway"

var _ metricsInterface.StatsReporter = (*GatewayLimiter)(nil)

func (g *GatewayLimiter) ModuleName() string { return moduleName }

// CollectStats 限流器数量与统计项数量，用于观察懒创建的对象是否随连接增长而泄漏
func (g *GatewayLimiter) CollectStats() metricsInterface.ModuleStats {
	objects := int64(g.conns.Len() + g.moduleQPS.Len() + g.packetQPS.Len() + len(g.groups.Groups()))
	if g.total != nil {
		objects++
	}
	return metricsInterface.ModuleStats{
		Module:     moduleName,
		Objects:    objects,
		CacheItems: int64(g.stats.Len()),
	}
}
