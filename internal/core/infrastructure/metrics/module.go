package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"

	metricsconfig "github.com/weisyn/flowcontrol/internal/config/metrics"
	"github.com/weisyn/flowcontrol/internal/core/infrastructure/log"
	metricsInterface "github.com/weisyn/flowcontrol/pkg/interfaces/infrastructure/metrics"
)

// ModuleInput 指标模块输入依赖
type ModuleInput struct {
	fx.In

	Lifecycle fx.Lifecycle
	Options   *metricsconfig.MetricsOptions
	Logger    *zap.Logger `optional:"true"`
}

// ModuleOutput 指标模块输出服务
type ModuleOutput struct {
	fx.Out

	Server     *Server
	Registerer prometheus.Registerer // 各模块在此注册指标
	Gatherer   prometheus.Gatherer
}

// Module 返回指标模块
//
// 提供：
// - *Server: 指标 HTTP 服务（随生命周期启停）
// - prometheus.Registerer / prometheus.Gatherer: 进程内共享的注册表
//
// 并把 group "stats_reporters" 中的模块状态导出为 module_objects / module_cache_items
func Module() fx.Option {
	return fx.Module("metrics",
		fx.Provide(ProvideServices),
		fx.Invoke(RegisterStatsReporters),
	)
}

// StatsReportersInput 各模块以 group 提供的状态上报者
type StatsReportersInput struct {
	fx.In

	Server    *Server
	Reporters []metricsInterface.StatsReporter `group:"stats_reporters"`
}

// RegisterStatsReporters 注册模块状态采集
func RegisterStatsReporters(input StatsReportersInput) error {
	return input.Server.RegisterStatsReporters(input.Reporters...)
}

// ProvideServices 创建指标服务并挂到生命周期上
func ProvideServices(input ModuleInput) ModuleOutput {
	server := NewServer(input.Options, log.NewModuleZapLogger(input.Logger, "metrics"))
	input.Lifecycle.Append(fx.Hook{
		OnStart: server.Start,
		OnStop:  server.Stop,
	})
	return ModuleOutput{
		Server:     server,
		Registerer: server.Registry(),
		Gatherer:   server.Registry(),
	}
}
