// Package flowcontrol 网关流量控制模块
//
// 对外提供：
// - *gateway.GatewayLimiter: 网关收发消息的准入检查
// - flowcontrol.Router: group 维度的限流路由
// - flowcontrol.StatisticsCollector: 流量统计
// - metrics.StatsReporter: 限流器数量等模块状态（group "stats_reporters"）
//
// 依赖：
// - *FlowControlOptions: 流控配置
// - *zap.Logger: 日志记录器（可选）
// - clock.Clock / prometheus.Registerer: 可选，缺省为系统时钟与默认注册器
package flowcontrol

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"

	fcconfig "github.com/weisyn/flowcontrol/internal/config/flowcontrol"
	"github.com/weisyn/flowcontrol/internal/core/flowcontrol/gateway"
	"github.com/weisyn/flowcontrol/internal/core/flowcontrol/stat"
	"github.com/weisyn/flowcontrol/internal/core/infrastructure/clock"
	"github.com/weisyn/flowcontrol/internal/core/infrastructure/log"
	fcInterface "github.com/weisyn/flowcontrol/pkg/interfaces/flowcontrol"
	infraClock "github.com/weisyn/flowcontrol/pkg/interfaces/infrastructure/clock"
	metricsInterface "github.com/weisyn/flowcontrol/pkg/interfaces/infrastructure/metrics"
)

// ModuleInput 流控模块输入依赖
type ModuleInput struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Options    *fcconfig.FlowControlOptions
	Logger     *zap.Logger           `optional:"true"`
	Clock      infraClock.Clock      `optional:"true"`
	Registerer prometheus.Registerer `optional:"true"`
}

// ModuleOutput 流控模块输出服务
type ModuleOutput struct {
	fx.Out

	Gateway    *gateway.GatewayLimiter
	Router     fcInterface.Router
	Statistics fcInterface.StatisticsCollector
	Reporter   metricsInterface.StatsReporter `group:"stats_reporters"`
}

// Module 返回流控模块
func Module() fx.Option {
	return fx.Module("flowcontrol",
		fx.Provide(ProvideServices),
	)
}

// ProvideServices 组装限流器工厂、统计与网关限流器，并挂到生命周期上
func ProvideServices(input ModuleInput) (ModuleOutput, error) {
	opts := input.Options
	clk := input.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	logger := log.NewModuleZapLogger(input.Logger, "flowcontrol")
	if logger == nil {
		logger = zap.NewNop()
	}

	factory, err := gateway.NewFactory(opts, clk)
	if err != nil {
		return ModuleOutput{}, fmt.Errorf("创建限流器工厂失败: %w", err)
	}

	collector := stat.NewCollector()
	var reporter *stat.Reporter
	if opts.Enable && opts.StatReporterInterval > 0 {
		reporter, err = stat.NewReporter(collector, logger, stat.ReporterConfig{
			Interval:               opts.StatReporterInterval,
			EnableConnectDebugInfo: opts.EnableConnectDebugInfo,
			Registerer:             input.Registerer,
		})
		if err != nil {
			_ = factory.Close()
			return ModuleOutput{}, fmt.Errorf("创建统计上报器失败: %w", err)
		}
	}

	g, err := gateway.New(opts, factory, collector, reporter, logger)
	if err != nil {
		_ = factory.Close()
		return ModuleOutput{}, fmt.Errorf("创建网关限流器失败: %w", err)
	}

	input.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			// OnStart 的 ctx 在启动完成后即失效，上报循环由 Stop 结束
			g.Start(context.Background())
			return nil
		},
		OnStop: func(context.Context) error {
			return g.Stop()
		},
	})

	return ModuleOutput{
		Gateway:    g,
		Router:     g.Router(),
		Statistics: collector,
		Reporter:   g,
	}, nil
}
