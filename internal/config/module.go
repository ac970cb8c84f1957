// Package config 提供应用配置管理功能
package config

import (
	"fmt"

	flowcontrolconfig "github.com/weisyn/flowcontrol/internal/config/flowcontrol"
	"github.com/weisyn/flowcontrol/internal/config/metrics"
	"github.com/weisyn/flowcontrol/pkg/interfaces/config"
	"github.com/weisyn/flowcontrol/pkg/types"
	"go.uber.org/fx"
)

// ConfigParams 定义配置模块的依赖参数
type ConfigParams struct {
	fx.In

	// 应用配置选项
	AppOptions config.AppOptions `optional:"true"`
}

// ConfigOutput 定义配置模块的输出结构
type ConfigOutput struct {
	fx.Out

	// 配置提供者
	Provider config.Provider
}

// Module 返回配置模块
func Module() fx.Option {
	return fx.Module("config",
		fx.Provide(
			ProvideConfigServices,
			// 提供具体的配置类型用于依赖注入
			func(provider config.Provider) *flowcontrolconfig.FlowControlOptions {
				return provider.GetFlowControl()
			},
			func(provider config.Provider) *metrics.MetricsOptions {
				return provider.GetMetrics()
			},
		),
	)
}

// ProvideConfigServices 提供配置服务，配置非法时启动失败
func ProvideConfigServices(params ConfigParams) (ConfigOutput, error) {
	var appConfig *types.AppConfig
	if params.AppOptions != nil {
		appConfig = params.AppOptions.GetAppConfig()
	}

	provider := NewProvider(appConfig)
	if err := provider.Validate(); err != nil {
		return ConfigOutput{}, fmt.Errorf("配置校验失败: %w", err)
	}

	return ConfigOutput{
		Provider: provider,
	}, nil
}
