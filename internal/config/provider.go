package config

import (
	"errors"

	flowcontrolconfig "github.com/weisyn/flowcontrol/internal/config/flowcontrol"
	"github.com/weisyn/flowcontrol/internal/config/log"
	"github.com/weisyn/flowcontrol/internal/config/metrics"
	"github.com/weisyn/flowcontrol/pkg/interfaces/config"
	"github.com/weisyn/flowcontrol/pkg/types"
)

// Provider 实现配置提供者接口
//
// 各配置在构造时合并一次，之后只读。
type Provider struct {
	appConfig   *types.AppConfig
	log         *log.Config
	flowControl *flowcontrolconfig.Config
	metrics     *metrics.Config
}

// 编译时校验
var _ config.Provider = (*Provider)(nil)

// NewProvider 创建配置提供者
func NewProvider(appConfig *types.AppConfig) *Provider {
	if appConfig == nil {
		appConfig = &types.AppConfig{}
	}
	return &Provider{
		appConfig:   appConfig,
		log:         log.New(appConfig.Log),
		flowControl: flowcontrolconfig.New(appConfig.FlowControl),
		metrics:     metrics.New(appConfig.Metrics),
	}
}

// GetLog 获取日志配置
func (p *Provider) GetLog() *log.LogOptions {
	return p.log.GetOptions()
}

// GetFlowControl 获取流量控制配置
func (p *Provider) GetFlowControl() *flowcontrolconfig.FlowControlOptions {
	return p.flowControl.GetOptions()
}

// GetMetrics 获取指标端点配置
func (p *Provider) GetMetrics() *metrics.MetricsOptions {
	return p.metrics.GetOptions()
}

// Validate 校验全部配置
func (p *Provider) Validate() error {
	var errs []error
	if !p.log.IsValidLevel() {
		errs = append(errs, &ValidationError{
			Field:   "log.level",
			Message: "未知的日志级别 " + p.log.GetOptions().Level,
		})
	}
	if err := p.flowControl.Validate(); err != nil {
		errs = append(errs, err)
	}
	if m := p.metrics.GetOptions(); m.Enabled && m.Addr == "" {
		errs = append(errs, &ValidationError{
			Field:   "metrics.addr",
			Message: "启用指标端点时监听地址不能为空",
		})
	}
	return errors.Join(errs...)
}
