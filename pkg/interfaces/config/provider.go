// Package config provides configuration provider interfaces.
package config

import (
	flowcontrolconfig "github.com/weisyn/flowcontrol/internal/config/flowcontrol"
	logconfig "github.com/weisyn/flowcontrol/internal/config/log"
	metricsconfig "github.com/weisyn/flowcontrol/internal/config/metrics"
)

// Provider 配置提供者接口
type Provider interface {
	// GetLog 获取日志配置
	GetLog() *logconfig.LogOptions

	// GetFlowControl 获取流量控制配置
	GetFlowControl() *flowcontrolconfig.FlowControlOptions

	// GetMetrics 获取指标端点配置
	GetMetrics() *metricsconfig.MetricsOptions

	// Validate 校验全部配置，返回所有错误
	Validate() error
}
