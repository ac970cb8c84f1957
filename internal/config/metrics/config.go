// Package metrics 指标端点配置
package metrics

import (
	"strings"

	configtypes "github.com/weisyn/flowcontrol/pkg/types"
)

// MetricsOptions 指标配置选项
type MetricsOptions struct {
	Enabled bool   `json:"enabled"` // 是否启动 HTTP 指标端点
	Addr    string `json:"addr"`    // 监听地址
	Path    string `json:"path"`    // 抓取路径
}

// Config 指标配置实现
type Config struct {
	options *MetricsOptions
}

// New 创建指标配置实现
func New(userConfig *configtypes.UserMetricsConfig) *Config {
	options := &MetricsOptions{
		Enabled: defaultEnabled,
		Addr:    defaultAddr,
		Path:    defaultPath,
	}
	if userConfig != nil {
		if userConfig.Enabled != nil {
			options.Enabled = *userConfig.Enabled
		}
		if userConfig.Addr != nil {
			options.Addr = strings.TrimSpace(*userConfig.Addr)
		}
		if userConfig.Path != nil && *userConfig.Path != "" {
			options.Path = *userConfig.Path
			if !strings.HasPrefix(options.Path, "/") {
				options.Path = "/" + options.Path
			}
		}
	}
	return &Config{options: options}
}

// GetOptions 获取完整的指标配置选项
func (c *Config) GetOptions() *MetricsOptions {
	return c.options
}
