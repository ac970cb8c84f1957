// Package config provides application configuration interfaces.
package config

import "github.com/weisyn/flowcontrol/pkg/types"

// AppOptions 应用配置选项接口
type AppOptions interface {
	// GetAppConfig 获取应用配置
	GetAppConfig() *types.AppConfig
}
