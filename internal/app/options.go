package app

import (
	"go.uber.org/fx"

	"github.com/weisyn/flowcontrol/pkg/interfaces/config"
	"github.com/weisyn/flowcontrol/pkg/types"
)

// Option 应用程序选项函数类型
type Option func(*options)

// options 应用程序选项
// 实现config.AppOptions接口
type options struct {
	// 配置文件路径
	configFilePath string

	// 嵌入的配置内容（优先级高于configFilePath）
	embeddedConfig []byte

	// 用户配置（优先级最高）
	appConfig *types.AppConfig

	// 额外的 fx 选项，命令行工具用来取出内部服务
	fxOptions []fx.Option
}

// 编译时校验options是否实现了config.AppOptions接口
var _ config.AppOptions = (*options)(nil)

// WithConfigFile 设置配置文件路径
func WithConfigFile(configPath string) Option {
	return func(o *options) {
		o.configFilePath = configPath
	}
}

// WithEmbeddedConfig 设置嵌入的配置内容（优先级高于WithConfigFile）
func WithEmbeddedConfig(configBytes []byte) Option {
	return func(o *options) {
		o.embeddedConfig = configBytes
	}
}

// WithAppConfig 直接使用已解析的配置
func WithAppConfig(appConfig *types.AppConfig) Option {
	return func(o *options) {
		o.appConfig = appConfig
	}
}

// WithFxOptions 追加 fx 选项
func WithFxOptions(fxOptions ...fx.Option) Option {
	return func(o *options) {
		o.fxOptions = append(o.fxOptions, fxOptions...)
	}
}

// newOptions 创建选项
func newOptions(opts ...Option) *options {
	options := &options{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// GetAppConfig 返回应用程序配置
func (o *options) GetAppConfig() *types.AppConfig {
	return o.appConfig
}
