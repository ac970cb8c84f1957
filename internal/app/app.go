package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/weisyn/flowcontrol/internal/config"
	"github.com/weisyn/flowcontrol/internal/core/flowcontrol/gateway"
	configInterface "github.com/weisyn/flowcontrol/pkg/interfaces/config"
)

// stopTimeout 停止应用的超时时间
const stopTimeout = 30 * time.Second

// ProvideAppOptions 为 config 模块提供 AppOptions
func ProvideAppOptions(opts *options) configInterface.AppOptions {
	return opts
}

// load 解析配置来源并填充 appConfig
//
// 优先级：WithAppConfig > WithEmbeddedConfig > 配置文件（环境变量 FLOWCONTROL_CONFIG_PATH 优先于 WithConfigFile）。
// 均未提供时使用默认配置。
func (o *options) load() error {
	if o.appConfig != nil {
		return nil
	}
	if len(o.embeddedConfig) > 0 {
		appConfig, err := config.Parse(o.embeddedConfig)
		if err != nil {
			return fmt.Errorf("解析嵌入配置失败: %w", err)
		}
		o.appConfig = appConfig
		return nil
	}
	if path := config.ResolvePath(o.configFilePath); path != "" {
		appConfig, err := config.Load(path)
		if err != nil {
			return err
		}
		o.appConfig = appConfig
	}
	return nil
}

// App 是流控服务的对外接口
type App interface {
	// Gateway 网关限流器
	Gateway() *gateway.GatewayLimiter

	// Stop 停止应用
	Stop() error

	// Wait 等待退出信号后停止应用
	Wait() os.Signal
}

// internalApp 应用的内部实现
type internalApp struct {
	bootstrap *Bootstrap
	gateway   *gateway.GatewayLimiter
}

func (a *internalApp) Gateway() *gateway.GatewayLimiter { return a.gateway }

// Stop 停止应用
func (a *internalApp) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return a.bootstrap.StopApp(ctx)
}

// Wait 阻塞直到收到 SIGINT/SIGTERM，然后停止应用
func (a *internalApp) Wait() os.Signal {
	sig := WaitForSignal()
	if err := a.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "停止应用时出错: %v\n", err)
	}
	return sig
}

// Start 加载配置并启动应用
func Start(appOptions ...Option) (App, error) {
	return BootstrapApp(appOptions...)
}

// WaitForSignal 等待退出信号
func WaitForSignal() os.Signal {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)
	return <-signals
}
