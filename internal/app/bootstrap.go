package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"

	config "github.com/weisyn/flowcontrol/internal/config"
	"github.com/weisyn/flowcontrol/internal/core/flowcontrol"
	"github.com/weisyn/flowcontrol/internal/core/flowcontrol/gateway"
	log "github.com/weisyn/flowcontrol/internal/core/infrastructure/log"
	"github.com/weisyn/flowcontrol/internal/core/infrastructure/metrics"
)

// startTimeout 启动应用的超时时间
const startTimeout = 30 * time.Second

// Bootstrap 应用引导程序
type Bootstrap struct {
	opts    *options
	fxApp   *fx.App
	gateway *gateway.GatewayLimiter
}

// NewBootstrap 创建引导程序
func NewBootstrap(opts *options) *Bootstrap {
	return &Bootstrap{
		opts: opts,
	}
}

// SetupInfrastructureLayer 设置基础设施层模块
func (b *Bootstrap) SetupInfrastructureLayer() []fx.Option {
	return []fx.Option{
		fx.Supply(b.opts),
		fx.Provide(ProvideAppOptions),
		config.Module(),  // 1. 配置(不依赖其他)
		log.Module(),     // 2. 日志(依赖配置)
		metrics.Module(), // 3. 指标(依赖配置和日志)
	}
}

// SetupBusinessLayer 设置业务层模块
func (b *Bootstrap) SetupBusinessLayer() []fx.Option {
	return []fx.Option{
		flowcontrol.Module(), // 网关流量控制(依赖配置、日志、指标)
		fx.Populate(&b.gateway),
	}
}

// SetupModules 设置所有应用模块
func (b *Bootstrap) SetupModules() []fx.Option {
	var allModules []fx.Option
	allModules = append(allModules, b.SetupInfrastructureLayer()...)
	allModules = append(allModules, b.SetupBusinessLayer()...)
	allModules = append(allModules, b.opts.fxOptions...)
	return allModules
}

// CreateFxApp 创建并配置fx应用
func (b *Bootstrap) CreateFxApp() error {
	if err := b.opts.load(); err != nil {
		return err
	}
	b.fxApp = fx.New(
		fx.Options(b.SetupModules()...),
		// 禁用fx内部日志
		fx.NopLogger,
	)
	return b.fxApp.Err()
}

// StartApp 启动应用程序
func (b *Bootstrap) StartApp(ctx context.Context) error {
	if err := b.fxApp.Start(ctx); err != nil {
		return fmt.Errorf("启动应用失败: %w", err)
	}
	return nil
}

// StopApp 停止应用程序
func (b *Bootstrap) StopApp(ctx context.Context) error {
	if err := b.fxApp.Stop(ctx); err != nil {
		return fmt.Errorf("停止应用失败: %w", err)
	}
	return nil
}

// BootstrapApp 执行完整的引导过程并返回应用实例
func BootstrapApp(options ...Option) (App, error) {
	bootstrap := NewBootstrap(newOptions(options...))

	if err := bootstrap.CreateFxApp(); err != nil {
		return nil, fmt.Errorf("创建应用失败: %w", err)
	}

	startupCtx, startupCancel := context.WithTimeout(context.Background(), startTimeout)
	defer startupCancel()
	if err := bootstrap.StartApp(startupCtx); err != nil {
		return nil, err
	}

	return &internalApp{
		bootstrap: bootstrap,
		gateway:   bootstrap.gateway,
	}, nil
}
