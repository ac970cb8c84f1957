package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/weisyn/flowcontrol/configs"
	"github.com/weisyn/flowcontrol/internal/app"
	config "github.com/weisyn/flowcontrol/internal/config"
	"github.com/weisyn/flowcontrol/pkg/types"
)

// GlobalFlags 全局标志
type GlobalFlags struct {
	ConfigFile string // 配置文件路径
	Env        string // 内置配置的环境名，未指定配置文件时生效
}

var globalFlags GlobalFlags

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "flowctl",
	Short: "区块链 P2P 网关流量控制",
	Long: `flowctl - 区块链 P2P 网关流量控制服务

按 总带宽 / 连接 / group 三级限制出站带宽，按 group+module 与 endpoint+消息类型限制入站 QPS。
开启分布式模式后，group 维度的额度通过 Redis 在多个网关实例间共享。

配置文件路径可通过 --config 或环境变量 FLOWCONTROL_CONFIG_PATH 指定，后者优先。`,
	SilenceUsage: true,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&globalFlags.ConfigFile, "config", "c", "", "配置文件路径 (JSON)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.Env, "env", "", "使用内置配置: "+strings.Join(configs.Environments(), "|"))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(versionCmd)
}

// embeddedConfig 未指定配置文件且设置了 --env 时返回对应的内置配置
func embeddedConfig() ([]byte, bool, error) {
	if config.ResolvePath(globalFlags.ConfigFile) != "" || globalFlags.Env == "" {
		return nil, false, nil
	}
	data, ok := configs.Get(globalFlags.Env)
	if !ok {
		return nil, false, fmt.Errorf("未知环境 %q，可选: %s", globalFlags.Env, strings.Join(configs.Environments(), ","))
	}
	return data, true, nil
}

// appOptions 按命令行参数确定配置来源
func appOptions() ([]app.Option, error) {
	data, ok, err := embeddedConfig()
	if err != nil {
		return nil, err
	}
	if ok {
		return []app.Option{app.WithEmbeddedConfig(data)}, nil
	}
	return []app.Option{app.WithConfigFile(globalFlags.ConfigFile)}, nil
}

// loadAppConfig 加载配置：--config / 环境变量 > --env > 默认配置
func loadAppConfig() (*types.AppConfig, error) {
	data, ok, err := embeddedConfig()
	if err != nil {
		return nil, err
	}
	if ok {
		return config.Parse(data)
	}
	path := config.ResolvePath(globalFlags.ConfigFile)
	if path == "" {
		return &types.AppConfig{}, nil
	}
	return config.Load(path)
}
