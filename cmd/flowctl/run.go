package main

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/weisyn/flowcontrol/internal/app"
)

// runCmd 启动流控服务
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "启动流控服务",
	Long:  "加载配置并启动网关流控服务，开启指标端点时通过 HTTP 暴露 Prometheus 指标。收到 SIGINT/SIGTERM 后优雅退出。",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := appOptions()
		if err != nil {
			return err
		}
		a, err := app.Start(opts...)
		if err != nil {
			return err
		}

		pterm.Success.Println("流控服务已启动，按 Ctrl+C 停止")
		sig := a.Wait()
		pterm.Info.Printfln("收到信号 %v，已停止", sig)
		return nil
	},
}
