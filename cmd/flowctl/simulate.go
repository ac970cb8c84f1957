package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/weisyn/flowcontrol/internal/app"
	"github.com/weisyn/flowcontrol/internal/core/flowcontrol/gateway"
	"github.com/weisyn/flowcontrol/pkg/types"
)

// SimulateFlags simulate 子命令参数
type SimulateFlags struct {
	Endpoints int
	Groups    string
	Module    string
	MsgSize   int64
	Rate      int
	Duration  time.Duration
	Enable    bool
}

var simulateFlags SimulateFlags

// simulateCmd 用合成流量驱动网关限流器
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "用合成流量驱动网关限流器并输出统计",
	Long: `按配置创建网关限流器，模拟若干连接以固定速率收发消息，结束后输出各维度的放行与拒绝统计。
模拟期间不启动指标 HTTP 端点。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		module, ok := types.ParseModuleID(simulateFlags.Module)
		if !ok {
			return fmt.Errorf("未知模块 %q，可选: %s", simulateFlags.Module, types.ModuleNames)
		}
		if simulateFlags.Endpoints <= 0 || simulateFlags.Rate <= 0 || simulateFlags.MsgSize <= 0 {
			return fmt.Errorf("endpoints、rate、msg-size 必须为正数")
		}
		groups := splitGroups(simulateFlags.Groups)

		appConfig, err := loadAppConfig()
		if err != nil {
			return err
		}
		prepareSimulationConfig(appConfig, simulateFlags.Enable)

		a, err := app.Start(app.WithAppConfig(appConfig))
		if err != nil {
			return err
		}
		defer a.Stop()

		pterm.Info.Printfln("模拟 %d 个连接，每连接 %d msg/s，消息 %d 字节，持续 %s",
			simulateFlags.Endpoints, simulateFlags.Rate, simulateFlags.MsgSize, simulateFlags.Duration)
		result := simulate(cmd.Context(), a.Gateway(), groups, module)

		pterm.DefaultSection.Println("结果")
		if err := pterm.DefaultTable.WithHasHeader(true).WithData([][]string{
			{"方向", "放行", "拒绝"},
			{"outgoing", strconv.FormatInt(result.outAdmitted.Load(), 10), strconv.FormatInt(result.outRejected.Load(), 10)},
			{"incoming", strconv.FormatInt(result.inAdmitted.Load(), 10), strconv.FormatInt(result.inRejected.Load(), 10)},
		}).Render(); err != nil {
			return err
		}

		pterm.DefaultSection.Println("统计")
		return pterm.DefaultTable.WithHasHeader(true).WithData(statsTable(a.Gateway())).Render()
	},
}

func init() {
	f := simulateCmd.Flags()
	f.IntVar(&simulateFlags.Endpoints, "endpoints", 3, "模拟的连接数")
	f.StringVar(&simulateFlags.Groups, "groups", "group0", "group 列表，逗号分隔，连接按顺序轮流归属")
	f.StringVar(&simulateFlags.Module, "module", "block_sync", "消息所属模块名或数字 ID")
	f.Int64Var(&simulateFlags.MsgSize, "msg-size", 4096, "单条消息字节数")
	f.IntVar(&simulateFlags.Rate, "rate", 100, "每个连接每秒发送的消息数")
	f.DurationVar(&simulateFlags.Duration, "duration", 5*time.Second, "模拟时长")
	f.BoolVar(&simulateFlags.Enable, "enable", true, "忽略配置中的 enable，强制开启流量控制")
}

type simulationResult struct {
	outAdmitted, outRejected atomic.Int64
	inAdmitted, inRejected   atomic.Int64
}

// prepareSimulationConfig 关闭指标端点，未配置日志时只输出告警以上级别
func prepareSimulationConfig(appConfig *types.AppConfig, forceEnable bool) {
	disabled := false
	appConfig.Metrics = &types.UserMetricsConfig{Enabled: &disabled}
	if appConfig.Log == nil {
		level := "warn"
		appConfig.Log = &types.UserLogConfig{Level: &level}
	}
	if forceEnable {
		if appConfig.FlowControl == nil {
			appConfig.FlowControl = &types.UserFlowControlConfig{}
		}
		enable := true
		appConfig.FlowControl.Enable = &enable
	}
}

func simulate(parent context.Context, g *gateway.GatewayLimiter, groups []string, module uint16) *simulationResult {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, simulateFlags.Duration)
	defer cancel()

	result := &simulationResult{}
	eg, ctx := errgroup.WithContext(ctx)
	interval := time.Second / time.Duration(simulateFlags.Rate)
	for i := 0; i < simulateFlags.Endpoints; i++ {
		endpoint := fmt.Sprintf("10.0.%d.%d:30300", i/250, i%250+1)
		group := groups[i%len(groups)]
		eg.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if g.CheckOutgoing(endpoint, group, module, simulateFlags.MsgSize) {
						result.outAdmitted.Add(1)
					} else {
						result.outRejected.Add(1)
					}
					if err := g.CheckIncoming(group, module, simulateFlags.MsgSize); err != nil {
						result.inRejected.Add(1)
					} else {
						result.inAdmitted.Add(1)
					}
				}
			}
		})
	}
	_ = eg.Wait()
	return result
}

func statsTable(g *gateway.GatewayLimiter) [][]string {
	snapshot := g.Stats().Snapshot()
	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	data := [][]string{{"key", "out bytes", "out ok", "out failed", "in bytes", "in failed", "bypassed"}}
	for _, k := range keys {
		s := snapshot[k]
		data = append(data, []string{
			k,
			strconv.FormatInt(s.Outgoing.TotalBytes, 10),
			strconv.FormatInt(s.Outgoing.TotalSucceeded, 10),
			strconv.FormatInt(s.Outgoing.TotalFailed, 10),
			strconv.FormatInt(s.Incoming.TotalBytes, 10),
			strconv.FormatInt(s.Incoming.TotalFailed, 10),
			strconv.FormatInt(s.Bypassed, 10),
		})
	}
	return data
}

func splitGroups(list string) []string {
	var groups []string
	for _, g := range strings.Split(list, ",") {
		if g = strings.TrimSpace(g); g != "" {
			groups = append(groups, g)
		}
	}
	if len(groups) == 0 {
		groups = []string{"group0"}
	}
	return groups
}
