package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	config "github.com/weisyn/flowcontrol/internal/config"
	fcconfig "github.com/weisyn/flowcontrol/internal/config/flowcontrol"
)

// validateCmd 校验配置文件
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "校验配置文件并输出生效的流控参数",
	RunE: func(cmd *cobra.Command, args []string) error {
		appConfig, err := loadAppConfig()
		if err != nil {
			return err
		}

		provider := config.NewProvider(appConfig)
		if err := provider.Validate(); err != nil {
			pterm.Error.Println("配置校验失败")
			for _, line := range strings.Split(err.Error(), "\n") {
				pterm.Println("  " + line)
			}
			return fmt.Errorf("配置非法")
		}

		pterm.DefaultSection.Println("flow_control")
		if err := pterm.DefaultTable.WithHasHeader(true).WithData(optionsTable(provider.GetFlowControl())).Render(); err != nil {
			return err
		}
		pterm.Success.Println("配置校验通过")
		return nil
	},
}

func optionsTable(o *fcconfig.FlowControlOptions) [][]string {
	data := [][]string{
		{"参数", "生效值"},
		{"enable", strconv.FormatBool(o.Enable)},
		{"limiter_type", o.LimiterType},
		{"time_window", o.TimeWindow.String()},
		{"stat_reporter_interval", o.StatReporterInterval.String()},
		{"modules_without_bw_limit", joinUint16(o.ModulesWithoutBwLimit)},
		{"outgoing_allow_exceed_max_permit", strconv.FormatBool(o.OutgoingAllowExceedMaxPermit)},
		{"total_outgoing_bw_limit", formatLimit(o.TotalOutgoingBwLimit, "B/s")},
		{"conn_outgoing_bw_limit", formatLimit(o.ConnOutgoingBwLimit, "B/s")},
		{"group_outgoing_bw_limit", formatLimit(o.GroupOutgoingBwLimit, "B/s")},
		{"incoming_p2p_basic_msg_types", joinUint16(o.P2PBasicMsgTypes)},
		{"incoming_p2p_basic_msg_type_qps_limit", formatLimit(o.P2PBasicMsgTypeQPSLimit, "qps")},
		{"incoming_module_msg_type_qps_limit", formatLimit(o.ModuleMsgTypeQPSLimit, "qps")},
		{"distributed_ratelimit", strconv.FormatBool(o.EnableDistributedRatelimit)},
	}
	for _, ip := range sortedKeys(o.ConnOutgoingBwLimitByIP) {
		data = append(data, []string{"conn_outgoing_bw_limit[" + ip + "]", formatLimit(o.ConnOutgoingBwLimitByIP[ip], "B/s")})
	}
	for _, group := range sortedKeys(o.GroupOutgoingBwLimitByGroup) {
		data = append(data, []string{"group_outgoing_bw_limit[" + group + "]", formatLimit(o.GroupOutgoingBwLimitByGroup[group], "B/s")})
	}
	modules := make([]int, 0, len(o.ModuleQPSLimit))
	for m := range o.ModuleQPSLimit {
		modules = append(modules, int(m))
	}
	sort.Ints(modules)
	for _, m := range modules {
		data = append(data, []string{"incoming_module_qps_limit[" + strconv.Itoa(m) + "]", formatLimit(o.ModuleQPSLimit[uint16(m)], "qps")})
	}
	if o.EnableDistributedRatelimit {
		data = append(data, []string{"redis.addr", o.Redis.Addr})
	}
	return data
}

func formatLimit(v int64, unit string) string {
	if v <= 0 {
		return "不限制"
	}
	return strconv.FormatInt(v, 10) + " " + unit
}

func joinUint16(values []uint16) string {
	if len(values) == 0 {
		return "-"
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatUint(uint64(v), 10)
	}
	return strings.Join(parts, ",")
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
