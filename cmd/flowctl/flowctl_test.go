package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fcconfig "github.com/weisyn/flowcontrol/internal/config/flowcontrol"
	"github.com/weisyn/flowcontrol/pkg/types"
)

func TestSplitGroups(t *testing.T) {
	assert.Equal(t, []string{"group0", "group1"}, splitGroups(" group0, ,group1 "))
	assert.Equal(t, []string{"group0"}, splitGroups(" , "))
}

func TestPrepareSimulationConfig(t *testing.T) {
	level := "debug"
	enabled := true
	appConfig := &types.AppConfig{
		Log:     &types.UserLogConfig{Level: &level},
		Metrics: &types.UserMetricsConfig{Enabled: &enabled},
	}

	prepareSimulationConfig(appConfig, true)

	assert.False(t, *appConfig.Metrics.Enabled)
	assert.Equal(t, "debug", *appConfig.Log.Level)
	require.NotNil(t, appConfig.FlowControl)
	assert.True(t, *appConfig.FlowControl.Enable)
}

func TestOptionsTable(t *testing.T) {
	o := fcconfig.New(&types.UserFlowControlConfig{
		ConnOutgoingBwLimitByIP: map[string]float64{"192.108.0.1": 1},
		IncomingModuleQPSLimit:  map[string]int64{"amop": 10},
	}).GetOptions()

	data := optionsTable(o)

	assert.Equal(t, []string{"参数", "生效值"}, data[0])
	assert.Contains(t, data, []string{"total_outgoing_bw_limit", "不限制"})
	assert.Contains(t, data, []string{"conn_outgoing_bw_limit[192.108.0.1]", "131072 B/s"})
	assert.Contains(t, data, []string{"incoming_module_qps_limit[3000]", "10 qps"})
	assert.Contains(t, data, []string{"modules_without_bw_limit", "1000,1001,2001,2002"})
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)

	require.NoError(t, versionCmd.RunE(versionCmd, nil))

	assert.Contains(t, out.String(), "flowctl dev")
}

func TestLoadAppConfig_EmbeddedEnv(t *testing.T) {
	t.Setenv("FLOWCONTROL_CONFIG_PATH", "")
	globalFlags = GlobalFlags{Env: "development"}
	defer func() { globalFlags = GlobalFlags{} }()

	appConfig, err := loadAppConfig()

	require.NoError(t, err)
	require.NotNil(t, appConfig.FlowControl)
	assert.True(t, *appConfig.FlowControl.Enable)
}

func TestLoadAppConfig_UnknownEnv(t *testing.T) {
	t.Setenv("FLOWCONTROL_CONFIG_PATH", "")
	globalFlags = GlobalFlags{Env: "staging"}
	defer func() { globalFlags = GlobalFlags{} }()

	_, err := loadAppConfig()

	assert.Error(t, err)
}
