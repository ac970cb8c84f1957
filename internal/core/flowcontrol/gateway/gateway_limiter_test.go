package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	fcconfig "github.com/weisyn/flowcontrol/internal/config/flowcontrol"
	"github.com/weisyn/flowcontrol/internal/core/flowcontrol/ratelimit"
	"github.com/weisyn/flowcontrol/internal/core/flowcontrol/stat"
	"github.com/weisyn/flowcontrol/internal/core/infrastructure/clock"
	"github.com/weisyn/flowcontrol/pkg/types"
)

const (
	endpointA = "192.108.0.1:30300"
	endpointB = "192.108.0.2:30300"
)

// newOptions 默认配置上开启流量控制，使用时间窗口策略便于精确断言
func newOptions(mutate func(o *fcconfig.FlowControlOptions)) *fcconfig.FlowControlOptions {
	enable := true
	limiterType := fcconfig.LimiterTypeTimeWindow
	o := fcconfig.New(&types.UserFlowControlConfig{
		Enable:      &enable,
		LimiterType: &limiterType,
	}).GetOptions()
	if mutate != nil {
		mutate(o)
	}
	return o
}

func newTestGateway(t *testing.T, opts *fcconfig.FlowControlOptions) (*GatewayLimiter, *clock.MockClock) {
	t.Helper()
	mc := clock.NewMockClock(time.Unix(0, 0))
	factory, err := NewFactory(opts, mc)
	require.NoError(t, err)
	g, err := New(opts, factory, stat.NewCollector(), nil, zap.NewNop())
	require.NoError(t, err)
	return g, mc
}

func remaining(t *testing.T, l interface{}) int64 {
	t.Helper()
	tw, ok := l.(*ratelimit.TimeWindowLimiter)
	require.True(t, ok)
	return tw.Remaining()
}

// ==================== 出站带宽 ====================

func TestCheckOutgoing_Disabled_AdmitsWithoutStats(t *testing.T) {
	g, _ := newTestGateway(t, newOptions(func(o *fcconfig.FlowControlOptions) {
		o.Enable = false
		o.TotalOutgoingBwLimit = 1
	}))

	assert.True(t, g.CheckOutgoing(endpointA, "group0", types.ModuleBlockSync, 100))
	assert.False(t, g.Enabled())
	assert.Zero(t, g.Stats().Len())
}

func TestCheckOutgoing_TotalLimit(t *testing.T) {
	// Arrange
	g, mc := newTestGateway(t, newOptions(func(o *fcconfig.FlowControlOptions) {
		o.TotalOutgoingBwLimit = 100
	}))

	// Act & Assert
	assert.True(t, g.CheckOutgoing(endpointA, "group0", types.ModuleBlockSync, 60))
	assert.False(t, g.CheckOutgoing(endpointA, "group0", types.ModuleBlockSync, 60))
	assert.True(t, g.CheckOutgoing(endpointB, "group0", types.ModuleBlockSync, 40))

	// 新窗口恢复
	mc.Advance(time.Second)
	assert.True(t, g.CheckOutgoing(endpointA, "group0", types.ModuleBlockSync, 100))

	total := g.Stats().Snapshot()[stat.TotalKey].Outgoing
	assert.Equal(t, int64(4), total.TotalCount)
	assert.Equal(t, int64(1), total.TotalFailed)
	assert.Equal(t, int64(260), total.TotalBytes)
}

func TestCheckOutgoing_ConnDenialRollsBackTotal(t *testing.T) {
	g, _ := newTestGateway(t, newOptions(func(o *fcconfig.FlowControlOptions) {
		o.TotalOutgoingBwLimit = 1000
		o.ConnOutgoingBwLimit = 100
	}))

	require.True(t, g.CheckOutgoing(endpointA, "", types.ModuleBlockSync, 80))
	assert.False(t, g.CheckOutgoing(endpointA, "", types.ModuleBlockSync, 80))

	assert.Equal(t, int64(920), remaining(t, g.total), "连接限流拒绝后总带宽额度已归还")
	// 另一个 IP 使用独立的连接额度
	assert.True(t, g.CheckOutgoing(endpointB, "", types.ModuleBlockSync, 80))
	assert.Equal(t, 2, g.conns.Len())
}

func TestCheckOutgoing_GroupDenialRollsBackTotalAndConn(t *testing.T) {
	g, _ := newTestGateway(t, newOptions(func(o *fcconfig.FlowControlOptions) {
		o.TotalOutgoingBwLimit = 1000
		o.ConnOutgoingBwLimit = 500
		o.GroupOutgoingBwLimit = 100
	}))

	require.True(t, g.CheckOutgoing(endpointA, "group0", types.ModuleBlockSync, 90))
	assert.False(t, g.CheckOutgoing(endpointA, "group0", types.ModuleBlockSync, 20))

	assert.Equal(t, int64(910), remaining(t, g.total))
	conn, ok := g.conns.Get("192.108.0.1")
	require.True(t, ok)
	assert.Equal(t, int64(410), remaining(t, conn))

	// 懒创建的 group 限流器已注册
	assert.Equal(t, []string{"group0"}, g.Router().Groups())
	group0 := g.Stats().Snapshot()[stat.GroupKey("group0")].Outgoing
	assert.Equal(t, int64(1), group0.TotalSucceeded)
	assert.Equal(t, int64(1), group0.TotalFailed)
}

func TestCheckOutgoing_Overrides(t *testing.T) {
	g, _ := newTestGateway(t, newOptions(func(o *fcconfig.FlowControlOptions) {
		o.ConnOutgoingBwLimit = 1000
		o.ConnOutgoingBwLimitByIP = map[string]int64{"192.108.0.1": 50}
		o.GroupOutgoingBwLimit = 100
		o.GroupOutgoingBwLimitByGroup = map[string]int64{"group1": 1000}
	}))

	assert.False(t, g.CheckOutgoing(endpointA, "", types.ModuleBlockSync, 60), "IP 单独配置 50")
	assert.True(t, g.CheckOutgoing(endpointB, "", types.ModuleBlockSync, 60), "默认 1000")

	assert.False(t, g.CheckOutgoing(endpointB, "group0", types.ModuleBlockSync, 200), "group 默认 100")
	assert.True(t, g.CheckOutgoing("192.108.0.3:30300", "group1", types.ModuleBlockSync, 200), "group1 单独配置 1000")
}

func TestCheckOutgoing_ModuleWithoutLimitBypassesAll(t *testing.T) {
	g, _ := newTestGateway(t, newOptions(func(o *fcconfig.FlowControlOptions) {
		o.TotalOutgoingBwLimit = 10
		o.ConnOutgoingBwLimit = 10
		o.GroupOutgoingBwLimit = 10
	}))

	assert.True(t, g.CheckOutgoing(endpointA, "group0", types.ModulePBFT, 1000))
	assert.True(t, g.CheckOutgoing(endpointA, "group0", types.ModuleRaft, 1000))
	assert.False(t, g.CheckOutgoing(endpointA, "group0", types.ModuleBlockSync, 1000))

	snap := g.Stats().Snapshot()
	assert.Equal(t, int64(1), snap[stat.ModuleKey("group0", types.ModulePBFT)].Bypassed)
	assert.Equal(t, int64(2), snap[stat.TotalKey].Outgoing.TotalSucceeded)
	assert.Equal(t, int64(10), remaining(t, g.total), "白名单模块不消耗额度")
}

func TestCheckOutgoing_AllowExceedMaxPermit(t *testing.T) {
	g, _ := newTestGateway(t, newOptions(func(o *fcconfig.FlowControlOptions) {
		o.TotalOutgoingBwLimit = 100
		o.OutgoingAllowExceedMaxPermit = true
	}))

	assert.True(t, g.CheckOutgoing(endpointA, "", types.ModuleBlockSync, 150), "窗口有余量时超大消息透支放行")
	assert.False(t, g.CheckOutgoing(endpointA, "", types.ModuleBlockSync, 1))
}

func TestCheckOutgoingErr(t *testing.T) {
	g, _ := newTestGateway(t, newOptions(func(o *fcconfig.FlowControlOptions) {
		o.TotalOutgoingBwLimit = 10
	}))

	assert.NoError(t, g.CheckOutgoingErr(endpointA, "group0", types.ModuleBlockSync, 10))
	err := g.CheckOutgoingErr(endpointA, "group0", types.ModuleBlockSync, 10)
	assert.ErrorIs(t, err, ErrOutgoingBwOverflow)
	assert.Contains(t, err.Error(), "group=group0")
}

func TestCheckOutgoing_TokenBucketStartsFull(t *testing.T) {
	g, mc := newTestGateway(t, newOptions(func(o *fcconfig.FlowControlOptions) {
		o.LimiterType = fcconfig.LimiterTypeTokenBucket
		o.TotalOutgoingBwLimit = 100
	}))

	assert.True(t, g.CheckOutgoing(endpointA, "", types.ModuleBlockSync, 100))
	assert.False(t, g.CheckOutgoing(endpointA, "", types.ModuleBlockSync, 10))

	mc.Advance(100 * time.Millisecond)
	assert.True(t, g.CheckOutgoing(endpointA, "", types.ModuleBlockSync, 10))
}

// ==================== 入站 QPS ====================

func TestCheckIncoming_ModuleQPS(t *testing.T) {
	// Arrange
	g, mc := newTestGateway(t, newOptions(func(o *fcconfig.FlowControlOptions) {
		o.ModuleQPSLimit = map[uint16]int64{types.ModuleAMOP: 2}
	}))

	// Act & Assert
	assert.NoError(t, g.CheckIncoming("group0", types.ModuleAMOP, 10))
	assert.NoError(t, g.CheckIncoming("group0", types.ModuleAMOP, 10))
	err := g.CheckIncoming("group0", types.ModuleAMOP, 10)
	assert.ErrorIs(t, err, ErrIncomingQPSOverflow)

	// 不同 group 独立计数，未配置的模块不限制
	assert.NoError(t, g.CheckIncoming("group1", types.ModuleAMOP, 10))
	for i := 0; i < 10; i++ {
		assert.NoError(t, g.CheckIncoming("group0", types.ModuleBlockSync, 10))
	}

	mc.Advance(time.Second)
	assert.NoError(t, g.CheckIncoming("group0", types.ModuleAMOP, 10))

	s := g.Stats().Snapshot()[stat.ModuleKey("group0", types.ModuleAMOP)].Incoming
	assert.Equal(t, int64(3), s.TotalSucceeded)
	assert.Equal(t, int64(1), s.TotalFailed)
}

func TestCheckIncoming_DefaultModuleQPS(t *testing.T) {
	g, _ := newTestGateway(t, newOptions(func(o *fcconfig.FlowControlOptions) {
		o.ModuleMsgTypeQPSLimit = 1
	}))

	assert.NoError(t, g.CheckIncoming("group0", types.ModuleBlockSync, 1))
	assert.ErrorIs(t, g.CheckIncoming("group0", types.ModuleBlockSync, 1), ErrIncomingQPSOverflow)
	assert.NoError(t, g.CheckIncoming("group0", types.ModuleTxsSync, 1))
}

func TestCheckIncomingBasic_PacketQPS(t *testing.T) {
	g, _ := newTestGateway(t, newOptions(func(o *fcconfig.FlowControlOptions) {
		o.P2PBasicMsgTypes = []uint16{1}
		o.P2PBasicMsgTypeQPSLimit = 1
	}))

	assert.NoError(t, g.CheckIncomingBasic(endpointA, 1, 8))
	assert.ErrorIs(t, g.CheckIncomingBasic(endpointA, 1, 8), ErrIncomingQPSOverflow)
	assert.NoError(t, g.CheckIncomingBasic(endpointB, 1, 8), "按连接独立计数")
	assert.NoError(t, g.CheckIncomingBasic(endpointA, 2, 8), "非基础消息类型不限制")
	assert.NoError(t, g.CheckIncomingBasic(endpointA, 2, 8))

	s := g.Stats().Snapshot()[stat.EndpointKey(endpointA)].Incoming
	assert.Equal(t, int64(4), s.TotalCount)
	assert.Equal(t, int64(32), s.TotalBytes)
}

// ==================== 连接断开 ====================

func TestOnDisconnect_DropsLazyState(t *testing.T) {
	g, _ := newTestGateway(t, newOptions(func(o *fcconfig.FlowControlOptions) {
		o.ConnOutgoingBwLimit = 100
		o.ConnOutgoingBwLimitByIP = map[string]int64{"192.108.0.2": 50}
		o.P2PBasicMsgTypes = []uint16{1}
		o.P2PBasicMsgTypeQPSLimit = 10
	}))
	require.True(t, g.CheckOutgoing(endpointA, "", types.ModuleBlockSync, 10))
	require.True(t, g.CheckOutgoing(endpointB, "", types.ModuleBlockSync, 10))
	require.NoError(t, g.CheckIncomingBasic(endpointA, 1, 8))
	assert.Equal(t, int64(3), g.CollectStats().Objects)
	assert.Equal(t, int64(4), g.CollectStats().CacheItems)

	g.OnDisconnect(endpointA)
	g.OnDisconnect(endpointB)

	_, ok := g.conns.Get("192.108.0.1")
	assert.False(t, ok)
	_, ok = g.conns.Get("192.108.0.2")
	assert.True(t, ok, "单独配置的 IP 保留")
	assert.Zero(t, g.packetQPS.Len())
	snap := g.Stats().Snapshot()
	assert.NotContains(t, snap, stat.EndpointKey(endpointA))
	assert.NotContains(t, snap, stat.PacketKey(endpointA, 1))
	assert.Contains(t, snap, stat.TotalKey)
	assert.Equal(t, "flowcontrol.gateway", g.CollectStats().Module)
	assert.Equal(t, int64(1), g.CollectStats().Objects)
	assert.Equal(t, int64(1), g.CollectStats().CacheItems)
}

// ==================== 构造与生命周期 ====================

func TestNew_DistributedRequiresRedis(t *testing.T) {
	opts := newOptions(func(o *fcconfig.FlowControlOptions) {
		o.EnableDistributedRatelimit = true
	})

	_, err := New(opts, ratelimit.NewFactory(FactoryConfig(opts, nil)), nil, nil, nil)

	assert.ErrorIs(t, err, ratelimit.ErrRedisNotConfigured)
}

func TestNew_DistributedIgnoredWhenDisabled(t *testing.T) {
	opts := newOptions(func(o *fcconfig.FlowControlOptions) {
		o.Enable = false
		o.EnableDistributedRatelimit = true
		o.GroupOutgoingBwLimitByGroup = map[string]int64{"group0": 100}
	})

	factory, err := NewFactory(opts, nil)
	require.NoError(t, err)
	g, err := New(opts, factory, nil, nil, nil)

	require.NoError(t, err)
	assert.False(t, factory.HasRedis())
	assert.Equal(t, []string{"group0"}, g.Router().Groups())
}

func TestNew_LogsSummary(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	opts := newOptions(nil)

	_, err := New(opts, ratelimit.NewFactory(FactoryConfig(opts, nil)), nil, nil, zap.New(core))

	require.NoError(t, err)
	entries := logs.FilterMessage("gateway flow control initialized").All()
	require.Len(t, entries, 1)
	assert.Equal(t, fcconfig.LimiterTypeTimeWindow, entries[0].ContextMap()["limiter_type"])
}

func TestStartStop_RunsReporter(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	opts := newOptions(nil)
	collector := stat.NewCollector()
	reporter, err := stat.NewReporter(collector, zap.New(core), stat.ReporterConfig{
		Interval:   time.Hour,
		Registerer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	g, err := New(opts, ratelimit.NewFactory(FactoryConfig(opts, nil)), collector, reporter, nil)
	require.NoError(t, err)

	g.Start(context.Background())
	require.True(t, g.CheckOutgoing(endpointA, "group0", types.ModuleBlockSync, 10))
	require.NoError(t, g.Stop())

	// Stop 时输出最后一次统计
	assert.Equal(t, 1, logs.FilterMessage("flow control summary").Len())
	assert.Equal(t, 1, logs.FilterMessage("flow control stat reporter stopped").Len())
}
