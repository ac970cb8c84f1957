package flowcontrol

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	fcconfig "github.com/weisyn/flowcontrol/internal/config/flowcontrol"
	"github.com/weisyn/flowcontrol/internal/core/flowcontrol/gateway"
	"github.com/weisyn/flowcontrol/internal/core/flowcontrol/stat"
	"github.com/weisyn/flowcontrol/internal/core/infrastructure/clock"
	fcInterface "github.com/weisyn/flowcontrol/pkg/interfaces/flowcontrol"
	infraClock "github.com/weisyn/flowcontrol/pkg/interfaces/infrastructure/clock"
	"github.com/weisyn/flowcontrol/pkg/types"
)

func options(enable bool, totalMb float64) *fcconfig.FlowControlOptions {
	limiterType := fcconfig.LimiterTypeTimeWindow
	interval := int64(time.Hour / time.Millisecond)
	return fcconfig.New(&types.UserFlowControlConfig{
		Enable:               &enable,
		LimiterType:          &limiterType,
		StatReporterInterval: &interval,
		TotalOutgoingBwLimit: &totalMb,
	}).GetOptions()
}

func TestModule_ProvidesWiredGateway(t *testing.T) {
	// Arrange
	core, logs := observer.New(zap.InfoLevel)
	var (
		g     *gateway.GatewayLimiter
		r     fcInterface.Router
		stats fcInterface.StatisticsCollector
	)
	app := fx.New(
		fx.NopLogger,
		fx.Supply(options(true, 1)),
		fx.Supply(zap.New(core)),
		fx.Provide(
			func() infraClock.Clock { return clock.NewMockClock(time.Unix(0, 0)) },
			func() prometheus.Registerer { return prometheus.NewRegistry() },
		),
		Module(),
		fx.Populate(&g, &r, &stats),
	)
	require.NoError(t, app.Err())

	// Act
	require.NoError(t, app.Start(context.Background()))
	admitted := g.CheckOutgoing("192.108.0.1:30300", "group0", types.ModuleBlockSync, 1024)
	rejected := g.CheckOutgoing("192.108.0.1:30300", "group0", types.ModuleBlockSync, 1<<20)
	require.NoError(t, app.Stop(context.Background()))

	// Assert
	assert.True(t, admitted)
	assert.False(t, rejected)
	assert.Same(t, g.Router(), r)
	assert.Same(t, g.Stats(), stats)
	assert.NotZero(t, logs.FilterMessage("flow control stat reporter started").Len())
	assert.NotZero(t, logs.FilterMessage("flow control stat reporter stopped").Len())
	for _, entry := range logs.All() {
		assert.Equal(t, "flowcontrol", entry.ContextMap()["module"])
	}
}

func TestModule_DisabledAdmitsEverything(t *testing.T) {
	var g *gateway.GatewayLimiter
	app := fx.New(
		fx.NopLogger,
		fx.Supply(options(false, 0.001)),
		Module(),
		fx.Populate(&g),
	)
	require.NoError(t, app.Start(context.Background()))
	defer app.Stop(context.Background())

	assert.False(t, g.Enabled())
	assert.True(t, g.CheckOutgoing("192.108.0.1:30300", "group0", types.ModuleAMOP, 1<<30))
	_, ok := g.Stats().Snapshot()[stat.TotalKey]
	assert.False(t, ok)
}
