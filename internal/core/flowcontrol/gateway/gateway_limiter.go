// Package gateway 网关收发消息的准入检查
//
// 出站按 总带宽 → 连接带宽 → group 带宽 依次扣减，任一失败则回滚已扣减的额度；
// 入站按 group+module 和 endpoint+packetType 两个维度限制 QPS。
package gateway

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"go.uber.org/zap"

	fcconfig "github.com/weisyn/flowcontrol/internal/config/flowcontrol"
	"github.com/weisyn/flowcontrol/internal/core/flowcontrol/ratelimit"
	"github.com/weisyn/flowcontrol/internal/core/flowcontrol/router"
	"github.com/weisyn/flowcontrol/internal/core/flowcontrol/stat"
	"github.com/weisyn/flowcontrol/pkg/interfaces/flowcontrol"
)

// GatewayLimiter 网关限流入口
type GatewayLimiter struct {
	opts    *fcconfig.FlowControlOptions
	factory *ratelimit.Factory
	logger  *zap.Logger

	// group 限流器使用 Redis 共享配额
	distributed bool

	// 出站
	total  flowcontrol.Limiter
	conns  *router.Registry
	groups *router.GroupRouter

	// 入站
	moduleQPS  *router.Registry
	packetQPS  *router.Registry
	basicTypes map[uint16]struct{}

	stats    *stat.Collector
	reporter *stat.Reporter
}

// New 按配置创建网关限流器；reporter 可为 nil
func New(opts *fcconfig.FlowControlOptions, factory *ratelimit.Factory, stats *stat.Collector,
	reporter *stat.Reporter, logger *zap.Logger) (*GatewayLimiter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if stats == nil {
		stats = stat.NewCollector()
	}
	distributed := opts.Enable && opts.EnableDistributedRatelimit
	if distributed && !factory.HasRedis() {
		return nil, ratelimit.ErrRedisNotConfigured
	}

	g := &GatewayLimiter{
		opts:        opts,
		factory:     factory,
		distributed: distributed,
		logger:      logger,
		conns:       router.NewRegistry(),
		moduleQPS:   router.NewRegistry(),
		packetQPS:   router.NewRegistry(),
		basicTypes:  make(map[uint16]struct{}, len(opts.P2PBasicMsgTypes)),
		stats:       stats,
		reporter:    reporter,
	}
	g.groups = router.NewGroupRouter(
		router.WithModulesWithoutLimit(opts.ModulesWithoutBwLimit...),
		router.WithStatistics(stats),
	)
	for _, t := range opts.P2PBasicMsgTypes {
		g.basicTypes[t] = struct{}{}
	}

	if opts.TotalOutgoingBwLimit > 0 {
		total, err := factory.Build(opts.TotalOutgoingBwLimit)
		if err != nil {
			return nil, fmt.Errorf("build total outgoing limiter: %w", err)
		}
		g.total = total
	}
	for ip, limit := range opts.ConnOutgoingBwLimitByIP {
		l, err := factory.Build(limit)
		if err != nil {
			return nil, fmt.Errorf("build outgoing limiter of %s: %w", ip, err)
		}
		g.conns.Register(ip, l)
	}
	for group, limit := range opts.GroupOutgoingBwLimitByGroup {
		l, err := g.buildGroupLimiter(group, limit)
		if err != nil {
			return nil, fmt.Errorf("build outgoing limiter of group %s: %w", group, err)
		}
		g.groups.RegisterGroup(group, l)
	}

	logger.Info("gateway flow control initialized",
		zap.Bool("enable", opts.Enable),
		zap.String("limiter_type", opts.LimiterType),
		zap.Duration("time_window", opts.TimeWindow),
		zap.Int64("total_outgoing_bw_limit", opts.TotalOutgoingBwLimit),
		zap.Int64("conn_outgoing_bw_limit", opts.ConnOutgoingBwLimit),
		zap.Int64("group_outgoing_bw_limit", opts.GroupOutgoingBwLimit),
		zap.Int("conn_overrides", len(opts.ConnOutgoingBwLimitByIP)),
		zap.Int("group_overrides", len(opts.GroupOutgoingBwLimitByGroup)),
		zap.Bool("distributed", distributed),
		zap.Uint16s("modules_without_bw_limit", opts.ModulesWithoutBwLimit),
	)
	return g, nil
}

// Router group 路由表
func (g *GatewayLimiter) Router() *router.GroupRouter { return g.groups }

// Stats 流量统计
func (g *GatewayLimiter) Stats() *stat.Collector { return g.stats }

// Enabled 是否开启流量控制
func (g *GatewayLimiter) Enabled() bool { return g.opts.Enable }

// Start 启动统计上报
func (g *GatewayLimiter) Start(ctx context.Context) {
	if g.reporter != nil {
		g.reporter.Start(ctx)
	}
}

// Stop 停止统计上报并关闭 Redis 连接
func (g *GatewayLimiter) Stop() error {
	if g.reporter != nil {
		g.reporter.Stop()
	}
	return g.factory.Close()
}

// CheckOutgoing 出站消息的带宽检查，返回 false 表示应丢弃该消息
func (g *GatewayLimiter) CheckOutgoing(endpoint, group string, module uint16, msgLength int64) bool {
	if !g.opts.Enable {
		return true
	}

	if g.groups.IsModuleWithoutLimit(module) {
		g.stats.RecordBypass(stat.ModuleKey(group, module))
		g.recordOutgoing(endpoint, group, msgLength, true)
		return true
	}

	ok := g.acquireOutgoing(endpoint, group, module, msgLength)
	g.recordOutgoing(endpoint, group, msgLength, ok)
	return ok
}

// CheckOutgoingErr 与 CheckOutgoing 相同，拒绝时返回带原因的错误
func (g *GatewayLimiter) CheckOutgoingErr(endpoint, group string, module uint16, msgLength int64) error {
	if g.CheckOutgoing(endpoint, group, module, msgLength) {
		return nil
	}
	return fmt.Errorf("%w: endpoint=%s group=%s module=%d length=%d",
		ErrOutgoingBwOverflow, endpoint, group, module, msgLength)
}

func (g *GatewayLimiter) acquireOutgoing(endpoint, group string, module uint16, permits int64) bool {
	if g.total != nil && !g.total.TryAcquire(permits) {
		return false
	}

	conn := g.connLimiter(endpoint)
	if conn != nil && !conn.TryAcquire(permits) {
		g.rollback(permits, g.total)
		return false
	}

	if group != "" {
		g.ensureGroup(group)
		if !g.groups.TryAcquire(group, module, permits) {
			g.rollback(permits, g.total, conn)
			return false
		}
	}
	return true
}

func (g *GatewayLimiter) rollback(permits int64, limiters ...flowcontrol.Limiter) {
	for _, l := range limiters {
		if l != nil {
			l.Rollback(permits)
		}
	}
}

func (g *GatewayLimiter) recordOutgoing(endpoint, group string, msgLength int64, ok bool) {
	g.stats.RecordOutgoing(stat.TotalKey, msgLength, ok)
	g.stats.RecordOutgoing(stat.EndpointKey(endpoint), msgLength, ok)
	if group != "" {
		g.stats.RecordOutgoing(stat.GroupKey(group), msgLength, ok)
	}
}

// connLimiter 连接维度限流器：IP 单独配置优先，其次按默认值懒创建
func (g *GatewayLimiter) connLimiter(endpoint string) flowcontrol.Limiter {
	host := hostOf(endpoint)
	if l, ok := g.conns.Get(host); ok {
		return l
	}
	if g.opts.ConnOutgoingBwLimit <= 0 {
		return nil
	}
	return g.conns.GetOrCreate(host, func() flowcontrol.Limiter {
		return g.build(g.opts.ConnOutgoingBwLimit, "conn", host)
	})
}

// ensureGroup 未单独配置的 group 按默认值懒创建
func (g *GatewayLimiter) ensureGroup(group string) {
	if g.opts.GroupOutgoingBwLimit <= 0 {
		return
	}
	if _, ok := g.groups.Limiter(group); ok {
		return
	}
	l, err := g.buildGroupLimiter(group, g.opts.GroupOutgoingBwLimit)
	if err != nil {
		g.logger.Warn("build group limiter failed", zap.String("group", group), zap.Error(err))
		return
	}
	g.groups.RegisterGroup(group, l)
}

func (g *GatewayLimiter) buildGroupLimiter(group string, limit int64) (flowcontrol.Limiter, error) {
	if g.distributed {
		l, err := g.factory.BuildDistributed(group, limit)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
	return g.factory.Build(limit)
}

// build 创建本地限流器；工厂配置已校验，失败时不限流
func (g *GatewayLimiter) build(capacity int64, kind, key string) flowcontrol.Limiter {
	l, err := g.factory.Build(capacity)
	if err != nil {
		g.logger.Warn("build limiter failed", zap.String("kind", kind), zap.String("key", key), zap.Error(err))
		return nil
	}
	return l
}

// CheckIncoming 业务模块消息的入站 QPS 检查
func (g *GatewayLimiter) CheckIncoming(group string, module uint16, msgLength int64) error {
	statKey := stat.ModuleKey(group, module)
	if !g.opts.Enable {
		g.stats.RecordIncoming(statKey, msgLength)
		return nil
	}

	qps, ok := g.opts.ModuleQPSLimit[module]
	if !ok {
		qps = g.opts.ModuleMsgTypeQPSLimit
	}
	if qps <= 0 {
		g.stats.RecordIncoming(statKey, msgLength)
		return nil
	}

	key := group + "_" + strconv.Itoa(int(module))
	l := g.moduleQPS.GetOrCreate(key, func() flowcontrol.Limiter {
		return g.build(qps, "module_qps", key)
	})
	if l != nil && !l.TryAcquire(1) {
		g.stats.RecordIncomingRejected(statKey)
		return fmt.Errorf("%w: group=%s module=%d qps=%d", ErrIncomingQPSOverflow, group, module, qps)
	}
	g.stats.RecordIncoming(statKey, msgLength)
	return nil
}

// CheckIncomingBasic P2P 基础消息的入站 QPS 检查，按连接和消息类型计数
func (g *GatewayLimiter) CheckIncomingBasic(endpoint string, packetType uint16, msgLength int64) error {
	statKey := stat.PacketKey(endpoint, packetType)
	g.stats.RecordIncoming(stat.EndpointKey(endpoint), msgLength)

	if !g.opts.Enable || g.opts.P2PBasicMsgTypeQPSLimit <= 0 {
		g.stats.RecordIncoming(statKey, msgLength)
		return nil
	}
	if _, ok := g.basicTypes[packetType]; !ok {
		g.stats.RecordIncoming(statKey, msgLength)
		return nil
	}

	l := g.packetQPS.GetOrCreate(statKey, func() flowcontrol.Limiter {
		return g.build(g.opts.P2PBasicMsgTypeQPSLimit, "packet_qps", statKey)
	})
	if l != nil && !l.TryAcquire(1) {
		g.stats.RecordIncomingRejected(statKey)
		return fmt.Errorf("%w: endpoint=%s packet_type=%d qps=%d",
			ErrIncomingQPSOverflow, endpoint, packetType, g.opts.P2PBasicMsgTypeQPSLimit)
	}
	g.stats.RecordIncoming(statKey, msgLength)
	return nil
}

// OnDisconnect 连接断开后清理懒创建的连接限流器和连接统计
//
// 单独配置过的 IP 保留其限流器。
func (g *GatewayLimiter) OnDisconnect(endpoint string) {
	host := hostOf(endpoint)
	if _, configured := g.opts.ConnOutgoingBwLimitByIP[host]; !configured {
		g.conns.Remove(host)
	}
	prefix := stat.EndpointKey(endpoint) + "|"
	for _, key := range g.packetQPS.Keys() {
		if strings.HasPrefix(key, prefix) {
			g.packetQPS.Remove(key)
			g.stats.Remove(key)
		}
	}
	g.stats.Remove(stat.EndpointKey(endpoint))
}

// hostOf 取 endpoint 的 IP 部分，连接限流按 IP 计
func hostOf(endpoint string) string {
	host, _, err := net.SplitHostPort(endpoint)
	if err != nil {
		return endpoint
	}
	return host
}
