// Package flowcontrol 定义网关流量控制（准入控制）的公共接口
//
// 📋 **流量控制接口 (Flow Control Interfaces)**
//
// 本文件定义网关限流子系统对外暴露的全部接口：
// - Limiter：单个限流实例（令牌桶 / 时间窗口 / 分布式）
// - Router：按 group / module 选择限流实例的路由表
// - StatisticsCollector：按 key 统计放行 / 拒绝流量
//
// 🎯 **约定**
// - permit 是消费单位（一条消息或 N 字节）
// - 请求的 permits 超过容量时永远失败、不阻塞、不修改状态
// - 容量 <= 0 表示限流关闭，所有请求直接放行
package flowcontrol

import "context"

// Limiter 限流器接口
type Limiter interface {
	// TryAcquire 非阻塞获取 permits，成功返回 true
	TryAcquire(permits int64) bool

	// Acquire 获取 permits；令牌桶实现会阻塞到额度补足，时间窗口实现不阻塞
	Acquire(permits int64) bool

	// AcquireContext 与 Acquire 相同，但等待可被 ctx 取消
	// 取消时已扣除的额度不会自动归还，调用方需自行 Rollback
	AcquireContext(ctx context.Context, permits int64) (bool, error)

	// AcquireWithoutWait 直接记账不等待，返回实际扣除的 permits
	AcquireWithoutWait(permits int64) int64

	// Rollback 归还已消费的额度，归还后不超过容量
	Rollback(permits int64)

	// Capacity 返回容量；<= 0 表示限流关闭
	Capacity() int64
}

// Router 按 group / module 路由限流请求
type Router interface {
	RegisterGroup(group string, limiter Limiter) bool
	RemoveGroup(group string) bool

	Acquire(group string, module uint16, permits int64) bool
	AcquireContext(ctx context.Context, group string, module uint16, permits int64) (bool, error)
	TryAcquire(group string, module uint16, permits int64) bool
	AcquireWithoutWait(group string, module uint16, permits int64) int64
}

// Counters 单一方向的流量计数
type Counters struct {
	TotalBytes     int64 `json:"total_bytes"`
	TotalCount     int64 `json:"total_count"`
	LastBytes      int64 `json:"last_bytes"`
	LastCount      int64 `json:"last_count"`
	TotalSucceeded int64 `json:"total_succeeded"`
	LastSucceeded  int64 `json:"last_succeeded"`
	TotalFailed    int64 `json:"total_failed"`
	LastFailed     int64 `json:"last_failed"`
}

// Stat 单个 key 的统计快照
type Stat struct {
	Incoming Counters `json:"incoming"`
	Outgoing Counters `json:"outgoing"`
	// Bypassed 未经限流直接放行的次数（白名单 module 或未配置策略的 group）
	Bypassed int64 `json:"bypassed"`
}

// StatisticsCollector 流量统计接口
type StatisticsCollector interface {
	RecordIncoming(key string, bytes int64)
	RecordOutgoing(key string, bytes int64, succeeded bool)
	RecordBypass(key string)
	Flush()
	Snapshot() map[string]Stat
}
