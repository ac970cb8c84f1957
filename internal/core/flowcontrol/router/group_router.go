package router

import (
	"context"

	"github.com/weisyn/flowcontrol/internal/core/flowcontrol/stat"
	"github.com/weisyn/flowcontrol/pkg/interfaces/flowcontrol"
)

// GroupRouter 按 (group, module) 选择限流器
//
// 🎯 **路由规则**
//  1. module 在白名单中：直接放行
//  2. group 未注册限流器：直接放行（只有显式配置的 group 才会被限流）
//  3. 否则交给该 group 的限流器
//
// 注册后的限流器由 router 独占，不应在多个 group 之间共享。
// 白名单在构造后不可变；直接放行的请求只在统计中记一次 Bypassed。
type GroupRouter struct {
	groups              *Registry
	modulesWithoutLimit map[uint16]struct{}
	stats               flowcontrol.StatisticsCollector
}

// Option GroupRouter 构造选项
type Option func(*GroupRouter)

// WithModulesWithoutLimit 不限流的 module 白名单
func WithModulesWithoutLimit(modules ...uint16) Option {
	return func(r *GroupRouter) {
		for _, m := range modules {
			r.modulesWithoutLimit[m] = struct{}{}
		}
	}
}

// WithStatistics 记录直接放行的请求
func WithStatistics(c flowcontrol.StatisticsCollector) Option {
	return func(r *GroupRouter) { r.stats = c }
}

func NewGroupRouter(opts ...Option) *GroupRouter {
	r := &GroupRouter{
		groups:              NewRegistry(),
		modulesWithoutLimit: make(map[uint16]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterGroup 不存在时注册，返回是否插入
func (r *GroupRouter) RegisterGroup(group string, limiter flowcontrol.Limiter) bool {
	inserted, _ := r.groups.Register(group, limiter)
	return inserted
}

// RemoveGroup 移除 group 的限流器，返回是否存在
func (r *GroupRouter) RemoveGroup(group string) bool {
	return r.groups.Remove(group)
}

// Limiter 返回 group 的限流器
func (r *GroupRouter) Limiter(group string) (flowcontrol.Limiter, bool) {
	return r.groups.Get(group)
}

// Groups 已注册的 group
func (r *GroupRouter) Groups() []string { return r.groups.Keys() }

func (r *GroupRouter) IsModuleWithoutLimit(module uint16) bool {
	_, ok := r.modulesWithoutLimit[module]
	return ok
}

func (r *GroupRouter) Acquire(group string, module uint16, permits int64) bool {
	l, ok := r.route(group, module)
	if !ok {
		return true
	}
	return l.Acquire(permits)
}

// AcquireContext 可取消的阻塞获取，取消语义与限流器一致
func (r *GroupRouter) AcquireContext(ctx context.Context, group string, module uint16, permits int64) (bool, error) {
	l, ok := r.route(group, module)
	if !ok {
		return true, nil
	}
	return l.AcquireContext(ctx, permits)
}

func (r *GroupRouter) TryAcquire(group string, module uint16, permits int64) bool {
	l, ok := r.route(group, module)
	if !ok {
		return true
	}
	return l.TryAcquire(permits)
}

// AcquireWithoutWait 返回实际扣除的 permits，直接放行时为 0
func (r *GroupRouter) AcquireWithoutWait(group string, module uint16, permits int64) int64 {
	l, ok := r.route(group, module)
	if !ok {
		return 0
	}
	return l.AcquireWithoutWait(permits)
}

// Rollback 归还 group 限流器的额度；直接放行的请求无需归还
func (r *GroupRouter) Rollback(group string, module uint16, permits int64) {
	if r.IsModuleWithoutLimit(module) {
		return
	}
	if l, ok := r.groups.Get(group); ok {
		l.Rollback(permits)
	}
}

func (r *GroupRouter) route(group string, module uint16) (flowcontrol.Limiter, bool) {
	if r.IsModuleWithoutLimit(module) {
		r.recordBypass(stat.ModuleKey(group, module))
		return nil, false
	}
	l, ok := r.groups.Get(group)
	if !ok {
		r.recordBypass(stat.GroupKey(group))
		return nil, false
	}
	return l, true
}

func (r *GroupRouter) recordBypass(key string) {
	if r.stats != nil {
		r.stats.RecordBypass(key)
	}
}

var _ flowcontrol.Router = (*GroupRouter)(nil)
