// Package router 提供按 key 管理限流器的注册表与按 group / module 路由的 GroupRouter
package router

import (
	"sort"
	"sync"

	"github.com/weisyn/flowcontrol/pkg/interfaces/flowcontrol"
)

// Registry 按 key 保存限流器
//
// 读多写少：热路径只做 Get，注册与移除仅在配置变更或连接建立/断开时发生。
// 注册不会覆盖已存在的限流器。
type Registry struct {
	mu       sync.RWMutex
	limiters map[string]flowcontrol.Limiter
}

func NewRegistry() *Registry {
	return &Registry{limiters: make(map[string]flowcontrol.Limiter)}
}

// Register 不存在时插入
//
// 返回是否插入，以及插入后该 key 对应的限流器（已存在时为原有实例）。
// nil 限流器不会被注册。
func (r *Registry) Register(key string, limiter flowcontrol.Limiter) (bool, flowcontrol.Limiter) {
	if limiter == nil {
		return false, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.limiters[key]; ok {
		return false, existing
	}
	r.limiters[key] = limiter
	return true, limiter
}

// Remove 移除 key，返回是否存在
func (r *Registry) Remove(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.limiters[key]; !ok {
		return false
	}
	delete(r.limiters, key)
	return true
}

func (r *Registry) Get(key string) (flowcontrol.Limiter, bool) {
	r.mu.RLock()
	l, ok := r.limiters[key]
	r.mu.RUnlock()
	return l, ok
}

// GetOrCreate 获取 key 对应的限流器，不存在时用 build 创建
//
// build 可能在并发下被调用多次，但只有一个结果会被保存并返回。
// build 返回 nil 时不注册并返回 nil。
func (r *Registry) GetOrCreate(key string, build func() flowcontrol.Limiter) flowcontrol.Limiter {
	if l, ok := r.Get(key); ok {
		return l
	}
	created := build()
	if created == nil {
		return nil
	}
	_, l := r.Register(key, created)
	return l
}

// Keys 返回排好序的全部 key
func (r *Registry) Keys() []string {
	r.mu.RLock()
	keys := make([]string, 0, len(r.limiters))
	for k := range r.limiters {
		keys = append(keys, k)
	}
	r.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.limiters)
}
