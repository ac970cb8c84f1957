// Package clock provides clock interfaces for admission control.
package clock

import (
	"context"
	"time"
)

// Clock 提供统一的时间源接口（基础设施层接口）
//
// 设计目标：
// - 单调性：限流器只通过 Since 计算经过的时间，依赖 time.Time 携带的单调读数，
//   不受系统墙上时间调整影响
// - 可测试：支持可替换与Mock实现
// - 可取消：阻塞等待统一通过 Sleep 完成，可绑定调用方的 context
type Clock interface {
	// Now 获取当前时间（携带单调时钟读数）
	Now() time.Time

	// Since 计算从指定时间到现在的持续时间
	Since(t time.Time) time.Duration

	// Sleep 挂起当前调用方 d 时长；ctx 先结束时返回 ctx.Err()
	Sleep(ctx context.Context, d time.Duration) error
}
