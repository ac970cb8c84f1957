// Package clock 提供 Clock 接口的系统实现与测试实现
package clock

import (
	"context"
	"time"

	infraClock "github.com/weisyn/flowcontrol/pkg/interfaces/infrastructure/clock"
)

// SystemClock 使用进程单调时钟
type SystemClock struct{}

func NewSystemClock() infraClock.Clock { return &SystemClock{} }

func (c *SystemClock) Now() time.Time                  { return time.Now() }
func (c *SystemClock) Since(t time.Time) time.Duration { return time.Since(t) }

// Sleep 基于 timer 的可取消睡眠
func (c *SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ infraClock.Clock = (*SystemClock)(nil)
