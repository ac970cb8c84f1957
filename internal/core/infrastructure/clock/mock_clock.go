package clock

import (
	"context"
	"sync"
	"time"

	infraClock "github.com/weisyn/flowcontrol/pkg/interfaces/infrastructure/clock"
)

// MockClock 测试用时钟，时间可控
//
// Sleep 不会真正挂起，而是把时间推进 d 并记录请求的时长，
// 便于断言阻塞式 Acquire 计算出的等待时间。
type MockClock struct {
	mu          sync.Mutex
	currentTime time.Time
	sleeps      []time.Duration
}

func NewMockClock(initial time.Time) *MockClock { return &MockClock{currentTime: initial} }

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentTime
}

func (c *MockClock) Since(t time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentTime.Sub(t)
}

func (c *MockClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	if d > 0 {
		c.currentTime = c.currentTime.Add(d)
	}
	return nil
}

// Advance 推进时间
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentTime = c.currentTime.Add(d)
}

// Sleeps 返回迄今为止所有 Sleep 请求的时长
func (c *MockClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}

// LastSleep 返回最近一次 Sleep 请求的时长，没有则返回 0
func (c *MockClock) LastSleep() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sleeps) == 0 {
		return 0
	}
	return c.sleeps[len(c.sleeps)-1]
}

var _ infraClock.Clock = (*MockClock)(nil)
