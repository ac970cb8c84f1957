package router

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/flowcontrol/internal/core/flowcontrol/ratelimit"
	"github.com/weisyn/flowcontrol/pkg/interfaces/flowcontrol"
)

func TestRegistry_Register_ReturnsExisting(t *testing.T) {
	r := NewRegistry()
	first := ratelimit.NewTimeWindowLimiter(10, 0)
	second := ratelimit.NewTimeWindowLimiter(10, 0)

	inserted, l := r.Register("192.108.0.0", first)
	assert.True(t, inserted)
	assert.Same(t, first, l)

	inserted, l = r.Register("192.108.0.0", second)
	assert.False(t, inserted)
	assert.Same(t, first, l)

	inserted, l = r.Register("nil", nil)
	assert.False(t, inserted)
	assert.Nil(t, l)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_RemoveAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register("b", ratelimit.NewTimeWindowLimiter(10, 0))
	r.Register("a", ratelimit.NewTimeWindowLimiter(10, 0))

	assert.Equal(t, []string{"a", "b"}, r.Keys())
	assert.True(t, r.Remove("a"))
	assert.False(t, r.Remove("a"))

	_, ok := r.Get("a")
	assert.False(t, ok)
	_, ok = r.Get("b")
	assert.True(t, ok)
}

func TestRegistry_GetOrCreate_SingleWinner(t *testing.T) {
	r := NewRegistry()
	var built atomic.Int32
	build := func() flowcontrol.Limiter {
		built.Add(1)
		return ratelimit.NewTimeWindowLimiter(10, 0)
	}

	var wg sync.WaitGroup
	results := make([]flowcontrol.Limiter, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.GetOrCreate("conn", build)
		}(i)
	}
	wg.Wait()

	require.GreaterOrEqual(t, built.Load(), int32(1))
	for _, l := range results {
		assert.Same(t, results[0], l)
	}
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_GetOrCreate_NilBuild(t *testing.T) {
	r := NewRegistry()

	l := r.GetOrCreate("k", func() flowcontrol.Limiter { return nil })

	assert.Nil(t, l)
	assert.Equal(t, 0, r.Len())
}
