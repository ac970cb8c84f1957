// Package stat 统计网关按 key（连接 / group / module）的流量，并周期性输出
//
// 📋 **统计模型**
// 每个 key 维护入站、出站两组计数：
// - Total*：进程生命周期内累计
// - Last*：自上次 Flush 以来的增量
// 另外记录未经限流直接放行的次数（Bypassed）。
//
// key 在首次出现时惰性创建，不会被自动清理；
// 连接断开等场景由调用方通过 Remove 清理。
package stat

import (
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/weisyn/flowcontrol/pkg/interfaces/flowcontrol"
)

// shardCount 分片数，key 基数有界（连接、group、module），32 个分片足以避免热点
const shardCount = 32

type counters struct {
	totalBytes     atomic.Int64
	totalCount     atomic.Int64
	lastBytes      atomic.Int64
	lastCount      atomic.Int64
	totalSucceeded atomic.Int64
	lastSucceeded  atomic.Int64
	totalFailed    atomic.Int64
	lastFailed     atomic.Int64
}

func (c *counters) addTraffic(bytes int64) {
	c.totalBytes.Add(bytes)
	c.lastBytes.Add(bytes)
	c.totalCount.Add(1)
	c.lastCount.Add(1)
}

func (c *counters) addResult(succeeded bool) {
	if succeeded {
		c.totalSucceeded.Add(1)
		c.lastSucceeded.Add(1)
		return
	}
	c.totalFailed.Add(1)
	c.lastFailed.Add(1)
}

func (c *counters) flush() {
	c.lastBytes.Store(0)
	c.lastCount.Store(0)
	c.lastSucceeded.Store(0)
	c.lastFailed.Store(0)
}

// drain 返回快照并原子地取走 Last* 计数，期间的并发写入留到下一轮
func (c *counters) drain() flowcontrol.Counters {
	return flowcontrol.Counters{
		TotalBytes:     c.totalBytes.Load(),
		TotalCount:     c.totalCount.Load(),
		LastBytes:      c.lastBytes.Swap(0),
		LastCount:      c.lastCount.Swap(0),
		TotalSucceeded: c.totalSucceeded.Load(),
		LastSucceeded:  c.lastSucceeded.Swap(0),
		TotalFailed:    c.totalFailed.Load(),
		LastFailed:     c.lastFailed.Swap(0),
	}
}

func (c *counters) snapshot() flowcontrol.Counters {
	return flowcontrol.Counters{
		TotalBytes:     c.totalBytes.Load(),
		TotalCount:     c.totalCount.Load(),
		LastBytes:      c.lastBytes.Load(),
		LastCount:      c.lastCount.Load(),
		TotalSucceeded: c.totalSucceeded.Load(),
		LastSucceeded:  c.lastSucceeded.Load(),
		TotalFailed:    c.totalFailed.Load(),
		LastFailed:     c.lastFailed.Load(),
	}
}

type entry struct {
	incoming counters
	outgoing counters
	bypassed atomic.Int64
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// Collector 分片的流量统计
//
// 同一 key 的计数使用原子操作，不同 key 只在落入同一分片且需要创建新条目时才会竞争写锁。
type Collector struct {
	shards [shardCount]*shard
}

func NewCollector() *Collector {
	c := &Collector{}
	for i := range c.shards {
		c.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	return c
}

func (c *Collector) shardFor(key string) *shard {
	return c.shards[xxhash.Sum64String(key)%shardCount]
}

func (c *Collector) entry(key string) *entry {
	s := c.shardFor(key)
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[key]; ok {
		return e
	}
	e = &entry{}
	s.entries[key] = e
	return e
}

// RecordIncoming 记录一次已接收的入站流量
func (c *Collector) RecordIncoming(key string, bytes int64) {
	e := c.entry(key)
	e.incoming.addTraffic(bytes)
	e.incoming.addResult(true)
}

// RecordIncomingRejected 记录一次被拒绝的入站请求
func (c *Collector) RecordIncomingRejected(key string) {
	c.entry(key).incoming.addResult(false)
}

// RecordOutgoing 记录一次出站流量及其准入结果
func (c *Collector) RecordOutgoing(key string, bytes int64, succeeded bool) {
	e := c.entry(key)
	e.outgoing.addTraffic(bytes)
	e.outgoing.addResult(succeeded)
}

// RecordBypass 记录一次未经限流直接放行
func (c *Collector) RecordBypass(key string) {
	c.entry(key).bypassed.Add(1)
}

// Flush 清零所有 key 的 Last* 计数，保留 Total*
func (c *Collector) Flush() {
	for _, s := range c.shards {
		s.mu.RLock()
		for _, e := range s.entries {
			e.incoming.flush()
			e.outgoing.flush()
		}
		s.mu.RUnlock()
	}
}

// Snapshot 返回所有 key 的只读拷贝
func (c *Collector) Snapshot() map[string]flowcontrol.Stat {
	out := make(map[string]flowcontrol.Stat)
	for _, s := range c.shards {
		s.mu.RLock()
		for k, e := range s.entries {
			out[k] = flowcontrol.Stat{
				Incoming: e.incoming.snapshot(),
				Outgoing: e.outgoing.snapshot(),
				Bypassed: e.bypassed.Load(),
			}
		}
		s.mu.RUnlock()
	}
	return out
}

// SnapshotAndFlush 返回所有 key 的拷贝，并在同一步中清零 Last* 计数
//
// 与先 Snapshot 再 Flush 不同，两步之间到达的记录不会丢失，而是计入下一轮。
func (c *Collector) SnapshotAndFlush() map[string]flowcontrol.Stat {
	out := make(map[string]flowcontrol.Stat)
	for _, s := range c.shards {
		s.mu.RLock()
		for k, e := range s.entries {
			out[k] = flowcontrol.Stat{
				Incoming: e.incoming.drain(),
				Outgoing: e.outgoing.drain(),
				Bypassed: e.bypassed.Load(),
			}
		}
		s.mu.RUnlock()
	}
	return out
}

// Remove 删除 key，返回是否存在
func (c *Collector) Remove(key string) bool {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; !ok {
		return false
	}
	delete(s.entries, key)
	return true
}

// Len 当前 key 数量
func (c *Collector) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

var _ flowcontrol.StatisticsCollector = (*Collector)(nil)
