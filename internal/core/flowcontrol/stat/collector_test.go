package stat

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_RecordOutgoing_CountsResults(t *testing.T) {
	// Arrange
	c := NewCollector()
	key := GroupKey("group0")

	// Act
	c.RecordOutgoing(key, 100, true)
	c.RecordOutgoing(key, 50, false)

	// Assert
	s := c.Snapshot()[key]
	assert.Equal(t, int64(150), s.Outgoing.TotalBytes)
	assert.Equal(t, int64(150), s.Outgoing.LastBytes)
	assert.Equal(t, int64(2), s.Outgoing.TotalCount)
	assert.Equal(t, int64(2), s.Outgoing.LastCount)
	assert.Equal(t, int64(1), s.Outgoing.TotalSucceeded)
	assert.Equal(t, int64(1), s.Outgoing.TotalFailed)
	assert.Equal(t, int64(0), s.Incoming.TotalCount)
}

func TestCollector_RecordIncoming(t *testing.T) {
	c := NewCollector()
	key := ModuleKey("group0", 1000)

	c.RecordIncoming(key, 10)
	c.RecordIncoming(key, 20)
	c.RecordIncomingRejected(key)

	s := c.Snapshot()[key]
	assert.Equal(t, int64(30), s.Incoming.TotalBytes)
	assert.Equal(t, int64(2), s.Incoming.TotalCount)
	assert.Equal(t, int64(2), s.Incoming.TotalSucceeded)
	assert.Equal(t, int64(1), s.Incoming.LastFailed)
}

func TestCollector_Flush_ResetsLastKeepsTotal(t *testing.T) {
	c := NewCollector()
	c.RecordOutgoing("k", 100, false)
	c.RecordIncoming("k", 7)
	c.RecordBypass("k")

	c.Flush()

	s := c.Snapshot()["k"]
	assert.Equal(t, int64(0), s.Outgoing.LastBytes)
	assert.Equal(t, int64(0), s.Outgoing.LastCount)
	assert.Equal(t, int64(0), s.Outgoing.LastFailed)
	assert.Equal(t, int64(0), s.Incoming.LastBytes)
	assert.Equal(t, int64(100), s.Outgoing.TotalBytes)
	assert.Equal(t, int64(1), s.Outgoing.TotalFailed)
	assert.Equal(t, int64(7), s.Incoming.TotalBytes)
	assert.Equal(t, int64(1), s.Bypassed)
}

func TestCollector_SnapshotAndFlush_ReturnsDeltaOnce(t *testing.T) {
	// Arrange
	c := NewCollector()
	c.RecordOutgoing("k", 100, false)
	c.RecordIncoming("k", 7)

	// Act
	first := c.SnapshotAndFlush()["k"]
	c.RecordOutgoing("k", 5, true)
	second := c.SnapshotAndFlush()["k"]

	// Assert
	assert.Equal(t, int64(100), first.Outgoing.LastBytes)
	assert.Equal(t, int64(1), first.Outgoing.LastFailed)
	assert.Equal(t, int64(7), first.Incoming.LastBytes)
	assert.Equal(t, int64(5), second.Outgoing.LastBytes)
	assert.Equal(t, int64(1), second.Outgoing.LastSucceeded)
	assert.Equal(t, int64(0), second.Incoming.LastBytes)
	assert.Equal(t, int64(105), second.Outgoing.TotalBytes)
	assert.Equal(t, int64(0), c.Snapshot()["k"].Outgoing.LastBytes)
}

func TestCollector_Snapshot_IsCopy(t *testing.T) {
	c := NewCollector()
	c.RecordOutgoing("k", 1, true)

	snap := c.Snapshot()
	c.RecordOutgoing("k", 1, true)

	assert.Equal(t, int64(1), snap["k"].Outgoing.TotalCount)
	assert.Equal(t, int64(2), c.Snapshot()["k"].Outgoing.TotalCount)
}

func TestCollector_Bypass_OnlyTouchesBypassed(t *testing.T) {
	c := NewCollector()

	c.RecordBypass(GroupKey("unconfigured"))

	s := c.Snapshot()[GroupKey("unconfigured")]
	assert.Equal(t, int64(1), s.Bypassed)
	assert.Zero(t, s.Outgoing.TotalCount)
	assert.Zero(t, s.Incoming.TotalCount)
}

func TestCollector_Remove(t *testing.T) {
	c := NewCollector()
	c.RecordIncoming(EndpointKey("127.0.0.1:30300"), 1)
	require.Equal(t, 1, c.Len())

	assert.True(t, c.Remove(EndpointKey("127.0.0.1:30300")))
	assert.False(t, c.Remove(EndpointKey("127.0.0.1:30300")))
	assert.Equal(t, 0, c.Len())
}

func TestCollector_ConcurrentRecords(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("group:g%d", i%4)
			for j := 0; j < 1000; j++ {
				c.RecordOutgoing(key, 2, j%2 == 0)
			}
		}(i)
	}
	wg.Wait()

	snap := c.Snapshot()
	require.Len(t, snap, 4)
	for _, s := range snap {
		assert.Equal(t, int64(4000), s.Outgoing.TotalCount)
		assert.Equal(t, int64(8000), s.Outgoing.TotalBytes)
		assert.Equal(t, int64(2000), s.Outgoing.TotalSucceeded)
		assert.Equal(t, int64(2000), s.Outgoing.TotalFailed)
	}
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "group:group0", GroupKey("group0"))
	assert.Equal(t, "group:group0|module:1000", ModuleKey("group0", 1000))
	assert.Equal(t, "endpoint:127.0.0.1:30300", EndpointKey("127.0.0.1:30300"))
	assert.Equal(t, "endpoint:127.0.0.1:30300|packet:3", PacketKey("127.0.0.1:30300", 3))
}
