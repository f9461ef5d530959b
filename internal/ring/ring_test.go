package ring

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridcap/gridcap/internal/core"
)

func TestSlotLifecycle(t *testing.T) {
	r := New(2)

	slot, ok := r.Claim()
	require.True(t, ok)
	assert.Equal(t, StatusInProgress, slot.Status())

	slot.Record.PayloadSizes[0] = 10
	slot.Publish(1, 10)
	assert.Equal(t, StatusReady, slot.Status())
	assert.Equal(t, int32(1), slot.PacketCount)
	assert.Equal(t, int64(10), slot.PayloadTotal)

	got, ok := r.Next()
	require.True(t, ok)
	assert.Same(t, slot, got)

	got.Release()
	assert.Equal(t, StatusFree, got.Status())
	assert.Equal(t, int32(0), got.PacketCount)
	assert.Equal(t, int32(0), got.Record.PayloadSizes[0], "release must reset the record")
}

func TestClaimBackpressure(t *testing.T) {
	r := New(3)
	claimed := make([]*Slot, 0, 3)
	for i := 0; i < 3; i++ {
		s, ok := r.Claim()
		require.True(t, ok)
		claimed = append(claimed, s)
	}

	// Ring saturated: no free slot until one is consumed.
	_, ok := r.Claim()
	assert.False(t, ok)

	claimed[0].Publish(0, 0)
	next, ok := r.Next()
	require.True(t, ok)
	next.Release()

	_, ok = r.Claim()
	assert.True(t, ok)
}

func TestNextReturnsNothingWithoutPublish(t *testing.T) {
	r := New(2)
	_, ok := r.Next()
	assert.False(t, ok)

	r.Claim()
	_, ok = r.Next()
	assert.False(t, ok, "in-progress slot must not be consumable")
}

func TestSnapshot(t *testing.T) {
	r := New(4)
	a, _ := r.Claim()
	b, _ := r.Claim()
	b.Publish(1, 1)
	_ = a

	free, inProgress, ready := r.Snapshot()
	assert.Equal(t, 2, free)
	assert.Equal(t, 1, inProgress)
	assert.Equal(t, 1, ready)
}

// TestPublishVisibility hammers the producer/consumer handoff: a consumer
// observing Ready must observe the record writes and aggregates made
// before publication.
func TestPublishVisibility(t *testing.T) {
	r := New(4)
	const rounds = 2000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		consumed := 0
		for consumed < rounds {
			slot, ok := r.Next()
			if !ok {
				continue
			}
			n := int(slot.PacketCount)
			var sum int64
			for i := 0; i < n; i++ {
				sum += int64(slot.Record.PayloadSizes[i])
			}
			if sum != slot.PayloadTotal {
				t.Errorf("round %d: aggregates out of sync: %d != %d", consumed, sum, slot.PayloadTotal)
			}
			slot.Release()
			consumed++
		}
	}()

	for round := 0; round < rounds; round++ {
		var slot *Slot
		for {
			var ok bool
			if slot, ok = r.Claim(); ok {
				break
			}
		}
		n := 1 + round%8
		var total int64
		for i := 0; i < n; i++ {
			sz := int32(round + i)
			slot.Record.PayloadSizes[i] = sz
			total += int64(sz)
		}
		slot.Publish(int32(n), total)
	}
	wg.Wait()
}

func TestRecordCapacity(t *testing.T) {
	r := New(1)
	s, _ := r.Claim()
	require.Len(t, s.Record.Payload, core.PacketsPerBlock*core.MaxPktSize)
	assert.Equal(t, core.PacketsPerBlock, len(s.Record.PayloadSizes))
}
