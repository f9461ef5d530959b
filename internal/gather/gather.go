// Package gather compacts fixed-stride per-packet payload spans into one
// densely packed buffer with an exclusive prefix-sum offset table — the
// canonical variable-length byte column.
package gather

import (
	"sync"

	"github.com/gridcap/gridcap/internal/core"
)

// parallelThreshold is the byte volume below which the copy runs on the
// calling goroutine.
const parallelThreshold = 1 << 16

// copyLanes is the lane group size for the parallel copy pass.
const copyLanes = 8

// Offsets computes the exclusive prefix sum of the first count payload
// sizes. The result has count+1 entries; offsets[count] is the packed
// buffer length. Non-positive sizes contribute zero, so a malformed packet
// occupies no output and its neighbors legitimately share an offset —
// including offset 0 when leading packets are empty.
func Offsets(count int, sizes []int32) []int32 {
	offsets := make([]int32, count+1)
	var total int32
	for i := 0; i < count; i++ {
		offsets[i] = total
		if sz := sizes[i]; sz > 0 {
			if sz > core.MaxPktSize {
				sz = core.MaxPktSize
			}
			total += sz
		}
	}
	offsets[count] = total
	return offsets
}

// Gather builds the payload column for one batch: offsets plus a packed
// byte buffer copied from the fixed-stride scratch arena. Packets with a
// non-positive recorded size are skipped outright, which keeps every write
// inside [offsets[i], offsets[i+1]) and makes the operation idempotent.
func Gather(count int, sizes []int32, scratch []byte) ([]int32, []byte) {
	if count < 0 {
		count = 0
	}
	if count > len(sizes) {
		count = len(sizes)
	}
	offsets := Offsets(count, sizes)
	data := make([]byte, offsets[count])
	if len(data) == 0 {
		return offsets, data
	}

	if len(data) < parallelThreshold {
		for i := 0; i < count; i++ {
			copyOne(i, sizes, offsets, scratch, data)
		}
		return offsets, data
	}

	// Lanes stride the packet index space; destination ranges are disjoint
	// by construction of the prefix sum, so no write overlaps another.
	var wg sync.WaitGroup
	for lane := 0; lane < copyLanes; lane++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := lane; i < count; i += copyLanes {
				copyOne(i, sizes, offsets, scratch, data)
			}
		}()
	}
	wg.Wait()
	return offsets, data
}

func copyOne(i int, sizes []int32, offsets []int32, scratch, data []byte) {
	sz := sizes[i]
	if sz <= 0 {
		return
	}
	if sz > core.MaxPktSize {
		sz = core.MaxPktSize
	}
	src := i * core.MaxPktSize
	copy(data[offsets[i]:offsets[i]+sz], scratch[src:src+int(sz)])
}
