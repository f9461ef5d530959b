// Package rxq adapts a receive queue that delivers batches of raw Ethernet
// frames to the capture kernel.
//
// A queue hands out one batch per Poll as a (count, offset) pair; frames are
// resolved individually by offset. The frame region is borrowed read-only by
// the parsing kernel for the duration of one invocation and is overwritten
// by the next Poll.
package rxq

import (
	"context"
	"fmt"
	"time"

	"github.com/gridcap/gridcap/internal/core"
)

// PollResult describes one received batch.
type PollResult struct {
	// Count is the number of frames delivered, 0 on timeout.
	Count int
	// Offset is the queue-global sequence number of the first frame.
	Offset uint64
}

// Queue is the receive queue contract. Poll may block up to timeout waiting
// for at least one frame; a zero count is not an error. Driver failures are
// fatal to the capture attempt and must not be retried here.
type Queue interface {
	Poll(ctx context.Context, maxPackets int, timeout time.Duration) (PollResult, error)
	// Frame resolves frame i of the batch that started at offset. Only the
	// most recent batch is resolvable.
	Frame(offset uint64, i int) ([]byte, error)
	Close() error
}

// frameArena stores the frames of the current batch at a fixed stride. It
// stands in for the DMA buffer region: Poll fills it, the kernel borrows
// spans out of it, the next Poll invalidates them.
type frameArena struct {
	stride int
	buf    []byte
	lens   []int
	base   uint64 // sequence number of frame 0
	count  int
}

func newFrameArena(maxFrames, stride int) *frameArena {
	return &frameArena{
		stride: stride,
		buf:    make([]byte, maxFrames*stride),
		lens:   make([]int, maxFrames),
	}
}

// begin starts a new batch window at the given sequence number.
func (a *frameArena) begin(base uint64) {
	a.base = base
	a.count = 0
}

// put copies one frame into the next arena slot, truncating to stride.
func (a *frameArena) put(data []byte) {
	n := len(data)
	if n > a.stride {
		n = a.stride
	}
	copy(a.buf[a.count*a.stride:], data[:n])
	a.lens[a.count] = n
	a.count++
}

// frame resolves frame i of the window starting at offset.
func (a *frameArena) frame(offset uint64, i int) ([]byte, error) {
	if offset != a.base || i < 0 || i >= a.count {
		return nil, fmt.Errorf("%w: offset %d index %d (window base %d count %d)",
			core.ErrFrameResolve, offset, i, a.base, a.count)
	}
	base := i * a.stride
	return a.buf[base : base+a.lens[i]], nil
}
