package rxq

import (
	"context"
	"sync"
	"time"

	"github.com/gridcap/gridcap/internal/core"
)

const MemoryName = "memory"

// MemoryQueue serves preloaded frames. It backs tests and local benchmarks;
// Push may race with Poll, frames are delivered in FIFO order.
type MemoryQueue struct {
	mu      sync.Mutex
	pending [][]byte
	arena   *frameArena
	seq     uint64
	closed  bool

	// FailNext forces the next Poll to report a driver failure.
	FailNext bool
}

func init() {
	Register(MemoryName, func(params map[string]any) (Queue, error) {
		return NewMemory(), nil
	})
}

// NewMemory builds an empty in-memory queue.
func NewMemory() *MemoryQueue {
	return &MemoryQueue{arena: newFrameArena(core.PacketsPerBlock, core.MaxPktSize)}
}

// Push appends frames to the pending queue.
func (q *MemoryQueue) Push(frames ...[]byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, frames...)
}

func (q *MemoryQueue) Poll(ctx context.Context, maxPackets int, timeout time.Duration) (PollResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return PollResult{}, core.ErrQueueClosed
	}
	if q.FailNext {
		q.FailNext = false
		return PollResult{}, core.ErrReceiveFailed
	}
	if maxPackets > core.PacketsPerBlock {
		maxPackets = core.PacketsPerBlock
	}

	q.arena.begin(q.seq)
	for len(q.pending) > 0 && q.arena.count < maxPackets {
		q.arena.put(q.pending[0])
		q.pending = q.pending[1:]
	}

	res := PollResult{Count: q.arena.count, Offset: q.seq}
	q.seq += uint64(q.arena.count)
	return res, nil
}

func (q *MemoryQueue) Frame(offset uint64, i int) ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.arena.frame(offset, i)
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}
