package kernel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gridcap/gridcap/internal/core"
	"github.com/gridcap/gridcap/internal/ring"
	"github.com/gridcap/gridcap/internal/rxq"
)

// DefaultLanes is the lane group size when the config leaves it unset.
const DefaultLanes = 8

// Params configures one receive invocation. The traffic type is chosen
// here, once per invocation, so no lane branches on it per packet.
type Params struct {
	Queue       rxq.Queue
	Ring        *ring.Ring
	IsTCP       bool
	Lanes       int
	MaxPackets  int
	PollTimeout time.Duration
	Abort       *core.AbortToken
}

// Result reports what one invocation did.
type Result struct {
	// Slot is the published slot, nil when the poll was empty.
	Slot *ring.Slot
	// Received is the number of packets parsed into the slot.
	Received int
	// Truncated counts frames dropped because the poll outran the slot
	// capacity.
	Truncated int
}

// Receive runs one kernel invocation: poll, claim, parse across lanes,
// reduce, publish. An empty poll claims nothing and leaves the ring
// untouched. Queue or frame resolution failures set the abort token and
// return without publishing; the claimed slot is then indeterminate and
// the caller must trust the token, not slot state.
func Receive(ctx context.Context, p Params) (Result, error) {
	if p.Abort.Aborted() {
		return Result{}, core.ErrSessionAborted
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	maxPackets := p.MaxPackets
	if maxPackets <= 0 || maxPackets > core.PacketsPerBlock {
		maxPackets = core.PacketsPerBlock
	}

	res, err := p.Queue.Poll(ctx, maxPackets, p.PollTimeout)
	if err != nil {
		if errors.Is(err, core.ErrQueueClosed) {
			return Result{}, err
		}
		p.Abort.Abort(err)
		return Result{}, err
	}
	if res.Count == 0 {
		return Result{}, nil
	}

	// Capacity policy: truncate, never reject. Excess frames of an
	// oversized poll are dropped and reported in the result.
	count := res.Count
	truncated := 0
	if count > maxPackets {
		truncated = count - maxPackets
		count = maxPackets
	}

	slot, err := claim(ctx, p)
	if err != nil {
		return Result{}, err
	}

	lanes := p.Lanes
	if lanes <= 0 {
		lanes = DefaultLanes
	}
	if lanes > count {
		lanes = count
	}

	// Phase 1: parallel header parse. Each lane owns the strided index set
	// {lane, lane+lanes, ...} and accumulates its partial aggregates.
	type partial struct {
		packets int32
		bytes   int64
	}
	partials := make([]partial, lanes)
	now := time.Now().UnixMilli()
	rec := slot.Record

	var g errgroup.Group
	for lane := 0; lane < lanes; lane++ {
		g.Go(func() error {
			var pkts int32
			var bytes int64
			for i := lane; i < count; i += lanes {
				frame, err := p.Queue.Frame(res.Offset, i)
				if err != nil {
					return err
				}
				size := parseFrame(frame, i, rec, p.IsTCP, now)
				pkts++
				if size > 0 {
					bytes += int64(size)
				}
			}
			partials[lane] = partial{packets: pkts, bytes: bytes}
			return nil
		})
	}
	// Phase barrier: every lane arrives before the reduction reads any
	// partial.
	if err := g.Wait(); err != nil {
		err = fmt.Errorf("%w: %v", core.ErrFrameResolve, err)
		p.Abort.Abort(err)
		return Result{}, err
	}

	// Phase 2: block reduction in lane-index order. Integer addition keeps
	// it deterministic regardless of lane completion order.
	var packetCount int32
	var payloadTotal int64
	for _, pt := range partials {
		packetCount += pt.packets
		payloadTotal += pt.bytes
	}

	// Phase 3: publication. The Ready store makes the record and both
	// aggregates visible together.
	slot.Publish(packetCount, payloadTotal)
	return Result{Slot: slot, Received: count, Truncated: truncated}, nil
}

// claim acquires a free slot, waiting out consumer backpressure. The ring
// is the only coupling between producer and consumer, so a saturated ring
// means the consumer is still holding every published batch.
func claim(ctx context.Context, p Params) (*ring.Slot, error) {
	for {
		if slot, ok := p.Ring.Claim(); ok {
			return slot, nil
		}
		if p.Abort.Aborted() {
			return nil, core.ErrSessionAborted
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", core.ErrRingExhausted, ctx.Err())
		case <-time.After(100 * time.Microsecond):
		}
	}
}
