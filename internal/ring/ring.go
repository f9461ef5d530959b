// Package ring implements the semaphore slot ring used to hand completed
// batches from the receive kernel to the downstream consumer.
//
// Each slot owns one packet record plus the two batch aggregates. A slot
// moves Free → InProgress → Ready → Free; the Ready store is the single
// publication point, so a consumer that observes Ready also observes every
// per-packet write and both aggregates made before it.
package ring

import (
	"sync/atomic"

	"github.com/gridcap/gridcap/internal/core"
)

// Status is the tri-state handoff flag of a slot.
type Status int32

const (
	StatusFree Status = iota
	StatusInProgress
	StatusReady
)

func (s Status) String() string {
	switch s {
	case StatusFree:
		return "free"
	case StatusInProgress:
		return "in-progress"
	case StatusReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Slot is one handoff unit. Between Claim and Publish exactly one producer
// writes it; after Publish it belongs to the consumer until Release.
type Slot struct {
	Record *core.PacketRecord

	// Aggregates, valid only while the slot is Ready.
	PacketCount  int32
	PayloadTotal int64

	status atomic.Int32
}

// Status returns the current handoff state.
func (s *Slot) Status() Status {
	return Status(s.status.Load())
}

// Publish finalizes the aggregates and marks the slot Ready. All record
// writes must happen before this call; the atomic store orders them for
// the consumer.
func (s *Slot) Publish(packetCount int32, payloadTotal int64) {
	s.PacketCount = packetCount
	s.PayloadTotal = payloadTotal
	s.status.Store(int32(StatusReady))
}

// Release resets the slot and returns it to the producer. Only the
// consumer of a Ready slot may call it.
func (s *Slot) Release() {
	s.Record.Reset(int(s.PacketCount))
	s.PacketCount = 0
	s.PayloadTotal = 0
	s.status.Store(int32(StatusFree))
}

// Ring is a fixed-size array of slots claimed round-robin. It is the unit
// of backpressure: when every slot is Ready or InProgress, Claim fails and
// the producer must wait for the consumer to release one.
type Ring struct {
	slots []*Slot
	head  int
}

// New builds a ring of n slots with preallocated records.
func New(n int) *Ring {
	r := &Ring{slots: make([]*Slot, n)}
	for i := range r.slots {
		r.slots[i] = &Slot{Record: core.NewPacketRecord()}
	}
	return r
}

// Len returns the ring capacity.
func (r *Ring) Len() int { return len(r.slots) }

// Claim acquires the next free slot for writing, or reports false when the
// ring is saturated. Single-producer: Claim is not safe for concurrent
// callers, matching the one-invocation-at-a-time receive loop.
func (r *Ring) Claim() (*Slot, bool) {
	for i := 0; i < len(r.slots); i++ {
		s := r.slots[r.head]
		r.head = (r.head + 1) % len(r.slots)
		if s.status.CompareAndSwap(int32(StatusFree), int32(StatusInProgress)) {
			return s, true
		}
	}
	return nil, false
}

// Next returns the oldest Ready slot, or false when none is published.
func (r *Ring) Next() (*Slot, bool) {
	for _, s := range r.slots {
		if Status(s.status.Load()) == StatusReady {
			return s, true
		}
	}
	return nil, false
}

// Snapshot counts slots per state, for metrics and tests.
func (r *Ring) Snapshot() (free, inProgress, ready int) {
	for _, s := range r.slots {
		switch s.Status() {
		case StatusFree:
			free++
		case StatusInProgress:
			inProgress++
		case StatusReady:
			ready++
		}
	}
	return
}
