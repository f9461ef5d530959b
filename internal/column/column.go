// Package column builds the tabular batch records handed to downstream
// consumers: fixed-width metadata columns plus the variable-length payload
// column gathered from a consumed ring slot.
package column

import (
	"github.com/gridcap/gridcap/internal/core"
	"github.com/gridcap/gridcap/internal/gather"
	"github.com/gridcap/gridcap/internal/ring"
)

// Batch is one poll's worth of packets in columnar form. All slices have
// Count entries except PayloadOffsets (Count+1) and Payload (packed bytes).
type Batch struct {
	Count int

	SrcMAC    []int64
	DstMAC    []int64
	SrcIP     []int64
	DstIP     []int64
	SrcPort   []int32
	DstPort   []int32
	TCPFlags  []int32 // meaningful for TCP sessions only
	EtherType []int32
	Protocol  []int32
	Timestamp []int64 // epoch milliseconds

	PayloadOffsets []int32
	Payload        []byte

	// Scores holds stage-attached per-packet score columns; ScoreLabels
	// preserves attachment order.
	Scores      map[string][]float64
	ScoreLabels []string
}

// AddScore attaches (or replaces) a named score column.
func (b *Batch) AddScore(label string, vals []float64) {
	if b.Scores == nil {
		b.Scores = make(map[string][]float64)
	}
	if _, exists := b.Scores[label]; !exists {
		b.ScoreLabels = append(b.ScoreLabels, label)
	}
	b.Scores[label] = vals
}

// FromSlot converts a Ready slot into an owned Batch. Only the first
// PacketCount record entries are read; the slot may be released as soon as
// this returns.
func FromSlot(slot *ring.Slot) *Batch {
	n := int(slot.PacketCount)
	if n > core.PacketsPerBlock {
		n = core.PacketsPerBlock
	}
	rec := slot.Record

	b := &Batch{
		Count:     n,
		SrcMAC:    make([]int64, n),
		DstMAC:    make([]int64, n),
		SrcIP:     make([]int64, n),
		DstIP:     make([]int64, n),
		SrcPort:   make([]int32, n),
		DstPort:   make([]int32, n),
		TCPFlags:  make([]int32, n),
		EtherType: make([]int32, n),
		Protocol:  make([]int32, n),
		Timestamp: make([]int64, n),
	}
	for i := 0; i < n; i++ {
		b.SrcMAC[i] = int64(rec.SrcMAC[i])
		b.DstMAC[i] = int64(rec.DstMAC[i])
		b.SrcIP[i] = int64(rec.SrcIP[i])
		b.DstIP[i] = int64(rec.DstIP[i])
		b.SrcPort[i] = int32(rec.SrcPort[i])
		b.DstPort[i] = int32(rec.DstPort[i])
		b.TCPFlags[i] = rec.TCPFlags[i]
		b.EtherType[i] = rec.EtherType[i]
		b.Protocol[i] = rec.NextProto[i]
		b.Timestamp[i] = rec.Timestamp[i]
	}

	b.PayloadOffsets, b.Payload = gather.Gather(n, rec.PayloadSizes[:n], rec.Payload)
	return b
}

// PayloadAt returns packet i's gathered payload span.
func (b *Batch) PayloadAt(i int) []byte {
	return b.Payload[b.PayloadOffsets[i]:b.PayloadOffsets[i+1]]
}

// PayloadBytes returns the packed payload volume of the batch.
func (b *Batch) PayloadBytes() int {
	if b.Count == 0 {
		return 0
	}
	return int(b.PayloadOffsets[b.Count])
}
