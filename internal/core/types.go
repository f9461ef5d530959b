// Package core defines the data structures shared by the capture engine.
package core

import "fmt"

// Kernel geometry. One invocation processes at most one block of packets;
// lanes cooperate on a block with PacketsPerLane packets of work each.
const (
	PacketsPerLane  = 4
	LanesPerBlock   = 512
	PacketsPerBlock = PacketsPerLane * LanesPerBlock

	// MaxPktSize is the fixed stride of the per-packet payload scratch
	// region. Payload bytes beyond it are never copied.
	MaxPktSize = 4096
)

// TrafficType selects which transport protocol a capture session parses.
// It is fixed at construction; the receive kernel never branches on it
// per packet.
type TrafficType uint8

const (
	TrafficTCP TrafficType = iota
	TrafficUDP
)

// ParseTrafficType parses the config spelling of a traffic type.
func ParseTrafficType(s string) (TrafficType, error) {
	switch s {
	case "tcp":
		return TrafficTCP, nil
	case "udp":
		return TrafficUDP, nil
	default:
		return 0, fmt.Errorf("%w: traffic type %q (must be tcp or udp)", ErrConfigInvalid, s)
	}
}

func (t TrafficType) String() string {
	if t == TrafficUDP {
		return "udp"
	}
	return "tcp"
}

// PacketRecord holds one batch worth of extracted packet metadata in
// structure-of-arrays form, sized to PacketsPerBlock. Entries at index
// >= the published packet count are stale and must be ignored.
type PacketRecord struct {
	PayloadSizes [PacketsPerBlock]int32
	SrcMAC       [PacketsPerBlock]uint64
	DstMAC       [PacketsPerBlock]uint64
	SrcIP        [PacketsPerBlock]uint32
	DstIP        [PacketsPerBlock]uint32
	SrcPort      [PacketsPerBlock]uint16
	DstPort      [PacketsPerBlock]uint16
	TCPFlags     [PacketsPerBlock]int32
	EtherType    [PacketsPerBlock]int32
	NextProto    [PacketsPerBlock]int32
	Timestamp    [PacketsPerBlock]int64 // epoch milliseconds

	// Payload is the fixed-stride scratch arena: packet i's bytes live at
	// [i*MaxPktSize, i*MaxPktSize+PayloadSizes[i]).
	Payload []byte
}

// NewPacketRecord allocates a record with its payload arena.
func NewPacketRecord() *PacketRecord {
	return &PacketRecord{Payload: make([]byte, PacketsPerBlock*MaxPktSize)}
}

// PayloadAt returns the scratch span for packet i. Non-positive recorded
// sizes yield an empty span.
func (r *PacketRecord) PayloadAt(i int) []byte {
	sz := r.PayloadSizes[i]
	if sz <= 0 {
		return nil
	}
	base := i * MaxPktSize
	return r.Payload[base : base+int(sz)]
}

// Reset zeroes the metadata of the first n entries so a recycled slot
// never leaks a previous batch. The payload arena is left as is; it is
// only read up to the recorded size.
func (r *PacketRecord) Reset(n int) {
	if n > PacketsPerBlock {
		n = PacketsPerBlock
	}
	for i := 0; i < n; i++ {
		r.PayloadSizes[i] = 0
		r.SrcMAC[i] = 0
		r.DstMAC[i] = 0
		r.SrcIP[i] = 0
		r.DstIP[i] = 0
		r.SrcPort[i] = 0
		r.DstPort[i] = 0
		r.TCPFlags[i] = 0
		r.EtherType[i] = 0
		r.NextProto[i] = 0
		r.Timestamp[i] = 0
	}
}
