// Package kernel implements the packet receive kernel: one invocation polls
// the receive queue for a batch, parses headers across a group of parallel
// lanes, reduces the batch aggregates, and publishes a ring slot.
package kernel

import (
	"encoding/binary"

	"github.com/gridcap/gridcap/internal/core"
)

// Header layout constants. Only IHL and the TCP data offset are honored
// beyond fixed offsets; options bodies are never inspected.
const (
	ethHeaderLen    = 14
	ipv4MinHdrLen   = 20
	udpHeaderLen    = 8
	tcpMinHeaderLen = 20
)

// parseFrame extracts Ethernet+IPv4+transport fields of one frame into
// record entry i and copies the payload span into the fixed-stride scratch
// region. It returns the recorded payload size.
//
// Malformed input is not an error: missing or truncated headers leave the
// remaining fields zero, and a non-positive computed payload length is
// recorded as-is with no bytes copied. The packet still counts as received.
func parseFrame(frame []byte, i int, rec *core.PacketRecord, isTCP bool, tsMillis int64) int32 {
	rec.Timestamp[i] = tsMillis

	if len(frame) < ethHeaderLen {
		return 0
	}
	rec.DstMAC[i] = packMAC(frame[0:6])
	rec.SrcMAC[i] = packMAC(frame[6:12])
	rec.EtherType[i] = int32(binary.BigEndian.Uint16(frame[12:14]))

	ip := frame[ethHeaderLen:]
	if len(ip) < ipv4MinHdrLen {
		return 0
	}
	ipHdrLen := int(ip[0]&0x0f) * 4
	totalLen := int(binary.BigEndian.Uint16(ip[2:4]))
	rec.NextProto[i] = int32(ip[9])
	rec.SrcIP[i] = binary.BigEndian.Uint32(ip[12:16])
	rec.DstIP[i] = binary.BigEndian.Uint32(ip[16:20])

	if ipHdrLen < ipv4MinHdrLen || len(ip) < ipHdrLen {
		return 0
	}
	transport := ip[ipHdrLen:]

	var transportLen int
	if isTCP {
		if len(transport) < tcpMinHeaderLen {
			return 0
		}
		transportLen = int(transport[12]>>4) * 4
		if transportLen < tcpMinHeaderLen || len(transport) < transportLen {
			return 0
		}
		rec.TCPFlags[i] = int32(transport[13])
	} else {
		if len(transport) < udpHeaderLen {
			return 0
		}
		transportLen = udpHeaderLen
	}
	rec.SrcPort[i] = binary.BigEndian.Uint16(transport[0:2])
	rec.DstPort[i] = binary.BigEndian.Uint16(transport[2:4])

	// Payload length comes from the IP total length, so link-layer padding
	// never inflates it. Short or inconsistent headers may drive it
	// negative; negative values are recorded as-is. Positive values are
	// capped at the scratch stride and at the bytes actually captured:
	// the recorded size must never admit arena bytes this frame did not
	// write, or the gather step would pack a previous batch's payload.
	payloadLen := totalLen - ipHdrLen - transportLen
	if payloadLen > core.MaxPktSize {
		payloadLen = core.MaxPktSize
	}
	if avail := len(transport) - transportLen; payloadLen > avail {
		payloadLen = avail
	}
	size := int32(payloadLen)
	rec.PayloadSizes[i] = size

	if payloadLen > 0 {
		copy(rec.Payload[i*core.MaxPktSize:], transport[transportLen:transportLen+payloadLen])
	}
	return size
}

// packMAC packs 6 address bytes into the low 48 bits of a uint64, first
// byte most significant: AA:BB:CC:DD:EE:FF → 0xAABBCCDDEEFF.
func packMAC(b []byte) uint64 {
	return uint64(b[0])<<40 | uint64(b[1])<<32 | uint64(b[2])<<24 |
		uint64(b[3])<<16 | uint64(b[4])<<8 | uint64(b[5])
}
