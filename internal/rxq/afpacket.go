package rxq

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"

	"github.com/gridcap/gridcap/internal/core"
)

const AFPacketName = "afpacket"

// AFPacketConfig configures the AF_PACKET receive queue.
type AFPacketConfig struct {
	Device       string `mapstructure:"device"`
	SnapLen      int    `mapstructure:"snap_len"`
	BufferSizeMB int    `mapstructure:"buffer_size_mb"`
	FanoutID     uint16 `mapstructure:"fanout_id"`
	Traffic      string `mapstructure:"traffic"`
}

// afpacketQueue receives from a TPacket v3 ring bound to one NIC, with a
// BPF program that admits only the session's traffic type.
type afpacketQueue struct {
	handle *afpacket.TPacket
	arena  *frameArena
	seq    uint64
}

func init() {
	Register(AFPacketName, func(params map[string]any) (Queue, error) {
		var cfg AFPacketConfig
		if err := decodeParams(params, &cfg); err != nil {
			return nil, err
		}
		return NewAFPacket(&cfg)
	})
}

// NewAFPacket validates the NIC and opens the TPacket ring. Construction
// failures are fatal to the session.
func NewAFPacket(cfg *AFPacketConfig) (Queue, error) {
	if cfg.SnapLen <= 0 {
		cfg.SnapLen = core.MaxPktSize
	}
	if cfg.BufferSizeMB <= 0 {
		cfg.BufferSizeMB = 64
	}
	traffic, err := core.ParseTrafficType(cfg.Traffic)
	if err != nil {
		return nil, err
	}

	iface, err := net.InterfaceByName(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("%w: device %q: %v", core.ErrConfigInvalid, cfg.Device, err)
	}

	frameSize, blockSize, numBlocks, err := ringGeometry(cfg.BufferSizeMB, cfg.SnapLen, os.Getpagesize())
	if err != nil {
		return nil, err
	}

	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(iface.Name),
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.OptPollTimeout(10*time.Millisecond),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return nil, fmt.Errorf("open tpacket on %s: %w", iface.Name, err)
	}

	if cfg.FanoutID > 0 {
		if err := tp.SetFanout(afpacket.FanoutHashWithDefrag, cfg.FanoutID); err != nil {
			tp.Close()
			return nil, fmt.Errorf("set fanout: %w", err)
		}
	}

	if err := setTrafficFilter(tp, traffic, cfg.SnapLen); err != nil {
		tp.Close()
		return nil, err
	}

	return &afpacketQueue{
		handle: tp,
		arena:  newFrameArena(core.PacketsPerBlock, cfg.SnapLen),
	}, nil
}

// setTrafficFilter installs a BPF program admitting only IPv4 frames of the
// session's transport protocol, so the kernel can parse branch-free.
func setTrafficFilter(tp *afpacket.TPacket, traffic core.TrafficType, snapLen int) error {
	filter := "ip and " + traffic.String()
	pcapBPF, err := pcap.CompileBPFFilter(layers.LinkTypeEthernet, snapLen, filter)
	if err != nil {
		return fmt.Errorf("compile filter %q: %w", filter, err)
	}
	rawBPF := make([]bpf.RawInstruction, len(pcapBPF))
	for i, inst := range pcapBPF {
		rawBPF[i] = bpf.RawInstruction{Op: inst.Code, Jt: inst.Jt, Jf: inst.Jf, K: inst.K}
	}
	if err := tp.SetBPF(rawBPF); err != nil {
		return fmt.Errorf("set filter: %w", err)
	}
	return nil
}

func (q *afpacketQueue) Poll(ctx context.Context, maxPackets int, timeout time.Duration) (PollResult, error) {
	if maxPackets > core.PacketsPerBlock {
		maxPackets = core.PacketsPerBlock
	}
	q.arena.begin(q.seq)
	deadline := time.Now().Add(timeout)

	for q.arena.count < maxPackets {
		if ctx.Err() != nil {
			break
		}
		data, _, err := q.handle.ZeroCopyReadPacketData()
		if err != nil {
			if errors.Is(err, afpacket.ErrTimeout) {
				// Keep waiting only while empty-handed and within budget.
				if q.arena.count > 0 || !time.Now().Before(deadline) {
					break
				}
				continue
			}
			return PollResult{}, fmt.Errorf("%w: %v", core.ErrReceiveFailed, err)
		}
		q.arena.put(data)
	}

	res := PollResult{Count: q.arena.count, Offset: q.seq}
	q.seq += uint64(q.arena.count)
	return res, nil
}

func (q *afpacketQueue) Frame(offset uint64, i int) ([]byte, error) {
	return q.arena.frame(offset, i)
}

func (q *afpacketQueue) Close() error {
	q.handle.Close()
	return nil
}

// ringGeometry recomputes frame size, block size, and block count so the
// TPacket ring meets PACKET_MMAP alignment rules within the requested
// memory budget: frames align to TPACKET_ALIGNMENT, blocks are a multiple
// of both the page size and the frame size.
func ringGeometry(bufferSizeMB, snapLen, pageSize int) (frameSize, blockSize, numBlocks int, err error) {
	const tpacketAlignment = 16
	const tpacketHdrLen = 52

	if bufferSizeMB <= 0 || snapLen <= 0 {
		return 0, 0, 0, fmt.Errorf("%w: buffer %dMB snaplen %d", core.ErrConfigInvalid, bufferSizeMB, snapLen)
	}
	if pageSize <= 0 || pageSize%tpacketAlignment != 0 {
		return 0, 0, 0, fmt.Errorf("%w: page size %d", core.ErrConfigInvalid, pageSize)
	}

	targetBytes := bufferSizeMB * 1024 * 1024

	raw := tpacketHdrLen + snapLen
	frameSize = ((raw + tpacketAlignment - 1) / tpacketAlignment) * tpacketAlignment

	// The smallest block satisfying both constraints; blocks are a whole
	// multiple of it by construction.
	unit := lcm(pageSize, frameSize)
	const maxBlockSize = 4 * 1024 * 1024
	blockSize = unit
	if unit < maxBlockSize {
		blockSize = (maxBlockSize / unit) * unit
	}

	numBlocks = targetBytes / blockSize
	if numBlocks < 1 {
		numBlocks = 1
	}
	return frameSize, blockSize, numBlocks, nil
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return (a * b) / gcd(a, b)
}
