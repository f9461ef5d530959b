package rxq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket/pcapgo"

	"github.com/gridcap/gridcap/internal/core"
)

const FileName = "file"

// FileConfig configures pcap file replay.
type FileConfig struct {
	Path    string `mapstructure:"path"`
	SnapLen int    `mapstructure:"snap_len"`
}

// fileQueue replays a capture file batch by batch. Exhaustion surfaces as
// ErrQueueClosed, which the session treats as a clean end of capture.
type fileQueue struct {
	f      *os.File
	reader *pcapgo.Reader
	arena  *frameArena
	seq    uint64
	done   bool
}

func init() {
	Register(FileName, func(params map[string]any) (Queue, error) {
		var cfg FileConfig
		if err := decodeParams(params, &cfg); err != nil {
			return nil, err
		}
		return NewFile(&cfg)
	})
}

// NewFile opens a pcap file as a receive queue.
func NewFile(cfg *FileConfig) (Queue, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: file queue requires path", core.ErrConfigInvalid)
	}
	if cfg.SnapLen <= 0 {
		cfg.SnapLen = core.MaxPktSize
	}
	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open capture file: %w", err)
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read capture file %s: %w", cfg.Path, err)
	}
	return &fileQueue{
		f:      f,
		reader: r,
		arena:  newFrameArena(core.PacketsPerBlock, cfg.SnapLen),
	}, nil
}

func (q *fileQueue) Poll(ctx context.Context, maxPackets int, timeout time.Duration) (PollResult, error) {
	if q.done {
		return PollResult{}, core.ErrQueueClosed
	}
	if maxPackets > core.PacketsPerBlock {
		maxPackets = core.PacketsPerBlock
	}
	q.arena.begin(q.seq)

	for q.arena.count < maxPackets {
		if ctx.Err() != nil {
			break
		}
		data, _, err := q.reader.ReadPacketData()
		if err != nil {
			if errors.Is(err, io.EOF) {
				q.done = true
				break
			}
			return PollResult{}, fmt.Errorf("%w: %v", core.ErrReceiveFailed, err)
		}
		q.arena.put(data)
	}

	if q.done && q.arena.count == 0 {
		return PollResult{}, core.ErrQueueClosed
	}
	res := PollResult{Count: q.arena.count, Offset: q.seq}
	q.seq += uint64(q.arena.count)
	return res, nil
}

func (q *fileQueue) Frame(offset uint64, i int) ([]byte, error) {
	return q.arena.frame(offset, i)
}

func (q *fileQueue) Close() error {
	return q.f.Close()
}
