package rxq

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridcap/gridcap/internal/core"
)

func TestMemoryQueuePollBatches(t *testing.T) {
	q := NewMemory()
	q.Push([]byte("frame-a"), []byte("frame-b"), []byte("frame-c"))

	res, err := q.Poll(context.Background(), 2, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, uint64(0), res.Offset)

	a, err := q.Frame(res.Offset, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("frame-a"), a)
	b, err := q.Frame(res.Offset, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("frame-b"), b)

	res2, err := q.Poll(context.Background(), 2, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, res2.Count)
	assert.Equal(t, uint64(2), res2.Offset)

	// The previous window is gone.
	_, err = q.Frame(res.Offset, 0)
	assert.ErrorIs(t, err, core.ErrFrameResolve)
}

func TestMemoryQueueEmptyPoll(t *testing.T) {
	q := NewMemory()
	res, err := q.Poll(context.Background(), 16, time.Millisecond)
	require.NoError(t, err)
	assert.Zero(t, res.Count)
}

func TestMemoryQueueFrameOutOfRange(t *testing.T) {
	q := NewMemory()
	q.Push([]byte("x"))
	res, err := q.Poll(context.Background(), 4, time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, 1, res.Count)

	_, err = q.Frame(res.Offset, 1)
	assert.ErrorIs(t, err, core.ErrFrameResolve)
	_, err = q.Frame(res.Offset, -1)
	assert.ErrorIs(t, err, core.ErrFrameResolve)
}

func TestMemoryQueueClosed(t *testing.T) {
	q := NewMemory()
	require.NoError(t, q.Close())
	_, err := q.Poll(context.Background(), 1, time.Millisecond)
	assert.ErrorIs(t, err, core.ErrQueueClosed)
}

func writeTestPcap(t *testing.T, frames ...[]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "frames.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	for _, frame := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     time.Now(),
			CaptureLength: len(frame),
			Length:        len(frame),
		}
		require.NoError(t, w.WritePacket(ci, frame))
	}
	return path
}

func TestFileQueueReplay(t *testing.T) {
	path := writeTestPcap(t, []byte("one"), []byte("two"))
	q, err := NewFile(&FileConfig{Path: path})
	require.NoError(t, err)
	defer q.Close()

	res, err := q.Poll(context.Background(), core.PacketsPerBlock, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)

	frame, err := q.Frame(res.Offset, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), frame)

	// Exhausted file reads as a closed queue.
	_, err = q.Poll(context.Background(), core.PacketsPerBlock, time.Millisecond)
	assert.ErrorIs(t, err, core.ErrQueueClosed)
}

func TestFileQueueMissingPath(t *testing.T) {
	_, err := NewFile(&FileConfig{})
	assert.ErrorIs(t, err, core.ErrConfigInvalid)

	_, err = NewFile(&FileConfig{Path: "/nonexistent/frames.pcap"})
	assert.Error(t, err)
}

func TestOpenUnknownQueue(t *testing.T) {
	_, err := Open("doesnotexist", nil)
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

func TestOpenRegisteredQueue(t *testing.T) {
	q, err := Open(MemoryName, nil)
	require.NoError(t, err)
	assert.NotNil(t, q)
}

func TestFrameArenaTruncatesToStride(t *testing.T) {
	a := newFrameArena(2, 4)
	a.begin(0)
	a.put([]byte("overlong"))
	frame, err := a.frame(0, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("over"), frame)
}

func TestRingGeometryAlignment(t *testing.T) {
	tests := []struct {
		name         string
		bufferSizeMB int
		snapLen      int
	}{
		{"default", 64, 4096},
		{"small buffer", 1, 256},
		{"large snaplen", 16, 65536},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frameSize, blockSize, numBlocks, err := ringGeometry(tt.bufferSizeMB, tt.snapLen, 4096)
			require.NoError(t, err)
			assert.Zero(t, frameSize%16, "frame size must align to TPACKET_ALIGNMENT")
			assert.Zero(t, blockSize%4096, "block size must be page aligned")
			assert.Zero(t, blockSize%frameSize, "block size must hold whole frames")
			assert.GreaterOrEqual(t, numBlocks, 1)
		})
	}
}

func TestRingGeometryRejectsBadInput(t *testing.T) {
	_, _, _, err := ringGeometry(0, 4096, 4096)
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
	_, _, _, err = ringGeometry(64, 0, 4096)
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
	_, _, _, err = ringGeometry(64, 4096, 10)
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}
