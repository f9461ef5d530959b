package sink

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/gridcap/gridcap/internal/column"
	"github.com/gridcap/gridcap/internal/stage"
)

const ConsoleName = "console"

// Console prints batch summaries, mainly for local runs and debugging.
type Console struct {
	w io.Writer
	// MaxRows caps the per-batch detail lines; 0 prints summaries only.
	maxRows int
}

// ConsoleConfig configures the console sink.
type ConsoleConfig struct {
	MaxRows int `mapstructure:"max_rows"`
}

func init() {
	Register(ConsoleName, func(params map[string]any) (Sink, error) {
		var cfg ConsoleConfig
		if err := decodeParams(params, &cfg); err != nil {
			return nil, err
		}
		return NewConsole(os.Stdout, cfg.MaxRows), nil
	})
}

// NewConsole builds a console sink writing to w.
func NewConsole(w io.Writer, maxRows int) *Console {
	return &Console{w: w, maxRows: maxRows}
}

func (c *Console) Name() string { return ConsoleName }

func (c *Console) Send(ctx context.Context, m *stage.Message) error {
	switch m.Kind() {
	case stage.KindControl:
		ctl, err := m.Control()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(c.w, "control %s: %v\n", ctl.Name, ctl.Fields)
		return err
	default:
		b, err := m.Batch()
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.w, "batch: packets=%d payload_bytes=%d\n", b.Count, b.PayloadBytes()); err != nil {
			return err
		}
		for i := 0; i < b.Count && i < c.maxRows; i++ {
			_, err := fmt.Fprintf(c.w, "  %s -> %s  %d -> %d  proto=%d  payload=%dB\n",
				column.FormatMAC(uint64(b.SrcMAC[i])), column.FormatMAC(uint64(b.DstMAC[i])),
				b.SrcPort[i], b.DstPort[i], b.Protocol[i], len(b.PayloadAt(i)))
			if err != nil {
				return err
			}
		}
		return nil
	}
}

func (c *Console) Close() error { return nil }
