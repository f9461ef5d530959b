package stage

import (
	"context"
	"fmt"
	"regexp"

	"github.com/mitchellh/mapstructure"

	"github.com/gridcap/gridcap/internal/column"
	"github.com/gridcap/gridcap/internal/core"
)

const SerializeName = "serialize"

// BaseColumns lists every fixed batch column in output order.
var BaseColumns = []string{
	"timestamp",
	"src_mac", "dst_mac",
	"src_ip", "dst_ip",
	"src_port", "dst_port",
	"tcp_flags", "ether_type", "protocol",
	"payload",
}

// SerializeConfig selects output columns by regex. Include defaults to
// everything; exclude is applied after include.
type SerializeConfig struct {
	Include []string `mapstructure:"include"`
	Exclude []string `mapstructure:"exclude"`
}

// Serialize fixes the ordered column set a sink will encode.
type Serialize struct {
	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

func init() {
	Register(SerializeName, func(params map[string]any) (Stage, error) {
		var cfg SerializeConfig
		if err := mapstructure.Decode(params, &cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrConfigInvalid, err)
		}
		return NewSerialize(&cfg)
	})
}

// NewSerialize compiles the selection patterns.
func NewSerialize(cfg *SerializeConfig) (*Serialize, error) {
	s := &Serialize{}
	var err error
	if s.include, err = compileAll(cfg.Include); err != nil {
		return nil, err
	}
	if s.exclude, err = compileAll(cfg.Exclude); err != nil {
		return nil, err
	}
	return s, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: column pattern %q: %v", core.ErrConfigInvalid, p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func (s *Serialize) Name() string { return SerializeName }

func (s *Serialize) Apply(ctx context.Context, m *Message) (*Message, error) {
	b, err := m.Batch()
	if err != nil {
		return nil, err
	}
	m.selected = s.Select(append(append([]string{}, BaseColumns...), b.ScoreLabels...))
	return m, nil
}

// Select filters candidate column names through the include then exclude
// patterns, preserving order.
func (s *Serialize) Select(candidates []string) []string {
	selected := make([]string, 0, len(candidates))
	for _, name := range candidates {
		if len(s.include) > 0 && !anyMatch(s.include, name) {
			continue
		}
		if anyMatch(s.exclude, name) {
			continue
		}
		selected = append(selected, name)
	}
	return selected
}

func anyMatch(res []*regexp.Regexp, name string) bool {
	for _, re := range res {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// Rows materializes the selected columns of a batch as encodable records.
// MAC columns are rendered through the formatter; unselected columns are
// omitted entirely.
func Rows(b *column.Batch, selected []string) []map[string]any {
	if selected == nil {
		selected = append(append([]string{}, BaseColumns...), b.ScoreLabels...)
	}
	rows := make([]map[string]any, b.Count)
	for i := 0; i < b.Count; i++ {
		row := make(map[string]any, len(selected))
		for _, name := range selected {
			switch name {
			case "timestamp":
				row[name] = b.Timestamp[i]
			case "src_mac":
				row[name] = column.FormatMAC(uint64(b.SrcMAC[i]))
			case "dst_mac":
				row[name] = column.FormatMAC(uint64(b.DstMAC[i]))
			case "src_ip":
				row[name] = b.SrcIP[i]
			case "dst_ip":
				row[name] = b.DstIP[i]
			case "src_port":
				row[name] = b.SrcPort[i]
			case "dst_port":
				row[name] = b.DstPort[i]
			case "tcp_flags":
				row[name] = b.TCPFlags[i]
			case "ether_type":
				row[name] = b.EtherType[i]
			case "protocol":
				row[name] = b.Protocol[i]
			case "payload":
				row[name] = string(b.PayloadAt(i))
			default:
				if vals, ok := b.Scores[name]; ok {
					row[name] = vals[i]
				}
			}
		}
		rows[i] = row
	}
	return rows
}
