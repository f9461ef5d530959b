// Package stage implements the message transforms applied between the
// capture engine and the sinks.
//
// Messages are a closed variant set resolved once at the boundary; stages
// dispatch on the kind statically instead of reflecting on type identity.
// Presenting the wrong variant to a stage is a fatal, descriptive error.
package stage

import (
	"fmt"

	"github.com/gridcap/gridcap/internal/column"
	"github.com/gridcap/gridcap/internal/core"
)

// Kind discriminates the message variants.
type Kind int

const (
	// KindColumn carries one columnar packet batch.
	KindColumn Kind = iota
	// KindControl carries an out-of-band record, e.g. from the HTTP
	// ingest source.
	KindControl
)

func (k Kind) String() string {
	switch k {
	case KindColumn:
		return "column"
	case KindControl:
		return "control"
	default:
		return "unknown"
	}
}

// Control is an out-of-band record.
type Control struct {
	Name   string
	Fields map[string]any
}

// Message is the unit of flow through the stage chain.
type Message struct {
	kind    Kind
	batch   *column.Batch
	control *Control

	// selected is the ordered column subset chosen by a serialize stage;
	// nil means every column.
	selected []string
}

// NewColumnMessage wraps a batch.
func NewColumnMessage(b *column.Batch) *Message {
	return &Message{kind: KindColumn, batch: b}
}

// NewControlMessage wraps a control record.
func NewControlMessage(c *Control) *Message {
	return &Message{kind: KindControl, control: c}
}

// Kind returns the resolved variant.
func (m *Message) Kind() Kind { return m.kind }

// Batch returns the carried batch, or a descriptive error naming the
// actual variant when the message is not a column message.
func (m *Message) Batch() (*column.Batch, error) {
	if m.kind != KindColumn {
		return nil, fmt.Errorf("%w: got %s, want column", core.ErrUnsupportedMessage, m.kind)
	}
	return m.batch, nil
}

// Control returns the carried control record, or a descriptive error.
func (m *Message) Control() (*Control, error) {
	if m.kind != KindControl {
		return nil, fmt.Errorf("%w: got %s, want control", core.ErrUnsupportedMessage, m.kind)
	}
	return m.control, nil
}

// Selected returns the serialize-stage column selection, nil for all.
func (m *Message) Selected() []string { return m.selected }
