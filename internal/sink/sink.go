// Package sink delivers serialized batches to downstream consumers.
package sink

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/gridcap/gridcap/internal/core"
	"github.com/gridcap/gridcap/internal/stage"
)

// Sink receives the messages that survive the stage chain.
type Sink interface {
	Name() string
	Send(ctx context.Context, m *stage.Message) error
	Close() error
}

// Constructor builds a sink from raw config params.
type Constructor func(params map[string]any) (Sink, error)

var registry = make(map[string]Constructor)

// Register adds a sink implementation under a name.
func Register(name string, fn Constructor) {
	registry[name] = fn
}

// Build constructs the named sink.
func Build(name string, params map[string]any) (Sink, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown sink %q", core.ErrConfigInvalid, name)
	}
	return fn(params)
}

func decodeParams(params map[string]any, out any) error {
	if err := mapstructure.Decode(params, out); err != nil {
		return fmt.Errorf("%w: %v", core.ErrConfigInvalid, err)
	}
	return nil
}
