package stage

import (
	"context"
	"fmt"

	"github.com/gridcap/gridcap/internal/core"
)

// Stage transforms one message into the next. A stage that cannot handle
// the presented variant must fail rather than pass it through silently.
type Stage interface {
	Name() string
	Apply(ctx context.Context, m *Message) (*Message, error)
}

// Constructor builds a stage from its raw config params.
type Constructor func(params map[string]any) (Stage, error)

var registry = make(map[string]Constructor)

// Register adds a stage implementation under a name.
func Register(name string, fn Constructor) {
	registry[name] = fn
}

// Build constructs the named stage.
func Build(name string, params map[string]any) (Stage, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown stage %q", core.ErrConfigInvalid, name)
	}
	return fn(params)
}

// Chain applies stages in order, stopping at the first error.
func Chain(ctx context.Context, stages []Stage, m *Message) (*Message, error) {
	var err error
	for _, s := range stages {
		m, err = s.Apply(ctx, m)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", s.Name(), err)
		}
	}
	return m, nil
}
