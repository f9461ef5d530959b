package rxq

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/gridcap/gridcap/internal/core"
)

// Constructor builds a queue from its decoded config.
type Constructor func(params map[string]any) (Queue, error)

var registry = make(map[string]Constructor)

// Register adds a queue implementation under a name. Called from init() of
// each implementation file.
func Register(name string, fn Constructor) {
	registry[name] = fn
}

// Open builds the named queue implementation.
func Open(name string, params map[string]any) (Queue, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown queue type %q", core.ErrConfigInvalid, name)
	}
	return fn(params)
}

// decodeParams maps raw config params onto an implementation config struct.
func decodeParams(params map[string]any, out any) error {
	if err := mapstructure.Decode(params, out); err != nil {
		return fmt.Errorf("%w: %v", core.ErrConfigInvalid, err)
	}
	return nil
}
