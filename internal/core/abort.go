package core

import (
	"sync"
	"sync/atomic"
)

// AbortToken signals a fatal capture failure to every invocation of a
// session. It is owned by the session controller and passed explicitly;
// the first error wins, later calls are no-ops.
//
// A slot left in progress by an aborting invocation is indeterminate:
// consumers must check Aborted before trusting slot state.
type AbortToken struct {
	aborted atomic.Bool
	once    sync.Once
	err     error
}

// Abort records the fatal error and flips the flag. Safe for concurrent use.
func (t *AbortToken) Abort(err error) {
	t.once.Do(func() {
		t.err = err
		t.aborted.Store(true)
	})
}

// Aborted reports whether the session has failed.
func (t *AbortToken) Aborted() bool {
	return t.aborted.Load()
}

// Err returns the recorded error, or nil while the session is healthy.
func (t *AbortToken) Err() error {
	if !t.aborted.Load() {
		return nil
	}
	return t.err
}
