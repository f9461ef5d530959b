package core

import "errors"

var (
	// Receive queue errors
	ErrReceiveFailed = errors.New("gridcap: receive queue poll failed")
	ErrFrameResolve  = errors.New("gridcap: frame buffer resolution failed")
	ErrQueueClosed   = errors.New("gridcap: receive queue closed")

	// Ring errors
	ErrRingExhausted = errors.New("gridcap: no free slot in ring")

	// Session errors
	ErrSessionAborted = errors.New("gridcap: capture session aborted")

	// Stage errors
	ErrUnsupportedMessage = errors.New("gridcap: unsupported message kind")

	// Configuration errors
	ErrConfigInvalid = errors.New("gridcap: invalid configuration")

	// Ingest errors
	ErrQueueFull = errors.New("gridcap: ingest queue full")
)
