package engine

import "errors"

var (
	// ErrInvalidConfig wraps every rejected render request. No session is
	// created when it is returned.
	ErrInvalidConfig = errors.New("invalid render configuration")
	ErrNotRunning    = errors.New("render engine not running")
	ErrNotRendering  = errors.New("no render in progress")
	ErrNoSession     = errors.New("no previous render to zoom into")

	errBadLine = errors.New("malformed line message")
)
