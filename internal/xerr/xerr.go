// Package xerr holds the sentinel errors shared across the module, in
// socket515-gaio/watcher.go's flat var-block convention.
package xerr

import "errors"

var (
	// ErrClosed is returned by Post and PostAfter once the owning proactor
	// has been shut down.
	ErrClosed = errors.New("aicp: proactor closed")
	// ErrUnsupported means the requested operation or handle kind is not
	// supported by the backend in use.
	ErrUnsupported = errors.New("aicp: unsupported operation")
	// ErrBadState means the AICO was not in a state that allows the
	// requested transition (e.g. posting to an AICO that is already
	// PENDING).
	ErrBadState = errors.New("aicp: aico not in a postable state")
	// ErrEmptyBuffer means a required buffer argument was nil or empty.
	ErrEmptyBuffer = errors.New("aicp: empty buffer")
	// ErrQueueFull means a priority queue rejected a post because it is at
	// capacity; the caller should retry.
	ErrQueueFull = errors.New("aicp: spak queue full")
	// ErrNotClosed is returned by AICOExit when the AICO failed to reach
	// CLOSED within the exit poll budget.
	ErrNotClosed = errors.New("aicp: aico did not reach closed state in time")
	// ErrTimeout is returned by WaitAll when the deadline elapses before
	// every AICO has drained.
	ErrTimeout = errors.New("aicp: wait deadline exceeded")
)
