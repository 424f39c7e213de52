// Package xlog wires the small, fixed set of log sites the proactor needs
// onto github.com/rs/zerolog. It is deliberately thin: the engine never
// logs on the completion hot path, only around worker lifecycle, backend
// selection, and recovered callback failures.
package xlog

import (
	"io"
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
)

var global atomic.Pointer[zerolog.Logger]

func init() {
	l := zerolog.New(io.Discard).With().Timestamp().Logger()
	global.Store(&l)
}

// Configure installs the logger returned by L (used by the lock profiler's
// Dump); the proactor logs through its own Config.Logger instead.
// Passing a logger writing to os.Stderr at zerolog.DebugLevel is the usual
// choice for development; production embedders typically pass zerolog.Nop()
// derived loggers or their own sink.
func Configure(l zerolog.Logger) {
	global.Store(&l)
}

// Default returns a ready-to-use stderr logger at Info level, the same
// console-writer shape joeycumines-go-utilpkg's logiface-zerolog backend
// wires for local development.
func Default() zerolog.Logger {
	w := zerolog.ConsoleWriter{Out: os.Stderr}
	return zerolog.New(w).Level(zerolog.InfoLevel).With().Timestamp().Logger()
}

// L returns the process-wide logger.
func L() *zerolog.Logger {
	return global.Load()
}
