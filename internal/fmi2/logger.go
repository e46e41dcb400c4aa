package fmi2

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var logger atomic.Pointer[zap.Logger]

// Logger returns the fmi2 package's logger instance.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	logger.CompareAndSwap(nil, zap.NewNop())
	return logger.Load()
}

// SetLogger configures the fmi2 package's logger. It is safe to call
// concurrently with Logger; components that captured the previous logger
// keep using it.
func SetLogger(l *zap.Logger) {
	logger.Store(l)
}
