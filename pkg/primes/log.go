package primes

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var debugLogger atomic.Pointer[zap.Logger]

// SetLogger sets the logger NthPrime reports its sieve attempts to.
// A nil logger restores the default no-op logger.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	debugLogger.Store(l)
}

func logger() *zap.Logger {
	if l := debugLogger.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}
