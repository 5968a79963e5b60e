// Package seclog standardizes the structured-logging fields modules,
// pollers and the dispatcher attach to every log line, on top of
// go.uber.org/zap.
package seclog

import (
	"sync"

	"go.uber.org/zap"
)

var (
	baseMu  sync.RWMutex
	base    *zap.Logger = zap.NewNop()
)

// SetBase installs the process-wide base logger. cmd/secopd calls this
// once at startup with a production or development zap.Logger; tests may
// install zap.NewNop() or an observer-backed logger.
func SetBase(l *zap.Logger) {
	baseMu.Lock()
	defer baseMu.Unlock()
	base = l
}

func currentBase() *zap.Logger {
	baseMu.RLock()
	defer baseMu.RUnlock()
	return base
}

// Logger wraps *zap.Logger with SECoP-specific convenience constructors.
// It is a thin value type; copying it is cheap and safe.
type Logger struct {
	z *zap.Logger
}

// ForModule returns a Logger scoped to a module name, the way every
// Module in the server is handed its own pre-scoped logger at
// construction (mirrors secop.modules.Module.__init__'s self.log).
func ForModule(name string) Logger {
	return Logger{z: currentBase().With(zap.String("module", name))}
}

// ForClient returns a Logger scoped to a dispatcher client session id.
func ForClient(sessionID string) Logger {
	return Logger{z: currentBase().With(zap.String("session", sessionID))}
}

// Named returns a Logger scoped under an arbitrary subsystem name, e.g.
// "poller" or "dispatcher".
func Named(name string) Logger {
	return Logger{z: currentBase().Named(name)}
}

// With returns a derived Logger carrying additional structured fields.
func (l Logger) With(fields ...zap.Field) Logger {
	return Logger{z: l.z.With(fields...)}
}

// Param returns a Logger further scoped to a single parameter, matching
// the (module, parameter) pair that identifies most log-worthy events.
func (l Logger) Param(name string) Logger {
	return l.With(zap.String("parameter", name))
}

func (l Logger) Debug(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }
func (l Logger) Info(msg string, fields ...zap.Field)  { l.z.Info(msg, fields...) }
func (l Logger) Warn(msg string, fields ...zap.Field)  { l.z.Warn(msg, fields...) }
func (l Logger) Error(msg string, fields ...zap.Field) { l.z.Error(msg, fields...) }

// Zap exposes the underlying *zap.Logger for callers that need the full API.
func (l Logger) Zap() *zap.Logger { return l.z }
