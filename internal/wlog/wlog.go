// Package wlog provides the thin, component-scoped logging facade used
// throughout wdht. Logging itself is an external concern: wlog only picks a
// backend (zap) and a naming convention ("component" field per package), it
// is not a logging system in its own right.
package wlog

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu      sync.RWMutex
	base    *zap.Logger
	nopOnce sync.Once
)

func defaultBase() *zap.Logger {
	nopOnce.Do(func() {
		if base == nil {
			l, err := zap.NewProduction()
			if err != nil {
				l = zap.NewNop()
			}
			base = l
		}
	})
	return base
}

// SetBackend overrides the underlying zap logger used by every Logger
// returned from Get, e.g. for tests that want to assert on log output.
func SetBackend(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = l
}

// Logger is a component-scoped logger. The zero value is not usable; obtain
// one via Get.
type Logger struct {
	component string
}

// Get returns a logger scoped to component. Safe to call at package
// init time and to retain for the lifetime of the process — it always
// defers to the current backend rather than capturing one at creation.
func Get(component string) *Logger {
	return &Logger{component: component}
}

func (l *Logger) zap() *zap.Logger {
	mu.RLock()
	b := base
	mu.RUnlock()
	if b == nil {
		b = defaultBase()
	}
	return b.With(zap.String("component", l.component))
}

// Debug logs at debug level with alternating key/value pairs, mirroring the
// teacher's slog-style call sites (logger.Debug("msg", "key", val, ...)).
func (l *Logger) Debug(msg string, kv ...any) { l.zap().Sugar().Debugw(msg, kv...) }

// Info logs at info level.
func (l *Logger) Info(msg string, kv ...any) { l.zap().Sugar().Infow(msg, kv...) }

// Warn logs at warn level.
func (l *Logger) Warn(msg string, kv ...any) { l.zap().Sugar().Warnw(msg, kv...) }

// Error logs at error level.
func (l *Logger) Error(msg string, kv ...any) { l.zap().Sugar().Errorw(msg, kv...) }

// With returns a child logger with the given key/value pairs attached to
// every subsequent call.
func (l *Logger) With(kv ...any) *zap.SugaredLogger {
	return l.zap().Sugar().With(kv...)
}
