package testing

import (
	"sync/atomic"
	"testing"

	"github.com/arloliu/chorus/types"
)

// NewTestLogger returns a logger that writes through t.Logf.
//
// Output is dropped once the test's cleanup has run, so goroutines that
// outlive a test (hook callbacks, late backend events) cannot trip the
// "Log in goroutine after test has completed" panic.
func NewTestLogger(t *testing.T) types.Logger {
	t.Helper()

	l := &testLogger{t: t}
	t.Cleanup(func() { l.done.Store(true) })

	return l
}

type testLogger struct {
	t    *testing.T
	done atomic.Bool
}

var _ types.Logger = (*testLogger)(nil)

func (l *testLogger) log(level, msg string, keysAndValues []any) {
	if l.done.Load() {
		return
	}
	l.t.Logf("%s: %s %v", level, msg, keysAndValues)
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) { l.log("DEBUG", msg, keysAndValues) }

func (l *testLogger) Info(msg string, keysAndValues ...any) { l.log("INFO", msg, keysAndValues) }

func (l *testLogger) Warn(msg string, keysAndValues ...any) { l.log("WARN", msg, keysAndValues) }

func (l *testLogger) Error(msg string, keysAndValues ...any) { l.log("ERROR", msg, keysAndValues) }

func (l *testLogger) Fatal(msg string, keysAndValues ...any) {
	l.t.Fatalf("FATAL: %s %v", msg, keysAndValues)
}
