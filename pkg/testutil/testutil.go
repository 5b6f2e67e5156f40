package testutil

import (
	"runtime"
	"testing"
)

// FatalStack fails a wait-based test (a lock or commit-wait waiter
// that never woke up) and dumps every goroutine stack, since the bug
// is usually a missing wakeup somewhere else in the call graph, not in
// the waiter itself.
//
// (etcd pkg.testutil.FatalStack)
func FatalStack(t *testing.T, s string) {
	stackTrace := make([]byte, 8*1024)
	n := runtime.Stack(stackTrace, true)
	t.Error(string(stackTrace[:n]))
	t.Fatalf(s)
}
