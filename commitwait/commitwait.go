// Package commitwait implements the commit-wait signal (C11): a
// manual-reset-style event that wakes waiters when the commit index
// advances or a caller-supplied predicate over the node state becomes
// true.
//
// commitIndex only ever increases, so it is exactly the "logical time"
// the teacher's pkg/scheduleutil.WaitLogicalTime was built for
// (github.com/gyuho/db/pkg/scheduleutil/wait_logical_time.go, itself
// "(etcd pkg.wait.WaitTime)"); waitForIndex is a direct use of it.
// waitAny and waitForPredicate are layered on top for the spec's more
// general consistency waits.
package commitwait

import (
	"context"
	"sync"

	"github.com/gyuho/raftlog/pkg/scheduleutil"
)

// Signal is the commit-wait event.
type Signal struct {
	byIndex scheduleutil.WaitLogicalTime

	mu      sync.Mutex
	anyWake []chan struct{}
}

// New returns a Signal with no commits yet observed.
func New() *Signal {
	return &Signal{byIndex: scheduleutil.NewWaitLogicalTime()}
}

// Trigger wakes every waiter registered for an index <= commitIndex,
// and every WaitAny waiter. Must be called after the commit that
// advanced commitIndex has been made visible (§5's ordering guarantee:
// "a successful commit to i is visible to subsequent waiters before
// the event signal returns").
func (s *Signal) Trigger(commitIndex uint64) {
	s.byIndex.Trigger(commitIndex)

	s.mu.Lock()
	waiters := s.anyWake
	s.anyWake = nil
	s.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
}

// WaitAny blocks until the next Trigger call, or ctx is canceled.
func (s *Signal) WaitAny(ctx context.Context) bool {
	ch := make(chan struct{})
	s.mu.Lock()
	s.anyWake = append(s.anyWake, ch)
	s.mu.Unlock()

	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return false
	}
}

// WaitForIndex blocks until commitIndex >= target has been triggered,
// or ctx is canceled. If target has already been reached by a past
// Trigger, it returns true immediately.
func (s *Signal) WaitForIndex(ctx context.Context, target uint64) bool {
	ch := s.byIndex.Wait(target)
	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return false
	}
}

// WaitForPredicate blocks until pred returns true, re-evaluating it on
// every commit advance, or until ctx is canceled.
func (s *Signal) WaitForPredicate(ctx context.Context, pred func() bool) bool {
	for {
		if pred() {
			return true
		}
		if !s.WaitAny(ctx) {
			return false
		}
	}
}
