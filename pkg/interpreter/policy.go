package interpreter

import (
	"sync/atomic"
	"time"
)

// Boundary describes a line boundary of the module frame: the next line is
// about to start and Prev has just finished.
type Boundary struct {
	Line    int           // line about to execute, 0 once the program completed
	Offset  int           // first offset of Line
	Prev    int           // line that just finished, 0 before the first line
	Elapsed time.Duration // wall time spent in Prev
}

// PausePolicy decides whether to suspend at a boundary
type PausePolicy interface {
	ShouldPause(b Boundary) bool
}

// LineObserver is told about every boundary the module frame crosses, before
// the pause policy is consulted.
type LineObserver interface {
	ObserveLine(b Boundary, f *Frame)
}

// PauseFunc adapts a function to PausePolicy
type PauseFunc func(b Boundary) bool

func (p PauseFunc) ShouldPause(b Boundary) bool { return p(b) }

// EveryLine pauses at every boundary
var EveryLine PauseFunc = func(Boundary) bool { return true }

// Never runs to completion
var Never PauseFunc = func(Boundary) bool { return false }

// AtLines pauses only before the given lines.
func AtLines(lines ...int) PausePolicy {
	set := make(map[int]struct{}, len(lines))
	for _, l := range lines {
		set[l] = struct{}{}
	}
	return PauseFunc(func(b Boundary) bool {
		_, ok := set[b.Line]
		return ok
	})
}

// Trigger is a pause request raised from outside the VM, possibly from another
// goroutine. It is consumed by the first boundary that sees it.
type Trigger struct {
	raised atomic.Bool
}

// Raise requests a pause at the next boundary
func (t *Trigger) Raise() {
	t.raised.Store(true)
}

// Pending reports whether a request is waiting
func (t *Trigger) Pending() bool {
	return t.raised.Load()
}

func (t *Trigger) ShouldPause(Boundary) bool {
	return t.raised.CompareAndSwap(true, false)
}
