// Package suppress tells the mediator's own clipboard writes apart from
// foreign ones.
package suppress

import (
	"sync/atomic"
	"time"
)

// Window holds a single process-wide deadline. Change notifications that
// fire before the deadline are attributed to our own corrective writes.
type Window struct {
	until atomic.Int64 // UnixNano
	now   func() time.Time
}

func New(now func() time.Time) *Window {
	if now == nil {
		now = time.Now
	}
	return &Window{now: now}
}

// Extend moves the deadline to now+d unless it is already further out.
func (w *Window) Extend(d time.Duration) {
	target := w.now().Add(d).UnixNano()
	for {
		cur := w.until.Load()
		if target <= cur {
			return
		}
		if w.until.CompareAndSwap(cur, target) {
			return
		}
	}
}

func (w *Window) IsSuppressed(at time.Time) bool {
	return at.UnixNano() < w.until.Load()
}

func (w *Window) Until() time.Time {
	n := w.until.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
