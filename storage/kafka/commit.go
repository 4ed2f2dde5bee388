package kafka

import (
	"sync/atomic"
	"time"
)

// commitClock decides when consumed offsets should be flushed.
type commitClock struct {
	everyNS int64
	lastNS  atomic.Int64
}

func newCommitClock(every time.Duration) *commitClock {
	c := &commitClock{everyNS: every.Nanoseconds()}
	c.lastNS.Store(time.Now().UnixNano())
	return c
}

// due reports whether a commit is due at now and, if so, restarts the clock.
func (c *commitClock) due(now time.Time) bool {
	n := now.UnixNano()
	last := c.lastNS.Load()
	if last+c.everyNS > n {
		return false
	}
	return c.lastNS.CompareAndSwap(last, n)
}
