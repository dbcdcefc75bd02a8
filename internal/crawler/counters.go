package crawler

import "sync/atomic"

// counters holds the four monotonic counters from §3. All fields are
// accessed exclusively through atomic operations so that the termination
// predicate (invariant 3) can be evaluated from any goroutine without a
// lock.
type counters struct {
	linksScheduled  atomic.Int64
	pagesScheduled  atomic.Int64
	visitedCounter  atomic.Int64
	actuallyVisited atomic.Int64
}

func (c *counters) snapshot() (linksScheduled, pagesScheduled, visitedCounter, actuallyVisited int64) {
	return c.linksScheduled.Load(), c.pagesScheduled.Load(), c.visitedCounter.Load(), c.actuallyVisited.Load()
}

// quiescent reports whether both scheduled counters have drained to zero,
// the scheduling half of invariant 3 (the caller must separately check
// frontier emptiness).
func (c *counters) quiescent() bool {
	return c.linksScheduled.Load() == 0 && c.pagesScheduled.Load() == 0
}
