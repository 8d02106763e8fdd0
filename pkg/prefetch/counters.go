package prefetch

import (
	"sync"
	"time"
)

// counters tracks the record count and byte size of entries currently
// resident in the cache queue against configured ceilings. It gates whether
// the daemon may fetch more data and wakes it when space frees up. All
// operations are safe for concurrent use by the daemon and the drain path.
type counters struct {
	mu         sync.Mutex
	records    int64
	bytes      int64
	maxRecords int64
	maxBytes   int64

	// Wake-up signal for awaitCapacity; buffered (size 1) to coalesce signals.
	freed chan struct{}
}

func newCounters(maxRecords, maxBytes int64) *counters {
	return &counters{
		maxRecords: maxRecords,
		maxBytes:   maxBytes,
		freed:      make(chan struct{}, 1),
	}
}

func (c *counters) add(e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records += e.RecordCount()
	c.bytes += e.ByteSize()
}

func (c *counters) remove(e *Entry) {
	c.mu.Lock()
	c.records -= e.RecordCount()
	c.bytes -= e.ByteSize()
	c.mu.Unlock()
	c.signalFreed()
}

// hasCapacity reports whether both counters are strictly below their
// ceilings.
func (c *counters) hasCapacity() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.records < c.maxRecords && c.bytes < c.maxBytes
}

// awaitCapacity blocks until space frees up, the timeout elapses, or done is
// closed, whichever comes first. Used only by the daemon when it is not
// allowed to fetch.
func (c *counters) awaitCapacity(timeout time.Duration, done <-chan struct{}) {
	if c.hasCapacity() {
		return
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-c.freed:
	case <-t.C:
	case <-done:
	}
}

// awaitFreed blocks until the next delivery frees space, the timeout elapses,
// or done is closed. Unlike awaitCapacity it does not consult the counters;
// the daemon uses it when the queue's slot gate is the one that is full.
func (c *counters) awaitFreed(timeout time.Duration, done <-chan struct{}) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-c.freed:
	case <-t.C:
	case <-done:
	}
}

// reset zeroes both counters. Only called while the rewind gate's write side
// is held.
func (c *counters) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = 0
	c.bytes = 0
}

func (c *counters) snapshot() (records, bytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.records, c.bytes
}

func (c *counters) signalFreed() {
	select {
	case c.freed <- struct{}{}:
	default:
	}
}
