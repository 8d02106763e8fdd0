package prefetch

import (
	"context"
	"time"
)

// boundedQueue is a FIFO of fetched entries with a fixed slot capacity. The
// slot capacity is independent of the capacity counters' record and byte
// ceilings; all three must be satisfied for the daemon to keep fetching.
type boundedQueue struct {
	entries chan *Entry
}

func newBoundedQueue(capacity int) *boundedQueue {
	return &boundedQueue{entries: make(chan *Entry, capacity)}
}

// tryInsert blocks up to timeout waiting for a free slot. It returns false on
// timeout and never drops the entry; the caller retries or checks for a
// rewind. done aborts the wait with ErrShutdown.
func (q *boundedQueue) tryInsert(e *Entry, timeout time.Duration, done <-chan struct{}) (bool, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case q.entries <- e:
		return true, nil
	case <-t.C:
		return false, nil
	case <-done:
		return false, ErrShutdown
	}
}

// removeBlocking blocks until an entry is available, ctx is done, or done is
// closed.
func (q *boundedQueue) removeBlocking(ctx context.Context, done <-chan struct{}) (*Entry, error) {
	select {
	case e := <-q.entries:
		return e, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-done:
		return nil, ErrShutdown
	}
}

// tryRemove pops the head entry without blocking.
func (q *boundedQueue) tryRemove() (*Entry, bool) {
	select {
	case e := <-q.entries:
		return e, true
	default:
		return nil, false
	}
}

// clear discards all entries. Only called while the rewind gate's write side
// is held, so no insertion can race with it.
func (q *boundedQueue) clear() {
	for {
		select {
		case <-q.entries:
		default:
			return
		}
	}
}

func (q *boundedQueue) size() int { return len(q.entries) }

func (q *boundedQueue) isEmpty() bool { return len(q.entries) == 0 }

func (q *boundedQueue) full() bool { return len(q.entries) == cap(q.entries) }
