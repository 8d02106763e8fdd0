package prefetch

import (
	"sync"
	"sync/atomic"
)

// resetGate coordinates in-flight insertions with a concurrent rewind. Every
// insertion attempt holds the read side for the whole retry loop of one fetch
// cycle; a rewind takes the write side exclusively, which waits until all
// in-progress attempts complete or voluntarily yield at a checkpoint.
//
// The was-reset flag is true only between a rewind starting and the next
// insertion attempt observing it. It is set under the write side and cleared
// under the read side, and the daemon is the only reader-side writer, so an
// atomic is sufficient.
type resetGate struct {
	mu       sync.RWMutex
	wasReset atomic.Bool
}

func (g *resetGate) acquireRead() { g.mu.RLock() }

func (g *resetGate) releaseRead() { g.mu.RUnlock() }

func (g *resetGate) acquireWrite() { g.mu.Lock() }

func (g *resetGate) releaseWrite() { g.mu.Unlock() }

// checkpoint releases and immediately re-acquires the read side so a pending
// writer gets a fair chance to run, then reports whether a rewind landed in
// the window. The caller must hold the read side and must abort its insertion
// when true is returned.
func (g *resetGate) checkpoint() bool {
	g.mu.RUnlock()
	g.mu.RLock()
	return g.wasReset.Load()
}

func (g *resetGate) markReset() { g.wasReset.Store(true) }

func (g *resetGate) clearReset() { g.wasReset.Store(false) }
