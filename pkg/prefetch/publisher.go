package prefetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Errors surfaced to consumers.
var (
	ErrNotStarted   = errors.New("prefetcher has not been started")
	ErrShutdown     = errors.New("prefetcher has been shut down")
	ErrForeignEntry = errors.New("entry was not produced by this prefetcher")
)

// errPositionReset aborts an in-flight insertion after a rewind. Internal
// control signal, never surfaced.
var errPositionReset = errors.New("position was reset during insert")

// Config holds the tunables of a Publisher.
type Config struct {
	// MaxPendingEntries caps how many fetched batches the cache queue holds.
	MaxPendingEntries int
	// MaxCachedRecords and MaxCachedBytes are the capacity counter ceilings
	// across all cached batches.
	MaxCachedRecords int64
	MaxCachedBytes   int64
	// MaxRecordsPerFetch is passed to the fetch strategy on every call.
	MaxRecordsPerFetch int
	// IdlePeriod is the minimum spacing between fetch calls. It also bounds
	// capacity waits and each insert retry.
	IdlePeriod time.Duration
	// PartitionID tags log lines; it carries no other semantics.
	PartitionID string
}

func (c Config) validate() error {
	if c.MaxPendingEntries <= 0 {
		return errors.New("invalid max pending entries: must be greater than 0")
	}
	if c.MaxCachedRecords <= 0 {
		return errors.New("invalid max cached records: must be greater than 0")
	}
	if c.MaxCachedBytes <= 0 {
		return errors.New("invalid max cached bytes: must be greater than 0")
	}
	if c.MaxRecordsPerFetch <= 0 {
		return errors.New("invalid max records per fetch: must be greater than 0")
	}
	if c.IdlePeriod <= 0 {
		return errors.New("invalid idle period: must be greater than 0")
	}
	return nil
}

// Subscriber receives delivered entries. OnNext invocations are never
// concurrent. A subscriber may call Request from inside OnNext.
type Subscriber interface {
	OnNext(*Entry)
}

// Subscription is the demand control handed to the consumer by Subscribe.
type Subscription struct{ p *Publisher }

// Request grants n more deliveries and triggers a drain.
func (s *Subscription) Request(n int64) {
	if n <= 0 {
		return
	}
	s.p.demand.Add(n)
	s.p.drain()
}

// Cancel drops all outstanding demand. No delivery occurs until a new
// Request arrives.
func (s *Subscription) Cancel() {
	s.p.demand.Store(0)
}

// Publisher is the prefetching cache engine. See the package documentation
// for the overall design.
type Publisher struct {
	log     *zap.SugaredLogger
	fetcher FetchStrategy
	metrics *Metrics
	cfg     Config

	queue    *boundedQueue
	counters *counters
	gate     *resetGate

	demand   atomic.Int64
	draining atomic.Bool

	subMu sync.Mutex
	sub   Subscriber

	// Lifecycle state.
	lifecycleMu sync.Mutex
	started     bool
	stopped     bool
	runCtx      context.Context
	runCancel   context.CancelFunc
	daemonDone  chan struct{}

	// pos is owned by the daemon under the gate's read side and rewritten by
	// Start and RestartFrom under the write side.
	pos Position

	// Daemon-local, never touched outside the daemon goroutine.
	lastSuccessfulFetch time.Time
}

// New creates a Publisher. The metrics argument may be nil.
func New(log *zap.SugaredLogger, fetcher FetchStrategy, cfg Config, m *Metrics) (*Publisher, error) {
	if log == nil {
		return nil, errors.New("invalid logger: must not be nil")
	}
	if fetcher == nil {
		return nil, errors.New("invalid fetch strategy: must not be nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	return &Publisher{
		log:        log,
		fetcher:    fetcher,
		metrics:    m,
		cfg:        cfg,
		queue:      newBoundedQueue(cfg.MaxPendingEntries),
		counters:   newCounters(cfg.MaxCachedRecords, cfg.MaxCachedBytes),
		gate:       &resetGate{},
		runCtx:     runCtx,
		runCancel:  runCancel,
		daemonDone: make(chan struct{}),
	}, nil
}

// Start initializes the fetch strategy at the given starting position and
// launches the retrieval daemon if it is not already running. It fails with
// ErrShutdown once Shutdown has been called.
func (p *Publisher) Start(ctx context.Context, start StartingPosition) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()
	if p.stopped {
		return ErrShutdown
	}

	pos := Position{SequenceNumber: start.SequenceNumber, Start: start}
	if err := p.fetcher.Initialize(ctx, pos); err != nil {
		return fmt.Errorf("failed to initialize fetch strategy: %w", err)
	}

	p.gate.acquireWrite()
	p.pos = pos
	p.gate.releaseWrite()

	if !p.started {
		p.log.Infow("starting prefetch daemon", "partition", p.cfg.PartitionID)
		go p.runDaemon()
		p.started = true
	}
	return nil
}

// Shutdown signals the daemon to stop. It is idempotent; the daemon releases
// the fetch strategy exactly once on loop exit. Subsequent Start and GetNext
// calls fail with ErrShutdown.
func (p *Publisher) Shutdown() {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()
	if p.stopped {
		return
	}
	p.stopped = true
	p.runCancel()
}

// Done is closed once the daemon has stopped and the fetch strategy has been
// released. It is never closed before Start.
func (p *Publisher) Done() <-chan struct{} { return p.daemonDone }

// GetNext blocks until an entry is available and returns it with delivery
// bookkeeping applied. Consumers using the demand protocol should not mix
// GetNext with Subscribe on the same publisher.
func (p *Publisher) GetNext(ctx context.Context) (*Entry, error) {
	p.lifecycleMu.Lock()
	started, stopped := p.started, p.stopped
	p.lifecycleMu.Unlock()
	if stopped {
		return nil, ErrShutdown
	}
	if !started {
		return nil, ErrNotStarted
	}

	e, err := p.queue.removeBlocking(ctx, p.runCtx.Done())
	if err != nil {
		return nil, err
	}
	p.deliver(e)
	return e, nil
}

// Subscribe registers the single consumer and returns its demand control.
func (p *Publisher) Subscribe(s Subscriber) (*Subscription, error) {
	if s == nil {
		return nil, errors.New("invalid subscriber: must not be nil")
	}
	p.subMu.Lock()
	p.sub = s
	p.subMu.Unlock()
	return &Subscription{p: p}, nil
}

// RestartFrom rewinds the stream position to resume after the given entry.
// The entry must have been produced by this publisher. Any batch mid-insertion
// at the moment of the rewind is discarded, never delivered.
func (p *Publisher) RestartFrom(ctx context.Context, e *Entry) error {
	if e == nil || e.owner != p {
		return ErrForeignEntry
	}

	p.gate.acquireWrite()
	defer p.gate.releaseWrite()

	p.queue.clear()
	p.counters.reset()

	p.pos.SequenceNumber = e.LastSequenceNumber
	p.pos.ContinuationToken = e.ContinuationToken
	err := p.fetcher.ResetIterator(ctx, e.ContinuationToken, e.LastSequenceNumber, p.pos.Start)

	p.gate.markReset()
	p.metrics.incRewind()
	p.metrics.setCacheState(p.queue.size(), 0, 0)

	if err != nil {
		return fmt.Errorf("failed to reset iterator: %w", err)
	}
	return nil
}

// deliver stamps the exit time and settles counters and demand for one entry.
func (p *Publisher) deliver(e *Entry) {
	e.CacheExitTime = time.Now()
	p.counters.remove(e)
	// Demand never goes below zero; plain GetNext pulls may outrun granted
	// demand.
	for {
		d := p.demand.Load()
		if d <= 0 {
			break
		}
		if p.demand.CompareAndSwap(d, d-1) {
			break
		}
	}
	p.metrics.incDelivery()
	p.publishCacheState()
}

// drain delivers queued entries while demand is outstanding. Only one drain
// runs at a time; a Request issued while a drain is in progress is picked up
// by the running loop or by the retry below.
func (p *Publisher) drain() {
	for {
		if !p.draining.CompareAndSwap(false, true) {
			return
		}
		p.drainOnce()
		p.draining.Store(false)
		if p.demand.Load() == 0 || p.queue.isEmpty() {
			return
		}
	}
}

func (p *Publisher) drainOnce() {
	p.subMu.Lock()
	sub := p.sub
	p.subMu.Unlock()
	if sub == nil {
		return
	}
	for p.demand.Load() > 0 {
		e, ok := p.queue.tryRemove()
		if !ok {
			return
		}
		p.deliver(e)
		sub.OnNext(e)
	}
}

func (p *Publisher) publishCacheState() {
	records, bytes := p.counters.snapshot()
	p.metrics.setCacheState(p.queue.size(), records, bytes)
}

// runDaemon is the retrieval loop. It runs until Shutdown and then releases
// the fetch strategy exactly once.
func (p *Publisher) runDaemon() {
	defer close(p.daemonDone)
	defer p.releaseFetcher()

	for {
		select {
		case <-p.runCtx.Done():
			return
		default:
		}

		p.gate.acquireRead()
		err := p.retrievalAttempt()
		p.gate.releaseRead()

		if errors.Is(err, errPositionReset) {
			p.log.Debugw("position was reset while inserting, discarding fetched batch",
				"partition", p.cfg.PartitionID)
		}
	}
}

func (p *Publisher) releaseFetcher() {
	if p.fetcher.IsShutdown() {
		return
	}
	if err := p.fetcher.Shutdown(); err != nil {
		p.log.Warnw("failed to shut down fetch strategy",
			"partition", p.cfg.PartitionID, "error", err)
	}
}

// retrievalAttempt runs one iteration of the fetch loop. The caller holds the
// gate's read side for the whole attempt.
func (p *Publisher) retrievalAttempt() error {
	if !p.counters.hasCapacity() {
		// Consumer is not keeping up; wait for a delivery to free space.
		p.counters.awaitCapacity(p.cfg.IdlePeriod, p.runCtx.Done())
		return nil
	}
	if p.queue.full() {
		// Slot gate is the tightest bound right now.
		p.counters.awaitFreed(p.cfg.IdlePeriod, p.runCtx.Done())
		return nil
	}

	if err := p.sleepBeforeNextFetch(); err != nil {
		return err
	}

	fetchStart := time.Now()
	batch, err := p.fetcher.Fetch(p.runCtx, p.cfg.MaxRecordsPerFetch)
	if err != nil {
		p.metrics.observeFetch(StatusError, time.Since(fetchStart))
		p.handleFetchError(err)
		return nil
	}
	p.metrics.observeFetch(StatusSuccess, time.Since(fetchStart))
	p.lastSuccessfulFetch = time.Now()

	// An empty batch carries the previous high-water mark forward.
	seq := p.pos.SequenceNumber
	if n := len(batch.Records); n > 0 {
		seq = batch.Records[n-1].SequenceNumber
	}
	p.pos.SequenceNumber = seq
	p.pos.ContinuationToken = batch.NextToken

	e := newEntry(p, batch, seq)
	if err := p.insert(e); err != nil {
		return err
	}
	p.metrics.setMillisBehind(batch.MillisBehindLatest)
	p.publishCacheState()
	p.drain()
	return nil
}

// sleepBeforeNextFetch enforces the minimum spacing since the last successful
// fetch.
func (p *Publisher) sleepBeforeNextFetch() error {
	if p.lastSuccessfulFetch.IsZero() {
		return nil
	}
	elapsed := time.Since(p.lastSuccessfulFetch)
	if elapsed >= p.cfg.IdlePeriod {
		return nil
	}
	t := time.NewTimer(p.cfg.IdlePeriod - elapsed)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-p.runCtx.Done():
		return ErrShutdown
	}
}

// insert adds the entry to the queue, honoring the rewind checkpoint protocol
// while the queue has no free slot.
func (p *Publisher) insert(e *Entry) error {
	p.gate.clearReset()
	for {
		ok, err := p.queue.tryInsert(e, p.cfg.IdlePeriod, p.runCtx.Done())
		if err != nil {
			return err
		}
		if ok {
			break
		}
		if p.gate.checkpoint() {
			return errPositionReset
		}
	}
	p.counters.add(e)
	return nil
}

func (p *Publisher) handleFetchError(err error) {
	var transient *TransientError
	var transport *TransportError
	switch {
	case p.runCtx.Err() != nil:
		// Shutdown was signaled mid-call; the loop exits on its next check.
	case errors.Is(err, ErrIteratorExpired):
		p.log.Infow("continuation token expired, restarting iterator after highest sequence number",
			"partition", p.cfg.PartitionID, "sequenceNumber", p.pos.SequenceNumber)
		p.metrics.incExpiredIterator()
		if rerr := p.fetcher.RestartIterator(p.runCtx); rerr != nil {
			p.log.Warnw("failed to restart iterator",
				"partition", p.cfg.PartitionID, "error", rerr)
		}
	case errors.As(err, &transient):
		p.log.Infow("timeout waiting for the source, will retry",
			"partition", p.cfg.PartitionID, "error", err)
	case errors.As(err, &transport):
		p.log.Errorw("source rejected the fetch call",
			"partition", p.cfg.PartitionID, "error", err)
	default:
		p.log.Errorw("unexpected error in the prefetch loop, this may be a defect",
			"partition", p.cfg.PartitionID, "error", err)
	}
}
