package prefetch

import (
	"context"
	"errors"
	"fmt"
)

// Batch is the result of a single fetch strategy call.
type Batch struct {
	Records            []Record
	MillisBehindLatest int64
	// NextToken is the continuation token for the fetch after this one.
	NextToken string
	// AtStreamEnd reports that the source reached its terminal position.
	AtStreamEnd bool
}

// FetchStrategy performs the actual calls against the remote stream and owns
// iterator and checkpoint semantics. Fetch, Initialize and RestartIterator
// are invoked from the retrieval daemon goroutine only; ResetIterator is
// called from consumer threads while the publisher holds its rewind gate
// exclusively.
type FetchStrategy interface {
	// Initialize establishes the remote iterator for the given starting
	// coordinate.
	Initialize(ctx context.Context, pos Position) error

	// Fetch returns up to maxRecords records in stream order. Failures are
	// classified through the error kinds below; anything else is treated as
	// unclassified and logged prominently by the daemon.
	Fetch(ctx context.Context, maxRecords int) (Batch, error)

	// RestartIterator re-establishes the iterator immediately after the last
	// known high-water sequence number. Called after ErrIteratorExpired.
	RestartIterator(ctx context.Context) error

	// ResetIterator repositions to an explicit continuation token. Used by a
	// rewind.
	ResetIterator(ctx context.Context, token, sequenceNumber string, start StartingPosition) error

	// Shutdown releases remote resources. It must be idempotent.
	Shutdown() error

	// IsShutdown reports whether Shutdown has completed.
	IsShutdown() bool
}

// ErrIteratorExpired reports that the continuation token went stale while the
// position itself is still valid. The daemon recovers by restarting the
// iterator after the high-water sequence number; no data is lost.
var ErrIteratorExpired = errors.New("continuation token expired")

// TransientError wraps a retryable source timeout. The daemon logs it and
// retries on the next iteration without touching the position.
type TransientError struct{ Err error }

func (e *TransientError) Error() string { return fmt.Sprintf("transient source error: %v", e.Err) }

func (e *TransientError) Unwrap() error { return e.Err }

// TransportError wraps a call the source rejected outright. The daemon logs
// it and keeps looping; stream errors recur and the remote side may
// self-heal.
type TransportError struct{ Err error }

func (e *TransportError) Error() string { return fmt.Sprintf("source transport error: %v", e.Err) }

func (e *TransportError) Unwrap() error { return e.Err }
