// Package consumer drives a prefetch publisher through its demand-driven
// subscription, hands each cached batch to a handler, and tracks the
// position of the last successfully processed batch for checkpointing.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/streamkit/prefetcher/pkg/checkpoint"
	"github.com/streamkit/prefetcher/pkg/prefetch"
)

// Handler processes one cached batch. A non-nil error marks the batch as
// failed; its position is not recorded for checkpointing.
type Handler interface {
	Process(ctx context.Context, entry *prefetch.Entry) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, entry *prefetch.Entry) error

func (f HandlerFunc) Process(ctx context.Context, entry *prefetch.Entry) error {
	return f(ctx, entry)
}

// Consumer subscribes to a publisher and processes delivered batches. Demand
// is kept at the configured window: one slot is replenished as each batch
// finishes processing, so a slow handler naturally throttles delivery.
type Consumer struct {
	log     *zap.SugaredLogger
	pub     *prefetch.Publisher
	handler Handler
	window  int64

	mu        sync.Mutex
	last      checkpoint.Position
	delivered bool

	runCtx context.Context
	sub    *prefetch.Subscription
}

// New creates a Consumer. window is the number of batches that may be in
// flight between the publisher and the handler.
func New(log *zap.SugaredLogger, pub *prefetch.Publisher, handler Handler, window int64) (*Consumer, error) {
	if log == nil {
		return nil, errors.New("invalid logger: must not be nil")
	}
	if pub == nil {
		return nil, errors.New("invalid publisher: must not be nil")
	}
	if handler == nil {
		return nil, errors.New("invalid handler: must not be nil")
	}
	if window <= 0 {
		return nil, errors.New("invalid window: must be greater than 0")
	}

	return &Consumer{
		log:     log,
		pub:     pub,
		handler: handler,
		window:  window,
	}, nil
}

// Run subscribes to the publisher and blocks until ctx is cancelled.
// Handler failures are logged and skipped, not fatal.
func (c *Consumer) Run(ctx context.Context) error {
	c.runCtx = ctx
	sub, err := c.pub.Subscribe(c)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	c.sub = sub
	c.sub.Request(c.window)

	<-ctx.Done()
	c.sub.Cancel()
	return nil
}

// OnNext implements prefetch.Subscriber. It is invoked by the publisher for
// each delivered batch, in order.
func (c *Consumer) OnNext(entry *prefetch.Entry) {
	if err := c.runCtx.Err(); err != nil {
		return
	}

	if err := c.handler.Process(c.runCtx, entry); err != nil {
		c.log.Errorw("failed to process batch",
			"last_sequence_number", entry.LastSequenceNumber,
			"records", entry.RecordCount(),
			"error", err,
		)
	} else {
		c.mu.Lock()
		c.last = checkpoint.Position{
			SequenceNumber:    entry.LastSequenceNumber,
			ContinuationToken: entry.ContinuationToken,
		}
		c.delivered = true
		c.mu.Unlock()
	}

	c.sub.Request(1)
}

// Position reports the coordinate of the last successfully processed batch.
// It satisfies checkpoint.PositionFunc.
func (c *Consumer) Position() (checkpoint.Position, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.delivered
}
