// Package checkpoint persists the consumer's delivery progress so a restart
// can resume reading after the last record it handed out instead of
// replaying the stream from the beginning.
package checkpoint

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Position is the durable coordinate of the last delivered record.
type Position struct {
	SequenceNumber    string    `json:"sequence_number"`
	ContinuationToken string    `json:"continuation_token"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Store abstracts checkpoint persistence across different data stores. A
// checkpoint tracks the last delivered position for a stream, enabling
// resumption after restarts or failures.
type Store interface {
	// Write atomically persists the position for a stream. UpdatedAt should
	// be the current time.
	Write(ctx context.Context, streamID string, pos Position) error

	// Read retrieves the latest checkpoint for a stream and whether one
	// exists. If none exists, exists is false and pos is the zero value.
	Read(ctx context.Context, streamID string) (pos Position, exists bool, err error)
}

// PositionFunc reports the current position to persist and whether any
// record has been delivered yet.
type PositionFunc func() (Position, bool)

// Start periodically persists the consumer position to durable storage.
//
// Returns nil on context cancellation (graceful shutdown), or an error if
// checkpoint writes fail after all retries.
func Start(
	ctx context.Context,
	log *zap.SugaredLogger,
	position PositionFunc,
	store Store,
	cfg Config,
	streamID string,
) error {
	t := time.NewTicker(cfg.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			// Graceful shutdown - exit without error
			return nil

		case <-t.C:
			pos, ok := position()
			if !ok {
				// Nothing delivered yet; keep any existing checkpoint.
				continue
			}

			var lastErr error
			for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
				if ctx.Err() != nil {
					return nil
				}

				writeCtx, cancel := context.WithTimeout(ctx, cfg.WriteTimeout)
				lastErr = store.Write(writeCtx, streamID, pos)
				cancel()

				if lastErr == nil {
					break
				}

				if ctx.Err() != nil {
					return nil
				}

				log.Warnw("checkpoint write failed",
					"stream_id", streamID,
					"sequence_number", pos.SequenceNumber,
					"attempt", attempt+1,
					"error", lastErr,
				)

				// Don't sleep after the last attempt
				if attempt < cfg.MaxRetries {
					select {
					case <-time.After(cfg.RetryBackoff):
					case <-ctx.Done():
						return nil
					}
				}
			}

			if lastErr != nil {
				return fmt.Errorf("failed to write checkpoint (sequence number: %s) after %d attempts: %w",
					pos.SequenceNumber, cfg.MaxRetries+1, lastErr)
			}
		}
	}
}
