// Package kafka implements a prefetch.FetchStrategy backed by a single Kafka
// topic partition. Record offsets serve as sequence numbers and the
// continuation token is the decimal offset of the next record to read, so a
// rewound token repositions the consumer with a plain seek.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"github.com/streamkit/prefetcher/pkg/prefetch"
)

// Fetcher reads one topic partition on behalf of the prefetch daemon.
// Offsets are tracked locally; nothing is committed to the broker, which
// keeps duplicate-free resumption entirely under the publisher's control.
type Fetcher struct {
	log      *zap.SugaredLogger
	consumer *cKafka.Consumer
	cfg      Config

	mu sync.Mutex
	// next is the offset the iterator currently points at. It may hold the
	// logical OffsetBeginning/OffsetEnd sentinels until the first record
	// resolves it.
	next   cKafka.Offset
	closed bool
}

var _ prefetch.FetchStrategy = (*Fetcher)(nil)

// NewFetcher creates a Fetcher. The underlying consumer does not connect
// until the first call.
func NewFetcher(log *zap.SugaredLogger, cfg Config) (*Fetcher, error) {
	if log == nil {
		return nil, errors.New("invalid logger: must not be nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	consumerConfig := cKafka.ConfigMap{
		"bootstrap.servers":      cfg.BootstrapServers,
		"group.id":               cfg.GroupID,
		"enable.auto.commit":     false,
		"session.timeout.ms":     int(cfg.SessionTimeout.Milliseconds()),
		"enable.partition.eof":   true,
		"go.logs.channel.enable": cfg.EnableLogs,
	}
	consumer, err := cKafka.NewConsumer(&consumerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	return &Fetcher{
		log:      log,
		consumer: consumer,
		cfg:      cfg,
		next:     cKafka.OffsetBeginning,
	}, nil
}

// Initialize establishes the iterator for the given starting coordinate.
func (f *Fetcher) Initialize(ctx context.Context, pos prefetch.Position) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return prefetch.ErrShutdown
	}

	off, err := f.startOffset(pos.Start)
	if err != nil {
		return err
	}
	return f.assign(off)
}

// Fetch accumulates up to maxRecords records within the configured wait
// budget and returns them with the continuation token for the next call.
// Reaching the partition end is not a terminal position for Kafka; an empty
// batch simply reports zero lag.
func (f *Fetcher) Fetch(ctx context.Context, maxRecords int) (prefetch.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return prefetch.Batch{}, prefetch.ErrShutdown
	}

	deadline := time.Now().Add(f.cfg.FetchMaxWait)
	records := make([]prefetch.Record, 0, maxRecords)

poll:
	for len(records) < maxRecords {
		if err := ctx.Err(); err != nil {
			return prefetch.Batch{}, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if remaining > f.cfg.PollTimeout {
			remaining = f.cfg.PollTimeout
		}

		ev := f.consumer.Poll(int(remaining.Milliseconds()))
		switch e := ev.(type) {
		case nil:
			// Poll timeout; keep accumulating until the fetch budget runs out.
		case *cKafka.Message:
			off := e.TopicPartition.Offset
			records = append(records, prefetch.Record{
				SequenceNumber: strconv.FormatInt(int64(off), 10),
				PartitionKey:   string(e.Key),
				Data:           e.Value,
				Timestamp:      e.Timestamp,
			})
			f.next = off + 1
		case cKafka.PartitionEOF:
			// Caught up with the partition; hand back what we have.
			break poll
		case cKafka.Error:
			return prefetch.Batch{}, classifyError(e)
		default:
			f.log.Debugw("ignoring kafka event", "event", e)
		}
	}

	return prefetch.Batch{
		Records:            records,
		MillisBehindLatest: millisBehind(records),
		NextToken:          strconv.FormatInt(int64(f.next), 10),
	}, nil
}

// RestartIterator re-establishes the iterator immediately after the last
// record handed out. Called by the daemon after ErrIteratorExpired.
func (f *Fetcher) RestartIterator(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return prefetch.ErrShutdown
	}
	return f.assign(f.next)
}

// ResetIterator repositions to an explicit continuation token. Used by a
// rewind; falls back to resuming after sequenceNumber when the token is
// empty.
func (f *Fetcher) ResetIterator(ctx context.Context, token, sequenceNumber string, start prefetch.StartingPosition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return prefetch.ErrShutdown
	}

	off, err := parseOffset(token)
	if err != nil {
		if sequenceNumber == "" {
			return fmt.Errorf("invalid continuation token %q: %w", token, err)
		}
		seq, serr := parseOffset(sequenceNumber)
		if serr != nil {
			return fmt.Errorf("invalid sequence number %q: %w", sequenceNumber, serr)
		}
		off = seq + 1
	}
	f.next = off
	return f.assign(off)
}

// Shutdown closes the underlying consumer. It is idempotent.
func (f *Fetcher) Shutdown() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	if err := f.consumer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer: %w", err)
	}
	return nil
}

// IsShutdown reports whether Shutdown has completed.
func (f *Fetcher) IsShutdown() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// assign points the consumer at the given offset of the configured
// partition. The caller must hold f.mu.
func (f *Fetcher) assign(off cKafka.Offset) error {
	topic := f.cfg.Topic
	err := f.consumer.Assign([]cKafka.TopicPartition{{
		Topic:     &topic,
		Partition: f.cfg.Partition,
		Offset:    off,
	}})
	if err != nil {
		return fmt.Errorf("failed to assign partition %s[%d] at offset %s: %w",
			topic, f.cfg.Partition, off.String(), err)
	}
	f.next = off
	return nil
}

// startOffset translates a starting specification into a partition offset.
func (f *Fetcher) startOffset(start prefetch.StartingPosition) (cKafka.Offset, error) {
	switch start.Kind {
	case prefetch.StartEarliest:
		return cKafka.OffsetBeginning, nil
	case prefetch.StartLatest:
		return cKafka.OffsetEnd, nil
	case prefetch.StartAtTimestamp:
		return f.offsetForTimestamp(start.Timestamp)
	case prefetch.StartAtSequenceNumber:
		seq, err := parseOffset(start.SequenceNumber)
		if err != nil {
			return 0, fmt.Errorf("invalid starting sequence number %q: %w", start.SequenceNumber, err)
		}
		// The sequence number was already delivered; resume after it.
		return seq + 1, nil
	default:
		return 0, fmt.Errorf("unknown starting position kind: %d", start.Kind)
	}
}

// offsetForTimestamp resolves the first offset at or after ts. The caller
// must hold f.mu.
func (f *Fetcher) offsetForTimestamp(ts time.Time) (cKafka.Offset, error) {
	topic := f.cfg.Topic
	resolved, err := f.consumer.OffsetsForTimes([]cKafka.TopicPartition{{
		Topic:     &topic,
		Partition: f.cfg.Partition,
		Offset:    cKafka.Offset(ts.UnixMilli()),
	}}, int(f.cfg.SessionTimeout.Milliseconds()))
	if err != nil {
		return 0, fmt.Errorf("failed to resolve offset for timestamp %s: %w", ts, err)
	}
	if len(resolved) != 1 {
		return 0, fmt.Errorf("unexpected offsets-for-times result size: %d", len(resolved))
	}
	return resolved[0].Offset, nil
}

// classifyError maps librdkafka errors onto the fetch error taxonomy.
func classifyError(e cKafka.Error) error {
	switch {
	case e.Code() == cKafka.ErrOffsetOutOfRange:
		// The tracked offset fell out of retention; the position itself is
		// still meaningful.
		return prefetch.ErrIteratorExpired
	case e.IsTimeout():
		return &prefetch.TransientError{Err: e}
	case e.IsRetriable():
		return &prefetch.TransientError{Err: e}
	case e.IsFatal():
		return &prefetch.TransportError{Err: e}
	default:
		return &prefetch.TransportError{Err: e}
	}
}

func parseOffset(s string) (cKafka.Offset, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("offset must not be negative: %d", v)
	}
	return cKafka.Offset(v), nil
}

// millisBehind estimates consumer lag from the broker timestamp of the last
// record in the batch. An empty batch means the reader is caught up.
func millisBehind(records []prefetch.Record) int64 {
	if len(records) == 0 {
		return 0
	}
	last := records[len(records)-1].Timestamp
	if last.IsZero() {
		return 0
	}
	behind := time.Since(last).Milliseconds()
	if behind < 0 {
		return 0
	}
	return behind
}
