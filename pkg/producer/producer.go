// Package producer writes records to a Kafka topic partition. The prefetcher
// only reads; this package backs the produce command used to seed a stream
// for local runs and load tests.
package producer

import (
	"context"
	"errors"
	"fmt"
	"time"

	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

const (
	flushTimeoutMs = 10000
	queueFullDelay = time.Second
)

// Producer is a synchronous Kafka producer. Publish blocks until the broker
// confirms delivery, so records land in partition order.
type Producer struct {
	log       *zap.SugaredLogger
	producer  *cKafka.Producer
	topic     string
	partition int32
}

// New creates a Producer for one topic partition.
func New(log *zap.SugaredLogger, bootstrapServers, topic string, partition int32) (*Producer, error) {
	if log == nil {
		return nil, errors.New("invalid logger: must not be nil")
	}
	if bootstrapServers == "" {
		return nil, errors.New("invalid bootstrap servers: must not be empty")
	}
	if topic == "" {
		return nil, errors.New("invalid topic: must not be empty")
	}
	if partition < 0 {
		return nil, errors.New("invalid partition: must not be negative")
	}

	p, err := cKafka.NewProducer(&cKafka.ConfigMap{
		"bootstrap.servers": bootstrapServers,
		"acks":              "all",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return &Producer{
		log:       log,
		producer:  p,
		topic:     topic,
		partition: partition,
	}, nil
}

// Publish writes one record and blocks until delivery is confirmed or ctx is
// cancelled. A full producer queue is retried; other produce errors fail the
// call.
func (p *Producer) Publish(ctx context.Context, key, value []byte) error {
	deliveryCh := make(chan cKafka.Event, 1)

	msg := &cKafka.Message{
		TopicPartition: cKafka.TopicPartition{
			Topic:     &p.topic,
			Partition: p.partition,
		},
		Key:   key,
		Value: value,
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := p.producer.Produce(msg, deliveryCh)
		if err == nil {
			break
		}

		var kafkaErr cKafka.Error
		if errors.As(err, &kafkaErr) && kafkaErr.Code() == cKafka.ErrQueueFull {
			p.log.Warnw("producer queue full, retrying")
			select {
			case <-time.After(queueFullDelay):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return fmt.Errorf("failed to produce: %w", err)
	}

	select {
	case <-ctx.Done():
		// The record may still land after cancellation.
		return ctx.Err()
	case ev := <-deliveryCh:
		return deliveryError(ev)
	}
}

// Close flushes pending records and releases the producer.
func (p *Producer) Close() {
	for p.producer.Flush(flushTimeoutMs) > 0 {
		p.log.Warnw("producer queue not flushed, retrying")
	}
	p.producer.Close()
}

func deliveryError(ev cKafka.Event) error {
	switch e := ev.(type) {
	case *cKafka.Message:
		if err := e.TopicPartition.Error; err != nil {
			return fmt.Errorf("delivery failed: %w", err)
		}
		return nil
	case cKafka.Error:
		return fmt.Errorf("kafka error: code=%d fatal=%t: %w", e.Code(), e.IsFatal(), e)
	default:
		return fmt.Errorf("unexpected delivery event: %T", ev)
	}
}
