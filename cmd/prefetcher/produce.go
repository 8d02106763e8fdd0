package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/streamkit/prefetcher/pkg/producer"
	"github.com/streamkit/prefetcher/pkg/utils"
)

func produceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			EnvVars: []string{"LOG_LEVEL"},
			Value:   "info",
		},
		&cli.StringFlag{
			Name:    "bootstrap-servers",
			Aliases: []string{"b"},
			Usage:   "Kafka bootstrap servers (comma-separated)",
			EnvVars: []string{"KAFKA_BOOTSTRAP_SERVERS"},
			Value:   "localhost:9092",
		},
		&cli.StringFlag{
			Name:    "topic",
			Aliases: []string{"t"},
			Usage:   "Kafka topic to write to",
			EnvVars: []string{"KAFKA_TOPIC"},
			Value:   "records",
		},
		&cli.IntFlag{
			Name:    "partition",
			Usage:   "Kafka partition to write to",
			EnvVars: []string{"KAFKA_PARTITION"},
		},
		&cli.IntFlag{
			Name:  "count",
			Usage: "Number of records to produce",
			Value: 1000,
		},
		&cli.IntFlag{
			Name:  "record-size",
			Usage: "Payload size of each record in bytes",
			Value: 512,
		},
		&cli.DurationFlag{
			Name:  "interval",
			Usage: "Pause between records; zero produces as fast as possible",
		},
	}
}

// produce seeds a topic partition with random records so a prefetcher run
// has something to read.
func produce(c *cli.Context) error {
	sugar, err := utils.NewSugaredLogger(c.String("log-level"))
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := producer.New(sugar, c.String("bootstrap-servers"), c.String("topic"), int32(c.Int("partition")))
	if err != nil {
		return fmt.Errorf("failed to create producer: %w", err)
	}
	defer p.Close()

	count := c.Int("count")
	size := c.Int("record-size")
	interval := c.Duration("interval")

	sugar.Infow("producing records",
		"topic", c.String("topic"),
		"partition", c.Int("partition"),
		"count", count,
		"recordSize", size,
	)

	payload := make([]byte, size)
	for i := 0; i < count; i++ {
		if _, err := rand.Read(payload); err != nil {
			return fmt.Errorf("failed to generate payload: %w", err)
		}
		key := []byte(strconv.Itoa(i))
		if err := p.Publish(ctx, key, payload); err != nil {
			if ctx.Err() != nil {
				sugar.Infow("interrupted", "produced", i)
				return nil
			}
			return fmt.Errorf("failed to publish record %d: %w", i, err)
		}

		if interval > 0 {
			select {
			case <-time.After(interval):
			case <-ctx.Done():
				sugar.Infow("interrupted", "produced", i+1)
				return nil
			}
		}
	}

	sugar.Infow("done", "produced", count)
	return nil
}
