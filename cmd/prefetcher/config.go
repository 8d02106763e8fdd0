package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/streamkit/prefetcher/pkg/checkpoint"
	"github.com/streamkit/prefetcher/pkg/kafka"
	"github.com/streamkit/prefetcher/pkg/prefetch"
)

// Config holds all configuration for the prefetcher application.
type Config struct {
	LogLevel string

	Kafka    kafka.Config
	Prefetch prefetch.Config

	StartPosition prefetch.StartingPosition

	DemandWindow int64

	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	Checkpoint       checkpoint.Config
	IgnoreCheckpoint bool

	MetricsAddr string
}

// StreamID identifies a topic partition in checkpoint storage.
func (c *Config) StreamID() string {
	return fmt.Sprintf("%s-%d", c.Kafka.Topic, c.Kafka.Partition)
}

// CheckpointEnabled reports whether checkpoint storage is configured.
func (c *Config) CheckpointEnabled() bool {
	return c.RedisAddr != ""
}

// buildConfig builds a Config from the environment and CLI flags. Flags
// override environment-derived Kafka settings when set explicitly.
func buildConfig(c *cli.Context) (*Config, error) {
	kcfg, err := kafka.LoadConfig()
	if err != nil {
		return nil, err
	}
	if c.IsSet("bootstrap-servers") {
		kcfg.BootstrapServers = c.String("bootstrap-servers")
	}
	if c.IsSet("topic") {
		kcfg.Topic = c.String("topic")
	}
	if c.IsSet("partition") {
		kcfg.Partition = int32(c.Int("partition"))
	}
	if c.IsSet("group-id") {
		kcfg.GroupID = c.String("group-id")
	}
	if c.IsSet("fetch-max-wait") {
		kcfg.FetchMaxWait = c.Duration("fetch-max-wait")
	}
	if c.IsSet("enable-kafka-logs") {
		kcfg.EnableLogs = c.Bool("enable-kafka-logs")
	}

	start, err := buildStartingPosition(c)
	if err != nil {
		return nil, err
	}

	ccfg := checkpoint.DefaultConfig()
	ccfg.Interval = c.Duration("checkpoint-interval")

	return &Config{
		LogLevel: c.String("log-level"),
		Kafka:    kcfg,
		Prefetch: prefetch.Config{
			MaxPendingEntries:  c.Int("max-pending-entries"),
			MaxCachedRecords:   c.Int64("max-cached-records"),
			MaxCachedBytes:     c.Int64("max-cached-bytes"),
			MaxRecordsPerFetch: c.Int("max-records-per-fetch"),
			IdlePeriod:         c.Duration("idle-period"),
			PartitionID:        fmt.Sprintf("%s[%d]", kcfg.Topic, kcfg.Partition),
		},
		StartPosition:    start,
		DemandWindow:     c.Int64("demand-window"),
		RedisAddr:        c.String("redis-addr"),
		RedisPassword:    c.String("redis-password"),
		RedisDB:          c.Int("redis-db"),
		Checkpoint:       ccfg,
		IgnoreCheckpoint: c.Bool("ignore-checkpoint"),
		MetricsAddr:      c.String("metrics-addr"),
	}, nil
}

func buildStartingPosition(c *cli.Context) (prefetch.StartingPosition, error) {
	switch pos := c.String("start-position"); pos {
	case "earliest":
		return prefetch.StartingPosition{Kind: prefetch.StartEarliest}, nil
	case "latest":
		return prefetch.StartingPosition{Kind: prefetch.StartLatest}, nil
	case "timestamp":
		ts := c.Timestamp("start-timestamp")
		if ts == nil || ts.IsZero() {
			return prefetch.StartingPosition{}, fmt.Errorf("--start-position=timestamp requires --start-timestamp")
		}
		return prefetch.StartingPosition{Kind: prefetch.StartAtTimestamp, Timestamp: *ts}, nil
	case "sequence":
		seq := c.String("start-sequence-number")
		if seq == "" {
			return prefetch.StartingPosition{}, fmt.Errorf("--start-position=sequence requires --start-sequence-number")
		}
		return prefetch.StartingPosition{Kind: prefetch.StartAtSequenceNumber, SequenceNumber: seq}, nil
	default:
		return prefetch.StartingPosition{}, fmt.Errorf("unknown start position %q", pos)
	}
}
