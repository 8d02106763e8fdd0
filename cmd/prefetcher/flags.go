package main

import (
	"time"

	"github.com/urfave/cli/v2"
)

func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			EnvVars: []string{"LOG_LEVEL"},
			Value:   "info",
		},

		// Kafka source
		&cli.StringFlag{
			Name:    "bootstrap-servers",
			Aliases: []string{"b"},
			Usage:   "Kafka bootstrap servers (comma-separated)",
			EnvVars: []string{"KAFKA_BOOTSTRAP_SERVERS"},
		},
		&cli.StringFlag{
			Name:    "topic",
			Aliases: []string{"t"},
			Usage:   "Kafka topic to read from",
			EnvVars: []string{"KAFKA_TOPIC"},
		},
		&cli.IntFlag{
			Name:    "partition",
			Usage:   "Kafka partition to read from",
			EnvVars: []string{"KAFKA_PARTITION"},
		},
		&cli.StringFlag{
			Name:    "group-id",
			Aliases: []string{"g"},
			Usage:   "Kafka consumer group ID",
			EnvVars: []string{"KAFKA_GROUP_ID"},
		},
		&cli.DurationFlag{
			Name:    "fetch-max-wait",
			Usage:   "Budget for accumulating one batch from the source",
			EnvVars: []string{"KAFKA_FETCH_MAX_WAIT"},
		},
		&cli.BoolFlag{
			Name:    "enable-kafka-logs",
			Usage:   "Enable librdkafka client logs",
			EnvVars: []string{"KAFKA_ENABLE_LOGS"},
		},

		// Starting position
		&cli.StringFlag{
			Name:    "start-position",
			Usage:   "Where to start reading when no checkpoint exists (earliest, latest, timestamp, sequence)",
			EnvVars: []string{"START_POSITION"},
			Value:   "latest",
		},
		&cli.TimestampFlag{
			Name:    "start-timestamp",
			Usage:   "Starting timestamp in RFC 3339 format, used with --start-position=timestamp",
			EnvVars: []string{"START_TIMESTAMP"},
			Layout:  time.RFC3339,
		},
		&cli.StringFlag{
			Name:    "start-sequence-number",
			Usage:   "Starting sequence number, used with --start-position=sequence",
			EnvVars: []string{"START_SEQUENCE_NUMBER"},
		},

		// Cache sizing
		&cli.IntFlag{
			Name:    "max-pending-entries",
			Usage:   "Maximum number of fetched batches held in the cache",
			EnvVars: []string{"MAX_PENDING_ENTRIES"},
			Value:   3,
		},
		&cli.Int64Flag{
			Name:    "max-cached-records",
			Usage:   "Maximum number of records held in the cache",
			EnvVars: []string{"MAX_CACHED_RECORDS"},
			Value:   30000,
		},
		&cli.Int64Flag{
			Name:    "max-cached-bytes",
			Usage:   "Maximum total record payload bytes held in the cache",
			EnvVars: []string{"MAX_CACHED_BYTES"},
			Value:   8 * 1024 * 1024,
		},
		&cli.IntFlag{
			Name:    "max-records-per-fetch",
			Usage:   "Maximum records requested from the source per fetch",
			EnvVars: []string{"MAX_RECORDS_PER_FETCH"},
			Value:   10000,
		},
		&cli.DurationFlag{
			Name:    "idle-period",
			Usage:   "Minimum spacing between fetch calls",
			EnvVars: []string{"IDLE_PERIOD"},
			Value:   1500 * time.Millisecond,
		},

		// Consumer
		&cli.Int64Flag{
			Name:    "demand-window",
			Usage:   "Number of batches in flight between publisher and handler",
			EnvVars: []string{"DEMAND_WINDOW"},
			Value:   2,
		},

		// Checkpointing
		&cli.StringFlag{
			Name:    "redis-addr",
			Usage:   "Redis address for checkpoint storage; empty disables checkpointing",
			EnvVars: []string{"REDIS_ADDR"},
			Value:   "localhost:6379",
		},
		&cli.StringFlag{
			Name:    "redis-password",
			Usage:   "Redis password",
			EnvVars: []string{"REDIS_PASSWORD"},
		},
		&cli.IntFlag{
			Name:    "redis-db",
			Usage:   "Redis database number",
			EnvVars: []string{"REDIS_DB"},
		},
		&cli.DurationFlag{
			Name:    "checkpoint-interval",
			Usage:   "Interval between checkpoint writes",
			EnvVars: []string{"CHECKPOINT_INTERVAL"},
			Value:   30 * time.Second,
		},
		&cli.BoolFlag{
			Name:    "ignore-checkpoint",
			Usage:   "Start from --start-position even when a checkpoint exists",
			EnvVars: []string{"IGNORE_CHECKPOINT"},
		},

		// Metrics
		&cli.StringFlag{
			Name:    "metrics-addr",
			Usage:   "Listen address for the Prometheus metrics server",
			EnvVars: []string{"METRICS_ADDR"},
			Value:   ":9090",
		},
	}
}
