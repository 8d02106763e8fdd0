package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/streamkit/prefetcher/internal/consumer"
	"github.com/streamkit/prefetcher/pkg/checkpoint"
	"github.com/streamkit/prefetcher/pkg/kafka"
	"github.com/streamkit/prefetcher/pkg/metrics"
	"github.com/streamkit/prefetcher/pkg/prefetch"
	"github.com/streamkit/prefetcher/pkg/utils"
)

func run(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}

	sugar, err := utils.NewSugaredLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	sugar.Infow("config",
		"logLevel", cfg.LogLevel,
		"bootstrapServers", cfg.Kafka.BootstrapServers,
		"topic", cfg.Kafka.Topic,
		"partition", cfg.Kafka.Partition,
		"groupID", cfg.Kafka.GroupID,
		"fetchMaxWait", cfg.Kafka.FetchMaxWait,
		"startPosition", cfg.StartPosition.Kind,
		"maxPendingEntries", cfg.Prefetch.MaxPendingEntries,
		"maxCachedRecords", cfg.Prefetch.MaxCachedRecords,
		"maxCachedBytes", cfg.Prefetch.MaxCachedBytes,
		"maxRecordsPerFetch", cfg.Prefetch.MaxRecordsPerFetch,
		"idlePeriod", cfg.Prefetch.IdlePeriod,
		"demandWindow", cfg.DemandWindow,
		"redisAddr", cfg.RedisAddr,
		"checkpointInterval", cfg.Checkpoint.Interval,
		"ignoreCheckpoint", cfg.IgnoreCheckpoint,
		"metricsAddr", cfg.MetricsAddr,
	)

	registry := prometheus.NewRegistry()
	m, err := prefetch.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	metricsServer, err := metrics.NewServer(sugar, cfg.MetricsAddr, registry)
	if err != nil {
		return fmt.Errorf("failed to create metrics server: %w", err)
	}
	metricsErrCh := metricsServer.Start()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Checkpoint storage is optional; without it the run starts from the
	// configured position and progress is not persisted.
	var store checkpoint.Store
	if cfg.CheckpointEnabled() {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()

		store, err = checkpoint.NewRedisStore(redisClient)
		if err != nil {
			return fmt.Errorf("failed to create checkpoint store: %w", err)
		}
	} else {
		sugar.Warn("checkpointing disabled, progress will not be persisted")
	}

	start, err := resolveStart(ctx, sugar, cfg, store)
	if err != nil {
		return err
	}

	fetcher, err := kafka.NewFetcher(sugar, cfg.Kafka)
	if err != nil {
		return fmt.Errorf("failed to create kafka fetcher: %w", err)
	}

	pub, err := prefetch.New(sugar, fetcher, cfg.Prefetch, m)
	if err != nil {
		return fmt.Errorf("failed to create publisher: %w", err)
	}
	if err := pub.Start(ctx, start); err != nil {
		return fmt.Errorf("failed to start publisher: %w", err)
	}

	cons, err := consumer.New(sugar, pub, newLoggingHandler(sugar), cfg.DemandWindow)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := cons.Run(gctx); err != nil {
			return fmt.Errorf("consumer error: %w", err)
		}
		return nil
	})

	if store != nil {
		g.Go(func() error {
			if err := checkpoint.Start(gctx, sugar, cons.Position, store, cfg.Checkpoint, cfg.StreamID()); err != nil {
				return fmt.Errorf("checkpoint scheduler error: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return gctx.Err()
		case err := <-metricsErrCh:
			if err != nil {
				return fmt.Errorf("metrics server error: %w", err)
			}
			return nil
		}
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	sugar.Info("shutting down publisher")
	pub.Shutdown()
	<-pub.Done()

	// Persist final progress so a restart resumes where this run stopped.
	if store != nil {
		if pos, ok := cons.Position(); ok {
			writeCtx, cancel := context.WithTimeout(context.Background(), cfg.Checkpoint.WriteTimeout)
			if werr := store.Write(writeCtx, cfg.StreamID(), pos); werr != nil {
				sugar.Warnw("final checkpoint write failed", "error", werr)
			}
			cancel()
		}
	}

	sugar.Info("shutting down metrics server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if shutdownErr := metricsServer.Shutdown(shutdownCtx); shutdownErr != nil {
		sugar.Warnw("metrics server shutdown error", "error", shutdownErr)
	}

	sugar.Info("shutdown complete")
	return err
}

// resolveStart picks the starting position, preferring a stored checkpoint
// over the configured position unless --ignore-checkpoint is set.
func resolveStart(ctx context.Context, sugar *zap.SugaredLogger, cfg *Config, store checkpoint.Store) (prefetch.StartingPosition, error) {
	if store == nil || cfg.IgnoreCheckpoint {
		return cfg.StartPosition, nil
	}

	pos, exists, err := store.Read(ctx, cfg.StreamID())
	if err != nil {
		return prefetch.StartingPosition{}, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	if !exists {
		sugar.Infow("no checkpoint found, using configured start position",
			"stream_id", cfg.StreamID(),
			"start_position", cfg.StartPosition.Kind,
		)
		return cfg.StartPosition, nil
	}

	sugar.Infow("resuming from checkpoint",
		"stream_id", cfg.StreamID(),
		"sequence_number", pos.SequenceNumber,
		"updated_at", pos.UpdatedAt,
	)
	return prefetch.StartingPosition{
		Kind:           prefetch.StartAtSequenceNumber,
		SequenceNumber: pos.SequenceNumber,
	}, nil
}

// newLoggingHandler returns a handler that reports each delivered batch.
// Real deployments replace this with domain processing.
func newLoggingHandler(sugar *zap.SugaredLogger) consumer.Handler {
	return consumer.HandlerFunc(func(_ context.Context, e *prefetch.Entry) error {
		sugar.Infow("processed batch",
			"records", e.RecordCount(),
			"bytes", e.ByteSize(),
			"last_sequence_number", e.LastSequenceNumber,
			"millis_behind_latest", e.MillisBehindLatest,
			"cached_for", e.CacheExitTime.Sub(e.CacheEntryTime),
		)
		return nil
	})
}
