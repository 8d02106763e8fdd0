package kafka

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Default timeout values for the Kafka-backed fetch strategy.
const (
	DefaultSessionTimeout = 45 * time.Second
	DefaultPollTimeout    = 100 * time.Millisecond
	DefaultFetchMaxWait   = 500 * time.Millisecond
)

// Config holds the configuration for the Kafka-backed fetch strategy. A
// fetcher reads exactly one topic partition; offsets are managed locally and
// never committed to the broker.
type Config struct {
	BootstrapServers string        `env:"KAFKA_BOOTSTRAP_SERVERS" envDefault:"localhost:9092"` // Kafka broker addresses
	Topic            string        `env:"KAFKA_TOPIC"             envDefault:"records"`        // Topic to read from
	Partition        int32         `env:"KAFKA_PARTITION"         envDefault:"0"`              // Partition to read from
	GroupID          string        `env:"KAFKA_GROUP_ID"          envDefault:"prefetcher"`     // Group ID, required by librdkafka even without commits
	SessionTimeout   time.Duration `env:"KAFKA_SESSION_TIMEOUT"   envDefault:"45s"`            // Session timeout for the underlying consumer
	PollTimeout      time.Duration `env:"KAFKA_POLL_TIMEOUT"      envDefault:"100ms"`          // Single poll timeout inside one fetch
	FetchMaxWait     time.Duration `env:"KAFKA_FETCH_MAX_WAIT"    envDefault:"500ms"`          // Overall budget to accumulate one batch
	EnableLogs       bool          `env:"KAFKA_ENABLE_LOGS"       envDefault:"false"`          // Enable librdkafka client logs
}

// LoadConfig loads the fetcher configuration from environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse kafka fetcher config: %w", err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.BootstrapServers == "" {
		return errors.New("invalid bootstrap servers: must not be empty")
	}
	if c.Topic == "" {
		return errors.New("invalid topic: must not be empty")
	}
	if c.Partition < 0 {
		return errors.New("invalid partition: must not be negative")
	}
	if c.GroupID == "" {
		return errors.New("invalid group id: must not be empty")
	}
	if c.SessionTimeout <= 0 || c.PollTimeout <= 0 || c.FetchMaxWait <= 0 {
		return errors.New("invalid timeouts: must be greater than 0")
	}
	return nil
}
