package kafka

import (
	"errors"
	"testing"
	"time"

	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/streamkit/prefetcher/pkg/prefetch"
)

func TestClassifyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       cKafka.Error
		expired   bool
		transient bool
		transport bool
	}{
		{
			name:    "offset out of range maps to expired iterator",
			err:     cKafka.NewError(cKafka.ErrOffsetOutOfRange, "out of range", false),
			expired: true,
		},
		{
			name:      "timeout is transient",
			err:       cKafka.NewError(cKafka.ErrTimedOut, "timed out", false),
			transient: true,
		},
		{
			name:      "transport failure is not transient",
			err:       cKafka.NewError(cKafka.ErrTransport, "broker down", false),
			transport: true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := classifyError(tt.err)
			assert.Equal(t, tt.expired, errors.Is(got, prefetch.ErrIteratorExpired))

			var transient *prefetch.TransientError
			assert.Equal(t, tt.transient, errors.As(got, &transient))

			var transport *prefetch.TransportError
			assert.Equal(t, tt.transport, errors.As(got, &transport))
		})
	}
}

func TestClassifyError_PreservesCause(t *testing.T) {
	t.Parallel()

	cause := cKafka.NewError(cKafka.ErrTimedOut, "timed out", false)
	got := classifyError(cause)
	assert.ErrorIs(t, got, cause)
}

func TestParseOffset(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		token   string
		want    cKafka.Offset
		wantErr bool
	}{
		{name: "zero", token: "0", want: 0},
		{name: "positive", token: "42", want: 42},
		{name: "negative", token: "-1", wantErr: true},
		{name: "empty", token: "", wantErr: true},
		{name: "not a number", token: "abc", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := parseOffset(tt.token)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStartOffset(t *testing.T) {
	t.Parallel()

	f := &Fetcher{}

	tests := []struct {
		name    string
		start   prefetch.StartingPosition
		want    cKafka.Offset
		wantErr string
	}{
		{
			name:  "earliest",
			start: prefetch.StartingPosition{Kind: prefetch.StartEarliest},
			want:  cKafka.OffsetBeginning,
		},
		{
			name:  "latest",
			start: prefetch.StartingPosition{Kind: prefetch.StartLatest},
			want:  cKafka.OffsetEnd,
		},
		{
			name: "resumes after a sequence number",
			start: prefetch.StartingPosition{
				Kind:           prefetch.StartAtSequenceNumber,
				SequenceNumber: "10",
			},
			want: 11,
		},
		{
			name: "rejects a malformed sequence number",
			start: prefetch.StartingPosition{
				Kind:           prefetch.StartAtSequenceNumber,
				SequenceNumber: "not-a-number",
			},
			wantErr: "invalid starting sequence number",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := f.startOffset(tt.start)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMillisBehind(t *testing.T) {
	t.Parallel()

	assert.Zero(t, millisBehind(nil))
	assert.Zero(t, millisBehind([]prefetch.Record{{SequenceNumber: "1"}}))

	records := []prefetch.Record{
		{SequenceNumber: "1", Timestamp: time.Now().Add(-2 * time.Second)},
	}
	got := millisBehind(records)
	assert.GreaterOrEqual(t, got, int64(2000))
	assert.Less(t, got, int64(10000))

	future := []prefetch.Record{
		{SequenceNumber: "1", Timestamp: time.Now().Add(time.Minute)},
	}
	assert.Zero(t, millisBehind(future))
}

func TestNewFetcher_Validation(t *testing.T) {
	t.Parallel()

	log := newTestLogger()

	tests := []struct {
		name        string
		mutate      func(*Config)
		nilLogger   bool
		errContains string
	}{
		{
			name:        "nil logger",
			nilLogger:   true,
			errContains: "invalid logger",
		},
		{
			name:        "empty bootstrap servers",
			mutate:      func(c *Config) { c.BootstrapServers = "" },
			errContains: "invalid bootstrap servers",
		},
		{
			name:        "empty topic",
			mutate:      func(c *Config) { c.Topic = "" },
			errContains: "invalid topic",
		},
		{
			name:        "negative partition",
			mutate:      func(c *Config) { c.Partition = -1 },
			errContains: "invalid partition",
		},
		{
			name:        "empty group id",
			mutate:      func(c *Config) { c.GroupID = "" },
			errContains: "invalid group id",
		},
		{
			name:        "zero poll timeout",
			mutate:      func(c *Config) { c.PollTimeout = 0 },
			errContains: "invalid timeouts",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validTestConfig()
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			l := log
			if tt.nilLogger {
				l = nil
			}
			_, err := NewFetcher(l, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("KAFKA_BOOTSTRAP_SERVERS", "broker-1:9092,broker-2:9092")
	t.Setenv("KAFKA_TOPIC", "payments")
	t.Setenv("KAFKA_PARTITION", "3")
	t.Setenv("KAFKA_FETCH_MAX_WAIT", "1s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "broker-1:9092,broker-2:9092", cfg.BootstrapServers)
	assert.Equal(t, "payments", cfg.Topic)
	assert.Equal(t, int32(3), cfg.Partition)
	assert.Equal(t, time.Second, cfg.FetchMaxWait)

	// Unset variables fall back to defaults.
	assert.Equal(t, "prefetcher", cfg.GroupID)
	assert.Equal(t, DefaultSessionTimeout, cfg.SessionTimeout)
	assert.Equal(t, DefaultPollTimeout, cfg.PollTimeout)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.NoError(t, cfg.validate())
	assert.Equal(t, "localhost:9092", cfg.BootstrapServers)
	assert.Equal(t, "records", cfg.Topic)
	assert.Equal(t, int32(0), cfg.Partition)
	assert.Equal(t, DefaultFetchMaxWait, cfg.FetchMaxWait)
}

func newTestLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func validTestConfig() Config {
	return Config{
		BootstrapServers: "localhost:9092",
		Topic:            "records",
		Partition:        0,
		GroupID:          "prefetcher",
		SessionTimeout:   DefaultSessionTimeout,
		PollTimeout:      DefaultPollTimeout,
		FetchMaxWait:     DefaultFetchMaxWait,
	}
}
