package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "prefetcher:checkpoint:"

// RedisStore persists checkpoints as JSON values in Redis, one key per
// stream.
type RedisStore struct {
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a RedisStore backed by the given client. The caller
// retains ownership of the client and is responsible for closing it.
func NewRedisStore(client *redis.Client) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("invalid redis client: must not be nil")
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Write(ctx context.Context, streamID string, pos Position) error {
	if streamID == "" {
		return errors.New("invalid stream id: must not be empty")
	}
	pos.UpdatedAt = time.Now().UTC()

	payload, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+streamID, payload, 0).Err(); err != nil {
		return fmt.Errorf("failed to write checkpoint for stream %s: %w", streamID, err)
	}
	return nil
}

func (s *RedisStore) Read(ctx context.Context, streamID string) (Position, bool, error) {
	if streamID == "" {
		return Position{}, false, errors.New("invalid stream id: must not be empty")
	}

	payload, err := s.client.Get(ctx, keyPrefix+streamID).Bytes()
	if errors.Is(err, redis.Nil) {
		return Position{}, false, nil
	}
	if err != nil {
		return Position{}, false, fmt.Errorf("failed to read checkpoint for stream %s: %w", streamID, err)
	}

	var pos Position
	if err := json.Unmarshal(payload, &pos); err != nil {
		return Position{}, false, fmt.Errorf("failed to unmarshal checkpoint for stream %s: %w", streamID, err)
	}
	return pos, true, nil
}
