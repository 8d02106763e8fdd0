package checkpoint

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestNewRedisStore_NilClient(t *testing.T) {
	t.Parallel()

	_, err := NewRedisStore(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid redis client")
}

func TestRedisStore_WriteRead(t *testing.T) {
	t.Parallel()

	_, client := setupTestRedis(t)
	store, err := NewRedisStore(client)
	require.NoError(t, err)

	ctx := context.Background()

	// A stream with no checkpoint reads back as absent.
	_, exists, err := store.Read(ctx, "records-0")
	require.NoError(t, err)
	assert.False(t, exists)

	pos := Position{SequenceNumber: "99", ContinuationToken: "100"}
	require.NoError(t, store.Write(ctx, "records-0", pos))

	got, exists, err := store.Read(ctx, "records-0")
	require.NoError(t, err)
	require.True(t, exists)
	assert.Equal(t, "99", got.SequenceNumber)
	assert.Equal(t, "100", got.ContinuationToken)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestRedisStore_OverwritesPreviousCheckpoint(t *testing.T) {
	t.Parallel()

	_, client := setupTestRedis(t)
	store, err := NewRedisStore(client)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Write(ctx, "records-0", Position{SequenceNumber: "1", ContinuationToken: "2"}))
	require.NoError(t, store.Write(ctx, "records-0", Position{SequenceNumber: "5", ContinuationToken: "6"}))

	got, exists, err := store.Read(ctx, "records-0")
	require.NoError(t, err)
	require.True(t, exists)
	assert.Equal(t, "5", got.SequenceNumber)
}

func TestRedisStore_StreamsAreIndependent(t *testing.T) {
	t.Parallel()

	_, client := setupTestRedis(t)
	store, err := NewRedisStore(client)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Write(ctx, "records-0", Position{SequenceNumber: "1"}))

	_, exists, err := store.Read(ctx, "records-1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRedisStore_EmptyStreamID(t *testing.T) {
	t.Parallel()

	_, client := setupTestRedis(t)
	store, err := NewRedisStore(client)
	require.NoError(t, err)

	ctx := context.Background()
	require.Error(t, store.Write(ctx, "", Position{}))
	_, _, err = store.Read(ctx, "")
	require.Error(t, err)
}

func TestRedisStore_ServerDown(t *testing.T) {
	t.Parallel()

	mr, client := setupTestRedis(t)
	store, err := NewRedisStore(client)
	require.NoError(t, err)

	mr.Close()

	ctx := context.Background()
	require.Error(t, store.Write(ctx, "records-0", Position{SequenceNumber: "1"}))
	_, _, err = store.Read(ctx, "records-0")
	require.Error(t, err)
}
