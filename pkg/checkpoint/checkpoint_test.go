package checkpoint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Write(ctx context.Context, streamID string, pos Position) error {
	args := m.Called(ctx, streamID, pos)
	return args.Error(0)
}

func (m *mockStore) Read(ctx context.Context, streamID string) (Position, bool, error) {
	args := m.Called(ctx, streamID)
	return args.Get(0).(Position), args.Bool(1), args.Error(2)
}

func fixedPosition(pos Position, ok bool) PositionFunc {
	return func() (Position, bool) {
		return pos, ok
	}
}

func TestStart_WritesAndCancels(t *testing.T) {
	t.Parallel()

	pos := Position{SequenceNumber: "41", ContinuationToken: "42"}
	store := &mockStore{}

	written := make(chan struct{}, 1)
	store.
		On("Write", mock.Anything, "records-0", pos).
		Run(func(_ mock.Arguments) {
			select {
			case written <- struct{}{}:
			default:
			}
		}).
		Return(nil)

	cfg := Config{
		Interval:     10 * time.Millisecond,
		WriteTimeout: 1 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 300 * time.Millisecond,
	}

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- Start(ctx, zap.NewNop().Sugar(), fixedPosition(pos, true), store, cfg, "records-0")
	}()

	select {
	case <-written:
		cancel()
	case <-time.After(500 * time.Millisecond):
		require.Fail(t, "timeout waiting for checkpoint write")
	}

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(500 * time.Millisecond):
		require.Fail(t, "timeout waiting for scheduler to exit")
	}
}

func TestStart_SkipsWhenNothingDelivered(t *testing.T) {
	t.Parallel()

	store := &mockStore{}

	cfg := Config{
		Interval:     5 * time.Millisecond,
		WriteTimeout: 1 * time.Second,
		MaxRetries:   0,
		RetryBackoff: 1 * time.Millisecond,
	}

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	err := Start(ctx, zap.NewNop().Sugar(), fixedPosition(Position{}, false), store, cfg, "records-0")
	require.NoError(t, err)
	store.AssertNotCalled(t, "Write", mock.Anything, mock.Anything, mock.Anything)
}

func TestStart_ErrorPropagatesAfterRetries(t *testing.T) {
	t.Parallel()

	pos := Position{SequenceNumber: "7", ContinuationToken: "8"}
	store := &mockStore{}
	writeErr := errors.New("write failed")
	store.
		On("Write", mock.Anything, "records-0", pos).
		Return(writeErr).
		Times(4) // initial try + 3 retries

	cfg := Config{
		Interval:     5 * time.Millisecond,
		WriteTimeout: 1 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 1 * time.Millisecond,
	}

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	gotErr := Start(ctx, zap.NewNop().Sugar(), fixedPosition(pos, true), store, cfg, "records-0")
	require.ErrorIs(t, gotErr, writeErr)
	store.AssertExpectations(t)
}
