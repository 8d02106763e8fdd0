package prefetch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entryWith(records int, byteSize int64) *Entry {
	recs := make([]Record, records)
	return &Entry{Records: recs, byteSize: byteSize}
}

func TestCounters_AddRemove(t *testing.T) {
	t.Parallel()
	c := newCounters(100, 1000)

	e1 := entryWith(10, 200)
	e2 := entryWith(5, 300)

	c.add(e1)
	c.add(e2)
	records, bytes := c.snapshot()
	assert.Equal(t, int64(15), records)
	assert.Equal(t, int64(500), bytes)

	c.remove(e1)
	records, bytes = c.snapshot()
	assert.Equal(t, int64(5), records)
	assert.Equal(t, int64(300), bytes)

	c.remove(e2)
	records, bytes = c.snapshot()
	assert.Zero(t, records)
	assert.Zero(t, bytes)
}

func TestCounters_HasCapacity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		records int
		bytes   int64
		want    bool
	}{
		{name: "both below ceilings", records: 9, bytes: 99, want: true},
		{name: "record ceiling met", records: 10, bytes: 0, want: false},
		{name: "record ceiling exceeded", records: 11, bytes: 0, want: false},
		{name: "byte ceiling met", records: 0, bytes: 100, want: false},
		{name: "byte ceiling exceeded", records: 0, bytes: 150, want: false},
		{name: "both ceilings met", records: 10, bytes: 100, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newCounters(10, 100)
			c.add(entryWith(tt.records, tt.bytes))
			assert.Equal(t, tt.want, c.hasCapacity())
		})
	}
}

func TestCounters_AwaitCapacityUnblockedByRemove(t *testing.T) {
	t.Parallel()
	c := newCounters(10, 1000)
	e := entryWith(10, 10)
	c.add(e)
	require.False(t, c.hasCapacity())

	unblocked := make(chan struct{})
	go func() {
		c.awaitCapacity(5*time.Second, nil)
		close(unblocked)
	}()

	// Give the waiter a moment to park.
	time.Sleep(10 * time.Millisecond)
	c.remove(e)

	select {
	case <-unblocked:
	case <-time.After(2 * time.Second):
		require.Fail(t, "awaitCapacity was not woken by remove")
	}
	require.True(t, c.hasCapacity())
}

func TestCounters_AwaitCapacityTimeout(t *testing.T) {
	t.Parallel()
	c := newCounters(1, 1)
	c.add(entryWith(1, 1))

	start := time.Now()
	c.awaitCapacity(20*time.Millisecond, nil)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestCounters_AwaitCapacityReturnsImmediatelyWithSpace(t *testing.T) {
	t.Parallel()
	c := newCounters(10, 100)

	start := time.Now()
	c.awaitCapacity(time.Second, nil)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestCounters_AwaitCanceledByDone(t *testing.T) {
	t.Parallel()
	c := newCounters(1, 1)
	c.add(entryWith(1, 1))

	done := make(chan struct{})
	close(done)

	start := time.Now()
	c.awaitCapacity(5*time.Second, done)
	assert.Less(t, time.Since(start), time.Second)

	start = time.Now()
	c.awaitFreed(5*time.Second, done)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestCounters_Reset(t *testing.T) {
	t.Parallel()
	c := newCounters(10, 100)
	c.add(entryWith(7, 70))

	c.reset()
	records, bytes := c.snapshot()
	assert.Zero(t, records)
	assert.Zero(t, bytes)
	assert.True(t, c.hasCapacity())
}
