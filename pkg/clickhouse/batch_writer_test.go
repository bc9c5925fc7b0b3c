package clickhouse

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flushRecorder struct {
	mu      sync.Mutex
	batches [][]int
}

func (r *flushRecorder) flush(_ context.Context, batch []int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, batch)
	return nil
}

func (r *flushRecorder) batchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func (r *flushRecorder) totalRows() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, b := range r.batches {
		total += len(b)
	}
	return total
}

func TestBatchWriter_FlushesWhenFull(t *testing.T) {
	rec := &flushRecorder{}
	bw := NewBatchWriter[int](Config{Table: "test", MaxBatchSize: 3, MaxAge: time.Hour}, rec.flush)

	ctx := context.Background()
	require.NoError(t, bw.Add(ctx, 1))
	require.NoError(t, bw.Add(ctx, 2))
	assert.Equal(t, 0, rec.batchCount())

	require.NoError(t, bw.Add(ctx, 3))

	assert.Equal(t, 1, rec.batchCount())
	assert.Equal(t, 3, rec.totalRows())
	assert.Equal(t, 0, bw.BufferSize())
}

func TestBatchWriter_PeriodicFlush(t *testing.T) {
	rec := &flushRecorder{}
	bw := NewBatchWriter[int](Config{Table: "test", MaxBatchSize: 100, MaxAge: 50 * time.Millisecond}, rec.flush)

	ctx := context.Background()
	bw.Start(ctx)
	defer bw.Stop(ctx)

	require.NoError(t, bw.Add(ctx, 1))
	require.NoError(t, bw.Add(ctx, 2))

	time.Sleep(150 * time.Millisecond)

	assert.GreaterOrEqual(t, rec.batchCount(), 1)
	assert.Equal(t, 2, rec.totalRows())
}

func TestBatchWriter_StopDrainsBuffer(t *testing.T) {
	rec := &flushRecorder{}
	bw := NewBatchWriter[int](Config{Table: "test", MaxBatchSize: 100, MaxAge: time.Hour}, rec.flush)

	ctx := context.Background()
	bw.Start(ctx)

	require.NoError(t, bw.Add(ctx, 1))
	require.NoError(t, bw.Add(ctx, 2))

	require.NoError(t, bw.Stop(ctx))

	assert.Equal(t, 2, rec.totalRows())
}

func TestBatchWriter_FlushEmptyIsNoop(t *testing.T) {
	rec := &flushRecorder{}
	bw := NewBatchWriter[int](Config{Table: "test"}, rec.flush)

	require.NoError(t, bw.Flush(context.Background()))
	assert.Equal(t, 0, rec.batchCount())
}
