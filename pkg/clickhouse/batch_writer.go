package clickhouse

import (
	"context"
	"sync"
	"time"

	"poolvault/pkg/logger"
)

// FlushFunc performs the actual INSERT for one accumulated batch
type FlushFunc[T any] func(ctx context.Context, batch []T) error

// Config configures a BatchWriter
type Config struct {
	Table        string
	MaxBatchSize int           // flush when the buffer reaches this size, default 500
	MaxAge       time.Duration // flush when the oldest item exceeds this age, default 5s
}

// BatchWriter accumulates rows in memory and flushes them to ClickHouse
// in batches. Single-row inserts are pathological for ClickHouse; every
// append-only stream goes through one of these.
type BatchWriter[T any] struct {
	flush FlushFunc[T]
	cfg   Config
	log   *logger.Logger

	mu        sync.Mutex
	buffer    []T
	lastFlush time.Time

	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewBatchWriter creates a batch writer for one table
func NewBatchWriter[T any](cfg Config, flush FlushFunc[T]) *BatchWriter[T] {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 500
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 5 * time.Second
	}

	return &BatchWriter[T]{
		flush:     flush,
		cfg:       cfg,
		buffer:    make([]T, 0, cfg.MaxBatchSize),
		lastFlush: time.Now(),
		stopCh:    make(chan struct{}),
		log:       logger.Get().With("component", "batch_writer", "table", cfg.Table),
	}
}

// Start begins the background age-based flush loop
func (bw *BatchWriter[T]) Start(ctx context.Context) {
	bw.mu.Lock()
	if bw.running {
		bw.mu.Unlock()
		return
	}
	bw.running = true
	bw.mu.Unlock()

	bw.wg.Add(1)
	go bw.flushLoop(ctx)
}

// Add buffers one row, flushing immediately when the buffer is full
func (bw *BatchWriter[T]) Add(ctx context.Context, item T) error {
	bw.mu.Lock()
	bw.buffer = append(bw.buffer, item)
	full := len(bw.buffer) >= bw.cfg.MaxBatchSize
	bw.mu.Unlock()

	if full {
		return bw.Flush(ctx)
	}
	return nil
}

// Flush writes all buffered rows
func (bw *BatchWriter[T]) Flush(ctx context.Context) error {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return nil
	}

	batch := bw.buffer
	bw.buffer = make([]T, 0, bw.cfg.MaxBatchSize)
	bw.lastFlush = time.Now()
	bw.mu.Unlock()

	// Insert outside the lock so Add never blocks on ClickHouse
	start := time.Now()
	if err := bw.flush(ctx, batch); err != nil {
		bw.log.Errorw("Batch flush failed", "rows", len(batch), "error", err)
		return err
	}

	bw.log.Debugw("Batch flushed", "rows", len(batch), "duration", time.Since(start))
	return nil
}

func (bw *BatchWriter[T]) flushLoop(ctx context.Context) {
	defer bw.wg.Done()

	ticker := time.NewTicker(bw.cfg.MaxAge)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			bw.finalFlush()
			return
		case <-bw.stopCh:
			bw.finalFlush()
			return
		case <-ticker.C:
			if err := bw.Flush(ctx); err != nil {
				bw.log.Errorw("Periodic flush failed", "error", err)
			}
		}
	}
}

// finalFlush drains the buffer on shutdown with a fresh context since
// the run context is already cancelled
func (bw *BatchWriter[T]) finalFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := bw.Flush(ctx); err != nil {
		bw.log.Errorw("Final flush failed", "error", err)
	}
}

// Stop drains remaining rows and waits for the flush loop to exit
func (bw *BatchWriter[T]) Stop(ctx context.Context) error {
	bw.mu.Lock()
	if !bw.running {
		bw.mu.Unlock()
		return nil
	}
	bw.running = false
	bw.mu.Unlock()

	close(bw.stopCh)

	done := make(chan struct{})
	go func() {
		bw.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		bw.log.Warn("Batch writer stop timed out")
		return ctx.Err()
	}
}

// BufferSize returns the current buffer size
func (bw *BatchWriter[T]) BufferSize() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}
