package ledger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Batcher buffers completed ids and writes them to a Ledger in batches.
// Ids staged but not yet flushed are lost on a crash; the next run then
// reprocesses them, which is safe because records are overwritten.
type Batcher struct {
	ledger    Ledger
	threshold int
	logger    *slog.Logger

	// OnFlush, if set, is called after every flush attempt
	OnFlush func(n int, err error)

	mu      sync.Mutex
	pending []string
}

// NewBatcher creates a batcher that flushes once threshold ids are
// staged. A threshold of 1 writes every id as soon as it is staged.
func NewBatcher(l Ledger, threshold int, logger *slog.Logger) *Batcher {
	if threshold < 1 {
		threshold = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Batcher{ledger: l, threshold: threshold, logger: logger}
}

// Stage adds id to the buffer and flushes when the threshold is reached.
// A returned error wraps ErrWrite.
func (b *Batcher) Stage(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append(b.pending, id)
	if len(b.pending) < b.threshold {
		return nil
	}
	return b.flushLocked(ctx)
}

// Flush writes all staged ids
func (b *Batcher) Flush(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked(ctx)
}

// Pending returns the number of staged ids not yet written
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Batcher) flushLocked(ctx context.Context) error {
	if len(b.pending) == 0 {
		return nil
	}

	n := len(b.pending)
	err := b.ledger.InsertBatch(ctx, b.pending)
	if b.OnFlush != nil {
		b.OnFlush(n, err)
	}
	if err != nil {
		if !errors.Is(err, ErrWrite) {
			err = writeError(n, err)
		}
		// keep the ids staged so a later flush can retry them
		b.logger.Error("Failed to flush ledger", "count", n, "error", err)
		return err
	}

	b.logger.Debug("Flushed ledger", "count", n)
	b.pending = nil
	return nil
}
