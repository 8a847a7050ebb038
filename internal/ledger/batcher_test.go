package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyLedger fails InsertBatch calls whose 1-based index is in failOn
type flakyLedger struct {
	*Memory
	mu      sync.Mutex
	calls   int
	failOn  map[int]bool
	batches [][]string
}

func (f *flakyLedger) InsertBatch(ctx context.Context, ids []string) error {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.batches = append(f.batches, append([]string(nil), ids...))
	f.mu.Unlock()

	if f.failOn[call] {
		return errors.New("connection refused")
	}
	return f.Memory.InsertBatch(ctx, ids)
}

func TestBatcher_Threshold(t *testing.T) {
	ctx := context.Background()
	l := &flakyLedger{Memory: NewMemory()}
	b := NewBatcher(l, 3, nil)

	for i := 1; i <= 7; i++ {
		require.NoError(t, b.Stage(ctx, fmt.Sprintf("t%d", i)))
	}
	assert.Equal(t, 6, l.Len(), "two full batches flushed")
	assert.Equal(t, 1, b.Pending())

	require.NoError(t, b.Flush(ctx))
	assert.Equal(t, 7, l.Len())
	assert.Equal(t, 0, b.Pending())
	assert.Equal(t, [][]string{{"t1", "t2", "t3"}, {"t4", "t5", "t6"}, {"t7"}}, l.batches)

	// nothing staged means nothing written
	require.NoError(t, b.Flush(ctx))
	assert.Len(t, l.batches, 3)
}

func TestBatcher_PerSuccess(t *testing.T) {
	ctx := context.Background()
	l := &flakyLedger{Memory: NewMemory()}
	b := NewBatcher(l, 1, nil)

	require.NoError(t, b.Stage(ctx, "a"))
	ok, err := l.Contains(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok, "threshold 1 writes immediately")
	assert.Equal(t, 0, b.Pending())
}

func TestBatcher_ZeroThresholdMeansOne(t *testing.T) {
	l := NewMemory()
	b := NewBatcher(l, 0, nil)
	require.NoError(t, b.Stage(context.Background(), "a"))
	assert.Equal(t, 1, l.Len())
}

func TestBatcher_FailureKeepsIDs(t *testing.T) {
	ctx := context.Background()
	l := &flakyLedger{Memory: NewMemory(), failOn: map[int]bool{1: true}}
	b := NewBatcher(l, 2, nil)

	var flushes []error
	b.OnFlush = func(n int, err error) {
		assert.Equal(t, 2, n)
		flushes = append(flushes, err)
	}

	require.NoError(t, b.Stage(ctx, "a"))
	err := b.Stage(ctx, "b")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWrite)
	assert.Equal(t, 2, b.Pending(), "failed ids stay staged")
	assert.Equal(t, 0, l.Len())

	require.NoError(t, b.Flush(ctx))
	assert.Equal(t, 2, l.Len())
	require.Len(t, flushes, 2)
	assert.Error(t, flushes[0])
	assert.NoError(t, flushes[1])
}

func TestBatcher_Concurrent(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()
	b := NewBatcher(l, 10, nil)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, b.Stage(ctx, fmt.Sprintf("t%03d", i)))
		}(i)
	}
	wg.Wait()
	require.NoError(t, b.Flush(ctx))
	assert.Equal(t, 100, l.Len())
}

// TestBatcher_CrashResume stages twelve ids with a threshold of ten and
// stops without a final flush, as a process killed mid-run would.
func TestBatcher_CrashResume(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()
	b := NewBatcher(l, 10, nil)

	for i := 1; i <= 12; i++ {
		require.NoError(t, b.Stage(ctx, fmt.Sprintf("t%02d", i)))
	}

	for i := 1; i <= 12; i++ {
		id := fmt.Sprintf("t%02d", i)
		ok, err := l.Contains(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, i <= 10, ok, "Contains(%q)", id)
	}
	assert.Equal(t, 2, b.Pending())
}
