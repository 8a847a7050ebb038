// Package ledger records which task ids have durably completed so that a
// re-run skips them.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/perbu/promptrun/internal/config"
)

// ErrWrite marks a failure to persist completed ids. It is fatal to a run.
var ErrWrite = errors.New("ledger write failed")

// Entry is one completed task id
type Entry struct {
	ID          string    `json:"id"`
	CompletedAt time.Time `json:"completed_at"`
}

// Ledger is a durable set of completed task ids. InsertBatch is idempotent
// and order-independent; implementations are safe for concurrent use.
type Ledger interface {
	Contains(ctx context.Context, id string) (bool, error)
	InsertBatch(ctx context.Context, ids []string) error
	List(ctx context.Context) ([]Entry, error)
	Forget(ctx context.Context, ids []string) (int, error)
	Close() error
}

// Open opens the ledger backend selected by config
func Open(ctx context.Context, cfg *config.Config) (Ledger, error) {
	switch cfg.Ledger.Backend {
	case config.LedgerSQLite:
		if err := cfg.EnsureDataDir(); err != nil {
			return nil, err
		}
		return OpenSQLite(ctx, cfg.DataDir)
	case config.LedgerPostgres:
		dsn := cfg.GetPostgresDSN()
		if dsn == "" {
			return nil, fmt.Errorf("postgres DSN not found in config or environment variable: %s", cfg.Ledger.PostgresDSNEnv)
		}
		return OpenPostgres(ctx, dsn)
	case config.LedgerRedis:
		return OpenRedis(ctx, RedisOptions{
			Addr:     cfg.Ledger.RedisAddr,
			Password: cfg.Ledger.RedisPassword,
			DB:       cfg.Ledger.RedisDB,
			Prefix:   cfg.Ledger.RedisPrefix,
		})
	case config.LedgerMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown ledger backend: %q", cfg.Ledger.Backend)
	}
}

// writeError wraps err so that errors.Is(err, ErrWrite) holds
func writeError(n int, err error) error {
	return fmt.Errorf("%w: failed to insert %d id(s): %w", ErrWrite, n, err)
}
