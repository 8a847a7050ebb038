package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/perbu/promptrun/internal/ledger/migrations"
)

// SQLStore is a Ledger backed by a database/sql connection. The SQLite
// and Postgres backends share it and differ only in dialect.
type SQLStore struct {
	db      *sql.DB
	dialect string // goose dialect name
}

// migrate runs the embedded goose migrations for dialect
func migrate(ctx context.Context, db *sql.DB, dialect string) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders as $n for postgres
func (s *SQLStore) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// DB exposes the underlying connection
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Contains reports whether id has been recorded
func (s *SQLStore) Contains(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT 1 FROM completed_tasks WHERE id = ?
	`), id).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to query ledger: %w", err)
	}
	return true, nil
}

// InsertBatch records ids in a single transaction. Ids already present
// keep their original completion time.
func (s *SQLStore) InsertBatch(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return writeError(len(ids), fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.rebind(`
		INSERT INTO completed_tasks (id, completed_at)
		VALUES (?, ?)
		ON CONFLICT (id) DO NOTHING
	`))
	if err != nil {
		return writeError(len(ids), fmt.Errorf("failed to prepare insert: %w", err))
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id, now); err != nil {
			return writeError(len(ids), fmt.Errorf("failed to insert %s: %w", id, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return writeError(len(ids), fmt.Errorf("failed to commit: %w", err))
	}
	return nil
}

// List returns all entries, oldest first
func (s *SQLStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, completed_at
		FROM completed_tasks
		ORDER BY completed_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Forget removes ids and returns how many were present
func (s *SQLStore) Forget(ctx context.Context, ids []string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	removed := 0
	for _, id := range ids {
		result, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM completed_tasks WHERE id = ?`), id)
		if err != nil {
			return 0, fmt.Errorf("failed to forget %s: %w", id, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get rows affected: %w", err)
		}
		removed += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return removed, nil
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}
