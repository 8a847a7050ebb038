package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// sqliteFile is the ledger database name inside the data directory
const sqliteFile = "ledger.db"

// OpenSQLite opens <dataDir>/ledger.db and runs migrations. The pool is
// limited to one connection so all writes are serialized.
func OpenSQLite(ctx context.Context, dataDir string) (*SQLStore, error) {
	dbPath := filepath.Join(dataDir, sqliteFile)
	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := migrate(ctx, db, "sqlite3"); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLStore{db: db, dialect: "sqlite3"}, nil
}
