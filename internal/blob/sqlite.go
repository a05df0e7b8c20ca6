package blob

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added updated_seq column for write ordering diagnostics
const currentSchemaVersion = 1

// SQLite stores blobs as rows of a single table.
// Uses WAL mode so the inspect command can read while a tracker writes.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - FULL synchronous mode (a written batch must survive power loss)
//   - 5-second busy timeout for lock contention
//
// This function is idempotent - safe to call multiple times.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// migrateToV1 adds the updated_seq column, bumped on every write.
func migrateToV1(db *sql.DB) error {
	var count int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM pragma_table_info('blobs') WHERE name = 'updated_seq'",
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	if count > 0 {
		return nil
	}
	if _, err := db.Exec("ALTER TABLE blobs ADD COLUMN updated_seq INTEGER NOT NULL DEFAULT 0"); err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

func (s *SQLite) Exists(ctx context.Context, addr Address) (bool, error) {
	if err := addr.Validate(); err != nil {
		return false, err
	}
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM blobs WHERE name = ? AND idx = ?", addr.Name, addr.Index,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", addr, err)
	}
	return true, nil
}

func (s *SQLite) Create(ctx context.Context, addr Address) error {
	if err := addr.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blobs (name, idx, data)
		VALUES (?, ?, x'')
		ON CONFLICT(name, idx) DO NOTHING
	`, addr.Name, addr.Index)
	if err != nil {
		return fmt.Errorf("create %s: %w", addr, err)
	}
	return nil
}

func (s *SQLite) Write(ctx context.Context, addr Address, data []byte) error {
	if err := addr.Validate(); err != nil {
		return err
	}
	if data == nil {
		data = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blobs (name, idx, data, updated_seq)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(name, idx) DO UPDATE SET
			data = excluded.data,
			updated_seq = blobs.updated_seq + 1
	`, addr.Name, addr.Index, data)
	if err != nil {
		return fmt.Errorf("write %s: %w", addr, err)
	}
	return nil
}

func (s *SQLite) Read(ctx context.Context, addr Address) ([]byte, error) {
	if err := addr.Validate(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM blobs WHERE name = ? AND idx = ?", addr.Name, addr.Index,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read %s: %w", addr, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", addr, err)
	}
	return data, nil
}

func (s *SQLite) Remove(ctx context.Context, addr Address) error {
	if err := addr.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM blobs WHERE name = ? AND idx = ?", addr.Name, addr.Index,
	)
	if err != nil {
		return fmt.Errorf("remove %s: %w", addr, err)
	}
	return nil
}

// Count returns the number of blobs stored under name, bookkeeping included.
func (s *SQLite) Count(ctx context.Context, name string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM blobs WHERE name = ?", name).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", name, err)
	}
	return n, nil
}
