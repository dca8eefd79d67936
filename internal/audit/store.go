package audit

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps history in an append-only table; update and delete are
// rejected by triggers.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initializeSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Append(ctx context.Context, e Entry) error {
	if err := validateEntry(e); err != nil {
		return err
	}

	return s.insertEntry(ctx, e)
}

func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]Entry, error) {
	limit := int64(n)
	if n <= 0 {
		limit = math.MaxInt64
	}

	rows, err := s.db.QueryContext(ctx, querySelectRecent, limit)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initializeSchema() error {
	for _, stmt := range schemaStatements() {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("execute schema: %w", err)
		}
	}
	return stampSchemaVersion(s.db)
}

func (s *SQLiteStore) insertEntry(ctx context.Context, e Entry) error {
	const maxRetries = 3
	var err error

	ts := e.Timestamp.UTC().Format(time.RFC3339Nano)
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err = s.db.ExecContext(ctx, queryInsertEntry, ts, string(e.Action), string(e.Decision), e.Sample, e.Note)
		if err == nil {
			return nil
		}

		if strings.Contains(err.Error(), "database is locked") || strings.Contains(err.Error(), "SQLITE_BUSY") {
			time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
			continue
		}

		return fmt.Errorf("insert entry: %w", err)
	}

	return fmt.Errorf("insert entry after %d retries: %w", maxRetries, err)
}
