package audit

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// historySchemaVersion is stamped into PRAGMA user_version. A database
// written by a newer build is refused rather than appended to.
const historySchemaVersion = 1

var ErrSchemaTooNew = errors.New("history database schema is newer than this build")

// openDatabase opens the history database. Samples are clipboard content, so
// the directory and file are private to the owner.
func openDatabase(dbPath string) (*sql.DB, error) {
	if err := preparePrivateFile(dbPath); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	// One logger goroutine writes; readers come from /history and the CLI.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping history database: %w", err)
	}

	if err := configureSQLite(db); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := schemaVersion(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func configureSQLite(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
		// Freed pages are zeroed so dropped samples do not linger on disk.
		"PRAGMA secure_delete=ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute pragma %q: %w", pragma, err)
		}
	}

	return nil
}

// schemaVersion returns the stamped version, 0 for a fresh file.
func schemaVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	if v > historySchemaVersion {
		return v, fmt.Errorf("%w: found v%d, support v%d", ErrSchemaTooNew, v, historySchemaVersion)
	}
	return v, nil
}

func stampSchemaVersion(db *sql.DB) error {
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", historySchemaVersion)); err != nil {
		return fmt.Errorf("stamp schema version: %w", err)
	}
	return nil
}

func preparePrivateFile(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}

	f, err := os.OpenFile(dbPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("create history database: %w", err)
	}
	f.Close()

	if err := os.Chmod(dbPath, 0o600); err != nil {
		return fmt.Errorf("restrict history database: %w", err)
	}
	return nil
}
