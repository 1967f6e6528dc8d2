package data

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const (
	DataFileName = "data.db"

	schemaVersion = 1
	dirMode       = 0700
)

var (
	//go:embed sql/*
	f embed.FS

	errDBNotInitialized = errors.New("database not initialized")
)

// Init creates the database file if needed and applies the schema.
// Safe to call on an existing database.
func Init(dbFilePath string) error {
	if dbFilePath == "" {
		return errors.New("dbFilePath not specified")
	}

	if dir := filepath.Dir(dbFilePath); dir != "" {
		if err := os.MkdirAll(dir, dirMode); err != nil {
			return fmt.Errorf("creating database dir %s: %w", dir, err)
		}
	}

	db, err := GetDB(dbFilePath)
	if err != nil {
		return fmt.Errorf("opening database %s: %w", dbFilePath, err)
	}
	defer db.Close()

	b, err := f.ReadFile("sql/ddl.sql")
	if err != nil {
		return fmt.Errorf("reading schema file: %w", err)
	}
	if _, err := db.Exec(string(b)); err != nil {
		return fmt.Errorf("creating database schema in %s: %w", dbFilePath, err)
	}

	if _, err := db.Exec(`INSERT OR IGNORE INTO schema_version (version, applied_at) VALUES (?, ?)`,
		schemaVersion, time.Now().UTC().Unix()); err != nil {
		return fmt.Errorf("recording schema version: %w", err)
	}

	slog.Debug("db initialized", "path", dbFilePath, "version", schemaVersion)
	return nil
}

// GetDB opens the sqlite database at path.
func GetDB(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	return conn, nil
}
