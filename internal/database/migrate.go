package database

import (
	"database/sql"
	"fmt"
	"log"
)

// NewerSchemaError is returned by Open when the store was written by a build
// with migrations this one does not know about.
type NewerSchemaError struct {
	Found, Known int
}

func (e *NewerSchemaError) Error() string {
	return fmt.Sprintf("run store schema v%d is newer than this build (v%d)", e.Found, e.Known)
}

func getSchemaVersion(conn *sql.DB) (int, error) {
	var version int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// migrate applies every pending step in order and returns how many ran.
// The serve and watch commands may open the same file from different
// builds, so a store ahead of latestVersion is refused rather than written.
func migrate(conn *sql.DB) (int, error) {
	current, err := getSchemaVersion(conn)
	if err != nil {
		return 0, err
	}
	latest := latestVersion()
	if current > latest {
		return 0, &NewerSchemaError{Found: current, Known: latest}
	}

	applied := 0
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := applyMigration(conn, m); err != nil {
			return applied, err
		}
		applied++
	}
	if applied > 0 {
		log.Printf("Run store schema v%d -> v%d (%d step(s))", current, latest, applied)
	}
	return applied, nil
}

func applyMigration(conn *sql.DB, m Migration) error {
	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	if err := m.Up(tx); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.Version, err)
	}

	// modernc/sqlite drops user_version writes made inside a transaction.
	// Every Up uses IF NOT EXISTS, so a crash before this line re-runs cleanly.
	if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
		return fmt.Errorf("recording schema v%d: %w", m.Version, err)
	}
	return nil
}
