// Package migrations applies the embedded SQLite schema.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/*.sql
var schemaFiles embed.FS

// ErrNoVersion is returned by CheckStatus for a database that has never been set up.
var ErrNoVersion = errors.New("database has no schema version")

// CheckStatus returns nil when db is at the schema version embedded in this binary.
func CheckStatus(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}
	// m is not closed: closing it would close db, which the caller owns.

	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return ErrNoVersion
		}
		return fmt.Errorf("reading schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("schema version %d is dirty", version)
	}

	latest, err := LatestVersion()
	if err != nil {
		return err
	}

	switch {
	case version < latest:
		return fmt.Errorf("schema version %d is behind %d", version, latest)
	case version > latest:
		return fmt.Errorf("schema version %d is newer than this binary (%d)", version, latest)
	}
	return nil
}

// Up applies every pending schema file. Already up to date is not an error.
func Up(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

// LatestVersion returns the highest schema version embedded in the binary.
func LatestVersion() (uint, error) {
	src, err := iofs.New(schemaFiles, "files")
	if err != nil {
		return 0, fmt.Errorf("reading schema files: %w", err)
	}
	defer src.Close()
	return lastVersion(src)
}

func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(schemaFiles, "files")
	if err != nil {
		return nil, fmt.Errorf("reading schema files: %w", err)
	}

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("creating sqlite3 schema driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("creating schema runner: %w", err)
	}
	return m, nil
}

func lastVersion(src source.Driver) (uint, error) {
	version, err := src.First()
	if err != nil {
		return 0, err
	}
	for {
		next, err := src.Next(version)
		if err != nil {
			return version, nil
		}
		version = next
	}
}
