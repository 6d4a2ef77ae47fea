package store

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// Migrate applies the embedded migrations for the store's dialect.
// direction is "up" or "down"; steps <= 0 means all.
func (s *Store) Migrate(direction string, steps int) error {
	if direction != "up" && direction != "down" {
		return fmt.Errorf("store: unknown migration direction: %s", direction)
	}

	src, err := iofs.New(migrationsFS, "migrations/"+string(s.dialect))
	if err != nil {
		return fmt.Errorf("store: load migrations: %w", err)
	}

	var m *migrate.Migrate
	switch s.dialect {
	case DialectPostgres:
		// Postgres migrations get their own connection, closed afterwards.
		m, err = migrate.NewWithSourceInstance("iofs", src, s.dsn)
		if err != nil {
			return fmt.Errorf("store: init migrate: %w", err)
		}
		defer m.Close()
	case DialectSQLite:
		// m shares s.DB and stays open; closing it would close the store.
		drv, derr := sqlitemigrate.WithInstance(s.DB, &sqlitemigrate.Config{})
		if derr != nil {
			return fmt.Errorf("store: init migrate driver: %w", derr)
		}
		m, err = migrate.NewWithInstance("iofs", src, "sqlite", drv)
		if err != nil {
			return fmt.Errorf("store: init migrate: %w", err)
		}
	default:
		return fmt.Errorf("store: unsupported dialect %q", s.dialect)
	}

	switch {
	case direction == "up" && steps > 0:
		err = m.Steps(steps)
	case direction == "up":
		err = m.Up()
	case steps > 0:
		err = m.Steps(-steps)
	default:
		err = m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: migrate %s: %w", direction, err)
	}
	return nil
}
