/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package odx

import (
	"embed"
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // postgres driver for migrate
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrator manages the odx_entries schema using embedded SQL migration
// files, the same embed.FS + iofs + golang-migrate shape the audit log
// uses for its own schema.
type Migrator struct {
	m   *migrate.Migrate
	log logr.Logger
}

// NewMigrator creates a Migrator from a PostgreSQL connection string.
func NewMigrator(connString string, log logr.Logger) (*Migrator, error) {
	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("odx: migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, connString)
	if err != nil {
		return nil, fmt.Errorf("odx: new migrator: %w", err)
	}
	return &Migrator{m: m, log: log}, nil
}

// Up applies all pending migrations.
func (mg *Migrator) Up() error {
	mg.log.Info("applying odx index migrations")
	if err := mg.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("odx: applying migrations: %w", err)
	}
	v, dirty, _ := mg.m.Version()
	mg.log.Info("odx index migrations applied", "version", v, "dirty", dirty)
	return nil
}

// Down rolls back all applied migrations.
func (mg *Migrator) Down() error {
	if err := mg.m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("odx: rolling back migrations: %w", err)
	}
	return nil
}

// Close releases the migrator's underlying database connection.
func (mg *Migrator) Close() error {
	srcErr, dbErr := mg.m.Close()
	if dbErr != nil {
		return fmt.Errorf("odx: closing migrator: %w", dbErr)
	}
	return srcErr
}
