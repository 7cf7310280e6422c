/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package audit

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/go-logr/logr"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testConnStr string

func TestMain(m *testing.M) {
	flag.Parse()

	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("nodecore_audit_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
		os.Exit(1)
	}

	testConnStr, err = container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get connection string: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	if err := container.Terminate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to terminate container: %v\n", err)
	}

	os.Exit(code)
}

func TestNewMigrator_InvalidConnection(t *testing.T) {
	_, err := NewMigrator("postgres://invalid:5432/nonexistent?sslmode=disable&connect_timeout=1", logr.Discard())
	assert.Error(t, err)
}

func TestMigrator_UpDownAndTableExists(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	mg, err := NewMigrator(testConnStr, logr.Discard())
	require.NoError(t, err)
	defer func() { _ = mg.Close() }()

	require.NoError(t, mg.Up())
	require.NoError(t, mg.Up(), "Up should be idempotent")

	db, err := sql.Open("pgx", testConnStr)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	var exists bool
	err = db.QueryRow(`SELECT EXISTS (
		SELECT 1 FROM pg_class c JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE c.relname = 'audit_log' AND n.nspname = 'public')`).Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists, "audit_log table should exist after Up")

	require.NoError(t, mg.Down())

	err = db.QueryRow(`SELECT EXISTS (
		SELECT 1 FROM pg_class c JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE c.relname = 'audit_log' AND n.nspname = 'public')`).Scan(&exists)
	require.NoError(t, err)
	assert.False(t, exists, "audit_log table should not exist after Down")
}
