/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

// Command nodectl is an operator CLI for a running node: it inspects the
// durable state a noded instance persists (root identity, audit chain
// integrity) without joining the daemon's own lifecycle. It contains no
// component logic of its own, only dispatch to the packages that do.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veilmesh/nodecore/internal/audit"
	"github.com/veilmesh/nodecore/internal/keyidentity"
	"github.com/veilmesh/nodecore/internal/keyvault"
	"github.com/veilmesh/nodecore/pkg/logging"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return usageError()
	}

	log, syncLog, err := logging.NewLogger()
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer syncLog()

	switch args[0] {
	case "identity":
		return runIdentity(args[1:])
	case "audit":
		return runAudit(args[1:], log)
	default:
		return usageError()
	}
}

func usageError() error {
	fmt.Fprintln(os.Stderr, "usage: nodectl <identity|audit> [flags]")
	fmt.Fprintln(os.Stderr, "  identity -keyvault-provider=local-dev-enclave         print the node's DID")
	fmt.Fprintln(os.Stderr, "  audit -postgres-conn=... verify                      verify the audit chain")
	return fmt.Errorf("no subcommand given")
}

func runIdentity(args []string) error {
	fs := flag.NewFlagSet("identity", flag.ExitOnError)
	providerType := fs.String("keyvault-provider", "local-dev-enclave", "Envelope-encryption backend the node was run with")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	provider, err := keyvault.NewProvider(ctx, keyvault.ProviderConfig{ProviderType: keyvault.ProviderType(*providerType)})
	if err != nil {
		return fmt.Errorf("creating keyvault provider: %w", err)
	}
	storage := keyvault.NewStorage(provider)
	core := keyidentity.New(storage, nil, keyidentity.DefaultRotationPolicy())

	did, err := core.NodeDID(ctx)
	if err != nil {
		return fmt.Errorf("resolving node identity: %w", err)
	}
	fmt.Println(did)
	return nil
}

func runAudit(args []string, log logr.Logger) error {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	postgresConn := fs.String("postgres-conn", "", "Postgres connection string for the audit log")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) != 1 || fs.Args()[0] != "verify" {
		fmt.Fprintln(os.Stderr, "usage: nodectl audit -postgres-conn=... verify")
		return fmt.Errorf("unrecognized audit subcommand")
	}
	if *postgresConn == "" {
		return fmt.Errorf("-postgres-conn is required")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, *postgresConn)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pool.Close()

	logger := audit.NewLogger(pool, "nodectl", log, nil, audit.LoggerConfig{})
	defer func() { _ = logger.Close() }()

	result, err := logger.VerifyIntegrity(ctx)
	if err != nil {
		return fmt.Errorf("verifying audit chain: %w", err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if !result.OK {
		os.Exit(1)
	}
	return nil
}
