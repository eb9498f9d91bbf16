// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	embeddedmigrations "github.com/awareness-market/golem-sessions/migrations"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Advisory lock serializing schema bootstrap across replicas ("GOLEM_MG").
const schemaMigrationLockID int64 = 0x474f4c454d5f4d47

var requiredTables = []string{"sessions", "session_events"}

var requiredColumns = []struct {
	table  string
	column string
}{
	{"sessions", "session_type"},
	{"session_events", "ts"},
	{"session_events", "payload"},
}

// SchemaHealthChecker exposes schema readiness as a transport health check.
type SchemaHealthChecker struct {
	pool *pgxpool.Pool
}

func NewSchemaHealthChecker(pool *pgxpool.Pool) *SchemaHealthChecker {
	return &SchemaHealthChecker{pool: pool}
}

func (h *SchemaHealthChecker) Check(ctx context.Context) error {
	return SchemaReady(ctx, h.pool)
}

// EnsureSchema applies any embedded migrations not yet recorded in
// schema_migrations, holding an advisory lock so concurrent replicas do not
// race each other, then verifies the resulting schema.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	if pool == nil {
		return errors.New("nil database pool")
	}
	if logger == nil {
		logger = slog.Default()
	}

	started := time.Now()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection for schema bootstrap: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, schemaMigrationLockID); err != nil {
		return fmt.Errorf("acquire schema bootstrap lock: %w", err)
	}
	defer func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.Exec(unlockCtx, `SELECT pg_advisory_unlock($1)`, schemaMigrationLockID); err != nil {
			logger.Error("schema bootstrap unlock failed", "error", err)
		}
	}()

	if _, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	all, err := embeddedmigrations.Ordered()
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	if len(all) == 0 {
		return errors.New("no embedded migrations found")
	}

	applied := 0
	for _, m := range all {
		var done bool
		if err := conn.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`,
			m.Name,
		).Scan(&done); err != nil {
			return fmt.Errorf("check migration %s: %w", m.Name, err)
		}
		if done {
			continue
		}

		logger.Info("applying migration", "file", m.Name)
		if err := applyMigration(ctx, conn, m); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.Name, err)
		}
		applied++
	}

	logger.Info("schema bootstrap complete",
		"applied", applied,
		"skipped", len(all)-applied,
		"duration_ms", time.Since(started).Milliseconds(),
	)

	return SchemaReady(ctx, pool)
}

// applyMigration runs one migration and records it inside the same
// transaction, so a failed script leaves no record behind.
func applyMigration(ctx context.Context, conn *pgxpool.Conn, m embeddedmigrations.Migration) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// Simple protocol: migration scripts contain multiple statements.
	if _, err := tx.Exec(ctx, m.SQL, pgx.QueryExecModeSimpleProtocol); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO schema_migrations (filename) VALUES ($1)`, m.Name); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// SchemaReady verifies the tables and columns this service queries actually
// exist, catching a database that was provisioned by an older build.
func SchemaReady(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return errors.New("nil database pool")
	}

	var missing []string
	for _, table := range requiredTables {
		var rel *string
		if err := pool.QueryRow(ctx, `SELECT to_regclass($1)`, "public."+table).Scan(&rel); err != nil {
			return fmt.Errorf("check table %s: %w", table, err)
		}
		if rel == nil || strings.TrimSpace(*rel) == "" {
			missing = append(missing, table)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("required tables missing: %s", strings.Join(missing, ", "))
	}

	for _, rc := range requiredColumns {
		var exists bool
		if err := pool.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1
				FROM information_schema.columns
				WHERE table_schema = 'public'
				  AND table_name = $1
				  AND column_name = $2
			)
		`, rc.table, rc.column).Scan(&exists); err != nil {
			return fmt.Errorf("check column %s.%s: %w", rc.table, rc.column, err)
		}
		if !exists {
			missing = append(missing, rc.table+"."+rc.column)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("required columns missing: %s", strings.Join(missing, ", "))
	}

	return nil
}
