// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	embeddedmigrations "github.com/adiadia/approval-engine/migrations"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaMigrationLockID int64 = 0x4150525f4d494752 // "APR_MIGR"

type requirementKind string

const (
	kindTable         requirementKind = "table"
	kindColumn        requirementKind = "column"
	kindPartialUnique requirementKind = "partial unique index"
)

// schemaRequirement is one object the engine relies on. Purpose names the
// behaviour that breaks without it and is reported when it is missing.
type schemaRequirement struct {
	Kind    requirementKind
	Table   string
	Name    string
	Purpose string
}

func (r schemaRequirement) String() string {
	switch r.Kind {
	case kindColumn:
		return fmt.Sprintf("column %s.%s (%s)", r.Table, r.Name, r.Purpose)
	case kindTable:
		return fmt.Sprintf("table %s (%s)", r.Name, r.Purpose)
	default:
		return fmt.Sprintf("%s %s on %s (%s)", r.Kind, r.Name, r.Table, r.Purpose)
	}
}

var schemaRequirements = []schemaRequirement{
	{Kind: kindTable, Name: "employee_directory", Purpose: "display names and departments"},
	{Kind: kindTable, Name: "approval_lines", Purpose: "line templates"},
	{Kind: kindTable, Name: "approval_line_steps", Purpose: "line template steps"},
	{Kind: kindTable, Name: "approval_documents", Purpose: "documents"},
	{Kind: kindTable, Name: "approval_steps", Purpose: "step ledgers"},
	{Kind: kindTable, Name: "approval_events", Purpose: "audit trail"},
	{Kind: kindTable, Name: "approval_number_counters", Purpose: "per-year approval numbers"},

	{Kind: kindColumn, Table: "approval_documents", Name: "version", Purpose: "lost-update detection"},
	{Kind: kindColumn, Table: "approval_documents", Name: "current_approver_id", Purpose: "pending box"},
	{Kind: kindColumn, Table: "approval_steps", Name: "action", Purpose: "step state"},
	{Kind: kindColumn, Table: "approval_events", Name: "seq", Purpose: "audit ordering"},

	{
		Kind:    kindPartialUnique,
		Table:   "approval_steps",
		Name:    "approval_steps_single_active_idx",
		Purpose: "at most one ACTIVE step per document",
	},
	{
		Kind:    kindPartialUnique,
		Table:   "approval_documents",
		Name:    "approval_documents_reference_in_flight_idx",
		Purpose: "one in-flight document per reference",
	},
}

// SchemaError lists every requirement the connected database does not meet.
type SchemaError struct {
	Missing []schemaRequirement
}

func (e *SchemaError) Error() string {
	parts := make([]string, 0, len(e.Missing))
	for _, r := range e.Missing {
		parts = append(parts, r.String())
	}
	return "schema not ready: missing " + strings.Join(parts, "; ")
}

// Names returns the missing object names, for callers that match on them.
func (e *SchemaError) Names() []string {
	out := make([]string, 0, len(e.Missing))
	for _, r := range e.Missing {
		out = append(out, r.Name)
	}
	return out
}

// SchemaHealthChecker backs /readyz.
type SchemaHealthChecker struct {
	pool *pgxpool.Pool
}

func NewSchemaHealthChecker(pool *pgxpool.Pool) *SchemaHealthChecker {
	return &SchemaHealthChecker{pool: pool}
}

func (h *SchemaHealthChecker) Check(ctx context.Context) error {
	return SchemaReady(ctx, h.pool)
}

// EnsureSchema applies the embedded migrations not yet recorded, holding an
// advisory lock so replicas starting together apply each file once. It
// finishes by checking every schema requirement.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	if pool == nil {
		return errors.New("nil database pool")
	}
	if logger == nil {
		logger = slog.Default()
	}

	files, err := embeddedmigrations.Ordered()
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	if len(files) == 0 {
		return errors.New("no embedded migrations found")
	}

	started := time.Now()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection for migrations: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, schemaMigrationLockID); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.Exec(unlockCtx, `SELECT pg_advisory_unlock($1)`, schemaMigrationLockID); err != nil {
			logger.Error("migration unlock failed", "error", err)
		}
	}()

	applied, err := appliedVersions(ctx, conn)
	if err != nil {
		return err
	}

	pending := make([]embeddedmigrations.File, 0, len(files))
	for _, f := range files {
		if _, ok := applied[f.Version]; !ok {
			pending = append(pending, f)
		}
	}
	logger.Info("migrations planned", "embedded", len(files), "pending", len(pending))

	for _, f := range pending {
		if err := applyMigration(ctx, conn, f); err != nil {
			return fmt.Errorf("apply migration %s: %w", f.Name, err)
		}
		logger.Info("migration applied", "version", f.Version, "file", f.Name)
	}

	if err := SchemaReady(ctx, pool); err != nil {
		return err
	}

	logger.Info("schema ready",
		"applied", len(pending),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return nil
}

func appliedVersions(ctx context.Context, conn *pgxpool.Conn) (map[string]string, error) {
	if _, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			filename TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	rows, err := conn.Query(ctx, `SELECT version, filename FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var version, filename string
		if err := rows.Scan(&version, &filename); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		out[version] = filename
	}
	return out, rows.Err()
}

func applyMigration(ctx context.Context, conn *pgxpool.Conn, f embeddedmigrations.File) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// Files hold several statements, which only the simple protocol accepts.
	if _, err := tx.Exec(ctx, f.SQL, pgx.QueryExecModeSimpleProtocol); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO schema_migrations (version, filename) VALUES ($1, $2)`,
		f.Version, f.Name,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// SchemaReady checks every requirement and returns a *SchemaError naming
// all that are missing.
func SchemaReady(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return errors.New("nil database pool")
	}

	var missing []schemaRequirement
	for _, req := range schemaRequirements {
		ok, err := requirementMet(ctx, pool, req)
		if err != nil {
			return fmt.Errorf("check %s: %w", req, err)
		}
		if !ok {
			missing = append(missing, req)
		}
	}

	if len(missing) > 0 {
		return &SchemaError{Missing: missing}
	}
	return nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func requirementMet(ctx context.Context, q rowQuerier, req schemaRequirement) (bool, error) {
	var ok bool
	var err error

	switch req.Kind {
	case kindTable:
		err = q.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, "public."+req.Name).Scan(&ok)
	case kindColumn:
		err = q.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.columns
				WHERE table_schema = 'public' AND table_name = $1 AND column_name = $2
			)
		`, req.Table, req.Name).Scan(&ok)
	case kindPartialUnique:
		// Must be unique, valid and partial on the named table.
		err = q.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1
				FROM pg_index i
				JOIN pg_class idx ON idx.oid = i.indexrelid
				JOIN pg_class tbl ON tbl.oid = i.indrelid
				JOIN pg_namespace n ON n.oid = idx.relnamespace
				WHERE n.nspname = 'public'
				  AND idx.relname = $1
				  AND tbl.relname = $2
				  AND i.indisunique
				  AND i.indisvalid
				  AND i.indpred IS NOT NULL
			)
		`, req.Name, req.Table).Scan(&ok)
	default:
		return false, fmt.Errorf("unknown requirement kind %q", req.Kind)
	}

	return ok, err
}
