package postgres

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"csvschema/internal/storage"
)

/*
Repo implements storage.Repository and storage.Admin for Postgres.

It provides:
  - database, schema and enum type creation guarded by catalog lookups
  - CREATE TABLE IF NOT EXISTS from a storage.TableSpec
  - bulk loads through the COPY protocol (pgx CopyFrom)
  - role, user and privilege management
*/
type Repo struct {
	pool     *pgxpool.Pool
	adminDSN string
}

func init() {
	storage.Register("postgres", New)
}

// New creates a pool for cfg.DSN. Connections are established lazily, so the
// target database may be created with EnsureDatabase afterwards.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &Repo{pool: pool, adminDSN: cfg.AdminDSN}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

// EnsureDatabase creates the database through the admin connection. Without an
// admin DSN the database is assumed to exist.
func (r *Repo) EnsureDatabase(ctx context.Context, name string) error {
	if name == "" {
		return nil
	}
	if r.adminDSN == "" {
		log.Printf("postgres: no admin_dsn, assuming database %s exists", name)
		return nil
	}

	conn, err := pgx.Connect(ctx, r.adminDSN)
	if err != nil {
		return fmt.Errorf("connect admin: %w", err)
	}
	defer conn.Close(ctx)

	var exists bool
	if err := conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, name,
	).Scan(&exists); err != nil {
		return fmt.Errorf("lookup database %s: %w", name, err)
	}
	if exists {
		return nil
	}

	if _, err := conn.Exec(ctx, "CREATE DATABASE "+pgIdent(name)); err != nil {
		return fmt.Errorf("create database %s: %w", name, err)
	}
	log.Printf("postgres: created database %s", name)
	return nil
}

// EnsureSchema creates the schema if it is missing.
func (r *Repo) EnsureSchema(ctx context.Context, schema string) error {
	if schema == "" {
		return nil
	}
	if _, err := r.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgIdent(schema)); err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}
	return nil
}

// TableExists reports whether the table is visible.
func (r *Repo) TableExists(ctx context.Context, t storage.TableSpec) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, tableIdent(t)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("lookup table %s: %w", t.Qualified(), err)
	}
	return exists, nil
}

// EnsureTable creates the enum types of t, then the table itself.
func (r *Repo) EnsureTable(ctx context.Context, t storage.TableSpec) error {
	for _, c := range t.Columns {
		if c.Type != storage.TypeEnum {
			continue
		}
		if err := r.ensureEnum(ctx, t.Schema, c.EnumType, c.Enum); err != nil {
			return err
		}
	}

	sql, err := buildCreateTableSQL(t)
	if err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("create table %s: %w", t.Qualified(), err)
	}
	return nil
}

// ensureEnum creates the enum type, or adds missing labels to an existing one.
func (r *Repo) ensureEnum(ctx context.Context, schema, name string, labels []string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `
SELECT EXISTS (
	SELECT 1
	FROM pg_type t
	JOIN pg_namespace n ON n.oid = t.typnamespace
	WHERE n.nspname = COALESCE(NULLIF($1, ''), current_schema())
	  AND t.typname = $2
)`, schema, name).Scan(&exists); err != nil {
		return fmt.Errorf("lookup type %s: %w", name, err)
	}

	stmts := buildAddEnumValuesSQL(schema, name, labels)
	if !exists {
		stmts = []string{buildCreateEnumSQL(schema, name, labels)}
	}
	for _, s := range stmts {
		if _, err := r.pool.Exec(ctx, s); err != nil {
			return fmt.Errorf("enum type %s: %w", name, err)
		}
	}
	return nil
}

// DropTable drops the table if it exists.
func (r *Repo) DropTable(ctx context.Context, t storage.TableSpec) error {
	if _, err := r.pool.Exec(ctx, "DROP TABLE IF EXISTS "+tableIdent(t)); err != nil {
		return fmt.Errorf("drop table %s: %w", t.Qualified(), err)
	}
	return nil
}

// RenameTable renames t within its schema.
func (r *Repo) RenameTable(ctx context.Context, t storage.TableSpec, newName string) error {
	sql := fmt.Sprintf("ALTER TABLE %s RENAME TO %s", tableIdent(t), pgIdent(newName))
	if _, err := r.pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("rename table %s to %s: %w", t.Qualified(), newName, err)
	}
	return nil
}

// CopyRows loads rows with the COPY protocol. Enum types are loaded into the
// connection's type map first so their values can be encoded.
func (r *Repo) CopyRows(ctx context.Context, t storage.TableSpec, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Release()

	if err := registerEnumTypes(ctx, conn.Conn(), t); err != nil {
		return 0, err
	}

	if err := bindNumerics(t, rows); err != nil {
		return 0, err
	}

	n, err := conn.Conn().CopyFrom(ctx, tableIdentifier(t), t.ColumnNames(), pgx.CopyFromRows(rows))
	if err != nil {
		return n, fmt.Errorf("copy into %s: %w", t.Qualified(), err)
	}
	return n, nil
}

// bindNumerics replaces decimal strings in numeric columns with
// pgtype.Numeric so COPY keeps every digit.
func bindNumerics(t storage.TableSpec, rows [][]any) error {
	for j, c := range t.Columns {
		if c.Type != storage.TypeNumeric {
			continue
		}
		for _, row := range rows {
			s, ok := row[j].(string)
			if !ok {
				continue
			}
			var n pgtype.Numeric
			if err := n.Scan(s); err != nil {
				return fmt.Errorf("column %s: %w", c.Name, err)
			}
			row[j] = n
		}
	}
	return nil
}

func registerEnumTypes(ctx context.Context, conn *pgx.Conn, t storage.TableSpec) error {
	tm := conn.TypeMap()
	for _, c := range t.Columns {
		if c.Type != storage.TypeEnum {
			continue
		}
		name := enumIdent(t.Schema, c.EnumType)
		if _, ok := tm.TypeForName(name); ok {
			continue
		}
		dt, err := conn.LoadType(ctx, name)
		if err != nil {
			return fmt.Errorf("load type %s: %w", name, err)
		}
		tm.RegisterType(dt)
	}
	return nil
}

var (
	_ storage.Repository = (*Repo)(nil)
	_ storage.Admin      = (*Repo)(nil)
)
