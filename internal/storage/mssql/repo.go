package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	mssql "github.com/microsoft/go-mssqldb"

	"csvschema/internal/storage"
)

// Repo implements storage.Repository and storage.Admin for Microsoft SQL Server.
//
// DDL is guarded in T-SQL (IF OBJECT_ID(...) IS NULL ...) so every Ensure*
// call is idempotent, and identifiers passed as parameters are quoted on the
// server with QUOTENAME. Rows are loaded with the bulk copy protocol
// (mssql.CopyIn). Enumerations become NVARCHAR columns with a CHECK constraint.
type Repo struct {
	db       dbConn
	adminDSN string
}

func init() {
	storage.Register("mssql", New)
}

// New opens a database/sql pool with the "sqlserver" driver and pings it.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	raw.SetMaxOpenConns(16)
	raw.SetMaxIdleConns(16)

	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return &Repo{db: &sqlDB{db: raw}, adminDSN: cfg.AdminDSN}, nil
}

// Close releases database resources held by this repository.
func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

// EnsureDatabase creates the database through the admin connection. Without an
// admin DSN the database is assumed to exist.
func (r *Repo) EnsureDatabase(ctx context.Context, name string) error {
	if name == "" || r.adminDSN == "" {
		return nil
	}
	admin, err := sql.Open("sqlserver", r.adminDSN)
	if err != nil {
		return fmt.Errorf("connect admin: %w", err)
	}
	defer admin.Close()

	if _, err := admin.ExecContext(ctx, ensureDatabaseSQL, name); err != nil {
		return fmt.Errorf("create database %s: %w", name, err)
	}
	return nil
}

func (r *Repo) EnsureSchema(ctx context.Context, schema string) error {
	if schema == "" {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, ensureSchemaSQL, schema); err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}
	return nil
}

func (r *Repo) TableExists(ctx context.Context, t storage.TableSpec) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, tableExistsSQL, tableIdent(t)).Scan(&n); err != nil {
		return false, fmt.Errorf("lookup table %s: %w", t.Qualified(), err)
	}
	return n > 0, nil
}

func (r *Repo) EnsureTable(ctx context.Context, t storage.TableSpec) error {
	ddl, err := buildCreateTableSQL(t)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, ddl, tableIdent(t)); err != nil {
		return fmt.Errorf("create table %s: %w", t.Qualified(), err)
	}
	return nil
}

func (r *Repo) DropTable(ctx context.Context, t storage.TableSpec) error {
	if _, err := r.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+tableIdent(t)); err != nil {
		return fmt.Errorf("drop table %s: %w", t.Qualified(), err)
	}
	return nil
}

func (r *Repo) RenameTable(ctx context.Context, t storage.TableSpec, newName string) error {
	if _, err := r.db.ExecContext(ctx, "EXEC sp_rename @p1, @p2", tableIdent(t), newName); err != nil {
		return fmt.Errorf("rename table %s to %s: %w", t.Qualified(), newName, err)
	}
	return nil
}

// CopyRows bulk-loads rows in one transaction. The final argument-less Exec
// flushes the bulk buffer and reports the row count.
func (r *Repo) CopyRows(ctx context.Context, t storage.TableSpec, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(tableIdent(t), mssql.BulkOptions{}, t.ColumnNames()...))
	if err != nil {
		return 0, fmt.Errorf("prepare bulk copy %s: %w", t.Qualified(), err)
	}
	defer stmt.Close()

	args := make([]any, len(t.Columns))
	for i, row := range rows {
		if len(row) != len(t.Columns) {
			return 0, fmt.Errorf("bulk copy %s: row %d has %d values, want %d", t.Qualified(), i, len(row), len(t.Columns))
		}
		for j, c := range t.Columns {
			args[j], err = toBulkValue(c, row[j])
			if err != nil {
				return 0, fmt.Errorf("bulk copy %s: row %d: %w", t.Qualified(), i, err)
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("bulk copy %s: %w", t.Qualified(), err)
		}
	}

	res, err := stmt.ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("bulk copy flush %s: %w", t.Qualified(), err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return int64(len(rows)), nil
	}
	return n, nil
}

// toBulkValue parses numeric strings for FLOAT columns.
func toBulkValue(c storage.ColumnSpec, v any) (any, error) {
	s, ok := v.(string)
	if !ok || c.Type != storage.TypeNumeric {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("column %s: %w", c.Name, err)
	}
	return f, nil
}

// ---- database/sql seam types ----

// dbConn is a small interface over *sql.DB used to make this package testable.
type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) rowScanner
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	Close() error
}

// rowScanner is a narrow adapter over *sql.Row.Scan.
type rowScanner interface {
	Scan(dest ...any) error
}

// sqlDB wraps *sql.DB to implement dbConn.
type sqlDB struct {
	db *sql.DB
}

func (s *sqlDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

func (s *sqlDB) QueryRowContext(ctx context.Context, query string, args ...any) rowScanner {
	return s.db.QueryRowContext(ctx, query, args...)
}

func (s *sqlDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, opts)
}

func (s *sqlDB) Close() error { return s.db.Close() }

var (
	_ dbConn             = (*sqlDB)(nil)
	_ storage.Repository = (*Repo)(nil)
	_ storage.Admin      = (*Repo)(nil)
)
