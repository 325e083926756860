package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"csvschema/internal/storage"
)

// Repo implements storage.Repository for SQLite.
//
// Differences from Postgres:
//   - SQLite has no schemas; TableSpec.Schema is ignored and the table lives in
//     the main database.
//   - Enumerations are TEXT columns with a CHECK (... IN (...)) constraint.
//   - Dates and timestamps are stored as TEXT ("2006-01-02" and RFC3339Nano in
//     UTC) for reliable round trips.
//   - There is no access control, so Repo does not implement storage.Admin.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

// EnsureDatabase is a no-op: the database file is created on open.
func (r *Repo) EnsureDatabase(ctx context.Context, name string) error { return nil }

// EnsureSchema is a no-op.
func (r *Repo) EnsureSchema(ctx context.Context, schema string) error { return nil }

func (r *Repo) TableExists(ctx context.Context, t storage.TableSpec) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, t.Name,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup table %s: %w", t.Name, err)
	}
	return n > 0, nil
}

func (r *Repo) EnsureTable(ctx context.Context, t storage.TableSpec) error {
	ddl, err := buildCreateTableSQL(t)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", t.Name, err)
	}
	return nil
}

func (r *Repo) DropTable(ctx context.Context, t storage.TableSpec) error {
	if _, err := r.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+sqliteIdent(t.Name)); err != nil {
		return fmt.Errorf("drop table %s: %w", t.Name, err)
	}
	return nil
}

func (r *Repo) RenameTable(ctx context.Context, t storage.TableSpec, newName string) error {
	q := fmt.Sprintf("ALTER TABLE %s RENAME TO %s", sqliteIdent(t.Name), sqliteIdent(newName))
	if _, err := r.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("rename table %s to %s: %w", t.Name, newName, err)
	}
	return nil
}

// CopyRows inserts rows with one prepared statement inside a transaction.
// Either every row of the batch is stored or none is.
func (r *Repo) CopyRows(ctx context.Context, t storage.TableSpec, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, buildInsertSQL(t))
	if err != nil {
		return 0, fmt.Errorf("prepare insert %s: %w", t.Name, err)
	}
	defer stmt.Close()

	args := make([]any, len(t.Columns))
	for i, row := range rows {
		if len(row) != len(t.Columns) {
			return 0, fmt.Errorf("insert %s: row %d has %d values, want %d", t.Name, i, len(row), len(t.Columns))
		}
		for j, c := range t.Columns {
			args[j] = toSQLiteValue(c, row[j])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("insert %s: %w", t.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

// toSQLiteValue converts time values to their TEXT representation.
func toSQLiteValue(c storage.ColumnSpec, v any) any {
	ts, ok := v.(time.Time)
	if !ok {
		return v
	}
	if c.Type == storage.TypeDate {
		return ts.Format("2006-01-02")
	}
	return formatSQLiteTime(ts)
}

// formatSQLiteTime formats a time as RFC3339Nano in UTC.
func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// sqliteIdent returns a double-quoted identifier.
func sqliteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func columnType(c storage.ColumnSpec) (string, error) {
	switch c.Type {
	case storage.TypeInteger, storage.TypeBigint:
		return "INTEGER", nil
	case storage.TypeNumeric:
		return "REAL", nil
	case storage.TypeBoolean:
		return "BOOLEAN", nil
	case storage.TypeDate, storage.TypeTimestamp, storage.TypeText, storage.TypeEnum:
		return "TEXT", nil
	case storage.TypeVarchar:
		return fmt.Sprintf("VARCHAR(%d)", c.Length), nil
	default:
		return "", fmt.Errorf("column %s: unsupported type %q", c.Name, c.Type)
	}
}

func buildCreateTableSQL(t storage.TableSpec) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}

	defs := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		typ, err := columnType(c)
		if err != nil {
			return "", fmt.Errorf("table %s: %w", t.Name, err)
		}

		var b strings.Builder
		b.WriteString(sqliteIdent(c.Name))
		b.WriteString(" ")
		b.WriteString(typ)
		if !c.Nullable {
			b.WriteString(" NOT NULL")
		}
		if c.Name == t.PrimaryKey {
			b.WriteString(" PRIMARY KEY")
		}
		if c.Type == storage.TypeEnum {
			labels := make([]string, len(c.Enum))
			for i, l := range c.Enum {
				labels[i] = quoteLiteral(l)
			}
			fmt.Fprintf(&b, " CHECK (%s IN (%s))", sqliteIdent(c.Name), strings.Join(labels, ", "))
		}
		defs = append(defs, b.String())
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s);", sqliteIdent(t.Name), strings.Join(defs, ", ")), nil
}

func buildInsertSQL(t storage.TableSpec) string {
	cols := make([]string, len(t.Columns))
	marks := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = sqliteIdent(c.Name)
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", sqliteIdent(t.Name), strings.Join(cols, ", "), strings.Join(marks, ", "))
}

var _ storage.Repository = (*Repo)(nil)
