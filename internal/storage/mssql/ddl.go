package mssql

import (
	"fmt"
	"strings"

	"csvschema/internal/storage"
)

const (
	ensureDatabaseSQL = `IF DB_ID(@p1) IS NULL EXEC('CREATE DATABASE ' + QUOTENAME(@p1))`
	ensureSchemaSQL   = `IF SCHEMA_ID(@p1) IS NULL EXEC('CREATE SCHEMA ' + QUOTENAME(@p1))`
	tableExistsSQL    = `SELECT CASE WHEN OBJECT_ID(@p1, 'U') IS NULL THEN 0 ELSE 1 END`
)

// nvarcharMax is the longest NVARCHAR(n); longer columns use NVARCHAR(MAX).
const nvarcharMax = 4000

// mssqlIdent returns a bracket-quoted identifier, escaping ']' as ']]'.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// tableIdent returns [schema].[table], or [table] without a schema.
func tableIdent(t storage.TableSpec) string {
	if t.Schema == "" {
		return mssqlIdent(t.Name)
	}
	return mssqlIdent(t.Schema) + "." + mssqlIdent(t.Name)
}

func quoteLiteral(s string) string {
	return "N'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func nvarchar(n int) string {
	if n <= 0 || n > nvarcharMax {
		return "NVARCHAR(MAX)"
	}
	return fmt.Sprintf("NVARCHAR(%d)", n)
}

func columnType(c storage.ColumnSpec) (string, error) {
	switch c.Type {
	case storage.TypeInteger:
		return "INT", nil
	case storage.TypeBigint:
		return "BIGINT", nil
	case storage.TypeNumeric:
		return "FLOAT", nil
	case storage.TypeBoolean:
		return "BIT", nil
	case storage.TypeDate:
		return "DATE", nil
	case storage.TypeTimestamp:
		return "DATETIME2", nil
	case storage.TypeVarchar:
		return nvarchar(c.Length), nil
	case storage.TypeText:
		return "NVARCHAR(MAX)", nil
	case storage.TypeEnum:
		n := c.Length
		for _, l := range c.Enum {
			if len([]rune(l)) > n {
				n = len([]rune(l))
			}
		}
		return nvarchar(n), nil
	default:
		return "", fmt.Errorf("column %s: unsupported type %q", c.Name, c.Type)
	}
}

// buildCreateTableSQL renders a CREATE TABLE guarded by OBJECT_ID(@p1). The
// caller binds @p1 to tableIdent(t).
func buildCreateTableSQL(t storage.TableSpec) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}

	defs := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		typ, err := columnType(c)
		if err != nil {
			return "", fmt.Errorf("table %s: %w", t.Qualified(), err)
		}

		var b strings.Builder
		b.WriteString(mssqlIdent(c.Name))
		b.WriteString(" ")
		b.WriteString(typ)
		if c.Nullable {
			b.WriteString(" NULL")
		} else {
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
			fmt.Fprintf(&b, " CHECK (%s IN (%s))", mssqlIdent(c.Name), strings.Join(labels, ", "))
		}
		defs = append(defs, b.String())
	}

	return fmt.Sprintf("IF OBJECT_ID(@p1, 'U') IS NULL CREATE TABLE %s (%s);", tableIdent(t), strings.Join(defs, ", ")), nil
}
