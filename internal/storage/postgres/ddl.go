package postgres

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"csvschema/internal/storage"
)

// pgIdent quotes a single identifier.
func pgIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func tableIdentifier(t storage.TableSpec) pgx.Identifier {
	if t.Schema == "" {
		return pgx.Identifier{t.Name}
	}
	return pgx.Identifier{t.Schema, t.Name}
}

// tableIdent returns the quoted, optionally schema-qualified table name.
func tableIdent(t storage.TableSpec) string {
	return tableIdentifier(t).Sanitize()
}

func enumIdent(schema, name string) string {
	if schema == "" {
		return pgx.Identifier{name}.Sanitize()
	}
	return pgx.Identifier{schema, name}.Sanitize()
}

// quoteLiteral renders s as a standard-conforming string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// columnType maps a logical column type to Postgres DDL.
func columnType(t storage.TableSpec, c storage.ColumnSpec) (string, error) {
	switch c.Type {
	case storage.TypeInteger:
		return "integer", nil
	case storage.TypeBigint:
		return "bigint", nil
	case storage.TypeNumeric:
		return "numeric", nil
	case storage.TypeBoolean:
		return "boolean", nil
	case storage.TypeDate:
		return "date", nil
	case storage.TypeTimestamp:
		return "timestamp", nil
	case storage.TypeVarchar:
		return fmt.Sprintf("varchar(%d)", c.Length), nil
	case storage.TypeText:
		return "text", nil
	case storage.TypeEnum:
		if c.EnumType == "" {
			return "", fmt.Errorf("column %s: enum type name is empty", c.Name)
		}
		return enumIdent(t.Schema, c.EnumType), nil
	default:
		return "", fmt.Errorf("column %s: unsupported type %q", c.Name, c.Type)
	}
}

// buildColumnDef renders a single column definition.
func buildColumnDef(t storage.TableSpec, c storage.ColumnSpec) (string, error) {
	typ, err := columnType(t, c)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(pgIdent(c.Name))
	b.WriteString(" ")
	b.WriteString(typ)
	if !c.Nullable {
		b.WriteString(" NOT NULL")
	}
	if c.Name == t.PrimaryKey {
		b.WriteString(" PRIMARY KEY")
	}
	return b.String(), nil
}

// buildCreateTableSQL renders CREATE TABLE IF NOT EXISTS for t.
func buildCreateTableSQL(t storage.TableSpec) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}

	defs := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		def, err := buildColumnDef(t, c)
		if err != nil {
			return "", fmt.Errorf("table %s: %w", t.Qualified(), err)
		}
		defs = append(defs, def)
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s);", tableIdent(t), strings.Join(defs, ", ")), nil
}

func buildCreateEnumSQL(schema, name string, labels []string) string {
	quoted := make([]string, len(labels))
	for i, l := range labels {
		quoted[i] = quoteLiteral(l)
	}
	return fmt.Sprintf("CREATE TYPE %s AS ENUM (%s);", enumIdent(schema, name), strings.Join(quoted, ", "))
}

// buildAddEnumValuesSQL extends an existing enum type. Labels already present
// are skipped by the server.
func buildAddEnumValuesSQL(schema, name string, labels []string) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = fmt.Sprintf("ALTER TYPE %s ADD VALUE IF NOT EXISTS %s;", enumIdent(schema, name), quoteLiteral(l))
	}
	return out
}
