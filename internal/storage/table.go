package storage

import (
	"fmt"
	"strings"
)

// ColumnType is a backend-neutral column type. Each backend maps it to its own
// DDL.
type ColumnType string

const (
	TypeInteger   ColumnType = "integer"
	TypeBigint    ColumnType = "bigint"
	TypeNumeric   ColumnType = "numeric"
	TypeBoolean   ColumnType = "boolean"
	TypeDate      ColumnType = "date"
	TypeTimestamp ColumnType = "timestamp"
	TypeVarchar   ColumnType = "varchar"
	TypeText      ColumnType = "text"
	TypeEnum      ColumnType = "enum"
)

// ParseColumnType parses a logical type name. "varchar(n)" yields TypeVarchar
// and n.
func ParseColumnType(s string) (ColumnType, int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if strings.HasPrefix(s, "varchar(") && strings.HasSuffix(s, ")") {
		var n int
		if _, err := fmt.Sscanf(s, "varchar(%d)", &n); err != nil || n <= 0 {
			return "", 0, fmt.Errorf("invalid varchar length in %q", s)
		}
		return TypeVarchar, n, nil
	}
	switch ColumnType(s) {
	case TypeInteger, TypeBigint, TypeNumeric, TypeBoolean, TypeDate,
		TypeTimestamp, TypeVarchar, TypeText, TypeEnum:
		return ColumnType(s), 0, nil
	case "int", "int4":
		return TypeInteger, 0, nil
	case "int8":
		return TypeBigint, 0, nil
	case "float", "double", "real", "decimal":
		return TypeNumeric, 0, nil
	case "bool":
		return TypeBoolean, 0, nil
	case "timestamptz", "datetime":
		return TypeTimestamp, 0, nil
	}
	return "", 0, fmt.Errorf("unknown column type %q", s)
}

// ColumnSpec describes one column of a generated table.
type ColumnSpec struct {
	// Name is the normalized identifier.
	Name string `json:"name"`
	// Source is the raw header text the column was built from.
	Source string `json:"source,omitempty"`
	// Index is the position of the source column in the input record, or -1
	// for a column filled by the loader.
	Index int        `json:"index"`
	Type  ColumnType `json:"type"`
	// Length is the varchar length, or the longest label for enums.
	Length int `json:"length,omitempty"`
	// Enum holds the allowed labels, sorted.
	Enum []string `json:"enum,omitempty"`
	// EnumType names the enumeration type on backends that have one.
	EnumType string `json:"enum_type,omitempty"`
	// Layout is the time layout of date and timestamp source values.
	Layout   string `json:"layout,omitempty"`
	Nullable bool   `json:"nullable"`

	// HashOf lists the record indexes hashed into this loader-filled column.
	HashOf []int `json:"hash_of,omitempty"`
	// HashNames, when set, are the source names written into the hash input.
	HashNames []string `json:"hash_names,omitempty"`
}

// TableSpec is a generated table definition.
type TableSpec struct {
	Schema     string       `json:"schema,omitempty"`
	Name       string       `json:"name"`
	PrimaryKey string       `json:"primary_key,omitempty"`
	Columns    []ColumnSpec `json:"columns"`
}

// Qualified returns "schema.name", or name when Schema is empty. The result is
// not quoted.
func (t TableSpec) Qualified() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// WithName returns a copy of t under another table name. Enum type names are
// kept so a staging table shares the target's types.
func (t TableSpec) WithName(name string) TableSpec {
	out := t
	out.Name = name
	out.Columns = append([]ColumnSpec(nil), t.Columns...)
	return out
}

// ColumnNames returns the column identifiers in order.
func (t TableSpec) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Validate checks that t can be rendered as DDL.
func (t TableSpec) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("table name is empty")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("table %s: no columns", t.Name)
	}
	seen := make(map[string]bool, len(t.Columns))
	pkFound := t.PrimaryKey == ""
	for _, c := range t.Columns {
		if c.Name == "" {
			return fmt.Errorf("table %s: column from %q has an empty name", t.Name, c.Source)
		}
		if seen[c.Name] {
			return fmt.Errorf("table %s: duplicate column %q", t.Name, c.Name)
		}
		seen[c.Name] = true
		if c.Type == TypeVarchar && c.Length <= 0 {
			return fmt.Errorf("table %s: column %s: varchar needs a length", t.Name, c.Name)
		}
		if c.Index < 0 && len(c.HashOf) == 0 {
			return fmt.Errorf("table %s: column %s has no source", t.Name, c.Name)
		}
		if c.Type == TypeEnum && len(c.Enum) == 0 {
			return fmt.Errorf("table %s: column %s: enum without labels", t.Name, c.Name)
		}
		if c.Name == t.PrimaryKey {
			pkFound = true
			if c.Nullable {
				return fmt.Errorf("table %s: primary key %s is nullable", t.Name, c.Name)
			}
		}
	}
	if !pkFound {
		return fmt.Errorf("table %s: primary key %q is not a column", t.Name, t.PrimaryKey)
	}
	return nil
}
