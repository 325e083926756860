// Package schema turns a table profile into a storage.TableSpec: normalized
// column names, inferred types, enumerations and an optional primary key.
package schema

import (
	"fmt"
	"strings"

	"csvschema/internal/config"
	"csvschema/internal/profile"
	"csvschema/internal/storage"
)

// Policy controls how profiles become column definitions.
type Policy struct {
	Schema string
	Table  string

	PrimaryKey     string
	AutoPrimaryKey bool

	// EnumColumns are rendered as enumerations regardless of cardinality.
	EnumColumns []string
	// EnumMaxDistinct > 0 renders text columns with 1..EnumMaxDistinct
	// distinct values as enumerations. 0 disables the threshold.
	EnumMaxDistinct int

	VarcharPadding int

	// Types overrides the inferred type, keyed by normalized column name.
	Types map[string]string

	// RowHash, when set, appends a derived hash column.
	RowHash *config.RowHashConfig
}

// PolicyFrom builds a Policy from pipeline configuration. The table name
// falls back to the job name.
func PolicyFrom(job string, sc config.SchemaConfig) Policy {
	table := sc.Table
	if strings.TrimSpace(table) == "" {
		table = job
	}
	return Policy{
		Schema:          sc.Name,
		Table:           table,
		PrimaryKey:      sc.PrimaryKey,
		AutoPrimaryKey:  sc.AutoPrimaryKey,
		EnumColumns:     sc.EnumColumns,
		EnumMaxDistinct: sc.EnumMaxDistinct,
		VarcharPadding:  sc.VarcharPadding,
		Types:           sc.Types,
		RowHash:         sc.RowHash,
	}
}

// Design derives a table definition from tp.
func Design(tp *profile.TableProfile, p Policy) (storage.TableSpec, error) {
	if tp == nil || len(tp.Columns) == 0 {
		return storage.TableSpec{}, fmt.Errorf("schema: empty profile")
	}

	spec := storage.TableSpec{
		Schema: NormalizeName(p.Schema),
		Name:   NormalizeName(p.Table),
	}
	if spec.Name == "" {
		return storage.TableSpec{}, fmt.Errorf("schema: table name %q normalizes to nothing", p.Table)
	}

	names := uniqueNames(tp.Header)
	byName := make(map[string]int, len(names))
	for i, n := range names {
		byName[n] = i
	}
	lookup := func(ref string) (int, bool) {
		if i, ok := byName[NormalizeName(ref)]; ok {
			return i, true
		}
		for i, h := range tp.Header {
			if h == ref {
				return i, true
			}
		}
		return 0, false
	}

	enums := make(map[int]bool, len(p.EnumColumns))
	for _, ref := range p.EnumColumns {
		i, ok := lookup(ref)
		if !ok {
			return storage.TableSpec{}, fmt.Errorf("schema: enum column %q not in header", ref)
		}
		enums[i] = true
	}

	overrides := make(map[int]string, len(p.Types))
	for ref, typ := range p.Types {
		i, ok := lookup(ref)
		if !ok {
			return storage.TableSpec{}, fmt.Errorf("schema: type override for unknown column %q", ref)
		}
		overrides[i] = typ
	}

	spec.Columns = make([]storage.ColumnSpec, len(tp.Columns))
	for i, cp := range tp.Columns {
		col, err := designColumn(spec.Name, names[i], cp, p, enums[i], overrides[i])
		if err != nil {
			return storage.TableSpec{}, err
		}
		spec.Columns[i] = col
	}

	pk, err := choosePrimaryKey(tp, spec, p, lookup)
	if err != nil {
		return storage.TableSpec{}, err
	}
	spec.PrimaryKey = pk

	if p.RowHash != nil {
		col, err := hashColumn(tp.Header, p.RowHash, lookup)
		if err != nil {
			return storage.TableSpec{}, err
		}
		spec.Columns = append(spec.Columns, col)
	}

	if err := spec.Validate(); err != nil {
		return storage.TableSpec{}, fmt.Errorf("schema: %w", err)
	}
	return spec, nil
}

// hashColumn builds the loader-filled varchar(64) column for rh.
func hashColumn(header []string, rh *config.RowHashConfig, lookup func(string) (int, bool)) (storage.ColumnSpec, error) {
	name := rh.Column
	if strings.TrimSpace(name) == "" {
		name = "row_hash"
	}
	col := storage.ColumnSpec{
		Name:   NormalizeName(name),
		Index:  -1,
		Type:   storage.TypeVarchar,
		Length: 64,
	}

	if len(rh.Fields) == 0 {
		for i := range header {
			col.HashOf = append(col.HashOf, i)
		}
	}
	for _, ref := range rh.Fields {
		i, ok := lookup(ref)
		if !ok {
			return col, fmt.Errorf("schema: row hash field %q not in header", ref)
		}
		col.HashOf = append(col.HashOf, i)
	}
	if rh.IncludeFieldNames {
		for _, i := range col.HashOf {
			col.HashNames = append(col.HashNames, header[i])
		}
	}
	return col, nil
}

func designColumn(table, name string, cp profile.ColumnProfile, p Policy, forceEnum bool, override string) (storage.ColumnSpec, error) {
	values := cp.Values()
	col := storage.ColumnSpec{
		Name:   name,
		Source: cp.Name,
		Index:  cp.Index,
	}

	inf := inferType(values)
	if override != "" {
		typ, n, err := storage.ParseColumnType(override)
		if err != nil {
			return col, fmt.Errorf("schema: column %s: %w", name, err)
		}
		inf = inference{typ: typ}
		col.Length = n
		if typ == storage.TypeDate || typ == storage.TypeTimestamp {
			layouts := dateLayouts
			if typ == storage.TypeTimestamp {
				layouts = tsLayouts
			}
			lay, ok := commonLayout(layouts, nonBlank(values))
			if !ok && len(nonBlank(values)) > 0 {
				return col, fmt.Errorf("schema: column %s: no common %s layout", name, typ)
			}
			inf.layout = lay
		}
		if typ == storage.TypeEnum {
			forceEnum = true
		}
	}

	labels := nonBlank(values)
	thresholdEnum := p.EnumMaxDistinct > 0 && override == "" &&
		inf.typ == storage.TypeVarchar &&
		len(labels) > 0 && len(labels) <= p.EnumMaxDistinct

	switch {
	case (forceEnum || thresholdEnum) && len(labels) > 0:
		col.Type = storage.TypeEnum
		col.Enum = labels
		col.EnumType = TruncateName(table + "_" + name)
		col.Length = cp.MaxLength
		col.Nullable = len(labels) < len(values)
	case inf.typ == storage.TypeVarchar:
		col.Type = storage.TypeVarchar
		if col.Length == 0 {
			col.Length = max(cp.MaxLength+p.VarcharPadding, 1)
		}
	case inf.typ == storage.TypeText, inf.typ == storage.TypeEnum:
		// Enumerations without a single label also end up here.
		col.Type = storage.TypeText
	default:
		col.Type = inf.typ
		col.Layout = inf.layout
		col.Nullable = len(labels) < len(values)
	}
	return col, nil
}

func nonBlank(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !isBlank(v) {
			out = append(out, v)
		}
	}
	return out
}

// choosePrimaryKey validates the configured key, or picks the first integer
// column whose values are unique when AutoPrimaryKey is set.
func choosePrimaryKey(tp *profile.TableProfile, spec storage.TableSpec, p Policy, lookup func(string) (int, bool)) (string, error) {
	unique := func(i int) bool {
		cp := tp.Columns[i]
		return tp.Rows > 0 && int64(cp.DistinctCount) == tp.Rows && !spec.Columns[i].Nullable && !cp.Contains("")
	}

	if ref := strings.TrimSpace(p.PrimaryKey); ref != "" {
		i, ok := lookup(ref)
		if !ok {
			return "", fmt.Errorf("schema: primary key %q not in header", ref)
		}
		if tp.Rows > 0 && !unique(i) {
			return "", fmt.Errorf("schema: primary key %s is not unique (%d distinct in %d rows)",
				spec.Columns[i].Name, tp.Columns[i].DistinctCount, tp.Rows)
		}
		return spec.Columns[i].Name, nil
	}

	if !p.AutoPrimaryKey {
		return "", nil
	}
	for i, c := range spec.Columns {
		if (c.Type == storage.TypeInteger || c.Type == storage.TypeBigint) && unique(i) {
			return c.Name, nil
		}
	}
	return "", nil
}
