package schema

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"csvschema/internal/storage"
)

// CoerceError reports a raw value that does not fit its column type.
type CoerceError struct {
	Column string
	Type   storage.ColumnType
	Value  string
}

func (e *CoerceError) Error() string {
	return fmt.Sprintf("column %s: value %q is not a valid %s", e.Column, e.Value, e.Type)
}

// Coerce converts a raw field to the Go value stored for c: int64, bool,
// time.Time or string. Numeric values stay strings in plain decimal notation
// so no digits are lost. Blank values of typed, enum and nullable columns
// become nil; varchar and text keep them as "".
func Coerce(c storage.ColumnSpec, raw string) (any, error) {
	switch c.Type {
	case storage.TypeVarchar, storage.TypeText:
		return raw, nil
	}

	if isBlank(raw) {
		if !c.Nullable {
			return nil, &CoerceError{Column: c.Name, Type: c.Type, Value: raw}
		}
		return nil, nil
	}

	bad := func() (any, error) {
		return nil, &CoerceError{Column: c.Name, Type: c.Type, Value: raw}
	}

	switch c.Type {
	case storage.TypeInteger, storage.TypeBigint:
		n, ok := parseIntStrict(raw)
		if !ok {
			return bad()
		}
		return n, nil
	case storage.TypeNumeric:
		if _, ok := parseFloatStrict(raw); !ok {
			return bad()
		}
		d, ok := plainDecimal(strings.TrimSpace(raw))
		if !ok {
			return bad()
		}
		return d, nil
	case storage.TypeBoolean:
		b, ok := parseBoolLoose(raw)
		if !ok {
			return bad()
		}
		return b, nil
	case storage.TypeDate, storage.TypeTimestamp:
		layout := c.Layout
		if layout == "" {
			layout = time.RFC3339
			if c.Type == storage.TypeDate {
				layout = time.DateOnly
			}
		}
		ts, err := time.Parse(layout, strings.TrimSpace(raw))
		if err != nil {
			return bad()
		}
		return ts, nil
	case storage.TypeEnum:
		return raw, nil
	default:
		return nil, fmt.Errorf("column %s: unsupported type %q", c.Name, c.Type)
	}
}

// plainDecimal rewrites exponent notation ("1.5e3") as a plain decimal
// ("1500"). Other input is returned as is.
func plainDecimal(s string) (string, bool) {
	i := strings.IndexAny(s, "eE")
	if i < 0 {
		return strings.TrimPrefix(s, "+"), true
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return "", false
	}
	exp, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return "", false
	}
	places := 0
	if j := strings.IndexByte(s[:i], '.'); j >= 0 {
		places = i - j - 1
	}
	places -= exp
	if places < 0 {
		places = 0
	}
	return r.FloatString(places), true
}

// CoerceRow converts a record to storage values aligned with t.Columns.
// rec is indexed by ColumnSpec.Index. Loader-filled columns (Index < 0) are
// left nil for the caller to set.
func CoerceRow(t storage.TableSpec, rec []string, dst []any) ([]any, error) {
	if cap(dst) < len(t.Columns) {
		dst = make([]any, len(t.Columns))
	}
	dst = dst[:len(t.Columns)]
	for i, c := range t.Columns {
		if c.Index < 0 {
			dst[i] = nil
			continue
		}
		if c.Index >= len(rec) {
			return nil, fmt.Errorf("column %s: record has %d fields", c.Name, len(rec))
		}
		v, err := Coerce(c, rec[c.Index])
		if err != nil {
			return nil, err
		}
		dst[i] = v
	}
	return dst, nil
}
