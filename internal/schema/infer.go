package schema

import (
	"math"
	"strconv"
	"strings"
	"time"

	"csvschema/internal/storage"
)

var dateLayouts = []string{
	"2006-01-02",
	"02.01.2006",
	"02/01/2006",
	"01/02/2006",
	"2006/01/02",
}

var tsLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04",
	"02.01.2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006 15:04:05",
}

// isBlank reports whether a raw value is treated as missing for typed columns.
func isBlank(s string) bool { return strings.TrimSpace(s) == "" }

func parseBoolLoose(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "yes", "y":
		return true, true
	case "0", "f", "false", "no", "n":
		return false, true
	default:
		return false, false
	}
}

// hasLeadingZero reports values like "02118" whose zeros are significant.
func hasLeadingZero(s string) bool {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "-"), "+")
	return len(s) > 1 && s[0] == '0' && s[1] != '.'
}

func parseIntStrict(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if hasLeadingZero(s) {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}

// parseFloatStrict accepts plain decimal and exponent notation, not NaN/Inf.
func parseFloatStrict(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || hasLeadingZero(s) {
		return 0, false
	}
	for _, r := range s {
		if !(r >= '0' && r <= '9') && r != '.' && r != '-' && r != '+' && r != 'e' && r != 'E' {
			return 0, false
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// commonLayout returns the first layout that parses every value.
func commonLayout(layouts []string, values []string) (string, bool) {
next:
	for _, lay := range layouts {
		for _, v := range values {
			if _, err := time.Parse(lay, strings.TrimSpace(v)); err != nil {
				continue next
			}
		}
		return lay, true
	}
	return "", false
}

// inference is the outcome of inferring a column's type.
type inference struct {
	typ    storage.ColumnType
	layout string
}

// inferType picks the most specific type every non-blank value satisfies.
// Order: integer, bigint, boolean, date, timestamp, numeric, varchar. A column
// without non-blank values is text.
func inferType(values []string) inference {
	var nonBlank []string
	for _, v := range values {
		if !isBlank(v) {
			nonBlank = append(nonBlank, v)
		}
	}
	if len(nonBlank) == 0 {
		return inference{typ: storage.TypeText}
	}

	allInt, allInt32, allBool, allFloat := true, true, true, true
	for _, v := range nonBlank {
		if allInt {
			n, ok := parseIntStrict(v)
			if !ok {
				allInt, allInt32 = false, false
			} else if n < math.MinInt32 || n > math.MaxInt32 {
				allInt32 = false
			}
		}
		if allBool {
			if _, ok := parseBoolLoose(v); !ok {
				allBool = false
			}
		}
		if allFloat {
			if _, ok := parseFloatStrict(v); !ok {
				allFloat = false
			}
		}
	}

	switch {
	case allInt32:
		return inference{typ: storage.TypeInteger}
	case allInt:
		return inference{typ: storage.TypeBigint}
	case allBool:
		return inference{typ: storage.TypeBoolean}
	}
	if lay, ok := commonLayout(dateLayouts, nonBlank); ok {
		return inference{typ: storage.TypeDate, layout: lay}
	}
	if lay, ok := commonLayout(tsLayouts, nonBlank); ok {
		return inference{typ: storage.TypeTimestamp, layout: lay}
	}
	if allFloat {
		return inference{typ: storage.TypeNumeric}
	}
	return inference{typ: storage.TypeVarchar}
}
