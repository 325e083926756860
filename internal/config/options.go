package config

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Options is a loosely typed option bag decoded from JSON.
//
// JSON objects arrive as map[string]any, so StringMap accepts both the
// decoded shape and the map[string]string used by configs built in code.
type Options map[string]any

// Any returns the raw value for key, or nil.
func (o Options) Any(key string) any {
	if o == nil {
		return nil
	}
	return o[key]
}

// Bool returns key as a bool, falling back to def when missing or mistyped.
func (o Options) Bool(key string, def bool) bool {
	switch v := o.Any(key).(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return def
		}
		return b
	default:
		return def
	}
}

// String returns key as a string, falling back to def when missing or empty.
func (o Options) String(key string, def string) string {
	switch v := o.Any(key).(type) {
	case string:
		if v == "" {
			return def
		}
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return def
	}
}

// Rune returns the first rune of a string option. "\t" and "tab" both yield
// a tab so delimiters can be written readably in JSON.
func (o Options) Rune(key string, def rune) rune {
	switch v := o.Any(key).(type) {
	case rune:
		return v
	case string:
		switch v {
		case "":
			return def
		case "tab", `\t`:
			return '\t'
		}
		r, _ := utf8.DecodeRuneInString(v)
		if r == utf8.RuneError {
			return def
		}
		return r
	default:
		return def
	}
}

// StringMap returns key as map[string]string. Non-string values are skipped.
func (o Options) StringMap(key string) map[string]string {
	switch v := o.Any(key).(type) {
	case map[string]string:
		return v
	case map[string]any:
		out := make(map[string]string, len(v))
		for k, raw := range v {
			if s, ok := raw.(string); ok {
				out[k] = s
			}
		}
		return out
	default:
		return nil
	}
}
