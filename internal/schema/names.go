package schema

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// maxIdentLen is the Postgres identifier limit (NAMEDATALEN-1).
const maxIdentLen = 63

// TruncateName enforces the identifier length limit while preserving UTF-8
// validity.
func TruncateName(s string) string {
	if len(s) <= maxIdentLen {
		return s
	}
	cut := maxIdentLen
	for cut > 0 && !utf8.ValidString(s[:cut]) {
		cut--
	}
	return s[:cut]
}

// NormalizeName converts an arbitrary header into a lowercase identifier made
// of [a-z0-9_]. Separators collapse into one underscore; other characters are
// dropped. A leading digit gets a "c_" prefix.
func NormalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))

	lastUnderscore := false
	for _, r := range s {
		if r == ' ' || r == '-' || r == '.' || r == '/' || r == '\\' || r == ':' || r == ';' || r == '\t' {
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
			continue
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
			lastUnderscore = r == '_'
		}
	}

	out := strings.Trim(b.String(), "_")
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = "c_" + out
	}
	return TruncateName(out)
}

// uniqueNames normalizes headers and resolves collisions with _2, _3, ...
// suffixes. Headers that normalize to nothing become column_<n>.
func uniqueNames(headers []string) []string {
	out := make([]string, len(headers))
	used := make(map[string]bool, len(headers))
	for i, h := range headers {
		base := NormalizeName(h)
		if base == "" {
			base = "column_" + strconv.Itoa(i+1)
		}
		name := base
		for n := 2; used[name]; n++ {
			suffix := "_" + strconv.Itoa(n)
			name = TruncateName(base[:min(len(base), maxIdentLen-len(suffix))] + suffix)
		}
		used[name] = true
		out[i] = name
	}
	return out
}
