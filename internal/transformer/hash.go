// Package transformer derives column values that are not read from the
// source as-is.
package transformer

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// RowHash computes a deterministic SHA-256 over selected raw fields of a
// record. The digest is a stable, always-non-null dedupe key for tables whose
// natural key columns can be blank.
//
// Canonical form:
//   - Fields are concatenated in Fields order using Separator.
//   - With Names set, each component is written as "name=value".
//   - Blank fields are encoded as a single NUL byte so a blank value differs
//     from a missing separator.
//   - Output is lowercase hex (length 64).
//
// A RowHash is not safe for concurrent use; it reuses an internal buffer.
type RowHash struct {
	// Fields are record indexes, in hashing order.
	Fields []int
	// Names, when len(Names) == len(Fields), are written before each value.
	Names []string
	// Separator defaults to ASCII Unit Separator (0x1f).
	Separator string
	// TrimSpace trims surrounding whitespace before hashing.
	TrimSpace bool

	b strings.Builder
}

// Sum returns the hex digest of rec. Indexes past the end of rec hash like
// blank fields.
func (h *RowHash) Sum(rec []string) string {
	sep := h.Separator
	if sep == "" {
		sep = "\x1f"
	}
	withNames := len(h.Names) == len(h.Fields)

	h.b.Reset()
	for i, idx := range h.Fields {
		if i > 0 {
			h.b.WriteString(sep)
		}
		if withNames {
			h.b.WriteString(h.Names[i])
			h.b.WriteByte('=')
		}

		var v string
		if idx >= 0 && idx < len(rec) {
			v = rec[idx]
		}
		if h.TrimSpace && hasEdgeSpace(v) {
			v = strings.TrimSpace(v)
		}
		if v == "" {
			h.b.WriteByte('\x00')
			continue
		}
		h.b.WriteString(v)
	}

	sum := sha256.Sum256([]byte(h.b.String()))
	return hex.EncodeToString(sum[:])
}

// hasEdgeSpace avoids TrimSpace in the common case.
func hasEdgeSpace(s string) bool {
	if s == "" {
		return false
	}
	switch s[0] {
	case ' ', '\t', '\r', '\n':
		return true
	}
	switch s[len(s)-1] {
	case ' ', '\t', '\r', '\n':
		return true
	}
	return false
}
