// Package csv configures encoding/csv readers from parser options and streams
// records for the loader.
package csv

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"csvschema/internal/config"
)

const bom = "\uFEFF"

// Settings is the resolved form of parser options.
type Settings struct {
	Comma      rune
	LazyQuotes bool
	// Charset names a non-UTF-8 input encoding ("windows-1250", "latin1", ...).
	Charset string
	// HeaderMap renames source header fields, keyed by the name in the file.
	HeaderMap map[string]string
}

// SettingsFrom resolves parser options with defaults.
func SettingsFrom(opt config.Options) Settings {
	return Settings{
		Comma:      opt.Rune("comma", ','),
		LazyQuotes: opt.Bool("lazy_quotes", false),
		Charset:    strings.TrimSpace(opt.String("charset", "")),
		HeaderMap:  opt.StringMap("header_map"),
	}
}

// NewReader wraps r in a csv.Reader configured from s.
//
// FieldsPerRecord is disabled: short rows are reported by callers with their
// own error types instead of csv.ErrFieldCount. ReuseRecord is on, so callers
// must copy the slice (not the strings) if they keep it.
func NewReader(r io.Reader, s Settings) (*csv.Reader, error) {
	if s.Comma == 0 {
		s.Comma = ','
	}
	if s.Comma == '"' || s.Comma == '\r' || s.Comma == '\n' {
		return nil, fmt.Errorf("invalid delimiter %q", s.Comma)
	}

	if cs := strings.ToLower(s.Charset); cs != "" && cs != "utf-8" && cs != "utf8" {
		enc, err := htmlindex.Get(cs)
		if err != nil {
			return nil, fmt.Errorf("charset %q: %w", s.Charset, err)
		}
		r = transform.NewReader(r, enc.NewDecoder())
	}

	cr := csv.NewReader(r)
	cr.Comma = s.Comma
	cr.LazyQuotes = s.LazyQuotes
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	return cr, nil
}

// ReadHeader reads the first record, strips a UTF-8 BOM from its first field
// and applies s.HeaderMap. The returned slice is owned by the caller.
func ReadHeader(cr *csv.Reader, s Settings) ([]string, error) {
	rec, err := cr.Read()
	if err != nil {
		return nil, err
	}
	hdr := append([]string(nil), rec...)
	if len(hdr) > 0 {
		hdr[0] = strings.TrimPrefix(hdr[0], bom)
	}
	for i, name := range hdr {
		if to, ok := s.HeaderMap[name]; ok {
			hdr[i] = to
		}
	}
	return hdr, nil
}
