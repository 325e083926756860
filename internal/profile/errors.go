package profile

import (
	"errors"
	"fmt"
)

// ErrNoHeader is wrapped in a *SourceReadError when the source is empty.
var ErrNoHeader = errors.New("no header record")

// SourceReadError reports that the source could not be opened or read.
type SourceReadError struct {
	// Op is "open", "read header" or "read".
	Op string
	// Line is the 1-based record number being read, 0 for open.
	Line int
	Err  error
}

func (e *SourceReadError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("profile: %s line %d: %v", e.Op, e.Line, e.Err)
	}
	return fmt.Sprintf("profile: %s: %v", e.Op, e.Err)
}

func (e *SourceReadError) Unwrap() error { return e.Err }

// MalformedRowError reports a data row too short for the requested column.
type MalformedRowError struct {
	Line   int // 1-based record number, header is line 1
	Fields int // fields present in the row
	Want   int // minimum fields required
}

func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("profile: malformed row at line %d: %d fields, need at least %d", e.Line, e.Fields, e.Want)
}

// InvalidIndexError reports a column index outside the header.
type InvalidIndexError struct {
	Index   int
	Columns int
}

func (e *InvalidIndexError) Error() string {
	return fmt.Sprintf("profile: column index %d out of range [0,%d)", e.Index, e.Columns)
}
