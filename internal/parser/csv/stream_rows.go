package csv

import (
	"context"
	"fmt"
	"io"
)

// ShortRowError reports a data record with fewer fields than the header.
type ShortRowError struct {
	Line   int
	Fields int
	Want   int
}

func (e *ShortRowError) Error() string {
	return fmt.Sprintf("line %d: %d fields, want %d", e.Line, e.Fields, e.Want)
}

// StreamRows reads the header from src, then sends every data record as a
// pooled *Row of exactly len(header) fields on out. Extra trailing fields are
// ignored; short records, including blank lines between records, stop the
// stream with *ShortRowError.
//
// src is closed before StreamRows returns. out is not closed; the caller owns
// it. On ctx cancellation the in-flight row is dropped, not re-pooled.
func StreamRows(
	ctx context.Context,
	src io.ReadCloser,
	s Settings,
	onHeader func(header []string) error,
	out chan<- *Row,
) error {
	defer src.Close()

	cr, err := NewReader(src, s)
	if err != nil {
		return err
	}

	hdr, err := ReadHeader(cr, s)
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if onHeader != nil {
		if err := onHeader(hdr); err != nil {
			return err
		}
	}

	var blanks BlankLines
	blanks.Skipped(cr, hdr)

	width := len(hdr)
	line := 1
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("csv read: %w", err)
		}
		if blanks.Skipped(cr, rec) > 0 {
			return &ShortRowError{Line: line + 1, Fields: 0, Want: width}
		}
		line++
		if len(rec) < width {
			return &ShortRowError{Line: line, Fields: len(rec), Want: width}
		}

		row := GetRow(width)
		row.Line = line
		copy(row.V, rec[:width])

		select {
		case out <- row:
		case <-ctx.Done():
			row.Drop()
			return ctx.Err()
		}
	}
}
