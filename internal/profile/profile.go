// Package profile computes per-column statistics of a delimited table: the
// distinct values of each column, how many there are and the longest one.
//
// Every operation opens its own handle on the source and closes it before
// returning, so a Source may be profiled by several goroutines at once.
package profile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"csvschema/internal/datasource"
	parsercsv "csvschema/internal/parser/csv"
)

// Options configures how the source is parsed.
type Options struct {
	Parser parsercsv.Settings
}

// Profiler scans sources with a fixed parser configuration.
type Profiler struct {
	opts Options
}

// New returns a Profiler. The zero Options profile comma-delimited UTF-8.
func New(opts Options) *Profiler {
	return &Profiler{opts: opts}
}

var defaultProfiler = New(Options{})

// ProfileColumn profiles the column at index using default options.
func ProfileColumn(ctx context.Context, src datasource.Source, index int) (ColumnProfile, error) {
	return defaultProfiler.ProfileColumn(ctx, src, index)
}

// ProfileTable profiles every header column using default options.
func ProfileTable(ctx context.Context, src datasource.Source) ([]ColumnProfile, error) {
	return defaultProfiler.ProfileTable(ctx, src)
}

// ProfileColumn reads the whole source and profiles the column at index.
//
// Data rows with fewer than index+1 fields fail with *MalformedRowError. An
// index outside the header fails with *InvalidIndexError before any data row
// is read.
func (p *Profiler) ProfileColumn(ctx context.Context, src datasource.Source, index int) (ColumnProfile, error) {
	cp, _, err := p.scanColumn(ctx, src, index)
	return cp, err
}

// ProfileTable profiles every header column in one pass over the source.
// The result is in header order.
func (p *Profiler) ProfileTable(ctx context.Context, src datasource.Source) ([]ColumnProfile, error) {
	tp, err := p.Scan(ctx, src)
	if err != nil {
		return nil, err
	}
	return tp.Columns, nil
}

// Scan is ProfileTable plus the header and the number of data rows.
// Any data row shorter than the header fails with *MalformedRowError; fields
// beyond the header width are ignored.
func (p *Profiler) Scan(ctx context.Context, src datasource.Source) (*TableProfile, error) {
	var (
		hdr  []string
		accs []*accumulator
	)
	rows, err := p.walk(ctx, src,
		func(h []string) error {
			hdr = h
			accs = make([]*accumulator, len(h))
			for i := range accs {
				accs[i] = newAccumulator()
			}
			return nil
		},
		func(line int, rec []string) error {
			if len(rec) < len(accs) {
				return &MalformedRowError{Line: line, Fields: len(rec), Want: len(accs)}
			}
			for i, a := range accs {
				a.add(rec[i])
			}
			return nil
		})
	if err != nil {
		return nil, err
	}

	tp := &TableProfile{Header: hdr, Rows: rows, Columns: make([]ColumnProfile, len(accs))}
	for i, a := range accs {
		tp.Columns[i] = a.profile(hdr[i], i)
	}
	return tp, nil
}

func (p *Profiler) scanColumn(ctx context.Context, src datasource.Source, index int) (ColumnProfile, int64, error) {
	var (
		name string
		acc  = newAccumulator()
	)
	rows, err := p.walk(ctx, src,
		func(h []string) error {
			if index < 0 || index >= len(h) {
				return &InvalidIndexError{Index: index, Columns: len(h)}
			}
			name = h[index]
			return nil
		},
		func(line int, rec []string) error {
			if len(rec) <= index {
				return &MalformedRowError{Line: line, Fields: len(rec), Want: index + 1}
			}
			acc.add(rec[index])
			return nil
		})
	if err != nil {
		return ColumnProfile{}, 0, err
	}
	return acc.profile(name, index), rows, nil
}

// walk opens src, hands the header to onHeader and every data record to
// onRow, and returns the number of data records. A blank line between records
// reaches onRow as a nil record. rec is only valid for the
// duration of the call. ctx is checked between records.
func (p *Profiler) walk(
	ctx context.Context,
	src datasource.Source,
	onHeader func(header []string) error,
	onRow func(line int, rec []string) error,
) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	rc, err := src.Open(ctx)
	if err != nil {
		return 0, &SourceReadError{Op: "open", Err: err}
	}
	defer rc.Close()

	cr, err := parsercsv.NewReader(rc, p.opts.Parser)
	if err != nil {
		return 0, fmt.Errorf("profile: %w", err)
	}

	hdr, err := parsercsv.ReadHeader(cr, p.opts.Parser)
	if err == io.EOF {
		return 0, &SourceReadError{Op: "read header", Line: 1, Err: ErrNoHeader}
	}
	if err != nil {
		return 0, &SourceReadError{Op: "read header", Line: 1, Err: err}
	}
	if err := onHeader(hdr); err != nil {
		return 0, err
	}
	var blanks parsercsv.BlankLines
	blanks.Skipped(cr, hdr)

	var rows int64
	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		rec, err := cr.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			line++
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return 0, &SourceReadError{Op: "read", Line: line, Err: pe}
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return 0, ctxErr
			}
			return 0, &SourceReadError{Op: "read", Line: line, Err: err}
		}
		// Blank lines are zero-field rows.
		for n := blanks.Skipped(cr, rec); n > 0; n-- {
			line++
			if err := onRow(line, nil); err != nil {
				return 0, err
			}
			rows++
		}
		line++
		if err := onRow(line, rec); err != nil {
			return 0, err
		}
		rows++
	}
}
