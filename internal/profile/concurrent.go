package profile

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"csvschema/internal/datasource"
)

var errHeaderOnly = errors.New("header read")

// Header opens src and returns its header record.
func (p *Profiler) Header(ctx context.Context, src datasource.Source) ([]string, error) {
	var hdr []string
	_, err := p.walk(ctx, src,
		func(h []string) error { hdr = h; return errHeaderOnly },
		nil)
	if err != nil && !errors.Is(err, errHeaderOnly) {
		return nil, err
	}
	return hdr, nil
}

// ProfileColumns profiles the given columns with at most workers concurrent
// scans, each on its own handle of src. Results follow the order of indexes.
// The first failure cancels the remaining scans and is returned.
func (p *Profiler) ProfileColumns(ctx context.Context, src datasource.Source, indexes []int, workers int) ([]ColumnProfile, error) {
	out, _, err := p.profileColumns(ctx, src, indexes, workers)
	return out, err
}

func (p *Profiler) profileColumns(ctx context.Context, src datasource.Source, indexes []int, workers int) ([]ColumnProfile, int64, error) {
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	out := make([]ColumnProfile, len(indexes))
	rows := make([]int64, len(indexes))
	for i, idx := range indexes {
		g.Go(func() error {
			cp, n, err := p.scanColumn(gctx, src, idx)
			if err != nil {
				return err
			}
			out[i], rows[i] = cp, n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	var n int64
	if len(rows) > 0 {
		n = rows[0]
	}
	return out, n, nil
}

// ScanParallel produces the same TableProfile as Scan, profiling each column
// on its own handle with up to workers scans in flight. workers <= 1 falls
// back to the single-pass Scan.
func (p *Profiler) ScanParallel(ctx context.Context, src datasource.Source, workers int) (*TableProfile, error) {
	if workers <= 1 {
		return p.Scan(ctx, src)
	}

	hdr, err := p.Header(ctx, src)
	if err != nil {
		return nil, err
	}
	indexes := make([]int, len(hdr))
	for i := range indexes {
		indexes[i] = i
	}

	cols, rows, err := p.profileColumns(ctx, src, indexes, workers)
	if err != nil {
		return nil, err
	}
	return &TableProfile{Header: hdr, Rows: rows, Columns: cols}, nil
}
