package load

import (
	"context"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"csvschema/internal/datasource"
	"csvschema/internal/metrics"
	parsercsv "csvschema/internal/parser/csv"
	"csvschema/internal/schema"
	"csvschema/internal/storage"
	"csvschema/internal/transformer"
)

// copyStats summarises one streaming copy.
type copyStats struct {
	Rows    int64
	Batches int
}

// streamCopy re-reads src, coerces every record to t's column types and
// writes them to repo in batches of batchSize. header is the header seen by
// the profiling pass; a source whose header changed in between is rejected.
func streamCopy(
	ctx context.Context,
	repo storage.Repository,
	src datasource.Source,
	settings parsercsv.Settings,
	header []string,
	t storage.TableSpec,
	batchSize int,
) (copyStats, error) {
	var stats copyStats

	rc, err := src.Open(ctx)
	if err != nil {
		return stats, fmt.Errorf("open source: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	rows := make(chan *parsercsv.Row, 256)

	// streamErr is written before rows is closed.
	var streamErr error
	g.Go(func() error {
		defer close(rows)
		streamErr = parsercsv.StreamRows(gctx, rc, settings, func(h []string) error {
			if !slices.Equal(h, header) {
				return fmt.Errorf("source header changed since profiling: %v", h)
			}
			return nil
		}, rows)
		return streamErr
	})

	g.Go(func() error {
		hashes := rowHashers(t)
		batch := make([][]any, 0, batchSize)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			start := time.Now()
			n, err := repo.CopyRows(gctx, t, batch)
			metrics.RecordStep("copy_batch", start, err)
			if err != nil {
				return fmt.Errorf("copy rows into %s: %w", t.Qualified(), err)
			}
			metrics.RecordBatch()
			metrics.RecordRows("loaded", n)
			stats.Rows += n
			stats.Batches++
			batch = batch[:0]
			return nil
		}

		for row := range rows {
			var dst []any
			if len(batch) < cap(batch) {
				dst = batch[:len(batch)+1][len(batch)]
			}
			vals, err := schema.CoerceRow(t, row.V, dst)
			if err == nil {
				for i, h := range hashes {
					vals[i] = h.Sum(row.V)
				}
			}
			line := row.Line
			row.Free()
			if err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			}
			batch = append(batch, vals)
			if len(batch) == batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		if streamErr != nil {
			return streamErr
		}
		if err := gctx.Err(); err != nil {
			return err
		}
		return flush()
	})

	if err := g.Wait(); err != nil {
		return stats, err
	}
	return stats, nil
}

// rowHashers returns a hasher per derived hash column of t, keyed by column
// position.
func rowHashers(t storage.TableSpec) map[int]*transformer.RowHash {
	out := make(map[int]*transformer.RowHash)
	for i, c := range t.Columns {
		if len(c.HashOf) == 0 {
			continue
		}
		out[i] = &transformer.RowHash{Fields: c.HashOf, Names: c.HashNames, TrimSpace: true}
	}
	return out
}
