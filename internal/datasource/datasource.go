// Package datasource defines the read-only source abstraction shared by the
// profiler and the loader.
//
// A Source can be opened any number of times; each Open returns an
// independent reader positioned at the start of the data. The profiler relies
// on this to re-read a source for loading, and to give concurrent column
// workers their own handles.
package datasource

import (
	"bytes"
	"context"
	"io"
	"strings"
)

// Source opens independent readers over the same immutable data.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Func adapts a function to Source.
type Func func(ctx context.Context) (io.ReadCloser, error)

// Open implements Source.
func (f Func) Open(ctx context.Context) (io.ReadCloser, error) { return f(ctx) }

// Bytes is an in-memory Source, mainly for tests and small samples.
type Bytes []byte

// Open implements Source.
func (b Bytes) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

// String is an in-memory Source over a string.
type String string

// Open implements Source.
func (s String) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(string(s))), nil
}
