// Package file implements datasource.Source for local files with optional
// transparent decompression.
package file

import (
	"compress/bzip2"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pierrec/lz4/v4"

	"csvschema/internal/datasource"
)

// Compression kinds understood by Local.
const (
	CompressionNone  = "none"
	CompressionGzip  = "gzip"
	CompressionBzip2 = "bzip2"
	CompressionLZ4   = "lz4"
)

// Local reads a file from the local filesystem.
type Local struct {
	Path string

	// Compression is one of the Compression* constants. Empty means detect
	// from the file extension.
	Compression string
}

// NewLocal returns a Local with compression detected from the path.
func NewLocal(path string) *Local {
	return &Local{Path: path}
}

var _ datasource.Source = (*Local)(nil)

// DetectCompression maps a file extension to a compression kind.
func DetectCompression(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz", ".gzip":
		return CompressionGzip
	case ".bz2", ".bzip2":
		return CompressionBzip2
	case ".lz4":
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// NormalizeCompression canonicalises user-supplied compression names.
func NormalizeCompression(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "none":
		return CompressionNone, nil
	case "gzip", "gz":
		return CompressionGzip, nil
	case "bzip2", "bz2":
		return CompressionBzip2, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return "", fmt.Errorf("unsupported compression %q", s)
	}
}

// Open opens the file and wraps it in the configured decompressor.
// Closing the returned reader closes the file.
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	kind, err := NormalizeCompression(l.Compression)
	if err != nil {
		return nil, err
	}
	if kind == "" {
		kind = DetectCompression(l.Path)
	}

	f, err := os.Open(l.Path)
	if err != nil {
		return nil, err
	}

	switch kind {
	case CompressionGzip:
		gr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("gzip %s: %w", l.Path, err)
		}
		return &readCloser{Reader: gr, closers: []io.Closer{gr, f}}, nil
	case CompressionBzip2:
		return &readCloser{Reader: bzip2.NewReader(f), closers: []io.Closer{f}}, nil
	case CompressionLZ4:
		return &readCloser{Reader: lz4.NewReader(f), closers: []io.Closer{f}}, nil
	default:
		return f, nil
	}
}

// readCloser closes every layer, innermost last, and reports the first error.
type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (r *readCloser) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
