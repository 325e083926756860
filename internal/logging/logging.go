// Package logging configures the process logger: a slog text handler on
// stderr, plus a Seq sink when a Seq URL is configured. Setup installs the
// result as the slog default, which also routes the standard log package.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	slogseq "github.com/sokkalf/slog-seq"
)

// Options controls Setup.
type Options struct {
	// Verbose lowers the level to Debug.
	Verbose bool
	// SeqURL enables the Seq sink, e.g. "http://localhost:5341". Empty
	// falls back to the SEQ_URL environment variable.
	SeqURL string
	// Output defaults to os.Stderr.
	Output io.Writer
}

// multiHandler forwards log records to multiple handlers.
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// Setup builds the logger, installs it with slog.SetDefault and returns it
// with a cleanup function that flushes the Seq sink.
func Setup(opts Options) (*slog.Logger, func()) {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	console := slog.NewTextHandler(out, handlerOpts)

	seqURL := strings.TrimSpace(opts.SeqURL)
	if seqURL == "" {
		seqURL = strings.TrimSpace(os.Getenv("SEQ_URL"))
	}
	if seqURL == "" {
		logger := slog.New(console)
		slog.SetDefault(logger)
		return logger, func() {}
	}

	_, seqHandler := slogseq.NewLogger(
		seqURL,
		slogseq.WithBatchSize(50),
		slogseq.WithFlushInterval(time.Second),
		slogseq.WithHandlerOptions(handlerOpts),
	)
	if seqHandler == nil {
		logger := slog.New(console)
		slog.SetDefault(logger)
		logger.Warn("seq sink unavailable, logging to console only", "url", seqURL)
		return logger, func() {}
	}

	logger := slog.New(&multiHandler{handlers: []slog.Handler{console, seqHandler}})
	slog.SetDefault(logger)
	return logger, func() { seqHandler.Close() }
}
