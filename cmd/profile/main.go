// Command profile reports the distinct values, distinct count and maximum
// length of the columns of a delimited file.
//
// The source is a local path (optionally file://), an http(s) URL or "-" for
// stdin. Local files ending in .gz, .bz2 or .lz4 are decompressed
// transparently. With -delim auto the delimiter is guessed from the first
// line; http sources are sampled by reading only their first bytes.
//
// Output modes
//
//   - Default: a tab-separated cardinality report on stdout.
//   - -json: the table profile (or the single column with -column) as JSON.
//
// Exit codes: 0 on success, 2 on usage errors (including a -column outside
// the header), 1 on any other error.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"

	"csvschema/internal/datasource"
	"csvschema/internal/datasource/file"
	"csvschema/internal/datasource/httpds"
	parsercsv "csvschema/internal/parser/csv"
	"csvschema/internal/profile"
)

func main() {
	var (
		flagURL         = flag.String("url", "", "URL or path of the delimited source file")
		flagDelim       = flag.String("delim", ",", "Field delimiter (single character, \\t for tab, or auto)")
		flagCharset     = flag.String("charset", "", "Input charset when not UTF-8 (e.g. windows-1250)")
		flagLazyQuotes  = flag.Bool("lazy-quotes", false, "Allow quotes in unquoted fields")
		flagColumn      = flag.Int("column", -1, "Profile only this 0-based column index")
		flagWorkers     = flag.Int("workers", 1, "Columns profiled concurrently, one read handle each")
		flagJSON        = flag.Bool("json", false, "Emit JSON instead of the text report")
		flagPretty      = flag.Bool("pretty", true, "Pretty-print JSON output")
		flagValues      = flag.Int("values", 10, "List distinct values of columns with at most this many (0 disables)")
		flagByRatio     = flag.Bool("by-ratio", false, "Order the report by distinct/rows ratio")
		flagNoColor     = flag.Bool("no-color", false, "Disable colored report headers")
		flagInsecureTLS = flag.Bool("allow-insecure", false, "Skip TLS verification for https sources")
	)
	flag.Parse()

	if strings.TrimSpace(*flagURL) == "" {
		fmt.Fprintln(os.Stderr, "missing -url")
		flag.Usage()
		os.Exit(2)
	}
	var comma rune
	if *flagDelim != "auto" {
		var err error
		if comma, err = parseDelim(*flagDelim); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}
	if *flagNoColor {
		color.NoColor = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	src, err := sourceFor(*flagURL, *flagInsecureTLS, os.Stdin)
	if err != nil {
		fatal(err)
	}
	if *flagDelim == "auto" {
		sample, err := peek(ctx, src, sniffBytes)
		if err != nil {
			fatal(fmt.Errorf("sniff delimiter: %w", err))
		}
		comma = parsercsv.SniffComma(sample)
	}
	p := profile.New(profile.Options{Parser: parsercsv.Settings{
		Comma:      comma,
		LazyQuotes: *flagLazyQuotes,
		Charset:    *flagCharset,
	}})

	if *flagColumn >= 0 {
		cp, err := p.ProfileColumn(ctx, src, *flagColumn)
		if err != nil {
			fatal(err)
		}
		if *flagJSON {
			writeJSON(os.Stdout, cp, *flagPretty)
			return
		}
		printReport(os.Stdout, &profile.TableProfile{Header: []string{cp.Name}, Columns: []profile.ColumnProfile{cp}, Rows: -1},
			profile.ReportOptions{MaxValues: *flagValues})
		return
	}

	tp, err := p.ScanParallel(ctx, src, *flagWorkers)
	if err != nil {
		fatal(err)
	}
	if *flagJSON {
		writeJSON(os.Stdout, tp, *flagPretty)
		return
	}
	printReport(os.Stdout, tp, profile.ReportOptions{ByRatio: *flagByRatio, MaxValues: *flagValues})
}

// sniffBytes bounds the sample read for -delim auto.
const sniffBytes = 64 << 10

// sourceFor maps -url to a datasource. "-" buffers stdin so the profiler can
// re-open it; anything else that is not http(s) is a local path.
func sourceFor(raw string, insecure bool, stdin io.Reader) (datasource.Source, error) {
	raw = strings.TrimSpace(raw)
	if raw == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return datasource.Bytes(b), nil
	}
	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return httpds.Source{Client: httpds.NewClient(httpds.Config{InsecureSkipVerify: insecure}), URL: raw}, nil
	}
	return file.NewLocal(strings.TrimPrefix(raw, "file://")), nil
}

// peek returns up to n leading bytes of src. Local sources are read after
// decompression.
func peek(ctx context.Context, src datasource.Source, n int) ([]byte, error) {
	if hs, ok := src.(httpds.Source); ok && hs.Client != nil {
		return hs.Client.FetchFirstBytes(ctx, hs.URL, n)
	}
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, int64(n)))
}

func parseDelim(s string) (rune, error) {
	switch s {
	case `\t`, "tab":
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("-delim must be a single character, got %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

// printReport writes the report with its two header lines highlighted.
// With Rows < 0 (single column mode) the summary line is omitted.
func printReport(w io.Writer, tp *profile.TableProfile, opts profile.ReportOptions) {
	lines := strings.Split(profile.FormatReport(tp, opts), "\n")
	head := color.New(color.FgCyan, color.Bold)
	cols := color.New(color.Bold)
	for i, l := range lines {
		switch {
		case i == 0 && tp.Rows < 0:
			continue
		case i == 0:
			fmt.Fprintln(w, head.Sprint(l))
		case i == 1:
			fmt.Fprintln(w, cols.Sprint(l))
		default:
			fmt.Fprintln(w, l)
		}
	}
}

func writeJSON(w io.Writer, v any, pretty bool) {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		fatal(fmt.Errorf("encode: %w", err))
	}
}

// fatal prints err and exits. A bad -column is a usage error.
func fatal(err error) {
	fmt.Fprintf(os.Stderr, "%s %v\n", color.New(color.FgRed).Sprint("error:"), err)

	var badIndex *profile.InvalidIndexError
	if errors.As(err, &badIndex) {
		os.Exit(2)
	}
	os.Exit(1)
}
