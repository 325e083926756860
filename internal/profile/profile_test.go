package profile

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"testing/iotest"

	"csvschema/internal/datasource"
	parsercsv "csvschema/internal/parser/csv"
)

const crimes = "INCIDENT_NUMBER,OFFENSE_DESCRIPTION,DAY_OF_WEEK\n" +
	"I1,LARCENY,Monday\n" +
	"I2,VANDALISM,Tuesday\n" +
	"I3,LARCENY,Monday\n" +
	"I4,\"ASSAULT, SIMPLE\",Friday\n"

func TestProfileColumn_Days(t *testing.T) {
	t.Parallel()

	cp, err := ProfileColumn(context.Background(), datasource.String("day\nMon\nTue\nMon\n"), 0)
	if err != nil {
		t.Fatalf("ProfileColumn: %v", err)
	}
	if cp.DistinctCount != 2 || cp.MaxLength != 3 {
		t.Fatalf("got count=%d max=%d", cp.DistinctCount, cp.MaxLength)
	}
	if got := strings.Join(cp.Values(), ","); got != "Mon,Tue" {
		t.Fatalf("values = %q", got)
	}
	if cp.Name != "day" || cp.Index != 0 {
		t.Fatalf("name/index = %q/%d", cp.Name, cp.Index)
	}
}

func TestProfileColumn_SecondColumn(t *testing.T) {
	t.Parallel()

	src := datasource.String("id,desc\n1,LARCENY\n2,VANDALISM\n3,LARCENY\n")
	cp, err := ProfileColumn(context.Background(), src, 1)
	if err != nil {
		t.Fatalf("ProfileColumn: %v", err)
	}
	if cp.DistinctCount != 2 || cp.MaxLength != 9 {
		t.Fatalf("got count=%d max=%d", cp.DistinctCount, cp.MaxLength)
	}
	if !cp.Contains("LARCENY") || !cp.Contains("VANDALISM") || cp.Contains("1") {
		t.Fatalf("unexpected values %v", cp.Values())
	}
}

func TestProfileColumn_ShortRow(t *testing.T) {
	t.Parallel()

	_, err := ProfileColumn(context.Background(), datasource.String("a,b\n1,2\n3\n"), 1)
	var mre *MalformedRowError
	if !errors.As(err, &mre) {
		t.Fatalf("expected MalformedRowError, got %v", err)
	}
	if mre.Line != 3 || mre.Fields != 1 || mre.Want != 2 {
		t.Fatalf("unexpected error fields: %+v", mre)
	}
}

func TestProfileColumn_ShortRowOutsideColumnIsFine(t *testing.T) {
	t.Parallel()

	cp, err := ProfileColumn(context.Background(), datasource.String("a,b\n1,2\n3\n"), 0)
	if err != nil {
		t.Fatalf("ProfileColumn: %v", err)
	}
	if cp.DistinctCount != 2 {
		t.Fatalf("count = %d", cp.DistinctCount)
	}
}

func TestProfileColumn_InvalidIndex(t *testing.T) {
	t.Parallel()

	for _, idx := range []int{5, 2, -1} {
		_, err := ProfileColumn(context.Background(), datasource.String("a,b\n1,2\n"), idx)
		var iie *InvalidIndexError
		if !errors.As(err, &iie) {
			t.Fatalf("index %d: expected InvalidIndexError, got %v", idx, err)
		}
		if iie.Index != idx || iie.Columns != 2 {
			t.Fatalf("index %d: unexpected error fields %+v", idx, iie)
		}
	}
}

func TestProfileTable_HeaderOnly(t *testing.T) {
	t.Parallel()

	cols, err := ProfileTable(context.Background(), datasource.String("a,b,c\n"))
	if err != nil {
		t.Fatalf("ProfileTable: %v", err)
	}
	if len(cols) != 3 {
		t.Fatalf("len = %d", len(cols))
	}
	for i, cp := range cols {
		if cp.DistinctCount != 0 || cp.MaxLength != 0 || len(cp.Values()) != 0 {
			t.Fatalf("column %d not empty: %+v", i, cp)
		}
	}
}

func TestProfileTable_MatchesProfileColumn(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	src := datasource.String(crimes)

	cols, err := ProfileTable(ctx, src)
	if err != nil {
		t.Fatalf("ProfileTable: %v", err)
	}
	if len(cols) != 3 {
		t.Fatalf("len = %d", len(cols))
	}
	for i := range cols {
		one, err := ProfileColumn(ctx, src, i)
		if err != nil {
			t.Fatalf("ProfileColumn(%d): %v", i, err)
		}
		if !one.Equal(cols[i]) {
			t.Fatalf("column %d: table %+v vs column %+v", i, cols[i].Values(), one.Values())
		}
	}
	if cols[1].MaxLength != len("ASSAULT, SIMPLE") {
		t.Fatalf("max len = %d", cols[1].MaxLength)
	}
}

func TestProfileTable_ShortRow(t *testing.T) {
	t.Parallel()

	_, err := ProfileTable(context.Background(), datasource.String("a,b\n1,2\n3\n"))
	var mre *MalformedRowError
	if !errors.As(err, &mre) || mre.Want != 2 {
		t.Fatalf("expected MalformedRowError want=2, got %v", err)
	}
}

func TestScan_ExtraFieldsIgnored(t *testing.T) {
	t.Parallel()

	tp, err := New(Options{}).Scan(context.Background(), datasource.String("a\nx,extra\ny\n"))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if tp.Rows != 2 || tp.Columns[0].DistinctCount != 2 {
		t.Fatalf("unexpected profile %+v", tp)
	}
}

func TestScan_Idempotent(t *testing.T) {
	t.Parallel()

	p := New(Options{})
	a, err := p.Scan(context.Background(), datasource.String(crimes))
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.Scan(context.Background(), datasource.String(crimes))
	if err != nil {
		t.Fatal(err)
	}
	for i := range a.Columns {
		if !a.Columns[i].Equal(b.Columns[i]) {
			t.Fatalf("column %d differs between runs", i)
		}
	}
}

func TestScan_EmptyStringIsAValue(t *testing.T) {
	t.Parallel()

	tp, err := New(Options{}).Scan(context.Background(), datasource.String("a,b\n,x\n1,x\n"))
	if err != nil {
		t.Fatal(err)
	}
	if tp.Columns[0].DistinctCount != 2 || !tp.Columns[0].Contains("") {
		t.Fatalf("values = %q", tp.Columns[0].Values())
	}
}

func TestScan_MaxLengthCountsCharacters(t *testing.T) {
	t.Parallel()

	tp, err := New(Options{}).Scan(context.Background(), datasource.String("city\nPlzeň\nBrno\n"))
	if err != nil {
		t.Fatal(err)
	}
	if tp.Columns[0].MaxLength != 5 {
		t.Fatalf("max len = %d", tp.Columns[0].MaxLength)
	}
}

func TestScan_Delimiter(t *testing.T) {
	t.Parallel()

	p := New(Options{Parser: parsercsv.Settings{Comma: ';'}})
	tp, err := p.Scan(context.Background(), datasource.String("a;b\n1;2\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(tp.Header) != 2 || tp.Columns[1].MaxLength != 1 {
		t.Fatalf("unexpected profile %+v", tp)
	}
}

func TestScanParallel_HeaderMap(t *testing.T) {
	t.Parallel()

	p := New(Options{Parser: parsercsv.Settings{HeaderMap: map[string]string{"OFFENSE_CODE": "offense_code"}}})
	for _, workers := range []int{1, 2} {
		tp, err := p.ScanParallel(context.Background(), datasource.String("INCIDENT,OFFENSE_CODE\nI1,619\n"), workers)
		if err != nil {
			t.Fatalf("workers=%d: %v", workers, err)
		}
		if tp.Header[1] != "offense_code" || tp.Columns[1].Name != "offense_code" || tp.Columns[0].Name != "INCIDENT" {
			t.Fatalf("workers=%d: header %v, columns %q %q", workers, tp.Header, tp.Columns[0].Name, tp.Columns[1].Name)
		}
	}
}

func TestScan_EmptySource(t *testing.T) {
	t.Parallel()

	_, err := New(Options{}).Scan(context.Background(), datasource.String(""))
	var sre *SourceReadError
	if !errors.As(err, &sre) || !errors.Is(err, ErrNoHeader) {
		t.Fatalf("expected SourceReadError(ErrNoHeader), got %v", err)
	}
}

func TestScan_OpenFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	src := datasource.Func(func(context.Context) (io.ReadCloser, error) { return nil, boom })
	_, err := New(Options{}).Scan(context.Background(), src)
	var sre *SourceReadError
	if !errors.As(err, &sre) || sre.Op != "open" || !errors.Is(err, boom) {
		t.Fatalf("expected open SourceReadError, got %v", err)
	}
}

func TestScan_ParseErrorIsSourceReadError(t *testing.T) {
	t.Parallel()

	_, err := New(Options{}).Scan(context.Background(), datasource.String("a\n\"unterminated\n"))
	var sre *SourceReadError
	if !errors.As(err, &sre) || sre.Op != "read" {
		t.Fatalf("expected read SourceReadError, got %v", err)
	}
}

func TestScan_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Options{}).Scan(ctx, datasource.String(crimes))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type countingCloser struct {
	io.Reader
	closed *atomic.Int32
}

func (c countingCloser) Close() error { c.closed.Add(1); return nil }

func countingSource(data string, opened, closed *atomic.Int32) datasource.Source {
	return datasource.Func(func(context.Context) (io.ReadCloser, error) {
		opened.Add(1)
		return countingCloser{Reader: strings.NewReader(data), closed: closed}, nil
	})
}

func TestProfileColumns_OneHandlePerColumn(t *testing.T) {
	t.Parallel()

	var opened, closed atomic.Int32
	src := countingSource(crimes, &opened, &closed)

	cols, err := New(Options{}).ProfileColumns(context.Background(), src, []int{2, 0, 1}, 2)
	if err != nil {
		t.Fatalf("ProfileColumns: %v", err)
	}
	if opened.Load() != 3 || closed.Load() != 3 {
		t.Fatalf("opened=%d closed=%d", opened.Load(), closed.Load())
	}
	if cols[0].Index != 2 || cols[1].Index != 0 || cols[2].Index != 1 {
		t.Fatalf("results out of order: %d %d %d", cols[0].Index, cols[1].Index, cols[2].Index)
	}
	if cols[0].DistinctCount != 3 || cols[1].DistinctCount != 4 {
		t.Fatalf("counts = %d %d", cols[0].DistinctCount, cols[1].DistinctCount)
	}
}

func TestProfileColumns_FirstErrorWins(t *testing.T) {
	t.Parallel()

	_, err := New(Options{}).ProfileColumns(context.Background(), datasource.String("a,b\n1,2\n"), []int{0, 9}, 4)
	var iie *InvalidIndexError
	if !errors.As(err, &iie) {
		t.Fatalf("expected InvalidIndexError, got %v", err)
	}
}

func TestScanParallel_MatchesScan(t *testing.T) {
	t.Parallel()

	p := New(Options{})
	seq, err := p.Scan(context.Background(), datasource.String(crimes))
	if err != nil {
		t.Fatal(err)
	}
	par, err := p.ScanParallel(context.Background(), datasource.String(crimes), 3)
	if err != nil {
		t.Fatal(err)
	}
	if par.Rows != seq.Rows || len(par.Columns) != len(seq.Columns) {
		t.Fatalf("rows %d vs %d", par.Rows, seq.Rows)
	}
	for i := range seq.Columns {
		if !seq.Columns[i].Equal(par.Columns[i]) {
			t.Fatalf("column %d differs", i)
		}
	}
}

func TestHeader(t *testing.T) {
	t.Parallel()

	hdr, err := New(Options{}).Header(context.Background(), datasource.String("\uFEFFa,b\n1\n"))
	if err != nil {
		t.Fatalf("Header: %v", err)
	}
	if strings.Join(hdr, ",") != "a,b" {
		t.Fatalf("header = %q", hdr)
	}
}

func TestColumnProfile_JSON(t *testing.T) {
	t.Parallel()

	cp, err := ProfileColumn(context.Background(), datasource.String("day\nTue\nMon\n"), 0)
	if err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(cp)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"name":"day","index":0,"distinct_count":2,"max_length":3,"distinct_values":["Mon","Tue"]}`
	if string(b) != want {
		t.Fatalf("json = %s", b)
	}
}

func TestFormatReport(t *testing.T) {
	t.Parallel()

	tp, err := New(Options{}).Scan(context.Background(), datasource.String(crimes))
	if err != nil {
		t.Fatal(err)
	}
	rep := FormatReport(tp, ReportOptions{MaxValues: 3})
	lines := strings.Split(rep, "\n")
	if len(lines) != 5 {
		t.Fatalf("report lines = %d\n%s", len(lines), rep)
	}
	if !strings.HasPrefix(lines[0], "profile report:\trows=4") {
		t.Fatalf("header line = %q", lines[0])
	}
	if !strings.Contains(lines[4], "Friday,Monday,Tuesday") {
		t.Fatalf("day line = %q", lines[4])
	}
	if strings.Contains(lines[2], "I1") {
		t.Fatalf("high-cardinality column should not list values: %q", lines[2])
	}

	if got := FormatReport(&TableProfile{}, ReportOptions{}); got != "profile: no columns" {
		t.Fatalf("empty report = %q", got)
	}
}

func TestScan_BlankLineIsMalformedRow(t *testing.T) {
	t.Parallel()

	for _, workers := range []int{1, 2} {
		_, err := New(Options{}).ScanParallel(context.Background(), datasource.String("a,b\n1,2\n\n3,4\n"), workers)
		var mre *MalformedRowError
		if !errors.As(err, &mre) {
			t.Fatalf("workers=%d: expected MalformedRowError, got %v", workers, err)
		}
		if mre.Line != 3 || mre.Fields != 0 {
			t.Fatalf("workers=%d: unexpected error fields: %+v", workers, mre)
		}
	}
}

func TestProfileColumn_BlankLineIsMalformedRow(t *testing.T) {
	t.Parallel()

	_, err := ProfileColumn(context.Background(), datasource.String("day\nMon\n\nTue\n"), 0)
	var mre *MalformedRowError
	if !errors.As(err, &mre) {
		t.Fatalf("expected MalformedRowError, got %v", err)
	}
	if mre.Line != 3 || mre.Fields != 0 || mre.Want != 1 {
		t.Fatalf("unexpected error fields: %+v", mre)
	}
}

func TestScan_LineBreaksThatAreNotBlankRows(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
		rows int64
	}{
		{name: "quoted_newline", data: "a,b\n1,\"x\ny\"\n3,4\n", rows: 2},
		{name: "quoted_blank_line", data: "a,b\n1,\"x\n\ny\"\n3,4\n", rows: 2},
		{name: "crlf", data: "a,b\r\n1,2\r\n3,4\r\n", rows: 2},
		{name: "no_final_newline", data: "a,b\n1,2\n3,4", rows: 2},
		{name: "trailing_blank_lines", data: "a,b\n1,2\n\n\n", rows: 1},
		{name: "leading_blank_lines", data: "\n\na,b\n1,2\n", rows: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			tp, err := New(Options{}).Scan(context.Background(), datasource.String(tc.data))
			if err != nil {
				t.Fatalf("Scan: %v", err)
			}
			if tp.Rows != tc.rows {
				t.Fatalf("rows = %d, want %d", tp.Rows, tc.rows)
			}
		})
	}
}

func TestScan_RowOrderIndependent(t *testing.T) {
	t.Parallel()

	lines := strings.SplitAfter(crimes, "\n")
	header, data := lines[0], lines[1:len(lines)-1]

	base, err := New(Options{}).Scan(context.Background(), datasource.String(crimes))
	if err != nil {
		t.Fatal(err)
	}

	orders := [][]int{{3, 2, 1, 0}, {1, 3, 0, 2}, {2, 0, 3, 1}}
	for _, order := range orders {
		var b strings.Builder
		b.WriteString(header)
		for _, i := range order {
			b.WriteString(data[i])
		}

		got, err := New(Options{}).Scan(context.Background(), datasource.String(b.String()))
		if err != nil {
			t.Fatalf("order %v: %v", order, err)
		}
		if got.Rows != base.Rows {
			t.Fatalf("order %v: rows %d vs %d", order, got.Rows, base.Rows)
		}
		for i := range base.Columns {
			if !base.Columns[i].Equal(got.Columns[i]) {
				t.Fatalf("order %v: column %d differs", order, i)
			}
		}
	}
}

func TestProfileColumn_ClosesSourceOnEveryPath(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk gone")
	tests := []struct {
		name    string
		reader  func() io.Reader
		index   int
		wantErr func(error) bool
	}{
		{
			name:    "success",
			reader:  func() io.Reader { return strings.NewReader("a,b\n1,2\n") },
			index:   1,
			wantErr: func(err error) bool { return err == nil },
		},
		{
			name:   "malformed_row",
			reader: func() io.Reader { return strings.NewReader("a,b\n1,2\n3\n") },
			index:  1,
			wantErr: func(err error) bool {
				var mre *MalformedRowError
				return errors.As(err, &mre)
			},
		},
		{
			name:   "invalid_index",
			reader: func() io.Reader { return strings.NewReader("a,b\n1,2\n") },
			index:  5,
			wantErr: func(err error) bool {
				var iie *InvalidIndexError
				return errors.As(err, &iie)
			},
		},
		{
			name: "read_error_mid_stream",
			reader: func() io.Reader {
				return io.MultiReader(strings.NewReader("a,b\n1,2\n"), iotest.ErrReader(boom))
			},
			index: 0,
			wantErr: func(err error) bool {
				var sre *SourceReadError
				return errors.As(err, &sre) && errors.Is(err, boom)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var opened, closed atomic.Int32
			src := datasource.Func(func(context.Context) (io.ReadCloser, error) {
				opened.Add(1)
				return countingCloser{Reader: tc.reader(), closed: &closed}, nil
			})

			_, err := ProfileColumn(context.Background(), src, tc.index)
			if !tc.wantErr(err) {
				t.Fatalf("unexpected error: %v", err)
			}
			if opened.Load() != 1 || closed.Load() != 1 {
				t.Fatalf("opened=%d closed=%d", opened.Load(), closed.Load())
			}
		})
	}
}
