package profile

import (
	"fmt"
	"sort"
	"strings"
)

// ReportOptions controls FormatReport.
type ReportOptions struct {
	// ByRatio orders columns by distinct/rows ascending instead of header order.
	ByRatio bool
	// MaxValues lists the distinct values of columns with at most this many.
	// 0 disables the listing.
	MaxValues int
}

// FormatReport renders tp as a tab-separated table.
func FormatReport(tp *TableProfile, opts ReportOptions) string {
	if tp == nil || len(tp.Columns) == 0 {
		return "profile: no columns"
	}

	type line struct {
		cp    ColumnProfile
		ratio float64
	}

	lines := make([]line, 0, len(tp.Columns))
	for _, cp := range tp.Columns {
		var r float64
		if tp.Rows > 0 {
			r = float64(cp.DistinctCount) / float64(tp.Rows)
		}
		lines = append(lines, line{cp: cp, ratio: r})
	}

	if opts.ByRatio {
		sort.SliceStable(lines, func(i, j int) bool {
			if lines[i].ratio == lines[j].ratio {
				return lines[i].cp.Name < lines[j].cp.Name
			}
			return lines[i].ratio < lines[j].ratio
		})
	}

	var b strings.Builder
	fmt.Fprintf(&b, "profile report:\trows=%d\tcolumns=%d\n", tp.Rows, len(tp.Columns))
	fmt.Fprintf(&b, "%-24s\t%-8s\t%-7s\tratio", "col", "distinct", "max_len")
	if opts.MaxValues > 0 {
		b.WriteString("\tvalues")
	}
	b.WriteByte('\n')

	for _, l := range lines {
		fmt.Fprintf(&b, "%-24s\t%-8d\t%-7d\t%.1f%%", l.cp.Name, l.cp.DistinctCount, l.cp.MaxLength, l.ratio*100)
		if opts.MaxValues > 0 && l.cp.DistinctCount > 0 && l.cp.DistinctCount <= opts.MaxValues {
			fmt.Fprintf(&b, "\t%s", strings.Join(l.cp.Values(), ","))
		}
		b.WriteByte('\n')
	}

	return strings.TrimRight(b.String(), "\n")
}
