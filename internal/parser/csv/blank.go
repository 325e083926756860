package csv

import (
	"encoding/csv"
	"strings"
)

// BlankLines counts blank lines between records. encoding/csv skips them
// without returning a record; callers treat each one as a zero-field row.
type BlankLines struct {
	end int // last input line of the previous record, 0 before the first
}

// Skipped returns how many blank lines preceded rec, the record just returned
// by cr.Read. Blank lines before the first record are not counted, and
// neither are trailing blank lines, which csv.Reader folds into io.EOF.
func (b *BlankLines) Skipped(cr *csv.Reader, rec []string) int {
	if len(rec) == 0 {
		return 0
	}
	start, _ := cr.FieldPos(0)
	end, _ := cr.FieldPos(len(rec) - 1)
	end += strings.Count(rec[len(rec)-1], "\n")

	n := 0
	if b.end > 0 && start > b.end+1 {
		n = start - b.end - 1
	}
	b.end = end
	return n
}
