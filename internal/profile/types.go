package profile

import (
	"encoding/json"
	"sort"
	"unicode/utf8"
)

// ColumnProfile summarises one column of a table: the set of distinct raw
// values, its size and the length of the longest value.
//
// A ColumnProfile is immutable; the distinct set is only reachable through
// Values and Contains.
type ColumnProfile struct {
	// Name is the raw header text.
	Name string
	// Index is the zero-based position in the header.
	Index int
	// DistinctCount is the number of distinct values, always len(Values()).
	DistinctCount int
	// MaxLength is the length in characters of the longest value, 0 when the
	// column has no data rows.
	MaxLength int

	values map[string]struct{}
}

// Values returns the distinct values sorted ascending. The slice is a copy.
func (c ColumnProfile) Values() []string {
	out := make([]string, 0, len(c.values))
	for v := range c.values {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Contains reports whether v was observed in the column.
func (c ColumnProfile) Contains(v string) bool {
	_, ok := c.values[v]
	return ok
}

// Equal reports whether two profiles describe the same column with the same
// distinct set.
func (c ColumnProfile) Equal(o ColumnProfile) bool {
	if c.Name != o.Name || c.Index != o.Index ||
		c.DistinctCount != o.DistinctCount || c.MaxLength != o.MaxLength ||
		len(c.values) != len(o.values) {
		return false
	}
	for v := range c.values {
		if _, ok := o.values[v]; !ok {
			return false
		}
	}
	return true
}

type columnJSON struct {
	Name           string   `json:"name"`
	Index          int      `json:"index"`
	DistinctCount  int      `json:"distinct_count"`
	MaxLength      int      `json:"max_length"`
	DistinctValues []string `json:"distinct_values,omitempty"`
}

// MarshalJSON emits the profile with its distinct values sorted.
func (c ColumnProfile) MarshalJSON() ([]byte, error) {
	return json.Marshal(columnJSON{
		Name:           c.Name,
		Index:          c.Index,
		DistinctCount:  c.DistinctCount,
		MaxLength:      c.MaxLength,
		DistinctValues: c.Values(),
	})
}

// TableProfile is the result of a full table scan.
type TableProfile struct {
	Header  []string        `json:"header"`
	Rows    int64           `json:"rows"`
	Columns []ColumnProfile `json:"columns"`
}

// accumulator builds one ColumnProfile.
type accumulator struct {
	set    map[string]struct{}
	maxLen int
}

func newAccumulator() *accumulator {
	return &accumulator{set: make(map[string]struct{})}
}

func (a *accumulator) add(v string) {
	if _, ok := a.set[v]; ok {
		return
	}
	a.set[v] = struct{}{}
	if n := utf8.RuneCountInString(v); n > a.maxLen {
		a.maxLen = n
	}
}

func (a *accumulator) profile(name string, index int) ColumnProfile {
	return ColumnProfile{
		Name:          name,
		Index:         index,
		DistinctCount: len(a.set),
		MaxLength:     a.maxLen,
		values:        a.set,
	}
}
