package csv

import "sync"

// Row is a pooled copy of one data record.
//
// Ownership contract:
//   - Exactly one goroutine owns a Row at a time; sending it on a channel
//     transfers ownership.
//   - The final consumer calls Free once it no longer reads r.V.
//   - Cancellation paths call Drop instead so a Row still visible to a
//     draining consumer is never handed out again.
type Row struct {
	V    []string
	Line int // 1-based record number, header included
}

var rowPool sync.Pool

// GetRow returns a pooled Row with len(V) == n.
func GetRow(n int) *Row {
	if v := rowPool.Get(); v != nil {
		r := v.(*Row)
		if cap(r.V) < n {
			r.V = make([]string, n)
		}
		r.V = r.V[:n]
		r.Line = 0
		return r
	}
	return &Row{V: make([]string, n)}
}

// Free returns the Row to the pool.
func (r *Row) Free() {
	rowPool.Put(r)
}

// Drop discards the Row without re-pooling it.
func (r *Row) Drop() {
	r.V = nil
	r.Line = 0
}
