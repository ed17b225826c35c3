package processors

import (
	"iter"

	"github.com/tabflow/tabflow/pkg/table"
)

// Rename rewrites header names through mapping; unmapped headers are kept. Used before
// casting it aligns source headers with schema field names.
func Rename(mapping map[string]string) table.Processor {
	return func(rows iter.Seq[table.ExtendedRow]) iter.Seq[table.ExtendedRow] {
		return func(yield func(table.ExtendedRow) bool) {
			var last, renamed []string
			for row := range rows {
				// Rows of one source usually share a header slice.
				if len(last) == 0 || !sameSlice(last, row.Headers) {
					last = row.Headers
					renamed = make([]string, len(row.Headers))
					for i, h := range row.Headers {
						if to, ok := mapping[h]; ok {
							renamed[i] = to
						} else {
							renamed[i] = h
						}
					}
				}
				row.Headers = renamed
				if !yield(row) {
					return
				}
			}
		}
	}
}

func sameSlice(a, b []string) bool {
	return len(a) == len(b) && (len(a) == 0 || &a[0] == &b[0])
}
