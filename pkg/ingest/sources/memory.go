package sources

import (
	"context"
	"fmt"
	"iter"
	"slices"

	"github.com/tabflow/tabflow/pkg/ingest/core"
)

// MemorySource serves rows held in memory. Cells may be raw strings or native Go values.
type MemorySource struct {
	headers []string
	rows    [][]any
}

// Memory creates a source whose first row holds the headers.
func Memory(rows [][]any) *MemorySource {
	if len(rows) == 0 {
		return &MemorySource{}
	}
	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = fmt.Sprint(h)
	}
	return &MemorySource{headers: headers, rows: rows[1:]}
}

// MemoryWithHeaders creates a source from explicit headers and data rows.
func MemoryWithHeaders(headers []string, rows [][]any) *MemorySource {
	return &MemorySource{headers: headers, rows: rows}
}

// Strings converts rows of strings to the cell type sources produce.
func Strings(rows ...[]string) [][]any {
	out := make([][]any, len(rows))
	for i, row := range rows {
		out[i] = make([]any, len(row))
		for j, v := range row {
			out[i][j] = v
		}
	}
	return out
}

// Headers implements core.RowSource.
func (m *MemorySource) Headers(ctx context.Context) ([]string, error) {
	return slices.Clone(m.headers), nil
}

// Rows implements core.RowSource. Every row is copied so consumers may modify it.
func (m *MemorySource) Rows(ctx context.Context) iter.Seq2[[]any, error] {
	return func(yield func([]any, error) bool) {
		for _, row := range m.rows {
			if !yield(slices.Clone(row), nil) {
				return
			}
		}
	}
}

var _ core.RowSource = (*MemorySource)(nil)
