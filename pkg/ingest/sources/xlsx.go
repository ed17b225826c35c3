package sources

import (
	"context"
	"iter"

	"github.com/xuri/excelize/v2"

	tferrors "github.com/tabflow/tabflow/pkg/errors"
	"github.com/tabflow/tabflow/pkg/ingest/core"
)

// XLSXSource reads one sheet of an Excel workbook. The first row holds the headers;
// shorter data rows are padded with empty cells.
type XLSXSource struct {
	opener core.Opener
	sheet  string
}

// XLSX creates a workbook row source. An empty sheet name selects the first sheet.
func XLSX(opener core.Opener, sheet string) *XLSXSource {
	return &XLSXSource{opener: opener, sheet: sheet}
}

// sheetRows opens the workbook and walks the rows of the sheet. excelize needs random
// access, so the content is buffered by OpenReader.
func (x *XLSXSource) sheetRows(ctx context.Context, fn func(cols []string) bool) error {
	rc, err := x.opener.Open(ctx)
	if err != nil {
		return openError(x.opener, err)
	}
	defer rc.Close()

	f, err := excelize.OpenReader(rc)
	if err != nil {
		return readError(x.opener, err)
	}
	defer f.Close()

	sheet := x.sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
		if sheet == "" {
			list := f.GetSheetList()
			if len(list) == 0 {
				return tferrors.New(tferrors.CodeSource, "no sheets found in workbook").
					WithContext("location", x.opener.Location())
			}
			sheet = list[0]
		}
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		return readError(x.opener, err).WithContext("sheet", sheet)
	}
	defer rows.Close()

	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return tferrors.Canceled("xlsx.rows", err)
		}
		cols, err := rows.Columns()
		if err != nil {
			return readError(x.opener, err).WithContext("sheet", sheet)
		}
		if !fn(cols) {
			return nil
		}
	}
	return rows.Error()
}

// Headers implements core.RowSource.
func (x *XLSXSource) Headers(ctx context.Context) ([]string, error) {
	var headers []string
	err := x.sheetRows(ctx, func(cols []string) bool {
		headers = cols
		return false
	})
	return headers, err
}

// Rows implements core.RowSource.
func (x *XLSXSource) Rows(ctx context.Context) iter.Seq2[[]any, error] {
	return func(yield func([]any, error) bool) {
		width := -1
		stopped := false
		err := x.sheetRows(ctx, func(cols []string) bool {
			if width < 0 {
				width = len(cols)
				return true
			}
			// Skip empty rows.
			if len(cols) == 0 {
				return true
			}
			row := make([]any, max(width, len(cols)))
			for i := range row {
				if i < len(cols) {
					row[i] = cols[i]
				} else {
					row[i] = ""
				}
			}
			if !yield(row, nil) {
				stopped = true
				return false
			}
			return true
		})
		if err != nil && !stopped {
			yield(nil, err)
		}
	}
}

var _ core.RowSource = (*XLSXSource)(nil)
