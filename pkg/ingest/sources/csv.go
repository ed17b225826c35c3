package sources

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"iter"

	tferrors "github.com/tabflow/tabflow/pkg/errors"
	"github.com/tabflow/tabflow/pkg/ingest/core"
)

// CSVOptions configures CSV parsing.
type CSVOptions struct {
	// Delimiter defaults to ',' (or '\t' for TSV locations).
	Delimiter rune
	// Comment marks lines to skip when non-zero.
	Comment rune
	// LazyQuotes tolerates quotes in unquoted fields.
	LazyQuotes bool
	// Sniff detects the delimiter from the start of the input when Delimiter is unset.
	Sniff bool
}

// CSVSource reads a delimited text table. The first record holds the headers. The
// opener is reopened on every traversal.
type CSVSource struct {
	opener core.Opener
	opts   CSVOptions
	sniff  bool
}

// CSV creates a CSV row source.
func CSV(opener core.Opener, opts CSVOptions) *CSVSource {
	sniff := false
	if opts.Delimiter == 0 {
		opts.Delimiter = ','
		switch {
		case opener.Format() == core.FormatTSV:
			opts.Delimiter = '\t'
		case opts.Sniff:
			sniff = true
		}
	}
	return &CSVSource{opener: opener, opts: opts, sniff: sniff}
}

func (c *CSVSource) reader(rc io.Reader) (*csv.Reader, error) {
	comma := c.opts.Delimiter
	if c.sniff {
		var err error
		if rc, comma, err = sniffReader(rc); err != nil {
			return nil, readError(c.opener, err)
		}
	}
	r := csv.NewReader(rc)
	r.Comma = comma
	r.Comment = c.opts.Comment
	r.LazyQuotes = c.opts.LazyQuotes
	r.FieldsPerRecord = -1
	r.ReuseRecord = false
	return r, nil
}

// Headers implements core.RowSource.
func (c *CSVSource) Headers(ctx context.Context) ([]string, error) {
	rc, err := c.opener.Open(ctx)
	if err != nil {
		return nil, openError(c.opener, err)
	}
	defer rc.Close()

	r, err := c.reader(rc)
	if err != nil {
		return nil, err
	}
	record, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, readError(c.opener, err)
	}
	return record, nil
}

// Rows implements core.RowSource.
func (c *CSVSource) Rows(ctx context.Context) iter.Seq2[[]any, error] {
	return func(yield func([]any, error) bool) {
		rc, err := c.opener.Open(ctx)
		if err != nil {
			yield(nil, openError(c.opener, err))
			return
		}
		defer rc.Close()

		r, err := c.reader(rc)
		if err != nil {
			yield(nil, err)
			return
		}
		if _, err := r.Read(); err != nil {
			if !errors.Is(err, io.EOF) {
				yield(nil, readError(c.opener, err))
			}
			return
		}
		for {
			record, err := r.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, readError(c.opener, err))
				return
			}
			row := make([]any, len(record))
			for i, v := range record {
				row[i] = v
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

func openError(o core.Opener, err error) error {
	var te *tferrors.Error
	if errors.As(err, &te) {
		return err
	}
	return tferrors.Wrap(err, tferrors.CodeSource, "failed to open source").WithContext("location", o.Location())
}

func readError(o core.Opener, err error) *tferrors.Error {
	return tferrors.Wrap(err, tferrors.CodeSource, "failed to read source").WithContext("location", o.Location())
}

var _ core.RowSource = (*CSVSource)(nil)
