package table

import (
	"context"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/memory"

	"github.com/tabflow/tabflow/pkg/columnar"
)

// ReadArrow materializes the rows of one traversal as an Arrow record. Keyed is
// accepted and makes no difference. The caller releases the record.
func (t *Table) ReadArrow(ctx context.Context, mem memory.Allocator, opts ...ReadOption) (arrow.Record, error) {
	var cfg readConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if mem == nil {
		mem = memory.DefaultAllocator
	}

	s, _, err := t.activeSchema(ctx)
	if err != nil {
		return nil, err
	}
	b := columnar.NewBuilder(mem, s, columnar.Options{Resolved: cfg.relations != nil})
	defer b.Release()

	for row, err := range t.Iter(ctx, opts...) {
		if err != nil {
			return nil, err
		}
		if err := b.Append(row.Ordered()); err != nil {
			return nil, err
		}
	}
	return b.NewRecord(), nil
}
