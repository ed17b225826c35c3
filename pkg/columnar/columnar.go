// Package columnar converts cast rows into Apache Arrow records.
package columnar

import (
	"fmt"
	"math/big"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/shopspring/decimal"

	tferrors "github.com/tabflow/tabflow/pkg/errors"
	"github.com/tabflow/tabflow/pkg/schema"
	"github.com/tabflow/tabflow/pkg/types"
)

// Metadata keys carried on every Arrow field.
const (
	MetaType   = "tabflow.type"
	MetaFormat = "tabflow.format"
)

// Options controls the mapping.
type Options struct {
	// Resolved marks foreign key fields as holding substituted relation rows. Those
	// columns are JSON-encoded strings.
	Resolved bool
}

// ArrowSchema maps a schema to an Arrow schema. integer and year become int64, number
// float64, boolean bool, date date32, time time64[us] and datetime timestamp[us, UTC].
// Every other type is utf8, JSON-encoded when composite.
func ArrowSchema(s *schema.Schema, opts Options) *arrow.Schema {
	resolved := resolvedFields(s, opts)
	fields := make([]arrow.Field, 0, len(s.Fields()))
	for i, f := range s.Fields() {
		var dt arrow.DataType = arrow.BinaryTypes.String
		if !resolved[i] {
			dt = DataType(f.Type())
		}
		fields = append(fields, arrow.Field{
			Name:     f.Name(),
			Type:     dt,
			Nullable: true,
			Metadata: arrow.NewMetadata([]string{MetaType, MetaFormat}, []string{f.Type().String(), f.Format()}),
		})
	}
	return arrow.NewSchema(fields, nil)
}

// DataType returns the Arrow type a field type maps to.
func DataType(t types.Type) arrow.DataType {
	switch t {
	case types.Integer, types.Year:
		return arrow.PrimitiveTypes.Int64
	case types.Number:
		return arrow.PrimitiveTypes.Float64
	case types.Boolean:
		return arrow.FixedWidthTypes.Boolean
	case types.Date:
		return arrow.FixedWidthTypes.Date32
	case types.Time:
		return arrow.FixedWidthTypes.Time64us
	case types.DateTime:
		return &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}
	default:
		return arrow.BinaryTypes.String
	}
}

func resolvedFields(s *schema.Schema, opts Options) []bool {
	out := make([]bool, len(s.Fields()))
	if !opts.Resolved {
		return out
	}
	for _, fk := range s.ForeignKeys() {
		for _, i := range fk.FieldIndexes {
			out[i] = true
		}
	}
	return out
}

// Builder accumulates rows of one schema into an Arrow record.
type Builder struct {
	schema *arrow.Schema
	types  []types.Type
	rb     *array.RecordBuilder
	rows   int
}

// NewBuilder creates a builder. Release it when done.
func NewBuilder(mem memory.Allocator, s *schema.Schema, opts Options) *Builder {
	as := ArrowSchema(s, opts)
	ts := make([]types.Type, len(s.Fields()))
	for i, f := range s.Fields() {
		ts[i] = f.Type()
	}
	return &Builder{
		schema: as,
		types:  ts,
		rb:     array.NewRecordBuilder(mem, as),
	}
}

// Schema returns the Arrow schema.
func (b *Builder) Schema() *arrow.Schema { return b.schema }

// Len returns the number of rows appended since the last record.
func (b *Builder) Len() int { return b.rows }

// Append adds one row of typed values in field order. A failed append may leave
// columns of unequal length; discard the builder after an error.
func (b *Builder) Append(values []any) error {
	if len(values) != len(b.types) {
		return tferrors.Newf(tferrors.CodeCast, "row has %d values, schema has %d fields", len(values), len(b.types))
	}
	for i, v := range values {
		if err := b.appendValue(i, v); err != nil {
			return tferrors.Wrap(err, tferrors.CodeCast, "failed to build column").
				WithContext("field", b.schema.Field(i).Name)
		}
	}
	b.rows++
	return nil
}

func (b *Builder) appendValue(i int, v any) error {
	fb := b.rb.Field(i)
	if v == nil {
		fb.AppendNull()
		return nil
	}

	switch bld := fb.(type) {
	case *array.Int64Builder:
		switch x := v.(type) {
		case int64:
			bld.Append(x)
		case *big.Int:
			if !x.IsInt64() {
				return fmt.Errorf("integer %s overflows int64", x)
			}
			bld.Append(x.Int64())
		default:
			return fmt.Errorf("unexpected %T for int64 column", v)
		}
	case *array.Float64Builder:
		switch x := v.(type) {
		case decimal.Decimal:
			bld.Append(x.InexactFloat64())
		case int64:
			bld.Append(float64(x))
		case float64:
			bld.Append(x)
		default:
			return fmt.Errorf("unexpected %T for float64 column", v)
		}
	case *array.BooleanBuilder:
		x, ok := v.(bool)
		if !ok {
			return fmt.Errorf("unexpected %T for bool column", v)
		}
		bld.Append(x)
	case *array.Date32Builder:
		t, ok := v.(time.Time)
		if !ok {
			return fmt.Errorf("unexpected %T for date32 column", v)
		}
		bld.Append(arrow.Date32FromTime(t))
	case *array.Time64Builder:
		t, ok := v.(time.Time)
		if !ok {
			return fmt.Errorf("unexpected %T for time64 column", v)
		}
		h, m, s := t.Clock()
		micros := int64(h)*3600e6 + int64(m)*60e6 + int64(s)*1e6 + int64(t.Nanosecond()/1000)
		bld.Append(arrow.Time64(micros))
	case *array.TimestampBuilder:
		t, ok := v.(time.Time)
		if !ok {
			return fmt.Errorf("unexpected %T for timestamp column", v)
		}
		bld.Append(arrow.Timestamp(t.UTC().UnixMicro()))
	case *array.StringBuilder:
		if s, ok := v.(string); ok {
			bld.Append(s)
		} else {
			bld.Append(types.Format(b.types[i], v))
		}
	default:
		return fmt.Errorf("unsupported column builder %T", fb)
	}
	return nil
}

// NewRecord returns the accumulated rows as a record and resets the builder. The
// caller releases the record.
func (b *Builder) NewRecord() arrow.Record {
	b.rows = 0
	return b.rb.NewRecord()
}

// Release frees the builder's memory.
func (b *Builder) Release() {
	b.rb.Release()
}
