package table_test

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabflow/tabflow/pkg/constraint"
	tferrors "github.com/tabflow/tabflow/pkg/errors"
	"github.com/tabflow/tabflow/pkg/ingest/sources"
	"github.com/tabflow/tabflow/pkg/processors"
	"github.com/tabflow/tabflow/pkg/schema"
	"github.com/tabflow/tabflow/pkg/table"
)

var dataMin = sources.Strings(
	[]string{"key", "value"},
	[]string{"one", "1"},
	[]string{"two", "2"},
)

func schemaMin() schema.Descriptor {
	return schema.Descriptor{
		Fields: []schema.FieldDescriptor{
			{Name: "key"},
			{Name: "value", Type: "integer"},
		},
	}
}

func schemaCSV() schema.Descriptor {
	return schema.Descriptor{
		Fields: []schema.FieldDescriptor{
			{Name: "id", Type: "integer", Format: "default"},
			{Name: "age", Type: "integer", Format: "default"},
			{Name: "name", Type: "string", Format: "default"},
		},
		MissingValues: []string{""},
	}
}

func newTable(t *testing.T, src [][]any, opts ...table.Option) *table.Table {
	t.Helper()
	tbl, err := table.New(sources.Memory(src), opts...)
	require.NoError(t, err)
	return tbl
}

func csvTable(t *testing.T, opts ...table.Option) *table.Table {
	t.Helper()
	tbl, err := table.New(sources.CSV(sources.NewFileOpener("testdata/data_infer.csv"), sources.CSVOptions{}), opts...)
	require.NoError(t, err)
	return tbl
}

func values(rows []table.Row) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = r.Ordered()
	}
	return out
}

func keyed(rows []table.Row) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		out[i] = r.Map()
	}
	return out
}

func TestSchemaDescriptor(t *testing.T) {
	tbl := newTable(t, dataMin, table.WithDescriptor(schemaMin()))
	assert.Equal(t, schema.Normalize(schemaMin()), tbl.Schema().Descriptor())

	s, err := schema.New(schemaMin())
	require.NoError(t, err)
	tbl = newTable(t, dataMin, table.WithSchema(s))
	assert.Equal(t, schema.Normalize(schemaMin()), tbl.Schema().Descriptor())
}

func TestNew_InvalidDescriptor(t *testing.T) {
	_, err := table.New(sources.Memory(dataMin), table.WithDescriptor(schema.Descriptor{
		Fields: []schema.FieldDescriptor{{Name: "a"}, {Name: "a"}},
	}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, tferrors.ErrSchemaValidation))
}

func TestInfer_CSV(t *testing.T) {
	tbl := csvTable(t)
	d, err := tbl.Infer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, schemaCSV(), *d)

	headers, err := tbl.Headers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "age", "name"}, headers)
	assert.Equal(t, schemaCSV(), tbl.Schema().Descriptor())
}

func TestInfer_EmptyFile(t *testing.T) {
	tbl, err := table.New(sources.CSV(sources.NewFileOpener("testdata/empty.csv"), sources.CSVOptions{}))
	require.NoError(t, err)

	d, err := tbl.Infer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, schema.Descriptor{Fields: []schema.FieldDescriptor{}, MissingValues: []string{""}}, *d)

	rows, err := tbl.Read(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestIter(t *testing.T) {
	tbl := newTable(t, dataMin, table.WithDescriptor(schemaMin()))

	var got [][]any
	for row, err := range tbl.Iter(context.Background()) {
		require.NoError(t, err)
		got = append(got, row.Values)
	}
	assert.Equal(t, [][]any{{"one", int64(1)}, {"two", int64(2)}}, got)
}

func TestIter_CSV(t *testing.T) {
	rows, err := csvTable(t, table.WithDescriptor(schemaCSV())).Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]any{
		{int64(1), int64(39), "Paul"},
		{int64(2), int64(23), "Jimmy"},
		{int64(3), int64(36), "Jane"},
		{int64(4), int64(28), "Judy"},
	}, values(rows))
	assert.Equal(t, []int{1, 2, 3, 4}, []int{rows[0].Number, rows[1].Number, rows[2].Number, rows[3].Number})
}

func TestRead_Keyed(t *testing.T) {
	rows, err := newTable(t, dataMin, table.WithDescriptor(schemaMin())).Read(context.Background(), table.Keyed())
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{
		{"key": "one", "value": int64(1)},
		{"key": "two", "value": int64(2)},
	}, keyed(rows))
	assert.Nil(t, rows[0].Values)
	assert.Equal(t, []string{"key", "value"}, rows[0].Fields)
}

func TestRead_Limit(t *testing.T) {
	rows, err := newTable(t, dataMin, table.WithDescriptor(schemaMin())).Read(context.Background(), table.Limit(1))
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"one", int64(1)}}, values(rows))
}

func TestIter_EarlyBreak(t *testing.T) {
	tbl := newTable(t, dataMin, table.WithDescriptor(schemaMin()))
	for _, err := range tbl.Iter(context.Background()) {
		require.NoError(t, err)
		break
	}
	rows, err := tbl.Read(context.Background())
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestRead_AutoInfer(t *testing.T) {
	tbl := newTable(t, dataMin)
	rows, err := tbl.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"one", int64(1)}, {"two", int64(2)}}, values(rows))
	require.NotNil(t, tbl.Schema())
	assert.Equal(t, "integer", tbl.Schema().Descriptor().Fields[1].Type)
}

func TestRead_CastError(t *testing.T) {
	src := sources.Strings(
		[]string{"key", "value"},
		[]string{"one", "1"},
		[]string{"two", "x"},
	)
	rows, err := newTable(t, src, table.WithDescriptor(schemaMin())).Read(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, tferrors.ErrCast))
	assert.Contains(t, err.Error(), "stage=casting")
	// Rows emitted before the failure are kept.
	assert.Len(t, rows, 1)
}

// storage serves one resource from memory.
type storage struct {
	descriptor schema.Descriptor
	rows       [][]any
}

func (s storage) Describe(ctx context.Context, resource string) (*schema.Descriptor, error) {
	d := s.descriptor.Clone()
	return &d, nil
}

func (s storage) Iter(ctx context.Context, resource string) iter.Seq2[[]any, error] {
	return func(yield func([]any, error) bool) {
		for _, row := range s.rows {
			if !yield(row, nil) {
				return
			}
		}
	}
}

func TestStorage(t *testing.T) {
	st := storage{descriptor: schemaMin(), rows: dataMin[1:]}
	tbl, err := table.NewFromStorage(st, "table")
	require.NoError(t, err)

	d, err := tbl.Infer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, schema.Normalize(schemaMin()), *d)

	headers, err := tbl.Headers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"key", "value"}, headers)

	rows, err := tbl.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"one", int64(1)}, {"two", int64(2)}}, values(rows))
}

func TestPostCastProcessor(t *testing.T) {
	skipUnder30 := processors.Filter(func(r table.ExtendedRow) bool {
		age, _ := r.Get("age")
		return age.(int64) >= 30
	})
	tbl := csvTable(t, table.WithPostCast(skipUnder30))
	_, err := tbl.Infer(context.Background())
	require.NoError(t, err)

	rows, err := tbl.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(1), int64(39), "Paul"}, {int64(3), int64(36), "Jane"}}, values(rows))
	assert.Equal(t, 3, rows[1].Number)
}

func TestPreCastRename(t *testing.T) {
	src := [][]any{{"id", "bad", "name"}, {1, 39, "Paul"}}
	rows, err := newTable(t, src,
		table.WithDescriptor(schemaCSV()),
		table.WithPreCast(processors.Rename(map[string]string{"bad": "age"})),
	).Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(1), int64(39), "Paul"}}, values(rows))
}

func TestUniqueConstraintViolation(t *testing.T) {
	d := schemaCSV()
	unique := true
	d.Fields[0].Constraints = &schema.ConstraintsDescriptor{Unique: &unique}
	src := [][]any{{"id", "age", "name"}, {1, 39, "Paul"}, {1, 36, "Jane"}}

	rows, err := newTable(t, src, table.WithDescriptor(d)).Read(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicates")
	assert.True(t, errors.Is(err, tferrors.ErrCast))
	assert.Len(t, rows, 1)
}

func TestUniquePrimaryKeyViolation(t *testing.T) {
	d := schemaCSV()
	d.PrimaryKey = schema.StringList{"id"}
	src := [][]any{{"id", "age", "name"}, {1, 39, "Paul"}, {1, 36, "Jane"}}

	_, err := newTable(t, src, table.WithDescriptor(d)).Read(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicates")
	assert.Contains(t, err.Error(), "stage=constraint_check")
}

func TestUniqueState_ResetPerTraversal(t *testing.T) {
	d := schemaCSV()
	d.PrimaryKey = schema.StringList{"id"}
	tbl := newTable(t, [][]any{{"id", "age", "name"}, {1, 39, "Paul"}, {2, 36, "Jane"}}, table.WithDescriptor(d))

	for range 2 {
		rows, err := tbl.Read(context.Background())
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	}
}

func TestHeadersFieldNamesMismatch(t *testing.T) {
	src := [][]any{{"id", "bad", "name"}, {1, 39, "Paul"}}
	rows, err := newTable(t, src, table.WithDescriptor(schemaCSV())).Read(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "match schema field names")
	assert.True(t, tferrors.IsCode(err, tferrors.CodeHeaderMismatch))
	assert.True(t, errors.Is(err, tferrors.ErrCast))
	assert.Empty(t, rows)
}

func TestCompositePrimaryKey(t *testing.T) {
	d := schema.Descriptor{
		Fields:     []schema.FieldDescriptor{{Name: "id1"}, {Name: "id2"}},
		PrimaryKey: schema.StringList{"id1", "id2"},
	}

	src := sources.Strings([]string{"id1", "id2"}, []string{"a", "1"}, []string{"a", "2"})
	rows, err := newTable(t, src, table.WithDescriptor(d)).Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"a", "1"}, {"a", "2"}}, values(rows))

	src = sources.Strings([]string{"id1", "id2"}, []string{"a", "1"}, []string{"a", "1"})
	_, err = newTable(t, src, table.WithDescriptor(d)).Read(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicates")
}

// Foreign keys

var fkSource = sources.Strings(
	[]string{"id", "name", "surname"},
	[]string{"1", "Alex", "Martin"},
	[]string{"2", "John", "Dockins"},
	[]string{"3", "Walter", "White"},
)

func fkSchema() schema.Descriptor {
	return schema.Descriptor{
		Fields: []schema.FieldDescriptor{{Name: "id"}, {Name: "name"}, {Name: "surname"}},
		ForeignKeys: []schema.ForeignKeyDescriptor{{
			Fields:    schema.StringList{"name"},
			Reference: schema.ReferenceDescriptor{Resource: "people", Fields: schema.StringList{"firstname"}},
		}},
	}
}

func fkRelations() constraint.Relations {
	return constraint.Relations{
		"people": {
			{"firstname": "Alex", "surname": "Martin"},
			{"firstname": "John", "surname": "Dockins"},
			{"firstname": "Walter", "surname": "White"},
		},
	}
}

func TestSingleFieldForeignKey(t *testing.T) {
	rows, err := newTable(t, fkSource, table.WithDescriptor(fkSchema())).
		Read(context.Background(), table.WithRelations(fkRelations()))
	require.NoError(t, err)
	assert.Equal(t, [][]any{
		{"1", map[string]any{"firstname": "Alex", "surname": "Martin"}, "Martin"},
		{"2", map[string]any{"firstname": "John", "surname": "Dockins"}, "Dockins"},
		{"3", map[string]any{"firstname": "Walter", "surname": "White"}, "White"},
	}, values(rows))
}

func TestSingleFieldForeignKey_Invalid(t *testing.T) {
	relations := fkRelations()
	relations["people"][2] = map[string]any{"firstname": "Max", "surname": "White"}

	rows, err := newTable(t, fkSource, table.WithDescriptor(fkSchema())).
		Read(context.Background(), table.WithRelations(relations))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Foreign key")
	assert.True(t, errors.Is(err, tferrors.ErrRelation))
	assert.Len(t, rows, 2)
}

func TestForeignKey_NoRelations(t *testing.T) {
	rows, err := newTable(t, fkSource, table.WithDescriptor(fkSchema())).Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Alex", rows[0].Values[1])
}

func multiFieldSchema() schema.Descriptor {
	d := fkSchema()
	d.ForeignKeys[0].Fields = schema.StringList{"name", "surname"}
	d.ForeignKeys[0].Reference.Fields = schema.StringList{"firstname", "surname"}
	return d
}

func TestMultiFieldForeignKey(t *testing.T) {
	rows, err := newTable(t, fkSource, table.WithDescriptor(multiFieldSchema())).
		Read(context.Background(), table.Keyed(), table.WithRelations(fkRelations()))
	require.NoError(t, err)

	alex := map[string]any{"firstname": "Alex", "surname": "Martin"}
	john := map[string]any{"firstname": "John", "surname": "Dockins"}
	walter := map[string]any{"firstname": "Walter", "surname": "White"}
	assert.Equal(t, []map[string]any{
		{"id": "1", "name": alex, "surname": alex},
		{"id": "2", "name": john, "surname": john},
		{"id": "3", "name": walter, "surname": walter},
	}, keyed(rows))
}

func TestMultiFieldForeignKey_Invalid(t *testing.T) {
	relations := fkRelations()
	relations["people"] = relations["people"][:2]

	_, err := newTable(t, fkSource, table.WithDescriptor(multiFieldSchema())).
		Read(context.Background(), table.WithRelations(relations))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Foreign key")
	assert.Contains(t, err.Error(), "stage=resolving")
}

func genderSchema() schema.Descriptor {
	d := fkSchema()
	d.ForeignKeys = append(d.ForeignKeys, schema.ForeignKeyDescriptor{
		Fields:    schema.StringList{"name"},
		Reference: schema.ReferenceDescriptor{Resource: "gender", Fields: schema.StringList{"firstname"}},
	})
	return d
}

func TestMultipleForeignKeysSameField(t *testing.T) {
	relations := fkRelations()
	relations["gender"] = []map[string]any{
		{"firstname": "Alex", "gender": "male/female"},
		{"firstname": "John", "gender": "male"},
		{"firstname": "Walter", "gender": "male"},
		{"firstname": "Alice", "gender": "female"},
	}

	rows, err := newTable(t, fkSource, table.WithDescriptor(genderSchema())).
		Read(context.Background(), table.Keyed(), table.WithRelations(relations))
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{
		{"id": "1", "name": map[string]any{"firstname": "Alex", "surname": "Martin", "gender": "male/female"}, "surname": "Martin"},
		{"id": "2", "name": map[string]any{"firstname": "John", "surname": "Dockins", "gender": "male"}, "surname": "Dockins"},
		{"id": "3", "name": map[string]any{"firstname": "Walter", "surname": "White", "gender": "male"}, "surname": "White"},
	}, keyed(rows))
	// Relation rows are not modified by the merge.
	assert.Len(t, relations["people"][0], 2)
}

func TestMultipleForeignKeysSameField_Invalid(t *testing.T) {
	relations := fkRelations()
	relations["gender"] = []map[string]any{
		{"firstname": "Alex", "gender": "male/female"},
		{"firstname": "Johny", "gender": "male"},
		{"firstname": "Walter", "gender": "male"},
		{"firstname": "Alice", "gender": "female"},
	}

	_, err := newTable(t, fkSource, table.WithDescriptor(genderSchema())).
		Read(context.Background(), table.WithRelations(relations))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Foreign key")
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTable(t, dataMin, table.WithDescriptor(schemaMin())).Read(ctx)
	require.Error(t, err)
	assert.True(t, tferrors.IsCode(err, tferrors.CodeCanceled))
}

func TestReadArrow(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	rec, err := newTable(t, dataMin, table.WithDescriptor(schemaMin())).ReadArrow(context.Background(), mem)
	require.NoError(t, err)
	defer rec.Release()

	require.Equal(t, int64(2), rec.NumRows())
	assert.Equal(t, "one", rec.Column(0).(*array.String).Value(0))
	assert.Equal(t, int64(2), rec.Column(1).(*array.Int64).Value(1))
}

func TestReadArrow_Relations(t *testing.T) {
	rec, err := newTable(t, fkSource, table.WithDescriptor(fkSchema())).
		ReadArrow(context.Background(), nil, table.WithRelations(fkRelations()))
	require.NoError(t, err)
	defer rec.Release()

	assert.JSONEq(t, `{"firstname":"Alex","surname":"Martin"}`, rec.Column(1).(*array.String).Value(0))
}
