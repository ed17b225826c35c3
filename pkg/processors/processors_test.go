package processors

import (
	"iter"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabflow/tabflow/pkg/table"
)

var headers = []string{"id", "name", "age"}

func stream(rows ...[]any) iter.Seq[table.ExtendedRow] {
	return func(yield func(table.ExtendedRow) bool) {
		for i, values := range rows {
			if !yield(table.ExtendedRow{Number: i + 1, Headers: headers, Values: values}) {
				return
			}
		}
	}
}

func people() iter.Seq[table.ExtendedRow] {
	return stream(
		[]any{int64(1), "Alex", int64(33)},
		[]any{int64(2), "John", int64(22)},
		[]any{int64(3), "Walter", int64(44)},
		[]any{int64(4), "Jess", nil},
	)
}

func numbers(rows iter.Seq[table.ExtendedRow]) []int {
	var out []int
	for r := range rows {
		out = append(out, r.Number)
	}
	return out
}

func TestWhere(t *testing.T) {
	tests := []struct {
		name  string
		field string
		op    Op
		value any
		want  []int
	}{
		{"gte string operand", "age", OpGte, "30", []int{1, 3}},
		{"lt int operand", "age", OpLt, 30, []int{2}},
		{"eq", "name", OpEq, "John", []int{2}},
		{"ne skips missing", "age", OpNe, "22", []int{1, 3}},
		{"contains", "name", OpContains, "e", []int{1, 3, 4}},
		{"regex", "name", OpRegex, "^J", []int{2, 4}},
		{"unknown field", "nope", OpEq, "x", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := NewRule(tt.field, tt.op, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, numbers(Where(rule)(people())))
		})
	}
}

func TestNewRule_Invalid(t *testing.T) {
	_, err := NewRule("name", "like", "x")
	require.Error(t, err)

	_, err = NewRule("name", OpRegex, "(")
	require.Error(t, err)
}

func TestExclude(t *testing.T) {
	rule, err := NewRule("age", OpLt, "30")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 4}, numbers(Exclude(rule)(people())))
}

func TestSkipHead(t *testing.T) {
	assert.Equal(t, []int{3, 4}, numbers(Skip(2)(people())))
	assert.Equal(t, []int{1, 2}, numbers(Head(2)(people())))
	assert.Empty(t, numbers(Head(0)(people())))
	assert.Equal(t, []int{2}, numbers(table.Chain(Skip(1), Head(1))(people())))
}

func TestHead_StopsUpstream(t *testing.T) {
	pulled := 0
	src := func(yield func(table.ExtendedRow) bool) {
		for row := range people() {
			pulled++
			if !yield(row) {
				return
			}
		}
	}
	assert.Len(t, numbers(Head(1)(src)), 1)
	assert.Equal(t, 1, pulled)
}

func TestSample_Deterministic(t *testing.T) {
	p := Sample(0.5, 42)
	first := numbers(p(people()))
	assert.Equal(t, first, numbers(p(people())))

	assert.Equal(t, []int{1, 2, 3, 4}, numbers(Sample(1, 1)(people())))
	assert.Empty(t, numbers(Sample(0, 1)(people())))
}

func TestReservoir(t *testing.T) {
	got := numbers(Reservoir(2, 7)(people()))
	assert.Len(t, got, 2)
	assert.True(t, slices.IsSorted(got))

	assert.Equal(t, []int{1, 2, 3, 4}, numbers(Reservoir(10, 7)(people())))
	assert.Empty(t, numbers(Reservoir(0, 7)(people())))
}

func TestAnonymize(t *testing.T) {
	var rows []table.ExtendedRow
	for r := range Anonymize([]string{"name"}, "salt")(stream(
		[]any{int64(1), "Alex", int64(33)},
		[]any{int64(2), "Alex", int64(22)},
		[]any{int64(3), nil, int64(44)},
	)) {
		rows = append(rows, r)
	}
	require.Len(t, rows, 3)

	hashed := rows[0].Values[1].(string)
	assert.Len(t, hashed, 16)
	assert.NotEqual(t, "Alex", hashed)
	assert.Equal(t, hashed, rows[1].Values[1])
	assert.Nil(t, rows[2].Values[1])
	assert.Equal(t, int64(33), rows[0].Values[2])

	assert.NotEqual(t, hashed, NewAnonymizer([]string{"name"}, "other").Hash("Alex"))
}

func TestPseudonymize(t *testing.T) {
	var names []any
	for r := range Pseudonymize([]string{"name"}, map[string]string{"name": "user"})(stream(
		[]any{int64(1), "Alex", int64(33)},
		[]any{int64(2), "John", int64(22)},
		[]any{int64(3), "Alex", int64(44)},
	)) {
		names = append(names, r.Values[1])
	}
	assert.Equal(t, []any{"user_1", "user_2", "user_1"}, names)
}

func TestRename(t *testing.T) {
	var got [][]string
	for r := range Rename(map[string]string{"name": "firstname"})(people()) {
		got = append(got, r.Headers)
	}
	require.Len(t, got, 4)
	assert.Equal(t, []string{"id", "firstname", "age"}, got[0])
	// The source headers are not modified.
	assert.Equal(t, []string{"id", "name", "age"}, headers)
}

func TestQualityInspector(t *testing.T) {
	qi := NewQualityInspector()
	rows := stream(
		[]any{int64(1), "Alex", int64(33)},
		[]any{int64(1), "Alex", int64(33)},
		[]any{int64(2), "", nil},
	)
	assert.Equal(t, []int{1, 2, 3}, numbers(qi.Processor()(rows)))

	report := qi.Report()
	assert.Equal(t, int64(3), report.TotalRows)
	assert.Equal(t, int64(1), report.DuplicateRows)
	require.Len(t, report.Fields, 3)
	assert.Equal(t, "age", report.Fields[2].Name)
	assert.Equal(t, int64(1), report.Fields[2].Missing)
	assert.Equal(t, int64(1), report.Fields[2].Distinct)
	assert.Equal(t, "1", report.Fields[0].Min)
	assert.Equal(t, "2", report.Fields[0].Max)
	assert.NotEmpty(t, report.Issues)

	data, err := report.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"total_rows": 3`)
	assert.Contains(t, report.String(), "Duplicates: 1")
}
