package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfer(t *testing.T) {
	headers := []string{"id", "age", "name", "born", "active", "mixed", "empty"}
	rows := [][]any{
		{"1", "39.5", "Paul", "1980-01-02", "true", "1", ""},
		{"2", "23", "Jane", "1990-12-31", "false", "a", ""},
		{"3", "", "Ann", "2000-02-29", "", "2.5", ""},
	}

	d, err := Infer(headers, rows, InferOptions{})
	require.NoError(t, err)
	require.Len(t, d.Fields, 7)

	want := []string{"integer", "number", "string", "date", "boolean", "string", "string"}
	for i, f := range d.Fields {
		assert.Equal(t, headers[i], f.Name)
		assert.Equal(t, want[i], f.Type, f.Name)
		assert.Equal(t, "default", f.Format)
	}
	assert.Equal(t, []string{""}, d.MissingValues)
}

func TestInfer_Empty(t *testing.T) {
	d, err := Infer([]string{"id", "name"}, nil, InferOptions{})
	require.NoError(t, err)
	assert.Empty(t, d.Fields)

	data, err := d.JSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"fields": [], "missingValues": [""]}`, string(data))
}

func TestInfer_MissingValuesAndNativeValues(t *testing.T) {
	headers := []string{"n", "native", "mixed"}
	rows := [][]any{
		{"NA", int64(1), true},
		{"4", int64(2), int64(3)},
		{"-", nil, "x"},
	}

	d, err := Infer(headers, rows, InferOptions{MissingValues: []string{"NA", "-"}})
	require.NoError(t, err)
	assert.Equal(t, "integer", d.Fields[0].Type)
	assert.Equal(t, "integer", d.Fields[1].Type)
	assert.Equal(t, "any", d.Fields[2].Type)
	assert.Equal(t, []string{"NA", "-"}, d.MissingValues)
}

func TestInfer_ShortRows(t *testing.T) {
	d, err := Infer([]string{"a", "b"}, [][]any{{"1"}, {"2", "x"}}, InferOptions{})
	require.NoError(t, err)
	assert.Equal(t, "integer", d.Fields[0].Type)
	assert.Equal(t, "string", d.Fields[1].Type)
}

func TestInfer_DuplicateHeaders(t *testing.T) {
	_, err := Infer([]string{"a", "a"}, [][]any{{"1", "2"}}, InferOptions{})
	assert.ErrorContains(t, err, "duplicate field name")
}
