package main

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabflow/tabflow/pkg/schema"
	"github.com/tabflow/tabflow/pkg/table"
)

func TestLoadRelations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relations.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"people": [
			{"id": 1, "name": "Alex", "score": 1.5, "big": 123456789012345678901234567890},
			{"id": 2, "name": "John", "tags": [3, "x"]}
		]
	}`), 0o644))

	relations, err := loadRelations(path)
	require.NoError(t, err)
	require.Len(t, relations["people"], 2)

	alex := relations["people"][0]
	assert.Equal(t, int64(1), alex["id"])
	assert.Equal(t, "Alex", alex["name"])
	assert.True(t, decimal.RequireFromString("1.5").Equal(alex["score"].(decimal.Decimal)))
	assert.IsType(t, &big.Int{}, alex["big"])
	assert.Equal(t, []any{int64(3), "x"}, relations["people"][1]["tags"])
}

func TestLoadRelations_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relations.json")
	require.NoError(t, os.WriteFile(path, []byte(`[1, 2]`), 0o644))
	_, err := loadRelations(path)
	assert.Error(t, err)

	_, err = loadRelations(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestSavedSchemaPath(t *testing.T) {
	cfg.Schema.CacheDir = "/cache"
	assert.Equal(t, "data/people.schema.json", savedSchemaPath("data/people.csv"))
	assert.Equal(t, "/cache/https_example.com_data.csv.schema.json", savedSchemaPath("https://example.com/data.csv"))
	assert.Equal(t, "", savedSchemaPath("-"))
}

func TestDescriptorPath(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "people.csv")
	f := tableFlags{}
	assert.Equal(t, "", f.descriptorPath(data))

	require.NoError(t, os.WriteFile(schema.SchemaFile(data), []byte(`{"fields": []}`), 0o644))
	assert.Equal(t, schema.SchemaFile(data), f.descriptorPath(data))

	f.inferOnly = true
	assert.Equal(t, "", f.descriptorPath(data))

	f = tableFlags{schemaFile: "explicit.json"}
	assert.Equal(t, "explicit.json", f.descriptorPath(data))
}

func TestJSONRow(t *testing.T) {
	s, err := schema.New(schema.Descriptor{Fields: []schema.FieldDescriptor{
		{Name: "day", Type: "date"},
		{Name: "n", Type: "integer"},
	}})
	require.NoError(t, err)
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	row := table.Row{Values: []any{day, int64(4)}, Fields: []string{"day", "n"}}
	assert.Equal(t, []any{"2024-03-01", int64(4)}, jsonRow(s, row))

	row = table.Row{Keyed: map[string]any{"day": day, "n": int64(4)}, Fields: []string{"day", "n"}}
	assert.Equal(t, map[string]any{"day": "2024-03-01", "n": int64(4)}, jsonRow(s, row))
}

func TestSourceFormat(t *testing.T) {
	for _, name := range []string{"", "csv", "TSV", "xlsx"} {
		f := tableFlags{format: name}
		_, err := f.sourceFormat()
		assert.NoError(t, err, name)
	}
	f := tableFlags{format: "parquet"}
	_, err := f.sourceFormat()
	assert.Error(t, err)
}
