package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tferrors "github.com/tabflow/tabflow/pkg/errors"
	"github.com/tabflow/tabflow/pkg/table"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	_, err = s.DB().ExecContext(ctx, `CREATE TABLE people (
		id INTEGER NOT NULL,
		name TEXT,
		score REAL,
		active BOOLEAN
	)`)
	require.NoError(t, err)
	_, err = s.DB().ExecContext(ctx, `INSERT INTO people VALUES (1, 'Alex', 1.5, 1), (2, 'John', NULL, 0)`)
	require.NoError(t, err)
	return s
}

func TestFieldType(t *testing.T) {
	tests := map[string]string{
		"INTEGER":                  "integer",
		"bigint":                   "integer",
		"DOUBLE":                   "number",
		"NUMERIC(10,2)":            "number",
		"DECIMAL":                  "number",
		"BOOLEAN":                  "boolean",
		"DATE":                     "date",
		"TIME":                     "time",
		"TIMESTAMP WITH TIME ZONE": "datetime",
		"DATETIME":                 "datetime",
		"JSONB":                    "object",
		"INTERVAL":                 "string",
		"VARCHAR(255)":             "string",
		"":                         "string",
	}
	for in, want := range tests {
		assert.Equal(t, want, FieldType(in), in)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open("oracle", "")
	require.Error(t, err)
	assert.True(t, tferrors.IsCode(err, tferrors.CodeStorage))
}

func TestDescribe(t *testing.T) {
	s := openTestStore(t)

	d, err := s.Describe(context.Background(), "people")
	require.NoError(t, err)
	require.Len(t, d.Fields, 4)
	assert.Equal(t, []string{"id", "name", "score", "active"}, d.FieldNames())
	assert.Equal(t, "integer", d.Fields[0].Type)
	assert.Equal(t, "string", d.Fields[1].Type)
	assert.Equal(t, "number", d.Fields[2].Type)
	assert.Equal(t, "boolean", d.Fields[3].Type)

	_, err = s.Describe(context.Background(), "people; DROP TABLE people")
	require.Error(t, err)
}

func TestIter(t *testing.T) {
	s := openTestStore(t)

	var rows [][]any
	for row, err := range s.Iter(context.Background(), "people") {
		require.NoError(t, err)
		rows = append(rows, row)
	}
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0][0])
	assert.Equal(t, "Alex", rows[0][1])
	assert.Equal(t, true, rows[0][3])
	assert.Nil(t, rows[1][2])
	assert.Equal(t, false, rows[1][3])
}

func TestIter_MissingTable(t *testing.T) {
	s := openTestStore(t)
	for _, err := range s.Iter(context.Background(), "nope") {
		require.Error(t, err)
		assert.True(t, tferrors.IsCode(err, tferrors.CodeStorage))
	}
}

func TestTableFromStorage(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tbl, err := table.NewFromStorage(s, "people")
	require.NoError(t, err)

	d, err := tbl.Infer(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{""}, d.MissingValues)

	rows, err := tbl.Read(ctx, table.Keyed())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0].Keyed["id"])
	assert.True(t, decimal.RequireFromString("1.5").Equal(rows[0].Keyed["score"].(decimal.Decimal)))
	assert.Equal(t, true, rows[0].Keyed["active"])
	assert.Nil(t, rows[1].Keyed["score"])
}
