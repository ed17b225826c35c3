package redisstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	s := New(nil, DefaultConfig("localhost:6379"))
	assert.Equal(t, "tabflow:people:schema", s.SchemaKey("people"))
	assert.Equal(t, "tabflow:people:rows", s.RowsKey("people"))
}

func TestDefaults(t *testing.T) {
	s := New(nil, Config{})
	assert.Equal(t, int64(500), s.cfg.PageSize)
	assert.NotZero(t, s.cfg.Timeout)
}

func TestDecodeRow(t *testing.T) {
	row, err := DecodeRow([]byte(`[1, "Alex", 1.50, true, null, {"a": 1}, [1, 2]]`))
	require.Nil(t, err)
	assert.Equal(t, []any{
		"1",
		"Alex",
		"1.50",
		true,
		nil,
		map[string]any{"a": float64(1)},
		[]any{float64(1), float64(2)},
	}, row)

	_, err = DecodeRow([]byte(`{"not": "a row"}`))
	require.NotNil(t, err)
}
