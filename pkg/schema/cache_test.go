package schema

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_GetOrInfer(t *testing.T) {
	c := NewCache()
	headers := []string{"id", "name"}
	calls := 0
	infer := func() (*Descriptor, error) {
		calls++
		return Infer(headers, [][]any{{"1", "a"}}, InferOptions{})
	}

	d1, err := c.GetOrInfer(headers, infer)
	require.NoError(t, err)
	d2, err := c.GetOrInfer(headers, infer)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, d1, d2)
	assert.Equal(t, 1, c.Len())

	_, ok := c.Get([]string{"name", "id"})
	assert.False(t, ok)
}

func TestCache_EmptyInferenceNotCached(t *testing.T) {
	c := NewCache()
	_, err := c.GetOrInfer([]string{"id"}, func() (*Descriptor, error) {
		return Infer([]string{"id"}, nil, InferOptions{})
	})
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestDescriptor_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "people.schema.json")
	d := Descriptor{
		Fields:     []FieldDescriptor{{Name: "id", Type: "integer"}, {Name: "name"}},
		PrimaryKey: StringList{"id"},
	}
	require.NoError(t, Normalize(d).Save(path))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Normalize(d), s.Descriptor())
}

func TestSchemaFile(t *testing.T) {
	assert.Equal(t, "data/people.schema.json", SchemaFile("data/people.csv"))
	assert.Equal(t, "people.schema.json", SchemaFile("people"))
}
