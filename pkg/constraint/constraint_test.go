package constraint

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tferrors "github.com/tabflow/tabflow/pkg/errors"
	"github.com/tabflow/tabflow/pkg/schema"
)

func mustSchema(t *testing.T, d schema.Descriptor) *schema.Schema {
	t.Helper()
	s, err := schema.New(d)
	require.NoError(t, err)
	return s
}

func people() Relations {
	return Relations{
		"people": {
			{"firstname": "Alex", "surname": "Martin"},
			{"firstname": "John", "surname": "Dockins"},
			{"firstname": "Walter", "surname": "White"},
		},
	}
}

func fkSchema(t *testing.T, fks ...schema.ForeignKeyDescriptor) *schema.Schema {
	return mustSchema(t, schema.Descriptor{
		Fields:      []schema.FieldDescriptor{{Name: "id"}, {Name: "name"}, {Name: "surname"}},
		ForeignKeys: fks,
	})
}

func fk(resource string, local, remote []string) schema.ForeignKeyDescriptor {
	return schema.ForeignKeyDescriptor{
		Fields:    local,
		Reference: schema.ReferenceDescriptor{Resource: resource, Fields: remote},
	}
}

func TestUniqueTracker_UniqueField(t *testing.T) {
	yes := true
	s := mustSchema(t, schema.Descriptor{Fields: []schema.FieldDescriptor{
		{Name: "id", Type: "integer", Constraints: &schema.ConstraintsDescriptor{Unique: &yes}},
		{Name: "age", Type: "integer"},
		{Name: "name"},
	}})
	tr := NewUniqueTracker(s)
	require.True(t, tr.Enabled())

	require.NoError(t, tr.Check(1, []any{int64(1), int64(39), "Paul"}))
	err := tr.Check(2, []any{int64(1), int64(36), "Jane"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicates")
	assert.Contains(t, err.Error(), `row 2 duplicates row 1 on field "id"`)
	assert.True(t, errors.Is(err, tferrors.ErrCast))
	assert.True(t, tferrors.IsCode(err, tferrors.CodeDuplicate))

	// Missing values are exempt.
	require.NoError(t, tr.Check(3, []any{nil, int64(1), "A"}))
	require.NoError(t, tr.Check(4, []any{nil, int64(1), "B"}))

	stats := tr.Stats()
	assert.Equal(t, int64(4), stats.RowsChecked)
	assert.Equal(t, int64(1), stats.DuplicateRows)
	assert.Equal(t, 1, stats.KeysTracked)

	tr.Reset()
	require.NoError(t, tr.Check(1, []any{int64(1), int64(39), "Paul"}))
}

func TestUniqueTracker_CompositePrimaryKey(t *testing.T) {
	s := mustSchema(t, schema.Descriptor{
		Fields:     []schema.FieldDescriptor{{Name: "id1"}, {Name: "id2"}},
		PrimaryKey: schema.StringList{"id1", "id2"},
	})

	tr := NewUniqueTracker(s)
	require.NoError(t, tr.Check(1, []any{"a", "1"}))
	require.NoError(t, tr.Check(2, []any{"a", "2"}))
	err := tr.Check(3, []any{"a", "1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `fields "id1", "id2"`)
	assert.Contains(t, err.Error(), `("a", "1")`)
}

func TestUniqueTracker_TypedKeys(t *testing.T) {
	yes := true
	s := mustSchema(t, schema.Descriptor{Fields: []schema.FieldDescriptor{
		{Name: "v", Type: "any", Constraints: &schema.ConstraintsDescriptor{Unique: &yes}},
	}})
	tr := NewUniqueTracker(s)
	require.NoError(t, tr.Check(1, []any{int64(1)}))
	require.NoError(t, tr.Check(2, []any{"1"}), "an integer and a string are distinct values")
}

func TestUniqueTracker_FailedRowNotRecorded(t *testing.T) {
	yes := true
	s := mustSchema(t, schema.Descriptor{Fields: []schema.FieldDescriptor{
		{Name: "a", Constraints: &schema.ConstraintsDescriptor{Unique: &yes}},
		{Name: "b", Constraints: &schema.ConstraintsDescriptor{Unique: &yes}},
	}})
	tr := NewUniqueTracker(s)
	require.NoError(t, tr.Check(1, []any{"x", "y"}))
	require.Error(t, tr.Check(2, []any{"x", "z"}))
	// "z" was not recorded by the failing row.
	require.NoError(t, tr.Check(3, []any{"w", "z"}))
}

func TestUniqueTracker_Disabled(t *testing.T) {
	tr := NewUniqueTracker(mustSchema(t, schema.Descriptor{Fields: []schema.FieldDescriptor{{Name: "a"}}}))
	assert.False(t, tr.Enabled())
	require.NoError(t, tr.Check(1, []any{"x"}))
	require.NoError(t, tr.Check(2, []any{"x"}))
}

func TestResolver_SingleField(t *testing.T) {
	s := fkSchema(t, fk("people", []string{"name"}, []string{"firstname"}))
	r := NewResolver(s, people())
	require.True(t, r.Enabled())

	got, err := r.Resolve(1, []any{"1", "Alex", "Martin"})
	require.NoError(t, err)
	assert.Equal(t, []any{"1", map[string]any{"firstname": "Alex", "surname": "Martin"}, "Martin"}, got)

	rel := people()
	rel["people"][2]["firstname"] = "Max"
	_, err = NewResolver(s, rel).Resolve(3, []any{"3", "Walter", "White"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Foreign key")
	assert.Contains(t, err.Error(), `("Walter")`)
	assert.True(t, errors.Is(err, tferrors.ErrRelation))
	assert.False(t, errors.Is(err, tferrors.ErrCast))
}

func TestResolver_MultiField(t *testing.T) {
	s := fkSchema(t, fk("people", []string{"name", "surname"}, []string{"firstname", "surname"}))
	r := NewResolver(s, people())

	got, err := r.Resolve(2, []any{"2", "John", "Dockins"})
	require.NoError(t, err)
	want := map[string]any{"firstname": "John", "surname": "Dockins"}
	assert.Equal(t, []any{"2", want, want}, got)

	_, err = r.Resolve(3, []any{"3", "John", "White"})
	assert.ErrorContains(t, err, "Foreign key")
}

func TestResolver_MultipleKeysSameField(t *testing.T) {
	s := fkSchema(t,
		fk("people", []string{"name"}, []string{"firstname"}),
		fk("gender", []string{"name"}, []string{"firstname"}),
	)
	rel := people()
	rel["gender"] = []map[string]any{
		{"firstname": "Alex", "gender": "male/female"},
		{"firstname": "John", "gender": "male"},
		{"firstname": "Walter", "gender": "male"},
		{"firstname": "Alice", "gender": "female"},
	}
	r := NewResolver(s, rel)

	got, err := r.Resolve(1, []any{"1", "Alex", "Martin"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"firstname": "Alex", "surname": "Martin", "gender": "male/female"}, got[1])
	assert.Equal(t, "Martin", got[2])

	rel["gender"][1]["firstname"] = "Johny"
	_, err = NewResolver(s, rel).Resolve(2, []any{"2", "John", "Dockins"})
	assert.ErrorContains(t, err, "Foreign key")
}

func TestResolver_FirstMatchWins(t *testing.T) {
	s := fkSchema(t, fk("people", []string{"name"}, []string{"firstname"}))
	rel := Relations{"people": {
		{"firstname": "Alex", "n": 1},
		{"firstname": "Alex", "n": 2},
	}}
	got, err := NewResolver(s, rel).Resolve(1, []any{"1", "Alex", "x"})
	require.NoError(t, err)
	assert.Equal(t, 1, got[1].(map[string]any)["n"])
}

func TestResolver_TypedMatchingOnly(t *testing.T) {
	s := mustSchema(t, schema.Descriptor{
		Fields:      []schema.FieldDescriptor{{Name: "person", Type: "integer"}},
		ForeignKeys: []schema.ForeignKeyDescriptor{fk("people", []string{"person"}, []string{"id"})},
	})
	rel := Relations{"people": {
		{"id": "1", "name": "from string"},
		{"id": int64(2), "name": "typed"},
		{"id": float64(3), "name": "float"},
	}}
	r := NewResolver(s, rel)

	_, err := r.Resolve(1, []any{int64(1)})
	require.Error(t, err, "a string cell does not match an integer")
	assert.True(t, tferrors.IsCode(err, tferrors.CodeRelation))

	got, err := r.Resolve(2, []any{int64(2)})
	require.NoError(t, err)
	assert.Equal(t, "typed", got[0].(map[string]any)["name"])

	_, err = r.Resolve(3, []any{int64(3)})
	assert.Error(t, err, "no implicit numeric coercion")

	strs := mustSchema(t, schema.Descriptor{
		Fields:      []schema.FieldDescriptor{{Name: "person", Type: "string"}},
		ForeignKeys: []schema.ForeignKeyDescriptor{fk("people", []string{"person"}, []string{"id"})},
	})
	got, err = NewResolver(strs, rel).Resolve(1, []any{"1"})
	require.NoError(t, err)
	assert.Equal(t, "from string", got[0].(map[string]any)["name"])

	_, err = NewResolver(strs, rel).Resolve(2, []any{"2"})
	assert.Error(t, err, "an integer cell does not match a string")
}

func TestResolver_MissingValuesAndResources(t *testing.T) {
	s := fkSchema(t, fk("people", []string{"name"}, []string{"firstname"}))

	got, err := NewResolver(s, people()).Resolve(1, []any{"1", nil, "x"})
	require.NoError(t, err, "a missing foreign key is not resolved")
	assert.Nil(t, got[1])

	_, err = NewResolver(s, Relations{}).Resolve(1, []any{"1", "Alex", "x"})
	assert.ErrorContains(t, err, `resource "people" which was not supplied`)

	assert.False(t, NewResolver(s, nil).Enabled())
}

func TestResolver_DoesNotMutateRelations(t *testing.T) {
	s := fkSchema(t,
		fk("people", []string{"name"}, []string{"firstname"}),
		fk("gender", []string{"name"}, []string{"firstname"}),
	)
	rel := people()
	rel["gender"] = []map[string]any{{"firstname": "Alex", "gender": "x"}}

	_, err := NewResolver(s, rel).Resolve(1, []any{"1", "Alex", "Martin"})
	require.NoError(t, err)
	assert.NotContains(t, rel["people"][0], "gender")
}
