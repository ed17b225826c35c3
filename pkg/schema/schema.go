// Package schema turns a table schema descriptor into validated fields and casts rows
// under it.
package schema

import (
	"fmt"
	"strings"

	tferrors "github.com/tabflow/tabflow/pkg/errors"
)

// ForeignKey is a validated foreign key with resolved local field positions.
type ForeignKey struct {
	Fields          []string
	FieldIndexes    []int
	Resource        string
	ReferenceFields []string
}

// Schema is an immutable, validated schema. It is safe for concurrent use.
type Schema struct {
	desc        Descriptor
	fields      []*Field
	index       map[string]int
	primaryKey  []int
	foreignKeys []ForeignKey
}

// CellResult is the outcome of casting one cell.
type CellResult struct {
	Field string
	Value any
	Err   error
}

// New validates d and builds a Schema from its normalized form.
func New(d Descriptor) (*Schema, error) {
	d = Normalize(d)
	s := &Schema{
		desc:  d,
		index: make(map[string]int, len(d.Fields)),
	}

	primary := make(map[string]bool, len(d.PrimaryKey))
	for _, name := range d.PrimaryKey {
		primary[name] = true
	}

	for i, fd := range d.Fields {
		if _, dup := s.index[fd.Name]; dup && fd.Name != "" {
			return nil, tferrors.SchemaInvalid("duplicate field name %q", fd.Name)
		}
		f, err := newField(fd, d.MissingValues, primary[fd.Name])
		if err != nil {
			return nil, err
		}
		s.fields = append(s.fields, f)
		s.index[fd.Name] = i
	}

	for _, name := range d.PrimaryKey {
		i, ok := s.index[name]
		if !ok {
			return nil, tferrors.SchemaInvalid("primary key field %q is not a schema field", name)
		}
		s.primaryKey = append(s.primaryKey, i)
	}

	for n, fkd := range d.ForeignKeys {
		fk, err := s.foreignKey(fkd)
		if err != nil {
			return nil, err.WithContext("foreignKey", n)
		}
		s.foreignKeys = append(s.foreignKeys, fk)
	}
	return s, nil
}

func (s *Schema) foreignKey(d ForeignKeyDescriptor) (ForeignKey, *tferrors.Error) {
	if len(d.Fields) == 0 {
		return ForeignKey{}, tferrors.SchemaInvalid("foreign key without fields")
	}
	if d.Reference.Resource == "" {
		return ForeignKey{}, tferrors.SchemaInvalid("foreign key reference without resource")
	}
	if len(d.Fields) != len(d.Reference.Fields) {
		return ForeignKey{}, tferrors.SchemaInvalid("foreign key has %d fields but its reference has %d",
			len(d.Fields), len(d.Reference.Fields))
	}
	fk := ForeignKey{
		Fields:          cloneStrings(d.Fields),
		Resource:        d.Reference.Resource,
		ReferenceFields: cloneStrings(d.Reference.Fields),
	}
	for _, name := range d.Fields {
		i, ok := s.index[name]
		if !ok {
			return ForeignKey{}, tferrors.SchemaInvalid("foreign key field %q is not a schema field", name)
		}
		fk.FieldIndexes = append(fk.FieldIndexes, i)
	}
	return fk, nil
}

// Descriptor returns a copy of the normalized descriptor.
func (s *Schema) Descriptor() Descriptor { return s.desc.Clone() }

// Fields returns the fields in declaration order.
func (s *Schema) Fields() []*Field { return append([]*Field(nil), s.fields...) }

// FieldNames returns the field names in declaration order.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name()
	}
	return names
}

// FieldByName returns the named field.
func (s *Schema) FieldByName(name string) (*Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return s.fields[i], true
}

// FieldAt returns the field at position i.
func (s *Schema) FieldAt(i int) *Field { return s.fields[i] }

// FieldIndex returns the position of the named field or -1.
func (s *Schema) FieldIndex(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

// HasField reports whether the schema declares name.
func (s *Schema) HasField(name string) bool {
	_, ok := s.index[name]
	return ok
}

// MissingValues returns the missing value markers.
func (s *Schema) MissingValues() []string { return cloneStrings(s.desc.MissingValues) }

// PrimaryKey returns the primary key field names.
func (s *Schema) PrimaryKey() []string { return cloneStrings(s.desc.PrimaryKey) }

// PrimaryKeyIndexes returns the positions of the primary key fields.
func (s *Schema) PrimaryKeyIndexes() []int { return append([]int(nil), s.primaryKey...) }

// ForeignKeys returns the validated foreign keys in declaration order.
func (s *Schema) ForeignKeys() []ForeignKey {
	out := make([]ForeignKey, len(s.foreignKeys))
	for i, fk := range s.foreignKeys {
		out[i] = ForeignKey{
			Fields:          cloneStrings(fk.Fields),
			FieldIndexes:    append([]int(nil), fk.FieldIndexes...),
			Resource:        fk.Resource,
			ReferenceFields: cloneStrings(fk.ReferenceFields),
		}
	}
	return out
}

// CastRow casts every cell positionally. It never stops at the first failure; cells
// beyond the field count and fields without a cell are reported as failures.
func (s *Schema) CastRow(values []any) []CellResult {
	n := max(len(values), len(s.fields))
	out := make([]CellResult, n)
	for i := 0; i < n; i++ {
		switch {
		case i >= len(s.fields):
			out[i] = CellResult{Value: values[i], Err: fmt.Errorf("extra cell %q at position %d", fmt.Sprint(values[i]), i+1)}
		case i >= len(values):
			f := s.fields[i]
			out[i] = CellResult{Field: f.Name(), Err: fmt.Errorf("missing cell for field %q", f.Name())}
		default:
			f := s.fields[i]
			v, err := f.CastValue(values[i])
			out[i] = CellResult{Field: f.Name(), Value: v, Err: err}
		}
	}
	return out
}

// CastRowStrict casts a row and aggregates its failures into one cast error.
func (s *Schema) CastRowStrict(values []any) ([]any, error) {
	return s.CastRowAt(0, values)
}

// CastRowAt is CastRowStrict for a numbered row; failures carry the row number.
func (s *Schema) CastRowAt(row int, values []any) ([]any, error) {
	results := s.CastRow(values)
	typed := make([]any, len(s.fields))
	var failures RowFailures
	for i, r := range results {
		if r.Err != nil {
			var raw any
			if i < len(values) {
				raw = values[i]
			}
			failures = append(failures, Failure{Row: row, Field: r.Field, Value: raw, Reason: r.Err.Error()})
			continue
		}
		if i < len(typed) {
			typed[i] = r.Value
		}
	}
	if err := failures.Err(); err != nil {
		return nil, err
	}
	return typed, nil
}

// CastValue casts a single value under the named field.
func (s *Schema) CastValue(field string, value any) (any, error) {
	f, ok := s.FieldByName(field)
	if !ok {
		return nil, tferrors.Newf(tferrors.CodeCast, "unknown field %q", field)
	}
	v, err := f.CastValue(value)
	if err != nil {
		return nil, RowFailures{{Field: field, Value: value, Reason: err.Error()}}.Err()
	}
	return v, nil
}

// Failure is one value-level failure of a row.
type Failure struct {
	Row    int
	Field  string
	Value  any
	Reason string
}

func (f Failure) String() string {
	var sb strings.Builder
	if f.Row > 0 {
		fmt.Fprintf(&sb, "row %d: ", f.Row)
	}
	if f.Field != "" {
		fmt.Fprintf(&sb, "field %q: ", f.Field)
	}
	sb.WriteString(f.Reason)
	return sb.String()
}

// RowFailures aggregates the failures of one or more rows.
type RowFailures []Failure

func (fs RowFailures) Error() string {
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = f.String()
	}
	return strings.Join(parts, "; ")
}

// Err returns nil when fs is empty and a cast error enumerating every failure otherwise.
func (fs RowFailures) Err() error {
	if len(fs) == 0 {
		return nil
	}
	err := tferrors.Wrapf(fs, tferrors.CodeCast, "%d cast error(s)", len(fs))
	if fs[0].Row > 0 {
		err = err.WithContext("row", fs[0].Row)
	}
	return err
}
