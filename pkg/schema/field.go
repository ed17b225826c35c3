package schema

import (
	"fmt"
	"regexp"
	"unicode/utf8"

	tferrors "github.com/tabflow/tabflow/pkg/errors"
	"github.com/tabflow/tabflow/pkg/types"
)

// Constraints are the validated, typed constraints of a field.
type Constraints struct {
	Required  bool
	Unique    bool
	MinLength *int
	MaxLength *int
	Minimum   any
	Maximum   any
	Pattern   *regexp.Regexp
	Enum      []any
}

// Field is one validated column definition. Fields are immutable and safe for
// concurrent use.
type Field struct {
	desc        FieldDescriptor
	typ         types.Type
	format      string
	opts        types.Options
	constraints Constraints
	missing     map[string]struct{}
}

func newField(d FieldDescriptor, missingValues []string, primary bool) (*Field, error) {
	if d.Name == "" {
		return nil, tferrors.SchemaInvalid("field without a name")
	}
	typ, err := types.ParseType(d.Type)
	if err != nil {
		return nil, tferrors.Wrap(err, tferrors.CodeSchemaValidation, "invalid field type").
			WithContext("field", d.Name)
	}
	if !types.ValidFormat(typ, d.Format) {
		return nil, tferrors.Newf(tferrors.CodeSchemaValidation, "format %q is not valid for type %s", d.Format, typ).
			WithContext("field", d.Name)
	}

	f := &Field{
		desc:    d,
		typ:     typ,
		format:  d.Format,
		opts:    optionsFor(d),
		missing: make(map[string]struct{}, len(missingValues)),
	}
	for _, mv := range missingValues {
		f.missing[mv] = struct{}{}
	}
	if err := f.compileConstraints(d.Constraints); err != nil {
		return nil, err
	}
	// Primary key members can never be missing.
	if primary {
		f.constraints.Required = true
	}
	return f, nil
}

func optionsFor(d FieldDescriptor) types.Options {
	opts := types.Options{
		TrueValues:  d.TrueValues,
		FalseValues: d.FalseValues,
		DecimalChar: d.DecimalChar,
		GroupChar:   d.GroupChar,
	}
	if d.BareNumber != nil && !*d.BareNumber {
		opts.StripNonNumeric = true
	}
	return opts
}

func (f *Field) compileConstraints(c *ConstraintsDescriptor) error {
	if c == nil {
		return nil
	}
	invalid := func(msg string, args ...any) error {
		return tferrors.Newf(tferrors.CodeSchemaValidation, msg, args...).WithContext("field", f.desc.Name)
	}

	out := Constraints{
		Required:  c.Required != nil && *c.Required,
		Unique:    c.Unique != nil && *c.Unique,
		MinLength: c.MinLength,
		MaxLength: c.MaxLength,
	}
	if c.MinLength != nil && *c.MinLength < 0 {
		return invalid("minLength must not be negative")
	}
	if c.MaxLength != nil && *c.MaxLength < 0 {
		return invalid("maxLength must not be negative")
	}
	if c.Pattern != "" {
		re, err := regexp.Compile(`^(?:` + c.Pattern + `)$`)
		if err != nil {
			return invalid("invalid pattern %q: %v", c.Pattern, err)
		}
		out.Pattern = re
	}
	var err error
	if c.Minimum != nil {
		if out.Minimum, err = types.Cast(f.typ, f.format, c.Minimum, f.opts); err != nil {
			return invalid("minimum %v is not a valid %s", c.Minimum, f.typ)
		}
	}
	if c.Maximum != nil {
		if out.Maximum, err = types.Cast(f.typ, f.format, c.Maximum, f.opts); err != nil {
			return invalid("maximum %v is not a valid %s", c.Maximum, f.typ)
		}
	}
	for _, e := range c.Enum {
		v, err := types.Cast(f.typ, f.format, e, f.opts)
		if err != nil {
			return invalid("enum value %v is not a valid %s", e, f.typ)
		}
		out.Enum = append(out.Enum, v)
	}
	f.constraints = out
	return nil
}

// Name returns the field name.
func (f *Field) Name() string { return f.desc.Name }

// Type returns the field type.
func (f *Field) Type() types.Type { return f.typ }

// Format returns the field format.
func (f *Field) Format() string { return f.format }

// Required reports whether missing values fail the cast.
func (f *Field) Required() bool { return f.constraints.Required }

// Unique reports whether values must be unique across rows.
func (f *Field) Unique() bool { return f.constraints.Unique }

// Options returns the parsing options derived from the descriptor.
func (f *Field) Options() types.Options { return f.opts }

// Constraints returns the typed constraints of the field.
func (f *Field) Constraints() Constraints { return f.constraints }

// Descriptor returns a copy of the normalized field descriptor.
func (f *Field) Descriptor() FieldDescriptor { return f.desc.clone() }

// IsMissing reports whether raw is one of the schema's missing value markers.
func (f *Field) IsMissing(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return true
	case string:
		_, ok := f.missing[v]
		return ok
	}
	return false
}

// CastValue casts raw to the field's type and checks its constraints. A missing
// value casts to nil unless the field is required.
func (f *Field) CastValue(raw any) (any, error) {
	if f.IsMissing(raw) {
		if f.constraints.Required {
			return nil, &types.CastFailure{Type: f.typ, Format: f.format, Value: raw, Reason: "field is required"}
		}
		return nil, nil
	}
	v, err := types.Cast(f.typ, f.format, raw, f.opts)
	if err != nil {
		return nil, err
	}
	if reason := f.check(raw, v); reason != "" {
		return nil, &types.CastFailure{Type: f.typ, Format: f.format, Value: raw, Reason: reason}
	}
	return v, nil
}

// TestValue reports whether raw casts without failure.
func (f *Field) TestValue(raw any) bool {
	_, err := f.CastValue(raw)
	return err == nil
}

func (f *Field) check(raw, v any) string {
	c := f.constraints
	if c.MinLength != nil || c.MaxLength != nil {
		if n, ok := length(v); ok {
			if c.MinLength != nil && n < *c.MinLength {
				return fmt.Sprintf("length %d is below minLength %d", n, *c.MinLength)
			}
			if c.MaxLength != nil && n > *c.MaxLength {
				return fmt.Sprintf("length %d exceeds maxLength %d", n, *c.MaxLength)
			}
		}
	}
	if c.Pattern != nil {
		s, ok := raw.(string)
		if !ok {
			s = types.Format(f.typ, v)
		}
		if !c.Pattern.MatchString(s) {
			return fmt.Sprintf("does not match pattern %s", c.Pattern)
		}
	}
	if len(c.Enum) > 0 {
		found := false
		for _, e := range c.Enum {
			if types.Equal(e, v) {
				found = true
				break
			}
		}
		if !found {
			return "not one of the enum values"
		}
	}
	if c.Minimum != nil {
		cmp, err := types.Compare(v, c.Minimum)
		if err != nil {
			return err.Error()
		}
		if cmp < 0 {
			return fmt.Sprintf("below minimum %s", types.Format(f.typ, c.Minimum))
		}
	}
	if c.Maximum != nil {
		cmp, err := types.Compare(v, c.Maximum)
		if err != nil {
			return err.Error()
		}
		if cmp > 0 {
			return fmt.Sprintf("above maximum %s", types.Format(f.typ, c.Maximum))
		}
	}
	return ""
}

func length(v any) (int, bool) {
	switch x := v.(type) {
	case string:
		return utf8.RuneCountInString(x), true
	case []any:
		return len(x), true
	case map[string]any:
		return len(x), true
	}
	return 0, false
}
