package schema

import (
	"bytes"
	"os"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	tferrors "github.com/tabflow/tabflow/pkg/errors"
)

// Defaults applied by Normalize.
const (
	DefaultFieldType   = "string"
	DefaultFieldFormat = "default"
)

// DefaultMissingValues is used when a descriptor declares no missingValues.
var DefaultMissingValues = []string{""}

// Descriptor is the JSON/YAML form of a schema.
type Descriptor struct {
	Fields        []FieldDescriptor      `json:"fields" yaml:"fields"`
	MissingValues []string               `json:"missingValues" yaml:"missingValues"`
	PrimaryKey    StringList             `json:"primaryKey,omitempty" yaml:"primaryKey,omitempty"`
	ForeignKeys   []ForeignKeyDescriptor `json:"foreignKeys,omitempty" yaml:"foreignKeys,omitempty"`
}

// FieldDescriptor describes one field.
type FieldDescriptor struct {
	Name        string                 `json:"name" yaml:"name"`
	Title       string                 `json:"title,omitempty" yaml:"title,omitempty"`
	Description string                 `json:"description,omitempty" yaml:"description,omitempty"`
	Type        string                 `json:"type" yaml:"type"`
	Format      string                 `json:"format" yaml:"format"`
	Constraints *ConstraintsDescriptor `json:"constraints,omitempty" yaml:"constraints,omitempty"`
	TrueValues  []string               `json:"trueValues,omitempty" yaml:"trueValues,omitempty"`
	FalseValues []string               `json:"falseValues,omitempty" yaml:"falseValues,omitempty"`
	DecimalChar string                 `json:"decimalChar,omitempty" yaml:"decimalChar,omitempty"`
	GroupChar   string                 `json:"groupChar,omitempty" yaml:"groupChar,omitempty"`
	BareNumber  *bool                  `json:"bareNumber,omitempty" yaml:"bareNumber,omitempty"`
}

// ConstraintsDescriptor holds the constraints of a field. Minimum, Maximum and Enum
// entries are written in the field's own type and cast when the schema is built.
type ConstraintsDescriptor struct {
	Required  *bool  `json:"required,omitempty" yaml:"required,omitempty"`
	Unique    *bool  `json:"unique,omitempty" yaml:"unique,omitempty"`
	MinLength *int   `json:"minLength,omitempty" yaml:"minLength,omitempty"`
	MaxLength *int   `json:"maxLength,omitempty" yaml:"maxLength,omitempty"`
	Minimum   any    `json:"minimum,omitempty" yaml:"minimum,omitempty"`
	Maximum   any    `json:"maximum,omitempty" yaml:"maximum,omitempty"`
	Pattern   string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Enum      []any  `json:"enum,omitempty" yaml:"enum,omitempty"`
}

// ForeignKeyDescriptor links local fields to fields of a relation resource.
type ForeignKeyDescriptor struct {
	Fields    StringList          `json:"fields" yaml:"fields"`
	Reference ReferenceDescriptor `json:"reference" yaml:"reference"`
}

// ReferenceDescriptor names the relation resource and its fields.
type ReferenceDescriptor struct {
	Resource string     `json:"resource" yaml:"resource"`
	Fields   StringList `json:"fields" yaml:"fields"`
}

// StringList decodes from a single string or a list of strings and always encodes
// as a list.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = StringList{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*l = list
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*l = StringList{node.Value}
		return nil
	}
	var list []string
	if err := node.Decode(&list); err != nil {
		return err
	}
	*l = list
	return nil
}

// Normalize returns a copy of d with defaults applied: type "string", format "default"
// and missingValues [""]. Normalizing a normalized descriptor returns an equal descriptor.
func Normalize(d Descriptor) Descriptor {
	out := d.Clone()
	if out.Fields == nil {
		out.Fields = []FieldDescriptor{}
	}
	for i := range out.Fields {
		if out.Fields[i].Type == "" {
			out.Fields[i].Type = DefaultFieldType
		}
		if out.Fields[i].Format == "" {
			out.Fields[i].Format = DefaultFieldFormat
		}
	}
	if out.MissingValues == nil {
		out.MissingValues = append([]string(nil), DefaultMissingValues...)
	}
	if len(out.PrimaryKey) == 0 {
		out.PrimaryKey = nil
	}
	if len(out.ForeignKeys) == 0 {
		out.ForeignKeys = nil
	}
	return out
}

// Clone returns a deep copy of the descriptor.
func (d Descriptor) Clone() Descriptor {
	out := Descriptor{
		MissingValues: cloneStrings(d.MissingValues),
		PrimaryKey:    StringList(cloneStrings(d.PrimaryKey)),
	}
	if d.Fields != nil {
		out.Fields = make([]FieldDescriptor, len(d.Fields))
		for i, f := range d.Fields {
			out.Fields[i] = f.clone()
		}
	}
	if d.ForeignKeys != nil {
		out.ForeignKeys = make([]ForeignKeyDescriptor, len(d.ForeignKeys))
		for i, fk := range d.ForeignKeys {
			out.ForeignKeys[i] = ForeignKeyDescriptor{
				Fields: StringList(cloneStrings(fk.Fields)),
				Reference: ReferenceDescriptor{
					Resource: fk.Reference.Resource,
					Fields:   StringList(cloneStrings(fk.Reference.Fields)),
				},
			}
		}
	}
	return out
}

func (f FieldDescriptor) clone() FieldDescriptor {
	out := f
	out.TrueValues = cloneStrings(f.TrueValues)
	out.FalseValues = cloneStrings(f.FalseValues)
	if f.BareNumber != nil {
		b := *f.BareNumber
		out.BareNumber = &b
	}
	if f.Constraints != nil {
		c := *f.Constraints
		c.Required = cloneBool(c.Required)
		c.Unique = cloneBool(c.Unique)
		c.MinLength = cloneInt(c.MinLength)
		c.MaxLength = cloneInt(c.MaxLength)
		if c.Enum != nil {
			c.Enum = append([]any(nil), c.Enum...)
		}
		out.Constraints = &c
	}
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string{}, s...)
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}

func cloneInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

// FieldNames returns the declared field names in order.
func (d Descriptor) FieldNames() []string {
	names := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		names[i] = f.Name
	}
	return names
}

// Parse decodes a JSON or YAML descriptor.
func Parse(data []byte) (Descriptor, error) {
	var d Descriptor
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &d); err != nil {
			return d, tferrors.Wrap(err, tferrors.CodeSchemaLoad, "invalid JSON descriptor")
		}
		return d, nil
	}
	if err := yaml.Unmarshal(data, &d); err != nil {
		return d, tferrors.Wrap(err, tferrors.CodeSchemaLoad, "invalid YAML descriptor")
	}
	return d, nil
}

// Load reads a descriptor file and builds the schema it describes.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, tferrors.Wrap(err, tferrors.CodeSchemaLoad, "failed to read descriptor").
			WithContext("path", path)
	}
	d, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return New(d)
}

// JSON encodes the descriptor.
func (d Descriptor) JSON() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// YAML encodes the descriptor.
func (d Descriptor) YAML() ([]byte, error) {
	return yaml.Marshal(d)
}
