package table

import (
	"github.com/rs/zerolog"

	"github.com/tabflow/tabflow/pkg/constraint"
	"github.com/tabflow/tabflow/pkg/schema"
)

// DefaultSampleSize is the number of rows Infer reads unless told otherwise.
const DefaultSampleSize = 100

// Option configures a Table.
type Option func(*Table)

// WithSchema sets the schema used to cast rows.
func WithSchema(s *schema.Schema) Option {
	return func(t *Table) {
		t.schema = s
	}
}

// WithDescriptor builds the schema from a descriptor. Validation errors are returned
// by New.
func WithDescriptor(d schema.Descriptor) Option {
	return func(t *Table) {
		s, err := schema.New(d)
		if err != nil {
			t.optErr = err
			return
		}
		t.schema = s
	}
}

// WithPreCast appends processors that run on raw rows before casting.
func WithPreCast(ps ...Processor) Option {
	return func(t *Table) {
		t.preCast = append(t.preCast, ps...)
	}
}

// WithPostCast appends processors that run on typed rows after constraint checks and
// foreign key resolution.
func WithPostCast(ps ...Processor) Option {
	return func(t *Table) {
		t.postCast = append(t.postCast, ps...)
	}
}

// WithSampleSize sets how many rows Infer reads; 0 reads every row.
func WithSampleSize(n int) Option {
	return func(t *Table) {
		t.sampleSize = n
	}
}

// WithMissingValues sets the missing value markers used by inference.
func WithMissingValues(values ...string) Option {
	return func(t *Table) {
		t.missingValues = values
	}
}

// WithLogger sets the logger for traversal events.
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Table) {
		t.logger = logger
	}
}

// WithName names the table in logs and spans.
func WithName(name string) Option {
	return func(t *Table) {
		t.name = name
	}
}

// ReadOption configures one traversal.
type ReadOption func(*readConfig)

type readConfig struct {
	keyed     bool
	limit     int
	relations constraint.Relations
}

// Keyed emits rows as field name to value mappings.
func Keyed() ReadOption {
	return func(c *readConfig) {
		c.keyed = true
	}
}

// Limit stops the traversal after n emitted rows. n <= 0 means no limit.
func Limit(n int) ReadOption {
	return func(c *readConfig) {
		c.limit = n
	}
}

// WithRelations enables foreign key resolution against relations.
func WithRelations(relations constraint.Relations) ReadOption {
	return func(c *readConfig) {
		c.relations = relations
	}
}
