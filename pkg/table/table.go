// Package table runs the casting pipeline over a row source: pre-cast processors,
// casting, uniqueness and primary key checks, foreign key resolution, post-cast
// processors and shaping. Traversals are lazy and restartable; every traversal owns its
// own constraint state.
package table

import (
	"context"
	"errors"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tabflow/tabflow/pkg/constraint"
	tferrors "github.com/tabflow/tabflow/pkg/errors"
	"github.com/tabflow/tabflow/pkg/ingest/core"
	"github.com/tabflow/tabflow/pkg/schema"
)

const tracerName = "github.com/tabflow/tabflow/pkg/table"

// Table is a lazily evaluated, typed view of a row source.
type Table struct {
	source   core.RowSource
	storage  core.Storage
	resource string

	preCast       []Processor
	postCast      []Processor
	sampleSize    int
	missingValues []string
	name          string
	logger        zerolog.Logger
	tracer        trace.Tracer

	mu      sync.Mutex
	schema  *schema.Schema
	headers []string

	optErr error
}

// New creates a table over src.
func New(src core.RowSource, opts ...Option) (*Table, error) {
	t := &Table{
		source:     src,
		sampleSize: DefaultSampleSize,
		logger:     zerolog.Nop(),
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.optErr != nil {
		return nil, t.optErr
	}
	return t, nil
}

// NewFromStorage creates a table over one resource of a storage backend. Headers and
// the inferred schema come from the backend's descriptor.
func NewFromStorage(st core.Storage, resource string, opts ...Option) (*Table, error) {
	t, err := New(core.StorageSource{Storage: st, Resource: resource}, append([]Option{WithName(resource)}, opts...)...)
	if err != nil {
		return nil, err
	}
	t.storage = st
	t.resource = resource
	return t, nil
}

// Schema returns the active schema, or nil before one is set or inferred.
func (t *Table) Schema() *schema.Schema {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.schema
}

// Headers returns the source headers.
func (t *Table) Headers(ctx context.Context) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.headers != nil {
		return slices.Clone(t.headers), nil
	}
	headers, err := t.source.Headers(ctx)
	if err != nil {
		return nil, sourceError(err)
	}
	t.headers = headers
	return slices.Clone(headers), nil
}

// Infer guesses the schema, makes it the active schema and returns its normalized
// descriptor. Storage tables use the described descriptor.
func (t *Table) Infer(ctx context.Context) (*schema.Descriptor, error) {
	ctx, span := t.tracer.Start(ctx, "table.infer", trace.WithAttributes(attribute.String("table", t.name)))
	defer span.End()

	t.mu.Lock()
	defer t.mu.Unlock()
	d, err := t.inferLocked(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("fields", len(d.Fields)))
	return d, nil
}

func (t *Table) inferLocked(ctx context.Context) (*schema.Descriptor, error) {
	if t.storage != nil {
		d, err := t.storage.Describe(ctx, t.resource)
		if err != nil {
			return nil, sourceError(err)
		}
		s, err := schema.New(*d)
		if err != nil {
			return nil, err
		}
		t.schema = s
		t.headers = s.FieldNames()
		n := s.Descriptor()
		return &n, nil
	}

	headers, err := t.source.Headers(ctx)
	if err != nil {
		return nil, sourceError(err)
	}

	var sample [][]any
	for values, err := range t.source.Rows(ctx) {
		if err != nil {
			return nil, sourceError(err)
		}
		sample = append(sample, values)
		if t.sampleSize > 0 && len(sample) >= t.sampleSize {
			break
		}
	}

	d, err := schema.Infer(headers, sample, schema.InferOptions{MissingValues: t.missingValues})
	if err != nil {
		return nil, err
	}
	s, err := schema.New(*d)
	if err != nil {
		return nil, err
	}
	t.schema = s
	t.headers = headers
	t.logger.Debug().Str("table", t.name).Int("sampled", len(sample)).Int("fields", len(d.Fields)).Msg("schema inferred")
	n := s.Descriptor()
	return &n, nil
}

// activeSchema returns the schema and headers, inferring when no schema is set.
func (t *Table) activeSchema(ctx context.Context) (*schema.Schema, []string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.schema == nil {
		if _, err := t.inferLocked(ctx); err != nil {
			return nil, nil, err
		}
	}
	if t.headers == nil {
		headers, err := t.source.Headers(ctx)
		if err != nil {
			return nil, nil, sourceError(err)
		}
		t.headers = headers
	}
	return t.schema, t.headers, nil
}

// traversal is the state of one Iter call.
type traversal struct {
	id    string
	stage Stage
	err   error
}

func (tr *traversal) fail(stage Stage, err error) {
	if tr.err != nil {
		return
	}
	tr.stage = stage
	var te *tferrors.Error
	if errors.As(err, &te) {
		tr.err = te.WithContext("stage", stage.String())
		return
	}
	tr.err = err
}

// Iter returns a lazy sequence of rows. Iteration stops at the first error, which is
// yielded after every row emitted before it. Each call restarts the source and owns
// fresh constraint state.
func (t *Table) Iter(ctx context.Context, opts ...ReadOption) iter.Seq2[Row, error] {
	var cfg readConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(yield func(Row, error) bool) {
		tr := &traversal{id: uuid.NewString(), stage: StageNotStarted}
		ctx, span := t.tracer.Start(ctx, "table.iter", trace.WithAttributes(
			attribute.String("table", t.name),
			attribute.String("traversal", tr.id),
			attribute.Bool("keyed", cfg.keyed),
			attribute.Int("limit", cfg.limit),
		))
		defer span.End()

		log := t.logger.With().Str("table", t.name).Str("traversal", tr.id).Logger()
		start := time.Now()
		log.Debug().Msg("traversal started")

		emitted := 0
		defer func() {
			span.SetAttributes(attribute.Int("rows", emitted))
			if tr.err != nil {
				span.RecordError(tr.err)
				span.SetStatus(codes.Error, tr.err.Error())
				log.Debug().Err(tr.err).Str("stage", tr.stage.String()).Int("rows", emitted).Msg("traversal failed")
				return
			}
			log.Debug().Int("rows", emitted).Dur("elapsed", time.Since(start)).Msg("traversal finished")
		}()

		tr.stage = StageAcquiring
		s, headers, err := t.activeSchema(ctx)
		if err != nil {
			tr.fail(StageAcquiring, err)
			yield(Row{}, tr.err)
			return
		}

		rows := t.acquire(ctx, headers, tr)
		rows = Chain(t.preCast...)(rows)
		rows = t.cast(s, rows, cfg, tr)
		rows = Chain(t.postCast...)(rows)

		for row := range rows {
			if !yield(shape(row, cfg.keyed), nil) {
				return
			}
			emitted++
			if cfg.limit > 0 && emitted >= cfg.limit {
				break
			}
		}
		if tr.err != nil {
			yield(Row{}, tr.err)
			return
		}
		tr.stage = StageDone
	}
}

// Read consumes Iter. On failure it returns the rows emitted before the error together
// with the error.
func (t *Table) Read(ctx context.Context, opts ...ReadOption) ([]Row, error) {
	var rows []Row
	for row, err := range t.Iter(ctx, opts...) {
		if err != nil {
			return rows, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (t *Table) acquire(ctx context.Context, headers []string, tr *traversal) iter.Seq[ExtendedRow] {
	return func(yield func(ExtendedRow) bool) {
		number := 0
		for values, err := range t.source.Rows(ctx) {
			if err != nil {
				tr.fail(StageAcquiring, sourceError(err))
				return
			}
			if err := ctx.Err(); err != nil {
				tr.fail(StageAcquiring, tferrors.Canceled("table.iter", err))
				return
			}
			number++
			if !yield(ExtendedRow{Number: number, Headers: headers, Values: values}) {
				return
			}
		}
	}
}

func (t *Table) cast(s *schema.Schema, rows iter.Seq[ExtendedRow], cfg readConfig, tr *traversal) iter.Seq[ExtendedRow] {
	names := s.FieldNames()
	return func(yield func(ExtendedRow) bool) {
		unique := constraint.NewUniqueTracker(s)
		var resolver *constraint.Resolver
		if cfg.relations != nil {
			resolver = constraint.NewResolver(s, cfg.relations)
		}

		for row := range rows {
			if !slices.Equal(row.Headers, names) {
				tr.fail(StageCasting, tferrors.HeaderMismatch(row.Headers, names))
				return
			}
			typed, err := s.CastRowAt(row.Number, row.Values)
			if err != nil {
				tr.fail(StageCasting, err)
				return
			}
			if unique.Enabled() {
				if err := unique.Check(row.Number, typed); err != nil {
					tr.fail(StageConstraintCheck, err)
					return
				}
			}
			if resolver != nil && resolver.Enabled() {
				if typed, err = resolver.Resolve(row.Number, typed); err != nil {
					tr.fail(StageResolving, err)
					return
				}
			}
			if !yield(ExtendedRow{Number: row.Number, Headers: names, Values: typed}) {
				return
			}
		}
	}
}

func shape(row ExtendedRow, keyed bool) Row {
	if !keyed {
		return Row{Number: row.Number, Values: row.Values, Fields: row.Headers}
	}
	m := make(map[string]any, len(row.Headers))
	for i, h := range row.Headers {
		if i < len(row.Values) {
			m[h] = row.Values[i]
		}
	}
	return Row{Number: row.Number, Keyed: m, Fields: row.Headers}
}

func sourceError(err error) error {
	var te *tferrors.Error
	if errors.As(err, &te) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return tferrors.Canceled("table.iter", err)
	}
	return tferrors.Wrap(err, tferrors.CodeSource, "failed to read source")
}
