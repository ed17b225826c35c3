package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/tabflow/tabflow/pkg/config"
	"github.com/tabflow/tabflow/pkg/constraint"
	tferrors "github.com/tabflow/tabflow/pkg/errors"
	"github.com/tabflow/tabflow/pkg/ingest/core"
	"github.com/tabflow/tabflow/pkg/ingest/sources"
	"github.com/tabflow/tabflow/pkg/registry"
	"github.com/tabflow/tabflow/pkg/schema"
	s3store "github.com/tabflow/tabflow/pkg/storage/s3"
	"github.com/tabflow/tabflow/pkg/table"
	"github.com/tabflow/tabflow/pkg/types"
)

// tableFlags are shared by every command that opens a table.
type tableFlags struct {
	format      string
	sheet       string
	delimiter   string
	schemaFile  string
	relations   string
	pre         []string
	post        []string
	storageName string
	resource    string
	bearer      string

	// inferOnly ignores saved descriptors so the table is always inferred.
	inferOnly bool
}

// registerSource adds the flags that locate and decode a table.
func (f *tableFlags) registerSource(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.format, "format", "f", "", "Input format (csv, tsv, xlsx) - detected from the location if not set")
	cmd.Flags().StringVar(&f.sheet, "sheet", "", "XLSX sheet name (default: first sheet)")
	cmd.Flags().StringVar(&f.delimiter, "delimiter", "", "CSV field delimiter (default: detected)")
	cmd.Flags().StringVar(&f.bearer, "bearer", "", "Bearer token for http(s) locations")
	cmd.Flags().StringVar(&f.storageName, "storage", "", "Read from a storage backend (sql, redis, mongo) instead of a location")
	cmd.Flags().StringVar(&f.resource, "resource", "", "Storage resource (table, key or collection)")
	cmd.Flags().StringArrayVar(&f.pre, "pre", nil, "Pre-cast processor spec, e.g. rename:old=new (repeatable)")
}

// register adds the source flags plus schema, relation and post-cast flags.
func (f *tableFlags) register(cmd *cobra.Command) {
	f.registerSource(cmd)
	cmd.Flags().StringVarP(&f.schemaFile, "schema", "s", "", "Schema descriptor (JSON or YAML); default: saved <name>.schema.json, else inferred")
	cmd.Flags().StringVar(&f.relations, "relations", "", "JSON file mapping resource names to relation rows")
	cmd.Flags().StringArrayVar(&f.post, "post", nil, "Post-cast processor spec, e.g. where:age:gte:30 (repeatable)")
}

// location returns the single location argument; storage reads take none.
func (f *tableFlags) location(args []string) (string, error) {
	if f.storageName != "" {
		if len(args) > 0 {
			return "", fmt.Errorf("a location cannot be combined with --storage")
		}
		return "", nil
	}
	if len(args) != 1 {
		return "", fmt.Errorf("expected exactly one location")
	}
	return args[0], nil
}

func (f *tableFlags) sourceFormat() (core.Format, error) {
	switch strings.ToLower(f.format) {
	case "":
		return core.FormatUnknown, nil
	case "csv":
		return core.FormatCSV, nil
	case "tsv":
		return core.FormatTSV, nil
	case "xlsx":
		return core.FormatXLSX, nil
	default:
		return core.FormatUnknown, fmt.Errorf("unknown format %q (use csv, tsv or xlsx)", f.format)
	}
}

func (f *tableFlags) openOptions() (sources.OpenOptions, error) {
	format, err := f.sourceFormat()
	if err != nil {
		return sources.OpenOptions{}, err
	}
	opts := sources.OpenOptions{
		Format: format,
		Sheet:  f.sheet,
		NewS3: func(ctx context.Context) (*s3store.Client, error) {
			c := s3store.DefaultConfig(cfg.Storage.S3.Region)
			c.Endpoint = cfg.Storage.S3.Endpoint
			c.UsePathStyle = cfg.Storage.S3.UsePathStyle
			return s3store.NewClient(ctx, c)
		},
	}
	if f.delimiter != "" {
		d := []rune(f.delimiter)
		if len(d) != 1 {
			return opts, fmt.Errorf("delimiter must be a single character, got %q", f.delimiter)
		}
		opts.CSV.Delimiter = d[0]
	} else {
		opts.CSV.Sniff = true
	}
	if f.bearer != "" {
		opts.HTTP = &sources.HTTPOptions{Headers: map[string]string{"Authorization": "Bearer " + f.bearer}}
	}
	return opts, nil
}

// baseOptions are the table options every location shares.
func (f *tableFlags) baseOptions() ([]table.Option, error) {
	opts := []table.Option{
		table.WithLogger(log.Logger),
		table.WithSampleSize(cfg.Schema.SampleSize),
	}
	if len(cfg.Schema.MissingValues) > 0 {
		opts = append(opts, table.WithMissingValues(cfg.Schema.MissingValues...))
	}

	pre, err := registry.Processors(f.pre)
	if err != nil {
		return nil, err
	}
	post, err := registry.Processors(f.post)
	if err != nil {
		return nil, err
	}
	opts = append(opts, table.WithPreCast(pre...), table.WithPostCast(post...))
	return opts, nil
}

// readOptions builds the per-traversal options.
func (f *tableFlags) readOptions() ([]table.ReadOption, error) {
	var opts []table.ReadOption
	if f.relations != "" {
		relations, err := loadRelations(f.relations)
		if err != nil {
			return nil, err
		}
		opts = append(opts, table.WithRelations(relations))
	}
	return opts, nil
}

// opened is a table plus the resources backing it.
type opened struct {
	table    *table.Table
	location string
	close    func()
}

// openTable opens a location, or the configured storage resource when --storage is set.
// The schema comes from --schema, then a sidecar or cached descriptor, then inference.
func (f *tableFlags) openTable(ctx context.Context, location string, cache *schema.Cache, extra ...table.Option) (*opened, error) {
	opts, err := f.baseOptions()
	if err != nil {
		return nil, err
	}
	opts = append(opts, extra...)

	if f.storageName != "" {
		if f.resource == "" {
			return nil, fmt.Errorf("--resource is required with --storage")
		}
		st, err := registry.OpenStorage(ctx, f.storageName, storageConfig(f.storageName))
		if err != nil {
			return nil, err
		}
		if f.schemaFile != "" && !f.inferOnly {
			s, err := schema.Load(f.schemaFile)
			if err != nil {
				closeStorage(st)
				return nil, err
			}
			opts = append(opts, table.WithSchema(s))
		}
		t, err := table.NewFromStorage(st, f.resource, opts...)
		if err != nil {
			closeStorage(st)
			return nil, err
		}
		return &opened{table: t, location: f.storageName + ":" + f.resource, close: func() { closeStorage(st) }}, nil
	}

	openOpts, err := f.openOptions()
	if err != nil {
		return nil, err
	}
	src, err := sources.Open(ctx, location, openOpts)
	if err != nil {
		return nil, err
	}
	opts = append(opts, table.WithName(location))

	switch path := f.descriptorPath(location); {
	case path != "":
		s, err := schema.Load(path)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("location", location).Str("schema", path).Msg("using schema descriptor")
		opts = append(opts, table.WithSchema(s))
	case cache != nil:
		headers, err := src.Headers(ctx)
		if err != nil {
			return nil, tferrors.Wrap(err, tferrors.CodeSource, "failed to read headers").WithContext("location", location)
		}
		d, err := cache.GetOrInfer(headers, func() (*schema.Descriptor, error) {
			t, err := table.New(src, opts...)
			if err != nil {
				return nil, err
			}
			return t.Infer(ctx)
		})
		if err != nil {
			return nil, err
		}
		opts = append(opts, table.WithDescriptor(d))
	}

	t, err := table.New(src, opts...)
	if err != nil {
		return nil, err
	}
	return &opened{table: t, location: location, close: func() {}}, nil
}

// descriptorPath resolves the schema descriptor for a location: --schema, then the
// sidecar file of a local path, then a descriptor saved in the schema cache directory.
func (f *tableFlags) descriptorPath(location string) string {
	if f.inferOnly {
		return ""
	}
	if f.schemaFile != "" {
		return f.schemaFile
	}
	if p := savedSchemaPath(location); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// savedSchemaPath is where `infer --save` writes the descriptor of a location.
func savedSchemaPath(location string) string {
	switch {
	case location == "" || location == "-":
		return ""
	case sources.IsRemote(location):
		if cfg.Schema.CacheDir == "" {
			return ""
		}
		name := strings.Trim(unsafeChars.ReplaceAllString(location, "_"), "_")
		return filepath.Join(cfg.Schema.CacheDir, name+".schema.json")
	default:
		return schema.SchemaFile(location)
	}
}

func storageConfig(name string) config.StorageConfig {
	sc := cfg.Storage
	sc.Backend = name
	return sc
}

func closeStorage(st core.Storage) {
	var err error
	switch c := st.(type) {
	case io.Closer:
		err = c.Close()
	case interface{ Close(context.Context) error }:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = c.Close(ctx)
	}
	if err != nil {
		log.Warn().Err(err).Msg("failed to close storage")
	}
}

// loadRelations reads a JSON object mapping resource names to arrays of rows. Integral
// numbers become int64 and other numbers decimals, matching the values casting produces.
func loadRelations(path string) (constraint.Relations, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, tferrors.Wrap(err, tferrors.CodeSource, "failed to read relations").WithContext("path", path)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string][]map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, tferrors.Wrap(err, tferrors.CodeSource, "invalid relations file").WithContext("path", path)
	}

	relations := make(constraint.Relations, len(raw))
	for resource, rows := range raw {
		for _, row := range rows {
			for k, v := range row {
				row[k] = relationValue(v)
			}
		}
		relations[resource] = rows
	}
	return relations, nil
}

func relationValue(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if b, ok := new(big.Int).SetString(x.String(), 10); ok {
			return b
		}
		if d, err := decimal.NewFromString(x.String()); err == nil {
			return d
		}
		return x.String()
	case []any:
		for i := range x {
			x[i] = relationValue(x[i])
		}
		return x
	case map[string]any:
		for k := range x {
			x[k] = relationValue(x[k])
		}
		return x
	default:
		return v
	}
}

// jsonRow renders a row for JSON output. Dates and times use their canonical string
// forms instead of full timestamps.
func jsonRow(s *schema.Schema, row table.Row) any {
	if row.Keyed != nil {
		out := make(map[string]any, len(row.Keyed))
		for name, v := range row.Keyed {
			if f, ok := s.FieldByName(name); ok {
				v = jsonValue(f.Type(), v)
			}
			out[name] = v
		}
		return out
	}
	fields := s.Fields()
	out := make([]any, len(row.Values))
	for i, v := range row.Values {
		if i < len(fields) {
			v = jsonValue(fields[i].Type(), v)
		}
		out[i] = v
	}
	return out
}

func jsonValue(t types.Type, v any) any {
	if _, ok := v.(time.Time); ok {
		return types.Format(t, v)
	}
	return v
}
