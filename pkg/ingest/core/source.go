// Package core provides the abstractions shared by row sources and storage backends.
package core

import (
	"context"
	"io"
	"iter"

	"github.com/tabflow/tabflow/pkg/schema"
)

// Format represents the detected file format.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatCSV
	FormatTSV
	FormatXLSX
)

func (f Format) String() string {
	names := []string{"unknown", "csv", "tsv", "xlsx"}
	if int(f) < len(names) {
		return names[f]
	}
	return "unknown"
}

// Opener gives access to the bytes behind a location. Every Open starts from the
// beginning of the content.
type Opener interface {
	// Location returns the source location (path, URL, etc.).
	Location() string

	// Format returns the format detected from the location, if any.
	Format() Format

	// Open returns a reader for the source content.
	Open(ctx context.Context) (io.ReadCloser, error)
}

// RowSource produces the header row and the raw data rows of a table.
type RowSource interface {
	// Headers returns the column names in order. An empty source has no headers.
	Headers(ctx context.Context) ([]string, error)

	// Rows yields the data rows only. Every call restarts from the first data row.
	Rows(ctx context.Context) iter.Seq2[[]any, error]
}

// Storage is a backend holding named resources.
type Storage interface {
	// Describe returns the descriptor of a resource.
	Describe(ctx context.Context, resource string) (*schema.Descriptor, error)

	// Iter yields the raw rows of a resource, in the order of its described fields.
	Iter(ctx context.Context, resource string) iter.Seq2[[]any, error]
}

// StorageSource adapts one resource of a Storage to a RowSource. Its headers are the
// described field names.
type StorageSource struct {
	Storage  Storage
	Resource string
}

// Headers implements RowSource.
func (s StorageSource) Headers(ctx context.Context) ([]string, error) {
	d, err := s.Storage.Describe(ctx, s.Resource)
	if err != nil {
		return nil, err
	}
	return d.FieldNames(), nil
}

// Rows implements RowSource.
func (s StorageSource) Rows(ctx context.Context) iter.Seq2[[]any, error] {
	return s.Storage.Iter(ctx, s.Resource)
}
