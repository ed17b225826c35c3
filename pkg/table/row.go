package table

import (
	"iter"
)

// ExtendedRow is a row bundled with its 1-based number and the header names. Before
// casting Values holds raw cells, after casting typed values.
type ExtendedRow struct {
	Number  int
	Headers []string
	Values  []any
}

// Get returns the value under a header name.
func (r ExtendedRow) Get(name string) (any, bool) {
	for i, h := range r.Headers {
		if h == name && i < len(r.Values) {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Processor transforms a stream of rows. Processors may drop, rewrite or reorder rows
// and must stop as soon as yield returns false.
type Processor func(rows iter.Seq[ExtendedRow]) iter.Seq[ExtendedRow]

// Chain composes processors in declared order.
func Chain(ps ...Processor) Processor {
	return func(rows iter.Seq[ExtendedRow]) iter.Seq[ExtendedRow] {
		for _, p := range ps {
			if p != nil {
				rows = p(rows)
			}
		}
		return rows
	}
}

// Row is an emitted, shaped row.
type Row struct {
	Number int
	// Values holds the typed values in positional mode and is nil in keyed mode.
	Values []any
	// Keyed maps field names to typed values in keyed mode.
	Keyed map[string]any
	// Fields lists the keys of Keyed in field order.
	Fields []string
}

// Get returns the value of the named field in either mode.
func (r Row) Get(name string) (any, bool) {
	if r.Keyed != nil {
		v, ok := r.Keyed[name]
		return v, ok
	}
	for i, f := range r.Fields {
		if f == name && i < len(r.Values) {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Map returns the row as a field name to value mapping in either mode.
func (r Row) Map() map[string]any {
	if r.Keyed != nil {
		return r.Keyed
	}
	m := make(map[string]any, len(r.Fields))
	for i, f := range r.Fields {
		if i < len(r.Values) {
			m[f] = r.Values[i]
		}
	}
	return m
}

// Ordered returns the values in field order in either mode.
func (r Row) Ordered() []any {
	if r.Keyed == nil {
		return r.Values
	}
	out := make([]any, len(r.Fields))
	for i, f := range r.Fields {
		out[i] = r.Keyed[f]
	}
	return out
}
