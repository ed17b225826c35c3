package constraint

import (
	"fmt"
	"maps"
	"strings"

	tferrors "github.com/tabflow/tabflow/pkg/errors"
	"github.com/tabflow/tabflow/pkg/schema"
	"github.com/tabflow/tabflow/pkg/types"
)

// Relations maps a resource name to its rows. Relation rows are read-only.
type Relations map[string][]map[string]any

// lookupIndex maps a tuple of cell keys to the position of the first relation row
// holding it.
type lookupIndex struct {
	rows  []map[string]any
	first map[string]int
}

// Resolver substitutes foreign key values with the relation rows they reference.
// Lookup indexes are built on first use and kept for the resolver's lifetime.
type Resolver struct {
	foreignKeys []schema.ForeignKey
	relations   Relations
	indexes     map[string]*lookupIndex
}

// NewResolver creates a resolver for the foreign keys of s.
func NewResolver(s *schema.Schema, relations Relations) *Resolver {
	return &Resolver{
		foreignKeys: s.ForeignKeys(),
		relations:   relations,
		indexes:     make(map[string]*lookupIndex),
	}
}

// Enabled reports whether there is anything to resolve.
func (r *Resolver) Enabled() bool {
	return len(r.foreignKeys) > 0 && r.relations != nil
}

// Resolve returns a copy of values where every field of a resolved foreign key holds
// the full matched relation row. When several foreign keys resolve the same field their
// rows are merged, later keys overwriting earlier ones. A foreign key whose local
// values are all missing is not resolved.
func (r *Resolver) Resolve(rowNumber int, values []any) ([]any, error) {
	out := append([]any(nil), values...)
	substituted := make([]bool, len(values))

	var violations []string
	for _, fk := range r.foreignKeys {
		local := make([]any, len(fk.FieldIndexes))
		allMissing := true
		for j, i := range fk.FieldIndexes {
			if i < len(values) {
				local[j] = values[i]
			}
			if local[j] != nil {
				allMissing = false
			}
		}
		if allMissing {
			continue
		}

		match, err := r.lookup(fk, local)
		if err != nil {
			violations = append(violations, err.Error())
			continue
		}

		for _, i := range fk.FieldIndexes {
			if i >= len(out) {
				continue
			}
			if substituted[i] {
				merged := maps.Clone(out[i].(map[string]any))
				maps.Copy(merged, match)
				out[i] = merged
				continue
			}
			out[i] = maps.Clone(match)
			substituted[i] = true
		}
	}

	if len(violations) > 0 {
		return nil, tferrors.Newf(tferrors.CodeRelation, "Foreign key violation in row %d: %s",
			rowNumber, strings.Join(violations, "; ")).
			WithContext("row", rowNumber)
	}
	return out, nil
}

func (r *Resolver) lookup(fk schema.ForeignKey, local []any) (map[string]any, error) {
	rows, ok := r.relations[fk.Resource]
	if !ok {
		return nil, fmt.Errorf("fields %s reference resource %q which was not supplied",
			quoteList(fk.Fields), fk.Resource)
	}

	idx := r.index(fk.Resource, rows, fk.ReferenceFields)
	pos, ok := idx.first[localKey(local)]
	if !ok {
		return nil, fmt.Errorf("fields %s value %s not found in resource %q fields %s",
			quoteList(fk.Fields), formatTuple(local), fk.Resource, quoteList(fk.ReferenceFields))
	}
	return idx.rows[pos], nil
}

func (r *Resolver) index(resource string, rows []map[string]any, fields []string) *lookupIndex {
	name := resource + "\x00" + strings.Join(fields, "\x1f")
	if idx, ok := r.indexes[name]; ok {
		return idx
	}
	idx := &lookupIndex{rows: rows, first: make(map[string]int, len(rows))}
	for pos, row := range rows {
		parts := make([]string, len(fields))
		for j, f := range fields {
			parts[j] = types.Key(row[f])
		}
		key := joinKeys(parts)
		if _, seen := idx.first[key]; !seen {
			idx.first[key] = pos
		}
	}
	r.indexes[name] = idx
	return idx
}

// localKey builds the index key of a local tuple. Cells compare by their typed
// representation only, so the integer 1 does not match the string "1".
func localKey(local []any) string {
	parts := make([]string, len(local))
	for j, v := range local {
		parts[j] = types.Key(v)
	}
	return joinKeys(parts)
}

func joinKeys(parts []string) string {
	var sb strings.Builder
	for _, p := range parts {
		fmt.Fprintf(&sb, "%d:%s", len(p), p)
	}
	return sb.String()
}

func quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
