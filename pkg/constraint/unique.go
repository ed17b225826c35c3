// Package constraint enforces the cross-row constraints of a schema: uniqueness,
// primary keys and foreign keys.
package constraint

import (
	"fmt"
	"strings"

	tferrors "github.com/tabflow/tabflow/pkg/errors"
	"github.com/tabflow/tabflow/pkg/schema"
	"github.com/tabflow/tabflow/pkg/types"
)

// keySpace tracks the value tuples seen for one unique field or for the primary key.
type keySpace struct {
	fields  []string
	indexes []int
	// seen maps a tuple key to the row that first used it.
	seen map[string]int
}

// UniqueTracker checks unique fields and the primary key across the rows of one
// traversal. It is not safe for concurrent use; every traversal owns its own tracker.
type UniqueTracker struct {
	spaces []*keySpace

	// Stats
	checked    int64
	duplicates int64
}

// NewUniqueTracker creates a tracker with one key space per unique field and one for
// the primary key when the schema declares it.
func NewUniqueTracker(s *schema.Schema) *UniqueTracker {
	t := &UniqueTracker{}
	for i, f := range s.Fields() {
		if f.Unique() {
			t.spaces = append(t.spaces, &keySpace{
				fields:  []string{f.Name()},
				indexes: []int{i},
				seen:    make(map[string]int),
			})
		}
	}
	if pk := s.PrimaryKeyIndexes(); len(pk) > 0 {
		t.spaces = append(t.spaces, &keySpace{
			fields:  s.PrimaryKey(),
			indexes: pk,
			seen:    make(map[string]int),
		})
	}
	return t
}

// Enabled reports whether the schema declares anything to track.
func (t *UniqueTracker) Enabled() bool {
	return len(t.spaces) > 0
}

// Check verifies the typed values of a row against every key space. All violations of
// the row are reported in one error; the row's keys are recorded only when it has none.
func (t *UniqueTracker) Check(rowNumber int, values []any) error {
	t.checked++

	var violations []string
	keys := make([]string, len(t.spaces))
	for n, ks := range t.spaces {
		tuple := make([]any, len(ks.indexes))
		exempt := false
		for j, i := range ks.indexes {
			if i >= len(values) || values[i] == nil {
				exempt = true
				break
			}
			tuple[j] = values[i]
		}
		if exempt {
			continue
		}
		key := types.TupleKey(tuple)
		if first, dup := ks.seen[key]; dup {
			violations = append(violations, fmt.Sprintf("row %d duplicates row %d on %s: %s",
				rowNumber, first, quoteAll(ks.fields), formatTuple(tuple)))
			continue
		}
		keys[n] = key
	}

	if len(violations) > 0 {
		t.duplicates++
		return tferrors.New(tferrors.CodeDuplicate, strings.Join(violations, "; ")).
			WithContext("row", rowNumber)
	}
	for n, ks := range t.spaces {
		if keys[n] != "" {
			ks.seen[keys[n]] = rowNumber
		}
	}
	return nil
}

// UniqueStats reports tracker counters.
type UniqueStats struct {
	RowsChecked   int64
	DuplicateRows int64
	KeysTracked   int
}

// Stats returns current statistics.
func (t *UniqueTracker) Stats() UniqueStats {
	tracked := 0
	for _, ks := range t.spaces {
		tracked += len(ks.seen)
	}
	return UniqueStats{
		RowsChecked:   t.checked,
		DuplicateRows: t.duplicates,
		KeysTracked:   tracked,
	}
}

// Reset clears all tracked keys.
func (t *UniqueTracker) Reset() {
	for _, ks := range t.spaces {
		ks.seen = make(map[string]int)
	}
	t.checked = 0
	t.duplicates = 0
}

func quoteAll(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	if len(quoted) == 1 {
		return "field " + quoted[0]
	}
	return "fields " + strings.Join(quoted, ", ")
}

func formatTuple(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%q", types.Format(types.Any, v))
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
