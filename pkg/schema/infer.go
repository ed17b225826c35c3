package schema

import (
	"github.com/tabflow/tabflow/pkg/types"
)

// InferOptions tunes Infer.
type InferOptions struct {
	// MissingValues are skipped when sampling; defaults to [""].
	MissingValues []string
}

// Infer guesses a descriptor from sampled rows. For every column it picks the first
// inference candidate under which every non-missing sampled value casts. Columns with
// only missing values become strings; columns of mixed native values become any.
// Zero rows yield zero fields.
func Infer(headers []string, rows [][]any, opts InferOptions) (*Descriptor, error) {
	missing := opts.MissingValues
	if missing == nil {
		missing = DefaultMissingValues
	}
	d := Descriptor{
		Fields:        []FieldDescriptor{},
		MissingValues: cloneStrings(missing),
	}
	if len(rows) == 0 {
		n := Normalize(d)
		return &n, nil
	}

	isMissing := make(map[string]bool, len(missing))
	for _, m := range missing {
		isMissing[m] = true
	}

	candidates := types.InferenceCandidates()
	for col, name := range headers {
		var sample []any
		for _, row := range rows {
			if col >= len(row) || row[col] == nil {
				continue
			}
			if s, ok := row[col].(string); ok && isMissing[s] {
				continue
			}
			sample = append(sample, row[col])
		}
		d.Fields = append(d.Fields, FieldDescriptor{Name: name, Type: pick(candidates, sample).Type.String()})
	}

	n := Normalize(d)
	if _, err := New(n); err != nil {
		return nil, err
	}
	return &n, nil
}

func pick(candidates []types.Candidate, sample []any) types.Candidate {
	fallback := types.Candidate{Type: types.String, Format: types.DefaultFormat}
	if len(sample) == 0 {
		return fallback
	}
	for _, c := range candidates {
		ok := true
		for _, v := range sample {
			if !c.Accepts(v) {
				ok = false
				break
			}
		}
		if ok {
			return c
		}
	}
	// Mixed native values fit no candidate, strings included.
	return types.Candidate{Type: types.Any, Format: types.DefaultFormat}
}
