package processors

import (
	"fmt"
	"iter"
	"strings"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/tabflow/tabflow/pkg/table"
	"github.com/tabflow/tabflow/pkg/types"
)

// QualityInspector profiles the rows flowing through it without modifying them.
type QualityInspector struct {
	mu sync.Mutex

	totalRows  int64
	duplicates int64
	rowHashes  map[string]int64

	order  []string
	fields map[string]*fieldStats
}

type fieldStats struct {
	missing  int64
	distinct map[string]struct{}
	min, max any
	ordered  bool
}

// NewQualityInspector creates a new quality inspector.
func NewQualityInspector() *QualityInspector {
	return &QualityInspector{
		rowHashes: make(map[string]int64),
		fields:    make(map[string]*fieldStats),
	}
}

// Processor returns a pass-through stage feeding the inspector.
func (i *QualityInspector) Processor() table.Processor {
	return func(rows iter.Seq[table.ExtendedRow]) iter.Seq[table.ExtendedRow] {
		return func(yield func(table.ExtendedRow) bool) {
			for row := range rows {
				i.Inspect(row)
				if !yield(row) {
					return
				}
			}
		}
	}
}

// Inspect updates statistics with one row.
func (i *QualityInspector) Inspect(row table.ExtendedRow) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.totalRows++

	hash := types.TupleKey(row.Values)
	if i.rowHashes[hash] > 0 {
		i.duplicates++
	}
	i.rowHashes[hash]++

	for idx, name := range row.Headers {
		st, ok := i.fields[name]
		if !ok {
			st = &fieldStats{distinct: make(map[string]struct{}), ordered: true}
			i.fields[name] = st
			i.order = append(i.order, name)
		}
		var v any
		if idx < len(row.Values) {
			v = row.Values[idx]
		}
		if v == nil || v == "" {
			st.missing++
			continue
		}
		st.distinct[types.Key(v)] = struct{}{}
		if !st.ordered {
			continue
		}
		if st.min == nil {
			st.min, st.max = v, v
			continue
		}
		cmin, err1 := types.Compare(v, st.min)
		cmax, err2 := types.Compare(v, st.max)
		if err1 != nil || err2 != nil {
			st.ordered, st.min, st.max = false, nil, nil
			continue
		}
		if cmin < 0 {
			st.min = v
		}
		if cmax > 0 {
			st.max = v
		}
	}
}

// Report returns the quality report.
func (i *QualityInspector) Report() *QualityReport {
	i.mu.Lock()
	defer i.mu.Unlock()

	report := &QualityReport{
		TotalRows:     i.totalRows,
		DuplicateRows: i.duplicates,
	}
	for _, name := range i.order {
		st := i.fields[name]
		fq := FieldQuality{
			Name:     name,
			Missing:  st.missing,
			Distinct: int64(len(st.distinct)),
		}
		if i.totalRows > 0 {
			fq.CompletenessPct = 100.0 * float64(i.totalRows-st.missing) / float64(i.totalRows)
		}
		if st.min != nil {
			fq.Min = types.Format(types.Any, st.min)
			fq.Max = types.Format(types.Any, st.max)
		}
		report.Fields = append(report.Fields, fq)
	}
	report.Issues = i.detectIssues()
	return report
}

// QualityReport is the structured quality analysis output.
type QualityReport struct {
	TotalRows     int64          `json:"total_rows"`
	DuplicateRows int64          `json:"duplicate_rows"`
	Fields        []FieldQuality `json:"fields"`
	Issues        []Issue        `json:"issues,omitempty"`
}

// FieldQuality summarizes one field.
type FieldQuality struct {
	Name            string  `json:"name"`
	Missing         int64   `json:"missing"`
	Distinct        int64   `json:"distinct"`
	CompletenessPct float64 `json:"completeness_pct"`
	Min             string  `json:"min,omitempty"`
	Max             string  `json:"max,omitempty"`
}

// Issue describes a quality problem.
type Issue struct {
	Severity     string `json:"severity"`
	Category     string `json:"category"`
	Description  string `json:"description"`
	AffectedRows int64  `json:"affected_rows"`
}

func (i *QualityInspector) detectIssues() []Issue {
	var issues []Issue

	for _, name := range i.order {
		st := i.fields[name]
		switch {
		case st.missing == 0:
		case st.missing == i.totalRows:
			issues = append(issues, Issue{
				Severity:     "error",
				Category:     "completeness",
				Description:  fmt.Sprintf("Field %q is always missing", name),
				AffectedRows: st.missing,
			})
		default:
			issues = append(issues, Issue{
				Severity:     "warning",
				Category:     "completeness",
				Description:  fmt.Sprintf("Missing values in field %q", name),
				AffectedRows: st.missing,
			})
		}
	}

	if i.duplicates > 0 {
		issues = append(issues, Issue{
			Severity:     "warning",
			Category:     "consistency",
			Description:  "Duplicate rows detected",
			AffectedRows: i.duplicates,
		})
	}
	return issues
}

// ToJSON returns the report as JSON.
func (r *QualityReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// String returns a human-readable summary.
func (r *QualityReport) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Quality Report\n==============\nRows: %d | Duplicates: %d\n", r.TotalRows, r.DuplicateRows)
	for _, f := range r.Fields {
		fmt.Fprintf(&sb, "%-20s complete=%.1f%% distinct=%d", f.Name, f.CompletenessPct, f.Distinct)
		if f.Min != "" {
			fmt.Fprintf(&sb, " min=%s max=%s", f.Min, f.Max)
		}
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "Issues: %d found\n", len(r.Issues))
	return sb.String()
}
