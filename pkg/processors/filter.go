// Package processors provides row stream transformers for the table pipeline. Each
// constructor returns a table.Processor usable as a pre-cast or post-cast stage.
package processors

import (
	"fmt"
	"iter"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	tferrors "github.com/tabflow/tabflow/pkg/errors"
	"github.com/tabflow/tabflow/pkg/table"
	"github.com/tabflow/tabflow/pkg/types"
)

// Filter keeps the rows for which keep returns true.
func Filter(keep func(table.ExtendedRow) bool) table.Processor {
	return func(rows iter.Seq[table.ExtendedRow]) iter.Seq[table.ExtendedRow] {
		return func(yield func(table.ExtendedRow) bool) {
			for row := range rows {
				if !keep(row) {
					continue
				}
				if !yield(row) {
					return
				}
			}
		}
	}
}

// Op is a comparison operator of a Where rule.
type Op string

const (
	OpEq       Op = "eq"
	OpNe       Op = "ne"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
	OpContains Op = "contains"
	OpRegex    Op = "regex"
)

// Rule is a single field condition.
type Rule struct {
	Field string
	Op    Op
	Value any

	re *regexp.Regexp
}

// NewRule validates a condition. A string Value is coerced to the kind of the cell it is
// compared with, so "30" compares as a number against an integer field.
func NewRule(field string, op Op, value any) (Rule, error) {
	r := Rule{Field: field, Op: op, Value: value}
	switch op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpContains:
	case OpRegex:
		re, err := regexp.Compile(fmt.Sprint(value))
		if err != nil {
			return Rule{}, tferrors.Wrap(err, tferrors.CodeSchemaValidation, "invalid filter pattern").WithContext("field", field)
		}
		r.re = re
	default:
		return Rule{}, tferrors.Newf(tferrors.CodeSchemaValidation, "unknown filter operator %q", op)
	}
	return r, nil
}

// Match applies the rule to a row. Rows without the field, or with a missing value, do
// not match; neither do values that cannot be ordered against the operand.
func (r Rule) Match(row table.ExtendedRow) bool {
	v, ok := row.Get(r.Field)
	if !ok || v == nil {
		return false
	}

	switch r.Op {
	case OpContains:
		return strings.Contains(text(v), fmt.Sprint(r.Value))
	case OpRegex:
		return r.re.MatchString(text(v))
	}

	operand := coerce(r.Value, v)
	if r.Op == OpEq || r.Op == OpNe {
		eq := types.Equal(v, operand)
		if !eq {
			if c, err := types.Compare(v, operand); err == nil {
				eq = c == 0
			}
		}
		return eq == (r.Op == OpEq)
	}

	c, err := types.Compare(v, operand)
	if err != nil {
		return false
	}
	switch r.Op {
	case OpGt:
		return c > 0
	case OpGte:
		return c >= 0
	case OpLt:
		return c < 0
	default:
		return c <= 0
	}
}

// Where keeps rows matching every rule.
func Where(rules ...Rule) table.Processor {
	return Filter(func(row table.ExtendedRow) bool {
		for _, r := range rules {
			if !r.Match(row) {
				return false
			}
		}
		return true
	})
}

// Exclude drops rows matching any rule.
func Exclude(rules ...Rule) table.Processor {
	return Filter(func(row table.ExtendedRow) bool {
		for _, r := range rules {
			if r.Match(row) {
				return false
			}
		}
		return true
	})
}

func text(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return types.Format(types.Any, v)
}

// coerce converts a string operand to the kind of like. Operands that do not parse are
// returned unchanged and fail the comparison.
func coerce(operand, like any) any {
	s, ok := operand.(string)
	if !ok {
		if i, ok := operand.(int); ok {
			return int64(i)
		}
		if f, ok := operand.(float64); ok {
			return decimal.NewFromFloat(f)
		}
		return operand
	}

	switch like.(type) {
	case int64, *big.Int, decimal.Decimal:
		if d, err := decimal.NewFromString(strings.TrimSpace(s)); err == nil {
			if d.IsInteger() && d.BigInt().IsInt64() {
				return d.IntPart()
			}
			return d
		}
	case bool:
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	case time.Time:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02", "15:04:05"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
	}
	return s
}
