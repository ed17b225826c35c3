package types

import (
	"cmp"
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// Equal reports whether two typed values are equal. Integers compare across int64 and
// *big.Int, numbers by decimal value, times by instant.
func Equal(a, b any) bool {
	if ia, ok := asBigInt(a); ok {
		if ib, ok := asBigInt(b); ok {
			return ia.Cmp(ib) == 0
		}
	}
	switch x := a.(type) {
	case decimal.Decimal:
		if y, ok := b.(decimal.Decimal); ok {
			return x.Equal(y)
		}
		return false
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Equal(y)
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// Compare orders two typed values of the same type. Values that have no order (objects,
// arrays, booleans of mixed kinds) return an error.
func Compare(a, b any) (int, error) {
	if ia, ok := asBigInt(a); ok {
		if ib, ok := asBigInt(b); ok {
			return ia.Cmp(ib), nil
		}
		if db, ok := b.(decimal.Decimal); ok {
			return decimal.NewFromBigInt(ia, 0).Cmp(db), nil
		}
	}

	switch x := a.(type) {
	case decimal.Decimal:
		switch y := b.(type) {
		case decimal.Decimal:
			return x.Cmp(y), nil
		case int64:
			return x.Cmp(decimal.NewFromInt(y)), nil
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), nil
		}
	case bool:
		if y, ok := b.(bool); ok {
			return cmp.Compare(boolRank(x), boolRank(y)), nil
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y), nil
		}
	case YearMonthValue:
		if y, ok := b.(YearMonthValue); ok {
			if c := cmp.Compare(x.Year, y.Year); c != 0 {
				return c, nil
			}
			return cmp.Compare(x.Month, y.Month), nil
		}
	case DurationValue:
		if y, ok := b.(DurationValue); ok {
			return cmp.Compare(x.approx(), y.approx()), nil
		}
	}
	return 0, fmt.Errorf("cannot compare %T with %T", a, b)
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

func asBigInt(v any) (*big.Int, bool) {
	switch n := v.(type) {
	case int64:
		return big.NewInt(n), true
	case int:
		return big.NewInt(int64(n)), true
	case *big.Int:
		return n, true
	default:
		return nil, false
	}
}

// Key returns an exact, type-tagged encoding of a typed value. Two values have the same
// key exactly when Equal reports them equal; keys are used to track uniqueness.
func Key(v any) string {
	if i, ok := asBigInt(v); ok {
		return "i:" + i.String()
	}
	switch x := v.(type) {
	case nil:
		return "z:"
	case string:
		return "s:" + x
	case bool:
		return "b:" + strconv.FormatBool(x)
	case decimal.Decimal:
		return "n:" + x.String()
	case time.Time:
		return "t:" + x.UTC().Format(time.RFC3339Nano)
	case YearMonthValue:
		return "m:" + x.String()
	case DurationValue:
		return "d:" + x.String()
	case GeoPointValue:
		return "g:" + x.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("x:%T:%v", v, v)
	}
	return "j:" + string(b)
}

// TupleKey joins the keys of several values. Each part is length-prefixed so that no two
// distinct tuples share a key.
func TupleKey(values []any) string {
	var sb strings.Builder
	for _, v := range values {
		k := Key(v)
		sb.WriteString(strconv.Itoa(len(k)))
		sb.WriteByte(':')
		sb.WriteString(k)
	}
	return sb.String()
}

// Format renders a typed value of type t in the canonical string form its cast function
// accepts with the default format.
func Format(t Type, v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case time.Time:
		switch t {
		case Date:
			return x.Format(layoutDate)
		case Time:
			return x.Format(layoutTime)
		default:
			return x.UTC().Format(layoutDateTime)
		}
	case decimal.Decimal:
		return x.String()
	case fmt.Stringer:
		return x.String()
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
	return fmt.Sprint(v)
}
