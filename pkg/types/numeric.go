package types

import (
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Leading and trailing non-numeric characters ("$ 10", "95%") are dropped when
// Options.StripNonNumeric is set.
var (
	reNumberPrefix = regexp.MustCompile(`^[^-+0-9.]+`)
	reNumberSuffix = regexp.MustCompile(`[^0-9.]+$`)
)

func stripNonNumeric(s string) string {
	s = reNumberPrefix.ReplaceAllString(s, "")
	return reNumberSuffix.ReplaceAllString(s, "")
}

func castInteger(format string, raw any, opts Options) (any, error) {
	switch v := raw.(type) {
	case bool:
		return fail(Integer, format, raw, "boolean is not an integer")
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint:
		return uintValue(uint64(v)), nil
	case uint64:
		return uintValue(v), nil
	case *big.Int:
		return v, nil
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return fail(Integer, format, raw, "has a fractional part")
		}
		if v >= math.MinInt64 && v < math.MaxInt64 {
			return int64(v), nil
		}
		bi, _ := big.NewFloat(v).Int(nil)
		return bi, nil
	case decimal.Decimal:
		if !v.IsInteger() {
			return fail(Integer, format, raw, "has a fractional part")
		}
		bi := v.BigInt()
		if bi.IsInt64() {
			return bi.Int64(), nil
		}
		return bi, nil
	}

	s, ok := trimmed(raw)
	if !ok {
		return fail(Integer, format, raw, "unsupported value type %T", raw)
	}
	if opts.StripNonNumeric {
		s = stripNonNumeric(s)
	}
	if s == "" {
		return fail(Integer, format, raw, "empty")
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err == nil {
		return n, nil
	}
	if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
		bi, ok := new(big.Int).SetString(s, 10)
		if ok {
			return bi, nil
		}
	}
	return fail(Integer, format, raw, "not an integer")
}

func uintValue(v uint64) any {
	if v <= math.MaxInt64 {
		return int64(v)
	}
	return new(big.Int).SetUint64(v)
}

func castNumber(format string, raw any, opts Options) (any, error) {
	switch v := raw.(type) {
	case bool:
		return fail(Number, format, raw, "boolean is not a number")
	case decimal.Decimal:
		return v, nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int32:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case *big.Int:
		return decimal.NewFromBigInt(v, 0), nil
	case float32:
		return floatNumber(format, raw, float64(v))
	case float64:
		return floatNumber(format, raw, v)
	}

	s, ok := trimmed(raw)
	if !ok {
		return fail(Number, format, raw, "unsupported value type %T", raw)
	}
	if opts.GroupChar != "" {
		s = strings.ReplaceAll(s, opts.GroupChar, "")
	}
	if opts.DecimalChar != "." {
		s = strings.ReplaceAll(s, opts.DecimalChar, ".")
	}
	if opts.StripNonNumeric {
		s = stripNonNumeric(s)
	}
	if s == "" {
		return fail(Number, format, raw, "empty")
	}
	// Separators other than the declared groupChar are not numbers.
	if strings.ContainsAny(s, "_ ") {
		return fail(Number, format, raw, "not a number")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return fail(Number, format, raw, "not a number")
	}
	return d, nil
}

func floatNumber(format string, raw any, f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fail(Number, format, raw, "not a finite number")
	}
	return decimal.NewFromFloat(f), nil
}

func castYear(format string, raw any) (any, error) {
	var year int64
	switch v := raw.(type) {
	case int:
		year = int64(v)
	case int64:
		year = v
	case float64:
		if v != math.Trunc(v) {
			return fail(Year, format, raw, "has a fractional part")
		}
		year = int64(v)
	default:
		s, ok := trimmed(raw)
		if !ok {
			return fail(Year, format, raw, "unsupported value type %T", raw)
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fail(Year, format, raw, "not a year")
		}
		year = n
	}

	if year < 0 || year > 9999 {
		return fail(Year, format, raw, "out of range 0..9999")
	}
	return year, nil
}
