// Package types implements the closed set of field types a schema can declare.
//
// Every type has a cast function turning a raw cell (usually a string, sometimes an
// already typed Go value coming from an in-memory or database source) into its typed
// representation. Cast dispatches with a switch over Type; adding a Type means adding a
// case there, a name in typeNames and a cast function.
package types

import (
	"fmt"
	"strings"
)

// Type is a field type.
type Type uint8

const (
	String Type = iota
	Integer
	Number
	Boolean
	Date
	Time
	DateTime
	Year
	YearMonth
	Duration
	GeoPoint
	GeoJSON
	Array
	Object
	Any

	numTypes
)

var typeNames = [numTypes]string{
	String:    "string",
	Integer:   "integer",
	Number:    "number",
	Boolean:   "boolean",
	Date:      "date",
	Time:      "time",
	DateTime:  "datetime",
	Year:      "year",
	YearMonth: "yearmonth",
	Duration:  "duration",
	GeoPoint:  "geopoint",
	GeoJSON:   "geojson",
	Array:     "array",
	Object:    "object",
	Any:       "any",
}

func (t Type) String() string {
	if t < numTypes {
		return typeNames[t]
	}
	return "unknown"
}

// ParseType maps a descriptor type name to a Type.
func ParseType(name string) (Type, error) {
	for i, n := range typeNames {
		if n == name {
			return Type(i), nil
		}
	}
	return 0, fmt.Errorf("unknown field type %q", name)
}

// All returns every type in declaration order.
func All() []Type {
	out := make([]Type, 0, numTypes)
	for t := Type(0); t < numTypes; t++ {
		out = append(out, t)
	}
	return out
}

// DefaultFormat is the format every type accepts.
const DefaultFormat = "default"

// Options carries the per-field parsing options of the descriptor.
type Options struct {
	TrueValues  []string
	FalseValues []string
	DecimalChar string
	GroupChar   string
	// StripNonNumeric drops leading and trailing non-numeric characters
	// (descriptor bareNumber: false).
	StripNonNumeric bool
}

var (
	defaultTrueValues  = []string{"true", "True", "TRUE", "1"}
	defaultFalseValues = []string{"false", "False", "FALSE", "0"}
)

// DefaultOptions returns the options used when a field declares none.
func DefaultOptions() Options {
	return Options{
		TrueValues:  defaultTrueValues,
		FalseValues: defaultFalseValues,
		DecimalChar: ".",
	}
}

func (o Options) withDefaults() Options {
	if o.TrueValues == nil {
		o.TrueValues = defaultTrueValues
	}
	if o.FalseValues == nil {
		o.FalseValues = defaultFalseValues
	}
	if o.DecimalChar == "" {
		o.DecimalChar = "."
	}
	return o
}

// CastFailure reports a single value that could not be cast or failed a constraint.
// Failures are collected per row and reported together.
type CastFailure struct {
	Type   Type
	Format string
	Value  any
	Reason string
}

func (f *CastFailure) Error() string {
	return fmt.Sprintf("value %q is not a valid %s (%s): %s", fmt.Sprint(f.Value), f.Type, f.Format, f.Reason)
}

func fail(t Type, format string, raw any, reason string, args ...any) (any, error) {
	if len(args) > 0 {
		reason = fmt.Sprintf(reason, args...)
	}
	return nil, &CastFailure{Type: t, Format: format, Value: raw, Reason: reason}
}

// Cast converts raw into the typed value of t under format.
func Cast(t Type, format string, raw any, opts Options) (any, error) {
	if format == "" {
		format = DefaultFormat
	}
	opts = opts.withDefaults()

	switch t {
	case String:
		return castString(format, raw)
	case Integer:
		return castInteger(format, raw, opts)
	case Number:
		return castNumber(format, raw, opts)
	case Boolean:
		return castBoolean(format, raw, opts)
	case Date:
		return castDate(format, raw)
	case Time:
		return castTime(format, raw)
	case DateTime:
		return castDateTime(format, raw)
	case Year:
		return castYear(format, raw)
	case YearMonth:
		return castYearMonth(format, raw)
	case Duration:
		return castDuration(format, raw)
	case GeoPoint:
		return castGeoPoint(format, raw)
	case GeoJSON:
		return castGeoJSON(format, raw)
	case Array:
		return castArray(format, raw)
	case Object:
		return castObject(format, raw)
	case Any:
		return raw, nil
	}
	return fail(t, format, raw, "unsupported type")
}

// ValidFormat reports whether format is meaningful for t. Pattern formats are accepted
// for the temporal types only.
func ValidFormat(t Type, format string) bool {
	if format == "" || format == DefaultFormat {
		return true
	}
	switch t {
	case String:
		return format == "email" || format == "uri" || format == "binary" || format == "uuid"
	case Date, Time, DateTime:
		return true
	case GeoPoint:
		return format == "array" || format == "object"
	case GeoJSON:
		return format == "topojson"
	default:
		return false
	}
}

func rawString(raw any) (string, bool) {
	switch v := raw.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	default:
		return "", false
	}
}

func trimmed(raw any) (string, bool) {
	s, ok := rawString(raw)
	return strings.TrimSpace(s), ok
}
