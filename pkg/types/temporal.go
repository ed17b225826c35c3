package types

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/ncruces/go-strftime"
)

const (
	layoutDate      = "2006-01-02"
	layoutTime      = "15:04:05"
	layoutYearMonth = "2006-01"
	layoutDateTime  = "2006-01-02T15:04:05Z"
)

// Layouts tried, in order, by the "any" format.
var (
	anyDateLayouts = []string{
		layoutDate, "2006/01/02", "02/01/2006", "01/02/2006", "2 January 2006", "January 2, 2006",
		"2 Jan 2006", "Jan 2, 2006", "20060102",
	}
	anyTimeLayouts = []string{
		layoutTime, "15:04", "3:04PM", "3:04 PM", "3:04:05PM", "3:04:05 PM", "150405",
	}
	anyDateTimeLayouts = []string{
		time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04", time.RFC1123, time.RFC1123Z, time.RFC822, time.RFC822Z, time.RFC850,
		time.ANSIC, time.UnixDate,
	}
)

// patternLayout converts a strftime pattern ("%d/%m/%Y", optionally prefixed "fmt:")
// into a Go layout.
func patternLayout(format string) (string, error) {
	return strftime.Layout(strings.TrimPrefix(format, "fmt:"))
}

func parseWith(t Type, format string, raw any, def string, anyLayouts []string) (time.Time, error) {
	s, ok := trimmed(raw)
	if !ok {
		_, err := fail(t, format, raw, "unsupported value type %T", raw)
		return time.Time{}, err
	}

	switch format {
	case DefaultFormat:
		// time.Parse tolerates fractional seconds the layout lacks; the round trip does not.
		if v, err := time.Parse(def, s); err == nil && v.Format(def) == s {
			return v, nil
		}
	case "any":
		for _, layout := range anyLayouts {
			if v, err := time.Parse(layout, s); err == nil {
				return v, nil
			}
		}
	default:
		layout, err := patternLayout(format)
		if err != nil {
			_, err := fail(t, format, raw, "invalid pattern: %v", err)
			return time.Time{}, err
		}
		if v, err := time.Parse(layout, s); err == nil {
			return v, nil
		}
	}

	_, err := fail(t, format, raw, "does not match the format")
	return time.Time{}, err
}

func castDate(format string, raw any) (any, error) {
	if v, ok := raw.(time.Time); ok {
		y, m, d := v.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	v, err := parseWith(Date, format, raw, layoutDate, anyDateLayouts)
	if err != nil {
		return nil, err
	}
	if v.Hour() != 0 || v.Minute() != 0 || v.Second() != 0 || v.Nanosecond() != 0 {
		return fail(Date, format, raw, "has a time component")
	}
	y, m, d := v.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

func castTime(format string, raw any) (any, error) {
	if v, ok := raw.(time.Time); ok {
		return time.Date(0, 1, 1, v.Hour(), v.Minute(), v.Second(), v.Nanosecond(), time.UTC), nil
	}
	v, err := parseWith(Time, format, raw, layoutTime, anyTimeLayouts)
	if err != nil {
		return nil, err
	}
	return time.Date(0, 1, 1, v.Hour(), v.Minute(), v.Second(), v.Nanosecond(), time.UTC), nil
}

func castDateTime(format string, raw any) (any, error) {
	if v, ok := raw.(time.Time); ok {
		return v.UTC(), nil
	}
	v, err := parseWith(DateTime, format, raw, layoutDateTime, anyDateTimeLayouts)
	if err != nil {
		return nil, err
	}
	return v.UTC(), nil
}

// YearMonthValue is the typed value of a yearmonth field.
type YearMonthValue struct {
	Year  int
	Month time.Month
}

func (v YearMonthValue) String() string {
	return fmt.Sprintf("%04d-%02d", v.Year, int(v.Month))
}

// MarshalJSON encodes the value as "YYYY-MM".
func (v YearMonthValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

func castYearMonth(format string, raw any) (any, error) {
	switch v := raw.(type) {
	case YearMonthValue:
		return v, nil
	case []any:
		if len(v) != 2 {
			return fail(YearMonth, format, raw, "expected [year, month]")
		}
		y, errY := castYear(DefaultFormat, v[0])
		m, errM := castInteger(DefaultFormat, v[1], DefaultOptions())
		if errY != nil || errM != nil {
			return fail(YearMonth, format, raw, "expected [year, month]")
		}
		return yearMonth(format, raw, int(y.(int64)), m)
	}

	s, ok := trimmed(raw)
	if !ok {
		return fail(YearMonth, format, raw, "unsupported value type %T", raw)
	}
	t, err := time.Parse(layoutYearMonth, s)
	if err != nil {
		return fail(YearMonth, format, raw, "not YYYY-MM")
	}
	return YearMonthValue{Year: t.Year(), Month: t.Month()}, nil
}

func yearMonth(format string, raw any, year int, month any) (any, error) {
	m, ok := month.(int64)
	if !ok || m < 1 || m > 12 {
		return fail(YearMonth, format, raw, "month out of range")
	}
	return YearMonthValue{Year: year, Month: time.Month(m)}, nil
}

// DurationValue is the typed value of a duration field. Calendar parts stay separate
// because their length depends on the date they are applied to.
type DurationValue struct {
	Years  int
	Months int
	Days   int
	Clock  time.Duration
}

// String renders the ISO 8601 form.
func (d DurationValue) String() string {
	var sb strings.Builder
	sb.WriteString("P")
	if d.Years != 0 {
		fmt.Fprintf(&sb, "%dY", d.Years)
	}
	if d.Months != 0 {
		fmt.Fprintf(&sb, "%dM", d.Months)
	}
	if d.Days != 0 {
		fmt.Fprintf(&sb, "%dD", d.Days)
	}
	if d.Clock != 0 {
		sb.WriteString("T")
		rest := d.Clock
		if h := rest / time.Hour; h != 0 {
			fmt.Fprintf(&sb, "%dH", h)
			rest -= h * time.Hour
		}
		if m := rest / time.Minute; m != 0 {
			fmt.Fprintf(&sb, "%dM", m)
			rest -= m * time.Minute
		}
		if rest != 0 {
			sb.WriteString(strconv.FormatFloat(rest.Seconds(), 'f', -1, 64))
			sb.WriteString("S")
		}
	}
	if sb.Len() == 1 {
		return "PT0S"
	}
	return sb.String()
}

// MarshalJSON encodes the value in ISO 8601 form.
func (d DurationValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// approx gives a comparable length using 365-day years and 30-day months.
func (d DurationValue) approx() time.Duration {
	days := time.Duration(d.Years*365+d.Months*30+d.Days) * 24 * time.Hour
	return days + d.Clock
}

var reDuration = regexp.MustCompile(`^P(?:(\d+)Y)?(?:(\d+)M)?(?:(\d+)W)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

func castDuration(format string, raw any) (any, error) {
	switch v := raw.(type) {
	case DurationValue:
		return v, nil
	case time.Duration:
		return DurationValue{Clock: v}, nil
	}

	s, ok := trimmed(raw)
	if !ok {
		return fail(Duration, format, raw, "unsupported value type %T", raw)
	}
	m := reDuration.FindStringSubmatch(s)
	if m == nil || s == "P" || strings.HasSuffix(s, "T") {
		return fail(Duration, format, raw, "not an ISO 8601 duration")
	}

	var n [6]int
	for i, part := range m[1:7] {
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return fail(Duration, format, raw, "component %q out of range", part)
		}
		n[i] = v
	}
	years, months, weeks, days, hours, minutes := n[0], n[1], n[2], n[3], n[4], n[5]
	if weeks > (math.MaxInt-days)/7 {
		return fail(Duration, format, raw, "days out of range")
	}

	var clock int64
	for _, c := range []struct {
		n    int
		unit time.Duration
	}{{hours, time.Hour}, {minutes, time.Minute}} {
		if int64(c.n) > (math.MaxInt64-clock)/int64(c.unit) {
			return fail(Duration, format, raw, "time part out of range")
		}
		clock += int64(c.n) * int64(c.unit)
	}
	if m[7] != "" {
		secs, err := strconv.ParseFloat(m[7], 64)
		if err != nil || secs*float64(time.Second) >= float64(math.MaxInt64-clock) {
			return fail(Duration, format, raw, "seconds out of range")
		}
		clock += int64(secs * float64(time.Second))
	}

	d := DurationValue{
		Years:  years,
		Months: months,
		Days:   weeks*7 + days,
		Clock:  time.Duration(clock),
	}
	return d, nil
}
