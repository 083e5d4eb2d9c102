package segment

import (
	"encoding/json"
	"reflect"
	"regexp"
	"time"
)

// Stored dates are strings; anything that starts like an ISO-8601 timestamp
// is compared as a date.
var isoTimestampPrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T`)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
}

// invalidDate stands in for a string that starts like a timestamp but does
// not parse. No comparison accepts it.
type invalidDate struct{}

// coerce normalises a value before comparison: ISO timestamps become
// time.Time, malformed ones become invalidDate and every numeric kind
// becomes float64. It is applied to both sides of every comparison.
func coerce(v any) any {
	switch x := v.(type) {
	case nil, bool, float64, time.Time:
		return v
	case string:
		if isoTimestampPrefix.MatchString(x) {
			if t, ok := parseTimestamp(x); ok {
				return t
			}
			return invalidDate{}
		}
		return x
	case *time.Time:
		if x == nil {
			return nil
		}
		return *x
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	}

	if f, ok := toFloat(v); ok {
		return f
	}
	return v
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	}
	return 0, false
}

// pair unpacks a two-element slice or array, the operand of between.
func pair(v any) (any, any, bool) {
	if v == nil {
		return nil, nil, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Len() != 2 {
			return nil, nil, false
		}
		return rv.Index(0).Interface(), rv.Index(1).Interface(), true
	}
	return nil, nil, false
}
