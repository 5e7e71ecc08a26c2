package event

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// toBool collapses the representations producers use for a flag into two states.
// Strings go through strconv.ParseBool, so "1", "true" and "0", "false" behave as
// expected; any other non-empty string or non-empty container counts as set.
func toBool(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case json.Number:
		f, err := v.Float64()
		return err != nil || f != 0
	case string:
		s := strings.TrimSpace(v)
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
		return s != ""
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return false
	}
}

// toText renders any JSON value as text. Absent and null become "".
func toText(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// toFloat coerces a reading value to a number. Booleans map to 1 and 0 and numeric
// strings are parsed; anything else is nil.
func toFloat(v any) *float64 {
	var f float64
	switch v := v.(type) {
	case json.Number:
		n, err := v.Float64()
		if err != nil {
			return nil
		}
		f = n
	case bool:
		if v {
			f = 1
		}
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		f = n
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// toInt coerces integral identifiers delivered as numbers or numeric strings.
func toInt(v any) *int64 {
	var s string
	switch v := v.(type) {
	case json.Number:
		s = v.String()
	case string:
		s = strings.TrimSpace(v)
	default:
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &n
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt64 || f < math.MinInt64 {
		return nil
	}
	n := int64(f)
	return &n
}

// toEpochMillis reads a producer timestamp. Timestamps are epoch milliseconds and may
// arrive as numbers or as numeric strings.
func toEpochMillis(v any) *int64 {
	return toInt(v)
}
