package codec

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// The helpers below read loosely typed values produced either by the JSON
// decoder (json.Number, []any, map[string]any) or by Layer 1 encoding
// (int64, []string, []map[string]any).

// String returns v as a string. Integral numbers are formatted, since older
// records stored question numbers as numbers.
func String(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case float64:
		if x == math.Trunc(x) {
			return strconv.FormatInt(int64(x), 10), true
		}
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	}
	return "", false
}

// Int64 returns v as an integer.
func Int64(v any) (int64, bool) {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, true
		}
		if f, err := x.Float64(); err == nil && f == math.Trunc(f) {
			return int64(f), true
		}
	case float64:
		if x == math.Trunc(x) {
			return int64(x), true
		}
	case int:
		return int64(x), true
	case int64:
		return x, true
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

// Bool returns v as a boolean.
func Bool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

// Map returns v as an object.
func Map(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// Slice returns v as a list of generic values.
func Slice(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case []map[string]any:
		out := make([]any, len(x))
		for i, m := range x {
			out[i] = m
		}
		return out, true
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

// Strings returns v as a list of strings.
func Strings(v any) ([]string, bool) {
	if ss, ok := v.([]string); ok {
		return ss, true
	}
	items, ok := Slice(v)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := String(it)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// Millis returns v as a timestamp. Epoch milliseconds are the stored form;
// RFC 3339 strings are accepted for hand-edited and very old records.
func Millis(v any) (time.Time, bool) {
	if ms, ok := Int64(v); ok {
		return time.UnixMilli(ms), true
	}
	if s, ok := v.(string); ok {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, false
		}
		return time.UnixMilli(t.UnixMilli()), true
	}
	return time.Time{}, false
}
