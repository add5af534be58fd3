// Package record provides tolerant, typed access to loosely shaped JSON
// objects returned by the marketplace backend.
//
// Every accessor takes a list of keys which is walked in order; the first key
// holding a usable value wins. This expresses fallback chains such as
// "_id, then id" without scattering nil checks through transformers. Keys may
// address nested objects with a dot ("patient.name"). Accessors never panic
// and fall back to the zero value of their type.
package record

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Record is a decoded JSON object.
type Record map[string]any

// Parse decodes raw into a Record. Anything that is not a JSON object yields
// an empty Record.
func Parse(raw json.RawMessage) Record {
	if len(raw) == 0 {
		return Record{}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil || m == nil {
		return Record{}
	}
	return Record(m)
}

// ParseAll decodes each element of items.
func ParseAll(items []json.RawMessage) []Record {
	out := make([]Record, 0, len(items))
	for _, it := range items {
		out = append(out, Parse(it))
	}
	return out
}

func (r Record) lookup(key string) (any, bool) {
	if r == nil {
		return nil, false
	}
	if v, ok := r[key]; ok {
		return v, v != nil
	}
	if !strings.Contains(key, ".") {
		return nil, false
	}
	parts := strings.Split(key, ".")
	var cur any = map[string]any(r)
	for _, p := range parts {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Record:
		return map[string]any(m), true
	}
	return nil, false
}

// Has reports whether any of the keys holds a non-null value.
func (r Record) Has(keys ...string) bool {
	for _, k := range keys {
		if _, ok := r.lookup(k); ok {
			return true
		}
	}
	return false
}

// String returns the first non-blank string among keys. Numbers and booleans
// are formatted; objects and arrays are skipped.
func (r Record) String(keys ...string) string {
	for _, k := range keys {
		v, ok := r.lookup(k)
		if !ok {
			continue
		}
		if s, ok := toString(v); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// StringOr is String with an explicit default.
func (r Record) StringOr(def string, keys ...string) string {
	if s := r.String(keys...); s != "" {
		return s
	}
	return def
}

// Int returns the first value among keys that can be read as a number,
// truncated towards zero. Numeric strings such as "40" are accepted.
func (r Record) Int(keys ...string) int {
	for _, k := range keys {
		v, ok := r.lookup(k)
		if !ok {
			continue
		}
		if f, ok := toFloat(v); ok {
			return int(f)
		}
	}
	return 0
}

// Float is Int for floating point values.
func (r Record) Float(keys ...string) float64 {
	for _, k := range keys {
		v, ok := r.lookup(k)
		if !ok {
			continue
		}
		if f, ok := toFloat(v); ok {
			return f
		}
	}
	return 0
}

// Decimal returns the first value among keys readable as a decimal amount.
func (r Record) Decimal(keys ...string) decimal.Decimal {
	d, _ := r.LookupDecimal(keys...)
	return d
}

// LookupDecimal is Decimal that also reports whether a value was found.
func (r Record) LookupDecimal(keys ...string) (decimal.Decimal, bool) {
	for _, k := range keys {
		v, ok := r.lookup(k)
		if !ok {
			continue
		}
		if d, ok := toDecimal(v); ok {
			return d, true
		}
	}
	return decimal.Zero, false
}

// Bool returns the first boolean among keys. The strings "true"/"false" and
// the numbers 0/1 are accepted. found is false when no key held a boolean.
func (r Record) Bool(keys ...string) (value, found bool) {
	for _, k := range keys {
		v, ok := r.lookup(k)
		if !ok {
			continue
		}
		switch b := v.(type) {
		case bool:
			return b, true
		case string:
			if p, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
				return p, true
			}
		default:
			if f, ok := toFloat(v); ok {
				return f != 0, true
			}
		}
	}
	return false, false
}

// BoolOr is Bool with an explicit default.
func (r Record) BoolOr(def bool, keys ...string) bool {
	if v, ok := r.Bool(keys...); ok {
		return v
	}
	return def
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Time returns the first parseable timestamp among keys. Strings in RFC 3339
// or date-only form and unix epochs (seconds or milliseconds) are accepted.
func (r Record) Time(keys ...string) time.Time {
	for _, k := range keys {
		v, ok := r.lookup(k)
		if !ok {
			continue
		}
		if t, ok := toTime(v); ok {
			return t
		}
	}
	return time.Time{}
}

// Object returns the first nested object among keys, or an empty Record.
func (r Record) Object(keys ...string) Record {
	for _, k := range keys {
		v, ok := r.lookup(k)
		if !ok {
			continue
		}
		if m, ok := asMap(v); ok {
			return Record(m)
		}
	}
	return Record{}
}

// Records returns the first array among keys, keeping only its object
// elements.
func (r Record) Records(keys ...string) []Record {
	for _, k := range keys {
		v, ok := r.lookup(k)
		if !ok {
			continue
		}
		arr, ok := v.([]any)
		if !ok {
			continue
		}
		out := make([]Record, 0, len(arr))
		for _, el := range arr {
			if m, ok := asMap(el); ok {
				out = append(out, Record(m))
			}
		}
		return out
	}
	return nil
}

// Strings returns the first array among keys as strings. Object elements are
// reduced to the first non-blank value among fields, so a list like
// [{"condition":"Asthma"}] can be read with Strings([]string{"condition"}, "medicalHistory").
func (r Record) Strings(fields []string, keys ...string) []string {
	for _, k := range keys {
		v, ok := r.lookup(k)
		if !ok {
			continue
		}
		var arr []any
		switch t := v.(type) {
		case []any:
			arr = t
		case string:
			for _, part := range strings.Split(t, ",") {
				arr = append(arr, part)
			}
		default:
			continue
		}
		out := make([]string, 0, len(arr))
		for _, el := range arr {
			if m, ok := asMap(el); ok {
				if s := Record(m).String(fields...); s != "" {
					out = append(out, s)
				}
				continue
			}
			if s, ok := toString(el); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	}
	return nil
}

func toString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case json.Number:
		p, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = p
	case float64:
		f = t
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = p
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(t))
		return d, err == nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(t), true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int64:
		return decimal.NewFromInt(t), true
	case decimal.Decimal:
		return t, true
	}
	return decimal.Zero, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
		return time.Time{}, false
	}
	f, ok := toFloat(v)
	if !ok || f <= 0 {
		return time.Time{}, false
	}
	n := int64(f)
	// Anything past year 5138 in seconds is a millisecond epoch.
	if n > 1e11 {
		return time.UnixMilli(n).UTC(), true
	}
	return time.Unix(n, 0).UTC(), true
}
