// Package object models the untyped objects carried by the object stream and
// the typed variants the chat view-model derives from them.
//
// Nothing about a Raw object is validated at the source: every accessor
// tolerates missing fields and wrong types.
package object

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Well-known field names.
const (
	FieldID        = "id"
	FieldType      = "type"
	FieldActor     = "actor"
	FieldContent   = "content"
	FieldName      = "name"
	FieldPublished = "published"
	FieldContext   = "context"
	FieldBto       = "bto"
	FieldRead      = "read"
)

// Object types understood by the chat view-model.
const (
	TypeNote    = "Note"
	TypeProfile = "Profile"
)

// Raw is one opaque record from the object stream, as decoded from JSON.
type Raw map[string]any

// ID returns the object identifier, or "" when absent or not a string.
func (r Raw) ID() string {
	value, _ := r.String(FieldID)
	return value
}

// Type returns the activity type, or "" when absent or not a string.
func (r Raw) Type() string {
	value, _ := r.String(FieldType)
	return value
}

// Actor returns the author actor id, or "" when absent or not a string.
func (r Raw) Actor() string {
	value, _ := r.String(FieldActor)
	return value
}

// String returns the field as a string and whether it was one.
func (r Raw) String(key string) (string, bool) {
	if r == nil {
		return "", false
	}
	value, ok := r[key].(string)
	return value, ok
}

// Strings returns an array field. Elements that are not strings are kept as
// "" so the array length stays observable. The second result is false when
// the field is absent or not an array.
func (r Raw) Strings(key string) ([]string, bool) {
	if r == nil {
		return nil, false
	}
	switch values := r[key].(type) {
	case []string:
		out := make([]string, len(values))
		copy(out, values)
		return out, true
	case []any:
		out := make([]string, len(values))
		for i, value := range values {
			out[i], _ = value.(string)
		}
		return out, true
	default:
		return nil, false
	}
}

// Bool reports whether the field holds boolean true.
func (r Raw) Bool(key string) bool {
	if r == nil {
		return false
	}
	value, _ := r[key].(bool)
	return value
}

// Published parses the published field. The second result is false when the
// value is absent or cannot be read as a date.
func (r Raw) Published() (time.Time, bool) {
	if r == nil {
		return time.Time{}, false
	}
	return ParseTime(r[FieldPublished])
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTime reads a date from a string or from epoch milliseconds.
func ParseTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case string:
		v = strings.TrimSpace(v)
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, v); err == nil {
				return parsed.UTC(), true
			}
		}
		if millis, err := strconv.ParseFloat(v, 64); err == nil {
			return fromMillis(millis)
		}
		return time.Time{}, false
	case float64:
		return fromMillis(v)
	case int64:
		return time.UnixMilli(v).UTC(), true
	case int:
		return time.UnixMilli(int64(v)).UTC(), true
	case json.Number:
		millis, err := v.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return fromMillis(millis)
	case time.Time:
		return v.UTC(), !v.IsZero()
	default:
		return time.Time{}, false
	}
}

func fromMillis(millis float64) (time.Time, bool) {
	if math.IsNaN(millis) || math.IsInf(millis, 0) {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(millis)).UTC(), true
}

// FormatTime renders t the way published fields are written.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Clone returns a deep copy. Mutating the copy never affects r.
func (r Raw) Clone() Raw {
	if r == nil {
		return nil
	}
	out := make(Raw, len(r))
	for key, value := range r {
		out[key] = cloneValue(value)
	}
	return out
}

// With returns a copy of r with key set to value.
func (r Raw) With(key string, value any) Raw {
	out := r.Clone()
	if out == nil {
		out = Raw{}
	}
	out[key] = value
	return out
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return map[string]any(Raw(v).Clone())
	case Raw:
		return v.Clone()
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	default:
		return v
	}
}

// Decode parses one JSON object into a Raw. Numbers decode as float64.
func Decode(data []byte) (Raw, error) {
	var raw Raw
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}
