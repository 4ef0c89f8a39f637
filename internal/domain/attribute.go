package domain

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// PathSeparator joins the segments of a canonical attribute path
const PathSeparator = "."

// absentMarkerKey identifies the JSON form of ConfigAbsent
const absentMarkerKey = "@absent"

// Document is a raw, arbitrarily nested configuration document encoded as JSON
type Document []byte

// AbsentValue is the type of the Absent sentinel
type AbsentValue struct{}

// Absent marks an attribute that has no value on one side of a comparison
var Absent = AbsentValue{}

// String renders the sentinel the way device readers historically reported it
func (AbsentValue) String() string { return "None" }

// MarshalJSON encodes Absent as null
func (AbsentValue) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// MissingConfig is the type of the ConfigAbsent marker
type MissingConfig struct{}

// ConfigAbsent marks a mandatory sub-document that was not found at all.
// It is distinct from Absent so "missing" and "present but empty" never collapse.
var ConfigAbsent = MissingConfig{}

// String implements fmt.Stringer
func (MissingConfig) String() string { return "configuration absent" }

// MarshalJSON encodes the marker as an object the normalizer recognises
func (MissingConfig) MarshalJSON() ([]byte, error) {
	return []byte(`{"` + absentMarkerKey + `":"config"}`), nil
}

// AbsentMarkerKey returns the object key used by the ConfigAbsent JSON encoding
func AbsentMarkerKey() string {
	return absentMarkerKey
}

// AttributeMap is a canonical, flat mapping of dotted attribute paths to scalar
// or list values. It is the only shape downstream stages ever look at.
type AttributeMap map[string]any

// Keys returns the attribute paths in sorted order
func (m AttributeMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a copy of the map; list values are copied too
func (m AttributeMap) Clone() AttributeMap {
	if m == nil {
		return nil
	}
	out := make(AttributeMap, len(m))
	for k, v := range m {
		out[k] = CloneValue(v)
	}
	return out
}

// Has reports whether the path is present
func (m AttributeMap) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// Document encodes the map back into a flat JSON document
func (m AttributeMap) Document() (Document, error) {
	if m == nil {
		return Document("{}"), nil
	}
	data, err := json.Marshal(map[string]any(m))
	if err != nil {
		return nil, fmt.Errorf("encode attribute map: %w", err)
	}
	return Document(data), nil
}

// FindLeaf returns the first value (in sorted key order) whose leaf matches name
func (m AttributeMap) FindLeaf(name string) (string, any, bool) {
	for _, k := range m.Keys() {
		if Leaf(k) == name {
			return k, m[k], true
		}
	}
	return "", nil, false
}

// Leaf extracts the attribute name from a canonical path: the last segment,
// or the one before it when the last segment is a list index.
func Leaf(key string) string {
	segments := strings.Split(key, PathSeparator)
	for i := len(segments) - 1; i >= 0; i-- {
		if _, err := strconv.Atoi(segments[i]); err != nil {
			return segments[i]
		}
	}
	return key
}

// JoinPath joins path segments with the canonical separator
func JoinPath(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + PathSeparator + child
}

// IsAbsent reports whether v is the Absent sentinel
func IsAbsent(v any) bool {
	_, ok := v.(AbsentValue)
	return ok
}

// IsConfigAbsent reports whether v is the ConfigAbsent marker
func IsConfigAbsent(v any) bool {
	_, ok := v.(MissingConfig)
	return ok
}

// IsEmptyValue reports values a device reader uses to mean "nothing configured":
// Absent, nil, "", "None", false and empty lists.
func IsEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil, AbsentValue:
		return true
	case string:
		return val == "" || strings.EqualFold(val, "none")
	case bool:
		return !val
	case []any:
		return len(val) == 0
	}
	return false
}

// CloneValue copies list values so callers can prune them safely
func CloneValue(v any) any {
	if list, ok := v.([]any); ok {
		out := make([]any, len(list))
		copy(out, list)
		return out
	}
	return v
}

// ValuesEqual compares two canonical values. Lists are compared in order.
func ValuesEqual(a, b any) bool {
	la, aIsList := a.([]any)
	lb, bIsList := b.([]any)
	if aIsList || bIsList {
		if !aIsList || !bIsList || len(la) != len(lb) {
			return false
		}
		for i := range la {
			if !ValuesEqual(la[i], lb[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

// FormatValue renders a canonical value for messages and command parameters
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

// NumericValue interprets a canonical value as a number. Strings are parsed
// leniently (surrounding space is ignored); anything else is not numeric.
func NumericValue(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// UnmarshalJSON restores the sentinels: null becomes Absent and the
// ConfigAbsent object form becomes ConfigAbsent.
func (m *AttributeMap) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*m = nil
		return nil
	}
	out := make(AttributeMap, len(raw))
	for k, v := range raw {
		val, err := decodeValue(v)
		if err != nil {
			return fmt.Errorf("attribute %s: %w", k, err)
		}
		out[k] = val
	}
	*m = out
	return nil
}

func decodeValue(data json.RawMessage) (any, error) {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case trimmed == "null":
		return Absent, nil
	case strings.HasPrefix(trimmed, "{"):
		var obj map[string]any
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, err
		}
		if len(obj) == 1 && obj[absentMarkerKey] == "config" {
			return ConfigAbsent, nil
		}
		return obj, nil
	case strings.HasPrefix(trimmed, "["):
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, err
		}
		list := make([]any, 0, len(items))
		for _, item := range items {
			v, err := decodeValue(item)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil
	default:
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}
