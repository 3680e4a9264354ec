package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Fields maps a field name to its value. After normalization every value is
// either a string or a []string.
type Fields map[string]any

// Has reports whether the field is present.
func (f Fields) Has(name string) bool {
	_, ok := f[name]
	return ok
}

// Strings returns the field as a list of strings. A scalar becomes a single
// element list; a missing field yields nil.
func (f Fields) Strings(name string) []string {
	switch v := f[name].(type) {
	case nil:
		return nil
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := scalarString(item); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		if s, ok := scalarString(v); ok {
			return []string{s}
		}
		return nil
	}
}

// String returns the field as a single string. Lists are joined with ", ".
func (f Fields) String(name string) (string, bool) {
	v, ok := f[name]
	if !ok || v == nil {
		return "", false
	}
	switch tv := v.(type) {
	case []string:
		return strings.Join(tv, ", "), true
	case []any:
		return strings.Join(f.Strings(name), ", "), true
	}
	return scalarString(v)
}

// Clone returns a shallow copy with list values copied.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		if list, ok := v.([]string); ok {
			v = append([]string(nil), list...)
		}
		out[k] = v
	}
	return out
}

// NormalizeFields converts decoded values (JSON/YAML numbers, []any) into the
// string / []string representation the store persists. Nested objects are rejected.
func NormalizeFields(in Fields) (Fields, error) {
	out := make(Fields, len(in))
	for name, v := range in {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		switch tv := v.(type) {
		case nil:
			continue
		case []string:
			out[name] = append([]string(nil), tv...)
		case []any:
			list := make([]string, 0, len(tv))
			for i, item := range tv {
				s, ok := scalarString(item)
				if !ok {
					return nil, fmt.Errorf("field %q item %d: unsupported value type %T", name, i, item)
				}
				list = append(list, s)
			}
			out[name] = list
		default:
			s, ok := scalarString(tv)
			if !ok {
				return nil, fmt.Errorf("field %q: unsupported value type %T", name, v)
			}
			out[name] = s
		}
	}
	return out, nil
}

func scalarString(v any) (string, bool) {
	switch tv := v.(type) {
	case string:
		return tv, true
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(tv), 'f', -1, 32), true
	case int:
		return strconv.Itoa(tv), true
	case int64:
		return strconv.FormatInt(tv, 10), true
	case json.Number:
		return tv.String(), true
	case bool:
		return strconv.FormatBool(tv), true
	}
	return "", false
}

func encodeFields(f Fields) (string, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("encoding fields: %w", err)
	}
	return string(b), nil
}

func decodeFields(raw string) (Fields, error) {
	var m map[string]any
	if raw == "" {
		return Fields{}, nil
	}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("decoding fields: %w", err)
	}
	return NormalizeFields(Fields(m))
}
