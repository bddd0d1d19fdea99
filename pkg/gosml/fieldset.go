package gosml

import (
	"fmt"
	"sort"
	"strconv"

	"gitlab.com/d21d3q/gosml/internal/publish"
)

// FieldSet offers typed helpers on top of the decoded records.
type FieldSet struct {
	data map[string]publish.Entry
}

// FieldSet returns a FieldSet wrapper for the result's records.
func (r Result) FieldSet() FieldSet {
	return FieldSet{data: r.Records}
}

// Keys returns the record keys in sorted order.
func (fs FieldSet) Keys() []string {
	keys := make([]string, 0, len(fs.data))
	for k := range fs.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Raw returns the stored value without conversions.
func (fs FieldSet) Raw(key string) (any, bool) {
	e, ok := fs.data[key]
	if !ok {
		return nil, false
	}
	return e.DataValue, true
}

// Unit returns the unit symbol of the record, if known.
func (fs FieldSet) Unit(key string) (string, bool) {
	e, ok := fs.data[key]
	if !ok || e.DataUnit == nil {
		return "", false
	}
	return *e.DataUnit, true
}

// Description returns the description of the record, if known.
func (fs FieldSet) Description(key string) (string, bool) {
	e, ok := fs.data[key]
	if !ok || e.DataType == nil {
		return "", false
	}
	return *e.DataType, true
}

// Float returns the value coerced to float64.
func (fs FieldSet) Float(key string) (float64, error) {
	v, ok := fs.Raw(key)
	if !ok {
		return 0, fmt.Errorf("field %q missing", key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("field %q is not numeric: %w", key, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("field %q has unsupported type %T", key, v)
	}
}

// Int returns the value coerced to int64. Scaled values are truncated.
func (fs FieldSet) Int(key string) (int64, error) {
	v, ok := fs.Raw(key)
	if !ok {
		return 0, fmt.Errorf("field %q missing", key)
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case uint64:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("field %q has unsupported type %T", key, v)
	}
}

// String returns the value as a string. Octet strings are already hex.
func (fs FieldSet) String(key string) (string, error) {
	v, ok := fs.Raw(key)
	if !ok {
		return "", fmt.Errorf("field %q missing", key)
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case fmt.Stringer:
		return s.String(), nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

// Bool returns the value coerced to bool.
func (fs FieldSet) Bool(key string) (bool, error) {
	v, ok := fs.Raw(key)
	if !ok {
		return false, fmt.Errorf("field %q missing", key)
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return false, fmt.Errorf("field %q is not bool: %w", key, err)
		}
		return parsed, nil
	default:
		return false, fmt.Errorf("field %q has unsupported type %T", key, v)
	}
}
