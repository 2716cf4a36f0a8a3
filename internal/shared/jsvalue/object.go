package jsvalue

import (
	"sort"

	"github.com/goccy/go-yaml"
)

// Field is a single own property of a plain object
type Field struct {
	Key   string
	Value any
}

// Object is a plain object whose fields keep insertion order
type Object []Field

// Get returns the value stored under key
func (o Object) Get(key string) (any, bool) {
	for _, f := range o {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Set replaces the value under key in place, or appends a new field
func (o *Object) Set(key string, value any) {
	for i := range *o {
		if (*o)[i].Key == key {
			(*o)[i].Value = value
			return
		}
	}
	*o = append(*o, Field{Key: key, Value: value})
}

// Keys returns field names in enumeration order
func (o Object) Keys() []string {
	keys := make([]string, len(o))
	for i, f := range o {
		keys[i] = f.Key
	}
	return keys
}

// Fields returns the own fields of a plain object in enumeration order.
// The second result is false when v is not a plain object.
func Fields(v any) ([]Field, bool) {
	switch t := v.(type) {
	case Object:
		return t, true
	case *Object:
		if t == nil {
			return nil, false
		}
		return *t, true
	case map[string]any:
		return sortedFields(t), true
	case map[string]string:
		m := make(map[string]any, len(t))
		for k, s := range t {
			m[k] = s
		}
		return sortedFields(m), true
	case yaml.MapSlice:
		fields := make([]Field, 0, len(t))
		for _, item := range t {
			fields = append(fields, Field{Key: String(item.Key), Value: item.Value})
		}
		return fields, true
	default:
		return nil, false
	}
}

// IsPlainObject reports whether v is walked as a plain object
func IsPlainObject(v any) bool {
	_, ok := Fields(v)
	return ok
}

func sortedFields(m map[string]any) []Field {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]Field, len(keys))
	for i, k := range keys {
		fields[i] = Field{Key: k, Value: m[k]}
	}
	return fields
}
