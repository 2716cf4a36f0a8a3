package jsvalue

import (
	"fmt"

	"github.com/goccy/go-yaml"
)

// Decode parses JSON or YAML into plain Go values. Mappings become
// Objects in document order.
func Decode(data []byte) (any, error) {
	var raw any
	if err := yaml.UnmarshalWithOptions(data, &raw, yaml.UseOrderedMap()); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return normalize(raw), nil
}

// DecodeObject parses a document whose top level must be a mapping
func DecodeObject(data []byte) (Object, error) {
	v, err := Decode(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(Object)
	if !ok {
		return nil, fmt.Errorf("document root must be a mapping, got %T", v)
	}
	return obj, nil
}

func normalize(v any) any {
	switch t := v.(type) {
	case yaml.MapSlice:
		obj := make(Object, 0, len(t))
		for _, item := range t {
			obj = append(obj, Field{Key: String(item.Key), Value: normalize(item.Value)})
		}
		return obj
	case []any:
		out := make([]any, len(t))
		for i, elem := range t {
			out[i] = normalize(elem)
		}
		return out
	default:
		return v
	}
}
