// Package iterate walks plain-object trees.
package iterate

import "github.com/GriffinCanCode/scriptkit/internal/shared/jsvalue"

// Visitor receives a leaf value and its dotted path from the root
type Visitor func(value any, path string)

// Deepest calls fn once for every leaf under root. Non-empty plain
// objects are descended; everything else, including an empty plain
// object below the root, is a leaf. Slices and structs are leaves.
// A root that is not a non-empty plain object produces no calls.
func Deepest(root any, fn Visitor) {
	fields, ok := jsvalue.Fields(root)
	if !ok {
		return
	}
	walk(fields, "", fn)
}

func walk(fields []jsvalue.Field, prefix string, fn Visitor) {
	for _, f := range fields {
		path := f.Key
		if prefix != "" {
			path = prefix + "." + f.Key
		}

		if children, ok := jsvalue.Fields(f.Value); ok && len(children) > 0 {
			walk(children, path, fn)
			continue
		}
		fn(f.Value, path)
	}
}
