// Package jsvalue models the slice of JavaScript value semantics that the
// userscript helpers depend on.
//
// Plain objects:
//   - Object: ordered fields, the Go stand-in for a JS object literal
//   - map[string]any: accepted anywhere an Object is, visited in ascending
//     key order since Go maps have no enumeration order
//
// Coercion:
//   - String mirrors JS String(value), including number formatting and the
//     "[object Object]" rendering of plain objects
//
// Decoding:
//   - Decode reads JSON or YAML and keeps mapping key order
//
// Example Usage:
//
//	params := jsvalue.Object{{Key: "foo", Value: 114}, {Key: "bar", Value: "514"}}
//	jsvalue.String(params[0].Value) // "114"
package jsvalue
