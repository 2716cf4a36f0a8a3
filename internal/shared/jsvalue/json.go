package jsvalue

import (
	"bytes"

	"github.com/bytedance/sonic"
)

// MarshalJSON encodes the object with its fields in order
func (o Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := sonic.ConfigStd.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		value, err := sonic.ConfigStd.Marshal(jsonValue(f.Value))
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// jsonValue maps Undefined to null, which is what JSON.stringify does
// for undefined inside arrays
func jsonValue(v any) any {
	if v == Undefined {
		return nil
	}
	return v
}
