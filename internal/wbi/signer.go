package wbi

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/GriffinCanCode/scriptkit/internal/shared/jsvalue"
)

const (
	// TimestampKey is the parameter stamped with the signing time
	TimestampKey = "wts"

	// SignatureKey is the parameter carrying the signature
	SignatureKey = "w_rid"
)

// Signer signs parameter sets against a clock
type Signer struct {
	// Now supplies the signing time; nil means time.Now
	Now func() time.Time
}

// Sign stamps params with wts and returns the signed query string.
// params is modified in place; a nil map signs wts alone.
func (s Signer) Sign(params map[string]any, imgKey, subKey string) string {
	if params == nil {
		params = make(map[string]any, 1)
	}
	params[TimestampKey] = s.timestamp()

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]jsvalue.Field, len(keys))
	for i, k := range keys {
		fields[i] = jsvalue.Field{Key: k, Value: params[k]}
	}
	return signFields(fields, MixinKey(imgKey, subKey))
}

// SignObject is Sign for ordered objects. An existing wts field is
// replaced in place; otherwise one is appended.
func (s Signer) SignObject(params *jsvalue.Object, imgKey, subKey string) string {
	params.Set(TimestampKey, s.timestamp())

	fields := make([]jsvalue.Field, len(*params))
	copy(fields, *params)
	sort.SliceStable(fields, func(i, j int) bool {
		return fields[i].Key < fields[j].Key
	})
	return signFields(fields, MixinKey(imgKey, subKey))
}

// timestamp returns the signing time in whole seconds, rounded the way
// Math.round(Date.now() / 1000) rounds
func (s Signer) timestamp() int64 {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return (now().UnixMilli() + 500) / 1000
}

func signFields(fields []jsvalue.Field, salt string) string {
	pairs := make([]string, len(fields))
	for i, f := range fields {
		value := cleanValue(jsvalue.String(f.Value))
		pairs[i] = EncodeURIComponent(f.Key) + "=" + EncodeURIComponent(value)
	}
	query := strings.Join(pairs, "&")

	sum := md5.Sum([]byte(query + salt))
	return query + "&" + SignatureKey + "=" + hex.EncodeToString(sum[:])
}

var defaultSigner Signer

// Sign signs params with the wall clock
func Sign(params map[string]any, imgKey, subKey string) string {
	return defaultSigner.Sign(params, imgKey, subKey)
}

// SignObject signs an ordered object with the wall clock
func SignObject(params *jsvalue.Object, imgKey, subKey string) string {
	return defaultSigner.SignObject(params, imgKey, subKey)
}
