package sandbox

import (
	"math"
	"reflect"

	"github.com/GriffinCanCode/scriptkit/internal/fetchinput"
	"github.com/GriffinCanCode/scriptkit/internal/formdata"
	"github.com/GriffinCanCode/scriptkit/internal/iterate"
	"github.com/GriffinCanCode/scriptkit/internal/lifecycle"
	"github.com/GriffinCanCode/scriptkit/internal/shared/jsvalue"
	"github.com/GriffinCanCode/scriptkit/internal/timing"
	"github.com/GriffinCanCode/scriptkit/internal/wbi"
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

var plainObjectType = reflect.TypeOf(map[string]any{})

// jsValue carries a JS value through the Go helpers untouched. Its
// String method is the VM's own ToString.
type jsValue struct {
	goja.Value
}

func (r *Runtime) installHelpers() error {
	helpers := []struct {
		name string
		fn   func(goja.FunctionCall) goja.Value
	}{
		{"uuid", r.uuid},
		{"sleep", r.sleep},
		{"encWbi", r.encWbi},
		{"packFormData", r.packFormData},
		{"deepestIterate", r.deepestIterate},
		{"getUrlFromFetchInput", r.getURLFromFetchInput},
		{"waitForMoment", r.waitForMoment},
	}
	for _, h := range helpers {
		if err := r.vm.Set(h.name, h.fn); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runtime) installTimers() error {
	if err := r.vm.Set("setTimeout", r.setTimeout); err != nil {
		return err
	}
	return r.vm.Set("clearTimeout", r.clearTimeout)
}

func (r *Runtime) uuid(goja.FunctionCall) goja.Value {
	r.record("uuid")
	return r.vm.ToValue(r.uuids.Generate())
}

// sleep resolves its promise after the given milliseconds
func (r *Runtime) sleep(call goja.FunctionCall) goja.Value {
	r.record("sleep")

	ms := millis(call.Argument(0))
	promise, resolve, _ := r.vm.NewPromise()
	loop := r.exec.loop
	post := loop.schedule()

	go func() {
		select {
		case <-timing.SleepMillis(ms):
			post(func() { resolve(goja.Undefined()) })
		case <-loop.ctx.Done():
		}
	}()
	return r.vm.ToValue(promise)
}

func (r *Runtime) setTimeout(call goja.FunctionCall) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(r.vm.NewTypeError("setTimeout callback is not a function"))
	}
	ms := millis(call.Argument(1))

	var args []goja.Value
	if len(call.Arguments) > 2 {
		args = append(args, call.Arguments[2:]...)
	}

	exec := r.exec
	exec.nextTimer++
	timerID := exec.nextTimer
	cancelled := make(chan struct{})
	exec.timers[timerID] = cancelled
	post := exec.loop.schedule()

	go func() {
		select {
		case <-timing.SleepMillis(ms):
			post(func() {
				if _, live := exec.timers[timerID]; !live {
					return
				}
				delete(exec.timers, timerID)
				if _, err := fn(goja.Undefined(), args...); err != nil {
					r.appendConsole("error", err.Error())
					r.logger.Warn("Timer callback failed", zap.Int64("timer", timerID), zap.Error(err))
				}
			})
		case <-cancelled:
			post(func() {})
		case <-exec.loop.ctx.Done():
		}
	}()
	return r.vm.ToValue(timerID)
}

func (r *Runtime) clearTimeout(call goja.FunctionCall) goja.Value {
	timerID := call.Argument(0).ToInteger()
	if cancelled, ok := r.exec.timers[timerID]; ok {
		delete(r.exec.timers, timerID)
		close(cancelled)
	}
	return goja.Undefined()
}

// encWbi signs params in place and returns the signed query
func (r *Runtime) encWbi(call goja.FunctionCall) goja.Value {
	r.record("encWbi")

	obj := r.toObject(call.Argument(0))
	params := r.topLevel(obj)
	query := r.signer.SignObject(&params, call.Argument(1).String(), call.Argument(2).String())

	ts, _ := params.Get(wbi.TimestampKey)
	if err := obj.Set(wbi.TimestampKey, ts); err != nil {
		panic(err)
	}
	if r.metrics != nil {
		r.metrics.IncSignatures()
	}
	return r.vm.ToValue(query)
}

// packFormData returns the packed entries as [[key, value], ...]
func (r *Runtime) packFormData(call goja.FunctionCall) goja.Value {
	r.record("packFormData")

	var fields jsvalue.Object
	if obj, ok := call.Argument(0).(*goja.Object); ok {
		fields = r.topLevel(obj)
	}

	entries := formdata.Pack(fields).Entries()
	pairs := make([]any, len(entries))
	for i, e := range entries {
		pairs[i] = r.vm.NewArray(e.Key, e.Value)
	}
	return r.vm.NewArray(pairs...)
}

func (r *Runtime) deepestIterate(call goja.FunctionCall) goja.Value {
	r.record("deepestIterate")

	fn, ok := goja.AssertFunction(call.Argument(1))
	if !ok {
		panic(r.vm.NewTypeError("deepestIterate callback is not a function"))
	}

	root, ok := call.Argument(0).(*goja.Object)
	if !ok || !r.isPlain(root) {
		return goja.Undefined()
	}

	tree := r.tree(root, make(map[*goja.Object]struct{}), 0)
	iterate.Deepest(tree, func(value any, path string) {
		if _, err := fn(goja.Undefined(), r.toJS(value), r.vm.ToValue(path)); err != nil {
			panic(err)
		}
	})
	return goja.Undefined()
}

func (r *Runtime) getURLFromFetchInput(call goja.FunctionCall) goja.Value {
	r.record("getUrlFromFetchInput")
	return r.vm.ToValue(fetchinput.URL(r.fetchInput(call.Argument(0))))
}

// waitForMoment resolves once the document reaches the moment. Unknown
// names reject with the error text.
func (r *Runtime) waitForMoment(call goja.FunctionCall) goja.Value {
	r.record("waitForMoment")

	promise, resolve, reject := r.vm.NewPromise()
	exec := r.exec
	post := exec.loop.schedule()

	moment, err := lifecycle.ParseMoment(call.Argument(0).String())
	if err != nil {
		go post(func() { reject(err.Error()) })
		return r.vm.ToValue(promise)
	}

	go func() {
		if err := lifecycle.Wait(exec.loop.ctx, exec.doc, moment); err != nil {
			return
		}
		post(func() {
			if r.metrics != nil {
				r.metrics.RecordMoment(string(moment))
			}
			resolve(goja.Undefined())
		})
	}()
	return r.vm.ToValue(promise)
}

// toObject applies ToObject, throwing a TypeError for undefined and null
func (r *Runtime) toObject(v goja.Value) *goja.Object {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		panic(r.vm.NewTypeError("Cannot convert undefined or null to object"))
	}
	return v.ToObject(r.vm)
}

// isPlain reports whether obj is an ordinary object, not an array,
// function or host object
func (r *Runtime) isPlain(obj *goja.Object) bool {
	if obj.ExportType() != plainObjectType {
		return false
	}
	if r.exec != nil {
		if _, ok := r.exec.urls[obj]; ok {
			return false
		}
		if _, ok := r.exec.requests[obj]; ok {
			return false
		}
	}
	return true
}

// maxTreeDepth bounds how far deepestIterate descends into nested objects
const maxTreeDepth = 1000

// topLevel lists the own enumerable properties of obj in enumeration
// order. Values stay jsValues, so nested objects coerce through the VM's
// ToString ("[object Object]") and are never walked.
func (r *Runtime) topLevel(obj *goja.Object) jsvalue.Object {
	keys := obj.Keys()
	out := make(jsvalue.Object, 0, len(keys))
	for _, k := range keys {
		out = append(out, jsvalue.Field{Key: k, Value: wrap(obj.Get(k))})
	}
	return out
}

// tree is topLevel with non-empty plain objects expanded into nested
// jsvalue.Objects. Empty objects and every other value stay jsValues.
// An object that contains itself, or nesting past maxTreeDepth, throws a
// RangeError.
func (r *Runtime) tree(obj *goja.Object, ancestors map[*goja.Object]struct{}, depth int) jsvalue.Object {
	if depth >= maxTreeDepth {
		panic(r.rangeError("Maximum object depth exceeded"))
	}
	if _, seen := ancestors[obj]; seen {
		panic(r.rangeError("Converting circular structure"))
	}
	ancestors[obj] = struct{}{}
	defer delete(ancestors, obj)

	keys := obj.Keys()
	out := make(jsvalue.Object, 0, len(keys))
	for _, k := range keys {
		v := obj.Get(k)
		if child, ok := v.(*goja.Object); ok && r.isPlain(child) && len(child.Keys()) > 0 {
			out = append(out, jsvalue.Field{Key: k, Value: r.tree(child, ancestors, depth+1)})
			continue
		}
		out = append(out, jsvalue.Field{Key: k, Value: wrap(v)})
	}
	return out
}

func (r *Runtime) rangeError(msg string) *goja.Object {
	ctor, ok := goja.AssertConstructor(r.vm.Get("RangeError"))
	if !ok {
		return r.vm.NewTypeError(msg)
	}
	obj, err := ctor(nil, r.vm.ToValue(msg))
	if err != nil {
		return r.vm.NewTypeError(msg)
	}
	return obj
}

func wrap(v goja.Value) jsValue {
	if v == nil {
		return jsValue{goja.Undefined()}
	}
	return jsValue{v}
}

func (r *Runtime) toJS(v any) goja.Value {
	if jv, ok := v.(jsValue); ok {
		return jv.Value
	}
	return r.vm.ToValue(v)
}

// millis reads a delay argument. Missing, NaN and negative delays are 0,
// and so are delays past the 32-bit range browsers keep timers in.
func millis(v goja.Value) float64 {
	ms := v.ToFloat()
	if math.IsNaN(ms) || ms < 0 || ms > math.MaxInt32 {
		return 0
	}
	return ms
}
