package sandbox

import (
	"net/url"
	"strings"

	"github.com/GriffinCanCode/scriptkit/internal/dom"
	"github.com/GriffinCanCode/scriptkit/internal/fetchinput"
	"github.com/dop251/goja"
)

// jsRequest backs a script-side Request object
type jsRequest struct {
	url    string
	method string
}

// RequestURL implements fetchinput.Requester
func (q *jsRequest) RequestURL() string {
	return q.url
}

func (r *Runtime) installWeb() error {
	if err := r.vm.Set("URL", r.newURL); err != nil {
		return err
	}
	if err := r.vm.Set("Request", r.newRequest); err != nil {
		return err
	}
	return r.installDocument()
}

// newURL implements new URL(href[, base])
func (r *Runtime) newURL(call goja.ConstructorCall) *goja.Object {
	raw := call.Argument(0).String()
	u, err := url.Parse(raw)

	if base := call.Argument(1); !goja.IsUndefined(base) {
		b, berr := url.Parse(base.String())
		if berr != nil || !b.IsAbs() {
			panic(r.vm.NewTypeError("Invalid base URL: " + base.String()))
		}
		if err == nil {
			u = b.ResolveReference(u)
		}
	}
	if err != nil || !u.IsAbs() {
		panic(r.vm.NewTypeError("Invalid URL: " + raw))
	}
	if u.Opaque == "" && u.Host != "" && u.Path == "" {
		u.Path = "/"
	}

	obj := call.This
	r.exec.urls[obj] = u

	href := u.String()
	search := ""
	if u.RawQuery != "" {
		search = "?" + u.RawQuery
	}
	hash := ""
	if u.Fragment != "" {
		hash = "#" + u.EscapedFragment()
	}

	props := []struct {
		name  string
		value any
	}{
		{"href", href},
		{"protocol", u.Scheme + ":"},
		{"host", u.Host},
		{"hostname", u.Hostname()},
		{"port", u.Port()},
		{"pathname", u.EscapedPath()},
		{"search", search},
		{"hash", hash},
		{"origin", u.Scheme + "://" + u.Host},
		{"toString", func() string { return href }},
		{"toJSON", func() string { return href }},
	}
	for _, p := range props {
		_ = obj.Set(p.name, p.value)
	}
	return obj
}

// newRequest implements new Request(input[, init]). Only the url and
// method are kept.
func (r *Runtime) newRequest(call goja.ConstructorCall) *goja.Object {
	target := fetchinput.URL(r.fetchInput(call.Argument(0)))
	if target == fetchinput.IncorrectInput {
		target = call.Argument(0).String()
	}

	method := "GET"
	if init, ok := call.Argument(1).(*goja.Object); ok {
		if m := init.Get("method"); m != nil && !goja.IsUndefined(m) {
			method = strings.ToUpper(m.String())
		}
	}

	obj := call.This
	r.exec.requests[obj] = &jsRequest{url: target, method: method}
	_ = obj.Set("url", target)
	_ = obj.Set("method", method)
	return obj
}

// fetchInput classifies a script value. Only strings and objects built
// by the URL and Request constructors carry a URL.
func (r *Runtime) fetchInput(v goja.Value) fetchinput.Input {
	if obj, ok := v.(*goja.Object); ok {
		if u, ok := r.exec.urls[obj]; ok {
			return fetchinput.URLValue{URL: u}
		}
		if q, ok := r.exec.requests[obj]; ok {
			return fetchinput.Request{Target: q}
		}
		return fetchinput.Unsupported{Value: obj.Export()}
	}
	if v == nil {
		return fetchinput.Unsupported{}
	}
	return fetchinput.From(v.Export())
}

// installDocument injects the document proxy into runtime
func (r *Runtime) installDocument() error {
	document := r.vm.NewObject()

	readyState := r.vm.ToValue(func(goja.FunctionCall) goja.Value {
		return r.vm.ToValue(string(r.exec.doc.ReadyState()))
	})
	if err := document.DefineAccessorProperty("readyState", readyState, nil, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		return err
	}

	methods := []struct {
		name string
		fn   func(goja.FunctionCall) goja.Value
	}{
		{"querySelector", r.querySelector},
		{"querySelectorAll", r.querySelectorAll},
		{"getElementById", r.getElementByID},
	}
	for _, m := range methods {
		if err := document.Set(m.name, m.fn); err != nil {
			return err
		}
	}

	return r.vm.Set("document", document)
}

func (r *Runtime) query(call goja.FunctionCall) []dom.Element {
	elements, err := r.exec.doc.Query(call.Argument(0).String())
	if err != nil {
		panic(r.vm.NewGoError(err))
	}
	return elements
}

func (r *Runtime) querySelector(call goja.FunctionCall) goja.Value {
	elements := r.query(call)
	if len(elements) == 0 {
		return goja.Null()
	}
	return r.vm.ToValue(r.createElementProxy(elements[0]))
}

func (r *Runtime) querySelectorAll(call goja.FunctionCall) goja.Value {
	elements := r.query(call)
	proxies := make([]any, len(elements))
	for i, elem := range elements {
		proxies[i] = r.createElementProxy(elem)
	}
	return r.vm.NewArray(proxies...)
}

// getElementByID looks the id up with XPath so ids need no CSS escaping
func (r *Runtime) getElementByID(call goja.FunctionCall) goja.Value {
	elemID := call.Argument(0).String()

	quote := `"`
	if strings.Contains(elemID, `"`) {
		if strings.Contains(elemID, "'") {
			return goja.Null()
		}
		quote = "'"
	}

	elements, err := r.exec.doc.XPath("//*[@id=" + quote + elemID + quote + "]")
	if err != nil || len(elements) == 0 {
		return goja.Null()
	}
	return r.vm.ToValue(r.createElementProxy(elements[0]))
}

// createElementProxy creates a read-only proxy for an element snapshot
func (r *Runtime) createElementProxy(elem dom.Element) map[string]any {
	return map[string]any{
		"tagName":     elem.TagName,
		"id":          elem.ID,
		"className":   elem.ClassName,
		"textContent": elem.TextContent,
		"getAttribute": func(name string) any {
			if v, ok := elem.Attributes[name]; ok {
				return v
			}
			return nil
		},
	}
}
