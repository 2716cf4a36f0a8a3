// Package fetchinput resolves the URL behind a fetch-style input.
//
// A fetch input is one of three things: a URL string, a URL value, or a
// request carrying a URL. Input is a closed set of those arms plus
// Unsupported; URL switches over it and answers IncorrectInput for the
// unsupported arm instead of failing.
package fetchinput

import (
	"net/http"
	"net/url"

	"github.com/go-resty/resty/v2"
)

// IncorrectInput is returned for inputs that carry no URL
const IncorrectInput = "Incorrect input"

// Input is a fetch-style input
type Input interface {
	fetchInput()
}

// String is a URL given as text
type String string

// URLValue is a parsed URL
type URLValue struct {
	URL *url.URL
}

// Request is anything that exposes the URL it targets
type Request struct {
	Target Requester
}

// Requester reports the URL of a request
type Requester interface {
	RequestURL() string
}

// Unsupported wraps a value that is not a fetch input
type Unsupported struct {
	Value any
}

func (String) fetchInput()      {}
func (URLValue) fetchInput()    {}
func (Request) fetchInput()     {}
func (Unsupported) fetchInput() {}

// URL returns the URL carried by in, or IncorrectInput
func URL(in Input) string {
	switch v := in.(type) {
	case String:
		return string(v)
	case URLValue:
		if v.URL == nil {
			return IncorrectInput
		}
		return v.URL.String()
	case Request:
		if v.Target == nil {
			return IncorrectInput
		}
		return v.Target.RequestURL()
	default:
		return IncorrectInput
	}
}

// HTTPRequest adapts *http.Request
type HTTPRequest struct{ *http.Request }

// RequestURL implements Requester
func (r HTTPRequest) RequestURL() string {
	if r.Request == nil || r.Request.URL == nil {
		return IncorrectInput
	}
	return r.Request.URL.String()
}

// RestyRequest adapts *resty.Request
type RestyRequest struct{ *resty.Request }

// RequestURL implements Requester
func (r RestyRequest) RequestURL() string {
	if r.Request == nil {
		return IncorrectInput
	}
	return r.Request.URL
}

// From classifies a dynamic value into an Input
func From(v any) Input {
	switch t := v.(type) {
	case Input:
		return t
	case string:
		return String(t)
	case *url.URL:
		return URLValue{URL: t}
	case url.URL:
		return URLValue{URL: &t}
	case *http.Request:
		return Request{Target: HTTPRequest{t}}
	case *resty.Request:
		return Request{Target: RestyRequest{t}}
	case Requester:
		return Request{Target: t}
	default:
		return Unsupported{Value: v}
	}
}

// FromAny resolves the URL of a dynamic value
func FromAny(v any) string {
	return URL(From(v))
}
