package lifecycle

import (
	"context"
	"errors"
	"sync"
)

// ErrIllegalMoment is returned for an unknown moment name
var ErrIllegalMoment = errors.New("Illegal moment")

// Moment names a point in the loading lifecycle
type Moment string

const (
	DocumentStart Moment = "document-start"
	DocumentHead  Moment = "document-head"
	DocumentBody  Moment = "document-body"
	DocumentEnd   Moment = "document-end"
	WindowLoad    Moment = "window-load"
)

// Moments lists every known moment in lifecycle order
var Moments = []Moment{DocumentStart, DocumentHead, DocumentBody, DocumentEnd, WindowLoad}

// ParseMoment validates a moment name
func ParseMoment(name string) (Moment, error) {
	for _, m := range Moments {
		if string(m) == name {
			return m, nil
		}
	}
	return "", ErrIllegalMoment
}

// ReadyState mirrors document.readyState
type ReadyState string

const (
	Loading     ReadyState = "loading"
	Interactive ReadyState = "interactive"
	Complete    ReadyState = "complete"
)

// Lifecycle event names
const (
	EventDOMContentLoaded = "DOMContentLoaded"
	EventLoad             = "load"
)

// Host exposes the document and window primitives the waiter consumes
type Host interface {
	// ReadyState reports the current document ready state
	ReadyState() ReadyState
	// HasRootChild reports whether the root element has a child with tag
	HasRootChild(tag string) bool
	// ObserveChildList calls fn after each child-list change on the root
	ObserveChildList(fn func()) (disconnect func())
	// AddEventListener calls fn each time event fires
	AddEventListener(event string, fn func()) (remove func())
}

// Await returns a channel closed once moment is reached. The channel is
// already closed when the moment has passed.
func Await(host Host, moment Moment) (<-chan struct{}, error) {
	w, err := start(host, moment)
	if err != nil {
		return nil, err
	}
	return w.done, nil
}

// Wait blocks until moment is reached or ctx ends. On early exit the
// pending subscription is released before returning ctx.Err().
func Wait(ctx context.Context, host Host, moment Moment) error {
	w, err := start(host, moment)
	if err != nil {
		return err
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.release()
		return ctx.Err()
	}
}

// waiter owns the subscription behind one wait
type waiter struct {
	done chan struct{}

	mu       sync.Mutex
	resolved bool
	cancel   func()
}

func start(host Host, moment Moment) (*waiter, error) {
	w := &waiter{done: make(chan struct{})}

	switch moment {
	case DocumentStart:
		w.resolve()
	case DocumentHead:
		w.untilChild(host, "head")
	case DocumentBody:
		w.untilChild(host, "body")
	case DocumentEnd:
		w.untilState(host, EventDOMContentLoaded, func(s ReadyState) bool { return s != Loading })
	case WindowLoad:
		w.untilState(host, EventLoad, func(s ReadyState) bool { return s == Complete })
	default:
		return nil, ErrIllegalMoment
	}
	return w, nil
}

func (w *waiter) untilChild(host Host, tag string) {
	if host.HasRootChild(tag) {
		w.resolve()
		return
	}

	w.hold(host.ObserveChildList(func() {
		if host.HasRootChild(tag) {
			w.resolve()
		}
	}))

	// The child may have arrived between the check and the subscription
	if host.HasRootChild(tag) {
		w.resolve()
	}
}

func (w *waiter) untilState(host Host, event string, reached func(ReadyState) bool) {
	if reached(host.ReadyState()) {
		w.resolve()
		return
	}

	w.hold(host.AddEventListener(event, w.resolve))

	if reached(host.ReadyState()) {
		w.resolve()
	}
}

// hold registers the release func for the current subscription. If the
// wait already resolved while subscribing, it is released right away.
func (w *waiter) hold(cancel func()) {
	w.mu.Lock()
	if w.resolved {
		w.mu.Unlock()
		cancel()
		return
	}
	w.cancel = cancel
	w.mu.Unlock()
}

// resolve closes done and releases the subscription, once
func (w *waiter) resolve() {
	w.mu.Lock()
	if w.resolved {
		w.mu.Unlock()
		return
	}
	w.resolved = true
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	close(w.done)
	if cancel != nil {
		cancel()
	}
}

// release drops the subscription without resolving
func (w *waiter) release() {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}
