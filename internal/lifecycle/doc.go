/*
Package lifecycle waits for named points in a document's loading lifecycle.

# Moments

	document-start  immediately
	document-head   the root element has a <head> child
	document-body   the root element has a <body> child
	document-end    ready state is past "loading" (DOMContentLoaded)
	window-load     ready state is "complete" (load)

Any other name fails with ErrIllegalMoment.

# Host

The waiter never touches a global document. Callers pass a Host that
reports the ready state, answers whether the root has a given child, and
delivers child-list mutations and lifecycle events. internal/dom.Document
is the in-process implementation; tests use fakes.

# Subscriptions

Each wait holds at most one subscription, an observer or an event
listener. It is released exactly once: on the notification that satisfies
the wait, or when a Wait caller's context ends first. Hosts may notify
from any goroutine.

	done, err := lifecycle.Await(doc, lifecycle.DocumentBody)
	if err != nil {
		return err
	}
	<-done
*/
package lifecycle
