/*
Package dom provides the in-process document a userscript runs against.

# Overview

A Document is a live HTML tree with the lifecycle state a browser page
exposes to scripts:

  - readyState: loading, interactive, complete
  - child-list mutation observers on the root <html> element
  - DOMContentLoaded and load event listeners
  - CSS (goquery) and XPath (htmlquery) queries

Document implements lifecycle.Host.

# Loading

A Loader parses a page once (charset-detected) and then replays the
browser's loading sequence onto a Document:

 1. <head> appended to the root
 2. <body> appended to the root
 3. readyState "interactive", DOMContentLoaded
 4. readyState "complete", load

Scripts waiting on lifecycle moments see them resolve in that order.

# Usage Example

	doc := dom.NewDocument(logger)
	loader := dom.NewLoader(doc, dom.LoaderConfig{StepDelay: 10 * time.Millisecond}, logger)
	go loader.Load(ctx, page)

	<-mustAwait(doc, lifecycle.DocumentEnd)
	links, _ := doc.Query("a[href]")
*/
package dom
