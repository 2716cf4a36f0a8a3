package dom

import (
	"fmt"
	"strings"
	"sync"

	"github.com/GriffinCanCode/scriptkit/internal/lifecycle"
	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is a live HTML document
type Document struct {
	node *html.Node // document node
	root *html.Node // <html> element

	mu         sync.RWMutex
	readyState lifecycle.ReadyState

	subMu     sync.Mutex
	nextID    uint64
	observers []subscription
	listeners []subscription

	logger *zap.Logger
}

type subscription struct {
	id    uint64
	event string
	fn    func()
}

// Element is a snapshot of an element
type Element struct {
	TagName     string
	ID          string
	ClassName   string
	TextContent string
	Attributes  map[string]string
}

// GetAttribute retrieves attribute value
func (e Element) GetAttribute(name string) string {
	return e.Attributes[name]
}

// NewDocument creates a loading document holding an empty <html> root
func NewDocument(logger *zap.Logger) *Document {
	if logger == nil {
		logger = zap.NewNop()
	}

	node := &html.Node{Type: html.DocumentNode}
	root := &html.Node{Type: html.ElementNode, Data: "html", DataAtom: atom.Html}
	node.AppendChild(root)

	return &Document{
		node:       node,
		root:       root,
		readyState: lifecycle.Loading,
		logger:     logger,
	}
}

// ReadyState implements lifecycle.Host
func (d *Document) ReadyState() lifecycle.ReadyState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.readyState
}

// HasRootChild implements lifecycle.Host
func (d *Document) HasRootChild(tag string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for c := d.root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && strings.EqualFold(c.Data, tag) {
			return true
		}
	}
	return false
}

// ObserveChildList implements lifecycle.Host
func (d *Document) ObserveChildList(fn func()) func() {
	return d.subscribe(&d.observers, "", fn)
}

// AddEventListener implements lifecycle.Host
func (d *Document) AddEventListener(event string, fn func()) func() {
	return d.subscribe(&d.listeners, event, fn)
}

// Observers returns the number of attached child-list observers
func (d *Document) Observers() int {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	return len(d.observers)
}

// Listeners returns the number of attached event listeners
func (d *Document) Listeners() int {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	return len(d.listeners)
}

func (d *Document) subscribe(list *[]subscription, event string, fn func()) func() {
	d.subMu.Lock()
	d.nextID++
	id := d.nextID
	*list = append(*list, subscription{id: id, event: event, fn: fn})
	d.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.subMu.Lock()
			defer d.subMu.Unlock()
			for i, s := range *list {
				if s.id == id {
					*list = append((*list)[:i:i], (*list)[i+1:]...)
					return
				}
			}
		})
	}
}

// dispatch calls every matching subscriber that is still attached when
// its turn comes, so a callback may detach itself or others
func (d *Document) dispatch(list *[]subscription, event string) {
	d.subMu.Lock()
	snapshot := append([]subscription(nil), *list...)
	d.subMu.Unlock()

	for _, s := range snapshot {
		if s.event != event || !d.attached(list, s.id) {
			continue
		}
		s.fn()
	}
}

func (d *Document) attached(list *[]subscription, id uint64) bool {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	for _, s := range *list {
		if s.id == id {
			return true
		}
	}
	return false
}

// AppendToRoot moves n under the root element and notifies observers
func (d *Document) AppendToRoot(n *html.Node) {
	d.mu.Lock()
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
	d.root.AppendChild(n)
	d.mu.Unlock()

	d.logger.Debug("Root child appended", zap.String("tag", n.Data))
	d.dispatch(&d.observers, "")
}

// SetRootAttributes copies attributes onto the root element
func (d *Document) SetRootAttributes(attrs []html.Attribute) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.root.Attr = append([]html.Attribute(nil), attrs...)
}

// SetReadyState advances the ready state and fires the matching event:
// DOMContentLoaded on interactive, load on complete
func (d *Document) SetReadyState(state lifecycle.ReadyState) {
	d.mu.Lock()
	d.readyState = state
	d.mu.Unlock()

	d.logger.Debug("Ready state changed", zap.String("state", string(state)))

	switch state {
	case lifecycle.Interactive:
		d.dispatch(&d.listeners, lifecycle.EventDOMContentLoaded)
	case lifecycle.Complete:
		d.dispatch(&d.listeners, lifecycle.EventLoad)
	}
}

// Query finds elements matching a CSS selector
func (d *Document) Query(selector string) ([]Element, error) {
	if _, err := cascadia.ParseGroup(selector); err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	sel := goquery.NewDocumentFromNode(d.node).Find(selector)
	elements := make([]Element, 0, sel.Length())
	for _, n := range sel.Nodes {
		elements = append(elements, snapshot(n))
	}
	return elements, nil
}

// XPath finds elements matching an XPath expression
func (d *Document) XPath(expr string) ([]Element, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	nodes, err := htmlquery.QueryAll(d.node, expr)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath %q: %w", expr, err)
	}

	elements := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			elements = append(elements, snapshot(n))
		}
	}
	return elements, nil
}

// HTML renders the current tree
func (d *Document) HTML() string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var b strings.Builder
	if err := html.Render(&b, d.node); err != nil {
		return ""
	}
	return b.String()
}

func snapshot(n *html.Node) Element {
	attrs := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		attrs[a.Key] = a.Val
	}
	return Element{
		TagName:     strings.ToUpper(n.Data),
		ID:          attrs["id"],
		ClassName:   attrs["class"],
		TextContent: htmlquery.InnerText(n),
		Attributes:  attrs,
	}
}
