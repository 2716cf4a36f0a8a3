package dom

import (
	"strings"
	"testing"

	"github.com/GriffinCanCode/scriptkit/internal/lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const testPage = `<!DOCTYPE html>
<html lang="zh-CN">
<head><title>Video</title></head>
<body>
  <div id="app" class="container main">
    <a class="link" href="/video/BV1xx">first</a>
    <a class="link" href="/video/BV2yy">second</a>
  </div>
</body>
</html>`

var _ lifecycle.Host = (*Document)(nil)

func element(tag string) *html.Node {
	return &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
}

func TestNewDocument(t *testing.T) {
	doc := NewDocument(nil)

	assert.Equal(t, lifecycle.Loading, doc.ReadyState())
	assert.False(t, doc.HasRootChild("head"))
	assert.False(t, doc.HasRootChild("body"))
}

func TestAppendToRootNotifiesObservers(t *testing.T) {
	doc := NewDocument(nil)

	calls := 0
	disconnect := doc.ObserveChildList(func() { calls++ })
	require.Equal(t, 1, doc.Observers())

	doc.AppendToRoot(element("head"))
	assert.True(t, doc.HasRootChild("head"))
	assert.True(t, doc.HasRootChild("HEAD"))
	assert.Equal(t, 1, calls)

	disconnect()
	disconnect()
	assert.Equal(t, 0, doc.Observers())

	doc.AppendToRoot(element("body"))
	assert.Equal(t, 1, calls, "disconnected observer must not be called")
}

func TestObserverDetachingDuringDispatch(t *testing.T) {
	doc := NewDocument(nil)

	var second func()
	secondCalls := 0
	doc.ObserveChildList(func() { second() })
	second = doc.ObserveChildList(func() { secondCalls++ })

	doc.AppendToRoot(element("head"))

	assert.Zero(t, secondCalls, "observer detached by an earlier callback should be skipped")
}

func TestSetReadyStateFiresEvents(t *testing.T) {
	doc := NewDocument(nil)

	var events []string
	removeReady := doc.AddEventListener(lifecycle.EventDOMContentLoaded, func() { events = append(events, "ready") })
	doc.AddEventListener(lifecycle.EventLoad, func() { events = append(events, "load") })
	require.Equal(t, 2, doc.Listeners())

	doc.SetReadyState(lifecycle.Interactive)
	removeReady()
	doc.SetReadyState(lifecycle.Complete)

	assert.Equal(t, []string{"ready", "load"}, events)
	assert.Equal(t, lifecycle.Complete, doc.ReadyState())
	assert.Equal(t, 1, doc.Listeners())
}

func TestQuery(t *testing.T) {
	doc, err := Parse(strings.NewReader(testPage), nil)
	require.NoError(t, err)

	tests := []struct {
		name     string
		selector string
		wantLen  int
	}{
		{"ID selector", "#app", 1},
		{"class selector", ".link", 2},
		{"tag selector", "a", 2},
		{"attribute selector", `a[href$="BV2yy"]`, 1},
		{"non-existent", "#not-found", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := doc.Query(tt.selector)
			require.NoError(t, err)
			assert.Len(t, results, tt.wantLen)
		})
	}

	app, err := doc.Query("#app")
	require.NoError(t, err)
	assert.Equal(t, "DIV", app[0].TagName)
	assert.Equal(t, "container main", app[0].ClassName)
	assert.Contains(t, app[0].TextContent, "first")
}

func TestQueryInvalidSelector(t *testing.T) {
	doc := NewDocument(nil)

	_, err := doc.Query("a[")
	assert.Error(t, err)
}

func TestXPath(t *testing.T) {
	doc, err := Parse(strings.NewReader(testPage), nil)
	require.NoError(t, err)

	links, err := doc.XPath("//a[@class='link']")
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "/video/BV1xx", links[0].GetAttribute("href"))

	_, err = doc.XPath("//a[")
	assert.Error(t, err)
}

func TestHTMLKeepsRootAttributes(t *testing.T) {
	doc, err := Parse(strings.NewReader(testPage), nil)
	require.NoError(t, err)

	rendered := doc.HTML()
	assert.Contains(t, rendered, `<html lang="zh-CN">`)
	assert.Contains(t, rendered, "<title>Video</title>")
}
