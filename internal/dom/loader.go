package dom

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/GriffinCanCode/scriptkit/internal/lifecycle"
	"github.com/GriffinCanCode/scriptkit/internal/timing"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/saintfish/chardet"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// MaxHTMLSize limits page input to 10MB
const MaxHTMLSize = 10 * 1024 * 1024

var (
	ErrPageTooLarge = errors.New("page exceeds maximum size")
	ErrNoRoot       = errors.New("page has no root element")
)

// LoaderConfig controls lifecycle replay
type LoaderConfig struct {
	StepDelay time.Duration // Pause between lifecycle steps
}

// Loader replays a page's loading sequence onto a Document
type Loader struct {
	doc    *Document
	config LoaderConfig
	logger *zap.Logger
}

// NewLoader creates a loader for doc
func NewLoader(doc *Document, config LoaderConfig, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{doc: doc, config: config, logger: logger}
}

// Load parses the page from r and drives the document through head,
// body, DOMContentLoaded and load. If ctx ends part way the document is
// left in whatever state it reached.
func (l *Loader) Load(ctx context.Context, r io.Reader) error {
	data, err := readPage(r)
	if err != nil {
		return err
	}

	parsed, err := ParseHTML(data)
	if err != nil {
		return err
	}

	root := findElement(parsed, "html")
	if root == nil {
		return ErrNoRoot
	}
	l.doc.SetRootAttributes(root.Attr)

	var children []*html.Node
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			children = append(children, c)
		}
	}

	for _, child := range children {
		if err := l.pause(ctx); err != nil {
			return err
		}
		l.doc.AppendToRoot(child)
	}

	if err := l.pause(ctx); err != nil {
		return err
	}
	l.doc.SetReadyState(lifecycle.Interactive)

	if err := l.pause(ctx); err != nil {
		return err
	}
	l.doc.SetReadyState(lifecycle.Complete)

	l.logger.Debug("Page loaded", zap.Int("bytes", len(data)), zap.Int("root_children", len(children)))
	return nil
}

func (l *Loader) pause(ctx context.Context) error {
	select {
	case <-timing.Sleep(l.config.StepDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// readPage reads at most MaxHTMLSize bytes of page, transparently
// decompressing gzip and zstd input saved straight from a response body.
func readPage(r io.Reader) ([]byte, error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(len(zstdMagic))

	var src io.Reader = br
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip page: %w", err)
		}
		defer gz.Close()
		src = gz
	case bytes.HasPrefix(head, zstdMagic):
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to open zstd page: %w", err)
		}
		defer zr.Close()
		src = zr
	}

	data, err := io.ReadAll(io.LimitReader(src, MaxHTMLSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read page: %w", err)
	}
	if len(data) > MaxHTMLSize {
		return nil, ErrPageTooLarge
	}
	return data, nil
}

// Parse loads a whole page into a complete Document
func Parse(r io.Reader, logger *zap.Logger) (*Document, error) {
	doc := NewDocument(logger)
	if err := NewLoader(doc, LoaderConfig{}, logger).Load(context.Background(), r); err != nil {
		return nil, err
	}
	return doc, nil
}

// ParseHTML parses page bytes after converting them to UTF-8. A BOM or
// <meta> charset wins; otherwise non-UTF-8 input is sniffed.
func ParseHTML(data []byte) (*html.Node, error) {
	label := DetectCharset(data)

	reader, err := charset.NewReaderLabel(label, bytes.NewReader(data))
	if err != nil {
		reader = bytes.NewReader(data)
	}

	node, err := html.Parse(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}
	return node, nil
}

// DetectCharset returns the charset label for page bytes
func DetectCharset(data []byte) string {
	_, name, certain := charset.DetermineEncoding(data, "text/html")
	if certain || name != "windows-1252" {
		return name
	}

	if isASCII(data) {
		return "utf-8"
	}

	// Nothing declared and not UTF-8
	detector := chardet.NewHtmlDetector()
	result, err := detector.DetectBest(data)
	if err != nil || result == nil {
		return name
	}
	return strings.ToLower(result.Charset)
}

func isASCII(data []byte) bool {
	for _, c := range data {
		if c >= 0x80 {
			return false
		}
	}
	return true
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}
