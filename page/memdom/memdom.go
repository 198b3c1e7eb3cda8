// Package memdom renders static HTML with its embedded CSS in memory and
// exposes it as a page.Host.
//
// The cascade is real (douceur parses the CSS, cascadia matches selectors and
// orders them by specificity) but layout is a synthetic block flow: every
// block takes the viewport width and stacks vertically, inline boxes are sized
// from their text. That is enough for visibility decisions, overlay geometry
// and tests; it is not a rendering engine.
//
// <link rel="stylesheet"> sheets are treated as cross-origin unless their
// href was registered with WithStyleSheet.
package memdom

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/typescope/page"
)

const hoverAttr = "data-memdom-hover"

// Document is an in-memory page. It is safe for concurrent use.
type Document struct {
	mu       sync.Mutex
	root     *html.Node
	url      string
	viewport page.Viewport
	sheets   map[string]string

	ids   map[*html.Node]page.NodeID
	nodes map[page.NodeID]*html.Node
	next  page.NodeID

	hover     *html.Node
	listeners []*listener
	navSubs   []chan struct{}
	scrolls   []page.NodeID
}

// Option configures a Document.
type Option func(*Document)

// WithViewport sets the viewport size. Default: 1280x800.
func WithViewport(w, h float64) Option {
	return func(d *Document) { d.viewport = page.Viewport{Width: w, Height: h} }
}

// WithStyleSheet registers a same-origin linked stylesheet.
func WithStyleSheet(href, css string) Option {
	return func(d *Document) { d.sheets[href] = css }
}

// WithURL sets the document URL reported by captures.
func WithURL(u string) Option {
	return func(d *Document) { d.url = u }
}

// Parse builds a Document from an HTML string.
func Parse(src string, opts ...Option) (*Document, error) {
	d := &Document{
		viewport: page.Viewport{Width: 1280, Height: 800},
		sheets:   make(map[string]string),
	}
	for _, o := range opts {
		o(d)
	}
	if err := d.load(src); err != nil {
		return nil, err
	}
	return d, nil
}

// MustParse is Parse for tests and fixtures.
func MustParse(src string, opts ...Option) *Document {
	d, err := Parse(src, opts...)
	if err != nil {
		panic(err)
	}
	return d
}

func (d *Document) load(src string) error {
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return fmt.Errorf("memdom: parse: %w", err)
	}
	d.root = root
	d.ids = make(map[*html.Node]page.NodeID)
	d.nodes = make(map[page.NodeID]*html.Node)
	d.hover = nil
	return nil
}

// Navigate replaces the document, the way a page load would. Listeners of
// the old document are detached and navigation subscribers are notified.
func (d *Document) Navigate(src string) error {
	d.mu.Lock()
	if err := d.load(src); err != nil {
		d.mu.Unlock()
		return err
	}
	old := d.listeners
	d.listeners = nil
	subs := append([]chan struct{}(nil), d.navSubs...)
	d.mu.Unlock()

	for _, l := range old {
		l.shutdown()
	}

	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

// Navigations reports completed navigations until ctx is done.
func (d *Document) Navigations(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{}, 1)
	d.mu.Lock()
	d.navSubs = append(d.navSubs, ch)
	d.mu.Unlock()
	context.AfterFunc(ctx, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		for i, c := range d.navSubs {
			if c == ch {
				d.navSubs = append(d.navSubs[:i], d.navSubs[i+1:]...)
				break
			}
		}
	})
	return ch
}

// --- lookups ---

func (d *Document) idOf(n *html.Node) page.NodeID {
	if id, ok := d.ids[n]; ok {
		return id
	}
	d.next++
	d.ids[n] = d.next
	d.nodes[d.next] = n
	return d.next
}

func (d *Document) lookup(id page.NodeID) (*html.Node, error) {
	n, ok := d.nodes[id]
	if !ok || !d.attached(n) {
		return nil, page.ErrDetached
	}
	return n, nil
}

func (d *Document) attached(n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == d.root {
			return true
		}
	}
	return false
}

func (d *Document) body() *html.Node {
	return findElement(d.root, atom.Body)
}

func (d *Document) head() *html.Node {
	return findElement(d.root, atom.Head)
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n == nil {
		return nil
	}
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := findElement(c, a); f != nil {
			return f
		}
	}
	return nil
}

func injected(n *html.Node) bool {
	_, ok := getAttr(n, page.MarkerAttr)
	return ok
}

// --- test helpers ---

// Find returns the first element matching a CSS selector.
func (d *Document) Find(selector string) (page.NodeID, bool) {
	ids := d.FindAll(selector)
	if len(ids) == 0 {
		return 0, false
	}
	return ids[0], true
}

// FindAll returns every element matching a CSS selector, in document order.
func (d *Document) FindAll(selector string) []page.NodeID {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var ids []page.NodeID
	for _, n := range sel.MatchAll(d.root) {
		ids = append(ids, d.idOf(n))
	}
	return ids
}

// Attr returns an attribute of a live element.
func (d *Document) Attr(id page.NodeID, name string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.lookup(id)
	if err != nil {
		return "", false
	}
	return getAttr(n, name)
}

// Computed returns the computed style of a live element.
func (d *Document) Computed(id page.NodeID) page.Style {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.lookup(id)
	if err != nil {
		return nil
	}
	return d.render().styles[n].style
}

// HTML serializes the current document.
func (d *Document) HTML() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var buf bytes.Buffer
	html.Render(&buf, d.root)
	return strings.ReplaceAll(buf.String(), " "+hoverAttr+`=""`, "")
}

// Scrolled returns the elements passed to ScrollIntoView, oldest first.
func (d *Document) Scrolled() []page.NodeID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]page.NodeID(nil), d.scrolls...)
}

// Detach removes an element from the tree, simulating page script.
func (d *Document) Detach(id page.NodeID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n, err := d.lookup(id); err == nil && n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// SetAttr sets an attribute, simulating page script.
func (d *Document) SetAttr(id page.NodeID, name, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n, err := d.lookup(id); err == nil {
		setAttr(n, name, value)
	}
}

var _ page.Host = (*Document)(nil)
