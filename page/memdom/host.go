package memdom

import (
	"context"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/typescope/page"
)

// Capture implements page.Host.
func (d *Document) Capture(ctx context.Context) (*page.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	body := d.body()
	if body == nil {
		return nil, page.ErrUnavailable
	}
	r := d.render()
	doc := &page.Document{URL: d.url, Viewport: d.viewport}

	var visit func(n *html.Node, parent int)
	visit = func(n *html.Node, parent int) {
		switch n.Type {
		case html.TextNode:
			doc.Nodes = append(doc.Nodes, page.Node{
				ID:     d.idOf(n),
				Kind:   page.KindText,
				Text:   n.Data,
				Parent: parent,
			})
		case html.ElementNode:
			if injected(n) {
				return
			}
			st := r.styles[n]
			doc.Nodes = append(doc.Nodes, page.Node{
				ID:     d.idOf(n),
				Kind:   page.KindElement,
				Tag:    n.Data,
				Parent: parent,
				Style:  st.style,
				Rect:   r.rects[n],
			})
			self := len(doc.Nodes) - 1
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				visit(c, self)
			}
		}
	}
	visit(body, -1)
	doc.Link()
	return doc, nil
}

// Body implements page.Host.
func (d *Document) Body(ctx context.Context) (page.NodeID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := d.body()
	if b == nil {
		return 0, page.ErrUnavailable
	}
	return d.idOf(b), nil
}

// Hovered implements page.Host.
func (d *Document) Hovered(ctx context.Context) ([]page.NodeID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var chain []*html.Node
	for n := d.hover; n != nil && n.Type == html.ElementNode; n = n.Parent {
		if n.DataAtom == atom.Html || n.DataAtom == atom.Body {
			continue
		}
		chain = append(chain, n)
	}
	ids := make([]page.NodeID, 0, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		ids = append(ids, d.idOf(chain[i]))
	}
	return ids, nil
}

// StyleSheets implements page.Host.
func (d *Document) StyleSheets(ctx context.Context) ([]page.StyleSheet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []page.StyleSheet
	for _, src := range d.sheetSources() {
		if src.denied {
			out = append(out, page.StyleSheet{Href: src.href, Err: page.ErrAccessDenied})
			continue
		}
		sheet := page.StyleSheet{Href: src.href}
		for _, r := range parseRules(src.css) {
			sheet.Rules = append(sheet.Rules, page.Rule{
				Selector:     r.selector,
				Declarations: serializeDecls(r.decls),
				Media:        r.media,
			})
		}
		out = append(out, sheet)
	}
	return out, nil
}

// Attributes implements page.Host.
func (d *Document) Attributes(ctx context.Context, id page.NodeID) (page.AttrSnapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.lookup(id)
	if err != nil {
		return page.AttrSnapshot{}, err
	}
	var s page.AttrSnapshot
	s.Class, s.HasClass = getAttr(n, "class")
	s.Style, s.HasStyle = getAttr(n, "style")
	return s, nil
}

// RestoreAttributes implements page.Host.
func (d *Document) RestoreAttributes(ctx context.Context, id page.NodeID, s page.AttrSnapshot) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.lookup(id)
	if err != nil {
		return err
	}
	if s.HasClass {
		setAttr(n, "class", s.Class)
	} else {
		removeAttr(n, "class")
	}
	if s.HasStyle {
		setAttr(n, "style", s.Style)
	} else {
		removeAttr(n, "style")
	}
	return nil
}

// AddClass implements page.Host.
func (d *Document) AddClass(ctx context.Context, id page.NodeID, class string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.lookup(id)
	if err != nil {
		return err
	}
	cur, _ := getAttr(n, "class")
	fields := strings.Fields(cur)
	for _, f := range fields {
		if f == class {
			return nil
		}
	}
	setAttr(n, "class", strings.Join(append(fields, class), " "))
	return nil
}

// RemoveClass implements page.Host. Like classList.remove, the attribute
// stays (possibly empty) once it exists.
func (d *Document) RemoveClass(ctx context.Context, id page.NodeID, class string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.lookup(id)
	if err != nil {
		return err
	}
	cur, ok := getAttr(n, "class")
	if !ok {
		return nil
	}
	var keep []string
	for _, f := range strings.Fields(cur) {
		if f != class {
			keep = append(keep, f)
		}
	}
	setAttr(n, "class", strings.Join(keep, " "))
	return nil
}

// SetStyles implements page.Host.
func (d *Document) SetStyles(ctx context.Context, id page.NodeID, decls []page.Declaration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.lookup(id)
	if err != nil {
		return err
	}
	cur := inlineDecls(n)
	for _, nd := range decls {
		replaced := false
		for i := range cur {
			if cur[i].Property == nd.Property {
				cur[i] = nd
				replaced = true
				break
			}
		}
		if !replaced {
			cur = append(cur, nd)
		}
	}
	setAttr(n, "style", serializeDecls(cur))
	return nil
}

// RemoveStyles implements page.Host.
func (d *Document) RemoveStyles(ctx context.Context, id page.NodeID, props []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.lookup(id)
	if err != nil {
		return err
	}
	if _, ok := getAttr(n, "style"); !ok {
		return nil
	}
	drop := make(map[string]bool, len(props))
	for _, p := range props {
		drop[p] = true
	}
	var keep []page.Declaration
	for _, dc := range inlineDecls(n) {
		if !drop[dc.Property] {
			keep = append(keep, dc)
		}
	}
	setAttr(n, "style", serializeDecls(keep))
	return nil
}

// Insert implements page.Host.
func (d *Document) Insert(ctx context.Context, o page.Overlay) (page.NodeID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	body := d.body()
	if body == nil {
		return 0, page.ErrUnavailable
	}
	el := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	setAttr(el, "class", o.Class)
	setAttr(el, "style", o.CSSText)
	setAttr(el, page.MarkerAttr, "overlay")
	if o.HTML != "" {
		kids, err := html.ParseFragment(strings.NewReader(o.HTML), el)
		if err != nil {
			return 0, err
		}
		for _, k := range kids {
			el.AppendChild(k)
		}
	} else if o.Text != "" {
		el.AppendChild(&html.Node{Type: html.TextNode, Data: o.Text})
	}
	body.AppendChild(el)
	return d.idOf(el), nil
}

// InsertStyleSheet implements page.Host.
func (d *Document) InsertStyleSheet(ctx context.Context, class, css string) (page.NodeID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	parent := d.head()
	if parent == nil {
		parent = d.body()
	}
	if parent == nil {
		return 0, page.ErrUnavailable
	}
	el := &html.Node{Type: html.ElementNode, Data: "style", DataAtom: atom.Style}
	setAttr(el, "class", class)
	setAttr(el, page.MarkerAttr, "style")
	el.AppendChild(&html.Node{Type: html.TextNode, Data: css})
	parent.AppendChild(el)
	return d.idOf(el), nil
}

// Remove implements page.Host.
func (d *Document) Remove(ctx context.Context, id page.NodeID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.lookup(id)
	if err != nil {
		return err
	}
	n.Parent.RemoveChild(n)
	return nil
}

// RemoveByClass implements page.Host.
func (d *Document) RemoveByClass(ctx context.Context, classes ...string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var doomed []*html.Node
	eachElement(d.root, func(n *html.Node) {
		for _, c := range classes {
			if hasClass(n, c) {
				doomed = append(doomed, n)
				return
			}
		}
	})
	removed := 0
	for _, n := range doomed {
		if n.Parent != nil && d.attached(n) {
			n.Parent.RemoveChild(n)
			removed++
		}
	}
	return removed, nil
}

// FindByClass implements page.Host.
func (d *Document) FindByClass(ctx context.Context, class string) ([]page.NodeID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var ids []page.NodeID
	eachElement(d.root, func(n *html.Node) {
		if hasClass(n, class) {
			ids = append(ids, d.idOf(n))
		}
	})
	return ids, nil
}

// ScrollIntoView implements page.Host. It only records the request.
func (d *Document) ScrollIntoView(ctx context.Context, id page.NodeID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.lookup(id); err != nil {
		return err
	}
	d.scrolls = append(d.scrolls, id)
	return nil
}

// --- attribute helpers ---

func eachElement(n *html.Node, fn func(*html.Node)) {
	if n.Type == html.ElementNode {
		fn(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		eachElement(c, fn)
	}
}

func getAttr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, name, value string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

func removeAttr(n *html.Node, name string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

func hasClass(n *html.Node, class string) bool {
	v, ok := getAttr(n, "class")
	if !ok {
		return false
	}
	for _, f := range strings.Fields(v) {
		if f == class {
			return true
		}
	}
	return false
}

func inlineDecls(n *html.Node) []page.Declaration {
	v, _ := getAttr(n, "style")
	return page.ParseInline(v)
}

// serializeDecls renders declarations the way CSSStyleDeclaration.cssText
// does: "a: b; c: d !important;".
func serializeDecls(decls []page.Declaration) string {
	parts := make([]string, 0, len(decls))
	for _, dc := range decls {
		s := dc.Property + ": " + dc.Value
		if dc.Important {
			s += " !important"
		}
		parts = append(parts, s+";")
	}
	return strings.Join(parts, " ")
}
