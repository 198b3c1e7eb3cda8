package page

import "strings"

// NodeKind distinguishes elements from text runs in a Document.
type NodeKind int

const (
	KindElement NodeKind = iota
	KindText
)

// Node is one entry of a captured document.
type Node struct {
	ID       NodeID   `json:"id"`
	Kind     NodeKind `json:"kind"`
	Tag      string   `json:"tag,omitempty"` // lower-case; empty for text
	Text     string   `json:"text,omitempty"`
	Parent   int      `json:"parent"` // index into Document.Nodes, -1 for the root
	Children []int    `json:"children,omitempty"`
	Style    Style    `json:"style,omitempty"` // computed, elements only
	Rect     Rect     `json:"rect"`
}

// IsElement reports whether n is an element.
func (n *Node) IsElement() bool { return n != nil && n.Kind == KindElement }

// Document is a point-in-time capture of the body subtree, in document order.
// Nodes[0] is the body element.
type Document struct {
	URL      string   `json:"url,omitempty"`
	Viewport Viewport `json:"viewport"`
	Nodes    []Node   `json:"nodes"`

	index map[NodeID]int
}

// Root returns the body node, or nil for an empty document.
func (d *Document) Root() *Node {
	if d == nil || len(d.Nodes) == 0 {
		return nil
	}
	return &d.Nodes[0]
}

// At returns the node at index i, or nil when out of range.
func (d *Document) At(i int) *Node {
	if d == nil || i < 0 || i >= len(d.Nodes) {
		return nil
	}
	return &d.Nodes[i]
}

// Parent returns the parent of node i, or nil.
func (d *Document) Parent(i int) *Node {
	n := d.At(i)
	if n == nil {
		return nil
	}
	return d.At(n.Parent)
}

// IndexOf returns the index of the element with the given ID.
func (d *Document) IndexOf(id NodeID) (int, bool) {
	if d == nil {
		return 0, false
	}
	if d.index == nil {
		d.index = make(map[NodeID]int, len(d.Nodes))
		for i := range d.Nodes {
			if d.Nodes[i].Kind == KindElement {
				d.index[d.Nodes[i].ID] = i
			}
		}
	}
	i, ok := d.index[id]
	return i, ok
}

// Link fills the Children slices from the Parent indexes. Hosts call it once
// after building Nodes.
func (d *Document) Link() {
	for i := range d.Nodes {
		d.Nodes[i].Children = d.Nodes[i].Children[:0]
	}
	for i := range d.Nodes {
		if p := d.Nodes[i].Parent; p >= 0 && p < len(d.Nodes) {
			d.Nodes[p].Children = append(d.Nodes[p].Children, i)
		}
	}
	d.index = nil
}

// TextNodes returns the indexes of the non-empty text nodes under node root,
// in document order.
func (d *Document) TextNodes(root int) []int {
	var out []int
	d.walk(root, func(i int) {
		n := &d.Nodes[i]
		if n.Kind == KindText && strings.TrimSpace(n.Text) != "" {
			out = append(out, i)
		}
	})
	return out
}

// Descendants returns the element indexes strictly below node i, in document
// order.
func (d *Document) Descendants(i int) []int {
	var out []int
	d.walk(i, func(j int) {
		if j != i && d.Nodes[j].Kind == KindElement {
			out = append(out, j)
		}
	})
	return out
}

// ElementsByTag returns the indexes of elements whose tag is in tags, in
// document order.
func (d *Document) ElementsByTag(tags ...string) []int {
	want := make(map[string]bool, len(tags))
	for _, t := range tags {
		want[strings.ToLower(t)] = true
	}
	var out []int
	for i := range d.Nodes {
		if d.Nodes[i].Kind == KindElement && want[d.Nodes[i].Tag] {
			out = append(out, i)
		}
	}
	return out
}

// Contains reports whether node i is node anc or one of its descendants.
func (d *Document) Contains(anc, i int) bool {
	for n := d.At(i); n != nil; n = d.At(n.Parent) {
		if i == anc {
			return true
		}
		i = n.Parent
	}
	return false
}

func (d *Document) walk(i int, fn func(int)) {
	if d.At(i) == nil {
		return
	}
	stack := []int{i}
	for len(stack) > 0 {
		j := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		fn(j)
		ch := d.Nodes[j].Children
		for k := len(ch) - 1; k >= 0; k-- {
			stack = append(stack, ch[k])
		}
	}
}
