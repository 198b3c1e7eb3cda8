// Package attribution assigns each visible run of text to the element that
// owns its typographic decision.
//
// The climb from a text node toward body only considers relevant tags.
// Semantic tags end the climb as soon as they match; wrappers (div, span)
// let it continue. An ancestor with a different font-family ends the climb.
// A span is never a final owner: it defers to the nearest enclosing relevant
// non-span ancestor.
package attribution

import (
	"strconv"
	"strings"

	"github.com/hazyhaar/typescope/page"
)

var semanticTags = map[string]bool{
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"p": true, "li": true, "td": true, "th": true,
	"label": true, "button": true, "a": true,
}

var wrapperTags = map[string]bool{"span": true, "div": true}

// IsSemantic reports whether tag ends an attribution climb on match.
func IsSemantic(tag string) bool { return semanticTags[tag] }

// IsRelevant reports whether tag can own text.
func IsRelevant(tag string) bool { return semanticTags[tag] || wrapperTags[tag] }

// OwnerTags lists every tag that can own text: the semantic tags and div.
// A span never does.
func OwnerTags() []string {
	return []string{"h1", "h2", "h3", "h4", "h5", "h6", "p", "li", "td", "th", "button", "a", "label", "div"}
}

// Attribution is one (target, signature) pair produced by a walk.
type Attribution struct {
	Target      page.NodeID `json:"target"`
	TargetIndex int         `json:"-"`
	Signature   Signature   `json:"signature"`
	Sample      string      `json:"sample"`
}

// Walk attributes every non-empty text node under the document root. A target
// appears at most once per signature key.
func Walk(doc *page.Document) []Attribution {
	if doc.Root() == nil {
		return nil
	}
	return walk(doc, 0, -1)
}

// WalkElement is Walk restricted to the text under element i, keeping only
// the attributions owned by i itself.
func WalkElement(doc *page.Document, i int) []Attribution {
	if n := doc.At(i); !n.IsElement() {
		return nil
	}
	return walk(doc, i, i)
}

func walk(doc *page.Document, from, owner int) []Attribution {
	seen := make(map[string]bool)
	var out []Attribution
	for _, ti := range doc.TextNodes(from) {
		target, sig, ok := attribute(doc, ti)
		if !ok {
			continue
		}
		if owner >= 0 && target != owner {
			continue
		}
		tn := &doc.Nodes[target]
		key := keyFor(tn.ID, sig)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, Attribution{
			Target:      tn.ID,
			TargetIndex: target,
			Signature:   sig,
			Sample:      strings.TrimSpace(doc.Nodes[ti].Text),
		})
	}
	return out
}

// attribute resolves the owner of text node ti.
func attribute(doc *page.Document, ti int) (int, Signature, bool) {
	pi := doc.Nodes[ti].Parent
	parent := doc.At(pi)
	if !parent.IsElement() || !parent.Style.Has(page.PropFontFamily) {
		return 0, Signature{}, false
	}
	if !IsVisible(parent) {
		return 0, Signature{}, false
	}
	family := parent.Style.Get(page.PropFontFamily)

	best, last := -1, -1
	for i := pi; i > 0; i = doc.Nodes[i].Parent {
		n := &doc.Nodes[i]
		if !IsRelevant(n.Tag) {
			continue
		}
		if !n.Style.Has(page.PropFontFamily) || n.Style.Get(page.PropFontFamily) != family {
			break
		}
		last = i
		if n.Tag != "span" {
			best = i
		}
		if IsSemantic(n.Tag) {
			break
		}
	}

	if best < 0 && last >= 0 {
		best = enclosingNonSpan(doc, last)
	}
	if best < 0 {
		return 0, Signature{}, false
	}
	return best, SignatureOf(doc.Nodes[best].Tag, parent.Style), true
}

// enclosingNonSpan returns the nearest relevant non-span ancestor of i below
// the root, or -1.
func enclosingNonSpan(doc *page.Document, i int) int {
	for j := doc.Nodes[i].Parent; j > 0; j = doc.Nodes[j].Parent {
		if t := doc.Nodes[j].Tag; IsRelevant(t) && t != "span" {
			return j
		}
	}
	return -1
}

func keyFor(id page.NodeID, s Signature) string {
	return s.Key() + "#" + strconv.FormatInt(int64(id), 10)
}
