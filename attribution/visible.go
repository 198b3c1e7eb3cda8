package attribution

import "github.com/hazyhaar/typescope/page"

// IsVisible reports whether n is meaningfully rendered: a non-empty box,
// display not none, visibility not hidden, opacity not "0". A nil node (one
// that left the document) is not visible.
func IsVisible(n *page.Node) bool {
	if n == nil || n.Kind != page.KindElement {
		return false
	}
	if n.Rect.Width <= 0 || n.Rect.Height <= 0 {
		return false
	}
	s := n.Style
	if s.Get(page.PropDisplay) == "none" {
		return false
	}
	if s.Get(page.PropVisibility) == "hidden" {
		return false
	}
	return s.Get(page.PropOpacity) != "0"
}
