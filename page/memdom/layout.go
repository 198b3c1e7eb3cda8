package memdom

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/hazyhaar/typescope/page"
)

// Synthetic metrics: a glyph advances half an em, "normal" line height is
// 1.2 times the font size.
const (
	glyphAdvance     = 0.5
	normalLineFactor = 1.2
)

var blockDisplays = map[string]bool{
	"block": true, "list-item": true, "table": true, "table-row": true,
	"table-cell": true, "flex": true, "grid": true, "flow-root": true,
}

type layouter struct {
	r rendered
}

func layoutBody(body *html.Node, r rendered, vp page.Viewport) {
	l := layouter{r: r}
	l.block(body, 0, 0, vp.Width)
}

func (l layouter) style(n *html.Node) page.Style { return l.r.styles[n].style }

// block lays out n as a block box at (x, y) with width w and returns its
// height. Block children stack; runs of inline content form line boxes.
func (l layouter) block(n *html.Node, x, y, w float64) float64 {
	st := l.style(n)
	if st.Get(page.PropDisplay) == "none" {
		return 0
	}
	cursor := y
	lineX, lineH := x, 0.0
	closeLine := func() {
		cursor += lineH
		lineX, lineH = x, 0
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			if tw := textWidth(c.Data, st); tw > 0 {
				lineX += tw
				lineH = max(lineH, boxLineHeight(st))
			}
		case html.ElementNode:
			cs := l.style(c)
			d := cs.Get(page.PropDisplay)
			switch {
			case d == "none":
			case blockDisplays[d]:
				closeLine()
				cursor += l.block(c, x, cursor, w)
			default:
				iw, ih := l.inline(c, lineX, cursor)
				if iw > 0 {
					lineX += iw
					lineH = max(lineH, ih)
				}
			}
		}
	}
	closeLine()
	h := clamp(cursor-y, st)
	l.r.rects[n] = page.Rect{X: x, Y: y, Width: w, Height: h}
	return h
}

// inline lays out n as an inline box starting at (x, y) and returns its size.
func (l layouter) inline(n *html.Node, x, y float64) (float64, float64) {
	st := l.style(n)
	if st.Get(page.PropDisplay) == "none" {
		return 0, 0
	}
	w := 0.0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			w += textWidth(c.Data, st)
		case html.ElementNode:
			cw, _ := l.inline(c, x+w, y)
			w += cw
		}
	}
	h := 0.0
	if w > 0 {
		h = clamp(boxLineHeight(st), st)
	}
	l.r.rects[n] = page.Rect{X: x, Y: y, Width: w, Height: h}
	return w, h
}

func textWidth(s string, st page.Style) float64 {
	collapsed := strings.Join(strings.Fields(s), " ")
	return float64(utf8.RuneCountInString(collapsed)) * page.Pixels(st.Get(page.PropFontSize)) * glyphAdvance
}

func boxLineHeight(st page.Style) float64 {
	if v := st.Get(page.PropLineHeight); v != "normal" {
		if f := page.Pixels(v); f > 0 {
			return f
		}
	}
	return page.Pixels(st.Get(page.PropFontSize)) * normalLineFactor
}

// clamp applies a pixel max-height.
func clamp(h float64, st page.Style) float64 {
	mh := st.Get(page.PropMaxHeight)
	if mh == "none" || mh == "" {
		return h
	}
	if limit := page.Pixels(mh); strings.HasSuffix(mh, "px") && h > limit {
		return limit
	}
	return h
}
