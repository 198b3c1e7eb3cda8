package memdom

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/typescope/page"
)

// cascade levels, lowest priority first.
const (
	levelUA = iota
	levelAuthor
	levelInline
	levelAuthorImportant
	levelInlineImportant
)

var inherited = map[string]bool{
	page.PropFontFamily:    true,
	page.PropFontSize:      true,
	page.PropFontWeight:    true,
	page.PropFontStyle:     true,
	page.PropLineHeight:    true,
	page.PropTextTransform: true,
	page.PropLetterSpacing: true,
	page.PropColor:         true,
	page.PropVisibility:    true,
}

var initial = page.Style{
	page.PropFontFamily:    `"Times New Roman"`,
	page.PropFontSize:      "16px",
	page.PropFontWeight:    "400",
	page.PropFontStyle:     "normal",
	page.PropLineHeight:    "normal",
	page.PropTextTransform: "none",
	page.PropLetterSpacing: "normal",
	page.PropColor:         "rgb(0, 0, 0)",
	page.PropDisplay:       "inline",
	page.PropVisibility:    "visible",
	page.PropOpacity:       "1",
	page.PropMaxHeight:     "none",
	page.PropOverflow:      "visible",
	page.PropPosition:      "static",
	page.PropZIndex:        "auto",
}

// uaSheet is the subset of a browser default stylesheet that matters for
// typography and visibility.
const uaSheet = `
html, body, div, p, h1, h2, h3, h4, h5, h6, ul, ol, section, article, header,
footer, nav, main, aside, form, blockquote, pre, figure, figcaption, address,
dl, dt, dd, fieldset, hr { display: block }
head, script, style, title, meta, link, template, noscript { display: none }
[hidden] { display: none }
li { display: list-item }
table { display: table }
tr { display: table-row }
td, th { display: table-cell }
button, input, select, textarea { display: inline-block }
h1 { font-size: 2em; font-weight: bold }
h2 { font-size: 1.5em; font-weight: bold }
h3 { font-size: 1.17em; font-weight: bold }
h4 { font-size: 1em; font-weight: bold }
h5 { font-size: 0.83em; font-weight: bold }
h6 { font-size: 0.67em; font-weight: bold }
th, b, strong { font-weight: bold }
em, i, cite, var, dfn { font-style: italic }
small { font-size: smaller }
pre, code, kbd, samp, tt { font-family: monospace }
a { color: rgb(0, 0, 238) }
`

type computed struct {
	style page.Style
	// lhFactor is a unitless line-height, inherited as a factor rather than a
	// length. Zero when line-height is a length or "normal".
	lhFactor float64
}

type rendered struct {
	styles map[*html.Node]computed
	rects  map[*html.Node]page.Rect
}

type cssRule struct {
	selector string
	decls    []page.Declaration
	media    string
}

type compiledRule struct {
	sel   cascadia.Sel
	decls []page.Declaration
	level int
	order int
}

type sheetSource struct {
	href   string
	css    string
	denied bool
}

type candidate struct {
	value string
	level int
	spec  cascadia.Specificity
	order int
}

func (c candidate) beats(o candidate) bool {
	if c.level != o.level {
		return c.level > o.level
	}
	if c.spec != o.spec {
		return o.spec.Less(c.spec)
	}
	return c.order > o.order
}

var hoverPseudo = regexp.MustCompile(`:hover\b`)

var uaRules = parseRules(uaSheet)

// sheetSources lists <style> and <link rel=stylesheet> sources in document
// order. Unregistered links are cross-origin.
func (d *Document) sheetSources() []sheetSource {
	var out []sheetSource
	eachElement(d.root, func(n *html.Node) {
		switch n.DataAtom {
		case atom.Style:
			var b strings.Builder
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					b.WriteString(c.Data)
				}
			}
			out = append(out, sheetSource{css: b.String()})
		case atom.Link:
			rel, _ := getAttr(n, "rel")
			if !strings.EqualFold(strings.TrimSpace(rel), "stylesheet") {
				return
			}
			href, _ := getAttr(n, "href")
			if body, ok := d.sheets[href]; ok {
				out = append(out, sheetSource{href: href, css: body})
			} else {
				out = append(out, sheetSource{href: href, denied: true})
			}
		}
	})
	return out
}

// parseRules flattens a stylesheet into style rules, keeping the enclosing
// @media condition. Unparseable input yields what was parsed so far.
func parseRules(src string) []cssRule {
	sheet, err := parser.Parse(src)
	if err != nil || sheet == nil {
		return nil
	}
	var out []cssRule
	var visit func(rules []*css.Rule, media string)
	visit = func(rules []*css.Rule, media string) {
		for _, r := range rules {
			if r.Kind == css.AtRule {
				name := strings.TrimPrefix(strings.ToLower(r.Name), "@")
				if name == "media" {
					visit(r.Rules, strings.TrimSpace(r.Prelude))
				}
				continue
			}
			decls := make([]page.Declaration, 0, len(r.Declarations))
			for _, dc := range r.Declarations {
				decls = append(decls, page.Declaration{
					Property:  strings.ToLower(dc.Property),
					Value:     strings.TrimSpace(dc.Value),
					Important: dc.Important,
				})
			}
			sel := strings.TrimSpace(r.Prelude)
			if len(r.Selectors) > 0 {
				sel = strings.Join(r.Selectors, ", ")
			}
			out = append(out, cssRule{selector: sel, decls: decls, media: media})
		}
	}
	visit(sheet.Rules, "")
	return out
}

var mediaFeature = regexp.MustCompile(`\(\s*(min|max)-width\s*:\s*([0-9.]+)px\s*\)`)

// mediaMatches evaluates width conditions against the viewport. Conditions it
// cannot evaluate are treated as matching.
func (d *Document) mediaMatches(cond string) bool {
	c := strings.ToLower(cond)
	if c == "" || c == "all" || c == "screen" {
		return true
	}
	if strings.Contains(c, "print") && !strings.Contains(c, "screen") {
		return false
	}
	for _, m := range mediaFeature.FindAllStringSubmatch(c, -1) {
		v, _ := strconv.ParseFloat(m[2], 64)
		if m[1] == "min" && d.viewport.Width < v {
			return false
		}
		if m[1] == "max" && d.viewport.Width > v {
			return false
		}
	}
	return true
}

func (d *Document) compileRules() []compiledRule {
	var out []compiledRule
	order := 0
	add := func(rules []cssRule, level int) {
		for _, r := range rules {
			if r.media != "" && !d.mediaMatches(r.media) {
				continue
			}
			group, err := cascadia.ParseGroup(hoverPseudo.ReplaceAllString(r.selector, "["+hoverAttr+"]"))
			if err != nil {
				continue
			}
			for _, sel := range group {
				order++
				out = append(out, compiledRule{sel: sel, decls: r.decls, level: level, order: order})
			}
		}
	}
	add(uaRules, levelUA)
	for _, src := range d.sheetSources() {
		if !src.denied {
			add(parseRules(src.css), levelAuthor)
		}
	}
	return out
}

// render computes styles and the synthetic layout for the whole document.
func (d *Document) render() rendered {
	r := rendered{
		styles: make(map[*html.Node]computed),
		rects:  make(map[*html.Node]page.Rect),
	}
	rules := d.compileRules()
	var visit func(n *html.Node, parent computed)
	visit = func(n *html.Node, parent computed) {
		if n.Type == html.ElementNode {
			c := resolve(parent, declared(n, rules))
			r.styles[n] = c
			parent = c
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			visit(ch, parent)
		}
	}
	visit(d.root, computed{style: initial})
	if b := d.body(); b != nil {
		layoutBody(b, r, d.viewport)
	}
	return r
}

// declared returns the cascaded winner for every property set on n.
func declared(n *html.Node, rules []compiledRule) map[string]candidate {
	win := make(map[string]candidate)
	offer := func(prop string, c candidate) {
		if cur, ok := win[prop]; !ok || c.beats(cur) {
			win[prop] = c
		}
	}
	for _, r := range rules {
		if !r.sel.Match(n) {
			continue
		}
		spec := r.sel.Specificity()
		for _, dc := range r.decls {
			lvl := r.level
			if dc.Important && lvl == levelAuthor {
				lvl = levelAuthorImportant
			}
			for prop, v := range expand(dc) {
				offer(prop, candidate{value: v, level: lvl, spec: spec, order: r.order})
			}
		}
	}
	for i, dc := range inlineDecls(n) {
		lvl := levelInline
		if dc.Important {
			lvl = levelInlineImportant
		}
		for prop, v := range expand(dc) {
			offer(prop, candidate{value: v, level: lvl, order: i})
		}
	}
	return win
}

// expand maps a declaration to the tracked longhands it sets.
func expand(dc page.Declaration) map[string]string {
	p := dc.Property
	v := dc.Value
	if p == "font" {
		return expandFont(v)
	}
	if _, ok := initial[p]; ok {
		return map[string]string{p: v}
	}
	return nil
}

var fontShorthand = regexp.MustCompile(`^(?:(italic|oblique|normal)\s+)?(?:(bold|bolder|lighter|normal|[1-9]00)\s+)?([0-9.]+(?:px|em|rem|%|pt)|[a-z-]+)(?:\s*/\s*([0-9.]+(?:px|em|%)?|normal))?\s+(.+)$`)

func expandFont(v string) map[string]string {
	m := fontShorthand.FindStringSubmatch(strings.TrimSpace(v))
	if m == nil {
		return nil
	}
	out := map[string]string{
		page.PropFontStyle:  "normal",
		page.PropFontWeight: "normal",
		page.PropFontSize:   m[3],
		page.PropLineHeight: "normal",
		page.PropFontFamily: m[5],
	}
	if m[1] != "" {
		out[page.PropFontStyle] = m[1]
	}
	if m[2] != "" {
		out[page.PropFontWeight] = m[2]
	}
	if m[4] != "" {
		out[page.PropLineHeight] = m[4]
	}
	return out
}

// resolve turns declared values into computed values.
func resolve(parent computed, decl map[string]candidate) computed {
	out := computed{style: make(page.Style, len(initial))}
	pfs := page.Pixels(parent.style.Get(page.PropFontSize))

	value := func(prop string) (string, bool) {
		c, ok := decl[prop]
		if !ok {
			if inherited[prop] {
				return parent.style.Get(prop), true
			}
			return initial[prop], false
		}
		switch c.value {
		case "inherit":
			return parent.style.Get(prop), true
		case "initial":
			return initial[prop], false
		case "unset":
			if inherited[prop] {
				return parent.style.Get(prop), true
			}
			return initial[prop], false
		}
		return c.value, false
	}

	fsRaw, fsInherited := value(page.PropFontSize)
	fs := pfs
	if !fsInherited {
		fs = fontSize(fsRaw, pfs)
	}
	out.style[page.PropFontSize] = px(fs)

	for _, prop := range page.Properties {
		if prop == page.PropFontSize {
			continue
		}
		raw, inh := value(prop)
		if inh {
			if prop == page.PropLineHeight && parent.lhFactor > 0 {
				out.lhFactor = parent.lhFactor
				out.style[prop] = px(parent.lhFactor * fs)
				continue
			}
			out.style[prop] = raw
			continue
		}
		switch prop {
		case page.PropFontFamily:
			out.style[prop] = normalizeFamily(raw)
		case page.PropFontWeight:
			out.style[prop] = fontWeight(raw, parent.style.Get(prop))
		case page.PropLineHeight:
			v, factor := lineHeight(raw, fs)
			out.style[prop] = v
			out.lhFactor = factor
		case page.PropLetterSpacing:
			out.style[prop] = length(raw, fs, "normal")
		case page.PropMaxHeight:
			out.style[prop] = length(raw, fs, "none")
		case page.PropColor:
			out.style[prop] = color(raw)
		default:
			out.style[prop] = strings.ToLower(strings.TrimSpace(raw))
		}
	}
	return out
}

var sizeKeywords = map[string]float64{
	"xx-small": 9, "x-small": 10, "small": 13, "medium": 16,
	"large": 18, "x-large": 24, "xx-large": 32, "xxx-large": 48,
}

func fontSize(v string, parent float64) float64 {
	v = strings.ToLower(strings.TrimSpace(v))
	if k, ok := sizeKeywords[v]; ok {
		return k
	}
	switch v {
	case "smaller":
		return parent / 1.2
	case "larger":
		return parent * 1.2
	}
	if f, ok := lengthPx(v, parent); ok {
		return f
	}
	return parent
}

// lengthPx converts px, pt, em, rem and % (relative to em) to pixels.
func lengthPx(v string, em float64) (float64, bool) {
	units := []struct {
		suffix string
		scale  float64
	}{
		{"rem", 16}, {"px", 1}, {"pt", 4.0 / 3.0}, {"em", em}, {"%", em / 100},
	}
	for _, u := range units {
		if strings.HasSuffix(v, u.suffix) {
			f, err := strconv.ParseFloat(strings.TrimSuffix(v, u.suffix), 64)
			if err != nil {
				return 0, false
			}
			return f * u.scale, true
		}
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil && f == 0 {
		return 0, true
	}
	return 0, false
}

func length(v string, fs float64, keyword string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == keyword {
		return v
	}
	if f, ok := lengthPx(v, fs); ok {
		return px(f)
	}
	return v
}

func lineHeight(v string, fs float64) (string, float64) {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "normal" {
		return v, 0
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return px(f * fs), f
	}
	if f, ok := lengthPx(v, fs); ok {
		return px(f), 0
	}
	return "normal", 0
}

func fontWeight(v, parent string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	pw, _ := strconv.Atoi(parent)
	switch v {
	case "normal":
		return "400"
	case "bold":
		return "700"
	case "bolder":
		switch {
		case pw < 400:
			return "400"
		case pw < 600:
			return "700"
		}
		return "900"
	case "lighter":
		switch {
		case pw < 600:
			return "100"
		case pw < 800:
			return "400"
		}
		return "700"
	}
	if _, err := strconv.Atoi(v); err == nil {
		return v
	}
	return "400"
}

// normalizeFamily serializes a family list the way computed style does:
// double quotes, ", " separators.
func normalizeFamily(v string) string {
	parts := strings.Split(v, ",")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if strings.HasPrefix(p, "'") && strings.HasSuffix(p, "'") && len(p) >= 2 {
			p = `"` + p[1:len(p)-1] + `"`
		}
		parts[i] = p
	}
	return strings.Join(parts, ", ")
}

var namedColors = map[string]string{
	"black": "rgb(0, 0, 0)", "white": "rgb(255, 255, 255)",
	"red": "rgb(255, 0, 0)", "green": "rgb(0, 128, 0)", "blue": "rgb(0, 0, 255)",
	"gray": "rgb(128, 128, 128)", "grey": "rgb(128, 128, 128)",
	"transparent": "rgba(0, 0, 0, 0)",
}

func color(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if c, ok := namedColors[v]; ok {
		return c
	}
	if strings.HasPrefix(v, "#") {
		h := v[1:]
		if len(h) == 3 {
			h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
		}
		if len(h) == 6 {
			rgb, err := strconv.ParseUint(h, 16, 32)
			if err == nil {
				return fmt.Sprintf("rgb(%d, %d, %d)", rgb>>16, (rgb>>8)&0xff, rgb&0xff)
			}
		}
	}
	return v
}

func px(f float64) string {
	return strconv.FormatFloat(math.Round(f*1000)/1000, 'f', -1, 64) + "px"
}
