package page

import (
	"strconv"
	"strings"
)

// Computed properties every capture and event target carries.
const (
	PropFontFamily    = "font-family"
	PropFontSize      = "font-size"
	PropFontWeight    = "font-weight"
	PropFontStyle     = "font-style"
	PropLineHeight    = "line-height"
	PropTextTransform = "text-transform"
	PropLetterSpacing = "letter-spacing"
	PropColor         = "color"
	PropDisplay       = "display"
	PropVisibility    = "visibility"
	PropOpacity       = "opacity"
	PropMaxHeight     = "max-height"
	PropOverflow      = "overflow"
	PropPosition      = "position"
	PropZIndex        = "z-index"
)

// Properties is the fixed list of computed properties hosts report.
var Properties = []string{
	PropFontFamily, PropFontSize, PropFontWeight, PropFontStyle,
	PropLineHeight, PropTextTransform, PropLetterSpacing, PropColor,
	PropDisplay, PropVisibility, PropOpacity,
	PropMaxHeight, PropOverflow, PropPosition, PropZIndex,
}

// Style maps a CSS property name to its computed value.
type Style map[string]string

// Get returns the value of prop, or "" when unknown.
func (s Style) Get(prop string) string {
	if s == nil {
		return ""
	}
	return s[prop]
}

// Has reports whether prop was readable.
func (s Style) Has(prop string) bool {
	_, ok := s[prop]
	return ok
}

// Pixels parses a computed length such as "16px". It returns 0 for keywords.
func Pixels(v string) float64 {
	v = strings.TrimSpace(v)
	v = strings.TrimSuffix(v, "px")
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

// Declaration is one inline style assignment.
type Declaration struct {
	Property  string `json:"property"`
	Value     string `json:"value"`
	Important bool   `json:"important,omitempty"`
}

// AttrSnapshot records the class and style attributes of an element exactly
// as they were, including whether each attribute was present at all.
type AttrSnapshot struct {
	Class    string `json:"class"`
	HasClass bool   `json:"has_class"`
	Style    string `json:"style"`
	HasStyle bool   `json:"has_style"`
}

// StyleSheet is one document stylesheet as seen through the page's CSSOM.
type StyleSheet struct {
	Href  string `json:"href,omitempty"`
	Rules []Rule `json:"rules,omitempty"`
	// Err is ErrAccessDenied for cross-origin sheets.
	Err error `json:"-"`
}

// Rule is a flattened style rule. Media holds the enclosing @media condition,
// if any.
type Rule struct {
	Selector     string `json:"selector"`
	Declarations string `json:"declarations"`
	Media        string `json:"media,omitempty"`
}

// CSSBlock formats the typographic part of a computed style as a CSS
// declaration block, one declaration per line. letter-spacing and
// text-transform are only emitted when they differ from their defaults.
func (s Style) CSSBlock() string {
	var b strings.Builder
	for _, p := range []string{PropFontFamily, PropFontSize, PropFontWeight, PropFontStyle, PropLineHeight, PropColor} {
		b.WriteString(p + ": " + s.Get(p) + ";\n")
	}
	if v := s.Get(PropLetterSpacing); v != "" && v != "normal" {
		b.WriteString(PropLetterSpacing + ": " + v + ";\n")
	}
	if v := s.Get(PropTextTransform); v != "" && v != "none" {
		b.WriteString(PropTextTransform + ": " + v + ";\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}
