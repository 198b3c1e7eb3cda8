package attribution

import (
	"strings"

	"github.com/hazyhaar/typescope/page"
)

// Signature is one typographic decision: the computed values of a text run
// together with the tag of the element that owns it. Two signatures are the
// same decision iff every field is byte-equal.
type Signature struct {
	Tag           string `json:"tag"`
	FontFamily    string `json:"font_family"`
	FontSize      string `json:"font_size"`
	FontWeight    string `json:"font_weight"`
	FontStyle     string `json:"font_style"`
	LineHeight    string `json:"line_height"`
	TextTransform string `json:"text_transform"`
	LetterSpacing string `json:"letter_spacing"`
}

// SignatureOf builds the signature of text styled by s and owned by tag.
func SignatureOf(tag string, s page.Style) Signature {
	return Signature{
		Tag:           tag,
		FontFamily:    s.Get(page.PropFontFamily),
		FontSize:      s.Get(page.PropFontSize),
		FontWeight:    s.Get(page.PropFontWeight),
		FontStyle:     s.Get(page.PropFontStyle),
		LineHeight:    s.Get(page.PropLineHeight),
		TextTransform: s.Get(page.PropTextTransform),
		LetterSpacing: s.Get(page.PropLetterSpacing),
	}
}

// Key is the composite deduplication key.
func (s Signature) Key() string {
	return strings.Join([]string{
		s.Tag, s.FontFamily, s.FontSize, s.FontWeight, s.FontStyle,
		s.LineHeight, s.TextTransform, s.LetterSpacing,
	}, "|")
}

// Matcher selects attributions. Highlight and scroll requests are expressed
// as matchers so a consumer can target one signature or a whole family.
type Matcher interface {
	Tags() []string
	Match(Signature) bool
}

// Exact matches one signature.
type Exact Signature

func (m Exact) Tags() []string         { return []string{m.Tag} }
func (m Exact) Match(s Signature) bool { return Signature(m) == s }

// AnyOf matches any of the given signatures.
type AnyOf []Signature

func (m AnyOf) Tags() []string {
	seen := make(map[string]bool, len(m))
	var tags []string
	for _, s := range m {
		if !seen[s.Tag] {
			seen[s.Tag] = true
			tags = append(tags, s.Tag)
		}
	}
	return tags
}

func (m AnyOf) Match(s Signature) bool {
	for _, want := range m {
		if want == s {
			return true
		}
	}
	return false
}

// Family matches every signature with the given font-family on the listed
// tags. Font-family views highlight through it.
type Family struct {
	FontFamily string
	TagNames   []string
}

func (m Family) Tags() []string { return m.TagNames }

func (m Family) Match(s Signature) bool {
	if s.FontFamily != m.FontFamily {
		return false
	}
	for _, t := range m.TagNames {
		if t == s.Tag {
			return true
		}
	}
	return false
}
