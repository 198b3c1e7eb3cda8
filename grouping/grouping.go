// Package grouping buckets attributions by classifier and style signature.
// Every call builds a complete result; nothing is patched incrementally.
package grouping

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hazyhaar/typescope/attribution"
	"github.com/hazyhaar/typescope/page"
)

// Sample limits per group.
const (
	MaxSamples   = 200
	MaxSampleLen = 60
)

// Classifier is a coarse semantic bucket derived from the tag name.
type Classifier int

const (
	Headings Classifier = iota
	Content
	Interactive
	Other
)

var classifierNames = [...]string{"Headings", "Content", "Interactive", "Other"}

func (c Classifier) String() string {
	if c < 0 || int(c) >= len(classifierNames) {
		return "Unknown"
	}
	return classifierNames[c]
}

// MarshalText renders the classifier name in JSON output.
func (c Classifier) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Classifier) UnmarshalText(b []byte) error {
	for i, n := range classifierNames {
		if n == string(b) {
			*c = Classifier(i)
			return nil
		}
	}
	return fmt.Errorf("grouping: unknown classifier %q", b)
}

// ClassifierOf returns the classifier for tag.
func ClassifierOf(tag string) Classifier {
	switch tag {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		return Headings
	case "p", "li", "td", "th":
		return Content
	case "button", "a", "label":
		return Interactive
	}
	return Other
}

var tagRank = map[string]int{
	"h1": 1, "h2": 2, "h3": 3, "h4": 4, "h5": 5, "h6": 6,
	"p": 7, "li": 8, "td": 9, "th": 10,
	"button": 11, "a": 12, "label": 13, "div": 14,
}

// Rank returns the fixed tag priority; unknown tags sort last.
func Rank(tag string) int {
	if r, ok := tagRank[tag]; ok {
		return r
	}
	return 99
}

// SortMode selects the tie-break inside a tag rank.
type SortMode int

const (
	SortBySize SortMode = iota
	SortByCount
)

// ParseSortMode accepts "size" and "count"; anything else is SortBySize.
func ParseSortMode(s string) SortMode {
	if strings.EqualFold(s, "count") {
		return SortByCount
	}
	return SortBySize
}

func (m SortMode) String() string {
	if m == SortByCount {
		return "count"
	}
	return "size"
}

// StyleGroup is every attribution sharing a classifier and a signature.
type StyleGroup struct {
	Signature  attribution.Signature `json:"signature"`
	Classifier Classifier            `json:"classifier"`
	Count      int                   `json:"count"`
	Samples    []string              `json:"samples"`
	Rank       int                   `json:"rank"`
	// DisplayName is the first family of the signature, unquoted.
	DisplayName string `json:"display_name"`
}

// Classify merges attributions into ordered style groups.
func Classify(attrs []attribution.Attribution, mode SortMode) []StyleGroup {
	byKey := make(map[string]*StyleGroup)
	var order []string
	for _, a := range attrs {
		c := ClassifierOf(a.Signature.Tag)
		key := c.String() + "/" + a.Signature.Key()
		g, ok := byKey[key]
		if !ok {
			g = &StyleGroup{
				Signature:   a.Signature,
				Classifier:  c,
				Rank:        Rank(a.Signature.Tag),
				DisplayName: DisplayName(a.Signature.FontFamily),
			}
			byKey[key] = g
			order = append(order, key)
		}
		g.Count++
		if len(g.Samples) < MaxSamples {
			g.Samples = append(g.Samples, truncate(a.Sample, MaxSampleLen))
		}
	}

	groups := make([]StyleGroup, 0, len(order))
	for _, k := range order {
		groups = append(groups, *byKey[k])
	}
	sort.SliceStable(groups, func(i, j int) bool { return less(groups[i], groups[j], mode) })
	return groups
}

func less(a, b StyleGroup, mode SortMode) bool {
	if a.Classifier != b.Classifier {
		return a.Classifier < b.Classifier
	}
	if a.Rank != b.Rank {
		return a.Rank < b.Rank
	}
	sa, sb := page.Pixels(a.Signature.FontSize), page.Pixels(b.Signature.FontSize)
	switch mode {
	case SortByCount:
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if sa != sb {
			return sa > sb
		}
	default:
		if sa != sb {
			return sa > sb
		}
		if a.Count != b.Count {
			return a.Count > b.Count
		}
	}
	return a.Signature.Key() < b.Signature.Key()
}

// Bucket is the non-empty set of groups for one classifier.
type Bucket struct {
	Classifier Classifier   `json:"classifier"`
	Groups     []StyleGroup `json:"groups"`
}

// Buckets splits ordered groups by classifier, dropping empty buckets.
func Buckets(groups []StyleGroup) []Bucket {
	var out []Bucket
	for c := Headings; c <= Other; c++ {
		var gs []StyleGroup
		for _, g := range groups {
			if g.Classifier == c {
				gs = append(gs, g)
			}
		}
		if len(gs) > 0 {
			out = append(out, Bucket{Classifier: c, Groups: gs})
		}
	}
	return out
}

// Summary totals one detection pass.
type Summary struct {
	Groups       int `json:"groups"`
	Attributions int `json:"attributions"`
	Families     int `json:"families"`
}

// Summarize counts groups, attributions and distinct font families.
func Summarize(groups []StyleGroup) Summary {
	fam := make(map[string]bool)
	s := Summary{Groups: len(groups)}
	for _, g := range groups {
		s.Attributions += g.Count
		fam[g.Signature.FontFamily] = true
	}
	s.Families = len(fam)
	return s
}

// DisplayName returns the first family of a font-family list, unquoted.
func DisplayName(fontFamily string) string {
	first, _, _ := strings.Cut(fontFamily, ",")
	first = strings.NewReplacer(`"`, "", `'`, "").Replace(first)
	return strings.TrimSpace(first)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
