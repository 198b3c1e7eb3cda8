package page

import (
	"context"
	"strings"

	"github.com/aymerick/douceur/parser"
)

// ParseInline parses the text of a style attribute. Property names are
// lowercased. Unparseable text yields nil.
func ParseInline(style string) []Declaration {
	style = strings.TrimSpace(style)
	if style == "" {
		return nil
	}
	// douceur reads a final declaration without ";" as an empty value.
	if !strings.HasSuffix(style, ";") {
		style += ";"
	}
	parsed, err := parser.ParseDeclarations(style)
	if err != nil {
		return nil
	}
	out := make([]Declaration, 0, len(parsed))
	for _, p := range parsed {
		out = append(out, Declaration{
			Property:  strings.ToLower(p.Property),
			Value:     p.Value,
			Important: p.Important,
		})
	}
	return out
}

// Mark is one element typescope wrote to, with its attributes just before
// and just after the write.
type Mark struct {
	ID     NodeID       `json:"id"`
	Before AttrSnapshot `json:"before"`
	After  AttrSnapshot `json:"after"`
}

// MarkNode reads the attributes of id, runs write and records both sides.
func MarkNode(ctx context.Context, h Host, id NodeID, write func() error) (Mark, error) {
	before, err := h.Attributes(ctx, id)
	if err != nil {
		return Mark{}, err
	}
	m := Mark{ID: id, Before: before, After: before}
	if err := write(); err != nil {
		return m, err
	}
	m.After, err = h.Attributes(ctx, id)
	return m, err
}

// Unmark undoes m. An element still carrying exactly m.After gets m.Before
// back verbatim. Anything else was touched since, by the page or another
// session: only classes are removed and props are reset to their m.Before
// values, so those changes survive. A class or style attribute left empty
// is dropped unless it was empty in m.Before.
func Unmark(ctx context.Context, h Host, m Mark, classes, props []string) error {
	cur, err := h.Attributes(ctx, m.ID)
	if err != nil {
		return err
	}
	if cur == m.After {
		return h.RestoreAttributes(ctx, m.ID, m.Before)
	}
	for _, c := range classes {
		if err := h.RemoveClass(ctx, m.ID, c); err != nil {
			return err
		}
	}
	orig := make(map[string]Declaration)
	for _, d := range ParseInline(m.Before.Style) {
		orig[d.Property] = d
	}
	var reset []Declaration
	var drop []string
	for _, p := range props {
		if d, ok := orig[p]; ok {
			reset = append(reset, d)
		} else {
			drop = append(drop, p)
		}
	}
	if len(drop) > 0 {
		if err := h.RemoveStyles(ctx, m.ID, drop); err != nil {
			return err
		}
	}
	if len(reset) > 0 {
		if err := h.SetStyles(ctx, m.ID, reset); err != nil {
			return err
		}
	}

	cur, err = h.Attributes(ctx, m.ID)
	if err != nil {
		return err
	}
	tidy := cur
	if strings.TrimSpace(cur.Class) == "" && !(m.Before.HasClass && strings.TrimSpace(m.Before.Class) == "") {
		tidy.Class, tidy.HasClass = "", false
	}
	if strings.TrimSpace(cur.Style) == "" && !(m.Before.HasStyle && strings.TrimSpace(m.Before.Style) == "") {
		tidy.Style, tidy.HasStyle = "", false
	}
	if tidy != cur {
		return h.RestoreAttributes(ctx, m.ID, tidy)
	}
	return nil
}
