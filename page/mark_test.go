package page_test

import (
	"context"
	"testing"

	"github.com/hazyhaar/typescope/page"
	"github.com/hazyhaar/typescope/page/memdom"
)

func TestParseInline(t *testing.T) {
	got := page.ParseInline("Color:red; padding: 4px !important")
	want := []page.Declaration{
		{Property: "color", Value: "red"},
		{Property: "padding", Value: "4px", Important: true},
	}
	if len(got) != len(want) {
		t.Fatalf("got %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("decl %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
	if page.ParseInline("  ") != nil {
		t.Error("blank style parsed to declarations")
	}
}

func mark(t *testing.T, d *memdom.Document, id page.NodeID) page.Mark {
	t.Helper()
	ctx := context.Background()
	m, err := page.MarkNode(ctx, d, id, func() error {
		if err := d.SetStyles(ctx, id, []page.Declaration{{Property: "color", Value: "blue", Important: true}}); err != nil {
			return err
		}
		return d.AddClass(ctx, id, page.ClassFrozen)
	})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestUnmark_Untouched(t *testing.T) {
	d := memdom.MustParse(`<html><body><p style="color:red">a</p><p>b</p></body></html>`)
	ctx := context.Background()
	before := d.HTML()
	var marks []page.Mark
	for _, id := range d.FindAll("p") {
		marks = append(marks, mark(t, d, id))
	}
	for _, m := range marks {
		if err := page.Unmark(ctx, d, m, []string{page.ClassFrozen}, []string{"color"}); err != nil {
			t.Fatal(err)
		}
	}
	if after := d.HTML(); after != before {
		t.Errorf("not restored:\nbefore %s\nafter  %s", before, after)
	}
}

func TestUnmark_KeepsLaterChanges(t *testing.T) {
	d := memdom.MustParse(`<html><body><p style="color:red">a</p><p>b</p></body></html>`)
	ctx := context.Background()
	ps := d.FindAll("p")
	m0, m1 := mark(t, d, ps[0]), mark(t, d, ps[1])
	d.AddClass(ctx, ps[0], "open")
	d.SetStyles(ctx, ps[1], []page.Declaration{{Property: "margin", Value: "0"}})

	if err := page.Unmark(ctx, d, m0, []string{page.ClassFrozen}, []string{"color"}); err != nil {
		t.Fatal(err)
	}
	if class, _ := d.Attr(ps[0], "class"); class != "open" {
		t.Errorf("p0 class: got %q", class)
	}
	if style, _ := d.Attr(ps[0], "style"); style != "color: red;" {
		t.Errorf("p0 style: got %q, want the original color back", style)
	}

	if err := page.Unmark(ctx, d, m1, []string{page.ClassFrozen}, []string{"color"}); err != nil {
		t.Fatal(err)
	}
	if _, ok := d.Attr(ps[1], "class"); ok {
		t.Error("p1 kept an empty class attribute")
	}
	if style, _ := d.Attr(ps[1], "style"); style != "margin: 0;" {
		t.Errorf("p1 style: got %q", style)
	}
}
