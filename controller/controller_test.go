package controller

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/typescope/attribution"
	"github.com/hazyhaar/typescope/grouping"
	"github.com/hazyhaar/typescope/highlight"
	"github.com/hazyhaar/typescope/page"
	"github.com/hazyhaar/typescope/page/memdom"
)

const fixture = `<html><head><style>
h1 { font-family: Georgia }
p { font-family: Arial }
.sub { display: none }
.menu:hover .sub { display: block }
</style></head><body>
<h1>Title</h1>
<p>Body copy</p>
<p>More copy</p>
<div class="menu">Menu<div class="sub"><a>Item</a></div></div>
</body></html>`

type memClip struct {
	mu   sync.Mutex
	text string
}

func (c *memClip) WriteAll(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = s
	return nil
}

func (c *memClip) get() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

func start(t *testing.T, opts ...Option) (*memdom.Document, *Controller, context.CancelFunc, <-chan error) {
	t.Helper()
	d := memdom.MustParse(fixture)
	c := New(d, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	t.Cleanup(cancel)
	return d, c, cancel, done
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDetect(t *testing.T) {
	_, c, _, _ := start(t)
	groups, err := c.Detect(context.Background(), grouping.SortBySize)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	// The submenu is hidden, so its link is not attributed.
	if len(groups) != 3 {
		t.Fatalf("groups: got %d, want 3", len(groups))
	}
	if groups[0].Signature.Tag != "h1" || groups[1].Signature.Tag != "p" || groups[1].Count != 2 || groups[2].Signature.Tag != "div" {
		t.Errorf("unexpected groups: %+v", groups)
	}
}

func TestInspector_DoubleEnableOneListenerSet(t *testing.T) {
	d, c, _, _ := start(t)
	ctx := context.Background()
	if err := c.EnableInspector(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.EnableInspector(ctx); err != nil {
		t.Fatal(err)
	}
	if n := d.ListenerCount(); n != 1 {
		t.Fatalf("listeners: got %d, want 1", n)
	}
	if err := c.DisableInspector(ctx); err != nil {
		t.Fatal(err)
	}
	if n := d.ListenerCount(); n != 0 {
		t.Errorf("listeners after disable: got %d, want 0", n)
	}
	st, _ := c.State(ctx)
	if st.Inspector {
		t.Error("state still reports inspector")
	}
}

func TestInspector_EventsRunOnLoop(t *testing.T) {
	clip := &memClip{}
	d, c, _, _ := start(t, WithClipboard(clip))
	ctx := context.Background()
	c.EnableInspector(ctx)

	h1, _ := d.Find("h1")
	d.Hover(h1)
	eventually(t, "tooltip", func() bool { return len(d.FindAll("."+page.ClassHoverTooltip)) == 1 })

	d.Dispatch(page.EventClick, h1, "")
	eventually(t, "clipboard", func() bool { return clip.get() != "" })
	eventually(t, "toast", func() bool { return len(d.FindAll("."+page.ClassCopyToast)) == 1 })

	d.Dispatch(page.EventKeyDown, 0, "Escape")
	eventually(t, "escape teardown", func() bool {
		st, _ := c.State(ctx)
		return !st.Inspector && d.ListenerCount() == 0
	})
	if n := len(d.FindAll("." + page.ClassHoverTooltip + ", ." + page.ClassCopyToast)); n != 0 {
		t.Errorf("overlays left after Escape: %d", n)
	}
}

func TestForceCleanup_RestoresEverything(t *testing.T) {
	d, c, _, _ := start(t)
	ctx := context.Background()
	before := d.HTML()

	menu, _ := d.Find(".menu")
	d.SetHover(menu)
	if _, err := c.Highlight(ctx, attribution.Family{FontFamily: "Arial", TagNames: []string{"p"}}, true, highlight.ModeGroup); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Freeze(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.EnableInspector(ctx); err != nil {
		t.Fatal(err)
	}
	st, _ := c.State(ctx)
	if !st.Inspector || !st.Frozen || st.Highlighted != 2 {
		t.Fatalf("state before cleanup: %+v", st)
	}

	if err := c.ForceCleanup(ctx); err != nil {
		t.Fatalf("ForceCleanup: %v", err)
	}
	if err := c.ForceCleanup(ctx); err != nil {
		t.Fatalf("second ForceCleanup: %v", err)
	}
	d.SetHover(0)
	if after := d.HTML(); after != before {
		t.Errorf("residue:\nbefore %s\nafter  %s", before, after)
	}
	if n := d.ListenerCount(); n != 0 {
		t.Errorf("listeners: %d", n)
	}
}

// linkSignature returns the signature of the submenu link, visible only
// while the menu is hovered.
func linkSignature(t *testing.T, c *Controller) attribution.Matcher {
	t.Helper()
	groups, err := c.Detect(context.Background(), grouping.SortBySize)
	if err != nil {
		t.Fatal(err)
	}
	for _, g := range groups {
		if g.Signature.Tag == "a" {
			return attribution.Exact(g.Signature)
		}
	}
	t.Fatalf("no link group in %+v", groups)
	return nil
}

func TestFreezeThenHighlight_NoResidue(t *testing.T) {
	d, c, _, _ := start(t)
	ctx := context.Background()
	before := d.HTML()

	menu, _ := d.Find(".menu")
	d.SetHover(menu)
	if _, err := c.Freeze(ctx); err != nil {
		t.Fatal(err)
	}
	m := linkSignature(t, c)
	if n, err := c.Highlight(ctx, m, true, highlight.ModeGroup); err != nil || n != 1 {
		t.Fatalf("highlight while frozen: %d, %v", n, err)
	}
	if err := c.Unfreeze(ctx); err != nil {
		t.Fatal(err)
	}
	a, _ := d.Find("a")
	if class, _ := d.Attr(a, "class"); class != page.ClassAnchored {
		t.Errorf("unfreeze dropped the highlight mark: class %q", class)
	}
	if _, err := c.Highlight(ctx, m, false, highlight.ModeGroup); err != nil {
		t.Fatal(err)
	}
	d.SetHover(0)
	if after := d.HTML(); after != before {
		t.Errorf("residue:\nbefore %s\nafter  %s", before, after)
	}
}

func TestHighlightThenFreeze_ForceCleanupNoResidue(t *testing.T) {
	d, c, _, _ := start(t)
	ctx := context.Background()
	before := d.HTML()

	menu, _ := d.Find(".menu")
	d.SetHover(menu)
	m := linkSignature(t, c)
	if n, err := c.Highlight(ctx, m, true, highlight.ModeFocus); err != nil || n != 1 {
		t.Fatalf("highlight: %d, %v", n, err)
	}
	if _, err := c.Freeze(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.ForceCleanup(ctx); err != nil {
		t.Fatal(err)
	}
	d.SetHover(0)
	if after := d.HTML(); after != before {
		t.Errorf("residue:\nbefore %s\nafter  %s", before, after)
	}
	if strings.Contains(d.HTML(), page.AnchorPrefix) {
		t.Error("anchor-name left on the page")
	}
}

func TestForceCleanup_AfterNavigation(t *testing.T) {
	d, c, _, _ := start(t)
	ctx := context.Background()
	c.Highlight(ctx, attribution.Family{FontFamily: "Arial", TagNames: []string{"p"}}, true, highlight.ModeGroup)
	c.EnableInspector(ctx)
	d.Navigate(`<html><body><p class="tsc-anchored">next</p></body></html>`)
	if err := c.ForceCleanup(ctx); err != nil {
		t.Fatalf("ForceCleanup after navigation: %v", err)
	}
	p, _ := d.Find("p")
	if class, _ := d.Attr(p, "class"); class != "" {
		t.Errorf("stray marker survived: %q", class)
	}
}

func TestRun_CleansUpOnExit(t *testing.T) {
	d, c, cancel, done := start(t)
	ctx := context.Background()
	before := d.HTML()
	c.Highlight(ctx, attribution.Family{FontFamily: "Georgia", TagNames: []string{"h1"}}, true, highlight.ModeFocus)
	c.EnableInspector(ctx)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	if after := d.HTML(); after != before {
		t.Errorf("residue after Run exit:\nbefore %s\nafter  %s", before, after)
	}
	if _, err := c.State(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("State after exit: got %v, want ErrClosed", err)
	}
}

func TestHighlightOff(t *testing.T) {
	d, c, _, _ := start(t)
	ctx := context.Background()
	m := attribution.Exact(attribution.Signature{Tag: "h1"})
	n, err := c.Highlight(ctx, m, true, highlight.ModeGroup)
	if err != nil || n != 0 {
		t.Fatalf("partial signature matched: %d, %v", n, err)
	}
	groups, _ := c.Detect(ctx, grouping.SortBySize)
	m = attribution.Exact(groups[0].Signature)
	if n, _ := c.Highlight(ctx, m, true, highlight.ModeGroup); n != 1 {
		t.Fatalf("highlighted: got %d, want 1", n)
	}
	if _, err := c.Highlight(ctx, m, false, highlight.ModeGroup); err != nil {
		t.Fatal(err)
	}
	if n := len(d.FindAll("." + page.ClassHighlight + ", ." + page.ClassAnchored)); n != 0 {
		t.Errorf("markers left: %d", n)
	}
	ok, err := c.ScrollToFirstMatch(ctx, m)
	if err != nil || !ok {
		t.Fatalf("scroll: %v, %v", ok, err)
	}
	st, err := c.Styles(ctx, m)
	if err != nil || st.Get(page.PropFontFamily) != "Georgia" {
		t.Errorf("styles: %v, %v", st, err)
	}
}
