package inspector

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/typescope/page"
	"github.com/hazyhaar/typescope/page/memdom"
)

const fixture = `<html><head><style>
h1 { font-family: Georgia; letter-spacing: 2px }
</style></head><body style="margin: 0">
<h1>Title</h1>
<p>Body <b>bold</b></p>
<p style="display:none">hidden</p>
</body></html>`

type fakeClip struct {
	text string
	err  error
}

func (c *fakeClip) WriteAll(s string) error {
	if c.err != nil {
		return c.err
	}
	c.text = s
	return nil
}

type manualClock struct {
	pending []func(context.Context)
}

func (m *manualClock) schedule(_ time.Duration, fn func(context.Context)) func() bool {
	i := len(m.pending)
	m.pending = append(m.pending, fn)
	return func() bool {
		if m.pending[i] == nil {
			return false
		}
		m.pending[i] = nil
		return true
	}
}

func (m *manualClock) fire() {
	for i, fn := range m.pending {
		if fn != nil {
			m.pending[i] = nil
			fn(context.Background())
		}
	}
}

func setup(t *testing.T) (*memdom.Document, *Session, *fakeClip, *manualClock) {
	t.Helper()
	d := memdom.MustParse(fixture)
	clip := &fakeClip{}
	clock := &manualClock{}
	return d, New(d, clip, WithScheduler(clock.schedule)), clip, clock
}

// pump hands every queued event to the session.
func pump(t *testing.T, s *Session) {
	t.Helper()
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return
			}
			if err := s.Handle(context.Background(), ev); err != nil {
				t.Fatalf("Handle(%s): %v", ev.Type, err)
			}
		default:
			return
		}
	}
}

func TestEnable_Idempotent(t *testing.T) {
	d, s, _, _ := setup(t)
	ctx := context.Background()
	if err := s.Enable(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Enable(ctx); err != nil {
		t.Fatal(err)
	}
	if n := d.ListenerCount(); n != 1 {
		t.Fatalf("listeners after double enable: got %d, want 1", n)
	}
	body, _ := d.Body(ctx)
	if style, _ := d.Attr(body, "style"); style != "margin: 0; cursor: crosshair;" {
		t.Errorf("body style: got %q", style)
	}

	if err := s.Disable(ctx); err != nil {
		t.Fatal(err)
	}
	if n := d.ListenerCount(); n != 0 {
		t.Errorf("listeners after disable: got %d, want 0", n)
	}
	if style, _ := d.Attr(body, "style"); style != "margin: 0" {
		t.Errorf("body style restored: got %q", style)
	}
	if s.Active() || s.Events() != nil {
		t.Error("session still active")
	}
}

func TestDisable_KeepsPageChanges(t *testing.T) {
	d, s, _, _ := setup(t)
	ctx := context.Background()
	if err := s.Enable(ctx); err != nil {
		t.Fatal(err)
	}
	body, _ := d.Body(ctx)
	// The page opens a modal while the inspector runs.
	d.AddClass(ctx, body, "modal-open")
	d.SetStyles(ctx, body, []page.Declaration{{Property: "overflow", Value: "hidden"}})

	if err := s.Disable(ctx); err != nil {
		t.Fatal(err)
	}
	if class, _ := d.Attr(body, "class"); class != "modal-open" {
		t.Errorf("body class: got %q, want modal-open", class)
	}
	if style, _ := d.Attr(body, "style"); style != "margin: 0; overflow: hidden;" {
		t.Errorf("body style: got %q", style)
	}
	if s.Active() || s.Events() != nil {
		t.Error("session still active")
	}
}

func TestHover_DrawsBoxAndTooltip(t *testing.T) {
	d, s, _, _ := setup(t)
	ctx := context.Background()
	s.Enable(ctx)
	h1, _ := d.Find("h1")
	d.Hover(h1)
	pump(t, s)

	if got := len(d.FindAll("." + page.ClassHoverHighlight)); got != 1 {
		t.Fatalf("hover boxes: got %d, want 1", got)
	}
	tips := d.FindAll("." + page.ClassHoverTooltip)
	if len(tips) != 1 {
		t.Fatalf("tooltips: got %d, want 1", len(tips))
	}
	html := d.HTML()
	for _, want := range []string{"&lt;h1&gt;", "Georgia", "32px", "Letter Spacing", "2px"} {
		if !strings.Contains(html, want) {
			t.Errorf("tooltip missing %q", want)
		}
	}

	// A second hover replaces, never stacks.
	p, _ := d.Find("p")
	d.Hover(p)
	pump(t, s)
	if got := len(d.FindAll("." + page.ClassHoverTooltip)); got != 1 {
		t.Errorf("tooltips after second hover: got %d, want 1", got)
	}

	d.Leave(p)
	pump(t, s)
	if got := len(d.FindAll("." + page.ClassHoverHighlight + ", ." + page.ClassHoverTooltip)); got != 0 {
		t.Errorf("overlays after mouseout: got %d", got)
	}
}

func TestHover_InvisibleTargetIgnored(t *testing.T) {
	d, s, _, _ := setup(t)
	s.Enable(context.Background())
	hidden := d.FindAll("p")[1]
	d.Hover(hidden)
	pump(t, s)
	if got := len(d.FindAll("." + page.ClassHoverTooltip)); got != 0 {
		t.Errorf("tooltip for hidden element: got %d", got)
	}
}

func TestClick_CopiesAndToasts(t *testing.T) {
	d, s, clip, clock := setup(t)
	ctx := context.Background()
	s.Enable(ctx)
	h1, _ := d.Find("h1")
	res, _ := d.Dispatch(page.EventClick, h1, "")
	if !res.DefaultPrevented {
		t.Error("click default not prevented")
	}
	pump(t, s)

	want := "font-family: Georgia;\nfont-size: 32px;\nfont-weight: 700;\nfont-style: normal;\nline-height: normal;\ncolor: rgb(0, 0, 0);\nletter-spacing: 2px;"
	if clip.text != want {
		t.Errorf("clipboard:\n%s\nwant\n%s", clip.text, want)
	}
	if got := len(d.FindAll("." + page.ClassCopyToast)); got != 1 {
		t.Fatalf("toasts: got %d, want 1", got)
	}
	if !s.Active() {
		t.Error("click left Active")
	}

	clock.fire()
	if got := len(d.FindAll("." + page.ClassCopyToast)); got != 0 {
		t.Errorf("toast not removed after timeout: got %d", got)
	}
}

func TestClick_ClipboardFailure(t *testing.T) {
	d, s, clip, _ := setup(t)
	clip.err = errors.New("no display")
	s.Enable(context.Background())
	h1, _ := d.Find("h1")
	d.Dispatch(page.EventClick, h1, "")
	pump(t, s)
	if got := len(d.FindAll("." + page.ClassCopyToast)); got != 0 {
		t.Errorf("toast shown on clipboard failure")
	}
	if !s.Active() {
		t.Error("clipboard failure ended the session")
	}
}

func TestEscape_SameTeardownAsDisable(t *testing.T) {
	d, s, _, _ := setup(t)
	ctx := context.Background()
	before := d.HTML()
	s.Enable(ctx)
	h1, _ := d.Find("h1")
	d.Hover(h1)
	d.Dispatch(page.EventClick, h1, "")
	d.Dispatch(page.EventKeyDown, 0, "Escape")
	pump(t, s)

	if s.Active() {
		t.Fatal("Escape did not disable")
	}
	if n := d.ListenerCount(); n != 0 {
		t.Errorf("listeners: got %d", n)
	}
	d.SetHover(0)
	if after := d.HTML(); after != before {
		t.Errorf("residue after Escape:\nbefore %s\nafter  %s", before, after)
	}
}

func TestDisable_AfterNavigation(t *testing.T) {
	d, s, _, _ := setup(t)
	ctx := context.Background()
	s.Enable(ctx)
	d.Navigate(`<html><body><p>new</p></body></html>`)
	if err := s.Disable(ctx); err != nil {
		t.Fatalf("Disable after navigation: %v", err)
	}
	if s.Active() {
		t.Error("still active")
	}
}

func TestTooltipPosition(t *testing.T) {
	vp := page.Viewport{Width: 800, Height: 600}
	cases := []struct {
		name      string
		r         page.Rect
		top, left float64
	}{
		{"below", page.Rect{X: 100, Y: 100, Width: 50, Height: 20}, 128, 100},
		{"right edge", page.Rect{X: 700, Y: 100, Width: 50, Height: 20}, 128, 540},
		{"left edge", page.Rect{X: 2, Y: 100, Width: 50, Height: 20}, 128, 10},
		{"bottom edge", page.Rect{X: 100, Y: 500, Width: 50, Height: 20}, 342, 100},
		{"tall element", page.Rect{X: 100, Y: 40, Width: 50, Height: 500}, 10, 100},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			top, left := TooltipPosition(c.r, vp)
			if top != c.top || left != c.left {
				t.Errorf("got (%v, %v), want (%v, %v)", top, left, c.top, c.left)
			}
		})
	}
}
