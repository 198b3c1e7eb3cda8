package endpoints

import (
	"context"
	"errors"
	"fmt"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/typescope/attribution"
	"github.com/hazyhaar/typescope/controller"
	"github.com/hazyhaar/typescope/dbopen"
	"github.com/hazyhaar/typescope/observability"
	"github.com/hazyhaar/typescope/page"
	"github.com/hazyhaar/typescope/page/memdom"
)

const fixture = `<html><head><style>
h1 { font-family: Georgia }
p { font-family: Arial }
</style></head><body>
<h1>Title</h1>
<p>Body copy</p>
<p>More copy</p>
<div>Loose text</div>
</body></html>`

func setup(t *testing.T, opts Options) (*memdom.Document, Set) {
	t.Helper()
	d := memdom.MustParse(fixture)
	c := controller.New(d)
	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	t.Cleanup(cancel)
	return d, New(c, opts)
}

func TestTarget_Matcher(t *testing.T) {
	if _, err := (Target{}).Matcher(); !errors.Is(err, ErrNoTarget) {
		t.Fatalf("empty target: got %v, want ErrNoTarget", err)
	}
	m, err := Target{FontFamily: "Arial"}.Matcher()
	if err != nil {
		t.Fatal(err)
	}
	fam, ok := m.(attribution.Family)
	if !ok || len(fam.TagNames) != len(attribution.OwnerTags()) {
		t.Errorf("family without tags: got %#v", m)
	}
	m, _ = Target{Signature: &attribution.Signature{Tag: "h1"}, FontFamily: "Arial"}.Matcher()
	if _, ok := m.(attribution.Exact); !ok {
		t.Errorf("signature should win: got %T", m)
	}
}

func TestDetect(t *testing.T) {
	_, set := setup(t, Options{PageURL: func() string { return "https://example.test/" }})
	resp, err := set.Detect(context.Background(), &DetectRequest{Sort: "count"})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	r := resp.(*DetectResponse)
	if r.URL != "https://example.test/" {
		t.Errorf("url: got %q", r.URL)
	}
	if r.Summary.Groups != 3 || r.Summary.Attributions != 4 {
		t.Errorf("summary: got %+v", r.Summary)
	}
	if len(r.Buckets) != 3 {
		t.Errorf("buckets: got %d, want 3", len(r.Buckets))
	}
}

func TestHighlightJumpStyles(t *testing.T) {
	d, set := setup(t, Options{})
	ctx := context.Background()
	target := Target{FontFamily: "Arial", Tags: []string{"p"}}

	resp, err := set.Highlight(ctx, &HighlightRequest{Target: target, On: true})
	if err != nil {
		t.Fatal(err)
	}
	if n := resp.(*HighlightResponse).Highlighted; n != 2 {
		t.Errorf("highlighted: got %d, want 2", n)
	}

	resp, err = set.Jump(ctx, &JumpRequest{Target: target, Index: -1})
	if err != nil {
		t.Fatal(err)
	}
	if j := resp.(*JumpResponse); j.Matches != 2 || j.Index != 1 {
		t.Errorf("jump: got %+v, want 2 matches at index 1", j)
	}

	resp, err = set.Styles(ctx, &StylesRequest{Target: target})
	if err != nil {
		t.Fatal(err)
	}
	st := resp.(*StylesResponse)
	if !st.Found || st.Style.Get(page.PropFontFamily) != "Arial" || st.CSS == "" {
		t.Errorf("styles: got %+v", st)
	}

	if _, err := set.Highlight(ctx, &HighlightRequest{On: false}); err != nil {
		t.Fatalf("highlight off without target: %v", err)
	}
	if n := len(d.FindAll("." + page.ClassHighlight)); n != 0 {
		t.Errorf("overlays left: %d", n)
	}
}

func TestScroll_NoMatch(t *testing.T) {
	_, set := setup(t, Options{})
	resp, err := set.Scroll(context.Background(), &ScrollRequest{Target{FontFamily: "Comic Sans MS"}})
	if err != nil {
		t.Fatal(err)
	}
	if resp.(*ScrollResponse).Found {
		t.Error("found a match for an absent family")
	}
}

func TestInspectorAndFreeze(t *testing.T) {
	d, set := setup(t, Options{})
	ctx := context.Background()

	resp, err := set.Inspector(ctx, &ToggleRequest{Action: "on"})
	if err != nil || !resp.(*InspectorResponse).Active {
		t.Fatalf("inspector on: %v, %v", resp, err)
	}
	resp, err = set.Inspector(ctx, &ToggleRequest{Action: "toggle"})
	if err != nil || resp.(*InspectorResponse).Active {
		t.Fatalf("inspector toggle: %v, %v", resp, err)
	}
	if _, err := set.Inspector(ctx, &ToggleRequest{Action: "maybe"}); !IsBadRequest(err) {
		t.Errorf("bad action: got %v", err)
	}

	h1, _ := d.Find("h1")
	d.SetHover(h1)
	resp, err = set.Freeze(ctx, &ToggleRequest{Action: "on"})
	if err != nil {
		t.Fatal(err)
	}
	if f := resp.(*FreezeResponse); !f.Frozen || f.Elements != 1 {
		t.Errorf("freeze: got %+v", f)
	}

	if _, err := set.Cleanup(ctx, &CleanupRequest{}); err != nil {
		t.Fatal(err)
	}
	resp, err = set.State(ctx, &StateRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if st := resp.(*controller.State); st.Frozen || st.Inspector || st.Highlighted != 0 {
		t.Errorf("state after cleanup: %+v", st)
	}
}

func TestAudit(t *testing.T) {
	db := dbopen.OpenMemory(t)
	if err := observability.Init(db); err != nil {
		t.Fatal(err)
	}
	audit := observability.NewAuditLogger(db, 16)
	_, set := setup(t, Options{Audit: audit, PageURL: func() string { return "https://example.test/" }})
	ctx := context.Background()

	set.Detect(ctx, &DetectRequest{})
	set.Scroll(ctx, &ScrollRequest{})
	audit.Close()

	entries, err := audit.Query(ctx, observability.AuditFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries: got %d, want 2", len(entries))
	}
	statuses := map[string]string{}
	for _, e := range entries {
		statuses[e.Operation] = e.Status
		if e.PageURL != "https://example.test/" || e.RequestID == "" {
			t.Errorf("entry %s: url %q request %q", e.Operation, e.PageURL, e.RequestID)
		}
	}
	if statuses["detect"] != observability.StatusSuccess || statuses["scroll"] != observability.StatusError {
		t.Errorf("statuses: %v", statuses)
	}
}

func TestUserMessage(t *testing.T) {
	err := fmt.Errorf("controller: detect: %w", fmt.Errorf("rodhost: capture: %w", page.ErrUnavailable))
	if got := UserMessage(err); got != "cannot access this page" {
		t.Errorf("got %q", got)
	}
	pe := publicError{err}
	if pe.Error() != "cannot access this page" || !errors.Is(pe, page.ErrUnavailable) {
		t.Errorf("public error: %q", pe.Error())
	}
	if got := UserMessage(ErrNoTarget); got != ErrNoTarget.Error() {
		t.Errorf("got %q", got)
	}
}
