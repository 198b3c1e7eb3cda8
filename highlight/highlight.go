// Package highlight draws anchor-positioned overlays over the live elements
// that own a style signature.
//
// Matching never trusts an earlier detection pass: every call captures the
// page again and re-runs the attribution walk on each candidate. Clear
// strips only the anchor class and anchor-name the engine added, restoring
// an untouched element byte-for-byte.
package highlight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hazyhaar/typescope/attribution"
	"github.com/hazyhaar/typescope/page"
)

// Mode is the overlay intensity.
type Mode int

const (
	// ModeGroup is the light overlay used to show a whole set.
	ModeGroup Mode = iota
	// ModeFocus is the bright overlay used for one instance among many.
	ModeFocus
)

func (m Mode) String() string {
	if m == ModeFocus {
		return "focus"
	}
	return "group"
}

// ParseMode accepts "group" and "focus"; anything else is ModeGroup.
func ParseMode(s string) Mode {
	if strings.EqualFold(s, "focus") {
		return ModeFocus
	}
	return ModeGroup
}

type palette struct {
	fill, border string
	radius       int
}

var palettes = map[Mode]palette{
	ModeGroup: {fill: "rgba(0, 122, 204, 0.12)", border: "rgba(0, 122, 204, 0.6)", radius: 8},
	ModeFocus: {fill: "rgba(0, 122, 204, 0.15)", border: "rgba(0, 122, 204, 0.7)", radius: 6},
}

// Match is one live element owning an attribution the matcher accepts.
type Match struct {
	ID        page.NodeID           `json:"id"`
	Signature attribution.Signature `json:"signature"`
	Rect      page.Rect             `json:"rect"`
	Style     page.Style            `json:"style"`
	Sample    string                `json:"sample"`
}

type marked struct {
	page.Mark
	anchor string
}

var (
	markClasses = []string{page.ClassAnchored}
	markProps   = []string{propAnchorName}
)

const propAnchorName = "anchor-name"

// Engine owns the overlays it created. It is not safe for concurrent use;
// the controller serializes calls.
type Engine struct {
	host   page.Host
	logger *slog.Logger

	marked   []marked
	overlays []page.NodeID
}

// New creates an Engine writing to host.
func New(host page.Host, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{host: host, logger: logger}
}

// Count returns the number of elements currently highlighted.
func (e *Engine) Count() int { return len(e.marked) }

// Matches captures the page and returns the live matches of m in document
// order.
func (e *Engine) Matches(ctx context.Context, m attribution.Matcher) ([]Match, error) {
	doc, err := e.host.Capture(ctx)
	if err != nil {
		return nil, fmt.Errorf("highlight: capture: %w", err)
	}
	var out []Match
	for _, i := range doc.ElementsByTag(m.Tags()...) {
		for _, a := range attribution.WalkElement(doc, i) {
			if !m.Match(a.Signature) {
				continue
			}
			n := doc.Nodes[i]
			out = append(out, Match{ID: n.ID, Signature: a.Signature, Rect: n.Rect, Style: n.Style, Sample: a.Sample})
			break
		}
	}
	return out, nil
}

// SetHighlight replaces the current highlight with one overlay per match of
// m and returns the number of elements highlighted. No match is not an error.
func (e *Engine) SetHighlight(ctx context.Context, m attribution.Matcher, mode Mode) (int, error) {
	if err := e.Clear(ctx); err != nil {
		return 0, err
	}
	matches, err := e.Matches(ctx, m)
	if err != nil {
		return 0, err
	}
	for _, mt := range matches {
		if err := e.mark(ctx, mt.ID, mode); err != nil {
			if errors.Is(err, page.ErrDetached) {
				continue
			}
			return len(e.marked), fmt.Errorf("highlight: mark: %w", err)
		}
	}
	e.logger.Debug("highlight: applied", "mode", mode.String(), "matches", len(matches), "marked", len(e.marked))
	return len(e.marked), nil
}

func (e *Engine) mark(ctx context.Context, id page.NodeID, mode Mode) error {
	anchor := fmt.Sprintf("%s%d", page.AnchorPrefix, len(e.marked))
	mk, err := page.MarkNode(ctx, e.host, id, func() error {
		if err := e.host.SetStyles(ctx, id, []page.Declaration{{Property: propAnchorName, Value: anchor}}); err != nil {
			return err
		}
		return e.host.AddClass(ctx, id, page.ClassAnchored)
	})
	if mk.ID != 0 {
		e.marked = append(e.marked, marked{Mark: mk, anchor: anchor})
	}
	if err != nil {
		return err
	}
	return e.overlay(ctx, anchor, mode)
}

func (e *Engine) overlay(ctx context.Context, anchor string, mode Mode) error {
	ov, err := e.host.Insert(ctx, Overlay(anchor, mode))
	if err != nil {
		return err
	}
	e.overlays = append(e.overlays, ov)
	return nil
}

// Overlay builds the overlay element bound to anchor.
func Overlay(anchor string, mode Mode) page.Overlay {
	p := palettes[mode]
	class := page.ClassHighlight
	if mode == ModeFocus {
		class += " " + page.ClassHighlightFocus
	}
	css := strings.Join([]string{
		"position: absolute",
		"position-anchor: " + anchor,
		"top: anchor(top)",
		"left: anchor(left)",
		"width: anchor-size(width)",
		"height: anchor-size(height)",
		"background-color: " + p.fill,
		"border: 2px solid " + p.border,
		"pointer-events: none",
		"z-index: 999999",
		fmt.Sprintf("border-radius: %dpx", p.radius),
		"box-sizing: border-box",
	}, "; ") + ";"
	return page.Overlay{Class: class, CSSText: css}
}

// Clear removes every overlay and unmarks every marked element. Elements
// that left the document are skipped. Leftover tsc-anchored elements not
// tracked by this engine are unmarked as well.
func (e *Engine) Clear(ctx context.Context) error {
	var errs []error
	keep := func(err error) {
		if err != nil && !errors.Is(err, page.ErrDetached) {
			errs = append(errs, err)
		}
	}
	for _, id := range e.overlays {
		keep(e.host.Remove(ctx, id))
	}
	_, err := e.host.RemoveByClass(ctx, page.ClassHighlight)
	keep(err)
	for _, m := range e.marked {
		keep(page.Unmark(ctx, e.host, m.Mark, markClasses, markProps))
	}
	e.overlays, e.marked = nil, nil

	stray, err := e.host.FindByClass(ctx, page.ClassAnchored)
	keep(err)
	for _, id := range stray {
		keep(e.host.RemoveStyles(ctx, id, markProps))
		keep(e.host.RemoveClass(ctx, id, page.ClassAnchored))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("highlight: clear: %w", err)
	}
	return nil
}

// ScrollToFirstMatch highlights every match of m in focus mode and scrolls
// the first one, in document order, to the viewport center. It reports
// whether anything matched.
func (e *Engine) ScrollToFirstMatch(ctx context.Context, m attribution.Matcher) (bool, error) {
	n, err := e.SetHighlight(ctx, m, ModeFocus)
	if err != nil || n == 0 {
		return false, err
	}
	if err := e.host.ScrollIntoView(ctx, e.marked[0].ID); err != nil && !errors.Is(err, page.ErrDetached) {
		return true, fmt.Errorf("highlight: scroll: %w", err)
	}
	return true, nil
}

// JumpTo highlights every match of m, adds a focus overlay on the index-th
// one and scrolls to it. The index wraps around the match count. It returns
// the match count.
func (e *Engine) JumpTo(ctx context.Context, m attribution.Matcher, index int) (int, error) {
	n, err := e.SetHighlight(ctx, m, ModeGroup)
	if err != nil || n == 0 {
		return n, err
	}
	index = ((index % n) + n) % n
	target := e.marked[index]
	if err := e.overlay(ctx, target.anchor, ModeFocus); err != nil {
		return n, fmt.Errorf("highlight: focus: %w", err)
	}
	if err := e.host.ScrollIntoView(ctx, target.ID); err != nil && !errors.Is(err, page.ErrDetached) {
		return n, fmt.Errorf("highlight: scroll: %w", err)
	}
	return n, nil
}

// Styles returns the computed style of the first live match of m.
func (e *Engine) Styles(ctx context.Context, m attribution.Matcher) (page.Style, bool, error) {
	matches, err := e.Matches(ctx, m)
	if err != nil || len(matches) == 0 {
		return nil, false, err
	}
	return matches[0].Style, true, nil
}
