// Package inspector implements the hover/click inspector session.
//
// A session is Idle or Active. Enable installs the four capturing listeners
// under one cancellation context; Disable and the Escape key share a single
// teardown that cancels it, so the listeners always come and go together.
package inspector

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/typescope/attribution"
	"github.com/hazyhaar/typescope/grouping"
	"github.com/hazyhaar/typescope/page"
)

// ToastDuration is how long the "CSS copied!" toast stays up.
const ToastDuration = 1500 * time.Millisecond

// Tooltip geometry.
const (
	tooltipWidth  = 250
	tooltipMargin = 10
	tooltipHeight = 150
	tooltipGap    = 8
)

var listenTypes = []string{page.EventMouseOver, page.EventMouseOut, page.EventClick, page.EventKeyDown}

// Clipboard receives copied CSS.
type Clipboard interface {
	WriteAll(text string) error
}

// ScheduleFunc runs fn after d unless the returned stop is called first.
type ScheduleFunc func(d time.Duration, fn func(ctx context.Context)) (stop func() bool)

func afterFunc(d time.Duration, fn func(ctx context.Context)) func() bool {
	t := time.AfterFunc(d, func() { fn(context.Background()) })
	return t.Stop
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Session) { s.logger = l } }

// WithScheduler replaces time.AfterFunc for delayed page writes. The
// controller uses it to run them on its own loop.
func WithScheduler(fn ScheduleFunc) Option { return func(s *Session) { s.schedule = fn } }

const propCursor = "cursor"

var cursorProps = []string{propCursor}

// Session is one inspector. It is not safe for concurrent use.
type Session struct {
	host     page.Host
	clip     Clipboard
	logger   *slog.Logger
	schedule ScheduleFunc
	policy   *bluemonday.Policy

	active bool
	cancel context.CancelFunc
	events <-chan page.Event
	cursor page.Mark

	toast     page.NodeID
	stopToast func() bool
	copied    string
}

// New creates an idle session.
func New(host page.Host, clip Clipboard, opts ...Option) *Session {
	s := &Session{
		host:     host,
		clip:     clip,
		logger:   slog.Default(),
		schedule: afterFunc,
		policy:   tooltipPolicy(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func tooltipPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("div", "strong", "span")
	p.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).Globally()
	return p
}

// Active reports whether the session is Active.
func (s *Session) Active() bool { return s.active }

// Events returns the listener channel, nil while Idle. A nil channel blocks
// forever in a select, which is what an idle loop wants.
func (s *Session) Events() <-chan page.Event { return s.events }

// LastCopied returns the most recent CSS block written to the clipboard.
func (s *Session) LastCopied() string { return s.copied }

// Enable activates the session. It is a no-op while Active.
func (s *Session) Enable(ctx context.Context) error {
	if s.active {
		return nil
	}
	body, err := s.host.Body(ctx)
	if err != nil {
		return fmt.Errorf("inspector: enable: %w", err)
	}
	lctx, cancel := context.WithCancel(context.Background())
	events, err := s.host.Listen(lctx, page.ListenOptions{
		Types:          listenTypes,
		PreventDefault: []string{page.EventClick},
		Notify:         true,
	})
	if err != nil {
		cancel()
		return fmt.Errorf("inspector: listen: %w", err)
	}
	mk, err := page.MarkNode(ctx, s.host, body, func() error {
		return s.host.SetStyles(ctx, body, []page.Declaration{{Property: propCursor, Value: "crosshair"}})
	})
	if err != nil {
		cancel()
		if mk.ID != 0 {
			page.Unmark(ctx, s.host, mk, nil, cursorProps)
		}
		return fmt.Errorf("inspector: cursor: %w", err)
	}

	s.active, s.cancel, s.events = true, cancel, events
	s.cursor = mk
	s.logger.Debug("inspector: enabled")
	return nil
}

// Disable returns the session to Idle. It is a no-op while Idle and
// tolerates a page that no longer exists.
func (s *Session) Disable(ctx context.Context) error {
	if !s.active {
		return nil
	}
	s.cancel()
	s.drain(ctx)
	s.active, s.cancel, s.events = false, nil, nil
	if s.stopToast != nil {
		s.stopToast()
		s.stopToast = nil
	}
	s.toast = 0

	var errs []error
	if err := page.Unmark(ctx, s.host, s.cursor, nil, cursorProps); err != nil && !errors.Is(err, page.ErrDetached) {
		errs = append(errs, err)
	}
	if _, err := s.host.RemoveByClass(ctx, page.ClassHoverHighlight, page.ClassHoverTooltip, page.ClassCopyToast); err != nil {
		errs = append(errs, err)
	}
	s.logger.Debug("inspector: disabled")
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("inspector: disable: %w", err)
	}
	return nil
}

// drain consumes events until the host closes the channel.
func (s *Session) drain(ctx context.Context) {
	for {
		select {
		case _, ok := <-s.events:
			if !ok {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// Toggle flips the session state and returns the new one.
func (s *Session) Toggle(ctx context.Context) (bool, error) {
	if s.active {
		return false, s.Disable(ctx)
	}
	return true, s.Enable(ctx)
}

// Handle processes one event received from Events.
func (s *Session) Handle(ctx context.Context, ev page.Event) error {
	if !s.active {
		return nil
	}
	switch ev.Type {
	case page.EventMouseOver:
		return s.hover(ctx, ev)
	case page.EventMouseOut:
		return s.clearHover(ctx)
	case page.EventClick:
		return s.copy(ctx, ev)
	case page.EventKeyDown:
		if ev.Key == "Escape" {
			return s.Disable(ctx)
		}
	}
	return nil
}

func (s *Session) clearHover(ctx context.Context) error {
	if _, err := s.host.RemoveByClass(ctx, page.ClassHoverHighlight, page.ClassHoverTooltip); err != nil {
		return fmt.Errorf("inspector: clear hover: %w", err)
	}
	return nil
}

func (s *Session) hover(ctx context.Context, ev page.Event) error {
	if err := s.clearHover(ctx); err != nil {
		return err
	}
	if !attribution.IsVisible(ev.Target) {
		return nil
	}
	r := ev.Target.Rect
	box := page.Overlay{
		Class: page.ClassHoverHighlight,
		CSSText: fmt.Sprintf("position: fixed; top: %gpx; left: %gpx; width: %gpx; height: %gpx; "+
			"border: 2px solid #007acc; background-color: rgba(0, 122, 204, 0.06); pointer-events: none; "+
			"z-index: 999998; border-radius: 8px; box-sizing: border-box;", r.Y, r.X, r.Width, r.Height),
	}
	if _, err := s.host.Insert(ctx, box); err != nil {
		return fmt.Errorf("inspector: hover box: %w", err)
	}

	top, left := TooltipPosition(r, ev.Viewport)
	tip := page.Overlay{
		Class: page.ClassHoverTooltip,
		CSSText: fmt.Sprintf("position: fixed; top: %gpx; left: %gpx; background: #ffffff; border-radius: 12px; "+
			"padding: 14px 16px; box-shadow: 0 8px 32px rgba(0,0,0,0.12); z-index: 1000000; "+
			"font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; font-size: 12px; "+
			"line-height: 1.5; max-width: 260px; pointer-events: none; color: #3c3c3c;", top, left),
		HTML: s.policy.Sanitize(TooltipHTML(ev.Target.Tag, ev.Target.Style)),
	}
	if _, err := s.host.Insert(ctx, tip); err != nil {
		return fmt.Errorf("inspector: tooltip: %w", err)
	}
	return nil
}

// TooltipPosition places the tooltip below rect, clamped inside the viewport.
func TooltipPosition(r page.Rect, vp page.Viewport) (top, left float64) {
	top, left = r.Bottom()+tooltipGap, r.X
	if left+tooltipWidth > vp.Width {
		left = vp.Width - tooltipWidth - tooltipMargin
	}
	if left < tooltipMargin {
		left = tooltipMargin
	}
	if top+tooltipHeight > vp.Height {
		top = r.Y - tooltipHeight - tooltipGap
	}
	if top < tooltipMargin {
		top = tooltipMargin
	}
	return top, left
}

// TooltipHTML renders the style summary shown next to the hovered element.
// Values come from the page and are escaped.
func TooltipHTML(tag string, st page.Style) string {
	var b strings.Builder
	row := func(label, value string) {
		fmt.Fprintf(&b, `<div class="tsc-row"><strong>%s:</strong> %s</div>`, label, html.EscapeString(value))
	}
	fmt.Fprintf(&b, `<div class="tsc-tag">&lt;%s&gt;</div>`, html.EscapeString(tag))
	row("Font", grouping.DisplayName(st.Get(page.PropFontFamily)))
	row("Size", st.Get(page.PropFontSize))
	row("Weight", st.Get(page.PropFontWeight))
	row("Style", st.Get(page.PropFontStyle))
	row("Line Height", st.Get(page.PropLineHeight))
	if v := st.Get(page.PropLetterSpacing); v != "" && v != "normal" {
		row("Letter Spacing", v)
	}
	if v := st.Get(page.PropTextTransform); v != "" && v != "none" {
		row("Transform", v)
	}
	row("Color", st.Get(page.PropColor))
	b.WriteString(`<div class="tsc-hint">Click to copy CSS</div>`)
	return b.String()
}

func (s *Session) copy(ctx context.Context, ev page.Event) error {
	if ev.Target == nil {
		return nil
	}
	css := ev.Target.Style.CSSBlock()
	if err := s.clip.WriteAll(css); err != nil {
		s.logger.Warn("inspector: clipboard write failed", "error", err)
		return nil
	}
	s.copied = css

	if _, err := s.host.RemoveByClass(ctx, page.ClassCopyToast); err != nil {
		return fmt.Errorf("inspector: toast: %w", err)
	}
	if s.stopToast != nil {
		s.stopToast()
	}
	id, err := s.host.Insert(ctx, page.Overlay{
		Class: page.ClassCopyToast,
		Text:  "CSS copied!",
		CSSText: "position: fixed; bottom: 24px; left: 50%; transform: translateX(-50%); background: #1a1a1a; " +
			"color: white; padding: 10px 20px; border-radius: 10px; font-size: 13px; font-weight: 500; " +
			"z-index: 1000001; pointer-events: none;",
	})
	if err != nil {
		return fmt.Errorf("inspector: toast: %w", err)
	}
	s.toast = id
	s.stopToast = s.schedule(ToastDuration, func(ctx context.Context) {
		if s.toast != id {
			return
		}
		s.toast, s.stopToast = 0, nil
		if err := s.host.Remove(ctx, id); err != nil && !errors.Is(err, page.ErrDetached) {
			s.logger.Debug("inspector: toast remove", "error", err)
		}
	})
	return nil
}
