// Package freeze keeps :hover-revealed UI on screen after the pointer
// leaves, so it can be inspected.
//
// A freeze blocks the pointer-left events, clones same-origin :hover rules
// against the tsc-frozen class, and pins the load-bearing visual properties
// of every hovered element and its visible descendants as !important inline
// values. Unfreeze restores every touched element's class and style
// attributes exactly as they were, unless something else changed them while
// frozen; then only the freeze's own class and properties are taken back.
package freeze

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/hazyhaar/typescope/attribution"
	"github.com/hazyhaar/typescope/page"
)

var blockedTypes = []string{
	page.EventMouseOut, page.EventMouseLeave, page.EventPointerOut, page.EventPointerLeave,
}

// pinned are forced to their computed values on every frozen element.
var pinned = []string{
	page.PropDisplay, page.PropVisibility, page.PropOpacity, page.PropMaxHeight,
	page.PropOverflow, page.PropPosition, page.PropZIndex,
}

var frozenClasses = []string{page.ClassFrozen}

// Snapshot is the pre-freeze state of one element and the inline
// properties the freeze forced on it.
type Snapshot struct {
	page.Mark
	Props []string `json:"props"`
}

// Session is one freeze. It is not safe for concurrent use.
type Session struct {
	host   page.Host
	logger *slog.Logger

	active  bool
	cancel  context.CancelFunc
	events  <-chan page.Event
	sheet   page.NodeID
	snaps   []Snapshot
	covered map[page.NodeID]bool
}

// New creates an inactive session.
func New(host page.Host, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{host: host, logger: logger}
}

// Active reports whether a freeze is in place.
func (s *Session) Active() bool { return s.active }

// Count returns the number of frozen elements.
func (s *Session) Count() int { return len(s.snaps) }

// Freeze pins the current hover state and returns the number of frozen
// elements. It is a no-op while active. A failure part-way is rolled back.
func (s *Session) Freeze(ctx context.Context) (int, error) {
	if s.active {
		return len(s.snaps), nil
	}
	n, err := s.freeze(ctx)
	if err != nil {
		if uerr := s.Unfreeze(ctx); uerr != nil {
			s.logger.Warn("freeze: rollback", "error", uerr)
		}
		return 0, err
	}
	s.logger.Debug("freeze: active", "elements", n)
	return n, nil
}

func (s *Session) freeze(ctx context.Context) (int, error) {
	hovered, err := s.host.Hovered(ctx)
	if err != nil {
		return 0, fmt.Errorf("freeze: hovered: %w", err)
	}

	lctx, cancel := context.WithCancel(context.Background())
	events, err := s.host.Listen(lctx, page.ListenOptions{Types: blockedTypes, Block: true})
	if err != nil {
		cancel()
		return 0, fmt.Errorf("freeze: block: %w", err)
	}
	s.active, s.cancel, s.events = true, cancel, events
	s.covered = make(map[page.NodeID]bool)

	sheets, err := s.host.StyleSheets(ctx)
	if err != nil {
		return 0, fmt.Errorf("freeze: stylesheets: %w", err)
	}
	if css := HoverRules(sheets); css != "" {
		id, err := s.host.InsertStyleSheet(ctx, page.ClassFreezeStyle, css)
		if err != nil {
			return 0, fmt.Errorf("freeze: stylesheet: %w", err)
		}
		s.sheet = id
	}

	doc, err := s.host.Capture(ctx)
	if err != nil {
		return 0, fmt.Errorf("freeze: capture: %w", err)
	}
	for _, id := range hovered {
		i, ok := doc.IndexOf(id)
		if !ok {
			continue
		}
		if err := s.pin(ctx, &doc.Nodes[i]); err != nil {
			return 0, err
		}
		for _, j := range doc.Descendants(i) {
			if n := &doc.Nodes[j]; attribution.IsVisible(n) {
				if err := s.pin(ctx, n); err != nil {
					return 0, err
				}
			}
		}
	}
	return len(s.snaps), nil
}

func (s *Session) pin(ctx context.Context, n *page.Node) error {
	if s.covered[n.ID] {
		return nil
	}
	s.covered[n.ID] = true
	decls := []page.Declaration{
		{Property: "transition", Value: "none", Important: true},
		{Property: "animation", Value: "none", Important: true},
	}
	for _, p := range pinned {
		if n.Style.Has(p) {
			decls = append(decls, page.Declaration{Property: p, Value: n.Style.Get(p), Important: true})
		}
	}
	props := make([]string, len(decls))
	for i, d := range decls {
		props[i] = d.Property
	}
	mk, err := page.MarkNode(ctx, s.host, n.ID, func() error {
		if err := s.host.SetStyles(ctx, n.ID, decls); err != nil {
			return err
		}
		return s.host.AddClass(ctx, n.ID, page.ClassFrozen)
	})
	if mk.ID != 0 {
		s.snaps = append(s.snaps, Snapshot{Mark: mk, Props: props})
	}
	if err != nil && !errors.Is(err, page.ErrDetached) {
		return fmt.Errorf("freeze: pin: %w", err)
	}
	return nil
}

// Unfreeze lifts the event block, removes the cloned rules and restores
// every snapshot. It is a no-op while inactive.
func (s *Session) Unfreeze(ctx context.Context) error {
	if !s.active {
		return nil
	}
	s.cancel()
	// The block is only gone once the host closes the event stream.
drain:
	for {
		select {
		case _, ok := <-s.events:
			if !ok {
				break drain
			}
		case <-ctx.Done():
			break drain
		}
	}
	var errs []error
	keep := func(err error) {
		if err != nil && !errors.Is(err, page.ErrDetached) {
			errs = append(errs, err)
		}
	}
	if s.sheet != 0 {
		keep(s.host.Remove(ctx, s.sheet))
	}
	for _, sn := range s.snaps {
		keep(page.Unmark(ctx, s.host, sn.Mark, frozenClasses, sn.Props))
	}
	s.active, s.cancel, s.events, s.sheet, s.snaps, s.covered = false, nil, nil, 0, nil, nil
	s.logger.Debug("freeze: lifted")
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("freeze: unfreeze: %w", err)
	}
	return nil
}

// Toggle freezes when inactive and unfreezes when active. It returns the
// new state.
func (s *Session) Toggle(ctx context.Context) (bool, error) {
	if s.active {
		return false, s.Unfreeze(ctx)
	}
	_, err := s.Freeze(ctx)
	return err == nil, err
}

var hoverPseudo = regexp.MustCompile(`:hover\b`)

// HoverRules clones every readable :hover rule against the tsc-frozen
// class. Selectors of a list that do not mention :hover are dropped; @media
// conditions are kept. Unreadable sheets are skipped.
func HoverRules(sheets []page.StyleSheet) string {
	var b strings.Builder
	for _, sh := range sheets {
		if sh.Err != nil {
			continue
		}
		for _, r := range sh.Rules {
			var sels []string
			for _, sel := range strings.Split(r.Selector, ",") {
				if hoverPseudo.MatchString(sel) {
					sels = append(sels, hoverPseudo.ReplaceAllString(strings.TrimSpace(sel), "."+page.ClassFrozen))
				}
			}
			if len(sels) == 0 {
				continue
			}
			rule := strings.Join(sels, ", ") + " { " + r.Declarations + " }"
			if r.Media != "" {
				rule = "@media " + r.Media + " { " + rule + " }"
			}
			b.WriteString(rule + "\n")
		}
	}
	return b.String()
}
