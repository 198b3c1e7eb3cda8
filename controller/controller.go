// Package controller owns the highlight, inspector and freeze sessions of one
// page and runs every operation on them from a single loop goroutine.
//
// Callers submit commands; each command runs at most once and its error is
// returned as is, never retried. Inspector events are consumed by the same
// loop, so session state is never touched concurrently.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/typescope/attribution"
	"github.com/hazyhaar/typescope/freeze"
	"github.com/hazyhaar/typescope/grouping"
	"github.com/hazyhaar/typescope/highlight"
	"github.com/hazyhaar/typescope/inspector"
	"github.com/hazyhaar/typescope/page"
)

// ErrClosed is returned for commands submitted after Run returned.
var ErrClosed = errors.New("controller: closed")

// DefaultCleanupTimeout bounds the final ForceCleanup when Run exits.
const DefaultCleanupTimeout = 5 * time.Second

// residueClasses are removed wholesale by ForceCleanup.
var residueClasses = []string{
	page.ClassHighlight, page.ClassHoverHighlight, page.ClassHoverTooltip,
	page.ClassCopyToast, page.ClassFreezeStyle,
}

type result struct {
	val any
	err error
}

type command struct {
	op    string
	ctx   context.Context
	fn    func(ctx context.Context) (any, error)
	reply chan result
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(c *Controller) { c.logger = l } }

// WithClipboard sets where the inspector copies CSS.
func WithClipboard(cb inspector.Clipboard) Option { return func(c *Controller) { c.clip = cb } }

// WithCleanupTimeout bounds the final cleanup when Run exits.
func WithCleanupTimeout(d time.Duration) Option { return func(c *Controller) { c.cleanupTimeout = d } }

// Controller is the single owner of one page's sessions.
type Controller struct {
	host           page.Host
	logger         *slog.Logger
	clip           inspector.Clipboard
	cleanupTimeout time.Duration

	highlight *highlight.Engine
	inspector *inspector.Session
	freeze    *freeze.Session

	cmds chan command
	done chan struct{}
}

// New creates a controller for host. Call Run to start it.
func New(host page.Host, opts ...Option) *Controller {
	c := &Controller{
		host:           host,
		logger:         slog.Default(),
		clip:           discard{},
		cleanupTimeout: DefaultCleanupTimeout,
		cmds:           make(chan command),
		done:           make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	c.highlight = highlight.New(host, c.logger)
	c.freeze = freeze.New(host, c.logger)
	c.inspector = inspector.New(host, c.clip,
		inspector.WithLogger(c.logger),
		inspector.WithScheduler(c.schedule))
	return c
}

type discard struct{}

func (discard) WriteAll(string) error { return errors.New("controller: no clipboard configured") }

// schedule runs fn on the loop after d.
func (c *Controller) schedule(d time.Duration, fn func(ctx context.Context)) func() bool {
	t := time.AfterFunc(d, func() {
		cmd := command{op: "scheduled", ctx: context.Background(), fn: func(ctx context.Context) (any, error) {
			fn(ctx)
			return nil, nil
		}}
		select {
		case c.cmds <- cmd:
		case <-c.done:
		}
	})
	return t.Stop
}

// Run processes commands and inspector events until ctx is done, then
// force-cleans the page and returns.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)
	c.logger.Info("controller: started")
	for {
		select {
		case <-ctx.Done():
			cctx, cancel := context.WithTimeout(context.Background(), c.cleanupTimeout)
			err := c.forceCleanup(cctx)
			cancel()
			if err != nil {
				c.logger.Warn("controller: final cleanup", "error", err)
			}
			c.logger.Info("controller: stopped")
			return nil

		case cmd := <-c.cmds:
			c.exec(cmd)

		case ev, ok := <-c.inspector.Events():
			if !ok {
				// The page dropped the listeners, usually a navigation.
				if err := c.inspector.Disable(ctx); err != nil {
					c.logger.Debug("controller: inspector teardown", "error", err)
				}
				continue
			}
			if err := c.inspector.Handle(ctx, ev); err != nil {
				c.logger.Warn("controller: inspector event", "type", ev.Type, "error", err)
			}
		}
	}
}

func (c *Controller) exec(cmd command) {
	if err := cmd.ctx.Err(); err != nil {
		if cmd.reply != nil {
			cmd.reply <- result{err: err}
		}
		return
	}
	start := time.Now()
	val, err := cmd.fn(cmd.ctx)
	if err != nil {
		c.logger.Warn("controller: command failed", "op", cmd.op, "error", err)
	} else {
		c.logger.Debug("controller: command", "op", cmd.op, "duration", time.Since(start))
	}
	if cmd.reply != nil {
		cmd.reply <- result{val: val, err: err}
	}
}

func (c *Controller) submit(ctx context.Context, op string, fn func(ctx context.Context) (any, error)) (any, error) {
	reply := make(chan result, 1)
	select {
	case c.cmds <- command{op: op, ctx: ctx, fn: fn, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	}
	select {
	case r := <-reply:
		return r.val, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func call[T any](c *Controller, ctx context.Context, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	v, err := c.submit(ctx, op, func(ctx context.Context) (any, error) { return fn(ctx) })
	out, _ := v.(T)
	return out, err
}

// Detect captures the page and returns its style groups.
func (c *Controller) Detect(ctx context.Context, mode grouping.SortMode) ([]grouping.StyleGroup, error) {
	return call(c, ctx, "detect", func(ctx context.Context) ([]grouping.StyleGroup, error) {
		doc, err := c.host.Capture(ctx)
		if err != nil {
			return nil, fmt.Errorf("controller: detect: %w", err)
		}
		return grouping.Classify(attribution.Walk(doc), mode), nil
	})
}

// Highlight turns the overlay for m on or off and returns the number of
// highlighted elements.
func (c *Controller) Highlight(ctx context.Context, m attribution.Matcher, on bool, mode highlight.Mode) (int, error) {
	return call(c, ctx, "highlight", func(ctx context.Context) (int, error) {
		if !on {
			return 0, c.highlight.Clear(ctx)
		}
		return c.highlight.SetHighlight(ctx, m, mode)
	})
}

// ScrollToFirstMatch scrolls to the first match of m.
func (c *Controller) ScrollToFirstMatch(ctx context.Context, m attribution.Matcher) (bool, error) {
	return call(c, ctx, "scroll", func(ctx context.Context) (bool, error) {
		return c.highlight.ScrollToFirstMatch(ctx, m)
	})
}

// JumpTo focuses the index-th match of m and returns the match count.
func (c *Controller) JumpTo(ctx context.Context, m attribution.Matcher, index int) (int, error) {
	return call(c, ctx, "jump", func(ctx context.Context) (int, error) {
		return c.highlight.JumpTo(ctx, m, index)
	})
}

// Styles returns the computed style of the first live match of m, or nil.
func (c *Controller) Styles(ctx context.Context, m attribution.Matcher) (page.Style, error) {
	return call(c, ctx, "styles", func(ctx context.Context) (page.Style, error) {
		st, _, err := c.highlight.Styles(ctx, m)
		return st, err
	})
}

// EnableInspector activates the inspector; idempotent.
func (c *Controller) EnableInspector(ctx context.Context) error {
	_, err := c.submit(ctx, "inspector_enable", func(ctx context.Context) (any, error) {
		return nil, c.inspector.Enable(ctx)
	})
	return err
}

// DisableInspector returns the inspector to Idle; idempotent.
func (c *Controller) DisableInspector(ctx context.Context) error {
	_, err := c.submit(ctx, "inspector_disable", func(ctx context.Context) (any, error) {
		return nil, c.inspector.Disable(ctx)
	})
	return err
}

// ToggleInspector flips the inspector and returns the new state.
func (c *Controller) ToggleInspector(ctx context.Context) (bool, error) {
	return call(c, ctx, "inspector_toggle", c.inspector.Toggle)
}

// Freeze pins the current hover state and returns the frozen element count.
func (c *Controller) Freeze(ctx context.Context) (int, error) {
	return call(c, ctx, "freeze", c.freeze.Freeze)
}

// Unfreeze restores the page after Freeze.
func (c *Controller) Unfreeze(ctx context.Context) error {
	_, err := c.submit(ctx, "unfreeze", func(ctx context.Context) (any, error) {
		return nil, c.freeze.Unfreeze(ctx)
	})
	return err
}

// ToggleFreeze freezes or unfreezes and returns the new state.
func (c *Controller) ToggleFreeze(ctx context.Context) (bool, error) {
	return call(c, ctx, "freeze_toggle", c.freeze.Toggle)
}

// ForceCleanup disables the inspector, clears the highlight, unfreezes and
// sweeps every reserved class from the page. It is idempotent and safe to
// call whatever state the sessions are in.
func (c *Controller) ForceCleanup(ctx context.Context) error {
	_, err := c.submit(ctx, "cleanup", func(ctx context.Context) (any, error) {
		return nil, c.forceCleanup(ctx)
	})
	return err
}

func (c *Controller) forceCleanup(ctx context.Context) error {
	var errs []error
	keep := func(err error) {
		if err != nil && !errors.Is(err, page.ErrDetached) && !errors.Is(err, page.ErrUnavailable) {
			errs = append(errs, err)
		}
	}
	keep(c.inspector.Disable(ctx))
	keep(c.highlight.Clear(ctx))
	keep(c.freeze.Unfreeze(ctx))

	_, err := c.host.RemoveByClass(ctx, residueClasses...)
	keep(err)
	for _, class := range []string{page.ClassAnchored, page.ClassFrozen} {
		ids, err := c.host.FindByClass(ctx, class)
		keep(err)
		for _, id := range ids {
			if class == page.ClassAnchored {
				keep(c.host.RemoveStyles(ctx, id, []string{"anchor-name"}))
			}
			keep(c.host.RemoveClass(ctx, id, class))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("controller: cleanup: %w", err)
	}
	return nil
}

// State is a point-in-time view of the sessions.
type State struct {
	Inspector   bool   `json:"inspector"`
	Frozen      bool   `json:"frozen"`
	FrozenCount int    `json:"frozen_count"`
	Highlighted int    `json:"highlighted"`
	LastCopied  string `json:"last_copied,omitempty"`
}

// State reports the current session state.
func (c *Controller) State(ctx context.Context) (State, error) {
	return call(c, ctx, "state", func(context.Context) (State, error) {
		return State{
			Inspector:   c.inspector.Active(),
			Frozen:      c.freeze.Active(),
			FrozenCount: c.freeze.Count(),
			Highlighted: c.highlight.Count(),
			LastCopied:  c.inspector.LastCopied(),
		}, nil
	})
}
