// Package rodhost implements page.Host on a live Chrome tab driven over the
// DevTools protocol with go-rod.
//
// Every operation is one Runtime call into a helper script installed in the
// page on first use (and again after each navigation). The script keeps a
// registry from element to numeric ID, holding elements only through
// WeakRefs, so IDs never keep removed nodes alive and resolve to
// page.ErrDetached once their node left the document.
package rodhost

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/typescope/idgen"
	"github.com/hazyhaar/typescope/page"
)

//go:embed page.js
var pageJS string

// Operations exposed by page.js.
const (
	opCapture       = "capture"
	opBody          = "body"
	opHovered       = "hovered"
	opSheets        = "sheets"
	opAttrs         = "attrs"
	opRestore       = "restore"
	opAddClass      = "addClass"
	opRemoveClass   = "removeClass"
	opSetStyles     = "setStyles"
	opRemoveStyles  = "removeStyles"
	opInsert        = "insert"
	opInsertSheet   = "insertSheet"
	opRemove        = "remove"
	opRemoveByClass = "removeByClass"
	opFindByClass   = "findByClass"
	opScroll        = "scroll"
	opListen        = "listen"
	opUnlisten      = "unlisten"
)

const (
	missing = "__missing__"
	callJS  = `(op, args) => window.__typescope ? window.__typescope.call(op, args) : "` + missing + `"`

	bindingPrefix = "__tsc_"
	eventBuffer   = 16
	teardownWait  = 2 * time.Second
)

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(h *Host) { h.logger = l } }

// WithBindingNames sets the generator of per-Listen binding names.
func WithBindingNames(gen idgen.Generator) Option { return func(h *Host) { h.newName = gen } }

// Host is a page.Host over one rod page.
type Host struct {
	page    *rod.Page
	logger  *slog.Logger
	newName idgen.Generator
}

var _ page.Host = (*Host)(nil)

// New wraps p. No call is made until the first operation.
func New(p *rod.Page, opts ...Option) *Host {
	h := &Host{page: p, logger: slog.Default(), newName: idgen.Listener}
	for _, o := range opts {
		o(h)
	}
	return h
}

type reply struct {
	Value json.RawMessage `json:"value"`
	Error string          `json:"error"`
}

// call runs op in the page and decodes its value into out. A page without
// the helper script gets it injected once; the operation itself is never
// repeated.
func (h *Host) call(ctx context.Context, op string, out any, args ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if args == nil {
		args = []any{}
	}
	for attempt := 0; ; attempt++ {
		res, err := h.page.Context(ctx).Eval(callJS, op, args)
		if err != nil {
			return h.unavailable(ctx, op, err)
		}
		raw := res.Value.Str()
		if raw != missing {
			return decodeReply(op, raw, out)
		}
		if attempt > 0 {
			return fmt.Errorf("rodhost: %s: helper script did not install: %w", op, page.ErrUnavailable)
		}
		if _, err := h.page.Context(ctx).Eval("() => {" + pageJS + "}"); err != nil {
			return h.unavailable(ctx, "inject", err)
		}
		h.logger.Debug("rodhost: helper script installed")
	}
}

func (h *Host) unavailable(ctx context.Context, op string, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	return fmt.Errorf("rodhost: %s: %w: %w", op, page.ErrUnavailable, err)
}

func decodeReply(op, raw string, out any) error {
	var r reply
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return fmt.Errorf("rodhost: %s: decode: %w", op, err)
	}
	switch r.Error {
	case "":
	case "detached":
		return fmt.Errorf("rodhost: %s: %w", op, page.ErrDetached)
	case "unavailable":
		return fmt.Errorf("rodhost: %s: %w", op, page.ErrUnavailable)
	default:
		return fmt.Errorf("rodhost: %s: %s", op, r.Error)
	}
	if out == nil || len(r.Value) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Value, out); err != nil {
		return fmt.Errorf("rodhost: %s: decode value: %w", op, err)
	}
	return nil
}

// Capture implements page.Host.
func (h *Host) Capture(ctx context.Context) (*page.Document, error) {
	var doc page.Document
	if err := h.call(ctx, opCapture, &doc, page.Properties); err != nil {
		return nil, err
	}
	if len(doc.Nodes) == 0 {
		return nil, fmt.Errorf("rodhost: capture: empty document: %w", page.ErrUnavailable)
	}
	doc.Link()
	return &doc, nil
}

// Body implements page.Host.
func (h *Host) Body(ctx context.Context) (page.NodeID, error) {
	var id page.NodeID
	err := h.call(ctx, opBody, &id)
	return id, err
}

// Hovered implements page.Host.
func (h *Host) Hovered(ctx context.Context) ([]page.NodeID, error) {
	var ids []page.NodeID
	err := h.call(ctx, opHovered, &ids)
	return ids, err
}

type wireSheet struct {
	Href   string      `json:"href"`
	Rules  []page.Rule `json:"rules"`
	Denied bool        `json:"denied"`
}

// StyleSheets implements page.Host.
func (h *Host) StyleSheets(ctx context.Context) ([]page.StyleSheet, error) {
	var wire []wireSheet
	if err := h.call(ctx, opSheets, &wire); err != nil {
		return nil, err
	}
	return convertSheets(wire), nil
}

func convertSheets(wire []wireSheet) []page.StyleSheet {
	out := make([]page.StyleSheet, 0, len(wire))
	for _, w := range wire {
		sh := page.StyleSheet{Href: w.Href, Rules: w.Rules}
		if w.Denied {
			sh.Rules, sh.Err = nil, page.ErrAccessDenied
		}
		out = append(out, sh)
	}
	return out
}

// Attributes implements page.Host.
func (h *Host) Attributes(ctx context.Context, id page.NodeID) (page.AttrSnapshot, error) {
	var snap page.AttrSnapshot
	err := h.call(ctx, opAttrs, &snap, id)
	return snap, err
}

// RestoreAttributes implements page.Host.
func (h *Host) RestoreAttributes(ctx context.Context, id page.NodeID, snap page.AttrSnapshot) error {
	return h.call(ctx, opRestore, nil, id, snap)
}

// AddClass implements page.Host.
func (h *Host) AddClass(ctx context.Context, id page.NodeID, class string) error {
	return h.call(ctx, opAddClass, nil, id, class)
}

// RemoveClass implements page.Host.
func (h *Host) RemoveClass(ctx context.Context, id page.NodeID, class string) error {
	return h.call(ctx, opRemoveClass, nil, id, class)
}

// SetStyles implements page.Host.
func (h *Host) SetStyles(ctx context.Context, id page.NodeID, decls []page.Declaration) error {
	return h.call(ctx, opSetStyles, nil, id, decls)
}

// RemoveStyles implements page.Host.
func (h *Host) RemoveStyles(ctx context.Context, id page.NodeID, props []string) error {
	return h.call(ctx, opRemoveStyles, nil, id, props)
}

// Insert implements page.Host.
func (h *Host) Insert(ctx context.Context, o page.Overlay) (page.NodeID, error) {
	var id page.NodeID
	err := h.call(ctx, opInsert, &id, map[string]string{
		"class": o.Class, "css": o.CSSText, "html": o.HTML, "text": o.Text,
	})
	return id, err
}

// InsertStyleSheet implements page.Host.
func (h *Host) InsertStyleSheet(ctx context.Context, class, css string) (page.NodeID, error) {
	var id page.NodeID
	err := h.call(ctx, opInsertSheet, &id, class, css)
	return id, err
}

// Remove implements page.Host.
func (h *Host) Remove(ctx context.Context, id page.NodeID) error {
	return h.call(ctx, opRemove, nil, id)
}

// RemoveByClass implements page.Host.
func (h *Host) RemoveByClass(ctx context.Context, classes ...string) (int, error) {
	if classes == nil {
		classes = []string{}
	}
	var n int
	err := h.call(ctx, opRemoveByClass, &n, classes)
	return n, err
}

// FindByClass implements page.Host.
func (h *Host) FindByClass(ctx context.Context, class string) ([]page.NodeID, error) {
	var ids []page.NodeID
	err := h.call(ctx, opFindByClass, &ids, class)
	return ids, err
}

// ScrollIntoView implements page.Host.
func (h *Host) ScrollIntoView(ctx context.Context, id page.NodeID) error {
	return h.call(ctx, opScroll, nil, id)
}

type listenArgs struct {
	Types   []string `json:"types"`
	Prevent []string `json:"prevent"`
	Block   bool     `json:"block"`
	Notify  bool     `json:"notify"`
	Props   []string `json:"props"`
}

// Listen implements page.Host. Each registration gets its own Runtime
// binding; the page calls it with a JSON event. The registration ends when
// ctx is done or the main frame navigates, whichever comes first.
func (h *Host) Listen(ctx context.Context, opts page.ListenOptions) (<-chan page.Event, error) {
	name := bindingPrefix + h.newName()
	if err := (proto.RuntimeAddBinding{Name: name}).Call(h.page); err != nil {
		return nil, h.unavailable(ctx, "add binding", err)
	}

	lctx, stop := context.WithCancel(ctx)
	ch := make(chan page.Event, eventBuffer)
	wait := h.page.Context(lctx).EachEvent(
		func(e *proto.RuntimeBindingCalled) {
			if e.Name != name {
				return
			}
			ev, err := decodeEvent(e.Payload)
			if err != nil {
				h.logger.Warn("rodhost: bad event payload", "binding", name, "error", err)
				return
			}
			select {
			case ch <- ev:
			case <-lctx.Done():
			}
		},
		func(e *proto.PageFrameNavigated) bool {
			return e.Frame.ParentID == ""
		},
	)

	go func() {
		wait()
		stop()
		tctx, cancel := context.WithTimeout(context.Background(), teardownWait)
		defer cancel()
		if err := h.call(tctx, opUnlisten, nil, name); err != nil {
			h.logger.Debug("rodhost: unlisten", "binding", name, "error", err)
		}
		if err := (proto.RuntimeRemoveBinding{Name: name}).Call(h.page.Context(tctx)); err != nil {
			h.logger.Debug("rodhost: remove binding", "binding", name, "error", err)
		}
		close(ch)
	}()

	args := listenArgs{
		Types:   opts.Types,
		Prevent: opts.PreventDefault,
		Block:   opts.Block,
		Notify:  opts.Notify,
		Props:   page.Properties,
	}
	if args.Prevent == nil {
		args.Prevent = []string{}
	}
	if err := h.call(ctx, opListen, nil, name, args); err != nil {
		stop()
		return nil, err
	}
	return ch, nil
}

func decodeEvent(payload string) (page.Event, error) {
	var ev page.Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return page.Event{}, err
	}
	if ev.Type == "" {
		return page.Event{}, errors.New("missing event type")
	}
	return ev, nil
}

// Navigations reports every load event of the page until ctx is done.
func (h *Host) Navigations(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{}, 1)
	wait := h.page.Context(ctx).EachEvent(func(*proto.PageLoadEventFired) {
		select {
		case ch <- struct{}{}:
		default:
		}
	})
	go func() {
		wait()
		close(ch)
	}()
	return ch
}

// URL returns the page's current URL, or "" when it cannot be read.
func (h *Host) URL() string {
	info, err := h.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}
