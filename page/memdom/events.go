package memdom

import (
	"context"
	"slices"
	"sync"

	"golang.org/x/net/html"

	"github.com/hazyhaar/typescope/page"
)

type listener struct {
	opts page.ListenOptions

	mu     sync.Mutex
	ch     chan page.Event
	closed bool
}

func (l *listener) shutdown() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.ch)
	}
}

func (l *listener) deliver(ev page.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.ch <- ev
	}
}

// Listen implements page.Host.
func (d *Document) Listen(ctx context.Context, opts page.ListenOptions) (<-chan page.Event, error) {
	l := &listener{opts: opts, ch: make(chan page.Event, 16)}
	d.mu.Lock()
	if d.body() == nil {
		d.mu.Unlock()
		return nil, page.ErrUnavailable
	}
	d.listeners = append(d.listeners, l)
	d.mu.Unlock()

	context.AfterFunc(ctx, func() {
		d.mu.Lock()
		d.listeners = slices.DeleteFunc(d.listeners, func(x *listener) bool { return x == l })
		d.mu.Unlock()
		l.shutdown()
	})
	return l.ch, nil
}

// ListenerCount returns the number of live Listen registrations.
func (d *Document) ListenerCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.listeners)
}

// DispatchResult reports what page handlers would observe for one event.
type DispatchResult struct {
	// Blocked is set when a capturing listener stopped propagation, so page
	// handlers never ran.
	Blocked bool
	// DefaultPrevented is set when the default action was cancelled.
	DefaultPrevented bool
}

// Dispatch fires a DOM event at element id. A zero id targets body. Notifying
// listeners receive the event before Dispatch returns, unless their buffer is
// full, in which case Dispatch waits for the reader.
func (d *Document) Dispatch(typ string, id page.NodeID, key string) (DispatchResult, error) {
	d.mu.Lock()
	var n *html.Node
	if id == 0 {
		n = d.body()
	} else {
		var err error
		if n, err = d.lookup(id); err != nil {
			d.mu.Unlock()
			return DispatchResult{}, err
		}
	}
	target := d.snapshot(n)
	ev := page.Event{Type: typ, Key: key, Target: target, Viewport: d.viewport}

	var res DispatchResult
	var notify []*listener
	for _, l := range d.listeners {
		if !slices.Contains(l.opts.Types, typ) {
			continue
		}
		if l.opts.Block {
			res.Blocked = true
		}
		if slices.Contains(l.opts.PreventDefault, typ) {
			res.DefaultPrevented = true
		}
		if l.opts.Notify {
			notify = append(notify, l)
		}
	}
	d.mu.Unlock()

	for _, l := range notify {
		l.deliver(ev)
	}
	return res, nil
}

func (d *Document) snapshot(n *html.Node) *page.Node {
	r := d.render()
	return &page.Node{
		ID:     d.idOf(n),
		Kind:   page.KindElement,
		Tag:    n.Data,
		Parent: -1,
		Style:  r.styles[n].style,
		Rect:   r.rects[n],
	}
}

// SetHover moves the :hover state to element id and its ancestors without
// firing events. A zero id clears it.
func (d *Document) SetHover(id page.NodeID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for n := d.hover; n != nil; n = n.Parent {
		if n.Type == html.ElementNode {
			removeAttr(n, hoverAttr)
		}
	}
	d.hover = nil
	if id == 0 {
		return nil
	}
	n, err := d.lookup(id)
	if err != nil {
		return err
	}
	d.hover = n
	for ; n != nil; n = n.Parent {
		if n.Type == html.ElementNode {
			setAttr(n, hoverAttr, "")
		}
	}
	return nil
}

// Hover moves the pointer onto element id: :hover state, then mouseover.
func (d *Document) Hover(id page.NodeID) (DispatchResult, error) {
	if err := d.SetHover(id); err != nil {
		return DispatchResult{}, err
	}
	return d.Dispatch(page.EventMouseOver, id, "")
}

// Leave moves the pointer off element id: mouseout, then :hover is cleared.
func (d *Document) Leave(id page.NodeID) (DispatchResult, error) {
	res, err := d.Dispatch(page.EventMouseOut, id, "")
	if err != nil {
		return res, err
	}
	return res, d.SetHover(0)
}
