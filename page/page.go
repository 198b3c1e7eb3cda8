// Package page defines the read/write surface typescope needs from a live,
// rendered document. The engine never keeps a DOM of its own: it reads
// point-in-time captures and writes through the narrow Host interface, so the
// same engine runs against a Chrome tab (page/rodhost) or an in-memory render
// of static HTML (page/memdom).
//
// Every write is namespaced under the reserved "tsc-" prefix and is
// individually removable.
package page

import (
	"context"
	"errors"
)

// Reserved names. Anything typescope adds to a host page uses one of these.
const (
	Prefix = "tsc-"

	ClassAnchored       = Prefix + "anchored"
	ClassHighlight      = Prefix + "highlight"
	ClassHighlightFocus = Prefix + "highlight-focus"
	ClassHoverHighlight = Prefix + "hover-highlight"
	ClassHoverTooltip   = Prefix + "hover-tooltip"
	ClassCopyToast      = Prefix + "copy-toast"
	ClassFrozen         = Prefix + "frozen"
	ClassFreezeStyle    = Prefix + "freeze-style"

	// AnchorPrefix prefixes CSS anchor names set on highlighted elements.
	AnchorPrefix = "--tsc-a-"

	// MarkerAttr is set on every node typescope injects. Captures skip
	// subtrees carrying it.
	MarkerAttr = "data-typescope"
)

// Sentinel errors shared by all hosts.
var (
	// ErrDetached is returned when a node left the document between the
	// capture that produced its ID and the current call.
	ErrDetached = errors.New("page: node detached")

	// ErrAccessDenied marks a stylesheet whose rules cannot be read
	// (cross-origin).
	ErrAccessDenied = errors.New("page: stylesheet access denied")

	// ErrUnavailable is returned when the page context cannot be reached at
	// all (restricted page, closed tab, browser gone).
	ErrUnavailable = errors.New("page: cannot access this page")
)

// NodeID identifies an element for the lifetime of the document that
// produced it. It must not be retained across invocations.
type NodeID int64

// Rect is a bounding client rectangle in CSS pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Bottom returns Y+Height.
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// Viewport is the layout viewport size.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Overlay describes an element appended to the document body.
type Overlay struct {
	Class   string // space separated
	CSSText string // inline style
	HTML    string // inner HTML, already sanitized by the caller
	Text    string // used when HTML is empty
}

// Host is Boundary A: everything typescope reads from or writes to the page.
//
// Implementations must tolerate nodes disappearing at any time: reads and
// writes on such nodes return ErrDetached.
type Host interface {
	// Capture returns a flattened snapshot of the body subtree.
	Capture(ctx context.Context) (*Document, error)
	// Body returns the ID of the body element.
	Body(ctx context.Context) (NodeID, error)
	// Hovered returns the elements matching :hover, excluding html and body,
	// in document order.
	Hovered(ctx context.Context) ([]NodeID, error)
	// StyleSheets lists the document's stylesheets. Unreadable sheets are
	// returned with Err set rather than failing the call.
	StyleSheets(ctx context.Context) ([]StyleSheet, error)

	Attributes(ctx context.Context, id NodeID) (AttrSnapshot, error)
	RestoreAttributes(ctx context.Context, id NodeID, snap AttrSnapshot) error
	AddClass(ctx context.Context, id NodeID, class string) error
	RemoveClass(ctx context.Context, id NodeID, class string) error
	SetStyles(ctx context.Context, id NodeID, decls []Declaration) error
	RemoveStyles(ctx context.Context, id NodeID, props []string) error

	// Insert appends an overlay element to the body and returns its ID.
	Insert(ctx context.Context, o Overlay) (NodeID, error)
	// InsertStyleSheet appends a <style> element with the given class.
	InsertStyleSheet(ctx context.Context, class, css string) (NodeID, error)
	Remove(ctx context.Context, id NodeID) error
	// RemoveByClass removes every element carrying any of the classes.
	RemoveByClass(ctx context.Context, classes ...string) (int, error)
	FindByClass(ctx context.Context, class string) ([]NodeID, error)
	// ScrollIntoView scrolls smoothly so the node sits at the viewport center.
	ScrollIntoView(ctx context.Context, id NodeID) error

	// Listen installs capturing-phase document listeners. All of them are
	// detached together when ctx is cancelled, after which the returned
	// channel is closed.
	Listen(ctx context.Context, opts ListenOptions) (<-chan Event, error)
}
