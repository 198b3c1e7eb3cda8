package page

// DOM event types used by the inspector and freeze sessions.
const (
	EventMouseOver    = "mouseover"
	EventMouseOut     = "mouseout"
	EventMouseLeave   = "mouseleave"
	EventPointerOut   = "pointerout"
	EventPointerLeave = "pointerleave"
	EventClick        = "click"
	EventKeyDown      = "keydown"
)

// ListenOptions configures one Listen registration.
type ListenOptions struct {
	Types []string
	// PreventDefault lists the types whose default action and propagation
	// are suppressed in the page.
	PreventDefault []string
	// Block stops every listed event from reaching page handlers.
	Block bool
	// Notify delivers events on the returned channel.
	Notify bool
}

// Event is a DOM event observed by a Listen registration.
type Event struct {
	Type     string   `json:"type"`
	Key      string   `json:"key,omitempty"`
	Target   *Node    `json:"target,omitempty"` // element snapshot at dispatch time
	Viewport Viewport `json:"viewport"`
}
