// Package endpoints exposes the controller operations as transport-neutral
// kit endpoints with JSON request and response types. mcptools and httpapi
// bind the same set to their transports.
package endpoints

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/typescope/attribution"
	"github.com/hazyhaar/typescope/controller"
	"github.com/hazyhaar/typescope/grouping"
	"github.com/hazyhaar/typescope/highlight"
	"github.com/hazyhaar/typescope/idgen"
	"github.com/hazyhaar/typescope/kit"
	"github.com/hazyhaar/typescope/page"
)

// ErrNoTarget is returned for a request that names no signature.
var ErrNoTarget = errors.New("endpoints: target needs signature, signatures or font_family")

// ErrBadAction is returned for an unknown on/off/toggle action.
var ErrBadAction = errors.New(`endpoints: action must be "on", "off" or "toggle"`)

// Target selects the text a highlight, scroll, jump or styles request acts
// on. Exactly one form is used, checked in field order.
type Target struct {
	Signature  *attribution.Signature  `json:"signature,omitempty"`
	Signatures []attribution.Signature `json:"signatures,omitempty"`
	// FontFamily selects every signature of that family on Tags, or on
	// every owner tag when Tags is empty.
	FontFamily string   `json:"font_family,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// Matcher converts the target.
func (t Target) Matcher() (attribution.Matcher, error) {
	switch {
	case t.Signature != nil:
		return attribution.Exact(*t.Signature), nil
	case len(t.Signatures) > 0:
		return attribution.AnyOf(t.Signatures), nil
	case t.FontFamily != "":
		tags := t.Tags
		if len(tags) == 0 {
			tags = attribution.OwnerTags()
		}
		return attribution.Family{FontFamily: t.FontFamily, TagNames: tags}, nil
	}
	return nil, ErrNoTarget
}

type (
	DetectRequest struct {
		Sort string `json:"sort,omitempty"` // size | count
	}
	DetectResponse struct {
		URL     string            `json:"url,omitempty"`
		Summary grouping.Summary  `json:"summary"`
		Buckets []grouping.Bucket `json:"buckets"`
	}

	HighlightRequest struct {
		Target
		On   bool   `json:"on"`
		Mode string `json:"mode,omitempty"` // group | focus
	}
	HighlightResponse struct {
		Highlighted int `json:"highlighted"`
	}

	ScrollRequest struct {
		Target
	}
	ScrollResponse struct {
		Found bool `json:"found"`
	}

	JumpRequest struct {
		Target
		Index int `json:"index"`
	}
	JumpResponse struct {
		Matches int `json:"matches"`
		Index   int `json:"index"`
	}

	StylesRequest struct {
		Target
	}
	StylesResponse struct {
		Found bool       `json:"found"`
		Style page.Style `json:"style,omitempty"`
		CSS   string     `json:"css,omitempty"`
	}

	ToggleRequest struct {
		Action string `json:"action"` // on | off | toggle
	}
	InspectorResponse struct {
		Active bool `json:"active"`
	}
	FreezeResponse struct {
		Frozen   bool `json:"frozen"`
		Elements int  `json:"elements"`
	}

	CleanupRequest  struct{}
	CleanupResponse struct {
		Cleaned bool `json:"cleaned"`
	}

	StateRequest struct{}
)

// Set holds one endpoint per operation.
type Set struct {
	Detect    kit.Endpoint
	Highlight kit.Endpoint
	Scroll    kit.Endpoint
	Jump      kit.Endpoint
	Styles    kit.Endpoint
	Inspector kit.Endpoint
	Freeze    kit.Endpoint
	Cleanup   kit.Endpoint
	State     kit.Endpoint
}

// Auditor wraps an endpoint so its calls are recorded.
type Auditor interface {
	Middleware(op string, pageURL func() string) kit.Middleware
}

// Options configures New.
type Options struct {
	Logger *slog.Logger
	// Audit, when set, records every call.
	Audit Auditor
	// PageURL reports the inspected page for responses and audit entries.
	PageURL func() string
}

// New builds the endpoint set over c.
func New(c *controller.Controller, opts Options) Set {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PageURL == nil {
		opts.PageURL = func() string { return "" }
	}
	wrap := func(op string, ep kit.Endpoint) kit.Endpoint {
		mws := []kit.Middleware{publicErrors, kit.WithRequestIDs(idgen.Request), kit.Logging(opts.Logger, op)}
		if opts.Audit != nil {
			mws = append(mws, opts.Audit.Middleware(op, opts.PageURL))
		}
		return kit.Chain(mws...)(ep)
	}

	return Set{
		Detect: wrap("detect", func(ctx context.Context, req any) (any, error) {
			r := req.(*DetectRequest)
			groups, err := c.Detect(ctx, grouping.ParseSortMode(r.Sort))
			if err != nil {
				return nil, err
			}
			buckets := grouping.Buckets(groups)
			if buckets == nil {
				buckets = []grouping.Bucket{}
			}
			return &DetectResponse{URL: opts.PageURL(), Summary: grouping.Summarize(groups), Buckets: buckets}, nil
		}),

		Highlight: wrap("highlight", func(ctx context.Context, req any) (any, error) {
			r := req.(*HighlightRequest)
			var m attribution.Matcher
			if r.On {
				var err error
				if m, err = r.Matcher(); err != nil {
					return nil, err
				}
			}
			n, err := c.Highlight(ctx, m, r.On, highlight.ParseMode(r.Mode))
			if err != nil {
				return nil, err
			}
			return &HighlightResponse{Highlighted: n}, nil
		}),

		Scroll: wrap("scroll", func(ctx context.Context, req any) (any, error) {
			m, err := req.(*ScrollRequest).Matcher()
			if err != nil {
				return nil, err
			}
			ok, err := c.ScrollToFirstMatch(ctx, m)
			if err != nil {
				return nil, err
			}
			return &ScrollResponse{Found: ok}, nil
		}),

		Jump: wrap("jump", func(ctx context.Context, req any) (any, error) {
			r := req.(*JumpRequest)
			m, err := r.Matcher()
			if err != nil {
				return nil, err
			}
			n, err := c.JumpTo(ctx, m, r.Index)
			if err != nil {
				return nil, err
			}
			resp := &JumpResponse{Matches: n}
			if n > 0 {
				resp.Index = ((r.Index % n) + n) % n
			}
			return resp, nil
		}),

		Styles: wrap("styles", func(ctx context.Context, req any) (any, error) {
			m, err := req.(*StylesRequest).Matcher()
			if err != nil {
				return nil, err
			}
			st, err := c.Styles(ctx, m)
			if err != nil {
				return nil, err
			}
			if st == nil {
				return &StylesResponse{}, nil
			}
			return &StylesResponse{Found: true, Style: st, CSS: st.CSSBlock()}, nil
		}),

		Inspector: wrap("inspector", func(ctx context.Context, req any) (any, error) {
			var (
				active bool
				err    error
			)
			switch req.(*ToggleRequest).Action {
			case "on":
				active, err = true, c.EnableInspector(ctx)
			case "off":
				active, err = false, c.DisableInspector(ctx)
			case "toggle", "":
				active, err = c.ToggleInspector(ctx)
			default:
				return nil, ErrBadAction
			}
			if err != nil {
				return nil, err
			}
			return &InspectorResponse{Active: active}, nil
		}),

		Freeze: wrap("freeze", func(ctx context.Context, req any) (any, error) {
			var err error
			switch req.(*ToggleRequest).Action {
			case "on":
				_, err = c.Freeze(ctx)
			case "off":
				err = c.Unfreeze(ctx)
			case "toggle", "":
				_, err = c.ToggleFreeze(ctx)
			default:
				return nil, ErrBadAction
			}
			if err != nil {
				return nil, err
			}
			st, err := c.State(ctx)
			if err != nil {
				return nil, err
			}
			return &FreezeResponse{Frozen: st.Frozen, Elements: st.FrozenCount}, nil
		}),

		Cleanup: wrap("cleanup", func(ctx context.Context, _ any) (any, error) {
			if err := c.ForceCleanup(ctx); err != nil {
				return nil, err
			}
			return &CleanupResponse{Cleaned: true}, nil
		}),

		State: wrap("state", func(ctx context.Context, _ any) (any, error) {
			st, err := c.State(ctx)
			if err != nil {
				return nil, err
			}
			return &st, nil
		}),
	}
}

// publicError keeps the cause for errors.Is and shows UserMessage.
type publicError struct{ err error }

func (e publicError) Error() string { return UserMessage(e.err) }
func (e publicError) Unwrap() error { return e.err }

func publicErrors(next kit.Endpoint) kit.Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		resp, err := next(ctx, req)
		if err != nil {
			return nil, publicError{err}
		}
		return resp, nil
	}
}

// UserMessage turns an endpoint error into the text a consumer shows.
// Page access failures collapse to one fixed message.
func UserMessage(err error) string {
	if errors.Is(err, page.ErrUnavailable) {
		return "cannot access this page"
	}
	return err.Error()
}

// IsBadRequest reports whether err was caused by the request itself.
func IsBadRequest(err error) bool {
	return errors.Is(err, ErrNoTarget) || errors.Is(err, ErrBadAction)
}

// String implements fmt.Stringer for log lines.
func (t Target) String() string {
	switch {
	case t.Signature != nil:
		return t.Signature.Key()
	case len(t.Signatures) > 0:
		return fmt.Sprintf("%d signatures", len(t.Signatures))
	default:
		return "family " + t.FontFamily
	}
}
