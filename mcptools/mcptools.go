// Package mcptools registers the typescope tools on an MCP server.
package mcptools

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/typescope/endpoints"
	"github.com/hazyhaar/typescope/kit"
)

// Register adds every typescope tool to srv.
func Register(srv *mcp.Server, set endpoints.Set) {
	for _, t := range tools(set) {
		kit.RegisterMCPTool(srv, t.tool, t.endpoint, t.decode)
	}
}

type tool struct {
	tool     *mcp.Tool
	endpoint kit.Endpoint
	decode   func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

var signatureSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"tag":            map[string]any{"type": "string"},
		"font_family":    map[string]any{"type": "string"},
		"font_size":      map[string]any{"type": "string"},
		"font_weight":    map[string]any{"type": "string"},
		"font_style":     map[string]any{"type": "string"},
		"line_height":    map[string]any{"type": "string"},
		"text_transform": map[string]any{"type": "string"},
		"letter_spacing": map[string]any{"type": "string"},
	},
}

// targetProps describes endpoints.Target, merged with extra.
func targetProps(extra map[string]any) map[string]any {
	p := map[string]any{
		"signature":   map[string]any{"description": "One exact style signature, as returned by typescope_detect", "allOf": []any{signatureSchema}},
		"signatures":  map[string]any{"type": "array", "items": signatureSchema, "description": "Any of these signatures"},
		"font_family": map[string]any{"type": "string", "description": "Every text run in this font-family list"},
		"tags":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Restrict font_family to these tags"},
	}
	for k, v := range extra {
		p[k] = v
	}
	return p
}

var actionProp = map[string]any{"type": "string", "enum": []any{"on", "off", "toggle"}, "description": "Default toggle"}

func tools(set endpoints.Set) []tool {
	return []tool{
		{
			tool: &mcp.Tool{
				Name:        "typescope_detect",
				Description: "List the typography of the current page: style groups bucketed into headings, content, interactive and other.",
				InputSchema: inputSchema(map[string]any{
					"sort": map[string]any{"type": "string", "enum": []any{"size", "count"}, "description": "Order within a bucket (default size)"},
				}, nil),
			},
			endpoint: set.Detect,
			decode:   kit.DecodeJSON[endpoints.DetectRequest](),
		},
		{
			tool: &mcp.Tool{
				Name:        "typescope_highlight",
				Description: "Outline every element of a style group on the page, or clear the outlines with on=false.",
				InputSchema: inputSchema(targetProps(map[string]any{
					"on":   map[string]any{"type": "boolean"},
					"mode": map[string]any{"type": "string", "enum": []any{"group", "focus"}},
				}), []string{"on"}),
			},
			endpoint: set.Highlight,
			decode:   kit.DecodeJSON[endpoints.HighlightRequest](),
		},
		{
			tool: &mcp.Tool{
				Name:        "typescope_scroll",
				Description: "Scroll to the first element of a style group.",
				InputSchema: inputSchema(targetProps(nil), nil),
			},
			endpoint: set.Scroll,
			decode:   kit.DecodeJSON[endpoints.ScrollRequest](),
		},
		{
			tool: &mcp.Tool{
				Name:        "typescope_jump",
				Description: "Focus the index-th element of a style group. The index wraps around.",
				InputSchema: inputSchema(targetProps(map[string]any{
					"index": map[string]any{"type": "integer"},
				}), nil),
			},
			endpoint: set.Jump,
			decode:   kit.DecodeJSON[endpoints.JumpRequest](),
		},
		{
			tool: &mcp.Tool{
				Name:        "typescope_styles",
				Description: "Return the computed text style of the first element of a style group, with a ready-to-paste CSS block.",
				InputSchema: inputSchema(targetProps(nil), nil),
			},
			endpoint: set.Styles,
			decode:   kit.DecodeJSON[endpoints.StylesRequest](),
		},
		{
			tool: &mcp.Tool{
				Name:        "typescope_inspector",
				Description: "Turn the hover inspector on or off. While on, hovering shows a tooltip and clicking copies the CSS.",
				InputSchema: inputSchema(map[string]any{"action": actionProp}, nil),
			},
			endpoint: set.Inspector,
			decode:   kit.DecodeJSON[endpoints.ToggleRequest](),
		},
		{
			tool: &mcp.Tool{
				Name:        "typescope_freeze",
				Description: "Keep hover-revealed UI such as menus on screen after the pointer leaves.",
				InputSchema: inputSchema(map[string]any{"action": actionProp}, nil),
			},
			endpoint: set.Freeze,
			decode:   kit.DecodeJSON[endpoints.ToggleRequest](),
		},
		{
			tool: &mcp.Tool{
				Name:        "typescope_cleanup",
				Description: "Remove every overlay, marker and listener typescope added to the page.",
				InputSchema: inputSchema(map[string]any{}, nil),
			},
			endpoint: set.Cleanup,
			decode:   kit.DecodeJSON[endpoints.CleanupRequest](),
		},
	}
}
