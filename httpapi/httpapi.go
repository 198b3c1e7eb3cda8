// Package httpapi serves the typescope operations as a local JSON API.
package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/typescope/controller"
	"github.com/hazyhaar/typescope/endpoints"
	"github.com/hazyhaar/typescope/kit"
	"github.com/hazyhaar/typescope/page"
	"github.com/hazyhaar/typescope/shield"
)

// Status maps endpoint errors to HTTP statuses.
func Status(err error) int {
	switch {
	case endpoints.IsBadRequest(err):
		return http.StatusBadRequest
	case errors.Is(err, page.ErrUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, controller.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// NewRouter returns the API router over set.
func NewRouter(set endpoints.Set, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(logger) {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		kit.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/groups", kit.HTTPHandler(set.Detect, decodeDetect, Status))
	r.Get("/state", kit.HTTPHandler(set.State, kit.DecodeBody[endpoints.StateRequest](), Status))

	r.Post("/highlight", kit.HTTPHandler(set.Highlight, kit.DecodeBody[endpoints.HighlightRequest](), Status))
	r.Post("/scroll", kit.HTTPHandler(set.Scroll, kit.DecodeBody[endpoints.ScrollRequest](), Status))
	r.Post("/jump", kit.HTTPHandler(set.Jump, kit.DecodeBody[endpoints.JumpRequest](), Status))
	r.Post("/styles", kit.HTTPHandler(set.Styles, kit.DecodeBody[endpoints.StylesRequest](), Status))
	r.Post("/inspector", kit.HTTPHandler(set.Inspector, kit.DecodeBody[endpoints.ToggleRequest](), Status))
	r.Post("/freeze", kit.HTTPHandler(set.Freeze, kit.DecodeBody[endpoints.ToggleRequest](), Status))
	r.Post("/cleanup", kit.HTTPHandler(set.Cleanup, kit.DecodeBody[endpoints.CleanupRequest](), Status))
	return r
}

func decodeDetect(r *http.Request) (any, error) {
	return &endpoints.DetectRequest{Sort: r.URL.Query().Get("sort")}, nil
}
