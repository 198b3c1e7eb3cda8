package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// neverBlocked resource types decide the typography being inspected.
var neverBlocked = map[string]bool{"stylesheet": true, "font": true}

// blockSet normalises configured names ("images", "Media") to CDP
// resource types, dropping the ones that must load.
func blockSet(types []string) map[string]bool {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		t = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(t)), "s")
		if t == "" || neverBlocked[t] {
			continue
		}
		set[t] = true
	}
	return set
}

func shouldBlock(set map[string]bool, resType proto.NetworkResourceType) bool {
	return set[strings.ToLower(string(resType))]
}

// applyResourceBlocking fails requests of the blocked types.
func applyResourceBlocking(page *rod.Page, set map[string]bool) {
	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if shouldBlock(set, h.Request.Type()) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
}
