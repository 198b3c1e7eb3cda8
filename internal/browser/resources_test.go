package browser

import (
	"testing"

	"github.com/go-rod/rod/lib/proto"
)

func TestBlockSet_KeepsTypography(t *testing.T) {
	set := blockSet([]string{"images", "Media", "fonts", "stylesheets", " "})
	if !set["image"] || !set["media"] {
		t.Errorf("configured types missing: %v", set)
	}
	if set["font"] || set["stylesheet"] || len(set) != 2 {
		t.Errorf("typography resources must load: %v", set)
	}
}

func TestShouldBlock(t *testing.T) {
	set := blockSet([]string{"image"})
	if !shouldBlock(set, proto.NetworkResourceTypeImage) {
		t.Error("image not blocked")
	}
	if shouldBlock(set, proto.NetworkResourceTypeStylesheet) {
		t.Error("stylesheet blocked")
	}
	if shouldBlock(set, proto.NetworkResourceTypeDocument) {
		t.Error("document blocked")
	}
}

func TestConfigDefaults(t *testing.T) {
	m := NewManager(Config{})
	if m.cfg.ViewportWidth != 1280 || m.cfg.ViewportHeight != 800 {
		t.Errorf("viewport: %dx%d", m.cfg.ViewportWidth, m.cfg.ViewportHeight)
	}
	if m.cfg.MemoryLimit != 1<<30 || m.cfg.Logger == nil {
		t.Errorf("defaults: %+v", m.cfg)
	}
	if m.Browser() != nil {
		t.Error("browser before Start")
	}
	m.Close()
	if _, err := m.Start(t.Context()); err != ErrClosed {
		t.Errorf("Start after Close: got %v, want ErrClosed", err)
	}
}
