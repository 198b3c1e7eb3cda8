// Package clipboard writes inspector copies to the system clipboard.
package clipboard

import (
	"errors"
	"fmt"
	"sync"

	"github.com/atotto/clipboard"
)

// ErrUnsupported is returned when no clipboard utility is available
// (headless servers without xclip, xsel or wl-copy).
var ErrUnsupported = errors.New("clipboard: unsupported on this system")

// System is the OS clipboard.
type System struct{}

// WriteAll implements inspector.Clipboard.
func (System) WriteAll(text string) error {
	if clipboard.Unsupported {
		return ErrUnsupported
	}
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("clipboard: write: %w", err)
	}
	return nil
}

// Memory keeps the last copy in memory. Servers use it so the last copied
// block can be reported through the API instead of a desktop clipboard.
type Memory struct {
	mu   sync.Mutex
	text string
}

// WriteAll implements inspector.Clipboard.
func (m *Memory) WriteAll(text string) error {
	m.mu.Lock()
	m.text = text
	m.mu.Unlock()
	return nil
}

// Text returns the last copy.
func (m *Memory) Text() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text
}

// Tee writes to every clipboard and returns the first error after trying
// all of them.
type Tee []interface{ WriteAll(string) error }

// WriteAll implements inspector.Clipboard.
func (t Tee) WriteAll(text string) error {
	var errs []error
	for _, c := range t {
		if err := c.WriteAll(text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
