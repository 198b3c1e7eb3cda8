// Package pageurl checks the page locations typescope is asked to open.
package pageurl

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
)

// MaxFileSize caps a local HTML file read by ReadFile.
const MaxFileSize int64 = 16 << 20

var (
	ErrUnsafeScheme = errors.New("pageurl: only http, https and file URLs can be opened")
	ErrNoHost       = errors.New("pageurl: URL has no host")
	ErrTooLarge     = errors.New("pageurl: file too large")
)

// Normalize parses raw, defaults a bare host to https and rejects every
// scheme Chrome would run or download instead of render.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrNoHost
	}
	if !strings.Contains(raw, "://") && !strings.HasPrefix(strings.ToLower(raw), "javascript:") && !strings.HasPrefix(strings.ToLower(raw), "data:") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("pageurl: invalid URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if u.Hostname() == "" {
			return "", ErrNoHost
		}
	case "file":
		if u.Path == "" {
			return "", fmt.Errorf("pageurl: file URL has no path")
		}
	default:
		return "", ErrUnsafeScheme
	}
	return u.String(), nil
}

// ReadFile reads a local page, refusing files over MaxFileSize.
func ReadFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return limitedReadAll(f, MaxFileSize)
}

func limitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: over %d bytes", ErrTooLarge, maxBytes)
	}
	return data, nil
}
