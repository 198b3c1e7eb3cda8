// Package idgen generates the identifiers typescope hands out: command IDs
// for the audit trail, request IDs on the HTTP and MCP surfaces, and
// listener session IDs on the page side.
//
// Constructors take a Generator so tests can pin IDs.
package idgen

import (
	"crypto/rand"
	"fmt"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator of RFC 9562 UUID v7 strings (time-sortable).
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// NanoID returns a Generator of base-36 IDs of the given length. Short
// enough to embed in a JS binding name.
func NanoID(length int) Generator {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	return func() string {
		buf := make([]byte, length)
		if _, err := rand.Read(buf); err != nil {
			panic("idgen: crypto/rand failed: " + err.Error())
		}
		for i, c := range buf {
			buf[i] = alphabet[int(c)%len(alphabet)]
		}
		return string(buf)
	}
}

// Prefixed prepends prefix to every ID of gen.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is UUIDv7.
var Default Generator = UUIDv7()

// Typed generators.
var (
	Command  = Prefixed("cmd_", Default)
	Request  = Prefixed("req_", Default)
	Listener = Prefixed("tscl_", NanoID(12))
)

// New produces an ID using the Default generator.
func New() string {
	return Default()
}

// Parse validates a UUID string.
func Parse(s string) (string, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("idgen: invalid UUID: %w", err)
	}
	return u.String(), nil
}
