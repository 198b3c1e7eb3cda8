package idgen

import (
	"strings"
	"testing"
)

func TestNanoID_LengthAndAlphabet(t *testing.T) {
	for _, length := range []int{8, 12, 24} {
		id := NanoID(length)()
		if len(id) != length {
			t.Fatalf("NanoID(%d): got length %d", length, len(id))
		}
		for _, c := range id {
			if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'z')) {
				t.Fatalf("NanoID: unexpected character %q in %q", c, id)
			}
		}
	}
}

func TestUUIDv7_ParsesAndSorts(t *testing.T) {
	gen := UUIDv7()
	a, b := gen(), gen()
	if _, err := Parse(a); err != nil {
		t.Fatalf("Parse(%q): %v", a, err)
	}
	if a >= b {
		t.Fatalf("UUIDv7 not time-sortable: %q >= %q", a, b)
	}
}

func TestTypedPrefixes(t *testing.T) {
	cases := map[string]Generator{"cmd_": Command, "req_": Request, "tscl_": Listener}
	for prefix, gen := range cases {
		if id := gen(); !strings.HasPrefix(id, prefix) {
			t.Errorf("got %q, want prefix %q", id, prefix)
		}
	}
}

func TestListener_IsJSIdentifierSafe(t *testing.T) {
	id := Listener()
	for _, c := range id {
		if !(c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z')) {
			t.Fatalf("listener id %q contains %q", id, c)
		}
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse("not-a-uuid"); err == nil {
		t.Fatal("expected error")
	}
}
