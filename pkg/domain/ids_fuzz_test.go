package domain

import (
	"testing"
	"unicode/utf8"
)

// FuzzParseAccountID checks that parsing never panics and that every accepted
// value round-trips and respects the length bound.
func FuzzParseAccountID(f *testing.F) {
	f.Add("")
	f.Add("alice")
	f.Add("'; DROP TABLE accounts;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))
	f.Add("alice\x00suffix")

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseAccountID(input)
		if err != nil {
			return
		}
		if !utf8.ValidString(string(id)) {
			t.Errorf("accepted invalid UTF-8: %q", input)
		}
		if len(id) == 0 || len(id) > MaxAccountIDLength {
			t.Errorf("accepted out-of-range length %d", len(id))
		}
		again, err := ParseAccountID(id.String())
		if err != nil || again != id {
			t.Errorf("round trip failed for %q", input)
		}
	})
}
