package library

import (
	"os"
	"strings"
)

// NormalizeHex trims, lowercases and strips an optional 0x prefix.
func NormalizeHex(s string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
}

// IsHex32 reports whether the input normalizes to exactly 32 bytes of hex,
// the size of event ids and x-only public keys.
func IsHex32(s string) bool {
	v := NormalizeHex(s)
	if len(v) != 64 {
		return false
	}
	for _, c := range v {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Touch creates the file if it does not exist.
func Touch(path string) {
	f, err := os.OpenFile(path, os.O_CREATE, 0644)
	if err != nil {
		LogCLI(err.Error(), 2)
		return
	}
	f.Close()
}
