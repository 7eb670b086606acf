package relays

import (
	"net/url"
	"regexp"
	"strings"
)

var schemePrefix = regexp.MustCompile(`(?i)^wss?://`)

// NormalizeRelayURL canonicalizes a relay address: wss:// is prepended when
// the scheme is missing, scheme and host are lowercased, trailing path
// slashes are stripped. Two addresses name the same relay iff their
// normalized forms are byte-equal. Empty input normalizes to "".
func NormalizeRelayURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return ""
	}
	if !schemePrefix.MatchString(u) {
		u = "wss://" + u
	}
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return strings.TrimRight(u, "/")
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host) + strings.TrimRight(parsed.Path, "/")
}

// Uniq normalizes every address and drops empties and duplicates, keeping
// first-seen order. Applying it twice yields the same result as once.
func Uniq(addrs []string) (out []string) {
	seen := make(map[string]bool)
	for _, a := range addrs {
		na := NormalizeRelayURL(a)
		if na == "" || seen[na] {
			continue
		}
		seen[na] = true
		out = append(out, na)
	}
	return
}
