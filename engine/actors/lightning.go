package actors

import (
	"net/mail"
	"strings"

	"github.com/fiatjaf/go-lnurl"
	"checknostr/engine/library"
)

// LightningEndpoint returns a human readable payment endpoint for a profile:
// the lud16 lightning address when it parses as one, otherwise the URL hidden
// behind the lud06 LNURL.
func LightningEndpoint(p library.Profile) (string, bool) {
	if len(p.Lud16) > 0 {
		addr, err := mail.ParseAddress(p.Lud16)
		if err == nil {
			return strings.Trim(addr.String(), "<>"), true
		}
	}
	if len(p.Lud06) > 0 {
		decoded, err := lnurl.LNURLDecode(p.Lud06)
		if err == nil {
			return decoded, true
		}
	}
	return "", false
}
