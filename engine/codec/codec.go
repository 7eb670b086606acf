// Package codec wraps NIP-19 encoding and decoding behind the small surface
// the checker needs: turn user input into raw identifiers, and raw hex into
// every candidate encoded form.
package codec

import (
	"fmt"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
	"checknostr/engine/library"
)

// Decoded is the result of decoding a NIP-19 identifier: the bech32 prefix,
// the primary 32 byte payload as hex, and the pointer payload for prefixes
// that carry one.
type Decoded struct {
	Type    string
	Hex     string
	Event   *nostr.EventPointer
	Profile *nostr.ProfilePointer
	Entity  *nostr.EntityPointer
}

func Decode(input string) (d Decoded, e error) {
	prefix, value, err := nip19.Decode(strings.TrimSpace(input))
	if err != nil {
		return d, err
	}
	d.Type = prefix
	switch v := value.(type) {
	case string:
		d.Hex = strings.ToLower(v)
	case nostr.EventPointer:
		d.Event = &v
		d.Hex = strings.ToLower(v.ID)
	case nostr.ProfilePointer:
		d.Profile = &v
		d.Hex = strings.ToLower(v.PublicKey)
	case nostr.EntityPointer:
		d.Entity = &v
		d.Hex = strings.ToLower(v.PublicKey)
	default:
		return d, fmt.Errorf("cannot extract a raw hex payload from %s", prefix)
	}
	return d, nil
}

type Candidate struct {
	Label string
	Value string
}

// EncodeCandidates returns every NIP-19 form a raw 32 byte hex could
// represent. Encoders that reject the input skip that form.
func EncodeCandidates(input string) ([]Candidate, error) {
	raw := library.NormalizeHex(input)
	if raw == "" {
		return nil, fmt.Errorf("enter a value")
	}
	if !isHex(raw) {
		return nil, fmt.Errorf("invalid hex")
	}
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("hex length must be even")
	}
	if len(raw) != 64 {
		return nil, fmt.Errorf("only 32 byte values have known NIP-19 forms (pubkey, secret key, event id)")
	}
	var out []Candidate
	if npub, err := nip19.EncodePublicKey(raw); err == nil {
		out = append(out, Candidate{"npub (public key)", npub})
	}
	if nsec, err := nip19.EncodePrivateKey(raw); err == nil {
		out = append(out, Candidate{"nsec (secret key)", nsec})
	}
	if note, err := nip19.EncodeNote(raw); err == nil {
		out = append(out, Candidate{"note (event id)", note})
	}
	if nevent, err := nip19.EncodeEvent(raw, nil, ""); err == nil {
		out = append(out, Candidate{"nevent (event, id only)", nevent})
	}
	if nprofile, err := nip19.EncodeProfile(raw, nil); err == nil {
		out = append(out, Candidate{"nprofile (profile, pubkey only)", nprofile})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no known NIP-19 form accepts this value")
	}
	return out, nil
}

// EventID resolves user input to a raw event id. Accepts hex-64, note1 and
// nevent1 forms.
func EventID(input string) (library.Sha256, error) {
	if library.IsHex32(input) {
		return library.NormalizeHex(input), nil
	}
	d, err := Decode(input)
	if err != nil {
		return "", fmt.Errorf("not a hex event id and not decodable: %s", err)
	}
	switch d.Type {
	case "note", "nevent":
		return d.Hex, nil
	}
	return "", fmt.Errorf("%s does not name an event", d.Type)
}

// PublicKey resolves user input to a raw public key. Accepts hex-64, npub1
// and nprofile1 forms.
func PublicKey(input string) (library.Account, error) {
	if library.IsHex32(input) {
		return library.NormalizeHex(input), nil
	}
	d, err := Decode(input)
	if err != nil {
		return "", fmt.Errorf("not a hex public key and not decodable: %s", err)
	}
	switch d.Type {
	case "npub", "nprofile":
		return d.Hex, nil
	}
	return "", fmt.Errorf("%s does not name a public key", d.Type)
}

func isHex(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return len(s) > 0
}
