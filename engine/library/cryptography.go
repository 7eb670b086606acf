package library

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// PubkeyOnCurve reports whether a hex-64 public key is a valid x-only
// secp256k1 point. Keys that fail this are almost certainly typos, but a
// relay can still be asked about them.
func PubkeyOnCurve(pk Account) bool {
	b, err := hex.DecodeString(NormalizeHex(pk))
	if err != nil || len(b) != 32 {
		return false
	}
	_, err = schnorr.ParsePubKey(b)
	return err == nil
}
