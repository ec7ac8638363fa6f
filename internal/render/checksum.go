package render

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/text/unicode/norm"
)

// Checksum returns the hex SHA-256 of the NFC-normalized effective script
// text. It is computed after rendering, so two runs producing identical
// effective SQL hash identically regardless of the raw template they came
// from, and a changed variable value shows up as a content change.
//
// NFC normalization keeps the hash stable across unicode encodings of the
// same text (composed vs decomposed accents, for example). The flip side:
// an edit that only changes the normalization form of a repeatable script
// is not a content change and does not trigger a re-run.
func Checksum(rendered string) string {
	sum := sha256.Sum256(norm.NFC.Bytes([]byte(rendered)))
	return hex.EncodeToString(sum[:])
}
