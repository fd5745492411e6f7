package domain

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Fingerprint returns the cache key for a comment: the hex MD5 digest of
// its NFC-normalised, whitespace-trimmed UTF-8 form.
func Fingerprint(text string) string {
	normalized := norm.NFC.String(strings.TrimSpace(text))
	sum := md5.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// RawFingerprint is the hex MD5 digest of text exactly as given. Caches keyed
// by raw cell text match it when the text was not already normalised.
func RawFingerprint(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}
