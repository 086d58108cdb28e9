// Package roomkey generates and validates the short shareable keys that
// identify rooms.
package roomkey

import (
	"crypto/rand"
	"regexp"
	"strings"
)

// Length is the fixed room-key length.
const Length = 6

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// maxRandByte is the largest multiple of len(alphabet) that fits in a byte.
// Bytes at or above it are rejected so every glyph is equally likely; a plain
// modulo would skew the distribution toward the front of the alphabet.
const maxRandByte = byte(256 - 256%len(alphabet))

var keyPattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// Generate returns a fresh 6-character uppercase alphanumeric room key.
func Generate() string {
	key := make([]byte, 0, Length)
	buf := make([]byte, Length)
	for len(key) < Length {
		if _, err := rand.Read(buf); err != nil {
			// crypto/rand only fails when the platform entropy source is
			// broken; there is no useful recovery at this layer.
			panic(err)
		}
		for _, b := range buf {
			if b >= maxRandByte || len(key) == Length {
				continue
			}
			key = append(key, alphabet[int(b)%len(alphabet)])
		}
	}
	return string(key)
}

// Validate reports whether the key is a well-formed room key. Keys are
// expected to be normalized before validation.
func Validate(key string) bool {
	return keyPattern.MatchString(key)
}

// Normalize upper-cases and trims a user-supplied key.
func Normalize(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}
