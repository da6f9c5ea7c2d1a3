// Package fingerprint derives short display identifiers from image bytes.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Prefix is prepended to every product identifier.
const Prefix = "VRC-"

// Compute returns the product identifier for data: Prefix followed by the
// leading 64 bits of the SHA-256 digest as 16 uppercase hex characters.
//
// The identifier is a display label. Truncation to 64 bits makes collisions
// plausible across billions of images, so it must not be used as a credential.
func Compute(data []byte) string {
	sum := sha256.Sum256(data)
	return Prefix + strings.ToUpper(hex.EncodeToString(sum[:8]))
}

// Digest returns the full hex-encoded SHA-256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
