package hash

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HMACSHA256 is a Hash keyed with a server-side secret. The same input and
// secret always give the same hex digest.
type HMACSHA256 struct {
	secret []byte
}

func NewHMACSHA256(secret string) *HMACSHA256 {
	return &HMACSHA256{secret: []byte(secret)}
}

// Hash returns the hex-encoded HMAC-SHA256 of str.
func (s *HMACSHA256) Hash(str string) ([]byte, error) {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(str))
	sum := mac.Sum(nil)

	out := make([]byte, hex.EncodedLen(len(sum)))
	hex.Encode(out, sum)
	return out, nil
}

// Verify reports whether hashed is the digest of str, in constant time.
func (s *HMACSHA256) Verify(hashed, str string) bool {
	expected, _ := s.Hash(str)
	return subtle.ConstantTimeCompare([]byte(hashed), expected) == 1
}
