package entity

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrPhoneRequired = errors.New("login: phone number is required")
	ErrPhoneInvalid  = errors.New("login: phone number is invalid")
)

// phonePattern accepts an Indian 10-digit mobile number starting with 7, 8
// or 9, optionally prefixed by +91 (with a dash or space), a trunk 0, or 91.
// The separator takes any Unicode space, including the NBSP phone inputs insert.
var phonePattern = regexp.MustCompile(`^(\+91[-\s\v\p{Zs}\x{2028}\x{2029}\x{FEFF}]?)?[0]?(91)?[789]\d{9}$`)

// ValidatePhoneNumber checks phone as entered. The value is not normalized.
func ValidatePhoneNumber(phone string) error {
	if phone == "" {
		return ErrPhoneRequired
	}
	if !phonePattern.MatchString(phone) {
		return ErrPhoneInvalid
	}
	return nil
}

// MaskPhone keeps a leading '+' and the last four digits.
func MaskPhone(phone string) string {
	digits := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits++
		}
	}

	var b strings.Builder
	b.Grow(len(phone))
	seen := 0
	for _, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			seen++
			if digits-seen < 4 {
				b.WriteRune(r)
			} else {
				b.WriteByte('*')
			}
		case r == '+':
			b.WriteRune(r)
		}
	}
	return b.String()
}
