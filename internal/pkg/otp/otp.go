package otp

import (
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Issuer creates one-time codes and validates them later.
type Issuer interface {
	// Issue creates a secret for label and the code valid for it at the given time.
	Issue(label string, at time.Time) (secret, code string, err error)
	// Validate checks whether code matches secret at the given time.
	Validate(code, secret string, at time.Time) bool
}

// TOTP implements Issuer using the Time-based One-Time Password algorithm.
type TOTP struct {
	issuer string
	period uint
	skew   uint
	digits otp.Digits
}

// NewTOTP constructs a TOTP issuer.
//
// If digits is not 6 or 8, it falls back to 6 digits. If period is 0, it uses
// the common 30-second period. A code stays valid for at least one full
// period after it is issued.
func NewTOTP(issuer string, period uint, digits otp.Digits) *TOTP {
	if digits != otp.DigitsSix && digits != otp.DigitsEight {
		digits = otp.DigitsSix
	}

	if period == 0 {
		period = 30
	}

	return &TOTP{
		issuer: issuer,
		period: period,
		skew:   1,
		digits: digits,
	}
}

func (o *TOTP) Issue(label string, at time.Time) (secret, code string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      o.issuer,
		AccountName: label,
		Period:      o.period,
		SecretSize:  20, // RFC 4226/6238 recommendation
		Digits:      o.digits,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", err
	}

	code, err = totp.GenerateCodeCustom(key.Secret(), at, o.opts())
	if err != nil {
		return "", "", err
	}

	return key.Secret(), code, nil
}

func (o *TOTP) Validate(code, secret string, at time.Time) bool {
	rv, err := totp.ValidateCustom(code, secret, at, o.opts())

	return rv && err == nil
}

func (o *TOTP) opts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    o.period,
		Skew:      o.skew,
		Digits:    o.digits,
		Algorithm: otp.AlgorithmSHA1,
	}
}
