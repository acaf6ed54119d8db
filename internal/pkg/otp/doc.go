// Package otp issues numeric one-time codes bound to a fresh random secret,
// using TOTP (RFC 6238) so a code can be checked later from the secret alone.
package otp
