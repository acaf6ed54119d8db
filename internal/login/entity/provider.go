package entity

import (
	"context"
	"errors"
	"strings"
)

// ErrWidgetAlreadyRendered is reported when a bot-mitigation widget is
// rendered into an anchor that still holds an uncleared one.
var ErrWidgetAlreadyRendered = errors.New("reCAPTCHA has already been rendered in this element")

// Verifier is the bot-mitigation handle attached to a flow's anchor.
type Verifier interface {
	// Verify renders the challenge and resolves to the solved response.
	Verify(ctx context.Context) (string, error)
	// Reset returns the widget to the unsolved state.
	Reset()
	// Clear destroys the verifier and frees its anchor.
	Clear()
}

// PendingChallenge is an outstanding OTP awaiting confirmation.
type PendingChallenge interface {
	Confirm(ctx context.Context, code string) (*User, error)
}

// VerifierOptions configure a Verifier.
type VerifierOptions struct {
	Size          string
	DefaultRegion string
	// Response is the solved challenge token supplied by the client.
	Response string
}

// User is the provider's signed-in user. Tokens are passed through as issued.
type User struct {
	UID          string `json:"uid"`
	PhoneNumber  string `json:"phone_number"`
	IsNewUser    bool   `json:"is_new_user"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// ProviderError is a structured identity provider failure. Code has the
// form "auth/<short-code>".
type ProviderError struct {
	Code    string
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "Firebase: Error (" + e.Code + ")."
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ShortCode returns the text after the last '/' of Code.
func (e *ProviderError) ShortCode() string {
	return e.Code[strings.LastIndex(e.Code, "/")+1:]
}

// NewProviderError builds a ProviderError with a provider-style message.
// An empty detail yields "Firebase: Error (code)."
func NewProviderError(code, detail string, err error) *ProviderError {
	msg := "Firebase: Error (" + code + ")."
	if detail != "" {
		msg = "Firebase: " + detail + " (" + code + ")."
	}
	return &ProviderError{Code: code, Message: msg, Err: err}
}

// ShortErrorCode extracts the short provider code from err, or
// "internal-error" when err carries none.
func ShortErrorCode(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Code != "" {
		return pe.ShortCode()
	}
	return "internal-error"
}
