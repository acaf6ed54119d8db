package goerror

import (
	"errors"
	"net/http"
	"testing"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "Server", err: NewServer(errors.New("boom")), want: http.StatusInternalServerError},
		{name: "InvalidInput", err: NewInvalidInput(nil, "phone_number", "required"), want: http.StatusUnprocessableEntity},
		{name: "OddPairs", err: NewInvalidInput(nil, "phone_number"), want: http.StatusBadRequest},
		{name: "Validation", err: NewValidation("Please enter your phone number"), want: http.StatusUnprocessableEntity},
		{name: "TooMany", err: NewBusiness("wait", CodeTooManyRequest), want: http.StatusTooManyRequests},
		{name: "Upstream", err: NewUpstream(errors.New("provider"), "Error in sending OTP"), want: http.StatusFailedDependency},
		{name: "Unauthorized", err: NewBusiness("bad code", CodeUnauthorized), want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gerr *Error
			if !errors.As(tt.err, &gerr) {
				t.Fatalf("expected *Error, got %T", tt.err)
			}
			if got := gerr.StatusCode(); got != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, got)
			}
		})
	}
}

func TestUpstreamUnwrap(t *testing.T) {
	// Arrange
	cause := errors.New("provider down")

	// Act
	err := NewUpstream(cause, "Error in sending OTP provider down")

	// Assert
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable")
	}
	var gerr *Error
	errors.As(err, &gerr)
	if gerr.Msg() != "Error in sending OTP provider down" {
		t.Errorf("unexpected message %q", gerr.Msg())
	}
}

func TestWithFields(t *testing.T) {
	t.Run("MergesWithoutMutatingOriginal", func(t *testing.T) {
		// Arrange
		base := NewValidation("Please enter a valid phone number", "phone_number", "invalid")

		// Act
		err := WithFields(base, "action", "reload")

		// Assert
		var got, orig *Error
		errors.As(err, &got)
		errors.As(base, &orig)
		if got.Fields()["action"] != "reload" || got.Fields()["phone_number"] != "invalid" {
			t.Errorf("unexpected fields %v", got.Fields())
		}
		if _, ok := orig.Fields()["action"]; ok {
			t.Errorf("original error must not be mutated")
		}
	})

	t.Run("PlainErrorUnchanged", func(t *testing.T) {
		plain := errors.New("plain")
		if got := WithFields(plain, "a", "b"); got != plain {
			t.Errorf("expected plain error returned as is")
		}
	})
}
