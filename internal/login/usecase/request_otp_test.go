package usecase

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"testing"
	"time"

	"github.com/shandysiswandi/otplogin/internal/login/entity"
	"github.com/shandysiswandi/otplogin/internal/pkg/idempotency"
)

func TestRequestOTP_InvalidPhoneNeverReachesProvider(t *testing.T) {
	tests := []struct {
		name  string
		phone string
		msg   string
	}{
		{name: "empty", phone: "", msg: "Please enter your phone number"},
		{name: "too short", phone: "12345", msg: "Please enter a valid phone number"},
		{name: "letters", phone: "phone", msg: "Please enter a valid phone number"},
		{name: "foreign number", phone: "+14155552671", msg: "Please enter a valid phone number"},
		{name: "landline prefix", phone: "6876543210", msg: "Please enter a valid phone number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			h := newHarness(t, "modules: {}")
			flowID := h.start(t)
			events := h.stream(t, flowID)

			// Act
			out, err := h.uc.RequestOTP(context.Background(), RequestOTPInput{FlowID: flowID, PhoneNumber: tt.phone, RecaptchaToken: "tok"})

			// Assert
			if out != nil {
				t.Fatalf("expected no output, got %+v", out)
			}
			gerr := asGoError(t, err)
			if gerr.StatusCode() != http.StatusUnprocessableEntity || gerr.Msg() != tt.msg {
				t.Fatalf("unexpected error: %d %q", gerr.StatusCode(), gerr.Msg())
			}
			if gerr.Fields()["phone_number"] != tt.msg {
				t.Errorf("expected phone_number field, got %v", gerr.Fields())
			}
			if calls := h.provider.sendCalls(); calls != 0 {
				t.Fatalf("provider called %d times", calls)
			}
			if v := h.provider.lastVerifier(); v != nil {
				t.Fatalf("verifier created for invalid phone")
			}
			expectNotification(t, events, entity.LevelError, tt.msg)
		})
	}
}

func TestRequestOTP_ValidPhoneCallsProviderOnce(t *testing.T) {
	phones := []string{"+919876543210", "9876543210", "+91-8876543210", "+91 7876543210", "08876543210", "919876543210"}

	for _, phone := range phones {
		t.Run(phone, func(t *testing.T) {
			h := newHarness(t, "modules: {}")
			flowID := h.start(t)

			out, err := h.uc.RequestOTP(context.Background(), RequestOTPInput{FlowID: flowID, PhoneNumber: phone, RecaptchaToken: "tok"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if calls := h.provider.sendCalls(); calls != 1 {
				t.Fatalf("expected exactly one provider call, got %d", calls)
			}
			if out.Cooldown != (entity.Cooldown{Remaining: 60, ResendAllowed: false}) {
				t.Fatalf("unexpected cooldown: %+v", out.Cooldown)
			}
			if h.provider.phones[0] != phone {
				t.Fatalf("phone not passed verbatim: %q", h.provider.phones[0])
			}
		})
	}
}

func TestRequestOTP_SuccessStartsCountdown(t *testing.T) {
	// Arrange
	h := newHarness(t, "modules: {}")
	flowID := h.start(t)
	events := h.stream(t, flowID)

	// Act
	_, err := h.uc.RequestOTP(context.Background(), RequestOTPInput{FlowID: flowID, PhoneNumber: "+919876543210", RecaptchaToken: "tok"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Assert
	expectNotification(t, events, entity.LevelSuccess, "OTP has been sent")
	expectSubmit(t, events, false)
	expectCountdown(t, events, entity.Cooldown{Remaining: 60})

	v := h.provider.lastVerifier()
	if v.anchorID != flowID+"/sign-in-button" {
		t.Errorf("unexpected anchor: %q", v.anchorID)
	}
	if v.opts != (entity.VerifierOptions{Size: "invisible", DefaultRegion: "IN", Response: "tok"}) {
		t.Errorf("unexpected verifier options: %+v", v.opts)
	}

	tk := h.clock.nextTicker(t)
	for remaining := 59; remaining >= 1; remaining-- {
		tk.ch <- time.Time{}
		expectCountdown(t, events, entity.Cooldown{Remaining: remaining})

		state, err := h.uc.FlowState(context.Background(), FlowStateInput{FlowID: flowID})
		if err != nil {
			t.Fatalf("FlowState: %v", err)
		}
		if state.SubmitEnabled {
			t.Fatalf("submit enabled at %d", remaining)
		}
	}
	if v.resets.Load() != 0 || v.clears.Load() != 0 {
		t.Fatalf("verifier touched before the countdown ended")
	}

	tk.ch <- time.Time{}
	expectCountdown(t, events, entity.Cooldown{Remaining: 0, ResendAllowed: true})
	expectSubmit(t, events, true)

	eventually(t, tk.stopped.Load)
	if v.resets.Load() != 1 || v.clears.Load() != 1 {
		t.Fatalf("expected one reset and one clear, got %d/%d", v.resets.Load(), v.clears.Load())
	}

	state, err := h.uc.FlowState(context.Background(), FlowStateInput{FlowID: flowID})
	if err != nil {
		t.Fatalf("FlowState: %v", err)
	}
	if !state.SubmitEnabled || !state.HasPendingChallenge || state.MaskedPhone != "+********3210" {
		t.Fatalf("unexpected final state: %+v", state)
	}

	if err := h.bg.Wait(); err != nil {
		t.Fatalf("background tasks: %v", err)
	}
	if got := h.msg.names(); !slices.Equal(got, []string{"requested"}) {
		t.Fatalf("unexpected published events: %v", got)
	}
}

func TestRequestOTP_RejectedWhileCoolingDown(t *testing.T) {
	h := newHarness(t, "modules: {}")
	flowID := h.start(t)
	in := RequestOTPInput{FlowID: flowID, PhoneNumber: "9876543210", RecaptchaToken: "tok"}

	if _, err := h.uc.RequestOTP(context.Background(), in); err != nil {
		t.Fatalf("first send: %v", err)
	}

	_, err := h.uc.RequestOTP(context.Background(), in)

	gerr := asGoError(t, err)
	if gerr.StatusCode() != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", gerr.StatusCode())
	}
	if gerr.Msg() != "Please wait 60 seconds before requesting a new OTP" {
		t.Fatalf("unexpected message: %q", gerr.Msg())
	}
	if calls := h.provider.sendCalls(); calls != 1 {
		t.Fatalf("expected one provider call, got %d", calls)
	}
}

func TestRequestOTP_SecondSendReplacesPending(t *testing.T) {
	// Arrange
	h := newHarness(t, "modules:\n  login:\n    cooldown_seconds: 1\n")
	flowID := h.start(t)
	events := h.stream(t, flowID)
	in := RequestOTPInput{FlowID: flowID, PhoneNumber: "+919876543210", RecaptchaToken: "tok"}

	if _, err := h.uc.RequestOTP(context.Background(), in); err != nil {
		t.Fatalf("first send: %v", err)
	}
	first := h.provider.lastPending()
	expectNotification(t, events, entity.LevelSuccess, "OTP has been sent")
	expectSubmit(t, events, false)
	expectCountdown(t, events, entity.Cooldown{Remaining: 1})

	h.clock.nextTicker(t).ch <- time.Time{}
	expectCountdown(t, events, entity.Cooldown{Remaining: 0, ResendAllowed: true})
	expectSubmit(t, events, true)

	// Act
	if _, err := h.uc.RequestOTP(context.Background(), in); err != nil {
		t.Fatalf("second send: %v", err)
	}
	second := h.provider.lastPending()
	out, err := h.uc.VerifyOTP(context.Background(), VerifyOTPInput{FlowID: flowID, Code: "123456"})

	// Assert
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if first == second {
		t.Fatal("expected a new pending challenge")
	}
	if first.confirms.Load() != 0 || second.confirms.Load() != 1 {
		t.Fatalf("expected only the latest challenge confirmed, got %d/%d", first.confirms.Load(), second.confirms.Load())
	}
	if out.User.UID != "uid-2" {
		t.Fatalf("unexpected user: %+v", out.User)
	}
}

func TestRequestOTP_ProviderFailure(t *testing.T) {
	h := newHarness(t, "modules: {}")
	h.provider.sendErrs = []error{entity.NewProviderError("auth/too-many-requests", "", nil)}
	flowID := h.start(t)
	events := h.stream(t, flowID)

	_, err := h.uc.RequestOTP(context.Background(), RequestOTPInput{FlowID: flowID, PhoneNumber: "9876543210", RecaptchaToken: "tok"})

	gerr := asGoError(t, err)
	want := "Error in sending OTP Firebase: Error (auth/too-many-requests)."
	if gerr.StatusCode() != http.StatusFailedDependency || gerr.Msg() != want {
		t.Fatalf("unexpected error: %d %q", gerr.StatusCode(), gerr.Msg())
	}
	var pe *entity.ProviderError
	if !errors.As(err, &pe) {
		t.Fatal("expected provider error to stay reachable")
	}
	expectNotification(t, events, entity.LevelError, want)

	state, _ := h.uc.FlowState(context.Background(), FlowStateInput{FlowID: flowID})
	if !state.SubmitEnabled || state.HasPendingChallenge {
		t.Fatalf("unexpected state after failure: %+v", state)
	}
	if v := h.provider.lastVerifier(); v.clears.Load() != 0 {
		t.Fatal("failed verifier must stay attached")
	}
}

func TestRequestOTP_WidgetAlreadyRenderedReloadsFlow(t *testing.T) {
	// Arrange
	h := newHarness(t, "modules: {}")
	h.provider.sendErrs = []error{entity.ErrWidgetAlreadyRendered}
	flowID := h.start(t)
	events := h.stream(t, flowID)

	// Act
	_, err := h.uc.RequestOTP(context.Background(), RequestOTPInput{FlowID: flowID, PhoneNumber: "9876543210", RecaptchaToken: "tok"})

	// Assert
	gerr := asGoError(t, err)
	if gerr.StatusCode() != http.StatusConflict || gerr.Fields()["action"] != "reload" {
		t.Fatalf("unexpected error: %d %v", gerr.StatusCode(), gerr.Fields())
	}
	if evt := nextEvent(t, events); evt.Type != entity.EventReload {
		t.Fatalf("expected reload event, got %+v", evt)
	}
	expectNotification(t, events, entity.LevelError, "Something went wrong, please try again")

	if !slices.Contains(h.provider.released, flowID+"/sign-in-button") {
		t.Fatalf("anchor not released: %v", h.provider.released)
	}
	state, _ := h.uc.FlowState(context.Background(), FlowStateInput{FlowID: flowID})
	if state.MaskedPhone != "" || state.HasPendingChallenge || !state.SubmitEnabled {
		t.Fatalf("flow not reset: %+v", state)
	}
}

func TestRequestOTP_Idempotency(t *testing.T) {
	t.Run("DuplicateRejected", func(t *testing.T) {
		h := newHarness(t, "modules: {}")
		h.uc.idemp = &fakeIdempotency{err: idempotency.ErrAlreadyCompleted}
		flowID := h.start(t)

		_, err := h.uc.RequestOTP(context.Background(), RequestOTPInput{
			FlowID: flowID, PhoneNumber: "9876543210", RecaptchaToken: "tok", IdempotencyKey: "k-1",
		})

		gerr := asGoError(t, err)
		if gerr.StatusCode() != http.StatusConflict || gerr.Msg() != "OTP request already submitted" {
			t.Fatalf("unexpected error: %d %q", gerr.StatusCode(), gerr.Msg())
		}
		if h.provider.sendCalls() != 0 {
			t.Fatal("provider must not be called for a duplicate")
		}
	})

	t.Run("FirstSubmissionRuns", func(t *testing.T) {
		h := newHarness(t, "modules: {}")
		h.uc.idemp = &fakeIdempotency{}
		flowID := h.start(t)

		_, err := h.uc.RequestOTP(context.Background(), RequestOTPInput{
			FlowID: flowID, PhoneNumber: "", IdempotencyKey: "k-1",
		})

		if asGoError(t, err).StatusCode() != http.StatusUnprocessableEntity {
			t.Fatalf("expected the usecase error to pass through, got %v", err)
		}
	})
}

func TestRequestOTP_UnknownFlow(t *testing.T) {
	h := newHarness(t, "modules: {}")

	_, err := h.uc.RequestOTP(context.Background(), RequestOTPInput{FlowID: "missing", PhoneNumber: "9876543210"})

	if asGoError(t, err).StatusCode() != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}
