package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shandysiswandi/otplogin/internal/login/entity"
	"github.com/shandysiswandi/otplogin/internal/pkg/goerror"
	"github.com/shandysiswandi/otplogin/internal/pkg/idempotency"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	msgPhoneRequired = "Please enter your phone number"
	msgPhoneInvalid  = "Please enter a valid phone number"
	msgOTPSent       = "OTP has been sent"
	msgSendPrefix    = "Error in sending OTP "
	msgReload        = "Something went wrong, please try again"
)

type RequestOTPInput struct {
	FlowID         string `validate:"required"`
	PhoneNumber    string
	RecaptchaToken string
	IdempotencyKey string `validate:"omitempty,max=128"`
}

type RequestOTPOutput struct {
	MaskedPhone string
	Cooldown    entity.Cooldown
}

// RequestOTP validates the phone number, solves the flow's bot-mitigation
// challenge and asks the provider to send an OTP. On success the cooldown
// starts and submission is disabled until it ends.
func (s *Usecase) RequestOTP(ctx context.Context, in RequestOTPInput) (*RequestOTPOutput, error) {
	ctx, span := s.startSpan(ctx, "RequestOTP")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	f, err := s.lookup(in.FlowID)
	if err != nil {
		return nil, err
	}

	if in.IdempotencyKey == "" || s.idemp == nil {
		return s.requestOTP(ctx, f, in)
	}

	var (
		out   *RequestOTPOutput
		ucErr error
	)
	key := "login:otp:" + f.id + ":" + in.IdempotencyKey
	err = s.idemp.Exec(ctx, key, func(ctx context.Context) error {
		out, ucErr = s.requestOTP(ctx, f, in)
		return ucErr
	}, idempotency.WithStateTTL(s.idempotencyTTL()), idempotency.WithLockDuration(s.providerTimeout()*2))
	if ucErr != nil {
		return nil, ucErr
	}
	if err != nil {
		return nil, idempotencyError(ctx, "OTP request already submitted", err)
	}

	return out, nil
}

func idempotencyError(ctx context.Context, msg string, err error) error {
	if errors.Is(err, idempotency.ErrAlreadyInProgress) ||
		errors.Is(err, idempotency.ErrAlreadyCompleted) ||
		errors.Is(err, idempotency.ErrAlreadyFailed) {
		return goerror.NewBusiness(msg, goerror.CodeConflict)
	}

	slog.ErrorContext(ctx, "failed to track idempotency key", "error", err)
	return goerror.NewServer(err)
}

func (s *Usecase) requestOTP(ctx context.Context, f *flow, in RequestOTPInput) (*RequestOTPOutput, error) {
	f.mu.Lock()
	if err := s.gateSendLocked(ctx, f, in.PhoneNumber); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	f.sending = true
	f.phone = in.PhoneNumber
	f.touchedAt = s.clock.Now()
	anchorID := f.anchorID
	f.mu.Unlock()

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.providerTimeout())
	defer cancel()

	verifier, err := s.provider.NewVerifier(pctx, anchorID, s.verifierOptions(in.RecaptchaToken))
	var pending entity.PendingChallenge
	if err == nil {
		pending, err = s.provider.SendOTP(pctx, in.PhoneNumber, verifier)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.sending = false
	if f.closed {
		if verifier != nil {
			verifier.Clear()
		}
		return nil, errFlowNotFound()
	}

	evt := OTPEvent{FlowID: f.id, PhoneNumber: in.PhoneNumber, MaskedPhone: entity.MaskPhone(in.PhoneNumber), OccurredAt: s.clock.Now()}

	if errors.Is(err, entity.ErrWidgetAlreadyRendered) {
		slog.WarnContext(ctx, "bot-mitigation widget already rendered, reloading flow", "flow_id", f.id)
		s.reloadLocked(f)
		f.notifyLocked(entity.LevelError, msgReload)
		s.countRequest(ctx, "reload")
		return nil, goerror.WithFields(goerror.NewBusiness(msgReload, goerror.CodeConflict), "action", "reload")
	}

	if verifier != nil {
		// an unsolved or failed verifier stays attached to the anchor
		f.verifier = verifier
	}

	if err != nil {
		msg := msgSendPrefix + err.Error()
		slog.ErrorContext(ctx, "failed to send otp", "flow_id", f.id, "phone_number", in.PhoneNumber, "error", err)
		f.notifyLocked(entity.LevelError, msg)
		s.countRequest(ctx, "failed")

		evt.Reason = entity.ShortErrorCode(err)
		s.publish(ctx, f, "login.publish.otp_send_failed", evt, s.repoMessaging.PublishOTPSendFailed)
		return nil, goerror.NewUpstream(err, msg)
	}

	f.pending = pending
	f.notifyLocked(entity.LevelSuccess, msgOTPSent)
	f.emitLocked(entity.SubmitEvent(false))
	s.startCooldownLocked(f)
	s.countRequest(ctx, "sent")
	s.publish(ctx, f, "login.publish.otp_requested", evt, s.repoMessaging.PublishOTPRequested)

	slog.InfoContext(ctx, "otp sent", "flow_id", f.id, "phone_number", in.PhoneNumber)

	return &RequestOTPOutput{MaskedPhone: evt.MaskedPhone, Cooldown: f.cooldown}, nil
}

// gateSendLocked rejects a submission while the flow cannot send: closed,
// already sending, cooling down, or holding a malformed phone number.
func (s *Usecase) gateSendLocked(ctx context.Context, f *flow, phone string) error {
	if f.closed {
		return errFlowNotFound()
	}
	if f.sending {
		return goerror.NewBusiness("OTP request is already in progress", goerror.CodeConflict)
	}
	if !f.cooldown.ResendAllowed {
		s.countRequest(ctx, "cooldown")
		return goerror.NewBusiness(
			fmt.Sprintf("Please wait %d seconds before requesting a new OTP", f.cooldown.Remaining),
			goerror.CodeTooManyRequest,
		)
	}

	if err := entity.ValidatePhoneNumber(phone); err != nil {
		msg := msgPhoneInvalid
		if errors.Is(err, entity.ErrPhoneRequired) {
			msg = msgPhoneRequired
		}
		f.notifyLocked(entity.LevelError, msg)
		s.countRequest(ctx, "invalid")
		return goerror.NewValidation(msg, "phone_number", msg)
	}

	return nil
}

func (s *Usecase) countRequest(ctx context.Context, result string) {
	if s.otpRequests != nil {
		s.otpRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	}
}
