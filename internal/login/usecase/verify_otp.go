package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shandysiswandi/otplogin/internal/login/entity"
	"github.com/shandysiswandi/otplogin/internal/pkg/goerror"
	"github.com/shandysiswandi/otplogin/internal/pkg/idempotency"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	msgNoChallenge  = "Please request an OTP first"
	msgVerified     = "User verified"
	msgVerifyPrefix = "Error in verifying OTP "
)

type VerifyOTPInput struct {
	FlowID         string `validate:"required"`
	Code           string `validate:"required,otp"`
	IdempotencyKey string `validate:"omitempty,max=128"`
}

type VerifyOTPOutput struct {
	User     entity.User
	Redirect string
}

// VerifyOTP confirms code against the flow's pending challenge. Success
// closes the flow and points the client at the post-login route; failure
// reports the provider's short error code and keeps the challenge.
func (s *Usecase) VerifyOTP(ctx context.Context, in VerifyOTPInput) (*VerifyOTPOutput, error) {
	ctx, span := s.startSpan(ctx, "VerifyOTP")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	f, err := s.lookup(in.FlowID)
	if err != nil {
		return nil, err
	}

	if in.IdempotencyKey == "" || s.idemp == nil {
		return s.verifyOTP(ctx, f, in)
	}

	var (
		out   *VerifyOTPOutput
		ucErr error
	)
	key := "login:verify:" + f.id + ":" + in.IdempotencyKey
	err = s.idemp.Exec(ctx, key, func(ctx context.Context) error {
		out, ucErr = s.verifyOTP(ctx, f, in)
		return ucErr
	}, idempotency.WithStateTTL(s.idempotencyTTL()), idempotency.WithLockDuration(s.providerTimeout()*2))
	if ucErr != nil {
		return nil, ucErr
	}
	if err != nil {
		return nil, idempotencyError(ctx, "OTP verification already submitted", err)
	}

	return out, nil
}

func (s *Usecase) verifyOTP(ctx context.Context, f *flow, in VerifyOTPInput) (*VerifyOTPOutput, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, errFlowNotFound()
	}
	if f.verifying {
		f.mu.Unlock()
		return nil, goerror.NewBusiness("OTP verification is already in progress", goerror.CodeConflict)
	}
	pending := f.pending
	if pending == nil {
		f.notifyLocked(entity.LevelError, msgNoChallenge)
		f.mu.Unlock()
		return nil, goerror.NewBusiness(msgNoChallenge, goerror.CodeConflict)
	}
	f.verifying = true
	f.touchedAt = s.clock.Now()
	f.mu.Unlock()

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.providerTimeout())
	user, err := pending.Confirm(pctx, in.Code)
	cancel()
	if err == nil && user == nil {
		err = errors.New("login: provider returned no user")
	}

	f.mu.Lock()
	f.verifying = false
	if f.closed {
		f.mu.Unlock()
		return nil, errFlowNotFound()
	}

	evt := OTPEvent{FlowID: f.id, PhoneNumber: f.phone, MaskedPhone: entity.MaskPhone(f.phone), OccurredAt: s.clock.Now()}

	if err != nil {
		short := entity.ShortErrorCode(err)
		msg := msgVerifyPrefix + short
		f.notifyLocked(entity.LevelError, msg)
		f.mu.Unlock()

		slog.WarnContext(ctx, "failed to verify otp", "flow_id", f.id, "error_code", short, "error", err)
		s.countVerification(ctx, "failed")
		evt.Reason = short
		s.publish(ctx, f, "login.publish.otp_verify_failed", evt, s.repoMessaging.PublishOTPVerifyFailed)
		return nil, goerror.WithFields(goerror.NewBusiness(msg, goerror.CodeUnauthorized), "code", short)
	}

	route := s.postLoginRoute()
	f.pending = nil
	f.notifyLocked(entity.LevelSuccess, msgVerified)
	f.emitLocked(entity.NavigateEvent(route))
	s.teardownLocked(f)
	f.mu.Unlock()
	s.remove(f)

	s.countVerification(ctx, "verified")
	evt.UserID = user.UID
	evt.IsNewUser = user.IsNewUser
	s.publish(ctx, f, "login.publish.otp_verified", evt, s.repoMessaging.PublishOTPVerified)

	slog.InfoContext(ctx, "user verified", "flow_id", f.id, "uid", user.UID, "is_new_user", user.IsNewUser)

	return &VerifyOTPOutput{User: *user, Redirect: route}, nil
}

func (s *Usecase) countVerification(ctx context.Context, result string) {
	if s.otpVerifications != nil {
		s.otpVerifications.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	}
}
