package inbound

import (
	"github.com/shandysiswandi/otplogin/internal/login/usecase"
	"github.com/shandysiswandi/otplogin/internal/pkg/router"
)

const headerIdempotencyKey = "Idempotency-Key"

type HTTPEndpoint struct {
	uc uc
}

// StartFlow opens a login flow and returns what the client needs to render
// the bot-mitigation widget.
func (h *HTTPEndpoint) StartFlow(r *router.Request) (any, error) {
	out, err := h.uc.StartFlow(r.Context())
	if err != nil {
		return nil, err
	}

	return StartFlowResponse{
		FlowID:        out.FlowID,
		AnchorID:      out.AnchorID,
		SiteKey:       out.SiteKey,
		Size:          out.Size,
		DefaultRegion: out.DefaultRegion,
		Cooldown:      toCooldownResponse(out.Cooldown),
		SubmitEnabled: out.SubmitEnabled,
	}, nil
}

func (h *HTTPEndpoint) FlowState(r *router.Request) (any, error) {
	state, err := h.uc.FlowState(r.Context(), usecase.FlowStateInput{FlowID: r.GetParam("flow_id")})
	if err != nil {
		return nil, err
	}

	return FlowStateResponse{
		FlowID:              state.ID,
		AnchorID:            state.AnchorID,
		MaskedPhone:         state.MaskedPhone,
		Cooldown:            toCooldownResponse(state.Cooldown),
		SubmitEnabled:       state.SubmitEnabled,
		HasPendingChallenge: state.HasPendingChallenge,
		SendInFlight:        state.SendInFlight,
		CreatedAt:           state.CreatedAt,
	}, nil
}

func (h *HTTPEndpoint) CloseFlow(r *router.Request) (any, error) {
	return nil, h.uc.CloseFlow(r.Context(), usecase.CloseFlowInput{FlowID: r.GetParam("flow_id")})
}

// RequestOTP sends an OTP to the submitted phone number. The phone number is
// passed through untrimmed.
func (h *HTTPEndpoint) RequestOTP(r *router.Request) (any, error) {
	var req RequestOTPRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	out, err := h.uc.RequestOTP(r.Context(), usecase.RequestOTPInput{
		FlowID:         r.GetParam("flow_id"),
		PhoneNumber:    req.PhoneNumber,
		RecaptchaToken: req.RecaptchaToken,
		IdempotencyKey: r.GetHeader(headerIdempotencyKey),
	})
	if err != nil {
		return nil, err
	}

	return RequestOTPResponse{MaskedPhone: out.MaskedPhone, Cooldown: toCooldownResponse(out.Cooldown)}, nil
}

func (h *HTTPEndpoint) VerifyOTP(r *router.Request) (any, error) {
	var req VerifyOTPRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	out, err := h.uc.VerifyOTP(r.Context(), usecase.VerifyOTPInput{
		FlowID:         r.GetParam("flow_id"),
		Code:           req.Code,
		IdempotencyKey: r.GetHeader(headerIdempotencyKey),
	})
	if err != nil {
		return nil, err
	}

	return VerifyOTPResponse{
		User: UserResponse{
			UID:          out.User.UID,
			PhoneNumber:  out.User.PhoneNumber,
			IsNewUser:    out.User.IsNewUser,
			IDToken:      out.User.IDToken,
			RefreshToken: out.User.RefreshToken,
			ExpiresIn:    out.User.ExpiresIn,
		},
		Redirect: out.Redirect,
	}, nil
}
