package inbound

import (
	"net/http"
	"time"

	"github.com/shandysiswandi/otplogin/internal/login/entity"
)

type CooldownResponse struct {
	Remaining     int  `json:"remaining"`
	ResendAllowed bool `json:"resend_allowed"`
}

func toCooldownResponse(c entity.Cooldown) CooldownResponse {
	return CooldownResponse{Remaining: c.Remaining, ResendAllowed: c.ResendAllowed}
}

type StartFlowResponse struct {
	FlowID        string           `json:"flow_id"`
	AnchorID      string           `json:"anchor_id"`
	SiteKey       string           `json:"site_key"`
	Size          string           `json:"size"`
	DefaultRegion string           `json:"default_region"`
	Cooldown      CooldownResponse `json:"cooldown"`
	SubmitEnabled bool             `json:"submit_enabled"`
}

func (StartFlowResponse) StatusCode() int {
	return http.StatusCreated
}

func (StartFlowResponse) Message() string {
	return "Login flow started"
}

type FlowStateResponse struct {
	FlowID              string           `json:"flow_id"`
	AnchorID            string           `json:"anchor_id"`
	MaskedPhone         string           `json:"masked_phone,omitempty"`
	Cooldown            CooldownResponse `json:"cooldown"`
	SubmitEnabled       bool             `json:"submit_enabled"`
	HasPendingChallenge bool             `json:"has_pending_challenge"`
	SendInFlight        bool             `json:"send_in_flight"`
	CreatedAt           time.Time        `json:"created_at"`
}

type RequestOTPRequest struct {
	PhoneNumber    string `json:"phone_number"`
	RecaptchaToken string `json:"recaptcha_token"`
}

type RequestOTPResponse struct {
	MaskedPhone string           `json:"masked_phone"`
	Cooldown    CooldownResponse `json:"cooldown"`
}

func (RequestOTPResponse) Message() string {
	return "OTP has been sent"
}

type VerifyOTPRequest struct {
	Code string `json:"code"`
}

type UserResponse struct {
	UID          string `json:"uid"`
	PhoneNumber  string `json:"phone_number"`
	IsNewUser    bool   `json:"is_new_user"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type VerifyOTPResponse struct {
	User     UserResponse `json:"user"`
	Redirect string       `json:"redirect"`
}

func (VerifyOTPResponse) Message() string {
	return "User verified"
}
