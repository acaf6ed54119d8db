package idp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shandysiswandi/otplogin/internal/login/entity"
	"github.com/shandysiswandi/otplogin/internal/pkg/instrument"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultFirebaseBaseURL = "https://identitytoolkit.googleapis.com"
	defaultFirebaseTimeout = 15 * time.Second
	maxFirebaseBody        = 1 << 20
)

var ErrFirebaseAPIKeyRequired = errors.New("idp: firebase api key is required")

// serverErrors maps Identity Toolkit error names to client error codes.
var serverErrors = map[string]string{
	"INVALID_CODE":                "auth/invalid-verification-code",
	"MISSING_CODE":                "auth/missing-verification-code",
	"SESSION_EXPIRED":             "auth/code-expired",
	"INVALID_SESSION_INFO":        "auth/invalid-verification-id",
	"MISSING_SESSION_INFO":        "auth/missing-verification-id",
	"TOO_MANY_ATTEMPTS_TRY_LATER": "auth/too-many-requests",
	"INVALID_PHONE_NUMBER":        "auth/invalid-phone-number",
	"MISSING_PHONE_NUMBER":        "auth/missing-phone-number",
	"CAPTCHA_CHECK_FAILED":        "auth/captcha-check-failed",
	"INVALID_APP_CREDENTIAL":      "auth/invalid-app-credential",
	"MISSING_APP_CREDENTIAL":      "auth/missing-app-credential",
	"QUOTA_EXCEEDED":              "auth/quota-exceeded",
	"OPERATION_NOT_ALLOWED":       "auth/operation-not-allowed",
	"USER_DISABLED":               "auth/user-disabled",
}

type FirebaseConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	// Transport overrides the base round tripper wrapped by otelhttp.
	Transport http.RoundTripper
}

// Firebase drives the Identity Toolkit v1 phone sign-in endpoints.
type Firebase struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewFirebase(cfg FirebaseConfig, ins instrument.Instrumentation) (*Firebase, error) {
	if cfg.APIKey == "" {
		return nil, ErrFirebaseAPIKeyRequired
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultFirebaseBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultFirebaseTimeout
	}
	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	return &Firebase{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: otelhttp.NewTransport(base,
				otelhttp.WithTracerProvider(ins.TracerProvider()),
				otelhttp.WithMeterProvider(ins.MeterProvider()),
			),
		},
	}, nil
}

type sendVerificationCodeRequest struct {
	PhoneNumber    string `json:"phoneNumber"`
	RecaptchaToken string `json:"recaptchaToken"`
}

type sendVerificationCodeResponse struct {
	SessionInfo string `json:"sessionInfo"`
}

type signInWithPhoneNumberRequest struct {
	SessionInfo string `json:"sessionInfo"`
	Code        string `json:"code"`
}

type signInWithPhoneNumberResponse struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	LocalID      string `json:"localId"`
	IsNewUser    bool   `json:"isNewUser"`
	PhoneNumber  string `json:"phoneNumber"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (f *Firebase) SendVerificationCode(ctx context.Context, phone, recaptchaToken string) (string, error) {
	var resp sendVerificationCodeResponse
	err := f.call(ctx, "accounts:sendVerificationCode", sendVerificationCodeRequest{
		PhoneNumber:    phone,
		RecaptchaToken: recaptchaToken,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.SessionInfo == "" {
		return "", entity.NewProviderError("auth/internal-error", "missing session info", nil)
	}

	return resp.SessionInfo, nil
}

func (f *Firebase) SignInWithPhoneNumber(ctx context.Context, sessionInfo, code string) (*entity.User, error) {
	var resp signInWithPhoneNumberResponse
	err := f.call(ctx, "accounts:signInWithPhoneNumber", signInWithPhoneNumberRequest{
		SessionInfo: sessionInfo,
		Code:        code,
	}, &resp)
	if err != nil {
		return nil, err
	}

	expiresIn, err := strconv.ParseInt(resp.ExpiresIn, 10, 64)
	if err != nil {
		slog.WarnContext(ctx, "firebase returned an unreadable token lifetime", "expires_in", resp.ExpiresIn, "error", err)
		expiresIn = 0
	}
	return &entity.User{
		UID:          resp.LocalID,
		PhoneNumber:  resp.PhoneNumber,
		IsNewUser:    resp.IsNewUser,
		IDToken:      resp.IDToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    expiresIn,
	}, nil
}

func (f *Firebase) call(ctx context.Context, method string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return entity.NewProviderError("auth/internal-error", "", err)
	}

	endpoint := f.baseURL + "/v1/" + method + "?key=" + url.QueryEscape(f.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return entity.NewProviderError("auth/internal-error", "", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return entity.NewProviderError("auth/network-request-failed", "", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxFirebaseBody))
	if err != nil {
		return entity.NewProviderError("auth/network-request-failed", "", err)
	}

	if resp.StatusCode != http.StatusOK {
		return decodeServerError(resp.StatusCode, raw)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return entity.NewProviderError("auth/internal-error", "", err)
	}
	return nil
}

// decodeServerError turns an Identity Toolkit error body into a ProviderError.
// Messages have the form "NAME" or "NAME : detail".
func decodeServerError(status int, raw []byte) error {
	var er errorResponse
	if err := json.Unmarshal(raw, &er); err != nil || er.Error.Message == "" {
		return entity.NewProviderError("auth/internal-error", "", fmt.Errorf("idp: unexpected status %d", status))
	}

	name, detail, _ := strings.Cut(er.Error.Message, " : ")
	name = strings.TrimSpace(name)
	cause := fmt.Errorf("idp: %s (status %d)", name, status)

	code, ok := serverErrors[name]
	if !ok {
		return entity.NewProviderError("auth/internal-error", strings.TrimSpace(er.Error.Message), cause)
	}
	return entity.NewProviderError(code, strings.TrimSpace(detail), cause)
}
