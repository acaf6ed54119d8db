// Package idp talks to the identity provider that sends and confirms phone
// OTPs. A Provider pairs a per-anchor bot-mitigation widget registry with a
// transport driver (the Firebase Identity Toolkit REST API or a local sandbox).
package idp

import (
	"context"
	"errors"
	"strings"
	"time"

	libotp "github.com/pquerna/otp"

	"github.com/shandysiswandi/otplogin/internal/login/entity"
	"github.com/shandysiswandi/otplogin/internal/pkg/clock"
	"github.com/shandysiswandi/otplogin/internal/pkg/config"
	"github.com/shandysiswandi/otplogin/internal/pkg/instrument"
	"github.com/shandysiswandi/otplogin/internal/pkg/otp"
	"github.com/shandysiswandi/otplogin/internal/pkg/uid"
	"go.opentelemetry.io/otel/codes"
)

const (
	DriverFirebase = "firebase"
	DriverSandbox  = "sandbox"
)

var ErrUnknownDriver = errors.New("idp: unknown driver")

// Driver is the provider transport: it exchanges a phone number and a solved
// challenge for a session, then a session and code for a signed-in user.
type Driver interface {
	SendVerificationCode(ctx context.Context, phone, recaptchaToken string) (string, error)
	SignInWithPhoneNumber(ctx context.Context, sessionInfo, code string) (*entity.User, error)
}

type Provider struct {
	driver  Driver
	widgets *widgets
	ins     instrument.Instrumentation
}

func New(driver Driver, ins instrument.Instrumentation) *Provider {
	return &Provider{driver: driver, widgets: newWidgets(), ins: ins}
}

// NewFromConfig builds a Provider for the driver named by provider.driver.
// Sandbox sessions take their ids from id and sandbox users from users.
func NewFromConfig(cfg config.Config, ins instrument.Instrumentation, clk clock.Clocker, id uid.StringID, users uid.NumberID) (*Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.GetString("provider.driver"))) {
	case DriverFirebase:
		fb, err := NewFirebase(FirebaseConfig{
			APIKey:  cfg.GetString("provider.firebase.api_key"),
			BaseURL: cfg.GetString("provider.firebase.base_url"),
			Timeout: cfg.GetSecond("provider.timeout_seconds"),
		}, ins)
		if err != nil {
			return nil, err
		}
		return New(fb, ins), nil
	case DriverSandbox:
		sc := SandboxConfig{
			Numbers:    cfg.GetMap("provider.sandbox.numbers"),
			SessionTTL: cfg.GetMinute("provider.sandbox.session_ttl_minutes"),
			UserIDs:    users,
			UserTTL:    cfg.GetMinute("provider.sandbox.user_ttl_minutes"),
		}
		if cfg.GetBool("provider.sandbox.issue_codes") {
			ttl := sc.SessionTTL
			if ttl <= 0 {
				ttl = defaultSandboxSessionTTL
			}
			sc.Codes = otp.NewTOTP("otplogin", uint(ttl/time.Second), libotp.DigitsSix)
		}
		return New(NewSandbox(sc, clk, id), ins), nil
	default:
		return nil, ErrUnknownDriver
	}
}

// NewVerifier creates an unrendered widget for anchorID. It is rendered by
// Verify, which fails while another uncleared widget holds the anchor.
func (p *Provider) NewVerifier(_ context.Context, anchorID string, opts entity.VerifierOptions) (entity.Verifier, error) {
	return &widget{registry: p.widgets, anchorID: anchorID, opts: opts, token: opts.Response}, nil
}

// SendOTP solves v and asks the provider to text a code to phone.
func (p *Provider) SendOTP(ctx context.Context, phone string, v entity.Verifier) (entity.PendingChallenge, error) {
	ctx, span := p.ins.Tracer("login.outbound.idp").Start(ctx, "SendOTP")
	defer span.End()

	token, err := v.Verify(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	session, err := p.driver.SendVerificationCode(ctx, phone, token)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return &challenge{provider: p, session: session}, nil
}

// ReleaseAnchor drops any widget registered on anchorID.
func (p *Provider) ReleaseAnchor(anchorID string) {
	p.widgets.release(anchorID)
}

type challenge struct {
	provider *Provider
	session  string
}

func (c *challenge) Confirm(ctx context.Context, code string) (*entity.User, error) {
	ctx, span := c.provider.ins.Tracer("login.outbound.idp").Start(ctx, "Confirm")
	defer span.End()

	user, err := c.provider.driver.SignInWithPhoneNumber(ctx, c.session, code)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return user, nil
}
