package idp

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	libotp "github.com/pquerna/otp"
	"github.com/shandysiswandi/otplogin/internal/login/entity"
	"github.com/shandysiswandi/otplogin/internal/pkg/clock"
	"github.com/shandysiswandi/otplogin/internal/pkg/config"
	"github.com/shandysiswandi/otplogin/internal/pkg/instrument"
	"github.com/shandysiswandi/otplogin/internal/pkg/otp"
	"github.com/shandysiswandi/otplogin/internal/pkg/uid"
)

type stubClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stubClock) NewTicker(d time.Duration) clock.Ticker { return clock.New().NewTicker(d) }

func (c *stubClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type seq struct {
	mu sync.Mutex
	n  int
}

func (s *seq) Generate() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return "id-" + strconv.Itoa(s.n)
}

func providerCode(t *testing.T, err error) string {
	t.Helper()
	var pe *entity.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *entity.ProviderError, got %T: %v", err, err)
	}
	return pe.Code
}

func newSandboxProvider(clk *stubClock) *Provider {
	return New(NewSandbox(SandboxConfig{
		Numbers:    map[string]string{"+919876543210": "123456"},
		SessionTTL: time.Minute,
	}, clk, &seq{}), instrument.NewNoop())
}

func TestWidgets(t *testing.T) {
	ctx := context.Background()

	t.Run("SecondWidgetOnAnchorIsRejected", func(t *testing.T) {
		// Arrange
		p := newSandboxProvider(&stubClock{})
		first, _ := p.NewVerifier(ctx, "flow-1/sign-in-button", entity.VerifierOptions{Response: "tok"})
		second, _ := p.NewVerifier(ctx, "flow-1/sign-in-button", entity.VerifierOptions{Response: "tok"})

		// Act
		_, err1 := first.Verify(ctx)
		_, err2 := second.Verify(ctx)

		// Assert
		if err1 != nil {
			t.Fatalf("first render failed: %v", err1)
		}
		if !errors.Is(err2, entity.ErrWidgetAlreadyRendered) {
			t.Fatalf("expected ErrWidgetAlreadyRendered, got %v", err2)
		}
	})

	t.Run("ClearFreesAnchor", func(t *testing.T) {
		p := newSandboxProvider(&stubClock{})
		first, _ := p.NewVerifier(ctx, "a", entity.VerifierOptions{Response: "tok"})
		if _, err := first.Verify(ctx); err != nil {
			t.Fatalf("render: %v", err)
		}

		first.Clear()
		second, _ := p.NewVerifier(ctx, "a", entity.VerifierOptions{Response: "tok"})

		if _, err := second.Verify(ctx); err != nil {
			t.Fatalf("expected anchor free after Clear, got %v", err)
		}
		if _, err := first.Verify(ctx); err == nil {
			t.Fatal("cleared verifier must not verify again")
		}
	})

	t.Run("ReleaseAnchorFreesAnchor", func(t *testing.T) {
		p := newSandboxProvider(&stubClock{})
		first, _ := p.NewVerifier(ctx, "a", entity.VerifierOptions{Response: "tok"})
		_, _ = first.Verify(ctx)

		p.ReleaseAnchor("a")
		second, _ := p.NewVerifier(ctx, "a", entity.VerifierOptions{Response: "tok"})

		if _, err := second.Verify(ctx); err != nil {
			t.Fatalf("expected anchor free after release, got %v", err)
		}
	})

	t.Run("MissingTokenFailsCaptcha", func(t *testing.T) {
		p := newSandboxProvider(&stubClock{})
		v, _ := p.NewVerifier(ctx, "a", entity.VerifierOptions{})

		_, err := v.Verify(ctx)

		if got := providerCode(t, err); got != "auth/captcha-check-failed" {
			t.Fatalf("unexpected code %q", got)
		}
	})

	t.Run("ResetDiscardsToken", func(t *testing.T) {
		p := newSandboxProvider(&stubClock{})
		v, _ := p.NewVerifier(ctx, "a", entity.VerifierOptions{Response: "tok"})

		v.Reset()
		_, err := v.Verify(ctx)

		if got := providerCode(t, err); got != "auth/captcha-check-failed" {
			t.Fatalf("unexpected code %q", got)
		}
	})
}

func TestSandbox(t *testing.T) {
	ctx := context.Background()
	send := func(t *testing.T, p *Provider, anchor, phone string) (entity.PendingChallenge, error) {
		t.Helper()
		v, _ := p.NewVerifier(ctx, anchor, entity.VerifierOptions{Response: "tok"})
		return p.SendOTP(ctx, phone, v)
	}

	t.Run("UnknownNumber", func(t *testing.T) {
		p := newSandboxProvider(&stubClock{})

		_, err := send(t, p, "a", "+919999999999")

		if got := providerCode(t, err); got != "auth/operation-not-allowed" {
			t.Fatalf("unexpected code %q", got)
		}
	})

	t.Run("WrongCodeThenRightCode", func(t *testing.T) {
		// Arrange
		p := newSandboxProvider(&stubClock{})
		pending, err := send(t, p, "a", "+919876543210")
		if err != nil {
			t.Fatalf("send: %v", err)
		}

		// Act
		_, wrongErr := pending.Confirm(ctx, "000000")
		user, err := pending.Confirm(ctx, "123456")

		// Assert
		if got := providerCode(t, wrongErr); got != "auth/invalid-verification-code" {
			t.Fatalf("unexpected code %q", got)
		}
		if err != nil {
			t.Fatalf("confirm: %v", err)
		}
		if user.PhoneNumber != "+919876543210" || !user.IsNewUser || user.IDToken == "" {
			t.Fatalf("unexpected user %+v", user)
		}
	})

	t.Run("SessionIsSingleUse", func(t *testing.T) {
		p := newSandboxProvider(&stubClock{})
		pending, _ := send(t, p, "a", "+919876543210")
		if _, err := pending.Confirm(ctx, "123456"); err != nil {
			t.Fatalf("confirm: %v", err)
		}

		_, err := pending.Confirm(ctx, "123456")

		if got := providerCode(t, err); got != "auth/invalid-verification-id" {
			t.Fatalf("unexpected code %q", got)
		}
	})

	t.Run("ReturningUser", func(t *testing.T) {
		p := newSandboxProvider(&stubClock{})
		first, _ := send(t, p, "a", "+919876543210")
		u1, _ := first.Confirm(ctx, "123456")
		p.ReleaseAnchor("a")
		second, _ := send(t, p, "a", "+919876543210")

		u2, err := second.Confirm(ctx, "123456")

		if err != nil {
			t.Fatalf("confirm: %v", err)
		}
		if u2.IsNewUser || u2.UID != u1.UID {
			t.Fatalf("expected returning user %q, got %+v", u1.UID, u2)
		}
	})

	t.Run("IdleUserForgotten", func(t *testing.T) {
		// Arrange
		clk := &stubClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
		users, err := uid.NewSnowflake(1)
		if err != nil {
			t.Fatalf("snowflake: %v", err)
		}
		sb := NewSandbox(SandboxConfig{
			Numbers: map[string]string{"+919876543210": "123456"},
			UserIDs: users,
			UserTTL: time.Hour,
		}, clk, &seq{})
		signIn := func() *entity.User {
			t.Helper()
			session, err := sb.SendVerificationCode(ctx, "+919876543210", "tok")
			if err != nil {
				t.Fatalf("send: %v", err)
			}
			user, err := sb.SignInWithPhoneNumber(ctx, session, "123456")
			if err != nil {
				t.Fatalf("sign in: %v", err)
			}
			return user
		}
		first := signIn()

		// Act
		clk.advance(2 * time.Hour)
		second := signIn()

		// Assert
		if _, err := strconv.ParseInt(first.UID, 10, 64); err != nil {
			t.Fatalf("expected numeric uid, got %q", first.UID)
		}
		if !second.IsNewUser || second.UID == first.UID {
			t.Fatalf("expected a new user after the idle window, got %+v", second)
		}
		sb.mu.Lock()
		defer sb.mu.Unlock()
		if len(sb.users) != 1 {
			t.Fatalf("expected stale users pruned, have %d", len(sb.users))
		}
	})

	t.Run("ExpiredSession", func(t *testing.T) {
		clk := &stubClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
		p := newSandboxProvider(clk)
		pending, _ := send(t, p, "a", "+919876543210")

		clk.advance(2 * time.Minute)
		_, err := pending.Confirm(ctx, "123456")

		if got := providerCode(t, err); got != "auth/code-expired" {
			t.Fatalf("unexpected code %q", got)
		}
	})
}

func TestSandbox_IssuedCodes(t *testing.T) {
	// Arrange
	ctx := context.Background()
	clk := &stubClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	var got struct{ phone, code string }
	sb := NewSandbox(SandboxConfig{
		SessionTTL: 5 * time.Minute,
		Codes:      otp.NewTOTP("otplogin", 300, libotp.DigitsSix),
		OnCode: func(_ context.Context, phone, code string) {
			got.phone, got.code = phone, code
		},
	}, clk, &seq{})

	// Act
	session, err := sb.SendVerificationCode(ctx, "+918888888888", "tok")

	// Assert
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.phone != "+918888888888" || len(got.code) != 6 {
		t.Fatalf("unexpected issued code %+v", got)
	}
	wrong := "000000"
	if got.code == wrong {
		wrong = "111111"
	}
	if _, err := sb.SignInWithPhoneNumber(ctx, session, wrong); providerCode(t, err) != "auth/invalid-verification-code" {
		t.Fatalf("expected wrong code rejected, got %v", err)
	}
	clk.advance(time.Minute)
	user, err := sb.SignInWithPhoneNumber(ctx, session, got.code)
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if user.PhoneNumber != "+918888888888" {
		t.Fatalf("unexpected user %+v", user)
	}
}

func TestNewFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr error
	}{
		{name: "Sandbox", yaml: "provider:\n  driver: sandbox\n  sandbox:\n    numbers: \"+919876543210:123456\"\n"},
		{name: "SandboxIssuingCodes", yaml: "provider:\n  driver: sandbox\n  sandbox:\n    issue_codes: true\n"},
		{name: "Firebase", yaml: "provider:\n  driver: firebase\n  firebase:\n    api_key: key\n"},
		{name: "FirebaseWithoutKey", yaml: "provider:\n  driver: firebase\n", wantErr: ErrFirebaseAPIKeyRequired},
		{name: "Unknown", yaml: "provider:\n  driver: carrier-pigeon\n", wantErr: ErrUnknownDriver},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.NewViperFromBytes("yaml", []byte(tt.yaml))
			if err != nil {
				t.Fatalf("config: %v", err)
			}

			p, err := NewFromConfig(cfg, instrument.NewNoop(), clock.New(), &seq{}, nil)

			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if tt.wantErr == nil && p == nil {
				t.Fatal("expected provider")
			}
		})
	}
}
