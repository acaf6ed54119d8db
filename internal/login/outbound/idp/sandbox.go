package idp

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/shandysiswandi/otplogin/internal/login/entity"
	"github.com/shandysiswandi/otplogin/internal/pkg/clock"
	"github.com/shandysiswandi/otplogin/internal/pkg/otp"
	"github.com/shandysiswandi/otplogin/internal/pkg/uid"
)

const (
	defaultSandboxSessionTTL = 5 * time.Minute
	defaultSandboxUserTTL    = 24 * time.Hour
	sandboxTokenLifetime     = 3600
)

type SandboxConfig struct {
	// Numbers maps a test phone number to the code that confirms it.
	Numbers    map[string]string
	SessionTTL time.Duration
	// Codes issues codes for numbers missing from Numbers. Without it those
	// numbers are rejected.
	Codes otp.Issuer
	// OnCode receives every issued code in place of an SMS. Defaults to logging it.
	OnCode func(ctx context.Context, phone, code string)
	// UserIDs mints user UIDs. Without it UIDs come from the session generator.
	UserIDs uid.NumberID
	// UserTTL is how long an idle number keeps its UID. A number signing in
	// after that is a new user again.
	UserTTL time.Duration
}

type sandboxUser struct {
	uid      string
	lastSeen time.Time
}

type sandboxSession struct {
	phone     string
	code      string
	secret    string
	expiresAt time.Time
}

func logSandboxCode(ctx context.Context, phone, code string) {
	slog.InfoContext(ctx, "sandbox otp issued", "masked_phone", entity.MaskPhone(phone), "sandbox_code", code)
}

// Sandbox is an in-process provider for fictional test numbers. It mirrors
// the provider's error codes so the login flow behaves as it would live.
type Sandbox struct {
	numbers map[string]string
	ttl     time.Duration
	codes   otp.Issuer
	onCode  func(ctx context.Context, phone, code string)
	clock   clock.Clocker
	id      uid.StringID
	userIDs uid.NumberID
	userTTL time.Duration

	mu       sync.Mutex
	sessions map[string]sandboxSession
	users    map[string]sandboxUser
}

func NewSandbox(cfg SandboxConfig, clk clock.Clocker, id uid.StringID) *Sandbox {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSandboxSessionTTL
	}
	numbers := make(map[string]string, len(cfg.Numbers))
	for phone, code := range cfg.Numbers {
		numbers[phone] = code
	}

	if cfg.UserTTL <= 0 {
		cfg.UserTTL = defaultSandboxUserTTL
	}
	if cfg.OnCode == nil {
		cfg.OnCode = logSandboxCode
	}

	return &Sandbox{
		numbers:  numbers,
		ttl:      cfg.SessionTTL,
		codes:    cfg.Codes,
		onCode:   cfg.OnCode,
		clock:    clk,
		id:       id,
		userIDs:  cfg.UserIDs,
		userTTL:  cfg.UserTTL,
		sessions: make(map[string]sandboxSession),
		users:    make(map[string]sandboxUser),
	}
}

func (s *Sandbox) SendVerificationCode(ctx context.Context, phone, _ string) (string, error) {
	now := s.clock.Now()
	sess := sandboxSession{phone: phone, expiresAt: now.Add(s.ttl)}

	if code, ok := s.numbers[phone]; ok {
		sess.code = code
	} else if s.codes != nil {
		secret, code, err := s.codes.Issue(phone, now)
		if err != nil {
			return "", entity.NewProviderError("auth/internal-error", "", err)
		}
		sess.secret = secret
		s.onCode(ctx, phone, code)
	} else {
		return "", entity.NewProviderError("auth/operation-not-allowed", "", nil)
	}

	session := s.id.Generate()

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if !now.Before(sess.expiresAt) {
			delete(s.sessions, id)
		}
	}
	s.sessions[session] = sess

	return session, nil
}

func (s *Sandbox) SignInWithPhoneNumber(_ context.Context, sessionInfo, code string) (*entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionInfo]
	if !ok {
		return nil, entity.NewProviderError("auth/invalid-verification-id", "", nil)
	}
	now := s.clock.Now()
	if !now.Before(sess.expiresAt) {
		delete(s.sessions, sessionInfo)
		return nil, entity.NewProviderError("auth/code-expired", "", nil)
	}
	if !sess.matches(s.codes, code, now) {
		return nil, entity.NewProviderError("auth/invalid-verification-code", "", nil)
	}
	delete(s.sessions, sessionInfo)

	user, existing := s.lookupUserLocked(sess.phone, now)

	return &entity.User{
		UID:          user.uid,
		PhoneNumber:  sess.phone,
		IsNewUser:    !existing,
		IDToken:      "sandbox-id-" + s.id.Generate(),
		RefreshToken: "sandbox-refresh-" + s.id.Generate(),
		ExpiresIn:    sandboxTokenLifetime,
	}, nil
}

func (sess sandboxSession) matches(codes otp.Issuer, code string, at time.Time) bool {
	if sess.secret != "" {
		return codes != nil && codes.Validate(code, sess.secret, at)
	}
	return code == sess.code
}

// lookupUserLocked returns the user for phone, creating it when unknown, and
// forgets users idle for longer than userTTL.
func (s *Sandbox) lookupUserLocked(phone string, now time.Time) (sandboxUser, bool) {
	for p, u := range s.users {
		if now.Sub(u.lastSeen) > s.userTTL {
			delete(s.users, p)
		}
	}

	u, existing := s.users[phone]
	if !existing {
		u.uid = s.newUserID()
	}
	u.lastSeen = now
	s.users[phone] = u
	return u, existing
}

func (s *Sandbox) newUserID() string {
	if s.userIDs != nil {
		return strconv.FormatInt(s.userIDs.Generate(), 10)
	}
	return s.id.Generate()
}
