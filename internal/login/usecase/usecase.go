package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shandysiswandi/otplogin/internal/login/entity"
	"github.com/shandysiswandi/otplogin/internal/pkg/clock"
	"github.com/shandysiswandi/otplogin/internal/pkg/config"
	"github.com/shandysiswandi/otplogin/internal/pkg/goroutine"
	"github.com/shandysiswandi/otplogin/internal/pkg/idempotency"
	"github.com/shandysiswandi/otplogin/internal/pkg/instrument"
	"github.com/shandysiswandi/otplogin/internal/pkg/uid"
	"github.com/shandysiswandi/otplogin/internal/pkg/validator"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// OTPEvent describes a login step for downstream consumers.
type OTPEvent struct {
	FlowID string
	// PhoneNumber is raw; publishers must not emit it as is.
	PhoneNumber string
	MaskedPhone string
	UserID      string
	IsNewUser   bool
	Reason      string
	OccurredAt  time.Time
}

type repoMessaging interface {
	PublishOTPRequested(ctx context.Context, evt OTPEvent) error
	PublishOTPSendFailed(ctx context.Context, evt OTPEvent) error
	PublishOTPVerified(ctx context.Context, evt OTPEvent) error
	PublishOTPVerifyFailed(ctx context.Context, evt OTPEvent) error
}

type identityProvider interface {
	NewVerifier(ctx context.Context, anchorID string, opts entity.VerifierOptions) (entity.Verifier, error)
	SendOTP(ctx context.Context, phoneNumber string, v entity.Verifier) (entity.PendingChallenge, error)
	ReleaseAnchor(anchorID string)
}

type Usecase struct {
	provider      identityProvider
	repoMessaging repoMessaging
	idemp         idempotency.Idempotency
	validator     validator.Validator
	cfg           config.Config
	clock         clock.Clocker
	uuid          uid.StringID
	ins           instrument.Instrumentation
	goroutine     *goroutine.Manager

	mu     sync.RWMutex
	flows  map[string]*flow
	closed bool
	timers sync.WaitGroup

	otpRequests      metric.Int64Counter
	otpVerifications metric.Int64Counter
	activeFlows      metric.Int64UpDownCounter
}

type Dependency struct {
	Provider      identityProvider
	RepoMessaging repoMessaging
	// Idempotency is optional; without it Idempotency-Key is ignored.
	Idempotency idempotency.Idempotency
	Validator   validator.Validator
	Config      config.Config
	Clock       clock.Clocker
	UUID        uid.StringID
	Instrument  instrument.Instrumentation
	Goroutine   *goroutine.Manager
}

func New(dep Dependency) *Usecase {
	s := &Usecase{
		provider:      dep.Provider,
		repoMessaging: dep.RepoMessaging,
		idemp:         dep.Idempotency,
		validator:     dep.Validator,
		cfg:           dep.Config,
		clock:         dep.Clock,
		uuid:          dep.UUID,
		ins:           dep.Instrument,
		goroutine:     dep.Goroutine,
		flows:         make(map[string]*flow),
	}

	meter := s.ins.Meter("login.usecase")

	var err error
	if s.otpRequests, err = meter.Int64Counter("login.otp.requests",
		metric.WithDescription("OTP send requests by result")); err != nil {
		slog.Error("failed to create otp request counter", "error", err)
	}
	if s.otpVerifications, err = meter.Int64Counter("login.otp.verifications",
		metric.WithDescription("OTP verifications by result")); err != nil {
		slog.Error("failed to create otp verification counter", "error", err)
	}
	if s.activeFlows, err = meter.Int64UpDownCounter("login.flows.active",
		metric.WithDescription("Login flows currently open")); err != nil {
		slog.Error("failed to create active flow counter", "error", err)
	}

	return s
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("login.usecase").Start(ctx, name)
}

// Close tears down every open flow and waits for running cooldown timers.
func (s *Usecase) Close() error {
	s.mu.Lock()
	s.closed = true
	flows := make([]*flow, 0, len(s.flows))
	for _, f := range s.flows {
		flows = append(flows, f)
	}
	s.flows = make(map[string]*flow)
	s.mu.Unlock()

	for _, f := range flows {
		f.mu.Lock()
		s.teardownLocked(f)
		f.mu.Unlock()
		s.flowClosed()
	}

	s.timers.Wait()
	return nil
}
