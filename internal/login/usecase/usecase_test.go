package usecase

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shandysiswandi/otplogin/internal/login/entity"
	"github.com/shandysiswandi/otplogin/internal/pkg/clock"
	"github.com/shandysiswandi/otplogin/internal/pkg/config"
	"github.com/shandysiswandi/otplogin/internal/pkg/goerror"
	"github.com/shandysiswandi/otplogin/internal/pkg/goroutine"
	"github.com/shandysiswandi/otplogin/internal/pkg/idempotency"
	"github.com/shandysiswandi/otplogin/internal/pkg/instrument"
	"github.com/shandysiswandi/otplogin/internal/pkg/validator"
)

// ---- clock ----

type manualTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               { m.stopped.Store(true) }

type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers chan *manualTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{
		now:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		tickers: make(chan *manualTicker, 16),
	}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) NewTicker(time.Duration) clock.Ticker {
	t := &manualTicker{ch: make(chan time.Time)}
	c.tickers <- t
	return t
}

func (c *fakeClock) nextTicker(t *testing.T) *manualTicker {
	t.Helper()
	select {
	case tk := <-c.tickers:
		return tk
	case <-time.After(2 * time.Second):
		t.Fatal("no ticker was created")
		return nil
	}
}

// ---- provider ----

type fakeVerifier struct {
	anchorID string
	opts     entity.VerifierOptions
	resets   atomic.Int32
	clears   atomic.Int32
}

func (v *fakeVerifier) Verify(context.Context) (string, error) { return v.opts.Response, nil }
func (v *fakeVerifier) Reset()                                  { v.resets.Add(1) }
func (v *fakeVerifier) Clear()                                  { v.clears.Add(1) }

type fakePending struct {
	id       int
	err      error
	user     *entity.User
	confirms atomic.Int32
	codes    chan string
}

func (p *fakePending) Confirm(_ context.Context, code string) (*entity.User, error) {
	p.confirms.Add(1)
	if p.codes != nil {
		p.codes <- code
	}
	if p.err != nil {
		return nil, p.err
	}
	return p.user, nil
}

type fakeProvider struct {
	mu        sync.Mutex
	sendErrs  []error
	pendings  []*fakePending
	verifiers []*fakeVerifier
	phones    []string
	released  []string
}

func (p *fakeProvider) NewVerifier(_ context.Context, anchorID string, opts entity.VerifierOptions) (entity.Verifier, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := &fakeVerifier{anchorID: anchorID, opts: opts}
	p.verifiers = append(p.verifiers, v)
	return v, nil
}

func (p *fakeProvider) SendOTP(ctx context.Context, phone string, v entity.Verifier) (entity.PendingChallenge, error) {
	if _, err := v.Verify(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.phones = append(p.phones, phone)
	if len(p.sendErrs) > 0 {
		err := p.sendErrs[0]
		p.sendErrs = p.sendErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	pending := &fakePending{
		id:   len(p.phones),
		user: &entity.User{UID: "uid-" + strconv.Itoa(len(p.phones)), PhoneNumber: phone, IDToken: "id-token"},
	}
	p.pendings = append(p.pendings, pending)
	return pending, nil
}

func (p *fakeProvider) ReleaseAnchor(anchorID string) {
	p.mu.Lock()
	p.released = append(p.released, anchorID)
	p.mu.Unlock()
}

func (p *fakeProvider) sendCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.phones)
}

func (p *fakeProvider) lastPending() *fakePending {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pendings) == 0 {
		return nil
	}
	return p.pendings[len(p.pendings)-1]
}

func (p *fakeProvider) lastVerifier() *fakeVerifier {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.verifiers) == 0 {
		return nil
	}
	return p.verifiers[len(p.verifiers)-1]
}

// ---- messaging ----

type fakeMessaging struct {
	mu     sync.Mutex
	events []string
	// holdRequested blocks the "requested" publish until closed.
	holdRequested chan struct{}
}

func (m *fakeMessaging) record(name string) error {
	if name == "requested" && m.holdRequested != nil {
		<-m.holdRequested
	}
	m.mu.Lock()
	m.events = append(m.events, name)
	m.mu.Unlock()
	return nil
}

func (m *fakeMessaging) PublishOTPRequested(context.Context, OTPEvent) error {
	return m.record("requested")
}

func (m *fakeMessaging) PublishOTPSendFailed(context.Context, OTPEvent) error {
	return m.record("send_failed")
}

func (m *fakeMessaging) PublishOTPVerified(context.Context, OTPEvent) error {
	return m.record("verified")
}

func (m *fakeMessaging) PublishOTPVerifyFailed(context.Context, OTPEvent) error {
	return m.record("verify_failed")
}

func (m *fakeMessaging) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

// ---- idempotency ----

type fakeIdempotency struct {
	err error
}

func (f *fakeIdempotency) Acquire(context.Context, string, time.Duration) (idempotency.State, error) {
	return idempotency.StateNone, nil
}

func (f *fakeIdempotency) MarkCompleted(context.Context, string, time.Duration) error { return nil }
func (f *fakeIdempotency) MarkFailed(context.Context, string, time.Duration) error    { return nil }

func (f *fakeIdempotency) Exec(ctx context.Context, _ string, fn func(context.Context) error, _ ...idempotency.Option) error {
	if f.err != nil {
		return f.err
	}
	return fn(ctx)
}

// ---- harness ----

type seqID struct{ n atomic.Int64 }

func (s *seqID) Generate() string { return "flow-" + strconv.FormatInt(s.n.Add(1), 10) }

type harness struct {
	uc       *Usecase
	clock    *fakeClock
	provider *fakeProvider
	msg      *fakeMessaging
	bg       *goroutine.Manager
}

func newHarness(t *testing.T, yaml string) *harness {
	t.Helper()

	cfg, err := config.NewViperFromBytes("yaml", []byte(yaml))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	v, err := validator.NewV10Validator()
	if err != nil {
		t.Fatalf("validator: %v", err)
	}

	h := &harness{
		clock:    newFakeClock(),
		provider: &fakeProvider{},
		msg:      &fakeMessaging{},
		bg:       goroutine.NewManager(10),
	}
	h.uc = New(Dependency{
		Provider:      h.provider,
		RepoMessaging: h.msg,
		Validator:     v,
		Config:        cfg,
		Clock:         h.clock,
		UUID:          &seqID{},
		Instrument:    instrument.NewNoop(),
		Goroutine:     h.bg,
	})
	t.Cleanup(func() { _ = h.uc.Close() })
	return h
}

func (h *harness) start(t *testing.T) string {
	t.Helper()
	out, err := h.uc.StartFlow(context.Background())
	if err != nil {
		t.Fatalf("StartFlow: %v", err)
	}
	return out.FlowID
}

func (h *harness) stream(t *testing.T, flowID string) <-chan entity.ViewEvent {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ch, err := h.uc.StreamFlow(ctx, StreamFlowInput{FlowID: flowID})
	if err != nil {
		t.Fatalf("StreamFlow: %v", err)
	}
	return ch
}

func nextEvent(t *testing.T, ch <-chan entity.ViewEvent) entity.ViewEvent {
	t.Helper()
	select {
	case evt, ok := <-ch:
		if !ok {
			t.Fatal("event stream closed")
		}
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for view event")
	}
	return entity.ViewEvent{}
}

func expectNotification(t *testing.T, ch <-chan entity.ViewEvent, level entity.Level, msg string) {
	t.Helper()
	evt := nextEvent(t, ch)
	n, ok := evt.Data.(entity.Notification)
	if evt.Type != entity.EventNotification || !ok {
		t.Fatalf("expected notification, got %+v", evt)
	}
	if n.Level != level || n.Message != msg {
		t.Fatalf("expected %s %q, got %s %q", level, msg, n.Level, n.Message)
	}
}

func expectCountdown(t *testing.T, ch <-chan entity.ViewEvent, want entity.Cooldown) {
	t.Helper()
	evt := nextEvent(t, ch)
	c, ok := evt.Data.(entity.Cooldown)
	if evt.Type != entity.EventCountdown || !ok {
		t.Fatalf("expected countdown, got %+v", evt)
	}
	if c != want {
		t.Fatalf("expected countdown %+v, got %+v", want, c)
	}
}

func expectSubmit(t *testing.T, ch <-chan entity.ViewEvent, enabled bool) {
	t.Helper()
	evt := nextEvent(t, ch)
	s, ok := evt.Data.(entity.Submit)
	if evt.Type != entity.EventSubmit || !ok || s.Enabled != enabled {
		t.Fatalf("expected submit enabled=%v, got %+v", enabled, evt)
	}
}

func asGoError(t *testing.T, err error) *goerror.Error {
	t.Helper()
	var gerr *goerror.Error
	if !errors.As(err, &gerr) {
		t.Fatalf("expected *goerror.Error, got %T: %v", err, err)
	}
	return gerr
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
