package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/shandysiswandi/otplogin/internal/login/entity"
	"github.com/shandysiswandi/otplogin/internal/pkg/goerror"
)

const subscriberBuffer = 10

// flow is the server-side state of one login page. All fields are guarded by mu.
type flow struct {
	mu sync.Mutex

	id        string
	anchorID  string
	phone     string
	verifier  entity.Verifier
	pending   entity.PendingChallenge
	sending   bool
	verifying bool
	cooldown  entity.Cooldown
	timer     *cooldownTimer
	closed    bool
	createdAt time.Time
	touchedAt time.Time
	subs      map[*subscriber]struct{}

	outbox outbox
}

type subscriber struct {
	ch   chan entity.ViewEvent
	once sync.Once
}

func (sub *subscriber) close() {
	sub.once.Do(func() { close(sub.ch) })
}

func newFlow(id, anchorID string, now time.Time) *flow {
	return &flow{
		id:        id,
		anchorID:  anchorID,
		cooldown:  entity.IdleCooldown(),
		createdAt: now,
		touchedAt: now,
		subs:      make(map[*subscriber]struct{}),
	}
}

// emitLocked fans evt out to subscribers without blocking. A slow reader
// misses notifications and intermediate countdown ticks; for settling events
// its oldest buffered event is discarded instead.
func (f *flow) emitLocked(evts ...entity.ViewEvent) {
	for _, evt := range evts {
		for sub := range f.subs {
			select {
			case sub.ch <- evt:
				continue
			default:
			}
			if !evt.Settles() {
				continue
			}
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- evt:
			default:
			}
		}
	}
}

func (f *flow) notifyLocked(level entity.Level, msg string) {
	f.emitLocked(entity.NotificationEvent(level, msg))
}

func (f *flow) submitEnabledLocked() bool {
	return f.cooldown.ResendAllowed && !f.sending
}

func (f *flow) stateLocked() *entity.FlowState {
	masked := ""
	if f.phone != "" {
		masked = entity.MaskPhone(f.phone)
	}
	return &entity.FlowState{
		ID:                  f.id,
		AnchorID:            f.anchorID,
		MaskedPhone:         masked,
		Cooldown:            f.cooldown,
		SubmitEnabled:       f.submitEnabledLocked(),
		HasPendingChallenge: f.pending != nil,
		SendInFlight:        f.sending,
		CreatedAt:           f.createdAt,
	}
}

func errFlowNotFound() error {
	return goerror.NewBusiness("Login flow not found", goerror.CodeNotFound)
}

func (s *Usecase) lookup(id string) (*flow, error) {
	s.mu.RLock()
	f, ok := s.flows[id]
	s.mu.RUnlock()
	if !ok {
		return nil, errFlowNotFound()
	}
	return f, nil
}

func (s *Usecase) remove(f *flow) {
	s.mu.Lock()
	cur, ok := s.flows[f.id]
	if ok && cur == f {
		delete(s.flows, f.id)
	}
	s.mu.Unlock()

	if ok && cur == f {
		s.flowClosed()
	}
}

func (s *Usecase) flowClosed() {
	if s.activeFlows != nil {
		s.activeFlows.Add(context.Background(), -1)
	}
}

// teardownLocked stops the timer, destroys the verifier, frees the anchor
// and closes subscribers. The flow is unusable afterwards.
func (s *Usecase) teardownLocked(f *flow) {
	if f.closed {
		return
	}
	f.closed = true
	s.stopCooldownLocked(f)
	if f.verifier != nil {
		f.verifier.Reset()
		f.verifier.Clear()
		f.verifier = nil
	}
	f.pending = nil
	s.provider.ReleaseAnchor(f.anchorID)
	for sub := range f.subs {
		sub.close()
		delete(f.subs, sub)
	}
}

// reloadLocked puts the flow back to its freshly opened state, the way a
// page reload would, and tells the client to reload.
func (s *Usecase) reloadLocked(f *flow) {
	s.stopCooldownLocked(f)
	f.verifier = nil
	f.pending = nil
	f.phone = ""
	f.cooldown = entity.IdleCooldown()
	s.provider.ReleaseAnchor(f.anchorID)
	f.emitLocked(entity.ReloadEvent())
}
