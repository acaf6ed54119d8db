package usecase

import (
	"context"
	"time"

	"github.com/shandysiswandi/otplogin/internal/login/entity"
)

type cooldownTimer struct {
	cancel context.CancelFunc
}

// startCooldownLocked (re)starts the countdown at the configured length and
// runs one tick per second until resend is allowed again.
func (s *Usecase) startCooldownLocked(f *flow) {
	s.stopCooldownLocked(f)

	f.cooldown = entity.StartCooldown(s.cooldownSeconds())
	f.emitLocked(entity.CountdownEvent(f.cooldown))
	if f.cooldown.ResendAllowed {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &cooldownTimer{cancel: cancel}
	f.timer = t
	ticker := s.clock.NewTicker(time.Second)

	s.timers.Go(func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				if s.tick(f, t) {
					return
				}
			}
		}
	})
}

// tick applies one second to the flow's cooldown and reports whether the
// timer is done. A timer that was replaced or stopped stops silently.
func (s *Usecase) tick(f *flow, t *cooldownTimer) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed || f.timer != t {
		return true
	}

	f.cooldown = f.cooldown.Tick()
	f.emitLocked(entity.CountdownEvent(f.cooldown))
	if !f.cooldown.ResendAllowed {
		return false
	}

	if f.verifier != nil {
		f.verifier.Reset()
		f.verifier.Clear()
		f.verifier = nil
	}
	t.cancel()
	f.timer = nil
	f.emitLocked(entity.SubmitEvent(true))
	return true
}

func (s *Usecase) stopCooldownLocked(f *flow) {
	if f.timer == nil {
		return
	}
	f.timer.cancel()
	f.timer = nil
}
