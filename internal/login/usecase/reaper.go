package usecase

import (
	"context"
	"log/slog"
)

// ReapIdleFlows closes flows untouched for longer than the idle TTL and
// returns how many were closed. Flows with a send or verify in flight are kept.
func (s *Usecase) ReapIdleFlows(ctx context.Context) int {
	cutoff := s.clock.Now().Add(-s.flowIdleTTL())

	s.mu.RLock()
	flows := make([]*flow, 0, len(s.flows))
	for _, f := range s.flows {
		flows = append(flows, f)
	}
	s.mu.RUnlock()

	reaped := 0
	for _, f := range flows {
		f.mu.Lock()
		idle := !f.closed && !f.sending && !f.verifying && f.touchedAt.Before(cutoff)
		if idle {
			s.teardownLocked(f)
		}
		f.mu.Unlock()

		if idle {
			s.remove(f)
			reaped++
		}
	}

	if reaped > 0 {
		slog.InfoContext(ctx, "idle login flows closed", "count", reaped)
	}
	return reaped
}

// RunReaper calls ReapIdleFlows on every reaper interval until ctx is done.
func (s *Usecase) RunReaper(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.reaperInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			s.ReapIdleFlows(ctx)
		}
	}
}
