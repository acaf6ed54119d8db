package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const publishTimeout = 10 * time.Second

type outboxItem struct {
	ctx  context.Context
	task string
	evt  OTPEvent
	fn   func(context.Context, OTPEvent) error
}

// outbox keeps the broker order of one flow's events. At most one drain
// task runs per flow.
type outbox struct {
	mu       sync.Mutex
	queue    []outboxItem
	draining bool
}

func (o *outbox) next() (outboxItem, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.queue) == 0 {
		o.draining = false
		return outboxItem{}, false
	}
	item := o.queue[0]
	o.queue[0] = outboxItem{}
	o.queue = o.queue[1:]
	return item, true
}

// publish queues evt on the flow's outbox and makes sure a drain task is
// running. Events of one flow reach the broker in the order they were queued.
func (s *Usecase) publish(ctx context.Context, f *flow, task string, evt OTPEvent, fn func(context.Context, OTPEvent) error) {
	if s.repoMessaging == nil {
		return
	}

	o := &f.outbox
	o.mu.Lock()
	o.queue = append(o.queue, outboxItem{ctx: context.WithoutCancel(ctx), task: task, evt: evt, fn: fn})
	if o.draining {
		o.mu.Unlock()
		return
	}
	o.draining = true
	o.mu.Unlock()

	if s.goroutine.Go(context.WithoutCancel(ctx), "login.publish", func(context.Context) error {
		s.drainOutbox(o)
		return nil
	}) {
		return
	}

	o.mu.Lock()
	dropped := len(o.queue)
	o.queue = nil
	o.draining = false
	o.mu.Unlock()
	slog.ErrorContext(ctx, "failed to schedule login event publishing", "flow_id", evt.FlowID, "dropped", dropped)
}

func (s *Usecase) drainOutbox(o *outbox) {
	for {
		item, ok := o.next()
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(item.ctx, publishTimeout)
		if err := item.fn(ctx, item.evt); err != nil {
			slog.ErrorContext(ctx, "failed to publish login event", "task", item.task, "flow_id", item.evt.FlowID, "error", err)
		}
		cancel()
	}
}
