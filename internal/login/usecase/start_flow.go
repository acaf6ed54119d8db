package usecase

import (
	"context"
	"log/slog"

	"github.com/shandysiswandi/otplogin/internal/login/entity"
	"github.com/shandysiswandi/otplogin/internal/pkg/goerror"
)

type StartFlowOutput struct {
	FlowID        string
	AnchorID      string
	SiteKey       string
	Size          string
	DefaultRegion string
	Cooldown      entity.Cooldown
	SubmitEnabled bool
}

// StartFlow opens a login flow, the server-side counterpart of a freshly loaded login page.
func (s *Usecase) StartFlow(ctx context.Context) (*StartFlowOutput, error) {
	ctx, span := s.startSpan(ctx, "StartFlow")
	defer span.End()

	id := s.uuid.Generate()
	f := newFlow(id, id+"/"+s.anchorElement(), s.clock.Now())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, goerror.NewBusiness("Service is shutting down", goerror.CodeConflict)
	}
	if len(s.flows) >= s.maxFlows() {
		s.mu.Unlock()
		slog.WarnContext(ctx, "login flow limit reached", "limit", s.maxFlows())
		return nil, goerror.NewBusiness("Too many login attempts in progress, please try again later", goerror.CodeTooManyRequest)
	}
	s.flows[id] = f
	s.mu.Unlock()

	if s.activeFlows != nil {
		s.activeFlows.Add(ctx, 1)
	}

	opts := s.verifierOptions("")
	return &StartFlowOutput{
		FlowID:        id,
		AnchorID:      f.anchorID,
		SiteKey:       s.cfg.GetString("provider.recaptcha.site_key"),
		Size:          opts.Size,
		DefaultRegion: opts.DefaultRegion,
		Cooldown:      entity.IdleCooldown(),
		SubmitEnabled: true,
	}, nil
}

type FlowStateInput struct {
	FlowID string `validate:"required"`
}

func (s *Usecase) FlowState(ctx context.Context, in FlowStateInput) (*entity.FlowState, error) {
	_, span := s.startSpan(ctx, "FlowState")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	f, err := s.lookup(in.FlowID)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, errFlowNotFound()
	}
	return f.stateLocked(), nil
}

type CloseFlowInput struct {
	FlowID string `validate:"required"`
}

// CloseFlow tears a flow down: the timer stops, the verifier is cleared and the anchor released.
func (s *Usecase) CloseFlow(ctx context.Context, in CloseFlowInput) error {
	ctx, span := s.startSpan(ctx, "CloseFlow")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return goerror.NewInvalidInput(err)
	}

	f, err := s.lookup(in.FlowID)
	if err != nil {
		return err
	}

	f.mu.Lock()
	s.teardownLocked(f)
	f.mu.Unlock()
	s.remove(f)

	slog.InfoContext(ctx, "login flow closed", "flow_id", f.id)
	return nil
}

type StreamFlowInput struct {
	FlowID string `validate:"required"`
}

// StreamFlow subscribes to the flow's view events until ctx is done or the flow closes.
func (s *Usecase) StreamFlow(ctx context.Context, in StreamFlowInput) (<-chan entity.ViewEvent, error) {
	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	f, err := s.lookup(in.FlowID)
	if err != nil {
		return nil, err
	}

	sub := &subscriber{ch: make(chan entity.ViewEvent, subscriberBuffer)}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, errFlowNotFound()
	}
	f.subs[sub] = struct{}{}
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.subs, sub)
		sub.close()
		f.mu.Unlock()
	}()

	return sub.ch, nil
}
