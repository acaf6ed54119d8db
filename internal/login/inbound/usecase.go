package inbound

import (
	"context"

	"github.com/shandysiswandi/otplogin/internal/login/entity"
	"github.com/shandysiswandi/otplogin/internal/login/usecase"
)

type ucStream interface {
	StreamFlow(ctx context.Context, in usecase.StreamFlowInput) (<-chan entity.ViewEvent, error)
}

type uc interface {
	ucStream

	StartFlow(ctx context.Context) (*usecase.StartFlowOutput, error)
	FlowState(ctx context.Context, in usecase.FlowStateInput) (*entity.FlowState, error)
	CloseFlow(ctx context.Context, in usecase.CloseFlowInput) error
	RequestOTP(ctx context.Context, in usecase.RequestOTPInput) (*usecase.RequestOTPOutput, error)
	VerifyOTP(ctx context.Context, in usecase.VerifyOTPInput) (*usecase.VerifyOTPOutput, error)
}
