package mq

import (
	"context"
	"encoding/json"

	"github.com/shandysiswandi/otplogin/internal/login/usecase"
	"github.com/shandysiswandi/otplogin/internal/pkg/hash"
	"github.com/shandysiswandi/otplogin/internal/pkg/instrument"
	"github.com/shandysiswandi/otplogin/internal/pkg/messaging"
	"github.com/shandysiswandi/otplogin/internal/shared/event"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const keyOfCorrelationID string = "cID"

type Messaging struct {
	client messaging.Publisher
	hasher hash.Hash
	ins    instrument.Instrumentation
}

// NewMessaging returns a publisher of login events. With a nil hasher the
// phone digest is left out.
func NewMessaging(client messaging.Publisher, hasher hash.Hash, ins instrument.Instrumentation) *Messaging {
	return &Messaging{client: client, hasher: hasher, ins: ins}
}

func (m *Messaging) PublishOTPRequested(ctx context.Context, evt usecase.OTPEvent) error {
	return m.publish(ctx, "PublishOTPRequested", event.LoginOTPRequestedDestination, evt)
}

func (m *Messaging) PublishOTPSendFailed(ctx context.Context, evt usecase.OTPEvent) error {
	return m.publish(ctx, "PublishOTPSendFailed", event.LoginOTPSendFailedDestination, evt)
}

func (m *Messaging) PublishOTPVerified(ctx context.Context, evt usecase.OTPEvent) error {
	return m.publish(ctx, "PublishOTPVerified", event.LoginOTPVerifiedDestination, evt)
}

func (m *Messaging) PublishOTPVerifyFailed(ctx context.Context, evt usecase.OTPEvent) error {
	return m.publish(ctx, "PublishOTPVerifyFailed", event.LoginOTPVerifyFailedDestination, evt)
}

func (m *Messaging) publish(ctx context.Context, name, destination string, evt usecase.OTPEvent) error {
	ctx, span := m.ins.Tracer("login.outbound.mq").Start(ctx, name)
	defer span.End()

	span.SetAttributes(attribute.String("messaging.destination", destination))

	var phoneHash string
	if m.hasher != nil && evt.PhoneNumber != "" {
		digest, err := m.hasher.Hash(evt.PhoneNumber)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		phoneHash = string(digest)
	}

	body, err := json.Marshal(event.LoginOTPMessage{
		FlowID:      evt.FlowID,
		MaskedPhone: evt.MaskedPhone,
		PhoneHash:   phoneHash,
		UserID:      evt.UserID,
		IsNewUser:   evt.IsNewUser,
		Reason:      evt.Reason,
		OccurredAt:  evt.OccurredAt.UnixMilli(),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	cID := instrument.GetCorrelationID(ctx)
	if _, err := m.client.Publish(ctx, destination, messaging.OutgoingMessage{
		Body:        body,
		Key:         []byte(evt.FlowID),
		OrderingKey: evt.FlowID,
		Headers:     []messaging.Header{{Key: keyOfCorrelationID, Value: []byte(cID)}},
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}
