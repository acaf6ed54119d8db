package mq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shandysiswandi/otplogin/internal/login/usecase"
	"github.com/shandysiswandi/otplogin/internal/pkg/hash"
	"github.com/shandysiswandi/otplogin/internal/pkg/instrument"
	"github.com/shandysiswandi/otplogin/internal/pkg/messaging"
	"github.com/shandysiswandi/otplogin/internal/shared/event"
)

func TestMessaging_Publish(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	evt := usecase.OTPEvent{FlowID: "flow-1", PhoneNumber: "+919876543210", MaskedPhone: "+********3210", UserID: "uid-1", IsNewUser: true, Reason: "invalid-code", OccurredAt: at}

	tests := []struct {
		name        string
		publish     func(*Messaging, context.Context, usecase.OTPEvent) error
		destination string
	}{
		{name: "Requested", publish: (*Messaging).PublishOTPRequested, destination: event.LoginOTPRequestedDestination},
		{name: "SendFailed", publish: (*Messaging).PublishOTPSendFailed, destination: event.LoginOTPSendFailedDestination},
		{name: "Verified", publish: (*Messaging).PublishOTPVerified, destination: event.LoginOTPVerifiedDestination},
		{name: "VerifyFailed", publish: (*Messaging).PublishOTPVerifyFailed, destination: event.LoginOTPVerifyFailedDestination},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			broker := messaging.NewMemory(10)
			hasher := hash.NewHMACSHA256("secret")
			m := NewMessaging(broker, hasher, instrument.NewNoop())
			ctx := instrument.SetCorrelationID(context.Background(), "cid-123")

			// Act
			err := tt.publish(m, ctx, evt)

			// Assert
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			msgs := broker.Messages()
			if len(msgs) != 1 || msgs[0].Destination != tt.destination {
				t.Fatalf("unexpected messages: %+v", msgs)
			}

			got := msgs[0].Message
			if string(got.Key) != "flow-1" || got.OrderingKey != "flow-1" {
				t.Errorf("unexpected keys %q/%q", got.Key, got.OrderingKey)
			}
			if len(got.Headers) != 1 || got.Headers[0].Key != "cID" || string(got.Headers[0].Value) != "cid-123" {
				t.Errorf("unexpected headers %+v", got.Headers)
			}

			var body event.LoginOTPMessage
			if err := json.Unmarshal(got.Body, &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			digest, _ := hasher.Hash("+919876543210")
			want := event.LoginOTPMessage{FlowID: "flow-1", MaskedPhone: "+********3210", PhoneHash: string(digest), UserID: "uid-1", IsNewUser: true, Reason: "invalid-code", OccurredAt: at.UnixMilli()}
			if body != want {
				t.Errorf("body = %+v, want %+v", body, want)
			}
		})
	}
}

func TestMessaging_WithoutHasher(t *testing.T) {
	broker := messaging.NewMemory(10)
	m := NewMessaging(broker, nil, instrument.NewNoop())

	if err := m.PublishOTPVerified(context.Background(), usecase.OTPEvent{FlowID: "flow-1", PhoneNumber: "+919876543210"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var body map[string]any
	if err := json.Unmarshal(broker.Messages()[0].Message.Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if _, ok := body["phone_hash"]; ok {
		t.Fatalf("phone_hash must be omitted without a hasher: %v", body)
	}
	for _, v := range body {
		if v == "+919876543210" {
			t.Fatalf("raw phone number leaked: %v", body)
		}
	}
}

func TestMessaging_PublishError(t *testing.T) {
	broker := messaging.NewMemory(10)
	_ = broker.Close()
	m := NewMessaging(broker, nil, instrument.NewNoop())

	err := m.PublishOTPRequested(context.Background(), usecase.OTPEvent{FlowID: "flow-1"})

	if err == nil || errors.Is(err, messaging.ErrTopicRequired) {
		t.Fatalf("expected closed broker error, got %v", err)
	}
}
