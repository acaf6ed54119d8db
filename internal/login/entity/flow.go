package entity

import (
	"errors"
	"time"
)

var ErrFlowNotFound = errors.New("login: flow not found")

// FlowState is a point-in-time view of a login flow.
type FlowState struct {
	ID                  string
	AnchorID            string
	MaskedPhone         string
	Cooldown            Cooldown
	SubmitEnabled       bool
	HasPendingChallenge bool
	SendInFlight        bool
	CreatedAt           time.Time
}
