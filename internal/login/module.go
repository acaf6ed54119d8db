package login

import (
	"context"
	"fmt"

	"github.com/shandysiswandi/otplogin/internal/login/inbound"
	"github.com/shandysiswandi/otplogin/internal/login/outbound/idp"
	"github.com/shandysiswandi/otplogin/internal/login/outbound/mq"
	"github.com/shandysiswandi/otplogin/internal/login/usecase"
	"github.com/shandysiswandi/otplogin/internal/pkg/clock"
	"github.com/shandysiswandi/otplogin/internal/pkg/config"
	"github.com/shandysiswandi/otplogin/internal/pkg/goroutine"
	"github.com/shandysiswandi/otplogin/internal/pkg/hash"
	"github.com/shandysiswandi/otplogin/internal/pkg/idempotency"
	"github.com/shandysiswandi/otplogin/internal/pkg/instrument"
	"github.com/shandysiswandi/otplogin/internal/pkg/messaging"
	"github.com/shandysiswandi/otplogin/internal/pkg/router"
	"github.com/shandysiswandi/otplogin/internal/pkg/uid"
	"github.com/shandysiswandi/otplogin/internal/pkg/validator"
)

type Dependency struct {
	Ctx        context.Context            `validate:"required"`
	Config     config.Config              `validate:"required"`
	Instrument instrument.Instrumentation `validate:"required"`
	UUID       uid.StringID               `validate:"required"`
	UID        uid.NumberID               `validate:"required"`
	Clock      clock.Clocker              `validate:"required"`
	Goroutine  *goroutine.Manager         `validate:"required"`
	Validator  validator.Validator        `validate:"required"`
	Router     *router.Router             `validate:"required"`
	Messaging  messaging.Messaging        `validate:"required"`
	// Idempotency is optional; duplicate-submit protection is off without it.
	Idempotency idempotency.Idempotency
	// Provider overrides the identity provider built from provider.* config.
	Provider *idp.Provider
}

// Module is a running login module.
type Module struct {
	uc *usecase.Usecase
}

func New(dep Dependency) (*Module, error) {
	if err := dep.Validator.Validate(dep); err != nil {
		return nil, fmt.Errorf("login: invalid dependency: %w", err)
	}

	provider := dep.Provider
	if provider == nil {
		var err error
		provider, err = idp.NewFromConfig(dep.Config, dep.Instrument, dep.Clock, dep.UUID, dep.UID)
		if err != nil {
			return nil, err
		}
	}

	uc := usecase.New(usecase.Dependency{
		Provider:      provider,
		RepoMessaging: mq.NewMessaging(dep.Messaging, phoneHasher(dep.Config), dep.Instrument),
		Idempotency:   dep.Idempotency,
		Validator:     dep.Validator,
		Config:        dep.Config,
		Clock:         dep.Clock,
		UUID:          dep.UUID,
		Instrument:    dep.Instrument,
		Goroutine:     dep.Goroutine,
	})

	inbound.RegisterHTTPEndpoint(dep.Router, uc)
	dep.Goroutine.Go(dep.Ctx, "login.reaper", uc.RunReaper)

	return &Module{uc: uc}, nil
}

// phoneHasher keys published phone digests with modules.login.phone_hash_secret.
// Digests are off when no secret is configured.
func phoneHasher(cfg config.Config) hash.Hash {
	secret := cfg.GetString("modules.login.phone_hash_secret")
	if secret == "" {
		return nil
	}
	return hash.NewHMACSHA256(secret)
}

// Close tears down every open login flow.
func (m *Module) Close(context.Context) error {
	return m.uc.Close()
}
