package usecase

import (
	"time"

	"github.com/shandysiswandi/otplogin/internal/login/entity"
)

const (
	defaultPostLoginRoute  = "/logged"
	defaultAnchorElement   = "sign-in-button"
	defaultCaptchaSize     = "invisible"
	defaultRegion          = "IN"
	defaultProviderTimeout = 15 * time.Second
	defaultFlowIdleTTL     = 30 * time.Minute
	defaultReaperInterval  = time.Minute
	defaultIdempotencyTTL  = 5 * time.Minute
	defaultMaxFlows        = 10000
)

func (s *Usecase) stringOr(key, def string) string {
	if v := s.cfg.GetString(key); v != "" {
		return v
	}
	return def
}

func (s *Usecase) durationOr(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}

func (s *Usecase) cooldownSeconds() int {
	if v := s.cfg.GetInt("modules.login.cooldown_seconds"); v > 0 {
		return v
	}
	return entity.DefaultCooldownSeconds
}

func (s *Usecase) maxFlows() int {
	if v := s.cfg.GetInt("modules.login.max_flows"); v > 0 {
		return v
	}
	return defaultMaxFlows
}

func (s *Usecase) postLoginRoute() string {
	return s.stringOr("modules.login.post_login_route", defaultPostLoginRoute)
}

func (s *Usecase) anchorElement() string {
	return s.stringOr("modules.login.anchor_element", defaultAnchorElement)
}

func (s *Usecase) verifierOptions(response string) entity.VerifierOptions {
	return entity.VerifierOptions{
		Size:          s.stringOr("modules.login.captcha_size", defaultCaptchaSize),
		DefaultRegion: s.stringOr("modules.login.default_region", defaultRegion),
		Response:      response,
	}
}

func (s *Usecase) providerTimeout() time.Duration {
	return s.durationOr(s.cfg.GetSecond("provider.timeout_seconds"), defaultProviderTimeout)
}

func (s *Usecase) flowIdleTTL() time.Duration {
	return s.durationOr(s.cfg.GetMinute("modules.login.flow_idle_ttl_minutes"), defaultFlowIdleTTL)
}

func (s *Usecase) reaperInterval() time.Duration {
	return s.durationOr(s.cfg.GetSecond("modules.login.reaper_interval_seconds"), defaultReaperInterval)
}

func (s *Usecase) idempotencyTTL() time.Duration {
	return s.durationOr(s.cfg.GetSecond("modules.login.idempotency_ttl_seconds"), defaultIdempotencyTTL)
}
