package entity

// DefaultCooldownSeconds is the resend cooldown length.
const DefaultCooldownSeconds = 60

// Cooldown is the resend gate of a flow.
type Cooldown struct {
	Remaining     int  `json:"remaining"`
	ResendAllowed bool `json:"resend_allowed"`
}

// IdleCooldown is the state before any OTP was sent and after a countdown ends.
func IdleCooldown() Cooldown {
	return Cooldown{Remaining: 0, ResendAllowed: true}
}

// StartCooldown begins a countdown of seconds with resend blocked.
func StartCooldown(seconds int) Cooldown {
	if seconds <= 0 {
		return IdleCooldown()
	}
	return Cooldown{Remaining: seconds, ResendAllowed: false}
}

// Tick advances the countdown by one second. Resend becomes allowed exactly
// when Remaining reaches zero; an idle cooldown is unchanged.
func (c Cooldown) Tick() Cooldown {
	if c.ResendAllowed {
		return c
	}
	c.Remaining--
	if c.Remaining <= 0 {
		return IdleCooldown()
	}
	return c
}
