package config

import (
	"io"
	"time"
)

// Config reads typed configuration values by dotted key (for example
// "modules.login.cooldown_seconds").
//
// Missing keys or values that cannot be converted yield the zero value of
// the requested type; callers apply their own defaults.
type Config interface {
	io.Closer

	GetBool(key string) bool
	GetString(key string) string
	GetInt(key string) int
	GetFloat64(key string) float64

	// GetSecond reads an integer value and returns it as a number of seconds.
	GetSecond(key string) time.Duration
	// GetMinute reads an integer value and returns it as a number of minutes.
	GetMinute(key string) time.Duration

	// GetArray reads a YAML sequence or a value stored as "<a>,<b>,...".
	// Blank elements are dropped.
	GetArray(key string) []string
	// GetMap reads a value stored as "<k1>:<v1>,<k2>:<v2>,...".
	GetMap(key string) map[string]string
}
