// Package uid generates identifiers for flows, request correlation and
// sandbox users.
package uid

// StringID generates unique string identifiers.
type StringID interface {
	Generate() string
}

// NumberID generates unique, roughly time-ordered numeric identifiers.
type NumberID interface {
	Generate() int64
}
