// Package clock provides a tiny time abstraction.
//
// Production code should depend on the Clocker interface instead of calling
// time.Now() or time.NewTicker() directly, so countdowns and expiry checks can
// be driven by a fake clock in tests.
package clock
