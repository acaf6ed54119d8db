// Package idempotency guards side-effecting operations so that a repeated
// submission with the same key runs at most once within a state TTL.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrAlreadyInProgress = errors.New("operation already in progress")
	ErrAlreadyCompleted  = errors.New("operation already completed")
	ErrAlreadyFailed     = errors.New("operation already failed")
	ErrInvalidState      = errors.New("invalid state")
)

// State is the recorded outcome of an operation key.
type State string

const (
	StateNone       State = "none"        // operation can proceed
	StateInProgress State = "in_progress" // another caller holds the key
	StateCompleted  State = "completed"   // operation finished successfully
	StateFailed     State = "failed"      // operation finished with an error
	StateError      State = "error"       // state could not be read
)

func (s State) String() string {
	return string(s)
}

// Idempotency tracks operation state by key.
type Idempotency interface {
	Acquire(ctx context.Context, key string, lockDuration time.Duration) (State, error)
	MarkCompleted(ctx context.Context, key string, ttl time.Duration) error
	MarkFailed(ctx context.Context, key string, ttl time.Duration) error
	Exec(ctx context.Context, key string, fn func(context.Context) error, opts ...Option) error
}

const (
	defaultPrefix       = "idempotency:"
	defaultLockDuration = time.Minute
	defaultStateTTL     = time.Minute
)

// StateTracker is a Redis-backed Idempotency using SET NX locks.
type StateTracker struct {
	client redis.UniversalClient
	prefix string
}

// New returns a StateTracker storing keys under prefix ("idempotency:" when empty).
func New(client redis.UniversalClient, prefix string) *StateTracker {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &StateTracker{client: client, prefix: prefix}
}

// Option tunes Exec.
type Option func(*execOptions)

type execOptions struct {
	lockDuration time.Duration
	stateTTL     time.Duration
}

// WithLockDuration bounds how long an in-progress key blocks other callers.
func WithLockDuration(lockDuration time.Duration) Option {
	return func(o *execOptions) { o.lockDuration = lockDuration }
}

// WithStateTTL sets how long a completed or failed outcome is remembered.
func WithStateTTL(stateTTL time.Duration) Option {
	return func(o *execOptions) { o.stateTTL = stateTTL }
}

// Acquire tries to take key for a new operation. StateNone means the caller owns it.
func (s *StateTracker) Acquire(ctx context.Context, key string, lockDuration time.Duration) (State, error) {
	fk := s.prefix + key

	for range 2 {
		acquired, err := s.client.SetNX(ctx, fk, StateInProgress.String(), lockDuration).Result()
		if err != nil {
			return StateError, err
		}
		if acquired {
			return StateNone, nil
		}

		current, err := s.client.Get(ctx, fk).Result()
		if errors.Is(err, redis.Nil) {
			// expired between SETNX and GET, try once more
			continue
		}
		if err != nil {
			return StateError, err
		}

		switch State(current) {
		case StateInProgress, StateCompleted, StateFailed:
			return State(current), nil
		default:
			return StateError, ErrInvalidState
		}
	}

	return StateError, ErrInvalidState
}

func (s *StateTracker) MarkCompleted(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Set(ctx, s.prefix+key, StateCompleted.String(), ttl).Err()
}

func (s *StateTracker) MarkFailed(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Set(ctx, s.prefix+key, StateFailed.String(), ttl).Err()
}

// Exec runs fn once per key. A repeated call returns ErrAlreadyInProgress,
// ErrAlreadyCompleted or ErrAlreadyFailed instead of running fn again.
func (s *StateTracker) Exec(ctx context.Context, key string, fn func(context.Context) error, opts ...Option) error {
	o := execOptions{lockDuration: defaultLockDuration, stateTTL: defaultStateTTL}
	for _, opt := range opts {
		opt(&o)
	}
	if o.lockDuration <= 0 {
		o.lockDuration = defaultLockDuration
	}
	if o.stateTTL <= 0 {
		o.stateTTL = defaultStateTTL
	}

	state, err := s.Acquire(ctx, key, o.lockDuration)
	if err != nil {
		return err
	}

	switch state {
	case StateInProgress:
		return ErrAlreadyInProgress
	case StateCompleted:
		return ErrAlreadyCompleted
	case StateFailed:
		return ErrAlreadyFailed
	}

	if err := fn(ctx); err != nil {
		return errors.Join(err, s.MarkFailed(ctx, key, o.stateTTL))
	}

	return s.MarkCompleted(ctx, key, o.stateTTL)
}
