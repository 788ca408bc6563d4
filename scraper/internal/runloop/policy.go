package runloop

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/engine"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/lock"
)

// State is a run-loop state.
type State string

const (
	Idle         State = "idle"
	Running      State = "running"
	WaitingShort State = "waiting_short"
	WaitingLong  State = "waiting_long"
	Recovering   State = "recovering"
)

// States lists every state, for the state gauge.
var States = []State{Idle, Running, WaitingShort, WaitingLong, Recovering}

// Policy holds the wait intervals between runs.
type Policy struct {
	ShortInterval      time.Duration
	LongInterval       time.Duration
	RecoveryBackoff    time.Duration
	MaxRecoveryBackoff time.Duration
}

// DefaultPolicy waits a minute after incomplete runs and a day after clean ones.
func DefaultPolicy() Policy {
	return Policy{
		ShortInterval:      time.Minute,
		LongInterval:       24 * time.Hour,
		RecoveryBackoff:    30 * time.Second,
		MaxRecoveryBackoff: 5 * time.Minute,
	}
}

// Outcome is what one Running step produced.
type Outcome struct {
	// SessionErr is set when no authenticated session could be opened.
	SessionErr error
	// LockErr is set when the lock could not be taken.
	LockErr error
	Result  *engine.Result
}

// Err returns the error that ended the step, if any.
func (o Outcome) Err() error {
	switch {
	case o.LockErr != nil:
		return o.LockErr
	case o.SessionErr != nil:
		return o.SessionErr
	case o.Result != nil:
		return o.Result.Err
	}
	return nil
}

// Transitions maps step outcomes to the next state and wait.
// Consecutive recoveries back off exponentially; any non-fatal run resets the backoff.
type Transitions struct {
	policy  Policy
	backoff *backoff.ExponentialBackOff
}

// NewTransitions builds the transition function for p.
func NewTransitions(p Policy) *Transitions {
	def := DefaultPolicy()
	if p.ShortInterval <= 0 {
		p.ShortInterval = def.ShortInterval
	}
	if p.LongInterval <= 0 {
		p.LongInterval = def.LongInterval
	}
	if p.RecoveryBackoff <= 0 {
		p.RecoveryBackoff = def.RecoveryBackoff
	}
	if p.MaxRecoveryBackoff < p.RecoveryBackoff {
		p.MaxRecoveryBackoff = p.RecoveryBackoff
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.RecoveryBackoff
	b.MaxInterval = p.MaxRecoveryBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	return &Transitions{policy: p, backoff: b}
}

// Next returns the state to enter after o and how long to stay there.
func (t *Transitions) Next(o Outcome) (State, time.Duration) {
	switch {
	case o.LockErr != nil && errors.Is(o.LockErr, lock.ErrNotAcquired):
		return WaitingShort, t.policy.ShortInterval
	case o.LockErr != nil, o.SessionErr != nil, o.Result == nil, o.Result.Fatal():
		return Recovering, t.backoff.NextBackOff()
	}

	t.backoff.Reset()
	if o.Result.HasPending || o.Result.Stats.Errors > 0 {
		return WaitingShort, t.policy.ShortInterval
	}
	return WaitingLong, t.policy.LongInterval
}
