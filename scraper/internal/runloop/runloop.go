// Package runloop drives sync runs forever: one authenticated session per run,
// then a wait whose length depends on how the run went.
package runloop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bborgeswq/eproc-scraper-2.0/common/logging"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/engine"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/lock"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/metrics"
)

const releaseTimeout = 5 * time.Second

// Session is an authenticated portal session.
type Session interface {
	engine.Source
	Close() error
}

// OpenFunc logs in and returns a fresh session.
type OpenFunc func(ctx context.Context) (Session, error)

// Runner executes one sync pass.
type Runner interface {
	Run(ctx context.Context, src engine.Source) *engine.Result
}

// Status is a snapshot for the status endpoint.
type Status struct {
	State      State          `json:"state"`
	Since      time.Time      `json:"since"`
	NextRunAt  *time.Time     `json:"next_run_at,omitempty"`
	Runs       int            `json:"runs"`
	LastResult *engine.Result `json:"last_result,omitempty"`
	LastError  string         `json:"last_error,omitempty"`
}

// Loop is the long-running sync driver.
type Loop struct {
	runner      Runner
	open        OpenFunc
	locker      lock.Locker
	transitions *Transitions
	logger      *logging.Logger
	now         func() time.Time

	mu        sync.RWMutex
	state     State
	since     time.Time
	nextRunAt *time.Time
	runs      int
	last      *engine.Result
	lastErr   error

	// serializes steps between Start and RunOnce callers
	stepMu sync.Mutex

	started  bool
	stopOnce sync.Once
	stop     chan struct{}
	stopped  chan struct{}
}

// Option configures a Loop.
type Option func(*Loop)

// WithLocker sets the cross-process lock. Default: no lock.
func WithLocker(l lock.Locker) Option {
	return func(lp *Loop) {
		if l != nil {
			lp.locker = l
		}
	}
}

// WithPolicy sets the wait intervals.
func WithPolicy(p Policy) Option {
	return func(lp *Loop) { lp.transitions = NewTransitions(p) }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(lp *Loop) {
		if l != nil {
			lp.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(lp *Loop) { lp.now = now }
}

// New creates a loop running runner against sessions from open.
func New(runner Runner, open OpenFunc, opts ...Option) *Loop {
	l := &Loop{
		runner:      runner,
		open:        open,
		locker:      lock.Noop{},
		transitions: NewTransitions(DefaultPolicy()),
		logger:      logging.Default(),
		now:         time.Now,
		stop:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.setState(Idle, nil)
	return l
}

// Start runs immediately, then keeps running after each wait until Stop or ctx ends.
// This should be called in a goroutine.
// A second call returns immediately. After Stop, Start does not run at all.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.mu.Unlock()
	defer close(l.stopped)

	select {
	case <-l.stop:
		return
	default:
	}

	l.logger.Info("Run loop started")
	for {
		outcome := l.step(ctx)
		if ctx.Err() != nil {
			l.setState(Idle, nil)
			l.logger.Info("Run loop context cancelled")
			return
		}
		_, delay := l.transition(outcome)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-l.stop:
			timer.Stop()
			l.setState(Idle, nil)
			l.logger.Info("Run loop stopped")
			return
		case <-ctx.Done():
			timer.Stop()
			l.setState(Idle, nil)
			l.logger.Info("Run loop context cancelled")
			return
		}
	}
}

// Stop signals the loop to stop and waits for it to finish. On a loop that
// was never started it returns at once.
// An in-flight run is not interrupted; cancel the Start context for that.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
	l.mu.RLock()
	started := l.started
	l.mu.RUnlock()
	if started {
		<-l.stopped
	}
}

// RunOnce performs a single Running step and moves the loop to the state it leads to.
// The returned error is the lock, session or fatal run error, if any.
func (l *Loop) RunOnce(ctx context.Context) (*engine.Result, error) {
	outcome := l.step(ctx)
	l.transition(outcome)
	return outcome.Result, outcome.Err()
}

// step takes the lock, opens a session, runs and cleans up.
func (l *Loop) step(ctx context.Context) Outcome {
	l.stepMu.Lock()
	defer l.stepMu.Unlock()

	l.setState(Running, nil)
	log := l.logger.WithContext(ctx)

	lease, err := l.locker.Acquire(ctx)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			log.Info("Another process is syncing, skipping this run")
		} else {
			log.Error("Failed to take sync lock", logging.Error(err))
		}
		return Outcome{LockErr: err}
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := lease.Release(rctx); err != nil {
			log.Warn("Failed to release sync lock", logging.Error(err))
		}
	}()

	session, err := l.open(ctx)
	if err != nil {
		log.Error("Failed to open portal session", logging.Phase("login"), logging.Error(err))
		return Outcome{SessionErr: fmt.Errorf("open session: %w", err)}
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Warn("Failed to close portal session", logging.Error(err))
		}
	}()

	return Outcome{Result: l.runner.Run(ctx, session)}
}

func (l *Loop) transition(o Outcome) (State, time.Duration) {
	l.mu.Lock()
	next, delay := l.transitions.Next(o)
	at := l.now().Add(delay)
	l.runs++
	if o.Result != nil {
		l.last = o.Result
	}
	l.lastErr = o.Err()
	l.mu.Unlock()

	l.setState(next, &at)
	l.logger.Info("Next sync scheduled",
		logging.State(string(next)),
		"wait", delay.String(),
		"next_run_at", at.Format(time.RFC3339))
	return next, delay
}

func (l *Loop) setState(s State, nextRunAt *time.Time) {
	l.mu.Lock()
	l.state = s
	l.since = l.now()
	l.nextRunAt = nextRunAt
	l.mu.Unlock()

	names := make([]string, len(States))
	for i, st := range States {
		names[i] = string(st)
	}
	metrics.SetRunLoopState(string(s), names)
}

// State returns the current state.
func (l *Loop) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// LastResult returns the result of the latest completed run, or nil.
func (l *Loop) LastResult() *engine.Result {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.last
}

// Status returns a snapshot of the loop.
func (l *Loop) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	st := Status{
		State:      l.state,
		Since:      l.since,
		Runs:       l.runs,
		LastResult: l.last,
	}
	if l.nextRunAt != nil {
		at := *l.nextRunAt
		st.NextRunAt = &at
	}
	if l.lastErr != nil {
		st.LastError = l.lastErr.Error()
	}
	return st
}
