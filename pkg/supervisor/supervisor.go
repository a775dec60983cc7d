// Package supervisor keeps one live connection to the remote service, drives it
// through bootstrap once, and feeds pulled updates to the router.
//
// The serve loop never waits for dispatches. A pull error triggers a full
// reconnect after a backoff of 2^min(failures, 10) seconds. The failure streak is
// reset by the next clean update pull, not by a successful reconnect. A reconnect
// that lands on an unauthorized session ends the loop with ErrAuthorizationLost.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"tgvisor/pkg/client"
	"tgvisor/pkg/metrics"
	"tgvisor/pkg/router"
	"tgvisor/pkg/session"
	"tgvisor/pkg/update"
)

const maxBackoffExponent = 10

// ErrAuthorizationLost means a reconnect found the session logged out remotely.
var ErrAuthorizationLost = errors.New("authorization lost: session was logged out remotely")

// ConnectError wraps a failure to build or verify a connection.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string { return "connect: " + e.Err.Error() }
func (e *ConnectError) Unwrap() error { return e.Err }

// PullError wraps a failure of the live connection to yield the next update.
type PullError struct {
	Err error
}

func (e *PullError) Error() string { return "pull update: " + e.Err.Error() }
func (e *PullError) Unwrap() error { return e.Err }

// Backoff returns the delay before the reconnect attempt that follows the given
// number of consecutive failures.
func Backoff(failures int) time.Duration {
	if failures < 0 {
		failures = 0
	}

	return time.Duration(1<<min(failures, maxBackoffExponent)) * time.Second
}

// Bootstrapper authenticates the first connection.
type Bootstrapper interface {
	EnsureAuthenticated(ctx context.Context, conn client.Authenticator) (client.Identity, error)
}

// Dispatcher receives every pulled update.
type Dispatcher interface {
	Dispatch(ctx context.Context, conn client.Conn, u *update.Update) router.Result
}

// SleepFunc waits for d or until ctx is done, returning ctx.Err() in the latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

type Options struct {
	Dialer     client.Dialer
	Store      session.Store
	Bootstrap  Bootstrapper
	Dispatcher Dispatcher
	// Client carries app credentials and proxy; Session is filled from Store on every connect.
	Client client.Config
	// Slot is shared with components that borrow the live connection. Optional.
	Slot *client.Slot
	// Workers > 0 bounds concurrent dispatches with a fixed pool; 0 spawns one goroutine per update.
	Workers   int
	QueueSize int
	Sleep     SleepFunc
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

type Supervisor struct {
	dialer     client.Dialer
	store      session.Store
	bootstrap  Bootstrapper
	dispatcher Dispatcher
	clientCfg  client.Config
	slot       *client.Slot
	workers    int
	queueSize  int
	sleep      SleepFunc
	log        *slog.Logger
	metrics    *metrics.Metrics

	state    atomic.Int32
	failures atomic.Int64
	running  atomic.Bool

	mu          sync.RWMutex
	identity    client.Identity
	connectedAt time.Time
	lastUpdate  time.Time
}

func New(opts Options) (*Supervisor, error) {
	if opts.Dialer == nil {
		return nil, errors.New("dialer is required")
	}
	if opts.Store == nil {
		return nil, errors.New("session store is required")
	}
	if opts.Bootstrap == nil {
		return nil, errors.New("bootstrap is required")
	}
	if opts.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if opts.Workers < 0 || opts.QueueSize < 0 {
		return nil, errors.New("dispatch workers and queue size must not be negative")
	}

	slot := opts.Slot
	if slot == nil {
		slot = &client.Slot{}
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Supervisor{
		dialer:     opts.Dialer,
		store:      opts.Store,
		bootstrap:  opts.Bootstrap,
		dispatcher: opts.Dispatcher,
		clientCfg:  opts.Client,
		slot:       slot,
		workers:    opts.Workers,
		queueSize:  opts.QueueSize,
		sleep:      sleep,
		log:        log.With("component", "supervisor"),
		metrics:    opts.Metrics,
	}
	s.metrics.StateChanged("", StateDisconnected.String())

	return s, nil
}

// Slot returns the connection slot the supervisor publishes into.
func (s *Supervisor) Slot() *client.Slot {
	return s.slot
}

// Run connects, authenticates and serves until ctx is canceled or the session
// is lost. Cancellation returns nil. A failed first connect returns a
// *ConnectError, a failed handshake returns the bootstrap error, and a remote
// logout returns ErrAuthorizationLost. Run must not be called concurrently.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("supervisor is already running")
	}
	defer s.running.Store(false)
	defer s.terminate()

	s.setState(StateConnecting)
	conn, err := s.connect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		s.log.Error("Initial connect failed", "error", err)
		return &ConnectError{Err: err}
	}

	s.setState(StateAuthenticating)
	me, err := s.bootstrap.EnsureAuthenticated(ctx, conn)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		s.log.Error("Authentication failed", "error", err)
		return err
	}
	s.setIdentity(me)
	s.setState(StateServing)
	s.log.Info("Serving updates", "identity", me.String(), "workers", s.workers)

	dispatch := s.startDispatch(ctx)

	for {
		u, err := conn.NextUpdate(ctx)
		if ctx.Err() != nil {
			s.log.Info("Stopping supervisor")
			return nil
		}
		if err != nil {
			conn, err = s.reconnect(ctx, &PullError{Err: err})
			if err != nil {
				if errors.Is(err, ErrAuthorizationLost) {
					return err
				}
				s.log.Info("Stopping supervisor")
				return nil
			}
			continue
		}
		s.resetFailures()
		if u == nil {
			continue
		}

		s.updatePulled()
		s.metrics.UpdateReceived(u.Kind.String())
		dispatch(conn, u)
	}
}

// reconnect sleeps and redials until a connection passes the authorization
// check. Every failed attempt extends the streak. It returns ctx.Err() when
// canceled and ErrAuthorizationLost when the new session is unauthorized.
func (s *Supervisor) reconnect(ctx context.Context, cause error) (client.Conn, error) {
	for {
		s.setState(StateDisconnected)
		failures := int(s.failures.Add(1))
		delay := Backoff(failures)
		s.log.Warn("Connection error, reconnecting", "error", cause, "failures", failures, "delay", delay.String())
		s.metrics.TransientError(errorClass(cause), failures, delay)

		if err := s.sleep(ctx, delay); err != nil {
			return nil, err
		}

		s.setState(StateConnecting)
		conn, err := s.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.metrics.Reconnect("dial_failed")
			cause = &ConnectError{Err: err}
			continue
		}

		authorized, err := conn.IsAuthorized(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.metrics.Reconnect("check_failed")
			cause = &ConnectError{Err: fmt.Errorf("check authorization: %w", err)}
			continue
		}
		if !authorized {
			s.metrics.Reconnect("unauthorized")
			s.log.Error("Session is no longer authorized, giving up", "failures", failures)
			return nil, ErrAuthorizationLost
		}

		s.metrics.Reconnect("ok")
		s.setConnected()
		s.setState(StateServing)
		s.log.Info("Reconnected", "failures", failures)
		return conn, nil
	}
}

// connect tears down the current connection, then dials a fresh one from the
// persisted session and publishes it. Only the Run loop calls it.
func (s *Supervisor) connect(ctx context.Context) (client.Conn, error) {
	if err := s.slot.Clear(); err != nil {
		s.log.Debug("Closing previous connection failed", "error", err)
	}

	blob, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	cfg := s.clientCfg
	cfg.Session = blob
	conn, err := s.dialer.Dial(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	_ = s.slot.Replace(conn)
	s.setConnected()
	return conn, nil
}

func (s *Supervisor) terminate() {
	if err := s.slot.Clear(); err != nil {
		s.log.Debug("Closing connection failed", "error", err)
	}
	s.setState(StateTerminated)
}

// resetFailures ends the failure streak. Every clean pull counts, including an
// empty long poll.
func (s *Supervisor) resetFailures() {
	if s.failures.Swap(0) != 0 {
		s.log.Debug("Failure streak reset")
		s.metrics.FailuresReset()
	}
}

func (s *Supervisor) updatePulled() {
	s.mu.Lock()
	s.lastUpdate = time.Now().UTC()
	s.mu.Unlock()
}

func (s *Supervisor) setState(next State) {
	prev := State(s.state.Swap(int32(next)))
	if prev == next {
		return
	}
	s.metrics.StateChanged(prev.String(), next.String())
	s.log.Debug("State changed", "from", prev.String(), "to", next.String())
}

func (s *Supervisor) setIdentity(me client.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = me
}

func (s *Supervisor) setConnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectedAt = time.Now().UTC()
}

func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Failures returns the current failure streak.
func (s *Supervisor) Failures() int {
	return int(s.failures.Load())
}

// Identity returns the authenticated identity, zero before bootstrap completes.
func (s *Supervisor) Identity() client.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// Snapshot is a point-in-time view for status reporting.
type Snapshot struct {
	State        State
	Failures     int
	Identity     client.Identity
	ConnectedAt  time.Time
	LastUpdateAt time.Time
}

func (s *Supervisor) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		State:        s.State(),
		Failures:     s.Failures(),
		Identity:     s.identity,
		ConnectedAt:  s.connectedAt,
		LastUpdateAt: s.lastUpdate,
	}
}

func errorClass(err error) string {
	var pullErr *PullError
	if errors.As(err, &pullErr) {
		return "pull"
	}

	return "connect"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
