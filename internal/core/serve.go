package core

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	ncerr "minircd/internal/errors"
	"minircd/internal/irc"
	"minircd/internal/metrics"
	"minircd/internal/retry"
	"minircd/internal/session"
	"minircd/internal/transport"
	"minircd/util"
)

// ServeMode accepts clients on every configured transport and runs one
// session per connection, all sharing a single registry.
type ServeMode struct {
	Acceptors      []transport.Acceptor
	Registry       *irc.Registry // nil creates one
	Options        session.Options
	MaxConnections int           // 0 = unlimited
	StatsInterval  time.Duration // 0 = no periodic stats
	GracePeriod    time.Duration // wait for sessions on shutdown
	Logger         *util.Logger
	Metrics        *metrics.Collector
}

// Run binds every transport and serves until ctx is cancelled or a
// listener fails permanently.  A bind failure closes the listeners
// opened so far and is returned.  On shutdown the listeners are closed,
// live sessions have their streams closed, and Run waits up to
// GracePeriod for them to finish.
func (m *ServeMode) Run(ctx context.Context) error {
	if len(m.Acceptors) == 0 {
		return fmt.Errorf("no transports configured")
	}
	if m.Registry == nil {
		m.Registry = irc.NewRegistry(m.Metrics)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	listeners := make([]net.Listener, 0, len(m.Acceptors))
	for _, a := range m.Acceptors {
		ln, err := a.Listen(ctx)
		if err != nil {
			closeAll(listeners)
			return fmt.Errorf("%s: %w", a, err)
		}
		m.Logger.Info("listening on %s", a)
		listeners = append(listeners, ln)
	}

	var slots chan struct{}
	if m.MaxConnections > 0 {
		slots = make(chan struct{}, m.MaxConnections)
	}

	var (
		loops    sync.WaitGroup
		sessions sync.WaitGroup
		errs     = make(chan error, len(listeners))
	)
	for i, ln := range listeners {
		loops.Add(1)
		go func(a transport.Acceptor, ln net.Listener) {
			defer loops.Done()
			if err := m.acceptLoop(ctx, a, ln, slots, &sessions); err != nil {
				errs <- fmt.Errorf("%s: %w", a, err)
				cancel()
			}
		}(m.Acceptors[i], ln)
	}

	if m.StatsInterval > 0 {
		go m.reportStats(ctx)
	}

	<-ctx.Done()
	closeAll(listeners)
	loops.Wait()
	m.drain(&sessions)
	m.Logger.Verbose("stats: %s", m.Metrics.CompactJSON())

	select {
	case err := <-errs:
		return err
	default:
		return nil
	}
}

// acceptLoop accepts until ln is closed.  Temporary errors are retried
// with backoff; any other error ends the loop and is returned.
func (m *ServeMode) acceptLoop(ctx context.Context, a transport.Acceptor, ln net.Listener, slots chan struct{}, sessions *sync.WaitGroup) error {
	b := retry.AcceptBackoff()
	b.OnRetry = func(attempt int, err error, wait time.Duration) {
		m.Logger.Warn("%s: accept: %v (retrying in %v)", a, err, wait)
	}

	for {
		var conn net.Conn
		err := b.Do(ctx, func(int) error {
			c, err := ln.Accept()
			if err == nil {
				conn = c
				return nil
			}
			if ctx.Err() != nil || ncerr.Is(err, net.ErrClosed) || ncerr.Is(err, ncerr.ErrListenerClosed) {
				return retry.Permanent(ncerr.ErrListenerClosed)
			}
			if ncerr.IsTemporary(err) {
				return err
			}
			return retry.Permanent(ncerr.Wrap("accept", a.String(), err))
		})
		if err != nil {
			if ctx.Err() != nil || ncerr.Is(err, ncerr.ErrListenerClosed) {
				return nil
			}
			return err
		}
		m.handle(ctx, conn, slots, sessions)
	}
}

// handle starts a session for conn, or closes it straight away when
// the connection limit is reached.
func (m *ServeMode) handle(ctx context.Context, conn net.Conn, slots chan struct{}, sessions *sync.WaitGroup) {
	if slots != nil {
		select {
		case slots <- struct{}{}:
		default:
			m.Metrics.ConnectionRejected()
			m.Logger.Warn("rejecting %s: %v (limit %d)",
				util.RemoteAddr(conn), ncerr.ErrTooManyConnections, m.MaxConnections)
			conn.Close()
			return
		}
	}

	sessions.Add(1)
	go func() {
		defer sessions.Done()
		if slots != nil {
			defer func() { <-slots }()
		}
		// The session logs its own outcome.
		session.New(conn, m.Registry, m.Options, m.Logger, m.Metrics).Run(ctx) //nolint:errcheck
	}()
}

// drain waits for sessions to finish, giving up after GracePeriod.
func (m *ServeMode) drain(sessions *sync.WaitGroup) {
	done := make(chan struct{})
	go func() {
		sessions.Wait()
		close(done)
	}()

	grace := m.GracePeriod
	if grace <= 0 {
		grace = 5 * time.Second
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		m.Logger.Warn("%d sessions still open after %v", m.Registry.Len(), grace)
	}
}

func (m *ServeMode) reportStats(ctx context.Context) {
	ticker := time.NewTicker(m.StatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Logger.Info("stats: %s", m.Metrics.CompactJSON())
		}
	}
}

func closeAll(listeners []net.Listener) {
	for _, ln := range listeners {
		ln.Close()
	}
}
