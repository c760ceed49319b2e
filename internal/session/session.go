// Package session runs the lifecycle of one accepted connection:
// register, welcome, read and dispatch lines, deregister.
//
// Sessions only see a net.Conn, so the same loop serves plain TCP,
// WebSocket and SSH-forwarded streams.
package session

import (
	"context"
	"io"
	"net"

	ncerr "minircd/internal/errors"
	"minircd/internal/irc"
	"minircd/internal/metrics"
	"minircd/util"
)

// Options are the server identity fields used in the welcome line.
type Options struct {
	ServerTag  string
	ServerName string
}

// Session binds one stream to one registered client.
type Session struct {
	Conn   net.Conn
	Client *irc.Client

	registry   *irc.Registry
	dispatcher *irc.Dispatcher
	opts       Options
	logger     *util.Logger
	metrics    *metrics.Collector
}

// New creates a Session for conn.  The client is built here but is not
// registered until Run.
func New(conn net.Conn, registry *irc.Registry, opts Options, logger *util.Logger, collector *metrics.Collector) *Session {
	addr := util.RemoteAddr(conn)
	client := irc.NewClient(conn, addr)
	logger = logger.Named("conn " + client.ID.String())

	return &Session{
		Conn:       conn,
		Client:     client,
		registry:   registry,
		dispatcher: &irc.Dispatcher{Registry: registry, Logger: logger},
		opts:       opts,
		logger:     logger,
		metrics:    collector,
	}
}

// Run serves the connection until the peer disconnects, a transport
// error occurs or ctx is cancelled.  It returns nil on a clean end of
// stream.  Whatever the outcome, the client is removed from the
// registry, the stream is closed and the client refuses further writes
// before Run returns.
func (s *Session) Run(ctx context.Context) (err error) {
	addr := s.Client.Addr()
	s.metrics.ConnectionOpened()
	s.logger.Verbose("connection from %s", addr)

	s.registry.Add(s.Client)
	defer func() {
		s.registry.Remove(s.Client)
		// Closing the stream first fails any Send still blocked on it, so
		// Client.Close never waits behind a stalled write.
		s.Conn.Close()
		s.Client.Close()
		s.metrics.ConnectionClosed()
		s.report(err)
	}()

	// Unblock the read below when the server shuts down.
	stop := context.AfterFunc(ctx, func() { s.Conn.Close() })
	defer stop()

	n, werr := s.Client.Send(irc.FormatWelcome(s.opts.ServerTag, s.opts.ServerName))
	s.metrics.BytesSent(int64(n))
	if werr != nil {
		return ncerr.Wrap("write", addr, werr)
	}

	lr := irc.NewLineReader(&countingReader{r: s.Conn, m: s.metrics})
	for {
		line, rerr := lr.ReadLine()
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			if ctx.Err() != nil {
				return nil
			}
			return ncerr.Wrap("read", addr, rerr)
		}

		_, failures := s.dispatcher.Dispatch(s.Client, line)
		for _, f := range failures {
			s.logger.Warn("relay: %v", f)
		}
	}
}

func (s *Session) report(err error) {
	switch {
	case err == nil:
		s.logger.Verbose("%s disconnected", s.Client)
	case ncerr.IsHarmless(err):
		s.logger.Verbose("%s disconnected: %v", s.Client, err)
	default:
		s.metrics.RecordError(err.Error())
		s.logger.Error("%s: %v", s.Client, err)
	}
}

// ── byte accounting ──────────────────────────────────────────────────

type countingReader struct {
	r io.Reader
	m *metrics.Collector
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.m.BytesReceived(int64(n))
	return n, err
}
