// Package irc implements the relay protocol: per-connection client
// state, the shared registry, line framing and command dispatch.
//
// Lock order, everywhere in this package: nickname, then username,
// then output.  The registry lock is never held while a client lock is
// taken.
package irc

import (
	"io"
	"sync"

	"github.com/google/uuid"

	ncerr "minircd/internal/errors"
)

// Anonymous is the display name of a client that has set neither a
// nickname nor a username.
const Anonymous = "Anonymous"

// Client is the server-side state of one connected peer.  Identity is
// pointer identity; ID only labels the client in logs.
type Client struct {
	ID   uuid.UUID
	addr string

	nickMu  sync.Mutex
	nick    string
	hasNick bool

	userMu  sync.Mutex
	user    string
	hasUser bool

	outMu  sync.Mutex
	out    io.Writer
	closed bool
}

// NewClient returns a client that writes to out.  addr is the peer
// address used in error messages.
func NewClient(out io.Writer, addr string) *Client {
	return &Client{
		ID:   uuid.New(),
		addr: addr,
		out:  out,
	}
}

// Addr returns the peer address the client was created with.
func (c *Client) Addr() string { return c.addr }

// SetNick replaces the nickname.  An empty name is stored as given.
func (c *Client) SetNick(name string) {
	c.nickMu.Lock()
	c.nick, c.hasNick = name, true
	c.nickMu.Unlock()
}

// SetUser replaces the username.
func (c *Client) SetUser(name string) {
	c.userMu.Lock()
	c.user, c.hasUser = name, true
	c.userMu.Unlock()
}

// DisplayName renders the client as "nick!user", "nick", "user" or
// [Anonymous], depending on which fields are set.  It is computed on
// every call from a consistent view of both fields.
func (c *Client) DisplayName() string {
	c.nickMu.Lock()
	defer c.nickMu.Unlock()
	c.userMu.Lock()
	defer c.userMu.Unlock()

	switch {
	case c.hasNick && c.hasUser:
		return c.nick + "!" + c.user
	case c.hasNick:
		return c.nick
	case c.hasUser:
		return c.user
	default:
		return Anonymous
	}
}

// Send writes line to the client's output as a single write.  Writes
// from concurrent callers never interleave.  After [Client.Close] it
// returns [ncerr.ErrClientClosed] without touching the output.
func (c *Client) Send(line string) (int, error) {
	c.outMu.Lock()
	defer c.outMu.Unlock()

	if c.closed {
		return 0, ncerr.ErrClientClosed
	}
	return io.WriteString(c.out, line)
}

// Close refuses further writes.  It waits for an in-flight Send to
// finish and does not close the underlying stream, so a caller that
// owns the stream closes it first to fail a Send blocked on a stalled
// peer.
func (c *Client) Close() {
	c.outMu.Lock()
	c.closed = true
	c.outMu.Unlock()
}

func (c *Client) String() string {
	return c.DisplayName() + "@" + c.addr
}
