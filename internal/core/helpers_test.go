package core

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"minircd/internal/transport"
	"minircd/util"
)

const welcome = ":minircd 001 Welcome to minircd\r\n"

// client is a TCP test client whose received lines are pumped into a
// channel.
type client struct {
	conn  net.Conn
	lines chan string
}

// dial connects to addr, retrying while the server is still binding.
func dial(t *testing.T, addr string) *client {
	t.Helper()
	var (
		conn net.Conn
		err  error
	)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err = net.DialTimeout("tcp", addr, 500*time.Millisecond)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	t.Cleanup(func() { conn.Close() })

	c := &client{conn: conn, lines: make(chan string, 64)}
	go func() {
		defer close(c.lines)
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			c.lines <- line
		}
	}()
	return c
}

func (c *client) send(t *testing.T, line string) {
	t.Helper()
	if _, err := fmt.Fprintf(c.conn, "%s\r\n", line); err != nil {
		t.Fatalf("send %q: %v", line, err)
	}
}

func (c *client) expect(t *testing.T, want string) {
	t.Helper()
	select {
	case got, ok := <-c.lines:
		if !ok {
			t.Fatalf("connection closed, want %q", want)
		}
		if got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

// expectClosed waits for the server to close the connection without
// sending anything.
func (c *client) expectClosed(t *testing.T) {
	t.Helper()
	select {
	case got, ok := <-c.lines:
		if ok {
			t.Fatalf("unexpected line %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("connection was not closed")
	}
}

func freeAddr(t *testing.T) string {
	t.Helper()
	port, err := util.FindFreePort()
	if err != nil {
		t.Fatal(err)
	}
	return util.FormatAddr("127.0.0.1", port)
}

// serve runs m in the background.  The returned stop function cancels
// it and returns the result of Run.
func serve(t *testing.T, m *ServeMode) (stop func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	var once sync.Once
	var result error
	stop = func() error {
		once.Do(func() {
			cancel()
			select {
			case result = <-done:
			case <-time.After(5 * time.Second):
				t.Fatal("server did not shut down in time")
			}
		})
		return result
	}
	t.Cleanup(func() { stop() }) //nolint:errcheck
	return stop
}

// ── scripted transport ───────────────────────────────────────────────

type acceptResult struct {
	conn net.Conn
	err  error
}

// scriptedListener returns whatever the test pushes into steps.
type scriptedListener struct {
	steps  chan acceptResult
	closed chan struct{}
	once   sync.Once
}

func newScriptedListener() *scriptedListener {
	return &scriptedListener{
		steps:  make(chan acceptResult, 16),
		closed: make(chan struct{}),
	}
}

func (l *scriptedListener) Accept() (net.Conn, error) {
	select {
	case r := <-l.steps:
		return r.conn, r.err
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

func (l *scriptedListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

func (l *scriptedListener) Addr() net.Addr { return &net.TCPAddr{} }

type fakeAcceptor struct {
	ln  net.Listener
	err error
}

func (a *fakeAcceptor) Listen(context.Context) (net.Listener, error) { return a.ln, a.err }
func (a *fakeAcceptor) String() string                                 { return "fake" }

var _ transport.Acceptor = (*fakeAcceptor)(nil)

// temporaryError is reported as temporary by net.OpError.
type temporaryError struct{}

func (temporaryError) Error() string   { return "resource temporarily unavailable" }
func (temporaryError) Temporary() bool { return true }
func (temporaryError) Timeout() bool   { return false }
