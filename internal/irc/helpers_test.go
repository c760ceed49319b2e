package irc

import (
	"errors"
	"strings"
	"sync"
)

// recorder captures every Write call separately so tests can check
// that lines were never split or interleaved.
type recorder struct {
	mu     sync.Mutex
	writes []string
}

func (r *recorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = append(r.writes, string(p))
	return len(p), nil
}

func (r *recorder) Writes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.writes))
	copy(out, r.writes)
	return out
}

func (r *recorder) String() string {
	return strings.Join(r.Writes(), "")
}

var errBrokenPipe = errors.New("broken pipe")

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errBrokenPipe }

// registered reports whether c is in r.
func registered(r *Registry, c *Client) bool {
	for _, existing := range r.Snapshot() {
		if existing == c {
			return true
		}
	}
	return false
}

// newTestClient returns a client writing into a fresh recorder.
func newTestClient(addr string) (*Client, *recorder) {
	rec := &recorder{}
	return NewClient(rec, addr), rec
}
