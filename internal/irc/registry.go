package irc

import (
	"fmt"
	"sync"

	ncerr "minircd/internal/errors"
	"minircd/internal/metrics"
)

// Registry is the set of clients currently between registration and
// deregistration.  It is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	clients []*Client

	metrics *metrics.Collector
}

// NewRegistry returns an empty registry.  collector may be nil.
func NewRegistry(collector *metrics.Collector) *Registry {
	return &Registry{metrics: collector}
}

// Add inserts c.  Adding a client that is already present is a no-op.
func (r *Registry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.clients {
		if existing == c {
			return
		}
	}
	r.clients = append(r.clients, c)
}

// Remove deletes c by identity and reports whether it was present.
// Other clients with equal fields are untouched.
func (r *Registry) Remove(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.clients {
		if existing == c {
			last := len(r.clients) - 1
			r.clients[i] = r.clients[last]
			r.clients[last] = nil
			r.clients = r.clients[:last]
			return true
		}
	}
	return false
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Snapshot returns a copy of the current membership.
func (r *Registry) Snapshot() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Client, len(r.clients))
	copy(out, r.clients)
	return out
}

// Broadcast sends a PRIVMSG from sender carrying body to every client
// registered at the time of the call, the sender included.  Each line
// names its own recipient.
//
// The registry lock is released before any write, so a slow client
// delays the fan-out but never Add or Remove.  A client that leaves
// mid-broadcast has already been closed by its session and is skipped
// with [ncerr.ErrClientClosed].  Per-recipient failures are collected
// and returned; they never stop delivery to the rest.
func (r *Registry) Broadcast(sender, body string) (delivered int, failures []error) {
	for _, c := range r.Snapshot() {
		line := FormatPrivmsg(sender, c.DisplayName(), body)
		n, err := c.Send(line)
		r.metrics.BytesSent(int64(n))
		if err != nil {
			r.metrics.RelayFailed()
			failures = append(failures, ncerr.Wrap("write", c.Addr(), err))
			continue
		}
		r.metrics.MessageRelayed()
		delivered++
	}
	return delivered, failures
}

// FormatPrivmsg renders one relay line.
func FormatPrivmsg(sender, recipient, body string) string {
	return fmt.Sprintf(":%s PRIVMSG %s :%s\r\n", sender, recipient, body)
}

// FormatWelcome renders the line sent once to every new client.
func FormatWelcome(serverTag, serverName string) string {
	return fmt.Sprintf(":%s 001 Welcome to %s\r\n", serverTag, serverName)
}
