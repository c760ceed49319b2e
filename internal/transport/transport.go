// Package transport provides the listeners the server accepts client
// streams from.  Every transport yields plain net.Conn values, so the
// session layer never knows whether a client arrived over TCP, a
// WebSocket or an SSH remote forward.
package transport

import (
	"context"
	"net"
)

// Acceptor opens a listener for one transport.  Implementations
// include plain TCP, a WebSocket gateway and an SSH remote-forward
// gateway.
type Acceptor interface {
	// Listen binds the transport.  The returned listener stops when it
	// is closed or ctx ends.
	Listen(ctx context.Context) (net.Listener, error)

	// String names the transport and address for logs.
	String() string
}
