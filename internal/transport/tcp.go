package transport

import (
	"context"
	"net"

	ncerr "minircd/internal/errors"
)

// TCPAcceptor listens for plain TCP clients.
type TCPAcceptor struct {
	Address string // "host:port"
}

// Listen binds Address.
func (a *TCPAcceptor) Listen(ctx context.Context) (net.Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", a.Address)
	if err != nil {
		return nil, ncerr.Wrap("listen", a.Address, err)
	}
	return ln, nil
}

func (a *TCPAcceptor) String() string { return "tcp " + a.Address }
