package transport

// gateway.go - publish the server through an SSH remote port forward.
//
// Go's ssh.Client.Listen registers forwarded-tcpip channels keyed by
// the exact bind address string it sent.  Some servers echo back a
// different address (e.g. "0.0.0.0" when we sent ""), and the library
// then rejects every channel with "no forward for address".  The
// listener below registers its own forwarded-tcpip handler, sends the
// tcpip-forward request itself and accepts all channels.

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	ncerr "minircd/internal/errors"
	"minircd/internal/retry"
	"minircd/util"
)

// SSHConfig holds everything needed to dial the SSH gateway.
type SSHConfig struct {
	User          string
	Host          string
	Port          int
	KeyPath       string
	Password      string
	PromptPass    bool
	UseAgent      bool
	StrictHostKey bool
	KnownHosts    string
	ConnTimeout   time.Duration
}

// GatewayAcceptor asks an SSH server to listen on RemoteBindAddress:
// RemotePort and forward every connection it receives back over the
// SSH link.  If the link drops, the listener redials and re-requests
// the forward with Backoff.
type GatewayAcceptor struct {
	SSH               *SSHConfig
	RemoteBindAddress string
	RemotePort        int
	Backoff           *retry.Backoff // nil uses retry.DefaultBackoff
	KeepAlive         time.Duration  // 0 disables SSH keepalives
	Logger            *util.Logger
}

func (a *GatewayAcceptor) String() string {
	return fmt.Sprintf("ssh-gateway %s@%s:%d -> %s",
		a.SSH.User, a.SSH.Host, a.SSH.Port,
		util.FormatAddr(a.RemoteBindAddress, a.RemotePort))
}

func (a *GatewayAcceptor) backoff() *retry.Backoff {
	b := retry.DefaultBackoff()
	if a.Backoff != nil {
		copied := *a.Backoff
		b = &copied
	}
	b.OnRetry = func(attempt int, err error, wait time.Duration) {
		a.Logger.Warn("gateway attempt %d failed: %v (retrying in %v)", attempt, err, wait.Round(time.Millisecond))
	}
	return b
}

// Listen connects to the SSH server and requests the remote forward.
// Authentication and host-key failures are not retried.
func (a *GatewayAcceptor) Listen(ctx context.Context) (net.Listener, error) {
	if a.SSH.Port == 0 {
		a.SSH.Port = 22
	}
	if a.SSH.ConnTimeout == 0 {
		a.SSH.ConnTimeout = 30 * time.Second
	}

	lctx, cancel := context.WithCancel(ctx)
	l := &gatewayListener{acceptor: a, ctx: lctx, cancel: cancel}
	if err := l.connect(); err != nil {
		cancel()
		return nil, err
	}
	return l, nil
}

// dial establishes an authenticated SSH connection to the gateway.
func (a *GatewayAcceptor) dial(ctx context.Context) (*ssh.Client, error) {
	cfg := a.SSH

	authMethods, err := BuildAuthMethods(cfg)
	if err != nil {
		return nil, retry.Permanent(ncerr.WrapSSH("auth", cfg.Host, cfg.Port, err))
	}
	hkCallback, err := hostKeyCallback(cfg)
	if err != nil {
		return nil, retry.Permanent(ncerr.WrapSSH("hostkey", cfg.Host, cfg.Port, err))
	}

	sshCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            authMethods,
		HostKeyCallback: hkCallback,
		Timeout:         cfg.ConnTimeout,
		BannerCallback: func(message string) error {
			a.Logger.Info("%s", strings.TrimSpace(message))
			return nil
		},
	}

	addr := util.FormatAddr(cfg.Host, cfg.Port)
	a.Logger.Debug("gateway: dialing %s as %s", addr, cfg.User)

	dialer := net.Dialer{Timeout: cfg.ConnTimeout}
	tcpConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, ncerr.Wrap("dial", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, sshCfg)
	if err != nil {
		tcpConn.Close()
		return nil, classifyHandshake(cfg, err)
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

// classifyHandshake marks failures that a retry cannot fix as permanent.
func classifyHandshake(cfg *SSHConfig, err error) error {
	var keyErr *knownhosts.KeyError
	if (ncerr.As(err, &keyErr) && len(keyErr.Want) > 0) ||
		strings.Contains(err.Error(), "knownhosts: key mismatch") {
		return retry.Permanent(ncerr.WrapSSH("hostkey", cfg.Host, cfg.Port,
			ncerr.Join(ncerr.ErrHostKeyMismatch, err)))
	}
	if strings.Contains(err.Error(), "unable to authenticate") {
		return retry.Permanent(ncerr.WrapSSH("auth", cfg.Host, cfg.Port,
			ncerr.Join(ncerr.ErrAuthFailed, err)))
	}
	return ncerr.WrapSSH("handshake", cfg.Host, cfg.Port, err)
}

// ── Wire format structs (RFC 4254) ──────────────────────────────────

// channelForwardMsg is the wire format for the "tcpip-forward" and
// "cancel-tcpip-forward" global requests (RFC 4254 §7.1).
type channelForwardMsg struct {
	Addr string
	Port uint32
}

// forwardedTCPPayload is the channel-open payload for
// "forwarded-tcpip" (RFC 4254 §7.2).
type forwardedTCPPayload struct {
	Addr       string
	Port       uint32
	OriginAddr string
	OriginPort uint32
}

// ── gatewayListener ──────────────────────────────────────────────────

// gatewayListener implements [net.Listener] over forwarded-tcpip
// channels.  Accept is meant to be called from a single goroutine.
type gatewayListener struct {
	acceptor *GatewayAcceptor
	ctx      context.Context
	cancel   context.CancelFunc

	mu       sync.Mutex
	client   *ssh.Client
	incoming <-chan ssh.NewChannel

	once sync.Once
}

// connect dials with backoff and requests the remote forward.
func (l *gatewayListener) connect() error {
	a := l.acceptor
	return a.backoff().Do(l.ctx, func(attempt int) error {
		client, err := a.dial(l.ctx)
		if err != nil {
			return err
		}
		incoming, err := requestForward(client, a.RemoteBindAddress, a.RemotePort)
		if err != nil {
			client.Close()
			return ncerr.WrapSSH("forward", a.SSH.Host, a.SSH.Port, err)
		}

		l.mu.Lock()
		old := l.client
		l.client, l.incoming = client, incoming
		l.mu.Unlock()
		if old != nil {
			old.Close()
		}
		// Close may have run while we were dialing.
		if l.ctx.Err() != nil {
			client.Close()
			return retry.Permanent(ncerr.ErrListenerClosed)
		}

		a.Logger.Info("gateway: %s:%d forwarded via %s",
			a.RemoteBindAddress, a.RemotePort, a.SSH.Host)
		if a.KeepAlive > 0 {
			go l.keepalive(client)
		}
		return nil
	})
}

// Accept waits for the next forwarded connection.  When the SSH link
// drops it reconnects before waiting again.
func (l *gatewayListener) Accept() (net.Conn, error) {
	for {
		l.mu.Lock()
		incoming := l.incoming
		l.mu.Unlock()

		select {
		case <-l.ctx.Done():
			return nil, ncerr.ErrListenerClosed
		case newCh, ok := <-incoming:
			if !ok {
				if l.ctx.Err() != nil {
					return nil, ncerr.ErrListenerClosed
				}
				l.acceptor.Logger.Warn("gateway: SSH connection lost, reconnecting")
				if err := l.connect(); err != nil {
					if l.ctx.Err() != nil {
						return nil, ncerr.ErrListenerClosed
					}
					return nil, err
				}
				continue
			}
			conn, err := acceptForwarded(newCh)
			if err != nil {
				l.acceptor.Logger.Verbose("gateway: %v", err)
				continue
			}
			return conn, nil
		}
	}
}

// keepalive pings client every KeepAlive.  A failed or unanswered ping
// closes the client; its forwarded channel stream then ends and Accept
// reconnects.
func (l *gatewayListener) keepalive(client *ssh.Client) {
	a := l.acceptor
	ticker := time.NewTicker(a.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
		}

		l.mu.Lock()
		current := l.client == client
		l.mu.Unlock()
		if !current {
			return
		}

		if err := ping(client, a.KeepAlive); err != nil {
			a.Logger.Warn("gateway: SSH keepalive failed: %v", err)
			client.Close()
			return
		}
		a.Logger.Debug("gateway: SSH keepalive OK")
	}
}

// ping sends one keepalive request and waits at most timeout for the
// reply.
func ping(client *ssh.Client, timeout time.Duration) error {
	errc := make(chan error, 1)
	go func() {
		_, _, err := client.SendRequest("keepalive@openssh.com", true, nil)
		errc <- err
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-errc:
		return err
	case <-timer.C:
		return fmt.Errorf("no reply within %v", timeout)
	}
}

// Close cancels the remote port forward and unblocks Accept.
func (l *gatewayListener) Close() error {
	var err error
	l.once.Do(func() {
		l.cancel()

		l.mu.Lock()
		client := l.client
		l.mu.Unlock()
		if client == nil {
			return
		}
		// Best-effort cancel; the connection may already be gone.
		msg := channelForwardMsg{
			Addr: l.acceptor.RemoteBindAddress,
			Port: uint32(l.acceptor.RemotePort),
		}
		client.SendRequest("cancel-tcpip-forward", true, ssh.Marshal(&msg)) //nolint:errcheck
		err = client.Close()
	})
	return err
}

// Addr returns the remote bind address.
func (l *gatewayListener) Addr() net.Addr {
	return &net.TCPAddr{
		IP:   net.ParseIP(l.acceptor.RemoteBindAddress),
		Port: l.acceptor.RemotePort,
	}
}

// requestForward registers the forwarded-tcpip handler and sends the
// tcpip-forward request.
func requestForward(client *ssh.Client, bindAddr string, bindPort int) (<-chan ssh.NewChannel, error) {
	// Register our channel handler BEFORE the library can.
	incoming := client.HandleChannelOpen("forwarded-tcpip")
	if incoming == nil {
		return nil, fmt.Errorf("forwarded-tcpip handler already registered")
	}

	msg := channelForwardMsg{Addr: bindAddr, Port: uint32(bindPort)}
	ok, _, err := client.SendRequest("tcpip-forward", true, ssh.Marshal(&msg))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("tcpip-forward request denied by peer")
	}
	return incoming, nil
}

func acceptForwarded(newCh ssh.NewChannel) (net.Conn, error) {
	ch, reqs, err := newCh.Accept()
	if err != nil {
		return nil, fmt.Errorf("channel accept: %w", err)
	}
	go ssh.DiscardRequests(reqs)

	var raddr net.Addr = &net.TCPAddr{}
	var payload forwardedTCPPayload
	if err := ssh.Unmarshal(newCh.ExtraData(), &payload); err == nil {
		raddr = &net.TCPAddr{
			IP:   net.ParseIP(payload.OriginAddr),
			Port: int(payload.OriginPort),
		}
	}
	return &chanConn{Channel: ch, raddr: raddr}, nil
}

// ── chanConn ─────────────────────────────────────────────────────────

// chanConn wraps an [ssh.Channel] to satisfy [net.Conn].
type chanConn struct {
	ssh.Channel
	raddr net.Addr
}

func (c *chanConn) LocalAddr() net.Addr                { return &net.TCPAddr{} }
func (c *chanConn) RemoteAddr() net.Addr               { return c.raddr }
func (c *chanConn) SetDeadline(_ time.Time) error      { return nil }
func (c *chanConn) SetReadDeadline(_ time.Time) error  { return nil }
func (c *chanConn) SetWriteDeadline(_ time.Time) error { return nil }
