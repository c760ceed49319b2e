package util

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// FormatAddr returns "host:port".
func FormatAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// FindFreePort returns an available TCP port on 127.0.0.1.
func FindFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("finding free port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// RemoteAddr returns the peer address of c, or "unknown" when the
// transport has none.
func RemoteAddr(c net.Conn) string {
	if c == nil {
		return "unknown"
	}
	a := c.RemoteAddr()
	if a == nil || a.String() == "" {
		return "unknown"
	}
	return a.String()
}

// SplitHostPort is like [net.SplitHostPort] but tolerates a missing port,
// returning defPort in that case.  "[::1]" and "::1" are both accepted.
func SplitHostPort(s string, defPort int) (string, int, error) {
	if s == "" {
		return "", 0, fmt.Errorf("empty address")
	}
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		// No port: strip brackets from a bare IPv6 literal.
		host = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
		if host == "" {
			return "", 0, fmt.Errorf("invalid address %q", s)
		}
		return host, defPort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port %q in %q", portStr, s)
	}
	return host, port, nil
}
