// Package config defines the runtime configuration for minircd and
// provides helpers for parsing gateway specifications.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	ncerr "minircd/internal/errors"
	"minircd/util"
)

// Config holds every tuneable for a server process.
type Config struct {
	// ── IRC listener ─────────────────────────────────────────────────
	ListenAddress  string
	Port           int
	ServerTag      string // prefix of server lines, ":<tag> 001 ..."
	ServerName     string // "Welcome to <name>"
	MaxConnections int    // 0 = unlimited

	// ── WebSocket transport ──────────────────────────────────────────
	WebSocketAddress string // empty = disabled
	WebSocketPath    string
	AllowedOrigins   []string

	// ── SSH gateway ──────────────────────────────────────────────────
	GatewaySpec       string // raw [user@]host[:port] from -R
	GatewayEnabled    bool
	GatewayUser       string
	GatewayHost       string
	GatewayPort       int
	RemoteBindAddress string
	RemotePort        int
	SSHKeyPath        string
	SSHPassword       bool // true → prompt interactively
	UseSSHAgent       bool
	StrictHostKey     bool
	KnownHostsPath    string
	KeepAlive         time.Duration // SSH keepalive interval, 0 = off

	// ── Output ───────────────────────────────────────────────────────
	Verbose       int
	StatsInterval time.Duration // 0 = no periodic stats
	ConfigFile    string
}

// TCPAddress returns the host:port the plain TCP listener binds.
func (c *Config) TCPAddress() string {
	return util.FormatAddr(c.ListenAddress, c.Port)
}

// ── Gateway-spec parser ──────────────────────────────────────────────

// gatewayRe matches [user@]host[:port].
var gatewayRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:]+)(?::(\d+))?$`)

// ParseGatewaySpec extracts user, host, and port from a string such as
// "irc@gw.example.com:2222".  Port defaults to 22.
func ParseGatewaySpec(spec string) (user, host string, port int, err error) {
	m := gatewayRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid gateway spec %q: expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid gateway port %q", m[3])
		}
	}
	return user, host, port, nil
}

// ResolveGateway parses GatewaySpec, when set, into the Gateway* fields
// and enables the gateway.
func (c *Config) ResolveGateway() error {
	if c.GatewaySpec == "" {
		return nil
	}
	user, host, port, err := ParseGatewaySpec(c.GatewaySpec)
	if err != nil {
		return &ncerr.ConfigError{
			Field:   "gateway",
			Value:   c.GatewaySpec,
			Message: err.Error(),
			Hint:    "use -R user@host[:port], e.g. -R irc@gw.example.com:2222",
		}
	}
	c.GatewayEnabled = true
	c.GatewayUser, c.GatewayHost, c.GatewayPort = user, host, port
	return nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
// Errors are *errors.ConfigError values carrying a hint.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return &ncerr.ConfigError{
			Field:   "port",
			Value:   c.Port,
			Message: "out of range 1-65535",
			Hint:    fmt.Sprintf("the conventional IRC port is %d", DefaultPort),
		}
	}

	if c.ServerTag == "" || strings.ContainsAny(c.ServerTag, " \t\r\n") {
		return &ncerr.ConfigError{
			Field:   "server-tag",
			Value:   strconv.Quote(c.ServerTag),
			Message: "must be a single non-empty word",
			Hint:    "it is sent as the line prefix, e.g. --server-tag irc.example.com",
		}
	}
	if strings.ContainsAny(c.ServerName, "\r\n") {
		return &ncerr.ConfigError{
			Field:   "server-name",
			Value:   strconv.Quote(c.ServerName),
			Message: "must not contain line breaks",
		}
	}

	if c.MaxConnections < 0 {
		return &ncerr.ConfigError{
			Field:   "max-conns",
			Value:   c.MaxConnections,
			Message: "must not be negative",
			Hint:    "use 0 for no limit",
		}
	}

	if c.WebSocketAddress != "" {
		if _, port, err := util.SplitHostPort(c.WebSocketAddress, 0); err != nil || port == 0 {
			msg := "port is required"
			if err != nil {
				msg = err.Error()
			}
			return &ncerr.ConfigError{
				Field:   "ws-listen",
				Value:   c.WebSocketAddress,
				Message: msg,
				Hint:    "use host:port, e.g. --ws-listen 0.0.0.0:8080",
			}
		}
		if !strings.HasPrefix(c.WebSocketPath, "/") || c.WebSocketPath == "/" || c.WebSocketPath == "/stats" {
			return &ncerr.ConfigError{
				Field:   "ws-path",
				Value:   c.WebSocketPath,
				Message: `must start with "/" and not be "/" or "/stats"`,
				Hint:    "the default is " + DefaultWebSocketPath,
			}
		}
	}

	if c.GatewayEnabled {
		if c.GatewayHost == "" {
			return &ncerr.ConfigError{
				Field:   "gateway",
				Message: "gateway host is required",
				Hint:    "use -R user@host[:port]",
			}
		}
		if c.GatewayUser == "" {
			return &ncerr.ConfigError{
				Field:   "gateway",
				Value:   c.GatewaySpec,
				Message: "SSH user is required",
				Hint:    "prefix the host with a user, e.g. -R irc@" + c.GatewayHost,
			}
		}
		if c.RemotePort < 1 || c.RemotePort > 65535 {
			return &ncerr.ConfigError{
				Field:   "remote-port",
				Message: "required with -R (1-65535)",
				Hint:    "e.g. --remote-port 6667 publishes the server on the gateway's port 6667",
			}
		}
	}

	if c.KeepAlive < 0 {
		return &ncerr.ConfigError{
			Field:   "keepalive",
			Value:   c.KeepAlive,
			Message: "must not be negative",
			Hint:    "use 0 to disable SSH keepalives",
		}
	}

	if c.StatsInterval < 0 {
		return &ncerr.ConfigError{
			Field:   "stats-interval",
			Value:   c.StatsInterval,
			Message: "must not be negative",
		}
	}
	return nil
}
